package minio

import (
	"time"

	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

const (
	DefaultEndpoint      = "localhost:9000"
	DefaultRegion        = "us-east-1"
	DefaultBucket        = "authn-public"
	DefaultHealthTimeout = 5 * time.Second
)

// Config holds the object storage settings used to publish verification
// keys.
type Config struct {
	Endpoint  string             `yaml:"endpoint" json:"endpoint,omitempty" env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string             `yaml:"access_key" json:"access_key,omitempty" env:"ACCESS_KEY"`
	SecretKey credentials.Secret `yaml:"secret_key" json:"-" env:"SECRET_KEY"`
	Region    string             `yaml:"region" json:"region,omitempty" env:"REGION" envDefault:"us-east-1"`
	UseSSL    bool               `yaml:"use_ssl" json:"use_ssl,omitempty" env:"USE_SSL"`

	// Bucket receives published documents. It is created on first use.
	Bucket string `yaml:"bucket" json:"bucket,omitempty" env:"BUCKET" envDefault:"authn-public"`
}

// DefaultConfig returns a Config for a local server.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Region:   DefaultRegion,
		Bucket:   DefaultBucket,
	}
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return sserr.New(sserr.CodeValidationRequired, "minio: config endpoint must not be empty")
	}
	if c.AccessKey == "" {
		return sserr.New(sserr.CodeValidationRequired, "minio: config access_key must not be empty")
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}
	return nil
}
