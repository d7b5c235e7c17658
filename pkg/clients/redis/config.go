package redis

import (
	"net/url"
	"time"

	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultPoolSize      = 20
	DefaultMinIdleConns  = 2
	DefaultMaxRetries    = 3
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 3 * time.Second
	DefaultWriteTimeout  = 3 * time.Second
	DefaultHealthTimeout = 5 * time.Second
	DefaultKeyPrefix     = "authn:"
)

// Config holds the connection settings for the login-attempt cache. A
// non-empty URI (redis:// or rediss://) takes precedence over Host, Port,
// DB and Password.
type Config struct {
	URI          string             `yaml:"uri" json:"uri,omitempty" env:"URI"`
	Host         string             `yaml:"host" json:"host,omitempty" env:"HOST" envDefault:"localhost"`
	Port         int                `yaml:"port" json:"port,omitempty" env:"PORT" envDefault:"6379"`
	DB           int                `yaml:"db" json:"db" env:"DB"`
	Password     credentials.Secret `yaml:"password" json:"-" env:"PASSWORD"`
	KeyPrefix    string             `yaml:"key_prefix" json:"key_prefix,omitempty" env:"KEY_PREFIX" envDefault:"authn:"`
	PoolSize     int                `yaml:"pool_size" json:"pool_size,omitempty" env:"POOL_SIZE"`
	MinIdleConns int                `yaml:"min_idle_conns" json:"min_idle_conns,omitempty" env:"MIN_IDLE_CONNS"`
	MaxRetries   int                `yaml:"max_retries" json:"max_retries,omitempty" env:"MAX_RETRIES"`
	DialTimeout  time.Duration      `yaml:"dial_timeout" json:"dial_timeout,omitempty" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration      `yaml:"read_timeout" json:"read_timeout,omitempty" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration      `yaml:"write_timeout" json:"write_timeout,omitempty" env:"WRITE_TIMEOUT"`
	TLSEnabled   bool               `yaml:"tls_enabled" json:"tls_enabled,omitempty" env:"TLS_ENABLED"`
}

// DefaultConfig returns a Config for a local server.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		KeyPrefix:    DefaultKeyPrefix,
		PoolSize:     DefaultPoolSize,
		MinIdleConns: DefaultMinIdleConns,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Validate fills zero values with defaults and checks the rest. It
// implements config.Validator.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeValidationFormat, "redis: config uri is invalid")
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return sserr.Newf(sserr.CodeValidationFormat, "redis: config uri scheme must be redis or rediss, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return sserr.Newf(sserr.CodeValidationRange, "redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DB < 0 {
		return sserr.Newf(sserr.CodeValidationRange, "redis: config db must be >= 0, got %d", c.DB)
	}
	if c.MinIdleConns < 0 || c.PoolSize < c.MinIdleConns {
		return sserr.Newf(sserr.CodeValidationRange, "redis: config pool_size (%d) must be >= min_idle_conns (%d) >= 0", c.PoolSize, c.MinIdleConns)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return sserr.New(sserr.CodeValidationRange, "redis: config timeouts must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = DefaultMinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}
