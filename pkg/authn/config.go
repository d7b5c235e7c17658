package authn

import (
	"time"

	mnclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/minio"
	pgclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/postgres"
	rdclient "github.com/StricklySoft/stricklysoft-authn/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/login"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
	"github.com/StricklySoft/stricklysoft-authn/pkg/provision"
	"github.com/StricklySoft/stricklysoft-authn/pkg/token"
)

// Config is the complete service configuration. Load it with pkg/config:
//
//	cfg := config.MustLoad[authn.Config](
//	    config.New().WithEnvPrefix("AUTHN").WithFile("/etc/authn/config.yaml"),
//	)
//
// Signing keys and mappers are lists and can only come from the file.
type Config struct {
	Postgres pgclient.Config `yaml:"postgres" json:"postgres" env:"POSTGRES"`
	Redis    rdclient.Config `yaml:"redis" json:"redis" env:"REDIS"`
	MinIO    mnclient.Config `yaml:"minio" json:"minio" env:"MINIO"`

	// Keys are the signing keys, default first.
	Keys      []credentials.KeyConfig     `yaml:"keys" json:"keys"`
	Encryptor credentials.EncryptorConfig `yaml:"encryptor" json:"encryptor" env:"ENCRYPTOR"`

	Token token.Config `yaml:"token" json:"token" env:"TOKEN"`
	Login login.Config `yaml:"login" json:"login" env:"LOGIN"`

	// AttemptRetention keeps expired login attempts readable so late
	// callbacks fail them instead of missing them.
	AttemptRetention time.Duration `yaml:"attempt_retention" json:"attempt_retention" env:"ATTEMPT_RETENTION" envDefault:"10m"`

	// DefaultPermissions are granted to every identity created by login.
	DefaultPermissions []string                 `yaml:"default_permissions" json:"default_permissions" env:"DEFAULT_PERMISSIONS"`
	Mappers            []provision.MapperConfig `yaml:"mappers" json:"mappers"`

	// Google enables Google login when its client id is set.
	Google login.GoogleConfig `yaml:"google" json:"google" env:"GOOGLE"`

	// PublishJWKS uploads the public key set to MinIO on start.
	PublishJWKS bool `yaml:"publish_jwks" json:"publish_jwks" env:"PUBLISH_JWKS"`

	// RevocationCheck looks up the issued-token record on every token
	// resolution.
	RevocationCheck bool `yaml:"revocation_check" json:"revocation_check" env:"REVOCATION_CHECK" envDefault:"true"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if err := c.Postgres.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if c.PublishJWKS {
		if err := c.MinIO.Validate(); err != nil {
			return err
		}
	}
	if err := c.Token.Validate(); err != nil {
		return err
	}
	if len(c.Keys) == 0 {
		return sserr.New(sserr.CodeValidationRequired, "authn: at least one signing key is required")
	}
	if c.AttemptRetention < 0 || c.Login.AttemptTTL < 0 {
		return sserr.New(sserr.CodeValidationRange, "authn: login durations must not be negative")
	}
	if _, err := c.defaultPermissions(); err != nil {
		return err
	}
	for i, m := range c.Mappers {
		if _, err := provision.NewMapper(m); err != nil {
			return sserr.Wrapf(err, sserr.CodeValidation, "authn: mapper %d is invalid", i)
		}
	}
	if c.Google.EncryptedClientSecret != "" && c.Encryptor.Material == "" {
		return sserr.New(sserr.CodeValidationRequired, "authn: an encryptor key is required to decrypt provider secrets")
	}
	return nil
}

func (c *Config) defaultPermissions() (permissions.Set, error) {
	set, err := permissions.ParseSet(c.DefaultPermissions)
	if err != nil {
		return permissions.Set{}, sserr.Wrap(err, sserr.CodeValidationFormat, "authn: default_permissions do not parse")
	}
	return set, nil
}
