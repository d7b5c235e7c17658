package authn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-authn/internal/testutil"
	"github.com/StricklySoft/stricklysoft-authn/internal/testutil/fixtures"
	"github.com/StricklySoft/stricklysoft-authn/pkg/config"
	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/login"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
	"github.com/StricklySoft/stricklysoft-authn/pkg/provision"
	"github.com/StricklySoft/stricklysoft-authn/pkg/token"
)

const configYAML = `
postgres:
  uri: postgres://authn:secret@db:5432/authn
redis:
  host: cache
keys:
  - id: hs-1
    algorithm: HS256
    material: 0123456789abcdef0123456789abcdef
login:
  public_url: https://authn.example.com
default_permissions:
  - users:read:self
mappers:
  - kind: email_domain
    match: example.com
    permissions:
      - documents:search
google:
  client_id: authn-client
`

func envMap(m map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestConfig_Load(t *testing.T) {
	t.Parallel()
	path := testutil.TempConfigFile(t, configYAML, ".yaml")

	var cfg Config
	err := config.New().
		WithEnvPrefix("AUTHN").
		WithFile(path).
		WithLookup(envMap(map[string]string{
			"AUTHN_TOKEN_MAX_TTL":       "12h",
			"AUTHN_GOOGLE_AUTH_URL":     "https://accounts.test/auth",
			"AUTHN_DEFAULT_PERMISSIONS": "users:read:self,documents:search",
			"AUTHN_ENCRYPTOR_KEY":       fixtures.EncryptionKey,
			"AUTHN_REVOCATION_CHECK":    "false",
			"AUTHN_LOGIN_ATTEMPT_TTL":   "2m",
			"AUTHN_REDIS_KEY_PREFIX":    fixtures.RedisKeyPrefix,
		})).
		Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "cache", cfg.Redis.Host)
	assert.Equal(t, fixtures.RedisKeyPrefix, cfg.Redis.KeyPrefix)
	require.Len(t, cfg.Keys, 1)
	assert.Equal(t, fixtures.HMACKey, cfg.Keys[0].Material.Value())
	assert.Equal(t, time.Hour, cfg.Token.DefaultTTL)
	assert.Equal(t, 12*time.Hour, cfg.Token.MaxTTL)
	assert.Equal(t, 2*time.Minute, cfg.Login.AttemptTTL)
	assert.Equal(t, 10*time.Minute, cfg.AttemptRetention)
	assert.Equal(t, "https://accounts.test/auth", cfg.Google.AuthURL)
	assert.False(t, cfg.RevocationCheck)
	assert.Equal(t, fixtures.EncryptionKey, cfg.Encryptor.Material.Value())

	defaults, err := cfg.defaultPermissions()
	require.NoError(t, err)
	assert.True(t, defaults.Equal(permissions.MustParseSet("documents:search", "users:read:self")))

	require.Len(t, cfg.Mappers, 1)
	assert.True(t, cfg.Mappers[0].Permissions.Has(permissions.Global("documents", "search")))
}

func TestConfig_LoadRequiresPublicURL(t *testing.T) {
	t.Parallel()
	path := testutil.TempConfigFile(t, `
keys:
  - id: hs-1
    algorithm: HS256
    material: 0123456789abcdef0123456789abcdef
`, ".yaml")

	var cfg Config
	err := config.New().WithFile(path).WithLookup(envMap(nil)).Load(&cfg)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	assert.Contains(t, err.Error(), "Login.PublicURL")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	valid := func() Config {
		cfg := Config{
			Keys:  []credentials.KeyConfig{{ID: "hs-1", Algorithm: credentials.AlgorithmHS256, Material: fixtures.HMACKey}},
			Token: token.Config{DefaultTTL: time.Hour, MaxTTL: 24 * time.Hour},
			Login: login.Config{PublicURL: fixtures.PublicURL},
		}
		cfg.Postgres.URI = "postgres://authn@db:5432/authn"
		cfg.Redis.Host = "cache"
		return cfg
	}
	base := valid()
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		code   sserr.Code
	}{
		{"no keys", func(c *Config) { c.Keys = nil }, sserr.CodeValidationRequired},
		{"default ttl above max", func(c *Config) { c.Token.DefaultTTL = 48 * time.Hour }, sserr.CodeValidationRange},
		{"negative retention", func(c *Config) { c.AttemptRetention = -time.Second }, sserr.CodeValidationRange},
		{"unknown default permission", func(c *Config) { c.DefaultPermissions = []string{"users:fly:self"} }, sserr.CodeValidationFormat},
		{"mapper without match", func(c *Config) {
			c.Mappers = []provision.MapperConfig{{Kind: provision.MapperEmailDomain}}
		}, sserr.CodeValidation},
		{"sealed secret without encryptor", func(c *Config) {
			c.Google = login.GoogleConfig{ClientID: "authn-client", EncryptedClientSecret: "sealed"}
		}, sserr.CodeValidationRequired},
		{"publishing without minio endpoint", func(c *Config) { c.PublishJWKS = true }, sserr.CodeValidationRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			testutil.RequireErrorCode(t, cfg.Validate(), tt.code)
		})
	}
}
