package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// ===========================================================================
// Test Types
// ===========================================================================

type redactedKey string

func (redactedKey) String() string { return "[REDACTED]" }

type tokenConfig struct {
	Issuer     string        `env:"ISSUER" envDefault:"authn" yaml:"issuer" json:"issuer"`
	DefaultTTL time.Duration `env:"DEFAULT_TTL" envDefault:"1h" yaml:"default_ttl" json:"default_ttl"`
	MaxTTL     time.Duration `env:"MAX_TTL" envDefault:"24h" yaml:"max_ttl" json:"max_ttl"`
	SecretLen  uint8         `env:"SECRET_LEN" envDefault:"32" yaml:"secret_len"`
	Revocation bool          `env:"REVOCATION" yaml:"revocation"`
}

type serviceConfig struct {
	PublicURL   string        `env:"PUBLIC_URL" required:"true" yaml:"public_url"`
	Token       tokenConfig   `env:"TOKEN" yaml:"token"`
	Permissions []string      `env:"DEFAULT_PERMISSIONS" envDefault:"users:read:self" yaml:"default_permissions"`
	SigningKey  redactedKey   `env:"SIGNING_KEY" yaml:"signing_key"`
	Ratio       float64       `env:"RATIO" envDefault:"0.5"`
	Started     time.Time     `yaml:"-"`
}

type checkedConfig struct {
	DefaultTTL time.Duration `env:"DEFAULT_TTL"`
	MaxTTL     time.Duration `env:"MAX_TTL"`
}

func (c *checkedConfig) Validate() error {
	if c.DefaultTTL > c.MaxTTL {
		return sserr.New(sserr.CodeValidationRange, "default ttl exceeds max ttl")
	}
	return nil
}

type plainErrConfig struct {
	Name string `env:"NAME"`
}

func (c *plainErrConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func envMap(kv map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := kv[key]
		return v, ok
	}
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeTestFile() error: %v", err)
	}
	return path
}

func wantCode(t *testing.T, err error, code sserr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want code %s", code)
	}
	if got := sserr.GetCode(err); got != code {
		t.Fatalf("error code = %s, want %s (err: %v)", got, code, err)
	}
}

// ===========================================================================
// Layering Tests
// ===========================================================================

func TestLoad_Defaults(t *testing.T) {
	var cfg serviceConfig
	err := New().WithLookup(envMap(map[string]string{"PUBLIC_URL": "https://authn.test"})).Load(&cfg)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Token.Issuer != "authn" {
		t.Errorf("Token.Issuer = %q, want %q", cfg.Token.Issuer, "authn")
	}
	if cfg.Token.DefaultTTL != time.Hour || cfg.Token.MaxTTL != 24*time.Hour {
		t.Errorf("TTLs = %v/%v, want 1h/24h", cfg.Token.DefaultTTL, cfg.Token.MaxTTL)
	}
	if cfg.Token.SecretLen != 32 {
		t.Errorf("SecretLen = %d, want 32", cfg.Token.SecretLen)
	}
	if cfg.Ratio != 0.5 {
		t.Errorf("Ratio = %v, want 0.5", cfg.Ratio)
	}
	if len(cfg.Permissions) != 1 || cfg.Permissions[0] != "users:read:self" {
		t.Errorf("Permissions = %v, want [users:read:self]", cfg.Permissions)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeTestFile(t, "authn.yaml", `
public_url: https://file.test
token:
  issuer: file-issuer
  max_ttl: 2h
default_permissions:
  - documents:read:all
  - users:read:self
`)
	var cfg serviceConfig
	if err := New().WithFile(path).WithLookup(envMap(nil)).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PublicURL != "https://file.test" {
		t.Errorf("PublicURL = %q", cfg.PublicURL)
	}
	if cfg.Token.Issuer != "file-issuer" {
		t.Errorf("Token.Issuer = %q, want file-issuer", cfg.Token.Issuer)
	}
	if cfg.Token.MaxTTL != 2*time.Hour {
		t.Errorf("Token.MaxTTL = %v, want 2h", cfg.Token.MaxTTL)
	}
	if cfg.Token.DefaultTTL != time.Hour {
		t.Errorf("Token.DefaultTTL = %v, want default 1h", cfg.Token.DefaultTTL)
	}
	if len(cfg.Permissions) != 2 {
		t.Errorf("Permissions = %v, want two entries", cfg.Permissions)
	}
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeTestFile(t, "token.json", `{"issuer":"json-issuer"}`)
	var cfg tokenConfig
	if err := New().WithFile(path).WithLookup(envMap(nil)).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Issuer != "json-issuer" {
		t.Errorf("Issuer = %q, want json-issuer", cfg.Issuer)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeTestFile(t, "authn.yml", "public_url: https://file.test\ntoken:\n  issuer: file\n")
	env := envMap(map[string]string{
		"AUTHN_PUBLIC_URL":          "https://env.test",
		"AUTHN_TOKEN_ISSUER":        "env",
		"AUTHN_TOKEN_REVOCATION":    "true",
		"AUTHN_DEFAULT_PERMISSIONS": " documents:read:all , ,users:create ",
		"AUTHN_SIGNING_KEY":         "s3cr3t",
	})
	var cfg serviceConfig
	if err := New().WithEnvPrefix("authn").WithFile(path).WithLookup(env).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PublicURL != "https://env.test" || cfg.Token.Issuer != "env" {
		t.Errorf("env did not override file: %q %q", cfg.PublicURL, cfg.Token.Issuer)
	}
	if !cfg.Token.Revocation {
		t.Error("Token.Revocation = false, want true")
	}
	want := []string{"documents:read:all", "users:create"}
	if len(cfg.Permissions) != len(want) || cfg.Permissions[0] != want[0] || cfg.Permissions[1] != want[1] {
		t.Errorf("Permissions = %v, want %v", cfg.Permissions, want)
	}
	if string(cfg.SigningKey) != "s3cr3t" {
		t.Errorf("SigningKey not set from env")
	}
}

func TestLoad_MissingFileIsSkipped(t *testing.T) {
	var cfg tokenConfig
	path := filepath.Join(t.TempDir(), "absent.yaml")
	if err := New().WithFile(path).WithLookup(envMap(nil)).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
}

func TestProcessEnvironment(t *testing.T) {
	t.Setenv("SVC_ISSUER", "from-process")
	var cfg tokenConfig
	if err := New().WithEnvPrefix("SVC").Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Issuer != "from-process" {
		t.Errorf("Issuer = %q, want from-process", cfg.Issuer)
	}
}

// ===========================================================================
// Failure Tests
// ===========================================================================

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T) error
		code sserr.Code
	}{
		{
			name: "nil pointer",
			run:  func(*testing.T) error { return New().Load((*tokenConfig)(nil)) },
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "non struct",
			run: func(*testing.T) error {
				s := "x"
				return New().Load(&s)
			},
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "traversal",
			run: func(*testing.T) error {
				var cfg tokenConfig
				return New().WithFile("../etc/passwd.yaml").Load(&cfg)
			},
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "unsupported extension",
			run: func(t *testing.T) error {
				var cfg tokenConfig
				return New().WithFile(writeTestFile(t, "c.toml", "x = 1")).Load(&cfg)
			},
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "bad yaml",
			run: func(t *testing.T) error {
				var cfg tokenConfig
				return New().WithFile(writeTestFile(t, "c.yaml", "issuer: [")).Load(&cfg)
			},
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "bad duration from env",
			run: func(*testing.T) error {
				var cfg tokenConfig
				return New().WithLookup(envMap(map[string]string{"MAX_TTL": "forever"})).Load(&cfg)
			},
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "uint overflow",
			run: func(*testing.T) error {
				var cfg tokenConfig
				return New().WithLookup(envMap(map[string]string{"SECRET_LEN": "300"})).Load(&cfg)
			},
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "required missing",
			run: func(*testing.T) error {
				var cfg serviceConfig
				return New().WithLookup(envMap(nil)).Load(&cfg)
			},
			code: sserr.CodeValidationRequired,
		},
		{
			name: "validator sserr passthrough",
			run: func(*testing.T) error {
				var cfg checkedConfig
				return New().WithLookup(envMap(map[string]string{"DEFAULT_TTL": "2h", "MAX_TTL": "1h"})).Load(&cfg)
			},
			code: sserr.CodeValidationRange,
		},
		{
			name: "validator plain error wrapped",
			run: func(*testing.T) error {
				var cfg plainErrConfig
				return New().WithLookup(envMap(nil)).Load(&cfg)
			},
			code: sserr.CodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, tt.run(t), tt.code)
		})
	}
}

func TestMustLoad(t *testing.T) {
	cfg := MustLoad[tokenConfig](New().WithLookup(envMap(nil)))
	if cfg.Issuer != "authn" {
		t.Errorf("Issuer = %q, want authn", cfg.Issuer)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustLoad did not panic on missing required field")
		}
	}()
	_ = MustLoad[serviceConfig](New().WithLookup(envMap(nil)))
}
