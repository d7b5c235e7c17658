package postgres

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// maxStatementLen bounds the SQL text recorded on spans. Statements in this
// module never interpolate values, but signatures travel as arguments and
// long statements add nothing to a trace.
const maxStatementLen = 100

// Pool and timeout defaults.
const (
	DefaultHost              = "localhost"
	DefaultPort              = 5432
	DefaultDatabase          = "authn"
	DefaultUser              = "authn"
	DefaultMaxConns    int32 = 20
	DefaultMinConns    int32 = 2
	DefaultConnLifetime      = time.Hour
	DefaultConnIdleTime      = 15 * time.Minute
	DefaultHealthCheckPeriod = time.Minute
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHealthTimeout     = 5 * time.Second
)

// SSLMode is the libpq sslmode parameter.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"
	SSLModeRequire    SSLMode = "require"
	SSLModeVerifyCA   SSLMode = "verify-ca"
	SSLModeVerifyFull SSLMode = "verify-full"
)

// Valid reports whether m is a supported mode. allow and prefer are
// rejected: the credential store should never silently fall back to
// plaintext.
func (m SSLMode) Valid() bool {
	switch m {
	case SSLModeDisable, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
		return true
	default:
		return false
	}
}

// Config holds the connection settings for the identity and credential
// database. A non-empty URI takes precedence over the structured fields.
type Config struct {
	URI               string             `yaml:"uri" json:"uri,omitempty" env:"URI"`
	Host              string             `yaml:"host" json:"host,omitempty" env:"HOST" envDefault:"localhost"`
	Port              int                `yaml:"port" json:"port,omitempty" env:"PORT" envDefault:"5432"`
	Database          string             `yaml:"database" json:"database" env:"DATABASE" envDefault:"authn"`
	User              string             `yaml:"user" json:"user" env:"USER" envDefault:"authn"`
	Password          credentials.Secret `yaml:"password" json:"-" env:"PASSWORD"`
	SSLMode           SSLMode            `yaml:"ssl_mode" json:"ssl_mode,omitempty" env:"SSLMODE" envDefault:"require"`
	SSLRootCert       string             `yaml:"ssl_root_cert" json:"ssl_root_cert,omitempty" env:"SSL_ROOT_CERT"`
	MaxConns          int32              `yaml:"max_conns" json:"max_conns,omitempty" env:"MAX_CONNS"`
	MinConns          int32              `yaml:"min_conns" json:"min_conns,omitempty" env:"MIN_CONNS"`
	MaxConnLifetime   time.Duration      `yaml:"max_conn_lifetime" json:"max_conn_lifetime,omitempty" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime   time.Duration      `yaml:"max_conn_idle_time" json:"max_conn_idle_time,omitempty" env:"MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod time.Duration      `yaml:"health_check_period" json:"health_check_period,omitempty" env:"HEALTH_CHECK_PERIOD"`
	ConnectTimeout    time.Duration      `yaml:"connect_timeout" json:"connect_timeout,omitempty" env:"CONNECT_TIMEOUT"`
}

// DefaultConfig returns a Config for a local database.
func DefaultConfig() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Database:          DefaultDatabase,
		User:              DefaultUser,
		SSLMode:           SSLModeRequire,
		MaxConns:          DefaultMaxConns,
		MinConns:          DefaultMinConns,
		MaxConnLifetime:   DefaultConnLifetime,
		MaxConnIdleTime:   DefaultConnIdleTime,
		HealthCheckPeriod: DefaultHealthCheckPeriod,
		ConnectTimeout:    DefaultConnectTimeout,
	}
}

// Validate fills zero pool settings with defaults and checks the rest.
// It implements config.Validator.
func (c *Config) Validate() error {
	c.applyPoolDefaults()

	if c.URI != "" {
		if _, err := url.Parse(c.URI); err != nil {
			return sserr.Wrap(err, sserr.CodeValidationFormat, "postgres: config uri is invalid")
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
		return sserr.Newf(sserr.CodeValidationRange, "postgres: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return sserr.New(sserr.CodeValidationRequired, "postgres: config database must not be empty")
	}
	if c.User == "" {
		return sserr.New(sserr.CodeValidationRequired, "postgres: config user must not be empty")
	}
	if c.SSLMode == "" {
		c.SSLMode = SSLModeRequire
	}
	if !c.SSLMode.Valid() {
		return sserr.Newf(sserr.CodeValidationFormat, "postgres: config ssl_mode %q is not supported", c.SSLMode)
	}
	if c.SSLRootCert != "" {
		if _, err := os.Stat(c.SSLRootCert); err != nil {
			return sserr.Wrapf(err, sserr.CodeValidation, "postgres: config ssl_root_cert %q is not accessible", c.SSLRootCert)
		}
	}
	if c.MaxConns < c.MinConns {
		return sserr.Newf(sserr.CodeValidationRange, "postgres: config max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}
	return nil
}

func (c *Config) applyPoolDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultConnLifetime
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = DefaultConnIdleTime
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = DefaultHealthCheckPeriod
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// ConnectionString returns URI, or a postgres:// URL built from the
// structured fields. The result contains the password in clear text.
func (c *Config) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", string(c.SSLMode))
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// tlsConfig returns nil unless a custom CA is configured, in which case
// pgx's sslmode handling is replaced by an explicit tls.Config.
func (c *Config) tlsConfig() (*tls.Config, error) {
	if c.SSLRootCert == "" || c.SSLMode == SSLModeDisable {
		return nil, nil
	}

	pem, err := os.ReadFile(c.SSLRootCert)
	if err != nil {
		return nil, fmt.Errorf("postgres: read CA certificate %q: %w", c.SSLRootCert, err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("postgres: no certificates in %q", c.SSLRootCert)
	}

	cfg := &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}
	switch c.SSLMode {
	case SSLModeVerifyFull:
		cfg.ServerName = c.Host
	case SSLModeVerifyCA:
		// Chain only. Hostname verification is skipped by verifying
		// the chain by hand.
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return fmt.Errorf("postgres: server presented no certificate")
			}
			opts := x509.VerifyOptions{Roots: roots, Intermediates: x509.NewCertPool()}
			for _, cert := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(cert)
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		}
	default:
		cfg.InsecureSkipVerify = true
	}
	return cfg, nil
}

func truncateStatement(sql string) string {
	if len(sql) <= maxStatementLen {
		return sql
	}
	return sql[:maxStatementLen] + "..."
}
