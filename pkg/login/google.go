package login

import (
	"encoding/json"

	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// GoogleName is the provider name for Google accounts.
const GoogleName = "google"

// Google endpoints.
const (
	GoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL    = "https://oauth2.googleapis.com/token"
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	GoogleDeviceURL   = "https://oauth2.googleapis.com/device/code"
)

// GoogleConfig configures the Google provider. The client secret is
// stored encrypted and decrypted with the service encryptor on use.
type GoogleConfig struct {
	ClientID              string `yaml:"client_id" json:"client_id" env:"CLIENT_ID"`
	EncryptedClientSecret string `yaml:"encrypted_client_secret" json:"encrypted_client_secret" env:"ENCRYPTED_CLIENT_SECRET"`

	// Endpoint overrides, for tests and proxies.
	AuthURL     string `yaml:"auth_url" json:"auth_url" env:"AUTH_URL"`
	TokenURL    string `yaml:"token_url" json:"token_url" env:"TOKEN_URL"`
	UserInfoURL string `yaml:"user_info_url" json:"user_info_url" env:"USER_INFO_URL"`
	DeviceURL   string `yaml:"device_url" json:"device_url" env:"DEVICE_URL"`
}

// GoogleProvider implements Provider for Google.
type GoogleProvider struct {
	cfg       GoogleConfig
	encryptor credentials.Encryptor
}

var _ Provider = (*GoogleProvider)(nil)

// NewGoogleProvider returns the Google provider. encryptor may be nil
// only when no client secret is configured.
func NewGoogleProvider(cfg GoogleConfig, encryptor credentials.Encryptor) (*GoogleProvider, error) {
	if cfg.ClientID == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "login: google client id is required")
	}
	if cfg.EncryptedClientSecret != "" && encryptor == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "login: google client secret needs an encryptor")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = GoogleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = GoogleTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = GoogleUserInfoURL
	}
	if cfg.DeviceURL == "" {
		cfg.DeviceURL = GoogleDeviceURL
	}
	return &GoogleProvider{cfg: cfg, encryptor: encryptor}, nil
}

func (g *GoogleProvider) Name() string                     { return GoogleName }
func (g *GoogleProvider) Scopes() []string                 { return []string{"openid", "email"} }
func (g *GoogleProvider) ClientID() string                 { return g.cfg.ClientID }
func (g *GoogleProvider) AuthURLEndpoint() string          { return g.cfg.AuthURL }
func (g *GoogleProvider) TokenExchangeEndpoint() string    { return g.cfg.TokenURL }
func (g *GoogleProvider) TokenExchangeContentType() string { return "application/x-www-form-urlencoded" }
func (g *GoogleProvider) UserInfoEndpoint() string         { return g.cfg.UserInfoURL }
func (g *GoogleProvider) DeviceCodeEndpoint() string       { return g.cfg.DeviceURL }

// ClientSecret implements Provider.
func (g *GoogleProvider) ClientSecret() (credentials.Secret, error) {
	if g.cfg.EncryptedClientSecret == "" {
		return "", nil
	}
	plain, err := g.encryptor.Decrypt(g.cfg.EncryptedClientSecret)
	if err != nil {
		return "", err
	}
	return credentials.Secret(plain), nil
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// ExtractUserInfo parses an OpenID Connect user info response. Only a
// verified email is reported.
func (g *GoogleProvider) ExtractUserInfo(data []byte) (ExternalIdentity, error) {
	var info googleUserInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return ExternalIdentity{}, sserr.Wrap(err, sserr.CodeValidationFormat, "login: google user info is not valid json")
	}
	if info.Sub == "" {
		return ExternalIdentity{}, sserr.New(sserr.CodeValidationRequired, "login: google user info has no subject")
	}
	emails := []string{}
	if info.Email != "" && info.EmailVerified {
		emails = append(emails, info.Email)
	}
	return ExternalIdentity{Provider: GoogleName, ID: info.Sub, VerifiedEmails: emails}, nil
}
