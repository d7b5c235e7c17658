package login

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// maxUserInfoSize bounds a provider's user info response.
const maxUserInfoSize = 1 << 20

// ExternalIdentity is a provider account normalized across providers.
type ExternalIdentity struct {
	Provider       string   `json:"provider"`
	ID             string   `json:"id"`
	VerifiedEmails []string `json:"verified_emails"`
}

// Provider describes a remote identity provider.
type Provider interface {
	// Name is the provider's identifier in URLs and stored links.
	Name() string
	Scopes() []string
	ClientID() string
	// ClientSecret decrypts the configured client secret. Providers
	// without a secret (public clients) return "".
	ClientSecret() (credentials.Secret, error)
	AuthURLEndpoint() string
	TokenExchangeEndpoint() string
	// TokenExchangeContentType is the body encoding the token endpoint
	// expects.
	TokenExchangeContentType() string
	UserInfoEndpoint() string
	DeviceCodeEndpoint() string
	// ExtractUserInfo turns a raw user info response into an
	// ExternalIdentity.
	ExtractUserInfo(data []byte) (ExternalIdentity, error)
}

// Info is the public description of a provider clients use to start a
// login or a device flow.
type Info struct {
	Provider           string   `json:"provider"`
	ClientID           string   `json:"client_id"`
	AuthURLEndpoint    string   `json:"auth_url_endpoint"`
	DeviceCodeEndpoint string   `json:"device_code_endpoint"`
	TokenEndpoint      string   `json:"token_endpoint"`
	Scopes             []string `json:"scopes"`
}

// ProviderInfo describes p for clients. Token exchange for device flows
// goes through this service, so TokenEndpoint points at publicURL.
func ProviderInfo(p Provider, publicURL string) Info {
	return Info{
		Provider:           p.Name(),
		ClientID:           p.ClientID(),
		AuthURLEndpoint:    p.AuthURLEndpoint(),
		DeviceCodeEndpoint: p.DeviceCodeEndpoint(),
		TokenEndpoint:      fmt.Sprintf("%s/login/oauth/%s/device/exchange", strings.TrimRight(publicURL, "/"), p.Name()),
		Scopes:             append([]string(nil), p.Scopes()...),
	}
}

// OAuth2Config builds the client configuration for p with the given
// callback URL. The client secret is decrypted on every call and never
// cached.
func OAuth2Config(p Provider, redirectURL string) (*oauth2.Config, error) {
	secret, err := p.ClientSecret()
	if err != nil {
		return nil, err
	}
	style := oauth2.AuthStyleInHeader
	if p.TokenExchangeContentType() == "application/x-www-form-urlencoded" {
		style = oauth2.AuthStyleInParams
	}
	return &oauth2.Config{
		ClientID:     p.ClientID(),
		ClientSecret: secret.Value(),
		RedirectURL:  redirectURL,
		Scopes:       p.Scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:       p.AuthURLEndpoint(),
			TokenURL:      p.TokenExchangeEndpoint(),
			DeviceAuthURL: p.DeviceCodeEndpoint(),
			AuthStyle:     style,
		},
	}, nil
}

// AuthorizationURL returns the provider URL the user is redirected to.
// state and the S256 challenge of verifier bind the round trip to one
// login attempt.
func AuthorizationURL(p Provider, redirectURL, state, verifier string) (string, error) {
	cfg, err := OAuth2Config(p, redirectURL)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier)), nil
}

// Exchange trades a provider authorization code for a provider token.
// client may be nil to use http.DefaultClient.
func Exchange(ctx context.Context, p Provider, client *http.Client, redirectURL, code, verifier string) (*oauth2.Token, error) {
	cfg, err := OAuth2Config(p, redirectURL)
	if err != nil {
		return nil, err
	}
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "login: provider token exchange failed")
	}
	return tok, nil
}

// FetchUserInfo calls the provider's user info endpoint with accessToken
// and extracts the identity from the response.
func FetchUserInfo(ctx context.Context, p Provider, client *http.Client, accessToken string) (ExternalIdentity, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoEndpoint(), nil)
	if err != nil {
		return ExternalIdentity{}, sserr.Wrap(err, sserr.CodeInternalConfiguration, "login: bad user info endpoint")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return ExternalIdentity{}, sserr.Wrap(err, sserr.CodeUnavailableDependency, "login: user info request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoSize))
	if err != nil {
		return ExternalIdentity{}, sserr.Wrap(err, sserr.CodeUnavailableDependency, "login: reading user info failed")
	}
	if resp.StatusCode != http.StatusOK {
		return ExternalIdentity{}, sserr.Newf(sserr.CodeUnavailableDependency,
			"login: user info endpoint returned %d", resp.StatusCode)
	}
	return p.ExtractUserInfo(body)
}
