package provision

import (
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
	"github.com/StricklySoft/stricklysoft-authn/pkg/login"
	"github.com/StricklySoft/stricklysoft-authn/pkg/permissions"
)

// Grant is what a mapper hands a newly registered identity.
type Grant struct {
	Permissions permissions.Set
	// Assignments are merged into the identity's assignments, keyed by
	// resource kind.
	Assignments map[string][]string
}

// Mapper derives grants from a provider account.
type Mapper interface {
	// Match returns the grant for ext and whether the mapper matched.
	Match(ext login.ExternalIdentity) (Grant, bool)
}

// Mapper kinds accepted in MapperConfig.
const (
	MapperEmailAddress = "email_address"
	MapperEmailDomain  = "email_domain"
)

// MapperConfig describes one mapper in configuration files.
type MapperConfig struct {
	Kind string `yaml:"kind" json:"kind"`
	// Match is the address for email_address and the domain for
	// email_domain.
	Match       string              `yaml:"match" json:"match"`
	Permissions permissions.Set     `yaml:"permissions" json:"permissions"`
	Assignments map[string][]string `yaml:"assignments" json:"assignments"`
}

// NewMapper builds the mapper described by cfg.
func NewMapper(cfg MapperConfig) (Mapper, error) {
	if cfg.Match == "" {
		return nil, sserr.Validation("provision: mapper match is required")
	}
	grant := Grant{Permissions: cfg.Permissions, Assignments: cfg.Assignments}
	switch cfg.Kind {
	case MapperEmailAddress:
		return EmailAddressMapper{Email: cfg.Match, Grant: grant}, nil
	case MapperEmailDomain:
		return EmailDomainMapper{Domain: cfg.Match, Grant: grant}, nil
	default:
		return nil, sserr.Validationf("provision: unknown mapper kind %q", cfg.Kind)
	}
}

// EmailAddressMapper matches an account with the exact verified address.
type EmailAddressMapper struct {
	Email string
	Grant Grant
}

// Match implements Mapper.
func (m EmailAddressMapper) Match(ext login.ExternalIdentity) (Grant, bool) {
	for _, email := range ext.VerifiedEmails {
		if strings.EqualFold(email, m.Email) {
			return m.Grant, true
		}
	}
	return Grant{}, false
}

// EmailDomainMapper matches an account with any verified address in
// Domain. Subdomains do not match.
type EmailDomainMapper struct {
	Domain string
	Grant  Grant
}

// Match implements Mapper.
func (m EmailDomainMapper) Match(ext login.ExternalIdentity) (Grant, bool) {
	suffix := "@" + strings.TrimPrefix(m.Domain, "@")
	for _, email := range ext.VerifiedEmails {
		if len(email) > len(suffix) && strings.EqualFold(email[len(email)-len(suffix):], suffix) {
			return m.Grant, true
		}
	}
	return Grant{}, false
}
