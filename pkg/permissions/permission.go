// Package permissions implements the capability vocabulary and the set
// algebra used to narrow credentials to what their identity may do.
//
// A [Permission] is one of four variants of a (resource, action) family:
//
//	documents:read:all       global
//	documents:read:42        resource-scoped
//	users:read:self          identity-relative, expands to the caller's id
//	documents:read:assigned  identity-relative, expands to assignment records
//
// Flat families such as users:create have only a global variant and are
// written without a scope segment.
//
// Relative variants must be expanded against an identity only after the
// credential set has been intersected with the identity's ceiling;
// expanding first can widen scope.
package permissions

import (
	"strings"

	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// Scope tags the variant of a permission.
type Scope uint8

const (
	ScopeGlobal Scope = iota
	ScopeResource
	ScopeSelf
	ScopeAssigned
)

const (
	wordAll      = "all"
	wordSelf     = "self"
	wordAssigned = "assigned"
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeResource:
		return "resource"
	case ScopeSelf:
		return wordSelf
	case ScopeAssigned:
		return wordAssigned
	default:
		return "unknown"
	}
}

// Relative reports whether s must be expanded against an identity.
func (s Scope) Relative() bool {
	return s == ScopeSelf || s == ScopeAssigned
}

// Permission is a comparable capability tag. ID is set only for
// ScopeResource.
type Permission struct {
	Resource string
	Action   string
	Scope    Scope
	ID       string
}

// Global returns the global variant of a family.
func Global(resource, action string) Permission {
	return Permission{Resource: resource, Action: action, Scope: ScopeGlobal}
}

// On returns the variant of a family scoped to one resource id.
func On(resource, action, id string) Permission {
	return Permission{Resource: resource, Action: action, Scope: ScopeResource, ID: id}
}

// Self returns the identity-relative "own record" variant of a family.
func Self(resource, action string) Permission {
	return Permission{Resource: resource, Action: action, Scope: ScopeSelf}
}

// Assigned returns the identity-relative "assigned to me" variant.
func Assigned(resource, action string) Permission {
	return Permission{Resource: resource, Action: action, Scope: ScopeAssigned}
}

// Family returns p's (resource, action) pair.
func (p Permission) Family() Family {
	return Family{Resource: p.Resource, Action: p.Action}
}

// String returns the canonical text form.
func (p Permission) String() string {
	base := p.Resource + ":" + p.Action
	switch p.Scope {
	case ScopeGlobal:
		if vocabulary[p.Family()].scopes.isFlat() {
			return base
		}
		return base + ":" + wordAll
	case ScopeSelf:
		return base + ":" + wordSelf
	case ScopeAssigned:
		return base + ":" + wordAssigned
	default:
		return base + ":" + p.ID
	}
}

// Valid reports whether p names a known family with a scope the family
// admits.
func (p Permission) Valid() bool {
	def, ok := vocabulary[p.Family()]
	if !ok || !def.scopes.allows(p.Scope) {
		return false
	}
	if p.Scope == ScopeResource {
		return validID(p.ID)
	}
	return p.ID == ""
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, sserr.Newf(sserr.CodeValidationFormat, "permissions: cannot encode invalid permission %q", p.String())
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. JSON and YAML both
// go through it.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Parse parses the text form of a permission. Errors carry
// CodeValidationFormat.
func Parse(s string) (Permission, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Permission{}, sserr.Newf(sserr.CodeValidationFormat,
			"permissions: %q is not resource:action[:scope]", s)
	}

	fam := Family{Resource: parts[0], Action: parts[1]}
	def, ok := vocabulary[fam]
	if !ok {
		return Permission{}, sserr.Newf(sserr.CodeValidationFormat,
			"permissions: unknown permission family %q", fam.String())
	}

	if len(parts) == 2 {
		if !def.scopes.isFlat() {
			return Permission{}, sserr.Newf(sserr.CodeValidationFormat,
				"permissions: %q requires a scope (all, self, assigned or an id)", s)
		}
		return Global(fam.Resource, fam.Action), nil
	}

	var p Permission
	switch word := parts[2]; word {
	case wordAll:
		p = Global(fam.Resource, fam.Action)
	case wordSelf:
		p = Self(fam.Resource, fam.Action)
	case wordAssigned:
		p = Assigned(fam.Resource, fam.Action)
	default:
		p = On(fam.Resource, fam.Action, word)
	}
	if !p.Valid() || def.scopes.isFlat() {
		return Permission{}, sserr.Newf(sserr.CodeValidationFormat,
			"permissions: scope %q is not allowed for %q", parts[2], fam.String())
	}
	return p, nil
}

// MustParse is Parse for literals; it panics on error.
func MustParse(s string) Permission {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func validID(id string) bool {
	switch id {
	case "", wordAll, wordSelf, wordAssigned:
		return false
	}
	return !strings.ContainsAny(id, ": \t\n")
}
