package permissions

import (
	"encoding/json"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Subject is the identity a set is expanded against.
type Subject interface {
	// SubjectID is the identity's own id, substituted for self variants.
	SubjectID() string
	// AssignedIDs lists the ids of the given resource kind the identity
	// is assigned to.
	AssignedIDs(resource string) []string
}

// Set is an unordered collection of permissions with set semantics.
// Operations never modify their receiver; the zero value is an empty set.
type Set struct {
	m map[Permission]struct{}
}

// NewSet returns a set holding perms. Duplicates collapse.
func NewSet(perms ...Permission) Set {
	s := Set{m: make(map[Permission]struct{}, len(perms))}
	for _, p := range perms {
		s.m[p] = struct{}{}
	}
	return s
}

// ParseSet parses every string, failing on the first malformed entry.
func ParseSet(values []string) (Set, error) {
	s := Set{m: make(map[Permission]struct{}, len(values))}
	for _, v := range values {
		p, err := Parse(v)
		if err != nil {
			return Set{}, err
		}
		s.m[p] = struct{}{}
	}
	return s, nil
}

// MustParseSet is ParseSet for literals; it panics on error.
func MustParseSet(values ...string) Set {
	s, err := ParseSet(values)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of distinct permissions.
func (s Set) Len() int { return len(s.m) }

// Has reports verbatim membership.
func (s Set) Has(p Permission) bool {
	_, ok := s.m[p]
	return ok
}

// Add returns a copy of s with perms added.
func (s Set) Add(perms ...Permission) Set {
	out := s.clone(len(perms))
	for _, p := range perms {
		out.m[p] = struct{}{}
	}
	return out
}

// Union returns every permission in s or other.
func (s Set) Union(other Set) Set {
	out := s.clone(other.Len())
	for p := range other.m {
		out.m[p] = struct{}{}
	}
	return out
}

// Covers reports whether p is held verbatim or subsumed by the global
// variant of its family.
func (s Set) Covers(p Permission) bool {
	if s.Has(p) {
		return true
	}
	return p.Scope != ScopeGlobal && s.Has(Global(p.Resource, p.Action))
}

// CoversAny reports whether any of perms is covered.
func (s Set) CoversAny(perms ...Permission) bool {
	return slices.ContainsFunc(perms, s.Covers)
}

// Intersect keeps, from both operands, the members the other operand
// covers. global∩global is global, global∩scoped is scoped and two
// different scoped variants cancel out.
func (s Set) Intersect(other Set) Set {
	out := Set{m: make(map[Permission]struct{}, min(s.Len(), other.Len()))}
	for p := range s.m {
		if other.Covers(p) {
			out.m[p] = struct{}{}
		}
	}
	for p := range other.m {
		if s.Covers(p) {
			out.m[p] = struct{}{}
		}
	}
	return out
}

// Narrow splits s into the members ceiling covers and the ones it does
// not.
func (s Set) Narrow(ceiling Set) (kept, dropped Set) {
	kept = Set{m: make(map[Permission]struct{}, s.Len())}
	dropped = Set{m: make(map[Permission]struct{})}
	for p := range s.m {
		if ceiling.Covers(p) {
			kept.m[p] = struct{}{}
		} else {
			dropped.m[p] = struct{}{}
		}
	}
	return kept, dropped
}

// Expand replaces self and assigned variants with resource-scoped
// variants for subject. Concrete variants are kept as they are. The
// result holds no relative variants, so Expand is idempotent.
func (s Set) Expand(subject Subject) Set {
	out := Set{m: make(map[Permission]struct{}, s.Len())}
	for p := range s.m {
		switch p.Scope {
		case ScopeSelf:
			if id := subject.SubjectID(); id != "" {
				out.m[On(p.Resource, p.Action, id)] = struct{}{}
			}
		case ScopeAssigned:
			for _, id := range subject.AssignedIDs(p.Family().Target()) {
				if validID(id) {
					out.m[On(p.Resource, p.Action, id)] = struct{}{}
				}
			}
		default:
			out.m[p] = struct{}{}
		}
	}
	return out
}

// Relative reports whether s still holds self or assigned variants.
func (s Set) Relative() bool {
	for p := range s.m {
		if p.Scope.Relative() {
			return true
		}
	}
	return false
}

// Equal reports whether both sets hold the same permissions.
func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for p := range s.m {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Permissions returns the members sorted by text form.
func (s Set) Permissions() []Permission {
	out := make([]Permission, 0, len(s.m))
	for p := range s.m {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Permission) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// Strings returns the sorted text forms, the shape stored in text[]
// columns and claims.
func (s Set) Strings() []string {
	perms := s.Permissions()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	return out
}

// String renders the set as a space separated list.
func (s Set) String() string {
	return strings.Join(s.Strings(), " ")
}

// MarshalJSON encodes the set as a sorted array of strings.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes an array of permission strings.
func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	parsed, err := ParseSet(values)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML encodes the set as a sequence of strings.
func (s Set) MarshalYAML() (any, error) {
	return s.Strings(), nil
}

// UnmarshalYAML decodes a sequence of permission strings.
func (s *Set) UnmarshalYAML(node *yaml.Node) error {
	var values []string
	if err := node.Decode(&values); err != nil {
		return err
	}
	parsed, err := ParseSet(values)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Set) clone(extra int) Set {
	out := Set{m: make(map[Permission]struct{}, len(s.m)+extra)}
	for p := range s.m {
		out.m[p] = struct{}{}
	}
	return out
}
