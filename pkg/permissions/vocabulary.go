package permissions

// ScopeMask is the set of scopes a family admits.
type ScopeMask uint8

const (
	allowGlobal ScopeMask = 1 << iota
	allowResource
	allowSelf
	allowAssigned
)

const (
	scoped         = allowGlobal | allowResource | allowAssigned
	scopedWithSelf = scoped | allowSelf
	flat           = allowGlobal
)

// Family identifies a (resource, action) pair in the vocabulary.
type Family struct {
	Resource string
	Action   string
}

// String returns "resource:action".
func (f Family) String() string { return f.Resource + ":" + f.Action }

type familySpec struct {
	scopes ScopeMask
	// target is the resource kind that ids of this family refer to. Tokens
	// are addressed by the id of the user who owns them.
	target string
}

// vocabulary is the closed set of permission families. A family is either
// flat (global only, written "resource:action") or scoped (written
// "resource:action:all|self|assigned|<id>").
//
// Subsumption is per family only: the global variant of a family covers
// that family's resource, self and assigned variants. Nothing covers a
// permission of another family.
var vocabulary = map[Family]familySpec{
	{"users", "create"}:  {scopes: flat},
	{"users", "read"}:    {scopes: scopedWithSelf, target: "users"},
	{"users", "update"}:  {scopes: scopedWithSelf, target: "users"},
	{"users", "delete"}:  {scopes: scoped, target: "users"},
	{"tokens", "create"}: {scopes: scopedWithSelf, target: "users"},
	{"tokens", "read"}:   {scopes: scopedWithSelf, target: "users"},
	{"tokens", "delete"}: {scopes: scopedWithSelf, target: "users"},

	{"documents", "create"}: {scopes: flat},
	{"documents", "search"}: {scopes: flat},
	{"documents", "read"}:   {scopes: scoped, target: "documents"},
	{"documents", "write"}:  {scopes: scoped, target: "documents"},

	{"discussions", "read"}: {scopes: scoped, target: "documents"},

	{"groups", "create"}:  {scopes: flat},
	{"groups", "read"}:    {scopes: scoped, target: "groups"},
	{"groups", "update"}:  {scopes: scoped, target: "groups"},
	{"groups", "delete"}:  {scopes: scoped, target: "groups"},
	{"groups", "members"}: {scopes: scoped, target: "groups"},

	{"mappers", "create"}: {scopes: flat},
	{"mappers", "read"}:   {scopes: flat},
	{"mappers", "delete"}: {scopes: scoped, target: "mappers"},

	{"clients", "create"}: {scopes: flat},
	{"clients", "read"}:   {scopes: scoped, target: "clients"},
	{"clients", "update"}: {scopes: scoped, target: "clients"},
	{"clients", "delete"}: {scopes: scoped, target: "clients"},
}

func (m ScopeMask) allows(s Scope) bool {
	switch s {
	case ScopeGlobal:
		return m&allowGlobal != 0
	case ScopeResource:
		return m&allowResource != 0
	case ScopeSelf:
		return m&allowSelf != 0
	case ScopeAssigned:
		return m&allowAssigned != 0
	default:
		return false
	}
}

func (m ScopeMask) isFlat() bool { return m == flat }

// Families returns every family in the vocabulary.
func Families() []Family {
	out := make([]Family, 0, len(vocabulary))
	for f := range vocabulary {
		out = append(out, f)
	}
	return out
}

// Target returns the resource kind that ids of f refer to, or "" for
// flat families and unknown families.
func (f Family) Target() string {
	return vocabulary[f].target
}

// Known reports whether f is in the vocabulary.
func (f Family) Known() bool {
	_, ok := vocabulary[f]
	return ok
}
