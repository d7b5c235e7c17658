package credentials

// Secret holds key material. It prints and serializes as a placeholder so
// that configuration structs can be logged safely; [Secret.Value] returns
// the real string.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

// MarshalText implements encoding.TextMarshaler with the placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// UnmarshalText stores text verbatim. Without it encoding/json would not
// decode into a type that has MarshalText.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
