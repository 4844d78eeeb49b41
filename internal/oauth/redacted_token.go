package oauth

// RedactedToken wraps a sensitive token string to prevent accidental
// logging. It implements fmt.Stringer and the marshal interfaces to return
// "[REDACTED]" instead of the actual value, so a token that wanders into a
// log line, error string, or serialized debug dump never leaks.
//
// Call Value only at the point the token goes into an Authorization header
// or IRC PASS line, and never log the result.
type RedactedToken struct {
	value string
}

// NewRedactedToken wraps the given value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the actual token value.
func (t RedactedToken) Value() string {
	return t.value
}

// IsEmpty reports whether the token value is empty.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// String implements fmt.Stringer.
func (t RedactedToken) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (t RedactedToken) GoString() string {
	return "oauth.RedactedToken{[REDACTED]}"
}

// MarshalText implements encoding.TextMarshaler.
func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// MarshalJSON implements json.Marshaler.
func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}
