package identity

import (
	"io"
	"strings"
	"unicode"
)

// Secret is an opaque wrapper around a password.
//
// The wrapped value never appears on a process command line and is delivered
// to backend tools only through Input (a newline-terminated stdin stream).
// Secret intentionally implements fmt.Stringer with a redacted value so it
// cannot leak through logging or error formatting.
type Secret struct {
	value string
}

// NewSecret validates raw and wraps it.
//
// Every character must be printable. Non-printable characters (carriage
// return, line feed, NUL and friends) could terminate or alter the
// line-oriented delivery protocol to a child process, so they are rejected
// with ErrInvalidSecret. An empty secret is valid and means "not supplied".
func NewSecret(raw string) (Secret, error) {
	for _, r := range raw {
		if !unicode.IsPrint(r) {
			return Secret{}, ErrInvalidSecret
		}
	}
	return Secret{value: raw}, nil
}

// IsEmpty reports whether no secret was supplied.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

// String returns a redacted placeholder, never the secret itself.
func (s Secret) String() string {
	return "[redacted]"
}

// Input returns a reader delivering the secret over stdin, newline
// terminated. copies > 1 repeats the line, for tools that read the new
// password twice for confirmation.
func (s Secret) Input(copies int) io.Reader {
	var b strings.Builder
	for i := 0; i < copies; i++ {
		b.WriteString(s.value)
		b.WriteByte('\n')
	}
	return strings.NewReader(b.String())
}
