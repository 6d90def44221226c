package identity

import (
	"errors"
	"fmt"
)

// Validation errors for credential identifiers and secrets.
var (
	ErrMalformedIdentifier = errors.New("malformed identifier")
	ErrRealmNotAllowed     = errors.New("realm not allowed")
	ErrRealmRequired       = errors.New("realm required")
	ErrInvalidRealmSuffix  = errors.New("invalid realm")
	ErrRealmBlocked        = errors.New("realm blocked by administrator")
	ErrBlockedUser         = errors.New("username blocked by administrator")
	ErrReservedUser        = errors.New("reserved username")
	ErrInvalidSecret       = errors.New("secret contains non-printable characters")

	// Account store errors
	ErrAccountNotFound = errors.New("account not found")
)

// ValidationError wraps a validation failure with the credential role it
// applies to, so the presentation layer can render a per-role message.
// It always unwraps to one of the sentinel errors above.
type ValidationError struct {
	Role Role
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s identity validation: %v", e.Role, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Notice returns the short user-facing message for this failure.
func (e *ValidationError) Notice() string {
	switch {
	case errors.Is(e.Err, ErrBlockedUser):
		return fmt.Sprintf("%s username blocked by administrator", e.Role.Label())
	case errors.Is(e.Err, ErrReservedUser):
		return "Cannot use a reserved username"
	case errors.Is(e.Err, ErrRealmNotAllowed):
		if e.Role == RoleLocal {
			return "Invalid username"
		}
		return fmt.Sprintf("%s realm not authorized by administrator", e.Role.Label())
	case errors.Is(e.Err, ErrRealmBlocked):
		return fmt.Sprintf("%s realm blocked by administrator", e.Role.Label())
	case errors.Is(e.Err, ErrRealmRequired), errors.Is(e.Err, ErrInvalidRealmSuffix):
		return fmt.Sprintf("Invalid %s realm", e.Role.Label())
	case errors.Is(e.Err, ErrInvalidSecret):
		return fmt.Sprintf("Invalid %s password", e.Role.Label())
	default:
		return fmt.Sprintf("Invalid %s username", e.Role.Label())
	}
}
