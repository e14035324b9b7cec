package identity

import "errors"

// Authentication failures. Their messages are shown to users verbatim.
var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNotSignedIn        = errors.New("not signed in")
)

// IsAuthFailure reports whether err is one of the user-facing authentication failures.
func IsAuthFailure(err error) bool {
	for _, target := range []error{ErrInvalidEmail, ErrWeakPassword, ErrEmailInUse, ErrInvalidCredentials, ErrInvalidToken, ErrNotSignedIn} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
