package tokens

import "errors"

// Classification follows check order: existence, used-state, expiry,
// identity. The first failing check is the reason kept for server logs.
var (
	ErrNotFound         = errors.New("token not found")
	ErrAlreadyUsed      = errors.New("token already used")
	ErrExpired          = errors.New("token expired")
	ErrIdentityMismatch = errors.New("token identity mismatch")
)

// GenericInvalidMessage is the only token-failure detail external callers
// ever see. Collapsing the reasons prevents token enumeration probing.
const GenericInvalidMessage = "Invalid or expired token"

// IsInvalid reports whether err is one of the token validity failures,
// as opposed to a store or downstream error.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyUsed) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrIdentityMismatch)
}
