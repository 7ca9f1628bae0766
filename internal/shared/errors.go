package shared

import "errors"

var (
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates caller input violated a domain invariant.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the operation is blocked by policy, e.g. a fiscal lock.
	ErrForbidden = errors.New("forbidden")
)
