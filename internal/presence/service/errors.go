package service

import "errors"

// Validation errors for request input.
var (
	ErrInvalidPlaceID = errors.New("place id must be positive")
	ErrInvalidCode    = errors.New("code is required")
)

var (
	// ErrNotFound: no place for the id/key pair, or no user with the code.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredential: the user exists but the PIN does not match.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrPrecondition means the caller skipped a step, e.g. recording an
	// entry before resolving the user. It is a bug, not a business outcome.
	ErrPrecondition = errors.New("precondition violated")
	// ErrInvalidTransition: an entry was attempted while the user already
	// has an open visit somewhere.
	ErrInvalidTransition = errors.New("invalid transition")
)
