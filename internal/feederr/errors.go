package feederr

import "errors"

// Sentinel errors for the listing lifecycle and its collaborators. Callers
// classify failures with errors.Is and wrap context with fmt.Errorf("%w").
var (
	// ErrValidation indicates bad input shape or bounds.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown entity id.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClaimed indicates a claim attempt on a listing that has
	// already been claimed. The first successful claim wins.
	ErrAlreadyClaimed = errors.New("listing already claimed")

	// ErrExpired indicates a claim attempt on a listing past its expiry.
	ErrExpired = errors.New("listing expired")

	// ErrForbidden indicates an ownership or role violation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials indicates a failed email/password check.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrLocationUnavailable indicates the location service is disabled,
	// denied, or timed out. Recoverable: callers degrade to unranked views.
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrPersistence indicates a store read or write failure.
	ErrPersistence = errors.New("persistence failure")
)
