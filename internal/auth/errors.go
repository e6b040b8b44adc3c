package auth

import "errors"

var (
	// ErrInvalidToken wraps every JWT parse or signature failure.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTenantMismatch means the caller reached into another coaching.
	ErrTenantMismatch = errors.New("auth: coaching mismatch")
)
