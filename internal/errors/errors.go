package errors

import (
	"errors"
	"fmt"
)

// Common error types for the integration layer
var (
	// Token errors
	ErrTokenNotFound      = errors.New("access token not found")
	ErrInvalidTokenRecord = errors.New("invalid token record")

	// Tenant errors
	ErrNoTenantSelected = errors.New("no tenant selected")

	// Sync errors
	ErrUnknownResource = errors.New("unknown resource type")
	ErrNothingLoaded   = errors.New("no resources loaded")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
