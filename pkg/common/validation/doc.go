// Package validation provides common validation utilities for configuration
// parameters across the forkjoin library.
//
// Every validator returns a *errors.ValidationError so that constructors can
// surface a consistent message and callers can match the failure with
// errors.Is(err, errors.ErrInvalidConfiguration).
package validation
