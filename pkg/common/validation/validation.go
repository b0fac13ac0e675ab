// Package validation provides common validation utilities for the forkjoin library.
package validation

import (
	"fmt"

	fjerrors "github.com/vnykmshr/forkjoin/pkg/common/errors"
)

// number is the set of numeric kinds accepted by the range validators.
type number interface {
	~int | ~int32 | ~int64 | ~float64
}

// ValidatePositive validates that a numeric value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositive[N number](module, field string, value N) error {
	if value <= 0 {
		return fjerrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegative validates that a numeric value is non-negative (>= 0).
// Returns a ValidationError if the value is negative.
func ValidateNonNegative[N number](module, field string, value N) error {
	if value < 0 {
		return fjerrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 for the default or a positive value")
	}
	return nil
}

// ValidateAtMost validates that value does not exceed limit.
func ValidateAtMost[N number](module, field string, value, limit N) error {
	if value > limit {
		return fjerrors.NewValidationError(module, field, value, fmt.Sprintf("must be at most %v", limit))
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
// Returns a ValidationError if the value is nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return fjerrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return fjerrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}
