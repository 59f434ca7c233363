// Package errors provides error handling for SPARC.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrJobNotFound) {
//	    // handle not found
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
)

// Common sentinel errors for use across SPARC.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrJobNotFound indicates the server has no record of the job id
	ErrJobNotFound = New("job not found")

	// ErrPipelineNotComplete indicates results were requested before the
	// pipeline reached a completed state
	ErrPipelineNotComplete = New("pipeline not completed")

	// ErrInvalidEnvelope indicates an inbound frame that failed to decode
	// or carried an unrecognized message type
	ErrInvalidEnvelope = New("invalid envelope")
)

// IsJobNotFound checks if an error is or wraps ErrJobNotFound
func IsJobNotFound(err error) bool {
	return err != nil && Is(err, ErrJobNotFound)
}

// IsInvalidEnvelope checks if an error is or wraps ErrInvalidEnvelope
func IsInvalidEnvelope(err error) bool {
	return err != nil && Is(err, ErrInvalidEnvelope)
}

// NewJobNotFoundError creates a job-not-found error with a formatted message
func NewJobNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrJobNotFound, Newf(format, args...).Error())
}
