// Package errors provides error handling for trellis.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operators
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := store.Set(ctx, key, blob); err != nil {
//	    return errors.Wrap(err, "failed to persist graph")
//	}
//
//	// Classify
//	if errors.Is(err, errors.ErrNotFound) {
//	    // reply with a not_found ERROR frame
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
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	CombineErrors      = crdb.CombineErrors
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors shared by every trellis package.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates a node, parent, edge or stored graph does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates a malformed message or payload
	ErrInvalidRequest = New("invalid request")

	// ErrNotSubscribed indicates an operation arrived before SUBSCRIBE
	ErrNotSubscribed = New("not subscribed")

	// ErrConflict indicates a duplicate id
	ErrConflict = New("resource conflict")

	// ErrRateLimited indicates a session exceeded its operation budget
	ErrRateLimited = New("rate limited")

	// ErrServiceUnavailable indicates a collaborator (storage, analytics) failed
	ErrServiceUnavailable = New("service unavailable")
)

// Wire codes carried in ERROR frames.
const (
	CodeNotFound      = "not_found"
	CodeNotSubscribed = "not_subscribed"
	CodeMalformed     = "malformed_payload"
	CodeConflict      = "conflict"
	CodeRateLimited   = "rate_limited"
	CodeUnavailable   = "unavailable"
	CodeInternal      = "internal"
)

// Code maps an error to the wire code sent to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrNotFound):
		return CodeNotFound
	case Is(err, ErrNotSubscribed):
		return CodeNotSubscribed
	case Is(err, ErrInvalidRequest):
		return CodeMalformed
	case Is(err, ErrConflict):
		return CodeConflict
	case Is(err, ErrRateLimited):
		return CodeRateLimited
	case Is(err, ErrServiceUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsServiceUnavailableError checks if an error is or wraps ErrServiceUnavailable
func IsServiceUnavailableError(err error) bool {
	return err != nil && Is(err, ErrServiceUnavailable)
}

// WrapInvalidRequest wraps an error as an invalid-request error with context
func WrapInvalidRequest(err error, context string) error {
	return Wrap(Wrap(ErrInvalidRequest, err.Error()), context)
}

// WrapUnavailable wraps a collaborator failure as a service-unavailable error
func WrapUnavailable(err error, context string) error {
	return Wrap(Wrap(ErrServiceUnavailable, err.Error()), context)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}

// NewConflictError creates a conflict error with a formatted message
func NewConflictError(format string, args ...interface{}) error {
	return Wrap(ErrConflict, Newf(format, args...).Error())
}
