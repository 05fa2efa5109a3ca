// Package errs defines the error taxonomy shared across opsgate.
//
// Every failure a handler can observe belongs to exactly one class:
//
//   - AuthenticationError: no, invalid, or expired credential (401)
//   - PermissionError:     credential valid, authorization denied (403)
//   - ValidationError:     malformed input, e.g. unknown environment (400)
//   - GatewayError:        proxied transport failure; recoverable via
//     Direct fallback for write operations only
//   - InternalError:       unexpected failure in a domain service or
//     background task (500)
//
// Authentication, permission and validation errors always surface to the
// caller unchanged. Gateway errors on writes are caught by the proxied
// router and retried once through the direct router.
package errs

import (
	"errors"
	"fmt"
)

// AuthenticationError indicates a missing, invalid, or expired credential.
// Not recoverable without re-authentication.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// NewAuthentication constructs an AuthenticationError wrapping err.
func NewAuthentication(reason string, err error) *AuthenticationError {
	return &AuthenticationError{Reason: reason, Err: err}
}

// PermissionError indicates a valid credential that lacks a required
// permission. Carries the permissions that were required so handlers can
// report them.
type PermissionError struct {
	Required []string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("missing required permission(s): %v", e.Required)
}

// NewPermission constructs a PermissionError for the required set.
func NewPermission(required ...string) *PermissionError {
	return &PermissionError{Required: required}
}

// ValidationError indicates malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidation constructs a ValidationError for a single field.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// GatewayError indicates a failure talking to the external audit gateway.
// Write operations recover from this by falling back to the direct
// router; read operations log it and keep the placeholder response.
type GatewayError struct {
	Operation string
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error during %s: %v", e.Operation, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewGateway constructs a GatewayError for the named operation.
func NewGateway(operation string, err error) *GatewayError {
	return &GatewayError{Operation: operation, Err: err}
}

// InternalError indicates an unexpected failure in a domain service.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// NewInternal constructs an InternalError wrapping err. If err is already
// part of the taxonomy it is returned unchanged so classification
// survives service boundaries.
func NewInternal(err error) error {
	var authErr *AuthenticationError
	var permErr *PermissionError
	var valErr *ValidationError
	var gwErr *GatewayError
	var intErr *InternalError
	if errors.As(err, &authErr) || errors.As(err, &permErr) ||
		errors.As(err, &valErr) || errors.As(err, &gwErr) || errors.As(err, &intErr) {
		return err
	}
	return &InternalError{Err: err}
}

// IsGateway reports whether err is classified as a gateway failure.
func IsGateway(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}
