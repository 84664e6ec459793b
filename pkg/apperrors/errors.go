// Package apperrors classifies failures into the kinds the error-handling
// design names, so HTTP handlers and worker loops can map one classification
// to behavior without duplicating it.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds in the error-handling design.
type Kind string

// Error kinds.
const (
	KindInvalidPayload     Kind = "invalid_payload"
	KindTransientNetwork   Kind = "transient_network"
	KindRateLimited        Kind = "rate_limited"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindTimeout            Kind = "timeout"
	KindSchemaValidation   Kind = "schema_validation_failed"
	KindInternal           Kind = "internal_error"
	KindConflict           Kind = "conflict"
	KindGone               Kind = "gone"
)

// AppError wraps an underlying cause with a classification and a
// caller-facing message.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New builds an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap builds an AppError of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err does
// not carry a classification.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the classification is one the error-handling
// design marks as retry-eligible for outbound calls (tool/TTS/STT/launch).
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTransientNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the status code the control-plane API surfaces.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidPayload, KindSchemaValidation:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindGone:
		return 410
	case KindRateLimited:
		return 429
	case KindForbidden:
		return 403
	case KindTimeout, KindTransientNetwork:
		return 504
	default:
		return 500
	}
}
