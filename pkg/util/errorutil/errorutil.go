package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Sentinels for the chat error taxonomy. DomainErrors built by the
// constructors below unwrap to them, so callers can use errors.Is.
var (
	ErrConnectionRejected = errors.New("connection rejected")
	ErrPersistence        = errors.New("message persistence failed")
	ErrBridgeFailure      = errors.New("support chat could not be started")
	ErrBroadcastDelivery  = errors.New("broadcast delivery failed")
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
	kind       error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConnectionRejected is returned when a real-time connection cannot reach
// the open state: missing identity, empty room, or connect timeout.
func NewConnectionRejected(reason string, status int) error {
	return &DomainError{
		Code:       "CONNECTION_REJECTED",
		Message:    reason,
		HTTPStatus: status,
		kind:       ErrConnectionRejected,
	}
}

// NewPersistenceError wraps a storage failure during a chat append.
func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       "PERSISTENCE_ERROR",
		Message:    "message could not be stored",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
		kind:       ErrPersistence,
	}
}

// NewBridgeFailure wraps a failed get-or-create of a support chat ticket.
func NewBridgeFailure(err error) error {
	return &DomainError{
		Code:       "BRIDGE_FAILURE",
		Message:    "support chat could not be started",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
		kind:       ErrBridgeFailure,
	}
}

// NewBroadcastDeliveryError reports an event that did not reach a subscriber.
func NewBroadcastDeliveryError(room string, err error) error {
	return &DomainError{
		Code:       "BROADCAST_DELIVERY_FAILED",
		Message:    "broadcast delivery failed",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"room": room},
		Err:        err,
		kind:       ErrBroadcastDelivery,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
