package core

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ErrorNotFound struct {
	subject string
}

func (e ErrorNotFound) Error() string {
	if e.subject == "" {
		return "Not Found"
	}
	return e.subject + " not found"
}

func NewErrorNotFound(subject ...string) ErrorNotFound {
	if len(subject) > 0 {
		return ErrorNotFound{subject: subject[0]}
	}
	return ErrorNotFound{}
}

type ErrorPermissionDenied struct {
	reason string
}

func (e ErrorPermissionDenied) Error() string {
	if e.reason == "" {
		return "Permission Denied"
	}
	return e.reason
}

func NewErrorPermissionDenied(reason ...string) ErrorPermissionDenied {
	if len(reason) > 0 {
		return ErrorPermissionDenied{reason: reason[0]}
	}
	return ErrorPermissionDenied{}
}

type ErrorAlreadyDeleted struct {
}

func (e ErrorAlreadyDeleted) Error() string {
	return "Already Deleted"
}

func NewErrorAlreadyDeleted() ErrorAlreadyDeleted {
	return ErrorAlreadyDeleted{}
}

// ErrorInvalidArgument is a client-fixable request problem
type ErrorInvalidArgument struct {
	message string
}

func (e ErrorInvalidArgument) Error() string {
	return e.message
}

func NewErrorInvalidArgument(format string, args ...any) ErrorInvalidArgument {
	return ErrorInvalidArgument{message: fmt.Sprintf(format, args...)}
}

// ErrorNotMember means the wallet does not hold a ticket for the event
type ErrorNotMember struct {
}

func (e ErrorNotMember) Error() string {
	return "you must hold a ticket for this event to join the chat"
}

func NewErrorNotMember() ErrorNotMember {
	return ErrorNotMember{}
}

// ErrorUnauthenticated means the wallet has no registered profile
type ErrorUnauthenticated struct {
}

func (e ErrorUnauthenticated) Error() string {
	return "a profile is required before sending messages"
}

func NewErrorUnauthenticated() ErrorUnauthenticated {
	return ErrorUnauthenticated{}
}

type ErrorRateLimited struct {
	RetryAfter time.Duration
}

func (e ErrorRateLimited) Error() string {
	return "too many messages, please wait a moment and try again"
}

func NewErrorRateLimited(retryAfter time.Duration) ErrorRateLimited {
	return ErrorRateLimited{RetryAfter: retryAfter}
}

// ErrorUpstream wraps a chain or datastore failure.
// The cause is for logs only.
type ErrorUpstream struct {
	Cause error
}

func (e ErrorUpstream) Error() string {
	return "upstream failure"
}

func (e ErrorUpstream) Unwrap() error {
	return e.Cause
}

func NewErrorUpstream(cause error) ErrorUpstream {
	return ErrorUpstream{Cause: cause}
}

// StatusCode maps an error to the HTTP status surfaced to callers
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, new(ErrorInvalidArgument)), errors.As(err, new(ErrorAlreadyDeleted)):
		return http.StatusBadRequest
	case errors.As(err, new(ErrorUnauthenticated)):
		return http.StatusUnauthorized
	case errors.As(err, new(ErrorNotMember)), errors.As(err, new(ErrorPermissionDenied)):
		return http.StatusForbidden
	case errors.As(err, new(ErrorNotFound)):
		return http.StatusNotFound
	case errors.As(err, new(ErrorRateLimited)):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the part of err that may be shown to callers
func PublicMessage(err error) string {
	if StatusCode(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
