package app

import (
	"fmt"
	"net/http"
)

// Kind is the stable error category callers branch on.
type Kind string

const (
	KindInvalidArgument  Kind = "INVALID_ARGUMENT"
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindForbidden        Kind = "FORBIDDEN"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindStoreUnavailable Kind = "STORE_UNAVAILABLE"
)

var kindStatus = map[Kind]int{
	KindInvalidArgument:  http.StatusBadRequest,
	KindUnauthorized:     http.StatusUnauthorized,
	KindForbidden:        http.StatusForbidden,
	KindNotFound:         http.StatusNotFound,
	KindConflict:         http.StatusConflict,
	KindStoreUnavailable: http.StatusInternalServerError,
}

// DomainError carries a kind and a user-safe message. Err keeps the
// underlying cause for logs and is never written to responses.
type DomainError struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func domainError(kind Kind, message string, details any) *DomainError {
	return &DomainError{
		Kind:    kind,
		Status:  kindStatus[kind],
		Code:    string(kind),
		Message: message,
		Details: details,
	}
}

func invalidArgument(message string) *DomainError {
	return domainError(KindInvalidArgument, message, nil)
}

func notFound(message string) *DomainError {
	return domainError(KindNotFound, message, nil)
}

func forbidden(message string) *DomainError {
	return domainError(KindForbidden, message, nil)
}

func unauthorized(message string) *DomainError {
	return domainError(KindUnauthorized, message, nil)
}

func conflict(message string) *DomainError {
	return domainError(KindConflict, message, nil)
}
