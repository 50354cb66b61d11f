// Package usererr is the storefront's user-facing error taxonomy. Every
// backend failure is classified into a Kind and given a message that is
// safe to show; raw transport text never reaches the page.
package usererr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindAuthenticationRequired Kind = "AUTHENTICATION_REQUIRED"
	KindValidation             Kind = "VALIDATION_ERROR"
	KindInvalidOrExpiredCode   Kind = "INVALID_OR_EXPIRED_CODE"
	KindProfileNotFound        Kind = "PROFILE_NOT_FOUND"
	KindServiceUnavailable     Kind = "SERVICE_UNAVAILABLE"
	KindForbidden              Kind = "FORBIDDEN"
	KindNotFound               Kind = "NOT_FOUND"
	KindConflict               Kind = "CONFLICT"
	KindGeneric                Kind = "GENERIC"
)

// Messages shown for the fixed categories.
const (
	MsgSignIn             = "Please sign in to continue."
	MsgSignInFirst        = "Please sign in first."
	MsgSignInFailed       = "Failed to sign in. Please try again."
	MsgProfileNotFound    = "Please save your profile first before verifying your phone."
	MsgInvalidCode        = "Invalid or expired verification code. Please try again."
	MsgPhoneMismatch      = "The phone number must match your profile. Please update your profile first."
	MsgServiceUnavailable = "Service is temporarily unavailable. Please try again in a moment."
	MsgUnexpected         = "An unexpected error occurred. Please try again."
	MsgGeneric            = "An error occurred. Please try again."
	MsgStoreUnavailable   = "The store service is temporarily unavailable. Please try again in a moment."
	MsgStoreConnection    = "Unable to connect to the store. Please try again."
	MsgStoreGeneric       = "An error occurred while loading products. Please try again."
	MsgAccessDenied       = "You do not have permission to access this page."
)

var statusByKind = map[Kind]int{
	KindAuthenticationRequired: http.StatusUnauthorized,
	KindValidation:             http.StatusBadRequest,
	KindInvalidOrExpiredCode:   http.StatusUnprocessableEntity,
	KindProfileNotFound:        http.StatusConflict,
	KindServiceUnavailable:     http.StatusServiceUnavailable,
	KindForbidden:              http.StatusForbidden,
	KindNotFound:               http.StatusNotFound,
	KindConflict:               http.StatusConflict,
	KindGeneric:                http.StatusBadGateway,
}

// HTTPStatus maps a kind to the status the gateway answers with.
func HTTPStatus(kind Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

type Error struct {
	kind    Kind
	message string
	fields  map[string]string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{kind: kind, message: message, cause: err}
}

// Validation carries per-field messages keyed by field name.
func Validation(fields map[string]string) *Error {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &Error{kind: KindValidation, message: "validation failed", fields: copied}
}

func (e *Error) Kind() Kind {
	if e == nil {
		return KindGeneric
	}
	return e.kind
}

// Message is the text that may be shown to the user.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Fields() map[string]string {
	if e == nil || len(e.fields) == 0 {
		return nil
	}
	copied := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		copied[k] = v
	}
	return copied
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf reports the kind of err, or KindGeneric when err is not an *Error.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind()
	}
	return KindGeneric
}

// As returns err as an *Error when it is one.
func As(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
