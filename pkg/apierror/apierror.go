package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind is the closed set of failures the session layer reports.
type Kind string

const (
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindValidation         Kind = "VALIDATION_ERROR"
	KindRefreshRejected    Kind = "REFRESH_REJECTED"
	KindNetworkUnavailable Kind = "NETWORK_UNAVAILABLE"
	KindServerError        Kind = "SERVER_ERROR"
	KindUnauthorized       Kind = "UNAUTHORIZED"
)

// UserMessage is the single line a UI shows for a failed attempt.
func (k Kind) UserMessage() string {
	switch k {
	case KindInvalidCredentials:
		return "Incorrect email or password."
	case KindValidation:
		return "Please correct the highlighted fields."
	case KindRefreshRejected:
		return "Your session has expired. Please log in again."
	case KindNetworkUnavailable:
		return "Cannot reach the Thinkora server. Check your connection and try again."
	case KindServerError:
		return "The Thinkora server had a problem. Please try again later."
	case KindUnauthorized:
		return "You are not signed in."
	default:
		return "Something went wrong."
	}
}

// Status is the HTTP status the local surface answers with for k.
func (k Kind) Status() int {
	switch k {
	case KindInvalidCredentials, KindRefreshRejected, KindUnauthorized:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNetworkUnavailable:
		return http.StatusServiceUnavailable
	case KindServerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type APIError struct {
	Kind       Kind              `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	HTTPStatus int               `json:"-"`

	cause error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Fields[k])
		}
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}

	return msg
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// Is matches any *APIError of the same kind, so the sentinels below work
// with errors.Is regardless of message or cause.
func (e *APIError) Is(target error) bool {
	var other *APIError
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return e.Kind == other.Kind
}

func New(kind Kind, message string, status int) *APIError {
	if message == "" {
		message = kind.UserMessage()
	}
	return &APIError{Kind: kind, Message: message, HTTPStatus: status}
}

func Wrap(kind Kind, message string, status int, cause error) *APIError {
	e := New(kind, message, status)
	e.cause = cause
	return e
}

// Validation builds a field-level error; fields maps field name to reason.
func Validation(message string, fields map[string]string, status int) *APIError {
	e := New(KindValidation, message, status)
	if len(fields) > 0 {
		e.Fields = fields
	}
	return e
}

var (
	ErrInvalidCredentials = &APIError{Kind: KindInvalidCredentials}
	ErrValidation         = &APIError{Kind: KindValidation}
	ErrRefreshRejected    = &APIError{Kind: KindRefreshRejected}
	ErrNetworkUnavailable = &APIError{Kind: KindNetworkUnavailable}
	ErrServerError        = &APIError{Kind: KindServerError}
	ErrUnauthorized       = &APIError{Kind: KindUnauthorized}
)

// KindOf reports the kind of the first *APIError in err's chain.
func KindOf(err error) (Kind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Kind, true
	}
	return "", false
}

// From returns err's *APIError, classifying anything else as a server error.
func From(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr
	}
	return Wrap(KindServerError, "", 0, err)
}

// Transient reports whether err leaves existing credentials untouched.
func Transient(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindNetworkUnavailable || kind == KindServerError)
}
