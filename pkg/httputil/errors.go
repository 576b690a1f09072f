package httputil

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error for logging and metrics.
type Kind string

const (
	KindAuthentication     Kind = "authentication"
	KindAuthorization      Kind = "authorization"
	KindCSRF               Kind = "csrf"
	KindRateLimit          Kind = "rate_limit"
	KindValidation         Kind = "validation"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// Stable error codes returned to clients.
const (
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeStepUpRequired       = "STEP_UP_REQUIRED"
	CodeOrgNotSpecified      = "ORG_NOT_SPECIFIED"
	CodeCSRFCookieMissing    = "CSRF_COOKIE_MISSING"
	CodeCSRFHeaderMissing    = "CSRF_HEADER_MISSING"
	CodeCSRFTokenInvalid     = "CSRF_TOKEN_INVALID"
	CodeRateLimited          = "RATE_LIMITED"
	CodeRateLimitUnavailable = "RATE_LIMIT_UNAVAILABLE"
	CodeUnsupportedMedia     = "UNSUPPORTED_MEDIA_TYPE"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeInvalidJSON          = "INVALID_JSON"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
)

// Error is an HTTP-facing error. Only Code, Message and Details are ever
// serialized; the cause stays in logs.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause returns a copy of e carrying cause for logs.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// WithDetails returns a copy of e with client-visible details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// NewError builds an Error.
func NewError(kind Kind, status int, code, message string) *Error {
	return &Error{Kind: kind, Status: status, Code: code, Message: message}
}

func Unauthorized(message string) *Error {
	return NewError(KindAuthentication, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(code, message string) *Error {
	return NewError(KindAuthorization, http.StatusForbidden, code, message)
}

func CSRFError(code, message string) *Error {
	return NewError(KindCSRF, http.StatusForbidden, code, message)
}

func BadRequest(code, message string) *Error {
	return NewError(KindValidation, http.StatusBadRequest, code, message)
}

func ValidationError(status int, code, message string) *Error {
	return NewError(KindValidation, status, code, message)
}

func TooManyRequests(message string) *Error {
	return NewError(KindRateLimit, http.StatusTooManyRequests, CodeRateLimited, message)
}

// BackendUnavailable is reported as 429 so a dead counter store never allows traffic.
func BackendUnavailable(message string) *Error {
	return NewError(KindBackendUnavailable, http.StatusTooManyRequests, CodeRateLimitUnavailable, message)
}

func NotFound(message string) *Error {
	return NewError(KindNotFound, http.StatusNotFound, CodeNotFound, message)
}

// Internal is the only shape unexpected errors take on the wire.
func Internal(cause error) *Error {
	return NewError(KindInternal, http.StatusInternalServerError, CodeInternal, "Internal server error").WithCause(cause)
}

// AsError maps any error to an *Error. Errors that are not already typed
// become 500 INTERNAL_ERROR.
func AsError(err error) *Error {
	var herr *Error
	if errors.As(err, &herr) {
		return herr
	}
	return Internal(err)
}
