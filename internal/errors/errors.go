// Package errors provides the error taxonomy shared by the authorization core
// and the HTTP host. Failures are either a ClientError, attributable to the
// caller, or an APIError, attributable to the server or its infrastructure.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates authentication is required or failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the authenticated caller lacks permission.
	ErrForbidden = errors.New("forbidden")

	// ErrBadRequest indicates invalid request parameters or format.
	ErrBadRequest = errors.New("bad request")

	// ErrInternal indicates an internal server error.
	ErrInternal = errors.New("internal error")
)

// Areas tag the part of the system an error came from.
const (
	AreaOAuth          = "OAuth"
	AreaMetadataLookup = "Metadata lookup"
	AreaUserInfo       = "User Info"
	AreaClaims         = "Claims"
	AreaException      = "Exception"
	AreaRequest        = "Request"
)

// Error codes not defined by OAuth. The OAuth error codes for token
// failures live in oauth.go.
const (
	CodeServerError           = "server_error"
	CodeMetadataLookupFailure = "metadata_lookup_failure"
	CodeUserInfoFailure       = "userinfo_failure"
	CodeClaimsFailure         = "claims_failure"
	CodeRequestAborted        = "request_aborted"
	CodeNotFound              = "not_found"
	CodeUnauthorized          = "unauthorized"
)

// clientSafeMessage is what callers see in place of any server fault.
const clientSafeMessage = "An unexpected problem was encountered in the API"

// ClientError is a 4xx error attributable to the caller.
// It is returned to the caller as is and logged without an instance id.
type ClientError struct {
	// StatusCode is the HTTP status to return (401, 403, 400, ...).
	StatusCode int

	// Code is the machine-readable error code, e.g. "invalid_token".
	Code string

	// Reason is a finer-grained, stable sub-reason such as "token_expired".
	Reason string

	// Area identifies the subsystem that rejected the request.
	Area string

	// Message is the human-readable message returned to the caller.
	Message string

	// Op identifies the operation that failed.
	Op string

	// Err is the underlying cause, if any. It is never returned to the caller.
	Err error

	// ID references the APIError instance when this error was produced by
	// APIError.ToClientError. Empty for genuine caller faults.
	ID string

	// Context provides additional key-value pairs for logging.
	Context map[string]any
}

// NewClientError creates a ClientError.
func NewClientError(statusCode int, code, message string) *ClientError {
	return &ClientError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	var b strings.Builder
	if e.Area != "" || e.Op != "" {
		b.WriteString(strings.ToLower(e.Area))
		if e.Op != "" {
			b.WriteString(".")
			b.WriteString(e.Op)
		}
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel matching the status code.
func (e *ClientError) Is(target error) bool {
	kind := kindForStatus(e.StatusCode)
	return kind != nil && kind == target
}

// WithContext adds a key-value pair to the error's context and returns the error.
func (e *ClientError) WithContext(key string, value any) *ClientError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// logArgs returns slog key-value pairs describing the error.
func (e *ClientError) logArgs() []any {
	args := []any{
		"status", e.StatusCode,
		"code", e.Code,
		"message", e.Message,
	}
	if e.Reason != "" {
		args = append(args, "reason", e.Reason)
	}
	if e.Area != "" {
		args = append(args, "area", e.Area)
	}
	if e.Op != "" {
		args = append(args, "op", e.Op)
	}
	if e.Err != nil {
		args = append(args, "cause", e.Err.Error())
	}
	for k, v := range e.Context {
		args = append(args, k, v)
	}
	return args
}

// APIError is a 5xx error attributable to the server or its dependencies.
// Every instance carries a unique id so that the log entry can be correlated
// with the generic error returned to the caller.
type APIError struct {
	// StatusCode is the status reported by the failing dependency, or 500.
	StatusCode int

	// Code is the machine-readable error code, e.g. "metadata_lookup_failure".
	Code string

	// Area identifies the subsystem that failed.
	Area string

	// Message is a human-readable description for operators.
	Message string

	// Details carries extra diagnostic text.
	Details string

	// URL is the outbound URL involved in the failure, if any.
	URL string

	// InstanceID uniquely identifies this occurrence.
	InstanceID string

	// Time is when the error was created, in UTC.
	Time time.Time

	// Op identifies the operation that failed.
	Op string

	// Err is the underlying cause, if any.
	Err error
}

// NewAPIError creates an APIError with status 500 and a fresh instance id.
func NewAPIError(code, area, message string, err error) *APIError {
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       code,
		Area:       area,
		Message:    message,
		InstanceID: uuid.NewString(),
		Time:       time.Now().UTC(),
		Err:        err,
	}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(e.Area))
	if e.Op != "" {
		b.WriteString(".")
		b.WriteString(e.Op)
	}
	fmt.Fprintf(&b, ": %s: %s", e.Code, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInternal.
func (e *APIError) Is(target error) bool {
	return target == ErrInternal
}

// WithStatus sets the status code and returns the error for chaining.
// Non-positive values are ignored.
func (e *APIError) WithStatus(statusCode int) *APIError {
	if statusCode > 0 {
		e.StatusCode = statusCode
	}
	return e
}

// WithURL sets the outbound URL and returns the error for chaining.
func (e *APIError) WithURL(url string) *APIError {
	e.URL = url
	return e
}

// WithDetails sets the diagnostic details and returns the error for chaining.
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// WithOp sets the failing operation and returns the error for chaining.
func (e *APIError) WithOp(op string) *APIError {
	e.Op = op
	return e
}

// ToClientError returns the client-safe view of the error. It exposes only
// the area and the instance id, never the cause or the details.
func (e *APIError) ToClientError() *ClientError {
	return &ClientError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeServerError,
		Area:       e.Area,
		Message:    clientSafeMessage,
		ID:         e.InstanceID,
	}
}

// logArgs returns slog key-value pairs describing the error.
func (e *APIError) logArgs() []any {
	args := []any{
		"id", e.InstanceID,
		"status", e.StatusCode,
		"code", e.Code,
		"area", e.Area,
		"message", e.Message,
		"utc_time", e.Time.Format(time.RFC3339),
	}
	if e.Op != "" {
		args = append(args, "op", e.Op)
	}
	if e.URL != "" {
		args = append(args, "url", e.URL)
	}
	details := e.Details
	if details == "" && e.Err != nil {
		details = e.Err.Error()
	}
	if details != "" {
		args = append(args, "details", details)
	}
	return args
}

// kindForStatus maps a 4xx status to its sentinel.
func kindForStatus(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}
