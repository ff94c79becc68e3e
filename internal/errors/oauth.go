package errors

import (
	"fmt"
	"strings"
)

// OAuth error codes as defined in RFC 6749 Section 5.2 and RFC 6750 Section 3.1.
const (
	// ErrorCodeInvalidToken indicates the access token is invalid, expired, or revoked.
	ErrorCodeInvalidToken = "invalid_token"

	// ErrorCodeInsufficientScope indicates the token lacks the required scope.
	ErrorCodeInsufficientScope = "insufficient_scope"

	// ErrorCodeInvalidRequest indicates the request is malformed or missing required parameters.
	ErrorCodeInvalidRequest = "invalid_request"
)

// OAuthError describes a bearer token challenge per RFC 6750.
// It is used to format WWW-Authenticate header values for 401 and 403 responses.
type OAuthError struct {
	// ErrorCode is the OAuth error code (e.g., "invalid_token", "insufficient_scope").
	ErrorCode string

	// ErrorDescription is a human-readable description of the error.
	ErrorDescription string

	// Scope is the space-separated list of scopes required by the resource.
	Scope string

	// Realm is the protection space.
	Realm string

	// ResourceMetadata is the RFC 9728 protected resource metadata URL.
	ResourceMetadata string
}

// Error implements the error interface.
func (e *OAuthError) Error() string {
	if e.ErrorDescription != "" {
		return fmt.Sprintf("%s: %s", e.ErrorCode, e.ErrorDescription)
	}
	return e.ErrorCode
}

// NewOAuthError creates a new OAuthError with the given error code and description.
func NewOAuthError(errorCode, errorDescription string) *OAuthError {
	return &OAuthError{
		ErrorCode:        errorCode,
		ErrorDescription: errorDescription,
	}
}

// ChallengeFor builds the challenge for a ClientError. Only OAuth error codes
// are echoed in the error parameter; a request without credentials gets a
// bare challenge as RFC 6750 Section 3.1 recommends.
func ChallengeFor(ce *ClientError, realm, scope string) *OAuthError {
	challenge := &OAuthError{Realm: realm, Scope: scope}
	if ce == nil {
		return challenge
	}
	switch ce.Code {
	case ErrorCodeInvalidToken, ErrorCodeInsufficientScope, ErrorCodeInvalidRequest:
		challenge.ErrorCode = ce.Code
		challenge.ErrorDescription = ce.Message
	}
	return challenge
}

// WithScope sets the scope field and returns the error for chaining.
func (e *OAuthError) WithScope(scope string) *OAuthError {
	e.Scope = scope
	return e
}

// WithResourceMetadata sets the metadata URL and returns the error for chaining.
func (e *OAuthError) WithResourceMetadata(url string) *OAuthError {
	e.ResourceMetadata = url
	return e
}

// WWWAuthenticate formats the OAuthError as a WWW-Authenticate header value
// per RFC 6750.
//
// Example output:
//
//	Bearer realm="sample-api", error="invalid_token", error_description="The access token is expired", scope="sample-api"
func (e *OAuthError) WWWAuthenticate() string {
	var parts []string

	if e.Realm != "" {
		parts = append(parts, fmt.Sprintf(`realm="%s"`, escapeQuotes(e.Realm)))
	}
	if e.ErrorCode != "" {
		parts = append(parts, fmt.Sprintf(`error="%s"`, escapeQuotes(e.ErrorCode)))
	}
	if e.ErrorDescription != "" {
		parts = append(parts, fmt.Sprintf(`error_description="%s"`, escapeQuotes(e.ErrorDescription)))
	}
	if e.Scope != "" {
		parts = append(parts, fmt.Sprintf(`scope="%s"`, escapeQuotes(e.Scope)))
	}
	if e.ResourceMetadata != "" {
		parts = append(parts, fmt.Sprintf(`resource_metadata="%s"`, escapeQuotes(e.ResourceMetadata)))
	}

	if len(parts) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(parts, ", ")
}

// escapeQuotes escapes double quotes in strings for use in header values.
func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
