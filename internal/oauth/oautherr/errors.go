// Package oautherr provides the error constructors used by the authorization
// core. This package is separate from internal/oauth to avoid import cycles
// when internal packages need to create OAuth errors.
package oautherr

import (
	"errors"
	"fmt"
	"net/http"

	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
)

// Stable sub-reasons attached to ClientError.Reason.
const (
	ReasonMissingToken         = "missing_token"
	ReasonMalformedToken       = "malformed_token"
	ReasonMissingKid           = "missing_kid"
	ReasonUnknownKid           = "unknown_kid"
	ReasonUnsupportedAlgorithm = "unsupported_algorithm"
	ReasonInvalidSignature     = "invalid_signature"
	ReasonInvalidClaim         = "invalid_claim"
	ReasonInvalidIssuer        = "invalid_issuer"
	ReasonInvalidAudience      = "invalid_audience"
	ReasonTokenExpired         = "token_expired"
	ReasonMissingClaim         = "missing_claim"
	ReasonInsufficientScope    = "insufficient_scope"
)

func unauthorized(op, reason, message string, err error) *ierrors.ClientError {
	return &ierrors.ClientError{
		StatusCode: http.StatusUnauthorized,
		Code:       ierrors.ErrorCodeInvalidToken,
		Reason:     reason,
		Area:       ierrors.AreaOAuth,
		Message:    message,
		Op:         op,
		Err:        err,
	}
}

// NewMissingTokenError reports a request without a bearer token.
func NewMissingTokenError(op string) *ierrors.ClientError {
	ce := unauthorized(op, ReasonMissingToken, "No access token was supplied in the bearer header", nil)
	ce.Code = ierrors.CodeUnauthorized
	return ce
}

// NewMalformedTokenError reports a token whose header cannot be parsed.
func NewMalformedTokenError(op string, err error) *ierrors.ClientError {
	return unauthorized(op, ReasonMalformedToken, "The access token is not a well-formed JWT", err)
}

// NewMissingKidError reports a token header without a kid.
func NewMissingKidError(op string) *ierrors.ClientError {
	return unauthorized(op, ReasonMissingKid, "Unable to read the kid field from the access token", nil)
}

// NewKeyNotFoundError reports a kid that is absent from the key set after a refresh.
func NewKeyNotFoundError(op string, keyID string) *ierrors.ClientError {
	return unauthorized(op, ReasonUnknownKid, fmt.Sprintf("The token kid %s was not found in the JWKS", keyID), nil).
		WithContext("kid", keyID)
}

// NewUnsupportedAlgorithmError reports a signing key or token using another algorithm.
func NewUnsupportedAlgorithmError(op string, algorithm string) *ierrors.ClientError {
	return unauthorized(op, ReasonUnsupportedAlgorithm, "The access token uses an unsupported signing algorithm", nil).
		WithContext("algorithm", algorithm)
}

// NewInvalidSignatureError reports a token that failed cryptographic verification.
func NewInvalidSignatureError(op string, err error) *ierrors.ClientError {
	return unauthorized(op, ReasonInvalidSignature, "Invalid token", err)
}

// NewInvalidClaimError reports a claim with an unexpected JSON type.
func NewInvalidClaimError(op string, claim string, err error) *ierrors.ClientError {
	return unauthorized(op, ReasonInvalidClaim, fmt.Sprintf("The %s claim has an invalid type", claim), err).
		WithContext("claim", claim)
}

// NewInvalidIssuerError reports an issuer that differs from the configured one.
func NewInvalidIssuerError(op string, expected, actual string) *ierrors.ClientError {
	return unauthorized(op, ReasonInvalidIssuer, "The issuer claim had an unexpected value", nil).
		WithContext("expected_issuer", expected).
		WithContext("actual_issuer", actual)
}

// NewInvalidAudienceError reports an audience set missing the configured audience.
func NewInvalidAudienceError(op string, expected string, actual []string) *ierrors.ClientError {
	return unauthorized(op, ReasonInvalidAudience, "The audience claim had an unexpected value", nil).
		WithContext("expected_audience", expected).
		WithContext("actual_audience", actual)
}

// NewTokenExpiredError reports a token whose exp is not in the future.
func NewTokenExpiredError(op string, expiresAt int64) *ierrors.ClientError {
	return unauthorized(op, ReasonTokenExpired, "The access token is expired", nil).
		WithContext("exp", expiresAt)
}

// NewMissingClaimError reports a required claim that is absent or empty.
func NewMissingClaimError(op string, claim string) *ierrors.ClientError {
	return unauthorized(op, ReasonMissingClaim, fmt.Sprintf("The %s claim is missing from the access token", claim), nil).
		WithContext("claim", claim)
}

// NewInsufficientScopeError reports a valid token that lacks the required scope.
// This is the only 403 produced by token validation.
func NewInsufficientScopeError(op string, required string) *ierrors.ClientError {
	return &ierrors.ClientError{
		StatusCode: http.StatusForbidden,
		Code:       ierrors.ErrorCodeInsufficientScope,
		Reason:     ReasonInsufficientScope,
		Area:       ierrors.AreaOAuth,
		Message:    "The token does not contain sufficient scope for this API",
		Op:         op,
		Context:    map[string]any{"required_scope": required},
	}
}

// NewMetadataLookupError reports a failed JWKS download. status is the HTTP
// status of the response, or 0 when no response was received.
func NewMetadataLookupError(op, url string, status int, err error) *ierrors.APIError {
	return ierrors.NewAPIError(ierrors.CodeMetadataLookupFailure, ierrors.AreaMetadataLookup,
		"Problem encountered downloading token signing keys", err).
		WithOp(op).
		WithURL(url).
		WithStatus(status)
}

// NewUserInfoError reports a failed userinfo lookup. status is the HTTP
// status of the response, or 0 when no response was received.
func NewUserInfoError(op, url string, status int, err error) *ierrors.APIError {
	return ierrors.NewAPIError(ierrors.CodeUserInfoFailure, ierrors.AreaUserInfo,
		"User info lookup failed", err).
		WithOp(op).
		WithURL(url).
		WithStatus(status)
}

// NewClaimsError reports claims that could not be composed or cached.
func NewClaimsError(op string, err error) *ierrors.APIError {
	return ierrors.NewAPIError(ierrors.CodeClaimsFailure, ierrors.AreaClaims,
		"Problem encountered building the claims for the request", err).
		WithOp(op)
}

// ReasonOf returns the sub-reason of the first ClientError in err's chain,
// or "" when there is none.
func ReasonOf(err error) string {
	var ce *ierrors.ClientError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}
