// Package oauth provides shared OAuth2 types and constants for the resource server.
package oauth

import "strings"

// Token type constants as defined in RFC 6750.
const (
	// BearerToken is the OAuth2 Bearer token type.
	BearerToken = "Bearer"
)

// Registered and commonly used JWT claim names.
const (
	ClaimIssuer     = "iss"
	ClaimAudience   = "aud"
	ClaimExpiration = "exp"
	ClaimSubject    = "sub"
	ClaimClientID   = "client_id"
	ClaimScope      = "scope"
	ClaimKeyID      = "kid"
)

// Signing algorithm names as registered in RFC 7518.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmRS384 = "RS384"
	AlgorithmRS512 = "RS512"
	AlgorithmES256 = "ES256"
	AlgorithmES384 = "ES384"
	AlgorithmES512 = "ES512"
)

// SupportedAlgorithms lists the asymmetric algorithms a deployment may select.
var SupportedAlgorithms = []string{
	AlgorithmRS256, AlgorithmRS384, AlgorithmRS512,
	AlgorithmES256, AlgorithmES384, AlgorithmES512,
}

// IsSupportedAlgorithm reports whether alg is one of SupportedAlgorithms.
func IsSupportedAlgorithm(alg string) bool {
	for _, a := range SupportedAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// ParseScope splits a space-delimited scope string per RFC 6749 Section 3.3.
// Empty entries are dropped; nil is returned when there are no scopes.
func ParseScope(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// HTTP header names.
const (
	// HeaderAuthorization is the Authorization HTTP header name.
	HeaderAuthorization = "Authorization"

	// HeaderWWWAuthenticate is the WWW-Authenticate HTTP header name.
	HeaderWWWAuthenticate = "WWW-Authenticate"

	// HeaderContentType is the Content-Type HTTP header name.
	HeaderContentType = "Content-Type"
)

// Content type constants.
const (
	// ContentTypeJSON is the application/json content type.
	ContentTypeJSON = "application/json"
)
