// Package oauth provides the authorization core of the resource server:
// signing key resolution, access token validation and the authorizers that
// turn a bearer token into the claims handed to business logic.
package oauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/internal/authz"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/internal/jwks"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/internal/metadata"
)

// SigningKey is a public key from the authorization server's JWKS.
type SigningKey = jwks.SigningKey

// ProtectedResourceMetadata is the RFC 9728 metadata document.
type ProtectedResourceMetadata = metadata.ProtectedResourceMetadata

// KeyResolver returns token signing keys by kid.
type KeyResolver interface {
	// Resolve returns the key for kid. Unknown kids trigger a download of the
	// key set; a kid still missing afterwards is a 401 ClientError and a
	// failed download is an APIError carrying the HTTP status.
	Resolve(ctx context.Context, kid string) (*SigningKey, error)

	// Refresh downloads the key set now.
	Refresh(ctx context.Context) error
}

// TokenValidator validates access tokens.
type TokenValidator interface {
	// ValidateToken verifies the signature and the issuer, audience, expiry
	// and scope claims of token. Failures are *errors.ClientError values;
	// the only 403 is a missing required scope.
	ValidateToken(ctx context.Context, token string) (*claims.AccessToken, error)
}

// Authorizer turns a bearer token into the claims for the request.
type Authorizer interface {
	// Authorize fails closed: on error the claims are nil and the error is
	// a *errors.ClientError or a *errors.APIError.
	Authorize(ctx context.Context, token string) (*claims.APIClaims, error)
}

// MetadataService provides Protected Resource Metadata per RFC 9728.
type MetadataService interface {
	GetMetadata(ctx context.Context) (*ProtectedResourceMetadata, error)
	GetMetadataURL() string
}

// State is a step of one authorization.
type State = authz.State

// Authorization states. Attached is entered by the HTTP layer once claims
// are placed on the request.
const (
	StateUnauthenticated = authz.Unauthenticated
	StateTokenValidated  = authz.TokenValidated
	StateClaimsResolved  = authz.ClaimsResolved
	StateAttached        = authz.Attached
	StateRejected        = authz.Rejected
)

// AuthorizerKind selects how claims are resolved.
type AuthorizerKind string

const (
	// KindStandard calls the custom claims provider on every request.
	KindStandard AuthorizerKind = "standard"

	// KindCaching calls the provider once per token and caches the result.
	KindCaching AuthorizerKind = "caching"
)

// kindAliases maps accepted configuration values to kinds.
var kindAliases = map[string]AuthorizerKind{
	"":         KindStandard,
	"standard": KindStandard,
	"caching":  KindCaching,
	"cognito":  KindCaching,
}

// ParseAuthorizerKind parses a provider selection value.
func ParseAuthorizerKind(s string) (AuthorizerKind, error) {
	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAuthorizerKind, s)
	}
	return kind, nil
}

func (k AuthorizerKind) String() string {
	return string(k)
}
