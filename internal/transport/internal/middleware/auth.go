// Package middleware provides HTTP middleware for the transport layer.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jamesprial/oauth-resource-core/internal/oauth"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/oautherr"
	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
	pkgoauth "github.com/jamesprial/oauth-resource-core/pkg/oauth"
)

// authMiddleware implements transportcore.AuthMiddleware.
type authMiddleware struct {
	authorizer oauth.Authorizer
	responder  transportcore.ErrorResponder
	logger     *slog.Logger
}

// NewAuthMiddleware creates middleware that authorizes bearer tokens with
// authorizer and attaches the resulting claims to the request context.
// If logger is nil, it uses the default slog logger.
func NewAuthMiddleware(
	authorizer oauth.Authorizer,
	responder transportcore.ErrorResponder,
	logger *slog.Logger,
) transportcore.AuthMiddleware {
	if authorizer == nil {
		panic("authorizer cannot be nil")
	}
	if responder == nil {
		panic("responder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &authMiddleware{
		authorizer: authorizer,
		responder:  responder,
		logger:     logger,
	}
}

// Authenticate authorizes the request's bearer token and stores the claims
// in the request context for downstream handlers.
//
// A missing or non-Bearer Authorization header is passed on as an empty
// token, which the authorizer rejects with 401.
func (m *authMiddleware) Authenticate() transportcore.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := m.authorizer.Authorize(r.Context(), extractBearerToken(r))
			if err != nil {
				m.responder.Error(w, r, err)
				return
			}

			if entry := transportcore.LogEntryFromContext(r.Context()); entry != nil {
				entry.ClientID = claims.ClientID()
				entry.UserID = claims.UserID()
			}
			m.logger.DebugContext(r.Context(), "authorization state changed",
				"state", oauth.StateAttached.String(),
				"client_id", claims.ClientID(),
			)

			ctx := transportcore.ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScopes checks that the attached claims carry all scopes.
// This middleware must be used after Authenticate() in the chain.
//
// Returns 403 Forbidden with WWW-Authenticate header if scopes are insufficient.
// Returns 401 Unauthorized if claims are missing from context.
func (m *authMiddleware) RequireScopes(scopes ...string) transportcore.Middleware {
	const op = "RequireScopes"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := transportcore.ClaimsFromContext(r.Context())
			if !ok {
				m.responder.Error(w, r, oautherr.NewMissingTokenError(op))
				return
			}

			var missing []string
			for _, scope := range scopes {
				if !claims.HasScope(scope) {
					missing = append(missing, scope)
				}
			}
			if len(missing) > 0 {
				m.responder.Error(w, r, oautherr.NewInsufficientScopeError(op, strings.Join(missing, " ")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken returns the token from an "Authorization: Bearer <token>"
// header, or "" when there is no such header. The scheme is matched
// case-insensitively per RFC 6750.
func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get(pkgoauth.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, pkgoauth.BearerToken) {
		return ""
	}
	return strings.TrimSpace(token)
}
