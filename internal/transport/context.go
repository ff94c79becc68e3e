package transport

import (
	"context"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
)

// ClaimsContextKey is the context key for the authorized request's claims.
const ClaimsContextKey = transportcore.ClaimsContextKey

// ClaimsFromContext returns the claims attached by the authentication
// middleware. It reports false when the request was not authorized.
func ClaimsFromContext(ctx context.Context) (*claims.APIClaims, bool) {
	return transportcore.ClaimsFromContext(ctx)
}

// ContextWithClaims attaches claims to ctx.
func ContextWithClaims(ctx context.Context, c *claims.APIClaims) context.Context {
	return transportcore.ContextWithClaims(ctx, c)
}

// LogEntryFromContext returns the request's log entry, or nil outside the
// logging middleware.
func LogEntryFromContext(ctx context.Context) *LogEntry {
	return transportcore.LogEntryFromContext(ctx)
}
