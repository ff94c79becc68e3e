package transportcore

import (
	"context"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsContextKey is the context key for the request's API claims.
	ClaimsContextKey contextKey = "oauth_claims"

	// LogEntryContextKey is the context key for the request's log entry.
	LogEntryContextKey contextKey = "log_entry"
)

// ClaimsFromContext extracts the API claims from the request context.
// Returns nil and false if the claims are not present in the context.
//
// This is used by handlers that need to access authenticated user information.
func ClaimsFromContext(ctx context.Context) (*claims.APIClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(ClaimsContextKey).(*claims.APIClaims)
	return c, ok && c != nil
}

// ContextWithClaims adds the API claims to the request context.
// Returns a new context containing the claims.
//
// This is used by authentication middleware to store the authorized claims.
func ContextWithClaims(ctx context.Context, c *claims.APIClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ClaimsContextKey, c)
}

// LogEntry collects the fields written to the request log line. Middleware
// and the error responder fill it in while the request is handled.
// It is only touched by the goroutine serving the request.
type LogEntry struct {
	ID            string
	CorrelationID string
	ClientID      string
	UserID        string
	ErrorCode     string
	ErrorID       string
}

// LogEntryFromContext returns the request's log entry, or nil.
func LogEntryFromContext(ctx context.Context) *LogEntry {
	if ctx == nil {
		return nil
	}
	entry, _ := ctx.Value(LogEntryContextKey).(*LogEntry)
	return entry
}

// ContextWithLogEntry adds a log entry to the request context.
func ContextWithLogEntry(ctx context.Context, entry *LogEntry) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, LogEntryContextKey, entry)
}
