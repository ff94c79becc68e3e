// Package transportcore provides core types, interfaces, and primitives for the transport layer.
// This package exists to break import cycles between the transport package and its internal subpackages.
package transportcore

import (
	"context"
	"net/http"
)

// Middleware is a function that wraps an http.Handler.
// It can modify the request, response, or perform additional logic
// before or after calling the next handler in the chain.
type Middleware func(http.Handler) http.Handler

// Server manages the HTTP server lifecycle.
// Implementations must support graceful shutdown and provide
// access to the bound address after startup.
type Server interface {
	// Start begins serving HTTP requests on the configured address.
	// This is a blocking call that returns when the server stops
	// or encounters an error during startup.
	Start() error

	// Shutdown gracefully shuts down the server without interrupting
	// active connections. It waits for active connections to close
	// or the context to be cancelled/expired.
	Shutdown(ctx context.Context) error

	// Addr returns the address the server is listening on.
	// This is useful when the server is configured to bind to a random port.
	Addr() string

	// Ready is closed once the server is listening, after which Addr
	// reports the bound address.
	Ready() <-chan struct{}
}

// Router handles HTTP request routing and middleware composition.
// It extends http.Handler with pattern-based routing and middleware support.
type Router interface {
	http.Handler

	// Handle registers a handler for the given pattern.
	// The pattern syntax follows http.ServeMux conventions.
	Handle(pattern string, handler http.Handler)

	// HandleFunc registers a handler function for the given pattern.
	HandleFunc(pattern string, handler http.HandlerFunc)

	// Use applies middleware to all subsequent route registrations.
	// Middleware is applied in the order registered.
	Use(middlewares ...Middleware)

	// With returns a router sharing the same routes whose registrations
	// get middlewares in addition to the ones already in use.
	With(middlewares ...Middleware) Router
}

// AuthMiddleware authorizes requests carrying a bearer token.
type AuthMiddleware interface {
	// Authenticate passes the bearer token to the authorizer and attaches
	// the resulting claims to the request context. Any failure is rendered
	// by the ErrorResponder and the next handler is not called.
	Authenticate() Middleware

	// RequireScopes checks that the attached claims carry all scopes.
	// This middleware must be used after Authenticate() in the chain.
	//
	// Returns 403 Forbidden with WWW-Authenticate header if scopes are insufficient.
	RequireScopes(scopes ...string) Middleware
}

// ErrorResponder renders errors as HTTP responses.
type ErrorResponder interface {
	// Error logs err and writes what the caller may see. Client errors keep
	// their status and message; server errors become a generic 500 that
	// references the logged instance id. 401 and 403 responses carry an
	// RFC 6750 WWW-Authenticate challenge.
	Error(w http.ResponseWriter, r *http.Request, err error)
}

// HealthCheck checks one dependency for the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}
