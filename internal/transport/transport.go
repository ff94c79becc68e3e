// Package transport is the HTTP surface of the resource server. It exposes
// the protected resource metadata, health and metrics endpoints, and the
// company API guarded by the bearer token authorizer.
package transport

import (
	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
)

// Re-export types from transportcore.
// This allows external packages to import transport without creating cycles.

// Middleware is a function that wraps an http.Handler.
type Middleware = transportcore.Middleware

// Server manages the HTTP server lifecycle.
type Server = transportcore.Server

// Router handles HTTP request routing and middleware composition.
type Router = transportcore.Router

// AuthMiddleware authorizes bearer tokens and enforces scope requirements
// according to RFC 6750.
type AuthMiddleware = transportcore.AuthMiddleware

// ErrorResponder renders errors as HTTP responses with RFC 6750 challenges.
type ErrorResponder = transportcore.ErrorResponder

// HealthCheck checks one dependency for the health endpoint.
type HealthCheck = transportcore.HealthCheck

// LogEntry carries the per-request fields written to the request log.
type LogEntry = transportcore.LogEntry
