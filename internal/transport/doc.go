/*
Package transport is the HTTP layer of the resource server.

# Package structure

	internal/transport/
	├── transport.go              # Type re-exports
	├── errors.go                 # Transport errors
	├── context.go                # Claims and log entry helpers
	├── wire.go                   # Factory functions and route table
	├── transportcore/            # Shared types, kept apart to avoid cycles
	└── internal/
	    ├── http/
	    │   ├── server.go         # HTTP server with graceful shutdown
	    │   ├── router.go         # ServeMux routing with middleware
	    │   └── response.go       # Error responder with WWW-Authenticate
	    ├── middleware/
	    │   ├── auth.go           # Bearer token authorization
	    │   ├── logging.go        # Request log, correlation id, metrics
	    │   └── recovery.go       # Panic recovery
	    └── handlers/
	        ├── metadata.go       # /.well-known/oauth-protected-resource
	        ├── health.go         # /health
	        └── companies.go      # /api/companies

# Middleware chain

Every route runs through recovery and then logging. Company routes add the
authentication middleware, which hands the bearer token to the configured
oauth.Authorizer and attaches the resulting claims to the request context.

# Error responses

All errors go through one ErrorResponder. Client errors keep their status,
code and message. Anything else is logged with an instance id and rendered
as a generic 500 that carries only that id.

401 and 403 responses carry an RFC 6750 challenge:

	HTTP/1.1 401 Unauthorized
	WWW-Authenticate: Bearer realm="sample-api", error="invalid_token", error_description="Access token expired", scope="sample-api", resource_metadata="https://api.example.com/.well-known/oauth-protected-resource"
	Content-Type: application/json

	{"code":"invalid_token","message":"Access token expired","area":"OAuth"}

# Usage

	server, _, err := transport.NewTransportServices(&transport.Config{
		ServerConfig:    cfg,
		Authorizer:      authorizer,
		MetadataService: metadataService,
		Companies:       companies.NewService(repo),
		Gatherer:        registry,
		Metrics:         m,
	})
	if err != nil {
		return err
	}
	go server.Start()
	<-ctx.Done()
	_ = server.Shutdown(context.Background())

Handlers read the claims with ClaimsFromContext:

	c, ok := transport.ClaimsFromContext(r.Context())
	if !ok {
		// not authorized
	}
	userID := c.UserID()
*/
package transport
