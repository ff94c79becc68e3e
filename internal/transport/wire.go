package transport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jamesprial/oauth-resource-core/internal/companies"
	"github.com/jamesprial/oauth-resource-core/internal/config"
	"github.com/jamesprial/oauth-resource-core/internal/metrics"
	"github.com/jamesprial/oauth-resource-core/internal/oauth"
	"github.com/jamesprial/oauth-resource-core/internal/transport/internal/handlers"
	transporthttp "github.com/jamesprial/oauth-resource-core/internal/transport/internal/http"
	"github.com/jamesprial/oauth-resource-core/internal/transport/internal/middleware"
)

// Routes served by NewTransportServices.
const (
	RouteMetadata     = "GET /.well-known/oauth-protected-resource"
	RouteHealth       = "GET /health"
	RouteMetrics      = "GET /metrics"
	RouteCompanies    = "GET /api/companies"
	RouteTransactions = "GET /api/companies/{" + handlers.CompanyIDPathValue + "}/transactions"
)

// NewServer creates a configured HTTP server.
// The server is configured with timeouts from the config and uses the provided router.
func NewServer(cfg *config.Config, router Router) Server {
	return transporthttp.NewServer(cfg, router)
}

// NewRouter creates a new HTTP router backed by http.ServeMux.
func NewRouter() Router {
	return transporthttp.NewRouter()
}

// NewErrorResponder creates the responder that renders every error of the
// server. realm and scope go into the WWW-Authenticate challenge together
// with metadataURL as resource_metadata.
func NewErrorResponder(realm, scope, metadataURL string, logger *slog.Logger) ErrorResponder {
	return transporthttp.NewErrorResponder(transporthttp.ChallengeConfig{
		Realm:       realm,
		Scope:       scope,
		MetadataURL: metadataURL,
	}, logger)
}

// NewAuthMiddleware creates bearer token middleware around authorizer.
func NewAuthMiddleware(authorizer oauth.Authorizer, responder ErrorResponder, logger *slog.Logger) AuthMiddleware {
	return middleware.NewAuthMiddleware(authorizer, responder, logger)
}

// NewLoggingMiddleware creates request logging middleware.
// If logger is nil, it uses the default slog logger.
func NewLoggingMiddleware(logger *slog.Logger, m *metrics.Metrics) Middleware {
	return middleware.NewLoggingMiddleware(logger, m)
}

// NewRecoveryMiddleware creates panic recovery middleware.
// If logger is nil, it uses the default slog logger.
func NewRecoveryMiddleware(responder ErrorResponder, logger *slog.Logger) Middleware {
	return middleware.NewRecoveryMiddleware(responder, logger)
}

// Config holds the configuration needed for the transport layer.
type Config struct {
	// ServerConfig is the server configuration.
	ServerConfig *config.Config

	// Authorizer turns bearer tokens into claims.
	Authorizer oauth.Authorizer

	// MetadataService provides protected resource metadata.
	MetadataService oauth.MetadataService

	// Companies serves the company API.
	Companies *companies.Service

	// Gatherer backs the /metrics endpoint. The endpoint is not registered
	// when it is nil.
	Gatherer prometheus.Gatherer

	// Metrics records request counts. Optional.
	Metrics *metrics.Metrics

	// HealthChecks run on every /health request.
	HealthChecks []HealthCheck

	// Realm and Scope go into WWW-Authenticate challenges.
	Realm string
	Scope string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewTransportServices wires routing, middleware and handlers into a server.
//
// Public routes: protected resource metadata, health and metrics.
// Protected routes: the company API, behind the authentication middleware.
func NewTransportServices(cfg *Config) (Server, Router, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.ServerConfig == nil {
		return nil, nil, fmt.Errorf("server config cannot be nil")
	}
	if cfg.Authorizer == nil {
		return nil, nil, fmt.Errorf("authorizer cannot be nil")
	}
	if cfg.MetadataService == nil {
		return nil, nil, fmt.Errorf("metadata service cannot be nil")
	}
	if cfg.Companies == nil {
		return nil, nil, fmt.Errorf("companies service cannot be nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	responder := NewErrorResponder(cfg.Realm, cfg.Scope, cfg.MetadataService.GetMetadataURL(), logger)
	auth := NewAuthMiddleware(cfg.Authorizer, responder, logger)
	companiesHandler := handlers.NewCompaniesHandler(cfg.Companies, responder, logger)

	router := NewRouter()
	router.Use(
		NewRecoveryMiddleware(responder, logger),
		NewLoggingMiddleware(logger, cfg.Metrics),
	)

	router.Handle(RouteMetadata, handlers.NewMetadataHandler(cfg.MetadataService, responder, logger))
	router.Handle(RouteHealth, handlers.NewHealthHandler(cfg.HealthChecks, logger))
	if cfg.Gatherer != nil {
		router.Handle(RouteMetrics, metrics.Handler(cfg.Gatherer))
	}

	protected := router.With(auth.Authenticate())
	protected.Handle(RouteCompanies, http.HandlerFunc(companiesHandler.List))
	protected.Handle(RouteTransactions, http.HandlerFunc(companiesHandler.Transactions))

	return NewServer(cfg.ServerConfig, router), router, nil
}
