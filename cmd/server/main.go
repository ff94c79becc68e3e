// Package main runs the sample resource server. It wires configuration,
// the OAuth authorizer, the claims cache backend and the HTTP transport,
// and manages the server lifecycle with graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
	"github.com/jamesprial/oauth-resource-core/internal/companies"
	"github.com/jamesprial/oauth-resource-core/internal/config"
	"github.com/jamesprial/oauth-resource-core/internal/metrics"
	"github.com/jamesprial/oauth-resource-core/internal/oauth"
	"github.com/jamesprial/oauth-resource-core/internal/transport"
)

const memoryCleanupInterval = time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("server configuration loaded",
		"addr", cfg.Addr,
		"base_url", cfg.BaseURL,
		"issuer", cfg.Issuer,
		"provider", cfg.Provider,
		"cache_store", cfg.CacheStore,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return err
	}

	kind, err := oauth.ParseAuthorizerKind(cfg.Provider)
	if err != nil {
		return err
	}

	store, healthChecks, closeStore := newClaimsStore(ctx, cfg)
	defer closeStore()

	repo := companies.NewSampleRepository()
	providers := []claims.CustomClaimsProvider{companies.NewClaimsProvider(repo)}
	if cfg.UserInfoURL != "" {
		providers = append([]claims.CustomClaimsProvider{claims.NewUserInfoProvider(cfg.UserInfoURL, httpClient)}, providers...)
	}

	authorizer, metadataService, _, err := oauth.NewServices(&oauth.Config{
		Issuer:                 cfg.Issuer,
		Audience:               cfg.Audience,
		RequiredScope:          cfg.RequiredScope,
		Algorithm:              cfg.Algorithm,
		JWKSURL:                cfg.JWKSURL,
		JWKSCacheTTL:           cfg.JWKSCacheTTL,
		JWKSMinRefreshInterval: cfg.JWKSMinRefreshInterval,
		HTTPClient:             httpClient,
		Kind:                   kind,
		ClaimsCacheTTL:         cfg.ClaimsCacheTTL(),
		ClaimsStore:            store,
		Provider:               claims.Chain(providers...),
		BaseURL:                cfg.BaseURL,
		ResourceName:           cfg.ResourceName,
		Logger:                 logger,
		Metrics:                m,
	})
	if err != nil {
		return fmt.Errorf("failed to create oauth services: %w", err)
	}

	logger.Info("oauth services initialized",
		"kind", kind.String(),
		"algorithm", cfg.Algorithm,
		"metadata_url", metadataService.GetMetadataURL(),
	)

	server, _, err := transport.NewTransportServices(&transport.Config{
		ServerConfig:    cfg,
		Authorizer:      authorizer,
		MetadataService: metadataService,
		Companies:       companies.NewService(repo),
		Gatherer:        registry,
		Metrics:         m,
		HealthChecks:    healthChecks,
		Realm:           cfg.ResourceName,
		Scope:           cfg.RequiredScope,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create transport services: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr)
		serverErrCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping server gracefully")
	case err := <-serverErrCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped successfully")
	return nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}

// newHTTPClient builds the client used for JWKS and userinfo calls.
func newHTTPClient(cfg *config.Config) (*http.Client, error) {
	rt := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			return nil, fmt.Errorf("invalid http proxy: %w", err)
		}
		rt.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Timeout: cfg.HTTPTimeout, Transport: rt}, nil
}

// newClaimsStore returns the claims cache backend selected by the config,
// the health checks it contributes and a function releasing it.
func newClaimsStore(ctx context.Context, cfg *config.Config) (oauth.ClaimsStore, []transport.HealthCheck, func()) {
	if cfg.CacheStore != config.StoreRedis {
		store := oauth.NewMemoryClaimsStore()
		store.StartCleanup(ctx, memoryCleanupInterval)
		return store, nil, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := oauth.NewRedisClaimsStore(client, cfg.CacheKeyPrefix)
	checks := []transport.HealthCheck{{Name: "redis", Check: store.Ping}}
	return store, checks, func() {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
}
