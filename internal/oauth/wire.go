package oauth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
	"github.com/jamesprial/oauth-resource-core/internal/metrics"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/internal/authz"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/internal/claimscache"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/internal/jwks"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/internal/metadata"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/internal/token"
	pkgoauth "github.com/jamesprial/oauth-resource-core/pkg/oauth"
)

// ClaimsStore is the key-value backend of the claims cache.
type ClaimsStore = claimscache.Store

// MemoryClaimsStore is a process-local ClaimsStore.
type MemoryClaimsStore = claimscache.MemoryStore

// RedisClaimsStore is a ClaimsStore shared through Redis.
type RedisClaimsStore = claimscache.RedisStore

// NewMemoryClaimsStore creates an empty process-local claims store.
func NewMemoryClaimsStore() *MemoryClaimsStore {
	return claimscache.NewMemoryStore()
}

// NewRedisClaimsStore creates a claims store on client. An empty prefix
// selects the default key prefix.
func NewRedisClaimsStore(client redis.UniversalClient, prefix string) *RedisClaimsStore {
	return claimscache.NewRedisStore(client, prefix)
}

// TokenFingerprint returns the claims cache key for an access token.
func TokenFingerprint(accessToken string) string {
	return claimscache.Fingerprint(accessToken)
}

// Config holds the configuration needed to construct the OAuth services.
type Config struct {
	// Issuer must equal the iss claim of every token.
	Issuer string

	// Audience, when set, must be one of the token's aud values.
	Audience string

	// RequiredScope, when set, must be one of the token's scopes.
	RequiredScope string

	// Algorithm is the only accepted signing algorithm. Defaults to RS256.
	Algorithm string

	// JWKSURL is where the signing keys are downloaded from.
	JWKSURL string

	// JWKSCacheTTL is how long downloaded keys stay cached.
	JWKSCacheTTL time.Duration

	// JWKSMinRefreshInterval limits downloads caused by unknown kids.
	JWKSMinRefreshInterval time.Duration

	// HTTPClient is used for JWKS and userinfo calls.
	HTTPClient *http.Client

	// Kind selects the authorizer.
	Kind AuthorizerKind

	// ClaimsCacheTTL caps how long claims are cached by the caching authorizer.
	ClaimsCacheTTL time.Duration

	// ClaimsFillTimeout bounds one provider call made to fill the claims
	// cache. Zero uses the cache default.
	ClaimsFillTimeout time.Duration

	// ClaimsStore backs the caching authorizer. Defaults to a MemoryClaimsStore.
	ClaimsStore ClaimsStore

	// Provider adds the user-profile and custom claims sections.
	Provider claims.CustomClaimsProvider

	// BaseURL is where this API is reachable, used for the metadata URL.
	BaseURL string

	// ResourceName is the human readable name in the metadata document.
	ResourceName string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Validate checks the values every deployment must provide.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	}
	if c.JWKSURL == "" {
		return fmt.Errorf("%w: jwks url is required", ErrInvalidConfig)
	}
	if c.Algorithm != "" && !pkgoauth.IsSupportedAlgorithm(c.Algorithm) {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, c.Algorithm)
	}
	if _, ok := authorizerFactories[c.Kind]; !ok && c.Kind != "" {
		return fmt.Errorf("%w: %q", ErrUnknownAuthorizerKind, c.Kind)
	}
	return nil
}

func (c *Config) algorithm() string {
	if c.Algorithm == "" {
		return pkgoauth.AlgorithmRS256
	}
	return c.Algorithm
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// NewKeyResolver creates a key resolver for the configured JWKS URL.
func NewKeyResolver(cfg *Config) KeyResolver {
	return jwks.NewClient(cfg.JWKSURL, cfg.algorithm(),
		jwks.WithHTTPClient(cfg.HTTPClient),
		jwks.WithCacheTTL(cfg.JWKSCacheTTL),
		jwks.WithMinRefreshInterval(cfg.JWKSMinRefreshInterval),
		jwks.WithLogger(cfg.logger().With("component", "jwks")),
		jwks.WithMetrics(cfg.Metrics),
	)
}

// NewTokenValidator creates a token validator that takes keys from keys.
func NewTokenValidator(cfg *Config, keys KeyResolver) TokenValidator {
	return token.NewValidator(keys, token.Config{
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Algorithm:     cfg.algorithm(),
		RequiredScope: cfg.RequiredScope,
	}, token.WithLogger(cfg.logger().With("component", "token")))
}

// authorizerFactories builds each kind of authorizer.
var authorizerFactories = map[AuthorizerKind]func(cfg *Config, validator TokenValidator) Authorizer{
	KindStandard: func(cfg *Config, validator TokenValidator) Authorizer {
		return authz.NewStandard(validator, cfg.Provider, authorizerOptions(cfg)...)
	},
	KindCaching: func(cfg *Config, validator TokenValidator) Authorizer {
		store := cfg.ClaimsStore
		if store == nil {
			store = claimscache.NewMemoryStore()
		}
		cache := claimscache.New(store, cfg.Provider, cfg.ClaimsCacheTTL,
			claimscache.WithLogger(cfg.logger().With("component", "claims_cache")),
			claimscache.WithMetrics(cfg.Metrics),
			claimscache.WithFillTimeout(cfg.ClaimsFillTimeout),
		)
		return authz.NewCaching(validator, cache, authorizerOptions(cfg)...)
	},
}

func authorizerOptions(cfg *Config) []authz.Option {
	return []authz.Option{
		authz.WithLogger(cfg.logger().With("component", "authorizer")),
		authz.WithMetrics(cfg.Metrics),
	}
}

// NewAuthorizer creates the authorizer selected by cfg.Kind.
func NewAuthorizer(cfg *Config, validator TokenValidator) (Authorizer, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = KindStandard
	}
	factory, ok := authorizerFactories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAuthorizerKind, kind)
	}
	return factory(cfg, validator), nil
}

// NewMetadataService creates the protected resource metadata service.
// The resource identifier is the audience, or the base URL when no
// audience is configured.
func NewMetadataService(cfg *Config) MetadataService {
	resource := cfg.Audience
	if resource == "" {
		resource = cfg.BaseURL
	}
	var scopes []string
	if cfg.RequiredScope != "" {
		scopes = []string{cfg.RequiredScope}
	}
	return metadata.NewService(resource, cfg.BaseURL, cfg.Issuer, scopes, cfg.ResourceName)
}

// NewServices validates cfg and creates all OAuth services.
// This is a convenience function for dependency injection.
func NewServices(cfg *Config) (Authorizer, MetadataService, KeyResolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	keys := NewKeyResolver(cfg)
	authorizer, err := NewAuthorizer(cfg, NewTokenValidator(cfg, keys))
	if err != nil {
		return nil, nil, nil, err
	}
	return authorizer, NewMetadataService(cfg), keys, nil
}
