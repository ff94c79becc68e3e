// Package config provides configuration management for the resource server.
// Values come from environment variables, optionally layered over a config
// file named by CONFIG_FILE, with defaults for every optional key.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration keys. The environment variable for a key is its upper-case
// form with dots replaced by underscores, e.g. oauth.jwks_url -> OAUTH_JWKS_URL.
const (
	keyServerAddr            = "server.addr"
	keyServerBaseURL         = "server.base_url"
	keyServerReadTimeout     = "server.read_timeout"
	keyServerWriteTimeout    = "server.write_timeout"
	keyServerIdleTimeout     = "server.idle_timeout"
	keyServerShutdownTimeout = "server.shutdown_timeout"

	keyOAuthIssuer             = "oauth.issuer"
	keyOAuthAudience           = "oauth.audience"
	keyOAuthRequiredScope      = "oauth.required_scope"
	keyOAuthAlgorithm          = "oauth.algorithm"
	keyOAuthJWKSURL            = "oauth.jwks_url"
	keyOAuthJWKSCacheTTL       = "oauth.jwks_cache_ttl"
	keyOAuthJWKSMinRefresh     = "oauth.jwks_min_refresh_interval"
	keyOAuthHTTPTimeout        = "oauth.http_timeout"
	keyOAuthHTTPProxy          = "oauth.http_proxy"
	keyOAuthProvider           = "oauth.provider"
	keyOAuthClaimsCacheMinutes = "oauth.claims_cache_ttl_minutes"
	keyOAuthUserInfoURL        = "oauth.userinfo_url"
	keyOAuthResourceName       = "oauth.resource_name"

	keyCacheStore         = "cache.store"
	keyCacheRedisAddr     = "cache.redis_addr"
	keyCacheRedisPassword = "cache.redis_password"
	keyCacheRedisDB       = "cache.redis_db"
	keyCacheKeyPrefix     = "cache.key_prefix"

	keyLogLevel  = "log.level"
	keyLogFormat = "log.format"
)

// Cache store names.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

var defaults = map[string]any{
	keyServerAddr:            ":8080",
	keyServerBaseURL:         "",
	keyServerReadTimeout:     "30s",
	keyServerWriteTimeout:    "30s",
	keyServerIdleTimeout:     "120s",
	keyServerShutdownTimeout: "30s",

	keyOAuthIssuer:             "",
	keyOAuthAudience:           "",
	keyOAuthRequiredScope:      "",
	keyOAuthAlgorithm:          "RS256",
	keyOAuthJWKSURL:            "",
	keyOAuthJWKSCacheTTL:       "1h",
	keyOAuthJWKSMinRefresh:     "0s",
	keyOAuthHTTPTimeout:        "10s",
	keyOAuthHTTPProxy:          "",
	keyOAuthProvider:           "standard",
	keyOAuthClaimsCacheMinutes: 30,
	keyOAuthUserInfoURL:        "",
	keyOAuthResourceName:       "",

	keyCacheStore:         StoreMemory,
	keyCacheRedisAddr:     "",
	keyCacheRedisPassword: "",
	keyCacheRedisDB:       0,
	keyCacheKeyPrefix:     "oauth:claims:",

	keyLogLevel:  "info",
	keyLogFormat: "json",
}

// Config holds the complete server configuration in a flat structure.
type Config struct {
	// Server settings
	// Addr is the address to bind the HTTP server (e.g., ":8080").
	Addr string

	// BaseURL is the canonical base URL for this server (e.g., "https://api.example.com").
	// It is used for the protected resource metadata URL.
	BaseURL string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// OAuth settings
	// Issuer must equal the iss claim of every access token.
	Issuer string

	// Audience, when set, must appear in the aud claim. Any string is accepted.
	Audience string

	// RequiredScope, when set, must appear in the scope claim.
	RequiredScope string

	// Algorithm is the only accepted token signing algorithm.
	Algorithm string

	// JWKSURL is where the signing keys are downloaded from.
	JWKSURL string

	JWKSCacheTTL           time.Duration
	JWKSMinRefreshInterval time.Duration

	// HTTPTimeout bounds outbound calls to the authorization server.
	HTTPTimeout time.Duration

	// HTTPProxy routes outbound calls through a proxy when set.
	HTTPProxy string

	// Provider selects the authorizer: standard, caching or cognito.
	Provider string

	// ClaimsCacheTTLMinutes caps how long enriched claims are cached.
	ClaimsCacheTTLMinutes int

	// UserInfoURL, when set, enables the userinfo claims lookup.
	UserInfoURL string

	// ResourceName is shown in the protected resource metadata.
	ResourceName string

	// Claims cache backend
	CacheStore     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CacheKeyPrefix string

	// Logging
	LogLevel  string
	LogFormat string
}

// ClaimsCacheTTL returns the claims cache ceiling as a duration.
func (c *Config) ClaimsCacheTTL() time.Duration {
	return time.Duration(c.ClaimsCacheTTLMinutes) * time.Minute
}

// Load reads configuration from the environment and the optional file named
// by CONFIG_FILE, applies defaults and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return nil, fmt.Errorf("bind CONFIG_FILE: %w", err)
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Addr:    v.GetString(keyServerAddr),
		BaseURL: v.GetString(keyServerBaseURL),

		Issuer:                v.GetString(keyOAuthIssuer),
		Audience:              v.GetString(keyOAuthAudience),
		RequiredScope:         v.GetString(keyOAuthRequiredScope),
		Algorithm:             v.GetString(keyOAuthAlgorithm),
		JWKSURL:               v.GetString(keyOAuthJWKSURL),
		HTTPProxy:             v.GetString(keyOAuthHTTPProxy),
		Provider:              v.GetString(keyOAuthProvider),
		ClaimsCacheTTLMinutes: v.GetInt(keyOAuthClaimsCacheMinutes),
		UserInfoURL:           v.GetString(keyOAuthUserInfoURL),
		ResourceName:          v.GetString(keyOAuthResourceName),

		CacheStore:     strings.ToLower(v.GetString(keyCacheStore)),
		RedisAddr:      v.GetString(keyCacheRedisAddr),
		RedisPassword:  v.GetString(keyCacheRedisPassword),
		RedisDB:        v.GetInt(keyCacheRedisDB),
		CacheKeyPrefix: v.GetString(keyCacheKeyPrefix),

		LogLevel:  strings.ToLower(v.GetString(keyLogLevel)),
		LogFormat: strings.ToLower(v.GetString(keyLogFormat)),
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{keyServerReadTimeout, &cfg.ReadTimeout},
		{keyServerWriteTimeout, &cfg.WriteTimeout},
		{keyServerIdleTimeout, &cfg.IdleTimeout},
		{keyServerShutdownTimeout, &cfg.ShutdownTimeout},
		{keyOAuthJWKSCacheTTL, &cfg.JWKSCacheTTL},
		{keyOAuthJWKSMinRefresh, &cfg.JWKSMinRefreshInterval},
		{keyOAuthHTTPTimeout, &cfg.HTTPTimeout},
	}
	for _, d := range durations {
		parsed, err := parseDuration(v, d.key)
		if err != nil {
			return nil, err
		}
		*d.target = parsed
	}

	return cfg, nil
}

// parseDuration parses the duration stored under key.
// Returns an error naming the environment variable if it cannot be parsed.
func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	value := v.GetString(key)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: cannot parse duration %q: %w", envName(key), value, err)
	}
	return duration, nil
}

// envName returns the environment variable for a configuration key.
func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// String returns a string representation of the configuration (for debugging).
// Sensitive values are redacted.
func (c *Config) String() string {
	password := ""
	if c.RedisPassword != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("Config{Addr: %s, BaseURL: %s, ReadTimeout: %v, WriteTimeout: %v, IdleTimeout: %v, "+
		"Issuer: %s, Audience: %s, RequiredScope: %s, Algorithm: %s, JWKSURL: %s, JWKSCacheTTL: %v, "+
		"Provider: %s, ClaimsCacheTTLMinutes: %d, UserInfoURL: %s, CacheStore: %s, RedisAddr: %s, RedisPassword: %s, LogLevel: %s}",
		c.Addr, c.BaseURL, c.ReadTimeout, c.WriteTimeout, c.IdleTimeout,
		c.Issuer, c.Audience, c.RequiredScope, c.Algorithm, c.JWKSURL, c.JWKSCacheTTL,
		c.Provider, c.ClaimsCacheTTLMinutes, c.UserInfoURL, c.CacheStore, c.RedisAddr, password, c.LogLevel)
}
