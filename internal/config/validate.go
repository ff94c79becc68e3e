package config

import (
	"fmt"
	"net/url"

	"github.com/jamesprial/oauth-resource-core/internal/oauth"
	pkgoauth "github.com/jamesprial/oauth-resource-core/pkg/oauth"
)

// Validate checks that the configuration is valid and complete.
// It returns an error if required fields are missing or values are invalid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateServer(cfg); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := validateOAuth(cfg); err != nil {
		return fmt.Errorf("invalid oauth config: %w", err)
	}

	if err := validateCache(cfg); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}

	if err := validateLog(cfg); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}

	return nil
}

// isLocalhost returns true if the host is localhost or a loopback address.
// It handles bare hostnames and host:port combinations.
func isLocalhost(host string) bool {
	if host == "localhost" || host == "127.0.0.1" {
		return true
	}

	if len(host) > len("localhost:") && host[:len("localhost:")] == "localhost:" {
		return true
	}
	if len(host) > len("127.0.0.1:") && host[:len("127.0.0.1:")] == "127.0.0.1:" {
		return true
	}

	return false
}

// validateURL checks that raw is an absolute http(s) URL, allowing plain
// http only for localhost.
func validateURL(name, raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}

	if !parsedURL.IsAbs() {
		return fmt.Errorf("%s must be an absolute URL", name)
	}

	if parsedURL.Scheme != "https" && parsedURL.Scheme != "http" {
		return fmt.Errorf("%s must use http or https scheme", name)
	}

	if parsedURL.Scheme == "http" && !isLocalhost(parsedURL.Host) {
		return fmt.Errorf("%s must use https scheme for non-localhost hosts", name)
	}

	return nil
}

// validateServer validates the server-related fields.
func validateServer(cfg *Config) error {
	if cfg.Addr == "" {
		return fmt.Errorf("SERVER_ADDR is required")
	}

	if cfg.BaseURL == "" {
		return fmt.Errorf("SERVER_BASE_URL is required")
	}
	if err := validateURL("SERVER_BASE_URL", cfg.BaseURL); err != nil {
		return err
	}

	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("SERVER_READ_TIMEOUT must be positive")
	}

	if cfg.WriteTimeout <= 0 {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT must be positive")
	}

	// 0 means no idle timeout
	if cfg.IdleTimeout < 0 {
		return fmt.Errorf("SERVER_IDLE_TIMEOUT must be non-negative")
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	return nil
}

// validateOAuth validates the OAuth-related fields.
func validateOAuth(cfg *Config) error {
	if cfg.Issuer == "" {
		return fmt.Errorf("OAUTH_ISSUER is required")
	}

	if cfg.JWKSURL == "" {
		return fmt.Errorf("OAUTH_JWKS_URL is required")
	}
	if err := validateURL("OAUTH_JWKS_URL", cfg.JWKSURL); err != nil {
		return err
	}

	if cfg.UserInfoURL != "" {
		if err := validateURL("OAUTH_USERINFO_URL", cfg.UserInfoURL); err != nil {
			return err
		}
	}

	if cfg.HTTPProxy != "" {
		if _, err := url.Parse(cfg.HTTPProxy); err != nil {
			return fmt.Errorf("invalid OAUTH_HTTP_PROXY: %w", err)
		}
	}

	if !pkgoauth.IsSupportedAlgorithm(cfg.Algorithm) {
		return fmt.Errorf("OAUTH_ALGORITHM %q is not supported (want one of %v)", cfg.Algorithm, pkgoauth.SupportedAlgorithms)
	}

	kind, err := oauth.ParseAuthorizerKind(cfg.Provider)
	if err != nil {
		return fmt.Errorf("OAUTH_PROVIDER: %w", err)
	}

	if cfg.JWKSCacheTTL <= 0 {
		return fmt.Errorf("OAUTH_JWKS_CACHE_TTL must be positive")
	}

	if cfg.JWKSMinRefreshInterval < 0 {
		return fmt.Errorf("OAUTH_JWKS_MIN_REFRESH_INTERVAL must be non-negative")
	}

	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("OAUTH_HTTP_TIMEOUT must be positive")
	}

	if cfg.ClaimsCacheTTLMinutes < 0 {
		return fmt.Errorf("OAUTH_CLAIMS_CACHE_TTL_MINUTES must be non-negative")
	}
	if kind == oauth.KindCaching && cfg.ClaimsCacheTTLMinutes == 0 {
		return fmt.Errorf("OAUTH_CLAIMS_CACHE_TTL_MINUTES must be positive when OAUTH_PROVIDER is %q", cfg.Provider)
	}

	return nil
}

// validateCache validates the claims cache backend fields.
func validateCache(cfg *Config) error {
	switch cfg.CacheStore {
	case StoreMemory:
		return nil
	case StoreRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("CACHE_REDIS_ADDR is required when CACHE_STORE is redis")
		}
		if cfg.RedisDB < 0 {
			return fmt.Errorf("CACHE_REDIS_DB must be non-negative")
		}
		return nil
	default:
		return fmt.Errorf("CACHE_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, cfg.CacheStore)
	}
}

// validateLog validates the logging fields.
func validateLog(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}
	return nil
}
