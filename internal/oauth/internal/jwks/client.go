package jwks

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"

	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
	"github.com/jamesprial/oauth-resource-core/internal/metrics"
	"github.com/jamesprial/oauth-resource-core/internal/oauth/oautherr"
	pkgoauth "github.com/jamesprial/oauth-resource-core/pkg/oauth"
)

const (
	defaultCacheTTL     = time.Hour
	defaultFetchTimeout = 10 * time.Second

	// maxJWKSBody bounds how much of a JWKS response is read.
	maxJWKSBody = 1 << 20

	refreshFlight = "jwks"
)

// SigningKey is a public key taken from the authorization server's JWKS.
type SigningKey struct {
	KeyID     string
	Algorithm string

	// PublicKey is an *rsa.PublicKey or an *ecdsa.PublicKey.
	PublicKey any
}

// Client resolves token signing keys from a single JWKS endpoint.
// Keys are cached by kid. A lookup miss triggers one download that is shared
// by every concurrent caller missing at the same time.
type Client struct {
	jwksURL            string
	algorithm          string
	httpClient         *http.Client
	cache              *Cache
	cacheTTL           time.Duration
	fetchTimeout       time.Duration
	minRefreshInterval time.Duration
	logger             *slog.Logger
	metrics            *metrics.Metrics

	group singleflight.Group

	// mu guards the refresh bookkeeping. lastRefresh is when the last
	// download finished; refreshing is set while one is running.
	mu          sync.Mutex
	lastRefresh time.Time
	refreshing  bool
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for JWKS downloads.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithCacheTTL sets how long downloaded keys stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithFetchTimeout bounds a single JWKS download.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.fetchTimeout = timeout
		}
	}
}

// WithMinRefreshInterval stops lookups for unknown kids from downloading the
// key set more often than once per interval. Zero disables the limit.
func WithMinRefreshInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.minRefreshInterval = interval
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a key resolver for jwksURL. Only keys usable with
// algorithm are kept.
func NewClient(jwksURL, algorithm string, opts ...Option) *Client {
	c := &Client{
		jwksURL:      jwksURL,
		algorithm:    algorithm,
		httpClient:   &http.Client{Timeout: defaultFetchTimeout},
		cacheTTL:     defaultCacheTTL,
		fetchTimeout: defaultFetchTimeout,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = NewCache(c.cacheTTL)
	return c
}

// Algorithm returns the signing algorithm this client serves keys for.
func (c *Client) Algorithm() string {
	return c.algorithm
}

// Resolve returns the signing key for kid, downloading the key set when the
// kid is not cached.
func (c *Client) Resolve(ctx context.Context, kid string) (*SigningKey, error) {
	const op = "Resolve"

	if kid == "" {
		return nil, oautherr.NewMissingKidError(op)
	}

	if key := c.cache.Get(kid); key != nil {
		return key, nil
	}

	if c.throttled() {
		// A download may have finished since the first lookup.
		if key := c.cache.Get(kid); key != nil {
			return key, nil
		}
		c.logger.DebugContext(ctx, "jwks refresh throttled", "kid", kid)
		return nil, oautherr.NewKeyNotFoundError(op, kid)
	}

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}

	if key := c.cache.Get(kid); key != nil {
		return key, nil
	}
	return nil, oautherr.NewKeyNotFoundError(op, kid)
}

// Refresh downloads the key set and caches its usable keys. Concurrent calls
// share one download. The download is not cancelled when ctx is; a cancelled
// caller returns ctx.Err() while the download completes for the others.
func (c *Client) Refresh(ctx context.Context) error {
	ch := c.group.DoChan(refreshFlight, func() (_ any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = ierrors.NewAPIError(ierrors.CodeServerError, ierrors.AreaException,
					"Unexpected failure while downloading signing keys", fmt.Errorf("panic: %v", r)).
					WithOp("Refresh")
			}
		}()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return nil, c.refresh(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	c.refreshing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.lastRefresh = c.now()
		c.mu.Unlock()
	}()

	set, err := c.fetch(ctx)
	c.metrics.JWKSFetched(err)
	if err != nil {
		c.logger.WarnContext(ctx, "jwks download failed", "url", c.jwksURL, "error", err)
		return err
	}

	keys := c.signingKeys(set)
	c.cache.SetAll(keys)
	c.cache.Cleanup()

	c.logger.DebugContext(ctx, "jwks downloaded",
		"url", c.jwksURL,
		"keys", set.Len(),
		"usable_keys", len(keys),
	)
	return nil
}

func (c *Client) throttled() bool {
	if c.minRefreshInterval <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Callers arriving during a download join it rather than being refused.
	if c.refreshing {
		return false
	}
	return !c.lastRefresh.IsZero() && c.now().Sub(c.lastRefresh) < c.minRefreshInterval
}

// fetch downloads and parses the key set.
func (c *Client) fetch(ctx context.Context) (jwk.Set, error) {
	const op = "fetchJWKS"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, oautherr.NewMetadataLookupError(op, c.jwksURL, 0, err)
	}
	req.Header.Set("Accept", pkgoauth.ContentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, oautherr.NewMetadataLookupError(op, c.jwksURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return nil, oautherr.NewMetadataLookupError(op, c.jwksURL, resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, oautherr.NewMetadataLookupError(op, c.jwksURL, resp.StatusCode,
			fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)).
			WithDetails(string(bytes.TrimSpace(body)))
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, oautherr.NewMetadataLookupError(op, c.jwksURL, 0, fmt.Errorf("parse jwks: %w", err))
	}
	return set, nil
}

// signingKeys returns the public keys in set that can verify tokens signed
// with the configured algorithm. Keys without a kid, keys declaring another
// algorithm and keys of the wrong family are skipped.
func (c *Client) signingKeys(set jwk.Set) []*SigningKey {
	keys := make([]*SigningKey, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}

		kid, ok := key.KeyID()
		if !ok || kid == "" {
			continue
		}

		if alg, ok := key.Algorithm(); ok && alg.String() != "" && alg.String() != c.algorithm {
			c.logger.Debug("skipping jwk with other algorithm", "kid", kid, "algorithm", alg.String())
			continue
		}

		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			c.logger.Debug("skipping unreadable jwk", "kid", kid, "error", err)
			continue
		}

		if !matchesFamily(c.algorithm, raw) {
			continue
		}

		keys = append(keys, &SigningKey{
			KeyID:     kid,
			Algorithm: c.algorithm,
			PublicKey: raw,
		})
	}
	return keys
}

// matchesFamily reports whether pub is a public key of the family algorithm
// belongs to. Private and symmetric keys never match.
func matchesFamily(algorithm string, pub any) bool {
	switch {
	case strings.HasPrefix(algorithm, "RS"):
		_, ok := pub.(*rsa.PublicKey)
		return ok
	case strings.HasPrefix(algorithm, "ES"):
		_, ok := pub.(*ecdsa.PublicKey)
		return ok
	default:
		return false
	}
}
