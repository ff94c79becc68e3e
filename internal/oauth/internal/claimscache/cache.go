package claimscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
	"github.com/jamesprial/oauth-resource-core/internal/metrics"
)

// defaultFillTimeout bounds one detached fill when no timeout is configured.
const defaultFillTimeout = 30 * time.Second

// entry is the stored form of one cached claims value.
type entry struct {
	ExpiresAt time.Time          `json:"expires_at"`
	Claims    *claims.APIClaims `json:"claims"`
}

// Cache returns the claims for an access token, building them with the
// custom claims provider on a miss. Entries never outlive the token's exp.
type Cache struct {
	store       Store
	provider    claims.CustomClaimsProvider
	ttl         time.Duration
	fillTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used for entry expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFillTimeout bounds how long one fill may run once detached from the
// callers that started it.
func WithFillTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		if timeout > 0 {
			c.fillTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a claims cache over store. ttl is the ceiling on how long an
// entry is kept; a nil provider adds no custom claims.
func New(store Store, provider claims.CustomClaimsProvider, ttl time.Duration, opts ...Option) *Cache {
	if provider == nil {
		provider = claims.NoCustomClaims{}
	}
	c := &Cache{
		store:       store,
		provider:    provider,
		ttl:         ttl,
		fillTimeout: defaultFillTimeout,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fingerprint returns the cache key for an access token.
func Fingerprint(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}

// GetOrCreate returns cached claims for accessToken or builds and stores them.
// Concurrent misses for the same token share one provider call. The fill is
// not cancelled when ctx is; a cancelled caller returns ctx.Err(). The fill
// is bounded by the fill timeout instead, and a panic in the provider is
// returned to every waiting caller as a server error.
func (c *Cache) GetOrCreate(ctx context.Context, accessToken string, token *claims.AccessToken) (*claims.APIClaims, error) {
	key := Fingerprint(accessToken)

	if cached, ok := c.lookup(ctx, key); ok {
		c.metrics.ClaimsCacheHit()
		return cached, nil
	}
	c.metrics.ClaimsCacheMiss()

	ch := c.group.DoChan(key, func() (val any, err error) {
		defer func() {
			if r := recover(); r != nil {
				val = nil
				err = ierrors.NewAPIError(ierrors.CodeServerError, ierrors.AreaException,
					"Unexpected failure while resolving claims", fmt.Errorf("panic: %v", r)).
					WithOp("GetOrCreate")
			}
		}()

		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fillTimeout)
		defer cancel()
		return c.fill(fillCtx, key, accessToken, token)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*claims.APIClaims), nil
	}
}

func (c *Cache) fill(ctx context.Context, key, accessToken string, token *claims.AccessToken) (*claims.APIClaims, error) {
	// Another flight may have stored the entry between our lookup and this one.
	if cached, ok := c.lookup(ctx, key); ok {
		return cached, nil
	}

	built, err := claims.Resolve(ctx, c.provider, accessToken, token)
	c.metrics.CustomClaimsCalled(err)
	if err != nil {
		return nil, err
	}

	c.save(ctx, key, built, token)
	return built, nil
}

// lookup reads and decodes an entry. Store and decode failures are misses.
func (c *Cache) lookup(ctx context.Context, key string) (*claims.APIClaims, bool) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "claims cache read failed", "key", shortKey(key), "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Claims == nil {
		c.logger.WarnContext(ctx, "claims cache entry unreadable", "key", shortKey(key), "error", err)
		return nil, false
	}
	if !c.now().Before(e.ExpiresAt) {
		return nil, false
	}
	return e.Claims, true
}

func (c *Cache) save(ctx context.Context, key string, value *claims.APIClaims, token *claims.AccessToken) {
	now := c.now()
	expiresAt := now.Add(c.ttl)
	if tokenExpiry := time.Unix(token.ExpiresAt, 0); tokenExpiry.Before(expiresAt) {
		expiresAt = tokenExpiry
	}

	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(entry{ExpiresAt: expiresAt, Claims: value})
	if err != nil {
		c.logger.WarnContext(ctx, "claims cache entry not encodable", "key", shortKey(key), "error", err)
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.WarnContext(ctx, "claims cache write failed", "key", shortKey(key), "error", err)
		return
	}
	c.logger.DebugContext(ctx, "claims cached", "key", shortKey(key), "ttl", ttl)
}

// shortKey is the fingerprint prefix used in logs.
func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
