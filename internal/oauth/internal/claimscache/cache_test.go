package claimscache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/jamesprial/oauth-resource-core/internal/claims"
	ierrors "github.com/jamesprial/oauth-resource-core/internal/errors"
	"github.com/jamesprial/oauth-resource-core/internal/metrics"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingProvider counts calls and returns a fixed custom section.
type countingProvider struct {
	calls atomic.Int64
	gate  chan struct{}
	err   error
}

func (p *countingProvider) AddCustomClaims(ctx context.Context, _ string, tc claims.TokenClaims) (*claims.UserInfoClaims, json.RawMessage, error) {
	p.calls.Add(1)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, nil, p.err
	}
	return &claims.UserInfoClaims{Email: tc.UserID + "@example.com"}, json.RawMessage(`{"user_company_ids":[1,2]}`), nil
}

// failingStore fails every operation.
type failingStore struct{ writes atomic.Int64 }

func (s *failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store unavailable")
}

func (s *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	s.writes.Add(1)
	return errors.New("store unavailable")
}

func testToken(clock *fakeClock, lifetime time.Duration) *claims.AccessToken {
	return &claims.AccessToken{
		Issuer:    "https://issuer.example",
		ExpiresAt: clock.Now().Add(lifetime).Unix(),
		Subject:   "user-1",
		ClientID:  "client-1",
		Scope:     "sample-api profile",
	}
}

func newMemoryCache(clock *fakeClock, provider claims.CustomClaimsProvider, ttl time.Duration, opts ...Option) (*Cache, *MemoryStore) {
	store := NewMemoryStore()
	store.now = clock.Now
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(store, provider, ttl, opts...), store
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a, b := Fingerprint("token-a"), Fingerprint("token-b")
	if a == b {
		t.Error("different tokens share a fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("len(Fingerprint()) = %d, want 64", len(a))
	}
	if a != Fingerprint("token-a") {
		t.Error("Fingerprint() is not deterministic")
	}
}

func TestCache_GetOrCreate_HitAfterMiss(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	provider := &countingProvider{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cache, _ := newMemoryCache(clock, provider, 30*time.Minute, WithMetrics(m))
	token := testToken(clock, time.Hour)

	first, err := cache.GetOrCreate(context.Background(), "raw", token)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := cache.GetOrCreate(context.Background(), "raw", token)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if n := provider.calls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
	assertSameJSON(t, first, second)

	if got := testutil.ToFloat64(m.ClaimsCacheLookups.WithLabelValues(metrics.ResultHit)); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ClaimsCacheLookups.WithLabelValues(metrics.ResultMiss)); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CustomClaimsCallsTotal.WithLabelValues(metrics.ResultSuccess)); got != 1 {
		t.Errorf("provider calls metric = %v, want 1", got)
	}
}

func TestCache_EntryLifetime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		ttl           time.Duration
		tokenLifetime time.Duration
		hitAt         time.Duration
		missAt        time.Duration
	}{
		{name: "ttl shorter than token", ttl: 10 * time.Minute, tokenLifetime: time.Hour, hitAt: 9 * time.Minute, missAt: 10 * time.Minute},
		{name: "token shorter than ttl", ttl: time.Hour, tokenLifetime: 5 * time.Minute, hitAt: 4 * time.Minute, missAt: 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := newFakeClock()
			provider := &countingProvider{}
			cache, _ := newMemoryCache(clock, provider, tt.ttl)
			token := testToken(clock, tt.tokenLifetime)
			ctx := context.Background()

			if _, err := cache.GetOrCreate(ctx, "raw", token); err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}

			clock.Advance(tt.hitAt)
			if _, err := cache.GetOrCreate(ctx, "raw", token); err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			if n := provider.calls.Load(); n != 1 {
				t.Fatalf("provider calls = %d, want 1 before expiry", n)
			}

			clock.Advance(tt.missAt - tt.hitAt)
			if _, err := cache.GetOrCreate(ctx, "raw", token); err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			if n := provider.calls.Load(); n != 2 {
				t.Errorf("provider calls = %d, want 2 at expiry", n)
			}
		})
	}
}

func TestCache_StaleEnvelopeIsMiss(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	provider := &countingProvider{}
	store := NewMemoryStore()
	cache := New(store, provider, time.Hour, WithClock(clock.Now))
	token := testToken(clock, time.Hour)

	stale, _ := claims.New(claims.TokenClaims{Scopes: []string{"old"}}, nil, nil)
	raw, _ := json.Marshal(entry{ExpiresAt: clock.Now(), Claims: stale})
	if err := store.Set(context.Background(), Fingerprint("raw"), raw, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := cache.GetOrCreate(context.Background(), "raw", token)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if got.HasScope("old") {
		t.Error("an entry past its expires_at was served")
	}
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

func TestCache_NotStoredWhenTTLNotPositive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ttl      time.Duration
		lifetime time.Duration
	}{
		{name: "zero ttl", ttl: 0, lifetime: time.Hour},
		{name: "token already expired", ttl: time.Hour, lifetime: -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := newFakeClock()
			provider := &countingProvider{}
			cache, store := newMemoryCache(clock, provider, tt.ttl)

			got, err := cache.GetOrCreate(context.Background(), "raw", testToken(clock, tt.lifetime))
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			if got == nil {
				t.Fatal("GetOrCreate() returned nil claims")
			}
			if n := store.Size(); n != 0 {
				t.Errorf("store size = %d, want 0", n)
			}
		})
	}
}

func TestCache_ProviderErrorIsNotCached(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	boom := errors.New("entitlements down")
	provider := &countingProvider{err: boom}
	cache, store := newMemoryCache(clock, provider, time.Hour)
	token := testToken(clock, time.Hour)

	for i := 0; i < 2; i++ {
		got, err := cache.GetOrCreate(context.Background(), "raw", token)
		if !errors.Is(err, boom) {
			t.Fatalf("GetOrCreate() error = %v, want %v", err, boom)
		}
		if got != nil {
			t.Fatalf("GetOrCreate() returned claims with an error")
		}
	}
	if n := provider.calls.Load(); n != 2 {
		t.Errorf("provider calls = %d, want 2", n)
	}
	if n := store.Size(); n != 0 {
		t.Errorf("store size = %d, want 0", n)
	}
}

func TestCache_StoreFailuresDegrade(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	provider := &countingProvider{}
	store := &failingStore{}
	cache := New(store, provider, time.Hour, WithClock(clock.Now))
	token := testToken(clock, time.Hour)

	for i := 0; i < 2; i++ {
		got, err := cache.GetOrCreate(context.Background(), "raw", token)
		if err != nil {
			t.Fatalf("GetOrCreate() error = %v", err)
		}
		if !got.HasScope("sample-api") {
			t.Errorf("Scopes = %v", got.Token.Scopes)
		}
	}
	if n := provider.calls.Load(); n != 2 {
		t.Errorf("provider calls = %d, want one per miss", n)
	}
	if n := store.writes.Load(); n != 2 {
		t.Errorf("store writes = %d, want 2", n)
	}
}

func TestCache_UnreadableEntryIsMiss(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	provider := &countingProvider{}
	cache, store := newMemoryCache(clock, provider, time.Hour)

	if err := store.Set(context.Background(), Fingerprint("raw"), []byte("garbage"), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, err := cache.GetOrCreate(context.Background(), "raw", testToken(clock, time.Hour)); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

func TestCache_ConcurrentMissesShareOneProviderCall(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	provider := &countingProvider{gate: make(chan struct{})}
	cache, _ := newMemoryCache(clock, provider, time.Hour)
	token := testToken(clock, time.Hour)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]*claims.APIClaims, callers)
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrCreate(context.Background(), "raw", token)
		}(i)
	}

	waitFor(t, func() bool { return provider.calls.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	close(provider.gate)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		assertSameJSON(t, results[0], results[i])
	}
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

func TestCache_CancelledCallerLeavesFillRunning(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	provider := &countingProvider{gate: make(chan struct{})}
	cache, store := newMemoryCache(clock, provider, time.Hour)
	token := testToken(clock, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.GetOrCreate(ctx, "raw", token)
		done <- err
	}()

	waitFor(t, func() bool { return provider.calls.Load() == 1 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("GetOrCreate() error = %v, want context.Canceled", err)
	}

	close(provider.gate)
	waitFor(t, func() bool { return store.Size() == 1 })

	if _, err := cache.GetOrCreate(context.Background(), "raw", token); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want the orphaned fill to be reused", n)
	}
}

func TestCache_FillTimeoutReleasesFlight(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	provider := &countingProvider{gate: make(chan struct{})}
	cache, store := newMemoryCache(clock, provider, time.Hour, WithFillTimeout(30*time.Millisecond))
	token := testToken(clock, time.Hour)

	for i := 1; i <= 2; i++ {
		_, err := cache.GetOrCreate(context.Background(), "raw", token)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("GetOrCreate() #%d error = %v, want context.DeadlineExceeded", i, err)
		}
		if n := provider.calls.Load(); n != int64(i) {
			t.Errorf("provider calls after attempt %d = %d, want %d", i, n, i)
		}
	}
	if store.Size() != 0 {
		t.Errorf("store size = %d, want 0", store.Size())
	}
}

func TestCache_ProviderPanicIsReturnedAsError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	provider := claims.ProviderFunc(func(context.Context, string, claims.TokenClaims) (*claims.UserInfoClaims, json.RawMessage, error) {
		calls.Add(1)
		panic("lookup table missing")
	})
	clock := newFakeClock()
	cache, store := newMemoryCache(clock, provider, time.Hour)
	token := testToken(clock, time.Hour)

	for i := 0; i < 2; i++ {
		got, err := cache.GetOrCreate(context.Background(), "raw", token)
		if got != nil {
			t.Errorf("GetOrCreate() returned claims with an error: %+v", got)
		}
		var apiErr *ierrors.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("GetOrCreate() error = %v (%T), want *APIError", err, err)
		}
		if apiErr.Area != ierrors.AreaException {
			t.Errorf("Area = %q, want %q", apiErr.Area, ierrors.AreaException)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("provider calls = %d, want 2", n)
	}
	if store.Size() != 0 {
		t.Errorf("store size = %d, want 0", store.Size())
	}
}

func TestCache_CustomSectionBytesMatchOnHitAndMiss(t *testing.T) {
	t.Parallel()

	provider := claims.ProviderFunc(func(context.Context, string, claims.TokenClaims) (*claims.UserInfoClaims, json.RawMessage, error) {
		return nil, json.RawMessage("{ \"user_company_ids\": [1, 2],\n  \"tier\": \"gold\" }"), nil
	})
	clock := newFakeClock()
	cache, _ := newMemoryCache(clock, provider, time.Hour)
	token := testToken(clock, time.Hour)

	miss, err := cache.GetOrCreate(context.Background(), "raw", token)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	hit, err := cache.GetOrCreate(context.Background(), "raw", token)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	const want = `{"user_company_ids":[1,2],"tier":"gold"}`
	if string(miss.Custom) != want {
		t.Errorf("Custom on miss = %s, want %s", miss.Custom, want)
	}
	if string(hit.Custom) != string(miss.Custom) {
		t.Errorf("Custom on hit = %s, on miss = %s", hit.Custom, miss.Custom)
	}
}

func TestCache_RedisStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	provider := &countingProvider{}
	cache := New(NewRedisStore(client, "test:"), provider, 30*time.Minute)
	token := &claims.AccessToken{
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
		Subject:   "user-1",
		Scope:     "sample-api",
	}

	first, err := cache.GetOrCreate(context.Background(), "raw", token)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	key := "test:" + Fingerprint("raw")
	if !mr.Exists(key) {
		t.Fatal("entry not written to redis")
	}
	if ttl := mr.TTL(key); ttl <= 29*time.Minute || ttl > 30*time.Minute {
		t.Errorf("redis TTL = %v, want about 30m", ttl)
	}
	stored, _ := mr.Get(key)
	if !json.Valid([]byte(stored)) {
		t.Errorf("stored entry is not JSON: %q", stored)
	}

	second, err := cache.GetOrCreate(context.Background(), "raw", token)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	assertSameJSON(t, first, second)
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

func assertSameJSON(t *testing.T, a, b *claims.APIClaims) {
	t.Helper()
	ja, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	jb, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(ja) != string(jb) {
		t.Errorf("claims differ:\n%s\n%s", ja, jb)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
