package claimscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore()
	s.now = clock.Now

	if err := s.Set(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "b", []byte("2"), 2*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, found, err := s.Get(ctx, "a")
	if err != nil || !found || string(got) != "1" {
		t.Fatalf("Get(a) = %q, %v, %v", got, found, err)
	}
	got[0] = 'x'
	if again, _, _ := s.Get(ctx, "a"); string(again) != "1" {
		t.Error("Get() should return a copy")
	}

	clock.Advance(time.Minute)
	if _, found, _ := s.Get(ctx, "a"); found {
		t.Error("Get(a) at expiry should miss")
	}
	if _, found, _ := s.Get(ctx, "b"); !found {
		t.Error("Get(b) before expiry should hit")
	}

	if n := s.Size(); n != 2 {
		t.Errorf("Size() = %d, want 2 before cleanup", n)
	}
	s.Cleanup()
	if n := s.Size(); n != 1 {
		t.Errorf("Size() = %d, want 1 after cleanup", n)
	}

	if err := s.Set(ctx, "b", []byte("2"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if n := s.Size(); n != 0 {
		t.Errorf("Size() = %d, want 0 after zero-ttl Set", n)
	}
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "")

	if _, found, err := s.Get(ctx, "k"); err != nil || found {
		t.Fatalf("Get() on empty store = %v, %v", found, err)
	}

	if err := s.Set(ctx, "k", []byte(`{"v":1}`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists(DefaultKeyPrefix + "k") {
		t.Fatal("key was not written under the default prefix")
	}
	if ttl := mr.TTL(DefaultKeyPrefix + "k"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	got, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(got) != `{"v":1}` {
		t.Fatalf("Get() = %q, %v, %v", got, found, err)
	}

	mr.FastForward(time.Minute)
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Error("Get() after redis expiry should miss")
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestRedisStore_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "test:")
	mr.SetError("ERR simulated failure")

	if _, _, err := s.Get(ctx, "k"); err == nil {
		t.Error("Get() error = nil, want redis failure")
	}
	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err == nil {
		t.Error("Set() error = nil, want redis failure")
	}
}
