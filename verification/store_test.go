package verification

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestStore(t *testing.T, rdb *redis.Client, cfg Config) *Store {
	t.Helper()

	s := NewStore(context.Background(), NewRedisCache(rdb), cfg, slog.Default())
	t.Cleanup(s.Close)
	return s
}

func TestIssueWritesBothTiers(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := newTestStore(t, rdb, Config{})
	ctx := context.Background()

	code, err := s.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	stored, err := rdb.Get(ctx, "email:verify:alice@example.com").Result()
	if err != nil {
		t.Fatalf("primary read failed: %v", err)
	}
	if stored != code {
		t.Fatalf("primary holds %q, want %q", stored, code)
	}
	if s.FallbackLen() != 1 {
		t.Fatalf("fallback len = %d, want 1", s.FallbackLen())
	}
}

func TestRedeemIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := newTestStore(t, rdb, Config{})
	ctx := context.Background()

	code, err := s.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if !s.Redeem(ctx, "alice@example.com", code) {
		t.Fatal("first redemption should succeed")
	}
	if s.Redeem(ctx, "alice@example.com", code) {
		t.Fatal("second redemption must fail")
	}
}

func TestWrongCodeDoesNotConsume(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := newTestStore(t, rdb, Config{})
	ctx := context.Background()

	code, err := s.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if s.Redeem(ctx, "alice@example.com", "000000") {
		t.Fatal("wrong code must not redeem")
	}
	if !s.Redeem(ctx, "alice@example.com", code) {
		t.Fatal("correct code must still redeem after a bad attempt")
	}
}

func TestRedeemTrimsWhitespace(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := newTestStore(t, rdb, Config{})
	ctx := context.Background()

	code, err := s.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if !s.Redeem(ctx, "alice@example.com", "  "+code+"\n") {
		t.Fatal("whitespace-padded code should redeem")
	}
}

func TestExpiredCodeFailsRedemption(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := newTestStore(t, rdb, Config{TTL: 30 * time.Millisecond, SweepInterval: time.Hour})
	ctx := context.Background()

	code, err := s.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	mr.FastForward(time.Second) // expire the primary entry
	time.Sleep(60 * time.Millisecond)

	if s.Redeem(ctx, "alice@example.com", code) {
		t.Fatal("expired code must not redeem")
	}
}

func TestPrimaryOutageFallsBackAndDowngrades(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := newTestStore(t, rdb, Config{})
	ctx := context.Background()

	code, err := s.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !s.PrimaryReachable() {
		t.Fatal("primary should be reachable after startup probe")
	}

	mr.SetError("connection refused")

	if !s.Redeem(ctx, "alice@example.com", code) {
		t.Fatal("redemption must survive a primary outage via the fallback")
	}
	if s.PrimaryReachable() {
		t.Fatal("observed failure must downgrade the primary")
	}

	// Once downgraded the store stays fallback-first even after the
	// primary recovers; no re-probe before restart.
	mr.SetError("")
	code2, err := s.Issue(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if rdb.Exists(ctx, "email:verify:bob@example.com").Val() != 0 {
		t.Fatal("downgraded store must not write to the primary")
	}
	if !s.Redeem(ctx, "bob@example.com", code2) {
		t.Fatal("fallback redemption failed")
	}
}

func TestStartupProbeFailureUsesFallback(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.SetError("boom")

	s := newTestStore(t, rdb, Config{})
	ctx := context.Background()

	if s.PrimaryReachable() {
		t.Fatal("startup probe should have marked the primary down")
	}

	code, err := s.Issue(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !s.Redeem(ctx, "alice@example.com", code) {
		t.Fatal("fallback-only redemption failed")
	}
}

func TestSweepPurgesExpiredFallbackEntries(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := newTestStore(t, rdb, Config{TTL: 10 * time.Millisecond, SweepInterval: 20 * time.Millisecond})
	ctx := context.Background()

	for _, email := range []string{"a@x", "b@x", "c@x"} {
		if _, err := s.Issue(ctx, email); err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
	}
	if s.FallbackLen() != 3 {
		t.Fatalf("fallback len = %d, want 3", s.FallbackLen())
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.FallbackLen() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep did not purge entries, len = %d", s.FallbackLen())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRedeemRejectsEmptyInput(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := newTestStore(t, rdb, Config{})
	ctx := context.Background()

	if s.Redeem(ctx, "", "123456") {
		t.Fatal("empty email must not redeem")
	}
	if s.Redeem(ctx, "alice@example.com", "   ") {
		t.Fatal("blank code must not redeem")
	}
}
