package verification

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luminet/userauth/internal"
)

const (
	// DefaultTTL is how long an issued code stays redeemable.
	DefaultTTL = 5 * time.Minute
	// DefaultSweepInterval is how often expired fallback entries are purged.
	DefaultSweepInterval = 5 * time.Minute

	codeDigits = 6
	probeKey   = keyPrefix + "probe"
)

// Config tunes a Store. Zero values select the defaults above.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// Store composes the primary cache with the in-process fallback and the
// reachability policy. Create with NewStore and release with Close.
type Store struct {
	primary  CodeCache
	fallback *fallbackCache
	log      *slog.Logger

	ttl           time.Duration
	sweepInterval time.Duration

	// primaryUp starts from the startup probe and only ever flips to
	// false on an observed failure; there is no re-probe before restart.
	primaryUp atomic.Bool

	stop      chan struct{}
	stopOnce  sync.Once
	sweeperWG sync.WaitGroup
}

// NewStore probes the primary once, starts the fallback sweeper, and
// returns the composed store.
func NewStore(ctx context.Context, primary CodeCache, cfg Config, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		primary:       primary,
		fallback:      newFallbackCache(),
		log:           log,
		ttl:           cfg.TTL,
		sweepInterval: cfg.SweepInterval,
		stop:          make(chan struct{}),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = DefaultSweepInterval
	}

	s.primaryUp.Store(s.probePrimary(ctx))

	s.sweeperWG.Add(1)
	go s.runSweeper()

	return s
}

// Issue generates a 6-digit code for email, writes it to the primary
// with the configured TTL, and unconditionally mirrors it into the
// fallback with the same expiry. The code is returned so the caller can
// deliver it; it is never logged here.
func (s *Store) Issue(ctx context.Context, email string) (string, error) {
	code, err := internal.NewCode(codeDigits)
	if err != nil {
		return "", err
	}

	key := keyPrefix + email
	if s.primaryUp.Load() {
		if err := s.primary.SetWithTTL(ctx, key, code, s.ttl); err != nil {
			s.markPrimaryDown("set", err)
		}
	}

	// The fallback write happens regardless of the primary outcome, so
	// the code stays redeemable across a primary outage between issue
	// and verify.
	s.fallback.set(key, code, time.Now().Add(s.ttl))

	return code, nil
}

// Redeem checks the supplied code against the stored one. Only a
// successful match consumes the entry (from both tiers); a wrong code
// leaves it in place for retry within the expiry window.
func (s *Store) Redeem(ctx context.Context, email, code string) bool {
	code = strings.TrimSpace(code)
	if email == "" || !internal.IsNumeric(code) {
		return false
	}

	key := keyPrefix + email

	if s.primaryUp.Load() {
		stored, found, err := s.primary.Get(ctx, key)
		switch {
		case err != nil:
			s.markPrimaryDown("get", err)
		case found:
			if stored != code {
				s.log.Warn("verification code mismatch", "tier", "primary")
				return false
			}
			s.deleteBoth(ctx, key)
			s.log.Info("verification code redeemed", "tier", "primary")
			return true
		}
		// Absent in primary: fall through to the fallback silently.
	}

	entry, ok := s.fallback.get(key)
	if !ok {
		s.log.Warn("verification code not found")
		return false
	}

	// Fallback entries carry their expiry explicitly; the tier itself
	// never expires them.
	if time.Now().After(entry.expiresAt) {
		s.fallback.delete(key)
		s.log.Warn("verification code expired", "tier", "fallback")
		return false
	}

	if entry.code != code {
		s.log.Warn("verification code mismatch", "tier", "fallback")
		return false
	}

	s.deleteBoth(ctx, key)
	s.log.Info("verification code redeemed", "tier", "fallback")
	return true
}

// Close stops the background sweeper. The store must not be used after
// Close returns.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.sweeperWG.Wait()
}

// FallbackLen reports the current fallback entry count (sweep tests and
// memory monitoring).
func (s *Store) FallbackLen() int { return s.fallback.len() }

// PrimaryReachable reports the current reachability belief.
func (s *Store) PrimaryReachable() bool { return s.primaryUp.Load() }

func (s *Store) deleteBoth(ctx context.Context, key string) {
	s.fallback.delete(key)
	if s.primaryUp.Load() {
		if err := s.primary.Delete(ctx, key); err != nil {
			s.markPrimaryDown("delete", err)
		}
	}
}

// probePrimary performs the single startup reachability check.
func (s *Store) probePrimary(ctx context.Context) bool {
	if s.primary == nil {
		return false
	}
	if err := s.primary.SetWithTTL(ctx, probeKey, "ok", time.Second); err != nil {
		s.log.Warn("verification primary unreachable at startup, using fallback", "err", err)
		return false
	}
	_ = s.primary.Delete(ctx, probeKey)
	return true
}

// markPrimaryDown downgrades to fallback-first after an observed
// failure. There are no inline retries; the primary is not consulted
// again until the process restarts.
func (s *Store) markPrimaryDown(op string, err error) {
	if s.primaryUp.CompareAndSwap(true, false) {
		s.log.Error("verification primary failed, downgrading to fallback", "op", op, "err", err)
	}
}

func (s *Store) runSweeper() {
	defer s.sweeperWG.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if purged := s.fallback.sweep(time.Now()); purged > 0 {
				s.log.Debug("swept expired verification codes", "purged", purged)
			}
		case <-s.stop:
			return
		}
	}
}
