// Package ratelimit provides per-key admission control for the IPC engine:
// sliding-window limits per channel and sender, token buckets for
// burst-shaped budgets, a time-bounded sender blacklist, and an optional
// per-sender baseline guard.
//
// All decisions are boolean; no operation here returns an error to the
// pipeline. Time is read from an injected clock so window and refill
// arithmetic is deterministic under test.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oselabs/ipcguard/clock"
	"github.com/oselabs/ipcguard/instrumentation"
	"github.com/oselabs/ipcguard/storage"
	"github.com/oselabs/ipcguard/storage/memory"
)

const (
	// DefaultBlacklistDuration is how long a sender stays blacklisted when
	// no explicit duration is given.
	DefaultBlacklistDuration = time.Hour

	// DefaultJanitorInterval is how often expired blacklist entries are swept.
	DefaultJanitorInterval = time.Minute

	// requestRetention is how far back Cleanup keeps request timestamps.
	requestRetention = time.Hour
)

// KeyFunc derives the request-log key for a channel/sender pair.
type KeyFunc func(channel, senderID string) string

// defaultKeyFunc scopes limits per channel and sender.
func defaultKeyFunc(channel, senderID string) string {
	return channel + ":" + senderID
}

// rule is a registered per-channel rate limit.
type rule struct {
	maxRequests int
	window      time.Duration
	keyFn       KeyFunc
}

// CustomLimitOptions configures SetCustomLimit.
type CustomLimitOptions struct {
	MaxRequests int
	Window      time.Duration

	// KeyFunc derives the request-log key. Nil falls back to the default
	// channel:sender key.
	KeyFunc KeyFunc
}

// Config configures a RateLimiter. The zero value is usable: system clock,
// in-memory blacklist store, default logger and intervals.
type Config struct {
	// Clock is the time source. Nil uses the system clock.
	Clock clock.Clock

	// Store holds the sender blacklist. Nil uses an in-memory store.
	Store storage.BlacklistStore

	// Logger for structured logging. Nil uses slog.Default().
	Logger *slog.Logger

	// BlacklistDuration is the default blacklist duration.
	// Zero uses DefaultBlacklistDuration.
	BlacklistDuration time.Duration

	// JanitorInterval is how often expired blacklist entries are swept in
	// the background. Zero uses DefaultJanitorInterval; negative disables
	// the janitor (expiry is still enforced lazily on every check).
	JanitorInterval time.Duration

	// Instrumentation records blacklist metrics when set.
	Instrumentation *instrumentation.Instrumentation
}

// RateLimiter enforces sliding-window and token-bucket limits and tracks
// blacklisted senders. Rules are registered at startup and immutable
// afterwards; only request data mutates at runtime.
type RateLimiter struct {
	clk               clock.Clock
	store             storage.BlacklistStore
	logger            *slog.Logger
	blacklistDuration time.Duration
	inst              *instrumentation.Instrumentation

	mu       sync.Mutex
	rules    map[string]*rule
	requests map[string][]time.Time
	buckets  map[string]*tokenBucket

	totalChecks      int64
	totalDenied      int64
	totalBlacklisted int64

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// New creates a rate limiter and, unless disabled, starts the blacklist
// janitor goroutine. Call Stop on teardown to cancel it.
func New(cfg Config) *RateLimiter {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Store == nil {
		cfg.Store = memory.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BlacklistDuration == 0 {
		cfg.BlacklistDuration = DefaultBlacklistDuration
	}

	rl := &RateLimiter{
		clk:               cfg.Clock,
		store:             cfg.Store,
		logger:            cfg.Logger,
		blacklistDuration: cfg.BlacklistDuration,
		inst:              cfg.Instrumentation,
		rules:             make(map[string]*rule),
		requests:          make(map[string][]time.Time),
		buckets:           make(map[string]*tokenBucket),
		stopJanitor:       make(chan struct{}),
	}

	interval := cfg.JanitorInterval
	if interval == 0 {
		interval = DefaultJanitorInterval
	}
	if interval > 0 {
		go rl.janitorLoop(interval)
	}

	return rl
}

// SetLimit registers a sliding-window rule for channel, keyed per sender.
func (rl *RateLimiter) SetLimit(channel string, maxRequests int, window time.Duration) {
	rl.SetCustomLimit(channel, CustomLimitOptions{
		MaxRequests: maxRequests,
		Window:      window,
	})
}

// SetCustomLimit registers a sliding-window rule with a caller-supplied key
// function, allowing limits scoped wider or narrower than channel:sender.
func (rl *RateLimiter) SetCustomLimit(channel string, opts CustomLimitOptions) {
	keyFn := opts.KeyFunc
	if keyFn == nil {
		keyFn = defaultKeyFunc
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rules[channel] = &rule{
		maxRequests: opts.MaxRequests,
		window:      opts.Window,
		keyFn:       keyFn,
	}
}

// CheckLimit reports whether a call on channel from senderID is admitted.
//
// Blacklisted senders are denied for every channel. Channels with no
// registered rule are always admitted. Otherwise the request log for the
// derived key is pruned to the rule's window and the call is admitted only
// while the remaining count is below the rule's maximum; admission appends
// the current timestamp. The window slides continuously: old entries age out
// individually, not in discrete buckets.
func (rl *RateLimiter) CheckLimit(channel, senderID string) bool {
	now := rl.clk.Now()

	if rl.IsBlacklisted(senderID) {
		rl.mu.Lock()
		rl.totalChecks++
		rl.totalDenied++
		rl.mu.Unlock()
		return false
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.totalChecks++

	r, ok := rl.rules[channel]
	if !ok {
		return true
	}

	key := r.keyFn(channel, senderID)
	windowStart := now.Add(-r.window)

	// Prune-then-append must stay atomic; both steps run under rl.mu.
	ts := rl.requests[key]
	n := 0
	for _, t := range ts {
		if t.After(windowStart) {
			ts[n] = t
			n++
		}
	}
	ts = ts[:n]

	if n >= r.maxRequests {
		rl.requests[key] = ts
		rl.totalDenied++
		rl.logger.Warn("rate limit exceeded",
			"channel", channel,
			"sender_id", senderID,
			"requests_in_window", n,
			"max_requests", r.maxRequests,
			"window", r.window)
		return false
	}

	rl.requests[key] = append(ts, now)
	return true
}

// Cleanup retains only the last hour of request timestamps and sweeps
// expired blacklist entries. The host must invoke this on a schedule; it is
// not called implicitly.
func (rl *RateLimiter) Cleanup() {
	now := rl.clk.Now()
	cutoff := now.Add(-requestRetention)

	rl.mu.Lock()
	removed := 0
	for key, ts := range rl.requests {
		n := 0
		for _, t := range ts {
			if t.After(cutoff) {
				ts[n] = t
				n++
			}
		}
		if n == 0 {
			delete(rl.requests, key)
			removed++
			continue
		}
		rl.requests[key] = ts[:n]
	}
	remaining := len(rl.requests)
	rl.mu.Unlock()

	rl.sweepBlacklist(now)

	if removed > 0 {
		rl.logger.Debug("rate limiter cleanup completed",
			"removed_keys", removed,
			"remaining_keys", remaining)
	}
}

// Stats holds rate limiter statistics for monitoring.
type Stats struct {
	ActiveKeys         int   // request-log keys currently tracked
	BlacklistedSenders int   // blacklist entries still active
	TotalRequests      int64 // admission checks performed
	TotalDenied        int64 // checks denied (limit or blacklist)
}

// GetStats returns current statistics.
func (rl *RateLimiter) GetStats() Stats {
	now := rl.clk.Now()
	blacklisted := rl.blacklistCount(now)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	return Stats{
		ActiveKeys:         len(rl.requests),
		BlacklistedSenders: blacklisted,
		TotalRequests:      rl.totalChecks,
		TotalDenied:        rl.totalDenied,
	}
}

// Stop cancels the blacklist janitor goroutine. Safe to call multiple times.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopJanitor)
	})
}
