package ratelimit

import (
	"context"
	"time"
)

// BlacklistSender blocks senderID for the given duration. A duration of zero
// or less uses the limiter's configured default. The entry self-expires:
// every check compares the stored expiry against the injected clock, and the
// janitor sweeps expired entries in the background until Stop cancels it.
func (rl *RateLimiter) BlacklistSender(senderID string, duration time.Duration) {
	if duration <= 0 {
		duration = rl.blacklistDuration
	}
	now := rl.clk.Now()
	expiresAt := now.Add(duration)

	if err := rl.store.Add(context.Background(), senderID, expiresAt); err != nil {
		rl.logger.Error("failed to blacklist sender",
			"sender_id", senderID,
			"error", err)
		return
	}

	rl.mu.Lock()
	rl.totalBlacklisted++
	rl.mu.Unlock()

	if rl.inst != nil {
		rl.inst.Metrics().RecordBlacklistAdd(context.Background())
	}

	rl.logger.Warn("sender blacklisted",
		"sender_id", senderID,
		"duration", duration,
		"expires_at", expiresAt)
}

// IsBlacklisted reports whether senderID is currently blacklisted.
// A store failure is logged and treated as not blacklisted so that a
// transient shared-store outage cannot deny every caller.
func (rl *RateLimiter) IsBlacklisted(senderID string) bool {
	blocked, err := rl.store.Contains(context.Background(), senderID, rl.clk.Now())
	if err != nil {
		rl.logger.Error("blacklist lookup failed",
			"sender_id", senderID,
			"error", err)
		return false
	}
	return blocked
}

// RemoveFromBlacklist unblocks senderID before its entry expires.
func (rl *RateLimiter) RemoveFromBlacklist(senderID string) {
	if err := rl.store.Remove(context.Background(), senderID); err != nil {
		rl.logger.Error("blacklist removal failed",
			"sender_id", senderID,
			"error", err)
	}
}

// janitorLoop periodically sweeps expired blacklist entries.
func (rl *RateLimiter) janitorLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweepBlacklist(rl.clk.Now())
		case <-rl.stopJanitor:
			return
		}
	}
}

func (rl *RateLimiter) sweepBlacklist(now time.Time) {
	removed, err := rl.store.Sweep(context.Background(), now)
	if err != nil {
		rl.logger.Error("blacklist sweep failed", "error", err)
		return
	}
	if removed > 0 {
		rl.logger.Debug("blacklist sweep completed", "removed", removed)
	}
}

func (rl *RateLimiter) blacklistCount(now time.Time) int {
	n, err := rl.store.Count(context.Background(), now)
	if err != nil {
		rl.logger.Error("blacklist count failed", "error", err)
		return 0
	}
	return n
}
