package ratelimit

import "time"

// BucketConfig describes a token bucket budget.
type BucketConfig struct {
	// Capacity is the maximum number of tokens the bucket holds.
	Capacity float64

	// RefillRate is how many tokens are added per second.
	RefillRate float64
}

// tokenBucket holds the mutable state of one bucket.
// Invariant: 0 <= tokens <= capacity.
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// ConsumeToken attempts to take tokens from the bucket identified by key,
// creating a full bucket on first use. The bucket is refilled lazily by
// elapsed-seconds * RefillRate (capped at Capacity) before the check. When
// not enough tokens are available the call is denied and no tokens are
// deducted.
func (rl *RateLimiter) ConsumeToken(key string, cfg BucketConfig, tokens float64) bool {
	if tokens <= 0 {
		tokens = 1
	}
	now := rl.clk.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: cfg.Capacity, lastRefill: now}
		rl.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * cfg.RefillRate
		if b.tokens > cfg.Capacity {
			b.tokens = cfg.Capacity
		}
		b.lastRefill = now
	}

	if b.tokens < tokens {
		rl.logger.Debug("token bucket exhausted",
			"key", key,
			"available", b.tokens,
			"requested", tokens)
		return false
	}

	b.tokens -= tokens
	return true
}
