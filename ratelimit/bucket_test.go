package ratelimit

import (
	"testing"
	"time"

	"github.com/oselabs/ipcguard/clock"
)

func TestConsumeTokenBucket(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clk)
	cfg := BucketConfig{Capacity: 10, RefillRate: 5}

	// A new bucket starts full.
	for i := 0; i < 10; i++ {
		if !rl.ConsumeToken("worker:job", cfg, 1) {
			t.Fatalf("consume %d: expected success", i+1)
		}
	}
	if rl.ConsumeToken("worker:job", cfg, 1) {
		t.Fatal("consume 11: expected failure, bucket is empty")
	}

	// 200ms at 5 tokens/sec refills exactly one token.
	clk.Advance(200 * time.Millisecond)
	if !rl.ConsumeToken("worker:job", cfg, 1) {
		t.Fatal("expected success after refill")
	}
	if rl.ConsumeToken("worker:job", cfg, 1) {
		t.Fatal("expected failure, refilled token already spent")
	}
}

func TestConsumeTokenDenialDeductsNothing(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clk)
	cfg := BucketConfig{Capacity: 5, RefillRate: 1}

	if !rl.ConsumeToken("k", cfg, 4) {
		t.Fatal("expected success, bucket starts full")
	}
	// 1 token left; a request for 3 is denied without deduction.
	if rl.ConsumeToken("k", cfg, 3) {
		t.Fatal("expected failure, only one token left")
	}
	if !rl.ConsumeToken("k", cfg, 1) {
		t.Fatal("the remaining token must still be available")
	}
}

func TestConsumeTokenRefillCapsAtCapacity(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clk)
	cfg := BucketConfig{Capacity: 3, RefillRate: 10}

	for i := 0; i < 3; i++ {
		if !rl.ConsumeToken("k", cfg, 1) {
			t.Fatalf("consume %d: expected success", i+1)
		}
	}

	// A long idle period refills to capacity, not beyond.
	clk.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		if !rl.ConsumeToken("k", cfg, 1) {
			t.Fatalf("post-idle consume %d: expected success", i+1)
		}
	}
	if rl.ConsumeToken("k", cfg, 1) {
		t.Fatal("expected failure, refill must cap at capacity")
	}
}

func TestConsumeTokenZeroDefaultsToOne(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clk)
	cfg := BucketConfig{Capacity: 1, RefillRate: 1}

	if !rl.ConsumeToken("k", cfg, 0) {
		t.Fatal("expected success")
	}
	if rl.ConsumeToken("k", cfg, 0) {
		t.Fatal("zero tokens must count as one, bucket should be empty")
	}
}

func TestConsumeTokenIndependentKeys(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clk)
	cfg := BucketConfig{Capacity: 1, RefillRate: 1}

	if !rl.ConsumeToken("a", cfg, 1) {
		t.Fatal("a denied")
	}
	if !rl.ConsumeToken("b", cfg, 1) {
		t.Fatal("b must have its own bucket")
	}
	if rl.ConsumeToken("a", cfg, 1) {
		t.Fatal("a should be empty")
	}
}
