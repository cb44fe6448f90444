package memory

import (
	"context"
	"testing"
	"time"
)

func TestContainsRespectsExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()

	if err := s.Add(ctx, "sender", now.Add(time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Contains(ctx, "sender", now)
	if err != nil || !got {
		t.Fatalf("Contains before expiry = %v, %v; want true", got, err)
	}

	got, err = s.Contains(ctx, "sender", now.Add(2*time.Minute))
	if err != nil || got {
		t.Fatalf("Contains after expiry = %v, %v; want false", got, err)
	}

	// The expired entry was dropped lazily; an earlier time no longer finds it.
	got, err = s.Contains(ctx, "sender", now)
	if err != nil || got {
		t.Fatalf("Contains after lazy removal = %v, %v; want false", got, err)
	}
}

func TestContainsUnknownSender(t *testing.T) {
	got, err := New().Contains(context.Background(), "ghost", time.Now())
	if err != nil || got {
		t.Fatalf("Contains = %v, %v; want false, nil", got, err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()

	s.Add(ctx, "sender", now.Add(time.Hour))
	if err := s.Remove(ctx, "sender"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	got, _ := s.Contains(ctx, "sender", now)
	if got {
		t.Fatal("expected sender to be removed")
	}
}

func TestSweepAndCount(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()

	s.Add(ctx, "expired-1", now.Add(-time.Minute))
	s.Add(ctx, "expired-2", now)
	s.Add(ctx, "active", now.Add(time.Hour))

	n, err := s.Count(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v; want 1", n, err)
	}

	removed, err := s.Sweep(ctx, now)
	if err != nil || removed != 2 {
		t.Fatalf("Sweep = %d, %v; want 2", removed, err)
	}

	removed, err = s.Sweep(ctx, now)
	if err != nil || removed != 0 {
		t.Fatalf("second Sweep = %d, %v; want 0", removed, err)
	}
}
