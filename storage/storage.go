// Package storage defines the persistence interface for the sender blacklist.
//
// The rate limiter itself is purely in-memory; only the blacklist is
// pluggable so that multiple engine instances can converge on the same set
// of blocked senders. The memory subpackage is the default single-process
// store, the redis subpackage shares the blacklist across instances.
package storage

import (
	"context"
	"time"
)

// BlacklistStore tracks blocked senders with an expiry time per entry.
//
// Expiry is always evaluated against the caller-supplied "now" so that the
// engine's injected clock stays authoritative; implementations must not read
// the wall clock for correctness decisions.
type BlacklistStore interface {
	// Add blocks senderID until expiresAt, replacing any existing entry.
	Add(ctx context.Context, senderID string, expiresAt time.Time) error

	// Contains reports whether senderID is blocked at the given time.
	Contains(ctx context.Context, senderID string, now time.Time) (bool, error)

	// Remove unblocks senderID. Removing an absent entry is not an error.
	Remove(ctx context.Context, senderID string) error

	// Sweep deletes entries that expired at or before now and returns the
	// number removed.
	Sweep(ctx context.Context, now time.Time) (int, error)

	// Count returns the number of entries still active at the given time.
	Count(ctx context.Context, now time.Time) (int, error)
}
