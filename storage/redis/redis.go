// Package redis provides a Redis-backed blacklist store so that multiple
// engine instances converge on the same set of blocked senders.
//
// Entries live in a single sorted set scored by their expiry time in Unix
// milliseconds. Expiry is evaluated against the caller-supplied time, never
// against the Redis server clock, so the engine's injected clock stays
// authoritative.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the sorted-set key used when none is configured.
const DefaultKey = "ipcguard:blacklist"

// Client is the subset of the go-redis API the store needs.
// *redis.Client and *redis.ClusterClient both satisfy it.
type Client interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZScore(ctx context.Context, key, member string) *redis.FloatCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd
	ZCount(ctx context.Context, key, min, max string) *redis.IntCmd
}

// Store is a Redis-backed implementation of storage.BlacklistStore.
type Store struct {
	client Client
	key    string
}

// New creates a store on the given client using DefaultKey.
func New(client Client) *Store {
	return NewWithKey(client, DefaultKey)
}

// NewWithKey creates a store using a custom sorted-set key.
func NewWithKey(client Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

// Add blocks senderID until expiresAt.
func (s *Store) Add(ctx context.Context, senderID string, expiresAt time.Time) error {
	err := s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(expiresAt.UnixMilli()),
		Member: senderID,
	}).Err()
	if err != nil {
		return fmt.Errorf("blacklist add: %w", err)
	}
	return nil
}

// Contains reports whether senderID is blocked at the given time.
func (s *Store) Contains(ctx context.Context, senderID string, now time.Time) (bool, error) {
	score, err := s.client.ZScore(ctx, s.key, senderID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return score > float64(now.UnixMilli()), nil
}

// Remove unblocks senderID.
func (s *Store) Remove(ctx context.Context, senderID string) error {
	if err := s.client.ZRem(ctx, s.key, senderID).Err(); err != nil {
		return fmt.Errorf("blacklist remove: %w", err)
	}
	return nil
}

// Sweep deletes entries that expired at or before now.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed, err := s.client.ZRemRangeByScore(ctx, s.key,
		"-inf", strconv.FormatInt(now.UnixMilli(), 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("blacklist sweep: %w", err)
	}
	return int(removed), nil
}

// Count returns the number of entries still active at the given time.
func (s *Store) Count(ctx context.Context, now time.Time) (int, error) {
	n, err := s.client.ZCount(ctx, s.key,
		"("+strconv.FormatInt(now.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("blacklist count: %w", err)
	}
	return int(n), nil
}
