package ratelimit

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaselineMaxSenders bounds how many senders the baseline guard
// tracks before evicting the least recently seen.
const DefaultBaselineMaxSenders = 10000

// BaselineConfig configures the per-sender baseline guard.
type BaselineConfig struct {
	// RequestsPerSecond is the sustained per-sender rate. Zero disables
	// the guard.
	RequestsPerSecond int

	// Burst is the per-sender burst allowance.
	Burst int

	// MaxSenders bounds tracked senders; the least recently seen sender is
	// evicted at capacity. Zero uses DefaultBaselineMaxSenders.
	MaxSenders int
}

// baselineEntry tracks one sender's limiter and its recency.
type baselineEntry struct {
	senderID string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BaselineGuard applies a flat token-bucket limit per sender across all
// channels, in front of the per-channel rules. It catches floods that spread
// across many channels and therefore never trip any single channel's rule.
//
// Unlike the per-channel windows it has no registered rules: every sender
// gets the same budget. Idle senders are dropped by Cleanup, which the host
// drives on its own schedule.
type BaselineGuard struct {
	mu         sync.Mutex
	senders    map[string]*list.Element // sender ID -> element
	recency    *list.List               // front = most recently seen
	rps        rate.Limit
	burst      int
	maxSenders int
	logger     *slog.Logger

	totalEvicted int64
}

// NewBaselineGuard creates a guard from cfg. Returns nil when the guard is
// disabled (RequestsPerSecond == 0), which callers treat as "always admit".
func NewBaselineGuard(cfg BaselineConfig, logger *slog.Logger) *BaselineGuard {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxSenders := cfg.MaxSenders
	if maxSenders <= 0 {
		maxSenders = DefaultBaselineMaxSenders
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerSecond
	}

	return &BaselineGuard{
		senders:    make(map[string]*list.Element),
		recency:    list.New(),
		rps:        rate.Limit(cfg.RequestsPerSecond),
		burst:      burst,
		maxSenders: maxSenders,
		logger:     logger,
	}
}

// Allow reports whether senderID is within its baseline budget.
func (g *BaselineGuard) Allow(senderID string) bool {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if elem, ok := g.senders[senderID]; ok {
		g.recency.MoveToFront(elem)
		entry := elem.Value.(*baselineEntry)
		entry.lastSeen = now
		return entry.limiter.Allow()
	}

	if len(g.senders) >= g.maxSenders {
		g.evictOldest()
	}

	entry := &baselineEntry{
		senderID: senderID,
		limiter:  rate.NewLimiter(g.rps, g.burst),
		lastSeen: now,
	}
	g.senders[senderID] = g.recency.PushFront(entry)
	return entry.limiter.Allow()
}

// evictOldest drops the least recently seen sender. Caller holds g.mu.
func (g *BaselineGuard) evictOldest() {
	elem := g.recency.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*baselineEntry)
	delete(g.senders, entry.senderID)
	g.recency.Remove(elem)
	g.totalEvicted++

	g.logger.Debug("baseline guard evicted sender",
		"sender_id", entry.senderID,
		"total_evicted", g.totalEvicted)
}

// Cleanup drops senders idle longer than maxIdle.
func (g *BaselineGuard) Cleanup(maxIdle time.Duration) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	var next *list.Element
	removed := 0
	for elem := g.recency.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*baselineEntry)
		if now.Sub(entry.lastSeen) > maxIdle {
			delete(g.senders, entry.senderID)
			g.recency.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		g.logger.Debug("baseline guard cleanup completed",
			"removed", removed,
			"remaining", len(g.senders))
	}
}

// TrackedSenders returns how many senders are currently tracked.
func (g *BaselineGuard) TrackedSenders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.senders)
}
