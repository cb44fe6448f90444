// Package monitor collects security-relevant events from the IPC pipeline,
// evaluates threshold rules and behavioral attack patterns over the event
// stream, and raises deduplicated alerts.
//
// The event log is append-only and capped; oldest events are evicted first.
// Nothing is persisted across restarts.
package monitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oselabs/ipcguard/clock"
	"github.com/oselabs/ipcguard/instrumentation"
)

// Severity classifies how serious a security event is.
type Severity string

// Event severities, in ascending order.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event type constants. Pipeline steps log these; custom callers may log
// their own types as well.
const (
	// EventUnauthorizedSender is logged when sender validation fails.
	EventUnauthorizedSender = "unauthorized_sender"

	// EventRateLimitExceeded is logged when a rate limit denies a call.
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventInvalidInput is logged when input validation or sanitization rejects a call.
	EventInvalidInput = "invalid_input"

	// EventAuthFailure is logged when the injected authenticator rejects a call.
	EventAuthFailure = "auth_failure"

	// EventHandlerError is logged when the business handler itself fails.
	EventHandlerError = "handler_error"

	// EventSuspiciousActivity is logged for general suspicious behavior
	// reported by collaborators outside the fixed pipeline.
	EventSuspiciousActivity = "suspicious_activity"
)

// Detail keys the built-in attack patterns and queries understand.
const (
	DetailChannel  = "channel"
	DetailSenderID = "senderId"
	DetailReason   = "reason"
)

// DefaultMaxEvents caps the event log.
const DefaultMaxEvents = 10000

// eventRetention is how far back Cleanup keeps events and alerts.
const eventRetention = 24 * time.Hour

// Event is one security-relevant occurrence. Immutable once created.
type Event struct {
	ID        string
	Type      string
	Severity  Severity
	Details   map[string]any
	Timestamp time.Time
}

// Threshold is a registered rule: if at least Count events of a type occur
// within Window, raise an alert.
type Threshold struct {
	Count  int
	Window time.Duration
}

// Config configures a Monitor. The zero value is usable.
type Config struct {
	// Clock is the time source. Nil uses the system clock.
	Clock clock.Clock

	// Logger for structured logging. Nil uses slog.Default().
	Logger *slog.Logger

	// Sink receives alerts. Nil means alerts are only logged and stored.
	Sink AlertSink

	// MaxEvents caps the event log. Zero uses DefaultMaxEvents.
	MaxEvents int

	// Patterns tunes the built-in attack-pattern parameters.
	// Nil uses DefaultPatternConfig().
	Patterns *PatternConfig

	// ExtraPatterns are evaluated in addition to the built-in patterns.
	ExtraPatterns []Pattern

	// Instrumentation records event/alert metrics when set.
	Instrumentation *instrumentation.Instrumentation
}

// Monitor is the security event engine. Thresholds and patterns are fixed
// after construction; only event data mutates at runtime.
type Monitor struct {
	clk       clock.Clock
	logger    *slog.Logger
	sink      AlertSink
	maxEvents int
	patterns  []Pattern
	inst      *instrumentation.Instrumentation

	mu         sync.Mutex
	events     []Event
	alerts     []Alert
	thresholds map[string]Threshold
	lastAlert  map[alertKey]time.Time
	dedup      time.Duration
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	pc := cfg.Patterns
	if pc == nil {
		d := DefaultPatternConfig()
		pc = &d
	}

	patterns := builtinPatterns(*pc)
	patterns = append(patterns, cfg.ExtraPatterns...)

	return &Monitor{
		clk:        cfg.Clock,
		logger:     cfg.Logger,
		sink:       cfg.Sink,
		maxEvents:  cfg.MaxEvents,
		patterns:   patterns,
		inst:       cfg.Instrumentation,
		thresholds: make(map[string]Threshold),
		lastAlert:  make(map[alertKey]time.Time),
		dedup:      alertDedupWindow,
	}
}

// SetThreshold registers a threshold rule for eventType. Call at startup,
// before events flow; rules are not meant to mutate at runtime.
func (m *Monitor) SetThreshold(eventType string, count int, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[eventType] = Threshold{Count: count, Window: window}
}

// LogEvent records a security event, assigning its ID and timestamp, then
// evaluates the threshold for its type and all attack patterns.
func (m *Monitor) LogEvent(eventType string, severity Severity, details map[string]any) {
	now := m.clk.Now()
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  severity,
		Details:   details,
		Timestamp: now,
	}

	m.mu.Lock()
	if len(m.events) >= m.maxEvents {
		// FIFO eviction; insertion order is chronological order.
		n := copy(m.events, m.events[len(m.events)-m.maxEvents+1:])
		m.events = m.events[:n]
	}
	m.events = append(m.events, event)

	fired := m.checkThresholdLocked(eventType, now)
	fired = append(fired, m.checkPatternsLocked(now)...)
	m.mu.Unlock()

	m.logger.Debug("security event logged",
		"event_id", event.ID,
		"event_type", eventType,
		"severity", severity)

	if m.inst != nil {
		m.inst.Metrics().RecordSecurityEvent(context.Background(), eventType, string(severity))
	}

	// Sink delivery happens outside m.mu so a sink may query the monitor
	// and a slow sink cannot stall event logging.
	if m.sink != nil {
		for _, alert := range fired {
			m.notifySink(alert)
		}
	}
}

// checkThresholdLocked evaluates the threshold registered for eventType and
// returns any alert stored. Caller holds m.mu.
func (m *Monitor) checkThresholdLocked(eventType string, now time.Time) []Alert {
	th, ok := m.thresholds[eventType]
	if !ok {
		return nil
	}

	cutoff := now.Add(-th.Window)
	count := 0
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Timestamp.Before(cutoff) {
			break
		}
		if m.events[i].Type == eventType {
			count++
		}
	}

	if count < th.Count {
		return nil
	}
	alert := Alert{
		Type:      AlertThresholdExceeded,
		EventType: eventType,
		Severity:  SeverityHigh,
		Timestamp: now,
	}
	if !m.triggerAlertLocked(alert, map[string]any{"count": count, "window": th.Window.String()}) {
		return nil
	}
	return []Alert{alert}
}

// checkPatternsLocked evaluates every registered attack pattern against the
// full event log and returns the alerts stored. Caller holds m.mu.
func (m *Monitor) checkPatternsLocked(now time.Time) []Alert {
	var fired []Alert
	for _, p := range m.patterns {
		if !p.Detect(m.events, now) {
			continue
		}
		alert := Alert{
			Type:      AlertAttackPattern,
			Pattern:   p.Name,
			Severity:  p.Severity,
			Timestamp: now,
		}
		if m.triggerAlertLocked(alert, nil) {
			fired = append(fired, alert)
		}
	}
	return fired
}

// RecentEvents returns the n most recent events, oldest first.
func (m *Monitor) RecentEvents(n int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.events) {
		n = len(m.events)
	}
	out := make([]Event, 0, n)
	for _, e := range m.events[len(m.events)-n:] {
		out = append(out, cloneEvent(e))
	}
	return out
}

// EventsByType returns events of the given type. A positive window restricts
// results to events within that window of now; zero or negative means all.
func (m *Monitor) EventsByType(eventType string, window time.Duration) []Event {
	now := m.clk.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event
	for _, e := range m.events {
		if e.Type != eventType {
			continue
		}
		if window > 0 && e.Timestamp.Before(now.Add(-window)) {
			continue
		}
		out = append(out, cloneEvent(e))
	}
	return out
}

// HighSeverityEvents returns all high- and critical-severity events.
func (m *Monitor) HighSeverityEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event
	for _, e := range m.events {
		if e.Severity == SeverityHigh || e.Severity == SeverityCritical {
			out = append(out, cloneEvent(e))
		}
	}
	return out
}

// DetectFloodingAttack reports whether senderID produced more than threshold
// events within the last second. A threshold of zero or less uses 100.
func (m *Monitor) DetectFloodingAttack(senderID string, threshold int) bool {
	if threshold <= 0 {
		threshold = 100
	}
	cutoff := m.clk.Now().Add(-time.Second)

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Timestamp.Before(cutoff) {
			break
		}
		if id, ok := m.events[i].Details[DetailSenderID].(string); ok && id == senderID {
			count++
			if count > threshold {
				return true
			}
		}
	}
	return false
}

// Metrics summarizes the monitor's state.
type Metrics struct {
	TotalEvents      int
	EventsLast5Min   int
	EventsLastHour   int
	TotalAlerts      int
	EventsBySeverity map[Severity]int
}

// GetMetrics returns rolling metrics over the event log.
func (m *Monitor) GetMetrics() Metrics {
	now := m.clk.Now()
	fiveMinAgo := now.Add(-5 * time.Minute)
	hourAgo := now.Add(-time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()

	out := Metrics{
		TotalEvents:      len(m.events),
		TotalAlerts:      len(m.alerts),
		EventsBySeverity: make(map[Severity]int),
	}
	for _, e := range m.events {
		out.EventsBySeverity[e.Severity]++
		if e.Timestamp.After(fiveMinAgo) {
			out.EventsLast5Min++
		}
		if e.Timestamp.After(hourAgo) {
			out.EventsLastHour++
		}
	}
	return out
}

// Cleanup retains only the last 24 hours of events and alerts. The host must
// invoke this on a schedule; it is not called implicitly.
func (m *Monitor) Cleanup() {
	cutoff := m.clk.Now().Add(-eventRetention)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = retainEventsAfter(m.events, cutoff)
	m.alerts = retainAlertsAfter(m.alerts, cutoff)
	for key, t := range m.lastAlert {
		if t.Before(cutoff) {
			delete(m.lastAlert, key)
		}
	}
}

// cloneEvent copies an event with its own Details map, so query results
// cannot mutate the stored log.
func cloneEvent(e Event) Event {
	if e.Details == nil {
		return e
	}
	details := make(map[string]any, len(e.Details))
	for k, v := range e.Details {
		details[k] = v
	}
	e.Details = details
	return e
}

func retainEventsAfter(events []Event, cutoff time.Time) []Event {
	n := 0
	for _, e := range events {
		if e.Timestamp.After(cutoff) {
			events[n] = e
			n++
		}
	}
	return events[:n]
}

func retainAlertsAfter(alerts []Alert, cutoff time.Time) []Alert {
	n := 0
	for _, a := range alerts {
		if a.Timestamp.After(cutoff) {
			alerts[n] = a
			n++
		}
	}
	return alerts[:n]
}

// hasPrivilegedPrefix reports whether channel starts with any of the given
// privileged prefixes.
func hasPrivilegedPrefix(channel string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(channel, p) {
			return true
		}
	}
	return false
}
