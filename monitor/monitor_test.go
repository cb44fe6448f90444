package monitor

import (
	"testing"
	"time"

	"github.com/oselabs/ipcguard/clock"
	"github.com/oselabs/ipcguard/internal/testutil"
)

// quietPatterns keeps the built-in heuristics from firing in tests that are
// not about pattern detection.
func quietPatterns() *PatternConfig {
	return &PatternConfig{
		SwitchLookback:         20,
		SwitchDistinctChannels: 1 << 30,
		SwitchWindow:           time.Nanosecond,
		EscalationLookback:     50,
		EscalationThreshold:    1 << 30,
		DDoSLookback:           100,
		DDoSThreshold:          1 << 30,
		DDoSWindow:             time.Nanosecond,
		AutomationLookback:     10,
		AutomationMaxVariance:  -1,
		MinEvents:              1 << 30,
	}
}

func newQuietMonitor(clk clock.Clock, cfg Config) *Monitor {
	cfg.Clock = clk
	cfg.Logger = testutil.DiscardLogger()
	if cfg.Patterns == nil {
		cfg.Patterns = quietPatterns()
	}
	return New(cfg)
}

func TestLogEventAssignsIDAndTimestamp(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newQuietMonitor(clock.NewFake(now), Config{})

	m.LogEvent("probe", SeverityLow, map[string]any{DetailChannel: "x"})

	events := m.RecentEvents(1)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.ID == "" {
		t.Error("event ID not assigned")
	}
	if !e.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", e.Timestamp, now)
	}
	if e.Type != "probe" || e.Severity != SeverityLow {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestEventLogEvictsOldestFirst(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{MaxEvents: 3})

	for _, typ := range []string{"a", "b", "c", "d"} {
		m.LogEvent(typ, SeverityLow, nil)
		clk.Advance(time.Second)
	}

	events := m.RecentEvents(0)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Type != "b" || events[2].Type != "d" {
		t.Fatalf("expected oldest event evicted, got %q..%q", events[0].Type, events[2].Type)
	}
}

func TestThresholdRaisesAlert(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{})
	m.SetThreshold("auth_failure", 3, time.Minute)

	for i := 0; i < 2; i++ {
		m.LogEvent("auth_failure", SeverityMedium, nil)
		clk.Advance(time.Second)
	}
	if len(m.GetAlerts()) != 0 {
		t.Fatal("alert raised below the threshold")
	}

	m.LogEvent("auth_failure", SeverityMedium, nil)
	alerts := m.GetAlerts()
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Type != AlertThresholdExceeded || a.EventType != "auth_failure" || a.Severity != SeverityHigh {
		t.Fatalf("unexpected alert: %+v", a)
	}
}

func TestThresholdIgnoresEventsOutsideWindow(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{})
	m.SetThreshold("auth_failure", 3, time.Minute)

	m.LogEvent("auth_failure", SeverityMedium, nil)
	m.LogEvent("auth_failure", SeverityMedium, nil)
	clk.Advance(2 * time.Minute)
	m.LogEvent("auth_failure", SeverityMedium, nil)

	if len(m.GetAlerts()) != 0 {
		t.Fatal("stale events must not count toward the threshold")
	}
}

func TestAlertDeduplication(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{})
	m.SetThreshold("auth_failure", 2, time.Minute)

	for i := 0; i < 5; i++ {
		m.LogEvent("auth_failure", SeverityMedium, nil)
		clk.Advance(time.Second)
	}
	if got := len(m.GetAlerts()); got != 1 {
		t.Fatalf("got %d alerts within the dedup window, want 1", got)
	}

	// Past the dedup window the same condition alerts again.
	clk.Advance(6 * time.Minute)
	m.LogEvent("auth_failure", SeverityMedium, nil)
	clk.Advance(time.Second)
	m.LogEvent("auth_failure", SeverityMedium, nil)
	if got := len(m.GetAlerts()); got != 2 {
		t.Fatalf("got %d alerts after the dedup window, want 2", got)
	}
}

func TestRecentEventsReturnsTail(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{})

	for _, typ := range []string{"a", "b", "c"} {
		m.LogEvent(typ, SeverityLow, nil)
		clk.Advance(time.Second)
	}

	events := m.RecentEvents(2)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != "b" || events[1].Type != "c" {
		t.Fatalf("expected the two most recent events oldest first, got %q,%q",
			events[0].Type, events[1].Type)
	}
}

func TestEventsByTypeWithWindow(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{})

	m.LogEvent("auth_failure", SeverityMedium, nil)
	clk.Advance(time.Hour)
	m.LogEvent("auth_failure", SeverityMedium, nil)
	m.LogEvent("probe", SeverityLow, nil)

	if got := len(m.EventsByType("auth_failure", 0)); got != 2 {
		t.Errorf("all time: got %d, want 2", got)
	}
	if got := len(m.EventsByType("auth_failure", time.Minute)); got != 1 {
		t.Errorf("last minute: got %d, want 1", got)
	}
	if got := len(m.EventsByType("missing", 0)); got != 0 {
		t.Errorf("unknown type: got %d, want 0", got)
	}
}

func TestHighSeverityEvents(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{})

	m.LogEvent("a", SeverityLow, nil)
	m.LogEvent("b", SeverityHigh, nil)
	m.LogEvent("c", SeverityCritical, nil)
	m.LogEvent("d", SeverityMedium, nil)

	events := m.HighSeverityEvents()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != "b" || events[1].Type != "c" {
		t.Fatalf("unexpected events: %q,%q", events[0].Type, events[1].Type)
	}
}

func TestDetectFloodingAttack(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{})

	for i := 0; i < 6; i++ {
		m.LogEvent("probe", SeverityLow, map[string]any{DetailSenderID: "flooder"})
		clk.Advance(10 * time.Millisecond)
	}
	m.LogEvent("probe", SeverityLow, map[string]any{DetailSenderID: "other"})

	if !m.DetectFloodingAttack("flooder", 5) {
		t.Error("expected flooding detection for 6 events above threshold 5")
	}
	if m.DetectFloodingAttack("other", 5) {
		t.Error("single event must not count as flooding")
	}

	// Outside the one-second window nothing counts.
	clk.Advance(2 * time.Second)
	if m.DetectFloodingAttack("flooder", 5) {
		t.Error("stale events must not count as flooding")
	}
}

func TestGetMetrics(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{})
	m.SetThreshold("auth_failure", 2, time.Minute)

	m.LogEvent("probe", SeverityLow, nil)
	clk.Advance(2 * time.Hour)
	m.LogEvent("auth_failure", SeverityMedium, nil)
	m.LogEvent("auth_failure", SeverityMedium, nil)

	got := m.GetMetrics()
	if got.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", got.TotalEvents)
	}
	if got.EventsLast5Min != 2 {
		t.Errorf("EventsLast5Min = %d, want 2", got.EventsLast5Min)
	}
	if got.EventsLastHour != 2 {
		t.Errorf("EventsLastHour = %d, want 2", got.EventsLastHour)
	}
	if got.TotalAlerts != 1 {
		t.Errorf("TotalAlerts = %d, want 1", got.TotalAlerts)
	}
	if got.EventsBySeverity[SeverityMedium] != 2 || got.EventsBySeverity[SeverityLow] != 1 {
		t.Errorf("EventsBySeverity = %v", got.EventsBySeverity)
	}
}

func TestCleanupRetainsLastDay(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{})

	m.LogEvent("old", SeverityLow, nil)
	clk.Advance(25 * time.Hour)
	m.LogEvent("fresh", SeverityLow, nil)

	m.Cleanup()

	events := m.RecentEvents(0)
	if len(events) != 1 || events[0].Type != "fresh" {
		t.Fatalf("expected only the fresh event to survive, got %d events", len(events))
	}
}

func TestAlertSinkReceivesAlerts(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var delivered []Alert
	m := newQuietMonitor(clk, Config{
		Sink: AlertSinkFunc(func(a Alert) { delivered = append(delivered, a) }),
	})
	m.SetThreshold("auth_failure", 1, time.Minute)

	m.LogEvent("auth_failure", SeverityMedium, nil)

	if len(delivered) != 1 {
		t.Fatalf("sink received %d alerts, want 1", len(delivered))
	}
	if delivered[0].EventType != "auth_failure" {
		t.Fatalf("unexpected alert: %+v", delivered[0])
	}
}

func TestAlertSinkMayQueryMonitor(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	var m *Monitor
	seen := make(chan int, 1)
	m = newQuietMonitor(clk, Config{
		Sink: AlertSinkFunc(func(Alert) {
			// Calling back into the monitor from a sink must not deadlock.
			_ = m.GetMetrics()
			seen <- len(m.GetAlerts())
		}),
	})
	m.SetThreshold("auth_failure", 1, time.Minute)

	done := make(chan struct{})
	go func() {
		m.LogEvent("auth_failure", SeverityMedium, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LogEvent did not return while the sink queried the monitor")
	}
	if got := <-seen; got != 1 {
		t.Fatalf("sink saw %d stored alerts, want 1", got)
	}
}

func TestQueryResultsDoNotAliasEventDetails(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{})

	m.LogEvent("probe", SeverityHigh, map[string]any{DetailChannel: "task:create"})

	m.RecentEvents(1)[0].Details[DetailChannel] = "tampered"
	m.EventsByType("probe", 0)[0].Details[DetailChannel] = "tampered"
	m.HighSeverityEvents()[0].Details[DetailChannel] = "tampered"

	got := m.RecentEvents(1)[0].Details[DetailChannel]
	if got != "task:create" {
		t.Fatalf("stored event mutated through a query result: channel = %q", got)
	}
}

func TestAlertSinkPanicIsRecovered(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := newQuietMonitor(clk, Config{
		Sink: AlertSinkFunc(func(Alert) { panic("sink exploded") }),
	})
	m.SetThreshold("auth_failure", 1, time.Minute)

	// Must not panic, and the alert must still be stored.
	m.LogEvent("auth_failure", SeverityMedium, nil)
	if len(m.GetAlerts()) != 1 {
		t.Fatal("alert lost after sink panic")
	}
}
