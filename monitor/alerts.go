package monitor

import (
	"context"
	"time"
)

// Alert type constants.
const (
	// AlertThresholdExceeded is raised when a registered threshold rule fires.
	AlertThresholdExceeded = "threshold_exceeded"

	// AlertAttackPattern is raised when an attack-pattern heuristic matches.
	AlertAttackPattern = "attack_pattern"
)

// alertDedupWindow suppresses repeat alerts for the same condition.
const alertDedupWindow = 5 * time.Minute

// Alert is a raised security condition.
type Alert struct {
	Type      string   // AlertThresholdExceeded or AlertAttackPattern
	EventType string   // set for threshold alerts
	Pattern   string   // set for attack-pattern alerts
	Severity  Severity
	Timestamp time.Time
}

// AlertSink receives alerts as they are raised. Delivery is best-effort and
// runs outside the monitor's lock, so a sink may query the monitor from
// Notify; a panicking sink is recovered and logged without disturbing the
// pipeline.
type AlertSink interface {
	Notify(alert Alert)
}

// AlertSinkFunc adapts a function to the AlertSink interface.
type AlertSinkFunc func(Alert)

// Notify calls f(alert).
func (f AlertSinkFunc) Notify(alert Alert) { f(alert) }

// alertKey identifies a deduplication bucket.
type alertKey struct {
	alertType string
	eventType string
	pattern   string
}

// triggerAlertLocked stores an alert unless the same
// (type, eventType, pattern) fired within the dedup window, reporting whether
// it was stored. Sink delivery is the caller's job, after releasing m.mu.
// Caller holds m.mu.
func (m *Monitor) triggerAlertLocked(alert Alert, details map[string]any) bool {
	key := alertKey{alertType: alert.Type, eventType: alert.EventType, pattern: alert.Pattern}
	if last, ok := m.lastAlert[key]; ok && alert.Timestamp.Sub(last) < m.dedup {
		return false
	}

	m.lastAlert[key] = alert.Timestamp
	m.alerts = append(m.alerts, alert)

	m.logger.Warn("security alert",
		"alert_type", alert.Type,
		"event_type", alert.EventType,
		"pattern", alert.Pattern,
		"severity", alert.Severity,
		"details", details)

	if m.inst != nil {
		m.inst.Metrics().RecordAlert(context.Background(), alert.Type, alert.Pattern)
	}

	return true
}

// notifySink delivers an alert to the sink, recovering any panic so alert
// emission can never take down the pipeline.
func (m *Monitor) notifySink(alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("alert sink panicked", "panic", r)
		}
	}()
	m.sink.Notify(alert)
}

// GetAlerts returns all stored alerts, oldest first.
func (m *Monitor) GetAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
