package monitor

import (
	"time"
)

// Pattern names for the built-in heuristics.
const (
	PatternRapidChannelSwitching      = "rapid_channel_switching"
	PatternPrivilegeEscalationAttempt = "privilege_escalation_attempt"
	PatternDDoSAttack                 = "ddos_attack"
	PatternAutomatedAttack            = "automated_attack"
)

// Pattern is a named behavioral heuristic evaluated over the event log.
type Pattern struct {
	Name     string
	Severity Severity

	// Detect inspects the full event log (oldest first) and the current
	// time and reports whether the pattern is present.
	Detect func(events []Event, now time.Time) bool
}

// PatternConfig tunes the built-in attack-pattern heuristics. The defaults
// reproduce the reference parameters; their derivation is undocumented, so
// they are deliberately configuration rather than constants.
type PatternConfig struct {
	// rapid_channel_switching: within the last SwitchLookback events, more
	// than SwitchDistinctChannels distinct channels touched inside
	// SwitchWindow implies channel scanning. Requires at least MinEvents
	// events overall.
	SwitchLookback         int
	SwitchDistinctChannels int
	SwitchWindow           time.Duration

	// privilege_escalation_attempt: within the last EscalationLookback
	// events, more than EscalationThreshold unauthorized_sender events
	// targeting a privileged channel prefix.
	EscalationLookback  int
	EscalationThreshold int
	PrivilegedPrefixes  []string

	// ddos_attack: within the last DDoSLookback events, more than
	// DDoSThreshold rate_limit_exceeded events inside DDoSWindow.
	DDoSLookback  int
	DDoSThreshold int
	DDoSWindow    time.Duration

	// automated_attack: variance of the inter-arrival intervals of the last
	// AutomationLookback events below AutomationMaxVariance (ms squared)
	// implies scripted traffic. Requires at least MinEvents events overall.
	AutomationLookback    int
	AutomationMaxVariance float64

	// MinEvents is the minimum log size before the timing-based patterns
	// are evaluated at all.
	MinEvents int
}

// DefaultPatternConfig returns the reference parameters.
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		SwitchLookback:         20,
		SwitchDistinctChannels: 10,
		SwitchWindow:           5 * time.Second,
		EscalationLookback:     50,
		EscalationThreshold:    5,
		PrivilegedPrefixes:     []string{"admin:", "system:", "internal:"},
		DDoSLookback:           100,
		DDoSThreshold:          50,
		DDoSWindow:             time.Minute,
		AutomationLookback:     10,
		AutomationMaxVariance:  100,
		MinEvents:              10,
	}
}

// builtinPatterns constructs the four reference heuristics from cfg.
func builtinPatterns(cfg PatternConfig) []Pattern {
	return []Pattern{
		{
			Name:     PatternRapidChannelSwitching,
			Severity: SeverityHigh,
			Detect: func(events []Event, _ time.Time) bool {
				return detectRapidChannelSwitching(events, cfg)
			},
		},
		{
			Name:     PatternPrivilegeEscalationAttempt,
			Severity: SeverityCritical,
			Detect: func(events []Event, _ time.Time) bool {
				return detectPrivilegeEscalation(events, cfg)
			},
		},
		{
			Name:     PatternDDoSAttack,
			Severity: SeverityCritical,
			Detect: func(events []Event, now time.Time) bool {
				return detectDDoS(events, now, cfg)
			},
		},
		{
			Name:     PatternAutomatedAttack,
			Severity: SeverityHigh,
			Detect: func(events []Event, _ time.Time) bool {
				return detectAutomation(events, cfg)
			},
		},
	}
}

// lastN returns the trailing n events (or all of them when fewer).
func lastN(events []Event, n int) []Event {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}

// detectRapidChannelSwitching flags a caller sweeping across many channels
// in a short burst, the signature of capability probing.
func detectRapidChannelSwitching(events []Event, cfg PatternConfig) bool {
	if len(events) < cfg.MinEvents {
		return false
	}

	recent := lastN(events, cfg.SwitchLookback)
	channels := make(map[string]struct{})
	for _, e := range recent {
		if ch, ok := e.Details[DetailChannel].(string); ok {
			channels[ch] = struct{}{}
		}
	}
	if len(channels) <= cfg.SwitchDistinctChannels {
		return false
	}

	elapsed := recent[len(recent)-1].Timestamp.Sub(recent[0].Timestamp)
	return elapsed < cfg.SwitchWindow
}

// detectPrivilegeEscalation flags repeated unauthorized calls to privileged
// channel namespaces.
func detectPrivilegeEscalation(events []Event, cfg PatternConfig) bool {
	recent := lastN(events, cfg.EscalationLookback)
	count := 0
	for _, e := range recent {
		if e.Type != EventUnauthorizedSender {
			continue
		}
		ch, ok := e.Details[DetailChannel].(string)
		if ok && hasPrivilegedPrefix(ch, cfg.PrivilegedPrefixes) {
			count++
		}
	}
	return count > cfg.EscalationThreshold
}

// detectDDoS flags a dense burst of rate-limit denials.
func detectDDoS(events []Event, now time.Time, cfg PatternConfig) bool {
	recent := lastN(events, cfg.DDoSLookback)
	if len(recent) == 0 {
		return false
	}

	count := 0
	for _, e := range recent {
		if e.Type == EventRateLimitExceeded {
			count++
		}
	}
	if count <= cfg.DDoSThreshold {
		return false
	}

	return now.Sub(recent[0].Timestamp) < cfg.DDoSWindow
}

// detectAutomation flags near-perfectly regular inter-arrival timing, which
// human-driven traffic does not produce.
func detectAutomation(events []Event, cfg PatternConfig) bool {
	if len(events) < cfg.MinEvents {
		return false
	}

	recent := lastN(events, cfg.AutomationLookback)
	if len(recent) < 2 {
		return false
	}

	intervals := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		d := recent[i].Timestamp.Sub(recent[i-1].Timestamp)
		intervals = append(intervals, float64(d.Milliseconds()))
	}

	return variance(intervals) < cfg.AutomationMaxVariance
}

// variance returns the population variance of xs.
func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	v := 0.0
	for _, x := range xs {
		d := x - mean
		v += d * d
	}
	return v / float64(len(xs))
}
