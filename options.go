package ipcguard

import (
	"log/slog"
	"time"

	"github.com/oselabs/ipcguard/auth"
	"github.com/oselabs/ipcguard/clock"
	"github.com/oselabs/ipcguard/instrumentation"
	"github.com/oselabs/ipcguard/monitor"
	"github.com/oselabs/ipcguard/ratelimit"
	"github.com/oselabs/ipcguard/sender"
)

// defaultReservedChannelPrefixes name framework-internal channel namespaces
// that business handlers must never claim.
var defaultReservedChannelPrefixes = []string{
	"internal:",
	"ipcguard:",
	"devtools:",
}

// Config configures a Gatekeeper. The zero value is usable: system clock,
// freshly constructed limiter and monitor, default logger, no authenticator,
// no baseline guard, no instrumentation.
type Config struct {
	// Logger for structured logging. Nil uses slog.Default().
	Logger *slog.Logger

	// Clock is the time source shared with limiter and monitor constructed
	// here. Nil uses the system clock.
	Clock clock.Clock

	// RateLimiter enforces per-channel limits and the blacklist.
	// Nil constructs one with this Config's clock and logger.
	RateLimiter *ratelimit.RateLimiter

	// Monitor collects security events and raises alerts.
	// Nil constructs one with this Config's clock and logger.
	Monitor *monitor.Monitor

	// Authenticator backs channels registered with RequireAuth.
	// Registering such a channel without one is a ConfigurationError.
	Authenticator auth.Authenticator

	// Baseline optionally applies a flat per-sender budget across all
	// channels, in front of the per-channel rules.
	Baseline ratelimit.BaselineConfig

	// ReservedChannelPrefixes overrides the default reserved namespaces
	// (internal:, ipcguard:, devtools:).
	ReservedChannelPrefixes []string

	// Instrumentation records pipeline metrics and traces when set.
	Instrumentation *instrumentation.Instrumentation
}

// RateLimit is a per-channel sliding-window limit declared at registration.
type RateLimit struct {
	MaxRequests int
	Window      time.Duration
}

// HandlerOptions declares the policy for one channel. Fields are optional;
// the zero value registers a handler with sender validation only.
type HandlerOptions struct {
	// AllowedOrigins restricts callers to these origins. Empty means any
	// origin (structural frame checks still apply).
	AllowedOrigins []string

	// RequireAuth routes the call through the injected Authenticator.
	RequireAuth bool

	// RateLimit registers a sliding-window rule for this channel.
	RateLimit *RateLimit

	// Validator checks the first argument before the handler runs.
	// Returning false rejects the call with ErrInvalidInput. Calls made
	// without arguments are validated as nil.
	Validator func(arg any) bool

	// Sanitizer transforms the first argument before the handler runs; the
	// handler receives the sanitized form. An error rejects the call with
	// ErrInvalidInput.
	Sanitizer func(arg any) (any, error)
}

// CallerContext identifies the caller of one IPC invocation.
type CallerContext struct {
	// SenderID is the host-assigned caller identity (e.g. a WebContents or
	// connection ID). Rate limits and the blacklist key on it.
	SenderID string

	// Frame describes the calling frame for sender validation.
	Frame *sender.Frame

	// AuthToken is the credential presented to the Authenticator for
	// channels registered with RequireAuth.
	AuthToken string
}
