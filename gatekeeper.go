// Package ipcguard mediates inter-process calls between untrusted callers
// and privileged handlers.
//
// Collaborators register a handler per channel together with a policy
// (allowed origins, rate limit, validator, sanitizer, auth requirement).
// Every call then runs a fixed pipeline: validate sender, check rate limits,
// validate input, sanitize input, check authentication, invoke the handler.
// Each denial is recorded as a typed security event before the typed error
// is returned, and the monitor watches the event stream for behavioral
// attack patterns.
package ipcguard

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oselabs/ipcguard/auth"
	"github.com/oselabs/ipcguard/clock"
	"github.com/oselabs/ipcguard/instrumentation"
	"github.com/oselabs/ipcguard/monitor"
	"github.com/oselabs/ipcguard/ratelimit"
	"github.com/oselabs/ipcguard/sender"
)

// Pipeline step names used in metrics and logs.
const (
	stepSender    = "sender_validation"
	stepRateLimit = "rate_limit"
	stepInput     = "input_validation"
	stepSanitize  = "sanitization"
	stepAuth      = "authentication"
	stepHandler   = "handler"
)

// HandlerFunc is a registered business handler. The first argument may have
// been replaced by the channel's sanitizer before the handler runs.
type HandlerFunc func(ctx context.Context, caller CallerContext, args ...any) (any, error)

// registration is one channel's stored policy and handler.
type registration struct {
	options HandlerOptions
	handler HandlerFunc
}

// Gatekeeper is the mediation layer between callers and handlers. Construct
// one per process with New and register channels at startup; Execute is safe
// for concurrent use.
type Gatekeeper struct {
	logger        *slog.Logger
	clk           clock.Clock
	limiter       *ratelimit.RateLimiter
	ownsLimiter   bool
	mon           *monitor.Monitor
	authenticator auth.Authenticator
	baseline      *ratelimit.BaselineGuard
	inst          *instrumentation.Instrumentation
	tracer        trace.Tracer
	reserved      []string

	mu       sync.RWMutex
	handlers map[string]*registration
}

// New creates a Gatekeeper from cfg, constructing a rate limiter and monitor
// when none are supplied.
func New(cfg Config) *Gatekeeper {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}

	g := &Gatekeeper{
		logger:        cfg.Logger,
		clk:           cfg.Clock,
		limiter:       cfg.RateLimiter,
		mon:           cfg.Monitor,
		authenticator: cfg.Authenticator,
		inst:          cfg.Instrumentation,
		reserved:      cfg.ReservedChannelPrefixes,
		handlers:      make(map[string]*registration),
	}

	if g.limiter == nil {
		g.limiter = ratelimit.New(ratelimit.Config{
			Clock:           cfg.Clock,
			Logger:          cfg.Logger,
			Instrumentation: cfg.Instrumentation,
		})
		g.ownsLimiter = true
	}
	if g.mon == nil {
		g.mon = monitor.New(monitor.Config{
			Clock:           cfg.Clock,
			Logger:          cfg.Logger,
			Instrumentation: cfg.Instrumentation,
		})
	}
	if len(g.reserved) == 0 {
		g.reserved = defaultReservedChannelPrefixes
	}
	g.baseline = ratelimit.NewBaselineGuard(cfg.Baseline, cfg.Logger)
	if cfg.Instrumentation != nil {
		g.tracer = cfg.Instrumentation.Tracer("pipeline")
	}

	return g
}

// Monitor returns the security monitor, for hosts that want the query
// surface (recent events, alerts, metrics) or log their own events.
func (g *Gatekeeper) Monitor() *monitor.Monitor { return g.mon }

// RateLimiter returns the rate limiter, for hosts that drive token-bucket
// budgets or the blacklist directly.
func (g *Gatekeeper) RateLimiter() *ratelimit.RateLimiter { return g.limiter }

// Handle registers handler for channel under the given options.
//
// Registration fails with a ConfigurationError when the channel collides
// with a reserved framework prefix, is already registered, or the options
// cannot be satisfied. Policy is fixed at registration; there is no runtime
// mutation of rules.
func (g *Gatekeeper) Handle(channel string, opts HandlerOptions, handler HandlerFunc) error {
	if channel == "" {
		return newConfigurationError("channel must not be empty")
	}
	if handler == nil {
		return newConfigurationError("handler for channel %q must not be nil", channel)
	}
	for _, prefix := range g.reserved {
		if strings.HasPrefix(channel, prefix) {
			return newConfigurationError("channel %q collides with reserved prefix %q", channel, prefix)
		}
	}
	if opts.RequireAuth && g.authenticator == nil {
		return newConfigurationError("channel %q requires auth but no authenticator is configured", channel)
	}
	if opts.RateLimit != nil && (opts.RateLimit.MaxRequests <= 0 || opts.RateLimit.Window <= 0) {
		return newConfigurationError("channel %q has an invalid rate limit", channel)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.handlers[channel]; exists {
		return newConfigurationError("channel %q is already registered", channel)
	}
	g.handlers[channel] = &registration{options: opts, handler: handler}

	if opts.RateLimit != nil {
		g.limiter.SetLimit(channel, opts.RateLimit.MaxRequests, opts.RateLimit.Window)
	}

	g.logger.Info("channel registered",
		"channel", channel,
		"require_auth", opts.RequireAuth,
		"rate_limited", opts.RateLimit != nil,
		"allowed_origins", len(opts.AllowedOrigins))
	return nil
}

// Execute runs the mediation pipeline for one call and invokes the handler.
//
// The pipeline fails fast: the first failing step logs its typed security
// event to the monitor and returns a typed error. Handler failures are
// logged at low severity and returned wrapped in *HandlerError with the
// original error reachable via errors.Unwrap.
func (g *Gatekeeper) Execute(ctx context.Context, channel string, caller CallerContext, args ...any) (any, error) {
	start := g.clk.Now()

	var span trace.Span
	if g.tracer != nil {
		ctx, span = g.tracer.Start(ctx, "ipcguard.execute")
		defer span.End()
		instrumentation.SetSpanAttributes(span,
			attribute.String(instrumentation.AttrChannel, channel),
			attribute.String(instrumentation.AttrSenderID, caller.SenderID),
		)
	}

	g.mu.RLock()
	reg, ok := g.handlers[channel]
	g.mu.RUnlock()
	if !ok {
		g.logger.Warn("call to unregistered channel", "channel", channel, "sender_id", caller.SenderID)
		err := newPipelineError(ErrorCodeUnknownChannel, channel, "no handler registered")
		instrumentation.RecordError(span, err)
		return nil, err
	}
	opts := reg.options

	if err := g.checkSender(channel, caller, opts, span); err != nil {
		return nil, err
	}
	if err := g.checkRateLimit(channel, caller, span); err != nil {
		return nil, err
	}
	if err := g.checkInput(channel, caller, opts, args, span); err != nil {
		return nil, err
	}
	args, err := g.sanitizeInput(channel, caller, opts, args, span)
	if err != nil {
		return nil, err
	}
	if err := g.checkAuth(ctx, channel, caller, opts, span); err != nil {
		return nil, err
	}

	result, err := reg.handler(ctx, caller, args...)
	if err != nil {
		g.mon.LogEvent(monitor.EventHandlerError, monitor.SeverityLow, map[string]any{
			monitor.DetailChannel:  channel,
			monitor.DetailSenderID: caller.SenderID,
			"error":                err.Error(),
		})
		g.recordDenied(channel, stepHandler)
		instrumentation.RecordError(span, err)
		return nil, &HandlerError{Channel: channel, Err: err}
	}

	g.recordCall(ctx, channel, "ok", start)
	instrumentation.SetSpanSuccess(span)
	return result, nil
}

// checkSender validates the caller frame and origin.
func (g *Gatekeeper) checkSender(channel string, caller CallerContext, opts HandlerOptions, span trace.Span) error {
	res := sender.Validate(caller.Frame, opts.AllowedOrigins)
	if res.Valid {
		return nil
	}

	g.mon.LogEvent(monitor.EventUnauthorizedSender, monitor.SeverityHigh, map[string]any{
		monitor.DetailChannel:  channel,
		monitor.DetailSenderID: caller.SenderID,
		monitor.DetailReason:   res.Reason,
	})
	g.recordDenied(channel, stepSender)
	instrumentation.SetSpanError(span, res.Reason)
	return newPipelineError(ErrorCodeUnauthorizedSender, channel, res.Reason)
}

// checkRateLimit consults the baseline guard, then the channel's rule.
func (g *Gatekeeper) checkRateLimit(channel string, caller CallerContext, span trace.Span) error {
	admitted := (g.baseline == nil || g.baseline.Allow(caller.SenderID)) &&
		g.limiter.CheckLimit(channel, caller.SenderID)
	if admitted {
		return nil
	}

	g.mon.LogEvent(monitor.EventRateLimitExceeded, monitor.SeverityMedium, map[string]any{
		monitor.DetailChannel:  channel,
		monitor.DetailSenderID: caller.SenderID,
	})
	g.recordDenied(channel, stepRateLimit)
	instrumentation.SetSpanError(span, "rate limit exceeded")
	return newPipelineError(ErrorCodeRateLimitExceeded, channel, "rate limit exceeded")
}

// checkInput applies the channel's validator to the first argument. A call
// with no arguments is validated as nil, so omitting the argument cannot
// bypass a registered validator.
func (g *Gatekeeper) checkInput(channel string, caller CallerContext, opts HandlerOptions, args []any, span trace.Span) error {
	if opts.Validator == nil {
		return nil
	}
	var first any
	if len(args) > 0 {
		first = args[0]
	}
	if opts.Validator(first) {
		return nil
	}

	g.mon.LogEvent(monitor.EventInvalidInput, monitor.SeverityMedium, map[string]any{
		monitor.DetailChannel:  channel,
		monitor.DetailSenderID: caller.SenderID,
	})
	g.recordDenied(channel, stepInput)
	instrumentation.SetSpanError(span, "input validation failed")
	return newPipelineError(ErrorCodeInvalidInput, channel, "input validation failed")
}

// sanitizeInput replaces the first argument with its sanitized form.
func (g *Gatekeeper) sanitizeInput(channel string, caller CallerContext, opts HandlerOptions, args []any, span trace.Span) ([]any, error) {
	if opts.Sanitizer == nil || len(args) == 0 {
		return args, nil
	}

	sanitized, err := opts.Sanitizer(args[0])
	if err != nil {
		g.mon.LogEvent(monitor.EventInvalidInput, monitor.SeverityMedium, map[string]any{
			monitor.DetailChannel:  channel,
			monitor.DetailSenderID: caller.SenderID,
			monitor.DetailReason:   err.Error(),
		})
		g.recordDenied(channel, stepSanitize)
		instrumentation.SetSpanError(span, "sanitization rejected input")
		return nil, newPipelineError(ErrorCodeInvalidInput, channel, err.Error())
	}

	out := make([]any, len(args))
	copy(out, args)
	out[0] = sanitized
	return out, nil
}

// checkAuth delegates to the injected authenticator when required.
func (g *Gatekeeper) checkAuth(ctx context.Context, channel string, caller CallerContext, opts HandlerOptions, span trace.Span) error {
	if !opts.RequireAuth {
		return nil
	}

	if err := g.authenticator.Authenticate(ctx, caller.SenderID, caller.AuthToken); err != nil {
		g.mon.LogEvent(monitor.EventAuthFailure, monitor.SeverityHigh, map[string]any{
			monitor.DetailChannel:  channel,
			monitor.DetailSenderID: caller.SenderID,
			monitor.DetailReason:   err.Error(),
		})
		g.recordDenied(channel, stepAuth)
		instrumentation.SetSpanError(span, "authentication failed")
		return newPipelineError(ErrorCodeAuthenticationRequired, channel, "authentication failed")
	}
	return nil
}

func (g *Gatekeeper) recordDenied(channel, step string) {
	if g.inst != nil {
		g.inst.Metrics().RecordDenied(context.Background(), channel, step)
		g.inst.Metrics().RecordCall(context.Background(), channel, "denied", 0)
	}
}

func (g *Gatekeeper) recordCall(ctx context.Context, channel, outcome string, start time.Time) {
	if g.inst != nil {
		elapsed := float64(g.clk.Now().Sub(start)) / float64(time.Millisecond)
		g.inst.Metrics().RecordCall(ctx, channel, outcome, elapsed)
	}
}

// Stats summarizes the engine for observability surfaces.
type Stats struct {
	RegisteredHandlers   int
	RateLimiter          ratelimit.Stats
	RecentSecurityEvents []monitor.Event
}

// GetStats returns a snapshot of handler registrations, limiter counters,
// and the most recent security events.
func (g *Gatekeeper) GetStats() Stats {
	g.mu.RLock()
	registered := len(g.handlers)
	g.mu.RUnlock()

	return Stats{
		RegisteredHandlers:   registered,
		RateLimiter:          g.limiter.GetStats(),
		RecentSecurityEvents: g.mon.RecentEvents(10),
	}
}

// Cleanup clears all handler registrations and prunes the rate limiter's
// request logs. The host drives this explicitly; it is not scheduled
// internally.
func (g *Gatekeeper) Cleanup() {
	g.mu.Lock()
	g.handlers = make(map[string]*registration)
	g.mu.Unlock()

	g.limiter.Cleanup()
	if g.baseline != nil {
		g.baseline.Cleanup(30 * time.Minute)
	}
	g.logger.Info("gatekeeper cleanup completed")
}

// Close cancels the blacklist janitor (when the limiter is owned by this
// Gatekeeper) and shuts down instrumentation. Call on engine teardown.
func (g *Gatekeeper) Close(ctx context.Context) error {
	if g.ownsLimiter {
		g.limiter.Stop()
	}
	if g.inst != nil {
		return g.inst.Shutdown(ctx)
	}
	return nil
}
