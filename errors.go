package ipcguard

import "fmt"

// Pipeline error codes as constants.
const (
	ErrorCodeUnauthorizedSender     = "unauthorized_sender"
	ErrorCodeRateLimitExceeded      = "rate_limit_exceeded"
	ErrorCodeInvalidInput           = "invalid_input"
	ErrorCodeAuthenticationRequired = "authentication_required"
	ErrorCodeUnknownChannel         = "unknown_channel"
)

// PipelineError is returned when a pipeline step denies a call. All pipeline
// denials are deterministic and fail closed: the matching security event is
// logged before the error is returned.
type PipelineError struct {
	Code        string // one of the ErrorCode constants
	Description string // human-readable detail
	Channel     string // channel the call targeted
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches any PipelineError with the same code, so callers can test
// against the exported sentinels with errors.Is.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	return ok && t.Code == e.Code
}

// Sentinel errors for errors.Is matching. The pipeline returns richer
// instances carrying the channel and a description.
var (
	// ErrUnauthorizedSender indicates sender validation rejected the caller.
	ErrUnauthorizedSender = &PipelineError{Code: ErrorCodeUnauthorizedSender}

	// ErrRateLimitExceeded indicates a rate limit denied the call.
	ErrRateLimitExceeded = &PipelineError{Code: ErrorCodeRateLimitExceeded}

	// ErrInvalidInput indicates input validation or sanitization rejected the call.
	ErrInvalidInput = &PipelineError{Code: ErrorCodeInvalidInput}

	// ErrAuthenticationRequired indicates the injected authenticator rejected the call.
	ErrAuthenticationRequired = &PipelineError{Code: ErrorCodeAuthenticationRequired}

	// ErrUnknownChannel indicates Execute was called for an unregistered channel.
	ErrUnknownChannel = &PipelineError{Code: ErrorCodeUnknownChannel}
)

func newPipelineError(code, channel, description string) *PipelineError {
	return &PipelineError{Code: code, Channel: channel, Description: description}
}

// ConfigurationError is raised at registration time, never at call time:
// reserved channel names, duplicate registrations, and option combinations
// that cannot be satisfied.
type ConfigurationError struct {
	Description string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Description
}

func newConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Description: fmt.Sprintf(format, args...)}
}

// HandlerError wraps a failure from the wrapped business handler. The
// original error is reachable through errors.Unwrap/Is/As, so callers match
// on their own error values exactly as if the handler had been called
// directly.
type HandlerError struct {
	Channel string
	Err     error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %q failed: %v", e.Channel, e.Err)
}

// Unwrap returns the handler's original error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
