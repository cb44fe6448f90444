// Package sender validates the identity and origin of an IPC caller before
// the engine dispatches to a privileged handler.
package sender

import (
	"net/url"
	"strings"
)

// Validation failure reasons. These are stable strings surfaced in security
// events and error descriptions.
const (
	ReasonNoFrame      = "no sender frame"
	ReasonIframe       = "IPC from iframe not allowed"
	ReasonOriginDenied = "origin not in allowlist"
	ReasonMalformedURL = "invalid sender URL"
)

// Frame describes the caller's frame as reported by the host runtime.
type Frame struct {
	// URL is the document URL the call originated from.
	URL string

	// ID is the host-assigned frame identifier.
	ID int

	// HasParent is true when the frame is embedded in another frame.
	// Calls from embedded frames are always rejected.
	HasParent bool
}

// Result is the outcome of validating a sender frame.
type Result struct {
	Valid   bool
	Reason  string // set when Valid is false
	Origin  string // scheme://host of the frame URL when Valid
	FrameID int
}

// Validate checks a caller frame against structural constraints and an
// optional origin allowlist. It is a pure function with no side effects.
//
// A frame with a parent is rejected regardless of origin: privileged IPC must
// come from a top-level frame, and an allowlisted origin embedded as an
// iframe could otherwise be used as a confused deputy. When allowedOrigins
// is nil or empty, origin checking is skipped entirely.
func Validate(frame *Frame, allowedOrigins []string) Result {
	if frame == nil {
		return Result{Valid: false, Reason: ReasonNoFrame}
	}

	if frame.HasParent {
		return Result{Valid: false, Reason: ReasonIframe, FrameID: frame.ID}
	}

	origin, ok := originOf(frame.URL)
	if !ok {
		return Result{Valid: false, Reason: ReasonMalformedURL, FrameID: frame.ID}
	}

	if len(allowedOrigins) > 0 && !containsOrigin(allowedOrigins, origin) {
		return Result{Valid: false, Reason: ReasonOriginDenied, Origin: origin, FrameID: frame.ID}
	}

	return Result{Valid: true, Origin: origin, FrameID: frame.ID}
}

// originOf extracts the scheme://host origin from a frame URL.
// file: URLs have no host; their origin is the bare scheme, which lets hosts
// allowlist "file://" for local application windows.
func originOf(rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return "", false
	}
	if parsed.Host == "" && parsed.Scheme != "file" {
		return "", false
	}
	return parsed.Scheme + "://" + parsed.Host, true
}

func containsOrigin(allowed []string, origin string) bool {
	for _, a := range allowed {
		// Exact match first: file:// ends in slashes that must survive.
		if strings.EqualFold(a, origin) || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
			return true
		}
	}
	return false
}
