package ipcguard

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Path sanitization rejects traversal rather than silently rewriting it, so
// a hostile caller gets an error instead of a surprising path.
var (
	pathTraversalPattern = regexp.MustCompile(`(^|[\\/])\.\.([\\/]|$)`)
	pathEncodedPattern   = regexp.MustCompile(`(?i)%2e%2e|%2f|%5c`)
)

// SanitizePath normalizes p to forward slashes and a clean lexical form.
// It returns ErrInvalidInput-compatible errors for empty input, directory
// traversal sequences, and percent-encoded traversal attempts.
func SanitizePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if pathEncodedPattern.MatchString(p) {
		return "", fmt.Errorf("path contains encoded traversal sequence")
	}
	normalized := strings.ReplaceAll(p, `\`, "/")
	if pathTraversalPattern.MatchString(normalized) {
		return "", fmt.Errorf("path contains directory traversal")
	}
	cleaned := path.Clean(normalized)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path escapes its root")
	}
	return cleaned, nil
}

// PathSanitizer adapts SanitizePath to the HandlerOptions.Sanitizer shape.
// Non-string arguments are rejected.
func PathSanitizer(arg any) (any, error) {
	s, ok := arg.(string)
	if !ok {
		return nil, fmt.Errorf("expected string path, got %T", arg)
	}
	return SanitizePath(s)
}

// SQL sanitization is a last line of defense for handlers that assemble
// queries from caller input. Parameterized queries remain the caller's job;
// this only screens the common injection shapes.
var (
	sqlStackedPattern  = regexp.MustCompile(`(?i);\s*(drop|delete|update|insert|alter|truncate)\b`)
	sqlCommentPattern  = regexp.MustCompile(`--|/\*`)
	sqlUnionPattern    = regexp.MustCompile(`(?i)\bunion\b[\s(]+(all\s+)?\bselect\b`)
	sqlTautologyOrSide = regexp.MustCompile(`(?i)\bor\b\s+([^\s=]+)\s*=\s*([^\s;]+)`)
)

// SanitizeSQL rejects input containing stacked statements, SQL comments,
// UNION SELECT, or tautological OR conditions. Accepted input is returned
// unchanged; nothing is escaped.
func SanitizeSQL(s string) (string, error) {
	if sqlStackedPattern.MatchString(s) {
		return "", fmt.Errorf("input contains stacked SQL statement")
	}
	if sqlCommentPattern.MatchString(s) {
		return "", fmt.Errorf("input contains SQL comment sequence")
	}
	if sqlUnionPattern.MatchString(s) {
		return "", fmt.Errorf("input contains UNION SELECT")
	}
	// RE2 has no backreferences, so capture both operands of the OR
	// comparison and compare them here. Quotes are stripped so that
	// `OR '1'='1'` and `OR 1=1` both match.
	for _, m := range sqlTautologyOrSide.FindAllStringSubmatch(s, -1) {
		left := strings.Trim(m[1], `'"`)
		right := strings.Trim(m[2], `'"`)
		if strings.EqualFold(left, right) {
			return "", fmt.Errorf("input contains tautological OR condition")
		}
	}
	return s, nil
}

// SQLSanitizer adapts SanitizeSQL to the HandlerOptions.Sanitizer shape.
// Non-string arguments are rejected.
func SQLSanitizer(arg any) (any, error) {
	s, ok := arg.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", arg)
	}
	return SanitizeSQL(s)
}
