package log

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// sensitiveKeys contains attribute keys that are always redacted.
var sensitiveKeys = map[string]bool{
	// HTTP headers
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"x-csrf-token":        true,

	// Authentication
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"api-key":       true,
	"access_token":  true,
	"refresh_token": true,

	// Session
	"session":    true,
	"session_id": true,
	"sessionid":  true,
	"sid":        true,

	// Credentials
	"credential":  true,
	"credentials": true,
	"auth":        true,
}

// sensitiveKeywords mark a key as sensitive when contained in it.
// The bare "key" is not listed: it matches "primary_key", "keyboard" or "monkey".
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "session",
}

// sensitiveParams are query parameter names whose values are redacted in URLs.
// Tracking parameters (utm_*) are deliberately left readable.
var sensitiveParams = map[string]bool{
	"code":      true,
	"key":       true,
	"sig":       true,
	"signature": true,
	"email":     true,
}

// urlKeys are attribute keys whose string values are parsed as URLs or
// raw queries and redacted parameter by parameter.
var urlKeys = map[string]bool{
	"url":      true,
	"uri":      true,
	"href":     true,
	"referer":  true,
	"referrer": true,
	"query":    true,
	"location": true,
	"target":   true,
}

// sensitivePatterns contains value patterns that are redacted regardless of key.
var sensitivePatterns = []*regexp.Regexp{
	// JWT tokens
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),

	// Bearer tokens
	regexp.MustCompile(`(?i)^bearer\s+.+`),

	// Basic auth
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// Long alphanumeric strings (API keys)
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),

	// AWS access keys
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),

	// Private key markers
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// SecureHandler wraps an slog.Handler and redacts sensitive attributes
// before passing records to the underlying handler.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, the returned SecureHandler uses slog.Default().Handler().
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle redacts the record's attributes and passes it to the underlying handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes redacted and added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitized[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitized)}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	// LogValuer implementations (enhance.Report, ...) resolve to groups.
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitized := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			sanitized[i] = sanitizeAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitized...)}
	}

	keyLower := strings.ToLower(a.Key)
	if isSensitiveKey(keyLower) {
		return slog.String(a.Key, MaskValue)
	}

	if a.Value.Kind() != slog.KindString {
		return a
	}

	value := a.Value.String()
	if isSensitiveValue(value) {
		return slog.String(a.Key, MaskValue)
	}
	if urlKeys[keyLower] {
		if redacted, changed := RedactURL(value); changed {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	if sensitiveKeys[key] {
		return true
	}
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// RedactURL masks credential-like query parameters and userinfo passwords in
// a URL or raw query string. The parameter order and all other parameters
// are preserved. It reports whether anything was masked.
func RedactURL(raw string) (string, bool) {
	if raw == "" {
		return raw, false
	}

	prefix, query, fragment := raw, "", ""
	if i := strings.IndexByte(prefix, '#'); i >= 0 {
		prefix, fragment = prefix[:i], prefix[i:]
	}
	if i := strings.IndexByte(prefix, '?'); i >= 0 {
		prefix, query = prefix[:i+1], prefix[i+1:]
	} else if !strings.ContainsAny(prefix, "/:") && strings.Contains(prefix, "=") {
		// bare raw query such as "a=1&token=x"
		prefix, query = "", prefix
	}

	changed := false
	if u, err := url.Parse(prefix); err == nil && u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			// url escapes '*' in userinfo, so splice the mask in afterwards
			u.User = url.UserPassword(u.User.Username(), "x")
			prefix = strings.Replace(u.String(), ":x@", ":"+MaskValue+"@", 1)
			changed = true
		}
	}

	if query != "" {
		parts := strings.Split(query, "&")
		for i, part := range parts {
			name, _, hasValue := strings.Cut(part, "=")
			if !hasValue {
				continue
			}
			decoded, err := url.QueryUnescape(name)
			if err != nil {
				decoded = name
			}
			lower := strings.ToLower(decoded)
			if sensitiveParams[lower] || isSensitiveKey(lower) {
				parts[i] = name + "=" + MaskValue
				changed = true
			}
		}
		query = strings.Join(parts, "&")
	}

	if !changed {
		return raw, false
	}
	return prefix + query + fragment, true
}
