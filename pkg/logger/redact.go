package logger

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	jwtPattern   = regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)
	hexKeyRun    = regexp.MustCompile(`(?i)\b[0-9a-f]{32,}\b`)
	idDigitRun   = regexp.MustCompile(`\d{9,}`)
	sensitiveKey = map[string]struct{}{
		"password":         {},
		"current_password": {},
		"token":            {},
		"access_token":     {},
		"authorization":    {},
		"secret":           {},
		"key":              {},
		"sensitive_id":     {},
		"sensitiveid":      {},
		"ciphertext":       {},
		"iv":               {},
		"auth_tag":         {},
		"password_hash":    {},
	}
)

// Sanitize returns err's text with key-like hex runs, ID-like digit runs and
// bearer tokens masked. It is safe to call with a nil error.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString applies the same masking as Sanitize to arbitrary text.
func SanitizeString(s string) string {
	s = jwtPattern.ReplaceAllString(s, redacted)
	s = hexKeyRun.ReplaceAllString(s, redacted)
	s = idDigitRun.ReplaceAllString(s, redacted)
	return s
}

// RedactingHandler masks sensitive attribute values and scrubs message text
// before delegating to the wrapped handler.
type RedactingHandler struct {
	next slog.Handler
}

// NewRedactingHandler wraps next.
func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, SanitizeString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cleaned := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		cleaned = append(cleaned, redactAttr(a))
	}
	return &RedactingHandler{next: h.next.WithAttrs(cleaned)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if _, ok := sensitiveKey[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, SanitizeString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		cleaned := make([]any, 0, len(group))
		for _, ga := range group {
			cleaned = append(cleaned, redactAttr(ga))
		}
		return slog.Group(a.Key, cleaned...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, Sanitize(err))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
