// Package audit is the security event trail, kept deliberately separate
// from the service logger (internal/bbslog) the way the teacher keeps
// internal/app/httpapi's audit ring buffer separate from its request logs.
// Entries here back boundary scenario 5 ("registry unchanged") and the
// rate-limit breach log in spec §5.
package audit

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Log is the process-wide security event sink. Unlike internal/bbslog's
// per-component loggers, a single Log is shared because audit entries need
// one consistent stream to be useful to an operator tailing them.
type Log struct {
	zl zerolog.Logger

	mu       sync.Mutex
	lastWarn map[string]time.Time
}

// New builds an audit log writing newline-delimited JSON to w (os.Stdout in
// production, a buffer in tests).
func New(w io.Writer) *Log {
	if w == nil {
		w = os.Stdout
	}
	return &Log{
		zl:       zerolog.New(w).With().Timestamp().Logger(),
		lastWarn: make(map[string]time.Time),
	}
}

// Event records a discrete security-relevant fact: app install/uninstall,
// sandbox rejection, auth failure, admin verb invocation.
func (l *Log) Event(kind, detail string, fields map[string]any) {
	ev := l.zl.Info().Str("kind", kind).Str("detail", detail)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Send()
}

// RateLimitBreach logs at most once per window for a given (appID,
// operation) pair, per spec §5: "a warning is logged at most once per
// window."
func (l *Log) RateLimitBreach(appID, operation string, window time.Duration) {
	key := appID + ":" + operation
	now := time.Now()

	l.mu.Lock()
	last, seen := l.lastWarn[key]
	if seen && now.Sub(last) < window {
		l.mu.Unlock()
		return
	}
	l.lastWarn[key] = now
	l.mu.Unlock()

	l.zl.Warn().Str("kind", "rate_limit_breach").Str("app_id", appID).Str("operation", operation).Send()
}
