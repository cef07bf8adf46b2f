package notify

import (
	"murmur/log"
	"murmur/session"
)

// Logger writes every event to the diagnostics log.
type Logger struct{}

func (Logger) Notify(e session.Event) {
	l := log.Logger()
	ev := l.Info()
	if e.Failure() {
		ev = l.Warn()
	}
	ev = ev.Str("session", e.Session).Str("state", string(e.State))
	switch e.Kind {
	case session.RecordingStopped, session.RecordingEmpty:
		ev = ev.Dur("duration", e.Duration)
	case session.TranscriptionSucceeded:
		ev = ev.Int("chars", e.Chars)
	case session.DeliverySucceeded:
		ev = ev.Str("method", string(e.Method)).Bool("fallback", e.Fallback)
	}
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	if e.ErrKind != "" {
		ev = ev.Str("kind", e.ErrKind)
	}
	ev.Msg(string(e.Kind))
}
