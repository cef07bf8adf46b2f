package transcriber

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

type ErrorKind string

const (
	AuthError          ErrorKind = "AuthError"
	QuotaExceeded      ErrorKind = "QuotaExceeded"
	NetworkError       ErrorKind = "NetworkError"
	BadResponse        ErrorKind = "BadResponse"
	ExecutableNotFound ErrorKind = "ExecutableNotFound"
	ModelNotFound      ErrorKind = "ModelNotFound"
	NonZeroExit        ErrorKind = "NonZeroExit"
	Timeout            ErrorKind = "Timeout"
	// NoProviderAvailable is a startup error; it never reaches a session.
	NoProviderAvailable ErrorKind = "NoProviderAvailable"
)

// Error is returned by every provider. Reason is short and safe to show to the
// user: credentials are scrubbed before it is built.
type Error struct {
	Kind     ErrorKind
	Provider string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString(" (" + e.Provider + ")")
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Terminal is always true: a failed transcription ends the session.
func (e *Error) Terminal() bool { return true }

// KindOf extracts the error kind, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

var keyPattern = regexp.MustCompile(`(sk|gsk)[-_][A-Za-z0-9_\-*]{4,}`)

// redact strips anything that looks like an API key from s.
func redact(s string, secrets ...string) string {
	for _, sec := range secrets {
		if len(sec) >= 4 {
			s = strings.ReplaceAll(s, sec, "[redacted]")
		}
	}
	return keyPattern.ReplaceAllString(s, "[redacted]")
}

func shorten(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	// cut on a rune boundary
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
