package delivery

import "fmt"

type ErrorKind string

const (
	InjectionUnavailable ErrorKind = "InjectionUnavailable"
	ClipboardUnavailable ErrorKind = "ClipboardUnavailable"
	PasteFailed          ErrorKind = "PasteFailed"
	VerifyFailed         ErrorKind = "VerifyFailed"
)

// Error is a failed delivery step. Steps fail over to the next one, so only
// the clipboard-only failure ever reaches the caller.
type Error struct {
	Kind   ErrorKind
	Method Method
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason == "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Method, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Method, e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Terminal is false: a later step can still put the text somewhere useful.
func (e *Error) Terminal() bool { return false }
