package audio

import "errors"

type ErrorKind string

const (
	// DeviceOpen covers a missing device, a refused stream and unsupported parameters.
	DeviceOpen  ErrorKind = "CaptureUnavailable"
	Interrupted ErrorKind = "CaptureInterrupted"
)

// CaptureError ends the current session; there is no fallback for capture.
type CaptureError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	msg := string(e.Kind) + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CaptureError) Unwrap() error { return e.Err }

func (e *CaptureError) Terminal() bool { return true }

// IsKind reports whether err carries a CaptureError of kind k.
func IsKind(err error, k ErrorKind) bool {
	var ce *CaptureError
	return errors.As(err, &ce) && ce.Kind == k
}
