// Package clipboard wraps the system clipboard and the keystroke backends
// used to type or paste into the focused window.
package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

// ErrUnavailable means no clipboard tool (wl-clipboard, xclip, xsel) was found.
var ErrUnavailable = errors.New("no clipboard utility available (install wl-clipboard, xclip or xsel)")

// System is the desktop clipboard.
type System struct{}

func (System) Read() (string, error) {
	if cb.Unsupported {
		return "", ErrUnavailable
	}
	return cb.ReadAll()
}

func (System) Write(text string) error {
	if cb.Unsupported {
		return ErrUnavailable
	}
	return cb.WriteAll(text)
}

// Available reports whether a clipboard tool was found at startup.
func Available() bool {
	return !cb.Unsupported
}
