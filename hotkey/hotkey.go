// Package hotkey watches the global Ctrl+Shift+Space chord and turns it
// into orchestrator toggles.
package hotkey

// Hotkey reports presses and releases of the chord. Channels are buffered
// by one; bursts beyond that are dropped.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}
