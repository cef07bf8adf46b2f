package hotkey

import (
	"context"
	"time"

	"murmur/log"
	"murmur/session"
)

// ToggleFunc is session.Orchestrator.Toggle.
type ToggleFunc func(ctx context.Context) (session.Ack, error)

// StatusFunc is session.Orchestrator.Status.
type StatusFunc func() session.Status

// Run turns chord presses into toggles until ctx is done. Every press
// toggles. A press that started a recording and is held past longPress
// toggles again on release, so holding the chord works as push-to-talk.
// The release toggle is skipped when that recording has already ended,
// otherwise it would start a new one.
func Run(ctx context.Context, hk Hotkey, longPress time.Duration, toggle ToggleFunc, status StatusFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hk.Keydown():
		}
		pressed := time.Now()

		ack, err := toggle(ctx)
		if err != nil {
			log.Warnf("hotkey_toggle: %v", err)
			return
		}
		log.Debugf("hotkey_press action=%s", ack.Action)

		select {
		case <-ctx.Done():
			return
		case <-hk.Keyup():
		}
		if ack.Action != session.ActionStarted || time.Since(pressed) < longPress {
			continue
		}
		held := time.Since(pressed).Round(time.Millisecond)
		if st := status(); st.State != session.Recording {
			log.Debugf("hotkey_release_skipped held=%s state=%s", held, st.State)
			continue
		}
		log.Debugf("hotkey_release_after=%s", held)
		if _, err := toggle(ctx); err != nil {
			log.Warnf("hotkey_toggle: %v", err)
			return
		}
	}
}
