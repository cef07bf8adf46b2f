// Package notify holds the passive session observers: desktop
// notifications, the diagnostics log and the status file read by bars.
package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"

	"murmur/delivery"
	"murmur/log"
	"murmur/session"
)

// SendFunc posts one desktop notification.
type SendFunc func(title, body string) error

func beeepSend(title, body string) error {
	return beeep.Notify(title, body, "")
}

// Desktop shows a notification at the end of each cycle, and when
// recording starts.
type Desktop struct {
	send SendFunc
}

func NewDesktop(send SendFunc) *Desktop {
	if send == nil {
		beeep.AppName = "murmur"
		send = beeepSend
	}
	return &Desktop{send: send}
}

func (d *Desktop) Notify(e session.Event) {
	title, body, ok := message(e)
	if !ok {
		return
	}
	if err := d.send(title, body); err != nil {
		log.Warnf("notification_failed: %v", err)
	}
}

func message(e session.Event) (title, body string, ok bool) {
	switch e.Kind {
	case session.RecordingStarted:
		return "murmur", "Recording…", true
	case session.RecordingEmpty:
		return "murmur", "Nothing recorded", true
	case session.DeliverySucceeded:
		if e.Method == delivery.ClipboardOnly {
			return "murmur", "Transcript copied to clipboard", true
		}
		return "murmur", "Transcript inserted", true
	case session.TranscriptionFailed:
		return "Transcription failed", reason(e), true
	case session.DeliveryFailed:
		return "Could not insert text", reason(e), true
	case session.CaptureFailed:
		return "Microphone error", reason(e), true
	}
	return "", "", false
}

func reason(e session.Event) string {
	if e.ErrKind != "" && e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.ErrKind, e.Reason)
	}
	return e.Reason
}
