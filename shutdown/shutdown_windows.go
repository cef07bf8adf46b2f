//go:build windows

// Package shutdown lists the signals that stop the daemon gracefully.
package shutdown

import (
	"os"
	"os/signal"
)

// Notify relays Ctrl+C to ch; windows has no SIGTERM to wait for.
func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
