//go:build !windows

// Package shutdown lists the signals that stop the daemon gracefully.
package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

// Notify relays interrupt, termination and terminal hangup to ch.
func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}
