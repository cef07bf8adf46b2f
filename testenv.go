package main

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"murmur/hotkey"
	"murmur/log"
)

// driveStdin turns scripted lines into chord events for headless runs with
// --fake-audio:
//
//	KEYDOWN / KEYUP   press or release the chord
//	WAIT              block until the current cycle is back to idle
//	SLEEP <ms>        pause
//	QUIT              shut down (so does EOF)
func driveStdin(ctx context.Context, in io.Reader, hk *hotkey.FakeHotkey, cycles <-chan struct{}, quit func()) {
	defer quit()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "KEYDOWN":
			hk.SimKeydown()
		case cmd == "KEYUP":
			hk.SimKeyup()
		case cmd == "WAIT":
			select {
			case <-cycles:
			case <-ctx.Done():
				return
			}
		case cmd == "QUIT":
			log.Info("script_quit")
			return
		case strings.HasPrefix(cmd, "SLEEP "):
			ms, err := strconv.Atoi(strings.TrimSpace(cmd[len("SLEEP "):]))
			if err != nil {
				log.Warnf("script_bad_sleep %q", cmd)
				continue
			}
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return
			}
		case cmd == "":
		default:
			log.Warnf("script_unknown_command %q", cmd)
		}
	}
}
