//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

// the global hotkey on macOS has to be registered from the main thread
func init() {
	runtime.LockOSThread()
}

func main() {
	mainthread.Init(run)
}
