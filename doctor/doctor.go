// Package doctor runs non-interactive environment checks and prints a
// PASS/WARN/FAIL line for each.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"murmur/audio"
	"murmur/clipboard"
	"murmur/config"
	"murmur/delivery"
	"murmur/transcriber"
)

type Level int

const (
	Pass Level = iota
	Warn
	Fail
)

func (l Level) String() string {
	switch l {
	case Pass:
		return "PASS"
	case Warn:
		return "WARN"
	}
	return "FAIL"
}

type Result struct {
	Level  Level
	Detail string
	Fix    string
}

type Check struct {
	Name string
	Run  func(ctx context.Context) Result
}

// Env carries what the checks probe. Nil fields fall back to the real
// system.
type Env struct {
	ConfigPath string
	Config     *config.Config
	ConfigErr  error

	Audio      audio.Context
	Clipboard  delivery.Clipboard
	Keyboard   clipboard.Keyboard
	HotkeyInfo func() (string, error)
}

// Checks builds the check list in the order they run.
func Checks(env *Env) []Check {
	return []Check{
		{"Configuration", env.checkConfig},
		{"Transcription provider", env.checkProvider},
		{"Clipboard", env.checkClipboard},
		{"Keystroke output", env.checkKeyboard},
		{"Microphone", env.checkMicrophone},
		{"Hotkey", env.checkHotkey},
	}
}

// Run prints each check and returns the process exit code: 1 if any check
// failed, 0 otherwise.
func Run(ctx context.Context, env *Env, out io.Writer) int {
	fmt.Fprintln(out, "murmur doctor - system diagnostics")
	fmt.Fprintln(out, "==================================")

	checks := Checks(env)
	failed := 0
	for i, c := range checks {
		fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		r := c.Run(ctx)
		fmt.Fprintf(out, "  %s: %s\n", r.Level, r.Detail)
		if r.Fix != "" && r.Level != Pass {
			fmt.Fprintf(out, "  Fix: %s\n", r.Fix)
		}
		if r.Level == Fail {
			failed++
		}
	}

	fmt.Fprintln(out)
	if failed == 0 {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintf(out, "%d check(s) failed. See details above.\n", failed)
	return 1
}

func (env *Env) checkConfig(context.Context) Result {
	if env.ConfigErr != nil {
		return Result{Level: Fail, Detail: env.ConfigErr.Error(), Fix: "murmur config show, or recreate with murmur config init"}
	}
	if env.Config == nil {
		return Result{Level: Fail, Detail: "no configuration loaded"}
	}
	if env.Config.Source == "" {
		return Result{Level: Warn, Detail: "no config file, using defaults", Fix: "murmur config init"}
	}
	return Result{Level: Pass, Detail: "loaded " + env.Config.Source}
}

func (env *Env) checkProvider(context.Context) Result {
	if env.Config == nil {
		return Result{Level: Fail, Detail: "skipped: configuration did not load"}
	}
	p, err := transcriber.New(env.Config.TranscriberConfig())
	if err != nil {
		var te *transcriber.Error
		if errors.As(err, &te) && te.Kind == transcriber.NoProviderAvailable {
			return Result{Level: Fail, Detail: err.Error(), Fix: "set OPENAI_API_KEY or GROQ_API_KEY, or install whisper / whisper.cpp"}
		}
		return Result{Level: Fail, Detail: err.Error()}
	}
	return Result{Level: Pass, Detail: "using " + p.Name()}
}

// checkClipboard writes a marker and reads it back. Clipboard tools can
// hang when the compositor is unreachable, so it runs with a deadline.
func (env *Env) checkClipboard(ctx context.Context) Result {
	cb := env.Clipboard
	if cb == nil {
		if !clipboard.Available() {
			return Result{Level: Fail, Detail: clipboard.ErrUnavailable.Error()}
		}
		cb = clipboard.System{}
	}
	marker := fmt.Sprintf("murmur-doctor-%d", time.Now().UnixNano())

	type cbResult struct {
		got   string
		err   error
		phase string
	}
	ch := make(chan cbResult, 1)
	go func() {
		prev, _ := cb.Read()
		if err := cb.Write(marker); err != nil {
			ch <- cbResult{err: err, phase: "write"}
			return
		}
		got, err := cb.Read()
		cb.Write(prev)
		ch <- cbResult{got: got, err: err, phase: "read"}
	}()

	select {
	case r := <-ch:
		switch {
		case r.err != nil:
			return Result{Level: Fail, Detail: fmt.Sprintf("clipboard %s failed: %v", r.phase, r.err)}
		case r.got != marker:
			return Result{Level: Fail, Detail: fmt.Sprintf("clipboard mismatch: wrote %q, got %q", marker, r.got)}
		}
		return Result{Level: Pass, Detail: "clipboard write/read verified"}
	case <-time.After(3 * time.Second):
		return Result{Level: Fail, Detail: "clipboard timed out (clipboard tool hung, compositor not accessible?)"}
	case <-ctx.Done():
		return Result{Level: Fail, Detail: ctx.Err().Error()}
	}
}

func (env *Env) checkKeyboard(context.Context) Result {
	kb := env.Keyboard
	if kb == nil {
		method, timeout := "auto", 5*time.Second
		if env.Config != nil {
			method, timeout = env.Config.Delivery.InputMethod, env.Config.Delivery.CommandTimeout
		}
		var err error
		kb, err = clipboard.NewKeyboard(method, timeout)
		if err != nil {
			return Result{Level: Warn, Detail: err.Error() + "; text will only be copied",
				Fix: "install wtype (Wayland) or xdotool (X11), or: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput"}
		}
	}
	if !kb.Ready() {
		return Result{Level: Warn, Detail: kb.Name() + " is not usable; text will only be copied"}
	}
	return Result{Level: Pass, Detail: kb.Name() + " ready"}
}

func (env *Env) checkMicrophone(context.Context) Result {
	actx := env.Audio
	if actx == nil {
		var err error
		actx, err = audio.NewContext()
		if err != nil {
			return Result{Level: Fail, Detail: "cannot connect to audio: " + err.Error()}
		}
		defer actx.Close()
	}
	name := "default"
	cfg := audio.CaptureConfig{SampleRate: audio.DefaultSampleRate, Channels: audio.DefaultChannels}
	if env.Config != nil {
		name = env.Config.Audio.Device
		cfg = env.Config.CaptureConfig()
	}
	dev, err := audio.FindDevice(actx, name)
	if err != nil {
		return Result{Level: Fail, Detail: err.Error(), Fix: "pick one with: murmur devices"}
	}

	// open the stream briefly to prove the device accepts our format
	rec := audio.NewRecorder(actx, "", false)
	r, err := rec.Start(dev, cfg)
	if err != nil {
		return Result{Level: Fail, Detail: err.Error()}
	}
	time.Sleep(200 * time.Millisecond)
	frames := r.Frames()
	rec.Abort(r)

	label := "default input"
	if dev != nil {
		label = dev.Name
	}
	if frames == 0 {
		return Result{Level: Warn, Detail: label + " opened but delivered no samples"}
	}
	if dev != nil && audio.IsBluetooth(dev.Name) {
		return Result{Level: Warn, Detail: label + " is bluetooth; expect lower quality"}
	}
	return Result{Level: Pass, Detail: fmt.Sprintf("%s captured %d frames", label, frames)}
}

func (env *Env) checkHotkey(context.Context) Result {
	if env.Config != nil && !env.Config.Hotkey.Enabled {
		return Result{Level: Pass, Detail: "disabled in config"}
	}
	info := env.HotkeyInfo
	if info == nil {
		return Result{Level: Warn, Detail: "not probed"}
	}
	msg, err := info()
	if err != nil {
		return Result{Level: Warn, Detail: err.Error(), Fix: "bind `murmur toggle` in your window manager instead"}
	}
	return Result{Level: Pass, Detail: msg}
}
