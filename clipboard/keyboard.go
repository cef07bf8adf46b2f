package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"murmur/internal/process"
)

// ErrTypeUnsupported is returned by backends that can paste but not type.
var ErrTypeUnsupported = errors.New("backend cannot type text")

// Keyboard simulates input into the focused window.
type Keyboard interface {
	Name() string
	// Ready reports whether the backend initialized; it is checked before
	// every direct-typing attempt.
	Ready() bool
	Type(ctx context.Context, text string) error
	Paste(ctx context.Context) error
}

// NewKeyboard picks a backend. "auto" prefers tools that match the session
// type, then the built-in uinput device on linux or keybd_event elsewhere.
func NewKeyboard(method string, timeout time.Duration) (Keyboard, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	switch method {
	case "", "auto":
		for _, kb := range autoCandidates(timeout) {
			if kb.Ready() {
				return kb, nil
			}
		}
		return nil, errors.New("no input simulation backend available")
	case "wtype", "ydotool", "xdotool":
		return &toolKeyboard{tool: method, timeout: timeout}, nil
	case "uinput", "native":
		return newNativeKeyboard(), nil
	case "none":
		return Disabled{}, nil
	}
	return nil, fmt.Errorf("unknown input method %q", method)
}

func autoCandidates(timeout time.Duration) []Keyboard {
	var out []Keyboard
	if runtime.GOOS == "linux" {
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			out = append(out, &toolKeyboard{tool: "wtype", timeout: timeout})
		}
		out = append(out, &toolKeyboard{tool: "ydotool", timeout: timeout})
		if os.Getenv("DISPLAY") != "" {
			out = append(out, &toolKeyboard{tool: "xdotool", timeout: timeout})
		}
	}
	return append(out, newNativeKeyboard())
}

// Disabled never types or pastes; delivery ends at the clipboard.
type Disabled struct{}

func (Disabled) Name() string { return "none" }
func (Disabled) Ready() bool { return false }
func (Disabled) Type(context.Context, string) error { return errors.New("input simulation disabled") }
func (Disabled) Paste(context.Context) error { return errors.New("input simulation disabled") }

// toolKeyboard drives one of the external input tools.
type toolKeyboard struct {
	tool    string
	timeout time.Duration
}

func (k *toolKeyboard) Name() string { return k.tool }

func (k *toolKeyboard) Ready() bool {
	_, err := process.Resolve(k.tool)
	return err == nil
}

func (k *toolKeyboard) typeArgs(text string) []string {
	switch k.tool {
	case "wtype":
		return []string{"--", text}
	case "ydotool":
		return []string{"type", "--", text}
	default:
		return []string{"type", "--clearmodifiers", "--", text}
	}
}

func (k *toolKeyboard) pasteArgs() []string {
	switch k.tool {
	case "wtype":
		return []string{"-M", "ctrl", "-P", "v", "-m", "ctrl", "-p", "v"}
	case "ydotool":
		// KEY_LEFTCTRL=29, KEY_V=47
		return []string{"key", "29:1", "47:1", "47:0", "29:0"}
	default:
		return []string{"key", "--clearmodifiers", "ctrl+v"}
	}
}

func (k *toolKeyboard) run(ctx context.Context, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	_, err := process.Run(ctx, process.Command{Binary: k.tool, Args: args})
	if err != nil {
		return fmt.Errorf("%s: %w", k.tool, err)
	}
	return nil
}

func (k *toolKeyboard) Type(ctx context.Context, text string) error {
	// tools treat a leading newline oddly; trailing whitespace is kept
	return k.run(ctx, k.typeArgs(strings.TrimLeft(text, "\n")))
}

func (k *toolKeyboard) Paste(ctx context.Context) error {
	return k.run(ctx, k.pasteArgs())
}
