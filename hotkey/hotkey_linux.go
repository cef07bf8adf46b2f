//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"murmur/log"
)

const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keySpace   = 57
)

// struct input_event on 64-bit: 16 bytes timeval, type, code, value
const inputEventSize = 24

// the virtual keyboard murmur registers for pasting
const ownDevice = "murmur-keyboard"

var errNoKeyboard = errors.New("no keyboard devices found (is the user in the 'input' group?)")

// evdevHotkey reads every keyboard under /dev/input directly, which works
// the same on X11 and Wayland.
type evdevHotkey struct {
	keydown chan struct{}
	keyup   chan struct{}
	files   []*os.File
	once    sync.Once
}

func New() Hotkey {
	return &evdevHotkey{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *evdevHotkey) Register() error {
	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("finding keyboards: %w", err)
	}
	if len(keyboards) == 0 {
		return errNoKeyboard
	}
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			log.Debugf("hotkey_open path=%s: %v", path, err)
			continue
		}
		h.files = append(h.files, f)
		go h.readEvents(f)
	}
	if len(h.files) == 0 {
		return fmt.Errorf("could not open any keyboard device (run: sudo usermod -aG input $USER, then re-login)")
	}
	return nil
}

func (h *evdevHotkey) readEvents(f *os.File) {
	buf := make([]byte, inputEventSize*16)
	var ch chord
	for {
		// Unregister closes f, which ends the read with an error
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			typ := binary.LittleEndian.Uint16(buf[i+16:])
			if typ != evKey {
				continue
			}
			code := binary.LittleEndian.Uint16(buf[i+18:])
			value := int32(binary.LittleEndian.Uint32(buf[i+20:]))
			switch ch.feed(code, value) {
			case chordDown:
				signal(h.keydown)
			case chordUp:
				signal(h.keyup)
			}
		}
	}
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

type chordEdge int

const (
	chordNone chordEdge = iota
	chordDown
	chordUp
)

// chord tracks Ctrl+Shift+Space on one device. Autorepeat (value 2) keeps
// the held state without producing edges.
type chord struct {
	ctrl, shift, space bool
}

func (c *chord) feed(code uint16, value int32) chordEdge {
	pressed := value == keyPress
	released := value == keyRelease
	switch code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = pressed || (!released && c.ctrl)
	case keyLShift, keyRShift:
		c.shift = pressed || (!released && c.shift)
	case keySpace:
		if pressed && !c.space && c.ctrl && c.shift {
			c.space = true
			return chordDown
		}
		if released && c.space {
			c.space = false
			return chordUp
		}
	}
	return chordNone
}

func (h *evdevHotkey) Unregister() {
	h.once.Do(func() {
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *evdevHotkey) Keydown() <-chan struct{} { return h.keydown }

func (h *evdevHotkey) Keyup() <-chan struct{} { return h.keyup }

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}
	var keyboards []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "event") || !isKeyboard(name) {
			continue
		}
		keyboards = append(keyboards, filepath.Join("/dev/input", name))
	}
	return keyboards, nil
}

func isKeyboard(eventName string) bool {
	dev := filepath.Join("/sys/class/input", eventName, "device")
	if name, err := os.ReadFile(filepath.Join(dev, "name")); err == nil && strings.TrimSpace(string(name)) == ownDevice {
		return false
	}
	caps, err := os.ReadFile(filepath.Join(dev, "capabilities", "key"))
	if err != nil {
		return false
	}
	// mice and power buttons report a short key bitmap
	return len(strings.TrimSpace(string(caps))) > 10
}

// Diagnose reports whether the chord can be watched, without registering.
func Diagnose() (string, error) {
	keyboards, err := findKeyboards()
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return "", errNoKeyboard
	}
	for _, path := range keyboards {
		if f, err := os.Open(path); err == nil {
			f.Close()
			return fmt.Sprintf("%d keyboard(s) found, opened %s", len(keyboards), path), nil
		}
	}
	return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(keyboards))
}
