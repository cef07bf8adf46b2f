//go:build linux

package clipboard

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"
)

// ioctl constants from linux/uinput.h
const (
	uiSetEvbit  = 0x40045564 // UI_SET_EVBIT
	uiSetKeybit = 0x40045565 // UI_SET_KEYBIT
	uiDevCreate = 0x5501     // UI_DEV_CREATE
)

// input event types from linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01

	keyLeftCtrl  = 29
	keyLeftShift = 42
	keyV         = 47
)

const busUSB = 0x03

type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FfEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

// uinputKeyboard registers a virtual keyboard named "murmur-keyboard". Works
// on X11 and every Wayland compositor, but needs write access to /dev/uinput.
type uinputKeyboard struct {
	once sync.Once
	mu   sync.Mutex
	fd   *os.File
	err  error
}

// one virtual device per process; a second would confuse the compositor
var native = &uinputKeyboard{}

func newNativeKeyboard() Keyboard { return native }

func (k *uinputKeyboard) Name() string { return "uinput" }

func (k *uinputKeyboard) Ready() bool { return k.init() == nil }

func (k *uinputKeyboard) init() error {
	k.once.Do(func() {
		k.fd, k.err = openUinput()
	})
	return k.err
}

func openUinput() (*os.File, error) {
	path := "/dev/uinput"
	if _, err := os.Stat(path); err != nil {
		path = "/dev/input/uinput"
		if _, err := os.Stat(path); err != nil {
			return nil, errors.New("uinput device not found, try: sudo modprobe uinput")
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	ioctl := func(req, arg uintptr) error {
		if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), req, arg); errno != 0 {
			return errno
		}
		return nil
	}
	fail := func(err error) (*os.File, error) {
		f.Close()
		return nil, err
	}

	if err := ioctl(uiSetEvbit, evKey); err != nil {
		return fail(err)
	}
	if err := ioctl(uiSetEvbit, evSyn); err != nil {
		return fail(err)
	}
	// register all standard keys so udev classifies this as a keyboard
	for i := uintptr(0); i < 256; i++ {
		if err := ioctl(uiSetKeybit, i); err != nil {
			return fail(err)
		}
	}

	dev := uinputUserDev{}
	copy(dev.Name[:], "murmur-keyboard")
	dev.ID = inputID{Bustype: busUSB, Vendor: 0x1234, Product: 0x5679, Version: 1}
	if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
		return fail(err)
	}
	if err := ioctl(uiDevCreate, 0); err != nil {
		return fail(err)
	}
	// compositor needs a moment to pick up the new device
	time.Sleep(200 * time.Millisecond)
	return f, nil
}

func (k *uinputKeyboard) emit(typ, code uint16, value int32) error {
	if err := binary.Write(k.fd, binary.LittleEndian, &inputEvent{Type: typ, Code: code, Value: value}); err != nil {
		return err
	}
	return binary.Write(k.fd, binary.LittleEndian, &inputEvent{Type: evSyn})
}

// chord presses mods then key, and releases in reverse order.
func (k *uinputKeyboard) chord(key uint16, mods ...uint16) error {
	for _, m := range mods {
		if err := k.emit(evKey, m, 1); err != nil {
			return err
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := k.emit(evKey, key, 1); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	if err := k.emit(evKey, key, 0); err != nil {
		return err
	}
	for i := len(mods) - 1; i >= 0; i-- {
		if err := k.emit(evKey, mods[i], 0); err != nil {
			return err
		}
	}
	return nil
}

func (k *uinputKeyboard) Paste(ctx context.Context) error {
	if err := k.init(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.chord(keyV, keyLeftCtrl)
}

// Type sends text as US-layout keystrokes. Characters with no key on that
// layout make it fail so the caller can fall back to pasting.
func (k *uinputKeyboard) Type(ctx context.Context, text string) error {
	if err := k.init(); err != nil {
		return err
	}
	for _, r := range text {
		if _, _, ok := keyFor(r); !ok {
			return ErrTypeUnsupported
		}
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		code, shift, _ := keyFor(r)
		var mods []uint16
		if shift {
			mods = append(mods, keyLeftShift)
		}
		if err := k.chord(code, mods...); err != nil {
			return err
		}
	}
	return nil
}
