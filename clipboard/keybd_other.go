//go:build !linux

package clipboard

import (
	"context"
	"runtime"
	"sync"

	"github.com/micmonay/keybd_event"
)

// keybdKeyboard sends the platform paste chord; it cannot type text.
type keybdKeyboard struct {
	once sync.Once
	kb   keybd_event.KeyBonding
	err  error
}

var native = &keybdKeyboard{}

func newNativeKeyboard() Keyboard { return native }

func (k *keybdKeyboard) Name() string { return "keybd_event" }

func (k *keybdKeyboard) init() error {
	k.once.Do(func() {
		k.kb, k.err = keybd_event.NewKeyBonding()
	})
	return k.err
}

func (k *keybdKeyboard) Ready() bool { return k.init() == nil }

func (k *keybdKeyboard) Type(context.Context, string) error { return ErrTypeUnsupported }

func (k *keybdKeyboard) Paste(context.Context) error {
	if err := k.init(); err != nil {
		return err
	}
	k.kb.Clear()
	k.kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		k.kb.HasSuper(true) // Cmd+V
	} else {
		k.kb.HasCTRL(true)
	}
	return k.kb.Launching()
}
