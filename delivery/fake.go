package delivery

import (
	"context"
	"errors"
	"sync"
)

// FakeClipboard is an in-memory clipboard for tests.
type FakeClipboard struct {
	mu       sync.Mutex
	text     string
	writes   []string
	ReadErr  error
	WriteErr error
	// Frozen makes writes succeed without changing the content, like a
	// clipboard manager that grabs ownership back.
	Frozen bool
}

func NewFakeClipboard(initial string) *FakeClipboard {
	return &FakeClipboard{text: initial}
}

func (c *FakeClipboard) Read() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return "", c.ReadErr
	}
	return c.text, nil
}

func (c *FakeClipboard) Write(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.writes = append(c.writes, text)
	if !c.Frozen {
		c.text = text
	}
	return nil
}

// Text returns the content without going through ReadErr.
func (c *FakeClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *FakeClipboard) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

// FakeKeyboard records typing and paste requests.
type FakeKeyboard struct {
	mu       sync.Mutex
	ready    bool
	typed    []string
	pastes   int
	TypeErr  error
	PasteErr error
}

func NewFakeKeyboard(ready bool) *FakeKeyboard {
	return &FakeKeyboard{ready: ready}
}

func (k *FakeKeyboard) Name() string { return "fake" }

func (k *FakeKeyboard) Ready() bool { return k.ready }

func (k *FakeKeyboard) Type(_ context.Context, text string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.ready {
		return errors.New("not ready")
	}
	if k.TypeErr != nil {
		return k.TypeErr
	}
	k.typed = append(k.typed, text)
	return nil
}

func (k *FakeKeyboard) Paste(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.PasteErr != nil {
		return k.PasteErr
	}
	k.pastes++
	return nil
}

func (k *FakeKeyboard) Typed() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.typed...)
}

func (k *FakeKeyboard) Pastes() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pastes
}
