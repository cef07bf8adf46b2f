package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"murmur/clipboard"
)

type Method string

const (
	Direct         Method = "direct"
	ClipboardPaste Method = "clipboard_paste"
	ClipboardOnly  Method = "clipboard_only"
)

// Clipboard is the subset of the system clipboard delivery needs.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// Strategy is one way of getting text into the focused application.
type Strategy interface {
	Method() Method
	Deliver(ctx context.Context, text string) error
}

// typing sends the text as keystrokes.
type typing struct {
	kb clipboard.Keyboard
}

func (s typing) Method() Method { return Direct }

func (s typing) Deliver(ctx context.Context, text string) error {
	if !s.kb.Ready() {
		return &Error{Kind: InjectionUnavailable, Method: Direct, Reason: s.kb.Name() + " not initialized"}
	}
	if err := s.kb.Type(ctx, text); err != nil {
		return &Error{Kind: InjectionUnavailable, Method: Direct, Err: err}
	}
	return nil
}

// pasting copies the text, waits until the clipboard reads it back and then
// presses the paste chord.
type pasting struct {
	cb            Clipboard
	kb            clipboard.Keyboard
	verifyTimeout time.Duration
}

func (s pasting) Method() Method { return ClipboardPaste }

func (s pasting) Deliver(ctx context.Context, text string) error {
	if err := s.cb.Write(text); err != nil {
		return &Error{Kind: ClipboardUnavailable, Method: ClipboardPaste, Err: err}
	}
	if err := verify(ctx, s.cb, text, s.verifyTimeout); err != nil {
		return &Error{Kind: VerifyFailed, Method: ClipboardPaste, Err: err}
	}
	if !s.kb.Ready() {
		return &Error{Kind: PasteFailed, Method: ClipboardPaste, Reason: s.kb.Name() + " not initialized"}
	}
	if err := s.kb.Paste(ctx); err != nil {
		return &Error{Kind: PasteFailed, Method: ClipboardPaste, Err: err}
	}
	return nil
}

var errMismatch = errors.New("clipboard content does not match")

// verify polls the clipboard until it holds text or the budget runs out.
// Clipboard managers on X11 and Wayland take a moment to take ownership.
func verify(ctx context.Context, cb Clipboard, text string, budget time.Duration) error {
	if budget <= 0 {
		budget = time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 200 * time.Millisecond
	b.RandomizationFactor = 0

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		got, err := cb.Read()
		if err != nil {
			return struct{}{}, err
		}
		if got != text {
			return struct{}{}, errMismatch
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(budget))
	return err
}

// copying only leaves the text on the clipboard.
type copying struct {
	cb Clipboard
}

func (s copying) Method() Method { return ClipboardOnly }

func (s copying) Deliver(_ context.Context, text string) error {
	if err := s.cb.Write(text); err != nil {
		return &Error{Kind: ClipboardUnavailable, Method: ClipboardOnly, Err: err}
	}
	return nil
}

func usesClipboard(m Method) bool { return m != Direct }
