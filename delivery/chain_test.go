package delivery

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func testOptions() Options {
	o := DefaultOptions()
	o.PreserveClipboard = false
	o.RestoreDelay = 10 * time.Millisecond
	o.VerifyTimeout = 150 * time.Millisecond
	return o
}

func TestChainMethods(t *testing.T) {
	tests := []struct {
		name   string
		direct bool
		paste  bool
		want   []Method
	}{
		{"all", true, true, []Method{Direct, ClipboardPaste, ClipboardOnly}},
		{"no direct", false, true, []Method{ClipboardPaste, ClipboardOnly}},
		{"auto paste off", true, false, []Method{ClipboardOnly}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOptions()
			o.Direct, o.AutoPaste = tt.direct, tt.paste
			c := NewChain(NewFakeClipboard(""), NewFakeKeyboard(true), o)
			if got := c.Methods(); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeliverDirect(t *testing.T) {
	cb := NewFakeClipboard("old")
	kb := NewFakeKeyboard(true)
	o := testOptions()
	o.Direct = true
	out := NewChain(cb, kb, o).Deliver(context.Background(), "hello world")

	if out.Status != Delivered || out.Method != Direct {
		t.Fatalf("got %s/%s, want delivered/direct", out.Status, out.Method)
	}
	if got := kb.Typed(); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("typed %q", got)
	}
	if cb.Text() != "old" {
		t.Errorf("clipboard touched: %q", cb.Text())
	}
}

func TestDeliverKeyboardUnavailable(t *testing.T) {
	cb := NewFakeClipboard("")
	kb := NewFakeKeyboard(false)
	o := testOptions()
	o.Direct = true
	// keyboard not ready: typing and paste both fail, the text still lands
	out := NewChain(cb, kb, o).Deliver(context.Background(), "hello world")

	if out.Status != DeliveredViaFallback {
		t.Fatalf("got %s, want %s", out.Status, DeliveredViaFallback)
	}
	if out.Method != ClipboardOnly {
		t.Errorf("got %s, want %s", out.Method, ClipboardOnly)
	}
	if cb.Text() != "hello world" {
		t.Errorf("clipboard = %q, want %q", cb.Text(), "hello world")
	}
}

func TestDeliverPasteWhenTypingFails(t *testing.T) {
	cb := NewFakeClipboard("")
	kb := NewFakeKeyboard(true)
	kb.TypeErr = errors.New("unsupported character")
	o := testOptions()
	o.Direct = true
	out := NewChain(cb, kb, o).Deliver(context.Background(), "hello world")

	if out.Status != DeliveredViaFallback || out.Method != ClipboardPaste {
		t.Fatalf("got %s/%s, want fallback/clipboard_paste", out.Status, out.Method)
	}
	if kb.Pastes() != 1 {
		t.Errorf("pastes = %d, want 1", kb.Pastes())
	}
	if cb.Text() != "hello world" {
		t.Errorf("clipboard = %q", cb.Text())
	}
}

func TestDeliverPasteFailsNeverFailed(t *testing.T) {
	cb := NewFakeClipboard("")
	kb := NewFakeKeyboard(true)
	kb.TypeErr = errors.New("no typing")
	kb.PasteErr = errors.New("no paste")
	o := testOptions()
	o.Direct = true
	out := NewChain(cb, kb, o).Deliver(context.Background(), "hello world")

	if out.Status == Failed {
		t.Fatalf("delivery failed: %v", out.Err)
	}
	if out.Method != ClipboardOnly {
		t.Errorf("got %s, want %s", out.Method, ClipboardOnly)
	}
	if cb.Text() != "hello world" {
		t.Errorf("clipboard = %q, want %q", cb.Text(), "hello world")
	}
}

func TestDeliverAutoPasteOffIsDelivered(t *testing.T) {
	cb := NewFakeClipboard("")
	kb := NewFakeKeyboard(true)
	o := testOptions()
	o.AutoPaste = false
	out := NewChain(cb, kb, o).Deliver(context.Background(), "note")
	if out.Status != Delivered || out.Method != ClipboardOnly {
		t.Fatalf("got %s/%s", out.Status, out.Method)
	}
	if kb.Pastes() != 0 {
		t.Error("paste should not run with auto paste off")
	}
}

func TestDeliverClipboardUnavailable(t *testing.T) {
	cb := NewFakeClipboard("")
	cb.WriteErr = errors.New("no xclip")
	out := NewChain(cb, NewFakeKeyboard(true), testOptions()).Deliver(context.Background(), "x")

	if out.Status != Failed {
		t.Fatalf("got %s, want failed", out.Status)
	}
	var derr *Error
	if !errors.As(out.Err, &derr) || derr.Kind != ClipboardUnavailable {
		t.Fatalf("got %v, want ClipboardUnavailable", out.Err)
	}
	if derr.Terminal() {
		t.Error("delivery errors are not terminal")
	}
	if out.Reason == "" {
		t.Error("missing reason")
	}
}

func TestDeliverVerifyMismatch(t *testing.T) {
	cb := NewFakeClipboard("owned by someone else")
	cb.Frozen = true
	kb := NewFakeKeyboard(true)
	out := NewChain(cb, kb, testOptions()).Deliver(context.Background(), "hello")

	if out.Method != ClipboardOnly {
		t.Fatalf("got %s, want %s", out.Method, ClipboardOnly)
	}
	if kb.Pastes() != 0 {
		t.Error("paste must not run when the clipboard does not hold the text")
	}
}

func TestDeliverRestoresClipboardAfterPaste(t *testing.T) {
	cb := NewFakeClipboard("previous")
	o := testOptions()
	o.PreserveClipboard = true
	c := NewChain(cb, NewFakeKeyboard(true), o)

	out := c.Deliver(context.Background(), "hello")
	if out.Method != ClipboardPaste {
		t.Fatalf("got %s", out.Method)
	}
	c.Wait()
	if cb.Text() != "previous" {
		t.Errorf("clipboard = %q, want %q", cb.Text(), "previous")
	}
}

func TestDeliverKeepsTextWhenClipboardOnly(t *testing.T) {
	cb := NewFakeClipboard("previous")
	o := testOptions()
	o.PreserveClipboard = true
	o.AutoPaste = false
	c := NewChain(cb, NewFakeKeyboard(true), o)

	c.Deliver(context.Background(), "hello")
	c.Wait()
	if cb.Text() != "hello" {
		t.Errorf("clipboard = %q, want %q", cb.Text(), "hello")
	}
}

func TestRestoreSkippedWhenClipboardChanged(t *testing.T) {
	cb := NewFakeClipboard("previous")
	o := testOptions()
	o.PreserveClipboard = true
	o.RestoreDelay = 50 * time.Millisecond
	c := NewChain(cb, NewFakeKeyboard(true), o)

	c.Deliver(context.Background(), "hello")
	cb.Write("copied by user")
	c.Wait()
	if cb.Text() != "copied by user" {
		t.Errorf("clipboard = %q, want the user's copy kept", cb.Text())
	}
}
