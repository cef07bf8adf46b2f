package hotkey

import (
	"context"
	"sync"
	"testing"
	"time"

	"murmur/session"
)

// fakeToggler flips between idle and recording like the orchestrator does.
type fakeToggler struct {
	mu        sync.Mutex
	recording bool
	calls     int
	ch        chan session.Action
}

func newToggler() *fakeToggler {
	return &fakeToggler{ch: make(chan session.Action, 8)}
}

func (f *fakeToggler) toggle(context.Context) (session.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	a := session.ActionStarted
	if f.recording {
		a = session.ActionStopping
	}
	f.recording = !f.recording
	f.ch <- a
	return session.Ack{Action: a}, nil
}

func (f *fakeToggler) status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recording {
		return session.Status{State: session.Recording}
	}
	return session.Status{State: session.Idle}
}

// end closes the recording without a toggle, as a capture failure does.
func (f *fakeToggler) end() {
	f.mu.Lock()
	f.recording = false
	f.mu.Unlock()
}

func (f *fakeToggler) wait(t *testing.T, want session.Action) {
	t.Helper()
	select {
	case got := <-f.ch:
		if got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func (f *fakeToggler) quiet(t *testing.T) {
	t.Helper()
	select {
	case got := <-f.ch:
		t.Fatalf("unexpected toggle: %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func start(t *testing.T, longPress time.Duration) (*FakeHotkey, *fakeToggler) {
	t.Helper()
	fk := NewFake()
	ft := newToggler()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, fk, longPress, ft.toggle, ft.status)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return fk, ft
}

func TestTapToggles(t *testing.T) {
	fk, ft := start(t, 200*time.Millisecond)

	fk.SimKeydown()
	ft.wait(t, session.ActionStarted)
	fk.SimKeyup()
	ft.quiet(t)

	fk.SimKeydown()
	ft.wait(t, session.ActionStopping)
	fk.SimKeyup()
	ft.quiet(t)
}

func TestHoldIsPushToTalk(t *testing.T) {
	threshold := 50 * time.Millisecond
	fk, ft := start(t, threshold)

	fk.SimKeydown()
	ft.wait(t, session.ActionStarted)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	ft.wait(t, session.ActionStopping)
}

func TestLongPressThatStopsDoesNotRestart(t *testing.T) {
	threshold := 50 * time.Millisecond
	fk, ft := start(t, threshold)

	fk.SimKeydown()
	ft.wait(t, session.ActionStarted)
	fk.SimKeyup()

	// held long, but this press stopped the recording
	fk.SimKeydown()
	ft.wait(t, session.ActionStopping)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	ft.quiet(t)
}

func TestHoldAfterRecordingEndedDoesNotRestart(t *testing.T) {
	threshold := 50 * time.Millisecond
	fk, ft := start(t, threshold)

	fk.SimKeydown()
	ft.wait(t, session.ActionStarted)
	ft.end()
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	ft.quiet(t)

	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.calls != 1 {
		t.Errorf("toggles = %d, want 1", ft.calls)
	}
	if ft.recording {
		t.Error("release started a new recording")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	fk := NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ft := newToggler()
		Run(ctx, fk, time.Second, ft.toggle, ft.status)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
