package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"murmur/audio"
	"murmur/delivery"
	"murmur/transcriber"
)

// eventLog collects events and lets a test wait for a particular kind.
type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventLog() *eventLog {
	return &eventLog{ch: make(chan Event, 256)}
}

func (l *eventLog) Notify(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	l.ch <- e
}

func (l *eventLog) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-l.ch:
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s (saw %v)", kind, l.kinds())
			return Event{}
		}
	}
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

func (l *eventLog) has(kind EventKind) bool {
	for _, k := range l.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

type harness struct {
	orch   *Orchestrator
	audio  *audio.FakeContext
	clip   *delivery.FakeClipboard
	kb     *delivery.FakeKeyboard
	events *eventLog
	dir    string
	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, pcm []byte, p transcriber.Provider, observers ...Observer) *harness {
	t.Helper()
	h := &harness{
		audio:  audio.NewFakeContext(pcm, false),
		clip:   delivery.NewFakeClipboard(""),
		kb:     delivery.NewFakeKeyboard(true),
		events: newEventLog(),
		dir:    t.TempDir(),
		done:   make(chan error, 1),
	}
	opts := delivery.DefaultOptions()
	opts.PreserveClipboard = false
	opts.VerifyTimeout = 200 * time.Millisecond
	chain := delivery.NewChain(h.clip, h.kb, opts)

	rec := audio.NewRecorder(h.audio, h.dir, false)
	h.orch = New(rec, p, chain, DefaultOptions(), append([]Observer{h.events}, observers...)...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.orch.Run(ctx) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

func (h *harness) toggle(t *testing.T) Ack {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ack, err := h.orch.Toggle(ctx)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	return ack
}

// waitIdle polls Status until the cycle has ended.
func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.orch.Status().State != Idle {
		if time.Now().After(deadline) {
			t.Fatalf("still %s", h.orch.Status().State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func tone(d time.Duration) []byte { return audio.Tone(16000, d, 440) }

func TestFullCycle(t *testing.T) {
	p := transcriber.NewFake("hello world", nil)
	h := newHarness(t, tone(time.Second), p)

	if ack := h.toggle(t); ack.Action != ActionStarted || ack.State != Recording {
		t.Fatalf("first toggle: %+v", ack)
	}
	if got := h.orch.Status().State; got != Recording {
		t.Errorf("state = %s, want recording", got)
	}
	if ack := h.toggle(t); ack.Action != ActionStopping || ack.State != Processing {
		t.Fatalf("second toggle: %+v", ack)
	}

	e := h.events.waitFor(t, DeliverySucceeded)
	if e.Method != delivery.ClipboardPaste {
		t.Errorf("method = %s, want clipboard_paste", e.Method)
	}
	h.waitIdle(t)

	want := []EventKind{RecordingStarted, RecordingStopped, ProcessingStarted, TranscriptionSucceeded, DeliverySucceeded}
	got := h.events.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if h.clip.Text() != "hello world" {
		t.Errorf("clipboard = %q", h.clip.Text())
	}
	if h.kb.Pastes() != 1 {
		t.Errorf("pastes = %d, want 1", h.kb.Pastes())
	}
	entries, _ := os.ReadDir(h.dir)
	if len(entries) != 0 {
		t.Errorf("asset not cleaned up: %d files left", len(entries))
	}
	if st := h.orch.Status(); st.Cycles != 1 || st.Provider != "fake" {
		t.Errorf("status = %+v", st)
	}
}

func TestTranscriptionSucceededCountsChars(t *testing.T) {
	h := newHarness(t, tone(time.Second), transcriber.NewFake("héllo", nil))
	h.toggle(t)
	h.toggle(t)
	e := h.events.waitFor(t, TranscriptionSucceeded)
	if e.Chars != 5 {
		t.Errorf("chars = %d, want 5", e.Chars)
	}
	if e.State != Delivering {
		t.Errorf("state = %s, want delivering", e.State)
	}
}

func TestSilenceSkipsProvider(t *testing.T) {
	p := transcriber.NewFake("should not happen", nil)
	h := newHarness(t, audio.Silence(16000, time.Second), p)

	h.toggle(t)
	ack := h.toggle(t)
	if ack.State != Idle {
		t.Errorf("ack state = %s, want idle", ack.State)
	}
	e := h.events.waitFor(t, RecordingEmpty)
	if e.State != Idle {
		t.Errorf("event state = %s, want idle", e.State)
	}
	if e.Session == "" {
		t.Error("RecordingEmpty has no session id")
	}
	h.waitIdle(t)

	if p.Calls() != 0 {
		t.Errorf("provider called %d times", p.Calls())
	}
	if h.events.has(ProcessingStarted) {
		t.Error("ProcessingStarted emitted for an empty recording")
	}
}

func TestToggleWhileProcessingIsBusy(t *testing.T) {
	p := transcriber.NewFake("done", nil).WithDelay(300 * time.Millisecond)
	p.Started = make(chan struct{}, 1)
	h := newHarness(t, tone(time.Second), p)

	h.toggle(t)
	h.toggle(t)
	<-p.Started

	for i := 0; i < 3; i++ {
		ack := h.toggle(t)
		if ack.Action != ActionBusy {
			t.Fatalf("toggle %d: got %s, want busy", i, ack.Action)
		}
		if ack.State != Processing {
			t.Errorf("toggle %d: state = %s, want processing", i, ack.State)
		}
	}

	h.events.waitFor(t, DeliverySucceeded)
	h.waitIdle(t)
	if p.Calls() != 1 {
		t.Errorf("provider called %d times, want 1", p.Calls())
	}
	if st := h.orch.Status(); st.Cycles != 1 {
		t.Errorf("cycles = %d, want 1", st.Cycles)
	}
}

func TestCloudInvalidCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	t.Cleanup(srv.Close)

	p := transcriber.NewCloud(transcriber.Config{Kind: transcriber.KindOpenAI, APIKey: "sk-invalid0000", Endpoint: srv.URL})
	h := newHarness(t, tone(2*time.Second), p)

	h.toggle(t)
	h.toggle(t)
	e := h.events.waitFor(t, TranscriptionFailed)
	if e.ErrKind != string(transcriber.AuthError) {
		t.Errorf("kind = %s, want AuthError (%s)", e.ErrKind, e.Reason)
	}
	h.waitIdle(t)
	if h.events.has(DeliverySucceeded) || h.events.has(DeliveryFailed) {
		t.Error("delivery attempted after a failed transcription")
	}
	if h.clip.Text() != "" {
		t.Errorf("clipboard written: %q", h.clip.Text())
	}
	if h.orch.Status().LastError == "" {
		t.Error("LastError not recorded")
	}
}

func TestLocalMissingExecutable(t *testing.T) {
	// built directly: New refuses an unavailable provider at startup
	p := transcriber.NewWhisperCLI(transcriber.Config{
		Kind:        transcriber.KindWhisper,
		CommandPath: "/nonexistent/bin/whisper",
	})
	h := newHarness(t, tone(time.Second), p)

	h.toggle(t)
	h.toggle(t)
	e := h.events.waitFor(t, TranscriptionFailed)
	if e.ErrKind != string(transcriber.ExecutableNotFound) {
		t.Errorf("kind = %s, want ExecutableNotFound (%s)", e.ErrKind, e.Reason)
	}
	h.waitIdle(t)
}

func TestEmptyTranscriptIsFailure(t *testing.T) {
	h := newHarness(t, tone(time.Second), transcriber.NewFake("", nil))
	h.toggle(t)
	h.toggle(t)
	e := h.events.waitFor(t, TranscriptionFailed)
	if e.Reason != "no speech detected" {
		t.Errorf("reason = %q", e.Reason)
	}
	h.waitIdle(t)
	if len(h.clip.Writes()) != 0 {
		t.Error("empty transcript reached the clipboard")
	}
}

func TestPasteFailureFallsBackToClipboard(t *testing.T) {
	h := newHarness(t, tone(time.Second), transcriber.NewFake("hello world", nil))
	h.kb.PasteErr = errors.New("paste refused")

	h.toggle(t)
	h.toggle(t)
	e := h.events.waitFor(t, DeliverySucceeded)
	if e.Method != delivery.ClipboardOnly || !e.Fallback {
		t.Errorf("got %s fallback=%v, want clipboard_only via fallback", e.Method, e.Fallback)
	}
	if h.clip.Text() != "hello world" {
		t.Errorf("clipboard = %q, want %q", h.clip.Text(), "hello world")
	}
}

func TestDeliveryFailed(t *testing.T) {
	h := newHarness(t, tone(time.Second), transcriber.NewFake("hello", nil))
	h.clip.WriteErr = errors.New("no clipboard")

	h.toggle(t)
	h.toggle(t)
	e := h.events.waitFor(t, DeliveryFailed)
	if e.Reason == "" {
		t.Error("missing reason")
	}
	if e.State != Idle {
		t.Errorf("state = %s, want idle", e.State)
	}
}

func TestCaptureUnavailable(t *testing.T) {
	p := transcriber.NewFake("x", nil)
	h := newHarness(t, nil, p)
	h.audio.OpenErr = errors.New("no microphone")

	ack := h.toggle(t)
	if ack.Action != ActionFailed || ack.State != Idle {
		t.Fatalf("ack = %+v", ack)
	}
	e := h.events.waitFor(t, CaptureFailed)
	if e.ErrKind != string(audio.DeviceOpen) {
		t.Errorf("kind = %s, want %s", e.ErrKind, audio.DeviceOpen)
	}
	if h.orch.Status().State != Idle {
		t.Error("not idle after a failed open")
	}
	if h.events.has(RecordingStarted) {
		t.Error("RecordingStarted emitted without a stream")
	}
}

func TestCaptureInterrupted(t *testing.T) {
	p := transcriber.NewFake("x", nil)
	h := newHarness(t, tone(time.Second), p)

	h.toggle(t)
	h.audio.Last().Interrupt(errors.New("device unplugged"))

	e := h.events.waitFor(t, CaptureFailed)
	if e.ErrKind != string(audio.Interrupted) {
		t.Errorf("kind = %s, want %s", e.ErrKind, audio.Interrupted)
	}
	if e.State != Idle {
		t.Errorf("event state = %s, want idle", e.State)
	}
	if e.Session == "" {
		t.Error("CaptureFailed has no session id")
	}
	h.waitIdle(t)
	if p.Calls() != 0 {
		t.Error("provider called after an interrupted capture")
	}

	// the next toggle starts a fresh recording
	if ack := h.toggle(t); ack.Action != ActionStarted {
		t.Errorf("got %s, want started", ack.Action)
	}
}

func TestEventsCarrySessionID(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
		last EventKind
	}{
		{"delivered", "hello", nil, DeliverySucceeded},
		{"transcription failed", "", &transcriber.Error{Kind: transcriber.NetworkError, Provider: "fake", Reason: "connection refused"}, TranscriptionFailed},
		{"empty transcript", "", nil, TranscriptionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tone(time.Second), transcriber.NewFake(tt.text, tt.err))
			h.toggle(t)
			h.toggle(t)
			last := h.events.waitFor(t, tt.last)
			h.waitIdle(t)

			if last.State != Idle {
				t.Errorf("%s state = %s, want idle", tt.last, last.State)
			}
			h.events.mu.Lock()
			defer h.events.mu.Unlock()
			id := h.events.events[0].Session
			if id == "" {
				t.Fatal("RecordingStarted has no session id")
			}
			for _, e := range h.events.events {
				if e.Session != id {
					t.Errorf("%s session = %q, want %q", e.Kind, e.Session, id)
				}
			}
		})
	}
}

func TestBadObserversDoNotStall(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	panicky := ObserverFunc(func(Event) { panic("boom") })
	stuck := ObserverFunc(func(Event) { <-block })

	h := newHarness(t, tone(time.Second), transcriber.NewFake("ok", nil), panicky, stuck)
	h.toggle(t)
	h.toggle(t)
	h.events.waitFor(t, DeliverySucceeded)
	h.waitIdle(t)
}

func TestShutdownFinishesCycle(t *testing.T) {
	p := transcriber.NewFake("late text", nil).WithDelay(200 * time.Millisecond)
	p.Started = make(chan struct{}, 1)
	h := newHarness(t, tone(time.Second), p)

	h.toggle(t)
	h.toggle(t)
	<-p.Started
	h.cancel()
	if err := <-h.done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	h.done <- nil // for the cleanup stop

	if h.clip.Text() != "late text" {
		t.Errorf("clipboard = %q, cycle was not finished", h.clip.Text())
	}
	if _, err := h.orch.Toggle(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("toggle after shutdown: got %v, want ErrStopped", err)
	}
}

func TestShutdownDropsRecording(t *testing.T) {
	p := transcriber.NewFake("x", nil)
	h := newHarness(t, tone(time.Second), p)
	h.toggle(t)
	h.cancel()
	<-h.done
	h.done <- nil

	if p.Calls() != 0 {
		t.Error("recording transcribed during shutdown")
	}
	if st := h.orch.Status(); st.State != Idle {
		t.Errorf("state = %s, want idle", st.State)
	}
}

// cycleChecker fails if a recording starts while another cycle is open.
type cycleChecker struct {
	mu      sync.Mutex
	open    bool
	overlap int
	ends    int
}

func (c *cycleChecker) Notify(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e.Kind {
	case RecordingStarted:
		if c.open {
			c.overlap++
		}
		c.open = true
	case RecordingEmpty, TranscriptionFailed, DeliverySucceeded, DeliveryFailed, CaptureFailed:
		c.open = false
		c.ends++
	}
}

func TestConcurrentTogglesNeverOverlap(t *testing.T) {
	checker := &cycleChecker{}
	p := transcriber.NewFake("text", nil).WithDelay(5 * time.Millisecond)
	h := newHarness(t, tone(500*time.Millisecond), p, checker)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				h.orch.Toggle(ctx)
				cancel()
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	// close any recording left open so the last cycle ends
	if h.orch.Status().State == Recording {
		h.toggle(t)
	}
	h.waitIdle(t)
	h.stop()
	h.done <- nil

	checker.mu.Lock()
	defer checker.mu.Unlock()
	if checker.overlap != 0 {
		t.Errorf("%d recordings started inside an open cycle", checker.overlap)
	}
}
