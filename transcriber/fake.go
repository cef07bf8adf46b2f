package transcriber

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// FakeProvider returns a canned text or error and records its calls.
type FakeProvider struct {
	text  string
	err   error
	delay time.Duration

	calls atomic.Int32
	mu    sync.Mutex
	last  Audio
	lang  string
	// Started, if non-nil, receives one value per Transcribe call before the delay.
	Started chan struct{}
}

func NewFake(text string, err error) *FakeProvider {
	return &FakeProvider{text: text, err: err}
}

// WithDelay makes every call block for d (or until ctx is done).
func (f *FakeProvider) WithDelay(d time.Duration) *FakeProvider {
	f.delay = d
	return f
}

func (f *FakeProvider) Name() string { return "fake" }
func (f *FakeProvider) Kind() Kind { return "fake" }
func (f *FakeProvider) IsAvailable() bool { return true }

func (f *FakeProvider) Calls() int { return int(f.calls.Load()) }

func (f *FakeProvider) Last() (Audio, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.lang
}

func (f *FakeProvider) Transcribe(ctx context.Context, audio Audio, language string) (*Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last, f.lang = audio, language
	f.mu.Unlock()

	if f.Started != nil {
		f.Started <- struct{}{}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &Error{Kind: Timeout, Provider: "fake", Reason: "cancelled", Err: ctx.Err()}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Text: f.text, Elapsed: f.delay}, nil
}
