// Package delivery puts transcribed text into the focused application,
// falling back from typing to clipboard+paste to clipboard-only.
package delivery

import (
	"context"
	"sync"
	"time"

	"murmur/clipboard"
	"murmur/log"
)

type Status string

const (
	Delivered            Status = "delivered"
	DeliveredViaFallback Status = "delivered_via_fallback"
	Failed               Status = "failed"
)

type Outcome struct {
	Status Status
	// Method is the step that succeeded, or the last one tried on failure.
	Method  Method
	Reason  string
	Err     error
	Elapsed time.Duration
}

type Options struct {
	// Direct enables typing the text before trying the clipboard.
	Direct bool
	// AutoPaste off means the text only lands on the clipboard.
	AutoPaste         bool
	PreserveClipboard bool
	RestoreDelay      time.Duration
	VerifyTimeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		AutoPaste:         true,
		PreserveClipboard: true,
		RestoreDelay:      600 * time.Millisecond,
		VerifyTimeout:     time.Second,
	}
}

// Chain runs the delivery steps in order and stops at the first success.
type Chain struct {
	cb    Clipboard
	opts  Options
	steps []Strategy
	wg    sync.WaitGroup
}

func NewChain(cb Clipboard, kb clipboard.Keyboard, opts Options) *Chain {
	if kb == nil {
		kb = clipboard.Disabled{}
	}
	c := &Chain{cb: cb, opts: opts}
	if opts.AutoPaste {
		if opts.Direct {
			c.steps = append(c.steps, typing{kb: kb})
		}
		c.steps = append(c.steps, pasting{cb: cb, kb: kb, verifyTimeout: opts.VerifyTimeout})
	}
	c.steps = append(c.steps, copying{cb: cb})
	return c
}

// Methods lists the steps in the order they are tried.
func (c *Chain) Methods() []Method {
	out := make([]Method, len(c.steps))
	for i, s := range c.steps {
		out[i] = s.Method()
	}
	return out
}

func (c *Chain) Deliver(ctx context.Context, text string) Outcome {
	start := time.Now()
	var (
		snapshot string
		haveSnap bool
		snapped  bool
		lastErr  error
		last     Method
	)
	for i, step := range c.steps {
		m := step.Method()
		if c.opts.PreserveClipboard && usesClipboard(m) && !snapped {
			snapped = true
			// a failed read just means nothing to restore
			if prev, err := c.cb.Read(); err == nil && prev != "" {
				snapshot, haveSnap = prev, true
			}
		}
		last = m
		err := step.Deliver(ctx, text)
		if err == nil {
			out := Outcome{Status: Delivered, Method: m, Elapsed: time.Since(start)}
			if i > 0 {
				out.Status = DeliveredViaFallback
			}
			if m == ClipboardPaste && haveSnap && snapshot != text {
				c.restoreLater(snapshot, text)
			}
			log.DeliveryResult(string(out.Status), string(m), out.Elapsed)
			return out
		}
		lastErr = err
		log.Warnf("delivery_step_failed method=%s: %v", m, err)
	}
	out := Outcome{Status: Failed, Method: last, Err: lastErr, Elapsed: time.Since(start)}
	if lastErr != nil {
		out.Reason = lastErr.Error()
	}
	log.DeliveryResult(string(out.Status), string(last), out.Elapsed)
	return out
}

// restoreLater puts prev back once the paste has had time to land, unless
// something else replaced the clipboard in the meantime.
func (c *Chain) restoreLater(prev, pasted string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		time.Sleep(c.opts.RestoreDelay)
		if cur, err := c.cb.Read(); err == nil && cur != pasted {
			return
		}
		if err := c.cb.Write(prev); err != nil {
			log.Warnf("clipboard_restore_failed: %v", err)
		}
	}()
}

// Wait blocks until pending clipboard restores finish.
func (c *Chain) Wait() {
	c.wg.Wait()
}
