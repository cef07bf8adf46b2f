package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"murmur/log"
)

const observerQueue = 64

// dispatcher fans events out to observers, one goroutine and queue each.
type dispatcher struct {
	sinks   []*sink
	wg      sync.WaitGroup
	closed  atomic.Bool
	timeout time.Duration
}

type sink struct {
	obs     Observer
	ch      chan Event
	dropped atomic.Int64
}

func newDispatcher(observers []Observer) *dispatcher {
	d := &dispatcher{timeout: 2 * time.Second}
	for _, o := range observers {
		if o == nil {
			continue
		}
		s := &sink{obs: o, ch: make(chan Event, observerQueue)}
		d.sinks = append(d.sinks, s)
		d.wg.Add(1)
		go d.loop(s)
	}
	return d
}

func (d *dispatcher) loop(s *sink) {
	defer d.wg.Done()
	for e := range s.ch {
		deliverEvent(s.obs, e)
	}
}

func deliverEvent(o Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("observer_panic %T event=%s: %v", o, e.Kind, r)
		}
	}()
	o.Notify(e)
}

func (d *dispatcher) emit(e Event) {
	if d.closed.Load() {
		return
	}
	for _, s := range d.sinks {
		select {
		case s.ch <- e:
		default:
			if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Warnf("event_dropped observer=%T kind=%s total=%d", s.obs, e.Kind, n)
			}
		}
	}
}

// close flushes queued events, giving up on observers that stay blocked.
func (d *dispatcher) close() error {
	if d.closed.Swap(true) {
		return nil
	}
	for _, s := range d.sinks {
		close(s.ch)
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(d.timeout):
		return fmt.Errorf("observers still busy after %v", d.timeout)
	}
}
