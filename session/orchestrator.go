// Package session drives one record, transcribe, deliver cycle at a time.
//
// Orchestrator.Run is the only goroutine that changes session state. Capture
// start/stop happen on it directly; transcription and delivery run on a
// worker goroutine that reports each phase back over a channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"murmur/audio"
	"murmur/delivery"
	"murmur/log"
	"murmur/transcriber"
)

// ErrStopped is returned by Toggle once Run has returned.
var ErrStopped = errors.New("orchestrator stopped")

// Recorder is the capture side of a session.
type Recorder interface {
	Start(device *audio.DeviceInfo, cfg audio.CaptureConfig) (*audio.Recording, error)
	Stop(r *audio.Recording) (*audio.Asset, error)
	Abort(r *audio.Recording)
}

// Deliverer puts text into the focused application.
type Deliverer interface {
	Deliver(ctx context.Context, text string) delivery.Outcome
}

type Options struct {
	Device  *audio.DeviceInfo
	Capture audio.CaptureConfig
	// Recordings shorter than MinDuration or quieter than SilenceThreshold
	// (peak RMS, 0..1) are dropped before transcription.
	MinDuration      time.Duration
	SilenceThreshold float64
	Language         string
}

func DefaultOptions() Options {
	return Options{
		Capture:          audio.CaptureConfig{SampleRate: audio.DefaultSampleRate, Channels: audio.DefaultChannels},
		MinDuration:      300 * time.Millisecond,
		SilenceThreshold: 0.01,
		Language:         "auto",
	}
}

type Orchestrator struct {
	recorder Recorder
	provider transcriber.Provider
	chain    Deliverer
	opts     Options
	events   *dispatcher

	toggles chan toggleReq
	phases  chan phase
	done    chan struct{}
	status  atomic.Pointer[Status]

	// owned by Run
	state     State
	since     time.Time
	cur       *cycle
	cycles    int
	lastError string
}

type cycle struct {
	id      string
	started time.Time
	rec     *audio.Recording
}

type toggleReq struct {
	reply chan Ack
}

// phase is a worker report. A non-empty state is a transition; done ends
// the cycle.
type phase struct {
	state State
	event *Event
	err   string
	done  bool
}

func New(rec Recorder, provider transcriber.Provider, chain Deliverer, opts Options, observers ...Observer) *Orchestrator {
	if opts.Capture.SampleRate == 0 {
		opts.Capture.SampleRate = audio.DefaultSampleRate
	}
	if opts.Capture.Channels == 0 {
		opts.Capture.Channels = audio.DefaultChannels
	}
	o := &Orchestrator{
		recorder: rec,
		provider: provider,
		chain:    chain,
		opts:     opts,
		events:   newDispatcher(observers),
		toggles:  make(chan toggleReq),
		phases:   make(chan phase, 4),
		done:     make(chan struct{}),
		state:    Idle,
		since:    time.Now(),
	}
	o.publish()
	return o
}

// Toggle starts a recording when idle and stops it when recording. In any
// other state it is answered busy and nothing changes.
func (o *Orchestrator) Toggle(ctx context.Context) (Ack, error) {
	req := toggleReq{reply: make(chan Ack, 1)}
	select {
	case o.toggles <- req:
	case <-o.done:
		return Ack{}, ErrStopped
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	}
	select {
	case ack := <-req.reply:
		return ack, nil
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	}
}

// Status is safe to call from any goroutine.
func (o *Orchestrator) Status() Status {
	s := *o.status.Load()
	s.Elapsed = time.Since(s.Since)
	return s
}

// Run owns the state machine until ctx is done. An in-flight transcription
// or delivery is finished before Run returns; a live recording is dropped.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	name := ""
	if o.provider != nil {
		name = o.provider.Name()
	}
	log.SessionStart(name, fmt.Sprint(methodsOf(o.chain)))

	for {
		var interrupted <-chan error
		if o.cur != nil && o.cur.rec != nil {
			interrupted = o.cur.rec.Interrupted()
		}
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case req := <-o.toggles:
			req.reply <- o.toggle(ctx)
		case err := <-interrupted:
			o.interrupted(err)
		case p := <-o.phases:
			o.apply(p)
		}
	}
}

func (o *Orchestrator) shutdown() {
	switch o.state {
	case Recording:
		o.recorder.Abort(o.cur.rec)
		log.Warnf("recording_discarded session=%s", o.cur.id)
		o.finish()
	case Processing, Delivering:
		log.Info("waiting_for_cycle")
		for o.state != Idle {
			o.apply(<-o.phases)
		}
	}
	log.SessionEnd(o.cycles)
	if err := o.events.close(); err != nil {
		log.Warnf("observers_close: %v", err)
	}
}

func (o *Orchestrator) toggle(ctx context.Context) Ack {
	switch o.state {
	case Idle:
		return o.startRecording()
	case Recording:
		return o.stopRecording(ctx)
	default:
		log.Infof("toggle_ignored state=%s", o.state)
		return Ack{Action: ActionBusy, State: o.state}
	}
}

func (o *Orchestrator) startRecording() Ack {
	c := &cycle{id: uuid.NewString(), started: time.Now()}
	rec, err := o.recorder.Start(o.opts.Device, o.opts.Capture)
	if err != nil {
		reason := errReason(err)
		o.lastError = reason
		log.Errorf("capture_start_failed: %v", err)
		o.emit(Event{Kind: CaptureFailed, Session: c.id, Reason: reason, ErrKind: string(captureKind(err))})
		o.publish()
		return Ack{Action: ActionFailed, State: Idle, Reason: reason}
	}
	c.rec = rec
	o.cur = c
	o.cycles++
	o.transition(Recording)
	o.emit(Event{Kind: RecordingStarted})
	return Ack{Action: ActionStarted, State: Recording}
}

func (o *Orchestrator) stopRecording(ctx context.Context) Ack {
	c := o.cur
	asset, err := o.recorder.Stop(c.rec)
	c.rec = nil
	if err != nil {
		reason := errReason(err)
		o.lastError = reason
		log.Errorf("capture_stop_failed: %v", err)
		o.finish()
		o.emit(Event{Kind: CaptureFailed, Session: c.id, Reason: reason, ErrKind: string(captureKind(err))})
		return Ack{Action: ActionStopping, State: Idle, Reason: reason}
	}
	o.emit(Event{Kind: RecordingStopped, Duration: asset.Duration})

	if asset.Empty(o.opts.MinDuration, o.opts.SilenceThreshold) {
		log.Infof("recording_empty duration=%v level=%.4f", asset.Duration, asset.Level)
		release(asset)
		o.finish()
		o.emit(Event{Kind: RecordingEmpty, Session: c.id, Duration: asset.Duration})
		return Ack{Action: ActionStopping, State: Idle}
	}

	o.transition(Processing)
	o.emit(Event{Kind: ProcessingStarted})
	// the cycle outlives a cancelled Run; every call below has its own timeout
	go o.pipeline(context.WithoutCancel(ctx), c.id, asset)
	return Ack{Action: ActionStopping, State: Processing}
}

func (o *Orchestrator) interrupted(err error) {
	c := o.cur
	o.recorder.Abort(c.rec)
	c.rec = nil
	reason := errReason(err)
	o.lastError = reason
	log.Errorf("capture_interrupted session=%s: %v", c.id, err)
	// terminal events go out after the return to idle so observers see the final state
	o.finish()
	o.emit(Event{Kind: CaptureFailed, Session: c.id, Reason: reason, ErrKind: string(audio.Interrupted)})
}

// pipeline runs on its own goroutine and never touches orchestrator state.
func (o *Orchestrator) pipeline(ctx context.Context, id string, asset *audio.Asset) {
	report := func(p phase) { o.phases <- p }

	in := transcriber.Audio{
		Path:       asset.Path,
		SampleRate: asset.SampleRate,
		Channels:   asset.Channels,
		Duration:   asset.Duration,
	}
	res, err := o.provider.Transcribe(ctx, in, o.opts.Language)
	release(asset)
	if err != nil {
		reason := errReason(err)
		log.Errorf("transcription_failed session=%s: %v", id, err)
		report(phase{event: &Event{Kind: TranscriptionFailed, Session: id, Reason: reason, ErrKind: string(transcriber.KindOf(err))}, err: reason, done: true})
		return
	}
	logMetrics(o.provider.Name(), asset, res)
	if res.Text == "" {
		log.Warnf("no_speech session=%s", id)
		report(phase{event: &Event{Kind: TranscriptionFailed, Session: id, Reason: "no speech detected", ErrKind: "EmptyTranscript"}, err: "no speech detected", done: true})
		return
	}
	log.TranscriptionText(res.Text)
	report(phase{state: Delivering, event: &Event{Kind: TranscriptionSucceeded, Session: id, Chars: len([]rune(res.Text)), Text: res.Text}})

	out := o.chain.Deliver(ctx, res.Text)
	if out.Status == delivery.Failed {
		report(phase{event: &Event{Kind: DeliveryFailed, Session: id, Method: out.Method, Reason: out.Reason}, err: out.Reason, done: true})
		return
	}
	report(phase{event: &Event{Kind: DeliverySucceeded, Session: id, Method: out.Method, Fallback: out.Status == delivery.DeliveredViaFallback}, done: true})
}

func (o *Orchestrator) apply(p phase) {
	if p.state != "" {
		o.transition(p.state)
	}
	if p.err != "" {
		o.lastError = p.err
	}
	if p.done {
		o.finish()
	}
	if p.event != nil {
		o.emit(*p.event)
	}
}

// finish returns to Idle and forgets the cycle.
func (o *Orchestrator) finish() {
	if o.state != Idle {
		o.transition(Idle)
	}
	o.cur = nil
	o.publish()
}

func (o *Orchestrator) transition(to State) {
	id := ""
	if o.cur != nil {
		id = o.cur.id
	}
	log.Transition(id, string(o.state), string(to))
	o.state = to
	o.since = time.Now()
	o.publish()
}

func (o *Orchestrator) emit(e Event) {
	if e.Session == "" && o.cur != nil {
		e.Session = o.cur.id
	}
	e.At = time.Now()
	e.State = o.state
	o.events.emit(e)
}

func (o *Orchestrator) publish() {
	s := &Status{
		State:     o.state,
		Since:     o.since,
		LastError: o.lastError,
		Cycles:    o.cycles,
	}
	if o.provider != nil {
		s.Provider = o.provider.Name()
	}
	if o.cur != nil {
		s.Session = o.cur.id
	}
	o.status.Store(s)
}

func release(a *audio.Asset) {
	if err := a.Release(); err != nil {
		log.Warnf("asset_cleanup_failed path=%s: %v", a.Path, err)
	}
}

func logMetrics(provider string, a *audio.Asset, res *transcriber.Result) {
	m := log.Metrics{
		Provider:     provider,
		AudioLengthS: a.Duration.Seconds(),
		UploadKB:     float64(res.UploadBytes) / 1024,
		TotalTimeMs:  float64(res.Elapsed.Milliseconds()),
	}
	if nm := res.Metrics; nm != nil {
		m.DNSTimeMs = float64(nm.DNS.Milliseconds())
		m.TLSTimeMs = float64(nm.TLS.Milliseconds())
		m.TTFBMs = float64(nm.TTFB.Milliseconds())
		m.ConnReused = nm.ConnReused
	}
	log.TranscriptionMetrics(m)
}

func errReason(err error) string {
	var te *transcriber.Error
	if errors.As(err, &te) && te.Reason != "" {
		return te.Reason
	}
	var ce *audio.CaptureError
	if errors.As(err, &ce) && ce.Reason != "" {
		if ce.Err != nil {
			return ce.Reason + ": " + ce.Err.Error()
		}
		return ce.Reason
	}
	return err.Error()
}

func captureKind(err error) audio.ErrorKind {
	var ce *audio.CaptureError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return audio.DeviceOpen
}

func methodsOf(d Deliverer) []delivery.Method {
	if c, ok := d.(interface{ Methods() []delivery.Method }); ok {
		return c.Methods()
	}
	return nil
}
