package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// Recorder turns a device stream into a frozen WAV asset. One Recorder serves
// many sessions; each Start returns an independent Recording.
type Recorder struct {
	ctx    Context
	dir    string
	retain bool
}

func NewRecorder(ctx Context, dir string, retain bool) *Recorder {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Recorder{ctx: ctx, dir: dir, retain: retain}
}

// Recording is the live handle between Start and Stop.
type Recording struct {
	capture CaptureDevice
	cfg     CaptureConfig
	started time.Time

	mu      sync.Mutex
	samples []int16

	interrupted chan error
	once        sync.Once
}

// Interrupted yields one error if the stream dies before Stop.
func (r *Recording) Interrupted() <-chan error { return r.interrupted }

// Frames returns how many frames have been buffered so far.
func (r *Recording) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples) / int(r.cfg.Channels)
}

func (r *Recording) append(data []byte) {
	n := len(data) / 2
	r.mu.Lock()
	for i := 0; i < n; i++ {
		r.samples = append(r.samples, int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	r.mu.Unlock()
}

func (r *Recording) fail(err error) {
	r.once.Do(func() {
		r.interrupted <- &CaptureError{Kind: Interrupted, Reason: "input stream failed", Err: err}
	})
}

func (rec *Recorder) Start(device *DeviceInfo, cfg CaptureConfig) (*Recording, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &CaptureError{Kind: DeviceOpen, Reason: "bad capture parameters", Err: err}
	}
	capture, err := rec.ctx.NewCapture(device, cfg)
	if err != nil {
		return nil, asCaptureError(err)
	}

	r := &Recording{
		capture:     capture,
		cfg:         cfg,
		started:     time.Now(),
		samples:     make([]int16, 0, int(cfg.SampleRate*cfg.Channels)*10),
		interrupted: make(chan error, 1),
	}
	capture.SetCallback(func(data []byte, _ uint32) { r.append(data) })
	capture.SetErrorCallback(r.fail)

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return nil, asCaptureError(err)
	}
	return r, nil
}

// Abort stops the stream and drops whatever was buffered.
func (rec *Recorder) Abort(r *Recording) {
	r.capture.ClearCallback()
	r.capture.Close()
	r.mu.Lock()
	r.samples = nil
	r.mu.Unlock()
}

// Stop ends the stream and writes the buffered samples to a WAV file.
func (rec *Recorder) Stop(r *Recording) (*Asset, error) {
	r.capture.Stop()
	r.capture.ClearCallback()
	r.capture.Close()

	r.mu.Lock()
	samples := r.samples
	r.samples = nil
	r.mu.Unlock()

	if err := os.MkdirAll(rec.dir, 0700); err != nil {
		return nil, fmt.Errorf("asset dir: %w", err)
	}
	path := filepath.Join(rec.dir, fmt.Sprintf("murmur_%s.wav", uuid.NewString()))
	if err := writeWAV(path, samples, r.cfg); err != nil {
		os.Remove(path)
		return nil, err
	}

	frames := len(samples) / int(r.cfg.Channels)
	return &Asset{
		Path:       path,
		SampleRate: r.cfg.SampleRate,
		Channels:   r.cfg.Channels,
		Frames:     frames,
		Duration:   time.Duration(frames) * time.Second / time.Duration(r.cfg.SampleRate),
		Level:      peakRMS(samples, int(r.cfg.SampleRate*r.cfg.Channels)/50),
		retain:     rec.retain,
	}, nil
}

func writeWAV(path string, samples []int16, cfg CaptureConfig) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create asset: %w", err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	enc := wav.NewEncoder(f, int(cfg.SampleRate), BitsPerSample, int(cfg.Channels), 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: int(cfg.Channels), SampleRate: int(cfg.SampleRate)},
		Data:           data,
		SourceBitDepth: BitsPerSample,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// peakRMS returns the loudest window's RMS in [0,1]. Windows of 20ms keep a
// single click from counting as speech while still catching short words.
func peakRMS(samples []int16, window int) float64 {
	if window <= 0 {
		window = 320
	}
	var peak float64
	for start := 0; start < len(samples); start += window {
		end := min(start+window, len(samples))
		var sum float64
		for _, s := range samples[start:end] {
			v := float64(s) / 32768
			sum += v * v
		}
		rms := math.Sqrt(sum / float64(end-start))
		if rms > peak {
			peak = rms
		}
	}
	return peak
}

func asCaptureError(err error) error {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return err
	}
	return &CaptureError{Kind: DeviceOpen, Reason: "cannot open input device", Err: err}
}

// Asset is a finished recording on disk.
type Asset struct {
	Path       string
	SampleRate uint32
	Channels   uint32
	Frames     int
	Duration   time.Duration
	// Level is the peak 20ms RMS, 0 for digital silence.
	Level float64

	retain bool
}

// Empty reports whether the asset is too short or too quiet to be worth transcribing.
func (a *Asset) Empty(minDuration time.Duration, silenceLevel float64) bool {
	return a.Frames == 0 || a.Duration < minDuration || a.Level < silenceLevel
}

// Release deletes the file unless the recorder was configured to retain audio.
func (a *Asset) Release() error {
	if a == nil || a.retain || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
