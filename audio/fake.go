package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

const fakeFrameSize = 1024

// FakeContext replays a fixed PCM clip instead of a microphone. After the clip
// runs out it keeps feeding silence until stopped, like a quiet room would.
type FakeContext struct {
	pcm      []byte
	realtime bool
	// OpenErr, when set, is returned by NewCapture.
	OpenErr error

	mu   sync.Mutex
	last *FakeCapture
}

func NewFakeContext(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

// NewFakeContextFromWAV loads a 16-bit WAV file as the replayed clip.
func NewFakeContextFromWAV(path string, realtime bool) (*FakeContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return NewFakeContext(pcm, realtime), nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, cfg CaptureConfig) (CaptureDevice, error) {
	if f.OpenErr != nil {
		return nil, &CaptureError{Kind: DeviceOpen, Reason: "fake device refused", Err: f.OpenErr}
	}
	c := &FakeCapture{pcm: f.pcm, realtime: f.realtime, cfg: cfg}
	f.mu.Lock()
	f.last = c
	f.mu.Unlock()
	return c, nil
}

// Last returns the most recently created capture, or nil.
func (f *FakeContext) Last() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type FakeCapture struct {
	pcm      []byte
	realtime bool
	cfg      CaptureConfig

	mu       sync.Mutex
	cb       DataCallback
	onError  ErrorCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	running  bool
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) SetErrorCallback(cb ErrorCallback) {
	f.mu.Lock()
	f.onError = cb
	f.mu.Unlock()
}

// Interrupt simulates the stream dying mid-capture.
func (f *FakeCapture) Interrupt(err error) {
	f.mu.Lock()
	cb := f.onError
	f.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) bytesPerFrame() int {
	ch := int(f.cfg.Channels)
	if ch == 0 {
		ch = 1
	}
	return 2 * ch
}

func (f *FakeCapture) feedChunk(cb DataCallback, pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/f.bytesPerFrame()))
	return end
}

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("fake capture already running")
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * f.bytesPerFrame()
	silence := make([]byte, chunkBytes)

	interval := time.Millisecond
	if f.realtime {
		rate := f.cfg.SampleRate
		if rate == 0 {
			rate = DefaultSampleRate
		}
		interval = time.Duration(fakeFrameSize) * time.Second / time.Duration(rate)
	} else if cb := f.callback(); cb != nil {
		// immediate mode: the whole clip is in the buffer before Start returns
		for pos := 0; pos < len(f.pcm); {
			pos = f.feedChunk(cb, pos, chunkBytes)
		}
	}

	go func() {
		defer close(f.feedDone)
		pos := 0
		if !f.realtime {
			pos = len(f.pcm)
		}
		for {
			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
			cb := f.callback()
			if cb == nil {
				continue
			}
			if pos < len(f.pcm) {
				pos = f.feedChunk(cb, pos, chunkBytes)
			} else {
				cb(silence, fakeFrameSize)
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stopCh)
	done := f.feedDone
	f.mu.Unlock()
	<-done
}

func (f *FakeCapture) Close() { f.Stop() }

// Tone synthesizes a mono S16LE sine clip.
func Tone(sampleRate uint32, d time.Duration, freq float64) []byte {
	n := int(float64(sampleRate) * d.Seconds())
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * 0.5)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// Silence returns d worth of zeroed mono S16LE samples.
func Silence(sampleRate uint32, d time.Duration) []byte {
	return make([]byte, int(float64(sampleRate)*d.Seconds())*2)
}
