// Package beep plays short feedback tones when recording starts and stops
// and when a cycle fails.
package beep

import (
	"math"
	"sync"

	"murmur/session"
)

const sampleRate = 44100

type Sound int

const (
	Start Sound = iota
	End
	Error
)

// Player outputs interleaved 16-bit samples at sampleRate. Play must not
// block the caller for the length of the sound.
type Player interface {
	Play(samples []int16, channels int)
}

type Observer struct {
	player   Player
	channels int
	once     sync.Once
	sounds   map[Sound][]int16
}

// NewObserver returns an observer that plays through p, or through the
// platform backend when p is nil.
func NewObserver(p Player) *Observer {
	if p == nil {
		p = newPlayer()
	}
	return &Observer{player: p, channels: playerChannels}
}

func (o *Observer) init() {
	o.sounds = map[Sound][]int16{
		// short decays; the linux tail fills the pulse buffer
		Start: Tick(o.channels, 1200, 0.2, 0.5, 60),
		End:   Tick(o.channels, 900, 0.2, 0.5, 40),
		Error: DoubleBeep(o.channels, 350, 0.08, 0.05, 0.6, 30),
	}
}

func (o *Observer) Play(s Sound) {
	o.once.Do(o.init)
	o.player.Play(o.sounds[s], o.channels)
}

func (o *Observer) Notify(e session.Event) {
	switch {
	case e.Kind == session.RecordingStarted:
		o.Play(Start)
	case e.Kind == session.RecordingStopped:
		o.Play(End)
	case e.Failure():
		o.Play(Error)
	}
}

// Tick is a sine burst with exponential decay, duplicated across channels.
func Tick(channels int, freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n*channels)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * math.Exp(-t*decay))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = s
		}
	}
	return samples
}

func DoubleBeep(channels int, freq, beepDur, gapDur, volume, decay float64) []int16 {
	b := Tick(channels, freq, beepDur, volume, decay)
	gap := make([]int16, int(sampleRate*gapDur)*channels)
	out := make([]int16, 0, len(b)*2+len(gap))
	out = append(out, b...)
	out = append(out, gap...)
	return append(out, b...)
}
