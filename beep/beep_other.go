//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"murmur/log"
)

const playerChannels = 1

// malgoPlayer keeps one playback device open and swaps the buffer it reads.
type malgoPlayer struct {
	once   sync.Once
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	buf atomic.Pointer[[]byte]
	pos atomic.Uint32
}

func newPlayer() Player { return &malgoPlayer{} }

func (p *malgoPlayer) init() {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("beep_init: %v", err)
		return
	}
	p.ctx = ctx
	if err := p.initDevice(); err != nil {
		log.Warnf("beep_init: %v", err)
		ctx.Uninit()
		p.ctx = nil
	}
}

func (p *malgoPlayer) initDevice() error {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = playerChannels
	cfg.SampleRate = sampleRate

	dev, err := malgo.InitDevice(p.ctx.Context, cfg, malgo.DeviceCallbacks{Data: p.data})
	if err != nil {
		return err
	}
	p.device = dev
	return nil
}

func (p *malgoPlayer) data(out, _ []byte, frames uint32) {
	clear(out)
	b := p.buf.Load()
	if b == nil {
		return
	}
	pos := p.pos.Load()
	want := frames * 2 * playerChannels
	remaining := uint32(len(*b)) - pos
	if remaining == 0 {
		p.buf.Store(nil)
		return
	}
	n := min(want, remaining)
	copy(out[:n], (*b)[pos:pos+n])
	p.pos.Store(pos + n)
}

func (p *malgoPlayer) Play(samples []int16, _ int) {
	p.once.Do(p.init)
	if p.ctx == nil || len(samples) == 0 {
		return
	}
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.device.Stop()
	p.pos.Store(0)
	p.buf.Store(&raw)
	if err := p.device.Start(); err != nil {
		// the device goes stale across sleep/wake; rebuild once
		p.device.Uninit()
		if err := p.initDevice(); err != nil || p.device.Start() != nil {
			p.buf.Store(nil)
			log.Warnf("beep_playback: %v", err)
		}
	}
}
