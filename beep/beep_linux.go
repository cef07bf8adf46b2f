//go:build linux

package beep

import (
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"murmur/log"
)

// pulse sinks are stereo by default
const playerChannels = 2

type pulsePlayer struct{}

func newPlayer() Player { return pulsePlayer{} }

func (pulsePlayer) Play(samples []int16, channels int) {
	go playSamples(samples, channels)
}

func playSamples(samples []int16, channels int) {
	if len(samples) == 0 {
		return
	}
	c, err := pulse.NewClient(pulse.ClientApplicationName("murmur"))
	if err != nil {
		log.Warnf("beep_playback: %v", err)
		return
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	layout := pulse.PlaybackStereo
	volumes := proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
	if channels == 1 {
		layout = pulse.PlaybackMono
		volumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
	}
	stream, err := c.NewPlayback(reader,
		layout,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = volumes
		}),
	)
	if err != nil {
		log.Warnf("beep_playback: %v", err)
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
}
