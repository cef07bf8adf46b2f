//go:build linux

package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("murmur"))
	if err != nil {
		return nil, &CaptureError{Kind: DeviceOpen, Reason: "cannot reach pulse server", Err: err}
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sources {
		devices = append(devices, DeviceInfo{
			ID:   s.ID(),
			Name: s.Name(),
		})
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if err := config.Validate(); err != nil {
		return nil, &CaptureError{Kind: DeviceOpen, Reason: "bad capture parameters", Err: err}
	}
	return &pulseCapture{
		client: p.client,
		device: device,
		config: config,
	}, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

type pulseCapture struct {
	client   *pulse.Client
	device   *DeviceInfo
	config   CaptureConfig
	callback atomic.Pointer[DataCallback]
	onError  atomic.Pointer[ErrorCallback]

	stream   *pulse.RecordStream
	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	stopping atomic.Bool
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		if len(buf) == 0 {
			return 0, nil
		}
		cb := c.callback.Load()
		if cb == nil {
			return len(buf), nil
		}
		data := make([]byte, len(buf)*2)
		for i, s := range buf {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(applyGain(s, c.config.Gain)))
		}
		(*cb)(data, uint32(len(buf))/c.config.Channels)
		return len(buf), nil
	})

	layout := pulse.RecordMono
	if c.config.Channels == 2 {
		layout = pulse.RecordStereo
	}
	opts := []pulse.RecordOption{
		layout,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(0.05),
		pulse.RecordMediaName("murmur dictation"),
		pulse.RecordRawOption(func(r *proto.CreateRecordStream) {
			vols := make(proto.ChannelVolumes, c.config.Channels)
			for i := range vols {
				vols[i] = uint32(proto.VolumeNorm)
			}
			r.ChannelVolumes = vols
		}),
	}
	if c.device != nil {
		source, err := c.client.SourceByID(c.device.ID)
		if err != nil || source == nil {
			return &CaptureError{Kind: DeviceOpen, Reason: fmt.Sprintf("source %q not available", c.device.Name), Err: err}
		}
		opts = append(opts, pulse.RecordSource(source))
	}

	stream, err := c.client.NewRecord(writer, opts...)
	if err != nil {
		return &CaptureError{Kind: DeviceOpen, Reason: "pulse refused record stream", Err: err}
	}

	c.stream = stream
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.stopping.Store(false)

	go func() {
		defer close(c.done)
		stream.Start()
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				stream.Stop()
				stream.Close()
				return
			case <-ticker.C:
				if !stream.Running() && !c.stopping.Load() {
					c.reportError(stream.Error())
					stream.Close()
					return
				}
			}
		}
	}()

	return nil
}

func (c *pulseCapture) reportError(err error) {
	if err == nil {
		err = errors.New("record stream stopped unexpectedly")
	}
	if cb := c.onError.Load(); cb != nil {
		(*cb)(err)
	}
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopping.Store(true)
	if c.stop != nil {
		select {
		case <-c.stop:
		default:
			close(c.stop)
		}
		<-c.done
	}
}

func (c *pulseCapture) Close() {
	c.Stop()
}

func (c *pulseCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *pulseCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *pulseCapture) SetErrorCallback(cb ErrorCallback) {
	c.onError.Store(&cb)
}
