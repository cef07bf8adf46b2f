//go:build !linux

package audio

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &CaptureError{Kind: DeviceOpen, Reason: "audio backend init failed", Err: err}
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if err := config.Validate(); err != nil {
		return nil, &CaptureError{Kind: DeviceOpen, Reason: "bad capture parameters", Err: err}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = config.Channels
	deviceConfig.SampleRate = config.SampleRate

	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, &CaptureError{Kind: DeviceOpen, Reason: "invalid device id", Err: err}
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	c := &malgoCapture{config: config}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			cb := c.callback.Load()
			if cb == nil {
				return
			}
			buf := make([]byte, len(data))
			for i := 0; i+1 < len(data); i += 2 {
				s := applyGain(int16(binary.LittleEndian.Uint16(data[i:])), config.Gain)
				binary.LittleEndian.PutUint16(buf[i:], uint16(s))
			}
			(*cb)(buf, frameCount)
		},
		Stop: func() {
			// also fires after our own Stop(); only unexpected stops matter
			if c.stopping.Load() {
				return
			}
			if cb := c.onError.Load(); cb != nil {
				(*cb)(errors.New("capture device stopped unexpectedly"))
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, &CaptureError{Kind: DeviceOpen, Reason: "cannot open capture device", Err: err}
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device   *malgo.Device
	config   CaptureConfig
	callback atomic.Pointer[DataCallback]
	onError  atomic.Pointer[ErrorCallback]
	stopping atomic.Bool
}

func (c *malgoCapture) Start() error {
	c.stopping.Store(false)
	if err := c.device.Start(); err != nil {
		return &CaptureError{Kind: DeviceOpen, Reason: "cannot start capture device", Err: err}
	}
	return nil
}

func (c *malgoCapture) Stop() {
	c.stopping.Store(true)
	_ = c.device.Stop()
}

func (c *malgoCapture) Close() {
	c.Stop()
	c.device.Uninit()
}

func (c *malgoCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *malgoCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *malgoCapture) SetErrorCallback(cb ErrorCallback) {
	c.onError.Store(&cb)
}
