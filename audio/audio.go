package audio

import (
	"fmt"
	"strings"
)

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	BitsPerSample     = 16
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", "bluez", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether it is a headset mic,
// which usually means the low-bandwidth HFP profile.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives interleaved S16LE frames. data is only valid for the
// duration of the call.
type DataCallback func(data []byte, frameCount uint32)

// ErrorCallback is invoked at most once when a running stream dies.
type ErrorCallback func(err error)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// Gain is a linear multiplier applied before samples reach the buffer; 0 means 1.
	Gain float64
}

func (c CaptureConfig) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("unsupported sample rate %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("unsupported channel count %d", c.Channels)
	}
	return nil
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	SetErrorCallback(cb ErrorCallback)
}

// FindDevice maps a configured device name to a DeviceInfo. "default" and ""
// select the system default and return nil.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" || name == "default" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, &CaptureError{Kind: DeviceOpen, Reason: "cannot enumerate devices", Err: err}
	}
	for i := range devices {
		if devices[i].ID == name || devices[i].Name == name {
			return &devices[i], nil
		}
	}
	lower := strings.ToLower(name)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), lower) {
			return &devices[i], nil
		}
	}
	return nil, &CaptureError{Kind: DeviceOpen, Reason: fmt.Sprintf("no input device matches %q", name)}
}

func applyGain(s int16, gain float64) int16 {
	if gain == 0 || gain == 1 {
		return s
	}
	amplified := int32(float64(s) * gain)
	if amplified > 32767 {
		amplified = 32767
	} else if amplified < -32768 {
		amplified = -32768
	}
	return int16(amplified)
}
