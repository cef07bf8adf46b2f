package audio

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

var mono16k = CaptureConfig{SampleRate: 16000, Channels: 1}

func TestRecorderToneProducesWAV(t *testing.T) {
	dir := t.TempDir()
	ctx := NewFakeContext(Tone(16000, 2*time.Second, 440), false)
	rec := NewRecorder(ctx, dir, false)

	r, err := rec.Start(nil, mono16k)
	if err != nil {
		t.Fatal(err)
	}
	asset, err := rec.Stop(r)
	if err != nil {
		t.Fatal(err)
	}

	if asset.Duration < 2*time.Second {
		t.Errorf("Duration = %v, want >= 2s", asset.Duration)
	}
	if asset.Level < 0.3 {
		t.Errorf("Level = %.3f, want a loud tone", asset.Level)
	}
	if asset.Empty(300*time.Millisecond, 0.01) {
		t.Error("tone should not count as empty")
	}

	f, err := os.Open(asset.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("asset is not a valid wav file")
	}
	if dec.SampleRate != 16000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("format = %d Hz / %d ch / %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
}

func TestRecorderSilenceIsEmpty(t *testing.T) {
	ctx := NewFakeContext(Silence(16000, time.Second), false)
	rec := NewRecorder(ctx, t.TempDir(), false)

	r, err := rec.Start(nil, mono16k)
	if err != nil {
		t.Fatal(err)
	}
	asset, err := rec.Stop(r)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { asset.Release() })

	if asset.Level != 0 {
		t.Errorf("Level = %v, want 0", asset.Level)
	}
	if !asset.Empty(300*time.Millisecond, 0.01) {
		t.Error("silence should be empty")
	}
}

func TestAssetEmptyShort(t *testing.T) {
	a := &Asset{Frames: 1600, Duration: 100 * time.Millisecond, Level: 0.5}
	if !a.Empty(300*time.Millisecond, 0.01) {
		t.Error("100ms clip should be empty with 300ms minimum")
	}
	if a.Empty(50*time.Millisecond, 0.01) {
		t.Error("100ms clip should pass a 50ms minimum")
	}
}

func TestAssetRelease(t *testing.T) {
	for _, retain := range []bool{false, true} {
		rec := NewRecorder(NewFakeContext(Tone(16000, 500*time.Millisecond, 300), false), t.TempDir(), retain)
		r, err := rec.Start(nil, mono16k)
		if err != nil {
			t.Fatal(err)
		}
		asset, err := rec.Stop(r)
		if err != nil {
			t.Fatal(err)
		}
		if err := asset.Release(); err != nil {
			t.Fatal(err)
		}
		_, statErr := os.Stat(asset.Path)
		if retain && statErr != nil {
			t.Errorf("retain=true: file removed: %v", statErr)
		}
		if !retain && !errors.Is(statErr, os.ErrNotExist) {
			t.Errorf("retain=false: file still present (%v)", statErr)
		}
		// second release is a no-op
		if err := asset.Release(); err != nil {
			t.Errorf("second Release: %v", err)
		}
	}
}

func TestRecorderOpenError(t *testing.T) {
	ctx := NewFakeContext(nil, false)
	ctx.OpenErr = errors.New("no such device")
	rec := NewRecorder(ctx, t.TempDir(), false)

	_, err := rec.Start(nil, mono16k)
	if !IsKind(err, DeviceOpen) {
		t.Fatalf("expected DeviceOpen, got %v", err)
	}
}

func TestRecorderBadParameters(t *testing.T) {
	rec := NewRecorder(NewFakeContext(nil, false), t.TempDir(), false)
	_, err := rec.Start(nil, CaptureConfig{SampleRate: 16000, Channels: 6})
	if !IsKind(err, DeviceOpen) {
		t.Fatalf("expected DeviceOpen, got %v", err)
	}
}

func TestRecordingInterrupted(t *testing.T) {
	ctx := NewFakeContext(Tone(16000, time.Second, 440), false)
	rec := NewRecorder(ctx, t.TempDir(), false)
	r, err := rec.Start(nil, mono16k)
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Abort(r)

	ctx.Last().Interrupt(errors.New("overrun"))
	ctx.Last().Interrupt(errors.New("second report is dropped"))

	select {
	case err := <-r.Interrupted():
		if !IsKind(err, Interrupted) {
			t.Errorf("expected Interrupted, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no interruption reported")
	}
}

func TestPeakRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"zeros", make([]int16, 640), 0},
		{"full scale", []int16{-32768, -32768, -32768, -32768}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := peakRMS(tt.samples, 320); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyGainClamps(t *testing.T) {
	if got := applyGain(20000, 4); got != 32767 {
		t.Errorf("got %d, want 32767", got)
	}
	if got := applyGain(-20000, 4); got != -32768 {
		t.Errorf("got %d, want -32768", got)
	}
	if got := applyGain(1234, 0); got != 1234 {
		t.Errorf("zero gain should be identity, got %d", got)
	}
}

func TestIsBluetooth(t *testing.T) {
	for name, want := range map[string]bool{
		"AirPods Pro":                  true,
		"bluez_input.XX_XX":            true,
		"Built-in Audio Analog Stereo": false,
	} {
		if got := IsBluetooth(name); got != want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFindDevice(t *testing.T) {
	ctx := NewFakeContext(nil, false)
	if d, err := FindDevice(ctx, "default"); err != nil || d != nil {
		t.Errorf("default: got %v, %v", d, err)
	}
	if d, err := FindDevice(ctx, "FAKE"); err != nil || d == nil || d.ID != "fake" {
		t.Errorf("case-insensitive match: got %v, %v", d, err)
	}
	if _, err := FindDevice(ctx, "usb mic"); !IsKind(err, DeviceOpen) {
		t.Errorf("missing device: got %v", err)
	}
}
