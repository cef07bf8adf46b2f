package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"murmur/audio"
	"murmur/delivery"
	"murmur/hotkey"
	"murmur/session"
)

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"empty", "", 10, []string{""}},
		{"fits", "hello world", 20, []string{"hello world"}},
		{"breaks at space", "hello big world", 9, []string{"hello big", "world"}},
		{"long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"multibyte", "héllo wörld", 5, []string{"héllo", "wörld"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.text, tt.width)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func TestPercentiles(t *testing.T) {
	if got := percentiles(nil); got != [4]time.Duration{} {
		t.Errorf("empty: got %v", got)
	}
	var ds []time.Duration
	for i := 10; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	got := percentiles(ds)
	want := [4]time.Duration{1 * time.Millisecond, 5 * time.Millisecond, 9 * time.Millisecond, 10 * time.Millisecond}
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if ds[0] != 10*time.Millisecond {
		t.Error("percentiles reordered its input")
	}
}

func TestTUIModelFollowsEvents(t *testing.T) {
	m := tuiModel{state: session.Idle}
	t0 := time.Now()
	steps := []struct {
		event session.Event
		state session.State
	}{
		{session.Event{Kind: session.RecordingStarted, At: t0}, session.Recording},
		{session.Event{Kind: session.RecordingStopped, At: t0.Add(time.Second)}, session.Idle},
		{session.Event{Kind: session.ProcessingStarted, At: t0.Add(time.Second)}, session.Processing},
		{session.Event{Kind: session.TranscriptionSucceeded, Text: "hello there", At: t0.Add(2 * time.Second)}, session.Delivering},
		{session.Event{Kind: session.DeliverySucceeded, Method: delivery.ClipboardOnly, Fallback: true, At: t0.Add(3 * time.Second)}, session.Idle},
	}
	for _, s := range steps {
		m = m.apply(s.event)
		if m.state != s.state {
			t.Fatalf("after %s: state = %s, want %s", s.event.Kind, m.state, s.state)
		}
	}
	if m.lastText != "hello there" || m.cycles != 1 {
		t.Errorf("lastText=%q cycles=%d", m.lastText, m.cycles)
	}
	if len(m.latencies) != 1 || m.latencies[0] != 2*time.Second {
		t.Errorf("latencies = %v", m.latencies)
	}
	if got := m.deliveredLabel(); got != "✓ clipboard_only (fallback)" {
		t.Errorf("label = %q", got)
	}

	m = m.apply(session.Event{Kind: session.TranscriptionFailed, Reason: "no speech detected", At: t0.Add(4 * time.Second)})
	if m.state != session.Idle || m.cycles != 2 || !strings.Contains(m.failure, "no speech detected") {
		t.Errorf("after failure: state=%s cycles=%d failure=%q", m.state, m.cycles, m.failure)
	}
	m = m.apply(session.Event{Kind: session.RecordingStarted, At: t0.Add(5 * time.Second)})
	if m.failure != "" {
		t.Errorf("failure not cleared on new recording: %q", m.failure)
	}
}

func TestLineTexts(t *testing.T) {
	if got := modeLineText("whisper/base", []delivery.Method{delivery.ClipboardPaste, delivery.ClipboardOnly}); got != "[whisper/base | clipboard_paste > clipboard_only]" {
		t.Errorf("modeLineText = %q", got)
	}
	if got := deviceLineText(nil); got != "mic: system default" {
		t.Errorf("deviceLineText(nil) = %q", got)
	}
	if got := deviceLineText(&audio.DeviceInfo{Name: "AirPods Pro"}); !strings.HasSuffix(got, "(BT!)") {
		t.Errorf("bluetooth device not flagged: %q", got)
	}
}

func TestCycleEnd(t *testing.T) {
	ch := make(chan struct{}, 1)
	obs := cycleEnd(ch)

	obs.Notify(session.Event{Kind: session.RecordingStarted})
	obs.Notify(session.Event{Kind: session.ProcessingStarted})
	select {
	case <-ch:
		t.Fatal("signalled before the cycle ended")
	default:
	}

	obs.Notify(session.Event{Kind: session.DeliverySucceeded})
	obs.Notify(session.Event{Kind: session.RecordingEmpty}) // dropped, buffer full
	select {
	case <-ch:
	default:
		t.Fatal("no signal after delivery")
	}
}

func TestDriveStdin(t *testing.T) {
	hk := hotkey.NewFake()
	cycles := make(chan struct{}, 1)
	cycles <- struct{}{}
	quit := make(chan struct{})

	script := "KEYDOWN\nSLEEP 10\nKEYUP\nWAIT\nBOGUS\n\nQUIT\nKEYDOWN\n"
	go driveStdin(context.Background(), strings.NewReader(script), hk, cycles, func() { close(quit) })

	for _, ch := range []<-chan struct{}{hk.Keydown(), hk.Keyup()} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("scripted key event not delivered")
		}
	}
	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("QUIT did not stop the driver")
	}
	select {
	case <-hk.Keydown():
		t.Error("commands after QUIT were run")
	default:
	}
}

func TestWavAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, 8000),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	a, err := wavAudio(path)
	if err != nil {
		t.Fatal(err)
	}
	if a.SampleRate != 16000 || a.Channels != 1 || a.Duration != 500*time.Millisecond {
		t.Errorf("got %+v", a)
	}

	bad := filepath.Join(t.TempDir(), "bad.wav")
	os.WriteFile(bad, []byte("not a wav"), 0644)
	if _, err := wavAudio(bad); err == nil {
		t.Error("expected an error for a non-wav file")
	}
}
