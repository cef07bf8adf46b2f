package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/spf13/cobra"

	"murmur/audio"
	"murmur/beep"
	"murmur/clipboard"
	"murmur/config"
	"murmur/control"
	"murmur/delivery"
	"murmur/hotkey"
	"murmur/log"
	"murmur/notify"
	"murmur/session"
	"murmur/shutdown"
	"murmur/transcriber"
)

var (
	verbose   bool
	tuiFlag   bool
	profile   string
	fakeAudio string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dictation daemon: hotkey, control listener and observers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "mirror diagnostics to stderr")
	cmd.Flags().BoolVar(&tuiFlag, "tui", false, "show the terminal status UI")
	cmd.Flags().StringVar(&profile, "profile", "", "serve pprof on this address (e.g. localhost:6060)")
	cmd.Flags().StringVar(&fakeAudio, "fake-audio", "", "replay a WAV file instead of the microphone, driven by stdin")
	cmd.Flags().MarkHidden("fake-audio")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	initLogging(cfg, verbose && !tuiFlag)
	defer log.Close()
	initCrashLog()

	if profile != "" {
		go func() {
			log.Infof("pprof_listening addr=%s", profile)
			if err := http.ListenAndServe(profile, nil); err != nil {
				log.Warnf("pprof_serve: %v", err)
			}
		}()
	}

	// nothing falls back at runtime, so a missing provider stops here
	provider, err := transcriber.New(cfg.TranscriberConfig())
	if err != nil {
		log.Errorf("provider_unavailable: %v", err)
		return err
	}

	var actx audio.Context
	var fake *audio.FakeContext
	if fakeAudio != "" {
		fake, err = audio.NewFakeContextFromWAV(fakeAudio, true)
		actx = fake
	} else {
		actx, err = audio.NewContext()
	}
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	defer actx.Close()

	device, err := audio.FindDevice(actx, cfg.Audio.Device)
	if err != nil {
		log.Warnf("device_not_found name=%q, using system default: %v", cfg.Audio.Device, err)
		device = nil
	}
	if device != nil {
		log.Infof("capture_device name=%q bluetooth=%t", device.Name, audio.IsBluetooth(device.Name))
	}

	kb, err := clipboard.NewKeyboard(cfg.Delivery.InputMethod, cfg.Delivery.CommandTimeout)
	if err != nil {
		log.Warnf("input_unavailable: %v", err)
		kb = clipboard.Disabled{}
	}
	chain := delivery.NewChain(clipboard.System{}, kb, cfg.DeliveryOptions())
	defer chain.Wait()

	statusFile := notify.NewStatusFile(notify.DefaultStatusPath())
	defer statusFile.Remove()

	observers := []session.Observer{notify.Logger{}, statusFile}
	if cfg.Feedback.Notifications {
		observers = append(observers, notify.NewDesktop(nil))
	}
	if cfg.Feedback.Sounds && fake == nil {
		observers = append(observers, beep.NewObserver(nil))
	}
	cycles := make(chan struct{}, 1)
	if fake != nil {
		observers = append(observers, cycleEnd(cycles))
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var orch *session.Orchestrator
	var ui *tui
	if tuiFlag {
		ui = newTUI(provider.Name(), chain.Methods(), device, cfg.Control.Listen, func(ctx context.Context) (session.Ack, error) {
			return orch.Toggle(ctx)
		})
		observers = append(observers, ui)
	}

	orch = session.New(audio.NewRecorder(actx, cfg.Audio.Dir, cfg.Audio.Retain), provider, chain, session.Options{
		Device:           device,
		Capture:          cfg.CaptureConfig(),
		MinDuration:      cfg.Audio.MinDuration,
		SilenceThreshold: cfg.Audio.SilenceThreshold,
		Language:         cfg.Transcription.Language,
	}, observers...)

	runDone := make(chan error, 1)
	go func() { runDone <- orch.Run(ctx) }()

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		select {
		case s := <-sigChan:
			log.Infof("signal_received signal=%s", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Control.Listen != "" {
		srv := control.New(cfg.Control.Listen, orch, version)
		if err := srv.Start(); err != nil {
			cancel()
			<-runDone
			return err
		}
		defer srv.Stop(context.Background())
	}

	switch {
	case fake != nil:
		hk := hotkey.NewFake()
		go hotkey.Run(ctx, hk, cfg.Hotkey.LongPress, orch.Toggle, orch.Status)
		go driveStdin(ctx, os.Stdin, hk, cycles, cancel)
	case cfg.Hotkey.Enabled:
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Warnf("hotkey_unavailable: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: hotkey unavailable (%v); use `murmur toggle`\n", err)
			break
		}
		defer hk.Unregister()
		go hotkey.Run(ctx, hk, cfg.Hotkey.LongPress, orch.Toggle, orch.Status)
	}

	if ui != nil {
		go func() {
			ui.run()
			cancel()
		}()
	} else if !verbose && fake == nil {
		fmt.Fprintf(os.Stderr, "murmur %s ready (%s); Ctrl+Shift+Space to dictate, logs in %s\n", version, provider.Name(), log.Dir())
	}

	<-ctx.Done()
	err = <-runDone
	if ui != nil {
		ui.quit()
	}
	return err
}

// cycleEnd signals on ch whenever a cycle returns to idle.
func cycleEnd(ch chan<- struct{}) session.ObserverFunc {
	return func(e session.Event) {
		switch e.Kind {
		case session.DeliverySucceeded, session.DeliveryFailed, session.TranscriptionFailed,
			session.RecordingEmpty, session.CaptureFailed:
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}
