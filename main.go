package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"murmur/audio"
	"murmur/config"
	"murmur/control"
	"murmur/doctor"
	"murmur/hotkey"
	"murmur/log"
	"murmur/transcriber"
)

var version = "dev"

var (
	cfgFile    string
	logDir     string
	statusJSON bool
	listOnly   bool
)

var rootCmd = &cobra.Command{
	Use:   "murmur",
	Short: "Toggle-to-dictate: record, transcribe and type into the focused window",
	Long: "murmur records from the microphone on a global hotkey or `murmur toggle`,\n" +
		"transcribes the clip and types, pastes or copies the text.",
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Start or stop a recording in the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		resp, err := client.Toggle(cmd.Context())
		if err != nil {
			return notRunning(err)
		}
		if resp.Reason != "" {
			fmt.Printf("%s (%s): %s\n", resp.Action, resp.State, resp.Reason)
			return nil
		}
		fmt.Printf("%s (%s)\n", resp.Action, resp.State)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's session state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		st, err := client.Status(cmd.Context())
		if err != nil {
			return notRunning(err)
		}
		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		fmt.Printf("state:    %s (%s)\n", st.State, (time.Duration(st.ElapsedMs) * time.Millisecond).Round(100*time.Millisecond))
		fmt.Printf("provider: %s\n", st.Provider)
		fmt.Printf("cycles:   %d\n", st.Cycles)
		if st.LastError != "" {
			fmt.Printf("last error: %s\n", st.LastError)
		}
		return nil
	},
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file.wav>",
	Short: "Transcribe a WAV file with the configured provider and print the text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		initLogging(cfg, false)
		defer log.Close()

		provider, err := transcriber.New(cfg.TranscriberConfig())
		if err != nil {
			return err
		}
		in, err := wavAudio(args[0])
		if err != nil {
			return err
		}
		res, err := provider.Transcribe(cmd.Context(), in, cfg.Transcription.Language)
		if err != nil {
			return err
		}
		if res.Text == "" {
			return errors.New("no speech detected")
		}
		log.TranscriptionText(res.Text)
		fmt.Println(res.Text)
		fmt.Fprintf(os.Stderr, "%s: %.1fs of audio in %s\n", provider.Name(), in.Duration.Seconds(), res.Elapsed.Round(time.Millisecond))
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, provider, clipboard, keyboard, microphone and hotkey",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env := &doctor.Env{ConfigPath: cfgFile, HotkeyInfo: hotkey.Diagnose}
		env.Config, env.ConfigErr = config.Load(cfgFile)
		if code := doctor.Run(cmd.Context(), env, os.Stdout); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Pick the capture device to use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		actx, err := audio.NewContext()
		if err != nil {
			return fmt.Errorf("audio: %w", err)
		}
		defer actx.Close()

		if listOnly {
			devices, err := actx.Devices()
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Println(d.Name)
			}
			return nil
		}

		dev, err := audio.SelectDevice(actx, os.Stdin, os.Stdout)
		if errors.Is(err, audio.ErrPickerCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		fmt.Printf("Selected %q. Set it in %s:\n\n[audio]\ndevice = %q\n", dev.Name, path, dev.Name)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or print the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.WriteDefault(cfgFile)
		if errors.Is(err, config.ErrExists) {
			fmt.Printf("%s already exists\n", path)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := config.Show(cfgFile)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "log directory (default: MURMUR_LOG_PATH or an OS-specific location)")

	addServeFlags(rootCmd)
	addServeFlags(serveCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw status JSON")
	devicesCmd.Flags().BoolVar(&listOnly, "list", false, "print device names without prompting")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(serveCmd, toggleCmd, statusCmd, transcribeCmd, doctorCmd, devicesCmd, configCmd)
}

func run() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initLogging resolves the log directory and opens the log files. Failures
// only cost diagnostics, so they are reported and ignored.
func initLogging(cfg *config.Config, mirror bool) {
	flagDir := logDir
	if flagDir == "" {
		flagDir = cfg.Log.Dir
	}
	dir, err := log.ResolveDir(flagDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to resolve log directory: %v\n", err)
		return
	}
	log.SetDir(dir)
	log.SetLevel(cfg.Log.Level)
	log.KeepTranscripts(cfg.Log.Transcripts)
	if mirror {
		log.SetMirror(os.Stderr)
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	for _, err := range cfg.DotEnvErrs {
		fmt.Fprintf(os.Stderr, "Warning: ignoring .env: %v\n", err)
		log.Warnf("dotenv_invalid: %v", err)
	}
}

// initCrashLog sends fatal runtime errors to crash_log.txt next to the
// diagnostics log.
func initCrashLog() {
	if log.Dir() == "" {
		return
	}
	f, err := os.OpenFile(filepath.Join(log.Dir(), "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
}

func newClient() (*control.Client, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.Control.Listen == "" {
		return nil, errors.New("control listener is disabled (control.listen is empty)")
	}
	return control.NewClient(cfg.Control.Listen), nil
}

func notRunning(err error) error {
	if errors.Is(err, control.ErrNotRunning) {
		return errors.New("murmur is not running; start it with `murmur serve`")
	}
	return err
}

// wavAudio reads the header of a WAV file for a one-shot transcription.
func wavAudio(path string) (transcriber.Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return transcriber.Audio{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return transcriber.Audio{}, fmt.Errorf("%s: not a valid wav file", path)
	}
	if err := dec.FwdToPCM(); err != nil {
		return transcriber.Audio{}, fmt.Errorf("%s: %w", path, err)
	}
	frameBytes := int(dec.NumChans) * int(dec.BitDepth) / 8
	if frameBytes == 0 || dec.SampleRate == 0 {
		return transcriber.Audio{}, fmt.Errorf("%s: unsupported wav format", path)
	}
	d := time.Duration(dec.PCMSize/frameBytes) * time.Second / time.Duration(dec.SampleRate)
	return transcriber.Audio{
		Path:       path,
		SampleRate: dec.SampleRate,
		Channels:   uint32(dec.NumChans),
		Duration:   d,
	}, nil
}
