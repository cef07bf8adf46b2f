package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
	level          = zerolog.InfoLevel
	mirror         io.Writer
	keepTexts      = true
)

type Metrics struct {
	Provider     string
	AudioLengthS float64
	UploadKB     float64
	DNSTimeMs    float64
	TLSTimeMs    float64
	TTFBMs       float64
	TotalTimeMs  float64
	ConnReused   bool
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: MURMUR_LOG_PATH environment variable
	if envPath := os.Getenv("MURMUR_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

// SetLevel takes a zerolog level name; unknown names keep the current level.
func SetLevel(name string) {
	if l, err := zerolog.ParseLevel(name); err == nil && l != zerolog.NoLevel {
		level = l
	}
}

// SetMirror duplicates diagnostics to w (stderr for foreground runs).
func SetMirror(w io.Writer) {
	mirror = w
}

// KeepTranscripts toggles appending delivered text to transcribe_log.txt.
func KeepTranscripts(v bool) {
	keepTexts = v
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		diagFile.Close()
		return err
	}

	var out io.Writer = zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	if mirror != nil {
		out = zerolog.MultiLevelWriter(out, zerolog.ConsoleWriter{
			Out:        mirror,
			TimeFormat: "15:04:05",
		})
	}
	diagLog = zerolog.New(out).Level(level).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

// Logger exposes the diagnostics logger to packages that want structured fields.
// Before Init it is a disabled logger.
func Logger() *zerolog.Logger {
	if !logReady {
		l := zerolog.Nop()
		return &l
	}
	return &diagLog
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func Transition(session, from, to string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", session).
		Str("from", from).
		Str("to", to).
		Msg("state_transition")
}

func TranscriptionMetrics(m Metrics) {
	if !logReady {
		return
	}

	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}

	diagLog.Info().
		Str("provider", m.Provider).
		Str("conn", connStatus).
		Float64("audio_s", m.AudioLengthS).
		Float64("upload_kb", m.UploadKB).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Msg("transcription")
}

func DeliveryResult(status, method string, elapsed time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("status", status).
		Str("method", method).
		Dur("elapsed", elapsed).
		Msg("delivery")
}

func TranscriptionText(text string) {
	if !logReady || !keepTexts {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcribeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

func SessionStart(provider, delivery string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("delivery", delivery).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
