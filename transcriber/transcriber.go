package transcriber

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

type Kind string

const (
	KindAuto       Kind = "auto"
	KindOpenAI     Kind = "openai"
	KindGroq       Kind = "groq"
	KindWhisper    Kind = "whisper"
	KindWhisperCpp Kind = "whisper-cpp"
)

// Config is fixed at startup and shared read-only by every session.
type Config struct {
	Kind     Kind
	Model    string
	Language string
	// APIKey falls back to OPENAI_API_KEY / GROQ_API_KEY when empty.
	APIKey       string
	Endpoint     string
	CommandPath  string
	ModelPath    string
	UploadFormat string
	Timeout      time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}

// LanguageHint converts the configured language into what providers expect;
// "auto" and "" both mean "let the model detect".
func LanguageHint(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "auto" {
		return ""
	}
	return lang
}

type NetworkMetrics struct {
	DNS        time.Duration
	ConnWait   time.Duration
	TCP        time.Duration
	TLS        time.Duration
	ReqHeaders time.Duration
	ReqBody    time.Duration
	TTFB       time.Duration
	Total      time.Duration
	ConnReused bool
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB
}

// Audio describes the frozen asset handed to a provider.
type Audio struct {
	Path       string
	SampleRate uint32
	Channels   uint32
	Duration   time.Duration
}

type Result struct {
	Text        string
	Elapsed     time.Duration
	UploadBytes int
	Metrics     *NetworkMetrics
}

// Provider is one transcription backend. IsAvailable must not touch the
// network or spawn processes.
type Provider interface {
	Name() string
	Kind() Kind
	IsAvailable() bool
	Transcribe(ctx context.Context, audio Audio, language string) (*Result, error)
}

// New builds the configured provider. KindAuto runs detection. A provider that
// reports itself unavailable is a startup error, since nothing falls back at
// runtime.
func New(cfg Config) (Provider, error) {
	var p Provider
	switch cfg.Kind {
	case KindAuto, "":
		return Detect(cfg)
	case KindOpenAI, KindGroq:
		p = NewCloud(cfg)
	case KindWhisper:
		p = NewWhisperCLI(cfg)
	case KindWhisperCpp:
		p = NewWhisperCpp(cfg)
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Kind)
	}
	if !p.IsAvailable() {
		return nil, &Error{Kind: NoProviderAvailable, Provider: p.Name(), Reason: unavailableReason(p)}
	}
	return p, nil
}

// Detect prefers a cloud credential, then the OpenAI whisper CLI, then whisper.cpp.
func Detect(cfg Config) (Provider, error) {
	candidates := []func() Provider{
		func() Provider { c := cfg; c.Kind = KindOpenAI; return NewCloud(c) },
		func() Provider { c := cfg; c.Kind = KindGroq; return NewCloud(c) },
		func() Provider { return NewWhisperCLI(cfg) },
		func() Provider { return NewWhisperCpp(cfg) },
	}
	for _, build := range candidates {
		if p := build(); p.IsAvailable() {
			return p, nil
		}
	}
	return nil, &Error{
		Kind:   NoProviderAvailable,
		Reason: "set OPENAI_API_KEY or GROQ_API_KEY, or install whisper / whisper.cpp",
	}
}

func unavailableReason(p Provider) string {
	switch p.Kind() {
	case KindOpenAI:
		return "OPENAI_API_KEY is not set"
	case KindGroq:
		return "GROQ_API_KEY is not set"
	default:
		return "executable not found in PATH"
	}
}

func envKey(k Kind) string {
	if k == KindGroq {
		return os.Getenv("GROQ_API_KEY")
	}
	return os.Getenv("OPENAI_API_KEY")
}
