package transcriber

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/process"
)

// WhisperCLI runs the OpenAI whisper command line tool and reads the .txt
// file it writes.
type WhisperCLI struct {
	binary   string
	model    string
	modelDir string
	timeout  time.Duration
}

func NewWhisperCLI(cfg Config) *WhisperCLI {
	bin := cfg.CommandPath
	if bin == "" || cfg.Kind != KindWhisper {
		bin = "whisper"
	}
	model := cfg.Model
	if model == "" {
		model = "base"
	}
	return &WhisperCLI{binary: bin, model: model, modelDir: modelDir(cfg, KindWhisper), timeout: cfg.timeout()}
}

func (w *WhisperCLI) Name() string { return "whisper/" + w.model }

func (w *WhisperCLI) Kind() Kind { return KindWhisper }

func (w *WhisperCLI) IsAvailable() bool {
	_, err := process.Resolve(w.binary)
	return err == nil
}

func (w *WhisperCLI) Transcribe(ctx context.Context, audio Audio, language string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if strings.HasSuffix(w.model, ".pt") {
		if _, err := os.Stat(w.model); err != nil {
			return nil, &Error{Kind: ModelNotFound, Provider: w.Name(), Reason: w.model + " does not exist", Err: err}
		}
	}

	outDir, err := os.MkdirTemp("", "murmur-whisper-")
	if err != nil {
		return nil, &Error{Kind: NonZeroExit, Provider: w.Name(), Reason: "cannot create output dir", Err: err}
	}
	defer os.RemoveAll(outDir)

	args := []string{
		audio.Path,
		"--model", w.model,
		"--output_format", "txt",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	if lang := LanguageHint(language); lang != "" {
		args = append(args, "--language", lang)
	}
	if w.modelDir != "" {
		args = append(args, "--model_dir", w.modelDir)
	}

	start := time.Now()
	res, err := process.Run(ctx, process.Command{Binary: w.binary, Args: args})
	if err != nil {
		return nil, w.classify(ctx, res, err)
	}

	stem := strings.TrimSuffix(filepath.Base(audio.Path), filepath.Ext(audio.Path))
	data, err := os.ReadFile(filepath.Join(outDir, stem+".txt"))
	if err != nil {
		return nil, &Error{Kind: BadResponse, Provider: w.Name(), Reason: "whisper wrote no transcript", Err: err}
	}
	return &Result{Text: NormalizeWhisper(string(data)), Elapsed: time.Since(start)}, nil
}

func (w *WhisperCLI) classify(ctx context.Context, res *process.Result, err error) *Error {
	e := classifyProcess(ctx, w.Name(), w.binary, w.timeout, err)
	// whisper lists the known sizes when asked for an unknown one
	if e.Kind == NonZeroExit && res != nil && strings.Contains(string(res.Stderr), "not found; available models") {
		e.Kind = ModelNotFound
		e.Reason = "unknown whisper model " + w.model
	}
	return e
}

func classifyProcess(ctx context.Context, provider, binary string, timeout time.Duration, err error) *Error {
	e := &Error{Provider: provider, Err: err}
	var exitErr *process.ExitError
	switch {
	case errors.Is(err, process.ErrNotFound):
		e.Kind = ExecutableNotFound
		e.Reason = binary + " not found"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.Kind = Timeout
		e.Reason = binary + " did not finish within " + timeout.String()
	case errors.As(err, &exitErr):
		e.Kind = NonZeroExit
		e.Reason = shorten(exitErr.Error(), 160)
	default:
		e.Kind = NonZeroExit
		e.Reason = shorten(err.Error(), 160)
	}
	return e
}

func modelDir(cfg Config, k Kind) string {
	if cfg.Kind != k {
		return ""
	}
	return cfg.ModelPath
}
