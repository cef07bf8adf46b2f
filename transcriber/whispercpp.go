package transcriber

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"murmur/internal/process"
)

var whisperCppBinaries = []string{"whisper-cli", "whisper-cpp"}

// WhisperCpp runs a whisper.cpp build and parses its stdout.
type WhisperCpp struct {
	binary    string
	model     string
	modelPath string
	timeout   time.Duration
}

func NewWhisperCpp(cfg Config) *WhisperCpp {
	bin := cfg.CommandPath
	if bin == "" || cfg.Kind != KindWhisperCpp {
		bin = whisperCppBinaries[0]
		for _, candidate := range whisperCppBinaries {
			if _, err := process.Resolve(candidate); err == nil {
				bin = candidate
				break
			}
		}
	}
	model := cfg.Model
	if model == "" {
		model = "base"
	}
	path := modelDir(cfg, KindWhisperCpp)
	if path == "" {
		path = filepath.Join("models", "ggml-"+model+".bin")
	}
	return &WhisperCpp{binary: bin, model: model, modelPath: path, timeout: cfg.timeout()}
}

func (w *WhisperCpp) Name() string { return "whisper.cpp/" + w.model }

func (w *WhisperCpp) Kind() Kind { return KindWhisperCpp }

func (w *WhisperCpp) IsAvailable() bool {
	_, err := process.Resolve(w.binary)
	return err == nil
}

func (w *WhisperCpp) Transcribe(ctx context.Context, audio Audio, language string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if _, err := process.Resolve(w.binary); err != nil {
		return nil, &Error{Kind: ExecutableNotFound, Provider: w.Name(), Reason: w.binary + " not found", Err: err}
	}
	if _, err := os.Stat(w.modelPath); err != nil {
		return nil, &Error{Kind: ModelNotFound, Provider: w.Name(), Reason: w.modelPath + " does not exist", Err: err}
	}

	lang := LanguageHint(language)
	if lang == "" {
		lang = "auto"
	}
	args := []string{"-f", audio.Path, "-m", w.modelPath, "-l", lang, "-nt", "-np"}

	start := time.Now()
	res, err := process.Run(ctx, process.Command{Binary: w.binary, Args: args})
	if err != nil {
		return nil, classifyProcess(ctx, w.Name(), w.binary, w.timeout, err)
	}
	return &Result{Text: NormalizeWhisperCpp(string(res.Stdout)), Elapsed: time.Since(start)}, nil
}
