package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/sashabaranov/go-openai"

	"murmur/encoder"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// Cloud talks to the OpenAI transcription endpoint, or anything that speaks
// the same API (Groq, a local proxy) when Endpoint is set.
type Cloud struct {
	kind      Kind
	apiKey    string
	model     string
	format    string
	timeout   time.Duration
	client    *openai.Client
	transport *tracedTransport
}

func NewCloud(cfg Config) *Cloud {
	kind := cfg.Kind
	if kind != KindGroq {
		kind = KindOpenAI
	}
	key := cfg.APIKey
	if key == "" {
		key = envKey(kind)
	}

	oc := openai.DefaultConfig(key)
	switch {
	case cfg.Endpoint != "":
		oc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	case kind == KindGroq:
		oc.BaseURL = groqBaseURL
	}
	tr := newTracedTransport()
	oc.HTTPClient = &http.Client{Transport: tr}

	model := cfg.Model
	if model == "" || isLocalModelName(model) {
		model = openai.Whisper1
		if kind == KindGroq {
			model = "whisper-large-v3-turbo"
		}
	}

	return &Cloud{
		kind:      kind,
		apiKey:    key,
		model:     model,
		format:    strings.ToLower(cfg.UploadFormat),
		timeout:   cfg.timeout(),
		client:    openai.NewClientWithConfig(oc),
		transport: tr,
	}
}

func (c *Cloud) Name() string { return string(c.kind) + "/" + c.model }

func (c *Cloud) Kind() Kind { return c.kind }

// IsAvailable only checks that a credential is configured.
func (c *Cloud) IsAvailable() bool { return c.apiKey != "" }

func (c *Cloud) Transcribe(ctx context.Context, audio Audio, language string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.AudioRequest{
		Model:    c.model,
		FilePath: audio.Path,
		Language: LanguageHint(language),
	}

	upload := 0
	if c.format == "flac" && audio.Channels == 1 {
		data, err := flacFromWAV(audio.Path, audio.SampleRate)
		if err != nil {
			return nil, &Error{Kind: BadResponse, Provider: c.Name(), Reason: "cannot encode flac upload", Err: err}
		}
		req.Reader = bytes.NewReader(data)
		req.FilePath = "audio.flac"
		upload = len(data)
	} else if fi, err := os.Stat(audio.Path); err == nil {
		upload = int(fi.Size())
	}

	start := time.Now()
	resp, err := c.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	return &Result{
		Text:        strings.TrimSpace(resp.Text),
		Elapsed:     time.Since(start),
		UploadBytes: upload,
		Metrics:     c.transport.Last(),
	}, nil
}

func (c *Cloud) classify(ctx context.Context, err error) *Error {
	e := &Error{Provider: c.Name(), Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.Kind = Timeout
		e.Reason = fmt.Sprintf("no response within %s", c.timeout)
	case errors.As(err, &apiErr):
		e.Kind = kindForStatus(apiErr.HTTPStatusCode)
		e.Reason = fmt.Sprintf("%d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	case errors.As(err, &reqErr):
		e.Kind = kindForStatus(reqErr.HTTPStatusCode)
		e.Reason = fmt.Sprintf("%d: %s", reqErr.HTTPStatusCode, http.StatusText(reqErr.HTTPStatusCode))
	default:
		e.Kind = NetworkError
		e.Reason = err.Error()
	}
	e.Reason = shorten(redact(e.Reason, c.apiKey), 160)
	// the wrapped error may echo the key back; keep only the scrubbed text
	e.Err = errors.New(e.Reason)
	return e
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AuthError
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return QuotaExceeded
	case status >= 500 || status == 0:
		return NetworkError
	default:
		return BadResponse
	}
}

// isLocalModelName catches configs that name a whisper size ("base",
// "small.en") while pointing at a cloud provider.
func isLocalModelName(m string) bool {
	switch strings.TrimSuffix(m, ".en") {
	case "tiny", "base", "small", "medium", "large", "large-v2", "large-v3", "turbo":
		return true
	}
	return false
}

func flacFromWAV(path string, sampleRate uint32) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}
	if sampleRate == 0 {
		sampleRate = uint32(dec.SampleRate)
	}
	return encoder.EncodeFLAC(samples, sampleRate)
}
