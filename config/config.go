// Package config loads murmur's settings from config.toml, .env files and
// MURMUR_* environment variables. It is read once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"murmur/audio"
	"murmur/delivery"
	"murmur/transcriber"
)

const envPrefix = "MURMUR"

type Config struct {
	Audio         Audio         `mapstructure:"audio"`
	Transcription Transcription `mapstructure:"transcription"`
	Delivery      Delivery      `mapstructure:"delivery"`
	Feedback      Feedback      `mapstructure:"feedback"`
	Control       Control       `mapstructure:"control"`
	Hotkey        Hotkey        `mapstructure:"hotkey"`
	Log           Log           `mapstructure:"log"`

	// Source is the file the settings came from, empty when only defaults
	// and the environment were used.
	Source string `mapstructure:"-"`
	// DotEnvErrs holds .env files that exist but could not be parsed. Load
	// runs before logging, so callers report them once logs are open.
	DotEnvErrs []error `mapstructure:"-"`
}

type Audio struct {
	Device           string        `mapstructure:"device"`
	SampleRate       uint32        `mapstructure:"sample_rate" validate:"min=8000,max=48000"`
	Channels         uint32        `mapstructure:"channels" validate:"oneof=1 2"`
	Gain             float64       `mapstructure:"gain" validate:"gte=0,lte=8"`
	MinDuration      time.Duration `mapstructure:"min_duration" validate:"gte=0"`
	SilenceThreshold float64       `mapstructure:"silence_threshold" validate:"gte=0,lte=1"`
	Dir              string        `mapstructure:"dir"`
	Retain           bool          `mapstructure:"retain"`
}

type Transcription struct {
	Provider     string        `mapstructure:"provider" validate:"oneof=auto openai groq whisper whisper-cpp"`
	Model        string        `mapstructure:"model"`
	Language     string        `mapstructure:"language"`
	APIKey       string        `mapstructure:"api_key"`
	Endpoint     string        `mapstructure:"endpoint" validate:"omitempty,url"`
	CommandPath  string        `mapstructure:"command_path"`
	ModelPath    string        `mapstructure:"model_path"`
	UploadFormat string        `mapstructure:"upload_format" validate:"oneof=wav flac"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type Delivery struct {
	Direct            bool          `mapstructure:"direct"`
	InputMethod       string        `mapstructure:"input_method" validate:"oneof=auto wtype ydotool xdotool uinput native none"`
	AutoPaste         bool          `mapstructure:"auto_paste"`
	PreserveClipboard bool          `mapstructure:"preserve_clipboard"`
	RestoreDelay      time.Duration `mapstructure:"restore_delay" validate:"gte=0"`
	VerifyTimeout     time.Duration `mapstructure:"verify_timeout" validate:"gt=0"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout" validate:"gt=0"`
}

type Feedback struct {
	Sounds        bool `mapstructure:"sounds"`
	Notifications bool `mapstructure:"notifications"`
}

type Control struct {
	// Listen is host:port for the local control API; empty disables it.
	Listen string `mapstructure:"listen" validate:"omitempty,hostname_port"`
}

type Hotkey struct {
	Enabled   bool          `mapstructure:"enabled"`
	LongPress time.Duration `mapstructure:"long_press" validate:"gt=0"`
}

type Log struct {
	Dir         string `mapstructure:"dir"`
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Transcripts bool   `mapstructure:"transcripts"`
}

// Durations are kept as strings so `config show` prints them readably.
func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.device", "default")
	v.SetDefault("audio.sample_rate", audio.DefaultSampleRate)
	v.SetDefault("audio.channels", audio.DefaultChannels)
	v.SetDefault("audio.gain", 1.0)
	v.SetDefault("audio.min_duration", "300ms")
	v.SetDefault("audio.silence_threshold", 0.01)
	v.SetDefault("audio.dir", "")
	v.SetDefault("audio.retain", false)

	v.SetDefault("transcription.provider", "auto")
	v.SetDefault("transcription.model", "")
	v.SetDefault("transcription.language", "auto")
	v.SetDefault("transcription.api_key", "")
	v.SetDefault("transcription.endpoint", "")
	v.SetDefault("transcription.command_path", "")
	v.SetDefault("transcription.model_path", "")
	v.SetDefault("transcription.upload_format", "wav")
	v.SetDefault("transcription.timeout", "60s")

	v.SetDefault("delivery.direct", false)
	v.SetDefault("delivery.input_method", "auto")
	v.SetDefault("delivery.auto_paste", true)
	v.SetDefault("delivery.preserve_clipboard", true)
	v.SetDefault("delivery.restore_delay", "600ms")
	v.SetDefault("delivery.verify_timeout", "1s")
	v.SetDefault("delivery.command_timeout", "5s")

	v.SetDefault("feedback.sounds", true)
	v.SetDefault("feedback.notifications", false)

	v.SetDefault("control.listen", "127.0.0.1:3737")

	v.SetDefault("hotkey.enabled", true)
	v.SetDefault("hotkey.long_press", "400ms")

	v.SetDefault("log.dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.transcripts", true)
}

// Dir is where config.toml and an optional .env live.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, "murmur")
}

// DefaultPath is Dir()/config.toml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads path, or the default location when path is empty. A missing
// default file is fine; a missing explicit file is an error.
func Load(path string) (*Config, error) {
	v, dotErrs, err := read(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c.Source = v.ConfigFileUsed()
	c.DotEnvErrs = dotErrs
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func read(path string) (*viper.Viper, []error, error) {
	dotErrs := loadDotEnv(path)

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(Dir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
	}
	return v, dotErrs, nil
}

// loadDotEnv fills unset variables from ./.env and the config directory's
// .env. Existing environment always wins. A missing file is fine; one that
// fails to parse is returned.
func loadDotEnv(path string) []error {
	var errs []error
	dirs := []string{"."}
	if path != "" {
		dirs = append(dirs, filepath.Dir(path))
	} else {
		dirs = append(dirs, Dir())
	}
	for _, d := range dirs {
		f := filepath.Join(d, ".env")
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
		}
	}
	return errs
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fieldPath(e.Namespace()), e.Tag(), e.Value()))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

// fieldPath turns Config.Audio.SampleRate into audio.sample_rate.
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Config) TranscriberConfig() transcriber.Config {
	t := c.Transcription
	return transcriber.Config{
		Kind:         transcriber.Kind(t.Provider),
		Model:        t.Model,
		Language:     t.Language,
		APIKey:       t.APIKey,
		Endpoint:     t.Endpoint,
		CommandPath:  t.CommandPath,
		ModelPath:    t.ModelPath,
		UploadFormat: t.UploadFormat,
		Timeout:      t.Timeout,
	}
}

func (c *Config) DeliveryOptions() delivery.Options {
	d := c.Delivery
	return delivery.Options{
		Direct:            d.Direct,
		AutoPaste:         d.AutoPaste,
		PreserveClipboard: d.PreserveClipboard,
		RestoreDelay:      d.RestoreDelay,
		VerifyTimeout:     d.VerifyTimeout,
	}
}

func (c *Config) CaptureConfig() audio.CaptureConfig {
	return audio.CaptureConfig{
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
		Gain:       c.Audio.Gain,
	}
}

// Show renders the effective settings as TOML with the API key masked.
func Show(path string) (string, error) {
	v, _, err := read(path)
	if err != nil {
		return "", err
	}
	settings := v.AllSettings()
	if t, ok := settings["transcription"].(map[string]any); ok {
		if k, _ := t["api_key"].(string); k != "" {
			t["api_key"] = mask(k)
		}
	}
	out, err := toml.Marshal(settings)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func mask(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "****" + key[len(key)-4:]
}
