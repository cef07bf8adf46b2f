package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrExists = errors.New("config file already exists")

const defaultFile = `# murmur configuration. Every key is optional; MURMUR_<SECTION>_<KEY>
# environment variables override this file.

[audio]
device = "default"          # name or substring, see "murmur devices"
sample_rate = 16000
channels = 1
gain = 1.0
min_duration = "300ms"      # shorter recordings are dropped
silence_threshold = 0.01    # peak RMS below this counts as silence
retain = false              # keep WAV files after transcription

[transcription]
provider = "auto"           # auto, openai, groq, whisper, whisper-cpp
model = ""
language = "auto"
# api_key = ""              # or OPENAI_API_KEY / GROQ_API_KEY in .env
# endpoint = ""             # OpenAI-compatible base URL
# command_path = ""         # whisper / whisper-cli binary
# model_path = ""           # ggml model for whisper.cpp
upload_format = "wav"       # wav or flac
timeout = "60s"

[delivery]
direct = false              # type the text before trying the clipboard
input_method = "auto"       # auto, wtype, ydotool, xdotool, uinput, none
auto_paste = true
preserve_clipboard = true
restore_delay = "600ms"
verify_timeout = "1s"
command_timeout = "5s"

[feedback]
sounds = true
notifications = false

[control]
listen = "127.0.0.1:3737"   # empty disables the local API

[hotkey]
enabled = true              # Ctrl+Shift+Space
long_press = "400ms"        # hold longer for push-to-talk

[log]
level = "info"
transcripts = true
`

// WriteDefault creates a commented config file at path (DefaultPath when
// empty) and refuses to overwrite an existing one.
func WriteDefault(path string) (string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s: %w", path, ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return path, err
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0600); err != nil {
		return path, err
	}
	return path, nil
}
