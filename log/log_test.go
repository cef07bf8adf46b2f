package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() {
		Close()
		SetDir("")
		SetMirror(nil)
		KeepTranscripts(true)
	})
	return tmp
}

func TestResolveDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"flag absolute", "/tmp/mylog", "", "/tmp/mylog"},
		{"flag relative", "logs", "", filepath.Join(wd, "logs")},
		{"flag beats env", "/tmp/flag", "/tmp/env", "/tmp/flag"},
		{"env", "", "/tmp/murmur-env-log", "/tmp/murmur-env-log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MURMUR_LOG_PATH", tt.env)
			got, err := ResolveDir(tt.flag)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("MURMUR_LOG_PATH", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Fatal("expected non-empty default directory")
	}
	if !strings.Contains(got, appName) {
		t.Errorf("default dir %q does not mention %q", got, appName)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"diagnostics_log.txt", "transcribe_log.txt"} {
		path := filepath.Join(tmp, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestTranscriptionText(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	TranscriptionText("hello world")

	data, err := os.ReadFile(filepath.Join(tmp, "transcribe_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "hello world") {
		t.Errorf("transcribe_log.txt missing text, got: %q", line)
	}
	// format: "2006-01-02 15:04:05\t[pid]\ttext\n"
	if strings.Count(line, "\t") != 2 {
		t.Errorf("expected tab-separated format, got: %q", line)
	}
}

func TestTranscriptionTextDisabled(t *testing.T) {
	tmp := setupLogDir(t)
	KeepTranscripts(false)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	TranscriptionText("secret dictation")

	data, err := os.ReadFile(filepath.Join(tmp, "transcribe_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty transcript log, got %q", data)
	}
}

func TestStructuredEntries(t *testing.T) {
	tmp := setupLogDir(t)
	var buf bytes.Buffer
	SetMirror(&buf)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Transition("abc", "idle", "recording")
	DeliveryResult("delivered", "clipboard_paste", 20*time.Millisecond)

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"state_transition", "to=recording", "method=clipboard_paste"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("diagnostics missing %q:\n%s", want, data)
		}
	}
	if !strings.Contains(buf.String(), "state_transition") {
		t.Errorf("mirror missing entry, got %q", buf.String())
	}
}

func TestLoggerBeforeInit(t *testing.T) {
	setupLogDir(t)
	// must not panic and must not write anywhere
	Logger().Info().Msg("ignored")
	Info("ignored")
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
