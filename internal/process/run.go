// Package process runs helper binaries (whisper, wtype, ydotool, ...) with a
// bounded lifetime and captured output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNotFound is returned when the binary cannot be resolved or executed.
var ErrNotFound = errors.New("executable not found")

type Command struct {
	// Binary is a path or a name resolved via PATH.
	Binary string
	Args   []string
	Dir    string
	// Env is appended to os.Environ; nil inherits the parent environment.
	Env   []string
	Stdin io.Reader
	// GracePeriod between SIGTERM and SIGKILL once ctx is done. Defaults to 2s.
	GracePeriod time.Duration
}

type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// StderrTail returns the last non-empty line of stderr, trimmed to n bytes.
func (r *Result) StderrTail(n int) string {
	if r == nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(string(r.Stderr)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if len(last) > n {
		last = last[len(last)-n:]
	}
	return last
}

// Resolve reports the absolute path of binary without running it.
func Resolve(binary string) (string, error) {
	if binary == "" {
		return "", ErrNotFound
	}
	p, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%s: %w", binary, ErrNotFound)
	}
	return p, nil
}

// Run executes cmd and waits for it. A non-zero exit is returned as *ExitError
// together with the captured output.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}

	grace := cmd.GracePeriod
	if grace == 0 {
		grace = 2 * time.Second
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}

	configureGroup(c)
	c.WaitDelay = grace

	start := time.Now()
	err := c.Run()

	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: c.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if err == nil {
		return result, nil
	}
	if c.ProcessState == nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return result, fmt.Errorf("%s: %w", cmd.Binary, ErrNotFound)
		}
		return result, fmt.Errorf("process: start %s: %w", cmd.Binary, err)
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("process: %s killed: %w", cmd.Binary, ctx.Err())
	}
	return result, &ExitError{Binary: cmd.Binary, Code: result.ExitCode, Stderr: result.StderrTail(200)}
}

type ExitError struct {
	Binary string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Binary, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Binary, e.Code, e.Stderr)
}
