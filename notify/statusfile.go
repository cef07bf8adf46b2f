package notify

import (
	"os"
	"path/filepath"

	"murmur/log"
	"murmur/session"
)

// StatusFile keeps a one-word state in a file for status bar modules
// (waybar, polybar, i3blocks) to poll.
type StatusFile struct {
	path string
}

// DefaultStatusPath is $XDG_RUNTIME_DIR/murmur.status, or the temp dir.
func DefaultStatusPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "murmur.status")
}

func NewStatusFile(path string) *StatusFile {
	if path == "" {
		path = DefaultStatusPath()
	}
	s := &StatusFile{path: path}
	s.write(session.Idle)
	return s
}

func (s *StatusFile) Path() string { return s.path }

func (s *StatusFile) Notify(e session.Event) {
	s.write(e.State)
}

// write replaces the file atomically so readers never see a partial word.
func (s *StatusFile) write(st session.State) {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(string(st)+"\n"), 0644); err != nil {
		log.Warnf("status_file_write: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Warnf("status_file_write: %v", err)
	}
}

// Remove deletes the file on shutdown.
func (s *StatusFile) Remove() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Warnf("status_file_remove: %v", err)
	}
}
