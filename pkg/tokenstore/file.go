package tokenstore

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File persists the token in a single file readable only by the owner.
type File struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewFile creates a store backed by path. The file and its directory are
// created on the first Set.
func NewFile(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, logger: logger}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Get implements Store.
func (f *File) Get() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("failed to read token file", slog.String("path", f.path), slog.String("error", err.Error()))
		}
		return "", false
	}

	token := strings.TrimSpace(string(data))
	return token, token != ""
}

// Set implements Store. The write goes through a temporary file and a rename
// so a crash never leaves a truncated token behind.
func (f *File) Set(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		f.logger.Error("failed to create token directory", slog.String("path", f.path), slog.String("error", err.Error()))
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".authToken-*")
	if err != nil {
		f.logger.Error("failed to create temp token file", slog.String("error", err.Error()))
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		f.logger.Error("failed to write token file", slog.String("error", err.Error()))
		return
	}
	if err := tmp.Chmod(0o600); err != nil {
		f.logger.Warn("failed to restrict token file mode", slog.String("error", err.Error()))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		f.logger.Error("failed to close token file", slog.String("error", err.Error()))
		return
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		f.logger.Error("failed to move token file into place", slog.String("path", f.path), slog.String("error", err.Error()))
	}
}

// Clear implements Store.
func (f *File) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		f.logger.Error("failed to remove token file", slog.String("path", f.path), slog.String("error", err.Error()))
	}
}
