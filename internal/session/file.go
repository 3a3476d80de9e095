package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/oauth2"
)

// FileSource reads the bearer token from a file maintained by another process
// (the sign-in flow of the application shell). The file is read lazily and
// cached until Watch observes a change to it.
type FileSource struct {
	path string

	mu     sync.RWMutex
	token  string
	loaded bool
}

// NewFileSource returns a Source backed by the token file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: filepath.Clean(path)}
}

// Path returns the watched file path.
func (s *FileSource) Path() string {
	return s.path
}

// Token implements oauth2.TokenSource. A missing file yields an empty token,
// which Bearer reports as ErrAuthRequired.
func (s *FileSource) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	if s.loaded {
		tok := s.token
		s.mu.RUnlock()
		return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))

	s.mu.Lock()
	s.token = tok
	s.loaded = true
	s.mu.Unlock()

	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

// Invalidate drops the cached token so the next Token call re-reads the file.
func (s *FileSource) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

// Watch invalidates the cached token whenever the file is written, replaced or
// removed, until ctx is cancelled. The parent directory is watched so that
// atomic rename-into-place rewrites are seen.
func (s *FileSource) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create token watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				slog.Debug("token file changed", "path", s.path, "op", ev.Op.String())
				s.Invalidate()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("token watcher error", "path", s.path, "error", err)
		}
	}
}
