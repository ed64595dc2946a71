package credstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/taskdeck/internal/bundle"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps the record as a JSON file, by default ~/.taskdeck/session.json.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath returns the location used when no path is configured.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	return filepath.Join(home, ".taskdeck", "session.json"), nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Persist(_ context.Context, b *bundle.TokenBundle) error {
	data, err := encodeRecord(b)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating credential directory '%s': %w", dir, err)
	}

	// write to a sibling first so readers never see a half-written record
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file in '%s': %w", dir, err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("restricting permissions of '%s': %w", tmp.Name(), err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing credentials to '%s': %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing '%s': %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing credential file '%s': %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context) (*bundle.TokenBundle, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading credential file '%s': %w", s.path, err)
	}
	b := decodeRecord(data)
	if b == nil {
		log.Debug().Str("path", s.path).Msg("ignoring malformed credential file")
	}
	return b, nil
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credential file '%s': %w", s.path, err)
	}
	return nil
}
