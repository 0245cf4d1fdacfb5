package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dyluth/signboard/pkg/signboard"
)

// FileStore keeps the snapshot in a single JSON file. The file's existence is
// the first-launch marker.
type FileStore struct {
	path string
}

// NewFile returns a store backed by the file at path. Parent directories are
// created on the first Save.
func NewFile(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) []signboard.Signboard {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Store] Failed to read %s, starting empty: %v", s.path, err)
		}
		return []signboard.Signboard{}
	}
	return signboard.DecodeSnapshot(data)
}

func (s *FileStore) Initialized(ctx context.Context) bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save writes the snapshot to a temporary file in the same directory and
// renames it over the old one, so readers see either snapshot in full.
func (s *FileStore) Save(ctx context.Context, items []signboard.Signboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := signboard.EncodeSnapshot(items)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
