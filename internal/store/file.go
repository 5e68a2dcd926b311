// internal/store/file.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github-commit-tracker/internal/model"
)

// FileStore keeps the mapping set in a single indented JSON document.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a FileStore backed by path. The directory is created on first use.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger.With("store", DriverJSON, "path", path)}
}

// Load reads the mapping set. A missing file is an empty set.
// A file that cannot be parsed is moved aside to <path>.corrupt so the next save does not clobber it.
func (s *FileStore) Load(ctx context.Context) (model.MappingSet, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return model.MappingSet{}, fmt.Errorf("creating data directory: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("No mapping file yet, starting empty")
		return model.MappingSet{}, nil
	}
	if err != nil {
		return model.MappingSet{}, fmt.Errorf("reading mapping file: %w", err)
	}

	set := model.MappingSet{}
	if err := json.Unmarshal(data, &set); err != nil {
		corruptPath := s.path + ".corrupt"
		if renameErr := os.Rename(s.path, corruptPath); renameErr != nil {
			s.logger.Error("Failed to move corrupt mapping file aside", "error", renameErr)
		}
		return model.MappingSet{}, fmt.Errorf("parsing mapping file (moved to %s): %w", corruptPath, err)
	}
	for id, m := range set {
		m.ChannelID = id
		set[id] = m
	}
	return set, nil
}

// Save writes the set to a temporary file in the same directory and renames it into place.
func (s *FileStore) Save(ctx context.Context, set model.MappingSet) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if set == nil {
		set = model.MappingSet{}
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling mappings: %w", err)
	}

	file, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary mapping file: %w", err)
	}
	temporaryPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary mapping file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary mapping file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary mapping file: %w", err)
	}

	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming mapping file into place: %w", err)
	}

	s.logger.Debug("Saved channel mappings", "count", len(set))
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
