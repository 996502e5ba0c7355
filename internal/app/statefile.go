package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// StateStore reads and writes JSON state files under a single directory.
// Writes go to a temp file in the same directory and are renamed into
// place, so a crash mid-write leaves either the old file or the new one.
// A file that fails to decode is treated as absent: the caller starts
// empty rather than crashing on a half-written or corrupted snapshot.
type StateStore struct {
	logger *zap.Logger
	dir    string
}

// NewStateStore creates a store rooted at dir, creating it if needed.
func NewStateStore(logger *zap.Logger, dir string) (*StateStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &StateStore{logger: logger, dir: dir}, nil
}

// Dir returns the state directory.
func (s *StateStore) Dir() string {
	return s.dir
}

// Save marshals v and atomically replaces the named file.
func (s *StateStore) Save(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	final := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// Load unmarshals the named file into v. Returns false when the file does
// not exist or does not decode; a corrupt file is renamed aside and logged,
// never fatal.
func (s *StateStore) Load(name string, v any) (bool, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("discarding corrupt state file",
			zap.String("file", name),
			zap.Int("bytes", len(data)),
			zap.Error(err),
		)
		// Keep the bad bytes around for postmortem instead of deleting.
		_ = os.Rename(path, path+".corrupt")
		return false, nil
	}
	return true, nil
}
