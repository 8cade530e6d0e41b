package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps the state in one JSON file. Saves write a temp file in
// the same directory, fsync it, and rename it over the old state.
type FileStore struct {
	Path string
	now  func() time.Time
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("account dir: %w", err)
	}
	return &FileStore{Path: path, now: time.Now}, nil
}

func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read account state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse account state %s: %w", s.Path, err)
	}
	if st.Positions == nil {
		st.Positions = map[string]PositionState{}
	}
	return &st, nil
}

func (s *FileStore) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal account state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".account-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write account state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync account state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close account state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace account state: %w", err)
	}
	return nil
}

func (s *FileStore) Reset(initialCash float64) error {
	return s.Save(Fresh(initialCash, s.now()))
}

func (s *FileStore) Close() error { return nil }
