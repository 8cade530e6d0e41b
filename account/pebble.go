package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

var stateKey = []byte("account/state")

// PebbleStore keeps the state under a single key in a Pebble database.
type PebbleStore struct {
	db  *pebble.DB
	now func() time.Time
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}
	return &PebbleStore{db: db, now: time.Now}, nil
}

func (s *PebbleStore) Load() (*State, error) {
	data, closer, err := s.db.Get(stateKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account state: %w", err)
	}
	defer closer.Close()

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse account state: %w", err)
	}
	if st.Positions == nil {
		st.Positions = map[string]PositionState{}
	}
	return &st, nil
}

func (s *PebbleStore) Save(st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal account state: %w", err)
	}
	if err := s.db.Set(stateKey, data, pebble.Sync); err != nil {
		return fmt.Errorf("save account state: %w", err)
	}
	return nil
}

func (s *PebbleStore) Reset(initialCash float64) error {
	return s.Save(Fresh(initialCash, s.now()))
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*PebbleStore)(nil)
)
