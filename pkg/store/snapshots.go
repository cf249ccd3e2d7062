// Package store persists daily network snapshots in a local LevelDB so a
// day's snapshot, once fetched, is never refetched. The store is
// append-only: recorded days are immutable.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/libertai/ltai-points/pkg/types"
)

const snapshotPrefix = "snapshot:"

// Snapshots wraps the LevelDB connection holding date-keyed snapshots.
type Snapshots struct {
	conn *leveldb.DB
}

// Open opens (or creates) the snapshot database at the given path.
func Open(path string) (*Snapshots, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	return &Snapshots{conn: db}, nil
}

// Close safely closes the underlying database.
func (s *Snapshots) Close() error {
	return s.conn.Close()
}

// Get returns the stored snapshot for the given day key, with ok=false when
// the day has not been recorded yet.
func (s *Snapshots) Get(day string) (*types.NetworkSnapshot, bool, error) {
	raw, err := s.conn.Get([]byte(snapshotPrefix+day), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot %s: %w", day, err)
	}
	var snap types.NetworkSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("decode snapshot %s: %w", day, err)
	}
	return &snap, true, nil
}

// Put records a snapshot under its day key. Existing days are left
// untouched; recorded snapshots are immutable.
func (s *Snapshots) Put(snap *types.NetworkSnapshot) error {
	key := []byte(snapshotPrefix + snap.Date)
	if ok, err := s.conn.Has(key, nil); err != nil {
		return fmt.Errorf("check snapshot %s: %w", snap.Date, err)
	} else if ok {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.Date, err)
	}
	if err := s.conn.Put(key, raw, nil); err != nil {
		return fmt.Errorf("write snapshot %s: %w", snap.Date, err)
	}
	return nil
}
