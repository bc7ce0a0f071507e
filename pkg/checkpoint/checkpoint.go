// Package checkpoint persists the durable replay pointer and the fork
// family tree in a small pebble database next to the log directory. The
// engine itself never writes here; the owning database advances the pointer
// through the vlog.Checkpoint contract after each sync.
package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/valyx/valog/pkg/vlog"
)

var (
	ptrKey   = []byte("meta/wal_pointer")
	forksKey = []byte("meta/fork_edges")
)

// Store is a pebble-backed checkpoint. It satisfies vlog.Checkpoint.
type Store struct {
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Pointer returns the last advanced WalPointer, or the zero pointer when the
// store is fresh. The zero pointer makes recovery replay everything.
func (s *Store) Pointer() (vlog.WalPointer, error) {
	data, closer, err := s.db.Get(ptrKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return vlog.WalPointer{}, nil
		}
		return vlog.WalPointer{}, err
	}
	defer closer.Close()

	if len(data) != 16 {
		return vlog.WalPointer{}, fmt.Errorf("checkpoint: pointer record is %d bytes, want 16", len(data))
	}
	return vlog.WalPointer{
		LogID:  binary.LittleEndian.Uint64(data[0:8]),
		Offset: binary.LittleEndian.Uint64(data[8:16]),
	}, nil
}

// Advance durably records ptr. Called after the log itself synced, so a
// crash between the two leaves the pointer behind the log, never ahead --
// replay then revisits records, which is safe.
func (s *Store) Advance(ptr vlog.WalPointer) error {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], ptr.LogID)
	binary.LittleEndian.PutUint64(buf[8:16], ptr.Offset)
	return s.db.Set(ptrKey, buf[:], pebble.Sync)
}

// SaveForks persists the fork family edges (child -> parent) so the tree can
// be re-registered with the engine on the next open.
func (s *Store) SaveForks(edges map[uint64]uint64) error {
	data, err := json.Marshal(edges)
	if err != nil {
		return err
	}
	return s.db.Set(forksKey, data, pebble.Sync)
}

// Forks returns the persisted fork edges, empty when none were saved.
func (s *Store) Forks() (map[uint64]uint64, error) {
	data, closer, err := s.db.Get(forksKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return map[uint64]uint64{}, nil
		}
		return nil, err
	}
	defer closer.Close()

	edges := make(map[uint64]uint64)
	if err := json.Unmarshal(data, &edges); err != nil {
		return nil, fmt.Errorf("checkpoint: fork edges: %w", err)
	}
	return edges, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
