// Package configstore persists the two opaque per-datacenter blobs the
// core needs across restarts: DC table + key material + salts, and
// address/port rotation cursors. spec.md §6 asks only for an atomic
// read/write collaborator; Store backs it with an embedded
// github.com/cockroachdb/pebble LSM engine so every write survives a
// crash without hand-rolled atomic-rename staging.
package configstore

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by GetState/GetCursor when no blob is stored
// under key.
var ErrNotFound = errors.New("configstore: key not found")

// Store is a Store implementation backed by a Pebble database directory.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) a Pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("configstore: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// stateKey and cursorKey name the two blobs a Datacenter needs.
func stateKey(dcID uint32) []byte  { return []byte(fmt.Sprintf("dc:%d:state", dcID)) }
func cursorKey(dcID uint32) []byte { return []byte(fmt.Sprintf("dc:%d:cursor", dcID)) }

// PutState atomically writes a DC's serialized key-material-and-salts
// blob.
func (s *Store) PutState(dcID uint32, blob []byte) error {
	return s.commitOne(stateKey(dcID), blob)
}

// GetState reads back a DC's state blob.
func (s *Store) GetState(dcID uint32) ([]byte, error) {
	return s.get(stateKey(dcID))
}

// PutCursor atomically writes a DC's address/port rotation cursor blob.
func (s *Store) PutCursor(dcID uint32, blob []byte) error {
	return s.commitOne(cursorKey(dcID), blob)
}

// GetCursor reads back a DC's rotation cursor blob.
func (s *Store) GetCursor(dcID uint32) ([]byte, error) {
	return s.get(cursorKey(dcID))
}

func (s *Store) commitOne(key, value []byte) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *Store) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte{}, value...)
	closer.Close()
	return out, nil
}
