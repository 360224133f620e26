package runtime

import (
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by KVStore.Get for missing keys.
var ErrNotFound = errors.New("not found")

// KVStore is the persistence boundary of the ledger. Account state is keyed
// by deterministic prefixes; a Batch is the commit unit of one transaction.
type KVStore interface {
	Get(key []byte) ([]byte, error)
	NewBatch() Batch
	Close() error
}

// Batch stages writes that are applied atomically on Commit.
type Batch interface {
	Set(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Discard()
}

// PebbleStore implements KVStore on top of a pebble database.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble-backed store at path.
func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open pebble")
	}
	return &PebbleStore{db: db}, nil
}

// Get returns a copy of the value stored at key.
func (p *PebbleStore) Get(key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get")
	}
	out := make([]byte, len(value))
	copy(out, value)
	if err := closer.Close(); err != nil {
		return nil, errors.Wrap(err, "close value")
	}
	return out, nil
}

// NewBatch returns a staged write batch.
func (p *PebbleStore) NewBatch() Batch {
	return &pebbleBatch{b: p.db.NewBatch()}
}

// Close closes the underlying database.
func (p *PebbleStore) Close() error {
	return p.db.Close()
}

type pebbleBatch struct {
	b *pebble.Batch
}

func (t *pebbleBatch) Set(key, value []byte) error {
	return t.b.Set(key, value, &pebble.WriteOptions{Sync: true})
}

func (t *pebbleBatch) Delete(key []byte) error {
	return t.b.Delete(key, &pebble.WriteOptions{Sync: true})
}

func (t *pebbleBatch) Commit() error {
	return t.b.Commit(&pebble.WriteOptions{Sync: true})
}

func (t *pebbleBatch) Discard() {
	_ = t.b.Close()
}

var _ KVStore = (*PebbleStore)(nil)

var _ io.Closer = (*PebbleStore)(nil)
