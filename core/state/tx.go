package state

import (
	"errors"
	"fmt"

	"mpcbridge/storage"
)

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Tx is a write overlay over a database. Reads observe the overlay's own
// writes; nothing reaches the database until Commit.
type Tx struct {
	db     storage.Database
	writes map[string]pendingWrite
	closed bool
}

// NewTx opens an overlay on db.
func NewTx(db storage.Database) *Tx {
	return &Tx{db: db, writes: make(map[string]pendingWrite)}
}

// Get returns the value stored under key. The boolean reports presence.
func (t *Tx) Get(key []byte) ([]byte, bool, error) {
	if w, ok := t.writes[string(key)]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return append([]byte(nil), w.value...), true, nil
	}
	value, err := t.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// Put stages a write.
func (t *Tx) Put(key, value []byte) {
	t.writes[string(key)] = pendingWrite{value: append([]byte(nil), value...)}
}

// Delete stages a removal.
func (t *Tx) Delete(key []byte) {
	t.writes[string(key)] = pendingWrite{deleted: true}
}

// Dirty reports whether any write has been staged.
func (t *Tx) Dirty() bool { return len(t.writes) > 0 }

// Commit flushes staged writes atomically and closes the overlay.
func (t *Tx) Commit() error {
	if t.closed {
		return fmt.Errorf("state: transaction already closed")
	}
	t.closed = true
	if len(t.writes) == 0 {
		return nil
	}
	batch := t.db.NewBatch()
	for key, w := range t.writes {
		if w.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), w.value)
	}
	t.writes = nil
	return batch.Write()
}

// Discard drops staged writes.
func (t *Tx) Discard() {
	t.closed = true
	t.writes = nil
}
