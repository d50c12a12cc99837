// Package replay tracks inbound transaction ids that have already settled.
package replay

import (
	"fmt"
	"strings"

	bridgeerrors "mpcbridge/core/errors"
)

// Storage abstracts the subset of state functionality required by the guard.
type Storage interface {
	KVGet(key string, out interface{}) (bool, error)
	KVPut(key string, value interface{}) error
	KVDelete(key string)
	KVAppend(key string, value []byte) error
	KVGetList(key string, out interface{}) error
}

// Guard is a permanent processed-id set. It offers no locking: the host runs
// one turn at a time, so check-then-mark within a turn is atomic.
type Guard struct {
	store  Storage
	prefix string
}

// New returns a guard whose slots are namespaced by prefix.
func New(store Storage, prefix string) *Guard {
	return &Guard{store: store, prefix: prefix}
}

func (g *Guard) processedKey(id string) string { return g.prefix + "/processed/" + id }
func (g *Guard) inFlightKey(id string) string  { return g.prefix + "/inflight/" + id }
func (g *Guard) indexKey() string              { return g.prefix + "/index" }
func (g *Guard) reservedKey() string           { return g.prefix + "/reserved" }

func normalize(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("%w: transaction id required", bridgeerrors.ErrMalformedInstruction)
	}
	return trimmed, nil
}

// HasProcessed reports whether id has been marked.
func (g *Guard) HasProcessed(id string) (bool, error) {
	id, err := normalize(id)
	if err != nil {
		return false, err
	}
	return g.store.KVGet(g.processedKey(id), nil)
}

// MarkProcessed records id permanently. Marking twice fails.
func (g *Guard) MarkProcessed(id string) error {
	id, err := normalize(id)
	if err != nil {
		return err
	}
	seen, err := g.store.KVGet(g.processedKey(id), nil)
	if err != nil {
		return err
	}
	if seen {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrAlreadyProcessed, id)
	}
	if err := g.store.KVPut(g.processedKey(id), true); err != nil {
		return err
	}
	if err := g.unreserve(id); err != nil {
		return err
	}
	return g.store.KVAppend(g.indexKey(), []byte(id))
}

// All returns every processed id in insertion order.
func (g *Guard) All() ([]string, error) {
	var raw [][]byte
	if err := g.store.KVGetList(g.indexKey(), &raw); err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, id := range raw {
		out[i] = string(id)
	}
	return out, nil
}

// Reserve marks id as having a dispatched, unresolved settlement. It fails
// if id is processed or already reserved.
func (g *Guard) Reserve(id string) error {
	id, err := normalize(id)
	if err != nil {
		return err
	}
	seen, err := g.HasProcessed(id)
	if err != nil {
		return err
	}
	if seen {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrAlreadyProcessed, id)
	}
	busy, err := g.store.KVGet(g.inFlightKey(id), nil)
	if err != nil {
		return err
	}
	if busy {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrSettlementInFlight, id)
	}
	if err := g.store.KVPut(g.inFlightKey(id), true); err != nil {
		return err
	}
	return g.store.KVAppend(g.reservedKey(), []byte(id))
}

func (g *Guard) unreserve(id string) error {
	g.store.KVDelete(g.inFlightKey(id))
	var reserved [][]byte
	if err := g.store.KVGetList(g.reservedKey(), &reserved); err != nil {
		return err
	}
	kept := reserved[:0]
	for _, raw := range reserved {
		if string(raw) != id {
			kept = append(kept, raw)
		}
	}
	if len(kept) == 0 {
		g.store.KVDelete(g.reservedKey())
		return nil
	}
	return g.store.KVPut(g.reservedKey(), kept)
}

// Release clears a reservation without marking the id.
func (g *Guard) Release(id string) error {
	id, err := normalize(id)
	if err != nil {
		return err
	}
	return g.unreserve(id)
}

// Reserved lists ids with an unresolved reservation.
func (g *Guard) Reserved() ([]string, error) {
	var raw [][]byte
	if err := g.store.KVGetList(g.reservedKey(), &raw); err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, id := range raw {
		out[i] = string(id)
	}
	return out, nil
}

// ClearReserved drops every reservation and returns the ids it held. Only
// safe once nothing can still resolve them.
func (g *Guard) ClearReserved() ([]string, error) {
	ids, err := g.Reserved()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		g.store.KVDelete(g.inFlightKey(id))
	}
	g.store.KVDelete(g.reservedKey())
	return ids, nil
}

// InFlight reports whether id is reserved.
func (g *Guard) InFlight(id string) (bool, error) {
	id, err := normalize(id)
	if err != nil {
		return false, err
	}
	return g.store.KVGet(g.inFlightKey(id), nil)
}
