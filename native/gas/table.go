// Package gas sizes the budgets attached to bridge dispatches.
package gas

import (
	"fmt"
	"sort"

	"mpcbridge/core/host"
)

const (
	// DefaultBase is the unit every default budget is derived from.
	DefaultBase = 5 * host.TeraGas
	// TokenTransferCall is the fixed cost of a token transfer-and-call hop.
	TokenTransferCall = 30 * host.TeraGas
)

// Storage abstracts the subset of state functionality required by the table.
type Storage interface {
	KVGet(key string, out interface{}) (bool, error)
	KVPut(key string, value interface{}) error
	KVAppend(key string, value []byte) error
	KVGetList(key string, out interface{}) error
}

// Table stores the base budget and per-token overrides. Gating is the
// owning contract's job.
type Table struct {
	store  Storage
	prefix string
}

// New returns a table whose slots are namespaced by prefix.
func New(store Storage, prefix string) *Table {
	return &Table{store: store, prefix: prefix}
}

func (t *Table) baseKey() string              { return t.prefix + "/base" }
func (t *Table) tokenKey(token string) string { return t.prefix + "/token/" + token }
func (t *Table) indexKey() string             { return t.prefix + "/index" }

// Base returns the base budget, DefaultBase when unset.
func (t *Table) Base() (host.Gas, error) {
	var base uint64
	ok, err := t.store.KVGet(t.baseKey(), &base)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultBase, nil
	}
	return host.Gas(base), nil
}

// SetBase replaces the base budget.
func (t *Table) SetBase(gas host.Gas) error {
	if gas == 0 {
		return fmt.Errorf("gas: base budget must be positive")
	}
	return t.store.KVPut(t.baseKey(), uint64(gas))
}

// Set stores an override for token.
func (t *Table) Set(token string, gas host.Gas) error {
	if token == "" {
		return fmt.Errorf("gas: token required")
	}
	if gas == 0 {
		return fmt.Errorf("gas: budget for %s must be positive", token)
	}
	if err := t.store.KVPut(t.tokenKey(token), uint64(gas)); err != nil {
		return err
	}
	return t.store.KVAppend(t.indexKey(), []byte(token))
}

// BudgetFor returns the override for token or three base units.
func (t *Table) BudgetFor(token string) (host.Gas, error) {
	var override uint64
	ok, err := t.store.KVGet(t.tokenKey(token), &override)
	if err != nil {
		return 0, err
	}
	if ok {
		return host.Gas(override), nil
	}
	base, err := t.Base()
	if err != nil {
		return 0, err
	}
	return base * 3, nil
}

// SwapInRequirement is the prepaid gas an inbound credit must carry: the
// token's budget plus four base units for the engine's own work and its
// continuation.
func (t *Table) SwapInRequirement(token string) (host.Gas, error) {
	budget, err := t.BudgetFor(token)
	if err != nil {
		return 0, err
	}
	base, err := t.Base()
	if err != nil {
		return 0, err
	}
	return budget + base*4, nil
}

// SwapOutBudget is the protocol-fixed budget of the outbound path.
func (t *Table) SwapOutBudget() (host.Gas, error) {
	base, err := t.Base()
	if err != nil {
		return 0, err
	}
	return base*9 + TokenTransferCall, nil
}

// All returns every override keyed by token, sorted by token.
func (t *Table) All() ([]Override, error) {
	var raw [][]byte
	if err := t.store.KVGetList(t.indexKey(), &raw); err != nil {
		return nil, err
	}
	out := make([]Override, 0, len(raw))
	for _, token := range raw {
		var gas uint64
		if _, err := t.store.KVGet(t.tokenKey(string(token)), &gas); err != nil {
			return nil, err
		}
		out = append(out, Override{Token: string(token), Gas: host.Gas(gas)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

// Override is a per-token budget.
type Override struct {
	Token string
	Gas   host.Gas
}
