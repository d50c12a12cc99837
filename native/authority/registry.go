// Package authority stores the signing authority of a contract and rotates
// it in two phases.
package authority

import (
	"fmt"
	"strings"

	bridgeerrors "mpcbridge/core/errors"
)

// Storage abstracts the subset of state functionality required by the registry.
type Storage interface {
	KVGet(key string, out interface{}) (bool, error)
	KVPut(key string, value interface{}) error
	KVDelete(key string)
}

// Registry holds the current and pending authority. Callers must consult it
// on every gated call; it is never cached.
type Registry struct {
	store  Storage
	prefix string
}

// New returns a registry whose slots are namespaced by prefix.
func New(store Storage, prefix string) *Registry {
	return &Registry{store: store, prefix: prefix}
}

func (r *Registry) currentKey() string { return r.prefix + "/current" }
func (r *Registry) pendingKey() string { return r.prefix + "/pending" }

// Init sets the first authority. It may run once.
func (r *Registry) Init(authority string) error {
	authority = strings.TrimSpace(authority)
	if authority == "" {
		return fmt.Errorf("authority: account required")
	}
	exists, err := r.store.KVGet(r.currentKey(), nil)
	if err != nil {
		return err
	}
	if exists {
		return bridgeerrors.ErrAlreadyInitialized
	}
	return r.store.KVPut(r.currentKey(), authority)
}

// Current returns the active authority.
func (r *Registry) Current() (string, error) {
	var current string
	ok, err := r.store.KVGet(r.currentKey(), &current)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", bridgeerrors.ErrNotInitialized
	}
	return current, nil
}

// Pending returns the proposed authority, empty when none.
func (r *Registry) Pending() (string, error) {
	var pending string
	if _, err := r.store.KVGet(r.pendingKey(), &pending); err != nil {
		return "", err
	}
	return pending, nil
}

// Require fails with ErrUnauthorized unless caller is the current authority.
func (r *Registry) Require(caller string) error {
	current, err := r.Current()
	if err != nil {
		return err
	}
	if caller != current {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrUnauthorized, caller)
	}
	return nil
}

// Propose records next as pending. Only the current authority may propose;
// the rotation takes effect once next finalises it.
func (r *Registry) Propose(caller, next string) error {
	if err := r.Require(caller); err != nil {
		return err
	}
	next = strings.TrimSpace(next)
	if next == "" {
		return fmt.Errorf("%w: proposed authority required", bridgeerrors.ErrMalformedInstruction)
	}
	return r.store.KVPut(r.pendingKey(), next)
}

// Finalize commits the rotation. Only the pending authority may finalise.
// It returns the previous authority.
func (r *Registry) Finalize(caller string) (string, error) {
	pending, err := r.Pending()
	if err != nil {
		return "", err
	}
	if pending == "" || caller != pending {
		return "", fmt.Errorf("%w: %s is not the pending authority", bridgeerrors.ErrUnauthorized, caller)
	}
	previous, err := r.Current()
	if err != nil {
		return "", err
	}
	if err := r.store.KVPut(r.currentKey(), pending); err != nil {
		return "", err
	}
	r.store.KVDelete(r.pendingKey())
	return previous, nil
}
