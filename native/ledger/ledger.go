// Package ledger keeps the fungible balance map of a token contract.
package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/types"
)

// Storage abstracts the subset of state functionality required by the ledger.
type Storage interface {
	KVGet(key string, out interface{}) (bool, error)
	KVPut(key string, value interface{}) error
}

// Ledger owns balances and total supply. Balances are only mutated through
// Credit and Debit.
type Ledger struct {
	store  Storage
	prefix string
}

// New returns a ledger whose slots are namespaced by prefix.
func New(store Storage, prefix string) *Ledger {
	return &Ledger{store: store, prefix: prefix}
}

func (l *Ledger) balanceKey(account string) string    { return l.prefix + "/balance/" + account }
func (l *Ledger) registeredKey(account string) string { return l.prefix + "/registered/" + account }
func (l *Ledger) supplyKey() string                   { return l.prefix + "/supply" }

// Register opens a zero balance for account. Registering twice is a no-op.
func (l *Ledger) Register(account string) error {
	if account == "" {
		return fmt.Errorf("ledger: account required")
	}
	return l.store.KVPut(l.registeredKey(account), true)
}

// IsRegistered reports whether account holds a balance slot.
func (l *Ledger) IsRegistered(account string) (bool, error) {
	var registered bool
	ok, err := l.store.KVGet(l.registeredKey(account), &registered)
	if err != nil {
		return false, err
	}
	return ok && registered, nil
}

// BalanceOf returns the balance of account, zero when unregistered.
func (l *Ledger) BalanceOf(account string) (*uint256.Int, error) {
	amount := new(uint256.Int)
	if _, err := l.store.KVGet(l.balanceKey(account), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	supply := new(uint256.Int)
	if _, err := l.store.KVGet(l.supplyKey(), supply); err != nil {
		return nil, err
	}
	return supply, nil
}

// Credit adds amount to account and to total supply. The account must be
// registered.
func (l *Ledger) Credit(account string, amount *uint256.Int) error {
	if err := types.ValidateAmount(amount); err != nil {
		return err
	}
	registered, err := l.IsRegistered(account)
	if err != nil {
		return err
	}
	if !registered {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrNotRegistered, account)
	}
	balance, err := l.BalanceOf(account)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	nextSupply := new(uint256.Int).Add(supply, amount)
	if nextSupply.Gt(types.MaxAmount) {
		return fmt.Errorf("%w: total supply overflow", bridgeerrors.ErrInvalidAmount)
	}
	if err := l.store.KVPut(l.balanceKey(account), new(uint256.Int).Add(balance, amount)); err != nil {
		return err
	}
	return l.store.KVPut(l.supplyKey(), nextSupply)
}

// Debit removes amount from account and from total supply.
func (l *Ledger) Debit(account string, amount *uint256.Int) error {
	if err := types.ValidateAmount(amount); err != nil {
		return err
	}
	balance, err := l.BalanceOf(account)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", bridgeerrors.ErrInsufficientBalance, account, balance.Dec(), amount.Dec())
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.store.KVPut(l.balanceKey(account), new(uint256.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return l.store.KVPut(l.supplyKey(), new(uint256.Int).Sub(supply, amount))
}

// Move debits from and credits to within one turn.
func (l *Ledger) Move(from, to string, amount *uint256.Int) error {
	if from == to {
		return fmt.Errorf("ledger: sender and receiver must differ")
	}
	if err := l.Debit(from, amount); err != nil {
		return err
	}
	return l.Credit(to, amount)
}
