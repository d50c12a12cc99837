// Package anytoken implements the wrapped fungible token the bridge mints
// into, together with the adapter that binds it to an underlying asset.
package anytoken

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/events"
	"mpcbridge/core/host"
	"mpcbridge/core/state"
	"mpcbridge/core/types"
	"mpcbridge/native/authority"
	"mpcbridge/native/ledger"
	"mpcbridge/native/replay"
)

const (
	// GasForTransfer is reserved for a transfer on the underlying asset.
	GasForTransfer = 5 * host.TeraGas
	// GasForResolve is reserved for every continuation of this contract.
	GasForResolve = 5 * host.TeraGas
	// GasForReceiver is the least a transfer-and-call receiver is given.
	GasForReceiver = 5 * host.TeraGas
)

const (
	keyInitialized = "initialized"
	keyMetadata    = "metadata"
	keyUnderlying  = "underlying"
	keyCheckTxHash = "check_tx_hash"
)

// Metadata describes the token.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// InitArgs configures a new token.
type InitArgs struct {
	Authority   string
	TotalSupply *uint256.Int
	Metadata    Metadata
	CheckTxHash bool
}

// FungibleToken is the transfer surface assumed on any underlying asset.
type FungibleToken interface {
	Transfer(env *host.Env, receiver string, amount *uint256.Int, memo string) error
}

// TransferReceiver is implemented by contracts accepting transfer-and-call.
// The returned payload encodes the unused amount to refund.
type TransferReceiver interface {
	OnTransfer(env *host.Env, sender string, amount *uint256.Int, msg string) ([]byte, error)
}

// Token is the contract code of a wrapped token. All state lives in the
// host; one Token value may serve any number of accounts.
type Token struct{}

// New returns the token contract code.
func New() *Token { return &Token{} }

type tokenState struct {
	store     *state.Store
	ledger    *ledger.Ledger
	txs       *replay.Guard
	authority *authority.Registry
}

func (t *Token) state(env *host.Env) *tokenState {
	store := env.Store()
	return &tokenState{
		store:     store,
		ledger:    ledger.New(store, "ft"),
		txs:       replay.New(store, "txs"),
		authority: authority.New(store, "mpc"),
	}
}

func (s *tokenState) requireInit() error {
	ok, err := s.store.KVHas(keyInitialized)
	if err != nil {
		return err
	}
	if !ok {
		return bridgeerrors.ErrNotInitialized
	}
	return nil
}

func (s *tokenState) underlying() (string, error) {
	var underlying string
	if _, err := s.store.KVGet(keyUnderlying, &underlying); err != nil {
		return "", err
	}
	return underlying, nil
}

func (s *tokenState) checkTxHash() (bool, error) {
	var check bool
	if _, err := s.store.KVGet(keyCheckTxHash, &check); err != nil {
		return false, err
	}
	return check, nil
}

// requireBond fails unless at least one unit of native value is attached.
func requireBond(env *host.Env) error {
	if env.Deposit().IsZero() {
		return fmt.Errorf("%w: attach at least one unit", bridgeerrors.ErrBondRequired)
	}
	return nil
}

// Init sets up a token. The initial supply, if any, is minted to the
// authority.
func (t *Token) Init(env *host.Env, args InitArgs) error {
	s := t.state(env)
	ok, err := s.store.KVHas(keyInitialized)
	if err != nil {
		return err
	}
	if ok {
		return bridgeerrors.ErrAlreadyInitialized
	}
	if err := s.authority.Init(args.Authority); err != nil {
		return err
	}
	if err := s.store.KVPut(keyMetadata, args.Metadata); err != nil {
		return err
	}
	if err := s.store.KVPut(keyCheckTxHash, args.CheckTxHash); err != nil {
		return err
	}
	if err := s.ledger.Register(args.Authority); err != nil {
		return err
	}
	if err := s.ledger.Register(env.Current()); err != nil {
		return err
	}
	if args.TotalSupply != nil && !args.TotalSupply.IsZero() {
		if err := s.ledger.Credit(args.Authority, args.TotalSupply); err != nil {
			return err
		}
	}
	return s.store.KVPut(keyInitialized, true)
}

// Register opens a balance slot for account.
func (t *Token) Register(env *host.Env, account string) error {
	s := t.state(env)
	if err := s.requireInit(); err != nil {
		return err
	}
	return s.ledger.Register(strings.TrimSpace(account))
}

// BalanceOf returns the wrapped balance of account.
func (t *Token) BalanceOf(env *host.Env, account string) (*uint256.Int, error) {
	return t.state(env).ledger.BalanceOf(account)
}

// TotalSupply returns the wrapped supply.
func (t *Token) TotalSupply(env *host.Env) (*uint256.Int, error) {
	return t.state(env).ledger.TotalSupply()
}

// Metadata returns the token description.
func (t *Token) Metadata(env *host.Env) (Metadata, error) {
	var meta Metadata
	s := t.state(env)
	if err := s.requireInit(); err != nil {
		return meta, err
	}
	_, err := s.store.KVGet(keyMetadata, &meta)
	return meta, err
}

// Transfer moves amount from the caller to receiver. A bond is required.
func (t *Token) Transfer(env *host.Env, receiver string, amount *uint256.Int, memo string) error {
	if err := requireBond(env); err != nil {
		return err
	}
	s := t.state(env)
	if err := s.requireInit(); err != nil {
		return err
	}
	sender := env.Predecessor()
	if err := s.ledger.Move(sender, receiver, amount); err != nil {
		return err
	}
	env.Log(events.TokenTransfer{Token: env.Current(), From: sender, To: receiver, Amount: amount, Memo: memo})
	return nil
}

type transferCallContext struct {
	Sender   string
	Receiver string
	Amount   *uint256.Int
}

// TransferCall moves amount to receiver and asks the receiver contract what
// to keep. Whatever the receiver reports unused, or everything if it fails,
// is returned to the sender once resolved.
func (t *Token) TransferCall(env *host.Env, receiver string, amount *uint256.Int, memo, msg string) error {
	if err := t.Transfer(env, receiver, amount, memo); err != nil {
		return err
	}
	if env.GasLeft() < GasForResolve+GasForReceiver {
		return fmt.Errorf("%w: transfer-and-call needs at least %d", bridgeerrors.ErrGasExhausted, GasForResolve+GasForReceiver)
	}
	sender := env.Predecessor()
	p, err := env.Call(receiver, "on_transfer", env.GasLeft()-GasForResolve, nil, func(callee *host.Env) ([]byte, error) {
		contract, ok := callee.Lookup(callee.Current())
		if !ok {
			return nil, fmt.Errorf("%w: %s", host.ErrUnknownContract, callee.Current())
		}
		recv, ok := contract.(TransferReceiver)
		if !ok {
			return nil, fmt.Errorf("%w: %s does not accept transfers", bridgeerrors.ErrMalformedInstruction, callee.Current())
		}
		return recv.OnTransfer(callee, sender, amount, msg)
	})
	if err != nil {
		return err
	}
	next, err := p.Then(GasForResolve, contResolveTransfer, transferCallContext{Sender: sender, Receiver: receiver, Amount: amount})
	if err != nil {
		return err
	}
	return env.Return(next)
}

func (t *Token) resolveTransfer(env *host.Env, cont host.Continuation, outcome host.Outcome) ([]byte, error) {
	var ctx transferCallContext
	if err := cont.Decode(&ctx); err != nil {
		return nil, err
	}
	unused := types.CloneAmount(ctx.Amount)
	if outcome.Succeeded() {
		if reported, err := types.DecodeAmount(outcome.Payload); err == nil {
			unused = reported
		}
	}
	if unused.Gt(ctx.Amount) {
		unused = types.CloneAmount(ctx.Amount)
	}
	s := t.state(env)
	refund := new(uint256.Int)
	if !unused.IsZero() {
		balance, err := s.ledger.BalanceOf(ctx.Receiver)
		if err != nil {
			return nil, err
		}
		refund.Set(unused)
		if balance.Lt(refund) {
			refund.Set(balance)
		}
		if !refund.IsZero() {
			if err := s.ledger.Move(ctx.Receiver, ctx.Sender, refund); err != nil {
				return nil, err
			}
		}
	}
	env.Log(events.TransferResolved{Token: env.Current(), Sender: ctx.Sender, Receiver: ctx.Receiver, Amount: ctx.Amount, Refunded: refund})
	return types.EncodeAmount(new(uint256.Int).Sub(ctx.Amount, refund)), nil
}

// Burn destroys amount held by account. The authority may burn from any
// account; anyone else only from their own.
func (t *Token) Burn(env *host.Env, account string, amount *uint256.Int) error {
	s := t.state(env)
	if err := s.requireInit(); err != nil {
		return err
	}
	caller := env.Predecessor()
	if caller != account {
		if err := s.authority.Require(caller); err != nil {
			return err
		}
	}
	if err := s.ledger.Debit(account, amount); err != nil {
		return err
	}
	env.Log(events.TokenBurn{Token: env.Current(), Caller: caller, Account: account, Amount: amount})
	return nil
}

// Authority returns the current and pending authority.
func (t *Token) Authority(env *host.Env) (string, string, error) {
	s := t.state(env)
	current, err := s.authority.Current()
	if err != nil {
		return "", "", err
	}
	pending, err := s.authority.Pending()
	return current, pending, err
}

// ChangeAuthority proposes next as the new authority.
func (t *Token) ChangeAuthority(env *host.Env, next string) error {
	s := t.state(env)
	if err := s.authority.Propose(env.Predecessor(), next); err != nil {
		return err
	}
	env.Log(events.AuthorityChanged{Contract: env.Current(), Current: env.Predecessor(), Next: next})
	return nil
}

// ApplyAuthority completes a rotation; only the proposed account may call it.
func (t *Token) ApplyAuthority(env *host.Env) error {
	s := t.state(env)
	previous, err := s.authority.Finalize(env.Predecessor())
	if err != nil {
		return err
	}
	env.Log(events.AuthorityChanged{Contract: env.Current(), Current: previous, Next: env.Predecessor(), Applied: true})
	return nil
}

// SetCheckFlag toggles replay protection on SwapIn.
func (t *Token) SetCheckFlag(env *host.Env, check bool) error {
	s := t.state(env)
	if err := s.authority.Require(env.Predecessor()); err != nil {
		return err
	}
	if err := s.store.KVPut(keyCheckTxHash, check); err != nil {
		return err
	}
	env.Log(events.ConfigChanged{Kind: events.TypeCheckFlagConfigured, Contract: env.Current(), Key: keyCheckTxHash, Value: fmt.Sprintf("%t", check)})
	return nil
}

// CheckTx reports whether the token itself has processed id.
func (t *Token) CheckTx(env *host.Env, id string) (bool, error) {
	return t.state(env).txs.HasProcessed(id)
}

// AllTxs lists ids processed by the token itself.
func (t *Token) AllTxs(env *host.Env) ([]string, error) {
	return t.state(env).txs.All()
}
