package anytoken

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/events"
	"mpcbridge/core/host"
	"mpcbridge/core/types"
)

const (
	contResolveTransfer    = "resolve_transfer"
	contSwapInUnderlying   = "swap_in_underlying"
	contWithdrawUnderlying = "withdraw_underlying"
)

type swapInContext struct {
	TxID       string
	Receiver   string
	Amount     *uint256.Int
	FromChain  string
	Underlying string
}

type withdrawContext struct {
	Account    string
	Amount     *uint256.Int
	Underlying string
}

func fungible(env *host.Env, account string) (FungibleToken, error) {
	contract, ok := env.Lookup(account)
	if !ok {
		return nil, fmt.Errorf("%w: %s", bridgeerrors.ErrUnknownToken, account)
	}
	ft, ok := contract.(FungibleToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a fungible token", bridgeerrors.ErrUnknownToken, account)
	}
	return ft, nil
}

// SwapIn releases amount to receiver for an inbound cross-chain transfer.
// Without an underlying asset the wrapped token is minted in the same turn
// and any attached bond is returned. With an underlying bound the real asset
// is transferred out of this token's reserves; if that transfer fails the
// receiver is credited wrapped tokens instead and the failure is surfaced
// as ErrDeliveredWrapped.
func (t *Token) SwapIn(env *host.Env, txID, receiver string, amount *uint256.Int, fromChain string) error {
	s := t.state(env)
	if err := s.requireInit(); err != nil {
		return err
	}
	if err := s.authority.Require(env.Predecessor()); err != nil {
		return err
	}
	if err := types.ValidateAmount(amount); err != nil {
		return err
	}
	receiver = strings.TrimSpace(receiver)
	if receiver == "" {
		return fmt.Errorf("%w: receiver required", bridgeerrors.ErrMalformedInstruction)
	}
	check, err := s.checkTxHash()
	if err != nil {
		return err
	}
	if check {
		if err := s.txs.MarkProcessed(txID); err != nil {
			return err
		}
	}
	if err := s.ledger.Register(receiver); err != nil {
		return err
	}
	underlying, err := s.underlying()
	if err != nil {
		return err
	}

	if underlying == "" {
		if err := s.ledger.Credit(receiver, amount); err != nil {
			return err
		}
		env.Log(events.TokenSwapIn{TxID: txID, Token: env.Current(), Receiver: receiver, Amount: amount, FromChain: fromChain})
		if bond := env.Deposit(); !bond.IsZero() {
			if _, err := env.Transfer(env.Predecessor(), bond); err != nil {
				return err
			}
		}
		return nil
	}

	if err := requireBond(env); err != nil {
		return err
	}
	ft, err := fungible(env, underlying)
	if err != nil {
		return err
	}
	memo := "swap_in " + txID
	p, err := env.Call(underlying, "transfer", GasForTransfer, env.Deposit(), func(callee *host.Env) ([]byte, error) {
		return nil, ft.Transfer(callee, receiver, amount, memo)
	})
	if err != nil {
		return err
	}
	next, err := p.Then(GasForResolve, contSwapInUnderlying, swapInContext{TxID: txID, Receiver: receiver, Amount: amount, FromChain: fromChain, Underlying: underlying})
	if err != nil {
		return err
	}
	return env.Return(next)
}

func (t *Token) resumeSwapIn(env *host.Env, cont host.Continuation, outcome host.Outcome) ([]byte, error) {
	var ctx swapInContext
	if err := cont.Decode(&ctx); err != nil {
		return nil, err
	}
	if outcome.Succeeded() {
		env.Log(events.TokenSwapIn{TxID: ctx.TxID, Token: env.Current(), Receiver: ctx.Receiver, Amount: ctx.Amount, FromChain: ctx.FromChain, Underlying: ctx.Underlying})
		return nil, nil
	}
	s := t.state(env)
	if err := s.ledger.Credit(ctx.Receiver, ctx.Amount); err != nil {
		return nil, err
	}
	env.Log(events.TokenSwapIn{TxID: ctx.TxID, Token: env.Current(), Receiver: ctx.Receiver, Amount: ctx.Amount, FromChain: ctx.FromChain, Underlying: ctx.Underlying, Compensate: true, Reason: outcome.Reason()})
	return nil, host.SurfaceFailure(fmt.Errorf("%w: %w: underlying %s transfer: %s", bridgeerrors.ErrDependentCallFailed, bridgeerrors.ErrDeliveredWrapped, ctx.Underlying, outcome.Reason()))
}

// SwapOut debits the caller and records the outbound intent. Nothing is
// dispatched; the authority relays the record to the destination chain.
func (t *Token) SwapOut(env *host.Env, receiver string, amount *uint256.Int, toChain string) error {
	s := t.state(env)
	if err := s.requireInit(); err != nil {
		return err
	}
	receiver, toChain = strings.TrimSpace(receiver), strings.TrimSpace(toChain)
	if receiver == "" || toChain == "" {
		return fmt.Errorf("%w: receiver and destination chain required", bridgeerrors.ErrMalformedInstruction)
	}
	sender := env.Predecessor()
	if err := s.ledger.Debit(sender, amount); err != nil {
		return err
	}
	env.Log(events.TokenSwapOut{Token: env.Current(), Sender: sender, Receiver: receiver, Amount: amount, ToChain: toChain})
	return nil
}

// Underlying returns the bound asset, or the token itself when unbound.
func (t *Token) Underlying(env *host.Env) (string, error) {
	underlying, err := t.state(env).underlying()
	if err != nil {
		return "", err
	}
	if underlying == "" {
		return env.Current(), nil
	}
	return underlying, nil
}

// BindUnderlying sets the underlying asset. It can only happen once.
func (t *Token) BindUnderlying(env *host.Env, underlying string) error {
	s := t.state(env)
	if err := s.requireInit(); err != nil {
		return err
	}
	if err := s.authority.Require(env.Predecessor()); err != nil {
		return err
	}
	underlying = strings.TrimSpace(underlying)
	if underlying == "" || underlying == env.Current() {
		return fmt.Errorf("%w: invalid underlying %q", bridgeerrors.ErrMalformedInstruction, underlying)
	}
	current, err := s.underlying()
	if err != nil {
		return err
	}
	if current != "" {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrAlreadyBound, current)
	}
	if err := s.store.KVPut(keyUnderlying, underlying); err != nil {
		return err
	}
	env.Log(events.UnderlyingBound{Token: env.Current(), Underlying: underlying})
	return nil
}

// WithdrawUnderlying burns amount of the caller's wrapped balance and sends
// the same amount of the underlying asset. A failed transfer re-credits the
// wrapped balance.
func (t *Token) WithdrawUnderlying(env *host.Env, amount *uint256.Int) error {
	s := t.state(env)
	if err := s.requireInit(); err != nil {
		return err
	}
	underlying, err := s.underlying()
	if err != nil {
		return err
	}
	if underlying == "" {
		return bridgeerrors.ErrNotYetBound
	}
	if err := requireBond(env); err != nil {
		return err
	}
	ft, err := fungible(env, underlying)
	if err != nil {
		return err
	}
	account := env.Predecessor()
	if err := s.ledger.Debit(account, amount); err != nil {
		return err
	}
	p, err := env.Call(underlying, "transfer", GasForTransfer, env.Deposit(), func(callee *host.Env) ([]byte, error) {
		return nil, ft.Transfer(callee, account, amount, "withdraw_underlying")
	})
	if err != nil {
		return err
	}
	next, err := p.Then(GasForResolve, contWithdrawUnderlying, withdrawContext{Account: account, Amount: amount, Underlying: underlying})
	if err != nil {
		return err
	}
	return env.Return(next)
}

func (t *Token) resumeWithdraw(env *host.Env, cont host.Continuation, outcome host.Outcome) ([]byte, error) {
	var ctx withdrawContext
	if err := cont.Decode(&ctx); err != nil {
		return nil, err
	}
	if outcome.Succeeded() {
		env.Log(events.UnderlyingMoved{Token: env.Current(), Underlying: ctx.Underlying, Account: ctx.Account, Amount: ctx.Amount})
		return nil, nil
	}
	s := t.state(env)
	if err := s.ledger.Credit(ctx.Account, ctx.Amount); err != nil {
		return nil, err
	}
	env.Log(events.UnderlyingMoved{Token: env.Current(), Underlying: ctx.Underlying, Account: ctx.Account, Amount: ctx.Amount, Compensate: true, Reason: outcome.Reason()})
	return nil, host.SurfaceFailure(fmt.Errorf("%w: underlying %s transfer: %s", bridgeerrors.ErrDependentCallFailed, ctx.Underlying, outcome.Reason()))
}

// OnTransfer accepts deposits of the bound underlying asset made with its
// transfer-and-call and credits the sender with wrapped tokens. Any other
// transfer is refused, which makes the sending token refund it.
func (t *Token) OnTransfer(env *host.Env, sender string, amount *uint256.Int, msg string) ([]byte, error) {
	s := t.state(env)
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	underlying, err := s.underlying()
	if err != nil {
		return nil, err
	}
	if underlying == "" {
		return nil, bridgeerrors.ErrNotYetBound
	}
	if env.Predecessor() != underlying {
		return nil, fmt.Errorf("%w: deposits accepted from %s only", bridgeerrors.ErrUnknownToken, underlying)
	}
	if err := s.ledger.Register(sender); err != nil {
		return nil, err
	}
	if err := s.ledger.Credit(sender, amount); err != nil {
		return nil, err
	}
	env.Log(events.UnderlyingMoved{Token: env.Current(), Underlying: underlying, Account: sender, Amount: amount, Deposit: true})
	return types.EncodeAmount(new(uint256.Int)), nil
}

// Resume dispatches continuations by kind.
func (t *Token) Resume(env *host.Env, cont host.Continuation, outcome host.Outcome) ([]byte, error) {
	switch cont.Kind {
	case contResolveTransfer:
		return t.resolveTransfer(env, cont, outcome)
	case contSwapInUnderlying:
		return t.resumeSwapIn(env, cont, outcome)
	case contWithdrawUnderlying:
		return t.resumeWithdraw(env, cont, outcome)
	default:
		return nil, fmt.Errorf("anytoken: unknown continuation %q", cont.Kind)
	}
}
