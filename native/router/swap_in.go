package router

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
	contSwapIn            = "swap_in"
	contSwapInNative      = "swap_in_native"
	contSwapOutUnderlying = "swap_out_underlying"
	contSwapOut           = "swap_out"
)

// swapIntent travels with every inbound dispatch and comes back in the
// continuation unchanged.
type swapIntent struct {
	TxID      string
	Token     string
	Receiver  string
	Amount    *uint256.Int
	FromChain string
	ToChain   string
}

func anyToken(env *host.Env, account string) (AnyToken, error) {
	contract, ok := env.Lookup(account)
	if !ok {
		return nil, fmt.Errorf("%w: %s", bridgeerrors.ErrUnknownToken, account)
	}
	token, ok := contract.(AnyToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a bridge token", bridgeerrors.ErrUnknownToken, account)
	}
	return token, nil
}

// admit runs the gating shared by both inbound entry points and reserves the
// id. Nothing is written when it fails.
func (s *engineState) admit(env *host.Env, intent *swapIntent, gasKey string) error {
	if err := s.authority.Require(env.Predecessor()); err != nil {
		return err
	}
	if err := types.ValidateAmount(intent.Amount); err != nil {
		return err
	}
	intent.Receiver = strings.TrimSpace(intent.Receiver)
	if intent.Receiver == "" {
		return fmt.Errorf("%w: receiver required", bridgeerrors.ErrMalformedInstruction)
	}
	required, err := s.gas.SwapInRequirement(gasKey)
	if err != nil {
		return err
	}
	if env.PrepaidGas() < required {
		return fmt.Errorf("%w: attach at least %d, got %d", bridgeerrors.ErrGasExhausted, required, env.PrepaidGas())
	}
	cfg, err := s.config()
	if err != nil {
		return err
	}
	intent.ToChain = cfg.ChainID
	if err := s.txs.Reserve(intent.TxID); err != nil {
		return err
	}
	return s.settlements.set(intent.TxID, StateAwaitingExternalResult)
}

func rejection(env *host.Env, operation string, intent swapIntent, err error) events.SettlementRejected {
	return events.SettlementRejected{
		Operation: operation,
		TxID:      intent.TxID,
		Token:     intent.Token,
		Caller:    env.Predecessor(),
		Receiver:  intent.Receiver,
		Amount:    intent.Amount,
		FromChain: intent.FromChain,
		Reason:    err.Error(),
	}
}

// AnySwapIn credits amount of token to receiver for the cross-chain transfer
// txID. The credit runs on the token contract; the id is marked processed
// once the token has delivered, directly or as compensating wrapped balance.
func (r *Router) AnySwapIn(env *host.Env, txID, token, receiver string, amount *uint256.Int, fromChain string) error {
	intent := swapIntent{TxID: txID, Token: strings.TrimSpace(token), Receiver: receiver, Amount: amount, FromChain: fromChain}
	if err := r.anySwapIn(env, &intent); err != nil {
		env.Reject(rejection(env, contSwapIn, intent, err))
		return err
	}
	return nil
}

func (r *Router) anySwapIn(env *host.Env, intent *swapIntent) error {
	s := r.state(env)
	if err := s.admit(env, intent, intent.Token); err != nil {
		return err
	}
	wrapped, err := anyToken(env, intent.Token)
	if err != nil {
		return err
	}
	budget, err := s.gas.BudgetFor(intent.Token)
	if err != nil {
		return err
	}
	base, err := s.gas.Base()
	if err != nil {
		return err
	}
	txID, receiver, amount, fromChain := intent.TxID, intent.Receiver, intent.Amount, intent.FromChain
	p, err := env.Call(intent.Token, "swap_in", budget, ExecutionBond, func(callee *host.Env) ([]byte, error) {
		return nil, wrapped.SwapIn(callee, txID, receiver, amount, fromChain)
	})
	if err != nil {
		return err
	}
	next, err := p.Then(base, contSwapIn, *intent)
	if err != nil {
		return err
	}
	return env.Return(next)
}

func (r *Router) resumeSwapIn(env *host.Env, cont host.Continuation, outcome host.Outcome) ([]byte, error) {
	var intent swapIntent
	if err := cont.Decode(&intent); err != nil {
		return nil, err
	}
	s := r.state(env)
	if outcome.Succeeded() {
		if err := s.txs.MarkProcessed(intent.TxID); err != nil {
			return nil, err
		}
		if err := s.settlements.set(intent.TxID, StateCommitted); err != nil {
			return nil, err
		}
		env.Log(events.SwapIn{TxID: intent.TxID, Token: intent.Token, Receiver: intent.Receiver, Amount: intent.Amount, FromChain: intent.FromChain, ToChain: intent.ToChain})
		return nil, nil
	}
	compensated := host.IsFailure(outcome, bridgeerrors.ErrDeliveredWrapped)
	if compensated || host.IsFailure(outcome, bridgeerrors.ErrAlreadyProcessed) {
		// The token delivered this id, now as wrapped credit or in an
		// earlier attempt whose result never came back. Either way it is spent.
		if err := s.txs.MarkProcessed(intent.TxID); err != nil {
			return nil, err
		}
		st := StateCommitted
		if compensated {
			st = StateRolledBack
		}
		if err := s.settlements.set(intent.TxID, st); err != nil {
			return nil, err
		}
		env.Log(events.SwapIn{TxID: intent.TxID, Token: intent.Token, Receiver: intent.Receiver, Amount: intent.Amount, FromChain: intent.FromChain, ToChain: intent.ToChain, Compensated: compensated, Reason: outcome.Reason()})
		if compensated {
			return nil, host.SurfaceFailure(fmt.Errorf("%w: %s.swap_in: %s", bridgeerrors.ErrDependentCallFailed, intent.Token, outcome.Reason()))
		}
		return nil, nil
	}
	if err := s.txs.Release(intent.TxID); err != nil {
		return nil, err
	}
	if err := s.settlements.set(intent.TxID, StateRejected); err != nil {
		return nil, err
	}
	cause := fmt.Errorf("%w: %s.swap_in: %s", bridgeerrors.ErrDependentCallFailed, intent.Token, outcome.Reason())
	env.Log(rejection(env, contSwapIn, intent, cause))
	return nil, host.SurfaceFailure(cause)
}

// SwapInNative pays amount of native value from the router's holding balance
// to receiver. A failed transfer is refunded into the holding balance and the
// id stays unmarked.
func (r *Router) SwapInNative(env *host.Env, txID, receiver string, amount *uint256.Int, fromChain string) error {
	intent := swapIntent{TxID: txID, Receiver: receiver, Amount: amount, FromChain: fromChain}
	if err := r.swapInNative(env, &intent); err != nil {
		env.Reject(rejection(env, contSwapInNative, intent, err))
		return err
	}
	return nil
}

func (r *Router) swapInNative(env *host.Env, intent *swapIntent) error {
	s := r.state(env)
	cfg, err := s.config()
	if err != nil {
		return err
	}
	intent.Token = cfg.WNative
	if err := s.admit(env, intent, cfg.WNative); err != nil {
		return err
	}
	base, err := s.gas.Base()
	if err != nil {
		return err
	}
	p, err := env.Transfer(intent.Receiver, intent.Amount)
	if err != nil {
		return err
	}
	next, err := p.Then(base, contSwapInNative, *intent)
	if err != nil {
		return err
	}
	return env.Return(next)
}

func (r *Router) resumeSwapInNative(env *host.Env, cont host.Continuation, outcome host.Outcome) ([]byte, error) {
	var intent swapIntent
	if err := cont.Decode(&intent); err != nil {
		return nil, err
	}
	s := r.state(env)
	if outcome.Succeeded() {
		if err := s.txs.MarkProcessed(intent.TxID); err != nil {
			return nil, err
		}
		if err := s.settlements.set(intent.TxID, StateCommitted); err != nil {
			return nil, err
		}
		env.Log(events.SwapInNative{TxID: intent.TxID, Receiver: intent.Receiver, Amount: intent.Amount, FromChain: intent.FromChain, ToChain: intent.ToChain})
		return nil, nil
	}
	if err := s.txs.Release(intent.TxID); err != nil {
		return nil, err
	}
	if _, err := env.ReclaimTransfer(outcome); err != nil {
		return nil, err
	}
	if err := s.settlements.set(intent.TxID, StateRolledBack); err != nil {
		return nil, err
	}
	env.Log(events.SwapInNative{TxID: intent.TxID, Receiver: intent.Receiver, Amount: intent.Amount, FromChain: intent.FromChain, ToChain: intent.ToChain, Refunded: true, Reason: outcome.Reason()})
	return nil, host.SurfaceFailure(fmt.Errorf("%w: native transfer to %s: %s", bridgeerrors.ErrDependentCallFailed, intent.Receiver, outcome.Reason()))
}
