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

// SwapOutCommand is the verb of a transfer-attached swap-out message:
//
//	any_swap_out <anytoken> <receiver> <toChain>
const SwapOutCommand = "any_swap_out"

type swapOutIntent struct {
	Token     string
	Wrapped   string
	Sender    string
	Receiver  string
	Amount    *uint256.Int
	FromChain string
	ToChain   string
}

func (i swapOutIntent) record(state, reason string) events.SwapOut {
	return events.SwapOut{
		Token:     i.Token,
		Wrapped:   i.Wrapped,
		Sender:    i.Sender,
		Receiver:  i.Receiver,
		Amount:    i.Amount,
		FromChain: i.FromChain,
		ToChain:   i.ToChain,
		State:     state,
		Reason:    reason,
	}
}

// OnTransfer handles a transfer-and-call made to the router. The transferring
// token is the predecessor. The payload returned is the amount the token must
// hand back to sender. A swap-out that cannot start is refused outright and
// leaves a rejection record.
func (r *Router) OnTransfer(env *host.Env, sender string, amount *uint256.Int, msg string) ([]byte, error) {
	fields := strings.Fields(msg)
	if len(fields) == 0 || fields[0] != SwapOutCommand {
		env.Log(events.MessageUnmatched{Token: env.Predecessor(), Sender: sender, Amount: amount, Message: msg})
		return types.EncodeAmount(amount), nil
	}
	payload, err := r.swapOut(env, sender, amount, fields)
	if err != nil {
		rejected := events.SettlementRejected{Operation: contSwapOut, Token: env.Predecessor(), Caller: sender, Amount: amount, Reason: err.Error()}
		if len(fields) > 2 {
			rejected.Receiver = fields[2]
		}
		env.Reject(rejected)
		return nil, err
	}
	return payload, nil
}

func (r *Router) swapOut(env *host.Env, sender string, amount *uint256.Int, fields []string) ([]byte, error) {
	if len(fields) != 4 {
		return nil, fmt.Errorf("%w: %s takes <anytoken> <receiver> <toChain>, got %d arguments", bridgeerrors.ErrMalformedInstruction, SwapOutCommand, len(fields)-1)
	}
	if err := types.ValidateAmount(amount); err != nil {
		return nil, err
	}
	s := r.state(env)
	cfg, err := s.config()
	if err != nil {
		return nil, err
	}
	base, err := s.gas.Base()
	if err != nil {
		return nil, err
	}
	if env.GasLeft() < base*3 {
		return nil, fmt.Errorf("%w: swap-out needs at least %d", bridgeerrors.ErrGasExhausted, base*3)
	}
	intent := swapOutIntent{
		Token:     env.Predecessor(),
		Wrapped:   fields[1],
		Sender:    sender,
		Receiver:  fields[2],
		Amount:    amount,
		FromChain: cfg.ChainID,
		ToChain:   fields[3],
	}
	wrapped, err := anyToken(env, intent.Wrapped)
	if err != nil {
		return nil, err
	}
	p, err := env.Call(intent.Wrapped, "underlying", base, nil, func(callee *host.Env) ([]byte, error) {
		underlying, err := wrapped.Underlying(callee)
		return []byte(underlying), err
	})
	if err != nil {
		return nil, err
	}
	next, err := p.Then(env.GasLeft(), contSwapOutUnderlying, intent)
	if err != nil {
		return nil, err
	}
	return nil, env.Return(next)
}

func (r *Router) resumeSwapOutUnderlying(env *host.Env, cont host.Continuation, outcome host.Outcome) ([]byte, error) {
	var intent swapOutIntent
	if err := cont.Decode(&intent); err != nil {
		return nil, err
	}
	if !outcome.Succeeded() {
		env.Log(intent.record(StateRolledBack.String(), outcome.Reason()))
		return types.EncodeAmount(intent.Amount), nil
	}
	if underlying := string(outcome.Payload); underlying != intent.Token {
		env.Log(intent.record(StateRolledBack.String(), fmt.Sprintf("%s wraps %s, not %s", intent.Wrapped, underlying, intent.Token)))
		return types.EncodeAmount(intent.Amount), nil
	}
	base, err := r.state(env).gas.Base()
	if err != nil {
		return nil, err
	}
	wrapped, err := anyToken(env, intent.Wrapped)
	if err != nil {
		return nil, err
	}
	router, amount := env.Current(), intent.Amount
	var p *host.Promise
	if intent.Token == intent.Wrapped {
		p, err = env.Call(intent.Wrapped, "burn", base, nil, func(callee *host.Env) ([]byte, error) {
			return nil, wrapped.Burn(callee, router, amount)
		})
	} else {
		contract, ok := env.Lookup(intent.Token)
		if !ok {
			return nil, fmt.Errorf("%w: %s", bridgeerrors.ErrUnknownToken, intent.Token)
		}
		ft, ok := contract.(FungibleToken)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a fungible token", bridgeerrors.ErrUnknownToken, intent.Token)
		}
		memo := fmt.Sprintf("swap_out %s %s", intent.Receiver, intent.ToChain)
		wrappedAccount := intent.Wrapped
		p, err = env.Call(intent.Token, "transfer", base, ExecutionBond, func(callee *host.Env) ([]byte, error) {
			return nil, ft.Transfer(callee, wrappedAccount, amount, memo)
		})
	}
	if err != nil {
		return nil, err
	}
	next, err := p.Then(base, contSwapOut, intent)
	if err != nil {
		return nil, err
	}
	return nil, env.Return(next)
}

func (r *Router) resumeSwapOut(env *host.Env, cont host.Continuation, outcome host.Outcome) ([]byte, error) {
	var intent swapOutIntent
	if err := cont.Decode(&intent); err != nil {
		return nil, err
	}
	if !outcome.Succeeded() {
		env.Log(intent.record(StateRolledBack.String(), outcome.Reason()))
		return types.EncodeAmount(intent.Amount), nil
	}
	env.Log(intent.record(StateCommitted.String(), ""))
	return types.EncodeAmount(new(uint256.Int)), nil
}

// SwapOutNative locks the attached native value in the router's holding
// balance and records the outbound intent.
func (r *Router) SwapOutNative(env *host.Env, receiver, toChain string) error {
	amount := env.Deposit()
	if amount.IsZero() {
		return fmt.Errorf("%w: attach the value to swap out", bridgeerrors.ErrInvalidAmount)
	}
	receiver, toChain = strings.TrimSpace(receiver), strings.TrimSpace(toChain)
	if receiver == "" || toChain == "" {
		return fmt.Errorf("%w: receiver and destination chain required", bridgeerrors.ErrMalformedInstruction)
	}
	cfg, err := r.state(env).config()
	if err != nil {
		return err
	}
	env.Log(events.SwapOutNative{Contract: env.Current(), Sender: env.Predecessor(), Receiver: receiver, Amount: amount, FromChain: cfg.ChainID, ToChain: toChain})
	return nil
}
