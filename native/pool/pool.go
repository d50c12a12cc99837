// Package pool implements the native-value pool that locks value for
// outbound transfers and releases it on the authority's instruction.
package pool

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/events"
	"mpcbridge/core/host"
	"mpcbridge/core/types"
	"mpcbridge/native/authority"
)

const (
	keyChainID = "chain_id"

	contRelease = "release"
)

// GasForRelease is reserved for the release continuation.
const GasForRelease = 5 * host.TeraGas

// Pool is the contract code of the native pool.
type Pool struct{}

// New returns the pool contract code.
func New() *Pool { return &Pool{} }

type releaseContext struct {
	Receiver string
	Amount   *uint256.Int
}

func (p *Pool) authority(env *host.Env) *authority.Registry {
	return authority.New(env.Store(), "mpc")
}

func (p *Pool) chainID(env *host.Env) (string, error) {
	var chainID string
	ok, err := env.Store().KVGet(keyChainID, &chainID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", bridgeerrors.ErrNotInitialized
	}
	return chainID, nil
}

// Init configures the pool once.
func (p *Pool) Init(env *host.Env, authorityAccount, chainID string) error {
	if err := p.authority(env).Init(authorityAccount); err != nil {
		return err
	}
	chainID = strings.TrimSpace(chainID)
	if chainID == "" {
		return fmt.Errorf("%w: chain id required", bridgeerrors.ErrMalformedInstruction)
	}
	return env.Store().KVPut(keyChainID, chainID)
}

// SwapOut keeps the attached value and records the outbound intent.
func (p *Pool) SwapOut(env *host.Env, receiver, toChain string) error {
	amount := env.Deposit()
	if amount.IsZero() {
		return fmt.Errorf("%w: attach the value to swap out", bridgeerrors.ErrInvalidAmount)
	}
	receiver, toChain = strings.TrimSpace(receiver), strings.TrimSpace(toChain)
	if receiver == "" || toChain == "" {
		return fmt.Errorf("%w: receiver and destination chain required", bridgeerrors.ErrMalformedInstruction)
	}
	chainID, err := p.chainID(env)
	if err != nil {
		return err
	}
	env.Log(events.SwapOutNative{Contract: env.Current(), Sender: env.Predecessor(), Receiver: receiver, Amount: amount, FromChain: chainID, ToChain: toChain, Pool: true})
	return nil
}

// Release pays amount of pooled value to receiver. A failed transfer is
// taken back into the pool.
func (p *Pool) Release(env *host.Env, receiver string, amount *uint256.Int) error {
	if err := p.authority(env).Require(env.Predecessor()); err != nil {
		return err
	}
	if err := types.ValidateAmount(amount); err != nil {
		return err
	}
	receiver = strings.TrimSpace(receiver)
	transfer, err := env.Transfer(receiver, amount)
	if err != nil {
		return err
	}
	next, err := transfer.Then(GasForRelease, contRelease, releaseContext{Receiver: receiver, Amount: amount})
	if err != nil {
		return err
	}
	return env.Return(next)
}

// Resume records the release, reclaiming the value of a failed transfer.
func (p *Pool) Resume(env *host.Env, cont host.Continuation, outcome host.Outcome) ([]byte, error) {
	if cont.Kind != contRelease {
		return nil, fmt.Errorf("pool: unknown continuation %q", cont.Kind)
	}
	var ctx releaseContext
	if err := cont.Decode(&ctx); err != nil {
		return nil, err
	}
	if outcome.Succeeded() {
		env.Log(events.PoolRelease{Contract: env.Current(), Receiver: ctx.Receiver, Amount: ctx.Amount})
		return nil, nil
	}
	if _, err := env.ReclaimTransfer(outcome); err != nil {
		return nil, err
	}
	env.Log(events.PoolRelease{Contract: env.Current(), Receiver: ctx.Receiver, Amount: ctx.Amount, Reclaimed: true, Reason: outcome.Reason()})
	return nil, host.SurfaceFailure(fmt.Errorf("%w: release to %s: %s", bridgeerrors.ErrDependentCallFailed, ctx.Receiver, outcome.Reason()))
}

// Authority returns the current authority.
func (p *Pool) Authority(env *host.Env) (string, error) {
	return p.authority(env).Current()
}
