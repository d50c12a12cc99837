// Package router implements the settlement engine that turns authority
// instructions into ledger credits and user transfers into outbound intents.
package router

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/events"
	"mpcbridge/core/host"
	"mpcbridge/core/state"
	"mpcbridge/native/authority"
	"mpcbridge/native/gas"
	"mpcbridge/native/replay"
)

// ExecutionBond is attached to every dispatch that moves value on another
// contract.
var ExecutionBond = uint256.NewInt(1)

// State is the lifecycle of an inbound settlement.
type State string

const (
	StateReceived               State = events.StateReceived
	StateAwaitingExternalResult State = events.StateAwaitingExternalResult
	StateCommitted              State = events.StateCommitted
	StateRolledBack             State = events.StateRolledBack
	StateRejected               State = events.StateRejected
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack || s == StateRejected
}

const (
	keyConfig = "config"
)

// AnyToken is the surface the engine needs from a wrapped token.
type AnyToken interface {
	SwapIn(env *host.Env, txID, receiver string, amount *uint256.Int, fromChain string) error
	Underlying(env *host.Env) (string, error)
	Burn(env *host.Env, account string, amount *uint256.Int) error
}

// FungibleToken is the transfer surface of an underlying asset.
type FungibleToken interface {
	Transfer(env *host.Env, receiver string, amount *uint256.Int, memo string) error
}

// Config is the engine's configuration record.
type Config struct {
	ChainID string
	WNative string
}

// InitArgs configures a new engine.
type InitArgs struct {
	Authority string
	ChainID   string
	WNative   string
	BaseGas   host.Gas
}

// View is a read-only snapshot of the engine's configuration.
type View struct {
	ChainID    string
	WNative    string
	Authority  string
	Pending    string
	BaseGas    host.Gas
	SwapOutGas host.Gas
	Overrides  []gas.Override
}

// Router is the contract code of the settlement engine.
type Router struct{}

// New returns the engine contract code.
func New() *Router { return &Router{} }

type engineState struct {
	store       *state.Store
	txs         *replay.Guard
	authority   *authority.Registry
	gas         *gas.Table
	settlements *settlementBook
}

func (r *Router) state(env *host.Env) *engineState {
	store := env.Store()
	return &engineState{
		store:       store,
		txs:         replay.New(store, "txs"),
		authority:   authority.New(store, "mpc"),
		gas:         gas.New(store, "gas"),
		settlements: &settlementBook{store: store},
	}
}

func (s *engineState) config() (Config, error) {
	var cfg Config
	ok, err := s.store.KVGet(keyConfig, &cfg)
	if err != nil {
		return cfg, err
	}
	if !ok {
		return cfg, bridgeerrors.ErrNotInitialized
	}
	return cfg, nil
}

func (s *engineState) putConfig(cfg Config) error {
	return s.store.KVPut(keyConfig, cfg)
}

// Init configures the engine once.
func (r *Router) Init(env *host.Env, args InitArgs) error {
	s := r.state(env)
	if ok, err := s.store.KVHas(keyConfig); err != nil {
		return err
	} else if ok {
		return bridgeerrors.ErrAlreadyInitialized
	}
	if strings.TrimSpace(args.ChainID) == "" {
		return fmt.Errorf("%w: chain id required", bridgeerrors.ErrMalformedInstruction)
	}
	if err := s.authority.Init(args.Authority); err != nil {
		return err
	}
	if args.BaseGas != 0 {
		if err := s.gas.SetBase(args.BaseGas); err != nil {
			return err
		}
	}
	return s.putConfig(Config{ChainID: strings.TrimSpace(args.ChainID), WNative: strings.TrimSpace(args.WNative)})
}

// Describe returns the current configuration.
func (r *Router) Describe(env *host.Env) (View, error) {
	s := r.state(env)
	cfg, err := s.config()
	if err != nil {
		return View{}, err
	}
	current, err := s.authority.Current()
	if err != nil {
		return View{}, err
	}
	pending, err := s.authority.Pending()
	if err != nil {
		return View{}, err
	}
	base, err := s.gas.Base()
	if err != nil {
		return View{}, err
	}
	swapOut, err := s.gas.SwapOutBudget()
	if err != nil {
		return View{}, err
	}
	overrides, err := s.gas.All()
	if err != nil {
		return View{}, err
	}
	return View{ChainID: cfg.ChainID, WNative: cfg.WNative, Authority: current, Pending: pending, BaseGas: base, SwapOutGas: swapOut, Overrides: overrides}, nil
}

// ProposeAuthority records next as pending.
func (r *Router) ProposeAuthority(env *host.Env, next string) error {
	s := r.state(env)
	if err := s.authority.Propose(env.Predecessor(), next); err != nil {
		return err
	}
	env.Log(events.AuthorityChanged{Contract: env.Current(), Current: env.Predecessor(), Next: next})
	return nil
}

// ApplyAuthority finalises the rotation; only the pending account may call it.
func (r *Router) ApplyAuthority(env *host.Env) error {
	s := r.state(env)
	previous, err := s.authority.Finalize(env.Predecessor())
	if err != nil {
		return err
	}
	env.Log(events.AuthorityChanged{Contract: env.Current(), Current: previous, Next: env.Predecessor(), Applied: true})
	return nil
}

// SetBaseGas replaces the base budget.
func (r *Router) SetBaseGas(env *host.Env, base host.Gas) error {
	s := r.state(env)
	if err := s.authority.Require(env.Predecessor()); err != nil {
		return err
	}
	if err := s.gas.SetBase(base); err != nil {
		return err
	}
	env.Log(events.ConfigChanged{Kind: events.TypeGasConfigured, Contract: env.Current(), Key: "base", Value: fmt.Sprintf("%d", base)})
	return nil
}

// SetGas overrides the swap-in budget of token.
func (r *Router) SetGas(env *host.Env, token string, budget host.Gas) error {
	s := r.state(env)
	if err := s.authority.Require(env.Predecessor()); err != nil {
		return err
	}
	if err := s.gas.Set(token, budget); err != nil {
		return err
	}
	env.Log(events.ConfigChanged{Kind: events.TypeGasConfigured, Contract: env.Current(), Key: token, Value: fmt.Sprintf("%d", budget)})
	return nil
}

// ChangeChainID replaces the local chain identifier.
func (r *Router) ChangeChainID(env *host.Env, chainID string) error {
	s := r.state(env)
	if err := s.authority.Require(env.Predecessor()); err != nil {
		return err
	}
	chainID = strings.TrimSpace(chainID)
	if chainID == "" {
		return fmt.Errorf("%w: chain id required", bridgeerrors.ErrMalformedInstruction)
	}
	cfg, err := s.config()
	if err != nil {
		return err
	}
	cfg.ChainID = chainID
	if err := s.putConfig(cfg); err != nil {
		return err
	}
	env.Log(events.ConfigChanged{Kind: events.TypeChainConfigured, Contract: env.Current(), Key: "chainId", Value: chainID})
	return nil
}

// ChangeWNative replaces the wrapped-native token account.
func (r *Router) ChangeWNative(env *host.Env, wnative string) error {
	s := r.state(env)
	if err := s.authority.Require(env.Predecessor()); err != nil {
		return err
	}
	cfg, err := s.config()
	if err != nil {
		return err
	}
	cfg.WNative = strings.TrimSpace(wnative)
	if err := s.putConfig(cfg); err != nil {
		return err
	}
	env.Log(events.ConfigChanged{Kind: events.TypeNativeWrapperConfigured, Contract: env.Current(), Key: "wnative", Value: cfg.WNative})
	return nil
}

// CheckTx reports whether id has been committed.
func (r *Router) CheckTx(env *host.Env, id string) (bool, error) {
	return r.state(env).txs.HasProcessed(id)
}

// AllTxs lists committed ids in commit order.
func (r *Router) AllTxs(env *host.Env) ([]string, error) {
	return r.state(env).txs.All()
}

// AnySwapInGas is the prepaid gas an inbound credit of token must carry.
func (r *Router) AnySwapInGas(env *host.Env, token string) (host.Gas, error) {
	return r.state(env).gas.SwapInRequirement(token)
}

// AnySwapOutGas is the prepaid gas a transfer-attached swap-out must carry.
func (r *Router) AnySwapOutGas(env *host.Env) (host.Gas, error) {
	return r.state(env).gas.SwapOutBudget()
}

// Settlement returns the recorded state of an inbound settlement. Ids the
// engine never accepted report Received.
func (r *Router) Settlement(env *host.Env, id string) (State, error) {
	return r.state(env).settlements.get(id)
}

// Recover clears reservations left by a process that stopped before their
// settlements resolved and returns those ids to Received, so the authority
// can retry them. Only the router itself or the authority may call it, and
// only while no receipt of the router is queued.
func (r *Router) Recover(env *host.Env) ([]string, error) {
	s := r.state(env)
	if caller := env.Predecessor(); caller != env.Current() {
		if err := s.authority.Require(caller); err != nil {
			return nil, err
		}
	}
	ids, err := s.txs.ClearReserved()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		previous, err := s.settlements.get(id)
		if err != nil {
			return nil, err
		}
		if err := s.settlements.set(id, StateReceived); err != nil {
			return nil, err
		}
		env.Log(events.SettlementRecovered{TxID: id, Previous: previous.String()})
	}
	return ids, nil
}

// Resume dispatches continuations by kind.
func (r *Router) Resume(env *host.Env, cont host.Continuation, outcome host.Outcome) ([]byte, error) {
	switch cont.Kind {
	case contSwapIn:
		return r.resumeSwapIn(env, cont, outcome)
	case contSwapInNative:
		return r.resumeSwapInNative(env, cont, outcome)
	case contSwapOutUnderlying:
		return r.resumeSwapOutUnderlying(env, cont, outcome)
	case contSwapOut:
		return r.resumeSwapOut(env, cont, outcome)
	default:
		return nil, fmt.Errorf("router: unknown continuation %q", cont.Kind)
	}
}

type settlementBook struct {
	store *state.Store
}

func settlementKey(id string) string { return "settlement/" + strings.TrimSpace(id) }

func (b *settlementBook) get(id string) (State, error) {
	var recorded string
	ok, err := b.store.KVGet(settlementKey(id), &recorded)
	if err != nil {
		return "", err
	}
	if !ok {
		return StateReceived, nil
	}
	return State(recorded), nil
}

func (b *settlementBook) set(id string, st State) error {
	return b.store.KVPut(settlementKey(id), string(st))
}

func (s State) String() string { return string(s) }
