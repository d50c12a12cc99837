package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/host"
	"mpcbridge/native/anytoken"
	"mpcbridge/native/pool"
	"mpcbridge/native/router"
)

// DefaultGas is attached to submissions that do not need a computed budget.
const DefaultGas = 50 * host.TeraGas

// ErrUnknownTx is returned for results of submissions the host never saw.
var ErrUnknownTx = errors.New("node: unknown transaction")

// Accounts names where the bridge contracts live.
type Accounts struct {
	Router string
	Pool   string
	Tokens []string
}

// Node is the central controller, wiring the host and the bridge contracts
// together for the RPC layer and the daemon.
type Node struct {
	host     *host.Host
	router   *router.Router
	token    *anytoken.Token
	pool     *pool.Pool
	accounts Accounts
	tokens   map[string]struct{}
	logger   *slog.Logger
}

// NewNode registers contract code on h. Code is not persisted, so this must
// run on every start.
func NewNode(h *host.Host, accounts Accounts, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(accounts.Router) == "" {
		return nil, fmt.Errorf("node: router account required")
	}
	n := &Node{
		host:     h,
		router:   router.New(),
		token:    anytoken.New(),
		pool:     pool.New(),
		accounts: accounts,
		tokens:   make(map[string]struct{}, len(accounts.Tokens)),
		logger:   logger,
	}
	if err := h.Register(accounts.Router, n.router); err != nil {
		return nil, err
	}
	if accounts.Pool != "" {
		if err := h.Register(accounts.Pool, n.pool); err != nil {
			return nil, err
		}
	}
	for _, account := range accounts.Tokens {
		if err := h.Register(account, n.token); err != nil {
			return nil, err
		}
		n.tokens[account] = struct{}{}
	}
	return n, nil
}

// Host exposes the underlying execution host.
func (n *Node) Host() *host.Host { return n.host }

// Accounts returns the contract accounts this node serves.
func (n *Node) Accounts() Accounts { return n.accounts }

// Run processes dispatched receipts until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error { return n.host.Run(ctx) }

func (n *Node) requireToken(account string) error {
	if _, ok := n.tokens[account]; !ok {
		return fmt.Errorf("%w: %s", bridgeerrors.ErrUnknownToken, account)
	}
	return nil
}

func (n *Node) submit(ctx context.Context, signer, target, method string, gas host.Gas, deposit *uint256.Int, fn func(env *host.Env) error) (host.Receipt, error) {
	if gas == 0 {
		gas = DefaultGas
	}
	rcpt, err := n.host.Submit(ctx, host.Call{
		Signer:  signer,
		Target:  target,
		Method:  method,
		Gas:     gas,
		Deposit: deposit,
		Fn: func(env *host.Env) ([]byte, error) {
			return nil, fn(env)
		},
	})
	if err != nil {
		return rcpt, err
	}
	n.logger.Debug("node: submitted", "tx", rcpt.TxID, "target", target, "method", method, "pending", rcpt.Pending)
	return rcpt, nil
}

func (n *Node) view(account string, fn func(env *host.Env) error) error {
	_, err := n.host.View(account, func(env *host.Env) ([]byte, error) {
		return nil, fn(env)
	})
	return err
}

// SwapIn is the inbound credit instruction of the authority.
type SwapIn struct {
	TxID      string
	Token     string
	Receiver  string
	Amount    *uint256.Int
	FromChain string
	Gas       host.Gas
}

// SwapIn submits an inbound credit. Without an explicit budget the router's
// requirement for the token is attached.
func (n *Node) SwapIn(ctx context.Context, signer string, req SwapIn) (host.Receipt, error) {
	if req.Gas == 0 {
		gas, err := n.SwapInGas(req.Token)
		if err != nil {
			return host.Receipt{}, err
		}
		req.Gas = gas
	}
	return n.submit(ctx, signer, n.accounts.Router, "swap_in", req.Gas, nil, func(env *host.Env) error {
		return n.router.AnySwapIn(env, req.TxID, req.Token, req.Receiver, req.Amount, req.FromChain)
	})
}

// SwapInNative submits a native inbound credit paid from the router's
// holding balance.
func (n *Node) SwapInNative(ctx context.Context, signer string, req SwapIn) (host.Receipt, error) {
	if req.Gas == 0 {
		cfg, err := n.Config()
		if err != nil {
			return host.Receipt{}, err
		}
		if req.Gas, err = n.SwapInGas(cfg.WNative); err != nil {
			return host.Receipt{}, err
		}
	}
	return n.submit(ctx, signer, n.accounts.Router, "swap_in_native", req.Gas, nil, func(env *host.Env) error {
		return n.router.SwapInNative(env, req.TxID, req.Receiver, req.Amount, req.FromChain)
	})
}

// SwapOutNative locks deposit in the router for an outbound transfer. When
// usePool is set the pool contract takes the deposit instead.
func (n *Node) SwapOutNative(ctx context.Context, signer, receiver, toChain string, deposit *uint256.Int, usePool bool) (host.Receipt, error) {
	if usePool {
		if n.accounts.Pool == "" {
			return host.Receipt{}, fmt.Errorf("node: no pool deployed")
		}
		return n.submit(ctx, signer, n.accounts.Pool, "swap_out", 0, deposit, func(env *host.Env) error {
			return n.pool.SwapOut(env, receiver, toChain)
		})
	}
	return n.submit(ctx, signer, n.accounts.Router, "swap_out_native", 0, deposit, func(env *host.Env) error {
		return n.router.SwapOutNative(env, receiver, toChain)
	})
}

// ReleasePool pays pooled native value to receiver.
func (n *Node) ReleasePool(ctx context.Context, signer, receiver string, amount *uint256.Int) (host.Receipt, error) {
	if n.accounts.Pool == "" {
		return host.Receipt{}, fmt.Errorf("node: no pool deployed")
	}
	return n.submit(ctx, signer, n.accounts.Pool, "release", 0, nil, func(env *host.Env) error {
		return n.pool.Release(env, receiver, amount)
	})
}

// ProposeAuthority starts a router authority rotation.
func (n *Node) ProposeAuthority(ctx context.Context, signer, next string) (host.Receipt, error) {
	return n.submit(ctx, signer, n.accounts.Router, "propose_authority", 0, nil, func(env *host.Env) error {
		return n.router.ProposeAuthority(env, next)
	})
}

// ApplyAuthority completes a router authority rotation.
func (n *Node) ApplyAuthority(ctx context.Context, signer string) (host.Receipt, error) {
	return n.submit(ctx, signer, n.accounts.Router, "apply_authority", 0, nil, func(env *host.Env) error {
		return n.router.ApplyAuthority(env)
	})
}

// SetGas overrides the swap-in budget of token.
func (n *Node) SetGas(ctx context.Context, signer, token string, gas host.Gas) (host.Receipt, error) {
	return n.submit(ctx, signer, n.accounts.Router, "set_gas", 0, nil, func(env *host.Env) error {
		return n.router.SetGas(env, token, gas)
	})
}

// SetBaseGas replaces the router's base budget.
func (n *Node) SetBaseGas(ctx context.Context, signer string, gas host.Gas) (host.Receipt, error) {
	return n.submit(ctx, signer, n.accounts.Router, "set_base_gas", 0, nil, func(env *host.Env) error {
		return n.router.SetBaseGas(env, gas)
	})
}

// SetChainID replaces the local chain identifier.
func (n *Node) SetChainID(ctx context.Context, signer, chainID string) (host.Receipt, error) {
	return n.submit(ctx, signer, n.accounts.Router, "set_chain_id", 0, nil, func(env *host.Env) error {
		return n.router.ChangeChainID(env, chainID)
	})
}

// Config reads the router configuration.
func (n *Node) Config() (router.View, error) {
	var view router.View
	err := n.view(n.accounts.Router, func(env *host.Env) error {
		var err error
		view, err = n.router.Describe(env)
		return err
	})
	return view, err
}

// SwapInGas is the prepaid gas an inbound credit of token needs.
func (n *Node) SwapInGas(token string) (host.Gas, error) {
	var gas host.Gas
	err := n.view(n.accounts.Router, func(env *host.Env) error {
		var err error
		gas, err = n.router.AnySwapInGas(env, token)
		return err
	})
	return gas, err
}

// SwapOutGas is the prepaid gas of a transfer-attached swap-out.
func (n *Node) SwapOutGas() (host.Gas, error) {
	var gas host.Gas
	err := n.view(n.accounts.Router, func(env *host.Env) error {
		var err error
		gas, err = n.router.AnySwapOutGas(env)
		return err
	})
	return gas, err
}

// CheckTx reports whether the router committed id and its recorded state.
func (n *Node) CheckTx(id string) (bool, router.State, error) {
	var (
		processed bool
		state     router.State
	)
	err := n.view(n.accounts.Router, func(env *host.Env) error {
		var err error
		if processed, err = n.router.CheckTx(env, id); err != nil {
			return err
		}
		state, err = n.router.Settlement(env, id)
		return err
	})
	return processed, state, err
}

// TokenSwapOut debits signer's wrapped balance for an outbound transfer.
func (n *Node) TokenSwapOut(ctx context.Context, signer, token, receiver string, amount *uint256.Int, toChain string) (host.Receipt, error) {
	if err := n.requireToken(token); err != nil {
		return host.Receipt{}, err
	}
	return n.submit(ctx, signer, token, "swap_out", 0, nil, func(env *host.Env) error {
		return n.token.SwapOut(env, receiver, amount, toChain)
	})
}

// Transfer moves wrapped tokens, attaching the execution bond.
func (n *Node) Transfer(ctx context.Context, signer, token, receiver string, amount *uint256.Int, memo string) (host.Receipt, error) {
	if err := n.requireToken(token); err != nil {
		return host.Receipt{}, err
	}
	return n.submit(ctx, signer, token, "transfer", 0, router.ExecutionBond, func(env *host.Env) error {
		return n.token.Transfer(env, receiver, amount, memo)
	})
}

// TransferCall moves tokens to receiver and lets it decide what to keep.
// Without an explicit budget the router's swap-out budget is attached.
func (n *Node) TransferCall(ctx context.Context, signer, token, receiver string, amount *uint256.Int, memo, msg string, gas host.Gas) (host.Receipt, error) {
	if err := n.requireToken(token); err != nil {
		return host.Receipt{}, err
	}
	if gas == 0 {
		var err error
		if gas, err = n.SwapOutGas(); err != nil {
			return host.Receipt{}, err
		}
	}
	return n.submit(ctx, signer, token, "transfer_call", gas, router.ExecutionBond, func(env *host.Env) error {
		return n.token.TransferCall(env, receiver, amount, memo, msg)
	})
}

// WithdrawUnderlying converts wrapped tokens back into the underlying asset.
func (n *Node) WithdrawUnderlying(ctx context.Context, signer, token string, amount *uint256.Int) (host.Receipt, error) {
	if err := n.requireToken(token); err != nil {
		return host.Receipt{}, err
	}
	return n.submit(ctx, signer, token, "withdraw_underlying", 0, router.ExecutionBond, func(env *host.Env) error {
		return n.token.WithdrawUnderlying(env, amount)
	})
}

// BindUnderlying binds token to its underlying asset.
func (n *Node) BindUnderlying(ctx context.Context, signer, token, underlying string) (host.Receipt, error) {
	if err := n.requireToken(token); err != nil {
		return host.Receipt{}, err
	}
	return n.submit(ctx, signer, token, "bind_underlying", 0, nil, func(env *host.Env) error {
		return n.token.BindUnderlying(env, underlying)
	})
}

// BalanceOf returns the balance of account on token.
func (n *Node) BalanceOf(token, account string) (*uint256.Int, error) {
	if err := n.requireToken(token); err != nil {
		return nil, err
	}
	var balance *uint256.Int
	err := n.view(token, func(env *host.Env) error {
		var err error
		balance, err = n.token.BalanceOf(env, account)
		return err
	})
	return balance, err
}

// NativeBalance returns the native balance of account.
func (n *Node) NativeBalance(account string) (*uint256.Int, error) {
	return n.host.NativeBalance(account)
}

// Result returns the outcome of a submission. Pending is set while its
// receipt chain is unresolved.
func (n *Node) Result(txID string) (host.Receipt, error) {
	if outcome, ok := n.host.Result(txID); ok {
		return host.Receipt{TxID: txID, ReceiptID: outcome.ReceiptID, Outcome: outcome}, nil
	}
	for _, call := range n.host.Pending() {
		if call.TxID == txID {
			return host.Receipt{TxID: txID, Pending: true}, nil
		}
	}
	return host.Receipt{}, fmt.Errorf("%w: %s", ErrUnknownTx, txID)
}
