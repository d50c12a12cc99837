package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"mpcbridge/config"
	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/host"
	"mpcbridge/core/types"
	"mpcbridge/native/anytoken"
	"mpcbridge/native/router"
)

// AccountsFromConfig derives contract accounts from cfg.
func AccountsFromConfig(cfg *config.Config) Accounts {
	accounts := Accounts{Router: cfg.RouterAccount, Pool: cfg.PoolAccount}
	for _, token := range cfg.Tokens {
		accounts.Tokens = append(accounts.Tokens, token.Account)
	}
	return accounts
}

// Deployed reports whether the router has been initialised.
func (n *Node) Deployed() (bool, error) {
	_, err := n.Config()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bridgeerrors.ErrNotInitialized):
		return false, nil
	default:
		return false, err
	}
}

// Bootstrap deploys the bridge described by cfg unless the router is
// already initialised, in which case it recovers what the previous process
// left unfinished. Every step is a regular host submission, so it leaves
// the same records as any other call.
func (n *Node) Bootstrap(ctx context.Context, cfg *config.Config) error {
	deployed, err := n.Deployed()
	if err != nil {
		return err
	}
	if deployed {
		n.logger.Info("node: bridge already deployed", "router", n.accounts.Router)
		return n.Recover(ctx)
	}

	for _, account := range cfg.Accounts {
		if err := n.fund(account.Account, account.Native); err != nil {
			return err
		}
	}
	if err := n.host.CreateAccount(cfg.Authority); err != nil {
		return err
	}
	if err := n.fund(cfg.RouterAccount, cfg.RouterNative); err != nil {
		return err
	}

	if err := n.deployStep(ctx, cfg.Authority, n.accounts.Router, "init", func(env *host.Env) error {
		return n.router.Init(env, router.InitArgs{Authority: cfg.Authority, ChainID: cfg.ChainID, WNative: cfg.WNative, BaseGas: host.Gas(cfg.BaseGas)})
	}); err != nil {
		return err
	}
	if n.accounts.Pool != "" {
		if err := n.deployStep(ctx, cfg.Authority, n.accounts.Pool, "init", func(env *host.Env) error {
			return n.pool.Init(env, cfg.Authority, cfg.ChainID)
		}); err != nil {
			return err
		}
	}

	for _, token := range cfg.Tokens {
		token := token
		supply := new(uint256.Int)
		if strings.TrimSpace(token.TotalSupply) != "" {
			if supply, err = types.ParseAmount(token.TotalSupply); err != nil {
				return fmt.Errorf("token %s supply: %w", token.Account, err)
			}
		}
		args := anytoken.InitArgs{
			Authority:   token.Authority,
			TotalSupply: supply,
			Metadata:    anytoken.Metadata{Name: token.Name, Symbol: token.Symbol, Decimals: token.Decimals},
			CheckTxHash: token.CheckTxHash,
		}
		if err := n.deployStep(ctx, cfg.Authority, token.Account, "init", func(env *host.Env) error {
			return n.token.Init(env, args)
		}); err != nil {
			return err
		}
		// The router receives tokens through transfer-and-call.
		if err := n.deployStep(ctx, cfg.Authority, token.Account, "register", func(env *host.Env) error {
			return n.token.Register(env, n.accounts.Router)
		}); err != nil {
			return err
		}
		if token.Gas != 0 {
			gas := host.Gas(token.Gas)
			if err := n.deployStep(ctx, cfg.Authority, n.accounts.Router, "set_gas", func(env *host.Env) error {
				return n.router.SetGas(env, token.Account, gas)
			}); err != nil {
				return err
			}
		}
	}

	for _, token := range cfg.Tokens {
		if token.Underlying == "" {
			continue
		}
		token := token
		if _, local := n.tokens[token.Underlying]; local {
			if err := n.deployStep(ctx, cfg.Authority, token.Underlying, "register", func(env *host.Env) error {
				return n.token.Register(env, token.Account)
			}); err != nil {
				return err
			}
		}
		if err := n.deployStep(ctx, token.Authority, token.Account, "bind_underlying", func(env *host.Env) error {
			return n.token.BindUnderlying(env, token.Underlying)
		}); err != nil {
			return err
		}
	}
	n.logger.Info("node: bridge deployed", "router", n.accounts.Router, "tokens", len(cfg.Tokens), "chain", cfg.ChainID)
	return nil
}

// Recover hands back native value stranded by receipts the previous process
// never ran and reopens the inbound settlements they belonged to. It must run
// before the node accepts new work.
func (n *Node) Recover(ctx context.Context) error {
	restored, err := n.host.Recover()
	if err != nil {
		return fmt.Errorf("recover host value: %w", err)
	}
	var reopened []string
	if err := n.deployStep(ctx, n.accounts.Router, n.accounts.Router, "recover", func(env *host.Env) error {
		var err error
		reopened, err = n.router.Recover(env)
		return err
	}); err != nil {
		return err
	}
	if len(restored) > 0 || len(reopened) > 0 {
		n.logger.Warn("node: recovered interrupted settlements", "restored", len(restored), "reopened", reopened)
	}
	return nil
}

func (n *Node) fund(account, raw string) error {
	amount := new(uint256.Int)
	if strings.TrimSpace(raw) != "" {
		var err error
		if amount, err = types.ParseAmount(raw); err != nil {
			return fmt.Errorf("fund %s: %w", account, err)
		}
	}
	return n.host.Fund(account, amount)
}

func (n *Node) deployStep(ctx context.Context, signer, target, method string, fn func(env *host.Env) error) error {
	rcpt, err := n.submit(ctx, signer, target, method, DefaultGas, nil, fn)
	if err != nil {
		return fmt.Errorf("deploy %s.%s: %w", target, method, err)
	}
	if err := n.host.Drain(ctx); err != nil {
		return err
	}
	outcome, ok := n.host.Result(rcpt.TxID)
	if !ok {
		return fmt.Errorf("deploy %s.%s: unresolved", target, method)
	}
	if !outcome.Succeeded() {
		return fmt.Errorf("deploy %s.%s: %s", target, method, outcome.Reason())
	}
	return nil
}
