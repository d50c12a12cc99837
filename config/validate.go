package config

import (
	"fmt"
	"strings"

	"mpcbridge/core/types"
)

// Validate checks that the configuration can deploy a working bridge.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ChainID) == "" {
		return fmt.Errorf("ChainID required")
	}
	if strings.TrimSpace(c.Authority) == "" {
		return fmt.Errorf("Authority required")
	}
	if strings.TrimSpace(c.RouterAccount) == "" {
		return fmt.Errorf("RouterAccount required")
	}
	if c.RouterAccount == c.Authority {
		return fmt.Errorf("RouterAccount must differ from Authority")
	}
	if c.PoolAccount != "" && c.PoolAccount == c.RouterAccount {
		return fmt.Errorf("PoolAccount must differ from RouterAccount")
	}
	if err := validAmount("RouterNative", c.RouterNative); err != nil {
		return err
	}

	seen := map[string]struct{}{c.RouterAccount: {}}
	if c.PoolAccount != "" {
		seen[c.PoolAccount] = struct{}{}
	}
	for i, token := range c.Tokens {
		account := strings.TrimSpace(token.Account)
		if account == "" {
			return fmt.Errorf("Tokens[%d].Account required", i)
		}
		if _, dup := seen[account]; dup {
			return fmt.Errorf("Tokens[%d].Account %q deployed twice", i, account)
		}
		seen[account] = struct{}{}
		if token.Underlying == account {
			return fmt.Errorf("Tokens[%d].Underlying cannot be the token itself", i)
		}
		if err := validAmount(fmt.Sprintf("Tokens[%d].TotalSupply", i), token.TotalSupply); err != nil {
			return err
		}
	}
	for i, account := range c.Accounts {
		if strings.TrimSpace(account.Account) == "" {
			return fmt.Errorf("Accounts[%d].Account required", i)
		}
		if _, clash := seen[account.Account]; clash {
			return fmt.Errorf("Accounts[%d].Account %q is a contract", i, account.Account)
		}
		if err := validAmount(fmt.Sprintf("Accounts[%d].Native", i), account.Native); err != nil {
			return err
		}
	}

	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("RPC rate limits must not be negative")
	}
	tokens := make(map[string]string, len(c.RPC.BearerTokens))
	for account, token := range c.RPC.BearerTokens {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("RPC.BearerTokens[%s] is empty", account)
		}
		if other, dup := tokens[token]; dup {
			return fmt.Errorf("RPC.BearerTokens: %s and %s share a token", other, account)
		}
		tokens[token] = account
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("Telemetry.SampleRatio %v outside [0, 1]", r)
	}
	return nil
}

func validAmount(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, err := types.ParseAmount(raw); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
