package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.RouterAccount != "router" || cfg.Authority != "mpc" {
		t.Fatalf("unexpected default accounts: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if again.ChainID != cfg.ChainID || len(again.Tokens) != 1 || again.Tokens[0].Authority != "router" {
		t.Fatalf("reloaded config differs: %+v", again)
	}
	if again.BaseGas != DefaultBaseGas {
		t.Fatalf("expected base gas default, got %d", again.BaseGas)
	}
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
DataDir = "./data"
ChainID = "near"
Authority = "mpc.near"
RouterAccount = "router.near"
WNative = "wrap.near"
BaseGas = 7000000000000
RouterNative = "500"

[[Tokens]]
Account = "eth.near"
Name = "ETH"
Symbol = "ETH"
Decimals = 18
TotalSupply = "1000"
Authority = "mpc.near"

[[Tokens]]
Account = "anyeth.near"
Name = "Any ETH"
Symbol = "anyETH"
Decimals = 18
Underlying = "eth.near"
CheckTxHash = true
Gas = 20000000000000

[[Accounts]]
Account = "mpc.near"
Native = "100"

[RPC]
RequestsPerMinute = 120
Burst = 10

[RPC.BearerTokens]
"mpc.near" = "s3cret"

[Audit]
Path = "/tmp/audit.db"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:9000" || cfg.BaseGas != 7_000_000_000_000 {
		t.Fatalf("unexpected top level: %+v", cfg)
	}
	if len(cfg.Tokens) != 2 || cfg.Tokens[1].Underlying != "eth.near" || !cfg.Tokens[1].CheckTxHash {
		t.Fatalf("unexpected tokens: %+v", cfg.Tokens)
	}
	if cfg.Tokens[1].Authority != "router.near" {
		t.Fatalf("token authority should default to the router, got %q", cfg.Tokens[1].Authority)
	}
	if cfg.Tokens[0].Authority != "mpc.near" {
		t.Fatalf("explicit authority lost: %q", cfg.Tokens[0].Authority)
	}
	if cfg.RPC.BearerTokens["mpc.near"] != "s3cret" || cfg.RPC.Burst != 10 {
		t.Fatalf("unexpected rpc: %+v", cfg.RPC)
	}
	if cfg.Audit.Path != "/tmp/audit.db" {
		t.Fatalf("unexpected audit path %q", cfg.Audit.Path)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	contents := `chain_id: aurora
authority: mpc
router_account: router
tokens:
  - account: anyusd
    symbol: anyUSD
    decimals: 6
rpc:
  bearer_tokens:
    mpc: token-1
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != "aurora" || cfg.Tokens[0].Decimals != 6 || cfg.RPC.BearerTokens["mpc"] != "token-1" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.RPC.RequestsPerMinute != 600 {
		t.Fatalf("rate limit default not applied: %d", cfg.RPC.RequestsPerMinute)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.toml")
	contents := "ChainID = \"near\"\nAuthority = \"mpc\"\nRouterAccount = \"router\"\nValidatorKey = \"abc\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{ChainID: "near", Authority: "mpc", RouterAccount: "router", RPC: RPC{BearerTokens: map[string]string{}}}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing chain", func(c *Config) { c.ChainID = " " }, "ChainID"},
		{"router is authority", func(c *Config) { c.RouterAccount = "mpc" }, "differ"},
		{"bad amount", func(c *Config) { c.RouterNative = "-1" }, "RouterNative"},
		{"duplicate token", func(c *Config) {
			c.Tokens = []Token{{Account: "a"}, {Account: "a"}}
		}, "twice"},
		{"self underlying", func(c *Config) { c.Tokens = []Token{{Account: "a", Underlying: "a"}} }, "Underlying"},
		{"account clashes with contract", func(c *Config) { c.Accounts = []Account{{Account: "router"}} }, "contract"},
		{"shared bearer token", func(c *Config) {
			c.RPC.BearerTokens = map[string]string{"a": "t", "b": "t"}
		}, "share"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, "SampleRatio"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
