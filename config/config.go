package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultBaseGas is five teragas.
const DefaultBaseGas = 5_000_000_000_000

type Config struct {
	RPCAddress    string    `toml:"RPCAddress" yaml:"rpc_address"`
	DataDir       string    `toml:"DataDir" yaml:"data_dir"`
	Environment   string    `toml:"Environment" yaml:"environment"`
	ChainID       string    `toml:"ChainID" yaml:"chain_id"`
	Authority     string    `toml:"Authority" yaml:"authority"`
	RouterAccount string    `toml:"RouterAccount" yaml:"router_account"`
	PoolAccount   string    `toml:"PoolAccount" yaml:"pool_account"`
	WNative       string    `toml:"WNative" yaml:"wnative"`
	BaseGas       uint64    `toml:"BaseGas" yaml:"base_gas"`
	RouterNative  string    `toml:"RouterNative" yaml:"router_native"`
	Tokens        []Token   `toml:"Tokens" yaml:"tokens"`
	Accounts      []Account `toml:"Accounts" yaml:"accounts"`
	RPC           RPC       `toml:"RPC" yaml:"rpc"`
	Audit         Audit     `toml:"Audit" yaml:"audit"`
	Telemetry     Telemetry `toml:"Telemetry" yaml:"telemetry"`
	Log           Log       `toml:"Log" yaml:"log"`
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
		}
	}

	applyDefaults(cfg, path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config, path string) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Join(filepath.Dir(path), "bridge-data")
	}
	if cfg.BaseGas == 0 {
		cfg.BaseGas = DefaultBaseGas
	}
	if cfg.RPC.RequestsPerMinute == 0 {
		cfg.RPC.RequestsPerMinute = 600
	}
	if cfg.RPC.Burst == 0 {
		cfg.RPC.Burst = 60
	}
	if cfg.RPC.ReadHeaderTimeout == 0 {
		cfg.RPC.ReadHeaderTimeout = 5
	}
	if strings.TrimSpace(cfg.Audit.Path) == "" {
		cfg.Audit.Path = filepath.Join(cfg.DataDir, "audit.db")
	}
	if cfg.RPC.BearerTokens == nil {
		cfg.RPC.BearerTokens = map[string]string{}
	}
	for i := range cfg.Tokens {
		if strings.TrimSpace(cfg.Tokens[i].Authority) == "" {
			cfg.Tokens[i].Authority = cfg.RouterAccount
		}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:    ":8080",
		DataDir:       "./bridge-data",
		Environment:   "local",
		ChainID:       "local",
		Authority:     "mpc",
		RouterAccount: "router",
		PoolAccount:   "pool",
		WNative:       "wnative",
		BaseGas:       DefaultBaseGas,
		RouterNative:  "0",
		Tokens: []Token{{
			Account:     "anyusd",
			Name:        "Any USD",
			Symbol:      "anyUSD",
			Decimals:    6,
			TotalSupply: "0",
			CheckTxHash: true,
		}},
		Accounts: []Account{{Account: "mpc", Native: "1000"}},
		RPC:      RPC{BearerTokens: map[string]string{}},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg, path)
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
