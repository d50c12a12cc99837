package config

// Token describes a wrapped token deployed on first boot.
type Token struct {
	Account     string `toml:"Account" yaml:"account"`
	Name        string `toml:"Name" yaml:"name"`
	Symbol      string `toml:"Symbol" yaml:"symbol"`
	Decimals    uint8  `toml:"Decimals" yaml:"decimals"`
	TotalSupply string `toml:"TotalSupply" yaml:"total_supply"`
	// Underlying, when set, is bound right after deployment. It may name
	// another configured token.
	Underlying  string `toml:"Underlying" yaml:"underlying"`
	CheckTxHash bool   `toml:"CheckTxHash" yaml:"check_tx_hash"`
	// Gas overrides the router's swap-in budget for this token.
	Gas uint64 `toml:"Gas" yaml:"gas"`
	// Authority defaults to the router account.
	Authority string `toml:"Authority" yaml:"authority"`
}

// Account is a plain account funded with native value on first boot.
type Account struct {
	Account string `toml:"Account" yaml:"account"`
	Native  string `toml:"Native" yaml:"native"`
}

// RPC configures the JSON-RPC server.
type RPC struct {
	// BearerTokens maps a signer account to the token that authenticates it.
	BearerTokens      map[string]string `toml:"BearerTokens" yaml:"bearer_tokens"`
	RequestsPerMinute int               `toml:"RequestsPerMinute" yaml:"requests_per_minute"`
	Burst             int               `toml:"Burst" yaml:"burst"`
	ReadHeaderTimeout int               `toml:"ReadHeaderTimeout" yaml:"read_header_timeout"`
}

// Audit configures the SQLite archive of log records.
type Audit struct {
	Path string `toml:"Path" yaml:"path"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
	// SampleRatio is the fraction of root spans exported; zero keeps all.
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}

// Log configures the optional rotated log file.
type Log struct {
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}
