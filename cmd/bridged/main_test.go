package main

import (
	"testing"

	"mpcbridge/config"
)

func TestTelemetryConfig(t *testing.T) {
	cfg := &config.Config{ChainID: "near", RouterAccount: "router", Telemetry: config.Telemetry{
		Endpoint: " collector:4318 ",
		Insecure: true,
		Headers:  "api-key=abc, team = bridge",
		Traces:   true,
	}}
	got := telemetryConfig(cfg, "staging")
	if got.ServiceName != serviceName || got.Environment != "staging" {
		t.Fatalf("unexpected identity %+v", got)
	}
	if got.Endpoint != "collector:4318" {
		t.Fatalf("endpoint not trimmed: %q", got.Endpoint)
	}
	if got.Headers["api-key"] != "abc" || got.Headers["team"] != "bridge" {
		t.Fatalf("unexpected headers %v", got.Headers)
	}
	if got.Attributes["bridge.chain_id"] != "near" || got.Attributes["bridge.router"] != "router" {
		t.Fatalf("unexpected resource attributes %v", got.Attributes)
	}
	if !got.Traces || got.Metrics {
		t.Fatalf("unexpected exporters %+v", got)
	}
}
