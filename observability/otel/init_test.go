package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "bridged", Attributes: map[string]string{"bridge.chain_id": "near"}})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders("api-key=abc, team = bridge,broken,=x,")
	require.Equal(t, map[string]string{"api-key": "abc", "team": "bridge"}, got)
	require.Empty(t, ParseHeaders(""))
}

func TestSampler(t *testing.T) {
	require.Contains(t, Config{}.sampler().Description(), "AlwaysOnSampler")
	require.Contains(t, Config{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased")
}
