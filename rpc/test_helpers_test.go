package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"mpcbridge/config"
	"mpcbridge/core"
	"mpcbridge/core/host"
	"mpcbridge/observability"
	"mpcbridge/storage"
	"mpcbridge/storage/audit"
)

const (
	mpcToken   = "mpc-secret"
	aliceToken = "alice-secret"
)

type testEnv struct {
	node    *core.Node
	server  *Server
	archive *audit.Archive
}

func testBridgeConfig() *config.Config {
	return &config.Config{
		ChainID:       "near",
		Authority:     "mpc",
		RouterAccount: "router",
		PoolAccount:   "pool",
		WNative:       "wnear",
		BaseGas:       config.DefaultBaseGas,
		RouterNative:  "50",
		Tokens: []config.Token{
			{Account: "anyusd", Name: "Any USD", Symbol: "anyUSD", Decimals: 6, CheckTxHash: true, Authority: "router"},
		},
		Accounts: []config.Account{{Account: "mpc", Native: "100"}, {Account: "alice", Native: "100"}},
	}
}

func newTestEnv(t *testing.T, mutate func(*ServerConfig)) *testEnv {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	archive, err := audit.Open("file:"+name+"?mode=memory&cache=shared", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	cfg := testBridgeConfig()
	h := host.New(storage.NewMemDB(), host.WithEmitter(archive))
	node, err := core.NewNode(h, core.AccountsFromConfig(cfg), nil)
	require.NoError(t, err)
	require.NoError(t, node.Bootstrap(context.Background(), cfg))

	registry := prometheus.NewRegistry()
	serverCfg := ServerConfig{
		BearerTokens: map[string]string{"mpc": mpcToken, "alice": aliceToken},
		Audit:        archive,
		Metrics:      observability.NewRPCMetrics(registry),
		Gatherer:     registry,
	}
	if mutate != nil {
		mutate(&serverCfg)
	}
	server, err := NewServer(node, serverCfg)
	require.NoError(t, err)
	return &testEnv{node: node, server: server, archive: archive}
}

func (env *testEnv) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, env.node.Host().Drain(context.Background()))
}

func (env *testEnv) call(t *testing.T, token, method string, params interface{}) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": jsonRPCVersion, "id": 1, "method": method}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httpReq)
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return rec, resp
}

func decodeResult(t *testing.T, resp RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
