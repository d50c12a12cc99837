package router

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/events"
	"mpcbridge/core/host"
	"mpcbridge/core/types"
	"mpcbridge/native/anytoken"
	"mpcbridge/storage"
)

const defaultGas = 100 * host.TeraGas

type fixture struct {
	t       *testing.T
	h       *host.Host
	router  *Router
	token   *anytoken.Token
	capture *events.Capture
}

// newFixture deploys a router owned by "mpc" with three tokens: "anyusd"
// (unbound, replay-checked), "eth" (a plain asset minted to mpc) and
// "anyeth" (bound to eth, holding 500 eth in reserve).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	capture := &events.Capture{}
	f := &fixture{
		t:       t,
		h:       host.New(storage.NewMemDB(), host.WithEmitter(capture)),
		router:  New(),
		token:   anytoken.New(),
		capture: capture,
	}
	for _, account := range []string{"mpc", "alice", "bob", "carol"} {
		require.NoError(t, f.h.Fund(account, uint256.NewInt(100)))
	}
	require.NoError(t, f.h.Register("router", f.router))
	require.NoError(t, f.h.Fund("router", uint256.NewInt(50)))
	for _, account := range []string{"anyusd", "anyeth", "eth"} {
		require.NoError(t, f.h.Register(account, f.token))
	}

	f.mustCall("mpc", "router", 0, func(env *host.Env) error {
		return f.router.Init(env, InitArgs{Authority: "mpc", ChainID: "near", WNative: "wnear"})
	})
	f.mustCall("mpc", "anyusd", 0, func(env *host.Env) error {
		return f.token.Init(env, anytoken.InitArgs{Authority: "router", Metadata: anytoken.Metadata{Name: "Any USD", Symbol: "anyUSD", Decimals: 6}, CheckTxHash: true})
	})
	f.mustCall("mpc", "anyeth", 0, func(env *host.Env) error {
		return f.token.Init(env, anytoken.InitArgs{Authority: "router", Metadata: anytoken.Metadata{Name: "Any ETH", Symbol: "anyETH", Decimals: 18}, CheckTxHash: true})
	})
	f.mustCall("mpc", "eth", 0, func(env *host.Env) error {
		return f.token.Init(env, anytoken.InitArgs{Authority: "mpc", TotalSupply: uint256.NewInt(1_000), Metadata: anytoken.Metadata{Name: "ETH", Symbol: "ETH", Decimals: 18}})
	})
	for _, account := range []string{"router", "anyeth", "alice"} {
		account := account
		f.mustCall("mpc", "eth", 0, func(env *host.Env) error { return f.token.Register(env, account) })
	}
	f.mustCall("router", "anyeth", 0, func(env *host.Env) error { return f.token.BindUnderlying(env, "eth") })
	f.mustCall("mpc", "eth", 1, func(env *host.Env) error {
		return f.token.Transfer(env, "anyeth", uint256.NewInt(500), "reserves")
	})
	f.capture.Reset()
	return f
}

func (f *fixture) submit(signer, target string, gas host.Gas, deposit uint64, fn func(env *host.Env) error) host.Receipt {
	f.t.Helper()
	rcpt, err := f.h.Submit(context.Background(), host.Call{Signer: signer, Target: target, Method: "test", Gas: gas, Deposit: uint256.NewInt(deposit), Fn: func(env *host.Env) ([]byte, error) {
		return nil, fn(env)
	}})
	require.NoError(f.t, err)
	return rcpt
}

func (f *fixture) callGas(signer, target string, gas host.Gas, deposit uint64, fn func(env *host.Env) error) host.Outcome {
	f.t.Helper()
	rcpt := f.submit(signer, target, gas, deposit, fn)
	require.NoError(f.t, f.h.Drain(context.Background()))
	outcome, done := f.h.Result(rcpt.TxID)
	require.True(f.t, done)
	return outcome
}

func (f *fixture) call(signer, target string, deposit uint64, fn func(env *host.Env) error) host.Outcome {
	f.t.Helper()
	return f.callGas(signer, target, defaultGas, deposit, fn)
}

func (f *fixture) mustCall(signer, target string, deposit uint64, fn func(env *host.Env) error) {
	f.t.Helper()
	outcome := f.call(signer, target, deposit, fn)
	require.True(f.t, outcome.Succeeded(), "call failed: %v", outcome.Err)
}

func (f *fixture) swapIn(txID, token, receiver string, amount uint64) host.Outcome {
	f.t.Helper()
	return f.call("mpc", "router", 0, func(env *host.Env) error {
		return f.router.AnySwapIn(env, txID, token, receiver, uint256.NewInt(amount), "X")
	})
}

func (f *fixture) balance(token, account string) uint64 {
	f.t.Helper()
	out, err := f.h.View(token, func(env *host.Env) ([]byte, error) {
		balance, err := f.token.BalanceOf(env, account)
		if err != nil {
			return nil, err
		}
		return types.EncodeAmount(balance), nil
	})
	require.NoError(f.t, err)
	amount, err := types.DecodeAmount(out)
	require.NoError(f.t, err)
	return amount.Uint64()
}

func (f *fixture) native(account string) uint64 {
	f.t.Helper()
	balance, err := f.h.NativeBalance(account)
	require.NoError(f.t, err)
	return balance.Uint64()
}

func (f *fixture) processed(id string) bool {
	f.t.Helper()
	out, err := f.h.View("router", func(env *host.Env) ([]byte, error) {
		ok, err := f.router.CheckTx(env, id)
		if ok {
			return []byte{1}, err
		}
		return nil, err
	})
	require.NoError(f.t, err)
	return len(out) == 1
}

func (f *fixture) settlement(id string) State {
	f.t.Helper()
	out, err := f.h.View("router", func(env *host.Env) ([]byte, error) {
		st, err := f.router.Settlement(env, id)
		return []byte(st), err
	})
	require.NoError(f.t, err)
	return State(out)
}

func (f *fixture) describe() View {
	f.t.Helper()
	var view View
	_, err := f.h.View("router", func(env *host.Env) ([]byte, error) {
		var err error
		view, err = f.router.Describe(env)
		return nil, err
	})
	require.NoError(f.t, err)
	return view
}

func TestInboundCreditCommitsOnce(t *testing.T) {
	f := newFixture(t)

	outcome := f.swapIn("tx1", "anyusd", "bob", 100)
	require.True(t, outcome.Succeeded(), "swap in: %v", outcome.Err)
	require.Equal(t, uint64(100), f.balance("anyusd", "bob"))
	require.True(t, f.processed("tx1"))
	require.Equal(t, StateCommitted, f.settlement("tx1"))
	require.Equal(t, uint64(50), f.native("router"), "mint path returns the bond")

	logs := f.capture.Logs(events.TypeSwapIn)
	require.Len(t, logs, 1)
	require.Equal(t, "Committed", logs[0].Attr("state"))
	require.Equal(t, "anyusd", logs[0].Attr("token"))
	require.Equal(t, "bob", logs[0].Attr("receiver"))
	require.Equal(t, "100", logs[0].Attr("amount"))
	require.Equal(t, "X", logs[0].Attr("fromChain"))
	require.Equal(t, "near", logs[0].Attr("toChain"))
	require.Equal(t, "tx1", logs[0].Attr("txId"))

	outcome = f.swapIn("tx1", "anyusd", "bob", 100)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrAlreadyProcessed))
	require.Equal(t, uint64(100), f.balance("anyusd", "bob"))
	require.Len(t, f.capture.Logs(events.TypeSwapIn), 1)
	rejected := f.capture.Logs(events.TypeSettlementRejected)
	require.Len(t, rejected, 1)
	require.Equal(t, "Rejected", rejected[0].Attr("state"))

	var txs []string
	_, err := f.h.View("router", func(env *host.Env) ([]byte, error) {
		var err error
		txs, err = f.router.AllTxs(env)
		return nil, err
	})
	require.NoError(t, err)
	require.Equal(t, []string{"tx1"}, txs)
}

func TestInboundCreditGating(t *testing.T) {
	f := newFixture(t)

	outcome := f.call("alice", "router", 0, func(env *host.Env) error {
		return f.router.AnySwapIn(env, "tx1", "anyusd", "alice", uint256.NewInt(5), "X")
	})
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrUnauthorized))
	require.Zero(t, f.balance("anyusd", "alice"))

	outcome = f.swapIn("tx1", "anyusd", "alice", 0)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrInvalidAmount))

	outcome = f.swapIn("tx1", "nothing", "alice", 5)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrUnknownToken))

	outcome = f.swapIn("tx1", "anyusd", " ", 5)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrMalformedInstruction))

	require.False(t, f.processed("tx1"))
	require.Equal(t, StateReceived, f.settlement("tx1"))
	require.Len(t, f.capture.Logs(events.TypeSettlementRejected), 4)
}

func TestInboundCreditGasRequirement(t *testing.T) {
	f := newFixture(t)
	swap := func(gas host.Gas) host.Outcome {
		return f.callGas("mpc", "router", gas, 0, func(env *host.Env) error {
			return f.router.AnySwapIn(env, "tx1", "anyusd", "bob", uint256.NewInt(10), "X")
		})
	}

	// 3 base units for the token plus 4 for the engine.
	outcome := swap(34 * host.TeraGas)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrGasExhausted))
	require.False(t, f.processed("tx1"))

	f.mustCall("mpc", "router", 0, func(env *host.Env) error {
		return f.router.SetGas(env, "anyusd", 10*host.TeraGas)
	})
	require.True(t, swap(30*host.TeraGas).Succeeded())
	require.Equal(t, uint64(10), f.balance("anyusd", "bob"))
}

func TestInboundCreditInFlight(t *testing.T) {
	f := newFixture(t)
	first := f.submit("mpc", "router", defaultGas, 0, func(env *host.Env) error {
		return f.router.AnySwapIn(env, "tx1", "anyusd", "bob", uint256.NewInt(100), "X")
	})
	require.True(t, first.Pending)
	require.Equal(t, StateAwaitingExternalResult, f.settlement("tx1"))

	second := f.submit("mpc", "router", defaultGas, 0, func(env *host.Env) error {
		return f.router.AnySwapIn(env, "tx1", "anyusd", "bob", uint256.NewInt(100), "X")
	})
	require.False(t, second.Pending)
	require.True(t, host.IsFailure(second.Outcome, bridgeerrors.ErrSettlementInFlight))

	require.NoError(t, f.h.Drain(context.Background()))
	outcome, done := f.h.Result(first.TxID)
	require.True(t, done)
	require.True(t, outcome.Succeeded())
	require.Equal(t, uint64(100), f.balance("anyusd", "bob"))
	require.Equal(t, StateCommitted, f.settlement("tx1"))
}

func TestInboundCreditThroughUnderlying(t *testing.T) {
	f := newFixture(t)

	outcome := f.swapIn("tx1", "anyeth", "alice", 100)
	require.True(t, outcome.Succeeded(), "swap in: %v", outcome.Err)
	require.Equal(t, uint64(100), f.balance("eth", "alice"))
	require.Equal(t, uint64(400), f.balance("eth", "anyeth"))
	require.Zero(t, f.balance("anyeth", "alice"))
	require.Equal(t, uint64(49), f.native("router"), "bond is spent on the underlying transfer")
	require.True(t, f.processed("tx1"))
}

func TestInboundCreditCompensationSpendsID(t *testing.T) {
	f := newFixture(t)

	// bob has no eth slot, so the underlying transfer fails and the token
	// compensates with wrapped balance.
	outcome := f.swapIn("tx1", "anyeth", "bob", 100)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrDependentCallFailed))
	require.True(t, f.processed("tx1"))
	require.Equal(t, StateRolledBack, f.settlement("tx1"))
	require.Equal(t, uint64(100), f.balance("anyeth", "bob"))
	require.Equal(t, uint64(500), f.balance("eth", "anyeth"))
	require.Len(t, f.capture.Logs(events.TypeTokenSwapInCompensated), 1)
	require.Empty(t, f.capture.Logs(events.TypeSwapIn))
	require.Empty(t, f.capture.Logs(events.TypeSettlementRejected))

	compensated := f.capture.Logs(events.TypeSwapInCompensated)
	require.Len(t, compensated, 1)
	require.Equal(t, "tx1", compensated[0].Attr("txId"))
	require.Equal(t, events.StateRolledBack, compensated[0].Attr("state"))
	require.NotEmpty(t, compensated[0].Attr("reason"))

	outcome = f.swapIn("tx1", "anyeth", "bob", 100)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrAlreadyProcessed))
	require.Equal(t, uint64(100), f.balance("anyeth", "bob"))
}

func TestInboundCreditCompensationWithoutTokenReplayCheck(t *testing.T) {
	f := newFixture(t)
	f.mustCall("router", "anyeth", 0, func(env *host.Env) error { return f.token.SetCheckFlag(env, false) })

	outcome := f.swapIn("tx9", "anyeth", "bob", 100)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrDependentCallFailed))
	require.Equal(t, uint64(100), f.balance("anyeth", "bob"))

	// Once bob can receive eth, a retry of the same id must not pay again.
	f.mustCall("mpc", "eth", 0, func(env *host.Env) error { return f.token.Register(env, "bob") })
	outcome = f.swapIn("tx9", "anyeth", "bob", 100)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrAlreadyProcessed))
	require.Equal(t, uint64(100), f.balance("anyeth", "bob"))
	require.Zero(t, f.balance("eth", "bob"))
	require.Equal(t, uint64(500), f.balance("eth", "anyeth"))
	require.True(t, f.processed("tx9"))
}

func TestInboundCreditFailureIsSurfacedAndUnmarked(t *testing.T) {
	f := newFixture(t)

	// eth only accepts swap-ins from mpc, so the token refuses the router
	// without delivering anything.
	outcome := f.swapIn("tx1", "eth", "alice", 10)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrDependentCallFailed))
	require.False(t, f.processed("tx1"))
	require.Equal(t, StateRejected, f.settlement("tx1"))
	require.Zero(t, f.balance("eth", "alice"))
	require.Equal(t, uint64(50), f.native("router"), "unused bond returns to the router")
	require.Empty(t, f.capture.Logs(events.TypeSwapIn))

	rejected := f.capture.Logs(events.TypeSettlementRejected)
	require.Len(t, rejected, 1)
	require.Equal(t, "tx1", rejected[0].Attr("txId"))
	require.NotEmpty(t, rejected[0].Attr("reason"))

	busy, err := f.h.View("router", func(env *host.Env) ([]byte, error) {
		inFlight, err := f.router.state(env).txs.InFlight("tx1")
		if inFlight {
			return []byte{1}, err
		}
		return nil, err
	})
	require.NoError(t, err)
	require.Empty(t, busy, "rejection releases the reservation")
}

func TestSwapInNative(t *testing.T) {
	f := newFixture(t)
	swap := func(id, receiver string, amount uint64) host.Outcome {
		return f.call("mpc", "router", 0, func(env *host.Env) error {
			return f.router.SwapInNative(env, id, receiver, uint256.NewInt(amount), "X")
		})
	}

	outcome := swap("n1", "carol", 20)
	require.True(t, outcome.Succeeded(), "native swap in: %v", outcome.Err)
	require.Equal(t, uint64(120), f.native("carol"))
	require.Equal(t, uint64(30), f.native("router"))
	require.True(t, f.processed("n1"))
	require.Len(t, f.capture.Logs(events.TypeSwapInNative), 1)

	outcome = swap("n2", "ghost", 10)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrDependentCallFailed))
	require.Equal(t, uint64(30), f.native("router"), "failed transfer is refunded to the holding balance")
	require.False(t, f.processed("n2"))
	require.Equal(t, StateRolledBack, f.settlement("n2"))
	refunded := f.capture.Logs(events.TypeSwapInNativeRefunded)
	require.Len(t, refunded, 1)
	require.Equal(t, "RolledBack", refunded[0].Attr("state"))
	inTransit, err := f.h.InTransit()
	require.NoError(t, err)
	require.True(t, inTransit.IsZero())

	outcome = swap("n3", "carol", 1_000)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrInsufficientBalance))
	require.Equal(t, uint64(120), f.native("carol"))
}

func TestOutboundDebit(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.swapIn("tx1", "anyusd", "bob", 100).Succeeded())

	f.mustCall("bob", "anyusd", 0, func(env *host.Env) error {
		return f.token.SwapOut(env, "0xbob", uint256.NewInt(40), "eth")
	})
	require.Equal(t, uint64(60), f.balance("anyusd", "bob"))
	logs := f.capture.Logs(events.TypeTokenSwapOut)
	require.Len(t, logs, 1)
	require.Equal(t, "40", logs[0].Attr("amount"))
	require.Equal(t, "eth", logs[0].Attr("toChain"))

	outcome := f.call("bob", "anyusd", 0, func(env *host.Env) error {
		return f.token.SwapOut(env, "0xbob", uint256.NewInt(61), "eth")
	})
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrInsufficientBalance))
	require.Equal(t, uint64(60), f.balance("anyusd", "bob"))
	require.Len(t, f.capture.Logs(events.TypeTokenSwapOut), 1)
}

func (f *fixture) transferCall(signer, token string, amount uint64, msg string) host.Outcome {
	f.t.Helper()
	return f.call(signer, token, 1, func(env *host.Env) error {
		return f.token.TransferCall(env, "router", uint256.NewInt(amount), "", msg)
	})
}

func TestTransferSwapOutBurnsWrapped(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.swapIn("tx1", "anyusd", "bob", 100).Succeeded())

	outcome := f.transferCall("bob", "anyusd", 60, "any_swap_out anyusd 0xbob eth")
	require.True(t, outcome.Succeeded(), "transfer call: %v", outcome.Err)
	require.Equal(t, uint64(40), f.balance("anyusd", "bob"))
	require.Zero(t, f.balance("anyusd", "router"))

	logs := f.capture.Logs(events.TypeSwapOut)
	require.Len(t, logs, 1)
	require.Equal(t, "Committed", logs[0].Attr("state"))
	require.Equal(t, "near", logs[0].Attr("fromChain"))
	require.Equal(t, "eth", logs[0].Attr("toChain"))
	require.Equal(t, "0xbob", logs[0].Attr("receiver"))
	require.Len(t, f.capture.Logs(events.TypeTokenBurn), 1)
}

func TestTransferSwapOutForwardsUnderlying(t *testing.T) {
	f := newFixture(t)
	f.mustCall("mpc", "eth", 1, func(env *host.Env) error {
		return f.token.Transfer(env, "alice", uint256.NewInt(50), "")
	})

	outcome := f.transferCall("alice", "eth", 30, "any_swap_out anyeth 0xalice eth")
	require.True(t, outcome.Succeeded(), "transfer call: %v", outcome.Err)
	require.Equal(t, uint64(20), f.balance("eth", "alice"))
	require.Equal(t, uint64(530), f.balance("eth", "anyeth"))
	require.Zero(t, f.balance("eth", "router"))
	require.Equal(t, "Committed", f.capture.Logs(events.TypeSwapOut)[0].Attr("state"))

	// anyusd does not wrap eth: the transfer is handed back.
	outcome = f.transferCall("alice", "eth", 10, "any_swap_out anyusd 0xalice eth")
	require.True(t, outcome.Succeeded())
	require.Equal(t, uint64(20), f.balance("eth", "alice"))
	logs := f.capture.Logs(events.TypeSwapOut)
	require.Len(t, logs, 2)
	require.Equal(t, "RolledBack", logs[1].Attr("state"))
}

func TestTransferSwapOutMessages(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.swapIn("tx1", "anyusd", "bob", 100).Succeeded())

	f.transferCall("bob", "anyusd", 10, "hello there")
	require.Equal(t, uint64(100), f.balance("anyusd", "bob"))
	require.Len(t, f.capture.Logs(events.TypeMessageUnmatched), 1)

	f.transferCall("bob", "anyusd", 10, "any_swap_out anyusd 0xbob")
	require.Equal(t, uint64(100), f.balance("anyusd", "bob"))
	require.NotEmpty(t, f.capture.Logs(events.TypeReceiptFailed))
	require.Empty(t, f.capture.Logs(events.TypeSwapOut))
	rejected := f.capture.Logs(events.TypeSettlementRejected)
	require.Len(t, rejected, 1)
	require.Equal(t, contSwapOut, rejected[0].Attr("operation"))
	require.Equal(t, "anyusd", rejected[0].Attr("token"))
	require.Equal(t, "bob", rejected[0].Attr("caller"))
	require.Equal(t, "0xbob", rejected[0].Attr("receiver"))
	require.Contains(t, rejected[0].Attr("reason"), bridgeerrors.ErrMalformedInstruction.Error())
}

func TestSwapOutNativeLocksDeposit(t *testing.T) {
	f := newFixture(t)

	f.mustCall("alice", "router", 10, func(env *host.Env) error {
		return f.router.SwapOutNative(env, "0xalice", "eth")
	})
	require.Equal(t, uint64(90), f.native("alice"))
	require.Equal(t, uint64(60), f.native("router"))
	logs := f.capture.Logs(events.TypeSwapOutNative)
	require.Len(t, logs, 1)
	require.Equal(t, "10", logs[0].Attr("amount"))

	outcome := f.call("alice", "router", 0, func(env *host.Env) error {
		return f.router.SwapOutNative(env, "0xalice", "eth")
	})
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrInvalidAmount))
	require.Equal(t, uint64(60), f.native("router"))
}

func TestAuthorityRotation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.h.Fund("mpc2", uint256.NewInt(10)))

	f.mustCall("mpc", "router", 0, func(env *host.Env) error { return f.router.ProposeAuthority(env, "mpc2") })
	view := f.describe()
	require.Equal(t, "mpc", view.Authority)
	require.Equal(t, "mpc2", view.Pending)

	// The current authority keeps working until the rotation is applied.
	require.True(t, f.swapIn("tx1", "anyusd", "bob", 1).Succeeded())

	outcome := f.call("alice", "router", 0, func(env *host.Env) error { return f.router.ApplyAuthority(env) })
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrUnauthorized))

	f.mustCall("mpc2", "router", 0, func(env *host.Env) error { return f.router.ApplyAuthority(env) })
	require.Equal(t, "mpc2", f.describe().Authority)
	require.Len(t, f.capture.Logs(events.TypeAuthorityRotated), 1)

	outcome = f.swapIn("tx2", "anyusd", "bob", 1)
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrUnauthorized))
	require.True(t, f.call("mpc2", "router", 0, func(env *host.Env) error {
		return f.router.AnySwapIn(env, "tx2", "anyusd", "bob", uint256.NewInt(1), "X")
	}).Succeeded())
	require.Equal(t, uint64(2), f.balance("anyusd", "bob"))
}

func TestAdminSetters(t *testing.T) {
	f := newFixture(t)

	outcome := f.call("alice", "router", 0, func(env *host.Env) error { return f.router.SetBaseGas(env, host.TeraGas) })
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrUnauthorized))

	f.mustCall("mpc", "router", 0, func(env *host.Env) error { return f.router.SetBaseGas(env, 2*host.TeraGas) })
	f.mustCall("mpc", "router", 0, func(env *host.Env) error { return f.router.ChangeChainID(env, "aurora") })
	f.mustCall("mpc", "router", 0, func(env *host.Env) error { return f.router.ChangeWNative(env, "wrap.near") })
	f.mustCall("mpc", "router", 0, func(env *host.Env) error { return f.router.SetGas(env, "anyusd", 9*host.TeraGas) })

	view := f.describe()
	require.Equal(t, "aurora", view.ChainID)
	require.Equal(t, "wrap.near", view.WNative)
	require.Equal(t, 2*host.TeraGas, view.BaseGas)
	require.Equal(t, 18*host.TeraGas+30*host.TeraGas, view.SwapOutGas)
	require.Len(t, view.Overrides, 1)

	var need host.Gas
	_, err := f.h.View("router", func(env *host.Env) ([]byte, error) {
		var err error
		need, err = f.router.AnySwapInGas(env, "anyusd")
		return nil, err
	})
	require.NoError(t, err)
	require.Equal(t, 17*host.TeraGas, need)

	outcome = f.call("mpc", "router", 0, func(env *host.Env) error {
		return f.router.Init(env, InitArgs{Authority: "mpc", ChainID: "near"})
	})
	require.True(t, host.IsFailure(outcome, bridgeerrors.ErrAlreadyInitialized))
	require.Len(t, f.capture.Logs(events.TypeGasConfigured), 2)
}

func TestRecoverReopensReservations(t *testing.T) {
	f := newFixture(t)
	rcpt := f.submit("mpc", "router", defaultGas, 0, func(env *host.Env) error {
		return f.router.AnySwapIn(env, "tx1", "anyusd", "bob", uint256.NewInt(10), "X")
	})
	require.True(t, rcpt.Pending)

	refused := f.submit("alice", "router", defaultGas, 0, func(env *host.Env) error {
		_, err := f.router.Recover(env)
		return err
	})
	require.True(t, host.IsFailure(refused.Outcome, bridgeerrors.ErrUnauthorized))

	var reopened []string
	recovery := f.submit("router", "router", defaultGas, 0, func(env *host.Env) error {
		var err error
		reopened, err = f.router.Recover(env)
		return err
	})
	require.True(t, recovery.Outcome.Succeeded())
	require.Equal(t, []string{"tx1"}, reopened)
	require.Equal(t, StateReceived, f.settlement("tx1"))
	require.False(t, f.processed("tx1"))

	recovered := f.capture.Logs(events.TypeSettlementRecovered)
	require.Len(t, recovered, 1)
	require.Equal(t, "tx1", recovered[0].Attr("txId"))
	require.Equal(t, events.StateAwaitingExternalResult, recovered[0].Attr("previous"))
}

func TestInboundCreditAcceptsTokenThatAlreadyDelivered(t *testing.T) {
	f := newFixture(t)
	// An earlier attempt reached the token but its result never came back.
	f.mustCall("router", "anyusd", 1, func(env *host.Env) error {
		return f.token.SwapIn(env, "tx7", "bob", uint256.NewInt(30), "X")
	})
	require.Equal(t, uint64(30), f.balance("anyusd", "bob"))

	outcome := f.swapIn("tx7", "anyusd", "bob", 30)
	require.True(t, outcome.Succeeded(), "swap in: %v", outcome.Err)
	require.Equal(t, uint64(30), f.balance("anyusd", "bob"))
	require.True(t, f.processed("tx7"))
	require.Equal(t, StateCommitted, f.settlement("tx7"))
}
