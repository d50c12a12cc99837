package events

import (
	"strings"

	"github.com/holiman/uint256"

	"mpcbridge/core/types"
)

const (
	TypeSwapIn               = "bridge.swap_in"
	TypeSwapInCompensated    = "bridge.swap_in.compensated"
	TypeSettlementRecovered  = "bridge.settlement_recovered"
	TypeSwapInNative         = "bridge.swap_in_native"
	TypeSwapInNativeRefunded = "bridge.swap_in_native.refunded"
	TypeSwapOut              = "bridge.swap_out"
	TypeSwapOutNative        = "bridge.swap_out_native"
	TypeSettlementRejected   = "bridge.rejected"
	TypeMessageUnmatched     = "bridge.msg_unmatched"

	TypeTokenSwapIn             = "anytoken.swap_in"
	TypeTokenSwapInCompensated  = "anytoken.swap_in.compensated"
	TypeTokenSwapOut            = "anytoken.swap_out"
	TypeTokenBurn               = "anytoken.burn"
	TypeTokenTransfer           = "anytoken.transfer"
	TypeUnderlyingBound         = "anytoken.underlying_bound"
	TypeUnderlyingWithdrawn     = "anytoken.withdraw_underlying"
	TypeUnderlyingCompensated   = "anytoken.withdraw_underlying.compensated"
	TypeUnderlyingDeposited     = "anytoken.deposit_underlying"
	TypeAuthorityProposed       = "authority.proposed"
	TypeAuthorityRotated        = "authority.rotated"
	TypePoolSwapOutNative       = "pool.swap_out_native"
	TypePoolRelease             = "pool.release"
	TypePoolReleaseReclaimed    = "pool.release.reclaimed"
	TypeReceiptFailed           = "host.receipt.failed"
	TypeValueRestored           = "host.value_restored"
	TypeGasConfigured           = "bridge.gas_configured"
	TypeChainConfigured         = "bridge.chain_configured"
	TypeCheckFlagConfigured     = "anytoken.check_flag_configured"
	TypeTransferResolved        = "anytoken.transfer_resolved"
	TypeNativeWrapperConfigured = "bridge.wnative_configured"
)

// Settlement states recorded on bridge events.
const (
	StateReceived               = "Received"
	StateAwaitingExternalResult = "AwaitingExternalResult"
	StateCommitted              = "Committed"
	StateRolledBack             = "RolledBack"
	StateRejected               = "Rejected"
)

type attrs map[string]string

func (a attrs) set(key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		a[key] = value
	}
}

func (a attrs) amount(key string, value *uint256.Int) {
	a[key] = types.AmountString(value)
}

// SwapIn is emitted once an inbound credit commits. Compensated marks a
// credit the token delivered as wrapped balance after its underlying
// transfer failed; the id is spent either way.
type SwapIn struct {
	TxID        string
	Token       string
	Receiver    string
	Amount      *uint256.Int
	FromChain   string
	ToChain     string
	Compensated bool
	Reason      string
}

func (e SwapIn) EventType() string {
	if e.Compensated {
		return TypeSwapInCompensated
	}
	return TypeSwapIn
}

func (e SwapIn) Event() *types.Event {
	a := attrs{"state": StateCommitted}
	if e.Compensated {
		a["state"] = StateRolledBack
	}
	a.set("txId", e.TxID)
	a.set("token", e.Token)
	a.set("receiver", e.Receiver)
	a.amount("amount", e.Amount)
	a.set("fromChain", e.FromChain)
	a.set("toChain", e.ToChain)
	a.set("reason", e.Reason)
	return &types.Event{Type: e.EventType(), Attributes: a}
}

// SettlementRecovered is emitted when a reservation left behind by an
// interrupted process is cleared and the id becomes retryable again.
type SettlementRecovered struct {
	TxID     string
	Previous string
}

func (SettlementRecovered) EventType() string { return TypeSettlementRecovered }

func (e SettlementRecovered) Event() *types.Event {
	a := attrs{"state": StateReceived}
	a.set("txId", e.TxID)
	a.set("previous", e.Previous)
	return &types.Event{Type: TypeSettlementRecovered, Attributes: a}
}

// SwapInNative is emitted once a native inbound credit commits. When Refunded
// is set the transfer failed and the value returned to the router holding
// balance.
type SwapInNative struct {
	TxID      string
	Receiver  string
	Amount    *uint256.Int
	FromChain string
	ToChain   string
	Refunded  bool
	Reason    string
}

func (e SwapInNative) EventType() string {
	if e.Refunded {
		return TypeSwapInNativeRefunded
	}
	return TypeSwapInNative
}

func (e SwapInNative) Event() *types.Event {
	a := attrs{"state": StateCommitted}
	if e.Refunded {
		a["state"] = StateRolledBack
	}
	a.set("txId", e.TxID)
	a.set("receiver", e.Receiver)
	a.amount("amount", e.Amount)
	a.set("fromChain", e.FromChain)
	a.set("toChain", e.ToChain)
	a.set("reason", e.Reason)
	return &types.Event{Type: e.EventType(), Attributes: a}
}

// SwapOut is the outbound intent relayed by the authority. A RolledBack state
// means the forwarding hop failed and the tokens went back to the sender.
type SwapOut struct {
	Token     string
	Wrapped   string
	Sender    string
	Receiver  string
	Amount    *uint256.Int
	FromChain string
	ToChain   string
	State     string
	Reason    string
}

func (SwapOut) EventType() string { return TypeSwapOut }

func (e SwapOut) Event() *types.Event {
	a := attrs{}
	a.set("state", e.State)
	if a["state"] == "" {
		a["state"] = StateCommitted
	}
	a.set("token", e.Token)
	a.set("anyToken", e.Wrapped)
	a.set("sender", e.Sender)
	a.set("receiver", e.Receiver)
	a.amount("amount", e.Amount)
	a.set("fromChain", e.FromChain)
	a.set("toChain", e.ToChain)
	a.set("reason", e.Reason)
	return &types.Event{Type: TypeSwapOut, Attributes: a}
}

// SwapOutNative records native value locked for an outbound transfer.
type SwapOutNative struct {
	Contract  string
	Sender    string
	Receiver  string
	Amount    *uint256.Int
	FromChain string
	ToChain   string
	Pool      bool
}

func (e SwapOutNative) EventType() string {
	if e.Pool {
		return TypePoolSwapOutNative
	}
	return TypeSwapOutNative
}

func (e SwapOutNative) Event() *types.Event {
	a := attrs{"state": StateCommitted}
	a.set("contract", e.Contract)
	a.set("sender", e.Sender)
	a.set("receiver", e.Receiver)
	a.amount("amount", e.Amount)
	a.set("fromChain", e.FromChain)
	a.set("toChain", e.ToChain)
	return &types.Event{Type: e.EventType(), Attributes: a}
}

// PoolRelease records native value paid out of the pool. Reclaimed means the
// transfer failed and the value went back into the pool.
type PoolRelease struct {
	Contract  string
	Receiver  string
	Amount    *uint256.Int
	Reclaimed bool
	Reason    string
}

func (e PoolRelease) EventType() string {
	if e.Reclaimed {
		return TypePoolReleaseReclaimed
	}
	return TypePoolRelease
}

func (e PoolRelease) Event() *types.Event {
	a := attrs{"state": StateCommitted}
	if e.Reclaimed {
		a["state"] = StateRolledBack
	}
	a.set("contract", e.Contract)
	a.set("receiver", e.Receiver)
	a.amount("amount", e.Amount)
	a.set("reason", e.Reason)
	return &types.Event{Type: e.EventType(), Attributes: a}
}

// SettlementRejected records an inbound instruction that did not settle.
type SettlementRejected struct {
	Operation string
	TxID      string
	Token     string
	Caller    string
	Receiver  string
	Amount    *uint256.Int
	FromChain string
	Reason    string
}

func (SettlementRejected) EventType() string { return TypeSettlementRejected }

func (e SettlementRejected) Event() *types.Event {
	a := attrs{"state": StateRejected}
	a.set("operation", e.Operation)
	a.set("txId", e.TxID)
	a.set("token", e.Token)
	a.set("caller", e.Caller)
	a.set("receiver", e.Receiver)
	if e.Amount != nil {
		a.amount("amount", e.Amount)
	}
	a.set("fromChain", e.FromChain)
	a.set("reason", e.Reason)
	return &types.Event{Type: TypeSettlementRejected, Attributes: a}
}

// MessageUnmatched records a transfer-attached message with an unknown verb.
type MessageUnmatched struct {
	Token   string
	Sender  string
	Amount  *uint256.Int
	Message string
}

func (MessageUnmatched) EventType() string { return TypeMessageUnmatched }

func (e MessageUnmatched) Event() *types.Event {
	a := attrs{"state": StateRolledBack}
	a.set("token", e.Token)
	a.set("sender", e.Sender)
	a.amount("amount", e.Amount)
	a.set("message", e.Message)
	return &types.Event{Type: TypeMessageUnmatched, Attributes: a}
}

// TokenSwapIn is emitted by a wrapped token when it releases value for an
// inbound credit, either by minting or through its underlying asset.
type TokenSwapIn struct {
	TxID       string
	Token      string
	Receiver   string
	Amount     *uint256.Int
	FromChain  string
	Underlying string
	Compensate bool
	Reason     string
}

func (e TokenSwapIn) EventType() string {
	if e.Compensate {
		return TypeTokenSwapInCompensated
	}
	return TypeTokenSwapIn
}

func (e TokenSwapIn) Event() *types.Event {
	a := attrs{"state": StateCommitted, "mode": "mint"}
	if e.Underlying != "" {
		a["mode"] = "underlying"
	}
	if e.Compensate {
		a["state"] = StateRolledBack
	}
	a.set("txId", e.TxID)
	a.set("token", e.Token)
	a.set("receiver", e.Receiver)
	a.amount("amount", e.Amount)
	a.set("fromChain", e.FromChain)
	a.set("underlying", e.Underlying)
	a.set("reason", e.Reason)
	return &types.Event{Type: e.EventType(), Attributes: a}
}

// TokenSwapOut is the outbound intent of a wrapped token debit.
type TokenSwapOut struct {
	Token     string
	Sender    string
	Receiver  string
	Amount    *uint256.Int
	FromChain string
	ToChain   string
}

func (TokenSwapOut) EventType() string { return TypeTokenSwapOut }

func (e TokenSwapOut) Event() *types.Event {
	a := attrs{"state": StateCommitted}
	a.set("token", e.Token)
	a.set("sender", e.Sender)
	a.set("receiver", e.Receiver)
	a.amount("amount", e.Amount)
	a.set("fromChain", e.FromChain)
	a.set("toChain", e.ToChain)
	return &types.Event{Type: TypeTokenSwapOut, Attributes: a}
}

// TokenBurn records wrapped supply destroyed.
type TokenBurn struct {
	Token   string
	Caller  string
	Account string
	Amount  *uint256.Int
}

func (TokenBurn) EventType() string { return TypeTokenBurn }

func (e TokenBurn) Event() *types.Event {
	a := attrs{}
	a.set("token", e.Token)
	a.set("caller", e.Caller)
	a.set("account", e.Account)
	a.amount("amount", e.Amount)
	return &types.Event{Type: TypeTokenBurn, Attributes: a}
}

// TokenTransfer records a ledger-to-ledger movement inside one token.
type TokenTransfer struct {
	Token  string
	From   string
	To     string
	Amount *uint256.Int
	Memo   string
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	a := attrs{}
	a.set("token", e.Token)
	a.set("from", e.From)
	a.set("to", e.To)
	a.amount("amount", e.Amount)
	a.set("memo", e.Memo)
	return &types.Event{Type: TypeTokenTransfer, Attributes: a}
}

// TransferResolved records the settlement of a transfer-and-call.
type TransferResolved struct {
	Token    string
	Sender   string
	Receiver string
	Amount   *uint256.Int
	Refunded *uint256.Int
}

func (TransferResolved) EventType() string { return TypeTransferResolved }

func (e TransferResolved) Event() *types.Event {
	a := attrs{}
	a.set("token", e.Token)
	a.set("sender", e.Sender)
	a.set("receiver", e.Receiver)
	a.amount("amount", e.Amount)
	a.amount("refunded", e.Refunded)
	return &types.Event{Type: TypeTransferResolved, Attributes: a}
}

// UnderlyingBound records the write-once underlying binding.
type UnderlyingBound struct {
	Token      string
	Underlying string
}

func (UnderlyingBound) EventType() string { return TypeUnderlyingBound }

func (e UnderlyingBound) Event() *types.Event {
	a := attrs{}
	a.set("token", e.Token)
	a.set("underlying", e.Underlying)
	return &types.Event{Type: TypeUnderlyingBound, Attributes: a}
}

// UnderlyingMoved records wrapped/underlying conversions. Deposit marks the
// underlying-to-wrapped direction; Compensate marks a failed withdrawal whose
// debit was reversed.
type UnderlyingMoved struct {
	Token      string
	Underlying string
	Account    string
	Amount     *uint256.Int
	Deposit    bool
	Compensate bool
	Reason     string
}

func (e UnderlyingMoved) EventType() string {
	switch {
	case e.Deposit:
		return TypeUnderlyingDeposited
	case e.Compensate:
		return TypeUnderlyingCompensated
	default:
		return TypeUnderlyingWithdrawn
	}
}

func (e UnderlyingMoved) Event() *types.Event {
	a := attrs{"state": StateCommitted}
	if e.Compensate {
		a["state"] = StateRolledBack
	}
	a.set("token", e.Token)
	a.set("underlying", e.Underlying)
	a.set("account", e.Account)
	a.amount("amount", e.Amount)
	a.set("reason", e.Reason)
	return &types.Event{Type: e.EventType(), Attributes: a}
}

// AuthorityChanged records both phases of an authority rotation.
type AuthorityChanged struct {
	Contract string
	Current  string
	Next     string
	Applied  bool
}

func (e AuthorityChanged) EventType() string {
	if e.Applied {
		return TypeAuthorityRotated
	}
	return TypeAuthorityProposed
}

func (e AuthorityChanged) Event() *types.Event {
	a := attrs{}
	a.set("contract", e.Contract)
	if e.Applied {
		a.set("previous", e.Current)
		a.set("authority", e.Next)
	} else {
		a.set("authority", e.Current)
		a.set("pending", e.Next)
	}
	return &types.Event{Type: e.EventType(), Attributes: a}
}

// ConfigChanged records an administrative setter.
type ConfigChanged struct {
	Kind     string
	Contract string
	Key      string
	Value    string
}

func (e ConfigChanged) EventType() string { return e.Kind }

func (e ConfigChanged) Event() *types.Event {
	a := attrs{}
	a.set("contract", e.Contract)
	a.set("key", e.Key)
	a.set("value", e.Value)
	return &types.Event{Type: e.Kind, Attributes: a}
}

// ReceiptFailed is emitted by the host when a receipt aborts.
type ReceiptFailed struct {
	Target      string
	Method      string
	Predecessor string
	Reason      string
}

func (ReceiptFailed) EventType() string { return TypeReceiptFailed }

func (e ReceiptFailed) Event() *types.Event {
	a := attrs{}
	a.set("target", e.Target)
	a.set("method", e.Method)
	a.set("predecessor", e.Predecessor)
	a.set("reason", e.Reason)
	return &types.Event{Type: TypeReceiptFailed, Attributes: a}
}

// ValueRestored is emitted by the host when native value whose receipt was
// lost with the previous process goes back to the account that sent it.
type ValueRestored struct {
	ReceiptID string
	Owner     string
	Amount    *uint256.Int
	Parked    bool
}

func (ValueRestored) EventType() string { return TypeValueRestored }

func (e ValueRestored) Event() *types.Event {
	a := attrs{"source": "in_flight"}
	if e.Parked {
		a["source"] = "parked"
	}
	a.set("receipt", e.ReceiptID)
	a.set("owner", e.Owner)
	a.amount("amount", e.Amount)
	return &types.Event{Type: TypeValueRestored, Attributes: a}
}
