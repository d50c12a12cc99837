package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"mpcbridge/core"
	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/host"
	"mpcbridge/core/types"
	"mpcbridge/native/router"
)

// ReceiptResult reports what happened to a submission so far.
type ReceiptResult struct {
	TxID      string `json:"txId"`
	ReceiptID string `json:"receiptId,omitempty"`
	Status    string `json:"status"`
	Pending   bool   `json:"pending"`
	Error     string `json:"error,omitempty"`
}

func formatReceipt(rcpt host.Receipt) ReceiptResult {
	result := ReceiptResult{TxID: rcpt.TxID, ReceiptID: rcpt.ReceiptID, Pending: rcpt.Pending}
	if rcpt.Pending {
		result.Status = host.StatusPending.String()
		return result
	}
	result.Status = rcpt.Outcome.Status.String()
	result.Error = rcpt.Outcome.Reason()
	return result
}

// ConfigResult mirrors the router configuration.
type ConfigResult struct {
	ChainID          string            `json:"chainId"`
	WNative          string            `json:"wnative"`
	Authority        string            `json:"authority"`
	PendingAuthority string            `json:"pendingAuthority,omitempty"`
	BaseGas          uint64            `json:"baseGas"`
	SwapOutGas       uint64            `json:"swapOutGas"`
	Overrides        map[string]uint64 `json:"gasOverrides,omitempty"`
}

func formatConfig(view router.View) ConfigResult {
	result := ConfigResult{
		ChainID:          view.ChainID,
		WNative:          view.WNative,
		Authority:        view.Authority,
		PendingAuthority: view.Pending,
		BaseGas:          uint64(view.BaseGas),
		SwapOutGas:       uint64(view.SwapOutGas),
	}
	if len(view.Overrides) > 0 {
		result.Overrides = make(map[string]uint64, len(view.Overrides))
		for _, o := range view.Overrides {
			result.Overrides[o.Token] = uint64(o.Gas)
		}
	}
	return result
}

// decodeParams unmarshals the single object parameter of req into out.
func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single parameter object"}
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid params", Data: err.Error()}
	}
	return nil
}

func parseAmountParam(field, raw string) (*uint256.Int, *RPCError) {
	amount, err := types.ParseAmount(raw)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s", field), Data: err.Error()}
	}
	return amount, nil
}

func requireFields(fields map[string]string) *RPCError {
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("%s required", name)}
		}
	}
	return nil
}

func writeRPCError(w http.ResponseWriter, id interface{}, err *RPCError) {
	writeError(w, http.StatusBadRequest, id, err.Code, err.Message, err.Data)
}

// classify maps a bridge error onto an HTTP status and JSON-RPC code.
func classify(err error) (int, int) {
	switch {
	case errors.Is(err, bridgeerrors.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, bridgeerrors.ErrAlreadyProcessed),
		errors.Is(err, bridgeerrors.ErrSettlementInFlight),
		errors.Is(err, host.ErrDuplicateTx):
		return http.StatusConflict, codeDuplicateTx
	case errors.Is(err, bridgeerrors.ErrInvalidAmount),
		errors.Is(err, bridgeerrors.ErrMalformedInstruction),
		errors.Is(err, bridgeerrors.ErrGasExhausted),
		errors.Is(err, bridgeerrors.ErrBondRequired),
		errors.Is(err, bridgeerrors.ErrInsufficientDeposit),
		errors.Is(err, bridgeerrors.ErrInsufficientBalance),
		errors.Is(err, bridgeerrors.ErrAlreadyBound),
		errors.Is(err, bridgeerrors.ErrNotYetBound),
		errors.Is(err, bridgeerrors.ErrNotRegistered),
		errors.Is(err, bridgeerrors.ErrUnknownToken),
		errors.Is(err, bridgeerrors.ErrUnknownAccount),
		errors.Is(err, host.ErrUnknownContract):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, core.ErrUnknownTx):
		return http.StatusNotFound, codeInvalidParams
	case errors.Is(err, bridgeerrors.ErrNotInitialized):
		return http.StatusServiceUnavailable, codeServerError
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func writeFailure(w http.ResponseWriter, id interface{}, err error) {
	status, code := classify(err)
	writeError(w, status, id, code, err.Error(), nil)
}

// writeReceipt reports a submission. A first turn that already failed is an
// error carrying the receipt; anything else is a result.
func writeReceipt(w http.ResponseWriter, id interface{}, rcpt host.Receipt, err error) {
	if err != nil {
		writeFailure(w, id, err)
		return
	}
	if !rcpt.Pending && !rcpt.Outcome.Succeeded() {
		status, code := classify(rcpt.Outcome.Err)
		if status == http.StatusInternalServerError {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, id, code, rcpt.Outcome.Reason(), formatReceipt(rcpt))
		return
	}
	writeResult(w, id, formatReceipt(rcpt))
}
