package rpc

import (
	"net/http"
	"strings"

	"mpcbridge/core"
	"mpcbridge/core/host"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string)

type route struct {
	auth bool
	fn   handlerFunc
}

func (s *Server) methods() map[string]route {
	return map[string]route{
		"bridge_swapIn":            {auth: true, fn: s.handleSwapIn},
		"bridge_swapInNative":      {auth: true, fn: s.handleSwapInNative},
		"bridge_swapOutNative":     {auth: true, fn: s.handleSwapOutNative},
		"bridge_proposeAuthority":  {auth: true, fn: s.handleProposeAuthority},
		"bridge_applyAuthority":    {auth: true, fn: s.handleApplyAuthority},
		"bridge_setGas":            {auth: true, fn: s.handleSetGas},
		"bridge_setBaseGas":        {auth: true, fn: s.handleSetBaseGas},
		"bridge_setChainId":        {auth: true, fn: s.handleSetChainID},
		"bridge_config":            {fn: s.handleConfig},
		"bridge_gas":               {fn: s.handleGas},
		"bridge_checkTx":           {fn: s.handleCheckTx},
		"bridge_nativeBalance":     {fn: s.handleNativeBalance},
		"pool_release":             {auth: true, fn: s.handlePoolRelease},
		"token_swapOut":            {auth: true, fn: s.handleTokenSwapOut},
		"token_transfer":           {auth: true, fn: s.handleTokenTransfer},
		"token_transferCall":       {auth: true, fn: s.handleTokenTransferCall},
		"token_withdrawUnderlying": {auth: true, fn: s.handleWithdrawUnderlying},
		"token_bindUnderlying":     {auth: true, fn: s.handleBindUnderlying},
		"token_balanceOf":          {fn: s.handleBalanceOf},
		"tx_result":                {fn: s.handleTxResult},
		"audit_byTx":               {fn: s.handleAuditByTx},
		"audit_recent":             {fn: s.handleAuditRecent},
	}
}

type swapInParams struct {
	TxID      string `json:"txId"`
	Token     string `json:"token,omitempty"`
	Receiver  string `json:"receiver"`
	Amount    string `json:"amount"`
	FromChain string `json:"fromChain"`
	Gas       uint64 `json:"gas,omitempty"`
}

func (p swapInParams) request() (core.SwapIn, *RPCError) {
	if err := requireFields(map[string]string{"txId": p.TxID, "receiver": p.Receiver, "fromChain": p.FromChain}); err != nil {
		return core.SwapIn{}, err
	}
	amount, err := parseAmountParam("amount", p.Amount)
	if err != nil {
		return core.SwapIn{}, err
	}
	return core.SwapIn{
		TxID:      strings.TrimSpace(p.TxID),
		Token:     strings.TrimSpace(p.Token),
		Receiver:  strings.TrimSpace(p.Receiver),
		Amount:    amount,
		FromChain: strings.TrimSpace(p.FromChain),
		Gas:       host.Gas(p.Gas),
	}, nil
}

func (s *Server) handleSwapIn(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	var params swapInParams
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	if err := requireFields(map[string]string{"token": params.Token}); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	swap, perr := params.request()
	if perr != nil {
		writeRPCError(w, req.ID, perr)
		return
	}
	rcpt, err := s.node.SwapIn(r.Context(), signer, swap)
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleSwapInNative(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	var params swapInParams
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	swap, perr := params.request()
	if perr != nil {
		writeRPCError(w, req.ID, perr)
		return
	}
	rcpt, err := s.node.SwapInNative(r.Context(), signer, swap)
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleSwapOutNative(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	var params struct {
		Receiver string `json:"receiver"`
		ToChain  string `json:"toChain"`
		Amount   string `json:"amount"`
		Pool     bool   `json:"pool,omitempty"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	deposit, perr := parseAmountParam("amount", params.Amount)
	if perr != nil {
		writeRPCError(w, req.ID, perr)
		return
	}
	rcpt, err := s.node.SwapOutNative(r.Context(), signer, strings.TrimSpace(params.Receiver), strings.TrimSpace(params.ToChain), deposit, params.Pool)
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handlePoolRelease(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	var params struct {
		Receiver string `json:"receiver"`
		Amount   string `json:"amount"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	amount, perr := parseAmountParam("amount", params.Amount)
	if perr != nil {
		writeRPCError(w, req.ID, perr)
		return
	}
	rcpt, err := s.node.ReleasePool(r.Context(), signer, strings.TrimSpace(params.Receiver), amount)
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleProposeAuthority(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	var params struct {
		Authority string `json:"authority"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	rcpt, err := s.node.ProposeAuthority(r.Context(), signer, strings.TrimSpace(params.Authority))
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleApplyAuthority(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	rcpt, err := s.node.ApplyAuthority(r.Context(), signer)
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleSetGas(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	var params struct {
		Token string `json:"token"`
		Gas   uint64 `json:"gas"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	rcpt, err := s.node.SetGas(r.Context(), signer, strings.TrimSpace(params.Token), host.Gas(params.Gas))
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleSetBaseGas(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	var params struct {
		Gas uint64 `json:"gas"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	rcpt, err := s.node.SetBaseGas(r.Context(), signer, host.Gas(params.Gas))
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleSetChainID(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	var params struct {
		ChainID string `json:"chainId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	rcpt, err := s.node.SetChainID(r.Context(), signer, strings.TrimSpace(params.ChainID))
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest, _ string) {
	view, err := s.node.Config()
	if err != nil {
		writeFailure(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatConfig(view))
}

func (s *Server) handleGas(w http.ResponseWriter, _ *http.Request, req *RPCRequest, _ string) {
	var params struct {
		Token string `json:"token"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	swapIn, err := s.node.SwapInGas(strings.TrimSpace(params.Token))
	if err != nil {
		writeFailure(w, req.ID, err)
		return
	}
	swapOut, err := s.node.SwapOutGas()
	if err != nil {
		writeFailure(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"swapIn": uint64(swapIn), "swapOut": uint64(swapOut)})
}

func (s *Server) handleCheckTx(w http.ResponseWriter, _ *http.Request, req *RPCRequest, _ string) {
	var params struct {
		TxID string `json:"txId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	processed, state, err := s.node.CheckTx(strings.TrimSpace(params.TxID))
	if err != nil {
		writeFailure(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"processed": processed, "state": state.String()})
}

func (s *Server) handleNativeBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest, _ string) {
	var params struct {
		Account string `json:"account"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	balance, err := s.node.NativeBalance(strings.TrimSpace(params.Account))
	if err != nil {
		writeFailure(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"account": params.Account, "balance": balance.Dec()})
}

func (s *Server) handleTxResult(w http.ResponseWriter, _ *http.Request, req *RPCRequest, _ string) {
	var params struct {
		TxID string `json:"txId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	rcpt, err := s.node.Result(strings.TrimSpace(params.TxID))
	if err != nil {
		writeFailure(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatReceipt(rcpt))
}
