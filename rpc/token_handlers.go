package rpc

import (
	"net/http"
	"strings"

	"mpcbridge/core/host"
)

type tokenTransferParams struct {
	Token    string `json:"token"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
	Memo     string `json:"memo,omitempty"`
	Msg      string `json:"msg,omitempty"`
	ToChain  string `json:"toChain,omitempty"`
	Gas      uint64 `json:"gas,omitempty"`
}

func (s *Server) decodeTransfer(req *RPCRequest) (tokenTransferParams, *RPCError) {
	var params tokenTransferParams
	if err := decodeParams(req, &params); err != nil {
		return params, err
	}
	params.Token = strings.TrimSpace(params.Token)
	params.Receiver = strings.TrimSpace(params.Receiver)
	return params, requireFields(map[string]string{"token": params.Token, "receiver": params.Receiver})
}

func (s *Server) handleTokenSwapOut(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	params, perr := s.decodeTransfer(req)
	if perr != nil {
		writeRPCError(w, req.ID, perr)
		return
	}
	amount, perr := parseAmountParam("amount", params.Amount)
	if perr != nil {
		writeRPCError(w, req.ID, perr)
		return
	}
	rcpt, err := s.node.TokenSwapOut(r.Context(), signer, params.Token, params.Receiver, amount, strings.TrimSpace(params.ToChain))
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	params, perr := s.decodeTransfer(req)
	if perr != nil {
		writeRPCError(w, req.ID, perr)
		return
	}
	amount, perr := parseAmountParam("amount", params.Amount)
	if perr != nil {
		writeRPCError(w, req.ID, perr)
		return
	}
	rcpt, err := s.node.Transfer(r.Context(), signer, params.Token, params.Receiver, amount, params.Memo)
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleTokenTransferCall(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	params, perr := s.decodeTransfer(req)
	if perr != nil {
		writeRPCError(w, req.ID, perr)
		return
	}
	amount, perr := parseAmountParam("amount", params.Amount)
	if perr != nil {
		writeRPCError(w, req.ID, perr)
		return
	}
	rcpt, err := s.node.TransferCall(r.Context(), signer, params.Token, params.Receiver, amount, params.Memo, params.Msg, host.Gas(params.Gas))
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleWithdrawUnderlying(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	var params struct {
		Token  string `json:"token"`
		Amount string `json:"amount"`
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
	rcpt, err := s.node.WithdrawUnderlying(r.Context(), signer, strings.TrimSpace(params.Token), amount)
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleBindUnderlying(w http.ResponseWriter, r *http.Request, req *RPCRequest, signer string) {
	var params struct {
		Token      string `json:"token"`
		Underlying string `json:"underlying"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	rcpt, err := s.node.BindUnderlying(r.Context(), signer, strings.TrimSpace(params.Token), strings.TrimSpace(params.Underlying))
	writeReceipt(w, req.ID, rcpt, err)
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest, _ string) {
	var params struct {
		Token   string `json:"token"`
		Account string `json:"account"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	balance, err := s.node.BalanceOf(strings.TrimSpace(params.Token), strings.TrimSpace(params.Account))
	if err != nil {
		writeFailure(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"token": params.Token, "account": params.Account, "balance": balance.Dec()})
}
