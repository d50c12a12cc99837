package rpc

import (
	"net/http"
	"strings"

	"mpcbridge/storage/audit"
)

const maxAuditLimit = 500

func (s *Server) requireAudit(w http.ResponseWriter, req *RPCRequest) bool {
	if s.cfg.Audit == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "audit archive not configured", nil)
		return false
	}
	return true
}

func (s *Server) handleAuditByTx(w http.ResponseWriter, r *http.Request, req *RPCRequest, _ string) {
	if !s.requireAudit(w, req) {
		return
	}
	var params struct {
		TxID string `json:"txId"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeRPCError(w, req.ID, err)
		return
	}
	txID := strings.TrimSpace(params.TxID)
	if txID == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "txId required", nil)
		return
	}
	entries, err := s.cfg.Audit.ByTx(r.Context(), txID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load audit records", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"txId": txID, "records": nonNil(entries)})
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request, req *RPCRequest, _ string) {
	if !s.requireAudit(w, req) {
		return
	}
	limit := 50
	if len(req.Params) > 0 {
		var params struct {
			Limit int `json:"limit"`
		}
		if err := decodeParams(req, &params); err != nil {
			writeRPCError(w, req.ID, err)
			return
		}
		if params.Limit > 0 {
			limit = params.Limit
		}
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	entries, err := s.cfg.Audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load audit records", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"records": nonNil(entries)})
}

func nonNil(entries []audit.Entry) []audit.Entry {
	if entries == nil {
		return []audit.Entry{}
	}
	return entries
}
