// Copyright 2025 Certen Protocol
//
// Ledger Query API Handlers
// Provides HTTP endpoints for transaction-payment ledger queries

package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/certen/independant-validator/pkg/ledger"
)

// LedgerHandlers provides HTTP handlers for ledger queries.
type LedgerHandlers struct {
	store *ledger.Store
}

// NewLedgerHandlers creates new ledger query handlers.
func NewLedgerHandlers(store *ledger.Store) *LedgerHandlers {
	return &LedgerHandlers{store: store}
}

// HandleUnreimbursed handles GET /ledger/unreimbursed requests,
// returning every claim the reimbursement collaborator has not yet
// settled.
func (h *LedgerHandlers) HandleUnreimbursed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.store == nil {
		http.Error(w, `{"error":"ledger store not available"}`, http.StatusInternalServerError)
		return
	}

	claims, err := h.store.QueryUnreimbursed(r.Context())
	if err != nil {
		http.Error(w, `{"error":"failed to query unreimbursed claims"}`, http.StatusInternalServerError)
		return
	}
	if claims == nil {
		claims = []ledger.Claim{}
	}

	if err := json.NewEncoder(w).Encode(claims); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// HandleStatus handles GET /ledger/status requests with a summary of
// outstanding claims.
func (h *LedgerHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.store == nil {
		http.Error(w, `{"error":"ledger store not available"}`, http.StatusInternalServerError)
		return
	}

	claims, err := h.store.QueryUnreimbursed(r.Context())
	if err != nil {
		http.Error(w, `{"error":"failed to query ledger"}`, http.StatusInternalServerError)
		return
	}

	var totalGas uint64
	for _, c := range claims {
		totalGas += c.GasUsed
	}

	status := map[string]interface{}{
		"timestamp":          time.Now().Unix(),
		"unreimbursedClaims": len(claims),
		"unreimbursedGas":    totalGas,
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}
