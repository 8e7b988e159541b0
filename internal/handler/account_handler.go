// Package handler provides the relayer's read-only REST API.
package handler

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lapolinarweb/contracts/internal/pkg/response"
	"github.com/lapolinarweb/contracts/internal/service"
)

// AccountHandler serves account and receipt reads.
type AccountHandler struct {
	svc service.RelayService
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(svc service.RelayService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// Routes returns a chi router with account and receipt routes.
func (h *AccountHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/accounts/{address}", h.GetAccount)
	r.Get("/accounts/{address}/receipts", h.ListReceipts)
	r.Get("/receipts/{id}", h.GetReceipt)
	return r
}

func parseAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	s := chi.URLParam(r, "address")
	if !common.IsHexAddress(s) {
		response.BadRequest(w, "Invalid account address")
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// GetAccount handles GET /v1/accounts/{address}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	view, err := h.svc.GetAccount(r.Context(), addr)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, view)
}

// ListReceipts handles GET /v1/accounts/{address}/receipts?limit=N
func (h *AccountHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.BadRequest(w, "Invalid limit")
			return
		}
		limit = n
	}
	recs, err := h.svc.ListReceipts(r.Context(), addr, limit)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, recs)
}

// GetReceipt handles GET /v1/receipts/{id}
func (h *AccountHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid receipt ID")
		return
	}
	rec, err := h.svc.GetReceipt(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, rec)
}
