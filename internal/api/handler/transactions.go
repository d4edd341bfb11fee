package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/computechain/explorer/pkg/db/models"
	"github.com/computechain/explorer/pkg/db/postgres"
)

// HandleTransactionsList returns transactions in descending height order.
// Query params: ?height=N, ?address=ADDR, ?type=TRANSFER narrow the result.
func (h *Handler) HandleTransactionsList(w http.ResponseWriter, r *http.Request) {
	limit, offset := h.pagination(r)

	var filter postgres.TxFilter
	if v := r.URL.Query().Get("height"); v != "" {
		height, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid height filter")
			return
		}
		filter.Height = height
	}
	filter.Address = r.URL.Query().Get("address")
	if v := r.URL.Query().Get("type"); v != "" {
		txType := models.TxType(v)
		if !txType.Valid() {
			h.writeError(w, http.StatusBadRequest, "invalid type filter")
			return
		}
		filter.Type = txType
	}

	txs, total, err := h.Store.ListTransactions(r.Context(), filter, limit, offset)
	if err != nil {
		h.Logger.Error("failed to list transactions", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if txs == nil {
		txs = make([]*models.Transaction, 0)
	}
	h.writeJSON(w, http.StatusOK, pageResponse{Items: txs, Total: total})
}

// HandleTransactionDetail returns a single transaction by hash.
func (h *Handler) HandleTransactionDetail(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]

	tx, err := h.Store.TransactionByHash(r.Context(), hash)
	if err != nil {
		h.Logger.Error("failed to fetch transaction", zap.String("hash", hash), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tx == nil {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}

	h.writeJSON(w, http.StatusOK, tx)
}
