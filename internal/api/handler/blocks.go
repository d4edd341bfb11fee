package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/computechain/explorer/pkg/db/models"
)

// HandleBlocksList returns blocks in descending height order, paginated.
func (h *Handler) HandleBlocksList(w http.ResponseWriter, r *http.Request) {
	limit, offset := h.pagination(r)

	blocks, total, err := h.Store.ListBlocks(r.Context(), limit, offset)
	if err != nil {
		h.Logger.Error("failed to list blocks", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if blocks == nil {
		blocks = make([]*models.Block, 0)
	}
	h.writeJSON(w, http.StatusOK, pageResponse{Items: blocks, Total: total})
}

// HandleBlockDetail returns a single block. The path segment is a height,
// or a block hash when it does not parse as a number.
func (h *Handler) HandleBlockDetail(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["height"]

	var (
		block *models.Block
		err   error
	)
	if height, parseErr := strconv.ParseUint(key, 10, 64); parseErr == nil {
		block, err = h.Store.BlockByHeight(r.Context(), height)
	} else {
		block, err = h.Store.BlockByHash(r.Context(), key)
	}
	if err != nil {
		h.Logger.Error("failed to fetch block", zap.String("key", key), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if block == nil {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}

	h.writeJSON(w, http.StatusOK, block)
}

// HandleBlockTransactions returns all transactions in a block.
func (h *Handler) HandleBlockTransactions(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["height"]
	height, parseErr := strconv.ParseUint(key, 10, 64)
	if parseErr != nil {
		h.writeError(w, http.StatusBadRequest, "invalid height")
		return
	}

	block, err := h.Store.BlockByHeight(r.Context(), height)
	if err != nil {
		h.Logger.Error("failed to fetch block", zap.Uint64("height", height), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if block == nil {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}

	txs, err := h.Store.TransactionsByHeight(r.Context(), height)
	if err != nil {
		h.Logger.Error("failed to fetch block transactions", zap.Uint64("height", height), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if txs == nil {
		txs = make([]*models.Transaction, 0)
	}

	h.writeJSON(w, http.StatusOK, txs)
}
