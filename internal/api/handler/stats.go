package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/computechain/explorer/pkg/aggregate"
	"github.com/computechain/explorer/pkg/db/models"
)

// throughputWindow bounds /api/stats/throughput; matches the block cap of
// RecentBlocks at one block per second.
const (
	throughputWindow = time.Hour
	throughputBlocks = 3600
)

// HandleStats returns whole-chain totals plus the sync cursor and state.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		h.Logger.Error("failed to compute chain stats", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := map[string]any{
		"blocks":            stats.Blocks,
		"transactions":      stats.Transactions,
		"accounts":          stats.Accounts,
		"total_transferred": stats.TotalTransferred.String(),
		"total_fees":        stats.TotalFees.String(),
		"sync":              stats.Sync,
		"state":             h.Chain.State().String(),
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleTxTypes returns transaction counts grouped by message type, with
// every known type present even at zero.
func (h *Handler) HandleTxTypes(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.TxTypeCounts(r.Context())
	if err != nil {
		h.Logger.Error("failed to count tx types", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make(map[models.TxType]int64, len(counts))
	for _, t := range []models.TxType{
		models.TxTransfer, models.TxStake, models.TxUnstake,
		models.TxDelegate, models.TxUndelegate, models.TxUpdateValidator,
		models.TxUnjail, models.TxCompute, models.TxSubmitResult,
	} {
		resp[t] = counts[t]
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleThroughput returns rolling TPS and block-time figures over the
// trailing hour.
func (h *Handler) HandleThroughput(w http.ResponseWriter, r *http.Request) {
	recent, err := h.Store.RecentBlocks(r.Context(), throughputBlocks)
	if err != nil {
		h.Logger.Error("failed to fetch recent blocks", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	stats := aggregate.Throughput(recent, throughputWindow, time.Now())
	h.writeJSON(w, http.StatusOK, stats)
}

// HandleReorgsList returns the most recent reorg audit records.
func (h *Handler) HandleReorgsList(w http.ResponseWriter, r *http.Request) {
	limit, _ := h.pagination(r)

	events, err := h.Store.ReorgEvents(r.Context(), limit)
	if err != nil {
		h.Logger.Error("failed to list reorg events", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if events == nil {
		events = make([]models.ReorgEvent, 0)
	}
	h.writeJSON(w, http.StatusOK, events)
}
