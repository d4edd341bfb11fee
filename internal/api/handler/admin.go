package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// resyncRequest is the body of POST /api/admin/resync. Depth zero means
// re-verify the whole chain from genesis.
type resyncRequest struct {
	Depth uint64 `json:"depth"`
}

// HandleForceResync triggers an operator-initiated re-verification of the
// last N indexed blocks against the node. It also clears a halted indexer.
func (h *Handler) HandleForceResync(w http.ResponseWriter, r *http.Request) {
	var req resyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "bad json")
			return
		}
	}

	h.Logger.Info("operator resync requested", zap.Uint64("depth", req.Depth))
	h.Chain.ForceResync(r.Context(), req.Depth)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"state":  h.Chain.State().String(),
		"height": h.Chain.Tip(),
	})
}
