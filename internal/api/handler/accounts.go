package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/computechain/explorer/pkg/db/models"
)

// HandleAccountsList returns accounts ordered by balance descending.
// Query param: ?validators=true restricts to validator accounts.
func (h *Handler) HandleAccountsList(w http.ResponseWriter, r *http.Request) {
	limit, offset := h.pagination(r)
	validatorsOnly := r.URL.Query().Get("validators") == "true"

	accounts, total, err := h.Store.ListAccounts(r.Context(), validatorsOnly, limit, offset)
	if err != nil {
		h.Logger.Error("failed to list accounts", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if accounts == nil {
		accounts = make([]*models.Account, 0)
	}
	h.writeJSON(w, http.StatusOK, pageResponse{Items: accounts, Total: total})
}

// HandleAccountDetail returns a single account by address.
func (h *Handler) HandleAccountDetail(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	account, err := h.Store.AccountByAddress(r.Context(), address)
	if err != nil {
		h.Logger.Error("failed to fetch account", zap.String("address", address), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if account == nil {
		h.writeError(w, http.StatusNotFound, "not found")
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}
