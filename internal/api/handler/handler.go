package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/computechain/explorer/internal/indexer"
	"github.com/computechain/explorer/pkg/db/models"
	"github.com/computechain/explorer/pkg/db/postgres"
)

// Store is the read surface the HTTP handlers need from the database.
type Store interface {
	ListBlocks(ctx context.Context, limit, offset int) ([]*models.Block, int64, error)
	BlockByHeight(ctx context.Context, height uint64) (*models.Block, error)
	BlockByHash(ctx context.Context, hash string) (*models.Block, error)
	RecentBlocks(ctx context.Context, limit int) ([]*models.Block, error)
	TransactionsByHeight(ctx context.Context, height uint64) ([]*models.Transaction, error)
	TransactionByHash(ctx context.Context, hash string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, f postgres.TxFilter, limit, offset int) ([]*models.Transaction, int64, error)
	AccountByAddress(ctx context.Context, address string) (*models.Account, error)
	ListAccounts(ctx context.Context, validatorsOnly bool, limit, offset int) ([]*models.Account, int64, error)
	Stats(ctx context.Context) (*postgres.ChainStats, error)
	TxTypeCounts(ctx context.Context) (map[models.TxType]int64, error)
	ReorgEvents(ctx context.Context, limit int) ([]models.ReorgEvent, error)
}

// Chain is the view of the running indexer exposed over the API.
type Chain interface {
	State() indexer.State
	Tip() uint64
	HaltReason() error
	ForceResync(ctx context.Context, depth uint64)
}

// Handler holds the dependencies for API handlers
type Handler struct {
	Store       Store
	Chain       Chain
	Logger      *zap.Logger
	AdminToken  string
	PageSize    int
	MaxPageSize int
}

// NewHandler creates a new Handler instance
func NewHandler(store Store, chain Chain, logger *zap.Logger, adminToken string, pageSize, maxPageSize int) *Handler {
	if pageSize <= 0 {
		pageSize = 25
	}
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &Handler{
		Store:       store,
		Chain:       chain,
		Logger:      logger,
		AdminToken:  adminToken,
		PageSize:    pageSize,
		MaxPageSize: maxPageSize,
	}
}

// NewRouter creates and configures the HTTP router with all API routes
func (h *Handler) NewRouter() *mux.Router {
	r := mux.NewRouter()

	// Public endpoints
	r.HandleFunc("/api/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/blocks", h.HandleBlocksList).Methods(http.MethodGet)
	r.HandleFunc("/api/blocks/{height}", h.HandleBlockDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/blocks/{height}/transactions", h.HandleBlockTransactions).Methods(http.MethodGet)
	r.HandleFunc("/api/transactions", h.HandleTransactionsList).Methods(http.MethodGet)
	r.HandleFunc("/api/transactions/{hash}", h.HandleTransactionDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/accounts", h.HandleAccountsList).Methods(http.MethodGet)
	r.HandleFunc("/api/accounts/{address}", h.HandleAccountDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", h.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/stats/tx-types", h.HandleTxTypes).Methods(http.MethodGet)
	r.HandleFunc("/api/stats/throughput", h.HandleThroughput).Methods(http.MethodGet)
	r.HandleFunc("/api/reorgs", h.HandleReorgsList).Methods(http.MethodGet)

	// Protected admin endpoints
	r.HandleFunc("/api/admin/resync", h.RequireAuth(h.HandleForceResync)).Methods(http.MethodPost)

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// RequireAuth is a middleware that validates the bearer token
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		expected := "Bearer " + h.AdminToken

		if h.AdminToken == "" || auth != expected {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		next(w, r)
	}
}

// HandleHealth reports process liveness and the indexer's current state.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"state":  h.Chain.State().String(),
		"height": h.Chain.Tip(),
	}
	if err := h.Chain.HaltReason(); err != nil {
		resp["status"] = "halted"
		resp["halt_reason"] = err.Error()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// pagination reads page/page_size query params and returns limit and offset.
func (h *Handler) pagination(r *http.Request) (limit, offset int) {
	limit = h.PageSize
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.MaxPageSize {
		limit = h.MaxPageSize
	}

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	offset = (page - 1) * limit
	return limit, offset
}

// pageResponse is the standard envelope for list endpoints.
type pageResponse struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
}
