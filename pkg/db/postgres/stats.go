package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/computechain/explorer/pkg/db/models"
	"github.com/jackc/pgx/v5"
)

// SyncState returns the cursor; height zero when nothing is indexed yet.
func (s *Store) SyncState(ctx context.Context) (models.SyncState, error) {
	var st models.SyncState
	var height int64
	err := s.pool.QueryRow(ctx,
		`SELECT height, updated_at FROM sync_state WHERE id = 1`).Scan(&height, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SyncState{}, nil
	}
	if err != nil {
		return models.SyncState{}, fmt.Errorf("sync state: %w", err)
	}
	st.Height = uint64(height)
	return st, nil
}

// ChainStats is the aggregate view served by /api/stats.
type ChainStats struct {
	Blocks           int64            `json:"blocks"`
	Transactions     int64            `json:"transactions"`
	Accounts         int64            `json:"accounts"`
	TotalTransferred *big.Int         `json:"-"`
	TotalFees        *big.Int         `json:"-"`
	Sync             models.SyncState `json:"sync"`
}

// Stats computes whole-chain totals.
func (s *Store) Stats(ctx context.Context) (*ChainStats, error) {
	st := &ChainStats{}

	var transferred, fees string
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM blocks),
			(SELECT count(*) FROM transactions),
			(SELECT count(*) FROM accounts),
			COALESCE((SELECT sum(amount) FROM transactions WHERE tx_type = $1), 0)::text,
			COALESCE((SELECT sum(fee) FROM transactions), 0)::text
	`, string(models.TxTransfer)).Scan(&st.Blocks, &st.Transactions, &st.Accounts, &transferred, &fees)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	if st.TotalTransferred, err = scanNumeric(transferred); err != nil {
		return nil, err
	}
	if st.TotalFees, err = scanNumeric(fees); err != nil {
		return nil, err
	}

	if st.Sync, err = s.SyncState(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// TxTypeCounts returns transaction counts grouped by type.
func (s *Store) TxTypeCounts(ctx context.Context) (map[models.TxType]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tx_type, count(*) FROM transactions GROUP BY tx_type`)
	if err != nil {
		return nil, fmt.Errorf("tx type counts: %w", err)
	}
	defer rows.Close()

	out := make(map[models.TxType]int64)
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[models.TxType(t)] = n
	}
	return out, rows.Err()
}

// ReorgEvents returns the most recent reorg audit rows.
func (s *Store) ReorgEvents(ctx context.Context, limit int) ([]models.ReorgEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT height, depth, old_hash, new_hash, detected_at
		FROM reorg_events ORDER BY detected_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("reorg events: %w", err)
	}
	defer rows.Close()

	var out []models.ReorgEvent
	for rows.Next() {
		var ev models.ReorgEvent
		var height, depth int64
		if err := rows.Scan(&height, &depth, &ev.OldHash, &ev.NewHash, &ev.DetectedAt); err != nil {
			return nil, err
		}
		ev.Height = uint64(height)
		ev.Depth = uint64(depth)
		out = append(out, ev)
	}
	return out, rows.Err()
}
