package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/computechain/explorer/pkg/db/models"
	"github.com/jackc/pgx/v5"
)

const blockColumns = `height, hash, prev_hash, height_time, chain_id, proposer_address,
	tx_root, state_root, gas_used, gas_limit, num_txs`

func scanBlock(row pgx.Row) (*models.Block, error) {
	var b models.Block
	var gasUsed, gasLimit int64
	err := row.Scan(&b.Height, &b.Hash, &b.PrevHash, &b.Time, &b.ChainID,
		&b.ProposerAddress, &b.TxRoot, &b.StateRoot, &gasUsed, &gasLimit, &b.NumTxs)
	if err != nil {
		return nil, err
	}
	b.GasUsed = uint64(gasUsed)
	b.GasLimit = uint64(gasLimit)
	return &b, nil
}

// BlockByHeight returns the stored block or nil when absent.
func (s *Store) BlockByHeight(ctx context.Context, height uint64) (*models.Block, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE height = $1`, int64(height))
	b, err := scanBlock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("block by height: %w", err)
	}
	return b, nil
}

// BlockByHash returns the stored block or nil when absent.
func (s *Store) BlockByHash(ctx context.Context, hash string) (*models.Block, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE hash = $1`, hash)
	b, err := scanBlock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("block by hash: %w", err)
	}
	return b, nil
}

// BlocksFrom returns stored blocks with height >= from, ascending.
func (s *Store) BlocksFrom(ctx context.Context, from uint64) ([]*models.Block, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE height >= $1 ORDER BY height ASC`, int64(from))
	if err != nil {
		return nil, fmt.Errorf("blocks from: %w", err)
	}
	defer rows.Close()
	return collectBlocks(rows)
}

// RecentBlocks returns up to limit blocks descending from the tip.
func (s *Store) RecentBlocks(ctx context.Context, limit int) ([]*models.Block, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+blockColumns+` FROM blocks ORDER BY height DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent blocks: %w", err)
	}
	defer rows.Close()
	return collectBlocks(rows)
}

// ListBlocks returns one page of blocks descending by height plus the total
// count.
func (s *Store) ListBlocks(ctx context.Context, limit, offset int) ([]*models.Block, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM blocks`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count blocks: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+blockColumns+` FROM blocks ORDER BY height DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	blocks, err := collectBlocks(rows)
	return blocks, total, err
}

func collectBlocks(rows pgx.Rows) ([]*models.Block, error) {
	var out []*models.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
