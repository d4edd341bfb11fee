package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/computechain/explorer/pkg/aggregate"
	"github.com/computechain/explorer/pkg/db/models"
	"github.com/jackc/pgx/v5"
)

// CommitBlock writes the block, its transactions, the account deltas and the
// advanced sync state in a single transaction. Any failure rolls the whole
// commit back; readers never observe a block without its transactions or a
// half-applied delta.
func (s *Store) CommitBlock(ctx context.Context, block *models.Block, txs []*models.Transaction, deltas *aggregate.BlockDeltas) error {
	start := time.Now()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}

		batch.Queue(`
			INSERT INTO blocks (height, hash, prev_hash, height_time, chain_id, proposer_address,
				tx_root, state_root, gas_used, gas_limit, num_txs)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			block.Height, block.Hash, block.PrevHash, block.Time, block.ChainID,
			block.ProposerAddress, block.TxRoot, block.StateRoot,
			int64(block.GasUsed), int64(block.GasLimit), block.NumTxs,
		)

		for _, t := range txs {
			var recipient *string
			if t.Recipient != "" {
				recipient = &t.Recipient
			}
			batch.Queue(`
				INSERT INTO transactions (hash, height, tx_index, tx_type, sender, recipient,
					amount, fee, nonce, gas_price, gas_limit, gas_used, signature, pub_key, payload)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			`,
				t.Hash, t.Height, t.Index, string(t.Type), t.Sender, recipient,
				numeric(t.Amount), numeric(t.Fee), int64(t.Nonce),
				int64(t.GasPrice), int64(t.GasLimit), int64(t.GasUsed),
				t.Signature, t.PublicKey, nullJSON(t.Payload),
			)
		}

		for addr, d := range deltas.Accounts {
			batch.Queue(`
				INSERT INTO accounts (address, balance, nonce, tx_sent, tx_received,
					first_seen_height, last_seen_height, is_validator, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $6, $7, now())
				ON CONFLICT (address) DO UPDATE SET
					balance = accounts.balance + EXCLUDED.balance,
					nonce = GREATEST(accounts.nonce, EXCLUDED.nonce),
					tx_sent = accounts.tx_sent + EXCLUDED.tx_sent,
					tx_received = accounts.tx_received + EXCLUDED.tx_received,
					first_seen_height = LEAST(accounts.first_seen_height, EXCLUDED.first_seen_height),
					last_seen_height = GREATEST(accounts.last_seen_height, EXCLUDED.last_seen_height),
					is_validator = accounts.is_validator OR EXCLUDED.is_validator,
					updated_at = now()
			`,
				addr, numeric(d.Balance), int64(d.Nonce), d.Sent, d.Received,
				int64(d.SeenAt), d.Validator,
			)
		}

		batch.Queue(`
			INSERT INTO sync_state (id, height, updated_at)
			VALUES (1, $1, now())
			ON CONFLICT (id) DO UPDATE SET height = EXCLUDED.height, updated_at = now()
		`, block.Height)

		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("batch statement %d: %w", i, err)
			}
		}
		return nil
	})

	if err != nil {
		return mapIntegrity(err)
	}

	slog.Debug("pg commit", "height", block.Height, "txs", len(txs), "duration", time.Since(start))
	return nil
}

// RollbackTo removes all blocks at height >= height, applies the merged
// revert deltas, recomputes derived account fields from the remaining
// history and moves the sync state to height-1, all in one transaction.
func (s *Store) RollbackTo(ctx context.Context, height uint64, reverts map[string]*aggregate.Delta) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		addrs := make([]string, 0, len(reverts))
		for addr, d := range reverts {
			addrs = append(addrs, addr)
			if _, err := tx.Exec(ctx, `
				UPDATE accounts SET
					balance = balance + $2,
					tx_sent = tx_sent + $3,
					tx_received = tx_received + $4,
					updated_at = now()
				WHERE address = $1
			`, addr, numeric(d.Balance), d.Sent, d.Received); err != nil {
				return fmt.Errorf("revert account %s: %w", addr, err)
			}
		}

		// Transactions cascade from the block delete.
		if _, err := tx.Exec(ctx, `DELETE FROM blocks WHERE height >= $1`, int64(height)); err != nil {
			return fmt.Errorf("delete blocks: %w", err)
		}

		// Nonce and first/last-seen cannot be algebraically inverted;
		// recompute them from what survives.
		if len(addrs) > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE accounts a SET
					nonce = COALESCE((SELECT MAX(t.nonce) + 1 FROM transactions t WHERE t.sender = a.address), 0),
					first_seen_height = COALESCE((SELECT MIN(t.height) FROM transactions t
						WHERE t.sender = a.address OR t.recipient = a.address), 0),
					last_seen_height = COALESCE((SELECT MAX(t.height) FROM transactions t
						WHERE t.sender = a.address OR t.recipient = a.address), 0),
					updated_at = now()
				WHERE a.address = ANY($1)
			`, addrs); err != nil {
				return fmt.Errorf("recompute accounts: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO sync_state (id, height, updated_at)
			VALUES (1, $1, now())
			ON CONFLICT (id) DO UPDATE SET height = EXCLUDED.height, updated_at = now()
		`, int64(height-1)); err != nil {
			return fmt.Errorf("sync state: %w", err)
		}
		return nil
	})

	return mapIntegrity(err)
}

// RecordReorg appends a reorg audit row.
func (s *Store) RecordReorg(ctx context.Context, ev models.ReorgEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reorg_events (height, depth, old_hash, new_hash, detected_at)
		VALUES ($1, $2, $3, $4, $5)
	`, int64(ev.Height), int64(ev.Depth), ev.OldHash, ev.NewHash, ev.DetectedAt)
	return err
}
