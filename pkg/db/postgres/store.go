// Package postgres implements the explorer's persistent store on PostgreSQL
// via pgx. The indexer is the only writer of chain tables; the query API
// reads through the same pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/computechain/explorer/pkg/db/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect creates the pool, verifies connectivity and ensures the schema.
func Connect(ctx context.Context, url string) (*Store, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MinConns = 2
	config.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS blocks (
			height BIGINT PRIMARY KEY,
			hash TEXT NOT NULL UNIQUE,
			prev_hash TEXT NOT NULL,
			height_time TIMESTAMP WITH TIME ZONE NOT NULL,
			chain_id TEXT NOT NULL DEFAULT '',
			proposer_address TEXT NOT NULL DEFAULT '',
			tx_root TEXT NOT NULL DEFAULT '',
			state_root TEXT NOT NULL DEFAULT '',
			gas_used BIGINT NOT NULL DEFAULT 0,
			gas_limit BIGINT NOT NULL DEFAULT 0,
			num_txs INT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_blocks_time ON blocks(height_time);
		CREATE INDEX IF NOT EXISTS idx_blocks_proposer ON blocks(proposer_address, height);

		CREATE TABLE IF NOT EXISTS transactions (
			hash TEXT PRIMARY KEY,
			height BIGINT NOT NULL REFERENCES blocks(height) ON DELETE CASCADE,
			tx_index INT NOT NULL DEFAULT 0,
			tx_type TEXT NOT NULL,
			sender TEXT NOT NULL,
			recipient TEXT,
			amount NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (amount >= 0),
			fee NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (fee >= 0),
			nonce BIGINT NOT NULL DEFAULT 0,
			gas_price BIGINT NOT NULL DEFAULT 0,
			gas_limit BIGINT NOT NULL DEFAULT 0,
			gas_used BIGINT NOT NULL DEFAULT 0,
			signature TEXT NOT NULL DEFAULT '',
			pub_key TEXT NOT NULL DEFAULT '',
			payload JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_txs_height_index ON transactions(height, tx_index);
		CREATE INDEX IF NOT EXISTS idx_txs_sender ON transactions(sender, height);
		CREATE INDEX IF NOT EXISTS idx_txs_recipient ON transactions(recipient, height);
		CREATE INDEX IF NOT EXISTS idx_txs_type_height ON transactions(tx_type, height);

		CREATE TABLE IF NOT EXISTS accounts (
			address TEXT PRIMARY KEY,
			balance NUMERIC(78,0) NOT NULL DEFAULT 0 CONSTRAINT accounts_balance_nonnegative CHECK (balance >= 0),
			nonce BIGINT NOT NULL DEFAULT 0,
			tx_sent BIGINT NOT NULL DEFAULT 0,
			tx_received BIGINT NOT NULL DEFAULT 0,
			first_seen_height BIGINT NOT NULL DEFAULT 0,
			last_seen_height BIGINT NOT NULL DEFAULT 0,
			is_validator BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_balance ON accounts(balance DESC);
		CREATE INDEX IF NOT EXISTS idx_accounts_validator ON accounts(is_validator) WHERE is_validator;

		CREATE TABLE IF NOT EXISTS sync_state (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			height BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS reorg_events (
			id BIGSERIAL PRIMARY KEY,
			height BIGINT NOT NULL,
			depth BIGINT NOT NULL,
			old_hash TEXT NOT NULL,
			new_hash TEXT NOT NULL,
			detected_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
	`)
	return err
}

// mapIntegrity converts check-constraint violations into the integrity
// sentinel so the indexer halts instead of retrying forever.
func mapIntegrity(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return fmt.Errorf("%w: %s (%s)", models.ErrIntegrity, pgErr.Message, pgErr.ConstraintName)
	}
	return err
}
