package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/computechain/explorer/pkg/db/models"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `address, balance::text, nonce, tx_sent, tx_received,
	first_seen_height, last_seen_height, is_validator, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var balance string
	var nonce, sent, received, first, last int64
	err := row.Scan(&a.Address, &balance, &nonce, &sent, &received, &first, &last,
		&a.IsValidator, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Balance, err = scanNumeric(balance); err != nil {
		return nil, err
	}
	a.Nonce = uint64(nonce)
	a.TxSent = uint64(sent)
	a.TxReceived = uint64(received)
	a.FirstSeenHeight = uint64(first)
	a.LastSeenHeight = uint64(last)
	return &a, nil
}

// AccountByAddress returns the stored account or nil when absent.
func (s *Store) AccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE address = $1`, address)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("account by address: %w", err)
	}
	return a, nil
}

// ListAccounts returns one page of accounts by descending balance plus the
// total count. validatorsOnly narrows to the validator set.
func (s *Store) ListAccounts(ctx context.Context, validatorsOnly bool, limit, offset int) ([]*models.Account, int64, error) {
	where := ``
	if validatorsOnly {
		where = ` WHERE is_validator`
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM accounts`+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts`+where+
			` ORDER BY balance DESC, address ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}
