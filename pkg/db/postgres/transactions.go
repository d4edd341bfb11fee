package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/computechain/explorer/pkg/db/models"
	"github.com/jackc/pgx/v5"
)

const txColumns = `hash, height, tx_index, tx_type, sender, COALESCE(recipient, ''),
	amount::text, fee::text, nonce, gas_price, gas_limit, gas_used, signature, pub_key, COALESCE(payload, 'null'::jsonb)`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	var amount, fee string
	var nonce, gasPrice, gasLimit, gasUsed int64
	err := row.Scan(&t.Hash, &t.Height, &t.Index, &t.Type, &t.Sender, &t.Recipient,
		&amount, &fee, &nonce, &gasPrice, &gasLimit, &gasUsed,
		&t.Signature, &t.PublicKey, &t.Payload)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = scanNumeric(amount); err != nil {
		return nil, err
	}
	if t.Fee, err = scanNumeric(fee); err != nil {
		return nil, err
	}
	t.Nonce = uint64(nonce)
	t.GasPrice = uint64(gasPrice)
	t.GasLimit = uint64(gasLimit)
	t.GasUsed = uint64(gasUsed)
	return &t, nil
}

// TransactionsByHeight returns a block's transactions in block order.
func (s *Store) TransactionsByHeight(ctx context.Context, height uint64) ([]*models.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE height = $1 ORDER BY tx_index ASC`, int64(height))
	if err != nil {
		return nil, fmt.Errorf("txs by height: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// TransactionByHash returns the stored transaction or nil when absent.
func (s *Store) TransactionByHash(ctx context.Context, hash string) (*models.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE hash = $1`, hash)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tx by hash: %w", err)
	}
	return t, nil
}

// TxFilter narrows ListTransactions. Zero values mean "any".
type TxFilter struct {
	Height  uint64
	Address string // matches sender or recipient
	Type    models.TxType
}

// ListTransactions returns one page of transactions, newest first, plus the
// total count under the filter.
func (s *Store) ListTransactions(ctx context.Context, f TxFilter, limit, offset int) ([]*models.Transaction, int64, error) {
	where := ` WHERE TRUE`
	args := []any{}
	if f.Height > 0 {
		args = append(args, int64(f.Height))
		where += fmt.Sprintf(` AND height = $%d`, len(args))
	}
	if f.Address != "" {
		args = append(args, f.Address)
		where += fmt.Sprintf(` AND (sender = $%d OR recipient = $%d)`, len(args), len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where += fmt.Sprintf(` AND tx_type = $%d`, len(args))
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count txs: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx,
		`SELECT `+txColumns+` FROM transactions`+where+
			fmt.Sprintf(` ORDER BY height DESC, tx_index DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list txs: %w", err)
	}
	defer rows.Close()

	txs, err := collectTransactions(rows)
	return txs, total, err
}

func collectTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
