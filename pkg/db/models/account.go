package models

import (
	"math/big"
	"time"
)

// Account is the aggregated view of an address. Rows are mutated only through
// the indexer's commit/rollback path and are never deleted, even at zero
// balance, because the address has history.
type Account struct {
	Address         string    `json:"address"`
	Balance         *big.Int  `json:"balance"`
	Nonce           uint64    `json:"nonce"`
	TxSent          uint64    `json:"tx_sent_count"`
	TxReceived      uint64    `json:"tx_received_count"`
	FirstSeenHeight uint64    `json:"first_seen_height"`
	LastSeenHeight  uint64    `json:"last_seen_height"`
	IsValidator     bool      `json:"is_validator"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TxCount is the total number of transactions the account participated in.
func (a *Account) TxCount() uint64 {
	return a.TxSent + a.TxReceived
}
