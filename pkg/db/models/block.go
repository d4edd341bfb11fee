package models

import "time"

// Block is a stored block header. Blocks are immutable once committed; the
// only delete path is a reorg rollback.
type Block struct {
	Height          uint64    `json:"height"`
	Hash            string    `json:"hash"`
	PrevHash        string    `json:"prev_hash"`
	Time            time.Time `json:"time"`
	ChainID         string    `json:"chain_id"`
	ProposerAddress string    `json:"proposer_address"`
	TxRoot          string    `json:"tx_root"`
	StateRoot       string    `json:"state_root"`
	GasUsed         uint64    `json:"gas_used"`
	GasLimit        uint64    `json:"gas_limit"`
	NumTxs          int       `json:"num_txs"`
}

// GenesisHeight is the first block height produced by the chain. A block at
// this height has no parent and an empty PrevHash.
const GenesisHeight uint64 = 1
