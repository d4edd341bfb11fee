package models

import (
	"encoding/json"
	"math/big"
)

// TxType is the transaction message type. String-typed so new node message
// types index without a schema change.
type TxType string

const (
	TxTransfer        TxType = "TRANSFER"
	TxStake           TxType = "STAKE"
	TxUnstake         TxType = "UNSTAKE"
	TxDelegate        TxType = "DELEGATE"
	TxUndelegate      TxType = "UNDELEGATE"
	TxUpdateValidator TxType = "UPDATE_VALIDATOR"
	TxUnjail          TxType = "UNJAIL"
	TxCompute         TxType = "COMPUTE"
	TxSubmitResult    TxType = "SUBMIT_RESULT"
)

// Valid reports whether t is one of the known message types.
func (t TxType) Valid() bool {
	switch t {
	case TxTransfer, TxStake, TxUnstake, TxDelegate, TxUndelegate,
		TxUpdateValidator, TxUnjail, TxCompute, TxSubmitResult:
		return true
	}
	return false
}

// Transaction is a stored transaction. Amount and Fee are exact integers
// (Numeric(78,0) in Postgres); they are never represented as floats.
// Lifecycle is tied to the owning block: committed and deleted with it.
type Transaction struct {
	Hash      string          `json:"hash"`
	Height    uint64          `json:"block_height"`
	Index     int             `json:"tx_index"`
	Type      TxType          `json:"tx_type"`
	Sender    string          `json:"from_address"`
	Recipient string          `json:"to_address,omitempty"`
	Amount    *big.Int        `json:"amount"`
	Fee       *big.Int        `json:"fee"`
	Nonce     uint64          `json:"nonce"`
	GasPrice  uint64          `json:"gas_price"`
	GasLimit  uint64          `json:"gas_limit"`
	GasUsed   uint64          `json:"gas_used"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"pub_key"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
