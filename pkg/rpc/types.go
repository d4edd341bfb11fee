package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/computechain/explorer/pkg/db/models"
)

// BlockHeader is the node's block header wire shape.
type BlockHeader struct {
	Height          uint64 `json:"height"`
	PrevHash        string `json:"prev_hash"`
	Timestamp       int64  `json:"timestamp"`
	ChainID         string `json:"chain_id"`
	ProposerAddress string `json:"proposer_address"`
	TxRoot          string `json:"tx_root"`
	StateRoot       string `json:"state_root"`
	GasUsed         uint64 `json:"gas_used"`
	GasLimit        uint64 `json:"gas_limit"`
}

// TxResult is the node's transaction wire shape. Amount and fee decode as
// json.Number so values above 2^53 survive intact.
type TxResult struct {
	TxType      string          `json:"tx_type"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Amount      json.Number     `json:"amount"`
	Fee         json.Number     `json:"fee"`
	Nonce       uint64          `json:"nonce"`
	GasPrice    uint64          `json:"gas_price"`
	GasLimit    uint64          `json:"gas_limit"`
	GasUsed     uint64          `json:"gas_used"`
	Signature   string          `json:"signature"`
	PubKey      string          `json:"pub_key"`
	Payload     json.RawMessage `json:"payload"`
}

// BlockResult is the node's block wire shape.
type BlockResult struct {
	Header BlockHeader `json:"header"`
	Txs    []TxResult  `json:"txs"`
}

// Validator is the node's validator wire shape.
type Validator struct {
	Address string `json:"address"`
}

// Hash returns the canonical block hash: sha256 over the identifying header
// fields in a fixed order.
func (b *BlockResult) Hash() string {
	h := b.Header
	sum := sha256.Sum256([]byte(fmt.Sprintf(
		"height=%d|prev_hash=%s|timestamp=%d|tx_root=%s|state_root=%s",
		h.Height, h.PrevHash, h.Timestamp, h.TxRoot, h.StateRoot,
	)))
	return hex.EncodeToString(sum[:])
}

// Hash returns the canonical transaction hash.
func (t *TxResult) Hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf(
		"tx_type=%s|from=%s|to=%s|amount=%s|nonce=%d|signature=%s",
		t.TxType, t.FromAddress, t.ToAddress, t.Amount.String(), t.Nonce, t.Signature,
	)))
	return hex.EncodeToString(sum[:])
}

// ToModel converts the wire block to storage models.
func (b *BlockResult) ToModel() (*models.Block, []*models.Transaction, error) {
	blk := &models.Block{
		Height:          b.Header.Height,
		Hash:            b.Hash(),
		PrevHash:        b.Header.PrevHash,
		Time:            time.Unix(b.Header.Timestamp, 0).UTC(),
		ChainID:         b.Header.ChainID,
		ProposerAddress: b.Header.ProposerAddress,
		TxRoot:          b.Header.TxRoot,
		StateRoot:       b.Header.StateRoot,
		GasUsed:         b.Header.GasUsed,
		GasLimit:        b.Header.GasLimit,
		NumTxs:          len(b.Txs),
	}

	txs := make([]*models.Transaction, 0, len(b.Txs))
	for i, t := range b.Txs {
		amount, err := parseAmount(t.Amount)
		if err != nil {
			return nil, nil, fmt.Errorf("tx %d amount: %w", i, err)
		}
		fee, err := parseAmount(t.Fee)
		if err != nil {
			return nil, nil, fmt.Errorf("tx %d fee: %w", i, err)
		}
		txs = append(txs, &models.Transaction{
			Hash:      t.Hash(),
			Height:    b.Header.Height,
			Index:     i,
			Type:      models.TxType(t.TxType),
			Sender:    t.FromAddress,
			Recipient: t.ToAddress,
			Amount:    amount,
			Fee:       fee,
			Nonce:     t.Nonce,
			GasPrice:  t.GasPrice,
			GasLimit:  t.GasLimit,
			GasUsed:   t.GasUsed,
			Signature: t.Signature,
			PublicKey: t.PubKey,
			Payload:   t.Payload,
		})
	}
	return blk, txs, nil
}

func parseAmount(n json.Number) (*big.Int, error) {
	s := n.String()
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative value: %q", s)
	}
	return v, nil
}
