// Package aggregate derives per-account deltas and chain throughput from
// block contents. All functions are pure and all monetary arithmetic is
// exact big.Int; floats appear only in display rates.
package aggregate

import (
	"math/big"

	"github.com/computechain/explorer/pkg/db/models"
)

// Delta is the signed change one block applies to a single account.
// SeenAt carries the block height for first/last-seen bookkeeping on apply;
// on revert those fields are recomputed from remaining history instead.
type Delta struct {
	Balance   *big.Int
	Sent      int64
	Received  int64
	Nonce     uint64 // highest tx nonce this block, +1; zero when no sends
	SeenAt    uint64
	Validator bool
}

// NewDelta returns an empty delta for the given height.
func NewDelta(height uint64) *Delta {
	return &Delta{Balance: new(big.Int), SeenAt: height}
}

// BlockDeltas is the aggregator output for a single block: per-address
// deltas plus the total fees collected, which accrue to the proposer-side
// fee sink, never to account balances.
type BlockDeltas struct {
	Accounts map[string]*Delta
	Fees     *big.Int
}

// ApplyBlock computes the forward per-account deltas for a block.
//
// Balance rules by message type:
//   - TRANSFER moves amount from sender to recipient.
//   - STAKE, DELEGATE and COMPUTE debit the sender; the funds move to
//     escrow outside the account set.
//   - UNSTAKE and UNDELEGATE credit the sender from escrow.
//   - UPDATE_VALIDATOR, UNJAIL and SUBMIT_RESULT move no balance.
//
// Every transaction counts against the sender's sent count and nonce; a
// recipient, when present, gets a received count.
func ApplyBlock(block *models.Block, txs []*models.Transaction) *BlockDeltas {
	out := &BlockDeltas{
		Accounts: make(map[string]*Delta),
		Fees:     new(big.Int),
	}

	get := func(addr string) *Delta {
		d, ok := out.Accounts[addr]
		if !ok {
			d = NewDelta(block.Height)
			out.Accounts[addr] = d
		}
		return d
	}

	for _, tx := range txs {
		sender := get(tx.Sender)
		sender.Sent++
		if n := tx.Nonce + 1; n > sender.Nonce {
			sender.Nonce = n
		}

		if tx.Fee != nil {
			out.Fees.Add(out.Fees, tx.Fee)
		}

		amount := tx.Amount
		if amount == nil {
			amount = new(big.Int)
		}

		switch tx.Type {
		case models.TxTransfer:
			sender.Balance.Sub(sender.Balance, amount)
			if tx.Recipient != "" {
				rec := get(tx.Recipient)
				rec.Balance.Add(rec.Balance, amount)
				rec.Received++
			}
		case models.TxStake, models.TxDelegate, models.TxCompute:
			sender.Balance.Sub(sender.Balance, amount)
		case models.TxUnstake, models.TxUndelegate:
			sender.Balance.Add(sender.Balance, amount)
		default:
			// UPDATE_VALIDATOR, UNJAIL, SUBMIT_RESULT and any unknown
			// type: no balance movement, counts only.
			if tx.Recipient != "" {
				get(tx.Recipient).Received++
			}
		}

		if tx.Type == models.TxStake || tx.Type == models.TxUpdateValidator {
			sender.Validator = true
		}
	}

	if block.ProposerAddress != "" {
		get(block.ProposerAddress).Validator = true
	}

	return out
}

// RevertBlock computes the inverse deltas for a block: balances negated,
// counts decremented. Nonce and first/last-seen fields are intentionally not
// inverted here; the store recomputes them from the transactions that remain
// after the rollback, because one block's delta does not identify the prior
// block that touched the account.
func RevertBlock(block *models.Block, txs []*models.Transaction) *BlockDeltas {
	fwd := ApplyBlock(block, txs)
	for _, d := range fwd.Accounts {
		d.Balance.Neg(d.Balance)
		d.Sent = -d.Sent
		d.Received = -d.Received
		d.Nonce = 0
		d.Validator = false
	}
	fwd.Fees.Neg(fwd.Fees)
	return fwd
}
