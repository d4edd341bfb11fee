package indexer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/computechain/explorer/internal/metrics"
	"github.com/computechain/explorer/pkg/aggregate"
	"github.com/computechain/explorer/pkg/db/models"
	"github.com/computechain/explorer/pkg/rpc"
)

// PollTick runs one catch-up cycle: fetch and commit every block between the
// local tip and the node head, in strictly increasing order with no gaps.
// Serialized with resync ticks and rollbacks.
func (ix *Indexer) PollTick(ctx context.Context) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.state == StateHalted {
		return
	}
	metrics.PollTicks.Inc()

	head, err := ix.node.ChainHead(ctx)
	if err != nil {
		metrics.NodeErrors.WithLabelValues("head").Inc()
		slog.Warn("chain head unavailable, will retry", "err", err)
		return
	}

	if ix.tip >= head {
		ix.setState(StateSynced)
		slog.Debug("in sync", "tip", ix.tip)
		return
	}

	ix.setState(StateCatchingUp)
	slog.Info("catching up", "tip", ix.tip, "head", head, "behind", head-ix.tip)

	for height := ix.tip + 1; height <= head; height++ {
		if ctx.Err() != nil {
			return
		}
		if !ix.advanceOne(ctx, height) {
			return
		}
	}

	ix.setState(StateSynced)
}

// advanceOne fetches and commits the block at height, which must be tip+1.
// Returns false when the cycle should stop (transient failure, divergence,
// or halt).
func (ix *Indexer) advanceOne(ctx context.Context, height uint64) bool {
	block, txs, err := ix.node.BlockByHeight(ctx, height)
	switch {
	case errors.Is(err, rpc.ErrNotFound):
		// The head advertised this height but the block is not served
		// yet; retry next tick. If the height truly disappeared the
		// periodic reorg check will catch the divergence.
		metrics.NodeErrors.WithLabelValues("not_found").Inc()
		slog.Warn("advertised block not served yet", "height", height)
		return false
	case err != nil:
		metrics.NodeErrors.WithLabelValues("fetch").Inc()
		slog.Warn("block fetch failed, will retry", "height", height, "err", err)
		return false
	}

	// Defensive parent check: between the head lookup and this fetch the
	// node may have reorganized past our tip. A mismatch is an immediate
	// divergence at the tip.
	if ix.tip >= models.GenesisHeight && ix.tipHash != "" && block.PrevHash != ix.tipHash {
		slog.Warn("parent hash mismatch, rolling back tip",
			"height", height,
			"expected_parent", ix.tipHash,
			"got_parent", block.PrevHash,
		)
		ix.rollback(ctx, ix.tip, block.PrevHash)
		return false
	}

	deltas := aggregate.ApplyBlock(block, txs)

	start := time.Now()
	if err := ix.store.CommitBlock(ctx, block, txs, deltas); err != nil {
		if errors.Is(err, models.ErrIntegrity) {
			ix.halt(err)
			return false
		}
		// Commit is all-or-nothing; the unchanged prior state is safe
		// to retry from on the next tick.
		slog.Error("block commit failed, will retry", "height", height, "err", err)
		return false
	}
	metrics.CommitLatency.Observe(time.Since(start).Seconds())

	ix.setTip(block.Height, block.Hash)
	metrics.IndexedHeight.Set(float64(ix.tip))
	metrics.BlocksCommitted.Inc()
	metrics.TxsCommitted.Add(float64(len(txs)))

	slog.Debug("committed block", "height", block.Height, "hash", block.Hash, "txs", len(txs))

	if ix.pub != nil {
		if err := ix.pub.PublishBlock(ctx, block.Height, block.Hash); err != nil {
			slog.Warn("block publish failed", "height", block.Height, "err", err)
		}
	}
	return true
}
