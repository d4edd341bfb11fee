package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/computechain/explorer/internal/metrics"
	"github.com/computechain/explorer/pkg/aggregate"
	"github.com/computechain/explorer/pkg/db/models"
	"github.com/computechain/explorer/pkg/rpc"
)

// ResyncTick runs one periodic reorg check over the trailing lookback
// window. Serialized with poll ticks and rollbacks.
func (ix *Indexer) ResyncTick(ctx context.Context) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.state == StateHalted {
		return
	}
	ix.resyncLocked(ctx, ix.lookback)
}

// ForceResync is the operator escape hatch: it clears a halt and re-verifies
// the trailing depth blocks (depth 0 means the full local chain). Exposed
// through the admin API.
func (ix *Indexer) ForceResync(ctx context.Context, depth uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.state == StateHalted {
		slog.Info("operator resync clearing halt", "reason", ix.HaltReason())
		ix.haltMu.Lock()
		ix.haltErr = nil
		ix.haltMu.Unlock()
		ix.setState(StateCatchingUp)
	}
	if depth == 0 && ix.tip >= models.GenesisHeight {
		depth = ix.tip - models.GenesisHeight + 1
	}
	ix.resyncLocked(ctx, depth)
}

// resyncLocked scans the window [tip-depth+1 .. tip] ascending, comparing
// stored hashes against the node's current view, and rolls back from the
// first divergence. Scanning from the oldest candidate finds the true fork
// point; starting at the tip would under-correct and leave stale
// descendants in place. Called with ix.mu held.
func (ix *Indexer) resyncLocked(ctx context.Context, depth uint64) {
	if ix.tip < models.GenesisHeight || depth == 0 {
		return
	}
	metrics.ResyncChecks.Inc()

	prev := ix.state
	ix.setState(StateReorgCheck)

	head, err := ix.node.ChainHead(ctx)
	if err != nil {
		// Soft failure: an unreachable node is not evidence of a
		// reorg. Retry on the next interval.
		metrics.NodeErrors.WithLabelValues("head").Inc()
		slog.Warn("reorg check skipped, node unavailable", "err", err)
		ix.setState(prev)
		return
	}

	from := models.GenesisHeight
	if ix.tip-models.GenesisHeight+1 > depth {
		from = ix.tip - depth + 1
	}

	// A node head below the window start means the chain shortened past
	// everything we can verify.
	if head+1 < from {
		ix.halt(fmt.Errorf("%w: node head %d below window start %d", ErrReorgBeyondLookback, head, from))
		return
	}

	to := ix.tip
	if head < to {
		to = head
	}

	for h := from; h <= to; h++ {
		nodeBlock, _, err := ix.node.BlockByHeight(ctx, h)
		if err != nil && !errors.Is(err, rpc.ErrNotFound) {
			metrics.NodeErrors.WithLabelValues("fetch").Inc()
			slog.Warn("reorg check aborted, node unavailable", "height", h, "err", err)
			ix.setState(prev)
			return
		}

		local, serr := ix.store.BlockByHeight(ctx, h)
		if serr != nil {
			slog.Error("reorg check aborted, store read failed", "height", h, "err", serr)
			ix.setState(prev)
			return
		}
		if local == nil {
			ix.halt(fmt.Errorf("%w: gap at height %d inside indexed range", models.ErrIntegrity, h))
			return
		}

		if nodeBlock == nil {
			// The node advertises a head past h but did not serve the
			// block; a transient gap, not evidence of a reorg. A truly
			// shortened chain shows up as a head regression below.
			metrics.NodeErrors.WithLabelValues("not_found").Inc()
			slog.Warn("block missing from node during reorg check, skipping", "height", h)
			continue
		}

		if nodeBlock.Hash == local.Hash {
			continue
		}

		// Divergence at h. If h is the oldest height we checked, the
		// true fork point may be deeper; only proceed when the node's
		// block at h still links to our block at h-1.
		if h == from && from > models.GenesisHeight {
			parent, perr := ix.store.BlockByHeight(ctx, h-1)
			if perr != nil {
				slog.Error("reorg check aborted, store read failed", "height", h-1, "err", perr)
				ix.setState(prev)
				return
			}
			if parent == nil || nodeBlock.PrevHash != parent.Hash {
				ix.halt(fmt.Errorf("%w: divergence at or below window start %d", ErrReorgBeyondLookback, from))
				return
			}
		}

		slog.Warn("reorg detected", "divergence_height", h, "old_hash", local.Hash, "new_hash", nodeBlock.Hash)
		ix.rollback(ctx, h, nodeBlock.Hash)
		return
	}

	// All hashes in the window match. If the node head regressed below the
	// tip, the surplus heights are the divergence.
	if head < ix.tip {
		slog.Warn("node head below local tip", "head", head, "tip", ix.tip)
		ix.rollback(ctx, head+1, "")
		return
	}

	ix.setState(prev)
	slog.Debug("reorg check clean", "from", from, "to", to)
}

// rollback atomically removes all blocks at height >= height, reversing
// their aggregate effects, and resumes catch-up from height-1. Called with
// ix.mu held.
func (ix *Indexer) rollback(ctx context.Context, height uint64, newHash string) {
	ix.setState(StateRollingBack)

	blocks, err := ix.store.BlocksFrom(ctx, height)
	if err != nil {
		slog.Error("rollback aborted, store read failed", "height", height, "err", err)
		ix.setState(StateCatchingUp)
		return
	}
	if len(blocks) == 0 {
		ix.setState(StateCatchingUp)
		return
	}

	// Merge revert deltas tip-down so the store applies one net change
	// per account.
	merged := make(map[string]*aggregate.Delta)
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		txs, err := ix.store.TransactionsByHeight(ctx, b.Height)
		if err != nil {
			slog.Error("rollback aborted, store read failed", "height", b.Height, "err", err)
			ix.setState(StateCatchingUp)
			return
		}
		mergeDeltas(merged, aggregate.RevertBlock(b, txs))
	}

	if err := ix.store.RollbackTo(ctx, height, merged); err != nil {
		if errors.Is(err, models.ErrIntegrity) {
			ix.halt(err)
			return
		}
		slog.Error("rollback failed, will retry", "height", height, "err", err)
		ix.setState(StateCatchingUp)
		return
	}

	ev := models.ReorgEvent{
		Height:     height,
		Depth:      uint64(len(blocks)),
		OldHash:    blocks[0].Hash,
		NewHash:    newHash,
		DetectedAt: time.Now().UTC(),
	}
	if err := ix.store.RecordReorg(ctx, ev); err != nil {
		slog.Warn("reorg audit record failed", "height", height, "err", err)
	}

	ix.setTip(height-1, "")
	if ix.tip >= models.GenesisHeight {
		parent, err := ix.store.BlockByHeight(ctx, ix.tip)
		if err == nil && parent != nil {
			ix.setTip(ix.tip, parent.Hash)
		}
	}

	metrics.IndexedHeight.Set(float64(ix.tip))
	metrics.ReorgsResolved.Inc()
	metrics.RollbackDepth.Observe(float64(len(blocks)))

	slog.Info("rollback complete",
		"divergence_height", height,
		"removed_blocks", len(blocks),
		"new_tip", ix.tip,
	)

	if ix.pub != nil {
		if err := ix.pub.PublishReorg(ctx, ev); err != nil {
			slog.Warn("reorg publish failed", "height", height, "err", err)
		}
	}

	ix.setState(StateCatchingUp)
}

func mergeDeltas(dst map[string]*aggregate.Delta, src *aggregate.BlockDeltas) {
	for addr, d := range src.Accounts {
		acc, ok := dst[addr]
		if !ok {
			acc = aggregate.NewDelta(0)
			dst[addr] = acc
		}
		acc.Balance.Add(acc.Balance, d.Balance)
		acc.Sent += d.Sent
		acc.Received += d.Received
	}
}
