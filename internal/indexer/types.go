package indexer

import (
	"context"
	"errors"

	"github.com/computechain/explorer/pkg/aggregate"
	"github.com/computechain/explorer/pkg/db/models"
)

// ErrReorgBeyondLookback indicates a divergence was suspected below the
// configured lookback window. The indexer halts instead of guessing how far
// back to search; an operator resync is the way out.
var ErrReorgBeyondLookback = errors.New("reorg beyond lookback window")

// NodeClient is the read-only view of the chain node the indexer depends on.
// Implementations must be safe to retry; the indexer treats every failure as
// transient.
type NodeClient interface {
	ChainHead(ctx context.Context) (uint64, error)
	BlockByHeight(ctx context.Context, height uint64) (*models.Block, []*models.Transaction, error)
}

// Store is the transactional persistence the indexer writes through. The
// indexer is the only writer of chain tables; CommitBlock and RollbackTo are
// all-or-nothing.
type Store interface {
	// SyncState returns the current cursor; height zero means nothing
	// indexed yet.
	SyncState(ctx context.Context) (models.SyncState, error)

	// BlockByHeight returns the stored block or nil when absent.
	BlockByHeight(ctx context.Context, height uint64) (*models.Block, error)

	// BlocksFrom returns stored blocks with height >= from, ascending.
	BlocksFrom(ctx context.Context, from uint64) ([]*models.Block, error)

	// TransactionsByHeight returns a block's transactions in block order.
	TransactionsByHeight(ctx context.Context, height uint64) ([]*models.Transaction, error)

	// RecentBlocks returns up to limit blocks descending from the tip.
	RecentBlocks(ctx context.Context, limit int) ([]*models.Block, error)

	// CommitBlock atomically writes the block, its transactions, the
	// account deltas and the advanced sync state.
	CommitBlock(ctx context.Context, block *models.Block, txs []*models.Transaction, deltas *aggregate.BlockDeltas) error

	// RollbackTo atomically deletes all blocks and transactions with
	// height >= height, applies the merged revert deltas, recomputes
	// nonce and first/last-seen for the touched addresses from the
	// remaining history, and sets the sync state to height-1.
	RollbackTo(ctx context.Context, height uint64, reverts map[string]*aggregate.Delta) error

	// RecordReorg appends a reorg audit row. Best-effort observability.
	RecordReorg(ctx context.Context, ev models.ReorgEvent) error
}

// Publisher receives notifications after state changes commit. A nil
// publisher disables publishing.
type Publisher interface {
	PublishBlock(ctx context.Context, height uint64, hash string) error
	PublishReorg(ctx context.Context, ev models.ReorgEvent) error
}
