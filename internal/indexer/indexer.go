// Package indexer drives the chain replica: it advances the local tip by
// polling the node, periodically re-verifies the trailing blocks against the
// node's view, and rolls back and resyncs when the canonical chain changed.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/computechain/explorer/internal/metrics"
	"github.com/computechain/explorer/pkg/db/models"
)

// State is the indexer's current phase. Exactly one phase runs at a time;
// poll ticks, resync ticks and operator resyncs serialize on one mutex.
type State int32

const (
	StateCatchingUp State = iota
	StateSynced
	StateReorgCheck
	StateRollingBack
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateCatchingUp:
		return "catching_up"
	case StateSynced:
		return "synced"
	case StateReorgCheck:
		return "reorg_check"
	case StateRollingBack:
		return "rolling_back"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Config configures the Indexer.
type Config struct {
	PollInterval   time.Duration
	ResyncInterval time.Duration
	ResyncDepth    uint64
	Publisher      Publisher // optional
}

// Indexer owns the single writer role against the chain tables.
type Indexer struct {
	node  NodeClient
	store Store
	pub   Publisher

	pollInterval   time.Duration
	resyncInterval time.Duration
	lookback       uint64

	// nudge is poked by the head listener to pull the next poll forward.
	nudge chan struct{}

	// mu serializes the write path: poll ticks, resync ticks and
	// rollbacks. It is held across node fetches and commits, so status
	// reads go through the mirrored atomics below instead.
	mu      sync.Mutex
	state   State
	tip     uint64 // 0 = nothing indexed
	tipHash string

	stateAtom atomic.Int32
	tipAtom   atomic.Uint64

	haltMu  sync.Mutex
	haltErr error
}

// New creates an Indexer. Defaults: 2s poll, 5m resync, depth 10.
func New(node NodeClient, store Store, cfg Config) *Indexer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = 5 * time.Minute
	}
	if cfg.ResyncDepth == 0 {
		cfg.ResyncDepth = 10
	}
	return &Indexer{
		node:           node,
		store:          store,
		pub:            cfg.Publisher,
		pollInterval:   cfg.PollInterval,
		resyncInterval: cfg.ResyncInterval,
		lookback:       cfg.ResyncDepth,
		nudge:          make(chan struct{}, 1),
		state:          StateCatchingUp,
	}
}

// Run restores the cursor and drives the poll and resync timers until the
// context is cancelled. Commits are transactional in the store, so shutdown
// may cancel an in-flight cycle without leaving partial writes.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.restore(ctx); err != nil {
		return fmt.Errorf("restore sync state: %w", err)
	}

	slog.Info("indexer started",
		"tip", ix.Tip(),
		"poll_interval", ix.pollInterval,
		"resync_interval", ix.resyncInterval,
		"resync_depth", ix.lookback,
	)

	poll := time.NewTicker(ix.pollInterval)
	defer poll.Stop()
	resync := time.NewTicker(ix.resyncInterval)
	defer resync.Stop()

	// Catch up immediately rather than waiting out the first tick.
	ix.PollTick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("indexer stopped", "tip", ix.Tip())
			return nil
		case <-poll.C:
			ix.PollTick(ctx)
		case <-ix.nudge:
			ix.PollTick(ctx)
		case <-resync.C:
			ix.ResyncTick(ctx)
		}
	}
}

// Nudge requests an immediate poll tick. Non-blocking; used by the
// websocket head listener.
func (ix *Indexer) Nudge() {
	select {
	case ix.nudge <- struct{}{}:
	default:
	}
}

// State returns the current phase. Lock-free so health and stats reads
// stay responsive while a catch-up cycle holds the write mutex.
func (ix *Indexer) State() State {
	return State(ix.stateAtom.Load())
}

// Tip returns the highest locally committed height.
func (ix *Indexer) Tip() uint64 {
	return ix.tipAtom.Load()
}

// HaltReason returns the error that halted the indexer, or nil.
func (ix *Indexer) HaltReason() error {
	ix.haltMu.Lock()
	defer ix.haltMu.Unlock()
	return ix.haltErr
}

// setState and setTip are called with ix.mu held; they keep the
// lock-free mirrors in step with the authoritative fields.
func (ix *Indexer) setState(s State) {
	ix.state = s
	ix.stateAtom.Store(int32(s))
}

func (ix *Indexer) setTip(height uint64, hash string) {
	ix.tip = height
	ix.tipHash = hash
	ix.tipAtom.Store(height)
}

// restore loads the persisted cursor and the tip block's hash so the
// prev-hash check works across restarts.
func (ix *Indexer) restore(ctx context.Context) error {
	st, err := ix.store.SyncState(ctx)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.setTip(st.Height, "")
	if st.Height >= models.GenesisHeight {
		blk, err := ix.store.BlockByHeight(ctx, st.Height)
		if err != nil {
			return err
		}
		if blk == nil {
			return fmt.Errorf("%w: sync state at %d but block missing", models.ErrIntegrity, st.Height)
		}
		ix.setTip(st.Height, blk.Hash)
	}
	metrics.IndexedHeight.Set(float64(ix.tip))
	return nil
}

// halt freezes forward progress. Called with ix.mu held.
func (ix *Indexer) halt(err error) {
	ix.setState(StateHalted)
	ix.haltMu.Lock()
	ix.haltErr = err
	ix.haltMu.Unlock()
	metrics.Halts.Inc()
	slog.Error("indexer halted, operator action required", "err", err, "tip", ix.tip)
}
