package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/computechain/explorer/pkg/aggregate"
	"github.com/computechain/explorer/pkg/db/models"
	"github.com/computechain/explorer/pkg/rpc"
)

// --- fixtures ---

func blockHash(seed string, height uint64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", seed, height)))
	return hex.EncodeToString(sum[:])
}

// buildChain produces a linked chain segment [from..to]. parentHash is the
// hash of the block at from-1, or empty at genesis. Each block carries one
// UNSTAKE credit of amount to a height-derived address so balance effects
// are easy to predict.
func buildChain(parentHash, seed string, from, to uint64, amount int64) ([]*models.Block, map[uint64][]*models.Transaction) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var blocks []*models.Block
	txs := make(map[uint64][]*models.Transaction)
	prev := parentHash
	for h := from; h <= to; h++ {
		b := &models.Block{
			Height:   h,
			Hash:     blockHash(seed, h),
			PrevHash: prev,
			Time:     base.Add(time.Duration(h) * time.Second),
			NumTxs:   1,
		}
		blocks = append(blocks, b)
		txs[h] = []*models.Transaction{{
			Hash:   blockHash(seed+"/tx", h),
			Height: h,
			Type:   models.TxUnstake,
			Sender: fmt.Sprintf("acct%d", h%3),
			Amount: big.NewInt(amount),
			Fee:    big.NewInt(1),
			Nonce:  0,
		}}
		prev = b.Hash
	}
	return blocks, txs
}

type fakeNode struct {
	mu       sync.Mutex
	head     uint64
	headErr  error
	blockErr error
	blocks   map[uint64]*models.Block
	txs      map[uint64][]*models.Transaction

	// blockHook, when set, runs at the start of every BlockByHeight.
	blockHook func(height uint64)
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		blocks: make(map[uint64]*models.Block),
		txs:    make(map[uint64][]*models.Transaction),
	}
}

func (n *fakeNode) setChain(blocks []*models.Block, txs map[uint64][]*models.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, b := range blocks {
		n.blocks[b.Height] = b
		n.txs[b.Height] = txs[b.Height]
		if b.Height > n.head {
			n.head = b.Height
		}
	}
}

func (n *fakeNode) truncate(head uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for h := range n.blocks {
		if h > head {
			delete(n.blocks, h)
			delete(n.txs, h)
		}
	}
	n.head = head
}

// dropBlock removes a single height without moving the advertised head,
// the way a node mid-restart serves 404s for blocks it still claims.
func (n *fakeNode) dropBlock(height uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.blocks, height)
	delete(n.txs, height)
}

func (n *fakeNode) ChainHead(ctx context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.headErr != nil {
		return 0, n.headErr
	}
	return n.head, nil
}

func (n *fakeNode) BlockByHeight(ctx context.Context, height uint64) (*models.Block, []*models.Transaction, error) {
	if n.blockHook != nil {
		n.blockHook(height)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.blockErr != nil {
		return nil, nil, n.blockErr
	}
	b, ok := n.blocks[height]
	if !ok {
		return nil, nil, fmt.Errorf("height %d: %w", height, rpc.ErrNotFound)
	}
	cp := *b
	return &cp, n.txs[height], nil
}

type fakeStore struct {
	mu       sync.Mutex
	blocks   map[uint64]*models.Block
	txs      map[uint64][]*models.Transaction
	balances map[string]*big.Int
	sync     models.SyncState
	reorgs   []models.ReorgEvent

	// writers counts goroutines currently inside a write path; it must
	// never exceed one.
	writers    atomic.Int32
	maxWriters atomic.Int32
}

// enterWrite records a concurrent writer, observable without the store lock.
func (s *fakeStore) enterWrite() func() {
	n := s.writers.Add(1)
	for {
		max := s.maxWriters.Load()
		if n <= max || s.maxWriters.CompareAndSwap(max, n) {
			break
		}
	}
	return func() { s.writers.Add(-1) }
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blocks:   make(map[uint64]*models.Block),
		txs:      make(map[uint64][]*models.Transaction),
		balances: make(map[string]*big.Int),
	}
}

func (s *fakeStore) SyncState(ctx context.Context) (models.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync, nil
}

func (s *fakeStore) BlockByHeight(ctx context.Context, height uint64) (*models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[height]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) BlocksFrom(ctx context.Context, from uint64) ([]*models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Block
	for h, b := range s.blocks {
		if h >= from {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out, nil
}

func (s *fakeStore) TransactionsByHeight(ctx context.Context, height uint64) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[height], nil
}

func (s *fakeStore) RecentBlocks(ctx context.Context, limit int) ([]*models.Block, error) {
	all, _ := s.BlocksFrom(ctx, 0)
	sort.Slice(all, func(i, j int) bool { return all[i].Height > all[j].Height })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// applyBalances stages the balance changes and rejects the whole batch if
// any account would go negative, the way the database CHECK constraint does.
func (s *fakeStore) applyBalances(deltas map[string]*aggregate.Delta) error {
	staged := make(map[string]*big.Int, len(deltas))
	for addr, d := range deltas {
		cur, ok := s.balances[addr]
		if !ok {
			cur = new(big.Int)
		}
		next := new(big.Int).Add(cur, d.Balance)
		if next.Sign() < 0 {
			return fmt.Errorf("account %s balance would go negative: %w", addr, models.ErrIntegrity)
		}
		staged[addr] = next
	}
	for addr, next := range staged {
		s.balances[addr] = next
	}
	return nil
}

func (s *fakeStore) CommitBlock(ctx context.Context, block *models.Block, txs []*models.Transaction, deltas *aggregate.BlockDeltas) error {
	defer s.enterWrite()()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyBalances(deltas.Accounts); err != nil {
		return err
	}
	cp := *block
	s.blocks[block.Height] = &cp
	s.txs[block.Height] = txs
	s.sync = models.SyncState{Height: block.Height, UpdatedAt: time.Now()}
	return nil
}

func (s *fakeStore) RollbackTo(ctx context.Context, height uint64, reverts map[string]*aggregate.Delta) error {
	defer s.enterWrite()()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyBalances(reverts); err != nil {
		return err
	}
	for h := range s.blocks {
		if h >= height {
			delete(s.blocks, h)
			delete(s.txs, h)
		}
	}
	s.sync = models.SyncState{Height: height - 1, UpdatedAt: time.Now()}
	return nil
}

func (s *fakeStore) RecordReorg(ctx context.Context, ev models.ReorgEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reorgs = append(s.reorgs, ev)
	return nil
}

func (s *fakeStore) balance(addr string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[addr]
	if !ok {
		return 0
	}
	return b.Int64()
}

// --- tests ---

func TestPollTickCatchesUp(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	blocks, txs := buildChain("", "a", 1, 5, 10)
	node.setChain(blocks, txs)

	ix := New(node, store, Config{})
	ix.PollTick(ctx)

	assert.Equal(t, uint64(5), ix.Tip())
	assert.Equal(t, StateSynced, ix.State())
	assert.Equal(t, uint64(5), store.sync.Height)

	// Heights 1..5 each credit 10 to acct(h%3).
	assert.Equal(t, int64(20), store.balance("acct0")) // h=3
	assert.Equal(t, int64(20), store.balance("acct1")) // h=1,4
	assert.Equal(t, int64(20), store.balance("acct2")) // h=2,5
}

func TestCommittedChainLinksBackToGenesis(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	blocks, txs := buildChain("", "a", 1, 40, 10)
	node.setChain(blocks, txs)

	ix := New(node, store, Config{})
	ix.PollTick(ctx)
	require.Equal(t, uint64(40), ix.Tip())

	// Walk the stored prev-hash chain from the tip down to genesis.
	cur, err := store.BlockByHeight(ctx, ix.Tip())
	require.NoError(t, err)
	require.NotNil(t, cur)
	for cur.Height > models.GenesisHeight {
		parent, err := store.BlockByHeight(ctx, cur.Height-1)
		require.NoError(t, err)
		require.NotNil(t, parent, cur.Height-1)
		require.Equal(t, parent.Hash, cur.PrevHash, "chain broken at %d", cur.Height)
		cur = parent
	}
	assert.Equal(t, models.GenesisHeight, cur.Height)
	assert.Empty(t, cur.PrevHash)
}

func TestPollTickStopsOnUnservedBlock(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	blocks, txs := buildChain("", "a", 1, 3, 10)
	node.setChain(blocks, txs)
	node.mu.Lock()
	node.head = 5 // advertised ahead of what it serves
	node.mu.Unlock()

	ix := New(node, store, Config{})
	ix.PollTick(ctx)

	assert.Equal(t, uint64(3), ix.Tip())
	assert.Equal(t, StateCatchingUp, ix.State())
	assert.Nil(t, ix.HaltReason())
}

func TestPollTickNodeUnavailable(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	node.headErr = rpc.ErrUnavailable
	store := newFakeStore()

	ix := New(node, store, Config{})
	ix.PollTick(ctx)

	assert.Equal(t, uint64(0), ix.Tip())
	assert.Nil(t, ix.HaltReason())
}

func TestStatusReadsDoNotBlockDuringCatchUp(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	blocks, txs := buildChain("", "a", 1, 40, 10)
	node.setChain(blocks, txs)

	// Slow every block fetch down so the catch-up cycle holds the write
	// mutex for a while; close started on the first fetch.
	started := make(chan struct{})
	var once sync.Once
	node.blockHook = func(uint64) {
		once.Do(func() { close(started) })
		time.Sleep(10 * time.Millisecond)
	}

	ix := New(node, store, Config{})
	done := make(chan struct{})
	go func() {
		ix.PollTick(ctx)
		close(done)
	}()
	<-started

	read := make(chan State, 1)
	go func() {
		ix.Tip()
		_ = ix.HaltReason()
		read <- ix.State()
	}()
	select {
	case s := <-read:
		assert.Equal(t, StateCatchingUp, s)
	case <-time.After(250 * time.Millisecond):
		t.Fatal("status read blocked behind the catch-up cycle")
	}

	<-done
	assert.Equal(t, uint64(40), ix.Tip())
	assert.Equal(t, StateSynced, ix.State())
}

func TestPollTickRollsBackOnParentMismatch(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	chainA, txsA := buildChain("", "a", 1, 20, 10)
	node.setChain(chainA, txsA)

	ix := New(node, store, Config{})
	ix.PollTick(ctx)
	require.Equal(t, uint64(20), ix.Tip())

	// Between ticks the node replaces its tip: heights 20..21 rebuilt on
	// the block at 19.
	node.truncate(19)
	chainB, txsB := buildChain(chainA[18].Hash, "b", 20, 21, 15)
	node.setChain(chainB, txsB)

	// The next tick fetches block 21, sees a parent that is not our
	// block 20, and rolls the stale tip back.
	ix.PollTick(ctx)
	require.Equal(t, uint64(19), ix.Tip())
	require.Len(t, store.reorgs, 1)
	assert.Equal(t, uint64(20), store.reorgs[0].Height)
	assert.Equal(t, uint64(1), store.reorgs[0].Depth)
	assert.Equal(t, chainA[19].Hash, store.reorgs[0].OldHash)
	assert.Equal(t, chainB[0].Hash, store.reorgs[0].NewHash)

	// The tick after that re-syncs onto the new branch.
	ix.PollTick(ctx)
	assert.Equal(t, uint64(21), ix.Tip())
	assert.Equal(t, StateSynced, ix.State())

	got, err := store.BlockByHeight(ctx, 20)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, chainB[0].Hash, got.Hash)
}

func TestResyncRollsBackShortReorg(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	chainA, txsA := buildChain("", "a", 1, 100, 10)
	node.setChain(chainA, txsA)

	ix := New(node, store, Config{ResyncDepth: 10})
	ix.PollTick(ctx)
	require.Equal(t, uint64(100), ix.Tip())

	// The node reorganizes: heights 95..103 rebuilt on the block at 94.
	parent := chainA[93].Hash
	chainB, txsB := buildChain(parent, "b", 95, 103, 20)
	node.truncate(94)
	node.setChain(chainB, txsB)

	ix.ResyncTick(ctx)

	assert.Equal(t, uint64(94), ix.Tip())
	assert.Equal(t, StateCatchingUp, ix.State())
	require.Len(t, store.reorgs, 1)
	assert.Equal(t, uint64(95), store.reorgs[0].Height)
	assert.Equal(t, uint64(6), store.reorgs[0].Depth)
	assert.Equal(t, chainA[94].Hash, store.reorgs[0].OldHash)

	ix.PollTick(ctx)

	assert.Equal(t, uint64(103), ix.Tip())
	assert.Equal(t, StateSynced, ix.State())

	// Stored hashes at the reorged heights are the replacement chain's.
	for h := uint64(95); h <= 103; h++ {
		b, err := store.BlockByHeight(ctx, h)
		require.NoError(t, err)
		require.NotNil(t, b, h)
		assert.Equal(t, blockHash("b", h), b.Hash)
	}

	// Balances equal a clean replay of the final chain: credits of 10 for
	// heights 1..94 and 20 for 95..103, no residue from the orphaned arm.
	want := map[string]int64{}
	for h := uint64(1); h <= 94; h++ {
		want[fmt.Sprintf("acct%d", h%3)] += 10
	}
	for h := uint64(95); h <= 103; h++ {
		want[fmt.Sprintf("acct%d", h%3)] += 20
	}
	for addr, w := range want {
		assert.Equal(t, w, store.balance(addr), addr)
	}

	store.mu.Lock()
	for addr, b := range store.balances {
		assert.GreaterOrEqual(t, b.Sign(), 0, addr)
	}
	store.mu.Unlock()
}

func TestResyncHaltsBeyondLookback(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	chainA, txsA := buildChain("", "a", 1, 100, 10)
	node.setChain(chainA, txsA)

	ix := New(node, store, Config{ResyncDepth: 10})
	ix.PollTick(ctx)
	require.Equal(t, uint64(100), ix.Tip())

	// Fork at 80, far below the 10-block window.
	parent := chainA[78].Hash
	chainB, txsB := buildChain(parent, "b", 80, 101, 20)
	node.truncate(79)
	node.setChain(chainB, txsB)

	ix.ResyncTick(ctx)

	assert.Equal(t, StateHalted, ix.State())
	assert.ErrorIs(t, ix.HaltReason(), ErrReorgBeyondLookback)
	assert.Equal(t, uint64(100), ix.Tip()) // nothing was rolled back

	// Poll ticks are inert while halted.
	ix.PollTick(ctx)
	assert.Equal(t, uint64(100), ix.Tip())

	// Operator resync over the full chain clears the halt and recovers.
	ix.ForceResync(ctx, 0)
	assert.Nil(t, ix.HaltReason())
	assert.Equal(t, uint64(79), ix.Tip())

	ix.PollTick(ctx)
	assert.Equal(t, uint64(101), ix.Tip())
	assert.Equal(t, StateSynced, ix.State())
}

func TestResyncRollsBackOnHeadRegression(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	chainA, txsA := buildChain("", "a", 1, 100, 10)
	node.setChain(chainA, txsA)

	ix := New(node, store, Config{ResyncDepth: 10})
	ix.PollTick(ctx)
	require.Equal(t, uint64(100), ix.Tip())

	// The node's chain shortens without changing surviving hashes.
	node.truncate(97)

	ix.ResyncTick(ctx)

	assert.Equal(t, uint64(97), ix.Tip())
	require.Len(t, store.reorgs, 1)
	assert.Equal(t, uint64(98), store.reorgs[0].Height)
	assert.Equal(t, uint64(3), store.reorgs[0].Depth)
}

func TestResyncSoftFailsWhenNodeUnavailable(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	blocks, txs := buildChain("", "a", 1, 20, 10)
	node.setChain(blocks, txs)

	ix := New(node, store, Config{ResyncDepth: 10})
	ix.PollTick(ctx)
	prev := ix.State()

	node.mu.Lock()
	node.headErr = rpc.ErrUnavailable
	node.mu.Unlock()

	ix.ResyncTick(ctx)

	assert.Equal(t, prev, ix.State())
	assert.Equal(t, uint64(20), ix.Tip())
	assert.Empty(t, store.reorgs)
}

func TestResyncCleanWindowIsNoop(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	blocks, txs := buildChain("", "a", 1, 50, 10)
	node.setChain(blocks, txs)

	ix := New(node, store, Config{ResyncDepth: 10})
	ix.PollTick(ctx)
	ix.ResyncTick(ctx)

	assert.Equal(t, uint64(50), ix.Tip())
	assert.Empty(t, store.reorgs)
	assert.Equal(t, StateSynced, ix.State())
}

func TestResyncSkipsUnservedBlockInWindow(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	blocks, txs := buildChain("", "a", 1, 20, 10)
	node.setChain(blocks, txs)

	ix := New(node, store, Config{ResyncDepth: 10})
	ix.PollTick(ctx)
	require.Equal(t, uint64(20), ix.Tip())

	// The node momentarily 404s one height inside the window while
	// still advertising head 20. Surrounding hashes match, so nothing
	// diverged and nothing may be rolled back.
	node.dropBlock(15)

	ix.ResyncTick(ctx)

	assert.Equal(t, uint64(20), ix.Tip())
	assert.Empty(t, store.reorgs)
	assert.Equal(t, StateSynced, ix.State())

	got, err := store.BlockByHeight(ctx, 15)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestCommitIntegrityFaultHalts(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	blocks, txs := buildChain("", "a", 1, 2, 10)
	// Height 2 spends from an account with no funds.
	txs[2] = []*models.Transaction{{
		Hash:   "overspend",
		Height: 2,
		Type:   models.TxTransfer,
		Sender: "nobody",
		Amount: big.NewInt(1000),
		Fee:    big.NewInt(0),
	}}
	node.setChain(blocks, txs)

	ix := New(node, store, Config{})
	ix.PollTick(ctx)

	assert.Equal(t, uint64(1), ix.Tip())
	assert.Equal(t, StateHalted, ix.State())
	assert.ErrorIs(t, ix.HaltReason(), models.ErrIntegrity)
}

func TestRunRestoresCursor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	node := newFakeNode()
	store := newFakeStore()

	blocks, txs := buildChain("", "a", 1, 7, 10)
	node.setChain(blocks, txs)

	// Seed the store as if a previous run indexed up to 7.
	for _, b := range blocks {
		require.NoError(t, store.CommitBlock(ctx, b, txs[b.Height], aggregate.ApplyBlock(b, txs[b.Height])))
	}

	ix := New(node, store, Config{})
	require.NoError(t, ix.Run(ctx))
	assert.Equal(t, uint64(7), ix.Tip())
}

func TestRunFailsOnMissingTipBlock(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()
	store.sync = models.SyncState{Height: 5}

	ix := New(node, store, Config{})
	err := ix.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrIntegrity)
}

func TestNudgeNeverBlocks(t *testing.T) {
	ix := New(newFakeNode(), newFakeStore(), Config{})
	for i := 0; i < 10; i++ {
		ix.Nudge()
	}
}

func TestTicksSerialize(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode()
	store := newFakeStore()

	blocks, txs := buildChain("", "a", 1, 30, 10)
	node.setChain(blocks, txs)

	ix := New(node, store, Config{ResyncDepth: 10})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				ix.PollTick(ctx)
				ix.ResyncTick(ctx)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(30), ix.Tip())
	assert.Empty(t, store.reorgs)
	assert.LessOrEqual(t, store.maxWriters.Load(), int32(1), "write paths overlapped")
}
