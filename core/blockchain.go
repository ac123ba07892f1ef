// Copyright 2025 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package core implements the canonical chain of the node: an append-only
// list of blocks with their receipts, transaction lookups and a frozen copy of
// the state after every block.
// Package core 实现节点的规范链。
package core

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core/fork"
	"github.com/evmts/tevm-node/core/state"
)

var (
	headBlockGauge = metrics.NewRegisteredGauge("chain/head/block", nil)
	blockTxsMeter  = metrics.NewRegisteredMeter("chain/txs", nil)
	remoteHeaders  = metrics.NewRegisteredMeter("chain/remote/headers", nil)
)

const remoteHeaderCacheLimit = 512

// TxLookup is the position of an included transaction.
type TxLookup struct {
	BlockHash   common.Hash
	BlockNumber uint64
	Index       uint64
}

// BlockBuilder executes the next block on top of parent. It receives a
// private copy of the head state and returns the sealed block together with
// its receipts; the state it leaves behind becomes the new head state.
type BlockBuilder func(parent *types.Header, statedb *state.StateDB) (*types.Block, types.Receipts, error)

type chainSnapshot struct {
	head  uint64
	state *state.StateDB
}

// BlockChain is the canonical chain. Blocks are only ever appended by
// AppendBlock or dropped by RevertToSnapshot. There is a single writer at a
// time (writemu), readers take a copy of what they need under mu and work on
// it without holding any lock.
//
// The head state may be edited in place between blocks (WriteState); those
// edits are folded into the pre-state of the next block.
// BlockChain 是规范链。同一时间只有一个写入者，读取者在锁下复制所需数据后无锁工作。
type BlockChain struct {
	config  *params.ChainConfig
	fetcher *fork.Fetcher // Remote state below the genesis, nil if not forked

	writemu sync.Mutex   // Serializes every writer of the chain or the head state
	mu      sync.RWMutex // Guards the fields below

	genesis  *types.Block
	blocks   []*types.Block // Canonical blocks, blocks[0] is the genesis
	byHash   map[common.Hash]*types.Block
	receipts map[common.Hash]types.Receipts
	txLookup map[common.Hash]TxLookup
	states   map[common.Hash]*state.StateDB // Frozen post-state of every block
	current  *state.StateDB                 // Head state, including direct edits
	headGen  uint64                         // Bumped whenever the head block or head state changes

	snapshots    map[uint64]*chainSnapshot
	nextSnapshot uint64

	remoteMu      sync.Mutex
	remoteHeaders lru.BasicLRU[uint64, *types.Header]

	chainHeadFeed  event.Feed
	chainResetFeed event.Feed
	logsFeed       event.Feed
	scope          event.SubscriptionScope
	stopped        atomic.Bool
}

// NewBlockChain creates the chain. Without a fetcher the genesis block is
// built from the allocation. With a fetcher the remote header at the fork
// block becomes the local genesis, the local state reads through to the fork,
// and the allocation is applied on top of it.
// NewBlockChain 创建链。有分叉获取器时，远程分叉区块头部成为本地创世区块。
func NewBlockChain(ctx context.Context, genesis *Genesis, fetcher *fork.Fetcher) (*BlockChain, error) {
	if genesis == nil || genesis.Config == nil {
		return nil, fmt.Errorf("missing genesis chain config")
	}
	bc := &BlockChain{
		config:        genesis.Config,
		fetcher:       fetcher,
		byHash:        make(map[common.Hash]*types.Block),
		receipts:      make(map[common.Hash]types.Receipts),
		txLookup:      make(map[common.Hash]TxLookup),
		states:        make(map[common.Hash]*state.StateDB),
		snapshots:     make(map[uint64]*chainSnapshot),
		nextSnapshot:  1,
		remoteHeaders: lru.NewBasicLRU[uint64, *types.Header](remoteHeaderCacheLimit),
	}
	var (
		statedb *state.StateDB
		block   *types.Block
	)
	if fetcher == nil {
		statedb = state.NewEmpty()
		if err := genesis.Apply(statedb); err != nil {
			return nil, err
		}
		block = genesis.ToBlock(statedb.IntermediateRoot(false))
	} else {
		header, err := fetcher.Source().HeaderByNumber(ctx, new(big.Int).SetUint64(fetcher.Block()))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch fork block %d: %w", fetcher.Block(), err)
		}
		block = types.NewBlockWithHeader(header)
		statedb = state.NewForked(fetcher)
		statedb.SetContext(ctx)
		if err := genesis.Apply(statedb); err != nil {
			return nil, fmt.Errorf("failed to apply genesis allocation on fork: %w", err)
		}
		statedb.SetContext(context.Background())
	}
	bc.genesis = block
	bc.blocks = []*types.Block{block}
	bc.byHash[block.Hash()] = block
	bc.receipts[block.Hash()] = types.Receipts{}
	bc.states[block.Hash()] = statedb.Copy()
	bc.current = statedb

	headBlockGauge.Update(int64(block.NumberU64()))
	log.Info("Initialised chain", "chainid", bc.config.ChainID, "genesis", block.NumberU64(), "hash", block.Hash(), "forked", fetcher != nil)
	return bc, nil
}

// Config returns the chain configuration.
func (bc *BlockChain) Config() *params.ChainConfig {
	return bc.config
}

// Fetcher returns the fork fetcher, nil if the chain is not forked.
func (bc *BlockChain) Fetcher() *fork.Fetcher {
	return bc.fetcher
}

// Genesis returns the first local block.
func (bc *BlockChain) Genesis() *types.Block {
	return bc.genesis
}

// CurrentBlock returns the header of the head block.
func (bc *BlockChain) CurrentBlock() *types.Header {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	return bc.blocks[len(bc.blocks)-1].Header()
}

// CurrentFullBlock returns the head block.
func (bc *BlockChain) CurrentFullBlock() *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	return bc.blocks[len(bc.blocks)-1]
}

// localBlock returns the canonical local block at number, nil if not known.
// Callers must hold mu.
func (bc *BlockChain) localBlock(number uint64) *types.Block {
	first := bc.genesis.NumberU64()
	if number < first || number-first >= uint64(len(bc.blocks)) {
		return nil
	}
	return bc.blocks[number-first]
}

// GetBlockByNumber returns the canonical block at number. Blocks below a fork
// point are served header-only from the remote source.
func (bc *BlockChain) GetBlockByNumber(number uint64) *types.Block {
	bc.mu.RLock()
	block := bc.localBlock(number)
	bc.mu.RUnlock()

	if block != nil {
		return block
	}
	if header := bc.remoteHeader(number); header != nil {
		return types.NewBlockWithHeader(header)
	}
	return nil
}

// GetBlockByHash returns a local block by hash.
func (bc *BlockChain) GetBlockByHash(hash common.Hash) *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	return bc.byHash[hash]
}

// GetBlock returns the block with the given hash and number.
func (bc *BlockChain) GetBlock(hash common.Hash, number uint64) *types.Block {
	block := bc.GetBlockByNumber(number)
	if block == nil || block.Hash() != hash {
		return nil
	}
	return block
}

// GetHeader returns the header with the given hash and number, including
// remote headers below the fork point.
func (bc *BlockChain) GetHeader(hash common.Hash, number uint64) *types.Header {
	header := bc.GetHeaderByNumber(number)
	if header == nil || header.Hash() != hash {
		return nil
	}
	return header
}

// GetHeaderByNumber returns the canonical header at number.
func (bc *BlockChain) GetHeaderByNumber(number uint64) *types.Header {
	if block := bc.GetBlockByNumber(number); block != nil {
		return block.Header()
	}
	return nil
}

// GetHeaderByHash returns a local header by hash.
func (bc *BlockChain) GetHeaderByHash(hash common.Hash) *types.Header {
	if block := bc.GetBlockByHash(hash); block != nil {
		return block.Header()
	}
	return nil
}

// remoteHeader fetches a pre-fork header, nil when not forked or unavailable.
func (bc *BlockChain) remoteHeader(number uint64) *types.Header {
	if bc.fetcher == nil || number >= bc.genesis.NumberU64() {
		return nil
	}
	bc.remoteMu.Lock()
	header, ok := bc.remoteHeaders.Get(number)
	bc.remoteMu.Unlock()
	if ok {
		return header
	}
	header, err := bc.fetcher.Source().HeaderByNumber(context.Background(), new(big.Int).SetUint64(number))
	if err != nil {
		log.Debug("Failed to fetch remote header", "number", number, "err", err)
		return nil
	}
	remoteHeaders.Mark(1)

	bc.remoteMu.Lock()
	bc.remoteHeaders.Add(number, header)
	bc.remoteMu.Unlock()
	return header
}

// GetReceiptsByHash returns the receipts of a local block.
func (bc *BlockChain) GetReceiptsByHash(hash common.Hash) types.Receipts {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	return bc.receipts[hash]
}

// GetTransactionLookup returns the position of an included transaction.
func (bc *BlockChain) GetTransactionLookup(hash common.Hash) (TxLookup, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	entry, ok := bc.txLookup[hash]
	return entry, ok
}

// HasTransaction reports whether the transaction is part of the chain.
func (bc *BlockChain) HasTransaction(hash common.Hash) bool {
	_, ok := bc.GetTransactionLookup(hash)
	return ok
}

// GetTransaction returns an included transaction and its position.
func (bc *BlockChain) GetTransaction(hash common.Hash) (*types.Transaction, TxLookup, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	entry, ok := bc.txLookup[hash]
	if !ok {
		return nil, TxLookup{}, false
	}
	block := bc.byHash[entry.BlockHash]
	return block.Transactions()[entry.Index], entry, true
}

// GetReceipt returns the receipt of an included transaction.
func (bc *BlockChain) GetReceipt(hash common.Hash) (*types.Receipt, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	entry, ok := bc.txLookup[hash]
	if !ok {
		return nil, false
	}
	return bc.receipts[entry.BlockHash][entry.Index], true
}

// StateCopy returns a private copy of the head state, including edits made
// since the head block. Copying is O(1).
// StateCopy 返回头部状态的私有副本，复制是 O(1) 的。
func (bc *BlockChain) StateCopy() *state.StateDB {
	// Cloning touches the copy-on-write context of the source, so it needs
	// the exclusive lock even though the source is logically unchanged.
	bc.mu.Lock()
	defer bc.mu.Unlock()

	return bc.current.Copy()
}

// HeadState returns the head header together with a private copy of the head
// state, read atomically.
func (bc *BlockChain) HeadState() (*types.Header, *state.StateDB) {
	header, statedb, _ := bc.HeadStateGeneration()
	return header, statedb
}

// HeadStateGeneration is HeadState that also returns the head generation the
// state belongs to.
func (bc *BlockChain) HeadStateGeneration() (*types.Header, *state.StateDB, uint64) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	return bc.blocks[len(bc.blocks)-1].Header(), bc.current.Copy(), bc.headGen
}

// Generation returns a counter that increases every time the head block or
// the head state changes.
func (bc *BlockChain) Generation() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	return bc.headGen
}

// StateAt returns a private copy of the state after the given block. The head
// number resolves to the head state. Numbers below the fork point read through
// to the remote chain at that block.
// StateAt 返回给定区块之后状态的私有副本。
func (bc *BlockChain) StateAt(number uint64) (*state.StateDB, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	head := bc.blocks[len(bc.blocks)-1]
	if number == head.NumberU64() {
		return bc.current.Copy(), nil
	}
	if block := bc.localBlock(number); block != nil {
		return bc.states[block.Hash()].Copy(), nil
	}
	if bc.fetcher != nil && number < bc.genesis.NumberU64() {
		return state.NewForked(bc.fetcher.At(number)), nil
	}
	return nil, fmt.Errorf("%w: state of block %d", ErrUnknownBlock, number)
}

// AppendBlock builds the next block with a copy of the head state and appends
// it. Nothing is written if build fails.
// AppendBlock 用头部状态的副本构建下一个区块并追加。
func (bc *BlockChain) AppendBlock(build BlockBuilder) (*types.Block, types.Receipts, error) {
	bc.writemu.Lock()
	defer bc.writemu.Unlock()

	if bc.stopped.Load() {
		return nil, nil, ErrChainClosed
	}
	parent := bc.CurrentBlock()
	statedb := bc.StateCopy()

	block, receipts, err := build(parent, statedb)
	if err != nil {
		return nil, nil, err
	}
	if block.ParentHash() != parent.Hash() || block.NumberU64() != parent.Number.Uint64()+1 {
		return nil, nil, fmt.Errorf("%w: number %d parent %x", ErrNonContiguous, block.NumberU64(), block.ParentHash())
	}
	statedb.ClearLogs()

	bc.mu.Lock()
	bc.blocks = append(bc.blocks, block)
	bc.byHash[block.Hash()] = block
	bc.receipts[block.Hash()] = receipts
	for i, tx := range block.Transactions() {
		bc.txLookup[tx.Hash()] = TxLookup{BlockHash: block.Hash(), BlockNumber: block.NumberU64(), Index: uint64(i)}
	}
	bc.states[block.Hash()] = statedb.Copy()
	bc.current = statedb
	bc.headGen++
	bc.mu.Unlock()

	headBlockGauge.Update(int64(block.NumberU64()))
	blockTxsMeter.Mark(int64(len(block.Transactions())))

	var logs []*types.Log
	for _, receipt := range receipts {
		logs = append(logs, receipt.Logs...)
	}
	bc.chainHeadFeed.Send(ChainHeadEvent{Block: block, Receipts: receipts})
	if len(logs) > 0 {
		bc.logsFeed.Send(logs)
	}
	return block, receipts, nil
}

// WriteState edits the head state without producing a block. The edit is
// applied to a copy which only replaces the head state if fn succeeds and no
// remote read failed.
// WriteState 在不产生区块的情况下编辑头部状态。
func (bc *BlockChain) WriteState(fn func(statedb *state.StateDB) error) error {
	bc.writemu.Lock()
	defer bc.writemu.Unlock()

	if bc.stopped.Load() {
		return ErrChainClosed
	}
	statedb := bc.StateCopy()
	if err := fn(statedb); err != nil {
		return err
	}
	statedb.Finalise(false)
	if err := statedb.Error(); err != nil {
		return err
	}
	bc.mu.Lock()
	bc.current = statedb
	bc.headGen++
	head := bc.blocks[len(bc.blocks)-1].Header()
	bc.mu.Unlock()

	bc.chainResetFeed.Send(ChainResetEvent{Header: head})
	return nil
}

// Snapshot records the head and the head state, returning an id to revert to.
func (bc *BlockChain) Snapshot() uint64 {
	bc.writemu.Lock()
	defer bc.writemu.Unlock()

	bc.mu.Lock()
	defer bc.mu.Unlock()

	id := bc.nextSnapshot
	bc.nextSnapshot++
	bc.snapshots[id] = &chainSnapshot{
		head:  bc.blocks[len(bc.blocks)-1].NumberU64(),
		state: bc.current.Copy(),
	}
	return id
}

// RevertToSnapshot drops every block above the snapshot head and restores the
// head state. The snapshot and all snapshots taken after it are consumed.
// The transactions of the dropped blocks are returned so that callers may put
// them back into the pool.
// RevertToSnapshot 丢弃快照头部之上的所有区块并恢复头部状态。
func (bc *BlockChain) RevertToSnapshot(id uint64) ([]*types.Transaction, error) {
	bc.writemu.Lock()
	defer bc.writemu.Unlock()

	bc.mu.Lock()
	snap, ok := bc.snapshots[id]
	if !ok {
		bc.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	for sid := range bc.snapshots {
		if sid >= id {
			delete(bc.snapshots, sid)
		}
	}
	var dropped []*types.Transaction
	keep := snap.head - bc.genesis.NumberU64() + 1
	for _, block := range bc.blocks[keep:] {
		hash := block.Hash()
		for _, tx := range block.Transactions() {
			delete(bc.txLookup, tx.Hash())
			dropped = append(dropped, tx)
		}
		delete(bc.byHash, hash)
		delete(bc.receipts, hash)
		delete(bc.states, hash)
	}
	bc.blocks = bc.blocks[:keep]
	bc.current = snap.state
	bc.headGen++
	head := bc.blocks[len(bc.blocks)-1].Header()
	bc.mu.Unlock()

	headBlockGauge.Update(int64(head.Number.Uint64()))
	log.Info("Reverted chain to snapshot", "id", id, "number", head.Number, "dropped", len(dropped))
	bc.chainResetFeed.Send(ChainResetEvent{Header: head})
	return dropped, nil
}

// SubscribeChainHeadEvent registers a subscription of ChainHeadEvent.
func (bc *BlockChain) SubscribeChainHeadEvent(ch chan<- ChainHeadEvent) event.Subscription {
	return bc.scope.Track(bc.chainHeadFeed.Subscribe(ch))
}

// SubscribeChainResetEvent registers a subscription of ChainResetEvent.
func (bc *BlockChain) SubscribeChainResetEvent(ch chan<- ChainResetEvent) event.Subscription {
	return bc.scope.Track(bc.chainResetFeed.Subscribe(ch))
}

// SubscribeLogsEvent registers a subscription of the logs of new blocks.
func (bc *BlockChain) SubscribeLogsEvent(ch chan<- []*types.Log) event.Subscription {
	return bc.scope.Track(bc.logsFeed.Subscribe(ch))
}

// Stop ends all subscriptions and rejects further writes.
func (bc *BlockChain) Stop() {
	if !bc.stopped.CompareAndSwap(false, true) {
		return
	}
	bc.writemu.Lock()
	bc.scope.Close()
	bc.writemu.Unlock()
	log.Info("Blockchain stopped")
}
