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

// Package optimistic maintains the speculative pending state of the node: the
// head state with every executable pooled transaction applied on top.
//
// The overlay is recomputed from scratch on a fresh copy of the head state
// whenever the pool or the head changes. A single worker performs the
// recomputations, so they never interleave; triggers that arrive while one is
// running coalesce into a single follow-up run.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/execution"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
)

// ErrClosed is returned by State after the overlay was closed.
var ErrClosed = errors.New("optimistic overlay closed")

var (
	recomputeTimer  = metrics.NewRegisteredTimer("optimistic/recompute", nil)
	recomputeFailed = metrics.NewRegisteredMeter("optimistic/failed", nil)
	skippedTxMeter  = metrics.NewRegisteredMeter("optimistic/skipped", nil)
)

// Status is the state of the overlay state machine.
type Status int

const (
	Idle      Status = iota // Nothing published, or the last run failed
	Computing               // A recomputation is running
	Published               // The latest run succeeded
)

func (s Status) String() string {
	switch s {
	case Computing:
		return "computing"
	case Published:
		return "published"
	}
	return "idle"
}

// HeaderBuilder assembles the header of the pending block.
type HeaderBuilder interface {
	PendingHeader(parent *types.Header) *types.Header
}

// defaultHeader is used without a HeaderBuilder: the next block one second
// after its parent with the same gas limit.
type defaultHeader struct{ chain *core.BlockChain }

func (h defaultHeader) PendingHeader(parent *types.Header) *types.Header {
	return core.MakeHeader(h.chain.Config(), parent, core.HeaderParams{
		Time:     parent.Time + 1,
		GasLimit: parent.GasLimit,
	})
}

// SkippedTx is a pooled transaction that failed its consensus pre-checks
// during replay.
type SkippedTx struct {
	Tx  *txpool.Transaction
	Err error
}

// Snapshot is the result of one recomputation. A snapshot is immutable once
// published; its state is only handed out as copies.
// Snapshot 是一次重新计算的结果，发布后不可变。
type Snapshot struct {
	Block    *types.Block // Pending block, nil if the run failed
	Receipts types.Receipts
	Txs      []*txpool.Transaction // Replayed transactions, in block order
	Skipped  []SkippedTx
	Err      error // Set if the run aborted

	seq        uint64 // Recomputation counter
	version    uint64 // Pool version replayed
	generation uint64 // Head generation replayed on

	mu    sync.Mutex
	state *state.StateDB
}

// Version returns the pool version the snapshot reflects.
func (s *Snapshot) Version() uint64 { return s.version }

// StateCopy returns a private copy of the pending state.
func (s *Snapshot) StateCopy() *state.StateDB {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return nil
	}
	return s.state.Copy()
}

// Event is posted for every finished recomputation, successful or not.
type Event struct {
	Snapshot *Snapshot
}

// Overlay maintains the optimistic pending state.
// Overlay 维护乐观的待处理状态。
type Overlay struct {
	chain  *core.BlockChain
	pool   *txpool.TxPool
	header HeaderBuilder

	trigger chan struct{} // Pending recomputation request, capacity one

	mu        sync.Mutex
	status    Status
	latest    *Snapshot
	published chan struct{} // Closed and replaced on every publish
	seq       uint64

	feed  event.Feed
	scope event.SubscriptionScope

	ctx    context.Context // Cancelled on Close, aborts remote reads
	cancel context.CancelFunc
	quit   chan struct{}
	wg     sync.WaitGroup
}

// New creates an overlay tracking the chain and the pool, and starts the
// first recomputation. A nil header builder mines the pending block one
// second after its parent.
func New(chain *core.BlockChain, pool *txpool.TxPool, header HeaderBuilder) *Overlay {
	if header == nil {
		header = defaultHeader{chain}
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Overlay{
		chain:     chain,
		pool:      pool,
		header:    header,
		trigger:   make(chan struct{}, 1),
		published: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		quit:      make(chan struct{}),
	}
	var (
		txCh    = make(chan txpool.TxEvent, 16)
		headCh  = make(chan core.ChainHeadEvent, 16)
		resetCh = make(chan core.ChainResetEvent, 16)
		subs    = []event.Subscription{
			pool.SubscribeTxEvents(txCh),
			chain.SubscribeChainHeadEvent(headCh),
			chain.SubscribeChainResetEvent(resetCh),
		}
	)
	o.wg.Add(2)
	go o.eventLoop(subs, txCh, headCh, resetCh)
	go o.computeLoop()

	o.Trigger()
	return o
}

// Close stops the overlay. Running recomputations are aborted.
func (o *Overlay) Close() {
	select {
	case <-o.quit:
		return
	default:
	}
	close(o.quit)
	o.cancel()
	o.scope.Close()
	o.wg.Wait()
}

// Trigger requests a recomputation. Requests made while one is pending
// coalesce.
func (o *Overlay) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Status returns the current state of the overlay.
func (o *Overlay) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.status
}

// Latest returns the last finished snapshot without waiting, nil if there is
// none yet.
func (o *Overlay) Latest() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.latest
}

// SubscribeSnapshots registers a subscription of finished recomputations.
func (o *Overlay) SubscribeSnapshots(ch chan<- Event) event.Subscription {
	return o.scope.Track(o.feed.Subscribe(ch))
}

// State returns a snapshot that reflects at least the pool contents and the
// head at the time of the call, waiting for a recomputation if needed. A
// failed latest run is retried once before its error is returned.
// State 返回至少反映调用时交易池内容和链头的快照。
func (o *Overlay) State(ctx context.Context) (*Snapshot, error) {
	var (
		version    = o.pool.Version()
		generation = o.chain.Generation()
		minSeq     uint64
	)
	o.mu.Lock()
	if o.latest != nil && o.latest.Err != nil {
		minSeq = o.latest.seq + 1
	}
	o.mu.Unlock()

	for {
		o.mu.Lock()
		snap, published := o.latest, o.published
		o.mu.Unlock()

		if snap != nil && snap.seq >= minSeq && snap.version >= version && snap.generation >= generation {
			if snap.Err != nil {
				return nil, snap.Err
			}
			return snap, nil
		}
		o.Trigger()
		select {
		case <-published:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-o.quit:
			return nil, ErrClosed
		}
	}
}

// PendingState returns the pending header with a private copy of the pending
// state.
func (o *Overlay) PendingState(ctx context.Context) (*types.Header, *state.StateDB, error) {
	snap, err := o.State(ctx)
	if err != nil {
		return nil, nil, err
	}
	return snap.Block.Header(), snap.StateCopy(), nil
}

func (o *Overlay) eventLoop(subs []event.Subscription, txCh chan txpool.TxEvent, headCh chan core.ChainHeadEvent, resetCh chan core.ChainResetEvent) {
	defer o.wg.Done()
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()
	errc := make(chan error, len(subs))
	for _, sub := range subs {
		go func(sub event.Subscription) {
			if err, ok := <-sub.Err(); ok {
				errc <- err
			}
		}(sub)
	}
	for {
		select {
		case <-txCh:
			o.Trigger()
		case <-headCh:
			o.Trigger()
		case <-resetCh:
			o.Trigger()
		case err := <-errc:
			log.Warn("Optimistic overlay subscription failed", "err", err)
			return
		case <-o.quit:
			return
		}
	}
}

func (o *Overlay) computeLoop() {
	defer o.wg.Done()

	for {
		select {
		case <-o.trigger:
			o.publish(o.recompute())
		case <-o.quit:
			return
		}
	}
}

// recompute replays the executable pool contents on a fresh copy of the head
// state. It never touches the canonical state or the pool.
func (o *Overlay) recompute() (snap *Snapshot) {
	defer func(start time.Time) { recomputeTimer.UpdateSince(start) }(time.Now())

	o.mu.Lock()
	o.status = Computing
	o.seq++
	// Lower bounds until the replayed versions are known, so that even a
	// panicking run answers the State calls that triggered it.
	snap = &Snapshot{seq: o.seq, version: o.pool.Version(), generation: o.chain.Generation()}
	o.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			snap.Err = fmt.Errorf("optimistic recomputation panicked: %v", r)
			snap.Block, snap.state = nil, nil
		}
	}()
	// A fresh copy shares no speculative writes with earlier runs.
	parent, statedb, generation := o.chain.HeadStateGeneration()
	statedb.SetContext(o.ctx)
	defer statedb.SetContext(context.Background())

	var (
		config  = o.chain.Config()
		header  = o.header.PendingHeader(parent)
		env     = execution.NewEnv(config, o.chain, header)
		gp      = new(gethcore.GasPool).AddGas(header.GasLimit)
		usedGas uint64
	)
	txs, version := o.pool.Snapshot(header.BaseFee)
	snap.version, snap.generation = version, generation

	var included []*types.Transaction
	for _, tx := range txs {
		receipt, err := execution.ApplyTransaction(env, statedb, gp, tx, len(snap.Receipts), &usedGas)
		if err != nil {
			if errors.Is(err, execution.ErrStateUnavailable) {
				snap.Err = err
				return snap
			}
			skippedTxMeter.Mark(1)
			snap.Skipped = append(snap.Skipped, SkippedTx{Tx: tx, Err: err})
			continue
		}
		snap.Txs = append(snap.Txs, tx)
		snap.Receipts = append(snap.Receipts, receipt)
		included = append(included, tx.Tx)
	}
	root := statedb.IntermediateRoot(config.IsEIP158(header.Number))
	if err := statedb.Error(); err != nil {
		snap.Err = fmt.Errorf("%w: %w", execution.ErrStateUnavailable, err)
		return snap
	}
	snap.Block = core.SealBlock(config, header, root, included, snap.Receipts)
	snap.state = statedb
	return snap
}

func (o *Overlay) publish(snap *Snapshot) {
	o.mu.Lock()
	if snap.Err != nil {
		o.status = Idle
		recomputeFailed.Mark(1)
		log.Warn("Optimistic recomputation failed", "version", snap.version, "err", snap.Err)
	} else {
		o.status = Published
		log.Debug("Published optimistic state", "number", snap.Block.Number(), "txs", len(snap.Txs), "skipped", len(snap.Skipped), "version", snap.version)
	}
	o.latest = snap
	close(o.published)
	o.published = make(chan struct{})
	o.mu.Unlock()

	o.feed.Send(Event{Snapshot: snap})
}
