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

// Package txpool implements the pending transaction pool of the node.
package txpool

import (
	"container/heap"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core/state"
	"github.com/holiman/uint256"
)

const (
	// txSlotSize is used to calculate how many data slots a single transaction
	// takes up based on its size.
	txSlotSize = 32 * 1024

	// txMaxSize is the maximum size a single transaction can have.
	txMaxSize = 4 * txSlotSize // 128KB
)

var (
	pendingGauge = metrics.NewRegisteredGauge("txpool/pending", nil)
	queuedGauge  = metrics.NewRegisteredGauge("txpool/queued", nil)
	slotsGauge   = metrics.NewRegisteredGauge("txpool/slots", nil)

	knownTxMeter    = metrics.NewRegisteredMeter("txpool/known", nil)
	validTxMeter    = metrics.NewRegisteredMeter("txpool/valid", nil)
	invalidTxMeter  = metrics.NewRegisteredMeter("txpool/invalid", nil)
	overflowMeter   = metrics.NewRegisteredMeter("txpool/overflow", nil)
	evictionMeter   = metrics.NewRegisteredMeter("txpool/evicted", nil)
	replacedTxMeter = metrics.NewRegisteredMeter("txpool/replaced", nil)
)

// BlockChain defines the minimal set of methods needed to back a tx pool with
// a chain.
// BlockChain 定义了交易池所需的最小区块链方法集合。
type BlockChain interface {
	// Config retrieves the chain's fork configuration.
	Config() *params.ChainConfig

	// CurrentBlock returns the current head of the chain.
	CurrentBlock() *types.Header

	// StateCopy returns an independent copy of the head state.
	StateCopy() *state.StateDB
}

// Config are the configuration parameters of the transaction pool.
type Config struct {
	PriceLimit uint64 // Minimum gas tip to enforce for acceptance into the pool
	PriceBump  uint64 // Minimum price bump percentage to replace an already existing transaction (nonce)

	AccountSlots uint64 // Number of executable transaction slots guaranteed per account
	GlobalSlots  uint64 // Maximum number of executable transaction slots for all accounts
	AccountQueue uint64 // Maximum number of non-executable transaction slots permitted per account
	GlobalQueue  uint64 // Maximum number of non-executable transaction slots for all accounts
}

// DefaultConfig contains the default configurations for the transaction pool.
var DefaultConfig = Config{
	PriceLimit: 0,
	PriceBump:  10,

	AccountSlots: 256,
	GlobalSlots:  4096 + 1024,
	AccountQueue: 256,
	GlobalQueue:  1024,
}

// sanitize checks the provided user configurations and changes anything that's
// unreasonable or unworkable.
func (config *Config) sanitize() Config {
	conf := *config
	if conf.PriceBump < 1 {
		log.Warn("Sanitizing invalid txpool price bump", "provided", conf.PriceBump, "updated", DefaultConfig.PriceBump)
		conf.PriceBump = DefaultConfig.PriceBump
	}
	if conf.AccountSlots < 1 {
		log.Warn("Sanitizing invalid txpool account slots", "provided", conf.AccountSlots, "updated", DefaultConfig.AccountSlots)
		conf.AccountSlots = DefaultConfig.AccountSlots
	}
	if conf.GlobalSlots < 1 {
		log.Warn("Sanitizing invalid txpool global slots", "provided", conf.GlobalSlots, "updated", DefaultConfig.GlobalSlots)
		conf.GlobalSlots = DefaultConfig.GlobalSlots
	}
	if conf.AccountQueue < 1 {
		log.Warn("Sanitizing invalid txpool account queue", "provided", conf.AccountQueue, "updated", DefaultConfig.AccountQueue)
		conf.AccountQueue = DefaultConfig.AccountQueue
	}
	if conf.GlobalQueue < 1 {
		log.Warn("Sanitizing invalid txpool global queue", "provided", conf.GlobalQueue, "updated", DefaultConfig.GlobalQueue)
		conf.GlobalQueue = DefaultConfig.GlobalQueue
	}
	return conf
}

// TxPool contains all currently known transactions. Transactions enter the
// pool when they are submitted and leave it when they are included in a
// block, dropped or replaced.
//
// The pool separates processable transactions (pending, nonce-contiguous with
// the account's on-chain nonce) from future ones (queued). Every mutation is
// linearizable: opMu serializes mutations including the delivery of their
// events, while mu only guards the contents so that readers never wait on a
// subscriber.
// TxPool 包含所有当前已知的交易。所有修改都是线性化的，包括事件的投递。
type TxPool struct {
	config      Config
	chainconfig *params.ChainConfig
	chain       BlockChain
	signer      types.Signer

	opMu sync.Mutex
	mu   sync.RWMutex

	currentHead   *types.Header
	currentState  *state.StateDB // Current state in the blockchain head
	pendingNonces *noncer        // Pending state tracking virtual nonces

	pending map[common.Address]*list // All currently processable transactions
	queue   map[common.Address]*list // Queued but non-processable transactions
	all     map[common.Hash]*Transaction
	version uint64

	txFeed event.Feed
	scope  event.SubscriptionScope
}

// New creates a transaction pool on top of the chain's current head.
func New(config Config, chain BlockChain) *TxPool {
	config = (&config).sanitize()
	pool := &TxPool{
		config:      config,
		chainconfig: chain.Config(),
		chain:       chain,
		signer:      types.LatestSigner(chain.Config()),
		pending:     make(map[common.Address]*list),
		queue:       make(map[common.Address]*list),
		all:         make(map[common.Hash]*Transaction),
	}
	pool.reset(chain.CurrentBlock())
	return pool
}

// Signer returns the signer used to recover transaction senders.
func (pool *TxPool) Signer() types.Signer {
	return pool.signer
}

// Close terminates all event subscriptions.
func (pool *TxPool) Close() error {
	pool.scope.Close()
	log.Info("Transaction pool stopped")
	return nil
}

// SubscribeTxEvents registers a subscription for pool events. Events are
// delivered in mutation order; the next mutation starts only after every
// subscriber received the events of the previous one.
func (pool *TxPool) SubscribeTxEvents(ch chan<- TxEvent) event.Subscription {
	return pool.scope.Track(pool.txFeed.Subscribe(ch))
}

// mutate runs fn under both locks, bumps the version if anything changed and
// delivers the produced events before releasing the operation lock.
func (pool *TxPool) mutate(fn func() []TxEvent) {
	pool.opMu.Lock()
	defer pool.opMu.Unlock()

	pool.mu.Lock()
	evs := fn()
	if len(evs) > 0 {
		pool.version++
		for i := range evs {
			evs[i].Version = pool.version
		}
	}
	pool.updateGauges()
	pool.mu.Unlock()

	for _, ev := range evs {
		pool.txFeed.Send(ev)
	}
}

// Add validates a transaction and inserts it into the pool. It returns whether
// the transaction is immediately processable (pending) or waits for a lower
// nonce (queued).
// Add 验证交易并将其插入交易池。
func (pool *TxPool) Add(tx *Transaction) (Status, error) {
	var (
		status Status
		err    error
	)
	pool.mutate(func() []TxEvent {
		var evs []TxEvent
		status, evs, err = pool.add(tx)
		return evs
	})
	if err != nil {
		log.Trace("Discarding invalid transaction", "hash", tx.Hash(), "err", err)
		return StatusUnknown, err
	}
	validTxMeter.Mark(1)
	log.Trace("Pooled new transaction", "hash", tx.Hash(), "from", tx.From, "nonce", tx.Nonce(), "status", status)
	return status, nil
}

func (pool *TxPool) add(tx *Transaction) (Status, []TxEvent, error) {
	hash := tx.Hash()
	if pool.all[hash] != nil {
		knownTxMeter.Mark(1)
		return StatusUnknown, nil, ErrAlreadyKnown
	}
	if err := pool.validateTx(tx); err != nil {
		invalidTxMeter.Mark(1)
		return StatusUnknown, nil, err
	}
	var (
		from     = tx.From
		existing = pool.lookupNonce(from, tx.Nonce())
		evs      []TxEvent
	)
	if existing == nil {
		if queue := pool.queue[from]; queue != nil && uint64(queue.Len()) >= pool.config.AccountQueue {
			return StatusUnknown, nil, ErrAccountLimitExceeded
		}
	}
	// A replacement does not grow the pool, anything else needs room.
	if existing == nil && uint64(len(pool.all)) >= pool.config.GlobalSlots+pool.config.GlobalQueue {
		victim := pool.cheapest(from)
		if victim == nil || pool.priceCmp(victim, tx) >= 0 {
			overflowMeter.Mark(1)
			return StatusUnknown, nil, ErrTxPoolOverflow
		}
		log.Trace("Evicting underpriced transaction", "hash", victim.Hash(), "for", hash)
		evictionMeter.Mark(1)
		pool.removeTx(victim.Hash())
		evs = append(evs, TxEvent{Kind: TxRemoved, Txs: []*Transaction{victim}, Reason: ReasonEvicted})
	}
	// Replace an already pending transaction in place.
	if list := pool.pending[from]; list != nil && list.Contains(tx.Nonce()) {
		inserted, old := list.Add(tx, pool.config.PriceBump)
		if !inserted {
			return StatusUnknown, nil, ErrReplaceUnderpriced
		}
		delete(pool.all, old.Hash())
		pool.all[hash] = tx
		replacedTxMeter.Mark(1)
		evs = append(evs,
			TxEvent{Kind: TxRemoved, Txs: []*Transaction{old}, Reason: ReasonReplaced},
			TxEvent{Kind: TxAdded, Txs: []*Transaction{tx}},
		)
		return StatusPending, evs, nil
	}
	old, err := pool.enqueueTx(tx)
	if err != nil {
		return StatusUnknown, nil, err
	}
	if old != nil {
		replacedTxMeter.Mark(1)
		evs = append(evs, TxEvent{Kind: TxRemoved, Txs: []*Transaction{old}, Reason: ReasonReplaced})
	}
	evs = append(evs, TxEvent{Kind: TxAdded, Txs: []*Transaction{tx}})
	evs = append(evs, pool.promoteExecutables([]common.Address{from})...)

	status := StatusQueued
	if list := pool.pending[from]; list != nil && list.Get(tx.Nonce()) == tx {
		status = StatusPending
	}
	return status, evs, nil
}

// validateTx checks whether a transaction is valid according to the consensus
// rules and adheres to the pool limits.
func (pool *TxPool) validateTx(tx *Transaction) error {
	opts := &ValidationOptions{
		Config:  pool.chainconfig,
		MaxSize: txMaxSize,
		MinTip:  new(big.Int).SetUint64(pool.config.PriceLimit),
	}
	if err := ValidateTransaction(tx.Tx, pool.currentHead, opts); err != nil {
		return err
	}
	if !tx.Impersonated {
		from, err := types.Sender(pool.signer, tx.Tx)
		if err != nil {
			return ErrInvalidSender
		}
		if from != tx.From {
			return ErrInvalidSender
		}
	}
	return ValidateTransactionWithState(tx, &ValidationOptionsWithState{
		State: pool.currentState,
		UsedAndLeftSlots: func(addr common.Address) (int, int) {
			var have int
			if list := pool.pending[addr]; list != nil {
				have += list.Len()
			}
			if list := pool.queue[addr]; list != nil {
				have += list.Len()
			}
			return have, int(pool.config.AccountSlots+pool.config.AccountQueue) - have
		},
		ExistingExpenditure: func(addr common.Address) *uint256.Int {
			spent := new(uint256.Int)
			if list := pool.pending[addr]; list != nil {
				spent.Add(spent, list.totalcost)
			}
			if list := pool.queue[addr]; list != nil {
				spent.Add(spent, list.totalcost)
			}
			return spent
		},
		ExistingCost: func(addr common.Address, nonce uint64) *uint256.Int {
			if old := pool.lookupNonce(addr, nonce); old != nil {
				return old.Cost()
			}
			return nil
		},
	})
}

// lookupNonce returns the pooled transaction of the account with the nonce.
func (pool *TxPool) lookupNonce(addr common.Address, nonce uint64) *Transaction {
	if list := pool.pending[addr]; list != nil {
		if tx := list.Get(nonce); tx != nil {
			return tx
		}
	}
	if list := pool.queue[addr]; list != nil {
		return list.Get(nonce)
	}
	return nil
}

// cheapest returns the lowest priced transaction not sent by exclude.
func (pool *TxPool) cheapest(exclude common.Address) *Transaction {
	h := &priceHeap{baseFee: pool.currentHead.BaseFee}
	for _, tx := range pool.all {
		if tx.From != exclude {
			h.list = append(h.list, tx)
		}
	}
	if len(h.list) == 0 {
		return nil
	}
	heap.Init(h)
	return h.list[0]
}

// priceCmp compares two transactions by price at the current base fee.
func (pool *TxPool) priceCmp(a, b *Transaction) int {
	h := &priceHeap{baseFee: pool.currentHead.BaseFee}
	return h.cmp(a, b)
}

// enqueueTx inserts a new transaction into the non-executable queue, returning
// the transaction it replaced, if any.
func (pool *TxPool) enqueueTx(tx *Transaction) (*Transaction, error) {
	from := tx.From
	if pool.queue[from] == nil {
		pool.queue[from] = newList(false)
	}
	queue := pool.queue[from]
	if !queue.Contains(tx.Nonce()) && uint64(queue.Len()) >= pool.config.AccountQueue {
		if queue.Empty() {
			delete(pool.queue, from)
		}
		return nil, ErrAccountLimitExceeded
	}
	inserted, old := queue.Add(tx, pool.config.PriceBump)
	if !inserted {
		if queue.Empty() {
			delete(pool.queue, from)
		}
		return nil, ErrReplaceUnderpriced
	}
	if old != nil {
		delete(pool.all, old.Hash())
	}
	pool.all[tx.Hash()] = tx
	return old, nil
}

// promoteTx adds a transaction to the pending (processable) list.
func (pool *TxPool) promoteTx(addr common.Address, tx *Transaction) {
	if pool.pending[addr] == nil {
		pool.pending[addr] = newList(true)
	}
	pool.pending[addr].Add(tx, pool.config.PriceBump)
	pool.pendingNonces.set(addr, tx.Nonce()+1)
}

// accountState reads the on-chain nonce and balance of an account. A remote
// read failure is logged and reported as not ok, so callers keep the
// account's transactions untouched.
func (pool *TxPool) accountState(addr common.Address) (uint64, *uint256.Int, bool) {
	nonce := pool.currentState.GetNonce(addr)
	balance := pool.currentState.GetBalance(addr)
	if err := pool.currentState.Error(); err != nil {
		log.Warn("Failed to read pool account state", "addr", addr, "err", err)
		pool.currentState.ClearError()
		return 0, nil, false
	}
	return nonce, balance, true
}

// promoteExecutables moves transactions that have become processable from the
// queue to the pending list. Transactions that became invalid are removed.
// promoteExecutables 将已变为可处理的交易从未来队列移动到待处理列表。
func (pool *TxPool) promoteExecutables(accounts []common.Address) []TxEvent {
	var invalid, capped []*Transaction
	for _, addr := range accounts {
		list := pool.queue[addr]
		if list == nil {
			continue
		}
		nonce, balance, ok := pool.accountState(addr)
		if !ok {
			continue
		}
		// Drop all transactions that are deemed too old (low nonce) or too costly
		forwards := list.Forward(nonce)
		drops, _ := list.Filter(balance, pool.currentHead.GasLimit)
		for _, tx := range append(forwards, drops...) {
			delete(pool.all, tx.Hash())
			invalid = append(invalid, tx)
		}
		// Gather all executable transactions and promote them, as long as the
		// account has pending slots left.
		for _, tx := range list.Ready(pool.pendingNonces.get(addr)) {
			if pending := pool.pending[addr]; pending != nil && uint64(pending.Len()) >= pool.config.AccountSlots {
				list.Add(tx, pool.config.PriceBump)
				continue
			}
			pool.promoteTx(addr, tx)
		}
		for _, tx := range list.Cap(int(pool.config.AccountQueue)) {
			delete(pool.all, tx.Hash())
			capped = append(capped, tx)
		}
		if list.Empty() {
			delete(pool.queue, addr)
		}
	}
	var evs []TxEvent
	if len(invalid) > 0 {
		evs = append(evs, TxEvent{Kind: TxRemoved, Txs: invalid, Reason: ReasonInvalidated})
	}
	if len(capped) > 0 {
		evictionMeter.Mark(int64(len(capped)))
		evs = append(evs, TxEvent{Kind: TxRemoved, Txs: capped, Reason: ReasonEvicted})
	}
	return evs
}

// demoteUnexecutables removes invalid and processed transactions from the
// pending list. Transactions that are no longer contiguous with the account
// nonce are moved back to the queue.
// demoteUnexecutables 从待处理列表中删除无效和已处理的交易。
func (pool *TxPool) demoteUnexecutables() []TxEvent {
	var invalid []*Transaction
	for _, addr := range sortedAddresses(pool.pending) {
		list := pool.pending[addr]
		nonce, balance, ok := pool.accountState(addr)
		if !ok {
			continue
		}
		olds := list.Forward(nonce)
		drops, invalids := list.Filter(balance, pool.currentHead.GasLimit)
		for _, tx := range append(olds, drops...) {
			delete(pool.all, tx.Hash())
			invalid = append(invalid, tx)
		}
		for _, tx := range invalids {
			pool.requeue(tx)
		}
		// A gap at the head of the list demotes everything behind it.
		if list.Len() > 0 && list.Get(nonce) == nil {
			for _, tx := range list.Cap(0) {
				pool.requeue(tx)
			}
		}
		if list.Empty() {
			delete(pool.pending, addr)
			continue
		}
		pool.pendingNonces.set(addr, list.LastElement().Nonce()+1)
	}
	if len(invalid) == 0 {
		return nil
	}
	return []TxEvent{{Kind: TxRemoved, Txs: invalid, Reason: ReasonInvalidated}}
}

// requeue moves a demoted pending transaction back to the queue. The queue has
// no entry with the same nonce, so this cannot fail on price.
func (pool *TxPool) requeue(tx *Transaction) {
	if pool.queue[tx.From] == nil {
		pool.queue[tx.From] = newList(false)
	}
	pool.queue[tx.From].Add(tx, pool.config.PriceBump)
}

// removeTx removes a single transaction from the pool. Pending transactions
// with higher nonces of the same account are moved back to the queue.
func (pool *TxPool) removeTx(hash common.Hash) *Transaction {
	tx, ok := pool.all[hash]
	if !ok {
		return nil
	}
	addr := tx.From
	delete(pool.all, hash)

	if pending := pool.pending[addr]; pending != nil {
		if removed, invalids := pending.Remove(tx); removed {
			if pending.Empty() {
				delete(pool.pending, addr)
			}
			for _, tx := range invalids {
				pool.requeue(tx)
			}
			pool.pendingNonces.setIfLower(addr, tx.Nonce())
			return tx
		}
	}
	if future := pool.queue[addr]; future != nil {
		future.Remove(tx)
		if future.Empty() {
			delete(pool.queue, addr)
		}
	}
	return tx
}

// Remove drops a single transaction from the pool, returning whether it was
// found.
func (pool *TxPool) Remove(hash common.Hash) bool {
	var found bool
	pool.mutate(func() []TxEvent {
		tx := pool.removeTx(hash)
		if tx == nil {
			return nil
		}
		found = true
		return []TxEvent{{Kind: TxRemoved, Txs: []*Transaction{tx}, Reason: ReasonDropped}}
	})
	return found
}

// RemoveMined removes the transactions included in a new block and those the
// miner dropped as unexecutable.
// RemoveMined 移除已打包进新区块的交易以及矿工丢弃的交易。
func (pool *TxPool) RemoveMined(included, dropped []common.Hash) {
	pool.mutate(func() []TxEvent {
		var evs []TxEvent
		for _, batch := range []struct {
			hashes []common.Hash
			reason string
		}{{included, ReasonMined}, {dropped, ReasonDropped}} {
			var txs []*Transaction
			for _, hash := range batch.hashes {
				if tx := pool.removeTx(hash); tx != nil {
					txs = append(txs, tx)
				}
			}
			if len(txs) > 0 {
				evs = append(evs, TxEvent{Kind: TxRemoved, Txs: txs, Reason: batch.reason})
			}
		}
		return evs
	})
}

// DropSender removes every transaction of the account, returning how many were
// removed.
func (pool *TxPool) DropSender(addr common.Address) int {
	var n int
	pool.mutate(func() []TxEvent {
		var txs []*Transaction
		if list := pool.pending[addr]; list != nil {
			txs = append(txs, list.Flatten()...)
		}
		if list := pool.queue[addr]; list != nil {
			txs = append(txs, list.Flatten()...)
		}
		for _, tx := range txs {
			delete(pool.all, tx.Hash())
		}
		delete(pool.pending, addr)
		delete(pool.queue, addr)
		pool.pendingNonces.set(addr, pool.currentState.GetNonce(addr))
		pool.currentState.ClearError()

		n = len(txs)
		if n == 0 {
			return nil
		}
		return []TxEvent{{Kind: TxRemoved, Txs: txs, Reason: ReasonDropped}}
	})
	return n
}

// DropAll empties the pool, returning how many transactions were removed.
func (pool *TxPool) DropAll() int {
	var n int
	pool.mutate(func() []TxEvent {
		txs := make([]*Transaction, 0, len(pool.all))
		for _, addr := range sortedAddresses(pool.pending) {
			txs = append(txs, pool.pending[addr].Flatten()...)
		}
		for _, addr := range sortedAddresses(pool.queue) {
			txs = append(txs, pool.queue[addr].Flatten()...)
		}
		pool.pending = make(map[common.Address]*list)
		pool.queue = make(map[common.Address]*list)
		pool.all = make(map[common.Hash]*Transaction)
		pool.pendingNonces = newNoncer(pool.currentState)

		n = len(txs)
		if n == 0 {
			return nil
		}
		return []TxEvent{{Kind: TxRemoved, Txs: txs, Reason: ReasonDropped}}
	})
	return n
}

// Reset moves the pool onto a new chain head: transactions made stale by the
// new state are removed, gapped ones demoted and newly contiguous ones
// promoted.
// Reset 将交易池移动到新的链头。
func (pool *TxPool) Reset(head *types.Header) {
	pool.mutate(func() []TxEvent {
		return pool.reset(head)
	})
}

func (pool *TxPool) reset(head *types.Header) []TxEvent {
	pool.currentHead = head
	pool.currentState = pool.chain.StateCopy()
	pool.pendingNonces = newNoncer(pool.currentState)

	evs := pool.demoteUnexecutables()
	evs = append(evs, pool.promoteExecutables(sortedAddresses(pool.queue))...)
	return evs
}

func (pool *TxPool) updateGauges() {
	var pending, queued int
	for _, list := range pool.pending {
		pending += list.Len()
	}
	for _, list := range pool.queue {
		queued += list.Len()
	}
	pendingGauge.Update(int64(pending))
	queuedGauge.Update(int64(queued))
	slotsGauge.Update(int64(len(pool.all)))
}

// Head returns the header the pool is currently validating against.
func (pool *TxPool) Head() *types.Header {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return pool.currentHead
}

// Version returns the pool's mutation counter. It increases with every
// mutation that changed the pool contents.
func (pool *TxPool) Version() uint64 {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return pool.version
}

// Nonce returns the next nonce of an account, with all transactions executable
// by the pool already applied on top.
func (pool *TxPool) Nonce(addr common.Address) uint64 {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return pool.pendingNonces.get(addr)
}

// Stats retrieves the current pool stats, namely the number of pending and the
// number of queued (non-executable) transactions.
func (pool *TxPool) Stats() (int, int) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	var pending, queued int
	for _, list := range pool.pending {
		pending += list.Len()
	}
	for _, list := range pool.queue {
		queued += list.Len()
	}
	return pending, queued
}

// Count returns the number of pooled transactions.
func (pool *TxPool) Count() int {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return len(pool.all)
}

// PendingGas returns the summed gas limit of the pending transactions.
func (pool *TxPool) PendingGas() uint64 {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	var gas uint64
	for _, list := range pool.pending {
		for _, tx := range list.txs.items {
			gas += tx.Tx.Gas()
		}
	}
	return gas
}

// Get returns a transaction if it is contained in the pool and nil otherwise.
func (pool *TxPool) Get(hash common.Hash) *Transaction {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return pool.all[hash]
}

// Has returns an indicator whether txpool has a transaction cached with the
// given hash.
func (pool *TxPool) Has(hash common.Hash) bool {
	return pool.Get(hash) != nil
}

// Status returns the status of the transaction identified by hash.
func (pool *TxPool) Status(hash common.Hash) Status {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	tx := pool.all[hash]
	if tx == nil {
		return StatusUnknown
	}
	if list := pool.pending[tx.From]; list != nil && list.Get(tx.Nonce()) == tx {
		return StatusPending
	}
	return StatusQueued
}

// Pending retrieves all currently processable transactions, grouped by origin
// account and sorted by nonce.
func (pool *TxPool) Pending() map[common.Address][]*Transaction {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return flattenAll(pool.pending)
}

// Queued retrieves the non-processable transactions, grouped by origin account
// and sorted by nonce.
func (pool *TxPool) Queued() map[common.Address][]*Transaction {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return flattenAll(pool.queue)
}

// Content retrieves the data content of the transaction pool, returning all the
// pending as well as queued transactions, grouped by account and sorted by nonce.
func (pool *TxPool) Content() (map[common.Address][]*Transaction, map[common.Address][]*Transaction) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return flattenAll(pool.pending), flattenAll(pool.queue)
}

// ContentFrom retrieves the data content of the transaction pool, returning the
// pending as well as queued transactions of this address, grouped by nonce.
func (pool *TxPool) ContentFrom(addr common.Address) ([]*Transaction, []*Transaction) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	var pending, queued []*Transaction
	if list, ok := pool.pending[addr]; ok {
		pending = list.Flatten()
	}
	if list, ok := pool.queue[addr]; ok {
		queued = list.Flatten()
	}
	return pending, queued
}

// TxsByPriceAndNonce returns the processable transactions as a price and
// nonce ordered set, evaluated at the given base fee.
// TxsByPriceAndNonce 返回按价格和 nonce 排序的可处理交易集合。
func (pool *TxPool) TxsByPriceAndNonce(baseFee *big.Int) *TransactionsByPriceAndNonce {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return NewTransactionsByPriceAndNonce(flattenAll(pool.pending), baseFee)
}

// Ordered returns the processable transactions in execution order.
func (pool *TxPool) Ordered(baseFee *big.Int) []*Transaction {
	return pool.TxsByPriceAndNonce(baseFee).Drain()
}

// Snapshot returns the processable transactions in execution order together
// with the pool version they belong to, read atomically.
func (pool *TxPool) Snapshot(baseFee *big.Int) ([]*Transaction, uint64) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return NewTransactionsByPriceAndNonce(flattenAll(pool.pending), baseFee).Drain(), pool.version
}

func flattenAll(lists map[common.Address]*list) map[common.Address][]*Transaction {
	txs := make(map[common.Address][]*Transaction, len(lists))
	for addr, list := range lists {
		txs[addr] = list.Flatten()
	}
	return txs
}

func sortedAddresses(lists map[common.Address]*list) []common.Address {
	addrs := make([]common.Address, 0, len(lists))
	for addr := range lists {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, common.Address.Cmp)
	return addrs
}
