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

// Package filters implements the log, block and pending transaction filters
// of the node, both polled (eth_newFilter) and pushed (eth_subscribe).
package filters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/txpool"
)

// Config represents the configuration of the filter system.
type Config struct {
	Timeout time.Duration // how long filters stay active without being polled
}

// DefaultConfig expires idle filters after five minutes.
var DefaultConfig = Config{Timeout: 5 * time.Minute}

// Backend is the chain and pool access the filters need.
type Backend interface {
	ChainConfig() *params.ChainConfig
	CurrentHeader() *types.Header
	HeaderByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Header, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	GetReceipts(ctx context.Context, hash common.Hash) (types.Receipts, error)

	SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription
	SubscribeLogsEvent(ch chan<- []*types.Log) event.Subscription
	SubscribeTxEvents(ch chan<- txpool.TxEvent) event.Subscription
}

// FilterSystem holds resources shared by all filters.
// FilterSystem 持有所有过滤器共享的资源。
type FilterSystem struct {
	backend Backend
	cfg     *Config
}

// NewFilterSystem creates a filter system.
func NewFilterSystem(backend Backend, config Config) *FilterSystem {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig.Timeout
	}
	return &FilterSystem{backend: backend, cfg: &config}
}

// Type determines the kind of filter and is used to put the filter in to
// the correct bucket when added.
type Type byte

const (
	// UnknownSubscription indicates an unknown subscription type
	UnknownSubscription Type = iota
	// LogsSubscription queries for new logs of mined blocks
	LogsSubscription
	// PendingTransactionsSubscription queries for transactions entering the pool
	PendingTransactionsSubscription
	// BlocksSubscription queries hashes for blocks that are imported
	BlocksSubscription
	// LastIndexSubscription keeps track of the last index
	LastIndexSubscription
)

const (
	// txChanSize is the size of channel listening to pool events.
	txChanSize = 4096
	// chainHeadChanSize is the size of channel listening to ChainHeadEvent.
	chainHeadChanSize = 10
	// logsChanSize is the size of channel listening to new logs.
	logsChanSize = 10
)

type subscription struct {
	id        rpc.ID
	typ       Type
	created   time.Time
	logsCrit  ethereum.FilterQuery
	logs      chan []*types.Log
	txs       chan []*types.Transaction
	headers   chan *types.Header
	installed chan struct{} // closed when the filter is installed
	err       chan error    // closed when the filter is uninstalled
}

// EventSystem creates subscriptions, processes events and broadcasts them to
// the subscription which match the subscription criteria.
// EventSystem 创建订阅，处理事件并广播给匹配条件的订阅。
type EventSystem struct {
	backend Backend
	sys     *FilterSystem

	// Subscriptions
	txsSub  event.Subscription // Subscription for pool events
	logsSub event.Subscription // Subscription for new log events
	headSub event.Subscription // Subscription for new chain head events

	// Channels
	install   chan *subscription // install filter for event notification
	uninstall chan *subscription // remove filter for event notification
	txsCh     chan txpool.TxEvent
	logsCh    chan []*types.Log
	headCh    chan core.ChainHeadEvent

	quit chan struct{} // closed by Close
	done chan struct{} // closed once the event loop released every filter
	once sync.Once
}

// NewEventSystem creates a new manager that listens for event on the given mux,
// parses and filters them. It uses the all map to retrieve filter changes. The
// work loop holds its own index that is used to forward events to filters.
func NewEventSystem(sys *FilterSystem) *EventSystem {
	m := &EventSystem{
		sys:       sys,
		backend:   sys.backend,
		install:   make(chan *subscription),
		uninstall: make(chan *subscription),
		txsCh:     make(chan txpool.TxEvent, txChanSize),
		logsCh:    make(chan []*types.Log, logsChanSize),
		headCh:    make(chan core.ChainHeadEvent, chainHeadChanSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	m.txsSub = m.backend.SubscribeTxEvents(m.txsCh)
	m.logsSub = m.backend.SubscribeLogsEvent(m.logsCh)
	m.headSub = m.backend.SubscribeChainHeadEvent(m.headCh)

	go m.eventLoop()
	return m
}

// Close stops the event loop and releases all filters.
func (es *EventSystem) Close() {
	es.once.Do(func() { close(es.quit) })
	<-es.done
}

// Subscription is created when the client registers itself for a particular event.
type Subscription struct {
	ID        rpc.ID
	f         *subscription
	es        *EventSystem
	unsubOnce sync.Once
}

// Err returns a channel that is closed when unsubscribed.
func (sub *Subscription) Err() <-chan error {
	return sub.f.err
}

// Unsubscribe uninstalls the subscription from the event broadcast loop.
func (sub *Subscription) Unsubscribe() {
	sub.unsubOnce.Do(func() {
	uninstallLoop:
		for {
			// write uninstall request and consume logs/hashes. This prevents
			// the eventLoop broadcast method to deadlock when writing to the
			// filter event channel while the subscription loop is waiting for
			// this method to return (and thus not reading these events).
			select {
			case sub.es.uninstall <- sub.f:
				break uninstallLoop
			case <-sub.es.done:
				return
			case <-sub.f.logs:
			case <-sub.f.txs:
			case <-sub.f.headers:
			}
		}
		// wait for filter to be uninstalled in work loop before returning
		// this ensures that the manager won't use the event channel which
		// will probably be closed by the client asap after this method returns.
		<-sub.Err()
	})
}

// subscribe installs the subscription in the event broadcast loop.
func (es *EventSystem) subscribe(sub *subscription) *Subscription {
	select {
	case es.install <- sub:
		<-sub.installed
	case <-es.done:
		close(sub.err)
	}
	return &Subscription{ID: sub.id, f: sub, es: es}
}

// SubscribeLogs creates a subscription that will write all logs matching the
// given criteria to the given logs channel.
func (es *EventSystem) SubscribeLogs(crit ethereum.FilterQuery, logs chan []*types.Log) *Subscription {
	sub := &subscription{
		id:        rpc.NewID(),
		typ:       LogsSubscription,
		logsCrit:  crit,
		created:   time.Now(),
		logs:      logs,
		txs:       make(chan []*types.Transaction),
		headers:   make(chan *types.Header),
		installed: make(chan struct{}),
		err:       make(chan error),
	}
	return es.subscribe(sub)
}

// SubscribeNewHeads creates a subscription that writes the header of a block
// that is imported in the chain.
func (es *EventSystem) SubscribeNewHeads(headers chan *types.Header) *Subscription {
	sub := &subscription{
		id:        rpc.NewID(),
		typ:       BlocksSubscription,
		created:   time.Now(),
		logs:      make(chan []*types.Log),
		txs:       make(chan []*types.Transaction),
		headers:   headers,
		installed: make(chan struct{}),
		err:       make(chan error),
	}
	return es.subscribe(sub)
}

// SubscribePendingTxs creates a subscription that writes transactions for
// transactions that enter the transaction pool.
func (es *EventSystem) SubscribePendingTxs(txs chan []*types.Transaction) *Subscription {
	sub := &subscription{
		id:        rpc.NewID(),
		typ:       PendingTransactionsSubscription,
		created:   time.Now(),
		logs:      make(chan []*types.Log),
		txs:       txs,
		headers:   make(chan *types.Header),
		installed: make(chan struct{}),
		err:       make(chan error),
	}
	return es.subscribe(sub)
}

type filterIndex map[Type]map[rpc.ID]*subscription

func (es *EventSystem) handleLogs(filters filterIndex, ev []*types.Log) {
	if len(ev) == 0 {
		return
	}
	for _, f := range filters[LogsSubscription] {
		matchedLogs := filterLogs(ev, f.logsCrit.FromBlock, f.logsCrit.ToBlock, f.logsCrit.Addresses, f.logsCrit.Topics)
		if len(matchedLogs) > 0 {
			f.logs <- matchedLogs
		}
	}
}

func (es *EventSystem) handleTxEvent(filters filterIndex, ev txpool.TxEvent) {
	if ev.Kind != txpool.TxAdded {
		return
	}
	txs := make([]*types.Transaction, len(ev.Txs))
	for i, tx := range ev.Txs {
		txs[i] = tx.Tx
	}
	for _, f := range filters[PendingTransactionsSubscription] {
		f.txs <- txs
	}
}

func (es *EventSystem) handleChainEvent(filters filterIndex, ev core.ChainHeadEvent) {
	header := ev.Block.Header()
	for _, f := range filters[BlocksSubscription] {
		f.headers <- header
	}
}

// eventLoop (un)installs filters and processes mux events.
func (es *EventSystem) eventLoop() {
	index := make(filterIndex)
	for i := UnknownSubscription; i < LastIndexSubscription; i++ {
		index[i] = make(map[rpc.ID]*subscription)
	}
	// Ensure all subscriptions get cleaned up
	defer func() {
		es.txsSub.Unsubscribe()
		es.logsSub.Unsubscribe()
		es.headSub.Unsubscribe()
		for _, filters := range index {
			for id, f := range filters {
				delete(filters, id)
				close(f.err)
			}
		}
		close(es.done)
	}()

	for {
		select {
		case ev := <-es.txsCh:
			es.handleTxEvent(index, ev)
		case ev := <-es.logsCh:
			es.handleLogs(index, ev)
		case ev := <-es.headCh:
			es.handleChainEvent(index, ev)

		case f := <-es.install:
			index[f.typ][f.id] = f
			close(f.installed)

		case f := <-es.uninstall:
			delete(index[f.typ], f.id)
			close(f.err)

		case err := <-es.headSub.Err():
			if err != nil {
				log.Warn("Filter system lost the chain subscription", "err", err)
			}
			return
		case <-es.quit:
			return
		}
	}
}

func (t Type) String() string {
	switch t {
	case LogsSubscription:
		return "logs"
	case PendingTransactionsSubscription:
		return "pendingTransactions"
	case BlocksSubscription:
		return "blocks"
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}
