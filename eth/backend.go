// Copyright 2017 The go-ethereum Authors
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

// Package eth implements the development chain service.
package eth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/execution"
	"github.com/evmts/tevm-node/core/fork"
	"github.com/evmts/tevm-node/core/optimistic"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/evmts/tevm-node/eth/ethconfig"
	"github.com/evmts/tevm-node/eth/filters"
	"github.com/evmts/tevm-node/internal/ethapi"
	"github.com/evmts/tevm-node/miner"
	"github.com/evmts/tevm-node/node"
)

// Config contains the configuration options of the chain service.
type Config = ethconfig.Config

// components is one generation of the chain service. Reset replaces all of
// them at once.
type components struct {
	source   *fork.RPCSource // nil for a local chain
	chain    *core.BlockChain
	pool     *txpool.TxPool
	miner    *miner.Miner
	overlay  *optimistic.Overlay
	pipeline *execution.Pipeline

	forkURL     string
	forkBlock   uint64
	remoteChain uint64 // Chain id of the fork source

	snapMu   sync.Mutex
	poolSnap map[uint64][]*txpool.Transaction // Pool contents at each chain snapshot

	subs []event.Subscription
	quit chan struct{}
	wg   sync.WaitGroup
}

func (c *components) close() {
	close(c.quit)
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.wg.Wait()

	c.miner.Close()
	c.overlay.Close()
	c.pool.Close()
	c.chain.Stop()
	if c.source != nil {
		c.source.Close()
	}
}

// Ethereum implements the development chain service.
// Ethereum 实现开发链服务。
type Ethereum struct {
	config *ethconfig.Config

	keys     map[common.Address]*ecdsa.PrivateKey
	accounts []common.Address

	impersonated    mapset.Set[common.Address]
	autoImpersonate atomic.Bool

	lock       sync.RWMutex // Guards the fields below
	comps      *components
	cache      *fork.Cache // Fork cache, kept across resets of the same remote chain
	cacheChain uint64

	// Events of the current components are relayed here, so that filters
	// survive a reset.
	chainHeadFeed event.Feed
	logsFeed      event.Feed
	txFeed        event.Feed
	scope         event.SubscriptionScope

	APIBackend   *EthAPIBackend
	filterSystem *filters.FilterSystem
	filterAPI    *filters.FilterAPI
	statePath    string
}

// New creates the chain service and registers its APIs and lifecycle on the
// stack. A state file, if configured and present, is loaded into the head
// state.
func New(stack *node.Node, config *ethconfig.Config) (*Ethereum, error) {
	eth := &Ethereum{
		config:       config,
		keys:         make(map[common.Address]*ecdsa.PrivateKey),
		impersonated: mapset.NewSet[common.Address](),
	}
	for _, key := range core.DevKeys(config.Accounts) {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		eth.keys[addr] = key
		eth.accounts = append(eth.accounts, addr)
	}
	eth.autoImpersonate.Store(config.AutoImpersonate)
	if config.StatePath != "" {
		eth.statePath = stack.ResolvePath(config.StatePath)
	}
	comps, err := eth.newComponents(context.Background(), config.Fork.URL, config.Fork.BlockNumber, nil)
	if err != nil {
		return nil, err
	}
	eth.comps = comps
	eth.adoptCache(comps)

	if eth.statePath != "" {
		dump, err := state.ReadDumpFile(eth.statePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Info("State file not found, starting fresh", "path", eth.statePath)
		case err != nil:
			eth.shutdown()
			return nil, fmt.Errorf("failed to read state file: %w", err)
		default:
			if err := eth.LoadState(dump); err != nil {
				eth.shutdown()
				return nil, fmt.Errorf("failed to load state file: %w", err)
			}
			log.Info("Loaded state file", "path", eth.statePath, "accounts", len(dump.Accounts))
		}
	}
	eth.APIBackend = &EthAPIBackend{eth: eth}
	eth.filterSystem = filters.NewFilterSystem(eth.APIBackend, config.Filter)
	eth.filterAPI = filters.NewFilterAPI(eth.filterSystem)

	stack.RegisterAPIs(eth.APIs())
	stack.RegisterLifecycle(eth)
	return eth, nil
}

// newComponents builds a chain generation, forked from url at block if url is
// set. Block 0 forks the remote head. The mining mode of the previous
// generation, if any, is carried over.
func (s *Ethereum) newComponents(ctx context.Context, url string, block uint64, prev *components) (*components, error) {
	var (
		config  = s.config
		chainID = new(big.Int).SetUint64(config.ChainID)
		fetcher *fork.Fetcher
		c       = &components{
			forkURL:  url,
			poolSnap: make(map[uint64][]*txpool.Transaction),
			quit:     make(chan struct{}),
		}
	)
	if url != "" {
		source, err := fork.DialRPCSource(ctx, url)
		if err != nil {
			return nil, err
		}
		remoteID, err := source.ChainID(ctx)
		if err != nil {
			source.Close()
			return nil, fmt.Errorf("failed to fetch fork chain id: %w", err)
		}
		if block == 0 {
			if block, err = source.BlockNumber(ctx); err != nil {
				source.Close()
				return nil, fmt.Errorf("failed to fetch fork head: %w", err)
			}
		}
		if config.ChainID == 0 {
			chainID = remoteID
		}
		cache, err := s.forkCache(remoteID.Uint64())
		if err != nil {
			source.Close()
			return nil, err
		}
		defer func() {
			if c.chain == nil && cache != s.cache {
				cache.Close()
			}
		}()
		c.source, c.forkBlock, c.remoteChain = source, block, remoteID.Uint64()
		fetcher = fork.NewFetcher(fork.Chain(source, s.interceptors()...), cache, block)
	} else if config.ChainID == 0 {
		chainID.SetUint64(core.DevChainID)
	}
	genesis := core.DeveloperGenesisBlock(chainID, config.GasLimit, s.accounts)
	if config.BaseFee != nil {
		genesis.BaseFee = new(big.Int).Set(config.BaseFee)
	}
	genesis.Timestamp = config.Timestamp
	if genesis.Timestamp == 0 {
		genesis.Timestamp = uint64(time.Now().Unix())
	}
	chain, err := core.NewBlockChain(ctx, genesis, fetcher)
	if err != nil {
		if c.source != nil {
			c.source.Close()
		}
		return nil, err
	}
	c.chain = chain
	c.pool = txpool.New(config.TxPool, chain)
	c.miner = miner.New(config.Miner, chain, c.pool)
	if prev != nil {
		c.miner.SetMode(prev.miner.Mode())
	}
	c.overlay = optimistic.New(chain, c.pool, c.miner)
	c.pipeline = execution.NewPipeline(execution.Config{
		GasCap:  config.RPCGasCap,
		Timeout: config.RPCEVMTimeout,
	}, chain)
	c.pipeline.SetPendingState(c.overlay)
	c.pipeline.SetAccounts(s)
	c.pipeline.SetSubmitter(s)

	s.relay(c)
	return c, nil
}

// forkCache returns the cache of the given remote chain. The previous cache
// is released once the components using it are closed.
func (s *Ethereum) forkCache(chainID uint64) (*fork.Cache, error) {
	if s.cache != nil && s.cacheChain == chainID {
		return s.cache, nil
	}
	var disk *fork.DiskCache
	if dir := s.config.Fork.CacheDir; dir != "" {
		var err error
		disk, err = fork.OpenDiskCache(filepath.Join(dir, fmt.Sprint(chainID)), s.config.Fork.CacheBackend, s.config.Fork.CacheSize)
		if err != nil {
			return nil, err
		}
	}
	return fork.NewCache(disk), nil
}

// adoptCache records the fork cache of c, releasing the previous cache unless
// c still uses it. Must be called with the lock held.
func (s *Ethereum) adoptCache(c *components) {
	prev := s.cache
	s.cache, s.cacheChain = nil, 0
	if fetcher := c.chain.Fetcher(); fetcher != nil {
		s.cache, s.cacheChain = fetcher.Cache(), c.remoteChain
	}
	if prev != nil && prev != s.cache {
		if err := prev.Close(); err != nil {
			log.Warn("Failed to close fork cache", "err", err)
		}
	}
}

// interceptors builds the read path to the fork source: metrics and logging
// outermost, then retries of timed out attempts, then rate limiting.
func (s *Ethereum) interceptors() []fork.Interceptor {
	conf := s.config.Fork
	interceptors := []fork.Interceptor{fork.Metrics(), fork.Logging()}
	if conf.Retries > 0 {
		interceptors = append(interceptors, fork.Retry(conf.Retries, 250*time.Millisecond))
	}
	if conf.RateLimit > 0 {
		interceptors = append(interceptors, fork.RateLimit(conf.RateLimit, 1))
	}
	if conf.Timeout > 0 {
		interceptors = append(interceptors, fork.Timeout(conf.Timeout))
	}
	return interceptors
}

// relay forwards the events of a generation to the service feeds.
func (s *Ethereum) relay(c *components) {
	var (
		headCh = make(chan core.ChainHeadEvent, 16)
		logsCh = make(chan []*types.Log, 16)
		txCh   = make(chan txpool.TxEvent, 64)
	)
	c.subs = []event.Subscription{
		c.chain.SubscribeChainHeadEvent(headCh),
		c.chain.SubscribeLogsEvent(logsCh),
		c.pool.SubscribeTxEvents(txCh),
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case ev := <-headCh:
				s.chainHeadFeed.Send(ev)
			case logs := <-logsCh:
				s.logsFeed.Send(logs)
			case ev := <-txCh:
				s.txFeed.Send(ev)
			case <-c.quit:
				return
			}
		}
	}()
}

// current returns the live components. They may be replaced by a concurrent
// reset, after which they reject further writes.
func (s *Ethereum) current() *components {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.comps
}

// SubscribeChainHeadEvent registers a subscription of new head blocks.
func (s *Ethereum) SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription {
	return s.scope.Track(s.chainHeadFeed.Subscribe(ch))
}

// SubscribeLogsEvent registers a subscription of the logs of new blocks.
func (s *Ethereum) SubscribeLogsEvent(ch chan<- []*types.Log) event.Subscription {
	return s.scope.Track(s.logsFeed.Subscribe(ch))
}

// SubscribeTxEvents registers a subscription of pool events.
func (s *Ethereum) SubscribeTxEvents(ch chan<- txpool.TxEvent) event.Subscription {
	return s.scope.Track(s.txFeed.Subscribe(ch))
}

// APIs returns the collection of RPC services the chain service offers.
func (s *Ethereum) APIs() []rpc.API {
	apis := ethapi.GetAPIs(s.APIBackend)
	return append(apis, rpc.API{
		Namespace: "eth",
		Service:   s.filterAPI,
	})
}

func (s *Ethereum) BlockChain() *core.BlockChain { return s.current().chain }
func (s *Ethereum) TxPool() *txpool.TxPool        { return s.current().pool }
func (s *Ethereum) Miner() *miner.Miner           { return s.current().miner }
func (s *Ethereum) Overlay() *optimistic.Overlay  { return s.current().overlay }
func (s *Ethereum) Pipeline() *execution.Pipeline { return s.current().pipeline }
func (s *Ethereum) Accounts() []common.Address    { return s.accounts }

// Key returns the private key of a development account, nil for any other.
func (s *Ethereum) Key(addr common.Address) *ecdsa.PrivateKey {
	return s.keys[addr]
}

// PoolNonce returns the next nonce of addr, counting pooled transactions.
func (s *Ethereum) PoolNonce(addr common.Address) uint64 {
	return s.current().pool.Nonce(addr)
}

// SubmitTransaction adds a transaction to the pool and lets the miner react
// to it.
func (s *Ethereum) SubmitTransaction(ctx context.Context, tx *txpool.Transaction) error {
	c := s.current()
	if _, err := c.pool.Add(tx); err != nil {
		return err
	}
	return c.miner.OnTxAdded(ctx, tx)
}

// Impersonate lets transactions from addr in without a valid signature.
func (s *Ethereum) Impersonate(addr common.Address) {
	s.impersonated.Add(addr)
	log.Info("Impersonating account", "addr", addr)
}

// StopImpersonating ends the impersonation of addr.
func (s *Ethereum) StopImpersonating(addr common.Address) {
	s.impersonated.Remove(addr)
	log.Info("Stopped impersonating account", "addr", addr)
}

// SetAutoImpersonate toggles the impersonation of every sender.
func (s *Ethereum) SetAutoImpersonate(enabled bool) {
	s.autoImpersonate.Store(enabled)
	log.Info("Auto impersonation updated", "enabled", enabled)
}

// CanImpersonate reports whether unsigned transactions from addr are accepted.
func (s *Ethereum) CanImpersonate(addr common.Address) bool {
	return s.autoImpersonate.Load() || s.impersonated.Contains(addr)
}

// WriteState edits the head state and re-validates the pool against it.
func (s *Ethereum) WriteState(fn func(statedb *state.StateDB) error) error {
	c := s.current()
	if err := c.chain.WriteState(fn); err != nil {
		return err
	}
	c.pool.Reset(c.chain.CurrentBlock())
	return nil
}

// LoadState merges a dump into the head state.
func (s *Ethereum) LoadState(dump *state.Dump) error {
	return s.WriteState(func(statedb *state.StateDB) error {
		return statedb.Load(dump)
	})
}

// DumpState serializes the locally known head state.
func (s *Ethereum) DumpState(ctx context.Context) (*state.Dump, error) {
	_, statedb := s.current().chain.HeadState()
	statedb.SetContext(ctx)
	dump := statedb.Dump(nil)
	return dump, statedb.Error()
}

// Snapshot records the chain, its head state and the pool contents.
func (s *Ethereum) Snapshot() uint64 {
	c := s.current()

	c.snapMu.Lock()
	defer c.snapMu.Unlock()

	id := c.chain.Snapshot()
	pending, queued := c.pool.Content()
	var txs []*txpool.Transaction
	for _, list := range pending {
		txs = append(txs, list...)
	}
	for _, list := range queued {
		txs = append(txs, list...)
	}
	c.poolSnap[id] = txs
	return id
}

// RevertToSnapshot restores the chain, the head state and the pool to the
// given snapshot. The snapshot and all later ones are consumed.
func (s *Ethereum) RevertToSnapshot(id uint64) error {
	c := s.current()

	c.snapMu.Lock()
	defer c.snapMu.Unlock()

	if _, err := c.chain.RevertToSnapshot(id); err != nil {
		return err
	}
	txs := c.poolSnap[id]
	for sid := range c.poolSnap {
		if sid >= id {
			delete(c.poolSnap, sid)
		}
	}
	c.pool.DropAll()
	c.pool.Reset(c.chain.CurrentBlock())
	for _, tx := range txs {
		if _, err := c.pool.Add(tx); err != nil {
			log.Debug("Dropped transaction on revert", "hash", tx.Hash(), "err", err)
		}
	}
	return nil
}

// ForkInfo returns the forked endpoint and block, empty for a local chain.
func (s *Ethereum) ForkInfo() (string, uint64) {
	c := s.current()
	return c.forkURL, c.forkBlock
}

// Reset replaces the chain with a fresh one. An empty url re-forks the
// configured source, or restarts the local chain if there is none. A nil
// block forks the remote head. Impersonations are kept, pooled transactions,
// blocks and snapshots are discarded.
// Reset 用新链替换当前链。
func (s *Ethereum) Reset(ctx context.Context, url string, block *uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	var number uint64
	if url == "" {
		url = s.config.Fork.URL
		number = s.config.Fork.BlockNumber
	}
	if block != nil {
		number = *block
	}
	comps, err := s.newComponents(ctx, url, number, s.comps)
	if err != nil {
		return err
	}
	s.comps.close()
	s.comps = comps
	s.adoptCache(comps)
	log.Info("Reset chain", "fork", url, "block", comps.forkBlock)
	return nil
}

// Start implements node.Lifecycle.
func (s *Ethereum) Start() error {
	c := s.current()
	head := c.chain.CurrentBlock()
	log.Info("Started chain service", "chainid", c.chain.Config().ChainID, "head", head.Number, "accounts", len(s.accounts), "mining", c.miner.Mode())
	return nil
}

// Stop implements node.Lifecycle, writing the state file if one is
// configured.
func (s *Ethereum) Stop() error {
	var err error
	if s.statePath != "" {
		var dump *state.Dump
		if dump, err = s.DumpState(context.Background()); err == nil {
			err = state.WriteDumpFile(s.statePath, dump)
		}
		if err != nil {
			log.Error("Failed to write state file", "path", s.statePath, "err", err)
		} else {
			log.Info("Wrote state file", "path", s.statePath, "accounts", len(dump.Accounts))
		}
	}
	s.filterAPI.Close()
	s.shutdown()
	return err
}

func (s *Ethereum) shutdown() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.comps.close()
	s.scope.Close()
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			log.Warn("Failed to close fork cache", "err", err)
		}
	}
}
