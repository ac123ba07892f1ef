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

// Package miner implements block creation for the node: it decides when to
// mine and seals the pooled transactions into blocks on top of the canonical
// chain.
package miner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/txpool"
)

// ErrTimestampTooLow is returned when the next block timestamp would not be
// after the current head.
var ErrTimestampTooLow = errors.New("timestamp must be after the head block")

// MaxMineBlocks is the largest number of blocks a single Mine call produces.
const MaxMineBlocks = 1 << 20

// ErrTooManyBlocks is returned when more than MaxMineBlocks blocks are
// requested at once.
var ErrTooManyBlocks = errors.New("too many blocks requested")

// Config is the configuration parameters of mining.
type Config struct {
	Coinbase  common.Address `toml:",omitempty"` // Recipient of block fees
	ExtraData hexutil.Bytes  `toml:",omitempty"` // Block extra data set by the miner
	GasCeil   uint64         // Gas limit of mined blocks
	AutoMine  bool           // Mine a block for every submitted transaction
	BlockTime time.Duration  // Mine on a fixed period if non-zero, overrides AutoMine
}

// DefaultConfig contains default settings for the miner.
var DefaultConfig = Config{
	GasCeil:  core.DevGasLimit,
	AutoMine: true,
}

// Mode returns the mining mode selected by the config.
func (c *Config) Mode() Mode {
	switch {
	case c.BlockTime > 0:
		return IntervalMode(c.BlockTime)
	case c.AutoMine:
		return AutoMode()
	}
	return ManualMode()
}

// ModeKind enumerates the mining policies.
type ModeKind int

const (
	Manual   ModeKind = iota // Only mine on request
	Auto                     // Mine after every accepted transaction
	Interval                 // Mine on a fixed wall-clock period
	GasLimit                 // Mine once the pending gas reaches a threshold
)

// Mode is a mining policy together with its parameter.
// Mode 是挖矿策略及其参数。
type Mode struct {
	Kind      ModeKind
	Interval  time.Duration // Block period of Interval
	Threshold uint64        // Pending gas threshold of GasLimit
}

func ManualMode() Mode                       { return Mode{Kind: Manual} }
func AutoMode() Mode                         { return Mode{Kind: Auto} }
func IntervalMode(period time.Duration) Mode { return Mode{Kind: Interval, Interval: period} }
func GasLimitMode(threshold uint64) Mode     { return Mode{Kind: GasLimit, Threshold: threshold} }

func (m Mode) String() string {
	switch m.Kind {
	case Auto:
		return "auto"
	case Interval:
		return fmt.Sprintf("interval(%v)", m.Interval)
	case GasLimit:
		return fmt.Sprintf("gaslimit(%d)", m.Threshold)
	}
	return "manual"
}

// Miner controls when blocks are mined and with which parameters. At most one
// mining operation runs at a time.
// Miner 控制何时以及以何种参数挖出区块，同一时间最多只有一个挖矿操作。
type Miner struct {
	chain *core.BlockChain
	pool  *txpool.TxPool
	now   func() time.Time

	mineMu sync.Mutex // Serializes mining operations

	lock          sync.RWMutex // Protects the fields below
	mode          Mode
	coinbase      common.Address
	extra         []byte
	gasLimit      uint64
	timeOffset    int64   // Seconds added to the wall clock
	nextTimestamp *uint64 // One-shot timestamp of the next block
	nextBaseFee   *big.Int
	stopInterval  chan struct{}

	wg sync.WaitGroup
}

// New creates a miner on top of the chain and its pool. The interval loop is
// started if the config selects it.
func New(config Config, chain *core.BlockChain, pool *txpool.TxPool) *Miner {
	gasLimit := config.GasCeil
	if gasLimit == 0 {
		gasLimit = chain.CurrentBlock().GasLimit
	}
	miner := &Miner{
		chain:    chain,
		pool:     pool,
		now:      time.Now,
		coinbase: config.Coinbase,
		extra:    common.CopyBytes(config.ExtraData),
		gasLimit: gasLimit,
	}
	miner.SetMode(config.Mode())
	return miner
}

// Close stops the interval loop, if any, and waits for it to exit.
func (miner *Miner) Close() {
	miner.lock.Lock()
	miner.stopLoop()
	miner.lock.Unlock()
	miner.wg.Wait()
}

// Mode returns the current mining policy.
func (miner *Miner) Mode() Mode {
	miner.lock.RLock()
	defer miner.lock.RUnlock()

	return miner.mode
}

// SetMode switches the mining policy. Switching to Interval starts a new
// mining loop, switching away stops it.
// SetMode 切换挖矿策略。
func (miner *Miner) SetMode(mode Mode) {
	miner.lock.Lock()
	defer miner.lock.Unlock()

	miner.stopLoop()
	miner.mode = mode
	if mode.Kind == Interval && mode.Interval > 0 {
		miner.stopInterval = make(chan struct{})
		miner.wg.Add(1)
		go miner.intervalLoop(mode.Interval, miner.stopInterval)
	}
	log.Info("Mining mode updated", "mode", mode)
}

// stopLoop must be called with the lock held.
func (miner *Miner) stopLoop() {
	if miner.stopInterval != nil {
		close(miner.stopInterval)
		miner.stopInterval = nil
	}
}

func (miner *Miner) intervalLoop(period time.Duration, stop chan struct{}) {
	defer miner.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := miner.Mine(context.Background(), 1, 0); err != nil {
				log.Warn("Interval mining failed", "err", err)
			}
		case <-stop:
			return
		}
	}
}

// OnTxAdded is called after a transaction was accepted into the pool and
// mines according to the current policy.
func (miner *Miner) OnTxAdded(ctx context.Context, tx *txpool.Transaction) error {
	mode := miner.Mode()
	switch mode.Kind {
	case Auto:
	case GasLimit:
		if miner.pool.PendingGas() < mode.Threshold {
			return nil
		}
	default:
		return nil
	}
	log.Debug("Mining triggered by transaction", "hash", tx.Hash(), "mode", mode)
	_, err := miner.Mine(ctx, 1, 0)
	return err
}

// Coinbase returns the recipient of block fees.
func (miner *Miner) Coinbase() common.Address {
	miner.lock.RLock()
	defer miner.lock.RUnlock()

	return miner.coinbase
}

// SetCoinbase sets the recipient of block fees.
func (miner *Miner) SetCoinbase(addr common.Address) {
	miner.lock.Lock()
	defer miner.lock.Unlock()

	miner.coinbase = addr
}

// SetExtra sets the extra data of mined blocks.
func (miner *Miner) SetExtra(extra []byte) {
	miner.lock.Lock()
	defer miner.lock.Unlock()

	miner.extra = common.CopyBytes(extra)
}

// GasLimit returns the gas limit of mined blocks.
func (miner *Miner) GasLimit() uint64 {
	miner.lock.RLock()
	defer miner.lock.RUnlock()

	return miner.gasLimit
}

// SetGasLimit sets the gas limit of mined blocks.
func (miner *Miner) SetGasLimit(limit uint64) {
	miner.lock.Lock()
	defer miner.lock.Unlock()

	miner.gasLimit = limit
}

// SetNextBaseFee overrides the base fee of the next block only.
func (miner *Miner) SetNextBaseFee(fee *big.Int) {
	miner.lock.Lock()
	defer miner.lock.Unlock()

	miner.nextBaseFee = new(big.Int).Set(fee)
}

// SetNextBlockTimestamp fixes the timestamp of the next block only.
func (miner *Miner) SetNextBlockTimestamp(timestamp uint64) error {
	if head := miner.chain.CurrentBlock(); timestamp <= head.Time {
		return fmt.Errorf("%w: %d <= %d", ErrTimestampTooLow, timestamp, head.Time)
	}
	miner.lock.Lock()
	defer miner.lock.Unlock()

	miner.nextTimestamp = &timestamp
	return nil
}

// IncreaseTime moves the clock of future blocks forward and returns the total
// offset in seconds.
func (miner *Miner) IncreaseTime(seconds int64) int64 {
	miner.lock.Lock()
	defer miner.lock.Unlock()

	miner.timeOffset += seconds
	return miner.timeOffset
}

// SetTime sets the clock of future blocks to timestamp, returning the
// resulting offset in seconds.
func (miner *Miner) SetTime(timestamp uint64) int64 {
	miner.lock.Lock()
	defer miner.lock.Unlock()

	miner.timeOffset = int64(timestamp) - miner.now().Unix()
	return miner.timeOffset
}

// Reset clears all one-shot overrides and the time offset.
func (miner *Miner) Reset() {
	miner.lock.Lock()
	defer miner.lock.Unlock()

	miner.timeOffset = 0
	miner.nextTimestamp = nil
	miner.nextBaseFee = nil
}
