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

package miner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/execution"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
)

var (
	minedBlockMeter   = metrics.NewRegisteredMeter("miner/blocks", nil)
	minedTxMeter      = metrics.NewRegisteredMeter("miner/txs", nil)
	droppedTxMeter    = metrics.NewRegisteredMeter("miner/dropped", nil)
	skippedTxMeter    = metrics.NewRegisteredMeter("miner/skipped", nil)
	commitTxsTimer    = metrics.NewRegisteredTimer("miner/commit", nil)
	mineFailuresMeter = metrics.NewRegisteredMeter("miner/failures", nil)
)

// environment is the worker's current environment and holds all
// information of the sealing block generation.
type environment struct {
	env      *execution.Env
	state    *state.StateDB
	gasPool  *gethcore.GasPool
	tcount   int
	usedGas  uint64
	txs      []*types.Transaction
	receipts []*types.Receipt

	included []common.Hash // Pooled transactions sealed into the block
	dropped  []common.Hash // Pooled transactions that can never execute
}

// blockParams are the operator controlled fields of the next block.
type blockParams struct {
	coinbase  common.Address
	extra     []byte
	gasLimit  uint64
	timestamp uint64
	baseFee   *big.Int

	fixedTime bool // timestamp came from SetNextBlockTimestamp
}

// Mine mines n blocks one after the other. The first block is timestamped by
// the miner clock; if interval is non-zero, each following block is interval
// seconds after its parent. The mined blocks are returned even if a later
// block failed.
// Mine 依次挖出 n 个区块。
func (miner *Miner) Mine(ctx context.Context, n int, interval uint64) ([]*types.Block, error) {
	if n < 0 || n > MaxMineBlocks {
		return nil, fmt.Errorf("%w: %d, limit %d", ErrTooManyBlocks, n, MaxMineBlocks)
	}
	miner.mineMu.Lock()
	defer miner.mineMu.Unlock()

	var blocks []*types.Block
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return blocks, err
		}
		parent := miner.chain.CurrentBlock()
		bp := miner.nextParams(parent)
		if i > 0 && interval > 0 && !bp.fixedTime {
			bp.timestamp = parent.Time + interval
		}
		block, err := miner.mineBlock(ctx, bp)
		if err != nil {
			mineFailuresMeter.Mark(1)
			return blocks, err
		}
		miner.consumeOverrides(bp)
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// nextParams resolves the parameters of the child of parent.
func (miner *Miner) nextParams(parent *types.Header) blockParams {
	miner.lock.RLock()
	defer miner.lock.RUnlock()

	p := blockParams{
		coinbase: miner.coinbase,
		extra:    common.CopyBytes(miner.extra),
		gasLimit: miner.gasLimit,
	}
	if miner.nextBaseFee != nil {
		p.baseFee = new(big.Int).Set(miner.nextBaseFee)
	}
	if miner.nextTimestamp != nil {
		p.timestamp, p.fixedTime = *miner.nextTimestamp, true
	} else {
		p.timestamp = uint64(miner.now().Unix() + miner.timeOffset)
	}
	if p.timestamp <= parent.Time {
		p.timestamp = parent.Time + 1
	}
	return p
}

// header assembles the header of the child of parent.
func (p blockParams) header(config *params.ChainConfig, parent *types.Header) *types.Header {
	header := core.MakeHeader(config, parent, core.HeaderParams{
		Coinbase: p.coinbase,
		Time:     p.timestamp,
		GasLimit: p.gasLimit,
		BaseFee:  p.baseFee,
	})
	header.Extra = p.extra
	return header
}

// PendingHeader returns the header the next mined block on top of parent
// would get. One-shot overrides are not consumed.
// PendingHeader 返回下一个区块将获得的头部，不消耗一次性覆盖。
func (miner *Miner) PendingHeader(parent *types.Header) *types.Header {
	return miner.nextParams(parent).header(miner.chain.Config(), parent)
}

// consumeOverrides clears the one-shot overrides used by a mined block.
func (miner *Miner) consumeOverrides(p blockParams) {
	miner.lock.Lock()
	defer miner.lock.Unlock()

	if p.fixedTime {
		miner.nextTimestamp = nil
		// Keep the clock running from the forced timestamp.
		miner.timeOffset = int64(p.timestamp) - miner.now().Unix()
	}
	if p.baseFee != nil {
		miner.nextBaseFee = nil
	}
}

// mineBlock seals the executable pooled transactions into the next block and
// appends it. The pool is updated afterwards.
func (miner *Miner) mineBlock(ctx context.Context, p blockParams) (*types.Block, error) {
	var w *environment
	block, _, err := miner.chain.AppendBlock(func(parent *types.Header, statedb *state.StateDB) (*types.Block, types.Receipts, error) {
		config := miner.chain.Config()
		header := p.header(config, parent)

		statedb.SetContext(ctx)
		defer statedb.SetContext(context.Background())

		w = &environment{
			env:     execution.NewEnv(config, miner.chain, header),
			state:   statedb,
			gasPool: new(gethcore.GasPool).AddGas(header.GasLimit),
		}
		// The whole block is one checkpoint so that an aborted block leaves
		// nothing behind.
		statedb.Checkpoint()
		if err := miner.commitTransactions(w, miner.pool.TxsByPriceAndNonce(header.BaseFee)); err != nil {
			statedb.Revert()
			return nil, nil, err
		}
		if err := statedb.Commit(); err != nil {
			return nil, nil, err
		}
		root := statedb.IntermediateRoot(config.IsEIP158(header.Number))
		if err := statedb.Error(); err != nil {
			return nil, nil, err
		}
		return core.SealBlock(config, header, root, w.txs, w.receipts), w.receipts, nil
	})
	if err != nil {
		return nil, err
	}
	miner.pool.RemoveMined(w.included, w.dropped)
	miner.pool.Reset(block.Header())

	minedBlockMeter.Mark(1)
	minedTxMeter.Mark(int64(len(w.included)))
	droppedTxMeter.Mark(int64(len(w.dropped)))
	log.Info("Mined block", "number", block.Number(), "hash", block.Hash(), "txs", len(w.included),
		"dropped", len(w.dropped), "gas", block.GasUsed(), "time", block.Time())
	return block, nil
}

// commitTransactions executes the ordered transactions against the block
// state. Transactions whose preconditions no longer hold are skipped and stay
// pooled, transactions whose nonce was already used are dropped. Only a failed
// remote state read aborts the block.
func (miner *Miner) commitTransactions(w *environment, txs *txpool.TransactionsByPriceAndNonce) error {
	defer func(t0 time.Time) {
		commitTxsTimer.Update(time.Since(t0))
	}(time.Now())

	for {
		// If we don't have enough gas for any further transactions then we're done.
		if w.gasPool.Gas() < params.TxGas {
			log.Trace("Not enough gas for further transactions", "have", w.gasPool, "want", params.TxGas)
			break
		}
		// Retrieve the next transaction and abort if all done.
		tx, _ := txs.Peek()
		if tx == nil {
			break
		}
		// If we don't have enough space for the next transaction, skip the account.
		if w.gasPool.Gas() < tx.Tx.Gas() {
			log.Trace("Not enough gas left for transaction", "hash", tx.Hash(), "left", w.gasPool.Gas(), "needed", tx.Tx.Gas())
			skippedTxMeter.Mark(1)
			txs.Pop()
			continue
		}
		// A transaction already in the chain must never be included twice.
		if miner.chain.HasTransaction(tx.Hash()) {
			log.Debug("Dropping already included transaction", "hash", tx.Hash())
			w.dropped = append(w.dropped, tx.Hash())
			txs.Shift()
			continue
		}
		receipt, err := execution.ApplyTransaction(w.env, w.state, w.gasPool, tx, w.tcount, &w.usedGas)
		switch {
		case err == nil:
			// Everything ok, shift in the next transaction from the same account
			w.txs = append(w.txs, tx.Tx)
			w.receipts = append(w.receipts, receipt)
			w.included = append(w.included, tx.Hash())
			w.tcount++
			txs.Shift()

		case errors.Is(err, execution.ErrStateUnavailable):
			return err

		case errors.Is(err, gethcore.ErrNonceTooLow):
			// The nonce was consumed by another transaction, this one can never run
			log.Trace("Dropping transaction with low nonce", "hash", tx.Hash(), "sender", tx.From, "nonce", tx.Nonce())
			w.dropped = append(w.dropped, tx.Hash())
			txs.Shift()

		default:
			// Stale precondition (nonce gap, funds, gas), leave the account for later
			log.Debug("Skipping transaction", "hash", tx.Hash(), "sender", tx.From, "err", err)
			skippedTxMeter.Mark(1)
			txs.Pop()
		}
	}
	return nil
}
