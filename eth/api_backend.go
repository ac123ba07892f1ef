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

package eth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/execution"
	"github.com/evmts/tevm-node/core/optimistic"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/evmts/tevm-node/internal/version"
	"github.com/evmts/tevm-node/miner"
)

// defaultTipCap is the priority fee suggested to clients.
var defaultTipCap = big.NewInt(params.GWei)

// EthAPIBackend implements ethapi.Backend and filters.Backend on top of the
// chain service.
type EthAPIBackend struct {
	eth *Ethereum
}

// ChainConfig returns the active chain configuration.
func (b *EthAPIBackend) ChainConfig() *params.ChainConfig {
	return b.eth.BlockChain().Config()
}

func (b *EthAPIBackend) CurrentBlock() *types.Header {
	return b.eth.BlockChain().CurrentBlock()
}

func (b *EthAPIBackend) CurrentHeader() *types.Header {
	return b.eth.BlockChain().CurrentBlock()
}

// pendingBlock returns the block of the optimistic overlay.
func (b *EthAPIBackend) pendingBlock(ctx context.Context) (*types.Block, types.Receipts, error) {
	snap, err := b.eth.Overlay().State(ctx)
	if err != nil {
		return nil, nil, err
	}
	if snap.Block == nil {
		return nil, nil, snap.Err
	}
	return snap.Block, snap.Receipts, nil
}

func (b *EthAPIBackend) HeaderByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Header, error) {
	chain := b.eth.BlockChain()
	switch number {
	case rpc.PendingBlockNumber:
		block, _, err := b.pendingBlock(ctx)
		if block == nil {
			return nil, err
		}
		return block.Header(), nil
	case rpc.LatestBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
		return chain.CurrentBlock(), nil
	case rpc.EarliestBlockNumber:
		return chain.Genesis().Header(), nil
	}
	if number < 0 {
		return nil, errors.New("invalid block number")
	}
	return chain.GetHeaderByNumber(uint64(number)), nil
}

func (b *EthAPIBackend) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	return b.eth.BlockChain().GetHeaderByHash(hash), nil
}

func (b *EthAPIBackend) BlockByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Block, error) {
	chain := b.eth.BlockChain()
	switch number {
	case rpc.PendingBlockNumber:
		block, _, err := b.pendingBlock(ctx)
		return block, err
	case rpc.LatestBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
		return chain.CurrentFullBlock(), nil
	case rpc.EarliestBlockNumber:
		return chain.Genesis(), nil
	}
	if number < 0 {
		return nil, errors.New("invalid block number")
	}
	return chain.GetBlockByNumber(uint64(number)), nil
}

func (b *EthAPIBackend) BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	return b.eth.BlockChain().GetBlockByHash(hash), nil
}

func (b *EthAPIBackend) BlockByNumberOrHash(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*types.Block, error) {
	if blockNr, ok := blockNrOrHash.Number(); ok {
		return b.BlockByNumber(ctx, blockNr)
	}
	if hash, ok := blockNrOrHash.Hash(); ok {
		chain := b.eth.BlockChain()
		block := chain.GetBlockByHash(hash)
		if block == nil {
			return nil, errors.New("header for hash not found")
		}
		if blockNrOrHash.RequireCanonical {
			if canon := chain.GetHeaderByNumber(block.NumberU64()); canon == nil || canon.Hash() != hash {
				return nil, errors.New("hash is not currently canonical")
			}
		}
		return block, nil
	}
	return nil, errors.New("invalid arguments; neither block nor hash specified")
}

func (b *EthAPIBackend) StateAndHeaderByNumberOrHash(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*state.StateDB, *types.Header, error) {
	return b.eth.Pipeline().StateAndHeader(ctx, &blockNrOrHash)
}

func (b *EthAPIBackend) GetReceipts(ctx context.Context, hash common.Hash) (types.Receipts, error) {
	return b.eth.BlockChain().GetReceiptsByHash(hash), nil
}

func (b *EthAPIBackend) GetTransaction(ctx context.Context, txHash common.Hash) (bool, *types.Transaction, common.Hash, uint64, uint64, error) {
	tx, lookup, ok := b.eth.BlockChain().GetTransaction(txHash)
	if !ok {
		return false, nil, common.Hash{}, 0, 0, nil
	}
	return true, tx, lookup.BlockHash, lookup.BlockNumber, lookup.Index, nil
}

func (b *EthAPIBackend) Pipeline() *execution.Pipeline {
	return b.eth.Pipeline()
}

func (b *EthAPIBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(defaultTipCap), nil
}

func (b *EthAPIBackend) RPCGasCap() uint64 {
	return b.eth.config.RPCGasCap
}

func (b *EthAPIBackend) RPCEVMTimeout() time.Duration {
	return b.eth.config.RPCEVMTimeout
}

func (b *EthAPIBackend) RPCTxFeeCap() float64 {
	return b.eth.config.RPCTxFeeCap
}

func (b *EthAPIBackend) ClientVersion() string {
	return version.ClientName("tevm")
}

func (b *EthAPIBackend) SendTx(ctx context.Context, tx *txpool.Transaction) error {
	return b.eth.SubmitTransaction(ctx, tx)
}

func (b *EthAPIBackend) GetPoolTransaction(hash common.Hash) *txpool.Transaction {
	return b.eth.TxPool().Get(hash)
}

func (b *EthAPIBackend) GetPoolNonce(ctx context.Context, addr common.Address) (uint64, error) {
	return b.eth.TxPool().Nonce(addr), nil
}

func (b *EthAPIBackend) Stats() (pending int, queued int) {
	return b.eth.TxPool().Stats()
}

func (b *EthAPIBackend) TxPoolContent() (map[common.Address][]*txpool.Transaction, map[common.Address][]*txpool.Transaction) {
	return b.eth.TxPool().Content()
}

func (b *EthAPIBackend) TxPoolContentFrom(addr common.Address) ([]*txpool.Transaction, []*txpool.Transaction) {
	return b.eth.TxPool().ContentFrom(addr)
}

func (b *EthAPIBackend) DropTransaction(hash common.Hash) bool {
	return b.eth.TxPool().Remove(hash)
}

func (b *EthAPIBackend) DropAllTransactions() int {
	return b.eth.TxPool().DropAll()
}

func (b *EthAPIBackend) Accounts() []common.Address {
	return b.eth.Accounts()
}

func (b *EthAPIBackend) AccountKey(addr common.Address) *ecdsa.PrivateKey {
	return b.eth.Key(addr)
}

func (b *EthAPIBackend) Impersonate(addr common.Address) {
	b.eth.Impersonate(addr)
}

func (b *EthAPIBackend) StopImpersonating(addr common.Address) {
	b.eth.StopImpersonating(addr)
}

func (b *EthAPIBackend) SetAutoImpersonate(enabled bool) {
	b.eth.SetAutoImpersonate(enabled)
}

func (b *EthAPIBackend) CanImpersonate(addr common.Address) bool {
	return b.eth.CanImpersonate(addr)
}

func (b *EthAPIBackend) Miner() *miner.Miner {
	return b.eth.Miner()
}

func (b *EthAPIBackend) WriteState(fn func(statedb *state.StateDB) error) error {
	return b.eth.WriteState(fn)
}

func (b *EthAPIBackend) Snapshot() uint64 {
	return b.eth.Snapshot()
}

func (b *EthAPIBackend) RevertToSnapshot(id uint64) error {
	return b.eth.RevertToSnapshot(id)
}

func (b *EthAPIBackend) DumpState(ctx context.Context) (*state.Dump, error) {
	return b.eth.DumpState(ctx)
}

func (b *EthAPIBackend) LoadState(dump *state.Dump) error {
	return b.eth.LoadState(dump)
}

func (b *EthAPIBackend) ForkInfo() (string, uint64) {
	return b.eth.ForkInfo()
}

func (b *EthAPIBackend) Reset(ctx context.Context, url string, block *uint64) error {
	return b.eth.Reset(ctx, url, block)
}

func (b *EthAPIBackend) OptimisticState(ctx context.Context) (*optimistic.Snapshot, error) {
	return b.eth.Overlay().State(ctx)
}

func (b *EthAPIBackend) SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription {
	return b.eth.SubscribeChainHeadEvent(ch)
}

func (b *EthAPIBackend) SubscribeLogsEvent(ch chan<- []*types.Log) event.Subscription {
	return b.eth.SubscribeLogsEvent(ch)
}

func (b *EthAPIBackend) SubscribeTxEvents(ch chan<- txpool.TxEvent) event.Subscription {
	return b.eth.SubscribeTxEvents(ch)
}
