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

// Package ethapi implements the JSON-RPC procedures of the node.
package ethapi

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/evmts/tevm-node/core/execution"
	"github.com/evmts/tevm-node/core/optimistic"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/evmts/tevm-node/miner"
)

// Backend interface provides the API services with access to the node.
// Backend 接口为 API 服务提供对节点的访问。
type Backend interface {
	// General Ethereum API
	ChainConfig() *params.ChainConfig
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	RPCGasCap() uint64            // global gas cap for eth_call over rpc
	RPCEVMTimeout() time.Duration // global timeout for eth_call over rpc
	RPCTxFeeCap() float64         // global tx fee cap for all transaction related APIs
	ClientVersion() string

	// Blockchain API
	CurrentHeader() *types.Header
	CurrentBlock() *types.Header
	HeaderByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Header, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	BlockByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Block, error)
	BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
	BlockByNumberOrHash(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*types.Block, error)
	StateAndHeaderByNumberOrHash(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*state.StateDB, *types.Header, error)
	GetReceipts(ctx context.Context, hash common.Hash) (types.Receipts, error)
	GetTransaction(ctx context.Context, txHash common.Hash) (bool, *types.Transaction, common.Hash, uint64, uint64, error)
	Pipeline() *execution.Pipeline

	// Transaction pool API
	SendTx(ctx context.Context, tx *txpool.Transaction) error
	GetPoolTransaction(txHash common.Hash) *txpool.Transaction
	GetPoolNonce(ctx context.Context, addr common.Address) (uint64, error)
	Stats() (pending int, queued int)
	TxPoolContent() (map[common.Address][]*txpool.Transaction, map[common.Address][]*txpool.Transaction)
	TxPoolContentFrom(addr common.Address) ([]*txpool.Transaction, []*txpool.Transaction)
	DropTransaction(hash common.Hash) bool
	DropAllTransactions() int

	// Accounts
	Accounts() []common.Address
	AccountKey(addr common.Address) *ecdsa.PrivateKey
	Impersonate(addr common.Address)
	StopImpersonating(addr common.Address)
	SetAutoImpersonate(enabled bool)
	CanImpersonate(addr common.Address) bool

	// Development node controls
	Miner() *miner.Miner
	WriteState(fn func(statedb *state.StateDB) error) error
	Snapshot() uint64
	RevertToSnapshot(id uint64) error
	DumpState(ctx context.Context) (*state.Dump, error)
	LoadState(dump *state.Dump) error
	ForkInfo() (url string, block uint64)
	Reset(ctx context.Context, url string, block *uint64) error
	OptimisticState(ctx context.Context) (*optimistic.Snapshot, error)
}

// GetAPIs returns the services of every namespace served by the node.
func GetAPIs(apiBackend Backend) []rpc.API {
	nonceLock := new(AddrLocker)
	return []rpc.API{
		{
			Namespace: "eth",
			Service:   NewEthereumAPI(apiBackend),
		}, {
			Namespace: "eth",
			Service:   NewBlockChainAPI(apiBackend),
		}, {
			Namespace: "eth",
			Service:   NewTransactionAPI(apiBackend, nonceLock),
		}, {
			Namespace: "txpool",
			Service:   NewTxPoolAPI(apiBackend),
		}, {
			Namespace: "net",
			Service:   NewNetAPI(apiBackend),
		}, {
			Namespace: "web3",
			Service:   NewWeb3API(apiBackend),
		}, {
			Namespace: "anvil",
			Service:   NewAnvilAPI(apiBackend),
		}, {
			Namespace: "evm",
			Service:   NewEvmAPI(apiBackend),
		}, {
			Namespace: "tevm",
			Service:   NewTevmAPI(apiBackend, nonceLock),
		},
	}
}
