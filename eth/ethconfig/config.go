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

// Package ethconfig contains the configuration of the node's chain service.
package ethconfig

import (
	"math/big"
	"time"

	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/execution"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/evmts/tevm-node/eth/filters"
	"github.com/evmts/tevm-node/miner"
)

// ForkConfig selects the remote chain to fork and how its state is fetched.
// ForkConfig 选择要分叉的远程链以及获取其状态的方式。
type ForkConfig struct {
	URL         string `toml:",omitempty"` // JSON-RPC endpoint, empty for a local chain
	BlockNumber uint64 `toml:",omitempty"` // Fork block, 0 for the remote head

	CacheDir     string `toml:",omitempty"` // Persistent fork cache, empty for memory only
	CacheBackend string `toml:",omitempty"` // "leveldb" or "pebble"
	CacheSize    int    // Clean cache size in bytes

	Timeout   time.Duration // Bound of a single remote read
	Retries   uint64        // Extra attempts of a timed out read
	RateLimit float64       // Remote reads per second, 0 for unlimited
}

// Enabled reports whether a remote chain is forked.
func (c *ForkConfig) Enabled() bool {
	return c.URL != ""
}

// Defaults contains default settings for use on a local development chain.
var Defaults = Config{
	Accounts: 10,
	GasLimit: core.DevGasLimit,
	Fork: ForkConfig{
		CacheBackend: "leveldb",
		CacheSize:    64 * 1024 * 1024,
		Timeout:      20 * time.Second,
		Retries:      5,
	},
	TxPool:        txpool.DefaultConfig,
	Miner:         miner.DefaultConfig,
	Filter:        filters.DefaultConfig,
	RPCGasCap:     execution.DefaultConfig.GasCap,
	RPCEVMTimeout: execution.DefaultConfig.Timeout,
}

// Config contains configuration options for the chain service.
// Config 包含链服务的配置选项。
type Config struct {
	// ChainID of the chain. If 0, a local chain uses the development id and
	// a forked chain the id of the remote one.
	ChainID uint64 `toml:",omitempty"`

	// Number of funded development accounts.
	Accounts int

	// Gas limit of the genesis block.
	GasLimit uint64

	// Base fee of the genesis block, the protocol default if nil.
	BaseFee *big.Int `toml:",omitempty"`

	// Timestamp of the genesis block of a local chain, the current time if 0.
	Timestamp uint64 `toml:",omitempty"`

	Fork ForkConfig

	// Impersonate every sender without a local key.
	AutoImpersonate bool

	// State file loaded on start and written on shutdown. A .sz extension
	// selects snappy compression.
	StatePath string `toml:",omitempty"`

	TxPool txpool.Config
	Miner  miner.Config
	Filter filters.Config

	// RPCGasCap is the global gas cap for eth-call variants.
	RPCGasCap uint64

	// RPCEVMTimeout is the global timeout for eth-call.
	RPCEVMTimeout time.Duration

	// RPCTxFeeCap is the global transaction fee (price * gaslimit) cap for
	// send-transaction variants. The unit is ether, 0 disables the cap.
	RPCTxFeeCap float64
}
