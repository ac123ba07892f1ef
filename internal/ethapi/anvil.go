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

package ethapi

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/miner"
	"github.com/holiman/uint256"
)

// AnvilAPI offers the node controls of the anvil namespace: impersonation,
// mining modes, direct state edits, time travel and snapshots.
// AnvilAPI 提供 anvil 命名空间的节点控制。
type AnvilAPI struct {
	b Backend
}

// NewAnvilAPI creates the anvil namespace service.
func NewAnvilAPI(b Backend) *AnvilAPI {
	return &AnvilAPI{b}
}

// ImpersonateAccount lets transactions from addr be sent without its key.
func (api *AnvilAPI) ImpersonateAccount(addr common.Address) {
	api.b.Impersonate(addr)
	log.Info("Impersonating account", "addr", addr)
}

// StopImpersonatingAccount reverts ImpersonateAccount.
func (api *AnvilAPI) StopImpersonatingAccount(addr common.Address) {
	api.b.StopImpersonating(addr)
}

// AutoImpersonateAccount toggles impersonation of every account.
func (api *AnvilAPI) AutoImpersonateAccount(enabled bool) {
	api.b.SetAutoImpersonate(enabled)
}

// GetAutomine reports whether a block is mined for every accepted transaction.
func (api *AnvilAPI) GetAutomine() bool {
	return api.b.Miner().Mode().Kind == miner.Auto
}

// SetAutomine switches between automatic and manual mining.
// SetAutomine 在自动挖矿和手动挖矿之间切换。
func (api *AnvilAPI) SetAutomine(enabled bool) {
	if enabled {
		api.b.Miner().SetMode(miner.AutoMode())
	} else {
		api.b.Miner().SetMode(miner.ManualMode())
	}
}

// SetIntervalMining mines a block every given number of seconds. Zero
// switches to manual mining.
func (api *AnvilAPI) SetIntervalMining(seconds uint64) {
	if seconds == 0 {
		api.b.Miner().SetMode(miner.ManualMode())
		return
	}
	api.b.Miner().SetMode(miner.IntervalMode(time.Duration(seconds) * time.Second))
}

// Mine mines the given number of blocks, one by default. With an interval
// every block after the first is that many seconds after its parent.
// Mine 挖出给定数量的区块，默认一个。
func (api *AnvilAPI) Mine(ctx context.Context, blocks *hexutil.Uint64, interval *hexutil.Uint64) error {
	_, err := api.mine(ctx, blocks, interval)
	return err
}

func (api *AnvilAPI) mine(ctx context.Context, blocks *hexutil.Uint64, interval *hexutil.Uint64) ([]common.Hash, error) {
	n, step := uint64(1), uint64(0)
	if blocks != nil {
		n = uint64(*blocks)
	}
	if n > miner.MaxMineBlocks {
		return nil, invalidParams("cannot mine %d blocks at once, limit %d", n, miner.MaxMineBlocks)
	}
	if interval != nil {
		step = uint64(*interval)
	}
	mined, err := api.b.Miner().Mine(ctx, int(n), step)
	hashes := make([]common.Hash, len(mined))
	for i, block := range mined {
		hashes[i] = block.Hash()
	}
	if err != nil {
		return hashes, classify(err)
	}
	return hashes, nil
}

// DropTransaction removes a transaction from the pool, returning its hash if
// it was there.
func (api *AnvilAPI) DropTransaction(hash common.Hash) *common.Hash {
	if api.b.DropTransaction(hash) {
		return &hash
	}
	return nil
}

// DropAllTransactions empties the pool.
func (api *AnvilAPI) DropAllTransactions() {
	n := api.b.DropAllTransactions()
	log.Info("Dropped all pool transactions", "count", n)
}

// SetBalance overwrites the balance of an account.
// SetBalance 覆盖账户余额。
func (api *AnvilAPI) SetBalance(addr common.Address, balance hexutil.Big) (bool, error) {
	value, overflow := uint256.FromBig(balance.ToInt())
	if overflow || balance.ToInt().Sign() < 0 {
		return false, invalidParams("balance out of range: %v", balance.ToInt())
	}
	return api.write(func(statedb *state.StateDB) { statedb.SetBalance(addr, value) })
}

// SetCode overwrites the code of an account. Its storage is kept.
func (api *AnvilAPI) SetCode(addr common.Address, code hexutil.Bytes) (bool, error) {
	return api.write(func(statedb *state.StateDB) { statedb.SetCode(addr, code) })
}

// SetNonce overwrites the nonce of an account.
func (api *AnvilAPI) SetNonce(addr common.Address, nonce hexutil.Uint64) (bool, error) {
	return api.write(func(statedb *state.StateDB) { statedb.SetNonce(addr, uint64(nonce), tracing.NonceChangeUnspecified) })
}

// SetStorageAt overwrites one storage slot of an account.
func (api *AnvilAPI) SetStorageAt(addr common.Address, slot string, value string) (bool, error) {
	key, err := decodeHash(slot)
	if err != nil {
		return false, invalidParams("unable to decode storage key: %s", err)
	}
	val, err := decodeHash(value)
	if err != nil {
		return false, invalidParams("unable to decode storage value: %s", err)
	}
	return api.write(func(statedb *state.StateDB) { statedb.SetState(addr, key, val) })
}

func (api *AnvilAPI) write(fn func(statedb *state.StateDB)) (bool, error) {
	err := api.b.WriteState(func(statedb *state.StateDB) error {
		fn(statedb)
		return statedb.Error()
	})
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

// SetCoinbase sets the beneficiary of future blocks.
func (api *AnvilAPI) SetCoinbase(addr common.Address) {
	api.b.Miner().SetCoinbase(addr)
}

// SetBlockGasLimit sets the gas limit of future blocks.
func (api *AnvilAPI) SetBlockGasLimit(limit hexutil.Uint64) (bool, error) {
	if limit == 0 {
		return false, invalidParams("gas limit must be positive")
	}
	api.b.Miner().SetGasLimit(uint64(limit))
	return true, nil
}

// SetNextBlockBaseFeePerGas overrides the base fee of the next block.
func (api *AnvilAPI) SetNextBlockBaseFeePerGas(fee hexutil.Big) error {
	if fee.ToInt().Sign() < 0 {
		return invalidParams("negative base fee")
	}
	api.b.Miner().SetNextBaseFee(fee.ToInt())
	return nil
}

// IncreaseTime moves the clock of future blocks forward, returning the total
// offset in seconds.
// IncreaseTime 将后续区块的时钟向前调整，返回总偏移秒数。
func (api *AnvilAPI) IncreaseTime(seconds math.HexOrDecimal64) int64 {
	return api.b.Miner().IncreaseTime(int64(seconds))
}

// SetNextBlockTimestamp fixes the timestamp of the next block, which must be
// after the head block.
func (api *AnvilAPI) SetNextBlockTimestamp(timestamp math.HexOrDecimal64) error {
	if err := api.b.Miner().SetNextBlockTimestamp(uint64(timestamp)); err != nil {
		if errors.Is(err, miner.ErrTimestampTooLow) {
			return invalidParams("%v", err)
		}
		return classify(err)
	}
	return nil
}

// Snapshot records the chain, state and pool, returning the snapshot id.
// Snapshot 记录链、状态和交易池，返回快照 id。
func (api *AnvilAPI) Snapshot() hexutil.Uint64 {
	return hexutil.Uint64(api.b.Snapshot())
}

// Revert restores a snapshot. The snapshot and every later one are consumed.
// Revert 恢复快照，该快照及之后的快照都会被消耗。
func (api *AnvilAPI) Revert(id hexutil.Uint64) (bool, error) {
	if err := api.b.RevertToSnapshot(uint64(id)); err != nil {
		return false, classify(err)
	}
	return true, nil
}

// DumpState serializes the local state as snappy-compressed JSON.
func (api *AnvilAPI) DumpState(ctx context.Context) (hexutil.Bytes, error) {
	dump, err := api.b.DumpState(ctx)
	if err != nil {
		return nil, classify(err)
	}
	blob, err := state.EncodeDump(dump)
	if err != nil {
		return nil, internalError(err)
	}
	return blob, nil
}

// LoadState merges a state produced by DumpState into the current state.
func (api *AnvilAPI) LoadState(blob hexutil.Bytes) (bool, error) {
	dump, err := state.DecodeDump(blob)
	if err != nil {
		return false, invalidParams("%v", err)
	}
	if err := api.b.LoadState(dump); err != nil {
		return false, classify(err)
	}
	return true, nil
}

// NodeEnvironment describes the chain the node runs.
type NodeEnvironment struct {
	BaseFee  *hexutil.Big   `json:"baseFee"`
	ChainID  hexutil.Uint64 `json:"chainId"`
	GasLimit hexutil.Uint64 `json:"gasLimit"`
	GasPrice *hexutil.Big   `json:"gasPrice"`
}

// NodeForkConfig describes the fork source, empty when not forking.
type NodeForkConfig struct {
	ForkURL         string `json:"forkUrl,omitempty"`
	ForkBlockNumber uint64 `json:"forkBlockNumber,omitempty"`
}

// NodeInfo is the answer of anvil_nodeInfo.
type NodeInfo struct {
	CurrentBlockNumber    hexutil.Uint64  `json:"currentBlockNumber"`
	CurrentBlockTimestamp uint64          `json:"currentBlockTimestamp"`
	CurrentBlockHash      common.Hash     `json:"currentBlockHash"`
	HardFork              string          `json:"hardFork"`
	MiningMode            string          `json:"miningMode"`
	Environment           NodeEnvironment `json:"environment"`
	ForkConfig            NodeForkConfig  `json:"forkConfig"`
}

// NodeInfo reports the head, chain parameters and fork source of the node.
// NodeInfo 报告节点的链头、链参数和分叉源。
func (api *AnvilAPI) NodeInfo(ctx context.Context) (*NodeInfo, error) {
	head := api.b.CurrentHeader()
	config := api.b.ChainConfig()
	price, err := NewEthereumAPI(api.b).GasPrice(ctx)
	if err != nil {
		return nil, classify(err)
	}
	url, block := api.b.ForkInfo()
	info := &NodeInfo{
		CurrentBlockNumber:    hexutil.Uint64(head.Number.Uint64()),
		CurrentBlockTimestamp: head.Time,
		CurrentBlockHash:      head.Hash(),
		HardFork:              hardFork(config, head),
		MiningMode:            api.b.Miner().Mode().String(),
		Environment: NodeEnvironment{
			BaseFee:  (*hexutil.Big)(head.BaseFee),
			ChainID:  hexutil.Uint64(config.ChainID.Uint64()),
			GasLimit: hexutil.Uint64(api.b.Miner().GasLimit()),
			GasPrice: price,
		},
	}
	if url != "" {
		info.ForkConfig = NodeForkConfig{ForkURL: url, ForkBlockNumber: block}
	}
	return info, nil
}

// hardFork names the fork active at the head block.
func hardFork(config *params.ChainConfig, head *types.Header) string {
	switch {
	case config.IsPrague(head.Number, head.Time):
		return "prague"
	case config.IsCancun(head.Number, head.Time):
		return "cancun"
	case config.IsShanghai(head.Number, head.Time):
		return "shanghai"
	case config.IsLondon(head.Number):
		return "london"
	case config.IsBerlin(head.Number):
		return "berlin"
	}
	return "istanbul"
}

// ForkingOptions selects the fork source of anvil_reset.
type ForkingOptions struct {
	JSONRPCURL  string          `json:"jsonRpcUrl"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
}

// ResetOptions are the parameters of anvil_reset.
type ResetOptions struct {
	Forking *ForkingOptions `json:"forking"`
}

// Reset throws away the chain, state and pool and starts over. Without
// options the node re-forks its configured source at the configured block.
// Reset 丢弃链、状态和交易池并重新开始。
func (api *AnvilAPI) Reset(ctx context.Context, opts *ResetOptions) error {
	var (
		url   string
		block *uint64
	)
	if opts != nil && opts.Forking != nil {
		url = opts.Forking.JSONRPCURL
		if opts.Forking.BlockNumber != nil {
			n := uint64(*opts.Forking.BlockNumber)
			block = &n
		}
	}
	if err := api.b.Reset(ctx, url, block); err != nil {
		return classify(err)
	}
	return nil
}

// EvmAPI offers the subset of node controls served under the evm namespace.
// EvmAPI 提供 evm 命名空间下的节点控制子集。
type EvmAPI struct {
	anvil *AnvilAPI
}

// NewEvmAPI creates the evm namespace service.
func NewEvmAPI(b Backend) *EvmAPI {
	return &EvmAPI{NewAnvilAPI(b)}
}

// Mine mines a single block, at the given timestamp if one is passed.
func (api *EvmAPI) Mine(ctx context.Context, timestamp *math.HexOrDecimal64) (string, error) {
	if timestamp != nil {
		if err := api.anvil.SetNextBlockTimestamp(*timestamp); err != nil {
			return "", err
		}
	}
	if err := api.anvil.Mine(ctx, nil, nil); err != nil {
		return "", err
	}
	return "0x0", nil
}

// Snapshot records the chain, state and pool, returning the snapshot id.
func (api *EvmAPI) Snapshot() hexutil.Uint64 { return api.anvil.Snapshot() }

// Revert restores a snapshot.
func (api *EvmAPI) Revert(id hexutil.Uint64) (bool, error) { return api.anvil.Revert(id) }

// IncreaseTime moves the clock of future blocks forward.
func (api *EvmAPI) IncreaseTime(seconds math.HexOrDecimal64) int64 {
	return api.anvil.IncreaseTime(seconds)
}

// SetNextBlockTimestamp fixes the timestamp of the next block.
func (api *EvmAPI) SetNextBlockTimestamp(timestamp math.HexOrDecimal64) error {
	return api.anvil.SetNextBlockTimestamp(timestamp)
}

// SetAutomine switches between automatic and manual mining.
func (api *EvmAPI) SetAutomine(enabled bool) { api.anvil.SetAutomine(enabled) }

// SetIntervalMining mines a block every given number of seconds.
func (api *EvmAPI) SetIntervalMining(seconds uint64) { api.anvil.SetIntervalMining(seconds) }
