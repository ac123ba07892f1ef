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

package core

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/evmts/tevm-node/core/state"
	"github.com/holiman/uint256"
)

const (
	// DevChainID is the chain id of a non-forked node.
	DevChainID = 1337

	// DevGasLimit is the default block gas limit.
	DevGasLimit = 30_000_000
)

// DevBalance is the starting balance of every dev account, 10000 ether.
var DevBalance = new(big.Int).Mul(big.NewInt(10_000), big.NewInt(params.Ether))

// The well-known development keys derived from the "test test ... junk"
// mnemonic. They are public and must never hold real funds.
var devKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
	"7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6",
	"47e179ec197488593b187f80a00eb0da91f1b9d0b13f8733639f19c30a34926a",
	"8b3a350cf5c34c9194ca85829a2df0ec3153be0318b5e2d3348e872092edffba",
	"92db14e403b83dfe3df233f83dfa3a0d7096f21ca9b0d6d6b8d88b2b4ec1564e",
	"4bbbf85ce3377467afe5d46f804f221813b2bb87f24d81f60f1fcdbf7cbf4356",
	"dbda1821b80551c9d65939329250298aa3472ba22feea921c0cf5d620ea67b97",
	"2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6",
}

// DevKeys returns the first n development keys.
func DevKeys(n int) []*ecdsa.PrivateKey {
	if n > len(devKeys) {
		n = len(devKeys)
	}
	keys := make([]*ecdsa.PrivateKey, 0, n)
	for _, hex := range devKeys[:n] {
		keys = append(keys, crypto.ToECDSAUnsafe(common.FromHex(hex)))
	}
	return keys
}

// DevConfig returns the chain configuration of the node: every fork up to and
// including Cancun active from genesis.
// DevConfig 返回节点的链配置：从创世开始激活直到 Cancun 的所有分叉。
func DevConfig(chainID *big.Int) *params.ChainConfig {
	config := *params.AllDevChainProtocolChanges
	config.ChainID = new(big.Int).Set(chainID)
	config.PragueTime = nil
	config.VerkleTime = nil
	return &config
}

// Genesis specifies the header fields and the state of the first local block.
// Genesis 指定第一个本地区块的头部字段和状态。
type Genesis struct {
	Config     *params.ChainConfig
	Timestamp  uint64
	ExtraData  []byte
	GasLimit   uint64
	Difficulty *big.Int
	Coinbase   common.Address
	BaseFee    *big.Int
	Alloc      types.GenesisAlloc
}

// DeveloperGenesisBlock returns a genesis funding every given account with
// the dev balance.
func DeveloperGenesisBlock(chainID *big.Int, gasLimit uint64, accounts []common.Address) *Genesis {
	genesis := &Genesis{
		Config:     DevConfig(chainID),
		GasLimit:   gasLimit,
		BaseFee:    big.NewInt(params.InitialBaseFee),
		Difficulty: big.NewInt(0),
		Alloc:      make(types.GenesisAlloc, len(accounts)),
	}
	for _, addr := range accounts {
		genesis.Alloc[addr] = types.Account{Balance: new(big.Int).Set(DevBalance)}
	}
	return genesis
}

// Apply writes the allocation into the state.
func (g *Genesis) Apply(statedb *state.StateDB) error {
	for addr, account := range g.Alloc {
		if account.Balance != nil {
			balance, overflow := uint256.FromBig(account.Balance)
			if overflow {
				return errors.New("genesis balance overflows 256 bits")
			}
			statedb.AddBalance(addr, balance, tracing.BalanceIncreaseGenesisBalance)
		}
		statedb.SetCode(addr, account.Code)
		statedb.SetNonce(addr, account.Nonce, tracing.NonceChangeGenesis)
		for key, value := range account.Storage {
			statedb.SetState(addr, key, value)
		}
	}
	statedb.Finalise(false)
	return statedb.Error()
}

// ToBlock builds the genesis block on top of the given post-allocation state.
// ToBlock 基于给定的分配后状态构建创世区块。
func (g *Genesis) ToBlock(root common.Hash) *types.Block {
	head := &types.Header{
		Number:     new(big.Int),
		Time:       g.Timestamp,
		ParentHash: common.Hash{},
		Extra:      g.ExtraData,
		GasLimit:   g.GasLimit,
		GasUsed:    0,
		BaseFee:    g.BaseFee,
		Difficulty: g.Difficulty,
		Coinbase:   g.Coinbase,
		Root:       root,
	}
	if g.GasLimit == 0 {
		head.GasLimit = DevGasLimit
	}
	if g.Difficulty == nil {
		head.Difficulty = new(big.Int)
	}
	var withdrawals []*types.Withdrawal
	if conf := g.Config; conf != nil {
		if conf.IsLondon(common.Big0) && head.BaseFee == nil {
			head.BaseFee = big.NewInt(params.InitialBaseFee)
		}
		if conf.IsShanghai(common.Big0, g.Timestamp) {
			withdrawals = make([]*types.Withdrawal, 0)
		}
		if conf.IsCancun(common.Big0, g.Timestamp) {
			head.ParentBeaconRoot = new(common.Hash)
			head.ExcessBlobGas = new(uint64)
			head.BlobGasUsed = new(uint64)
		}
	}
	return types.NewBlock(head, &types.Body{Withdrawals: withdrawals}, nil, trie.NewStackTrie(nil))
}
