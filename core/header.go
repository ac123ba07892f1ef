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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
)

// HeaderParams are the block parameters controlled by the node operator.
type HeaderParams struct {
	Coinbase common.Address
	Time     uint64
	GasLimit uint64
	BaseFee  *big.Int // Overrides the EIP-1559 base fee if set
}

// MakeHeader assembles the header of the child of parent. Execution results
// (root, gas used, bloom, tx and receipt hashes) are filled in by SealBlock.
// MakeHeader 组装 parent 子区块的头部。执行结果由 SealBlock 填充。
func MakeHeader(config *params.ChainConfig, parent *types.Header, p HeaderParams) *types.Header {
	number := new(big.Int).Add(parent.Number, common.Big1)
	header := &types.Header{
		ParentHash: parent.Hash(),
		UncleHash:  types.EmptyUncleHash,
		Coinbase:   p.Coinbase,
		Number:     number,
		GasLimit:   p.GasLimit,
		Time:       p.Time,
		Difficulty: new(big.Int),
		// Deterministic stand-in for the beacon randomness
		MixDigest: crypto.Keccak256Hash(parent.MixDigest[:], number.Bytes()),
	}
	if config.IsLondon(number) {
		switch {
		case p.BaseFee != nil:
			header.BaseFee = new(big.Int).Set(p.BaseFee)
		case parent.BaseFee == nil:
			header.BaseFee = big.NewInt(params.InitialBaseFee)
		default:
			header.BaseFee = eip1559.CalcBaseFee(config, parent)
		}
	}
	if config.IsCancun(number, header.Time) {
		header.ParentBeaconRoot = new(common.Hash)
		header.ExcessBlobGas = new(uint64)
		header.BlobGasUsed = new(uint64)
	}
	return header
}

// SealBlock finalizes the header with the post state root and the gas used,
// and assembles the block. The receipts are completed with their block
// position.
// SealBlock 用执行后的状态根和已用 gas 完成头部，并组装区块。
func SealBlock(config *params.ChainConfig, header *types.Header, root common.Hash, txs []*types.Transaction, receipts types.Receipts) *types.Block {
	header.Root = root
	header.GasUsed = 0
	if len(receipts) > 0 {
		header.GasUsed = receipts[len(receipts)-1].CumulativeGasUsed
	}
	body := &types.Body{Transactions: txs}
	if config.IsShanghai(header.Number, header.Time) {
		body.Withdrawals = make([]*types.Withdrawal, 0)
	}
	block := types.NewBlock(header, body, receipts, trie.NewStackTrie(nil))

	var logIndex uint
	for i, receipt := range receipts {
		receipt.BlockHash = block.Hash()
		receipt.BlockNumber = new(big.Int).Set(block.Number())
		receipt.TransactionIndex = uint(i)
		for _, log := range receipt.Logs {
			log.BlockHash = block.Hash()
			log.BlockNumber = block.NumberU64()
			log.TxHash = receipt.TxHash
			log.TxIndex = uint(i)
			log.Index = logIndex
			logIndex++
		}
	}
	return block
}
