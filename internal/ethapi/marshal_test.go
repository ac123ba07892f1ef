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

package ethapi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCTransactionSender(t *testing.T) {
	var (
		config = params.AllDevChainProtocolChanges
		signer = types.LatestSigner(config)
		to     = common.HexToAddress("0xee")
		from   = common.HexToAddress("0x1234567890123456789012345678901234567890")
	)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	signed, err := types.SignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   config.ChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2 * params.InitialBaseFee),
		Gas:       21000,
		To:        &to,
	})
	require.NoError(t, err)
	impersonated, err := txpool.Impersonate(types.NewTx(&types.DynamicFeeTx{
		ChainID:   config.ChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2 * params.InitialBaseFee),
		Gas:       21000,
		To:        &to,
	}), from, signer)
	require.NoError(t, err)

	header := &types.Header{
		Number:   big.NewInt(1),
		Time:     10,
		GasLimit: 30_000_000,
		BaseFee:  big.NewInt(params.InitialBaseFee),
	}
	block := types.NewBlock(header, &types.Body{Transactions: types.Transactions{signed, impersonated.Tx}}, nil, trie.NewStackTrie(nil))

	first := newRPCTransactionFromBlockIndex(block, 0, config)
	require.NotNil(t, first)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), first.From)
	assert.Equal(t, block.Hash(), *first.BlockHash)
	assert.Equal(t, hexutil.Uint64(0), *first.TransactionIndex)
	// Mined dynamic fee transactions report the effective price.
	assert.Equal(t, big.NewInt(params.InitialBaseFee+1), first.GasPrice.ToInt())

	second := newRPCTransactionFromBlockIndex(block, 1, config)
	require.NotNil(t, second)
	assert.Equal(t, from, second.From)

	assert.Nil(t, newRPCTransactionFromBlockIndex(block, 2, config))

	pending := NewRPCPendingTransaction(impersonated.Tx, header, config)
	assert.Equal(t, from, pending.From)
	assert.Nil(t, pending.BlockHash)
	assert.Equal(t, impersonated.Tx.GasFeeCap(), pending.GasPrice.ToInt())
}

func TestRPCMarshalBlock(t *testing.T) {
	config := params.AllDevChainProtocolChanges
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress("0xee")
	tx, err := types.SignNewTx(key, types.LatestSigner(config), &types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(params.InitialBaseFee),
		Gas:      21000,
		To:       &to,
	})
	require.NoError(t, err)
	header := &types.Header{Number: big.NewInt(3), GasLimit: 30_000_000, BaseFee: big.NewInt(7)}
	block := types.NewBlock(header, &types.Body{Transactions: types.Transactions{tx}}, nil, trie.NewStackTrie(nil))

	hashes := RPCMarshalBlock(block, false, config)
	assert.Equal(t, []interface{}{tx.Hash()}, hashes["transactions"])
	assert.Equal(t, (*hexutil.Big)(big.NewInt(7)), hashes["baseFeePerGas"])
	assert.Equal(t, []common.Hash{}, hashes["uncles"])

	full := RPCMarshalBlock(block, true, config)
	txs := full["transactions"].([]interface{})
	require.Len(t, txs, 1)
	assert.Equal(t, tx.Hash(), txs[0].(*RPCTransaction).Hash)

	pendingFields(full)
	assert.Nil(t, full["hash"])
	assert.Nil(t, full["miner"])
}

func TestMarshalReceipt(t *testing.T) {
	config := params.AllDevChainProtocolChanges
	signer := types.LatestSigner(config)
	from := common.HexToAddress("0xabc")
	ptx, err := txpool.Impersonate(types.NewTx(&types.DynamicFeeTx{
		ChainID:   config.ChainID,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(params.InitialBaseFee * 2),
		Gas:       100_000,
		Data:      []byte{0x60, 0x00},
	}), from, signer)
	require.NoError(t, err)

	created := crypto.CreateAddress(from, 0)
	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           53000,
		CumulativeGasUsed: 53000,
		ContractAddress:   created,
		EffectiveGasPrice: big.NewInt(params.InitialBaseFee + 1),
	}
	fields := marshalReceipt(receipt, common.HexToHash("0x01"), 5, signer, ptx.Tx, 0)
	assert.Equal(t, from, fields["from"])
	assert.Equal(t, created, fields["contractAddress"])
	assert.Equal(t, []*types.Log{}, fields["logs"])
	assert.Equal(t, hexutil.Uint64(5), fields["blockNumber"])
	assert.Equal(t, hexutil.Uint(types.ReceiptStatusSuccessful), fields["status"])
}
