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
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultedArgs() TransactionArgs {
	var (
		to    = common.HexToAddress("0xee")
		gas   = hexutil.Uint64(21000)
		nonce = hexutil.Uint64(3)
	)
	return TransactionArgs{
		To:      &to,
		Gas:     &gas,
		Nonce:   &nonce,
		Value:   (*hexutil.Big)(big.NewInt(5)),
		ChainID: (*hexutil.Big)(big.NewInt(1337)),
	}
}

func TestToTransactionType(t *testing.T) {
	legacy := defaultedArgs()
	legacy.GasPrice = (*hexutil.Big)(big.NewInt(10))
	tx, err := legacy.ToTransaction()
	require.NoError(t, err)
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(3), tx.Nonce())

	withList := defaultedArgs()
	withList.GasPrice = (*hexutil.Big)(big.NewInt(10))
	withList.AccessList = &types.AccessList{{Address: common.HexToAddress("0x01")}}
	tx, err = withList.ToTransaction()
	require.NoError(t, err)
	assert.Equal(t, uint8(types.AccessListTxType), tx.Type())

	dynamic := defaultedArgs()
	dynamic.MaxFeePerGas = (*hexutil.Big)(big.NewInt(20))
	dynamic.MaxPriorityFeePerGas = (*hexutil.Big)(big.NewInt(2))
	tx, err = dynamic.ToTransaction()
	require.NoError(t, err)
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, big.NewInt(20), tx.GasFeeCap())
	assert.Equal(t, big.NewInt(1337), tx.ChainId())

	_, err = (&TransactionArgs{}).ToTransaction()
	assert.Error(t, err)
}

func TestCallParamsPreferInput(t *testing.T) {
	var (
		data  = hexutil.Bytes{1}
		input = hexutil.Bytes{2}
		from  = common.HexToAddress("0xaa")
	)
	args := TransactionArgs{From: &from, Data: &data, Input: &input}
	assert.Equal(t, []byte{2}, args.data())

	tag := rpc.BlockNumberOrHashWithNumber(rpc.PendingBlockNumber)
	params := args.callParams(&tag)
	assert.Equal(t, &from, params.From)
	assert.Equal(t, &input, params.Input)
	assert.Equal(t, &tag, params.BlockTag)
}

func TestDecodeHash(t *testing.T) {
	h, err := decodeHash("0x1")
	require.NoError(t, err)
	assert.Equal(t, common.BigToHash(big.NewInt(1)), h)

	h, err = decodeHash("ff")
	require.NoError(t, err)
	assert.Equal(t, common.BigToHash(big.NewInt(255)), h)

	_, err = decodeHash("0xzz")
	assert.Error(t, err)
	_, err = decodeHash("0x" + strings.Repeat("00", 33))
	assert.Error(t, err)
}
