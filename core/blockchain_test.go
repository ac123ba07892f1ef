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
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core/fork"
	"github.com/evmts/tevm-node/core/state"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func devAddresses(n int) []common.Address {
	var addrs []common.Address
	for _, key := range DevKeys(n) {
		addrs = append(addrs, crypto.PubkeyToAddress(key.PublicKey))
	}
	return addrs
}

func newTestChain(t *testing.T) *BlockChain {
	t.Helper()
	genesis := DeveloperGenesisBlock(big.NewInt(DevChainID), DevGasLimit, devAddresses(3))
	bc, err := NewBlockChain(context.Background(), genesis, nil)
	require.NoError(t, err)
	t.Cleanup(bc.Stop)
	return bc
}

// emptyBuilder seals a block without transactions, applying edit to the state
// first if given.
func emptyBuilder(config *params.ChainConfig, edit func(*state.StateDB)) BlockBuilder {
	return func(parent *types.Header, statedb *state.StateDB) (*types.Block, types.Receipts, error) {
		if edit != nil {
			edit(statedb)
		}
		header := MakeHeader(config, parent, HeaderParams{Time: parent.Time + 1, GasLimit: parent.GasLimit})
		return SealBlock(config, header, statedb.IntermediateRoot(true), nil, nil), nil, nil
	}
}

func TestDevKeys(t *testing.T) {
	addrs := devAddresses(10)
	require.Len(t, addrs, 10)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), addrs[0])
	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), addrs[1])
	assert.Len(t, DevKeys(100), 10, "only ten dev keys exist")
}

func TestGenesisAlloc(t *testing.T) {
	bc := newTestChain(t)

	head := bc.CurrentBlock()
	assert.Equal(t, uint64(0), head.Number.Uint64())
	assert.Equal(t, big.NewInt(params.InitialBaseFee), head.BaseFee)
	assert.NotNil(t, head.ExcessBlobGas, "cancun fields must be set")

	statedb := bc.StateCopy()
	for _, addr := range devAddresses(3) {
		assert.Equal(t, DevBalance, statedb.GetBalance(addr).ToBig(), "dev account not funded")
	}
	assert.Equal(t, head.Root, statedb.IntermediateRoot(false), "genesis root mismatch")
}

func TestAppendBlockHistoricalState(t *testing.T) {
	bc := newTestChain(t)
	config := bc.Config()

	// Test case 1: a block changing a balance.
	block1, _, err := bc.AppendBlock(emptyBuilder(config, func(s *state.StateDB) {
		s.SetBalance(testAddr, uint256.NewInt(5))
	}))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bc.CurrentBlock().Number.Uint64())
	assert.Equal(t, block1.Hash(), bc.GetBlockByNumber(1).Hash())

	genesisState, err := bc.StateAt(0)
	require.NoError(t, err)
	assert.True(t, genesisState.GetBalance(testAddr).IsZero(), "genesis state leaked a later write")

	// Test case 2: direct edits land in the head state only.
	require.NoError(t, bc.WriteState(func(s *state.StateDB) error {
		s.SetBalance(testAddr, uint256.NewInt(7))
		return nil
	}))
	head, err := bc.StateAt(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), head.GetBalance(testAddr).Uint64(), "head number must resolve to the edited head state")

	// Test case 3: once block 2 exists, block 1 resolves to its frozen state.
	_, _, err = bc.AppendBlock(emptyBuilder(config, nil))
	require.NoError(t, err)
	frozen, err := bc.StateAt(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), frozen.GetBalance(testAddr).Uint64(), "frozen state of block 1 changed")
	assert.Equal(t, uint64(7), bc.StateCopy().GetBalance(testAddr).Uint64(), "edit not carried into block 2")

	// Test case 4: copies handed out are private.
	frozen.SetBalance(testAddr, uint256.NewInt(99))
	again, err := bc.StateAt(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), again.GetBalance(testAddr).Uint64())

	_, err = bc.StateAt(10)
	assert.ErrorIs(t, err, ErrUnknownBlock)
}

func TestAppendBlockRejectsNonContiguous(t *testing.T) {
	bc := newTestChain(t)
	config := bc.Config()

	_, _, err := bc.AppendBlock(func(parent *types.Header, statedb *state.StateDB) (*types.Block, types.Receipts, error) {
		statedb.SetBalance(testAddr, uint256.NewInt(1))
		header := MakeHeader(config, parent, HeaderParams{Time: parent.Time + 1, GasLimit: parent.GasLimit})
		header.Number = big.NewInt(5)
		return SealBlock(config, header, statedb.IntermediateRoot(true), nil, nil), nil, nil
	})
	assert.ErrorIs(t, err, ErrNonContiguous)
	assert.Equal(t, uint64(0), bc.CurrentBlock().Number.Uint64())
	assert.True(t, bc.StateCopy().GetBalance(testAddr).IsZero(), "failed build must not write state")

	buildErr := errors.New("boom")
	_, _, err = bc.AppendBlock(func(*types.Header, *state.StateDB) (*types.Block, types.Receipts, error) {
		return nil, nil, buildErr
	})
	assert.ErrorIs(t, err, buildErr)
}

func TestSnapshotRevert(t *testing.T) {
	bc := newTestChain(t)
	config := bc.Config()
	key := DevKeys(1)[0]
	signer := types.LatestSigner(config)

	id := bc.Snapshot()

	tx := types.MustSignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   config.ChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(params.GWei * 10),
		Gas:       params.TxGas,
		To:        &testAddr,
		Value:     big.NewInt(1),
	})
	_, _, err := bc.AppendBlock(func(parent *types.Header, statedb *state.StateDB) (*types.Block, types.Receipts, error) {
		statedb.SetBalance(testAddr, uint256.NewInt(1))
		header := MakeHeader(config, parent, HeaderParams{Time: parent.Time + 1, GasLimit: parent.GasLimit})
		receipt := &types.Receipt{Type: tx.Type(), Status: types.ReceiptStatusSuccessful, CumulativeGasUsed: params.TxGas, TxHash: tx.Hash(), GasUsed: params.TxGas, Logs: []*types.Log{}}
		return SealBlock(config, header, statedb.IntermediateRoot(true), []*types.Transaction{tx}, types.Receipts{receipt}), types.Receipts{receipt}, nil
	})
	require.NoError(t, err)
	_, _, err = bc.AppendBlock(emptyBuilder(config, nil))
	require.NoError(t, err)

	receipt, ok := bc.GetReceipt(tx.Hash())
	require.True(t, ok)
	assert.Equal(t, uint64(1), receipt.BlockNumber.Uint64())
	assert.Equal(t, bc.GetBlockByNumber(1).Hash(), receipt.BlockHash)
	assert.Equal(t, params.TxGas, bc.GetBlockByNumber(1).GasUsed())

	resets := make(chan ChainResetEvent, 1)
	sub := bc.SubscribeChainResetEvent(resets)
	defer sub.Unsubscribe()

	dropped, err := bc.RevertToSnapshot(id)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, tx.Hash(), dropped[0].Hash())
	assert.Equal(t, uint64(0), bc.CurrentBlock().Number.Uint64())
	assert.False(t, bc.HasTransaction(tx.Hash()))
	assert.Nil(t, bc.GetBlockByNumber(1))
	assert.True(t, bc.StateCopy().GetBalance(testAddr).IsZero(), "state not restored")

	select {
	case ev := <-resets:
		assert.Equal(t, uint64(0), ev.Header.Number.Uint64())
	case <-time.After(time.Second):
		t.Fatal("no reset event")
	}

	_, err = bc.RevertToSnapshot(id)
	assert.ErrorIs(t, err, ErrUnknownSnapshot, "snapshot must be consumed")
}

func TestChainHeadEvent(t *testing.T) {
	bc := newTestChain(t)

	heads := make(chan ChainHeadEvent, 1)
	sub := bc.SubscribeChainHeadEvent(heads)
	defer sub.Unsubscribe()

	block, _, err := bc.AppendBlock(emptyBuilder(bc.Config(), nil))
	require.NoError(t, err)
	select {
	case ev := <-heads:
		assert.Equal(t, block.Hash(), ev.Block.Hash())
	case <-time.After(time.Second):
		t.Fatal("no head event")
	}
}

func TestGetHashFn(t *testing.T) {
	bc := newTestChain(t)
	var hashes []common.Hash
	hashes = append(hashes, bc.Genesis().Hash())
	for i := 0; i < 3; i++ {
		block, _, err := bc.AppendBlock(emptyBuilder(bc.Config(), nil))
		require.NoError(t, err)
		hashes = append(hashes, block.Hash())
	}
	next := MakeHeader(bc.Config(), bc.CurrentBlock(), HeaderParams{Time: 100, GasLimit: DevGasLimit})
	getHash := GetHashFn(next, bc)
	for n, hash := range hashes {
		assert.Equal(t, hash, getHash(uint64(n)), "hash of block %d", n)
	}
	assert.Equal(t, common.Hash{}, getHash(4), "current block has no hash yet")
}

func TestForkedChain(t *testing.T) {
	src := fork.NewMemorySource(big.NewInt(10), 100)
	src.SetAccount(testAddr, 3, uint256.NewInt(1000), nil)
	fetcher := fork.NewFetcher(src, fork.NewCache(nil), 100)

	genesis := DeveloperGenesisBlock(big.NewInt(10), DevGasLimit, devAddresses(1))
	bc, err := NewBlockChain(context.Background(), genesis, fetcher)
	require.NoError(t, err)
	defer bc.Stop()

	remote, err := src.HeaderByNumber(context.Background(), big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, remote.Hash(), bc.Genesis().Hash(), "fork block must become the local genesis")
	assert.Equal(t, uint64(100), bc.CurrentBlock().Number.Uint64())

	// Remote state reads through, local allocation on top.
	statedb := bc.StateCopy()
	assert.Equal(t, uint64(1000), statedb.GetBalance(testAddr).Uint64())
	assert.Equal(t, uint64(3), statedb.GetNonce(testAddr))
	assert.Equal(t, DevBalance, statedb.GetBalance(devAddresses(1)[0]).ToBig())

	// Pre-fork headers and state come from the remote chain.
	parent := bc.GetHeaderByNumber(99)
	require.NotNil(t, parent)
	assert.Equal(t, remote.ParentHash, parent.Hash())
	old, err := bc.StateAt(50)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), old.GetBalance(testAddr).Uint64())

	block, _, err := bc.AppendBlock(emptyBuilder(bc.Config(), nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(101), block.NumberU64())
	assert.Equal(t, remote.Hash(), block.ParentHash())

	next := MakeHeader(bc.Config(), block.Header(), HeaderParams{Time: block.Time() + 1, GasLimit: DevGasLimit})
	getHash := GetHashFn(next, bc)
	assert.Equal(t, parent.Hash(), getHash(99), "blockhash below the fork point")
	assert.Equal(t, block.Hash(), getHash(101))
}

func TestMakeHeaderBaseFee(t *testing.T) {
	config := DevConfig(big.NewInt(DevChainID))
	parent := &types.Header{
		Number:   big.NewInt(1),
		GasLimit: DevGasLimit,
		GasUsed:  0,
		BaseFee:  big.NewInt(params.InitialBaseFee),
	}
	// Test case 1: an empty parent lowers the base fee.
	header := MakeHeader(config, parent, HeaderParams{GasLimit: DevGasLimit})
	assert.Equal(t, -1, header.BaseFee.Cmp(parent.BaseFee), "base fee should drop after an empty block")

	// Test case 2: an explicit override wins.
	header = MakeHeader(config, parent, HeaderParams{GasLimit: DevGasLimit, BaseFee: big.NewInt(7)})
	assert.Equal(t, big.NewInt(7), header.BaseFee)

	// Test case 3: a pre-London parent starts at the initial base fee.
	parent.BaseFee = nil
	header = MakeHeader(config, parent, HeaderParams{GasLimit: DevGasLimit})
	assert.Equal(t, big.NewInt(params.InitialBaseFee), header.BaseFee)
}
