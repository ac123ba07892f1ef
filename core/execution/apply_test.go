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

package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/fork"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAddr    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	answerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	revertAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	storeAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	balanceAddr = common.HexToAddress("0x00000000000000000000000000000000000000a4")

	// Returns the word 42.
	answerCode = common.FromHex("602a60005260206000f3")
	// Reverts with its calldata.
	echoRevertCode = common.FromHex("366000600037366000fd")
	// Stores 1 at slot 0 and emits an empty LOG0.
	storeLogCode = common.FromHex("600160005560006000a000")
	// Deploys answerCode.
	answerInitCode = common.FromHex("69602a60005260206000f3600052600a6016f3")

	oneEther = big.NewInt(params.Ether)
)

// balanceCode returns the balance of addr.
func balanceCode(addr common.Address) []byte {
	code := append([]byte{0x73}, addr.Bytes()...)
	return append(code, common.FromHex("3160005260206000f3")...)
}

func devAddresses(n int) []common.Address {
	var addrs []common.Address
	for _, key := range core.DevKeys(n) {
		addrs = append(addrs, crypto.PubkeyToAddress(key.PublicKey))
	}
	return addrs
}

func testGenesis() *core.Genesis {
	genesis := core.DeveloperGenesisBlock(big.NewInt(core.DevChainID), core.DevGasLimit, devAddresses(2))
	genesis.Alloc[answerAddr] = types.Account{Code: answerCode}
	genesis.Alloc[revertAddr] = types.Account{Code: echoRevertCode}
	genesis.Alloc[storeAddr] = types.Account{Code: storeLogCode}
	genesis.Alloc[balanceAddr] = types.Account{Code: balanceCode(testAddr)}
	return genesis
}

func newTestChain(t *testing.T) *core.BlockChain {
	t.Helper()
	bc, err := core.NewBlockChain(context.Background(), testGenesis(), nil)
	require.NoError(t, err)
	t.Cleanup(bc.Stop)
	return bc
}

// nextEnv returns the environment of the block after the head.
func nextEnv(bc *core.BlockChain) *Env {
	head := bc.CurrentBlock()
	header := core.MakeHeader(bc.Config(), head, core.HeaderParams{Time: head.Time + 12, GasLimit: head.GasLimit})
	return NewEnv(bc.Config(), bc, header)
}

func signedTx(t *testing.T, config *params.ChainConfig, key *ecdsa.PrivateKey, nonce uint64, to common.Address, gas uint64, value *big.Int) *txpool.Transaction {
	t.Helper()
	signer := types.LatestSigner(config)
	tx, err := types.SignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   config.ChainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(params.GWei),
		GasFeeCap: big.NewInt(2 * params.GWei),
		Gas:       gas,
		To:        &to,
		Value:     value,
	})
	require.NoError(t, err)
	ptx, err := txpool.NewTransaction(tx, signer)
	require.NoError(t, err)
	return ptx
}

func TestApplyTransaction(t *testing.T) {
	bc := newTestChain(t)
	key := core.DevKeys(1)[0]
	env := nextEnv(bc)
	statedb := bc.StateCopy()
	gp := new(gethcore.GasPool).AddGas(env.Header.GasLimit)

	var usedGas uint64
	tx := signedTx(t, bc.Config(), key, 0, testAddr, params.TxGas, oneEther)
	receipt, err := ApplyTransaction(env, statedb, gp, tx, 0, &usedGas)
	require.NoError(t, err)

	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, params.TxGas, receipt.GasUsed)
	assert.Equal(t, params.TxGas, receipt.CumulativeGasUsed)
	assert.Equal(t, params.TxGas, usedGas)
	assert.Equal(t, env.Header.GasLimit-params.TxGas, gp.Gas())
	assert.Equal(t, oneEther, statedb.GetBalance(testAddr).ToBig())
	assert.Equal(t, uint64(1), statedb.GetNonce(tx.From))
	assert.Zero(t, statedb.CheckpointDepth(), "the checkpoint must be closed")

	// Effective price is base fee plus tip, below the fee cap.
	want := new(big.Int).Add(env.Header.BaseFee, big.NewInt(params.GWei))
	assert.Equal(t, want, receipt.EffectiveGasPrice)

	// The canonical state is untouched.
	assert.True(t, bc.StateCopy().GetBalance(testAddr).IsZero())
}

func TestApplyTransactionPrecheckFailure(t *testing.T) {
	bc := newTestChain(t)
	key := core.DevKeys(1)[0]
	env := nextEnv(bc)
	statedb := bc.StateCopy()
	gp := new(gethcore.GasPool).AddGas(env.Header.GasLimit)
	before := statedb.GetBalance(devAddresses(1)[0]).Clone()

	var usedGas uint64
	tx := signedTx(t, bc.Config(), key, 5, testAddr, params.TxGas, oneEther)
	_, err := ApplyTransaction(env, statedb, gp, tx, 0, &usedGas)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gethcore.ErrNonceTooHigh), "unexpected error %v", err)

	assert.Zero(t, usedGas)
	assert.Equal(t, env.Header.GasLimit, gp.Gas(), "gas pool must be restored")
	assert.Equal(t, before, statedb.GetBalance(devAddresses(1)[0]))
	assert.Zero(t, statedb.CheckpointDepth())
}

func TestApplyTransactionRevertIsIncluded(t *testing.T) {
	bc := newTestChain(t)
	key := core.DevKeys(1)[0]
	env := nextEnv(bc)
	statedb := bc.StateCopy()
	gp := new(gethcore.GasPool).AddGas(env.Header.GasLimit)

	var usedGas uint64
	tx := signedTx(t, bc.Config(), key, 0, revertAddr, 100_000, nil)
	receipt, err := ApplyTransaction(env, statedb, gp, tx, 0, &usedGas)
	require.NoError(t, err)

	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	assert.Greater(t, receipt.GasUsed, params.TxGas)
	assert.Empty(t, receipt.Logs)
	assert.Equal(t, uint64(1), statedb.GetNonce(tx.From), "a reverted transaction still uses its nonce")
}

func TestApplyTransactionLogs(t *testing.T) {
	bc := newTestChain(t)
	keys := core.DevKeys(2)
	env := nextEnv(bc)
	statedb := bc.StateCopy()
	gp := new(gethcore.GasPool).AddGas(env.Header.GasLimit)

	var usedGas uint64
	tx0 := signedTx(t, bc.Config(), keys[0], 0, testAddr, params.TxGas, oneEther)
	_, err := ApplyTransaction(env, statedb, gp, tx0, 0, &usedGas)
	require.NoError(t, err)

	tx1 := signedTx(t, bc.Config(), keys[1], 0, storeAddr, 100_000, nil)
	receipt, err := ApplyTransaction(env, statedb, gp, tx1, 1, &usedGas)
	require.NoError(t, err)

	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, storeAddr, receipt.Logs[0].Address)
	assert.Equal(t, tx1.Hash(), receipt.Logs[0].TxHash)
	assert.Equal(t, uint(1), receipt.Logs[0].TxIndex)
	assert.True(t, receipt.Bloom.Test(storeAddr.Bytes()))
	assert.Equal(t, usedGas, receipt.CumulativeGasUsed)
	assert.Equal(t, common.BigToHash(common.Big1), statedb.GetState(storeAddr, common.Hash{}))
}

func TestApplyImpersonatedTransaction(t *testing.T) {
	bc := newTestChain(t)
	env := nextEnv(bc)
	statedb := bc.StateCopy()
	gp := new(gethcore.GasPool).AddGas(env.Header.GasLimit)

	// The sender holds code, which only impersonation allows.
	signer := types.LatestSigner(bc.Config())
	sender := devAddresses(2)[1]
	statedb.SetCode(sender, answerCode)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   bc.Config().ChainID,
		GasTipCap: big.NewInt(params.GWei),
		GasFeeCap: big.NewInt(2 * params.GWei),
		Gas:       params.TxGas,
		To:        &testAddr,
		Value:     oneEther,
	})
	ptx, err := txpool.Impersonate(tx, sender, signer)
	require.NoError(t, err)

	var usedGas uint64
	receipt, err := ApplyTransaction(env, statedb, gp, ptx, 0, &usedGas)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, oneEther, statedb.GetBalance(testAddr).ToBig())
	assert.Equal(t, uint64(1), statedb.GetNonce(sender))
}

func TestApplyTransactionFetchFailure(t *testing.T) {
	src := fork.NewMemorySource(big.NewInt(10), 100)
	fetcher := fork.NewFetcher(src, fork.NewCache(nil), 100)
	genesis := core.DeveloperGenesisBlock(big.NewInt(10), core.DevGasLimit, nil)
	bc, err := core.NewBlockChain(context.Background(), genesis, fetcher)
	require.NoError(t, err)
	defer bc.Stop()

	env := nextEnv(bc)
	statedb := bc.StateCopy()
	gp := new(gethcore.GasPool).AddGas(env.Header.GasLimit)
	src.SetFailure(errors.New("connection refused"))

	tx := types.NewTx(&types.LegacyTx{GasPrice: big.NewInt(2 * params.GWei), Gas: params.TxGas, To: &testAddr})
	ptx, err := txpool.Impersonate(tx, common.HexToAddress("0xbeef"), types.LatestSigner(bc.Config()))
	require.NoError(t, err)

	var usedGas uint64
	_, err = ApplyTransaction(env, statedb, gp, ptx, 0, &usedGas)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStateUnavailable), "unexpected error %v", err)
	assert.NoError(t, statedb.Error(), "the error is handed to the caller")
	assert.Zero(t, statedb.CheckpointDepth())
	assert.Equal(t, env.Header.GasLimit, gp.Gas())
}

// appendEdit appends an empty block after applying edit to the head state.
func appendEdit(t *testing.T, bc *core.BlockChain, edit func(*state.StateDB)) *types.Block {
	t.Helper()
	block, _, err := bc.AppendBlock(func(parent *types.Header, statedb *state.StateDB) (*types.Block, types.Receipts, error) {
		edit(statedb)
		header := core.MakeHeader(bc.Config(), parent, core.HeaderParams{Time: parent.Time + 12, GasLimit: parent.GasLimit})
		return core.SealBlock(bc.Config(), header, statedb.IntermediateRoot(true), nil, nil), nil, nil
	})
	require.NoError(t, err)
	return block
}
