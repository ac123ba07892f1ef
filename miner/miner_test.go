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

package miner

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	oneEther  = big.NewInt(params.Ether)
	testTime  = time.Unix(1_700_000_000, 0)
)

type testBackend struct {
	chain *core.BlockChain
	pool  *txpool.TxPool
	miner *Miner
	keys  []*ecdsa.PrivateKey
}

func newTestBackend(t *testing.T, config Config) *testBackend {
	t.Helper()
	keys := core.DevKeys(2)
	var addrs []common.Address
	for _, key := range keys {
		addrs = append(addrs, crypto.PubkeyToAddress(key.PublicKey))
	}
	genesis := core.DeveloperGenesisBlock(big.NewInt(core.DevChainID), core.DevGasLimit, addrs)
	chain, err := core.NewBlockChain(context.Background(), genesis, nil)
	require.NoError(t, err)
	pool := txpool.New(txpool.DefaultConfig, chain)
	miner := New(config, chain, pool)
	miner.now = func() time.Time { return testTime }

	t.Cleanup(func() {
		miner.Close()
		pool.Close()
		chain.Stop()
	})
	return &testBackend{chain: chain, pool: pool, miner: miner, keys: keys}
}

func (b *testBackend) transfer(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, value *big.Int) *txpool.Transaction {
	t.Helper()
	tx, err := types.SignNewTx(key, b.pool.Signer(), &types.DynamicFeeTx{
		ChainID:   b.chain.Config().ChainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(params.GWei),
		GasFeeCap: big.NewInt(2 * params.GWei),
		Gas:       params.TxGas,
		To:        &recipient,
		Value:     value,
	})
	require.NoError(t, err)
	ptx, err := txpool.NewTransaction(tx, b.pool.Signer())
	require.NoError(t, err)
	return ptx
}

func (b *testBackend) submit(t *testing.T, tx *txpool.Transaction) {
	t.Helper()
	_, err := b.pool.Add(tx)
	require.NoError(t, err)
	require.NoError(t, b.miner.OnTxAdded(context.Background(), tx))
}

// chainTxs returns the hashes of all transactions in the local blocks.
func (b *testBackend) chainTxs() []common.Hash {
	var hashes []common.Hash
	for n := uint64(1); n <= b.chain.CurrentBlock().Number.Uint64(); n++ {
		for _, tx := range b.chain.GetBlockByNumber(n).Transactions() {
			hashes = append(hashes, tx.Hash())
		}
	}
	return hashes
}

func TestManualMine(t *testing.T) {
	b := newTestBackend(t, Config{GasCeil: core.DevGasLimit})
	tx := b.transfer(t, b.keys[0], 0, oneEther)
	b.submit(t, tx)

	pending, queued := b.pool.Stats()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 0, queued)
	assert.True(t, b.chain.StateCopy().GetBalance(recipient).IsZero(), "nothing mined yet")

	blocks, err := b.miner.Mine(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Transactions(), 1)
	assert.Equal(t, tx.Hash(), blocks[0].Transactions()[0].Hash())

	assert.Zero(t, b.pool.Count())
	assert.Zero(t, oneEther.Cmp(b.chain.StateCopy().GetBalance(recipient).ToBig()))

	receipt, ok := b.chain.GetReceipt(tx.Hash())
	require.True(t, ok)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, blocks[0].Hash(), receipt.BlockHash)
}

func TestMineRejectsTooManyBlocks(t *testing.T) {
	b := newTestBackend(t, Config{GasCeil: core.DevGasLimit})

	for _, n := range []int{-1, MaxMineBlocks + 1} {
		blocks, err := b.miner.Mine(context.Background(), n, 0)
		assert.ErrorIs(t, err, ErrTooManyBlocks, "n=%d", n)
		assert.Empty(t, blocks)
	}
	assert.Zero(t, b.chain.CurrentBlock().Number.Uint64())
}

func TestAutoMine(t *testing.T) {
	b := newTestBackend(t, Config{GasCeil: core.DevGasLimit, AutoMine: true})
	require.Equal(t, Auto, b.miner.Mode().Kind)

	b.submit(t, b.transfer(t, b.keys[0], 0, oneEther))
	b.submit(t, b.transfer(t, b.keys[0], 1, oneEther))

	assert.Equal(t, uint64(2), b.chain.CurrentBlock().Number.Uint64(), "one block per transaction")
	assert.Zero(t, b.pool.Count())
	assert.Len(t, b.chainTxs(), 2)
}

func TestGasLimitMode(t *testing.T) {
	b := newTestBackend(t, Config{GasCeil: core.DevGasLimit})
	b.miner.SetMode(GasLimitMode(2 * params.TxGas))

	b.submit(t, b.transfer(t, b.keys[0], 0, oneEther))
	assert.Equal(t, uint64(0), b.chain.CurrentBlock().Number.Uint64(), "below the threshold")

	b.submit(t, b.transfer(t, b.keys[1], 0, oneEther))
	assert.Equal(t, uint64(1), b.chain.CurrentBlock().Number.Uint64())
	assert.Len(t, b.chainTxs(), 2)
}

func TestIntervalMode(t *testing.T) {
	b := newTestBackend(t, Config{GasCeil: core.DevGasLimit, BlockTime: 10 * time.Millisecond})
	require.Equal(t, Interval, b.miner.Mode().Kind)

	assert.Eventually(t, func() bool {
		return b.chain.CurrentBlock().Number.Uint64() >= 2
	}, 5*time.Second, 5*time.Millisecond)

	b.miner.SetMode(ManualMode())
	// Wait for a tick that may have been in flight when the loop was stopped.
	time.Sleep(50 * time.Millisecond)
	head := b.chain.CurrentBlock().Number.Uint64()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, head, b.chain.CurrentBlock().Number.Uint64(), "no mining after leaving interval mode")
}

func TestMineSkipsWhenBlockFull(t *testing.T) {
	b := newTestBackend(t, Config{GasCeil: core.DevGasLimit})
	b.miner.SetGasLimit(params.TxGas + params.TxGas/2)

	first := b.transfer(t, b.keys[0], 0, oneEther)
	second := b.transfer(t, b.keys[0], 1, oneEther)
	b.submit(t, first)
	b.submit(t, second)

	blocks, err := b.miner.Mine(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, blocks[0].Transactions(), 1)
	assert.Equal(t, first.Hash(), blocks[0].Transactions()[0].Hash())
	assert.Equal(t, txpool.StatusPending, b.pool.Status(second.Hash()), "skipped transaction stays pooled")

	blocks, err = b.miner.Mine(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, blocks[0].Transactions(), 1)
	assert.Equal(t, second.Hash(), blocks[0].Transactions()[0].Hash())
	assert.Zero(t, b.pool.Count())
}

func TestMineDropsUsedNonce(t *testing.T) {
	b := newTestBackend(t, Config{GasCeil: core.DevGasLimit})
	sender := crypto.PubkeyToAddress(b.keys[0].PublicKey)
	tx := b.transfer(t, b.keys[0], 0, oneEther)
	b.submit(t, tx)

	// The nonce gets consumed behind the pool's back.
	require.NoError(t, b.chain.WriteState(func(statedb *state.StateDB) error {
		statedb.SetNonce(sender, 1, tracing.NonceChangeUnspecified)
		return nil
	}))
	blocks, err := b.miner.Mine(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Empty(t, blocks[0].Transactions())
	assert.False(t, b.pool.Has(tx.Hash()), "unexecutable transaction is dropped")
	assert.False(t, b.chain.HasTransaction(tx.Hash()))
}

func TestConcurrentMineNoDoubleInclusion(t *testing.T) {
	b := newTestBackend(t, Config{GasCeil: core.DevGasLimit})
	var want int
	for _, key := range b.keys {
		for nonce := uint64(0); nonce < 10; nonce++ {
			b.submit(t, b.transfer(t, key, nonce, common.Big1))
			want++
		}
	}
	var (
		wg   sync.WaitGroup
		errs = make(chan error, 8)
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.miner.Mine(context.Background(), 1, 0); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(8), b.chain.CurrentBlock().Number.Uint64())

	hashes := b.chainTxs()
	seen := make(map[common.Hash]bool)
	for _, hash := range hashes {
		assert.False(t, seen[hash], "transaction %x included twice", hash)
		seen[hash] = true
	}
	assert.Len(t, hashes, want)
	assert.Zero(t, b.pool.Count())
}

func TestMineTimestamps(t *testing.T) {
	b := newTestBackend(t, Config{GasCeil: core.DevGasLimit})
	now := uint64(testTime.Unix())
	mineOne := func() *types.Block {
		blocks, err := b.miner.Mine(context.Background(), 1, 0)
		require.NoError(t, err)
		return blocks[0]
	}
	assert.Equal(t, now, mineOne().Time())

	assert.Equal(t, int64(100), b.miner.IncreaseTime(100))
	assert.Equal(t, now+100, mineOne().Time())

	require.NoError(t, b.miner.SetNextBlockTimestamp(now+1000))
	assert.Equal(t, now+1000, mineOne().Time())

	blocks, err := b.miner.Mine(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, now+1001, blocks[0].Time(), "strictly after the forced timestamp")
	assert.Equal(t, now+1011, blocks[1].Time())
	assert.Equal(t, now+1021, blocks[2].Time())

	err = b.miner.SetNextBlockTimestamp(now + 1021)
	assert.True(t, errors.Is(err, ErrTimestampTooLow))
}

func TestBlockParameters(t *testing.T) {
	b := newTestBackend(t, Config{GasCeil: core.DevGasLimit})
	coinbase := common.HexToAddress("0xc0ffee")
	fee := big.NewInt(7 * params.GWei)

	b.miner.SetCoinbase(coinbase)
	b.miner.SetGasLimit(12_000_000)
	b.miner.SetExtra([]byte("tevm"))
	b.miner.SetNextBaseFee(fee)

	blocks, err := b.miner.Mine(context.Background(), 2, 0)
	require.NoError(t, err)
	first, second := blocks[0].Header(), blocks[1].Header()

	assert.Equal(t, coinbase, first.Coinbase)
	assert.Equal(t, uint64(12_000_000), first.GasLimit)
	assert.Equal(t, []byte("tevm"), first.Extra)
	assert.Zero(t, fee.Cmp(first.BaseFee))

	// The override only applies once.
	assert.Zero(t, eip1559.CalcBaseFee(b.chain.Config(), first).Cmp(second.BaseFee))
	assert.Equal(t, uint64(12_000_000), second.GasLimit)
}

func TestMineDeterminism(t *testing.T) {
	run := func() (*types.Block, common.Hash) {
		b := newTestBackend(t, Config{GasCeil: core.DevGasLimit})
		for nonce := uint64(0); nonce < 3; nonce++ {
			b.submit(t, b.transfer(t, b.keys[0], nonce, oneEther))
			b.submit(t, b.transfer(t, b.keys[1], nonce, big.NewInt(int64(nonce+1))))
		}
		blocks, err := b.miner.Mine(context.Background(), 1, 0)
		require.NoError(t, err)
		return blocks[0], b.chain.StateCopy().IntermediateRoot(true)
	}
	blockA, rootA := run()
	blockB, rootB := run()

	require.Len(t, blockA.Transactions(), 6)
	assert.Equal(t, blockA.Hash(), blockB.Hash())
	assert.Equal(t, blockA.ReceiptHash(), blockB.ReceiptHash())
	assert.Equal(t, rootA, rootB)
}
