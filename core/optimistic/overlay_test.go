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

package optimistic

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/execution"
	"github.com/evmts/tevm-node/core/fork"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	// Stores 1 into slot zero, then reverts.
	revertAddr = common.HexToAddress("0x00000000000000000000000000000000000000fd")
	revertCode = common.FromHex("600160005560006000fd")
)

type testEnv struct {
	chain   *core.BlockChain
	pool    *txpool.TxPool
	overlay *Overlay
	keys    []*ecdsa.PrivateKey
}

func newTestEnv(t *testing.T, fetcher *fork.Fetcher) *testEnv {
	t.Helper()
	keys := core.DevKeys(2)
	var addrs []common.Address
	for _, key := range keys {
		addrs = append(addrs, crypto.PubkeyToAddress(key.PublicKey))
	}
	chainID := big.NewInt(core.DevChainID)
	if fetcher != nil {
		id, err := fetcher.Source().ChainID(context.Background())
		require.NoError(t, err)
		chainID = id
	}
	genesis := core.DeveloperGenesisBlock(chainID, core.DevGasLimit, addrs)
	genesis.Alloc[revertAddr] = types.Account{Code: revertCode, Balance: new(big.Int)}

	chain, err := core.NewBlockChain(context.Background(), genesis, fetcher)
	require.NoError(t, err)
	pool := txpool.New(txpool.DefaultConfig, chain)
	overlay := New(chain, pool, nil)

	t.Cleanup(func() {
		overlay.Close()
		pool.Close()
		chain.Stop()
	})
	return &testEnv{chain: chain, pool: pool, overlay: overlay, keys: keys}
}

func (e *testEnv) send(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, to common.Address, gas uint64) *txpool.Transaction {
	t.Helper()
	tx, err := types.SignNewTx(key, e.pool.Signer(), &types.DynamicFeeTx{
		ChainID:   e.chain.Config().ChainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(params.GWei),
		GasFeeCap: big.NewInt(10 * params.GWei),
		Gas:       gas,
		To:        &to,
		Value:     big.NewInt(1000),
	})
	require.NoError(t, err)
	ptx, err := txpool.NewTransaction(tx, e.pool.Signer())
	require.NoError(t, err)
	_, err = e.pool.Add(ptx)
	require.NoError(t, err)
	return ptx
}

func (e *testEnv) state(t *testing.T) *Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := e.overlay.State(ctx)
	require.NoError(t, err)
	return snap
}

func dumpJSON(t *testing.T, statedb *state.StateDB) string {
	t.Helper()
	blob, err := json.Marshal(statedb.Dump(nil))
	require.NoError(t, err)
	return string(blob)
}

func TestEmptyPoolMatchesHead(t *testing.T) {
	e := newTestEnv(t, nil)

	snap := e.state(t)
	require.NotNil(t, snap.Block)
	assert.Empty(t, snap.Txs)
	assert.Empty(t, snap.Receipts)
	assert.Equal(t, e.chain.CurrentBlock().Root, snap.Block.Root())
	assert.JSONEq(t, dumpJSON(t, e.chain.StateCopy()), dumpJSON(t, snap.StateCopy()))
	assert.Equal(t, Published, e.overlay.Status())
}

func TestPendingTransactionApplied(t *testing.T) {
	e := newTestEnv(t, nil)
	head := e.chain.CurrentBlock()
	tx := e.send(t, e.keys[0], 0, recipient, params.TxGas)

	// The call must observe the transaction added just before it.
	snap := e.state(t)
	require.Len(t, snap.Txs, 1)
	assert.Equal(t, tx.Hash(), snap.Txs[0].Hash())
	require.Len(t, snap.Receipts, 1)
	assert.Equal(t, types.ReceiptStatusSuccessful, snap.Receipts[0].Status)
	assert.Equal(t, e.pool.Version(), snap.Version())
	assert.Equal(t, uint64(1000), snap.StateCopy().GetBalance(recipient).Uint64())

	// Canonical chain and pool are untouched.
	assert.Equal(t, head.Hash(), e.chain.CurrentBlock().Hash())
	assert.True(t, e.chain.StateCopy().GetBalance(recipient).IsZero())
	assert.True(t, e.pool.Has(tx.Hash()))
	assert.Equal(t, txpool.StatusPending, e.pool.Status(tx.Hash()))
}

func TestSnapshotStateIsPrivate(t *testing.T) {
	e := newTestEnv(t, nil)
	e.send(t, e.keys[0], 0, recipient, params.TxGas)
	snap := e.state(t)

	copy1 := snap.StateCopy()
	copy1.SetNonce(recipient, 99, tracing.NonceChangeUnspecified)
	assert.Equal(t, uint64(0), snap.StateCopy().GetNonce(recipient), "copies must not share writes")
}

func TestRevertingTransaction(t *testing.T) {
	e := newTestEnv(t, nil)
	e.send(t, e.keys[0], 0, revertAddr, 100_000)

	snap := e.state(t)
	require.NoError(t, snap.Err)
	require.Len(t, snap.Receipts, 1)
	assert.Equal(t, types.ReceiptStatusFailed, snap.Receipts[0].Status)
	assert.Empty(t, snap.Skipped)

	statedb := snap.StateCopy()
	assert.Equal(t, common.Hash{}, statedb.GetState(revertAddr, common.Hash{}), "reverted write must not persist")
	assert.Equal(t, uint64(1), statedb.GetNonce(crypto.PubkeyToAddress(e.keys[0].PublicKey)), "nonce is still consumed")
}

func TestStaleTransactionSkipped(t *testing.T) {
	e := newTestEnv(t, nil)
	sender := crypto.PubkeyToAddress(e.keys[0].PublicKey)
	tx := e.send(t, e.keys[0], 0, recipient, params.TxGas)
	e.send(t, e.keys[1], 0, recipient, params.TxGas)
	require.Len(t, e.state(t).Txs, 2)

	// Bump the canonical nonce behind the pool's back.
	require.NoError(t, e.chain.WriteState(func(statedb *state.StateDB) error {
		statedb.SetNonce(sender, 1, tracing.NonceChangeUnspecified)
		return nil
	}))
	snap := e.state(t)
	require.NoError(t, snap.Err)
	require.Len(t, snap.Skipped, 1)
	assert.Equal(t, tx.Hash(), snap.Skipped[0].Tx.Hash())
	assert.True(t, errors.Is(snap.Skipped[0].Err, gethcore.ErrNonceTooLow), "unexpected error %v", snap.Skipped[0].Err)
	require.Len(t, snap.Txs, 1)
	assert.Equal(t, crypto.PubkeyToAddress(e.keys[1].PublicKey), snap.Txs[0].From)
	assert.True(t, e.pool.Has(tx.Hash()), "the overlay never edits the pool")
}

func TestHeadChangeRecomputes(t *testing.T) {
	e := newTestEnv(t, nil)
	first := e.state(t)

	block, _, err := e.chain.AppendBlock(func(parent *types.Header, statedb *state.StateDB) (*types.Block, types.Receipts, error) {
		config := e.chain.Config()
		header := core.MakeHeader(config, parent, core.HeaderParams{Time: parent.Time + 1, GasLimit: parent.GasLimit})
		return core.SealBlock(config, header, statedb.IntermediateRoot(true), nil, nil), nil, nil
	})
	require.NoError(t, err)

	snap := e.state(t)
	assert.NotSame(t, first, snap)
	assert.Equal(t, block.Hash(), snap.Block.ParentHash())
	assert.Equal(t, block.NumberU64()+1, snap.Block.NumberU64())
}

func TestPendingState(t *testing.T) {
	e := newTestEnv(t, nil)
	e.send(t, e.keys[0], 0, recipient, params.TxGas)

	header, statedb, err := e.overlay.PendingState(context.Background())
	require.NoError(t, err)
	head := e.chain.CurrentBlock()
	assert.Equal(t, head.Number.Uint64()+1, header.Number.Uint64())
	assert.Equal(t, head.Time+1, header.Time)
	assert.Equal(t, uint64(1000), statedb.GetBalance(recipient).Uint64())

	var _ execution.PendingStateProvider = e.overlay
}

func TestSubscribers(t *testing.T) {
	e := newTestEnv(t, nil)
	e.state(t)

	ch := make(chan Event, 16)
	sub := e.overlay.SubscribeSnapshots(ch)
	defer sub.Unsubscribe()

	tx := e.send(t, e.keys[0], 0, recipient, params.TxGas)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			require.NoError(t, ev.Snapshot.Err)
			if len(ev.Snapshot.Txs) == 1 {
				assert.Equal(t, tx.Hash(), ev.Snapshot.Txs[0].Hash())
				return
			}
		case <-timeout:
			t.Fatal("no snapshot with the pooled transaction published")
		}
	}
}

func TestTriggersCoalesce(t *testing.T) {
	e := newTestEnv(t, nil)
	e.state(t)

	for i := 0; i < 100; i++ {
		e.overlay.Trigger()
	}
	assert.Eventually(t, func() bool {
		return e.overlay.Status() == Published && len(e.overlay.trigger) == 0
	}, 5*time.Second, 10*time.Millisecond)

	// At most one run waits behind the running one.
	assert.LessOrEqual(t, e.overlay.Latest().seq, uint64(102))
}

func TestFetchFailure(t *testing.T) {
	src := fork.NewMemorySource(big.NewInt(10), 100)
	e := newTestEnv(t, fork.NewFetcher(src, fork.NewCache(nil), 100))
	e.state(t)

	ch := make(chan Event, 16)
	sub := e.overlay.SubscribeSnapshots(ch)
	defer sub.Unsubscribe()

	// The recipient was never read, so replay has to reach the source.
	fetchErr := errors.New("remote unreachable")
	src.SetFailure(fetchErr)
	e.send(t, e.keys[0], 0, common.HexToAddress("0x1234"), params.TxGas)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.overlay.State(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, execution.ErrStateUnavailable), "unexpected error %v", err)
	assert.Equal(t, Idle, e.overlay.Status())

	for reported := false; !reported; {
		select {
		case ev := <-ch:
			if ev.Snapshot.Err != nil {
				assert.Nil(t, ev.Snapshot.Block)
				reported = true
			}
		case <-ctx.Done():
			t.Fatal("failure not reported to subscribers")
		}
	}
	assert.Equal(t, uint64(100), e.chain.CurrentBlock().Number.Uint64(), "canonical chain untouched")
	assert.Equal(t, 1, e.pool.Count(), "pool untouched")

	// Once the source recovers, the retry in State succeeds.
	src.SetFailure(nil)
	snap := e.state(t)
	assert.Len(t, snap.Txs, 1)
}

func TestClosedOverlay(t *testing.T) {
	e := newTestEnv(t, nil)
	e.state(t)
	e.overlay.Close()

	e.send(t, e.keys[0], 0, recipient, params.TxGas)
	_, err := e.overlay.State(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
