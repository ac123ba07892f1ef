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

package txpool

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core/state"
	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	oneEther  = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

type testChain struct {
	config *params.ChainConfig
	head   *types.Header
	state  *state.StateDB
}

func (c *testChain) Config() *params.ChainConfig { return c.config }
func (c *testChain) CurrentBlock() *types.Header { return c.head }
func (c *testChain) StateCopy() *state.StateDB   { return c.state.Copy() }

func newTestChain() *testChain {
	return &testChain{
		config: params.TestChainConfig,
		head: &types.Header{
			Number:   big.NewInt(0),
			GasLimit: 30_000_000,
			BaseFee:  big.NewInt(params.InitialBaseFee),
		},
		state: state.NewEmpty(),
	}
}

type testAccount struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newAccount(t *testing.T, chain *testChain, balance *big.Int) testAccount {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	chain.state.SetBalance(addr, uint256.MustFromBig(balance))
	return testAccount{key: key, addr: addr}
}

func dynamicTx(t *testing.T, pool *TxPool, acct testAccount, nonce uint64, tip, feeCap int64, value *big.Int) *Transaction {
	t.Helper()
	tx, err := types.SignNewTx(acct.key, pool.Signer(), &types.DynamicFeeTx{
		ChainID:   pool.chainconfig.ChainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(tip),
		GasFeeCap: big.NewInt(feeCap),
		Gas:       21000,
		To:        &recipient,
		Value:     value,
	})
	require.NoError(t, err)
	ptx, err := NewTransaction(tx, pool.Signer())
	require.NoError(t, err)
	return ptx
}

const gwei = params.GWei

func TestNonceGapThenFill(t *testing.T) {
	chain := newTestChain()
	sender := newAccount(t, chain, oneEther)
	chain.state.SetNonce(sender.addr, 4, tracing.NonceChangeUnspecified)
	pool := New(DefaultConfig, chain)
	defer pool.Close()

	tx5 := dynamicTx(t, pool, sender, 5, gwei, 2*gwei, common.Big1)
	status, err := pool.Add(tx5)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, status, "nonce 5 must wait for nonce 4")
	assert.Empty(t, pool.Ordered(chain.head.BaseFee))

	tx4 := dynamicTx(t, pool, sender, 4, gwei, 2*gwei, common.Big1)
	status, err = pool.Add(tx4)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)
	assert.Equal(t, StatusPending, pool.Status(tx5.Hash()), "nonce 5 promoted behind nonce 4")

	ordered := pool.Ordered(chain.head.BaseFee)
	require.Len(t, ordered, 2)
	assert.Equal(t, uint64(4), ordered[0].Nonce())
	assert.Equal(t, uint64(5), ordered[1].Nonce())
	assert.Equal(t, uint64(6), pool.Nonce(sender.addr))
}

func TestReplacement(t *testing.T) {
	chain := newTestChain()
	sender := newAccount(t, chain, oneEther)
	pool := New(DefaultConfig, chain)
	defer pool.Close()

	events := make(chan TxEvent, 16)
	sub := pool.SubscribeTxEvents(events)
	defer sub.Unsubscribe()

	orig := dynamicTx(t, pool, sender, 0, 100*gwei/100, 10*gwei, common.Big0)
	_, err := pool.Add(orig)
	require.NoError(t, err)

	// Test case 1: a 5% bump is not enough
	cheap := dynamicTx(t, pool, sender, 0, 105*gwei/100, 10*gwei*105/100, common.Big0)
	_, err = pool.Add(cheap)
	assert.ErrorIs(t, err, ErrReplaceUnderpriced)

	// Test case 2: bumping only the fee cap is not enough
	capOnly := dynamicTx(t, pool, sender, 0, 100*gwei/100, 20*gwei, common.Big0)
	_, err = pool.Add(capOnly)
	assert.ErrorIs(t, err, ErrReplaceUnderpriced)

	// Test case 3: a 10% bump of both replaces
	better := dynamicTx(t, pool, sender, 0, 110*gwei/100, 11*gwei, common.Big0)
	status, err := pool.Add(better)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)
	assert.False(t, pool.Has(orig.Hash()))
	assert.True(t, pool.Has(better.Hash()))
	assert.Equal(t, 1, pool.Count())

	want := []struct {
		kind   TxEventKind
		hash   common.Hash
		reason string
	}{
		{TxAdded, orig.Hash(), ""},
		{TxRemoved, orig.Hash(), ReasonReplaced},
		{TxAdded, better.Hash(), ""},
	}
	var lastVersion uint64
	for i, w := range want {
		select {
		case ev := <-events:
			assert.Equal(t, w.kind, ev.Kind, "event %d", i)
			assert.Equal(t, w.hash, ev.Txs[0].Hash(), "event %d", i)
			assert.Equal(t, w.reason, ev.Reason, "event %d", i)
			assert.GreaterOrEqual(t, ev.Version, lastVersion)
			lastVersion = ev.Version
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
	assert.Equal(t, lastVersion, pool.Version())
}

func TestRejections(t *testing.T) {
	chain := newTestChain()
	rich := newAccount(t, chain, oneEther)
	poor := newAccount(t, chain, big.NewInt(21000*2*gwei))
	chain.state.SetNonce(rich.addr, 3, tracing.NonceChangeUnspecified)
	pool := New(DefaultConfig, chain)
	defer pool.Close()

	// Test case 1: nonce already used on chain
	_, err := pool.Add(dynamicTx(t, pool, rich, 2, gwei, 2*gwei, common.Big0))
	assert.ErrorIs(t, err, ErrNonceTooLow)

	// Test case 2: cannot pay for gas and value
	_, err = pool.Add(dynamicTx(t, pool, poor, 0, gwei, 2*gwei, common.Big1))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Test case 3: affordable alone, not on top of the already pooled one
	_, err = pool.Add(dynamicTx(t, pool, poor, 0, gwei, gwei, common.Big0))
	require.NoError(t, err)
	_, err = pool.Add(dynamicTx(t, pool, poor, 1, gwei, 2*gwei, common.Big0))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Test case 4: duplicate
	tx := dynamicTx(t, pool, rich, 3, gwei, 2*gwei, common.Big0)
	_, err = pool.Add(tx)
	require.NoError(t, err)
	_, err = pool.Add(tx)
	assert.ErrorIs(t, err, ErrAlreadyKnown)

	// Test case 5: sender does not match the signature
	forged := dynamicTx(t, pool, rich, 4, gwei, 2*gwei, common.Big0)
	forged.From = poor.addr
	_, err = pool.Add(forged)
	assert.ErrorIs(t, err, ErrInvalidSender)

	// Test case 6: tip above fee cap
	_, err = pool.Add(dynamicTx(t, pool, rich, 4, 3*gwei, 2*gwei, common.Big0))
	assert.ErrorIs(t, err, ErrTipAboveFeeCap)

	// Test case 7: gas above the block limit
	heavy, err := types.SignNewTx(rich.key, pool.Signer(), &types.DynamicFeeTx{
		ChainID: pool.chainconfig.ChainID, Nonce: 4, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(gwei),
		Gas: chain.head.GasLimit + 1, To: &recipient,
	})
	require.NoError(t, err)
	_, err = pool.Add(&Transaction{Tx: heavy, From: rich.addr})
	assert.ErrorIs(t, err, ErrGasLimit)

	pending, queued := pool.Stats()
	assert.Equal(t, 2, pending)
	assert.Equal(t, 0, queued)
}

func TestImpersonated(t *testing.T) {
	chain := newTestChain()
	whale := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	other := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	chain.state.SetBalance(whale, uint256.MustFromBig(oneEther))
	chain.state.SetBalance(other, uint256.MustFromBig(oneEther))
	pool := New(DefaultConfig, chain)
	defer pool.Close()

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID: pool.chainconfig.ChainID, GasTipCap: big.NewInt(gwei), GasFeeCap: big.NewInt(2 * gwei),
		Gas: 21000, To: &recipient, Value: common.Big1,
	})
	a, err := Impersonate(unsigned, whale, pool.Signer())
	require.NoError(t, err)
	b, err := Impersonate(unsigned, other, pool.Signer())
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), b.Hash(), "placeholder signature must embed the sender")

	status, err := pool.Add(a)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)
	assert.Equal(t, whale, pool.Get(a.Hash()).From)

	// Without the flag the placeholder signature is rejected.
	c, err := Impersonate(unsigned, other, pool.Signer())
	require.NoError(t, err)
	c.Impersonated = false
	_, err = pool.Add(c)
	assert.ErrorIs(t, err, ErrInvalidSender)
}

func TestRecover(t *testing.T) {
	chain := newTestChain()
	pool := New(DefaultConfig, chain)
	defer pool.Close()

	whale := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	unsigned := types.NewTx(&types.LegacyTx{GasPrice: big.NewInt(gwei), Gas: 21000, To: &recipient})
	fake, err := Impersonate(unsigned, whale, pool.Signer())
	require.NoError(t, err)

	got, err := Recover(fake.Tx, pool.Signer())
	require.NoError(t, err)
	assert.True(t, got.Impersonated)
	assert.Equal(t, whale, got.From)

	from, err := Sender(pool.Signer(), fake.Tx)
	require.NoError(t, err)
	assert.Equal(t, whale, from)

	acct := newAccount(t, chain, oneEther)
	signed := dynamicTx(t, pool, acct, 0, gwei, 2*gwei, common.Big1)
	got, err = Recover(signed.Tx, pool.Signer())
	require.NoError(t, err)
	assert.False(t, got.Impersonated)
	assert.Equal(t, acct.addr, got.From)
}

func TestOrderingNoncesContiguous(t *testing.T) {
	chain := newTestChain()
	pool := New(DefaultConfig, chain)
	defer pool.Close()

	var accounts []testAccount
	for i := 0; i < 5; i++ {
		accounts = append(accounts, newAccount(t, chain, oneEther))
	}
	pool.Reset(chain.head)

	// Every account submits its nonces out of order with varying tips.
	for i, acct := range accounts {
		for _, nonce := range []uint64{2, 0, 3, 1} {
			tip := int64(i+1)*gwei + int64(nonce)
			_, err := pool.Add(dynamicTx(t, pool, acct, nonce, tip, 100*gwei, common.Big0))
			require.NoError(t, err)
		}
	}
	// A gapped transaction is never returned.
	_, err := pool.Add(dynamicTx(t, pool, accounts[0], 9, 50*gwei, 100*gwei, common.Big0))
	require.NoError(t, err)

	ordered, version := pool.Snapshot(chain.head.BaseFee)
	require.Len(t, ordered, 20)
	assert.Equal(t, pool.Version(), version)

	next := make(map[common.Address]uint64)
	for _, tx := range ordered {
		assert.Equal(t, next[tx.From], tx.Nonce(), "sender %v out of order", tx.From)
		next[tx.From] = tx.Nonce() + 1
	}
	// The first transaction is the head with the highest tip.
	assert.Equal(t, accounts[4].addr, ordered[0].From)

	// Iterating twice gives the same sequence.
	again := pool.Ordered(chain.head.BaseFee)
	if diff := cmp.Diff(hashes(ordered), hashes(again)); diff != "" {
		t.Fatalf("ordering not deterministic (-first +second):\n%s", diff)
	}
}

func hashes(txs []*Transaction) []common.Hash {
	out := make([]common.Hash, len(txs))
	for i, tx := range txs {
		out[i] = tx.Hash()
	}
	return out
}

func TestOverflowEviction(t *testing.T) {
	chain := newTestChain()
	a := newAccount(t, chain, oneEther)
	b := newAccount(t, chain, oneEther)
	c := newAccount(t, chain, oneEther)

	config := DefaultConfig
	config.GlobalSlots, config.GlobalQueue = 1, 1
	pool := New(config, chain)
	defer pool.Close()

	cheap := dynamicTx(t, pool, a, 0, gwei, 10*gwei, common.Big0)
	mid := dynamicTx(t, pool, b, 0, 2*gwei, 10*gwei, common.Big0)
	_, err := pool.Add(cheap)
	require.NoError(t, err)
	_, err = pool.Add(mid)
	require.NoError(t, err)

	// Test case 1: not better than anything in the pool
	_, err = pool.Add(dynamicTx(t, pool, c, 0, gwei/2, 10*gwei, common.Big0))
	assert.ErrorIs(t, err, ErrTxPoolOverflow)

	// Test case 2: better priced, evicts the cheapest of another sender
	rich := dynamicTx(t, pool, c, 0, 3*gwei, 10*gwei, common.Big0)
	_, err = pool.Add(rich)
	require.NoError(t, err)
	assert.False(t, pool.Has(cheap.Hash()))
	assert.True(t, pool.Has(mid.Hash()))
	assert.Equal(t, 2, pool.Count())
}

func TestAccountQueueLimit(t *testing.T) {
	chain := newTestChain()
	acct := newAccount(t, chain, oneEther)

	config := DefaultConfig
	config.AccountQueue = 2
	pool := New(config, chain)
	defer pool.Close()

	for _, nonce := range []uint64{1, 2} {
		_, err := pool.Add(dynamicTx(t, pool, acct, nonce, gwei, 2*gwei, common.Big0))
		require.NoError(t, err)
	}
	_, err := pool.Add(dynamicTx(t, pool, acct, 3, gwei, 2*gwei, common.Big0))
	assert.ErrorIs(t, err, ErrAccountLimitExceeded)
}

func TestRemoveDemotes(t *testing.T) {
	chain := newTestChain()
	acct := newAccount(t, chain, oneEther)
	pool := New(DefaultConfig, chain)
	defer pool.Close()

	var txs []*Transaction
	for nonce := uint64(0); nonce < 3; nonce++ {
		tx := dynamicTx(t, pool, acct, nonce, gwei, 2*gwei, common.Big0)
		_, err := pool.Add(tx)
		require.NoError(t, err)
		txs = append(txs, tx)
	}
	assert.True(t, pool.Remove(txs[1].Hash()))
	assert.False(t, pool.Remove(txs[1].Hash()))

	assert.Equal(t, StatusPending, pool.Status(txs[0].Hash()))
	assert.Equal(t, StatusQueued, pool.Status(txs[2].Hash()), "gapped transaction must be demoted")
	assert.Equal(t, uint64(1), pool.Nonce(acct.addr))

	assert.Equal(t, 2, pool.DropAll())
	assert.Equal(t, 0, pool.Count())
}

func TestResetAfterBlock(t *testing.T) {
	chain := newTestChain()
	acct := newAccount(t, chain, oneEther)
	pool := New(DefaultConfig, chain)
	defer pool.Close()

	var txs []*Transaction
	for nonce := uint64(0); nonce < 3; nonce++ {
		tx := dynamicTx(t, pool, acct, nonce, gwei, 2*gwei, common.Big0)
		_, err := pool.Add(tx)
		require.NoError(t, err)
		txs = append(txs, tx)
	}
	events := make(chan TxEvent, 4)
	sub := pool.SubscribeTxEvents(events)
	defer sub.Unsubscribe()

	// The chain included the first two transactions.
	pool.RemoveMined([]common.Hash{txs[0].Hash(), txs[1].Hash()}, nil)
	chain.state.SetNonce(acct.addr, 2, tracing.NonceChangeUnspecified)
	chain.head = &types.Header{Number: big.NewInt(1), GasLimit: 30_000_000, BaseFee: chain.head.BaseFee}
	pool.Reset(chain.head)

	ev := <-events
	assert.Equal(t, TxRemoved, ev.Kind)
	assert.Equal(t, ReasonMined, ev.Reason)
	assert.Len(t, ev.Txs, 2)

	assert.Equal(t, StatusPending, pool.Status(txs[2].Hash()))
	assert.Equal(t, uint64(3), pool.Nonce(acct.addr))
	assert.Equal(t, uint64(21000), pool.PendingGas())
}

func TestResetDropsUnaffordable(t *testing.T) {
	chain := newTestChain()
	acct := newAccount(t, chain, oneEther)
	pool := New(DefaultConfig, chain)
	defer pool.Close()

	tx0 := dynamicTx(t, pool, acct, 0, gwei, 2*gwei, big.NewInt(1000))
	tx1 := dynamicTx(t, pool, acct, 1, gwei, 2*gwei, common.Big0)
	for _, tx := range []*Transaction{tx0, tx1} {
		_, err := pool.Add(tx)
		require.NoError(t, err)
	}
	// The balance only covers nonce 1: nonce 0 is dropped, nonce 1 becomes gapped.
	chain.state.SetBalance(acct.addr, uint256.NewInt(21000*2*gwei))
	pool.Reset(chain.head)

	assert.False(t, pool.Has(tx0.Hash()))
	assert.Equal(t, StatusQueued, pool.Status(tx1.Hash()))
}
