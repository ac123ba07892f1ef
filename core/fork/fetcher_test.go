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

package fork

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testSlot = common.HexToHash("0x01")
)

func newTestFetcher(t *testing.T) (*MemorySource, *Fetcher) {
	t.Helper()
	src := NewMemorySource(big.NewInt(1), 100)
	return src, NewFetcher(src, NewCache(nil), 100)
}

func TestFetcherStorageImmutable(t *testing.T) {
	src, f := newTestFetcher(t)
	src.SetStorage(testAddr, testSlot, common.HexToHash("0x0a"))

	// First read hits the remote and caches the value.
	val, err := f.Storage(context.Background(), testAddr, testSlot)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x0a"), val)

	// The remote changes, the cached value must not.
	src.SetStorage(testAddr, testSlot, common.HexToHash("0x0b"))
	for i := 0; i < 3; i++ {
		val, err = f.Storage(context.Background(), testAddr, testSlot)
		require.NoError(t, err)
		assert.Equal(t, common.HexToHash("0x0a"), val, "cached value changed")
	}
	assert.Equal(t, int64(1), src.Calls(), "remote should be read once")

	// A different block is a different key.
	val, err = f.At(101).Storage(context.Background(), testAddr, testSlot)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x0b"), val)
}

func TestFetcherAccount(t *testing.T) {
	src, f := newTestFetcher(t)
	code := []byte{0x60, 0x00, 0x60, 0x00, 0xf3}
	src.SetAccount(testAddr, 7, uint256.NewInt(1000), code)

	acct, err := f.Account(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), acct.Nonce)
	assert.Equal(t, uint64(1000), acct.Balance.Uint64())
	assert.Equal(t, code, acct.Code)

	byHash, ok := f.CodeByHash(acct.CodeHash)
	assert.True(t, ok)
	assert.Equal(t, code, byHash)

	// Code for the same address and block is served from the account read.
	got, err := f.Code(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, code, got)
	assert.Equal(t, int64(1), src.Calls())

	// Unknown accounts are empty.
	empty, err := f.Account(context.Background(), common.HexToAddress("0xbeef"))
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.Equal(t, types.EmptyCodeHash, empty.CodeHash)
}

func TestFetcherNothingCachedOnFailure(t *testing.T) {
	src, f := newTestFetcher(t)
	src.SetStorage(testAddr, testSlot, common.HexToHash("0x0a"))
	src.SetFailure(ErrFetchFailed)

	_, err := f.Storage(context.Background(), testAddr, testSlot)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 0, f.Cache().Len(), "failed read must not be cached")

	src.SetFailure(nil)
	val, err := f.Storage(context.Background(), testAddr, testSlot)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x0a"), val)
}

func TestFetcherConcurrentMisses(t *testing.T) {
	src, f := newTestFetcher(t)
	src.SetStorage(testAddr, testSlot, common.HexToHash("0x0a"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, err := f.Storage(context.Background(), testAddr, testSlot)
			assert.NoError(t, err)
			assert.Equal(t, common.HexToHash("0x0a"), val)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, src.Calls(), int64(16))
	assert.Equal(t, 1, f.Cache().Len())
}

// gatedSource holds storage reads until released.
type gatedSource struct {
	*MemorySource
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSource) Storage(ctx context.Context, addr common.Address, key common.Hash, block *big.Int) (common.Hash, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	}
	return s.MemorySource.Storage(ctx, addr, key, block)
}

func TestFetcherCancelledCallerDoesNotFailOthers(t *testing.T) {
	src := NewMemorySource(big.NewInt(1), 100)
	src.SetStorage(testAddr, testSlot, common.HexToHash("0x0a"))
	gated := &gatedSource{MemorySource: src, entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := NewFetcher(gated, NewCache(nil), 100)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.Storage(ctx, testAddr, testSlot)
		first <- err
	}()
	<-gated.entered

	type result struct {
		val common.Hash
		err error
	}
	second := make(chan result, 1)
	go func() {
		val, err := f.Storage(context.Background(), testAddr, testSlot)
		second <- result{val, err}
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(gated.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, common.HexToHash("0x0a"), res.val)
	assert.Equal(t, int64(1), src.Calls())
	assert.Equal(t, 1, f.Cache().Len())
}

func TestCachePutKeepsFirst(t *testing.T) {
	c := NewCache(nil)
	first := c.PutStorage(testAddr, testSlot, 1, common.HexToHash("0x01"))
	second := c.PutStorage(testAddr, testSlot, 1, common.HexToHash("0x02"))
	assert.Equal(t, first, second)

	val, ok := c.Storage(testAddr, testSlot, 1)
	assert.True(t, ok)
	assert.Equal(t, common.HexToHash("0x01"), val)

	_, ok = c.Storage(testAddr, testSlot, 2)
	assert.False(t, ok)
}

func TestDiskCachePersists(t *testing.T) {
	for _, backend := range []string{BackendLevelDB, BackendPebble} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()

			disk, err := OpenDiskCache(dir, backend, 0)
			require.NoError(t, err)

			// The directory is locked while open.
			_, err = OpenDiskCache(dir, backend, 0)
			assert.ErrorIs(t, err, errDirLocked)

			c := NewCache(disk)
			acct := NewAccount(3, uint256.NewInt(42), []byte{0x00})
			c.PutAccount(testAddr, 5, acct)
			c.PutStorage(testAddr, testSlot, 5, common.HexToHash("0x0c"))
			require.NoError(t, c.Close())

			disk, err = OpenDiskCache(dir, backend, 0)
			require.NoError(t, err)
			c = NewCache(disk)
			defer c.Close()

			got, ok := c.Account(testAddr, 5)
			require.True(t, ok, "account should survive reopen")
			assert.Equal(t, acct.Nonce, got.Nonce)
			assert.Equal(t, acct.Balance, got.Balance)
			assert.Equal(t, acct.CodeHash, got.CodeHash)

			val, ok := c.Storage(testAddr, testSlot, 5)
			require.True(t, ok)
			assert.Equal(t, common.HexToHash("0x0c"), val)
		})
	}
}

func TestDecodeAccountCorrupted(t *testing.T) {
	blob := encodeAccount(NewAccount(1, uint256.NewInt(2), []byte{0x01, 0x02}))
	blob[len(blob)-1] ^= 0xff
	_, err := decodeAccount(blob)
	assert.True(t, errors.Is(err, errCorruptEntry))

	_, err = decodeAccount(blob[:10])
	assert.ErrorIs(t, err, errCorruptEntry)
}
