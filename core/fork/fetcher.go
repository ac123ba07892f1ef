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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// Fetcher is the read path from the local state store into the remote chain:
// cache first, then the (intercepted) source at the pinned block. Concurrent
// misses for the same key share a single remote read.
// Fetcher 是本地状态存储到远程链的读取路径：先查缓存，再在固定区块查询数据源。
type Fetcher struct {
	source Source
	cache  *Cache
	block  uint64
	group  *singleflight.Group
}

// NewFetcher creates a fetcher pinned at the given block.
func NewFetcher(source Source, cache *Cache, block uint64) *Fetcher {
	return &Fetcher{
		source: source,
		cache:  cache,
		block:  block,
		group:  new(singleflight.Group),
	}
}

// Block returns the block number the fetcher reads at.
func (f *Fetcher) Block() uint64 {
	return f.block
}

// Source returns the remote source.
func (f *Fetcher) Source() Source {
	return f.source
}

// Cache returns the cache shared by all fetchers derived from this one.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// At returns a fetcher reading at another block, sharing source and cache.
func (f *Fetcher) At(block uint64) *Fetcher {
	return &Fetcher{source: f.source, cache: f.cache, block: block, group: f.group}
}

func (f *Fetcher) number() *big.Int {
	return new(big.Int).SetUint64(f.block)
}

// do runs read once for all concurrent callers of key. The shared read is
// detached from the cancellation of whichever caller started it, so one caller
// giving up does not fail the others; reads stay bounded by the Timeout
// interceptor when one is configured. A caller whose context ends stops waiting with its own error.
func (f *Fetcher) do(ctx context.Context, key cacheKey, read func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	detached := context.WithoutCancel(ctx)
	ch := f.group.DoChan(string(key.encode()), func() (interface{}, error) {
		return read(detached)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Account returns the remote account at the pinned block. The result is shared
// and must not be modified.
func (f *Fetcher) Account(ctx context.Context, addr common.Address) (*Account, error) {
	if acct, ok := f.cache.Account(addr, f.block); ok {
		return acct, nil
	}
	key := cacheKey{kind: KindAccount, addr: addr, block: f.block}
	v, err := f.do(ctx, key, func(ctx context.Context) (interface{}, error) {
		acct, err := f.source.Account(ctx, addr, f.number())
		if err != nil {
			return nil, err
		}
		return f.cache.PutAccount(addr, f.block, acct), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Account), nil
}

// Storage returns a remote storage slot at the pinned block.
func (f *Fetcher) Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	if val, ok := f.cache.Storage(addr, slot, f.block); ok {
		return val, nil
	}
	key := cacheKey{kind: KindStorage, addr: addr, slot: slot, block: f.block}
	v, err := f.do(ctx, key, func(ctx context.Context) (interface{}, error) {
		val, err := f.source.Storage(ctx, addr, slot, f.number())
		if err != nil {
			return nil, err
		}
		return f.cache.PutStorage(addr, slot, f.block, val), nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return v.(common.Hash), nil
}

// Code returns the remote code of an address at the pinned block.
func (f *Fetcher) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	if code, ok := f.cache.Code(addr, f.block); ok {
		return code, nil
	}
	key := cacheKey{kind: KindCode, addr: addr, block: f.block}
	v, err := f.do(ctx, key, func(ctx context.Context) (interface{}, error) {
		code, err := f.source.Code(ctx, addr, f.number())
		if err != nil {
			return nil, err
		}
		return f.cache.PutCode(addr, f.block, code), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// CodeByHash returns code already fetched for some address, if any.
func (f *Fetcher) CodeByHash(hash common.Hash) ([]byte, bool) {
	return f.cache.CodeByHash(hash)
}
