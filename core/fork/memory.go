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
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// MemorySource is an in-process simulated remote chain. It always answers with
// its live values regardless of the requested block, which makes it useful to
// check that cached reads never observe later remote changes.
// MemorySource 是进程内模拟的远程链，始终返回最新值而忽略请求的区块。
type MemorySource struct {
	mu       sync.RWMutex
	chainID  *big.Int
	head     uint64
	accounts map[common.Address]*Account
	storage  map[common.Address]map[common.Hash]common.Hash
	headers  []*types.Header

	fail  error        // If set, every state read fails with this error
	calls atomic.Int64 // Number of state reads served (or failed)
}

// NewMemorySource creates an empty simulated remote chain.
func NewMemorySource(chainID *big.Int, head uint64) *MemorySource {
	return &MemorySource{
		chainID:  new(big.Int).Set(chainID),
		head:     head,
		accounts: make(map[common.Address]*Account),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// SetAccount replaces the remote account.
func (s *MemorySource) SetAccount(addr common.Address, nonce uint64, balance *uint256.Int, code []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[addr] = NewAccount(nonce, balance, code)
}

// SetStorage replaces a remote storage slot.
func (s *MemorySource) SetStorage(addr common.Address, key, value common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storage[addr] == nil {
		s.storage[addr] = make(map[common.Hash]common.Hash)
	}
	s.storage[addr][key] = value
}

// SetFailure makes every following state read fail with err, or succeed again
// if err is nil.
func (s *MemorySource) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Calls returns how many state reads reached the source.
func (s *MemorySource) Calls() int64 {
	return s.calls.Load()
}

func (s *MemorySource) Account(ctx context.Context, addr common.Address, block *big.Int) (*Account, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if acct, ok := s.accounts[addr]; ok {
		return acct.Copy(), nil
	}
	return NewAccount(0, nil, nil), nil
}

func (s *MemorySource) Storage(ctx context.Context, addr common.Address, key common.Hash, block *big.Int) (common.Hash, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return common.Hash{}, s.fail
	}
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	return s.storage[addr][key], nil
}

func (s *MemorySource) Code(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error) {
	s.calls.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	if acct, ok := s.accounts[addr]; ok {
		return common.CopyBytes(acct.Code), nil
	}
	return nil, nil
}

func (s *MemorySource) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(s.chainID), nil
}

func (s *MemorySource) BlockNumber(ctx context.Context) (uint64, error) {
	return s.head, nil
}

// HeaderByNumber returns a synthetic header. Headers link to their parents,
// so that walking back from any header reaches block zero.
func (s *MemorySource) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.head
	if number != nil {
		n = number.Uint64()
	}
	if n > s.head {
		return nil, fmt.Errorf("%w: block %d beyond head %d", ErrFetchFailed, n, s.head)
	}
	for i := uint64(len(s.headers)); i <= n; i++ {
		header := &types.Header{
			Number:     new(big.Int).SetUint64(i),
			Time:       1_700_000_000 + i*12,
			GasLimit:   30_000_000,
			BaseFee:    big.NewInt(1_000_000_000),
			Difficulty: new(big.Int),
		}
		if i > 0 {
			header.ParentHash = s.headers[i-1].Hash()
		}
		s.headers = append(s.headers, header)
	}
	return types.CopyHeader(s.headers[n]), nil
}
