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

// Package fork implements lazy access to the state of a remote chain pinned at
// a fixed block. Remote reads go through an interceptor chain and are memoized
// in an immutable cache keyed by (kind, address, slot, block).
// Package fork 实现对固定区块远程链状态的惰性访问。
package fork

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	// ErrFetchFailed is returned when the remote source could not serve a read.
	ErrFetchFailed = errors.New("fork fetch failed")

	// ErrFetchTimeout is returned when a remote read exceeded its deadline. It
	// is always retryable.
	// ErrFetchTimeout 在远程读取超时时返回，总是可重试的。
	ErrFetchTimeout = errors.New("fork fetch timed out")

	// ErrNoSource is returned by the fetcher when no remote source is configured.
	ErrNoSource = errors.New("no fork source configured")
)

// Kind identifies the type of a remote read.
type Kind uint8

const (
	KindAccount Kind = iota + 1
	KindStorage
	KindCode
)

func (k Kind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindStorage:
		return "storage"
	case KindCode:
		return "code"
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Account is the remote view of an account at the fork block. The storage root
// is never fetched: slots are read one at a time.
// Account 是分叉区块处账户的远程视图。存储根不会被获取，存储槽逐个读取。
type Account struct {
	Nonce    uint64
	Balance  *uint256.Int
	CodeHash common.Hash
	Code     []byte
}

// NewAccount assembles an account and derives its code hash.
func NewAccount(nonce uint64, balance *uint256.Int, code []byte) *Account {
	acct := &Account{Nonce: nonce, Balance: new(uint256.Int), CodeHash: types.EmptyCodeHash, Code: code}
	if balance != nil {
		acct.Balance.Set(balance)
	}
	if len(code) > 0 {
		acct.CodeHash = crypto.Keccak256Hash(code)
	}
	return acct
}

// Empty reports whether the account is indistinguishable from a non-existent
// one, which is all a plain JSON-RPC endpoint can tell us.
func (a *Account) Empty() bool {
	return a.Nonce == 0 && a.Balance.IsZero() && a.CodeHash == types.EmptyCodeHash
}

// Copy returns an independent copy of the account.
func (a *Account) Copy() *Account {
	return &Account{
		Nonce:    a.Nonce,
		Balance:  new(uint256.Int).Set(a.Balance),
		CodeHash: a.CodeHash,
		Code:     common.CopyBytes(a.Code),
	}
}

// Source is a remote chain that can serve state at a given block.
type Source interface {
	// Account retrieves the nonce, balance and code of an account.
	Account(ctx context.Context, addr common.Address, block *big.Int) (*Account, error)

	// Storage retrieves a single storage slot.
	Storage(ctx context.Context, addr common.Address, key common.Hash, block *big.Int) (common.Hash, error)

	// Code retrieves the code of an account.
	Code(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error)

	// ChainID returns the chain identifier of the remote network.
	ChainID(ctx context.Context) (*big.Int, error)

	// BlockNumber returns the current head of the remote network.
	BlockNumber(ctx context.Context) (uint64, error)

	// HeaderByNumber returns the header of the given block, nil meaning latest.
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Request describes a single state read flowing through the interceptor chain.
// Request 描述流经拦截器链的单个状态读取请求。
type Request struct {
	Kind    Kind
	Address common.Address
	Key     common.Hash // Only set for storage reads
	Block   *big.Int
	Attempt int // Incremented by the retry interceptor
}

func (r *Request) String() string {
	if r.Kind == KindStorage {
		return fmt.Sprintf("%v %v[%v]@%v", r.Kind, r.Address, r.Key, r.Block)
	}
	return fmt.Sprintf("%v %v@%v", r.Kind, r.Address, r.Block)
}

// Response carries the result of a state read. Exactly one field is meaningful,
// depending on the request kind.
type Response struct {
	Account *Account
	Value   common.Hash
	Code    []byte
}
