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

// Package state provides the layered account store the node executes against
// and a vm.StateDB implementation on top of it.
// Package state 提供节点执行所依赖的分层账户存储，以及基于它的 vm.StateDB 实现。
package state

import (
	"bytes"
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/evmts/tevm-node/core/fork"
	"github.com/google/btree"
	"github.com/holiman/uint256"
)

const btreeDegree = 32

// accountRecord is the local view of an account. Records are never modified
// after being stored; every change stores a fresh record so that records can
// be shared between cloned stores and kept in the journal as-is.
// accountRecord 是账户的本地视图。记录存储后不会被修改，每次变更都存储新记录。
type accountRecord struct {
	nonce    uint64
	balance  *uint256.Int
	codeHash common.Hash

	// incarnation is part of every local storage key of the account. Wiping the
	// storage bumps it, making all older slots unreachable at once.
	incarnation uint64

	// wiped accounts never read storage from the fork.
	wiped bool

	// deleted accounts do not exist, even if the fork has them.
	deleted bool
}

func newRecord() *accountRecord {
	return &accountRecord{balance: new(uint256.Int), codeHash: types.EmptyCodeHash}
}

func (r *accountRecord) copy() *accountRecord {
	cpy := *r
	cpy.balance = new(uint256.Int).Set(r.balance)
	return &cpy
}

func (r *accountRecord) empty() bool {
	return r.nonce == 0 && r.balance.IsZero() && r.codeHash == types.EmptyCodeHash
}

type accountItem struct {
	addr common.Address
	rec  *accountRecord
}

type slotItem struct {
	addr        common.Address
	incarnation uint64
	key         common.Hash
	value       common.Hash
}

type codeItem struct {
	hash common.Hash
	code []byte
}

func lessAccount(a, b accountItem) bool { return bytes.Compare(a.addr[:], b.addr[:]) < 0 }

func lessSlot(a, b slotItem) bool {
	if c := bytes.Compare(a.addr[:], b.addr[:]); c != 0 {
		return c < 0
	}
	if a.incarnation != b.incarnation {
		return a.incarnation < b.incarnation
	}
	return bytes.Compare(a.key[:], b.key[:]) < 0
}

func lessCode(a, b codeItem) bool { return bytes.Compare(a.hash[:], b.hash[:]) < 0 }

// Store is the layered state: a local overlay of persistent btrees in front of
// an optional fork fetcher, in front of the empty genesis default. Writes only
// ever land in the overlay. Clone is O(1): the trees share nodes copy-on-write.
//
// A Store is not safe for concurrent use, and Clone mutates the source tree's
// copy-on-write context, so callers sharing a Store must serialize all access.
// Store 是分层状态：持久化 btree 本地覆盖层 -> 可选的分叉获取器 -> 空的创世默认值。
type Store struct {
	accounts *btree.BTreeG[accountItem]
	slots    *btree.BTreeG[slotItem]
	code     *btree.BTreeG[codeItem]

	fetcher *fork.Fetcher
	ctx     context.Context
}

// NewStore creates an empty store, reading through to the fetcher if non-nil.
func NewStore(fetcher *fork.Fetcher) *Store {
	return &Store{
		accounts: btree.NewG(btreeDegree, lessAccount),
		slots:    btree.NewG(btreeDegree, lessSlot),
		code:     btree.NewG(btreeDegree, lessCode),
		fetcher:  fetcher,
		ctx:      context.Background(),
	}
}

// Fetcher returns the fork fetcher, nil if the store is not forked.
func (s *Store) Fetcher() *fork.Fetcher {
	return s.fetcher
}

// Clone returns an independent store sharing all current data.
func (s *Store) Clone() *Store {
	return &Store{
		accounts: s.accounts.Clone(),
		slots:    s.slots.Clone(),
		code:     s.code.Clone(),
		fetcher:  s.fetcher,
		ctx:      s.ctx,
	}
}

// localRecord returns the overlay record of the account, if any.
func (s *Store) localRecord(addr common.Address) (*accountRecord, bool) {
	item, ok := s.accounts.Get(accountItem{addr: addr})
	if !ok {
		return nil, false
	}
	return item.rec, true
}

// record resolves the account through all layers. A nil record means the
// account does not exist.
func (s *Store) record(addr common.Address) (*accountRecord, error) {
	if rec, ok := s.localRecord(addr); ok {
		if rec.deleted {
			return nil, nil
		}
		return rec, nil
	}
	if s.fetcher == nil {
		return nil, nil
	}
	acct, err := s.fetcher.Account(s.ctx, addr)
	if err != nil {
		return nil, err
	}
	if acct.Empty() {
		return nil, nil
	}
	return &accountRecord{
		nonce:    acct.Nonce,
		balance:  new(uint256.Int).Set(acct.Balance),
		codeHash: acct.CodeHash,
	}, nil
}

func (s *Store) setRecord(addr common.Address, rec *accountRecord) {
	s.accounts.ReplaceOrInsert(accountItem{addr: addr, rec: rec})
}

// restoreRecord puts back a previous overlay state of the account.
func (s *Store) restoreRecord(addr common.Address, prev *accountRecord, existed bool) {
	if !existed {
		s.accounts.Delete(accountItem{addr: addr})
		return
	}
	s.setRecord(addr, prev)
}

// storage resolves a slot of the given account record.
func (s *Store) storage(addr common.Address, rec *accountRecord, key common.Hash) (common.Hash, error) {
	if rec == nil {
		return common.Hash{}, nil
	}
	if item, ok := s.slots.Get(slotItem{addr: addr, incarnation: rec.incarnation, key: key}); ok {
		return item.value, nil
	}
	if rec.wiped || s.fetcher == nil {
		return common.Hash{}, nil
	}
	return s.fetcher.Storage(s.ctx, addr, key)
}

// localSlot returns the overlay value of a slot, if any.
func (s *Store) localSlot(addr common.Address, incarnation uint64, key common.Hash) (common.Hash, bool) {
	item, ok := s.slots.Get(slotItem{addr: addr, incarnation: incarnation, key: key})
	return item.value, ok
}

func (s *Store) setSlot(addr common.Address, incarnation uint64, key, value common.Hash) {
	s.slots.ReplaceOrInsert(slotItem{addr: addr, incarnation: incarnation, key: key, value: value})
}

func (s *Store) restoreSlot(addr common.Address, incarnation uint64, key, prev common.Hash, existed bool) {
	if !existed {
		s.slots.Delete(slotItem{addr: addr, incarnation: incarnation, key: key})
		return
	}
	s.setSlot(addr, incarnation, key, prev)
}

// forEachSlot iterates the overlay slots of one incarnation of an account in
// key order.
func (s *Store) forEachSlot(addr common.Address, incarnation uint64, fn func(key, value common.Hash) bool) {
	from := slotItem{addr: addr, incarnation: incarnation}
	s.slots.AscendGreaterOrEqual(from, func(item slotItem) bool {
		if item.addr != addr || item.incarnation != incarnation {
			return false
		}
		return fn(item.key, item.value)
	})
}

// forEachAccount iterates the overlay accounts in address order, skipping
// deleted ones.
func (s *Store) forEachAccount(fn func(addr common.Address, rec *accountRecord) bool) {
	s.accounts.Ascend(func(item accountItem) bool {
		if item.rec.deleted {
			return true
		}
		return fn(item.addr, item.rec)
	})
}

// putCode stores content-addressed code. Code is write-once, so this is never
// journaled.
func (s *Store) putCode(code []byte) common.Hash {
	if len(code) == 0 {
		return types.EmptyCodeHash
	}
	hash := crypto.Keccak256Hash(code)
	if !s.code.Has(codeItem{hash: hash}) {
		s.code.ReplaceOrInsert(codeItem{hash: hash, code: common.CopyBytes(code)})
	}
	return hash
}

// codeOf resolves the code of an account record.
func (s *Store) codeOf(addr common.Address, rec *accountRecord) ([]byte, error) {
	if rec == nil || rec.codeHash == types.EmptyCodeHash || rec.codeHash == (common.Hash{}) {
		return nil, nil
	}
	if item, ok := s.code.Get(codeItem{hash: rec.codeHash}); ok {
		return item.code, nil
	}
	if s.fetcher == nil {
		return nil, nil
	}
	if code, ok := s.fetcher.CodeByHash(rec.codeHash); ok {
		return code, nil
	}
	return s.fetcher.Code(s.ctx, addr)
}
