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

package state

import (
	"maps"

	"github.com/ethereum/go-ethereum/common"
)

// transientStorage is the EIP-1153 storage, discarded at the end of every
// transaction.
// transientStorage 是 EIP-1153 临时存储，在每笔交易结束时丢弃。
type transientStorage map[common.Address]map[common.Hash]common.Hash

func newTransientStorage() transientStorage {
	return make(transientStorage)
}

// Set sets the transient-storage value; a zero value deletes the key.
func (t transientStorage) Set(addr common.Address, key, value common.Hash) {
	if value == (common.Hash{}) {
		if slots, ok := t[addr]; ok {
			delete(slots, key)
			if len(slots) == 0 {
				delete(t, addr)
			}
		}
		return
	}
	if _, ok := t[addr]; !ok {
		t[addr] = make(map[common.Hash]common.Hash)
	}
	t[addr][key] = value
}

func (t transientStorage) Get(addr common.Address, key common.Hash) common.Hash {
	return t[addr][key]
}

func (t transientStorage) Copy() transientStorage {
	storage := make(transientStorage, len(t))
	for addr, slots := range t {
		storage[addr] = maps.Clone(slots)
	}
	return storage
}
