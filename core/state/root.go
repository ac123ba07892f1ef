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
	"bytes"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

// leaf is a hashed-key trie entry.
type leaf struct {
	key   []byte
	value []byte
}

// hashLeaves feeds the leaves into a stack trie in key order and returns the
// root. An empty set hashes to the empty root.
// hashLeaves 按键顺序将叶子节点写入 stack trie 并返回根哈希。
func hashLeaves(leaves []leaf) common.Hash {
	if len(leaves) == 0 {
		return types.EmptyRootHash
	}
	slices.SortFunc(leaves, func(a, b leaf) int { return bytes.Compare(a.key, b.key) })

	st := trie.NewStackTrie(nil)
	for _, l := range leaves {
		st.Update(l.key, l.value)
	}
	return st.Hash()
}

// storageRoot computes the storage root of the locally known slots of the
// account's current incarnation.
func (s *StateDB) storageRoot(addr common.Address, rec *accountRecord) common.Hash {
	var leaves []leaf
	s.store.forEachSlot(addr, rec.incarnation, func(key, value common.Hash) bool {
		if value == (common.Hash{}) {
			return true
		}
		enc, _ := rlp.EncodeToBytes(common.TrimLeftZeroes(value[:]))
		leaves = append(leaves, leaf{key: crypto.Keccak256(key[:]), value: enc})
		return true
	})
	return hashLeaves(leaves)
}

// stateRoot computes the account trie root over the local overlay. Accounts
// only present on the fork are not part of it, so for a forked state the root
// identifies the local modifications rather than the whole chain state.
func (s *StateDB) stateRoot() common.Hash {
	var leaves []leaf
	s.store.forEachAccount(func(addr common.Address, rec *accountRecord) bool {
		acct := types.StateAccount{
			Nonce:    rec.nonce,
			Balance:  rec.balance,
			Root:     s.storageRoot(addr, rec),
			CodeHash: rec.codeHash.Bytes(),
		}
		enc, _ := rlp.EncodeToBytes(&acct)
		leaves = append(leaves, leaf{key: crypto.Keccak256(addr[:]), value: enc})
		return true
	})
	return hashLeaves(leaves)
}
