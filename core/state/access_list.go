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
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// accessList is the EIP-2930 warm set of the running transaction.
// accessList 是当前交易的 EIP-2930 预热集合。
type accessList struct {
	addresses map[common.Address]int     // -1 if the address has no slots
	slots     []map[common.Hash]struct{} // Slot sets, indexed by addresses
}

func newAccessList() *accessList {
	return &accessList{
		addresses: make(map[common.Address]int),
	}
}

func (al *accessList) ContainsAddress(address common.Address) bool {
	_, ok := al.addresses[address]
	return ok
}

func (al *accessList) Contains(address common.Address, slot common.Hash) (addressPresent bool, slotPresent bool) {
	idx, ok := al.addresses[address]
	if !ok {
		return false, false
	}
	if idx == -1 {
		return true, false
	}
	_, slotPresent = al.slots[idx][slot]
	return true, slotPresent
}

func (al *accessList) Copy() *accessList {
	cp := newAccessList()
	cp.addresses = maps.Clone(al.addresses)
	cp.slots = make([]map[common.Hash]struct{}, len(al.slots))
	for i, slotMap := range al.slots {
		cp.slots[i] = maps.Clone(slotMap)
	}
	return cp
}

// AddAddress adds an address and reports whether it was not present before.
func (al *accessList) AddAddress(address common.Address) bool {
	if _, present := al.addresses[address]; present {
		return false
	}
	al.addresses[address] = -1
	return true
}

// AddSlot adds an (address, slot) pair and reports which of the two were new.
func (al *accessList) AddSlot(address common.Address, slot common.Hash) (addrChange bool, slotChange bool) {
	idx, addrPresent := al.addresses[address]
	if !addrPresent || idx == -1 {
		al.addresses[address] = len(al.slots)
		al.slots = append(al.slots, map[common.Hash]struct{}{slot: {}})
		return !addrPresent, true
	}
	slotmap := al.slots[idx]
	if _, ok := slotmap[slot]; !ok {
		slotmap[slot] = struct{}{}
		return false, true
	}
	return false, false
}

// DeleteSlot removes a slot. It is only called while unrolling the journal,
// so the slot map being emptied is always the last one.
func (al *accessList) DeleteSlot(address common.Address, slot common.Hash) {
	idx, addrOk := al.addresses[address]
	if !addrOk {
		panic("reverting slot change, address not present in list")
	}
	slotmap := al.slots[idx]
	delete(slotmap, slot)
	if len(slotmap) == 0 {
		al.slots = al.slots[:idx]
		al.addresses[address] = -1
	}
}

// DeleteAddress removes an address. Only called while unrolling the journal.
func (al *accessList) DeleteAddress(address common.Address) {
	delete(al.addresses, address)
}

// List returns the access list in canonical form, sorted by address and slot,
// leaving out the addresses in skip.
func (al *accessList) List(skip ...common.Address) types.AccessList {
	addrs := make([]common.Address, 0, len(al.addresses))
	for addr := range al.addresses {
		if !slices.Contains(skip, addr) {
			addrs = append(addrs, addr)
		}
	}
	slices.SortFunc(addrs, common.Address.Cmp)

	list := make(types.AccessList, 0, len(addrs))
	for _, addr := range addrs {
		tuple := types.AccessTuple{Address: addr, StorageKeys: []common.Hash{}}
		if idx := al.addresses[addr]; idx >= 0 {
			for slot := range al.slots[idx] {
				tuple.StorageKeys = append(tuple.StorageKeys, slot)
			}
			slices.SortFunc(tuple.StorageKeys, common.Hash.Cmp)
		}
		list = append(list, tuple)
	}
	return list
}
