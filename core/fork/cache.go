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
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/holiman/uint256"
)

var (
	cacheHitMeter  = metrics.NewRegisteredMeter("fork/cache/hit", nil)
	cacheMissMeter = metrics.NewRegisteredMeter("fork/cache/miss", nil)
	cacheDiskMeter = metrics.NewRegisteredMeter("fork/cache/disk/hit", nil)
	cacheSizeGauge = metrics.NewRegisteredGauge("fork/cache/entries", nil)
)

// cacheKey identifies a remote value. Values are immutable per key: the block
// is part of the key, and a key is never overwritten once stored.
type cacheKey struct {
	kind  Kind
	addr  common.Address
	slot  common.Hash
	block uint64
}

// encode returns the on-disk form of the key.
func (k cacheKey) encode() []byte {
	buf := make([]byte, 0, 1+8+common.AddressLength+common.HashLength)
	buf = append(buf, byte(k.kind))
	buf = binary.BigEndian.AppendUint64(buf, k.block)
	buf = append(buf, k.addr.Bytes()...)
	if k.kind == KindStorage {
		buf = append(buf, k.slot.Bytes()...)
	}
	return buf
}

// Cache memoizes remote reads. The in-memory maps are authoritative for the
// lifetime of the process; the optional disk layer persists values across runs.
// Nothing is ever stored for a failed read.
// Cache 缓存远程读取结果。内存映射在进程生命周期内是权威的，可选的磁盘层跨运行持久化。
type Cache struct {
	mu       sync.RWMutex
	accounts map[cacheKey]*Account
	slots    map[cacheKey]common.Hash
	code     map[cacheKey][]byte
	byHash   map[common.Hash][]byte // Code indexed by hash, independent of block

	disk *DiskCache // Optional persistent layer
}

// NewCache creates a memory-only cache, backed by disk if non-nil.
func NewCache(disk *DiskCache) *Cache {
	return &Cache{
		accounts: make(map[cacheKey]*Account),
		slots:    make(map[cacheKey]common.Hash),
		code:     make(map[cacheKey][]byte),
		byHash:   make(map[common.Hash][]byte),
		disk:     disk,
	}
}

// Account returns the cached account at the given block. The returned value
// must not be modified.
func (c *Cache) Account(addr common.Address, block uint64) (*Account, bool) {
	key := cacheKey{kind: KindAccount, addr: addr, block: block}
	c.mu.RLock()
	acct, ok := c.accounts[key]
	c.mu.RUnlock()
	if ok {
		cacheHitMeter.Mark(1)
		return acct, true
	}
	if c.disk != nil {
		if blob, ok := c.disk.get(key.encode()); ok {
			if acct, err := decodeAccount(blob); err == nil {
				cacheDiskMeter.Mark(1)
				return c.putAccount(addr, block, acct, false), true
			}
			log.Warn("Dropping corrupted fork cache entry", "addr", addr, "block", block)
		}
	}
	cacheMissMeter.Mark(1)
	return nil, false
}

// PutAccount stores the account unless a value already exists for the key, and
// returns the value that is now cached.
func (c *Cache) PutAccount(addr common.Address, block uint64, acct *Account) *Account {
	return c.putAccount(addr, block, acct, true)
}

func (c *Cache) putAccount(addr common.Address, block uint64, acct *Account, persist bool) *Account {
	key := cacheKey{kind: KindAccount, addr: addr, block: block}

	c.mu.Lock()
	if existing, ok := c.accounts[key]; ok {
		c.mu.Unlock()
		return existing
	}
	c.accounts[key] = acct
	ck := cacheKey{kind: KindCode, addr: addr, block: block}
	if _, ok := c.code[ck]; !ok {
		c.code[ck] = acct.Code
	}
	if len(acct.Code) > 0 {
		c.byHash[acct.CodeHash] = acct.Code
	}
	c.updateGauge()
	c.mu.Unlock()

	if persist && c.disk != nil {
		c.disk.put(key.encode(), encodeAccount(acct))
	}
	return acct
}

// Storage returns the cached slot value at the given block.
func (c *Cache) Storage(addr common.Address, slot common.Hash, block uint64) (common.Hash, bool) {
	key := cacheKey{kind: KindStorage, addr: addr, slot: slot, block: block}
	c.mu.RLock()
	val, ok := c.slots[key]
	c.mu.RUnlock()
	if ok {
		cacheHitMeter.Mark(1)
		return val, true
	}
	if c.disk != nil {
		if blob, ok := c.disk.get(key.encode()); ok && len(blob) == common.HashLength {
			cacheDiskMeter.Mark(1)
			return c.putStorage(addr, slot, block, common.BytesToHash(blob), false), true
		}
	}
	cacheMissMeter.Mark(1)
	return common.Hash{}, false
}

// PutStorage stores the slot unless already cached and returns the cached value.
func (c *Cache) PutStorage(addr common.Address, slot common.Hash, block uint64, val common.Hash) common.Hash {
	return c.putStorage(addr, slot, block, val, true)
}

func (c *Cache) putStorage(addr common.Address, slot common.Hash, block uint64, val common.Hash, persist bool) common.Hash {
	key := cacheKey{kind: KindStorage, addr: addr, slot: slot, block: block}

	c.mu.Lock()
	if existing, ok := c.slots[key]; ok {
		c.mu.Unlock()
		return existing
	}
	c.slots[key] = val
	c.updateGauge()
	c.mu.Unlock()

	if persist && c.disk != nil {
		c.disk.put(key.encode(), val.Bytes())
	}
	return val
}

// Code returns the cached code of an address at the given block.
func (c *Cache) Code(addr common.Address, block uint64) ([]byte, bool) {
	key := cacheKey{kind: KindCode, addr: addr, block: block}
	c.mu.RLock()
	code, ok := c.code[key]
	c.mu.RUnlock()
	if ok {
		cacheHitMeter.Mark(1)
		return code, true
	}
	if c.disk != nil {
		if blob, ok := c.disk.get(key.encode()); ok {
			cacheDiskMeter.Mark(1)
			return c.putCode(addr, block, blob, false), true
		}
	}
	cacheMissMeter.Mark(1)
	return nil, false
}

// PutCode stores code unless already cached and returns the cached code.
func (c *Cache) PutCode(addr common.Address, block uint64, code []byte) []byte {
	return c.putCode(addr, block, code, true)
}

func (c *Cache) putCode(addr common.Address, block uint64, code []byte, persist bool) []byte {
	key := cacheKey{kind: KindCode, addr: addr, block: block}

	c.mu.Lock()
	if existing, ok := c.code[key]; ok {
		c.mu.Unlock()
		return existing
	}
	c.code[key] = code
	if len(code) > 0 {
		c.byHash[crypto256(code)] = code
	}
	c.updateGauge()
	c.mu.Unlock()

	if persist && c.disk != nil {
		c.disk.put(key.encode(), code)
	}
	return code
}

// CodeByHash returns code previously fetched for any address.
func (c *Cache) CodeByHash(hash common.Hash) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	code, ok := c.byHash[hash]
	return code, ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.accounts) + len(c.slots) + len(c.code)
}

// Close releases the disk layer, if any.
func (c *Cache) Close() error {
	if c.disk != nil {
		return c.disk.Close()
	}
	return nil
}

// updateGauge must be called with the write lock held.
func (c *Cache) updateGauge() {
	cacheSizeGauge.Update(int64(len(c.accounts) + len(c.slots) + len(c.code)))
}

// encodeAccount flattens an account as nonce || balance || code hash || code.
func encodeAccount(acct *Account) []byte {
	buf := make([]byte, 0, 8+32+common.HashLength+len(acct.Code))
	buf = binary.BigEndian.AppendUint64(buf, acct.Nonce)
	bal := acct.Balance.Bytes32()
	buf = append(buf, bal[:]...)
	buf = append(buf, acct.CodeHash.Bytes()...)
	return append(buf, acct.Code...)
}

func decodeAccount(blob []byte) (*Account, error) {
	if len(blob) < 8+32+common.HashLength {
		return nil, errCorruptEntry
	}
	acct := &Account{
		Nonce:    binary.BigEndian.Uint64(blob[:8]),
		Balance:  new(uint256.Int).SetBytes32(blob[8:40]),
		CodeHash: common.BytesToHash(blob[40:72]),
		Code:     common.CopyBytes(blob[72:]),
	}
	if len(acct.Code) > 0 && crypto256(acct.Code) != acct.CodeHash {
		return nil, errCorruptEntry
	}
	return acct, nil
}
