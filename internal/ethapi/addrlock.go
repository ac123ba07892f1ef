// Copyright 2017 The go-ethereum Authors
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

package ethapi

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AddrLocker serializes nonce assignment per sender. Entries are reference
// counted and dropped once nobody holds or waits for them, so impersonated
// senders do not accumulate.
// AddrLocker 按发送者串行化 nonce 分配，条目按引用计数并在无人持有时删除。
type AddrLocker struct {
	mu    sync.Mutex
	locks map[common.Address]*addrLock
}

type addrLock struct {
	sync.Mutex
	refs int // holders plus waiters
}

// LockAddr locks the mutex of the given account until UnlockAddr. A second
// transaction of the same sender cannot pick a nonce in the meantime.
func (l *AddrLocker) LockAddr(address common.Address) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[common.Address]*addrLock)
	}
	lock, ok := l.locks[address]
	if !ok {
		lock = new(addrLock)
		l.locks[address] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
}

// UnlockAddr unlocks the mutex of the given account.
// UnlockAddr 解锁给定账户的互斥锁。
func (l *AddrLocker) UnlockAddr(address common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[address]
	if !ok {
		panic("unlock of unlocked address " + address.Hex())
	}
	lock.Unlock()
	if lock.refs--; lock.refs == 0 {
		delete(l.locks, address)
	}
}

// held returns the number of addresses with a holder or waiter.
func (l *AddrLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
