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
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddrLockerExclusive(t *testing.T) {
	var (
		locker AddrLocker
		addr   = common.HexToAddress("0x01")
		other  = common.HexToAddress("0x02")
	)
	locker.LockAddr(addr)

	// Another address is independent.
	locker.LockAddr(other)
	locker.UnlockAddr(other)

	acquired := make(chan struct{})
	go func() {
		locker.LockAddr(addr)
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}
	locker.UnlockAddr(addr)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
	locker.UnlockAddr(addr)
	assert.Equal(t, 0, locker.held())
}

func TestAddrLockerCleanup(t *testing.T) {
	var (
		locker AddrLocker
		wg     sync.WaitGroup
		count  int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := common.BigToAddress(common.Big1)
			locker.LockAddr(addr)
			count++
			locker.UnlockAddr(addr)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 64, count)
	assert.Equal(t, 0, locker.held())
}
