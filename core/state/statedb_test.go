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
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/evmts/tevm-node/core/fork"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addrA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	addrB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	slot1 = common.HexToHash("0x01")
	slot2 = common.HexToHash("0x02")
)

func TestCopyIsolation(t *testing.T) {
	orig := NewEmpty()
	orig.SetBalance(addrA, uint256.NewInt(100))
	orig.SetState(addrA, slot1, common.HexToHash("0xaa"))
	orig.Finalise(true)

	cpy := orig.Copy()
	for i := 0; i < 50; i++ {
		key := common.BigToHash(big.NewInt(int64(i)))
		cpy.SetState(addrA, key, common.HexToHash("0xff"))
		cpy.AddBalance(addrA, uint256.NewInt(1), tracing.BalanceChangeUnspecified)
		cpy.SetNonce(addrB, uint64(i), tracing.NonceChangeUnspecified)
	}
	cpy.Finalise(true)

	assert.Equal(t, uint64(100), orig.GetBalance(addrA).Uint64(), "original balance changed")
	assert.Equal(t, common.HexToHash("0xaa"), orig.GetState(addrA, slot1), "original storage changed")
	assert.Equal(t, common.Hash{}, orig.GetState(addrA, common.BigToHash(big.NewInt(7))))
	assert.False(t, orig.Exist(addrB))

	assert.Equal(t, uint64(150), cpy.GetBalance(addrA).Uint64())
	assert.Equal(t, uint64(49), cpy.GetNonce(addrB))

	// Writes on either side after copying stay on that side.
	fresh := common.HexToHash("0xdead")
	orig.SetState(addrA, fresh, common.HexToHash("0xbb"))
	assert.Equal(t, common.Hash{}, cpy.GetState(addrA, fresh))

	other := common.HexToHash("0xbeef")
	cpy.SetState(addrA, other, common.HexToHash("0xcc"))
	assert.Equal(t, common.Hash{}, orig.GetState(addrA, other))
	assert.Equal(t, common.HexToHash("0xbb"), orig.GetState(addrA, fresh))
	assert.Equal(t, common.HexToHash("0xcc"), cpy.GetState(addrA, other))
}

func TestCheckpointNesting(t *testing.T) {
	s := NewEmpty()
	s.SetState(addrA, slot1, common.HexToHash("0x01"))

	s.Checkpoint() // outer
	s.SetState(addrA, slot1, common.HexToHash("0x02"))

	s.Checkpoint() // inner
	s.SetState(addrA, slot1, common.HexToHash("0x03"))
	s.SetBalance(addrB, uint256.NewInt(5))
	require.NoError(t, s.Revert())

	assert.Equal(t, common.HexToHash("0x02"), s.GetState(addrA, slot1), "inner revert must keep outer write")
	assert.False(t, s.Exist(addrB))

	s.Checkpoint()
	s.SetState(addrA, slot2, common.HexToHash("0x04"))
	require.NoError(t, s.Commit())
	assert.Equal(t, 1, s.CheckpointDepth())

	// Reverting the outer scope also undoes the committed inner one.
	require.NoError(t, s.Revert())
	assert.Equal(t, common.HexToHash("0x01"), s.GetState(addrA, slot1))
	assert.Equal(t, common.Hash{}, s.GetState(addrA, slot2))

	assert.ErrorIs(t, s.Commit(), ErrNoCheckpoint)
	assert.ErrorIs(t, s.Revert(), ErrNoCheckpoint)
}

func TestCheckpointSurvivesFinalise(t *testing.T) {
	s := NewEmpty()
	s.SetBalance(addrA, uint256.NewInt(10))
	s.Finalise(true)

	s.Checkpoint()
	s.SetBalance(addrA, uint256.NewInt(20))
	s.Finalise(true) // end of a transaction inside a block
	s.SetBalance(addrA, uint256.NewInt(30))
	s.Finalise(true)
	require.NoError(t, s.Revert())

	assert.Equal(t, uint64(10), s.GetBalance(addrA).Uint64())
}

func TestSnapshotInsideCheckpoint(t *testing.T) {
	s := NewEmpty()
	s.Checkpoint()
	s.SetState(addrA, slot1, common.HexToHash("0x01"))
	id := s.Snapshot()
	s.SetState(addrA, slot1, common.HexToHash("0x02"))
	s.RevertToSnapshot(id)
	assert.Equal(t, common.HexToHash("0x01"), s.GetState(addrA, slot1))
	require.NoError(t, s.Commit())
	assert.Equal(t, common.HexToHash("0x01"), s.GetState(addrA, slot1))
}

func TestCommittedState(t *testing.T) {
	s := NewEmpty()
	s.SetNonce(addrA, 1, tracing.NonceChangeUnspecified)
	s.SetState(addrA, slot1, common.HexToHash("0x01"))
	s.Finalise(true)

	s.SetState(addrA, slot1, common.HexToHash("0x02"))
	assert.Equal(t, common.HexToHash("0x01"), s.GetCommittedState(addrA, slot1))
	assert.Equal(t, common.HexToHash("0x02"), s.GetState(addrA, slot1))

	s.Finalise(true)
	assert.Equal(t, common.HexToHash("0x02"), s.GetCommittedState(addrA, slot1))
}

func TestFinaliseDeletesEmptyAndDestructed(t *testing.T) {
	s := NewEmpty()
	s.AddBalance(addrA, new(uint256.Int), tracing.BalanceChangeUnspecified)
	assert.True(t, s.Exist(addrA), "touch creates the account")
	s.Finalise(true)
	assert.False(t, s.Exist(addrA), "empty touched account must be removed")

	s.SetBalance(addrB, uint256.NewInt(7))
	s.SetState(addrB, slot1, common.HexToHash("0x01"))
	s.Finalise(true)

	s.CreateContract(addrB)
	bal, ok := s.SelfDestruct6780(addrB)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), bal.Uint64())
	assert.True(t, s.HasSelfDestructed(addrB))
	s.Finalise(true)

	assert.False(t, s.Exist(addrB))
	assert.False(t, s.HasSelfDestructed(addrB))

	// Re-creating the account starts from empty storage.
	s.SetNonce(addrB, 1, tracing.NonceChangeUnspecified)
	assert.Equal(t, common.Hash{}, s.GetState(addrB, slot1))
}

func TestSelfDestructOnlyNewContracts(t *testing.T) {
	s := NewEmpty()
	s.SetBalance(addrA, uint256.NewInt(3))
	bal, ok := s.SelfDestruct6780(addrA)
	assert.False(t, ok)
	assert.Equal(t, uint64(3), bal.Uint64())
	assert.True(t, s.Exist(addrA))
}

func newForkedState(t *testing.T) (*fork.MemorySource, *StateDB) {
	t.Helper()
	src := fork.NewMemorySource(big.NewInt(1), 10)
	src.SetAccount(addrA, 4, uint256.NewInt(1000), []byte{0x60, 0x01})
	src.SetStorage(addrA, slot1, common.HexToHash("0x0a"))
	return src, NewForked(fork.NewFetcher(src, fork.NewCache(nil), 10))
}

func TestForkReadThrough(t *testing.T) {
	src, s := newForkedState(t)

	assert.True(t, s.Exist(addrA))
	assert.Equal(t, uint64(4), s.GetNonce(addrA))
	assert.Equal(t, uint64(1000), s.GetBalance(addrA).Uint64())
	assert.Equal(t, []byte{0x60, 0x01}, s.GetCode(addrA))
	assert.Equal(t, common.HexToHash("0x0a"), s.GetState(addrA, slot1))

	// Local writes shadow the fork without touching it.
	s.SetState(addrA, slot1, common.HexToHash("0x0b"))
	s.SetBalance(addrA, uint256.NewInt(1))
	assert.Equal(t, common.HexToHash("0x0b"), s.GetState(addrA, slot1))
	assert.Equal(t, uint64(4), s.GetNonce(addrA), "unmodified fields keep the fork value")

	src.SetStorage(addrA, slot2, common.HexToHash("0x0c"))
	assert.Equal(t, common.HexToHash("0x0c"), s.GetState(addrA, slot2), "unmodified slots fall through")

	// Wiping the storage hides the fork slots.
	s.SetStorage(addrA, map[common.Hash]common.Hash{slot1: common.HexToHash("0x01")})
	assert.Equal(t, common.HexToHash("0x01"), s.GetState(addrA, slot1))
	assert.Equal(t, common.Hash{}, s.GetState(addrA, slot2))
	assert.NoError(t, s.Error())
}

func TestForkCacheSharedAcrossCopies(t *testing.T) {
	src, s := newForkedState(t)
	assert.Equal(t, common.HexToHash("0x0a"), s.GetState(addrA, slot1))

	cpy := s.Copy()
	src.SetStorage(addrA, slot1, common.HexToHash("0xff"))
	assert.Equal(t, common.HexToHash("0x0a"), cpy.GetState(addrA, slot1), "copies read the same immutable cache")
}

func TestForkErrorMemorized(t *testing.T) {
	src, s := newForkedState(t)
	src.SetFailure(fork.ErrFetchFailed)

	assert.Equal(t, common.Hash{}, s.GetState(addrA, slot1))
	assert.ErrorIs(t, s.Error(), fork.ErrFetchFailed)

	s.ClearError()
	src.SetFailure(nil)
	assert.Equal(t, common.HexToHash("0x0a"), s.GetState(addrA, slot1))
	assert.NoError(t, s.Error())
}

func TestRootDeterministic(t *testing.T) {
	build := func() *StateDB {
		s := NewEmpty()
		s.SetBalance(addrA, uint256.NewInt(1))
		s.SetCode(addrB, []byte{0x00})
		s.SetState(addrB, slot1, common.HexToHash("0x01"))
		return s
	}
	a, b := build(), build()
	assert.Equal(t, a.IntermediateRoot(true), b.IntermediateRoot(true))
	assert.NotEqual(t, types.EmptyRootHash, a.IntermediateRoot(true))

	b.SetState(addrB, slot1, common.HexToHash("0x02"))
	assert.NotEqual(t, a.IntermediateRoot(true), b.IntermediateRoot(true))

	assert.Equal(t, types.EmptyRootHash, NewEmpty().IntermediateRoot(true))
}

func TestDumpLoad(t *testing.T) {
	s := NewEmpty()
	s.SetBalance(addrA, uint256.NewInt(12345))
	s.SetNonce(addrA, 3, tracing.NonceChangeUnspecified)
	s.SetCode(addrB, []byte{0x60, 0x00})
	s.SetState(addrB, slot1, common.HexToHash("0x99"))
	s.Finalise(true)

	dump := s.Dump(nil)
	require.Len(t, dump.Accounts, 2)
	assert.Equal(t, common.HexToHash("0x99"), dump.Storage[addrB][slot1])

	for _, name := range []string{"state.json", "state.json.sz"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, WriteDumpFile(path, dump))
		read, err := ReadDumpFile(path)
		require.NoError(t, err)

		loaded := NewEmpty()
		require.NoError(t, loaded.Load(read))
		loaded.Finalise(true)
		assert.Equal(t, dump, loaded.Dump(nil), "state mismatch after reloading %s", name)
		assert.Equal(t, s.IntermediateRoot(true), loaded.IntermediateRoot(true))
	}
}

func TestAccessListJournal(t *testing.T) {
	s := NewEmpty()
	id := s.Snapshot()
	s.AddSlotToAccessList(addrA, slot1)
	s.AddAddressToAccessList(addrB)
	addrOk, slotOk := s.SlotInAccessList(addrA, slot1)
	assert.True(t, addrOk)
	assert.True(t, slotOk)

	list := s.AccessList(addrB)
	require.Len(t, list, 1)
	assert.Equal(t, addrA, list[0].Address)

	s.RevertToSnapshot(id)
	assert.False(t, s.AddressInAccessList(addrA))
	assert.False(t, s.AddressInAccessList(addrB))
}

func TestLogsAndTransientStorage(t *testing.T) {
	s := NewEmpty()
	txHash := common.HexToHash("0x1234")
	s.SetTxContext(txHash, 2)

	id := s.Snapshot()
	s.AddLog(&types.Log{Address: addrA})
	s.SetTransientState(addrA, slot1, common.HexToHash("0x05"))
	s.AddLog(&types.Log{Address: addrB})
	require.Len(t, s.GetLogs(txHash, 1, common.Hash{}), 2)
	assert.Equal(t, uint(1), s.Logs()[1].Index)
	assert.Equal(t, uint(2), s.Logs()[0].TxIndex)

	s.RevertToSnapshot(id)
	assert.Empty(t, s.Logs())
	assert.Equal(t, common.Hash{}, s.GetTransientState(addrA, slot1))
}
