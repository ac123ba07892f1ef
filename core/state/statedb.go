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
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/stateless"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie/utils"
	"github.com/evmts/tevm-node/core/fork"
	"github.com/holiman/uint256"
)

// ErrNoCheckpoint is returned when committing or reverting without an open
// checkpoint.
var ErrNoCheckpoint = errors.New("no open checkpoint")

var _ vm.StateDB = (*StateDB)(nil)

// StateDB is the EVM's view of a Store. Every mutation is journaled, which
// gives both the EVM's call-frame snapshots and the explicit, nested
// Checkpoint/Commit/Revert scopes used around transactions and blocks.
//
// Remote read failures cannot be returned through the vm.StateDB interface:
// the first one is memorized and must be checked with Error after execution.
//
// A StateDB is owned by a single goroutine; Copy produces an independent
// lineage in O(1).
// StateDB 是 EVM 对 Store 的视图。所有修改都记录在日志中，支持 EVM 调用帧快照和显式的嵌套检查点。
type StateDB struct {
	store   *Store
	journal *journal

	// Open explicit checkpoints, innermost last.
	checkpoints []int

	// The refund counter, also used by state transitioning.
	refund uint64

	// The tx context and all occurred logs in the scope of transaction.
	thash   common.Hash
	txIndex int
	logs    map[common.Hash][]*types.Log
	logSize uint

	preimages map[common.Hash][]byte

	// Per-transaction state, reset by Finalise.
	accessList       *accessList
	transientStorage transientStorage
	originStorage    map[common.Address]map[common.Hash]common.Hash
	selfDestructed   map[common.Address]struct{}
	newContracts     map[common.Address]struct{}

	logger *tracing.Hooks

	// dbErr is the first error that occurred while reading through to the fork.
	dbErr error
}

// New creates a state on top of the store.
func New(store *Store) *StateDB {
	return &StateDB{
		store:            store,
		journal:          newJournal(),
		logs:             make(map[common.Hash][]*types.Log),
		preimages:        make(map[common.Hash][]byte),
		accessList:       newAccessList(),
		transientStorage: newTransientStorage(),
		originStorage:    make(map[common.Address]map[common.Hash]common.Hash),
		selfDestructed:   make(map[common.Address]struct{}),
		newContracts:     make(map[common.Address]struct{}),
	}
}

// NewEmpty creates a state with no accounts and no fork.
func NewEmpty() *StateDB {
	return New(NewStore(nil))
}

// NewForked creates an empty local state reading through to the fetcher.
func NewForked(fetcher *fork.Fetcher) *StateDB {
	return New(NewStore(fetcher))
}

// SetLogger sets the tracing hooks notified of emitted logs.
func (s *StateDB) SetLogger(l *tracing.Hooks) {
	s.logger = l
}

// setError remembers the first non-nil error it is called with.
func (s *StateDB) setError(err error) {
	if s.dbErr == nil {
		s.dbErr = err
	}
}

// Error returns the memorized remote read error, if any.
func (s *StateDB) Error() error {
	return s.dbErr
}

// ClearError forgets the memorized error, so a caller that handled it (by
// reverting its checkpoint) can continue using the state.
func (s *StateDB) ClearError() {
	s.dbErr = nil
}

// SetContext binds the remote reads made through this state to ctx, so caller
// deadlines and cancellation apply to fork fetches.
func (s *StateDB) SetContext(ctx context.Context) {
	s.store.ctx = ctx
}

// Store returns the backing store.
func (s *StateDB) Store() *Store {
	return s.store
}

// getRecord resolves an account, nil meaning it does not exist.
func (s *StateDB) getRecord(addr common.Address) *accountRecord {
	rec, err := s.store.record(addr)
	if err != nil {
		s.setError(fmt.Errorf("account %v: %w", addr, err))
		return nil
	}
	return rec
}

// updateRecord applies fn to a fresh copy of the account record, creating the
// account if needed, and journals the previous overlay state.
func (s *StateDB) updateRecord(addr common.Address, fn func(rec *accountRecord)) *accountRecord {
	prev, existed := s.store.localRecord(addr)
	cur := s.getRecord(addr)

	var next *accountRecord
	switch {
	case cur != nil:
		next = cur.copy()
	case existed:
		// Re-creating a deleted account: it starts over with no storage.
		next = newRecord()
		next.incarnation = prev.incarnation
		next.wiped = true
	default:
		next = newRecord()
		next.wiped = s.store.fetcher == nil
	}
	fn(next)
	s.journal.accountChange(addr, prev, existed)
	s.store.setRecord(addr, next)
	return next
}

// deleteAccount removes the account and wipes its storage.
func (s *StateDB) deleteAccount(addr common.Address) {
	prev, existed := s.store.localRecord(addr)
	rec := newRecord()
	rec.deleted, rec.wiped = true, true
	if existed {
		rec.incarnation = prev.incarnation + 1
	} else {
		rec.incarnation = 1
	}
	s.journal.accountChange(addr, prev, existed)
	s.store.setRecord(addr, rec)
}

// Exist reports whether the given account exists in state.
// Notably this also returns true for self-destructed accounts.
func (s *StateDB) Exist(addr common.Address) bool {
	return s.getRecord(addr) != nil
}

// Empty returns whether the state object is either non-existent
// or empty according to the EIP161 specification (balance = nonce = code = 0)
func (s *StateDB) Empty(addr common.Address) bool {
	rec := s.getRecord(addr)
	return rec == nil || rec.empty()
}

// GetBalance retrieves the balance from the given address or 0 if object not found
func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	if rec := s.getRecord(addr); rec != nil {
		return new(uint256.Int).Set(rec.balance)
	}
	return new(uint256.Int)
}

// GetNonce retrieves the nonce from the given address or 0 if object not found
func (s *StateDB) GetNonce(addr common.Address) uint64 {
	if rec := s.getRecord(addr); rec != nil {
		return rec.nonce
	}
	return 0
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	code, err := s.store.codeOf(addr, s.getRecord(addr))
	if err != nil {
		s.setError(fmt.Errorf("code %v: %w", addr, err))
		return nil
	}
	return code
}

func (s *StateDB) GetCodeSize(addr common.Address) int {
	return len(s.GetCode(addr))
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	if rec := s.getRecord(addr); rec != nil {
		return rec.codeHash
	}
	return common.Hash{}
}

// GetState retrieves the value associated with the specific key.
func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	val, err := s.store.storage(addr, s.getRecord(addr), key)
	if err != nil {
		s.setError(fmt.Errorf("storage %v[%v]: %w", addr, key, err))
		return common.Hash{}
	}
	return val
}

// GetCommittedState retrieves the value associated with the specific key
// at the start of the current transaction.
func (s *StateDB) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	if val, ok := s.originStorage[addr][key]; ok {
		return val
	}
	if _, created := s.newContracts[addr]; created {
		return common.Hash{}
	}
	return s.GetState(addr, key)
}

// GetStorageRoot returns the root of the locally known storage of the account.
func (s *StateDB) GetStorageRoot(addr common.Address) common.Hash {
	rec := s.getRecord(addr)
	if rec == nil {
		return types.EmptyRootHash
	}
	return s.storageRoot(addr, rec)
}

// GetTransientState gets transient storage for a given account.
func (s *StateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return s.transientStorage.Get(addr, key)
}

// HasSelfDestructed reports whether the account was self-destructed in the
// current transaction.
func (s *StateDB) HasSelfDestructed(addr common.Address) bool {
	_, ok := s.selfDestructed[addr]
	return ok
}

/*
 * SETTERS
 */

// AddBalance adds amount to the account associated with addr.
func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int {
	prev := *s.GetBalance(addr)
	if amount.IsZero() {
		s.touch(addr)
		return prev
	}
	s.updateRecord(addr, func(rec *accountRecord) {
		rec.balance = new(uint256.Int).Add(rec.balance, amount)
	})
	return prev
}

// SubBalance subtracts amount from the account associated with addr.
func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int {
	prev := *s.GetBalance(addr)
	if amount.IsZero() {
		s.touch(addr)
		return prev
	}
	s.updateRecord(addr, func(rec *accountRecord) {
		rec.balance = new(uint256.Int).Sub(rec.balance, amount)
	})
	return prev
}

// SetBalance overwrites the balance of the account.
func (s *StateDB) SetBalance(addr common.Address, amount *uint256.Int) {
	s.updateRecord(addr, func(rec *accountRecord) {
		rec.balance = new(uint256.Int).Set(amount)
	})
}

// SetNonce overwrites the nonce of the account. The reason is only of
// interest to tracers and is not recorded.
func (s *StateDB) SetNonce(addr common.Address, nonce uint64, reason tracing.NonceChangeReason) {
	s.updateRecord(addr, func(rec *accountRecord) {
		rec.nonce = nonce
	})
}

// SetCode sets the code of the account and returns the previous code.
func (s *StateDB) SetCode(addr common.Address, code []byte) (prev []byte) {
	prev = s.GetCode(addr)
	hash := s.store.putCode(code)
	s.updateRecord(addr, func(rec *accountRecord) {
		rec.codeHash = hash
	})
	return prev
}

// SetState sets a storage slot and returns its previous value.
func (s *StateDB) SetState(addr common.Address, key, value common.Hash) common.Hash {
	rec := s.getRecord(addr)
	prev, err := s.store.storage(addr, rec, key)
	if err != nil {
		s.setError(fmt.Errorf("storage %v[%v]: %w", addr, key, err))
		return common.Hash{}
	}
	if prev == value {
		return prev
	}
	if rec == nil {
		rec = s.updateRecord(addr, func(*accountRecord) {})
	}
	if _, ok := s.originStorage[addr][key]; !ok {
		if s.originStorage[addr] == nil {
			s.originStorage[addr] = make(map[common.Hash]common.Hash)
		}
		s.originStorage[addr][key] = prev
	}
	old, existed := s.store.localSlot(addr, rec.incarnation, key)
	s.journal.storageChange(addr, rec.incarnation, key, old, existed)
	s.store.setSlot(addr, rec.incarnation, key, value)
	return prev
}

// SetStorage replaces the entire storage of the account. The previous storage,
// including anything on the fork, becomes unreachable.
func (s *StateDB) SetStorage(addr common.Address, storage map[common.Hash]common.Hash) {
	rec := s.updateRecord(addr, func(rec *accountRecord) {
		rec.incarnation++
		rec.wiped = true
	})
	keys := make([]common.Hash, 0, len(storage))
	for key := range storage {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, common.Hash.Cmp)
	for _, key := range keys {
		if storage[key] == (common.Hash{}) {
			continue
		}
		s.journal.storageChange(addr, rec.incarnation, key, common.Hash{}, false)
		s.store.setSlot(addr, rec.incarnation, key, storage[key])
	}
}

// SetTransientState sets transient storage for a given account. It
// adds the change to the journal so that it can be rolled back
// to its previous value if there is a revert.
func (s *StateDB) SetTransientState(addr common.Address, key, value common.Hash) {
	prev := s.GetTransientState(addr, key)
	if prev == value {
		return
	}
	s.journal.transientStateChange(addr, key, prev)
	s.setTransientState(addr, key, value)
}

// setTransientState is a lower level setter for transient storage. It
// is called during a revert to prevent modifications to the journal.
func (s *StateDB) setTransientState(addr common.Address, key, value common.Hash) {
	s.transientStorage.Set(addr, key, value)
}

// touch marks the account as touched, creating it if needed, so that an empty
// account can be cleaned up by Finalise.
func (s *StateDB) touch(addr common.Address) {
	if s.getRecord(addr) == nil {
		s.updateRecord(addr, func(*accountRecord) {})
		return
	}
	s.journal.touchChange(addr)
}

// CreateAccount explicitly creates a new account. It is only called by the EVM
// for addresses that do not exist yet; any leftover storage is dropped.
func (s *StateDB) CreateAccount(addr common.Address) {
	prev, existed := s.store.localRecord(addr)
	rec := newRecord()
	rec.wiped = true
	if existed {
		rec.incarnation = prev.incarnation + 1
	}
	s.journal.accountChange(addr, prev, existed)
	s.store.setRecord(addr, rec)
}

// CreateContract marks the account as a contract created in the current
// transaction, which enables EIP-6780 self-destruct.
func (s *StateDB) CreateContract(addr common.Address) {
	if _, ok := s.newContracts[addr]; ok {
		return
	}
	s.newContracts[addr] = struct{}{}
	s.journal.createContract(addr)
}

// SelfDestruct marks the given account as self-destructed and clears its
// balance. The account is removed by Finalise. It returns the balance the
// account had before.
func (s *StateDB) SelfDestruct(addr common.Address) uint256.Int {
	rec := s.getRecord(addr)
	if rec == nil {
		return uint256.Int{}
	}
	prev := *rec.balance
	if _, ok := s.selfDestructed[addr]; !ok {
		s.selfDestructed[addr] = struct{}{}
		s.journal.destruct(addr)
	}
	if !prev.IsZero() {
		s.updateRecord(addr, func(rec *accountRecord) {
			rec.balance = new(uint256.Int)
		})
	}
	return prev
}

// SelfDestruct6780 self-destructs only contracts created in the current
// transaction.
func (s *StateDB) SelfDestruct6780(addr common.Address) (uint256.Int, bool) {
	if _, created := s.newContracts[addr]; created {
		return s.SelfDestruct(addr), true
	}
	return *s.GetBalance(addr), false
}

// AddRefund adds gas to the refund counter
func (s *StateDB) AddRefund(gas uint64) {
	s.journal.refundChange(s.refund)
	s.refund += gas
}

// SubRefund removes gas from the refund counter.
// This method will panic if the refund counter goes below zero
func (s *StateDB) SubRefund(gas uint64) {
	s.journal.refundChange(s.refund)
	if gas > s.refund {
		panic(fmt.Sprintf("Refund counter below zero (gas: %d > refund: %d)", gas, s.refund))
	}
	s.refund -= gas
}

// GetRefund returns the current value of the refund counter.
func (s *StateDB) GetRefund() uint64 {
	return s.refund
}

// SetTxContext sets the current transaction hash and index which are
// used when the EVM emits new state logs.
func (s *StateDB) SetTxContext(thash common.Hash, ti int) {
	s.thash = thash
	s.txIndex = ti
}

// TxIndex returns the current transaction index set by SetTxContext.
func (s *StateDB) TxIndex() int {
	return s.txIndex
}

func (s *StateDB) AddLog(log *types.Log) {
	s.journal.logChange(s.thash)

	log.TxHash = s.thash
	log.TxIndex = uint(s.txIndex)
	log.Index = s.logSize
	s.logs[s.thash] = append(s.logs[s.thash], log)
	s.logSize++

	if s.logger != nil && s.logger.OnLog != nil {
		s.logger.OnLog(log)
	}
}

// GetLogs returns the logs matching the specified transaction hash, and annotates
// them with the given blockNumber and blockHash.
func (s *StateDB) GetLogs(hash common.Hash, blockNumber uint64, blockHash common.Hash) []*types.Log {
	logs := s.logs[hash]
	for _, l := range logs {
		l.BlockNumber = blockNumber
		l.BlockHash = blockHash
	}
	return logs
}

// Logs returns every log emitted since the state was created or the logs were
// last cleared.
func (s *StateDB) Logs() []*types.Log {
	var logs []*types.Log
	for _, lgs := range s.logs {
		logs = append(logs, lgs...)
	}
	slices.SortFunc(logs, func(a, b *types.Log) int { return int(a.Index) - int(b.Index) })
	return logs
}

// ClearLogs drops all logs; the log index restarts from zero, as it does at
// the beginning of every block.
func (s *StateDB) ClearLogs() {
	s.logs = make(map[common.Hash][]*types.Log)
	s.logSize = 0
}

// AddPreimage records a SHA3 preimage seen by the VM.
func (s *StateDB) AddPreimage(hash common.Hash, preimage []byte) {
	if _, ok := s.preimages[hash]; !ok {
		s.preimages[hash] = slices.Clone(preimage)
	}
}

// Preimages returns a list of SHA3 preimages that have been submitted.
func (s *StateDB) Preimages() map[common.Hash][]byte {
	return s.preimages
}

// Prepare handles the preparatory steps for executing a state transition.
// It resets the per-transaction state and builds the EIP-2929 warm set:
// sender, destination, precompiles, the optional tx access list and, from
// Shanghai, the coinbase.
func (s *StateDB) Prepare(rules params.Rules, sender, coinbase common.Address, dst *common.Address, precompiles []common.Address, list types.AccessList) {
	s.refund = 0
	s.accessList = newAccessList()
	if rules.IsBerlin {
		s.accessList.AddAddress(sender)
		if dst != nil {
			s.accessList.AddAddress(*dst)
		}
		for _, addr := range precompiles {
			s.accessList.AddAddress(addr)
		}
		for _, el := range list {
			s.accessList.AddAddress(el.Address)
			for _, key := range el.StorageKeys {
				s.accessList.AddSlot(el.Address, key)
			}
		}
		if rules.IsShanghai {
			s.accessList.AddAddress(coinbase)
		}
	}
	s.transientStorage = newTransientStorage()
}

// AddAddressToAccessList adds the given address to the access list
func (s *StateDB) AddAddressToAccessList(addr common.Address) {
	if s.accessList.AddAddress(addr) {
		s.journal.accessListAddAccount(addr)
	}
}

// AddSlotToAccessList adds the given (address, slot)-tuple to the access list
func (s *StateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	addrMod, slotMod := s.accessList.AddSlot(addr, slot)
	if addrMod {
		s.journal.accessListAddAccount(addr)
	}
	if slotMod {
		s.journal.accessListAddSlot(addr, slot)
	}
}

// AddressInAccessList returns true if the given address is in the access list.
func (s *StateDB) AddressInAccessList(addr common.Address) bool {
	return s.accessList.ContainsAddress(addr)
}

// SlotInAccessList returns true if the given (address, slot)-tuple is in the access list.
func (s *StateDB) SlotInAccessList(addr common.Address, slot common.Hash) (addressPresent bool, slotPresent bool) {
	return s.accessList.Contains(addr, slot)
}

// AccessList returns the warm set of the last executed transaction, leaving
// out the given addresses.
func (s *StateDB) AccessList(skip ...common.Address) types.AccessList {
	return s.accessList.List(skip...)
}

// PointCache is only used by verkle rules, which the node does not activate.
func (s *StateDB) PointCache() *utils.PointCache {
	return nil
}

// AccessEvents is only used by verkle rules as well.
func (s *StateDB) AccessEvents() *gethstate.AccessEvents {
	return nil
}

// Witness is only used for stateless execution.
func (s *StateDB) Witness() *stateless.Witness {
	return nil
}

// Snapshot returns an identifier for the current revision of the state.
func (s *StateDB) Snapshot() int {
	return s.journal.snapshot()
}

// RevertToSnapshot reverts all state changes made since the given revision.
func (s *StateDB) RevertToSnapshot(revid int) {
	s.journal.revertToSnapshot(revid, s)
}

// Checkpoint opens a nested transactional scope.
// Checkpoint 打开一个嵌套的事务作用域。
func (s *StateDB) Checkpoint() {
	s.checkpoints = append(s.checkpoints, s.journal.snapshot())
}

// Commit closes the innermost checkpoint, keeping its changes. They become part
// of the enclosing checkpoint, if any.
func (s *StateDB) Commit() error {
	if len(s.checkpoints) == 0 {
		return ErrNoCheckpoint
	}
	id := s.checkpoints[len(s.checkpoints)-1]
	s.checkpoints = s.checkpoints[:len(s.checkpoints)-1]
	s.journal.discard(id)
	if len(s.checkpoints) == 0 {
		s.journal.reset()
	}
	return nil
}

// Revert closes the innermost checkpoint, undoing all its changes.
func (s *StateDB) Revert() error {
	if len(s.checkpoints) == 0 {
		return ErrNoCheckpoint
	}
	id := s.checkpoints[len(s.checkpoints)-1]
	s.checkpoints = s.checkpoints[:len(s.checkpoints)-1]
	s.journal.revertToSnapshot(id, s)
	return nil
}

// CheckpointDepth returns the number of open checkpoints.
func (s *StateDB) CheckpointDepth() int {
	return len(s.checkpoints)
}

// Finalise finalises the state by removing the self-destructed accounts and,
// if deleteEmptyObjects is set, the touched empty ones. It also clears the
// per-transaction state. The removals are journaled, so an enclosing
// checkpoint can still undo them.
func (s *StateDB) Finalise(deleteEmptyObjects bool) {
	addrs := make([]common.Address, 0, len(s.journal.dirties))
	for addr := range s.journal.dirties {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, common.Address.Cmp)
	for _, addr := range addrs {
		_, destructed := s.selfDestructed[addr]
		if destructed {
			s.deleteAccount(addr)
			continue
		}
		if deleteEmptyObjects {
			if rec, ok := s.store.localRecord(addr); ok && !rec.deleted && rec.empty() {
				s.deleteAccount(addr)
			}
		}
	}
	s.refund = 0
	clear(s.selfDestructed)
	clear(s.newContracts)
	clear(s.originStorage)
	if len(s.checkpoints) == 0 {
		s.journal.reset()
	}
}

// IntermediateRoot finalises the state and computes the root of the locally
// known accounts.
func (s *StateDB) IntermediateRoot(deleteEmptyObjects bool) common.Hash {
	s.Finalise(deleteEmptyObjects)
	return s.stateRoot()
}

// Copy creates a deep, independent copy of the state. Copying is O(1) in the
// size of the state: the store is cloned copy-on-write.
// Copy 创建状态的独立深拷贝。复制是 O(1) 的：存储以写时复制方式克隆。
func (s *StateDB) Copy() *StateDB {
	state := &StateDB{
		store:            s.store.Clone(),
		journal:          s.journal.copy(),
		checkpoints:      slices.Clone(s.checkpoints),
		refund:           s.refund,
		thash:            s.thash,
		txIndex:          s.txIndex,
		logs:             make(map[common.Hash][]*types.Log, len(s.logs)),
		logSize:          s.logSize,
		preimages:        maps.Clone(s.preimages),
		accessList:       s.accessList.Copy(),
		transientStorage: s.transientStorage.Copy(),
		originStorage:    make(map[common.Address]map[common.Hash]common.Hash, len(s.originStorage)),
		selfDestructed:   maps.Clone(s.selfDestructed),
		newContracts:     maps.Clone(s.newContracts),
		dbErr:            s.dbErr,
	}
	for hash, logs := range s.logs {
		cpy := make([]*types.Log, len(logs))
		for i, l := range logs {
			cpy[i] = new(types.Log)
			*cpy[i] = *l
		}
		state.logs[hash] = cpy
	}
	for addr, slots := range s.originStorage {
		state.originStorage[addr] = maps.Clone(slots)
	}
	return state
}

// GetAccount returns the account in the consensus representation, nil if it
// does not exist.
func (s *StateDB) GetAccount(addr common.Address) *types.StateAccount {
	rec := s.getRecord(addr)
	if rec == nil {
		return nil
	}
	return &types.StateAccount{
		Nonce:    rec.nonce,
		Balance:  new(uint256.Int).Set(rec.balance),
		Root:     s.storageRoot(addr, rec),
		CodeHash: rec.codeHash.Bytes(),
	}
}

// GetLocalStorage returns the locally known, non-zero storage of an account.
// Slots that only live on the fork and were never read are not included.
func (s *StateDB) GetLocalStorage(addr common.Address) map[common.Hash]common.Hash {
	rec := s.getRecord(addr)
	if rec == nil {
		return nil
	}
	storage := make(map[common.Hash]common.Hash)
	s.store.forEachSlot(addr, rec.incarnation, func(key, value common.Hash) bool {
		if value != (common.Hash{}) {
			storage[key] = value
		}
		return true
	})
	return storage
}

// DeleteAccount removes the account with its storage, journaled.
func (s *StateDB) DeleteAccount(addr common.Address) {
	s.deleteAccount(addr)
}
