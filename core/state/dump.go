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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/log"
	"github.com/golang/snappy"
	"github.com/holiman/uint256"
)

// DumpConfig is a set of options to control what portions of the state will be
// dumped.
type DumpConfig struct {
	SkipCode    bool // Whether to skip contract code
	SkipStorage bool // Whether to skip contract storage
}

// DumpAccount represents an account in the state.
type DumpAccount struct {
	Balance     *hexutil.Big   `json:"balance"`
	Nonce       hexutil.Uint64 `json:"nonce"`
	CodeHash    common.Hash    `json:"codeHash"`
	StorageRoot common.Hash    `json:"storageRoot"`
}

// Dump is the serialized form of the local state, keyed by address.
// Dump 是本地状态的序列化形式，以地址为键。
type Dump struct {
	Accounts map[common.Address]DumpAccount                 `json:"accounts"`
	Storage  map[common.Address]map[common.Hash]common.Hash `json:"storage"`
	Code     map[common.Address]hexutil.Bytes               `json:"code"`
}

// Dump serializes every locally known account. Accounts that only live on the
// fork and were never touched are not included.
func (s *StateDB) Dump(conf *DumpConfig) *Dump {
	if conf == nil {
		conf = new(DumpConfig)
	}
	dump := &Dump{
		Accounts: make(map[common.Address]DumpAccount),
		Storage:  make(map[common.Address]map[common.Hash]common.Hash),
		Code:     make(map[common.Address]hexutil.Bytes),
	}
	s.store.forEachAccount(func(addr common.Address, rec *accountRecord) bool {
		dump.Accounts[addr] = DumpAccount{
			Balance:     (*hexutil.Big)(rec.balance.ToBig()),
			Nonce:       hexutil.Uint64(rec.nonce),
			CodeHash:    rec.codeHash,
			StorageRoot: s.storageRoot(addr, rec),
		}
		if !conf.SkipCode {
			code, err := s.store.codeOf(addr, rec)
			if err != nil {
				log.Warn("Failed to dump code", "addr", addr, "err", err)
			} else if len(code) > 0 {
				dump.Code[addr] = code
			}
		}
		if !conf.SkipStorage {
			storage := make(map[common.Hash]common.Hash)
			s.store.forEachSlot(addr, rec.incarnation, func(key, value common.Hash) bool {
				if value != (common.Hash{}) {
					storage[key] = value
				}
				return true
			})
			if len(storage) > 0 {
				dump.Storage[addr] = storage
			}
		}
		return true
	})
	return dump
}

// Load applies a dump on top of the state. Every account in the dump replaces
// the existing one, including its whole storage.
func (s *StateDB) Load(dump *Dump) error {
	for addr, acct := range dump.Accounts {
		balance := new(uint256.Int)
		if acct.Balance != nil {
			var overflow bool
			if balance, overflow = uint256.FromBig(acct.Balance.ToInt()); overflow {
				return fmt.Errorf("balance of %v overflows", addr)
			}
		}
		s.SetBalance(addr, balance)
		s.SetNonce(addr, uint64(acct.Nonce), tracing.NonceChangeUnspecified)
		s.SetCode(addr, dump.Code[addr])
		s.SetStorage(addr, dump.Storage[addr])
	}
	// Code or storage without an account entry still gets applied.
	for addr, code := range dump.Code {
		if _, ok := dump.Accounts[addr]; !ok {
			s.SetCode(addr, code)
		}
	}
	for addr, storage := range dump.Storage {
		if _, ok := dump.Accounts[addr]; !ok {
			s.SetStorage(addr, storage)
		}
	}
	return s.Error()
}

// EncodeDump serializes the dump as snappy-compressed JSON.
func EncodeDump(dump *Dump) ([]byte, error) {
	blob, err := json.Marshal(dump)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, blob), nil
}

// DecodeDump parses a dump produced by EncodeDump.
func DecodeDump(blob []byte) (*Dump, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("invalid compressed state: %w", err)
	}
	return decodeDumpJSON(raw)
}

func decodeDumpJSON(blob []byte) (*Dump, error) {
	dump := new(Dump)
	if err := json.Unmarshal(blob, dump); err != nil {
		return nil, fmt.Errorf("invalid state: %w", err)
	}
	return dump, nil
}

// WriteDumpFile writes the dump as JSON, snappy-compressed if the file name
// ends with ".sz".
func WriteDumpFile(path string, dump *Dump) error {
	var (
		blob []byte
		err  error
	)
	if strings.HasSuffix(path, ".sz") {
		blob, err = EncodeDump(dump)
	} else {
		blob, err = json.MarshalIndent(dump, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0600)
}

// ReadDumpFile reads a dump written by WriteDumpFile.
func ReadDumpFile(path string) (*Dump, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".sz") {
		return DecodeDump(blob)
	}
	return decodeDumpJSON(blob)
}
