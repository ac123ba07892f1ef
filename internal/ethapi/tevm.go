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

package ethapi

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/evmts/tevm-node/core/execution"
	"github.com/evmts/tevm-node/core/state"
	"github.com/holiman/uint256"
)

// TevmAPI offers the node-native procedures: direct execution through the
// call pipeline, account access and state serialization.
// TevmAPI 提供节点原生过程：通过调用管道直接执行、账户访问和状态序列化。
type TevmAPI struct {
	b         Backend
	nonceLock *AddrLocker
}

// NewTevmAPI creates the tevm namespace service.
func NewTevmAPI(b Backend, nonceLock *AddrLocker) *TevmAPI {
	return &TevmAPI{b, nonceLock}
}

// lockSender serializes calls that queue a transaction for the same sender,
// so that each picks up the nonce left by the previous one.
func (api *TevmAPI) lockSender(params *execution.CallParams) func() {
	if params.CreateTransaction == execution.CreateNever || params.From == nil || params.Nonce != nil {
		return func() {}
	}
	from := *params.From
	api.nonceLock.LockAddr(from)
	return func() { api.nonceLock.UnlockAddr(from) }
}

// Call executes a raw call. Execution exceptions are part of the result.
// Call 执行原始调用，执行异常是结果的一部分。
func (api *TevmAPI) Call(ctx context.Context, params execution.CallParams) (*execution.CallResult, error) {
	defer api.lockSender(&params)()

	res, err := api.b.Pipeline().Call(ctx, &params)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// ContractArgs is a call of a contract function given by its JSON ABI.
type ContractArgs struct {
	execution.CallParams
	ABI          json.RawMessage   `json:"abi"`
	FunctionName string            `json:"functionName"`
	Args         []json.RawMessage `json:"args"`
}

func (args *ContractArgs) decode() (*execution.ContractParams, error) {
	contract, err := parseABI(args.ABI)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, &execution.ValidationError{Field: "abi", Message: "missing abi"}
	}
	values, err := convertArgs(contract, args.FunctionName, args.Args)
	if err != nil {
		return nil, err
	}
	return &execution.ContractParams{
		CallParams:   args.CallParams,
		ABI:          contract,
		FunctionName: args.FunctionName,
		Args:         values,
	}, nil
}

// Contract calls a contract function, packing the arguments and decoding the
// outputs with the given ABI.
// Contract 调用合约函数，使用给定 ABI 打包参数并解码输出。
func (api *TevmAPI) Contract(ctx context.Context, args ContractArgs) (*execution.ContractResult, error) {
	params, err := args.decode()
	if err != nil {
		return nil, err
	}
	defer api.lockSender(&params.CallParams)()

	res, err := api.b.Pipeline().Contract(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// ScriptArgs is a call of throwaway runtime bytecode. The ABI is optional:
// without it the calldata is sent as given.
type ScriptArgs struct {
	ContractArgs
	DeployedBytecode hexutil.Bytes `json:"deployedBytecode"`
}

// Script runs runtime bytecode that is never deployed on the node state.
// Script 运行从不部署到节点状态的运行时字节码。
func (api *TevmAPI) Script(ctx context.Context, args ScriptArgs) (*execution.ContractResult, error) {
	params := &execution.ScriptParams{
		CallParams: args.CallParams,
		Code:       args.DeployedBytecode,
	}
	if len(args.ABI) > 0 {
		contract, err := args.ContractArgs.decode()
		if err != nil {
			return nil, err
		}
		params.ABI = contract.ABI
		params.FunctionName = contract.FunctionName
		params.Args = contract.Args
	}
	defer api.lockSender(&params.CallParams)()

	res, err := api.b.Pipeline().Script(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// AccountResult is the answer of tevm_getAccount.
type AccountResult struct {
	Address          common.Address              `json:"address"`
	Balance          *hexutil.Big                `json:"balance"`
	Nonce            hexutil.Uint64              `json:"nonce"`
	DeployedBytecode hexutil.Bytes               `json:"deployedBytecode"`
	CodeHash         common.Hash                 `json:"codeHash"`
	StorageRoot      common.Hash                 `json:"storageRoot"`
	IsContract       bool                        `json:"isContract"`
	IsEmpty          bool                        `json:"isEmpty"`
	Storage          map[common.Hash]common.Hash `json:"storage,omitempty"`
}

// GetAccount returns an account at the given block, latest by default. With
// returnStorage the locally known storage is included; slots that only live
// on the fork are not.
// GetAccount 返回给定区块的账户，默认为最新区块。
func (api *TevmAPI) GetAccount(ctx context.Context, address common.Address, blockNrOrHash *rpc.BlockNumberOrHash, returnStorage *bool) (*AccountResult, error) {
	if blockNrOrHash == nil {
		latest := rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)
		blockNrOrHash = &latest
	}
	statedb, _, err := api.b.StateAndHeaderByNumberOrHash(ctx, *blockNrOrHash)
	if statedb == nil || err != nil {
		return nil, classify(err)
	}
	statedb.SetContext(ctx)

	code := statedb.GetCode(address)
	result := &AccountResult{
		Address:          address,
		Balance:          (*hexutil.Big)(statedb.GetBalance(address).ToBig()),
		Nonce:            hexutil.Uint64(statedb.GetNonce(address)),
		DeployedBytecode: code,
		CodeHash:         crypto.Keccak256Hash(code),
		StorageRoot:      statedb.GetStorageRoot(address),
		IsContract:       len(code) > 0,
		IsEmpty:          statedb.Empty(address),
	}
	if returnStorage != nil && *returnStorage {
		result.Storage = statedb.GetLocalStorage(address)
	}
	return result, classify(statedb.Error())
}

// SetAccountArgs overwrites the given fields of an account. State replaces
// the whole storage, StateDiff only the listed slots.
type SetAccountArgs struct {
	Address          common.Address              `json:"address"`
	Balance          *hexutil.Big                `json:"balance"`
	Nonce            *hexutil.Uint64             `json:"nonce"`
	DeployedBytecode *hexutil.Bytes              `json:"deployedBytecode"`
	State            map[common.Hash]common.Hash `json:"state"`
	StateDiff        map[common.Hash]common.Hash `json:"stateDiff"`
}

// SetAccount writes account fields into the head state.
// SetAccount 将账户字段写入链头状态。
func (api *TevmAPI) SetAccount(args SetAccountArgs) (bool, error) {
	if args.State != nil && args.StateDiff != nil {
		return false, invalidParams("account %s has both 'state' and 'stateDiff'", args.Address)
	}
	var balance *uint256.Int
	if args.Balance != nil {
		var overflow bool
		if balance, overflow = uint256.FromBig(args.Balance.ToInt()); overflow || args.Balance.ToInt().Sign() < 0 {
			return false, invalidParams("balance out of range: %v", args.Balance)
		}
	}
	err := api.b.WriteState(func(statedb *state.StateDB) error {
		if balance != nil {
			statedb.SetBalance(args.Address, balance)
		}
		if args.Nonce != nil {
			statedb.SetNonce(args.Address, uint64(*args.Nonce), tracing.NonceChangeUnspecified)
		}
		if args.DeployedBytecode != nil {
			statedb.SetCode(args.Address, *args.DeployedBytecode)
		}
		if args.State != nil {
			statedb.SetStorage(args.Address, args.State)
		}
		for key, value := range args.StateDiff {
			statedb.SetState(args.Address, key, value)
		}
		return statedb.Error()
	})
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

// DumpState returns the locally known state as JSON.
func (api *TevmAPI) DumpState(ctx context.Context) (*state.Dump, error) {
	dump, err := api.b.DumpState(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return dump, nil
}

// LoadState merges a dump into the head state.
func (api *TevmAPI) LoadState(dump state.Dump) (bool, error) {
	if err := api.b.LoadState(&dump); err != nil {
		return false, classify(err)
	}
	return true, nil
}

// Mine mines blocks, one by default, and returns their hashes.
// Mine 挖出区块（默认一个）并返回其哈希。
func (api *TevmAPI) Mine(ctx context.Context, blocks *hexutil.Uint64, interval *hexutil.Uint64) ([]common.Hash, error) {
	return NewAnvilAPI(api.b).mine(ctx, blocks, interval)
}

// SkippedTransaction is a pooled transaction left out of the pending block.
type SkippedTransaction struct {
	Hash  common.Hash    `json:"hash"`
	From  common.Address `json:"from"`
	Error string         `json:"error"`
}

// OptimisticState summarizes the speculative pending block.
type OptimisticState struct {
	Version  hexutil.Uint64           `json:"version"`
	Block    map[string]interface{}   `json:"block"`
	Receipts []map[string]interface{} `json:"receipts"`
	Skipped  []SkippedTransaction     `json:"skipped"`
	Error    string                   `json:"error,omitempty"`
}

// GetOptimisticState returns the pending block built from the pool, waiting
// for a recomputation that covers every transaction accepted so far.
// GetOptimisticState 返回由交易池构建的待处理区块。
func (api *TevmAPI) GetOptimisticState(ctx context.Context) (*OptimisticState, error) {
	snap, err := api.b.OptimisticState(ctx)
	if err != nil {
		return nil, classify(err)
	}
	result := &OptimisticState{
		Version:  hexutil.Uint64(snap.Version()),
		Receipts: make([]map[string]interface{}, 0, len(snap.Receipts)),
		Skipped:  make([]SkippedTransaction, 0, len(snap.Skipped)),
	}
	if snap.Err != nil {
		result.Error = snap.Err.Error()
	}
	for _, skipped := range snap.Skipped {
		result.Skipped = append(result.Skipped, SkippedTransaction{
			Hash:  skipped.Tx.Hash(),
			From:  skipped.Tx.From,
			Error: skipped.Err.Error(),
		})
	}
	if snap.Block == nil {
		return result, nil
	}
	config := api.b.ChainConfig()
	result.Block = RPCMarshalBlock(snap.Block, false, config)
	pendingFields(result.Block)

	signer := types.MakeSigner(config, snap.Block.Number(), snap.Block.Time())
	txs := snap.Block.Transactions()
	for i, receipt := range snap.Receipts {
		if i >= len(txs) {
			break
		}
		result.Receipts = append(result.Receipts, marshalReceipt(receipt, common.Hash{}, snap.Block.NumberU64(), signer, txs[i], i))
	}
	return result, nil
}
