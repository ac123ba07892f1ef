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

package execution

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/fork"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testABI = `[
	{"type":"function","name":"answer","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"pair","inputs":[],"outputs":[{"name":"a","type":"uint256"},{"name":"b","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"Boom","inputs":[{"name":"code","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"error","name":"Boom","inputs":[{"name":"code","type":"uint256"}]}
]`

func parseABI(t *testing.T) *abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(testABI))
	require.NoError(t, err)
	return &parsed
}

// revertData encodes Error(reason).
func revertData(t *testing.T, reason string) []byte {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return append(common.FromHex("08c379a0"), packed...)
}

func bytesPtr(b []byte) *hexutil.Bytes {
	h := hexutil.Bytes(b)
	return &h
}

func gasPtr(gas uint64) *hexutil.Uint64 {
	return (*hexutil.Uint64)(&gas)
}

type testSubmitter struct {
	txs []*txpool.Transaction
	err error
}

func (s *testSubmitter) PoolNonce(addr common.Address) uint64 {
	var n uint64
	for _, tx := range s.txs {
		if tx.From == addr {
			n++
		}
	}
	return n
}

func (s *testSubmitter) SubmitTransaction(ctx context.Context, tx *txpool.Transaction) error {
	if s.err != nil {
		return s.err
	}
	s.txs = append(s.txs, tx)
	return nil
}

type testAccounts map[common.Address]*ecdsa.PrivateKey

func (a testAccounts) Key(addr common.Address) *ecdsa.PrivateKey { return a[addr] }

type testPending struct {
	header *types.Header
	state  *state.StateDB
}

func (p *testPending) PendingState(ctx context.Context) (*types.Header, *state.StateDB, error) {
	return p.header, p.state.Copy(), nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *core.BlockChain) {
	t.Helper()
	bc := newTestChain(t)
	return NewPipeline(DefaultConfig, bc), bc
}

func TestCallReturnData(t *testing.T) {
	p, _ := newTestPipeline(t)

	res, err := p.Call(context.Background(), &CallParams{To: &answerAddr})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	assert.Equal(t, common.BigToHash(big.NewInt(42)).Bytes(), []byte(res.ReturnData))
	assert.Greater(t, uint64(res.GasUsed), params.TxGas)
	assert.Nil(t, res.CreatedAddress)
	assert.Nil(t, res.TxHash)
}

func TestCallRevert(t *testing.T) {
	p, _ := newTestPipeline(t)
	data := revertData(t, "boom")

	res, err := p.Call(context.Background(), &CallParams{To: &revertAddr, Input: bytesPtr(data)})
	require.NoError(t, err, "a revert is a result, not a failure")
	require.NotNil(t, res.Error)

	assert.Equal(t, KindRevert, res.Error.Kind)
	assert.Equal(t, "boom", res.Error.Reason)
	assert.Equal(t, "execution reverted: boom", res.Error.Message)
	assert.Equal(t, 3, res.Error.ErrorCode())
	assert.Equal(t, hexutil.Encode(data), res.Error.ErrorData())
	assert.Equal(t, data, []byte(res.ReturnData))

	// A revert without data is a generic execution error code.
	res, err = p.Call(context.Background(), &CallParams{To: &revertAddr})
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindRevert, res.Error.Kind)
	assert.Equal(t, -32000, res.Error.ErrorCode())
	assert.Nil(t, res.Error.ErrorData())
}

func TestCallDoesNotWriteState(t *testing.T) {
	p, bc := newTestPipeline(t)

	res, err := p.Call(context.Background(), &CallParams{To: &storeAddr, CreateTrace: true})
	require.NoError(t, err)
	require.Nil(t, res.Error)

	require.Len(t, res.Logs, 1)
	assert.Equal(t, storeAddr, res.Logs[0].Address)
	assert.Equal(t, common.Hash{}, bc.StateCopy().GetState(storeAddr, common.Hash{}), "calls run on a throwaway copy")

	require.NotNil(t, res.Trace)
	assert.Equal(t, "CALL", res.Trace.Type)
	assert.Equal(t, storeAddr, res.Trace.To)
	assert.Len(t, res.Trace.Logs, 1)
	assert.Empty(t, res.Trace.Error)
}

func TestCallContractCreation(t *testing.T) {
	p, _ := newTestPipeline(t)
	from := devAddresses(1)[0]

	res, err := p.Call(context.Background(), &CallParams{From: &from, Input: bytesPtr(answerInitCode)})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	require.NotNil(t, res.CreatedAddress)
	assert.Equal(t, crypto.CreateAddress(from, 0), *res.CreatedAddress)
	assert.Equal(t, answerCode, []byte(res.ReturnData))
}

func TestCallStateOverride(t *testing.T) {
	p, bc := newTestPipeline(t)
	balance := (*hexutil.Big)(big.NewInt(1234))

	res, err := p.Call(context.Background(), &CallParams{
		To: &balanceAddr,
		StateOverrides: StateOverride{
			testAddr: OverrideAccount{Balance: balance},
		},
	})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	assert.Equal(t, common.BigToHash(big.NewInt(1234)).Bytes(), []byte(res.ReturnData))
	assert.True(t, bc.StateCopy().GetBalance(testAddr).IsZero(), "overrides stay on the copy")

	// Code override turns an empty account into a contract.
	res, err = p.Call(context.Background(), &CallParams{
		To: &testAddr,
		StateOverrides: StateOverride{
			testAddr: OverrideAccount{Code: bytesPtr(answerCode)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, common.BigToHash(big.NewInt(42)).Bytes(), []byte(res.ReturnData))
}

func TestCallBlockTags(t *testing.T) {
	p, bc := newTestPipeline(t)
	appendEdit(t, bc, func(statedb *state.StateDB) {
		statedb.SetBalance(testAddr, uint256.NewInt(7))
	})
	balanceAt := func(tag *rpc.BlockNumberOrHash) *big.Int {
		res, err := p.Call(context.Background(), &CallParams{To: &balanceAddr, BlockTag: tag})
		require.NoError(t, err)
		require.Nil(t, res.Error)
		return new(big.Int).SetBytes(res.ReturnData)
	}
	genesis := rpc.BlockNumberOrHashWithNumber(0)
	latest := rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)
	byHash := rpc.BlockNumberOrHashWithHash(bc.Genesis().Hash(), true)
	pending := rpc.BlockNumberOrHashWithNumber(rpc.PendingBlockNumber)

	// Test case 1: historical state by number and by hash.
	assert.Equal(t, int64(0), balanceAt(&genesis).Int64(), "state after the genesis block")
	assert.Equal(t, int64(0), balanceAt(&byHash).Int64())

	// Test case 2: latest is the head state.
	assert.Equal(t, int64(7), balanceAt(&latest).Int64())
	assert.Equal(t, int64(7), balanceAt(nil).Int64(), "no tag means latest")

	// Test case 3: pending without a provider falls back to latest.
	assert.Equal(t, int64(7), balanceAt(&pending).Int64())

	// Test case 4: pending with a provider.
	header, statedb := bc.HeadState()
	statedb.SetBalance(testAddr, uint256.NewInt(9))
	p.SetPendingState(&testPending{header: header, state: statedb})
	assert.Equal(t, int64(9), balanceAt(&pending).Int64())

	// Test case 5: unknown block.
	unknown := rpc.BlockNumberOrHashWithNumber(100)
	_, err := p.Call(context.Background(), &CallParams{To: &balanceAddr, BlockTag: &unknown})
	assert.True(t, errors.Is(err, core.ErrUnknownBlock), "unexpected error %v", err)
}

func TestCallValidation(t *testing.T) {
	p, _ := newTestPipeline(t)
	tests := []struct {
		name  string
		args  CallParams
		field string
	}{
		{
			name:  "both fee kinds",
			args:  CallParams{To: &answerAddr, GasPrice: (*hexutil.Big)(big.NewInt(1)), MaxFeePerGas: (*hexutil.Big)(big.NewInt(1))},
			field: "gasPrice",
		},
		{
			name:  "tip above fee cap",
			args:  CallParams{To: &answerAddr, MaxFeePerGas: (*hexutil.Big)(big.NewInt(1)), MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(2))},
			field: "maxPriorityFeePerGas",
		},
		{
			name:  "negative value",
			args:  CallParams{To: &answerAddr, Value: (*hexutil.Big)(big.NewInt(-1))},
			field: "value",
		},
		{
			name:  "conflicting input",
			args:  CallParams{To: &answerAddr, Data: bytesPtr([]byte{1}), Input: bytesPtr([]byte{2})},
			field: "input",
		},
		{
			name: "state and state diff",
			args: CallParams{To: &answerAddr, StateOverrides: StateOverride{
				testAddr: {State: map[common.Hash]common.Hash{}, StateDiff: map[common.Hash]common.Hash{}},
			}},
			field: "stateOverrides",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Call(context.Background(), &tt.args)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want validation error, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, -32602, verr.ErrorCode())
		})
	}
}

func TestContract(t *testing.T) {
	p, _ := newTestPipeline(t)
	contract := parseABI(t)

	// Test case 1: decoded outputs.
	res, err := p.Contract(context.Background(), &ContractParams{
		CallParams:   CallParams{To: &answerAddr},
		ABI:          contract,
		FunctionName: "answer",
	})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	require.Len(t, res.Decoded, 1)
	assert.Equal(t, int64(42), res.Decoded[0].(*big.Int).Int64())

	// Test case 2: output shorter than the ABI declares.
	res, err = p.Contract(context.Background(), &ContractParams{
		CallParams:   CallParams{To: &answerAddr},
		ABI:          contract,
		FunctionName: "pair",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindDecode, res.Error.Kind)

	// Test case 3: custom errors are decoded with the ABI.
	res, err = p.Contract(context.Background(), &ContractParams{
		CallParams:   CallParams{To: &revertAddr},
		ABI:          contract,
		FunctionName: "Boom",
		Args:         []interface{}{big.NewInt(7)},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindRevert, res.Error.Kind)
	assert.Equal(t, "Boom[7]", res.Error.Reason)

	// Test case 4: parameter errors never reach the EVM.
	_, err = p.Contract(context.Background(), &ContractParams{ABI: contract, FunctionName: "answer"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "to", verr.Field)

	_, err = p.Contract(context.Background(), &ContractParams{CallParams: CallParams{To: &answerAddr}, ABI: contract, FunctionName: "missing"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "functionName", verr.Field)

	_, err = p.Contract(context.Background(), &ContractParams{CallParams: CallParams{To: &answerAddr}, ABI: contract, FunctionName: "Boom", Args: []interface{}{"seven"}})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "args", verr.Field)
}

func TestScript(t *testing.T) {
	p, bc := newTestPipeline(t)

	res, err := p.Script(context.Background(), &ScriptParams{Code: answerCode})
	require.NoError(t, err)
	require.Nil(t, res.Error)
	assert.Equal(t, common.BigToHash(big.NewInt(42)).Bytes(), []byte(res.ReturnData))
	assert.Empty(t, bc.StateCopy().GetCode(ScriptAddress(answerCode)), "scripts are never installed canonically")

	res, err = p.Script(context.Background(), &ScriptParams{Code: answerCode, ABI: parseABI(t), FunctionName: "answer"})
	require.NoError(t, err)
	require.Len(t, res.Decoded, 1)
	assert.Equal(t, int64(42), res.Decoded[0].(*big.Int).Int64())

	_, err = p.Script(context.Background(), &ScriptParams{CallParams: CallParams{CreateTransaction: CreateOnSuccess}, Code: answerCode})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "scripts cannot create transactions")
	assert.Equal(t, "createTransaction", verr.Field)
}

func TestEstimateGas(t *testing.T) {
	p, _ := newTestPipeline(t)
	from := devAddresses(1)[0]

	// Test case 1: plain transfer.
	gas, err := p.EstimateGas(context.Background(), &CallParams{From: &from, To: &testAddr, Value: (*hexutil.Big)(oneEther)})
	require.NoError(t, err)
	assert.Equal(t, params.TxGas, gas)

	// Test case 2: the estimate is the exact lower bound.
	gas, err = p.EstimateGas(context.Background(), &CallParams{From: &from, To: &storeAddr})
	require.NoError(t, err)
	assert.Greater(t, gas, params.TxGas)

	res, err := p.Call(context.Background(), &CallParams{From: &from, To: &storeAddr, Gas: gasPtr(gas)})
	require.NoError(t, err)
	assert.Nil(t, res.Error, "call must succeed with the estimate")

	res, err = p.Call(context.Background(), &CallParams{From: &from, To: &storeAddr, Gas: gasPtr(gas - 1)})
	require.NoError(t, err)
	assert.NotNil(t, res.Error, "call must fail below the estimate")

	// Test case 3: reverts are reported as execution errors.
	_, err = p.EstimateGas(context.Background(), &CallParams{From: &from, To: &revertAddr, Input: bytesPtr(revertData(t, "no"))})
	var execErr *ExecError
	require.True(t, errors.As(err, &execErr), "unexpected error %v", err)
	assert.Equal(t, KindRevert, execErr.Kind)
	assert.Equal(t, "no", execErr.Reason)
}

func TestCreateAccessList(t *testing.T) {
	p, _ := newTestPipeline(t)
	from := devAddresses(1)[0]

	res, err := p.CreateAccessList(context.Background(), &CallParams{From: &from, To: &storeAddr})
	require.NoError(t, err)
	assert.Nil(t, res.Error)
	want := types.AccessList{{Address: storeAddr, StorageKeys: []common.Hash{{}}}}
	assert.Equal(t, want, res.AccessList)
	assert.Greater(t, uint64(res.GasUsed), params.TxGas)

	// The same list is produced by a single traced call.
	call, err := p.Call(context.Background(), &CallParams{From: &from, To: &storeAddr, CreateAccessList: true})
	require.NoError(t, err)
	assert.Equal(t, want, call.AccessList)
}

func TestCallCreateTransaction(t *testing.T) {
	p, bc := newTestPipeline(t)
	submit := new(testSubmitter)
	dev := devAddresses(1)[0]
	p.SetSubmitter(submit)
	p.SetAccounts(testAccounts{dev: core.DevKeys(1)[0]})

	// Test case 1: a local account signs.
	res, err := p.Call(context.Background(), &CallParams{
		From:              &dev,
		To:                &testAddr,
		Value:             (*hexutil.Big)(oneEther),
		CreateTransaction: CreateOnSuccess,
	})
	require.NoError(t, err)
	require.NotNil(t, res.TxHash)
	require.Len(t, submit.txs, 1)

	tx := submit.txs[0]
	assert.Equal(t, *res.TxHash, tx.Hash())
	assert.False(t, tx.Impersonated)
	assert.Equal(t, dev, tx.From)
	assert.Zero(t, oneEther.Cmp(tx.Tx.Value()))
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Tx.Type())
	assert.GreaterOrEqual(t, tx.Tx.Gas(), params.TxGas)
	assert.True(t, bc.StateCopy().GetBalance(testAddr).IsZero(), "queued, not executed")

	// Test case 2: on-success skips failed calls.
	other := common.HexToAddress("0xbeef")
	res, err = p.Call(context.Background(), &CallParams{From: &other, To: &revertAddr, CreateTransaction: CreateOnSuccess})
	require.NoError(t, err)
	assert.NotNil(t, res.Error)
	assert.Nil(t, res.TxHash)
	assert.Len(t, submit.txs, 1)

	// Test case 3: always queues, impersonating unknown senders.
	res, err = p.Call(context.Background(), &CallParams{From: &other, To: &revertAddr, CreateTransaction: CreateAlways})
	require.NoError(t, err)
	require.NotNil(t, res.TxHash)
	require.Len(t, submit.txs, 2)
	assert.True(t, submit.txs[1].Impersonated)
	assert.Equal(t, other, submit.txs[1].From)

	// Test case 4: pool rejections reach the caller.
	submit.err = txpool.ErrUnderpriced
	_, err = p.Call(context.Background(), &CallParams{From: &dev, To: &testAddr, CreateTransaction: CreateAlways})
	assert.True(t, errors.Is(err, txpool.ErrUnderpriced))
}

func TestCallFetchFailure(t *testing.T) {
	src := fork.NewMemorySource(big.NewInt(10), 100)
	fetcher := fork.NewFetcher(src, fork.NewCache(nil), 100)
	genesis := core.DeveloperGenesisBlock(big.NewInt(10), core.DevGasLimit, nil)
	bc, err := core.NewBlockChain(context.Background(), genesis, fetcher)
	require.NoError(t, err)
	defer bc.Stop()

	p := NewPipeline(DefaultConfig, bc)
	src.SetFailure(errors.New("connection refused"))

	res, err := p.Call(context.Background(), &CallParams{To: &testAddr})
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindFetch, res.Error.Kind)
	assert.True(t, errors.Is(res.Error, ErrStateUnavailable))
}

func TestCreateTransactionModeJSON(t *testing.T) {
	for input, want := range map[string]CreateTransactionMode{
		`true`:         CreateOnSuccess,
		`false`:        CreateNever,
		`"always"`:     CreateAlways,
		`"on-success"`: CreateOnSuccess,
		`"never"`:      CreateNever,
	} {
		var mode CreateTransactionMode
		require.NoError(t, json.Unmarshal([]byte(input), &mode), input)
		assert.Equal(t, want, mode, input)
	}
	var mode CreateTransactionMode
	assert.Error(t, json.Unmarshal([]byte(`"sometimes"`), &mode))
}
