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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// CreateTransactionMode tells whether a call is also queued as a transaction.
type CreateTransactionMode int

const (
	CreateNever     CreateTransactionMode = iota // Pure call
	CreateOnSuccess                              // Queue only if the call did not fail
	CreateAlways                                 // Queue even if the call failed
)

func (m CreateTransactionMode) String() string {
	switch m {
	case CreateOnSuccess:
		return "on-success"
	case CreateAlways:
		return "always"
	default:
		return "never"
	}
}

// MarshalJSON encodes the mode as its string form.
func (m CreateTransactionMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a boolean (true meaning on-success) or one of the
// strings "never", "on-success" and "always".
func (m *CreateTransactionMode) UnmarshalJSON(input []byte) error {
	input = bytes.TrimSpace(input)
	switch string(input) {
	case "true":
		*m = CreateOnSuccess
		return nil
	case "false", "null":
		*m = CreateNever
		return nil
	}
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return fmt.Errorf("invalid createTransaction value %s", input)
	}
	switch s {
	case "never":
		*m = CreateNever
	case "on-success":
		*m = CreateOnSuccess
	case "always":
		*m = CreateAlways
	default:
		return fmt.Errorf("invalid createTransaction value %q", s)
	}
	return nil
}

// shouldCreate reports whether the call outcome warrants queuing a transaction.
func (m CreateTransactionMode) shouldCreate(res *CallResult) bool {
	switch m {
	case CreateAlways:
		return true
	case CreateOnSuccess:
		return res.Error == nil
	}
	return false
}

// CallParams are the arguments of a call. Unset fields take call defaults:
// the zero sender, the gas cap, a zero gas price and the latest block.
// CallParams 是调用的参数。
type CallParams struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  *hexutil.Uint64 `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                *hexutil.Uint64 `json:"nonce"`

	// We accept "data" and "input" for backwards-compatibility reasons.
	// "input" is the newer name and should be preferred by clients.
	Data  *hexutil.Bytes `json:"data"`
	Input *hexutil.Bytes `json:"input"`

	AccessList *types.AccessList      `json:"accessList,omitempty"`
	BlockTag   *rpc.BlockNumberOrHash `json:"blockTag,omitempty"`

	CreateTransaction CreateTransactionMode `json:"createTransaction"`
	SkipBalance       bool                  `json:"skipBalance"`
	CreateTrace       bool                  `json:"createTrace"`
	CreateAccessList  bool                  `json:"createAccessList"`

	StateOverrides StateOverride   `json:"stateOverrideSet,omitempty"`
	BlockOverrides *BlockOverrides `json:"blockOverrideSet,omitempty"`
}

// from retrieves the transaction sender address.
func (p *CallParams) from() common.Address {
	if p.From == nil {
		return common.Address{}
	}
	return *p.From
}

// data retrieves the transaction calldata. Input field is preferred.
func (p *CallParams) data() []byte {
	if p.Input != nil {
		return *p.Input
	}
	if p.Data != nil {
		return *p.Data
	}
	return nil
}

// setData replaces the calldata.
func (p *CallParams) setData(data []byte) {
	input := hexutil.Bytes(data)
	p.Input = &input
	p.Data = nil
}

// copy returns a shallow copy that can be defaulted without touching the
// caller's value.
func (p *CallParams) copy() *CallParams {
	cpy := *p
	return &cpy
}

// callDefaults fills in the fields a call needs, capping the gas limit.
func (p *CallParams) callDefaults(globalGasCap uint64, baseFee *big.Int) {
	if p.Gas == nil {
		gas := globalGasCap
		if gas == 0 {
			gas = uint64(math.MaxUint64 / 2)
		}
		p.Gas = (*hexutil.Uint64)(&gas)
	} else if globalGasCap > 0 && globalGasCap < uint64(*p.Gas) {
		log.Warn("Caller gas above allowance, capping", "requested", p.Gas, "cap", globalGasCap)
		p.Gas = (*hexutil.Uint64)(&globalGasCap)
	}
	if p.Value == nil {
		p.Value = new(hexutil.Big)
	}
	if baseFee == nil {
		if p.GasPrice == nil {
			p.GasPrice = new(hexutil.Big)
		}
		return
	}
	if p.GasPrice == nil {
		if p.MaxFeePerGas == nil {
			p.MaxFeePerGas = new(hexutil.Big)
		}
		if p.MaxPriorityFeePerGas == nil {
			p.MaxPriorityFeePerGas = new(hexutil.Big)
		}
	}
}

// toMessage converts the defaulted params into a message. Nonce and EOA
// checks are always skipped: calls may come from any address.
func (p *CallParams) toMessage(baseFee *big.Int, nonce uint64) *gethcore.Message {
	var (
		gasPrice  *big.Int
		gasFeeCap *big.Int
		gasTipCap *big.Int
	)
	if baseFee == nil || p.GasPrice != nil {
		gasPrice = p.GasPrice.ToInt()
		gasFeeCap, gasTipCap = gasPrice, gasPrice
	} else {
		// User specified 1559 gas fields (or none), use those
		gasFeeCap = p.MaxFeePerGas.ToInt()
		gasTipCap = p.MaxPriorityFeePerGas.ToInt()
		gasPrice = new(big.Int)
		if gasFeeCap.BitLen() > 0 || gasTipCap.BitLen() > 0 {
			gasPrice = gasPrice.Add(gasTipCap, baseFee)
			if gasPrice.Cmp(gasFeeCap) > 0 {
				gasPrice = gasFeeCap
			}
		}
	}
	var accessList types.AccessList
	if p.AccessList != nil {
		accessList = *p.AccessList
	}
	if p.Nonce != nil {
		nonce = uint64(*p.Nonce)
	}
	return &gethcore.Message{
		From:             p.from(),
		To:               p.To,
		Value:            p.Value.ToInt(),
		Nonce:            nonce,
		GasLimit:         uint64(*p.Gas),
		GasPrice:         gasPrice,
		GasFeeCap:        gasFeeCap,
		GasTipCap:        gasTipCap,
		Data:             p.data(),
		AccessList:       accessList,
		SkipNonceChecks:  true,
		SkipFromEOACheck: true,
	}
}

// CallResult is the outcome of a call. Execution exceptions are reported in
// Error rather than as a failure of the call itself.
// CallResult 是调用的结果，执行异常在 Error 中报告。
type CallResult struct {
	ReturnData     hexutil.Bytes    `json:"rawData"`
	GasUsed        hexutil.Uint64   `json:"executionGasUsed"`
	Logs           []*types.Log     `json:"logs,omitempty"`
	CreatedAddress *common.Address  `json:"createdAddress,omitempty"`
	AccessList     types.AccessList `json:"accessList,omitempty"`
	Trace          *CallFrame       `json:"trace,omitempty"`
	TxHash         *common.Hash     `json:"txHash,omitempty"`
	Error          *ExecError       `json:"errors,omitempty"`
}

// ContractParams is a call of an ABI function. The calldata is packed from
// the function name and arguments.
type ContractParams struct {
	CallParams
	ABI          *abi.ABI
	FunctionName string
	Args         []interface{}
}

// ScriptParams is a call of throwaway runtime bytecode, installed at a
// scratch address for the duration of the call. Without an ABI the calldata
// of the embedded params is sent as is.
type ScriptParams struct {
	CallParams
	Code         hexutil.Bytes
	ABI          *abi.ABI
	FunctionName string
	Args         []interface{}
}

// ContractResult is a call result with the decoded function outputs.
type ContractResult struct {
	*CallResult
	Decoded []interface{} `json:"data,omitempty"`
}

// AccessListResult is the outcome of access list creation.
type AccessListResult struct {
	AccessList types.AccessList `json:"accessList"`
	GasUsed    hexutil.Uint64   `json:"gasUsed"`
	Error      *ExecError       `json:"error,omitempty"`
}
