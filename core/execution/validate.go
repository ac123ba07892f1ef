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

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func negative(v *hexutil.Big) bool {
	return v != nil && v.ToInt().Sign() < 0
}

// validate checks the params structurally. It never looks at state.
func (p *CallParams) validate() error {
	if p.Data != nil && p.Input != nil && !bytes.Equal(*p.Data, *p.Input) {
		return invalid("input", `both "data" and "input" are set and not equal. Please use "input" to pass transaction call data`)
	}
	if p.GasPrice != nil && (p.MaxFeePerGas != nil || p.MaxPriorityFeePerGas != nil) {
		return invalid("gasPrice", "both gasPrice and (maxFeePerGas or maxPriorityFeePerGas) specified")
	}
	for _, f := range []struct {
		name string
		v    *hexutil.Big
	}{
		{"value", p.Value},
		{"gasPrice", p.GasPrice},
		{"maxFeePerGas", p.MaxFeePerGas},
		{"maxPriorityFeePerGas", p.MaxPriorityFeePerGas},
	} {
		if negative(f.v) {
			return invalid(f.name, "negative value %v", f.v.ToInt())
		}
	}
	if p.MaxFeePerGas != nil && p.MaxPriorityFeePerGas != nil {
		if p.MaxFeePerGas.ToInt().Cmp(p.MaxPriorityFeePerGas.ToInt()) < 0 {
			return invalid("maxPriorityFeePerGas", "maxFeePerGas (%v) < maxPriorityFeePerGas (%v)", p.MaxFeePerGas, p.MaxPriorityFeePerGas)
		}
	}
	if p.CreateTransaction < CreateNever || p.CreateTransaction > CreateAlways {
		return invalid("createTransaction", "unknown mode %d", p.CreateTransaction)
	}
	if p.To == nil && len(p.data()) == 0 && p.CreateTransaction != CreateNever {
		return invalid("to", "contract creation without any data provided")
	}
	for addr, account := range p.StateOverrides {
		if account.State != nil && account.StateDiff != nil {
			return invalid("stateOverrides", "account %s has both 'state' and 'stateDiff'", addr.Hex())
		}
		if negative(account.Balance) {
			return invalid("stateOverrides", "negative balance for %s", addr.Hex())
		}
	}
	return nil
}

// validateFunction checks that the ABI declares the function and packs the
// arguments. Packing failures are parameter errors.
func validateFunction(contract *abi.ABI, name string, args []interface{}) ([]byte, error) {
	if contract == nil {
		return nil, invalid("abi", "missing abi")
	}
	if name == "" {
		return nil, invalid("functionName", "missing function name")
	}
	if _, ok := contract.Methods[name]; !ok {
		return nil, invalid("functionName", "function %q not found in abi", name)
	}
	input, err := contract.Pack(name, args...)
	if err != nil {
		return nil, invalid("args", "%v", err)
	}
	return input, nil
}

func (p *ContractParams) validate() ([]byte, error) {
	if p.To == nil {
		return nil, invalid("to", "missing contract address")
	}
	if err := p.CallParams.validate(); err != nil {
		return nil, err
	}
	return validateFunction(p.ABI, p.FunctionName, p.Args)
}

func (p *ScriptParams) validate() ([]byte, error) {
	if len(p.Code) == 0 {
		return nil, invalid("deployedBytecode", "missing script bytecode")
	}
	if p.CreateTransaction != CreateNever {
		return nil, invalid("createTransaction", "scripts cannot create transactions")
	}
	if p.To != nil {
		return nil, invalid("to", "scripts are called at their scratch address")
	}
	if err := p.CallParams.validate(); err != nil {
		return nil, err
	}
	if p.ABI == nil && p.FunctionName == "" {
		return p.data(), nil
	}
	return validateFunction(p.ABI, p.FunctionName, p.Args)
}
