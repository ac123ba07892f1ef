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
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/evmts/tevm-node/core/execution"
)

var bigOne = big.NewInt(1)

// parseABI decodes a JSON contract interface.
func parseABI(raw json.RawMessage) (*abi.ABI, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, &execution.ValidationError{Field: "abi", Message: err.Error()}
	}
	return &parsed, nil
}

// convertArgs converts the JSON arguments of a function call into the Go
// values the ABI packer expects.
// convertArgs 将函数调用的 JSON 参数转换为 ABI 打包器期望的 Go 值。
func convertArgs(contract *abi.ABI, name string, raw []json.RawMessage) ([]interface{}, error) {
	method, ok := contract.Methods[name]
	if !ok {
		return nil, &execution.ValidationError{Field: "functionName", Message: fmt.Sprintf("function %q not found in abi", name)}
	}
	if len(raw) != len(method.Inputs) {
		return nil, &execution.ValidationError{Field: "args", Message: fmt.Sprintf("%s takes %d arguments, have %d", name, len(method.Inputs), len(raw))}
	}
	args := make([]interface{}, len(raw))
	for i, input := range method.Inputs {
		v, err := convertValue(input.Type, raw[i])
		if err != nil {
			return nil, &execution.ValidationError{Field: "args", Message: fmt.Sprintf("argument %d (%s): %v", i, input.Type, err)}
		}
		args[i] = v.Interface()
	}
	return args, nil
}

func convertValue(t abi.Type, raw json.RawMessage) (reflect.Value, error) {
	switch t.T {
	case abi.AddressTy:
		var addr common.Address
		if err := json.Unmarshal(raw, &addr); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(addr), nil

	case abi.BoolTy:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil

	case abi.StringTy:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(s), nil

	case abi.BytesTy:
		var b hexutil.Bytes
		if err := json.Unmarshal(raw, &b); err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf([]byte(b)), nil

	case abi.FixedBytesTy:
		var b hexutil.Bytes
		if err := json.Unmarshal(raw, &b); err != nil {
			return reflect.Value{}, err
		}
		if len(b) != t.Size {
			return reflect.Value{}, fmt.Errorf("want %d bytes, have %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf([]byte(b)))
		return arr, nil

	case abi.IntTy, abi.UintTy:
		n, err := parseInteger(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return integerValue(t, n)

	case abi.SliceTy, abi.ArrayTy:
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return reflect.Value{}, err
		}
		var out reflect.Value
		if t.T == abi.ArrayTy {
			if len(elems) != t.Size {
				return reflect.Value{}, fmt.Errorf("want %d elements, have %d", t.Size, len(elems))
			}
			out = reflect.New(t.GetType()).Elem()
		} else {
			out = reflect.MakeSlice(t.GetType(), len(elems), len(elems))
		}
		for i, elem := range elems {
			v, err := convertValue(*t.Elem, elem)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(v)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported argument type %s", t)
}

// parseInteger accepts a JSON number or a decimal or 0x-prefixed hex string.
func parseInteger(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return nil, fmt.Errorf("invalid integer %s", raw)
		}
		s = num.String()
	}
	n, ok := math.ParseBig256(s)
	if !ok {
		if n, ok = new(big.Int).SetString(s, 10); !ok {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
	}
	return n, nil
}

// integerValue range checks n against the ABI type and converts it to the Go
// type the packer uses for it: a sized Go integer up to 64 bits and *big.Int
// beyond.
func integerValue(t abi.Type, n *big.Int) (reflect.Value, error) {
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return reflect.Value{}, fmt.Errorf("%v out of range for %s", n, t)
		}
	} else {
		// Two's complement: |n| < 2^(size-1), or n == -2^(size-1).
		abs := n
		if n.Sign() < 0 {
			abs = new(big.Int).Add(n, bigOne)
		}
		if abs.BitLen() > t.Size-1 {
			return reflect.Value{}, fmt.Errorf("%v out of range for %s", n, t)
		}
	}
	typ := t.GetType()
	if typ.Kind() == reflect.Ptr {
		return reflect.ValueOf(n), nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(typ), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(typ), nil
}
