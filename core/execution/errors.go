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
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/vm"
)

// ErrStateUnavailable is returned when a transaction could not be applied
// because reading the forked state failed. The transaction itself may be
// perfectly valid; the caller should retry later rather than drop it.
// ErrStateUnavailable 在读取分叉状态失败导致交易无法应用时返回。
var ErrStateUnavailable = errors.New("state unavailable")

const (
	errCodeInvalidParams = -32602
	errCodeReverted      = 3
	errCodeExecution     = -32000
)

// ValidationError reports structurally invalid call parameters. It is raised
// before any execution takes place.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ErrorCode returns the JSON-RPC invalid params code.
func (e *ValidationError) ErrorCode() int { return errCodeInvalidParams }

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ExecErrorKind classifies execution exceptions.
type ExecErrorKind string

const (
	KindRevert          ExecErrorKind = "revert"
	KindOutOfGas        ExecErrorKind = "out-of-gas"
	KindInvalidOpcode   ExecErrorKind = "invalid-opcode"
	KindStaticViolation ExecErrorKind = "static-violation"
	KindExecution       ExecErrorKind = "execution"
	KindDecode          ExecErrorKind = "decode"
	KindFetch           ExecErrorKind = "fetch"
)

// ExecError is an execution exception. It is part of a call result rather
// than a failure of the pipeline, but also implements error together with the
// JSON-RPC code and data accessors so that it can be returned as is.
// ExecError 是执行异常，是调用结果的一部分而不是管道失败。
type ExecError struct {
	Kind    ExecErrorKind `json:"kind"`
	Message string        `json:"message"`
	Reason  string        `json:"reason,omitempty"` // Decoded revert reason, if any
	Data    hexutil.Bytes `json:"data,omitempty"`   // Raw revert data
	cause   error
}

func (e *ExecError) Error() string {
	return e.Message
}

func (e *ExecError) Unwrap() error {
	return e.cause
}

// ErrorCode returns 3 for reverts carrying data and -32000 for anything else.
func (e *ExecError) ErrorCode() int {
	if e.Kind == KindRevert && len(e.Data) > 0 {
		return errCodeReverted
	}
	return errCodeExecution
}

// ErrorData returns the hex encoded revert data.
func (e *ExecError) ErrorData() interface{} {
	if len(e.Data) == 0 {
		return nil
	}
	return hexutil.Encode(e.Data)
}

// newExecError classifies an EVM error.
func newExecError(err error, ret []byte) *ExecError {
	var invalidOp *vm.ErrInvalidOpCode
	switch {
	case errors.Is(err, vm.ErrExecutionReverted):
		e := &ExecError{Kind: KindRevert, Message: err.Error(), Data: ret, cause: err}
		if reason, unpackErr := abi.UnpackRevert(ret); unpackErr == nil {
			e.Reason = reason
			e.Message = fmt.Sprintf("%v: %v", err, reason)
		}
		return e
	case errors.Is(err, vm.ErrOutOfGas), errors.Is(err, vm.ErrCodeStoreOutOfGas), errors.Is(err, vm.ErrGasUintOverflow):
		return &ExecError{Kind: KindOutOfGas, Message: err.Error(), cause: err}
	case errors.As(err, &invalidOp), errors.Is(err, vm.ErrInvalidCode):
		return &ExecError{Kind: KindInvalidOpcode, Message: err.Error(), cause: err}
	case errors.Is(err, vm.ErrWriteProtection):
		return &ExecError{Kind: KindStaticViolation, Message: err.Error(), cause: err}
	}
	return &ExecError{Kind: KindExecution, Message: err.Error(), cause: err}
}

func fetchError(err error) *ExecError {
	if !errors.Is(err, ErrStateUnavailable) {
		err = fmt.Errorf("%w: %w", ErrStateUnavailable, err)
	}
	return &ExecError{Kind: KindFetch, Message: err.Error(), cause: err}
}

func decodeError(err error, ret []byte) *ExecError {
	return &ExecError{Kind: KindDecode, Message: fmt.Sprintf("failed to decode result: %v", err), Data: ret, cause: err}
}
