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
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/txpool"
)

const (
	errCodeExecution      = -32000 // 通用执行错误
	errCodeReverted       = 3      // 带数据的回退
	errCodeNotFound       = -32001 // 资源不存在（快照、过滤器）
	errCodeInvalidTx      = -32003 // 交易无效或被交易池拒绝
	errCodeUnsupported    = -32004 // 方法不受支持，例如未知账户签名
	errCodeMethodNotFound = -32601 // 方法不存在
	errCodeInvalidParams  = -32602 // 参数无效
	errCodeInternalError  = -32603 // 内部错误
)

var errUnknownBlock = errors.New("unknown block")

// rpcError is an API error carrying an explicit JSON-RPC code.
// rpcError 是带有明确 JSON-RPC 错误码的 API 错误。
type rpcError struct {
	code    int
	message string
	data    interface{}
}

func (e *rpcError) Error() string          { return e.message }
func (e *rpcError) ErrorCode() int         { return e.code }
func (e *rpcError) ErrorData() interface{} { return e.data }

func invalidParams(format string, args ...interface{}) error {
	return &rpcError{code: errCodeInvalidParams, message: fmt.Sprintf(format, args...)}
}

func notFound(err error) error {
	return &rpcError{code: errCodeNotFound, message: err.Error()}
}

func unsupported(format string, args ...interface{}) error {
	return &rpcError{code: errCodeUnsupported, message: fmt.Sprintf(format, args...)}
}

func internalError(err error) error {
	return &rpcError{code: errCodeInternalError, message: err.Error()}
}

// txValidationError maps a pool rejection or a consensus pre-check failure
// onto the invalid transaction code, keeping the original message.
// txValidationError 将交易池拒绝或共识预检查失败映射为无效交易错误码。
func txValidationError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, txpool.ErrAlreadyKnown),
		errors.Is(err, txpool.ErrInvalidSender),
		errors.Is(err, txpool.ErrUnderpriced),
		errors.Is(err, txpool.ErrReplaceUnderpriced),
		errors.Is(err, txpool.ErrAccountLimitExceeded),
		errors.Is(err, txpool.ErrTxPoolOverflow),
		errors.Is(err, txpool.ErrGasLimit),
		errors.Is(err, txpool.ErrNegativeValue),
		errors.Is(err, txpool.ErrOversizedData),
		errors.Is(err, txpool.ErrFutureReplacePending),
		errors.Is(err, txpool.ErrNonceTooLow),
		errors.Is(err, txpool.ErrInsufficientFunds),
		errors.Is(err, txpool.ErrIntrinsicGas),
		errors.Is(err, txpool.ErrTipAboveFeeCap),
		errors.Is(err, types.ErrTxTypeNotSupported),
		errors.Is(err, types.ErrInvalidSig):
		return &rpcError{code: errCodeInvalidTx, message: err.Error()}
	}
	return classify(err)
}

// classify turns an error of the node components into an API error. Errors
// that already carry a code are returned untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, core.ErrUnknownSnapshot) {
		return notFound(err)
	}
	return &rpcError{code: errCodeExecution, message: err.Error()}
}
