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

package txpool

import (
	"errors"

	"github.com/ethereum/go-ethereum/core"
)

var (
	// ErrAlreadyKnown is returned if the transactions is already contained
	// within the pool.
	// ErrAlreadyKnown 如果交易已包含在池中，则返回此错误。
	ErrAlreadyKnown = errors.New("already known")

	// ErrInvalidSender is returned if the transaction contains an invalid
	// signature and is not submitted on behalf of an impersonated account.
	ErrInvalidSender = errors.New("invalid sender")

	// ErrUnderpriced is returned if a transaction's gas tip is below the minimum
	// configured for the transaction pool.
	ErrUnderpriced = errors.New("transaction underpriced")

	// ErrReplaceUnderpriced is returned if a transaction is attempted to be replaced
	// with a different one without the required price bump.
	// ErrReplaceUnderpriced 如果尝试用不同的交易替换现有交易，但没有达到要求的价格涨幅，则返回此错误。
	ErrReplaceUnderpriced = errors.New("replacement transaction underpriced")

	// ErrAccountLimitExceeded is returned if a transaction would exceed the number
	// allowed by a pool for a single account.
	ErrAccountLimitExceeded = errors.New("account limit exceeded")

	// ErrTxPoolOverflow is returned if the pool is full and the transaction is
	// not better priced than anything it could evict.
	// ErrTxPoolOverflow 交易池已满且新交易不比任何可驱逐交易更优时返回。
	ErrTxPoolOverflow = errors.New("txpool is full")

	// ErrGasLimit is returned if a transaction's requested gas limit exceeds the
	// maximum allowance of the current block.
	ErrGasLimit = errors.New("exceeds block gas limit")

	// ErrNegativeValue is a sanity error to ensure no one is able to specify a
	// transaction with a negative value.
	ErrNegativeValue = errors.New("negative value")

	// ErrOversizedData is returned if the input data of a transaction is greater
	// than some meaningful limit a user might use. This is not a consensus error
	// making the transaction invalid, rather a DOS protection.
	ErrOversizedData = errors.New("oversized data")

	// ErrFutureReplacePending is returned if a future transaction replaces a pending
	// one. Future transactions should only be able to replace other future transactions.
	ErrFutureReplacePending = errors.New("future transaction tries to replace pending")
)

// Consensus errors the pool reports as rejection reasons.
var (
	ErrNonceTooLow       = core.ErrNonceTooLow
	ErrInsufficientFunds = core.ErrInsufficientFunds
	ErrIntrinsicGas      = core.ErrIntrinsicGas
	ErrTipAboveFeeCap    = core.ErrTipAboveFeeCap
)
