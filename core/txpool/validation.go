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
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core/state"
	"github.com/holiman/uint256"
)

// ValidationOptions define the limits the stateless checks are run with.
type ValidationOptions struct {
	Config  *params.ChainConfig // Chain configuration to selectively validate based on current fork rules
	MaxSize uint64              // Maximum size of a transaction that the pool can meaningfully handle
	MinTip  *big.Int            // Minimum gas tip needed to allow a transaction into the pool
}

// ValidateTransaction checks whether a transaction is valid according to the
// consensus rules, but does not check state-dependent validation (balance,
// nonce, etc). The sender signature is checked by the caller, since
// impersonated transactions carry none.
// ValidateTransaction 根据共识规则检查交易是否有效，但不检查依赖状态的规则。
func ValidateTransaction(tx *types.Transaction, head *types.Header, opts *ValidationOptions) error {
	switch tx.Type() {
	case types.LegacyTxType, types.AccessListTxType, types.DynamicFeeTxType:
	default:
		return fmt.Errorf("%w: tx type %v not supported by this pool", core.ErrTxTypeNotSupported, tx.Type())
	}
	if tx.Size() > opts.MaxSize {
		return fmt.Errorf("%w: transaction size %v, limit %v", ErrOversizedData, tx.Size(), opts.MaxSize)
	}
	if !opts.Config.IsBerlin(head.Number) && tx.Type() != types.LegacyTxType {
		return fmt.Errorf("%w: type %d rejected, pool not yet in Berlin", core.ErrTxTypeNotSupported, tx.Type())
	}
	if !opts.Config.IsLondon(head.Number) && tx.Type() == types.DynamicFeeTxType {
		return fmt.Errorf("%w: type %d rejected, pool not yet in London", core.ErrTxTypeNotSupported, tx.Type())
	}
	if opts.Config.IsShanghai(head.Number, head.Time) && tx.To() == nil && len(tx.Data()) > params.MaxInitCodeSize {
		return fmt.Errorf("%w: code size %v, limit %v", core.ErrMaxInitCodeSizeExceeded, len(tx.Data()), params.MaxInitCodeSize)
	}
	if tx.Value().Sign() < 0 {
		return ErrNegativeValue
	}
	if head.GasLimit < tx.Gas() {
		return ErrGasLimit
	}
	if tx.GasFeeCap().BitLen() > 256 {
		return core.ErrFeeCapVeryHigh
	}
	if tx.GasTipCap().BitLen() > 256 {
		return core.ErrTipVeryHigh
	}
	if tx.GasFeeCapIntCmp(tx.GasTipCap()) < 0 {
		return core.ErrTipAboveFeeCap
	}
	intrGas, err := core.IntrinsicGas(tx.Data(), tx.AccessList(), nil, tx.To() == nil, true, opts.Config.IsIstanbul(head.Number), opts.Config.IsShanghai(head.Number, head.Time))
	if err != nil {
		return err
	}
	if tx.Gas() < intrGas {
		return fmt.Errorf("%w: gas %v, minimum needed %v", core.ErrIntrinsicGas, tx.Gas(), intrGas)
	}
	if opts.MinTip != nil && tx.GasTipCapIntCmp(opts.MinTip) < 0 {
		return fmt.Errorf("%w: gas tip cap %v, minimum needed %v", ErrUnderpriced, tx.GasTipCap(), opts.MinTip)
	}
	return nil
}

// ValidationOptionsWithState define the pool callbacks the stateful checks use.
type ValidationOptionsWithState struct {
	State *state.StateDB // State to check nonces and balances against

	// UsedAndLeftSlots returns the number of tx slots used and the number still
	// permitted for an account.
	UsedAndLeftSlots func(addr common.Address) (int, int)

	// ExistingExpenditure returns the cumulative cost of the already pooled
	// transactions of the account.
	ExistingExpenditure func(addr common.Address) *uint256.Int

	// ExistingCost returns the cost of an already pooled transaction with the
	// given nonce, nil if there is none.
	ExistingCost func(addr common.Address, nonce uint64) *uint256.Int
}

// ValidateTransactionWithState checks the transaction against the sender's
// on-chain nonce and balance, including the cost of the sender's other pooled
// transactions. Remote read failures are returned as they are.
// ValidateTransactionWithState 根据发送者的链上 nonce 和余额检查交易。
func ValidateTransactionWithState(tx *Transaction, opts *ValidationOptionsWithState) error {
	from := tx.From
	next := opts.State.GetNonce(from)
	balance := opts.State.GetBalance(from)
	if err := opts.State.Error(); err != nil {
		opts.State.ClearError()
		return err
	}
	if next > tx.Nonce() {
		return fmt.Errorf("%w: next nonce %v, tx nonce %v", core.ErrNonceTooLow, next, tx.Nonce())
	}
	cost := tx.Cost()
	if cost == nil {
		return fmt.Errorf("%w: cost overflows", core.ErrInsufficientFunds)
	}
	if balance.Cmp(cost) < 0 {
		return fmt.Errorf("%w: address %v have %v want %v", core.ErrInsufficientFunds, from, balance, cost)
	}
	spent := opts.ExistingExpenditure(from)
	if prev := opts.ExistingCost(from, tx.Nonce()); prev != nil {
		need := new(uint256.Int).Add(spent, cost)
		need.Sub(need, prev)
		if balance.Cmp(need) < 0 {
			return fmt.Errorf("%w: balance %v, queued cost %v, tx cost %v", core.ErrInsufficientFunds, balance, spent, cost)
		}
	} else {
		need, overflow := new(uint256.Int).AddOverflow(spent, cost)
		if overflow || balance.Cmp(need) < 0 {
			return fmt.Errorf("%w: balance %v, queued cost %v, tx cost %v", core.ErrInsufficientFunds, balance, spent, cost)
		}
		if used, left := opts.UsedAndLeftSlots(from); left <= 0 {
			return fmt.Errorf("%w: pooled %d txs", ErrAccountLimitExceeded, used)
		}
	}
	return nil
}
