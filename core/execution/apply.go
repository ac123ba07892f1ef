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
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
)

// Env is the block environment transactions are applied in: the header of
// the block being built, not yet sealed.
// Env 是应用交易的区块环境。
type Env struct {
	Config   *params.ChainConfig
	Chain    core.ChainContext
	Header   *types.Header
	VMConfig vm.Config
}

// NewEnv creates the environment of the block with the given header.
func NewEnv(config *params.ChainConfig, chain core.ChainContext, header *types.Header) *Env {
	return &Env{Config: config, Chain: chain, Header: header}
}

// NewEVM creates an EVM executing in this block on top of statedb.
func (env *Env) NewEVM(statedb *state.StateDB, cfg vm.Config) *vm.EVM {
	blockCtx := core.NewEVMBlockContext(env.Header, env.Chain, nil)
	return vm.NewEVM(blockCtx, statedb, env.Config, cfg)
}

// TransactionToMessage converts a pooled transaction into a message. The
// sender is taken from the pool wrapper, since impersonated transactions
// carry no recoverable signature. Impersonated senders may hold code.
func TransactionToMessage(tx *txpool.Transaction, baseFee *big.Int) *gethcore.Message {
	msg := &gethcore.Message{
		From:             tx.From,
		To:               tx.Tx.To(),
		Nonce:            tx.Tx.Nonce(),
		Value:            tx.Tx.Value(),
		GasLimit:         tx.Tx.Gas(),
		GasPrice:         new(big.Int).Set(tx.Tx.GasPrice()),
		GasFeeCap:        new(big.Int).Set(tx.Tx.GasFeeCap()),
		GasTipCap:        new(big.Int).Set(tx.Tx.GasTipCap()),
		Data:             tx.Tx.Data(),
		AccessList:       tx.Tx.AccessList(),
		SkipFromEOACheck: tx.Impersonated,
	}
	// If baseFee provided, set gasPrice to effectiveGasPrice.
	if baseFee != nil {
		msg.GasPrice = msg.GasPrice.Add(msg.GasTipCap, baseFee)
		if msg.GasPrice.Cmp(msg.GasFeeCap) > 0 {
			msg.GasPrice.Set(msg.GasFeeCap)
		}
	}
	return msg
}

// ApplyTransaction applies a pooled transaction to statedb inside a
// checkpoint and returns its receipt. The checkpoint is committed if the
// transaction was included (even if the EVM reverted), and reverted if a
// consensus pre-check failed, in which case the gas pool is restored too and
// the error is returned. A failed remote read reverts the transaction and is
// reported as ErrStateUnavailable.
//
// usedGas accumulates the gas used by the block so far.
// ApplyTransaction 在检查点内将交易应用到 statedb 并返回收据。
func ApplyTransaction(env *Env, statedb *state.StateDB, gp *gethcore.GasPool, tx *txpool.Transaction, index int, usedGas *uint64) (*types.Receipt, error) {
	msg := TransactionToMessage(tx, env.Header.BaseFee)
	evm := env.NewEVM(statedb, env.VMConfig)
	evm.SetTxContext(gethcore.NewEVMTxContext(msg))

	gasLeft := gp.Gas()
	statedb.Checkpoint()
	statedb.SetTxContext(tx.Hash(), index)

	result, err := gethcore.ApplyMessage(evm, msg, gp)
	if dbErr := statedb.Error(); dbErr != nil {
		statedb.Revert()
		statedb.ClearError()
		gp.SetGas(gasLeft)
		return nil, fmt.Errorf("%w: tx %s: %w", ErrStateUnavailable, tx.Hash().Hex(), dbErr)
	}
	if err != nil {
		statedb.Revert()
		gp.SetGas(gasLeft)
		return nil, fmt.Errorf("could not apply tx %d [%v]: %w", index, tx.Hash().Hex(), err)
	}
	statedb.Finalise(true)
	if err := statedb.Commit(); err != nil {
		return nil, err
	}
	*usedGas += result.UsedGas

	receipt := &types.Receipt{
		Type:              tx.Tx.Type(),
		CumulativeGasUsed: *usedGas,
		TxHash:            tx.Hash(),
		GasUsed:           result.UsedGas,
		EffectiveGasPrice: new(big.Int).Set(msg.GasPrice),
		BlockNumber:       new(big.Int).Set(env.Header.Number),
		TransactionIndex:  uint(index),
	}
	if result.Failed() {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		receipt.Status = types.ReceiptStatusSuccessful
	}
	if msg.To == nil {
		receipt.ContractAddress = crypto.CreateAddress(msg.From, tx.Nonce())
	}
	receipt.Logs = statedb.GetLogs(tx.Hash(), env.Header.Number.Uint64(), common.Hash{})
	if receipt.Logs == nil {
		receipt.Logs = []*types.Log{}
	}
	receipt.Bloom = logsBloom(receipt.Logs)
	return receipt, nil
}

func logsBloom(logs []*types.Log) types.Bloom {
	var bin types.Bloom
	for _, log := range logs {
		bin.Add(log.Address.Bytes())
		for _, topic := range log.Topics {
			bin.Add(topic[:])
		}
	}
	return bin
}
