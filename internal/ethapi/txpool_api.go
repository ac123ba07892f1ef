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
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/evmts/tevm-node/core/txpool"
)

// TxPoolAPI offers and API for the transaction pool. It only operates on data that is non-confidential.
// TxPoolAPI 提供交易池的 API。
type TxPoolAPI struct {
	b Backend
}

// NewTxPoolAPI creates a new tx pool service that gives information about the transaction pool.
func NewTxPoolAPI(b Backend) *TxPoolAPI {
	return &TxPoolAPI{b}
}

// byNonce flattens one account's transactions into a map keyed by the decimal nonce.
func byNonce[T any](txs []*txpool.Transaction, format func(*txpool.Transaction) T) map[string]T {
	dump := make(map[string]T, len(txs))
	for _, tx := range txs {
		dump[strconv.FormatUint(tx.Nonce(), 10)] = format(tx)
	}
	return dump
}

// byAccount flattens the per-account lists, keyed by the checksummed address.
func byAccount[T any](content map[common.Address][]*txpool.Transaction, format func(*txpool.Transaction) T) map[string]map[string]T {
	dump := make(map[string]map[string]T, len(content))
	for account, txs := range content {
		dump[account.Hex()] = byNonce(txs, format)
	}
	return dump
}

func (api *TxPoolAPI) rpcFormatter() func(*txpool.Transaction) *RPCTransaction {
	head, config := api.b.CurrentHeader(), api.b.ChainConfig()
	return func(tx *txpool.Transaction) *RPCTransaction {
		return NewRPCPendingTransaction(tx.Tx, head, config)
	}
}

// Content returns the transactions contained within the transaction pool.
// Content 返回交易池中包含的交易。
func (api *TxPoolAPI) Content() map[string]map[string]map[string]*RPCTransaction {
	pending, queue := api.b.TxPoolContent()
	format := api.rpcFormatter()
	return map[string]map[string]map[string]*RPCTransaction{
		"pending": byAccount(pending, format),
		"queued":  byAccount(queue, format),
	}
}

// ContentFrom returns the transactions of one account contained within the transaction pool.
func (api *TxPoolAPI) ContentFrom(addr common.Address) map[string]map[string]*RPCTransaction {
	pending, queue := api.b.TxPoolContentFrom(addr)
	format := api.rpcFormatter()
	return map[string]map[string]*RPCTransaction{
		"pending": byNonce(pending, format),
		"queued":  byNonce(queue, format),
	}
}

// Status returns the number of pending and queued transaction in the pool.
// Status 返回池中挂起和排队的交易数量。
func (api *TxPoolAPI) Status() map[string]hexutil.Uint {
	pending, queue := api.b.Stats()
	return map[string]hexutil.Uint{
		"pending": hexutil.Uint(pending),
		"queued":  hexutil.Uint(queue),
	}
}

// Inspect retrieves the content of the transaction pool and flattens it into an
// easily inspectable list.
// Inspect 检索交易池的内容并将其扁平化为易于检查的列表。
func (api *TxPoolAPI) Inspect() map[string]map[string]map[string]string {
	pending, queue := api.b.TxPoolContent()
	return map[string]map[string]map[string]string{
		"pending": byAccount(pending, inspect),
		"queued":  byAccount(queue, inspect),
	}
}

func inspect(ptx *txpool.Transaction) string {
	tx := ptx.Tx
	if to := tx.To(); to != nil {
		return fmt.Sprintf("%s: %v wei + %v gas × %v wei", to.Hex(), tx.Value(), tx.Gas(), tx.GasPrice())
	}
	return fmt.Sprintf("contract creation: %v wei + %v gas × %v wei", tx.Value(), tx.Gas(), tx.GasPrice())
}
