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
	"container/heap"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// txWithMinerFee wraps a transaction with its effective miner tip.
// txWithMinerFee 将交易与其有效的矿工小费封装在一起。
type txWithMinerFee struct {
	tx   *Transaction
	fees *uint256.Int
}

// newTxWithMinerFee creates a wrapped transaction, calculating the effective
// miner tip if a base fee is provided. Returns an error in case of a negative
// effective tip.
func newTxWithMinerFee(tx *Transaction, baseFee *uint256.Int) (*txWithMinerFee, error) {
	tipCap, _ := uint256.FromBig(tx.Tx.GasTipCap())
	tip := tipCap
	if baseFee != nil {
		feeCap, _ := uint256.FromBig(tx.Tx.GasFeeCap())
		if feeCap.Cmp(baseFee) < 0 {
			return nil, types.ErrGasFeeCapTooLow
		}
		tip = new(uint256.Int).Sub(feeCap, baseFee)
		if tip.Gt(tipCap) {
			tip = tipCap
		}
	}
	return &txWithMinerFee{tx: tx, fees: tip}, nil
}

// txByPriceAndTime implements both the sort and the heap interface: highest
// tip first, earliest arrival on ties, hash as the final tie-break so that
// the order is deterministic.
type txByPriceAndTime []*txWithMinerFee

func (s txByPriceAndTime) Len() int { return len(s) }
func (s txByPriceAndTime) Less(i, j int) bool {
	cmp := s[i].fees.Cmp(s[j].fees)
	if cmp != 0 {
		return cmp > 0
	}
	if !s[i].tx.Time.Equal(s[j].tx.Time) {
		return s[i].tx.Time.Before(s[j].tx.Time)
	}
	hi, hj := s[i].tx.Hash(), s[j].tx.Hash()
	return hi.Cmp(hj) < 0
}
func (s txByPriceAndTime) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *txByPriceAndTime) Push(x interface{}) {
	*s = append(*s, x.(*txWithMinerFee))
}

func (s *txByPriceAndTime) Pop() interface{} {
	old := *s
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*s = old[0 : n-1]
	return x
}

// TransactionsByPriceAndNonce represents a set of transactions that can return
// transactions in a profit-maximizing sorted order, while supporting removing
// entire batches of transactions for non-executable accounts.
// TransactionsByPriceAndNonce 以利润最大化的顺序返回交易，同时遵循每个账户的 nonce 顺序。
type TransactionsByPriceAndNonce struct {
	txs     map[common.Address][]*Transaction // Per account nonce-sorted list of transactions
	heads   txByPriceAndTime                  // Next transaction for each unique account (price heap)
	baseFee *uint256.Int
}

// NewTransactionsByPriceAndNonce creates a transaction set that can retrieve
// price sorted transactions in a nonce-honouring way. Accounts whose next
// transaction cannot pay the base fee are left out entirely.
//
// Note, the input map is reowned so the caller should not interact any more with
// it after providing it to the constructor.
func NewTransactionsByPriceAndNonce(txs map[common.Address][]*Transaction, baseFee *big.Int) *TransactionsByPriceAndNonce {
	var baseFeeUint *uint256.Int
	if baseFee != nil {
		baseFeeUint = uint256.MustFromBig(baseFee)
	}
	heads := make(txByPriceAndTime, 0, len(txs))
	for from, accTxs := range txs {
		if len(accTxs) == 0 {
			delete(txs, from)
			continue
		}
		wrapped, err := newTxWithMinerFee(accTxs[0], baseFeeUint)
		if err != nil {
			delete(txs, from)
			continue
		}
		heads = append(heads, wrapped)
		txs[from] = accTxs[1:]
	}
	heap.Init(&heads)

	return &TransactionsByPriceAndNonce{
		txs:     txs,
		heads:   heads,
		baseFee: baseFeeUint,
	}
}

// Peek returns the next transaction by price.
func (t *TransactionsByPriceAndNonce) Peek() (*Transaction, *uint256.Int) {
	if len(t.heads) == 0 {
		return nil, nil
	}
	return t.heads[0].tx, t.heads[0].fees
}

// Shift replaces the current best head with the next one from the same account.
// Shift 将当前最佳头部替换为同一账户的下一个交易。
func (t *TransactionsByPriceAndNonce) Shift() {
	acc := t.heads[0].tx.From
	if txs, ok := t.txs[acc]; ok && len(txs) > 0 {
		if wrapped, err := newTxWithMinerFee(txs[0], t.baseFee); err == nil {
			t.heads[0], t.txs[acc] = wrapped, txs[1:]
			heap.Fix(&t.heads, 0)
			return
		}
	}
	heap.Pop(&t.heads)
}

// Pop removes the best transaction, *not* replacing it with the next one from
// the same account. This should be used when a transaction cannot be executed
// and hence all subsequent ones should be discarded from the same account.
func (t *TransactionsByPriceAndNonce) Pop() {
	heap.Pop(&t.heads)
}

// Empty returns if the price heap is empty.
func (t *TransactionsByPriceAndNonce) Empty() bool {
	return len(t.heads) == 0
}

// Clear removes the entire content of the heap.
func (t *TransactionsByPriceAndNonce) Clear() {
	t.heads, t.txs = nil, nil
}

// Drain returns the whole remaining sequence, consuming the set.
func (t *TransactionsByPriceAndNonce) Drain() []*Transaction {
	var out []*Transaction
	for {
		tx, _ := t.Peek()
		if tx == nil {
			return out
		}
		out = append(out, tx)
		t.Shift()
	}
}
