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
	"math"
	"math/big"
	"slices"
	"sync"

	"github.com/holiman/uint256"
)

// nonceHeap is a heap.Interface implementation over 64bit unsigned integers for
// retrieving sorted transactions from the possibly gapped future queue.
// nonceHeap 是一个在 64 位无符号整数上实现 heap.Interface 的结构。
type nonceHeap []uint64

func (h nonceHeap) Len() int           { return len(h) }
func (h nonceHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h nonceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *nonceHeap) Push(x interface{}) {
	*h = append(*h, x.(uint64))
}

func (h *nonceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// sortedMap is a nonce->transaction map with a heap based index to allow
// iterating over the contents in a nonce-incrementing way. Mutations happen
// under the pool write lock; the sorted cache is also filled by readers.
type sortedMap struct {
	items   map[uint64]*Transaction
	index   *nonceHeap
	cache   []*Transaction // Cache of the transactions already sorted
	cacheMu sync.Mutex     // Mutex covering the cache
}

func newSortedMap() *sortedMap {
	return &sortedMap{
		items: make(map[uint64]*Transaction),
		index: new(nonceHeap),
	}
}

// Get retrieves the current transactions associated with the given nonce.
func (m *sortedMap) Get(nonce uint64) *Transaction {
	return m.items[nonce]
}

// Put inserts a new transaction into the map, also updating the map's nonce
// index. If a transaction already exists with the same nonce, it's overwritten.
func (m *sortedMap) Put(tx *Transaction) {
	nonce := tx.Nonce()
	if m.items[nonce] == nil {
		heap.Push(m.index, nonce)
	}
	m.cacheMu.Lock()
	m.items[nonce], m.cache = tx, nil
	m.cacheMu.Unlock()
}

// Forward removes all transactions from the map with a nonce lower than the
// provided threshold.
// Forward 从映射中删除所有 nonce 低于给定阈值的交易。
func (m *sortedMap) Forward(threshold uint64) []*Transaction {
	var removed []*Transaction
	for m.index.Len() > 0 && (*m.index)[0] < threshold {
		nonce := heap.Pop(m.index).(uint64)
		removed = append(removed, m.items[nonce])
		delete(m.items, nonce)
	}
	m.cacheMu.Lock()
	if m.cache != nil {
		m.cache = m.cache[len(removed):]
	}
	m.cacheMu.Unlock()
	return removed
}

// Filter removes all transactions for which the function evaluates to true and
// rebuilds the index.
func (m *sortedMap) Filter(filter func(*Transaction) bool) []*Transaction {
	removed := m.filter(filter)
	if len(removed) > 0 {
		m.reheap()
	}
	return removed
}

func (m *sortedMap) reheap() {
	*m.index = make([]uint64, 0, len(m.items))
	for nonce := range m.items {
		*m.index = append(*m.index, nonce)
	}
	heap.Init(m.index)
	m.resetCache()
}

func (m *sortedMap) resetCache() {
	m.cacheMu.Lock()
	m.cache = nil
	m.cacheMu.Unlock()
}

// filter is identical to Filter, but does not regenerate the heap.
func (m *sortedMap) filter(filter func(*Transaction) bool) []*Transaction {
	var removed []*Transaction
	for nonce, tx := range m.items {
		if filter(tx) {
			removed = append(removed, tx)
			delete(m.items, nonce)
		}
	}
	if len(removed) > 0 {
		m.resetCache()
	}
	return removed
}

// Cap places a hard limit on the number of items, returning all transactions
// exceeding that limit, highest nonces first.
func (m *sortedMap) Cap(threshold int) []*Transaction {
	if len(m.items) <= threshold {
		return nil
	}
	var drops []*Transaction
	slices.Sort(*m.index)
	for size := len(m.items); size > threshold; size-- {
		drops = append(drops, m.items[(*m.index)[size-1]])
		delete(m.items, (*m.index)[size-1])
	}
	// A sorted slice is still a valid heap.
	*m.index = (*m.index)[:threshold]
	m.resetCache()
	return drops
}

// Remove deletes a transaction from the map, returning whether it was found.
func (m *sortedMap) Remove(nonce uint64) bool {
	if _, ok := m.items[nonce]; !ok {
		return false
	}
	for i := 0; i < m.index.Len(); i++ {
		if (*m.index)[i] == nonce {
			heap.Remove(m.index, i)
			break
		}
	}
	delete(m.items, nonce)
	m.resetCache()
	return true
}

// Ready retrieves a sequentially increasing list of transactions starting at the
// provided nonce that is ready for processing. The returned transactions are
// removed from the map.
// Ready 检索从给定 nonce 开始按顺序递增的可处理交易，并将其从映射中删除。
func (m *sortedMap) Ready(start uint64) []*Transaction {
	if m.index.Len() == 0 || (*m.index)[0] != start {
		return nil
	}
	var ready []*Transaction
	for next := start; m.index.Len() > 0 && (*m.index)[0] == next; next++ {
		ready = append(ready, m.items[next])
		delete(m.items, next)
		heap.Pop(m.index)
	}
	m.resetCache()
	return ready
}

func (m *sortedMap) Len() int {
	return len(m.items)
}

func (m *sortedMap) flatten() []*Transaction {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if m.cache == nil {
		m.cache = make([]*Transaction, 0, len(m.items))
		for _, tx := range m.items {
			m.cache = append(m.cache, tx)
		}
		slices.SortFunc(m.cache, func(a, b *Transaction) int {
			switch {
			case a.Nonce() < b.Nonce():
				return -1
			case a.Nonce() > b.Nonce():
				return 1
			}
			return 0
		})
	}
	return m.cache
}

// Flatten returns a nonce-sorted copy of the transactions.
func (m *sortedMap) Flatten() []*Transaction {
	return slices.Clone(m.flatten())
}

// LastElement returns the transaction with the highest nonce.
func (m *sortedMap) LastElement() *Transaction {
	cache := m.flatten()
	return cache[len(cache)-1]
}

// list is the set of transactions of one account, sorted by nonce. The same
// type stores the contiguous pending transactions (strict) and the possibly
// gapped queued ones.
// list 是属于一个账户的按 nonce 排序的交易列表。
type list struct {
	strict bool
	txs    *sortedMap

	costcap   *uint256.Int // Price of the highest costing transaction (reset only if exceeds balance)
	gascap    uint64       // Gas limit of the highest spending transaction (reset only if exceeds block limit)
	totalcost *uint256.Int // Total cost of all transactions in the list
}

func newList(strict bool) *list {
	return &list{
		strict:    strict,
		txs:       newSortedMap(),
		costcap:   new(uint256.Int),
		totalcost: new(uint256.Int),
	}
}

// Contains returns whether the list contains a transaction with the nonce.
func (l *list) Contains(nonce uint64) bool {
	return l.txs.Get(nonce) != nil
}

// Get returns the transaction with the nonce, if any.
func (l *list) Get(nonce uint64) *Transaction {
	return l.txs.Get(nonce)
}

// Add tries to insert a new transaction into the list, returning whether the
// transaction was accepted, and if yes, any previous transaction it replaced.
// A replacement needs both the fee cap and the tip to be higher than the old
// ones by at least priceBump percent.
// Add 尝试将新交易插入列表，返回是否被接受以及被替换的旧交易。
func (l *list) Add(tx *Transaction, priceBump uint64) (bool, *Transaction) {
	old := l.txs.Get(tx.Nonce())
	if old != nil {
		if old.Tx.GasFeeCapCmp(tx.Tx) >= 0 || old.Tx.GasTipCapCmp(tx.Tx) >= 0 {
			return false, nil
		}
		// threshold = old * (100 + priceBump) / 100
		a := big.NewInt(100 + int64(priceBump))
		aFeeCap := new(big.Int).Mul(a, old.Tx.GasFeeCap())
		aTip := a.Mul(a, old.Tx.GasTipCap())

		b := big.NewInt(100)
		thresholdFeeCap := aFeeCap.Div(aFeeCap, b)
		thresholdTip := aTip.Div(aTip, b)

		if tx.Tx.GasFeeCapIntCmp(thresholdFeeCap) < 0 || tx.Tx.GasTipCapIntCmp(thresholdTip) < 0 {
			return false, nil
		}
		l.subTotalCost([]*Transaction{old})
	}
	cost, overflow := uint256.FromBig(tx.Tx.Cost())
	if overflow {
		return false, nil
	}
	l.totalcost.Add(l.totalcost, cost)

	l.txs.Put(tx)
	if l.costcap.Cmp(cost) < 0 {
		l.costcap = cost
	}
	if gas := tx.Tx.Gas(); l.gascap < gas {
		l.gascap = gas
	}
	return true, old
}

// Forward removes all transactions with a nonce lower than the threshold.
func (l *list) Forward(threshold uint64) []*Transaction {
	txs := l.txs.Forward(threshold)
	l.subTotalCost(txs)
	return txs
}

// Filter removes all transactions with a cost or gas limit higher than the
// provided thresholds. In strict mode every transaction above the lowest
// removed nonce is returned as well, as the second result.
func (l *list) Filter(costLimit *uint256.Int, gasLimit uint64) ([]*Transaction, []*Transaction) {
	if l.costcap.Cmp(costLimit) <= 0 && l.gascap <= gasLimit {
		return nil, nil
	}
	l.costcap = new(uint256.Int).Set(costLimit)
	l.gascap = gasLimit

	limit := costLimit.ToBig()
	removed := l.txs.Filter(func(tx *Transaction) bool {
		return tx.Tx.Gas() > gasLimit || tx.Tx.Cost().Cmp(limit) > 0
	})
	if len(removed) == 0 {
		return nil, nil
	}
	var invalids []*Transaction
	if l.strict {
		lowest := uint64(math.MaxUint64)
		for _, tx := range removed {
			if nonce := tx.Nonce(); lowest > nonce {
				lowest = nonce
			}
		}
		invalids = l.txs.filter(func(tx *Transaction) bool { return tx.Nonce() > lowest })
	}
	l.subTotalCost(removed)
	l.subTotalCost(invalids)
	l.txs.reheap()
	return removed, invalids
}

// Cap places a hard limit on the number of items.
func (l *list) Cap(threshold int) []*Transaction {
	txs := l.txs.Cap(threshold)
	l.subTotalCost(txs)
	return txs
}

// Remove deletes a transaction from the list, returning whether it was found
// and, in strict mode, the transactions it left gapped.
func (l *list) Remove(tx *Transaction) (bool, []*Transaction) {
	nonce := tx.Nonce()
	if removed := l.txs.Remove(nonce); !removed {
		return false, nil
	}
	l.subTotalCost([]*Transaction{tx})
	if l.strict {
		txs := l.txs.Filter(func(tx *Transaction) bool { return tx.Nonce() > nonce })
		l.subTotalCost(txs)
		return true, txs
	}
	return true, nil
}

// Ready removes and returns the contiguous run of transactions starting at
// the given nonce.
func (l *list) Ready(start uint64) []*Transaction {
	txs := l.txs.Ready(start)
	l.subTotalCost(txs)
	return txs
}

func (l *list) Len() int {
	return l.txs.Len()
}

func (l *list) Empty() bool {
	return l.Len() == 0
}

// Flatten returns the transactions sorted by nonce.
func (l *list) Flatten() []*Transaction {
	return l.txs.Flatten()
}

// LastElement returns the transaction with the highest nonce.
func (l *list) LastElement() *Transaction {
	return l.txs.LastElement()
}

// TotalCost returns the cumulative cost of the listed transactions.
func (l *list) TotalCost() *uint256.Int {
	return new(uint256.Int).Set(l.totalcost)
}

func (l *list) subTotalCost(txs []*Transaction) {
	for _, tx := range txs {
		_, underflow := l.totalcost.SubOverflow(l.totalcost, tx.Cost())
		if underflow {
			panic("totalcost underflow")
		}
	}
}

// priceHeap orders transactions cheapest first, used to pick eviction victims
// when the pool is full. With a base fee set, the effective tip decides first.
// priceHeap 按价格从低到高排序交易，用于在交易池已满时选择驱逐对象。
type priceHeap struct {
	baseFee *big.Int
	list    []*Transaction
}

func (h *priceHeap) Len() int      { return len(h.list) }
func (h *priceHeap) Swap(i, j int) { h.list[i], h.list[j] = h.list[j], h.list[i] }

func (h *priceHeap) Less(i, j int) bool {
	switch h.cmp(h.list[i], h.list[j]) {
	case -1:
		return true
	case 1:
		return false
	default:
		// Same price: evict the highest nonce first, it unblocks nothing.
		return h.list[i].Nonce() > h.list[j].Nonce()
	}
}

func (h *priceHeap) cmp(a, b *Transaction) int {
	if h.baseFee != nil {
		if c := a.Tx.EffectiveGasTipCmp(b.Tx, h.baseFee); c != 0 {
			return c
		}
	}
	if c := a.Tx.GasFeeCapCmp(b.Tx); c != 0 {
		return c
	}
	return a.Tx.GasTipCapCmp(b.Tx)
}

func (h *priceHeap) Push(x interface{}) {
	h.list = append(h.list, x.(*Transaction))
}

func (h *priceHeap) Pop() interface{} {
	old := h.list
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	h.list = old[0 : n-1]
	return x
}
