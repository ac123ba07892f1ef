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
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Status is the current status of a transaction as seen by the pool.
type Status uint

const (
	StatusUnknown Status = iota
	StatusQueued
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Transaction is a pooled transaction together with its resolved sender.
// Transaction 是带有已解析发送者的池中交易。
type Transaction struct {
	Tx           *types.Transaction
	From         common.Address
	Impersonated bool      // Sender was not recovered from the signature
	Time         time.Time // Arrival time, used to break price ties
}

// NewTransaction recovers the sender of a signed transaction.
func NewTransaction(tx *types.Transaction, signer types.Signer) (*Transaction, error) {
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSender, err)
	}
	return &Transaction{Tx: tx, From: from, Time: time.Now()}, nil
}

// Impersonate attaches a placeholder signature to an unsigned transaction
// sent on behalf of from. The signature embeds the sender so that two
// otherwise identical transactions from different accounts hash differently.
// It never recovers to from, so the sender must always be taken from the
// returned wrapper.
// Impersonate 为代表 from 发送的未签名交易附加占位签名。
func Impersonate(tx *types.Transaction, from common.Address, signer types.Signer) (*Transaction, error) {
	sig := make([]byte, 65)
	copy(sig[12:32], from[:])
	sig[63] = 1
	signed, err := tx.WithSignature(signer, sig)
	if err != nil {
		return nil, err
	}
	return &Transaction{Tx: signed, From: from, Impersonated: true, Time: time.Now()}, nil
}

// Recover wraps a transaction taken out of a block or received raw. The
// placeholder signature of impersonated transactions is recognized, any other
// signature must recover.
func Recover(tx *types.Transaction, signer types.Signer) (*Transaction, error) {
	if from, ok := placeholderSender(tx); ok {
		return &Transaction{Tx: tx, From: from, Impersonated: true, Time: time.Now()}, nil
	}
	return NewTransaction(tx, signer)
}

// Sender returns the sender of a signed or impersonated transaction.
func Sender(signer types.Signer, tx *types.Transaction) (common.Address, error) {
	if from, ok := placeholderSender(tx); ok {
		return from, nil
	}
	return types.Sender(signer, tx)
}

// placeholderSender decodes the sender embedded by Impersonate: s is one and
// r holds the address.
func placeholderSender(tx *types.Transaction) (common.Address, bool) {
	_, r, s := tx.RawSignatureValues()
	if r == nil || s == nil || s.Cmp(common.Big1) != 0 || r.BitLen() > 8*common.AddressLength {
		return common.Address{}, false
	}
	return common.BigToAddress(r), true
}

// Hash returns the transaction hash.
func (t *Transaction) Hash() common.Hash {
	return t.Tx.Hash()
}

// Nonce returns the sender nonce of the transaction.
func (t *Transaction) Nonce() uint64 {
	return t.Tx.Nonce()
}

// Cost returns gas * gasFeeCap + value, nil if it overflows 256 bits.
func (t *Transaction) Cost() *uint256.Int {
	cost, overflow := uint256.FromBig(t.Tx.Cost())
	if overflow {
		return nil
	}
	return cost
}

// TxEventKind distinguishes pool events.
type TxEventKind int

const (
	TxAdded TxEventKind = iota
	TxRemoved
)

func (k TxEventKind) String() string {
	if k == TxAdded {
		return "txadded"
	}
	return "txremoved"
}

// Reasons attached to TxRemoved events.
const (
	ReasonMined       = "mined"
	ReasonDropped     = "dropped"
	ReasonReplaced    = "replaced"
	ReasonEvicted     = "evicted"
	ReasonInvalidated = "invalidated"
)

// TxEvent is posted after every pool mutation, in mutation order.
// TxEvent 在每次交易池修改后按修改顺序发布。
type TxEvent struct {
	Kind    TxEventKind
	Txs     []*Transaction
	Reason  string // Only set for TxRemoved
	Version uint64 // Pool version after the mutation
}
