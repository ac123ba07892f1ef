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

package filters

import (
	"context"
	"errors"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	errInvalidBlockRange = errors.New("invalid block range params")
	errUnknownBlock      = errors.New("unknown block")
	errExceedMaxTopics   = errors.New("exceed max topics")
)

// The maximum number of topic criteria allowed, vm.LOG4 - vm.LOG0
const maxTopics = 4

// Filter can be used to retrieve and filter logs.
type Filter struct {
	sys *FilterSystem

	addresses []common.Address
	topics    [][]common.Hash

	block      *common.Hash // Block hash if filtering a single block
	begin, end int64        // Range interval if filtering multiple blocks
}

// NewRangeFilter creates a new filter which inspects the blocks from begin to
// end. Negative numbers are block tags.
func (sys *FilterSystem) NewRangeFilter(begin, end int64, addresses []common.Address, topics [][]common.Hash) *Filter {
	filter := newFilter(sys, addresses, topics)
	filter.begin = begin
	filter.end = end
	return filter
}

// NewBlockFilter creates a new filter which directly inspects the contents of
// a block to figure out whether it is interesting or not.
func (sys *FilterSystem) NewBlockFilter(block common.Hash, addresses []common.Address, topics [][]common.Hash) *Filter {
	filter := newFilter(sys, addresses, topics)
	filter.block = &block
	return filter
}

func newFilter(sys *FilterSystem, addresses []common.Address, topics [][]common.Hash) *Filter {
	return &Filter{
		sys:       sys,
		addresses: addresses,
		topics:    topics,
	}
}

// resolveTag maps a block tag onto a height. Pending has no logs of its own
// and resolves to the head; earliest is the genesis.
func (f *Filter) resolveTag(number int64, head uint64) uint64 {
	switch rpc.BlockNumber(number) {
	case rpc.LatestBlockNumber, rpc.PendingBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
		return head
	case rpc.EarliestBlockNumber:
		return 0
	}
	return uint64(number)
}

// Logs searches the blockchain for matching log entries, returning all from
// the first block that contains matches, updating the start of the filter
// accordingly.
func (f *Filter) Logs(ctx context.Context) ([]*types.Log, error) {
	// If we're doing singleton block filtering, execute and return
	if f.block != nil {
		header, err := f.sys.backend.HeaderByHash(ctx, *f.block)
		if err != nil {
			return nil, err
		}
		if header == nil {
			return nil, errUnknownBlock
		}
		return f.blockLogs(ctx, header)
	}
	head := f.sys.backend.CurrentHeader().Number.Uint64()
	begin, end := f.resolveTag(f.begin, head), f.resolveTag(f.end, head)
	if begin > end {
		return nil, errInvalidBlockRange
	}
	if end > head {
		end = head
	}
	var logs []*types.Log
	for number := begin; number <= end; number++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := f.sys.backend.HeaderByNumber(ctx, rpc.BlockNumber(number))
		if err != nil {
			return nil, err
		}
		// Blocks below the fork point are not kept locally.
		if header == nil {
			continue
		}
		found, err := f.blockLogs(ctx, header)
		if err != nil {
			return nil, err
		}
		logs = append(logs, found...)
	}
	return logs, nil
}

// blockLogs returns the logs matching the filter criteria within a single block.
func (f *Filter) blockLogs(ctx context.Context, header *types.Header) ([]*types.Log, error) {
	if !bloomFilter(header.Bloom, f.addresses, f.topics) {
		return nil, nil
	}
	receipts, err := f.sys.backend.GetReceipts(ctx, header.Hash())
	if err != nil {
		return nil, err
	}
	var unfiltered []*types.Log
	for _, receipt := range receipts {
		unfiltered = append(unfiltered, receipt.Logs...)
	}
	return filterLogs(unfiltered, nil, nil, f.addresses, f.topics), nil
}

// filterLogs creates a slice of logs matching the given criteria.
func filterLogs(logs []*types.Log, fromBlock, toBlock *big.Int, addresses []common.Address, topics [][]common.Hash) []*types.Log {
	var check = func(log *types.Log) bool {
		if fromBlock != nil && fromBlock.Int64() >= 0 && fromBlock.Uint64() > log.BlockNumber {
			return false
		}
		if toBlock != nil && toBlock.Int64() >= 0 && toBlock.Uint64() < log.BlockNumber {
			return false
		}
		if len(addresses) > 0 && !slices.Contains(addresses, log.Address) {
			return false
		}
		// If the to filtered topics is greater than the amount of topics in logs, skip.
		if len(topics) > len(log.Topics) {
			return false
		}
		for i, sub := range topics {
			if len(sub) == 0 {
				continue // empty rule set == wildcard
			}
			if !slices.Contains(sub, log.Topics[i]) {
				return false
			}
		}
		return true
	}
	var ret []*types.Log
	for _, log := range logs {
		if check(log) {
			ret = append(ret, log)
		}
	}
	return ret
}

func bloomFilter(bloom types.Bloom, addresses []common.Address, topics [][]common.Hash) bool {
	if len(addresses) > 0 {
		var included bool
		for _, addr := range addresses {
			if bloom.Test(addr.Bytes()) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, sub := range topics {
		included := len(sub) == 0 // empty rule set == wildcard
		for _, topic := range sub {
			if bloom.Test(topic.Bytes()) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	return true
}
