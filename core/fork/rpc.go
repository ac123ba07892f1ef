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

package fork

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
)

// RPCSource serves remote state from a standard Ethereum JSON-RPC endpoint.
type RPCSource struct {
	client *ethclient.Client
	url    string
}

// DialRPCSource connects to the given endpoint.
func DialRPCSource(ctx context.Context, url string) (*RPCSource, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrFetchFailed, url, err)
	}
	return &RPCSource{client: ethclient.NewClient(c), url: url}, nil
}

// Account fetches balance, nonce and code concurrently.
func (s *RPCSource) Account(ctx context.Context, addr common.Address, block *big.Int) (*Account, error) {
	var (
		balance *big.Int
		nonce   uint64
		code    []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		balance, err = s.client.BalanceAt(gctx, addr, block)
		return err
	})
	g.Go(func() (err error) {
		nonce, err = s.client.NonceAt(gctx, addr, block)
		return err
	})
	g.Go(func() (err error) {
		code, err = s.client.CodeAt(gctx, addr, block)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: account %v: %v", ErrFetchFailed, addr, err)
	}
	bal, overflow := uint256.FromBig(balance)
	if overflow {
		return nil, fmt.Errorf("%w: account %v: balance overflow", ErrFetchFailed, addr)
	}
	return NewAccount(nonce, bal, code), nil
}

func (s *RPCSource) Storage(ctx context.Context, addr common.Address, key common.Hash, block *big.Int) (common.Hash, error) {
	val, err := s.client.StorageAt(ctx, addr, key, block)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: storage %v[%v]: %v", ErrFetchFailed, addr, key, err)
	}
	return common.BytesToHash(val), nil
}

func (s *RPCSource) Code(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error) {
	code, err := s.client.CodeAt(ctx, addr, block)
	if err != nil {
		return nil, fmt.Errorf("%w: code %v: %v", ErrFetchFailed, addr, err)
	}
	return code, nil
}

func (s *RPCSource) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := s.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", ErrFetchFailed, err)
	}
	return id, nil
}

func (s *RPCSource) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: block number: %v", ErrFetchFailed, err)
	}
	return n, nil
}

func (s *RPCSource) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	h, err := s.client.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("%w: header %v: %v", ErrFetchFailed, number, err)
	}
	return h, nil
}

// Close terminates the underlying connection.
func (s *RPCSource) Close() {
	s.client.Close()
}

// String implements fmt.Stringer.
func (s *RPCSource) String() string {
	return s.url
}
