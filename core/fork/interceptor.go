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
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"golang.org/x/time/rate"
)

var (
	fetchMeter        = metrics.NewRegisteredMeter("fork/fetch", nil)
	fetchFailureMeter = metrics.NewRegisteredMeter("fork/fetch/failure", nil)
	fetchTimer        = metrics.NewRegisteredTimer("fork/fetch/duration", nil)
)

// Handler performs a state read.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Interceptor wraps a state read. Implementations run their "before" logic,
// call next and run their "after" logic on the result.
// Interceptor 包装状态读取：先执行前置逻辑，调用 next，再对结果执行后置逻辑。
type Interceptor interface {
	Intercept(ctx context.Context, req *Request, next Handler) (*Response, error)
}

// Hooks is an interceptor built from a pair of typed hooks. Before may replace
// the request context or abort the read; After observes (and may replace) the
// error of the read.
type Hooks struct {
	Before func(ctx context.Context, req *Request) (context.Context, error)
	After  func(ctx context.Context, req *Request, res *Response, err error) error
}

// Intercept implements Interceptor.
func (h Hooks) Intercept(ctx context.Context, req *Request, next Handler) (*Response, error) {
	if h.Before != nil {
		var err error
		if ctx, err = h.Before(ctx, req); err != nil {
			return nil, err
		}
	}
	res, err := next(ctx, req)
	if h.After != nil {
		err = h.After(ctx, req, res, err)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Chain composes the interceptors around the source once. The first
// interceptor is the outermost one.
// Chain 在构造时一次性将拦截器组合到数据源外层，第一个拦截器位于最外层。
func Chain(source Source, interceptors ...Interceptor) Source {
	handler := Handler(func(ctx context.Context, req *Request) (*Response, error) {
		return dispatch(ctx, source, req)
	})
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic, next := interceptors[i], handler
		handler = func(ctx context.Context, req *Request) (*Response, error) {
			return ic.Intercept(ctx, req, next)
		}
	}
	return &chained{source: source, handler: handler}
}

func dispatch(ctx context.Context, source Source, req *Request) (*Response, error) {
	switch req.Kind {
	case KindAccount:
		acct, err := source.Account(ctx, req.Address, req.Block)
		if err != nil {
			return nil, err
		}
		return &Response{Account: acct}, nil
	case KindStorage:
		val, err := source.Storage(ctx, req.Address, req.Key, req.Block)
		if err != nil {
			return nil, err
		}
		return &Response{Value: val}, nil
	case KindCode:
		code, err := source.Code(ctx, req.Address, req.Block)
		if err != nil {
			return nil, err
		}
		return &Response{Code: code}, nil
	}
	return nil, fmt.Errorf("unknown request kind %v", req.Kind)
}

// chained is a source whose state reads are routed through a handler chain.
// Chain metadata queries go straight to the underlying source.
type chained struct {
	source  Source
	handler Handler
}

func (c *chained) Account(ctx context.Context, addr common.Address, block *big.Int) (*Account, error) {
	res, err := c.handler(ctx, &Request{Kind: KindAccount, Address: addr, Block: block})
	if err != nil {
		return nil, err
	}
	return res.Account, nil
}

func (c *chained) Storage(ctx context.Context, addr common.Address, key common.Hash, block *big.Int) (common.Hash, error) {
	res, err := c.handler(ctx, &Request{Kind: KindStorage, Address: addr, Key: key, Block: block})
	if err != nil {
		return common.Hash{}, err
	}
	return res.Value, nil
}

func (c *chained) Code(ctx context.Context, addr common.Address, block *big.Int) ([]byte, error) {
	res, err := c.handler(ctx, &Request{Kind: KindCode, Address: addr, Block: block})
	if err != nil {
		return nil, err
	}
	return res.Code, nil
}

func (c *chained) ChainID(ctx context.Context) (*big.Int, error) { return c.source.ChainID(ctx) }

func (c *chained) BlockNumber(ctx context.Context) (uint64, error) {
	return c.source.BlockNumber(ctx)
}

func (c *chained) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.source.HeaderByNumber(ctx, number)
}

// Timeout bounds every read attempt by d. A read that runs out of time fails
// with ErrFetchTimeout.
func Timeout(d time.Duration) Interceptor {
	return timeoutInterceptor(d)
}

type timeoutInterceptor time.Duration

func (t timeoutInterceptor) Intercept(ctx context.Context, req *Request, next Handler) (*Response, error) {
	if t <= 0 {
		return next(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(t))
	defer cancel()

	res, err := next(ctx, req)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %v: %v", ErrFetchTimeout, req, err)
	}
	return res, err
}

// Retry re-issues reads that failed with a retryable error, at most max extra
// times, waiting with exponential backoff in between. Cancellation of the
// caller's context stops retrying.
// Retry 以指数退避方式重试可重试的失败读取，最多 max 次。
func Retry(max uint64, initial time.Duration) Interceptor {
	return &retryInterceptor{max: max, initial: initial}
}

type retryInterceptor struct {
	max     uint64
	initial time.Duration
}

func (r *retryInterceptor) Intercept(ctx context.Context, req *Request, next Handler) (*Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initial
	policy.MaxElapsedTime = 0

	var res *Response
	operation := func() error {
		var err error
		res, err = next(ctx, req)
		req.Attempt++
		if err == nil {
			return nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		log.Debug("Retrying fork fetch", "req", req, "attempt", req.Attempt, "err", err)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, r.max), ctx)); err != nil {
		return nil, err
	}
	return res, nil
}

// retryable reports whether a failed read may succeed when attempted again.
func retryable(err error) bool {
	return errors.Is(err, ErrFetchTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// RateLimit throttles reads to r per second with the given burst.
func RateLimit(r float64, burst int) Interceptor {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return Hooks{
		Before: func(ctx context.Context, req *Request) (context.Context, error) {
			return ctx, limiter.Wait(ctx)
		},
	}
}

// Logging traces every read at debug level, and failures at warn level.
func Logging() Interceptor {
	return Hooks{
		After: func(ctx context.Context, req *Request, res *Response, err error) error {
			if err != nil {
				log.Warn("Fork fetch failed", "req", req, "attempt", req.Attempt, "err", err)
			} else {
				log.Debug("Fetched fork state", "req", req)
			}
			return err
		},
	}
}

// Metrics records read counts, failures and latency.
func Metrics() Interceptor {
	return &metricsInterceptor{}
}

type metricsInterceptor struct{}

func (metricsInterceptor) Intercept(ctx context.Context, req *Request, next Handler) (*Response, error) {
	start := time.Now()
	res, err := next(ctx, req)
	fetchMeter.Mark(1)
	fetchTimer.UpdateSince(start)
	if err != nil {
		fetchFailureMeter.Mark(1)
	}
	return res, err
}
