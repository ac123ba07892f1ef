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

// Package execution runs messages through the EVM: read-only calls against a
// throwaway copy of some state, gas estimation, access list creation, and the
// checkpointed transaction path used when building blocks.
package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/eth/tracers/logger"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/state"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/holiman/uint256"
)

// ErrExecutionAborted is returned when a call ran past its deadline.
var ErrExecutionAborted = errors.New("execution aborted")

// Config are the limits applied to calls.
type Config struct {
	GasCap  uint64        // Upper bound of the gas of a call, 0 for none
	Timeout time.Duration // Upper bound of the duration of a call, 0 for none
}

// DefaultConfig contains the default call limits.
var DefaultConfig = Config{
	GasCap:  50_000_000,
	Timeout: 5 * time.Second,
}

// PendingStateProvider serves the state of the "pending" block tag.
type PendingStateProvider interface {
	PendingState(ctx context.Context) (*types.Header, *state.StateDB, error)
}

// Accounts gives access to the keys of locally managed accounts.
type Accounts interface {
	// Key returns the private key of addr, nil if the account is not managed.
	Key(addr common.Address) *ecdsa.PrivateKey
}

// Submitter queues transactions derived from calls.
type Submitter interface {
	PoolNonce(addr common.Address) uint64
	SubmitTransaction(ctx context.Context, tx *txpool.Transaction) error
}

// Pipeline executes calls on copies of the chain state. It never writes the
// canonical state: transactions derived from calls go through the Submitter.
// Pipeline 在链状态的副本上执行调用，从不写入规范状态。
type Pipeline struct {
	config   Config
	chain    *core.BlockChain
	pending  PendingStateProvider
	accounts Accounts
	submit   Submitter
}

// NewPipeline creates a pipeline on top of the chain.
func NewPipeline(config Config, chain *core.BlockChain) *Pipeline {
	return &Pipeline{config: config, chain: chain}
}

// SetPendingState sets the provider of the pending state. Without one,
// "pending" resolves to the head state.
func (p *Pipeline) SetPendingState(provider PendingStateProvider) { p.pending = provider }

// SetAccounts sets the local accounts used to sign call transactions.
func (p *Pipeline) SetAccounts(accounts Accounts) { p.accounts = accounts }

// SetSubmitter sets the sink of call transactions.
func (p *Pipeline) SetSubmitter(submit Submitter) { p.submit = submit }

// Config returns the call limits.
func (p *Pipeline) Config() Config { return p.config }

// StateAndHeader resolves a block tag to a private copy of its state and its
// header. A nil tag is the latest block.
// StateAndHeader 将区块标签解析为其状态的私有副本及其头部。
func (p *Pipeline) StateAndHeader(ctx context.Context, tag *rpc.BlockNumberOrHash) (*state.StateDB, *types.Header, error) {
	if tag == nil {
		latest := rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)
		tag = &latest
	}
	if number, ok := tag.Number(); ok {
		switch number {
		case rpc.PendingBlockNumber:
			if p.pending != nil {
				header, statedb, err := p.pending.PendingState(ctx)
				if err != nil {
					return nil, nil, err
				}
				return statedb, header, nil
			}
			header, statedb := p.chain.HeadState()
			return statedb, header, nil
		case rpc.LatestBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
			header, statedb := p.chain.HeadState()
			return statedb, header, nil
		}
		if number < 0 {
			return nil, nil, invalid("blockTag", "unknown block tag %d", number)
		}
		header := p.chain.GetHeaderByNumber(uint64(number))
		if header == nil {
			return nil, nil, fmt.Errorf("%w: #%d", core.ErrUnknownBlock, number)
		}
		statedb, err := p.chain.StateAt(uint64(number))
		if err != nil {
			return nil, nil, err
		}
		return statedb, header, nil
	}
	if hash, ok := tag.Hash(); ok {
		header := p.chain.GetHeaderByHash(hash)
		if header == nil {
			return nil, nil, fmt.Errorf("%w: %x", core.ErrUnknownBlock, hash)
		}
		if tag.RequireCanonical {
			if canon := p.chain.GetHeaderByNumber(header.Number.Uint64()); canon == nil || canon.Hash() != hash {
				return nil, nil, fmt.Errorf("hash %x is not currently canonical", hash)
			}
		}
		statedb, err := p.chain.StateAt(header.Number.Uint64())
		if err != nil {
			return nil, nil, err
		}
		return statedb, header, nil
	}
	return nil, nil, invalid("blockTag", "neither block number nor hash specified")
}

// callEnv is the block environment of a call with its overrides applied.
type callEnv struct {
	blockCtx    vm.BlockContext
	rules       params.Rules
	precompiles vm.PrecompiledContracts
}

// prepare applies the overrides of args to statedb and fills in the call
// defaults of args.
func (p *Pipeline) prepare(header *types.Header, statedb *state.StateDB, args *CallParams) (*callEnv, error) {
	blockCtx := core.NewEVMBlockContext(header, p.chain, nil)
	args.BlockOverrides.Apply(&blockCtx)

	rules := p.chain.Config().Rules(blockCtx.BlockNumber, blockCtx.Random != nil, blockCtx.Time)
	precompiles := vm.ActivePrecompiledContracts(rules)
	if err := args.StateOverrides.Apply(statedb, precompiles); err != nil {
		return nil, err
	}
	args.callDefaults(p.config.GasCap, blockCtx.BaseFee)
	return &callEnv{blockCtx: blockCtx, rules: rules, precompiles: precompiles}, nil
}

// topUp raises the balance of the sender so it can pay for the message.
func topUp(statedb *state.StateDB, msg *gethcore.Message) {
	need := new(big.Int).Mul(new(big.Int).SetUint64(msg.GasLimit), msg.GasFeeCap)
	need.Add(need, msg.Value)
	amount, overflow := uint256.FromBig(need)
	if overflow {
		amount = new(uint256.Int).SetAllOne()
	}
	if statedb.GetBalance(msg.From).Cmp(amount) < 0 {
		statedb.SetBalance(msg.From, amount)
	}
}

// run applies msg to statedb. A failed remote read takes precedence over any
// other outcome, since it may masquerade as e.g. an out-of-gas.
func (p *Pipeline) run(ctx context.Context, env *callEnv, statedb *state.StateDB, msg *gethcore.Message, hooks *tracing.Hooks) (*gethcore.ExecutionResult, error) {
	blockCtx := env.blockCtx
	// Lower the basefee to 0 to avoid breaking EVM
	// invariants (basefee < feecap).
	if msg.GasPrice.Sign() == 0 {
		blockCtx.BaseFee = new(big.Int)
	}
	statedb.SetLogger(hooks)
	defer statedb.SetLogger(nil)

	evm := vm.NewEVM(blockCtx, statedb, p.chain.Config(), vm.Config{Tracer: hooks, NoBaseFee: true})
	evm.SetPrecompiles(env.precompiles)
	evm.SetTxContext(gethcore.NewEVMTxContext(msg))

	var cancel context.CancelFunc
	if p.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	statedb.SetContext(ctx)

	// Wait for the context to be done and cancel the evm. Even if the
	// EVM has finished, cancelling may be done (repeatedly)
	go func() {
		<-ctx.Done()
		evm.Cancel()
	}()
	result, err := gethcore.ApplyMessage(evm, msg, new(gethcore.GasPool).AddGas(msg.GasLimit))
	if dbErr := statedb.Error(); dbErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrStateUnavailable, dbErr)
	}
	if evm.Cancelled() {
		return nil, fmt.Errorf("%w (timeout = %v)", ErrExecutionAborted, p.config.Timeout)
	}
	if err != nil {
		return result, fmt.Errorf("err: %w (supplied gas %d)", err, msg.GasLimit)
	}
	return result, nil
}

// Call executes a raw call on a copy of the state of the requested block.
// Call 在所请求区块状态的副本上执行原始调用。
func (p *Pipeline) Call(ctx context.Context, args *CallParams) (*CallResult, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	return p.call(ctx, args.copy())
}

// call runs validated args, which it owns.
func (p *Pipeline) call(ctx context.Context, args *CallParams) (*CallResult, error) {
	defer func(start time.Time) { log.Debug("Executing EVM call finished", "runtime", time.Since(start)) }(time.Now())

	statedb, header, err := p.StateAndHeader(ctx, args.BlockTag)
	if err != nil {
		return nil, err
	}
	statedb.SetContext(ctx)

	orig := *args
	env, err := p.prepare(header, statedb, args)
	if err != nil {
		if errors.Is(err, ErrStateUnavailable) {
			return &CallResult{Error: fetchError(err)}, nil
		}
		return nil, err
	}
	msg := args.toMessage(env.blockCtx.BaseFee, statedb.GetNonce(args.from()))
	if args.SkipBalance {
		topUp(statedb, msg)
	}
	var (
		created *common.Address
		tracer  *CallTracer
		acl     *logger.AccessListTracer
		hooks   []*tracing.Hooks
	)
	if msg.To == nil {
		addr := crypto.CreateAddress(msg.From, statedb.GetNonce(msg.From))
		created = &addr
	}
	if args.CreateTrace {
		tracer = NewCallTracer()
		hooks = append(hooks, tracer.Hooks())
	}
	if args.CreateAccessList {
		to := created
		if msg.To != nil {
			to = msg.To
		}
		acl = logger.NewAccessListTracer(msg.AccessList, msg.From, *to, vm.ActivePrecompiles(env.rules))
		hooks = append(hooks, acl.Hooks())
	}
	result, err := p.run(ctx, env, statedb, msg, muxHooks(hooks...))

	res := new(CallResult)
	switch {
	case errors.Is(err, ErrExecutionAborted):
		return nil, err
	case errors.Is(err, ErrStateUnavailable):
		res.Error = fetchError(err)
	case err != nil:
		res.Error = newExecError(err, nil)
	default:
		res.ReturnData = common.CopyBytes(result.ReturnData)
		res.GasUsed = hexutil.Uint64(result.UsedGas)
		res.Logs = statedb.Logs()
		if result.Err != nil {
			res.Error = newExecError(result.Err, result.Revert())
		} else if created != nil {
			res.CreatedAddress = created
		}
	}
	if tracer != nil {
		res.Trace = tracer.Result()
	}
	if acl != nil {
		res.AccessList = acl.AccessList()
	}
	if args.CreateTransaction.shouldCreate(res) {
		hash, err := p.createTransaction(ctx, &orig, result)
		if err != nil {
			return nil, err
		}
		res.TxHash = &hash
	}
	return res, nil
}

// createTransaction queues the transaction equivalent to a call. It is
// signed with the local key of the sender if there is one, and impersonated
// otherwise. Without an explicit gas limit the limit is derived from the gas
// the call needed.
func (p *Pipeline) createTransaction(ctx context.Context, args *CallParams, result *gethcore.ExecutionResult) (common.Hash, error) {
	if p.submit == nil {
		return common.Hash{}, errors.New("transaction submission is not available")
	}
	var (
		head   = p.chain.CurrentBlock()
		config = p.chain.Config()
		from   = args.from()
		gas    = head.GasLimit
		nonce  = p.submit.PoolNonce(from)
		value  = new(big.Int)
	)
	switch {
	case args.Gas != nil:
		gas = uint64(*args.Gas)
	case result != nil:
		// Refunds are only paid out at the end, and a call forwarding all its
		// gas needs 64/63 of what the callee used.
		need := (result.UsedGas + result.RefundedGas + params.CallStipend) * 64 / 63
		if need < gas {
			gas = need
		}
	}
	if args.Nonce != nil {
		nonce = uint64(*args.Nonce)
	}
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	var accessList types.AccessList
	if args.AccessList != nil {
		accessList = *args.AccessList
	}
	var inner types.TxData
	if args.GasPrice != nil || head.BaseFee == nil {
		price := big.NewInt(params.GWei)
		if args.GasPrice != nil {
			price = args.GasPrice.ToInt()
		} else if head.BaseFee != nil {
			price = new(big.Int).Set(head.BaseFee)
		}
		if accessList != nil {
			inner = &types.AccessListTx{ChainID: config.ChainID, Nonce: nonce, GasPrice: price, Gas: gas, To: args.To, Value: value, Data: args.data(), AccessList: accessList}
		} else {
			inner = &types.LegacyTx{Nonce: nonce, GasPrice: price, Gas: gas, To: args.To, Value: value, Data: args.data()}
		}
	} else {
		tip := big.NewInt(params.GWei)
		if args.MaxPriorityFeePerGas != nil {
			tip = args.MaxPriorityFeePerGas.ToInt()
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		if args.MaxFeePerGas != nil {
			feeCap = args.MaxFeePerGas.ToInt()
			if tip.Cmp(feeCap) > 0 {
				tip = feeCap
			}
		}
		inner = &types.DynamicFeeTx{ChainID: config.ChainID, Nonce: nonce, GasTipCap: tip, GasFeeCap: feeCap, Gas: gas, To: args.To, Value: value, Data: args.data(), AccessList: accessList}
	}
	var (
		tx     = types.NewTx(inner)
		signer = types.LatestSigner(config)
		ptx    *txpool.Transaction
		err    error
	)
	var key *ecdsa.PrivateKey
	if p.accounts != nil {
		key = p.accounts.Key(from)
	}
	if key != nil {
		signed, signErr := types.SignTx(tx, signer, key)
		if signErr != nil {
			return common.Hash{}, signErr
		}
		ptx, err = txpool.NewTransaction(signed, signer)
	} else {
		ptx, err = txpool.Impersonate(tx, from, signer)
	}
	if err != nil {
		return common.Hash{}, err
	}
	if err := p.submit.SubmitTransaction(ctx, ptx); err != nil {
		return common.Hash{}, err
	}
	log.Debug("Queued call transaction", "hash", ptx.Hash(), "from", from, "nonce", nonce, "signed", key != nil)
	return ptx.Hash(), nil
}

// Contract calls an ABI function and decodes its outputs. Output decoding
// failures are reported as a decode error of the result.
// Contract 调用 ABI 函数并解码其输出。
func (p *Pipeline) Contract(ctx context.Context, args *ContractParams) (*ContractResult, error) {
	input, err := args.validate()
	if err != nil {
		return nil, err
	}
	call := args.CallParams.copy()
	call.setData(input)
	res, err := p.call(ctx, call)
	if err != nil {
		return nil, err
	}
	return decodeResult(args.ABI, args.FunctionName, res), nil
}

// ScriptAddress is the scratch address scripts are installed at.
func ScriptAddress(code []byte) common.Address {
	return common.BytesToAddress(crypto.Keccak256(code)[12:])
}

// Script installs runtime bytecode at its scratch address on the throwaway
// state of the call and calls it.
// Script 将运行时字节码安装到临时地址并调用它。
func (p *Pipeline) Script(ctx context.Context, args *ScriptParams) (*ContractResult, error) {
	input, err := args.validate()
	if err != nil {
		return nil, err
	}
	var (
		call = args.CallParams.copy()
		addr = ScriptAddress(args.Code)
		code = common.CopyBytes(args.Code)
	)
	overrides := make(StateOverride, len(call.StateOverrides)+1)
	for a, account := range call.StateOverrides {
		overrides[a] = account
	}
	account := overrides[addr]
	account.Code = (*hexutil.Bytes)(&code)
	overrides[addr] = account

	call.StateOverrides = overrides
	call.To = &addr
	call.setData(input)

	res, err := p.call(ctx, call)
	if err != nil {
		return nil, err
	}
	if args.ABI == nil {
		return &ContractResult{CallResult: res}, nil
	}
	return decodeResult(args.ABI, args.FunctionName, res), nil
}

// decodeResult unpacks the outputs of a successful call, or the custom error
// of a reverted one.
func decodeResult(contract *abi.ABI, name string, res *CallResult) *ContractResult {
	out := &ContractResult{CallResult: res}
	if res.Error != nil {
		if res.Error.Kind == KindRevert && res.Error.Reason == "" {
			decodeCustomError(contract, res.Error)
		}
		return out
	}
	decoded, err := contract.Unpack(name, res.ReturnData)
	if err != nil {
		res.Error = decodeError(err, res.ReturnData)
		return out
	}
	out.Decoded = decoded
	return out
}

func decodeCustomError(contract *abi.ABI, e *ExecError) {
	if len(e.Data) < 4 {
		return
	}
	var id [4]byte
	copy(id[:], e.Data[:4])
	abiErr, err := contract.ErrorByID(id)
	if err != nil {
		return
	}
	values, err := abiErr.Unpack(e.Data)
	if err != nil {
		return
	}
	e.Reason = fmt.Sprintf("%s%v", abiErr.Name, values)
	e.Message = fmt.Sprintf("%v: %s", vm.ErrExecutionReverted, e.Reason)
}

// EstimateGas returns the lowest gas limit with which the call succeeds, by
// binary search between the intrinsic gas and the highest possible limit. A
// call that fails at the highest limit reports its execution error.
// EstimateGas 通过二分搜索返回调用成功所需的最低 gas 限制。
func (p *Pipeline) EstimateGas(ctx context.Context, args *CallParams) (uint64, error) {
	if err := args.validate(); err != nil {
		return 0, err
	}
	args = args.copy()
	statedb, header, err := p.StateAndHeader(ctx, args.BlockTag)
	if err != nil {
		return 0, err
	}
	statedb.SetContext(ctx)

	userGas := args.Gas
	args.Gas = nil
	env, err := p.prepare(header, statedb, args)
	if err != nil {
		if errors.Is(err, ErrStateUnavailable) {
			return 0, fetchError(err)
		}
		return 0, err
	}
	// Determine the highest gas limit can be used during the estimation.
	hi := env.blockCtx.GasLimit
	if userGas != nil && uint64(*userGas) >= params.TxGas {
		hi = uint64(*userGas)
	}
	msg := args.toMessage(env.blockCtx.BaseFee, statedb.GetNonce(args.from()))
	if args.SkipBalance {
		msg.GasLimit = hi
		topUp(statedb, msg)
	}
	// Recap the highest gas limit with account's available balance.
	if msg.GasFeeCap.BitLen() != 0 {
		available := statedb.GetBalance(msg.From).ToBig()
		if msg.Value.Cmp(available) >= 0 {
			return 0, gethcore.ErrInsufficientFundsForTransfer
		}
		available.Sub(available, msg.Value)
		allowance := new(big.Int).Div(available, msg.GasFeeCap)

		// If the allowance is larger than maximum uint64, skip checking
		if allowance.IsUint64() && hi > allowance.Uint64() {
			log.Debug("Gas estimation capped by limited funds", "original", hi, "fundable", allowance)
			hi = allowance.Uint64()
		}
	}
	if p.config.GasCap != 0 && hi > p.config.GasCap {
		log.Debug("Caller gas above allowance, capping", "requested", hi, "cap", p.config.GasCap)
		hi = p.config.GasCap
	}
	gasCap := hi

	// Create a helper to check if a gas allowance results in an executable transaction
	executable := func(gas uint64) (bool, *gethcore.ExecutionResult, error) {
		m := *msg
		m.GasLimit = gas
		result, err := p.run(ctx, env, statedb.Copy(), &m, nil)
		if err != nil {
			if errors.Is(err, gethcore.ErrIntrinsicGas) {
				return true, nil, nil // Special case, raise gas limit
			}
			if errors.Is(err, ErrStateUnavailable) {
				return true, nil, fetchError(err)
			}
			return true, nil, err // Bail out
		}
		return result.Failed(), result, nil
	}
	failed, result, err := executable(hi)
	if err != nil {
		return 0, err
	}
	if failed {
		if result != nil && !errors.Is(result.Err, vm.ErrOutOfGas) {
			return 0, newExecError(result.Err, result.Revert())
		}
		return 0, fmt.Errorf("gas required exceeds allowance (%d)", gasCap)
	}
	// The gas used at the highest limit is a lower bound of the estimate.
	lo := params.TxGas - 1
	if result.UsedGas > params.TxGas {
		lo = result.UsedGas - 1
	}
	for lo+1 < hi {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		mid := lo + (hi-lo)/2
		failed, _, err := executable(mid)
		if err != nil {
			return 0, err
		}
		if failed {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, nil
}

// CreateAccessList computes the access list of the call by re-running it with
// the list found so far until the list no longer changes.
// CreateAccessList 通过反复运行调用直到列表不再变化来计算其访问列表。
func (p *Pipeline) CreateAccessList(ctx context.Context, args *CallParams) (*AccessListResult, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	args = args.copy()
	db, header, err := p.StateAndHeader(ctx, args.BlockTag)
	if err != nil {
		return nil, err
	}
	db.SetContext(ctx)

	env, err := p.prepare(header, db, args)
	if err != nil {
		if errors.Is(err, ErrStateUnavailable) {
			return &AccessListResult{AccessList: types.AccessList{}, Error: fetchError(err)}, nil
		}
		return nil, err
	}
	var (
		from  = args.from()
		nonce = db.GetNonce(from)
		to    common.Address
	)
	if args.To != nil {
		to = *args.To
	} else {
		to = crypto.CreateAddress(from, nonce)
	}
	// Retrieve the precompiles since they don't need to be added to the access list
	precompiles := vm.ActivePrecompiles(env.rules)

	// Create an initial tracer
	prevTracer := logger.NewAccessListTracer(nil, from, to, precompiles)
	if args.AccessList != nil {
		prevTracer = logger.NewAccessListTracer(*args.AccessList, from, to, precompiles)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Retrieve the current access list to expand
		accessList := prevTracer.AccessList()
		if accessList == nil {
			accessList = types.AccessList{}
		}
		log.Trace("Creating access list", "input", accessList)

		args.AccessList = &accessList
		msg := args.toMessage(env.blockCtx.BaseFee, nonce)

		// Copy the original db so we don't modify it
		statedb := db.Copy()
		if args.SkipBalance {
			topUp(statedb, msg)
		}
		tracer := logger.NewAccessListTracer(accessList, from, to, precompiles)
		res, err := p.run(ctx, env, statedb, msg, tracer.Hooks())
		if err != nil {
			if errors.Is(err, ErrStateUnavailable) {
				return &AccessListResult{AccessList: accessList, Error: fetchError(err)}, nil
			}
			return nil, fmt.Errorf("failed to apply transaction: %w", err)
		}
		if tracer.Equal(prevTracer) {
			out := &AccessListResult{AccessList: accessList, GasUsed: hexutil.Uint64(res.UsedGas)}
			if res.Err != nil {
				out.Error = newExecError(res.Err, res.Revert())
			}
			return out, nil
		}
		prevTracer = tracer
	}
}
