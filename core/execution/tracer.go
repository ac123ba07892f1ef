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
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
)

// CallLog is a log emitted inside a call frame.
type CallLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// CallFrame is one message call of a trace, with its nested calls.
// CallFrame 是追踪中的一个消息调用及其嵌套调用。
type CallFrame struct {
	Type         string         `json:"type"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Value        *hexutil.Big   `json:"value,omitempty"`
	Gas          hexutil.Uint64 `json:"gas"`
	GasUsed      hexutil.Uint64 `json:"gasUsed"`
	Input        hexutil.Bytes  `json:"input"`
	Output       hexutil.Bytes  `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	RevertReason string         `json:"revertReason,omitempty"`
	Logs         []CallLog      `json:"logs,omitempty"`
	Calls        []*CallFrame   `json:"calls,omitempty"`
}

func (f *CallFrame) processOutput(output []byte, err error) {
	output = common.CopyBytes(output)
	if err == nil {
		f.Output = output
		return
	}
	f.Error = err.Error()
	if f.Type == vm.CREATE.String() || f.Type == vm.CREATE2.String() {
		f.To = common.Address{}
	}
	if !errors.Is(err, vm.ErrExecutionReverted) || len(output) == 0 {
		return
	}
	f.Output = output
	if reason, unpackErr := abi.UnpackRevert(output); unpackErr == nil {
		f.RevertReason = reason
	}
}

// CallTracer records the tree of message calls of one execution.
// CallTracer 记录一次执行的消息调用树。
type CallTracer struct {
	callstack []*CallFrame
	root      *CallFrame
}

// NewCallTracer creates an empty call tracer.
func NewCallTracer() *CallTracer {
	return new(CallTracer)
}

// Hooks returns the tracing hooks feeding the tracer.
func (t *CallTracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter: t.onEnter,
		OnExit:  t.onExit,
		OnLog:   t.onLog,
	}
}

func (t *CallTracer) onEnter(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	frame := &CallFrame{
		Type:  vm.OpCode(typ).String(),
		From:  from,
		To:    to,
		Input: common.CopyBytes(input),
		Gas:   hexutil.Uint64(gas),
	}
	if value != nil {
		frame.Value = (*hexutil.Big)(new(big.Int).Set(value))
	}
	if depth == 0 {
		t.callstack = []*CallFrame{frame}
		t.root = frame
		return
	}
	t.callstack = append(t.callstack, frame)
}

func (t *CallTracer) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	size := len(t.callstack)
	if size == 0 {
		return
	}
	frame := t.callstack[size-1]
	frame.GasUsed = hexutil.Uint64(gasUsed)
	frame.processOutput(output, err)
	if reverted {
		frame.clearLogs()
	}
	if depth == 0 {
		t.callstack = t.callstack[:0]
		return
	}
	t.callstack = t.callstack[:size-1]
	parent := t.callstack[size-2]
	parent.Calls = append(parent.Calls, frame)
}

func (t *CallTracer) onLog(log *types.Log) {
	if len(t.callstack) == 0 {
		return
	}
	frame := t.callstack[len(t.callstack)-1]
	frame.Logs = append(frame.Logs, CallLog{
		Address: log.Address,
		Topics:  append([]common.Hash(nil), log.Topics...),
		Data:    common.CopyBytes(log.Data),
	})
}

// clearLogs drops the logs of a reverted frame and all of its children.
func (f *CallFrame) clearLogs() {
	f.Logs = nil
	for _, child := range f.Calls {
		child.clearLogs()
	}
}

// Result returns the root frame, nil if nothing was traced.
func (t *CallTracer) Result() *CallFrame {
	return t.root
}

// muxHooks fans the events of several tracers out in order.
func muxHooks(hooks ...*tracing.Hooks) *tracing.Hooks {
	var live []*tracing.Hooks
	for _, h := range hooks {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return &tracing.Hooks{
		OnEnter: func(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
			for _, h := range live {
				if h.OnEnter != nil {
					h.OnEnter(depth, typ, from, to, input, gas, value)
				}
			}
		},
		OnExit: func(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
			for _, h := range live {
				if h.OnExit != nil {
					h.OnExit(depth, output, gasUsed, err, reverted)
				}
			}
		},
		OnOpcode: func(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
			for _, h := range live {
				if h.OnOpcode != nil {
					h.OnOpcode(pc, op, gas, cost, scope, rData, depth, err)
				}
			}
		},
		OnLog: func(log *types.Log) {
			for _, h := range live {
				if h.OnLog != nil {
					h.OnLog(log)
				}
			}
		},
	}
}
