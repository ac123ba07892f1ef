// Copyright 2017 The go-ethereum Authors
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
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/evmts/tevm-node/core"
	"github.com/evmts/tevm-node/core/execution"
	"github.com/evmts/tevm-node/core/txpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorCode(t *testing.T, err error) int {
	t.Helper()
	var coded rpc.Error
	require.ErrorAs(t, err, &coded)
	return coded.ErrorCode()
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"pool rejection", txValidationError(txpool.ErrNonceTooLow), errCodeInvalidTx},
		{"wrapped pool rejection", txValidationError(fmt.Errorf("add: %w", txpool.ErrUnderpriced)), errCodeInvalidTx},
		{"unknown snapshot", classify(fmt.Errorf("%w: 7", core.ErrUnknownSnapshot)), errCodeNotFound},
		{"validation", classify(&execution.ValidationError{Field: "gas", Message: "negative"}), errCodeInvalidParams},
		{"plain", classify(errors.New("boom")), errCodeExecution},
		{"plain through tx path", txValidationError(errors.New("boom")), errCodeExecution},
		{"unsupported", unsupported("unknown account %s", "0x01"), errCodeUnsupported},
		{"internal", internalError(errors.New("bad")), errCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, errorCode(t, tt.err))
		})
	}
	assert.NoError(t, classify(nil))
	assert.NoError(t, txValidationError(nil))
}

func TestClassifyKeepsExecErrors(t *testing.T) {
	orig := &execution.ExecError{Kind: execution.KindRevert, Message: "execution reverted", Data: []byte{0x08, 0xc3, 0x79, 0xa0}}
	err := classify(orig)
	require.Same(t, orig, err)
	assert.Equal(t, errCodeReverted, errorCode(t, err))
}
