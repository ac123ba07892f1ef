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

package core

import "errors"

var (
	// ErrUnknownBlock is returned when a block or its state is not available.
	// ErrUnknownBlock 在区块或其状态不可用时返回。
	ErrUnknownBlock = errors.New("unknown block")

	// ErrUnknownSnapshot is returned when reverting to a snapshot id that was
	// never taken or was already consumed.
	ErrUnknownSnapshot = errors.New("unknown snapshot")

	// ErrNonContiguous is returned when appending a block that does not extend
	// the current head.
	ErrNonContiguous = errors.New("block does not extend the current head")

	// ErrChainClosed is returned by writes after Stop.
	ErrChainClosed = errors.New("blockchain is stopped")
)
