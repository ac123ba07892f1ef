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

package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBuildSettings(t *testing.T) {
	vcs, ok := fromBuildSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2025-03-04T05:06:07Z"},
		{Key: "vcs.modified", Value: "true"},
	})
	require.True(t, ok)
	require.Equal(t, "20250304", vcs.Date)
	require.Equal(t, "01234567-dirty", vcs.Short())

	_, ok = fromBuildSettings([]debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}})
	require.False(t, ok, "missing commit time")
}

func TestWithCommit(t *testing.T) {
	require.Equal(t, WithMeta, WithCommit("", ""))
	require.Equal(t, WithMeta+"-01234567-20250304", WithCommit("0123456789abcdef", "20250304"))
}
