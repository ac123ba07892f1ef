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

package flags

import (
	"flag"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathExpansion(t *testing.T) {
	home := HomeDir()
	tests := map[string]string{
		"/home/someuser/tmp": "/home/someuser/tmp",
		"~/tmp":              filepath.Join(home, "tmp"),
		"$DDDXXX/a/b":        "/tmp/a/b",
		"/a/b/":              "/a/b",
	}
	t.Setenv("DDDXXX", "/tmp")
	for test, expected := range tests {
		assert.Equal(t, expected, expandPath(test), test)
	}
}

func TestDirectoryFlag(t *testing.T) {
	f := &DirectoryFlag{Name: "datadir", Value: DirectoryString("~/.tevm")}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, f.Apply(set))
	require.NoError(t, set.Parse([]string{"--datadir", "/var/lib/../tevm"}))
	assert.Equal(t, "/var/tevm", f.Value.String())
}

func TestBigFlag(t *testing.T) {
	f := &BigFlag{Name: "base-fee", Value: big.NewInt(7)}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, f.Apply(set))
	assert.Equal(t, "7", f.GetDefaultText())
	assert.Equal(t, "7", f.Value.String())

	require.NoError(t, set.Parse([]string{"--base-fee", "0x10"}))
	assert.Equal(t, big.NewInt(16), f.Value)

	assert.Error(t, set.Set("base-fee", "not-a-number"))
}

func TestBigFlagEnv(t *testing.T) {
	os.Setenv("TEVM_TEST_BIG", "1000")
	defer os.Unsetenv("TEVM_TEST_BIG")

	f := &BigFlag{Name: "balance", EnvVars: []string{"TEVM_TEST_BIG"}}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, f.Apply(set))
	assert.True(t, f.IsSet())
	assert.Equal(t, big.NewInt(1000), f.Value)
}
