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

package node

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/ethereum/go-ethereum/rpc"
)

const (
	DefaultHTTPHost = "127.0.0.1" // Default host interface for the HTTP RPC server
	DefaultHTTPPort = 8545        // Default TCP port for the HTTP RPC server
	DefaultWSHost   = "127.0.0.1" // Default host interface for the websocket RPC server
	DefaultWSPort   = 8545        // Websocket shares the HTTP listener by default
)

// DefaultConfig contains reasonable default settings for a local development
// node: every API module is exposed and browsers may connect from any origin.
// DefaultConfig 包含本地开发节点的合理默认设置。
var DefaultConfig = Config{
	DataDir:              DefaultDataDir(),
	HTTPHost:             DefaultHTTPHost,
	HTTPPort:             DefaultHTTPPort,
	HTTPCors:             []string{"*"},
	HTTPVirtualHosts:     []string{"localhost"},
	HTTPTimeouts:         rpc.DefaultHTTPTimeouts,
	WSHost:               DefaultWSHost,
	WSPort:               DefaultWSPort,
	WSOrigins:            []string{"*"},
	BatchRequestLimit:    1000,
	BatchResponseMaxSize: 25 * 1000 * 1000,
}

// DefaultDataDir is the default data directory to use for the fork cache,
// the state file and other persistence requirements.
// DefaultDataDir 是默认数据目录。
func DefaultDataDir() string {
	home := homeDir()
	if home == "" {
		// As we cannot guess a stable location, return empty and handle later
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Tevm")
	case "windows":
		if appdata := os.Getenv("LOCALAPPDATA"); appdata != "" {
			return filepath.Join(appdata, "Tevm")
		}
		return filepath.Join(home, "AppData", "Local", "Tevm")
	default:
		return filepath.Join(home, ".tevm")
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
