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

// tevm is a local Ethereum development node that can fork a live network.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/evmts/tevm-node/cmd/utils"
	"github.com/evmts/tevm-node/eth"
	"github.com/evmts/tevm-node/internal/debug"
	"github.com/evmts/tevm-node/internal/flags"
	"github.com/evmts/tevm-node/node"
	"github.com/urfave/cli/v2"
)

const (
	clientIdentifier = "tevm" // Client identifier used for the instance directory
)

var app = flags.NewApp("a local Ethereum development node")

func init() {
	app.Action = tevm
	app.Commands = []*cli.Command{
		dumpConfigCommand,
	}
	app.Flags = flags.Merge(
		[]cli.Flag{configFileFlag},
		utils.NodeFlags,
		utils.EthFlags,
		debug.Flags,
	)
	app.Before = func(ctx *cli.Context) error {
		flags.MigrateGlobalFlags(ctx)
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// tevm is the main entry point into the system if no special subcommand is run.
// It creates a node based on the command line arguments and runs it in
// blocking mode, waiting for it to be shut down.
func tevm(ctx *cli.Context) error {
	if args := ctx.Args().Slice(); len(args) > 0 {
		return fmt.Errorf("invalid command: %s", args[0])
	}
	stack, backend := makeFullNode(ctx)
	defer stack.Close()

	utils.StartNode(stack)
	printBanner(os.Stdout, stack, backend)
	stack.Wait()
	return nil
}

// printBanner lists the development accounts with their keys and the
// endpoints the node listens on.
func printBanner(w io.Writer, stack *node.Node, backend *eth.Ethereum) {
	var b strings.Builder
	b.WriteString("\nAvailable Accounts\n==================\n")
	for i, addr := range backend.Accounts() {
		fmt.Fprintf(&b, "(%d) %s\n", i, addr.Hex())
	}
	b.WriteString("\nPrivate Keys\n==================\n")
	for i, addr := range backend.Accounts() {
		fmt.Fprintf(&b, "(%d) %s\n", i, hexutil.Encode(crypto.FromECDSA(backend.Key(addr))))
	}
	chain := backend.BlockChain()
	fmt.Fprintf(&b, "\nChain ID\n==================\n%d\n", chain.Config().ChainID)
	if url, block := backend.ForkInfo(); url != "" {
		fmt.Fprintf(&b, "\nFork\n==================\nEndpoint: %s\nBlock:    %d\n", url, block)
	}
	if cfg := stack.Config(); cfg.HTTPHost != "" {
		fmt.Fprintf(&b, "\nListening on %s\n", stack.HTTPEndpoint())
	}
	if endpoint := stack.IPCEndpoint(); endpoint != "" {
		fmt.Fprintf(&b, "IPC endpoint %s\n", endpoint)
	}
	io.WriteString(w, b.String())
}
