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

// Package utils contains internal helper functions for tevm commands.
package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/evmts/tevm-node/eth/ethconfig"
	"github.com/evmts/tevm-node/internal/flags"
	"github.com/evmts/tevm-node/node"
	"github.com/urfave/cli/v2"
)

// These are all the command line flags we support.
// If you add to this list, please remember to include the
// flag in the appropriate command definition.
//
// The flags are defined here so their names and help texts
// are the same for all commands.

var (
	// General settings
	DataDirFlag = &flags.DirectoryFlag{
		Name:     "datadir",
		Usage:    "Data directory for the fork cache and the state file",
		Value:    flags.DirectoryString(node.DefaultDataDir()),
		Category: flags.StateCategory,
	}
	EphemeralFlag = &cli.BoolFlag{
		Name:     "ephemeral",
		Usage:    "Keep nothing on disk: no data directory, fork cache in memory",
		Category: flags.StateCategory,
	}
	StateFileFlag = &cli.StringFlag{
		Name:     "state",
		Usage:    "State file loaded on start and written on shutdown (.sz for snappy compression)",
		Category: flags.StateCategory,
	}

	// Forking
	ForkURLFlag = &cli.StringFlag{
		Name:     "fork.url",
		Aliases:  []string{"fork-url", "f"},
		Usage:    "JSON-RPC endpoint of the chain to fork",
		Category: flags.ForkCategory,
	}
	ForkBlockFlag = &cli.Uint64Flag{
		Name:     "fork.block",
		Aliases:  []string{"fork-block-number"},
		Usage:    "Block number to fork from (default = remote head)",
		Category: flags.ForkCategory,
	}
	ForkCacheFlag = &cli.StringFlag{
		Name:     "fork.cache",
		Usage:    `Fork cache backend ("leveldb" or "pebble")`,
		Value:    ethconfig.Defaults.Fork.CacheBackend,
		Category: flags.ForkCategory,
	}
	ForkNoCacheFlag = &cli.BoolFlag{
		Name:     "fork.nocache",
		Aliases:  []string{"no-storage-caching"},
		Usage:    "Keep the fork cache in memory only",
		Category: flags.ForkCategory,
	}
	ForkTimeoutFlag = &cli.DurationFlag{
		Name:     "fork.timeout",
		Usage:    "Timeout of a single remote read",
		Value:    ethconfig.Defaults.Fork.Timeout,
		Category: flags.ForkCategory,
	}
	ForkRetriesFlag = &cli.Uint64Flag{
		Name:     "fork.retries",
		Usage:    "Number of retries of a failed remote read",
		Value:    ethconfig.Defaults.Fork.Retries,
		Category: flags.ForkCategory,
	}
	ForkRateLimitFlag = &cli.Float64Flag{
		Name:     "fork.ratelimit",
		Aliases:  []string{"compute-units-per-second"},
		Usage:    "Maximum remote reads per second (0 = unlimited)",
		Category: flags.ForkCategory,
	}

	// Chain settings
	ChainIDFlag = &cli.Uint64Flag{
		Name:     "chainid",
		Aliases:  []string{"chain-id"},
		Usage:    "Chain id (default = 1337, or the remote chain id when forking)",
		Category: flags.ChainCategory,
	}
	GasLimitFlag = &cli.Uint64Flag{
		Name:     "gaslimit",
		Aliases:  []string{"gas-limit"},
		Usage:    "Block gas limit",
		Value:    ethconfig.Defaults.GasLimit,
		Category: flags.ChainCategory,
	}
	BaseFeeFlag = &flags.BigFlag{
		Name:     "basefee",
		Aliases:  []string{"base-fee"},
		Usage:    "Base fee of the genesis block in wei",
		Category: flags.ChainCategory,
	}
	TimestampFlag = &cli.Uint64Flag{
		Name:     "timestamp",
		Usage:    "Timestamp of the genesis block (default = now)",
		Category: flags.ChainCategory,
	}

	// Accounts
	AccountsFlag = &cli.IntFlag{
		Name:     "accounts",
		Usage:    "Number of funded development accounts",
		Value:    ethconfig.Defaults.Accounts,
		Category: flags.AccountCategory,
	}
	AutoImpersonateFlag = &cli.BoolFlag{
		Name:     "auto-impersonate",
		Usage:    "Accept transactions from any sender without a signature",
		Category: flags.AccountCategory,
	}

	// Transaction pool
	TxPoolPriceBumpFlag = &cli.Uint64Flag{
		Name:     "txpool.pricebump",
		Usage:    "Price bump percentage to replace an already existing transaction",
		Value:    ethconfig.Defaults.TxPool.PriceBump,
		Category: flags.TxPoolCategory,
	}
	TxPoolAccountSlotsFlag = &cli.Uint64Flag{
		Name:     "txpool.accountslots",
		Usage:    "Minimum number of executable transaction slots guaranteed per account",
		Value:    ethconfig.Defaults.TxPool.AccountSlots,
		Category: flags.TxPoolCategory,
	}
	TxPoolGlobalSlotsFlag = &cli.Uint64Flag{
		Name:     "txpool.globalslots",
		Usage:    "Maximum number of executable transaction slots for all accounts",
		Value:    ethconfig.Defaults.TxPool.GlobalSlots,
		Category: flags.TxPoolCategory,
	}
	TxPoolAccountQueueFlag = &cli.Uint64Flag{
		Name:     "txpool.accountqueue",
		Usage:    "Maximum number of non-executable transaction slots permitted per account",
		Value:    ethconfig.Defaults.TxPool.AccountQueue,
		Category: flags.TxPoolCategory,
	}
	TxPoolGlobalQueueFlag = &cli.Uint64Flag{
		Name:     "txpool.globalqueue",
		Usage:    "Maximum number of non-executable transaction slots for all accounts",
		Value:    ethconfig.Defaults.TxPool.GlobalQueue,
		Category: flags.TxPoolCategory,
	}

	// Miner settings
	MinerBlockTimeFlag = &cli.DurationFlag{
		Name:     "miner.blocktime",
		Aliases:  []string{"block-time", "b"},
		Usage:    "Mine a block on this fixed interval instead of per transaction",
		Category: flags.MinerCategory,
	}
	MinerNoMiningFlag = &cli.BoolFlag{
		Name:     "miner.manual",
		Aliases:  []string{"no-mining"},
		Usage:    "Disable automatic mining, blocks are mined by evm_mine only",
		Category: flags.MinerCategory,
	}
	MinerEtherbaseFlag = &cli.StringFlag{
		Name:     "miner.etherbase",
		Usage:    "Address that receives the block fees",
		Category: flags.MinerCategory,
	}
	MinerExtraDataFlag = &cli.StringFlag{
		Name:     "miner.extradata",
		Usage:    "Block extra data set by the miner",
		Category: flags.MinerCategory,
	}

	// RPC settings
	IPCPathFlag = &flags.DirectoryFlag{
		Name:     "ipcpath",
		Usage:    "Filename for IPC socket/pipe within the datadir (explicit paths escape it)",
		Category: flags.APICategory,
	}
	HTTPEnabledFlag = &cli.BoolFlag{
		Name:     "http",
		Usage:    "Enable the HTTP-RPC server",
		Value:    true,
		Category: flags.APICategory,
	}
	HTTPListenAddrFlag = &cli.StringFlag{
		Name:     "http.addr",
		Aliases:  []string{"host"},
		Usage:    "HTTP-RPC server listening interface",
		Value:    node.DefaultHTTPHost,
		Category: flags.APICategory,
	}
	HTTPPortFlag = &cli.IntFlag{
		Name:     "http.port",
		Aliases:  []string{"port"},
		Usage:    "HTTP-RPC server listening port",
		Value:    node.DefaultHTTPPort,
		Category: flags.APICategory,
	}
	HTTPCORSDomainFlag = &cli.StringFlag{
		Name:     "http.corsdomain",
		Usage:    "Comma separated list of domains from which to accept cross origin requests (browser enforced)",
		Value:    "*",
		Category: flags.APICategory,
	}
	HTTPVirtualHostsFlag = &cli.StringFlag{
		Name:     "http.vhosts",
		Usage:    "Comma separated list of virtual hostnames from which to accept requests (server enforced). Accepts '*' wildcard.",
		Value:    strings.Join(node.DefaultConfig.HTTPVirtualHosts, ","),
		Category: flags.APICategory,
	}
	HTTPApiFlag = &cli.StringFlag{
		Name:     "http.api",
		Usage:    "API's offered over the HTTP-RPC interface (default = all)",
		Category: flags.APICategory,
	}
	HTTPPathPrefixFlag = &cli.StringFlag{
		Name:     "http.rpcprefix",
		Usage:    "HTTP path prefix on which JSON-RPC is served. Use '/' to serve on all paths.",
		Category: flags.APICategory,
	}
	WSEnabledFlag = &cli.BoolFlag{
		Name:     "ws",
		Usage:    "Enable the WS-RPC server",
		Value:    true,
		Category: flags.APICategory,
	}
	WSPortFlag = &cli.IntFlag{
		Name:     "ws.port",
		Usage:    "WS-RPC server listening port (default = the HTTP port)",
		Category: flags.APICategory,
	}
	WSAllowedOriginsFlag = &cli.StringFlag{
		Name:     "ws.origins",
		Usage:    "Origins from which to accept websockets requests",
		Value:    "*",
		Category: flags.APICategory,
	}
	BatchRequestLimit = &cli.IntFlag{
		Name:     "rpc.batch-request-limit",
		Usage:    "Maximum number of requests in a batch",
		Value:    node.DefaultConfig.BatchRequestLimit,
		Category: flags.APICategory,
	}
	BatchResponseMaxSize = &cli.IntFlag{
		Name:     "rpc.batch-response-max-size",
		Usage:    "Maximum number of bytes returned from a batched call",
		Value:    node.DefaultConfig.BatchResponseMaxSize,
		Category: flags.APICategory,
	}
	RPCGlobalGasCapFlag = &cli.Uint64Flag{
		Name:     "rpc.gascap",
		Usage:    "Sets a cap on gas that can be used in eth_call/estimateGas (0=infinite)",
		Value:    ethconfig.Defaults.RPCGasCap,
		Category: flags.APICategory,
	}
	RPCGlobalEVMTimeoutFlag = &cli.DurationFlag{
		Name:     "rpc.evmtimeout",
		Usage:    "Sets a timeout used for eth_call (0=infinite)",
		Value:    ethconfig.Defaults.RPCEVMTimeout,
		Category: flags.APICategory,
	}
	RPCGlobalTxFeeCapFlag = &cli.Float64Flag{
		Name:     "rpc.txfeecap",
		Usage:    "Sets a cap on transaction fee (in ether) that can be sent via the RPC APIs (0 = no cap)",
		Value:    ethconfig.Defaults.RPCTxFeeCap,
		Category: flags.APICategory,
	}
)

// NodeFlags are the flags of the RPC stack and data directory.
var NodeFlags = []cli.Flag{
	DataDirFlag,
	EphemeralFlag,
	IPCPathFlag,
	HTTPEnabledFlag,
	HTTPListenAddrFlag,
	HTTPPortFlag,
	HTTPCORSDomainFlag,
	HTTPVirtualHostsFlag,
	HTTPApiFlag,
	HTTPPathPrefixFlag,
	WSEnabledFlag,
	WSPortFlag,
	WSAllowedOriginsFlag,
	BatchRequestLimit,
	BatchResponseMaxSize,
}

// EthFlags are the flags of the chain service.
var EthFlags = []cli.Flag{
	StateFileFlag,
	ForkURLFlag,
	ForkBlockFlag,
	ForkCacheFlag,
	ForkNoCacheFlag,
	ForkTimeoutFlag,
	ForkRetriesFlag,
	ForkRateLimitFlag,
	ChainIDFlag,
	GasLimitFlag,
	BaseFeeFlag,
	TimestampFlag,
	AccountsFlag,
	AutoImpersonateFlag,
	TxPoolPriceBumpFlag,
	TxPoolAccountSlotsFlag,
	TxPoolGlobalSlotsFlag,
	TxPoolAccountQueueFlag,
	TxPoolGlobalQueueFlag,
	MinerBlockTimeFlag,
	MinerNoMiningFlag,
	MinerEtherbaseFlag,
	MinerExtraDataFlag,
	RPCGlobalGasCapFlag,
	RPCGlobalEVMTimeoutFlag,
	RPCGlobalTxFeeCapFlag,
}

// SplitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func SplitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}

// setHTTP creates the HTTP RPC listener interface string from the set
// command line flags, returning empty if the HTTP endpoint is disabled.
func setHTTP(ctx *cli.Context, cfg *node.Config) {
	if ctx.IsSet(HTTPEnabledFlag.Name) && !ctx.Bool(HTTPEnabledFlag.Name) {
		cfg.HTTPHost = ""
	} else if ctx.IsSet(HTTPListenAddrFlag.Name) {
		cfg.HTTPHost = ctx.String(HTTPListenAddrFlag.Name)
	}
	if ctx.IsSet(HTTPPortFlag.Name) {
		cfg.HTTPPort = ctx.Int(HTTPPortFlag.Name)
	}
	if ctx.IsSet(HTTPCORSDomainFlag.Name) {
		cfg.HTTPCors = SplitAndTrim(ctx.String(HTTPCORSDomainFlag.Name))
	}
	if ctx.IsSet(HTTPApiFlag.Name) {
		cfg.HTTPModules = SplitAndTrim(ctx.String(HTTPApiFlag.Name))
	}
	if ctx.IsSet(HTTPVirtualHostsFlag.Name) {
		cfg.HTTPVirtualHosts = SplitAndTrim(ctx.String(HTTPVirtualHostsFlag.Name))
	}
	if ctx.IsSet(HTTPPathPrefixFlag.Name) {
		cfg.HTTPPathPrefix = ctx.String(HTTPPathPrefixFlag.Name)
	}
	if ctx.IsSet(BatchRequestLimit.Name) {
		cfg.BatchRequestLimit = ctx.Int(BatchRequestLimit.Name)
	}
	if ctx.IsSet(BatchResponseMaxSize.Name) {
		cfg.BatchResponseMaxSize = ctx.Int(BatchResponseMaxSize.Name)
	}
}

// setWS creates the WebSocket RPC listener interface string from the set
// command line flags, returning empty if the WS endpoint is disabled. The
// websocket server follows the HTTP one unless a port of its own is given.
func setWS(ctx *cli.Context, cfg *node.Config) {
	if ctx.IsSet(HTTPListenAddrFlag.Name) {
		cfg.WSHost = ctx.String(HTTPListenAddrFlag.Name)
	}
	if ctx.IsSet(HTTPPortFlag.Name) {
		cfg.WSPort = ctx.Int(HTTPPortFlag.Name)
	}
	if ctx.IsSet(WSEnabledFlag.Name) && !ctx.Bool(WSEnabledFlag.Name) {
		cfg.WSHost = ""
	}
	if ctx.IsSet(WSPortFlag.Name) {
		cfg.WSPort = ctx.Int(WSPortFlag.Name)
	}
	if ctx.IsSet(WSAllowedOriginsFlag.Name) {
		cfg.WSOrigins = SplitAndTrim(ctx.String(WSAllowedOriginsFlag.Name))
	}
}

// SetNodeConfig applies node-related command line flags to the config.
// SetNodeConfig 将节点相关的命令行标志应用于配置。
func SetNodeConfig(ctx *cli.Context, cfg *node.Config) {
	setHTTP(ctx, cfg)
	setWS(ctx, cfg)
	if ctx.IsSet(IPCPathFlag.Name) {
		cfg.IPCPath = ctx.String(IPCPathFlag.Name)
	}
	switch {
	case ctx.Bool(EphemeralFlag.Name):
		cfg.DataDir = ""
	case ctx.IsSet(DataDirFlag.Name):
		cfg.DataDir = ctx.String(DataDirFlag.Name)
	}
}

// SetEthConfig applies eth-related command line flags to the config.
// SetEthConfig 将链服务相关的命令行标志应用于配置。
func SetEthConfig(ctx *cli.Context, stack *node.Node, cfg *ethconfig.Config) {
	if ctx.IsSet(StateFileFlag.Name) {
		cfg.StatePath = ctx.String(StateFileFlag.Name)
	}
	setFork(ctx, stack, &cfg.Fork)

	if ctx.IsSet(ChainIDFlag.Name) {
		cfg.ChainID = ctx.Uint64(ChainIDFlag.Name)
	}
	if ctx.IsSet(GasLimitFlag.Name) {
		cfg.GasLimit = ctx.Uint64(GasLimitFlag.Name)
		cfg.Miner.GasCeil = cfg.GasLimit
	}
	if ctx.IsSet(BaseFeeFlag.Name) {
		cfg.BaseFee = flags.GlobalBig(ctx, BaseFeeFlag.Name)
	}
	if ctx.IsSet(TimestampFlag.Name) {
		cfg.Timestamp = ctx.Uint64(TimestampFlag.Name)
	}
	if ctx.IsSet(AccountsFlag.Name) {
		cfg.Accounts = ctx.Int(AccountsFlag.Name)
	}
	if ctx.IsSet(AutoImpersonateFlag.Name) {
		cfg.AutoImpersonate = ctx.Bool(AutoImpersonateFlag.Name)
	}
	setTxPool(ctx, cfg)
	setMiner(ctx, cfg)

	if ctx.IsSet(RPCGlobalGasCapFlag.Name) {
		cfg.RPCGasCap = ctx.Uint64(RPCGlobalGasCapFlag.Name)
	}
	if cfg.RPCGasCap != 0 {
		log.Info("Set global gas cap", "cap", cfg.RPCGasCap)
	} else {
		log.Info("Global gas cap disabled")
	}
	if ctx.IsSet(RPCGlobalEVMTimeoutFlag.Name) {
		cfg.RPCEVMTimeout = ctx.Duration(RPCGlobalEVMTimeoutFlag.Name)
	}
	if ctx.IsSet(RPCGlobalTxFeeCapFlag.Name) {
		cfg.RPCTxFeeCap = ctx.Float64(RPCGlobalTxFeeCapFlag.Name)
	}
}

func setFork(ctx *cli.Context, stack *node.Node, cfg *ethconfig.ForkConfig) {
	if ctx.IsSet(ForkURLFlag.Name) {
		cfg.URL = ctx.String(ForkURLFlag.Name)
	}
	if ctx.IsSet(ForkBlockFlag.Name) {
		cfg.BlockNumber = ctx.Uint64(ForkBlockFlag.Name)
	}
	if ctx.IsSet(ForkCacheFlag.Name) {
		cfg.CacheBackend = ctx.String(ForkCacheFlag.Name)
	}
	if ctx.IsSet(ForkTimeoutFlag.Name) {
		cfg.Timeout = ctx.Duration(ForkTimeoutFlag.Name)
	}
	if ctx.IsSet(ForkRetriesFlag.Name) {
		cfg.Retries = ctx.Uint64(ForkRetriesFlag.Name)
	}
	if ctx.IsSet(ForkRateLimitFlag.Name) {
		cfg.RateLimit = ctx.Float64(ForkRateLimitFlag.Name)
	}
	switch {
	case ctx.Bool(ForkNoCacheFlag.Name):
		cfg.CacheDir = ""
	case cfg.CacheDir == "" && stack.DataDir() != "":
		cfg.CacheDir = stack.ResolvePath("forkcache")
	}
	if cfg.BlockNumber != 0 && cfg.URL == "" {
		Fatalf("--%s requires --%s", ForkBlockFlag.Name, ForkURLFlag.Name)
	}
}

func setTxPool(ctx *cli.Context, cfg *ethconfig.Config) {
	if ctx.IsSet(TxPoolPriceBumpFlag.Name) {
		cfg.TxPool.PriceBump = ctx.Uint64(TxPoolPriceBumpFlag.Name)
	}
	if ctx.IsSet(TxPoolAccountSlotsFlag.Name) {
		cfg.TxPool.AccountSlots = ctx.Uint64(TxPoolAccountSlotsFlag.Name)
	}
	if ctx.IsSet(TxPoolGlobalSlotsFlag.Name) {
		cfg.TxPool.GlobalSlots = ctx.Uint64(TxPoolGlobalSlotsFlag.Name)
	}
	if ctx.IsSet(TxPoolAccountQueueFlag.Name) {
		cfg.TxPool.AccountQueue = ctx.Uint64(TxPoolAccountQueueFlag.Name)
	}
	if ctx.IsSet(TxPoolGlobalQueueFlag.Name) {
		cfg.TxPool.GlobalQueue = ctx.Uint64(TxPoolGlobalQueueFlag.Name)
	}
}

func setMiner(ctx *cli.Context, cfg *ethconfig.Config) {
	flags.CheckExclusive(ctx, MinerBlockTimeFlag, MinerNoMiningFlag)
	if ctx.IsSet(MinerBlockTimeFlag.Name) {
		cfg.Miner.BlockTime = ctx.Duration(MinerBlockTimeFlag.Name)
	}
	if ctx.Bool(MinerNoMiningFlag.Name) {
		cfg.Miner.AutoMine = false
		cfg.Miner.BlockTime = 0
	}
	if ctx.IsSet(MinerEtherbaseFlag.Name) {
		addr := ctx.String(MinerEtherbaseFlag.Name)
		if !common.IsHexAddress(addr) {
			Fatalf("Invalid miner etherbase: %s", addr)
		}
		cfg.Miner.Coinbase = common.HexToAddress(addr)
	}
	if ctx.IsSet(MinerExtraDataFlag.Name) {
		cfg.Miner.ExtraData = []byte(ctx.String(MinerExtraDataFlag.Name))
	}
}
