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

package ethapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/evmts/tevm-node/core/execution"
)

// EthereumAPI provides an API to access Ethereum related information.
// EthereumAPI 提供访问以太坊相关信息的 API。
type EthereumAPI struct {
	b Backend
}

// NewEthereumAPI creates a new Ethereum protocol API.
func NewEthereumAPI(b Backend) *EthereumAPI {
	return &EthereumAPI{b}
}

// GasPrice returns a suggestion for a gas price for legacy transactions.
// GasPrice 返回对遗留交易的 gas 价格的建议。
func (api *EthereumAPI) GasPrice(ctx context.Context) (*hexutil.Big, error) {
	tipcap, err := api.b.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	if head := api.b.CurrentHeader(); head.BaseFee != nil {
		tipcap.Add(tipcap, head.BaseFee)
	}
	return (*hexutil.Big)(tipcap), nil
}

// MaxPriorityFeePerGas returns a suggestion for a gas tip cap for dynamic fee transactions.
func (api *EthereumAPI) MaxPriorityFeePerGas(ctx context.Context) (*hexutil.Big, error) {
	tipcap, err := api.b.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(tipcap), nil
}

// Syncing always reports false: a development node has no peers to sync from.
func (api *EthereumAPI) Syncing() (interface{}, error) {
	return false, nil
}

// Accounts returns the addresses of the unlocked development accounts.
// Accounts 返回已解锁的开发账户地址。
func (api *EthereumAPI) Accounts() []common.Address {
	return api.b.Accounts()
}

// Coinbase returns the beneficiary of the next mined block.
func (api *EthereumAPI) Coinbase() common.Address {
	return api.b.Miner().Coinbase()
}

// BlockChainAPI provides an API to access Ethereum blockchain data.
// BlockChainAPI 提供访问以太坊区块链数据的 API。
type BlockChainAPI struct {
	b Backend
}

// NewBlockChainAPI creates a new Ethereum blockchain API.
func NewBlockChainAPI(b Backend) *BlockChainAPI {
	return &BlockChainAPI{b}
}

// ChainId is the EIP-155 replay-protection chain id for the current Ethereum chain config.
//
// Note, this method does not conform to EIP-695 because the configured chain ID is always
// returned, regardless of the current head block.
func (api *BlockChainAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.b.ChainConfig().ChainID)
}

// BlockNumber returns the block number of the chain head.
// BlockNumber 返回链头的区块号。
func (api *BlockChainAPI) BlockNumber() hexutil.Uint64 {
	header := api.b.CurrentHeader()
	return hexutil.Uint64(header.Number.Uint64())
}

// GetBalance returns the amount of wei for the given address in the state of the
// given block number. The rpc.LatestBlockNumber and rpc.PendingBlockNumber meta
// block numbers are also allowed.
// GetBalance 返回给定区块号状态中给定地址的 wei 数量。
func (api *BlockChainAPI) GetBalance(ctx context.Context, address common.Address, blockNrOrHash rpc.BlockNumberOrHash) (*hexutil.Big, error) {
	statedb, _, err := api.b.StateAndHeaderByNumberOrHash(ctx, blockNrOrHash)
	if statedb == nil || err != nil {
		return nil, classify(err)
	}
	statedb.SetContext(ctx)
	b := statedb.GetBalance(address).ToBig()
	return (*hexutil.Big)(b), classify(statedb.Error())
}

// GetCode returns the code stored at the given address in the state for the given block number.
// GetCode 返回给定区块号状态中给定地址存储的代码。
func (api *BlockChainAPI) GetCode(ctx context.Context, address common.Address, blockNrOrHash rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	statedb, _, err := api.b.StateAndHeaderByNumberOrHash(ctx, blockNrOrHash)
	if statedb == nil || err != nil {
		return nil, classify(err)
	}
	statedb.SetContext(ctx)
	code := statedb.GetCode(address)
	return code, classify(statedb.Error())
}

// GetStorageAt returns the storage from the state at the given address, key and
// block number. The rpc.LatestBlockNumber and rpc.PendingBlockNumber meta block
// numbers are also allowed.
// GetStorageAt 返回给定地址、键和区块号状态中的存储。
func (api *BlockChainAPI) GetStorageAt(ctx context.Context, address common.Address, hexKey string, blockNrOrHash rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	statedb, _, err := api.b.StateAndHeaderByNumberOrHash(ctx, blockNrOrHash)
	if statedb == nil || err != nil {
		return nil, classify(err)
	}
	key, err := decodeHash(hexKey)
	if err != nil {
		return nil, invalidParams("unable to decode storage key: %s", err)
	}
	statedb.SetContext(ctx)
	res := statedb.GetState(address, key)
	return res[:], classify(statedb.Error())
}

// decodeHash parses a hex-encoded 32-byte hash. The input may optionally
// be prefixed by 0x and can have a byte length up to 32.
func decodeHash(s string) (common.Hash, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if (len(s) & 1) > 0 {
		s = "0" + s
	}
	b, err := hexutil.Decode("0x" + s)
	if err != nil {
		return common.Hash{}, errors.New("hex string invalid")
	}
	if len(b) > 32 {
		return common.Hash{}, errors.New("hex string too long, want at most 32 bytes")
	}
	return common.BytesToHash(b), nil
}

// GetHeaderByNumber returns the requested canonical block header.
//   - When blockNr is -1 the chain pending header is returned.
//   - When blockNr is -2 the chain latest header is returned.
func (api *BlockChainAPI) GetHeaderByNumber(ctx context.Context, number rpc.BlockNumber) (map[string]interface{}, error) {
	header, err := api.b.HeaderByNumber(ctx, number)
	if header == nil || err != nil {
		return nil, classify(err)
	}
	response := RPCMarshalHeader(header)
	if number == rpc.PendingBlockNumber {
		pendingFields(response)
	}
	return response, nil
}

// GetHeaderByHash returns the requested header by hash.
func (api *BlockChainAPI) GetHeaderByHash(ctx context.Context, hash common.Hash) map[string]interface{} {
	header, _ := api.b.HeaderByHash(ctx, hash)
	if header != nil {
		return RPCMarshalHeader(header)
	}
	return nil
}

// GetBlockByNumber returns the requested canonical block.
//   - When blockNr is -1 the speculative pending block is returned.
//   - When blockNr is -2 the chain latest block is returned.
//   - When fullTx is true all transactions in the block are returned, otherwise
//     only the transaction hash is returned.
//
// GetBlockByNumber 返回请求的规范区块。
func (api *BlockChainAPI) GetBlockByNumber(ctx context.Context, number rpc.BlockNumber, fullTx bool) (map[string]interface{}, error) {
	block, err := api.b.BlockByNumber(ctx, number)
	if block == nil || err != nil {
		return nil, classify(err)
	}
	response := RPCMarshalBlock(block, fullTx, api.b.ChainConfig())
	if number == rpc.PendingBlockNumber {
		pendingFields(response)
	}
	return response, nil
}

// GetBlockByHash returns the requested block. When fullTx is true all transactions in the block are returned in full
// detail, otherwise only the transaction hash is returned.
func (api *BlockChainAPI) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (map[string]interface{}, error) {
	block, err := api.b.BlockByHash(ctx, hash)
	if block == nil || err != nil {
		return nil, classify(err)
	}
	return RPCMarshalBlock(block, fullTx, api.b.ChainConfig()), nil
}

// pendingFields nulls the fields of a pending block that are only known once
// the block is sealed.
func pendingFields(response map[string]interface{}) {
	for _, field := range []string{"hash", "nonce", "miner"} {
		response[field] = nil
	}
}

// GetBlockReceipts returns the block receipts for the given block hash or number or tag.
// GetBlockReceipts 返回给定区块哈希、区块号或标签的区块收据。
func (api *BlockChainAPI) GetBlockReceipts(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) ([]map[string]interface{}, error) {
	block, err := api.b.BlockByNumberOrHash(ctx, blockNrOrHash)
	if block == nil || err != nil {
		return nil, classify(err)
	}
	receipts, err := api.b.GetReceipts(ctx, block.Hash())
	if err != nil {
		return nil, classify(err)
	}
	txs := block.Transactions()
	if len(txs) != len(receipts) {
		return nil, internalError(fmt.Errorf("receipts length mismatch: %d vs %d", len(txs), len(receipts)))
	}
	signer := types.MakeSigner(api.b.ChainConfig(), block.Number(), block.Time())

	result := make([]map[string]interface{}, len(receipts))
	for i, receipt := range receipts {
		result[i] = marshalReceipt(receipt, block.Hash(), block.NumberU64(), signer, txs[i], i)
	}
	return result, nil
}

// Call executes the given transaction on the state for the given block number.
//
// Additionally, the caller can specify a batch of contract for fields overriding.
//
// Note, this function doesn't make and changes in the state/blockchain and is
// useful to execute and retrieve values.
// Call 在给定区块号的状态上执行给定的交易，不改变状态或区块链。
func (api *BlockChainAPI) Call(ctx context.Context, args TransactionArgs, blockNrOrHash *rpc.BlockNumberOrHash, overrides *execution.StateOverride, blockOverrides *execution.BlockOverrides) (hexutil.Bytes, error) {
	if blockNrOrHash == nil {
		latest := rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)
		blockNrOrHash = &latest
	}
	params := args.callParams(blockNrOrHash)
	if overrides != nil {
		params.StateOverrides = *overrides
	}
	params.BlockOverrides = blockOverrides

	result, err := api.b.Pipeline().Call(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return result.ReturnData, nil
}

// EstimateGas returns the lowest possible gas limit that allows the transaction to run
// successfully at block `blockNrOrHash`, or the latest block if `blockNrOrHash` is unspecified. It
// returns error if the transaction would revert or if there are unexpected failures. The returned
// value is capped by both `args.Gas` (if non-nil & non-zero) and the backend's RPCGasCap
// configuration (if non-zero).
// EstimateGas 返回允许交易在指定区块成功运行的最低 gas 限制。
func (api *BlockChainAPI) EstimateGas(ctx context.Context, args TransactionArgs, blockNrOrHash *rpc.BlockNumberOrHash, overrides *execution.StateOverride) (hexutil.Uint64, error) {
	if blockNrOrHash == nil {
		latest := rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)
		blockNrOrHash = &latest
	}
	params := args.callParams(blockNrOrHash)
	if overrides != nil {
		params.StateOverrides = *overrides
	}
	gas, err := api.b.Pipeline().EstimateGas(ctx, params)
	if err != nil {
		return 0, classify(err)
	}
	return hexutil.Uint64(gas), nil
}

// accessListResult returns an optional accesslist
// It's the result of the `debug_createAccessList` RPC call.
// It contains an error if the transaction itself failed.
type accessListResult struct {
	Accesslist *types.AccessList `json:"accessList"`
	Error      string            `json:"error,omitempty"`
	GasUsed    hexutil.Uint64    `json:"gasUsed"`
}

// CreateAccessList creates an EIP-2930 type AccessList for the given transaction.
// Reexec and BlockNrOrHash can be specified to create the accessList on top of a certain state.
// CreateAccessList 为给定交易创建 EIP-2930 类型的访问列表。
func (api *BlockChainAPI) CreateAccessList(ctx context.Context, args TransactionArgs, blockNrOrHash *rpc.BlockNumberOrHash) (*accessListResult, error) {
	if blockNrOrHash == nil {
		pending := rpc.BlockNumberOrHashWithNumber(rpc.PendingBlockNumber)
		blockNrOrHash = &pending
	}
	res, err := api.b.Pipeline().CreateAccessList(ctx, args.callParams(blockNrOrHash))
	if err != nil {
		return nil, classify(err)
	}
	result := &accessListResult{Accesslist: &res.AccessList, GasUsed: res.GasUsed}
	if res.Error != nil {
		result.Error = res.Error.Message
	}
	return result, nil
}

// NetAPI offers network related RPC methods. The node never dials out, so it
// reports itself as listening with no peers.
type NetAPI struct {
	b Backend
}

// NewNetAPI creates a new net API instance.
func NewNetAPI(b Backend) *NetAPI {
	return &NetAPI{b}
}

// Listening returns an indication if the node is listening for network connections.
func (api *NetAPI) Listening() bool {
	return true
}

// PeerCount returns the number of connected peers.
func (api *NetAPI) PeerCount() hexutil.Uint {
	return 0
}

// Version returns the current ethereum protocol version, which is the chain id
// for a development node.
func (api *NetAPI) Version() string {
	return api.b.ChainConfig().ChainID.String()
}

// Web3API offers helper utils.
type Web3API struct {
	b Backend
}

// NewWeb3API creates a new Web3Service instance.
func NewWeb3API(b Backend) *Web3API {
	return &Web3API{b}
}

// ClientVersion returns the node name.
func (api *Web3API) ClientVersion() string {
	return api.b.ClientVersion()
}

// Sha3 applies the ethereum sha3 implementation on the input.
// It assumes the input is hex encoded.
func (api *Web3API) Sha3(input hexutil.Bytes) hexutil.Bytes {
	return crypto.Keccak256(input)
}
