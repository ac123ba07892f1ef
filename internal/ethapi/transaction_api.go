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
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/evmts/tevm-node/core/txpool"
)

// TransactionAPI exposes methods for reading and creating transaction data.
// TransactionAPI 暴露用于读取和创建交易数据的方法。
type TransactionAPI struct {
	b         Backend
	nonceLock *AddrLocker
}

// NewTransactionAPI creates a new RPC service with methods for interacting with transactions.
func NewTransactionAPI(b Backend, nonceLock *AddrLocker) *TransactionAPI {
	return &TransactionAPI{b, nonceLock}
}

// GetBlockTransactionCountByNumber returns the number of transactions in the block with the given block number.
func (api *TransactionAPI) GetBlockTransactionCountByNumber(ctx context.Context, blockNr rpc.BlockNumber) *hexutil.Uint {
	if block, _ := api.b.BlockByNumber(ctx, blockNr); block != nil {
		n := hexutil.Uint(len(block.Transactions()))
		return &n
	}
	return nil
}

// GetBlockTransactionCountByHash returns the number of transactions in the block with the given hash.
func (api *TransactionAPI) GetBlockTransactionCountByHash(ctx context.Context, blockHash common.Hash) *hexutil.Uint {
	if block, _ := api.b.BlockByHash(ctx, blockHash); block != nil {
		n := hexutil.Uint(len(block.Transactions()))
		return &n
	}
	return nil
}

// GetTransactionByBlockNumberAndIndex returns the transaction for the given block number and index.
func (api *TransactionAPI) GetTransactionByBlockNumberAndIndex(ctx context.Context, blockNr rpc.BlockNumber, index hexutil.Uint) *RPCTransaction {
	if block, _ := api.b.BlockByNumber(ctx, blockNr); block != nil {
		return newRPCTransactionFromBlockIndex(block, uint64(index), api.b.ChainConfig())
	}
	return nil
}

// GetTransactionByBlockHashAndIndex returns the transaction for the given block hash and index.
func (api *TransactionAPI) GetTransactionByBlockHashAndIndex(ctx context.Context, blockHash common.Hash, index hexutil.Uint) *RPCTransaction {
	if block, _ := api.b.BlockByHash(ctx, blockHash); block != nil {
		return newRPCTransactionFromBlockIndex(block, uint64(index), api.b.ChainConfig())
	}
	return nil
}

// GetRawTransactionByBlockNumberAndIndex returns the bytes of the transaction for the given block number and index.
func (api *TransactionAPI) GetRawTransactionByBlockNumberAndIndex(ctx context.Context, blockNr rpc.BlockNumber, index hexutil.Uint) hexutil.Bytes {
	if block, _ := api.b.BlockByNumber(ctx, blockNr); block != nil {
		return newRPCRawTransactionFromBlockIndex(block, uint64(index))
	}
	return nil
}

// GetTransactionCount returns the number of transactions the given address has
// sent for the given block number. At the pending tag the transactions waiting
// in the pool are counted too.
// GetTransactionCount 返回给定地址在给定区块号发送的交易数量。
func (api *TransactionAPI) GetTransactionCount(ctx context.Context, address common.Address, blockNrOrHash rpc.BlockNumberOrHash) (*hexutil.Uint64, error) {
	if blockNr, ok := blockNrOrHash.Number(); ok && blockNr == rpc.PendingBlockNumber {
		nonce, err := api.b.GetPoolNonce(ctx, address)
		if err != nil {
			return nil, classify(err)
		}
		return (*hexutil.Uint64)(&nonce), nil
	}
	statedb, _, err := api.b.StateAndHeaderByNumberOrHash(ctx, blockNrOrHash)
	if statedb == nil || err != nil {
		return nil, classify(err)
	}
	statedb.SetContext(ctx)
	nonce := statedb.GetNonce(address)
	return (*hexutil.Uint64)(&nonce), classify(statedb.Error())
}

// GetTransactionByHash returns the transaction for the given hash, looking
// into the pool when it is not mined yet.
// GetTransactionByHash 返回给定哈希的交易，若尚未打包则在交易池中查找。
func (api *TransactionAPI) GetTransactionByHash(ctx context.Context, hash common.Hash) (*RPCTransaction, error) {
	found, tx, blockHash, blockNumber, index, err := api.b.GetTransaction(ctx, hash)
	if err != nil {
		return nil, classify(err)
	}
	if found {
		header, err := api.b.HeaderByHash(ctx, blockHash)
		if err != nil || header == nil {
			return nil, classify(err)
		}
		return newRPCTransaction(tx, blockHash, blockNumber, header.Time, index, header.BaseFee, api.b.ChainConfig()), nil
	}
	if ptx := api.b.GetPoolTransaction(hash); ptx != nil {
		return NewRPCPendingTransaction(ptx.Tx, api.b.CurrentHeader(), api.b.ChainConfig()), nil
	}
	return nil, nil
}

// GetRawTransactionByHash returns the bytes of the transaction for the given hash.
func (api *TransactionAPI) GetRawTransactionByHash(ctx context.Context, hash common.Hash) (hexutil.Bytes, error) {
	found, tx, _, _, _, err := api.b.GetTransaction(ctx, hash)
	if err != nil {
		return nil, classify(err)
	}
	if !found {
		ptx := api.b.GetPoolTransaction(hash)
		if ptx == nil {
			return nil, nil
		}
		tx = ptx.Tx
	}
	return tx.MarshalBinary()
}

// GetTransactionReceipt returns the transaction receipt for the given transaction hash.
// GetTransactionReceipt 返回给定交易哈希的交易收据。
func (api *TransactionAPI) GetTransactionReceipt(ctx context.Context, hash common.Hash) (map[string]interface{}, error) {
	found, tx, blockHash, blockNumber, index, err := api.b.GetTransaction(ctx, hash)
	if err != nil {
		return nil, classify(err)
	}
	if !found {
		return nil, nil
	}
	header, err := api.b.HeaderByHash(ctx, blockHash)
	if err != nil || header == nil {
		return nil, classify(err)
	}
	receipts, err := api.b.GetReceipts(ctx, blockHash)
	if err != nil {
		return nil, classify(err)
	}
	if uint64(len(receipts)) <= index {
		return nil, nil
	}
	signer := types.MakeSigner(api.b.ChainConfig(), header.Number, header.Time)
	return marshalReceipt(receipts[index], blockHash, blockNumber, signer, tx, int(index)), nil
}

// sign signs the transaction with the local key of the sender. Senders
// without a key may still transact when impersonated.
// sign 使用发送者的本地密钥签名交易，没有密钥的发送者在被模拟时仍可交易。
func (api *TransactionAPI) sign(from common.Address, tx *types.Transaction) (*txpool.Transaction, error) {
	signer := types.LatestSigner(api.b.ChainConfig())
	if key := api.b.AccountKey(from); key != nil {
		signed, err := types.SignTx(tx, signer, key)
		if err != nil {
			return nil, internalError(err)
		}
		return txpool.NewTransaction(signed, signer)
	}
	if api.b.CanImpersonate(from) {
		return txpool.Impersonate(tx, from, signer)
	}
	return nil, unsupported("unknown account %s", from)
}

// SubmitTransaction is a helper function that submits tx to txPool and logs a message.
// SubmitTransaction 是一个辅助函数，将 tx 提交到交易池并记录消息。
func SubmitTransaction(ctx context.Context, b Backend, tx *txpool.Transaction) (common.Hash, error) {
	// If the transaction fee cap is already specified, ensure the
	// fee of the given transaction is _reasonable_.
	if err := checkTxFee(tx.Tx.GasPrice(), tx.Tx.Gas(), b.RPCTxFeeCap()); err != nil {
		return common.Hash{}, err
	}
	if err := b.SendTx(ctx, tx); err != nil {
		return common.Hash{}, txValidationError(err)
	}
	// Print a log with full tx details for manual investigations and interventions
	if to := tx.Tx.To(); to == nil {
		addr := crypto.CreateAddress(tx.From, tx.Nonce())
		log.Info("Submitted contract creation", "hash", tx.Hash().Hex(), "from", tx.From, "nonce", tx.Nonce(), "contract", addr.Hex(), "value", tx.Tx.Value())
	} else {
		log.Info("Submitted transaction", "hash", tx.Hash().Hex(), "from", tx.From, "nonce", tx.Nonce(), "recipient", to, "value", tx.Tx.Value(), "impersonated", tx.Impersonated)
	}
	return tx.Hash(), nil
}

// SendTransaction creates a transaction for the given argument, signs it and
// submits it to the transaction pool. Senders without a local key are
// accepted while impersonated.
// SendTransaction 为给定参数创建交易，签名并提交到交易池。
func (api *TransactionAPI) SendTransaction(ctx context.Context, args TransactionArgs) (common.Hash, error) {
	if args.From == nil {
		return common.Hash{}, invalidParams("missing from address")
	}
	if args.Nonce == nil {
		// Hold the mutex around signing to prevent concurrent assignment of
		// the same nonce to multiple accounts.
		api.nonceLock.LockAddr(*args.From)
		defer api.nonceLock.UnlockAddr(*args.From)
	}
	if err := args.setDefaults(ctx, api.b); err != nil {
		return common.Hash{}, classify(err)
	}
	tx, err := args.ToTransaction()
	if err != nil {
		return common.Hash{}, invalidParams("%v", err)
	}
	signed, err := api.sign(*args.From, tx)
	if err != nil {
		return common.Hash{}, err
	}
	return SubmitTransaction(ctx, api.b, signed)
}

// SendRawTransaction will add the signed transaction to the transaction pool.
// The sender is responsible for signing the transaction and using the correct nonce.
// SendRawTransaction 将签名交易添加到交易池。
func (api *TransactionAPI) SendRawTransaction(ctx context.Context, input hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, invalidParams("invalid raw transaction: %v", err)
	}
	ptx, err := txpool.Recover(tx, types.LatestSigner(api.b.ChainConfig()))
	if err != nil {
		return common.Hash{}, txValidationError(err)
	}
	if ptx.Impersonated && !api.b.CanImpersonate(ptx.From) {
		return common.Hash{}, txValidationError(txpool.ErrInvalidSender)
	}
	return SubmitTransaction(ctx, api.b, ptx)
}

// Sign calculates an ECDSA signature for:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
//
// Note, the produced signature conforms to the secp256k1 curve R, S and V values,
// where the V value will be 27 or 28 for legacy reasons.
//
// The account associated with addr must be unlocked.
//
// https://github.com/ethereum/wiki/wiki/JSON-RPC#eth_sign
func (api *TransactionAPI) Sign(addr common.Address, data hexutil.Bytes) (hexutil.Bytes, error) {
	key := api.b.AccountKey(addr)
	if key == nil {
		return nil, unsupported("unknown account %s", addr)
	}
	signature, err := crypto.Sign(accounts.TextHash(data), key)
	if err != nil {
		return nil, internalError(err)
	}
	signature[64] += 27 // Transform V from 0/1 to 27/28 according to the yellow paper
	return signature, nil
}

// SignTransactionResult represents a RLP encoded signed transaction.
type SignTransactionResult struct {
	Raw hexutil.Bytes      `json:"raw"`
	Tx  *types.Transaction `json:"tx"`
}

// SignTransaction will sign the given transaction with the from account.
// The node needs to have the private key of the account corresponding with
// the given from address and it needs to be unlocked.
// SignTransaction 使用 from 账户签名给定交易，不提交到交易池。
func (api *TransactionAPI) SignTransaction(ctx context.Context, args TransactionArgs) (*SignTransactionResult, error) {
	if args.From == nil {
		return nil, invalidParams("missing from address")
	}
	key := api.b.AccountKey(*args.From)
	if key == nil {
		return nil, unsupported("unknown account %s", *args.From)
	}
	if args.Gas == nil {
		return nil, invalidParams("gas not specified")
	}
	if args.GasPrice == nil && (args.MaxPriorityFeePerGas == nil || args.MaxFeePerGas == nil) {
		return nil, invalidParams("missing gasPrice or maxFeePerGas/maxPriorityFeePerGas")
	}
	if args.Nonce == nil {
		return nil, invalidParams("nonce not specified")
	}
	if err := args.setDefaults(ctx, api.b); err != nil {
		return nil, classify(err)
	}
	tx, err := args.ToTransaction()
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	signed, err := types.SignTx(tx, types.LatestSigner(api.b.ChainConfig()), key)
	if err != nil {
		return nil, internalError(err)
	}
	data, err := signed.MarshalBinary()
	if err != nil {
		return nil, internalError(err)
	}
	return &SignTransactionResult{data, signed}, nil
}

// PendingTransactions returns the transactions that are in the transaction pool
// and have a from address that is one of the accounts this node manages.
// PendingTransactions 返回交易池中 from 地址属于本节点管理账户的交易。
func (api *TransactionAPI) PendingTransactions() []*RPCTransaction {
	managed := make(map[common.Address]struct{})
	for _, addr := range api.b.Accounts() {
		managed[addr] = struct{}{}
	}
	var (
		pending, _ = api.b.TxPoolContent()
		curHeader  = api.b.CurrentHeader()
		config     = api.b.ChainConfig()
		result     = make([]*RPCTransaction, 0)
	)
	for from, txs := range pending {
		if _, ok := managed[from]; !ok {
			continue
		}
		for _, tx := range txs {
			result = append(result, NewRPCPendingTransaction(tx.Tx, curHeader, config))
		}
	}
	return result
}

// checkTxFee is an internal function used to check whether the fee of
// the given transaction is _reasonable_(under the cap).
func checkTxFee(gasPrice *big.Int, gas uint64, cap float64) error {
	// Short circuit if there is no cap for transaction fee at all.
	if cap == 0 {
		return nil
	}
	feeEth := new(big.Float).Quo(new(big.Float).SetInt(new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas))), new(big.Float).SetInt(big.NewInt(params.Ether)))
	feeFloat, _ := feeEth.Float64()
	if feeFloat > cap {
		return fmt.Errorf("tx fee (%.2f ether) exceeds the configured cap (%.2f ether)", feeFloat, cap)
	}
	return nil
}
