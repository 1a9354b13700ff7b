package exec

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/defistate/market-maker/orderbuilder"
)

// ErrTimeout is returned by WaitForReceipt when a transaction is not
// included within the configured window.
var ErrTimeout = errors.New("exec: inclusion timeout")

// RPC is the subset of an Ethereum JSON-RPC client every chain policy needs
// to sign, broadcast, and confirm a transaction.
type RPC interface {
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// CapFees clamps fees against the configured gas-limit-equivalent price
// ceiling, per the chain's fee-oracle policy.
func CapFees(fees orderbuilder.GasFees, maxFeePerGas *big.Int) orderbuilder.GasFees {
	if maxFeePerGas == nil || fees.MaxFeePerGas == nil {
		return fees
	}
	if fees.MaxFeePerGas.Cmp(maxFeePerGas) > 0 {
		fees.MaxFeePerGas = new(big.Int).Set(maxFeePerGas)
		if fees.MaxPriorityFeePerGas != nil && fees.MaxPriorityFeePerGas.Cmp(maxFeePerGas) > 0 {
			fees.MaxPriorityFeePerGas = new(big.Int).Set(maxFeePerGas)
		}
	}
	return fees
}

// SignTx builds and signs an EIP-1559 transaction from a chain-agnostic
// orderbuilder.Transaction.
func SignTx(chainID *big.Int, key *ecdsa.PrivateKey, tx orderbuilder.Transaction) (*types.Transaction, error) {
	if key == nil {
		return nil, errors.New("exec: signing key is required")
	}
	inner := &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     tx.Nonce,
		GasTipCap: tx.Fees.MaxPriorityFeePerGas,
		GasFeeCap: tx.Fees.MaxFeePerGas,
		Gas:       tx.GasLimit,
		To:        &tx.To,
		Data:      tx.Data,
	}
	signed, err := types.SignNewTx(key, types.LatestSignerForChainID(chainID), inner)
	if err != nil {
		return nil, fmt.Errorf("exec: sign transaction: %w", err)
	}
	return signed, nil
}

// WaitForReceipt polls for a transaction's receipt until it is included or
// maxBlocks have elapsed since submission, whichever comes first.
func WaitForReceipt(ctx context.Context, rpc RPC, txHash common.Hash, submittedAtBlock, maxBlocks uint64, pollInterval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := rpc.TransactionReceipt(ctx, txHash)
			if err == nil {
				return receipt, nil
			}
			current, blkErr := rpc.BlockNumber(ctx)
			if blkErr == nil && current > submittedAtBlock+maxBlocks {
				return nil, ErrTimeout
			}
		}
	}
}

// Reverted reports whether receipt indicates a reverted execution.
func Reverted(receipt *types.Receipt) bool {
	return receipt != nil && receipt.Status == types.ReceiptStatusFailed
}
