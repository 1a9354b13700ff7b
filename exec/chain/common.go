package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/market-maker/exec"
	"github.com/defistate/market-maker/orderbuilder"
)

var approveSelector = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]

// buildApproveTx constructs an approve(spender, amount) transaction against
// token, using the chain's current fee oracle capped at maxFeePerGas.
func buildApproveTx(ctx context.Context, rpc exec.RPC, spender, token common.Address, amount *big.Int, nonce uint64, maxFeePerGas *big.Int) (orderbuilder.Transaction, error) {
	tip, err := rpc.SuggestGasTipCap(ctx)
	if err != nil {
		return orderbuilder.Transaction{}, fmt.Errorf("exec: suggest gas tip cap: %w", err)
	}
	feeCap, err := rpc.SuggestGasPrice(ctx)
	if err != nil {
		return orderbuilder.Transaction{}, fmt.Errorf("exec: suggest gas price: %w", err)
	}

	data := make([]byte, 0, 4+32+32)
	data = append(data, approveSelector...)
	data = append(data, leftPad32(spender.Bytes())...)
	data = append(data, leftPad32(amount.Bytes())...)

	fees := exec.CapFees(orderbuilder.GasFees{
		MaxFeePerGas:         feeCap,
		MaxPriorityFeePerGas: tip,
	}, maxFeePerGas)

	return orderbuilder.Transaction{
		To:       token,
		Data:     data,
		GasLimit: 60_000,
		Fees:     fees,
		Nonce:    nonce,
	}, nil
}

func leftPad32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// sendWithRetry signs and broadcasts tx, retrying exactly once with a
// freshly queried nonce on transport failure.
func sendWithRetry(ctx context.Context, rpc exec.RPC, chainID *big.Int, key *ecdsa.PrivateKey, wallet common.Address, logger exec.Logger, tx orderbuilder.Transaction) (common.Hash, error) {
	signed, err := exec.SignTx(chainID, key, tx)
	if err != nil {
		return common.Hash{}, err
	}
	sendErr := rpc.SendTransaction(ctx, signed)
	if sendErr == nil {
		return signed.Hash(), nil
	}
	logger.Warn("broadcast failed, retrying once with fresh nonce", "error", sendErr)

	freshNonce, err := rpc.PendingNonceAt(ctx, wallet)
	if err != nil {
		return common.Hash{}, fmt.Errorf("exec: fetch fresh nonce after failed broadcast: %w", err)
	}
	tx.Nonce = freshNonce
	retrySigned, err := exec.SignTx(chainID, key, tx)
	if err != nil {
		return common.Hash{}, err
	}
	if err := rpc.SendTransaction(ctx, retrySigned); err != nil {
		return common.Hash{}, fmt.Errorf("exec: broadcast retry failed: %w", err)
	}
	return retrySigned.Hash(), nil
}
