// Package orderbuilder implements the order builder (C7): assembles the
// approve-if-needed and swap transactions for a sized trade, with nonce,
// gas-fee, and deadline fields attached per the target chain's policy.
package orderbuilder

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/market-maker/optimizer"
)

var (
	addressTy, _ = abi.NewType("address", "", nil)
	uint256Ty, _ = abi.NewType("uint256", "", nil)

	approveSelector = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	approveArgs     = abi.Arguments{{Type: addressTy}, {Type: uint256Ty}}
)

// GasFees is the EIP-1559 fee pair, or a bundle-equivalent flat price when
// MaxPriorityFeePerGas is left nil.
type GasFees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Transaction is one unsigned, chain-agnostic call the execution adapter
// must submit, in order.
type Transaction struct {
	To       common.Address
	Data     []byte
	GasLimit uint64
	Fees     GasFees
	Nonce    uint64
}

// Order is the final output of the order builder: an ordered transaction
// list plus the pre-simulation result the execution adapter may log or
// compare against on-chain inclusion.
type Order struct {
	Transactions []Transaction
	MinAmountOut *big.Int
	Deadline     uint64
	PreSimResult optimizer.Trade
}

// SwapEncoder builds the calldata for the protocol-specific swap call. One
// implementation per router/protocol target; supplied by the execution
// adapter's wiring since only it knows the router ABI in use.
type SwapEncoder interface {
	EncodeSwap(tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int, deadline uint64) ([]byte, error)
}

// Config holds the policy inputs shared by every order this builder
// constructs for a single chain/router pairing.
type Config struct {
	Router         common.Address
	DeadlineOffset time.Duration
	GasLimit       uint64
	Encoder        SwapEncoder
}

// Build assembles the ordered transaction list for trade, optionally
// prefixed by an approve call when needsApproval is true.
func Build(
	cfg Config,
	trade optimizer.Trade,
	tokenIn, tokenOut common.Address,
	nonce uint64,
	blockTime uint64,
	fees GasFees,
	needsApproval bool,
	approveAmount *big.Int,
) (Order, error) {
	if cfg.Encoder == nil {
		return Order{}, fmt.Errorf("orderbuilder: no SwapEncoder configured")
	}

	deadline := blockTime + uint64(cfg.DeadlineOffset.Seconds())

	var txs []Transaction
	nextNonce := nonce

	if needsApproval {
		data, err := encodeApprove(cfg.Router, approveAmount)
		if err != nil {
			return Order{}, fmt.Errorf("orderbuilder: encode approve: %w", err)
		}
		txs = append(txs, Transaction{
			To:       tokenIn,
			Data:     data,
			GasLimit: cfg.GasLimit,
			Fees:     fees,
			Nonce:    nextNonce,
		})
		nextNonce++
	}

	swapData, err := cfg.Encoder.EncodeSwap(tokenIn, tokenOut, trade.AmountIn, trade.MinAmountOut, deadline)
	if err != nil {
		return Order{}, fmt.Errorf("orderbuilder: encode swap: %w", err)
	}
	txs = append(txs, Transaction{
		To:       cfg.Router,
		Data:     swapData,
		GasLimit: cfg.GasLimit,
		Fees:     fees,
		Nonce:    nextNonce,
	})

	return Order{
		Transactions: txs,
		MinAmountOut: trade.MinAmountOut,
		Deadline:     deadline,
		PreSimResult: trade,
	}, nil
}

func encodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	packed, err := approveArgs.Pack(spender, amount)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, len(approveSelector)+len(packed))
	data = append(data, approveSelector...)
	data = append(data, packed...)
	return data, nil
}
