// Package exec implements the execution adapter (C8): one policy
// implementation per target chain, all satisfying the same Adapter
// contract so the supervisor never type-switches on chain kind.
package exec

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/market-maker/orderbuilder"
)

// Result is the outcome of submitting an Order.
type Result struct {
	Submitted bool
	Included  bool
	TxHash    common.Hash
	Err       error
}

// Adapter executes an Order against one target chain's submission policy.
type Adapter interface {
	// Execute submits order's transactions in sequence and waits for
	// inclusion per the adapter's policy.
	Execute(ctx context.Context, order orderbuilder.Order) (Result, error)

	// ApproveIfNeeded submits a single approve transaction for token to
	// router, reusing the adapter's fee/submission policy.
	ApproveIfNeeded(ctx context.Context, token, router common.Address, amount *big.Int, nonce uint64) (common.Hash, error)
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
