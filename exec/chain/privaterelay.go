package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/defistate/market-maker/exec"
	"github.com/defistate/market-maker/orderbuilder"
)

// RelaySender submits a signed bundle targeting a specific block to a
// private relay, returning whether the relay accepted it for inclusion
// consideration. Implementations wrap the relay's bundle-submission RPC.
type RelaySender interface {
	SendBundle(ctx context.Context, txs []*types.Transaction, targetBlock uint64) error
}

// PrivateRelayConfig configures a mainnet-like adapter: submit a bundle
// targeting current_block + InclusionBlockDelay, retry up to MaxBundleBlocks
// to land it, and treat a non-included bundle as a non-fatal miss.
type PrivateRelayConfig struct {
	RPC                 exec.RPC
	Relay               RelaySender
	Key                 *ecdsa.PrivateKey
	Wallet              common.Address
	ChainID             *big.Int
	Logger              exec.Logger
	InclusionBlockDelay uint64
	MaxBundleBlocks     uint64
	PollInterval        time.Duration
	MaxFeePerGasCap     *big.Int
}

// PrivateRelay submits transactions as a bundle to a private relay,
// retrying across successive target blocks until it lands or the retry
// budget is exhausted.
type PrivateRelay struct {
	cfg PrivateRelayConfig
}

var _ exec.Adapter = (*PrivateRelay)(nil)

func NewPrivateRelay(cfg PrivateRelayConfig) *PrivateRelay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.InclusionBlockDelay == 0 {
		cfg.InclusionBlockDelay = 1
	}
	if cfg.MaxBundleBlocks == 0 {
		cfg.MaxBundleBlocks = 3
	}
	return &PrivateRelay{cfg: cfg}
}

func (r *PrivateRelay) Execute(ctx context.Context, order orderbuilder.Order) (exec.Result, error) {
	signed := make([]*types.Transaction, 0, len(order.Transactions))
	for _, tx := range order.Transactions {
		tx.Fees = exec.CapFees(tx.Fees, r.cfg.MaxFeePerGasCap)
		s, err := exec.SignTx(r.cfg.ChainID, r.cfg.Key, tx)
		if err != nil {
			return exec.Result{}, err
		}
		signed = append(signed, s)
	}

	current, err := r.cfg.RPC.BlockNumber(ctx)
	if err != nil {
		return exec.Result{}, fmt.Errorf("exec: fetch block number: %w", err)
	}

	var lastErr error
	for attempt := uint64(0); attempt < r.cfg.MaxBundleBlocks; attempt++ {
		target := current + r.cfg.InclusionBlockDelay + attempt
		if err := r.cfg.Relay.SendBundle(ctx, signed, target); err != nil {
			r.cfg.Logger.Warn("bundle submission failed", "error", err, "target_block", target)
			lastErr = err
			continue
		}

		last := signed[len(signed)-1]
		receipt, err := exec.WaitForReceipt(ctx, r.cfg.RPC, last.Hash(), current+attempt, r.cfg.InclusionBlockDelay+1, r.cfg.PollInterval)
		if err != nil {
			r.cfg.Logger.Info("bundle not included at target block, retrying", "target_block", target)
			continue
		}
		if exec.Reverted(receipt) {
			r.cfg.Logger.Error("bundle transaction reverted on-chain", "tx_hash", last.Hash())
			return exec.Result{Submitted: true, TxHash: last.Hash(), Err: fmt.Errorf("exec: transaction %s reverted", last.Hash())}, nil
		}
		return exec.Result{Submitted: true, Included: true, TxHash: last.Hash()}, nil
	}

	r.cfg.Logger.Info("bundle missed every target block, discarding as non-fatal", "last_error", lastErr)
	return exec.Result{Submitted: true}, nil
}

func (r *PrivateRelay) ApproveIfNeeded(ctx context.Context, token, router common.Address, amount *big.Int, nonce uint64) (common.Hash, error) {
	tx, err := buildApproveTx(ctx, r.cfg.RPC, router, token, amount, nonce, r.cfg.MaxFeePerGasCap)
	if err != nil {
		return common.Hash{}, err
	}
	return sendWithRetry(ctx, r.cfg.RPC, r.cfg.ChainID, r.cfg.Key, r.cfg.Wallet, r.cfg.Logger, tx)
}
