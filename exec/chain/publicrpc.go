// Package chain provides one Adapter implementation per target chain
// submission policy: a generic public-RPC L2, a mainnet-like public
// mempool with private relay bundling, and a fast-preconfirmation L2.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/market-maker/exec"
	"github.com/defistate/market-maker/orderbuilder"
)

// PublicRPCConfig configures a generic public-RPC L2 adapter: broadcast
// directly, wait for inclusion, optionally pre-simulate before sending.
type PublicRPCConfig struct {
	RPC             exec.RPC
	Key             *ecdsa.PrivateKey
	Wallet          common.Address
	ChainID         *big.Int
	Logger          exec.Logger
	InclusionBlocks uint64
	PollInterval    time.Duration
	MaxFeePerGasCap *big.Int
	SkipSimulation  bool
}

// PublicRPC submits transactions directly to a single RPC endpoint and
// polls for inclusion.
type PublicRPC struct {
	cfg PublicRPCConfig
}

var _ exec.Adapter = (*PublicRPC)(nil)

func NewPublicRPC(cfg PublicRPCConfig) *PublicRPC {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.InclusionBlocks == 0 {
		cfg.InclusionBlocks = 3
	}
	return &PublicRPC{cfg: cfg}
}

func (p *PublicRPC) Execute(ctx context.Context, order orderbuilder.Order) (exec.Result, error) {
	var result exec.Result
	for i, tx := range order.Transactions {
		tx.Fees = exec.CapFees(tx.Fees, p.cfg.MaxFeePerGasCap)

		if !p.cfg.SkipSimulation {
			if err := p.simulate(ctx, tx); err != nil {
				p.cfg.Logger.Error("execution reverted in pre-simulation, dropping", "error", err, "step", i)
				return exec.Result{Err: err}, nil
			}
		}

		txHash, submitErr := p.sendWithRetry(ctx, tx)
		if submitErr != nil {
			p.cfg.Logger.Error("submission failed", "error", submitErr, "step", i)
			return exec.Result{Err: submitErr}, nil
		}
		result.Submitted = true
		result.TxHash = txHash

		submittedAt, err := p.cfg.RPC.BlockNumber(ctx)
		if err != nil {
			return result, fmt.Errorf("exec: fetch block number: %w", err)
		}

		receipt, err := exec.WaitForReceipt(ctx, p.cfg.RPC, txHash, submittedAt, p.cfg.InclusionBlocks, p.cfg.PollInterval)
		if err != nil {
			if errors.Is(err, exec.ErrTimeout) {
				p.cfg.Logger.Warn("transaction not included within window", "tx_hash", txHash)
				result.Err = exec.ErrTimeout
				return result, nil
			}
			return result, err
		}
		if exec.Reverted(receipt) {
			p.cfg.Logger.Error("transaction reverted on-chain", "tx_hash", txHash)
			result.Err = fmt.Errorf("exec: transaction %s reverted", txHash)
			return result, nil
		}
	}

	result.Included = true
	return result, nil
}

func (p *PublicRPC) ApproveIfNeeded(ctx context.Context, token, router common.Address, amount *big.Int, nonce uint64) (common.Hash, error) {
	tx, err := buildApproveTx(ctx, p.cfg.RPC, router, token, amount, nonce, p.cfg.MaxFeePerGasCap)
	if err != nil {
		return common.Hash{}, err
	}
	return p.sendWithRetry(ctx, tx)
}

func (p *PublicRPC) sendWithRetry(ctx context.Context, tx orderbuilder.Transaction) (common.Hash, error) {
	return sendWithRetry(ctx, p.cfg.RPC, p.cfg.ChainID, p.cfg.Key, p.cfg.Wallet, p.cfg.Logger, tx)
}

func (p *PublicRPC) simulate(ctx context.Context, tx orderbuilder.Transaction) error {
	_, err := p.cfg.RPC.CallContract(ctx, ethereum.CallMsg{
		From: p.cfg.Wallet,
		To:   &tx.To,
		Data: tx.Data,
	}, nil)
	return err
}
