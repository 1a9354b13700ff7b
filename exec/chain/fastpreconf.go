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

// Preconfirmer submits a signed transaction to a preconfirmation endpoint
// and blocks until the endpoint acknowledges inclusion or the context is
// cancelled.
type Preconfirmer interface {
	SubmitAndAwaitAck(ctx context.Context, tx *types.Transaction) error
}

// FastPreconfConfig configures a fast-preconfirmation L2 adapter: bypass
// pre-simulation when a preconfirmation endpoint is configured, submit and
// await its ack in place of polling for a receipt.
type FastPreconfConfig struct {
	RPC             exec.RPC
	Preconf         Preconfirmer
	Key             *ecdsa.PrivateKey
	Wallet          common.Address
	ChainID         *big.Int
	Logger          exec.Logger
	AckTimeout      time.Duration
	MaxFeePerGasCap *big.Int
}

// FastPreconf submits directly to a preconfirmation endpoint, trusting its
// ack in place of the usual receipt-polling wait.
type FastPreconf struct {
	cfg FastPreconfConfig
}

var _ exec.Adapter = (*FastPreconf)(nil)

func NewFastPreconf(cfg FastPreconfConfig) *FastPreconf {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 2 * time.Second
	}
	return &FastPreconf{cfg: cfg}
}

func (f *FastPreconf) Execute(ctx context.Context, order orderbuilder.Order) (exec.Result, error) {
	var result exec.Result
	for i, tx := range order.Transactions {
		tx.Fees = exec.CapFees(tx.Fees, f.cfg.MaxFeePerGasCap)
		signed, err := exec.SignTx(f.cfg.ChainID, f.cfg.Key, tx)
		if err != nil {
			return exec.Result{}, err
		}

		ackCtx, cancel := context.WithTimeout(ctx, f.cfg.AckTimeout)
		err = f.cfg.Preconf.SubmitAndAwaitAck(ackCtx, signed)
		cancel()
		if err != nil {
			f.cfg.Logger.Error("preconfirmation submission failed", "error", err, "step", i)
			result.Err = fmt.Errorf("exec: preconfirmation submission: %w", err)
			return result, nil
		}

		result.Submitted = true
		result.TxHash = signed.Hash()
	}

	result.Included = true
	return result, nil
}

func (f *FastPreconf) ApproveIfNeeded(ctx context.Context, token, router common.Address, amount *big.Int, nonce uint64) (common.Hash, error) {
	tx, err := buildApproveTx(ctx, f.cfg.RPC, router, token, amount, nonce, f.cfg.MaxFeePerGasCap)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := exec.SignTx(f.cfg.ChainID, f.cfg.Key, tx)
	if err != nil {
		return common.Hash{}, err
	}

	ackCtx, cancel := context.WithTimeout(ctx, f.cfg.AckTimeout)
	defer cancel()
	if err := f.cfg.Preconf.SubmitAndAwaitAck(ackCtx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("exec: approve preconfirmation: %w", err)
	}
	return signed.Hash(), nil
}
