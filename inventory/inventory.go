// Package inventory implements the inventory/allowance manager (C4): wallet
// balance, gas, and allowance reads needed once per evaluation tick.
package inventory

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	balanceOfSelector  = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	allowanceSelector  = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
)

// RPC is the subset of ethclient.Client the inventory manager needs.
type RPC interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// MarketContext is the per-tick snapshot of chain facts the evaluator and
// order builder need but that don't belong in the protocol cache: the block
// the tick is evaluated against and the wallet's current nonce.
type MarketContext struct {
	BlockNumber uint64
	Nonce       uint64
}

// Inventory is the wallet's base/quote/gas-token holdings and router
// allowances as of the most recent fetch.
type Inventory struct {
	BaseBalance  *big.Int
	QuoteBalance *big.Int
	GasBalance   *big.Int

	BaseAllowance  *big.Int
	QuoteAllowance *big.Int
}

// Config holds the wiring needed to read wallet state.
type Config struct {
	RPC    RPC
	Wallet common.Address
	Router common.Address

	BaseToken  common.Address
	QuoteToken common.Address
	GasToken   common.Address // zero address means the chain's native asset
}

// Manager fetches wallet balances, allowances, and chain context on demand.
// Results are not cached across ticks; each call performs fresh RPC reads so
// that Apply-time decisions always see the latest on-chain state.
type Manager struct {
	cfg Config
}

// NewManager constructs a Manager from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// FetchContext reads the wallet's pending nonce (the node's current value,
// not one read as of block) and stamps the result with block.
func (m *Manager) FetchContext(ctx context.Context, block uint64) (MarketContext, error) {
	nonce, err := m.cfg.RPC.PendingNonceAt(ctx, m.cfg.Wallet)
	if err != nil {
		return MarketContext{}, fmt.Errorf("inventory: fetch nonce: %w", err)
	}
	return MarketContext{BlockNumber: block, Nonce: nonce}, nil
}

// FetchInventory reads balances and router allowances for base and quote.
func (m *Manager) FetchInventory(ctx context.Context) (Inventory, error) {
	var inv Inventory
	var err error

	if inv.BaseBalance, err = m.tokenBalance(ctx, m.cfg.BaseToken); err != nil {
		return Inventory{}, fmt.Errorf("inventory: base balance: %w", err)
	}
	if inv.QuoteBalance, err = m.tokenBalance(ctx, m.cfg.QuoteToken); err != nil {
		return Inventory{}, fmt.Errorf("inventory: quote balance: %w", err)
	}
	if inv.GasBalance, err = m.gasBalance(ctx); err != nil {
		return Inventory{}, fmt.Errorf("inventory: gas balance: %w", err)
	}

	if inv.BaseAllowance, err = m.allowance(ctx, m.cfg.BaseToken); err != nil {
		return Inventory{}, fmt.Errorf("inventory: base allowance: %w", err)
	}
	if inv.QuoteAllowance, err = m.allowance(ctx, m.cfg.QuoteToken); err != nil {
		return Inventory{}, fmt.Errorf("inventory: quote allowance: %w", err)
	}

	return inv, nil
}

func (m *Manager) gasBalance(ctx context.Context) (*big.Int, error) {
	if m.cfg.GasToken == (common.Address{}) {
		return m.cfg.RPC.BalanceAt(ctx, m.cfg.Wallet, nil)
	}
	return m.tokenBalance(ctx, m.cfg.GasToken)
}

func (m *Manager) tokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	data := append(append([]byte{}, balanceOfSelector...), leftPad32(m.cfg.Wallet.Bytes())...)
	raw, err := m.cfg.RPC.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (m *Manager) allowance(ctx context.Context, token common.Address) (*big.Int, error) {
	data := append(append([]byte{}, allowanceSelector...), leftPad32(m.cfg.Wallet.Bytes())...)
	data = append(data, leftPad32(m.cfg.Router.Bytes())...)
	raw, err := m.cfg.RPC.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func leftPad32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
