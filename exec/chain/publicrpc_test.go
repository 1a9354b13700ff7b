package chain

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/market-maker/exec"
	"github.com/defistate/market-maker/orderbuilder"
)

// testPrivateKey is Hardhat/Anvil's well-known default account #0 key, used
// only to produce a deterministic signature in tests.
const testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type nullLogger struct{}

func (nullLogger) Debug(string, ...any) {}
func (nullLogger) Info(string, ...any)  {}
func (nullLogger) Warn(string, ...any)  {}
func (nullLogger) Error(string, ...any) {}

type fakeRPC struct {
	chainID         *big.Int
	sendErr         error
	sendErrOnce     bool
	sendCalls       int
	receipt         *types.Receipt
	receiptNotFound bool
	blockNumber     atomic.Uint64
	pendingNonce    uint64
	callErr         error
}

func (f *fakeRPC) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeRPC) SendTransaction(context.Context, *types.Transaction) error {
	f.sendCalls++
	if f.sendErr != nil && (f.sendCalls == 1 || !f.sendErrOnce) {
		return f.sendErr
	}
	return nil
}

func (f *fakeRPC) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if f.receiptNotFound {
		return nil, errors.New("not found")
	}
	return f.receipt, nil
}

func (f *fakeRPC) BlockNumber(context.Context) (uint64, error) {
	return f.blockNumber.Load(), nil
}

func (f *fakeRPC) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(2), nil }
func (f *fakeRPC) SuggestGasPrice(context.Context) (*big.Int, error)  { return big.NewInt(100), nil }

func (f *fakeRPC) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, f.callErr
}

func (f *fakeRPC) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.pendingNonce, nil
}

func testOrder() orderbuilder.Order {
	return orderbuilder.Order{
		Transactions: []orderbuilder.Transaction{
			{
				To:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
				Data:     []byte{0x01, 0x02},
				GasLimit: 200_000,
				Fees:     orderbuilder.GasFees{MaxFeePerGas: big.NewInt(10), MaxPriorityFeePerGas: big.NewInt(1)},
				Nonce:    5,
			},
		},
	}
}

func testKey(t *testing.T) *fakeRPC {
	t.Helper()
	rpc := &fakeRPC{chainID: big.NewInt(1), receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	rpc.blockNumber.Store(100)
	return rpc
}

func TestPublicRPC_Execute_SucceedsWhenIncluded(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)

	rpc := testKey(t)
	adapter := NewPublicRPC(PublicRPCConfig{
		RPC: rpc, Key: key, Wallet: crypto.PubkeyToAddress(key.PublicKey),
		ChainID: big.NewInt(1), Logger: nullLogger{}, PollInterval: time.Millisecond,
		SkipSimulation: true,
	})

	result, err := adapter.Execute(context.Background(), testOrder())
	require.NoError(t, err)
	assert.True(t, result.Submitted)
	assert.True(t, result.Included)
	assert.Nil(t, result.Err)
}

func TestPublicRPC_Execute_DetectsRevert(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)

	rpc := testKey(t)
	rpc.receipt = &types.Receipt{Status: types.ReceiptStatusFailed}
	adapter := NewPublicRPC(PublicRPCConfig{
		RPC: rpc, Key: key, Wallet: crypto.PubkeyToAddress(key.PublicKey),
		ChainID: big.NewInt(1), Logger: nullLogger{}, PollInterval: time.Millisecond,
		SkipSimulation: true,
	})

	result, err := adapter.Execute(context.Background(), testOrder())
	require.NoError(t, err)
	assert.True(t, result.Submitted)
	assert.False(t, result.Included)
	assert.Error(t, result.Err)
}

func TestPublicRPC_Execute_RetriesOnceOnTransportError(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)

	rpc := testKey(t)
	rpc.sendErr = errors.New("connection reset")
	rpc.sendErrOnce = true
	rpc.pendingNonce = 9

	adapter := NewPublicRPC(PublicRPCConfig{
		RPC: rpc, Key: key, Wallet: crypto.PubkeyToAddress(key.PublicKey),
		ChainID: big.NewInt(1), Logger: nullLogger{}, PollInterval: time.Millisecond,
		SkipSimulation: true,
	})

	result, err := adapter.Execute(context.Background(), testOrder())
	require.NoError(t, err)
	assert.True(t, result.Submitted)
	assert.Equal(t, 2, rpc.sendCalls)
}

func TestPublicRPC_Execute_TimesOutWhenNeverIncluded(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)

	rpc := testKey(t)
	rpc.receiptNotFound = true

	adapter := NewPublicRPC(PublicRPCConfig{
		RPC: rpc, Key: key, Wallet: crypto.PubkeyToAddress(key.PublicKey),
		ChainID: big.NewInt(1), Logger: nullLogger{}, PollInterval: time.Millisecond,
		InclusionBlocks: 1, SkipSimulation: true,
	})

	// Advance the observed block number past the window on every poll so the
	// timeout branch is reached instead of blocking forever.
	go func() {
		for i := 0; i < 50; i++ {
			time.Sleep(time.Millisecond)
			rpc.blockNumber.Add(10)
		}
	}()

	result, err := adapter.Execute(context.Background(), testOrder())
	require.NoError(t, err)
	assert.True(t, result.Submitted)
	assert.False(t, result.Included)
	assert.ErrorIs(t, result.Err, exec.ErrTimeout)
}

func TestPublicRPC_ApproveIfNeeded_EncodesAndSubmits(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)

	rpc := testKey(t)
	adapter := NewPublicRPC(PublicRPCConfig{
		RPC: rpc, Key: key, Wallet: crypto.PubkeyToAddress(key.PublicKey),
		ChainID: big.NewInt(1), Logger: nullLogger{},
	})

	hash, err := adapter.ApproveIfNeeded(context.Background(),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
		big.NewInt(1000), 3,
	)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)
}
