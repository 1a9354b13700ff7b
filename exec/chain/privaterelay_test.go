package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	sendErr     error
	failUntil   uint64
	sentBundles []uint64
}

func (r *fakeRelay) SendBundle(_ context.Context, _ []*types.Transaction, targetBlock uint64) error {
	r.sentBundles = append(r.sentBundles, targetBlock)
	if r.sendErr != nil {
		return r.sendErr
	}
	if targetBlock < r.failUntil {
		return errors.New("bundle rejected: target block passed")
	}
	return nil
}

func TestPrivateRelay_Execute_LandsOnFirstTarget(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)

	rpc := testKey(t)
	relay := &fakeRelay{}

	adapter := NewPrivateRelay(PrivateRelayConfig{
		RPC: rpc, Relay: relay, Key: key, Wallet: crypto.PubkeyToAddress(key.PublicKey),
		ChainID: big.NewInt(1), Logger: nullLogger{}, PollInterval: time.Millisecond,
	})

	result, err := adapter.Execute(context.Background(), testOrder())
	require.NoError(t, err)
	assert.True(t, result.Submitted)
	assert.True(t, result.Included)
	assert.Len(t, relay.sentBundles, 1)
}

func TestPrivateRelay_Execute_DiscardsAsNonFatalAfterExhaustingRetries(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)

	rpc := testKey(t)
	rpc.receiptNotFound = true
	relay := &fakeRelay{}

	adapter := NewPrivateRelay(PrivateRelayConfig{
		RPC: rpc, Relay: relay, Key: key, Wallet: crypto.PubkeyToAddress(key.PublicKey),
		ChainID: big.NewInt(1), Logger: nullLogger{}, PollInterval: time.Millisecond,
		MaxBundleBlocks: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for i := 0; i < 200; i++ {
			time.Sleep(time.Millisecond)
			rpc.blockNumber.Add(1)
		}
	}()

	result, err := adapter.Execute(ctx, testOrder())
	require.NoError(t, err)
	assert.True(t, result.Submitted)
	assert.False(t, result.Included)
	assert.Nil(t, result.Err)
	assert.Len(t, relay.sentBundles, 2)
}

func TestPrivateRelay_ApproveIfNeeded_Submits(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)

	rpc := testKey(t)
	relay := &fakeRelay{}
	adapter := NewPrivateRelay(PrivateRelayConfig{
		RPC: rpc, Relay: relay, Key: key, Wallet: crypto.PubkeyToAddress(key.PublicKey),
		ChainID: big.NewInt(1), Logger: nullLogger{},
	})

	hash, err := adapter.ApproveIfNeeded(context.Background(),
		testOrder().Transactions[0].To, testOrder().Transactions[0].To, big.NewInt(1), 1)
	require.NoError(t, err)
	assert.NotZero(t, hash)
}
