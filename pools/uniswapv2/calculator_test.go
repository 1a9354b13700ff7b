package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool() Pool {
	return Pool{
		Address:  common.HexToAddress("0xPool"),
		Token0:   common.HexToAddress("0xA"),
		Token1:   common.HexToAddress("0xB"),
		Reserve0: big.NewInt(1_000_000_000),
		Reserve1: big.NewInt(2_000_000_000),
		FeeBps:   30,
	}
}

func TestGetAmountOut_AppliesFee(t *testing.T) {
	p := testPool()
	out, err := GetAmountOut(big.NewInt(1_000_000), p.Token0, p.Token1, p)
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)
	assert.True(t, out.Cmp(big.NewInt(2_000_000)) < 0, "fee-adjusted output must be less than the naive ratio")
}

func TestGetAmountOut_RejectsUnknownTokenPair(t *testing.T) {
	p := testPool()
	_, err := GetAmountOut(big.NewInt(1), common.HexToAddress("0xC"), p.Token1, p)
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

func TestGetAmountOut_NilAmount(t *testing.T) {
	p := testPool()
	_, err := GetAmountOut(nil, p.Token0, p.Token1, p)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSimulateSwap_UpdatesReservesWithoutMutatingInput(t *testing.T) {
	p := testPool()
	amountIn := big.NewInt(5_000_000)

	out, newPool, err := SimulateSwap(amountIn, p.Token0, p.Token1, p)
	require.NoError(t, err)

	assert.Equal(t, new(big.Int).Add(p.Reserve0, amountIn), newPool.Reserve0)
	assert.Equal(t, new(big.Int).Sub(p.Reserve1, out), newPool.Reserve1)

	// original pool must be untouched
	assert.Equal(t, big.NewInt(1_000_000_000), p.Reserve0)
	assert.Equal(t, big.NewInt(2_000_000_000), p.Reserve1)
}

func TestSpotPrice_MatchesReserveRatio(t *testing.T) {
	p := testPool()
	price, err := SpotPrice(p.Token0, p.Token1, p)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, price, 1e-9)

	inverse, err := SpotPrice(p.Token1, p.Token0, p)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, inverse, 1e-9)
}

func TestStateAdapter_SatisfiesProtocolStateAndClonesIndependently(t *testing.T) {
	s := NewState(testPool())

	out, next, gas, err := s.SimulateSwap(big.NewInt(1_000_000), s.Pool.Token0, s.Pool.Token1)
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)
	assert.Equal(t, gasEstimateSwap, gas)

	clone := s.Clone()
	clone.(*State).Pool.Reserve0.Add(clone.(*State).Pool.Reserve0, big.NewInt(999))
	assert.NotEqual(t, s.Pool.Reserve0, clone.(*State).Pool.Reserve0)

	_ = next
}
