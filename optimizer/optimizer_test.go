package optimizer

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constantProductSimulator simulates a simple constant-product pool without
// fees, letting tests exercise the search against a smooth, known-optimum
// objective.
func constantProductSimulator(reserveIn, reserveOut *big.Int) Simulator {
	return func(amountIn *big.Int) (*big.Int, uint64, error) {
		if amountIn.Sign() <= 0 {
			return nil, 0, errors.New("non-positive amount")
		}
		num := new(big.Int).Mul(amountIn, reserveOut)
		den := new(big.Int).Add(reserveIn, amountIn)
		return new(big.Int).Div(num, den), 21000, nil
	}
}

func TestSearch_FindsInteriorOptimum(t *testing.T) {
	sim := constantProductSimulator(big.NewInt(1_000_000_000), big.NewInt(3_000_000_000))

	objective := func(amountIn *big.Int) (float64, bool) {
		out, _, err := sim(amountIn)
		if err != nil {
			return 0, false
		}
		inF, _ := new(big.Float).SetInt(amountIn).Float64()
		outF, _ := new(big.Float).SetInt(out).Float64()
		// reference price set above the pool's average execution price so
		// profit is maximized at a moderate, interior amount rather than at
		// either bound.
		return outF - inF*2.9, true
	}

	result, ok := Search(objective, big.NewInt(1000), big.NewInt(500_000_000), SearchConfig{})
	require.True(t, ok)
	assert.True(t, result.AmountIn.Cmp(big.NewInt(1000)) > 0)
	assert.True(t, result.AmountIn.Cmp(big.NewInt(500_000_000)) < 0)
	assert.True(t, result.Profit > 0)
}

func TestSearch_RejectsInvalidBounds(t *testing.T) {
	_, ok := Search(func(*big.Int) (float64, bool) { return 0, true }, big.NewInt(100), big.NewInt(50), SearchConfig{})
	assert.False(t, ok)
}

func TestSearch_SkipsWhenObjectiveNeverFeasible(t *testing.T) {
	_, ok := Search(func(*big.Int) (float64, bool) { return 0, false }, big.NewInt(1), big.NewInt(1000), SearchConfig{})
	assert.False(t, ok)
}

func TestOptimize_ComputesMinAmountOutAndProfitDeltaBps(t *testing.T) {
	sim := constantProductSimulator(big.NewInt(1_000_000_000), big.NewInt(3_000_000_000))

	trade, err := Optimize(sim, big.NewInt(1000), big.NewInt(500_000_000), Config{
		ReferencePriceOutPerIn: 2.9,
		GasPriceWei:            big.NewInt(0),
		MaxSlippagePct:         0.01,
		MinExecutableSpreadBps: 0,
	})
	require.NoError(t, err)
	assert.True(t, trade.AmountIn.Sign() > 0)
	assert.True(t, trade.MinAmountOut.Cmp(trade.AmountOut) < 0)
	assert.True(t, trade.ProfitDeltaBps > 0)
}

func TestOptimize_SkipsBelowExecutableSpreadFloor(t *testing.T) {
	sim := constantProductSimulator(big.NewInt(1_000_000_000), big.NewInt(3_000_000_000))

	_, err := Optimize(sim, big.NewInt(1000), big.NewInt(500_000_000), Config{
		ReferencePriceOutPerIn: 2.9,
		GasPriceWei:            big.NewInt(0),
		MaxSlippagePct:         0.01,
		MinExecutableSpreadBps: 1_000_000, // unreachable floor
	})
	assert.ErrorIs(t, err, ErrSkipOpportunity)
}

func TestOptimize_SkipsWhenSimulatorAlwaysErrors(t *testing.T) {
	sim := func(*big.Int) (*big.Int, uint64, error) { return nil, 0, errors.New("boom") }
	_, err := Optimize(sim, big.NewInt(1000), big.NewInt(500_000_000), Config{ReferencePriceOutPerIn: 1})
	assert.ErrorIs(t, err, ErrSkipOpportunity)
}
