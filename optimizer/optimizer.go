package optimizer

import (
	"errors"
	"math/big"
)

// ErrSkipOpportunity is returned when no feasible amount_in was found, or the
// optimized trade fails the executable-spread floor; the caller must drop
// the opportunity for this tick rather than treat it as an error.
var ErrSkipOpportunity = errors.New("optimizer: opportunity skipped")

// Simulator prices a candidate amount_in against the protocol cache,
// mirroring pool.Cache.Simulate.
type Simulator func(amountIn *big.Int) (amountOut *big.Int, gasEstimate uint64, err error)

// Config carries the economic parameters needed to build Π(a) and score the
// optimizer's result.
type Config struct {
	Search SearchConfig

	// ReferencePriceOutPerIn is the reference price expressed in output
	// token units per input token unit, i.e. the fair-value exchange rate
	// for this trade's direction.
	ReferencePriceOutPerIn float64
	// GasPriceWei is the chain's current gas price.
	GasPriceWei *big.Int
	// GasTokenPerOutputUnit converts one unit of gas token into output-token
	// units, so gas_cost(a) can be subtracted directly from value_out(a).
	GasTokenPerOutputUnit float64

	MaxSlippagePct         float64
	MinExecutableSpreadBps float64
}

// Trade is the sized, scored result of optimizing a single Readjustment.
type Trade struct {
	AmountIn       *big.Int
	AmountOut      *big.Int
	MinAmountOut   *big.Int
	GasEstimate    uint64
	ProfitDeltaBps float64
}

// Optimize finds the profit-maximizing amount_in in [aMin, aMax] and returns
// the sized trade, or ErrSkipOpportunity if none clears the executable
// spread floor.
func Optimize(sim Simulator, aMin, aMax *big.Int, cfg Config) (Trade, error) {
	objective := func(amountIn *big.Int) (float64, bool) {
		amountOut, gasEstimate, err := sim(amountIn)
		if err != nil || amountOut == nil {
			return 0, false
		}

		amountInF, _ := new(big.Float).SetInt(amountIn).Float64()
		amountOutF, _ := new(big.Float).SetInt(amountOut).Float64()
		if !isFinite(amountInF) || !isFinite(amountOutF) {
			return 0, false
		}

		gasCost := gasTokenCost(gasEstimate, cfg.GasPriceWei) * cfg.GasTokenPerOutputUnit
		profit := amountOutF - amountInF*cfg.ReferencePriceOutPerIn - gasCost
		if !isFinite(profit) {
			return 0, false
		}

		return profit, true
	}

	result, ok := Search(objective, aMin, aMax, cfg.Search)
	if !ok {
		return Trade{}, ErrSkipOpportunity
	}

	// Re-simulate at the winning amount so the returned trade reflects the
	// exact amountOut/gas for that point, not a stale closure capture from a
	// different probe.
	amountOut, gasEstimate, err := sim(result.AmountIn)
	if err != nil || amountOut == nil {
		return Trade{}, ErrSkipOpportunity
	}

	amountInF, _ := new(big.Float).SetInt(result.AmountIn).Float64()
	amountOutF, _ := new(big.Float).SetInt(amountOut).Float64()
	denom := amountInF * cfg.ReferencePriceOutPerIn
	gasCost := gasTokenCost(gasEstimate, cfg.GasPriceWei) * cfg.GasTokenPerOutputUnit

	profitDeltaBps := 0.0
	if denom != 0 {
		profitDeltaBps = 10_000 * (amountOutF - denom - gasCost) / denom
	}

	if profitDeltaBps < cfg.MinExecutableSpreadBps {
		return Trade{}, ErrSkipOpportunity
	}

	minOut := new(big.Float).Mul(
		new(big.Float).SetInt(amountOut),
		big.NewFloat(1-cfg.MaxSlippagePct),
	)
	minAmountOut, _ := minOut.Int(nil)

	return Trade{
		AmountIn:       result.AmountIn,
		AmountOut:      amountOut,
		MinAmountOut:   minAmountOut,
		GasEstimate:    gasEstimate,
		ProfitDeltaBps: profitDeltaBps,
	}, nil
}

func gasTokenCost(gasEstimate uint64, gasPriceWei *big.Int) float64 {
	if gasPriceWei == nil {
		return 0
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasEstimate), gasPriceWei)
	f, _ := new(big.Float).SetInt(cost).Float64()
	return f / 1e18
}
