package evaluator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/defistate/market-maker/pool"
)

func baseCandidate(id pool.ComponentID, spot float64) Candidate {
	return Candidate{
		Component:       id,
		Spot:            spot,
		BaseReserve:     big.NewInt(1_000_000_000_000_000_000), // 1 token at 18 decimals
		QuoteReserve:    big.NewInt(3_000_000_000),             // 3000 at 6 decimals
		BaseDecimals:    18,
		QuoteDecimals:   6,
		GasTokenUSDRate: 3000,
	}
}

func TestEvaluate_SkipsWithinWatchBand(t *testing.T) {
	c := baseCandidate("p1", 3000.05)
	out := Evaluate([]Candidate{c}, 3000.00, Config{MinWatchSpreadBps: 5})
	assert.Empty(t, out)
}

func TestEvaluate_EmitsBuyWhenSpotAboveReference(t *testing.T) {
	c := baseCandidate("p1", 3003)
	out := Evaluate([]Candidate{c}, 3000, Config{MinWatchSpreadBps: 5})
	if assert.Len(t, out, 1) {
		assert.Equal(t, Buy, out[0].Side)
		assert.InDelta(t, 10.0, out[0].SpreadBps, 1e-6)
	}
}

func TestEvaluate_EmitsSellWhenSpotBelowReference(t *testing.T) {
	c := baseCandidate("p1", 2997)
	out := Evaluate([]Candidate{c}, 3000, Config{MinWatchSpreadBps: 5})
	if assert.Len(t, out, 1) {
		assert.Equal(t, Sell, out[0].Side)
	}
}

func TestEvaluate_OrdersByDecreasingAbsoluteSpread(t *testing.T) {
	small := baseCandidate("small", 3006) // 20 bps
	big_ := baseCandidate("big", 3030)    // 100 bps
	out := Evaluate([]Candidate{small, big_}, 3000, Config{MinWatchSpreadBps: 5})
	if assert.Len(t, out, 2) {
		assert.Equal(t, pool.ComponentID("big"), out[0].Component)
		assert.Equal(t, pool.ComponentID("small"), out[1].Component)
	}
}

func TestEvaluate_SkipsWhenGasRateNonPositive(t *testing.T) {
	c := baseCandidate("p1", 3100)
	c.GasTokenUSDRate = 0
	out := Evaluate([]Candidate{c}, 3000, Config{MinWatchSpreadBps: 5})
	assert.Empty(t, out)
}

func TestEvaluate_SkipsWhenSellingReserveStarved(t *testing.T) {
	c := baseCandidate("p1", 2500) // SELL side, selling base
	c.BaseReserve = big.NewInt(1) // effectively zero once normalized
	out := Evaluate([]Candidate{c}, 3000, Config{MinWatchSpreadBps: 5, ReserveEpsilon: 0.01})
	assert.Empty(t, out)
}

func TestEvaluate_SkipsBelowUSDFloor(t *testing.T) {
	c := baseCandidate("p1", 3100)
	out := Evaluate([]Candidate{c}, 3000, Config{MinWatchSpreadBps: 5, MinUSDValue: 1e12})
	assert.Empty(t, out)
}

func TestEvaluate_BuyNotionalUsesQuoteReserveDirectlyNotTimesReference(t *testing.T) {
	// Quote reserve normalizes to 3000 USD. A floor of 5000 must reject this
	// BUY candidate; multiplying by reference again would inflate the
	// notional to ~9,000,000 and never reject it.
	c := baseCandidate("p1", 3100)
	out := Evaluate([]Candidate{c}, 3000, Config{MinWatchSpreadBps: 5, MinUSDValue: 5000})
	assert.Empty(t, out)
}
