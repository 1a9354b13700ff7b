// Package evaluator implements the opportunity evaluator (C5): for every
// cached component, compares the pool's spot price against the reference
// price and emits a Readjustment when the spread is wide enough to watch.
package evaluator

import (
	"math"
	"math/big"
	"sort"

	"github.com/defistate/market-maker/pool"
)

// Side is the direction of the proposed realigning trade, expressed from the
// market maker's perspective.
type Side int

const (
	// Buy acquires base by selling quote into the pool.
	Buy Side = iota
	// Sell sends base into the pool in exchange for quote.
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Readjustment is a single candidate realigning trade, prior to sizing.
type Readjustment struct {
	Component pool.ComponentID
	Side      Side
	SpreadBps float64
	Spot      float64
	Reference float64
}

// Config holds the policy thresholds the evaluator applies to every
// candidate component.
type Config struct {
	MinWatchSpreadBps float64
	// ReserveEpsilon is the minimum normalized (decimal-adjusted) reserve on
	// the selling side required to consider a component tradeable.
	ReserveEpsilon float64
	// MinUSDValue is the smallest trade notional, in USD, worth considering.
	MinUSDValue float64
}

// Candidate is one component's pool-side facts, gathered by the caller from
// the protocol cache before calling Evaluate.
type Candidate struct {
	Component       pool.ComponentID
	Spot            float64
	BaseReserve     *big.Int
	QuoteReserve    *big.Int
	BaseDecimals    uint8
	QuoteDecimals   uint8
	GasTokenUSDRate float64
}

// Evaluate scores every candidate against reference and returns the
// resulting Readjustments ordered by decreasing |spread|. Candidates that
// fail any screen (tight spread, starved reserve, bad gas rate, notional
// floor) are silently dropped, matching the evaluator's "skip" contract.
func Evaluate(candidates []Candidate, reference float64, cfg Config) []Readjustment {
	out := make([]Readjustment, 0, len(candidates))

	for _, c := range candidates {
		r, ok := evaluateOne(c, reference, cfg)
		if !ok {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].SpreadBps) > math.Abs(out[j].SpreadBps)
	})
	return out
}

func evaluateOne(c Candidate, reference float64, cfg Config) (Readjustment, bool) {
	if reference <= 0 || c.Spot <= 0 {
		return Readjustment{}, false
	}

	spreadBps := 10_000 * (c.Spot - reference) / reference
	if math.Abs(spreadBps) <= cfg.MinWatchSpreadBps {
		return Readjustment{}, false
	}

	var side Side
	var sellingReserve *big.Int
	var sellingDecimals uint8
	// usdPerSellingUnit converts the selling reserve to USD: the quote leg
	// is already USD-denominated (see pricing.go's gasTokenPerOutputUnit
	// convention), the base leg is converted through the reference price.
	var usdPerSellingUnit float64
	if c.Spot > reference {
		side = Buy
		sellingReserve = c.QuoteReserve
		sellingDecimals = c.QuoteDecimals
		usdPerSellingUnit = 1
	} else {
		side = Sell
		sellingReserve = c.BaseReserve
		sellingDecimals = c.BaseDecimals
		usdPerSellingUnit = reference
	}

	if normalizeReserve(sellingReserve, sellingDecimals) < cfg.ReserveEpsilon {
		return Readjustment{}, false
	}

	if c.GasTokenUSDRate <= 0 {
		return Readjustment{}, false
	}

	notionalUSD := normalizeReserve(sellingReserve, sellingDecimals) * usdPerSellingUnit
	if notionalUSD < cfg.MinUSDValue {
		return Readjustment{}, false
	}

	return Readjustment{
		Component: c.Component,
		Side:      side,
		SpreadBps: spreadBps,
		Spot:      c.Spot,
		Reference: reference,
	}, true
}

func normalizeReserve(reserve *big.Int, decimals uint8) float64 {
	if reserve == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(reserve).Float64()
	return f / math.Pow(10, float64(decimals))
}
