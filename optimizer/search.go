package optimizer

import (
	"math"
	"math/big"
)

// golden is the reciprocal of the golden ratio, used to place the two
// interior probe points of the golden-section search.
var golden = (math.Sqrt(5) - 1) / 2

// Objective evaluates the profit of trading amountIn. ok is false when the
// simulator could not price this amount (extreme ratio, overflow, pool
// exhausted); such points are never selected as the optimum.
type Objective func(amountIn *big.Int) (profit float64, ok bool)

// SearchConfig bounds the golden-section/bisection search.
type SearchConfig struct {
	// Tolerance is the relative profit-improvement floor below which the
	// search stops early.
	Tolerance float64
	// MaxIterations caps the total number of objective evaluations across
	// both the golden-section and bisection phases.
	MaxIterations int
}

func (c SearchConfig) withDefaults() SearchConfig {
	if c.Tolerance <= 0 {
		c.Tolerance = 1e-4
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 64
	}
	return c
}

// Result is the outcome of a bounded search over amount_in.
type Result struct {
	AmountIn *big.Int
	Profit   float64
}

type point struct {
	logA   float64
	profit float64
	ok     bool
}

func (p point) score() float64 {
	if !p.ok {
		return math.Inf(-1)
	}
	return p.profit
}

// better returns whichever of a, b has the higher profit; ties (including
// both infeasible) resolve to the smaller amount_in, i.e. the smaller logA.
func better(a, b point) point {
	if a.score() > b.score() {
		return a
	}
	if b.score() > a.score() {
		return b
	}
	if a.logA <= b.logA {
		return a
	}
	return b
}

// Search finds amount_in* = argmax_{a in [aMin, aMax]} objective(a) using
// golden-section search over log(a), refined by bisection once the bracket
// has narrowed. Amounts are carried in log-space as float64 for the search
// itself; only the values handed to Objective are materialized as big.Int.
//
// Returns ok=false if no point in [aMin, aMax] produced a finite objective
// value, meaning the caller should skip this opportunity.
func Search(objective Objective, aMin, aMax *big.Int, cfg SearchConfig) (Result, bool) {
	cfg = cfg.withDefaults()

	if aMin == nil || aMax == nil || aMin.Sign() <= 0 || aMax.Cmp(aMin) <= 0 {
		return Result{}, false
	}

	logMin := bigLog(aMin)
	logMax := bigLog(aMax)
	if !isFinite(logMin) || !isFinite(logMax) || logMax <= logMin {
		return Result{}, false
	}

	eval := func(logA float64) point {
		a := expToAmount(logA, aMin, aMax)
		profit, ok := objective(a)
		if !isFinite(profit) {
			ok = false
		}
		return point{logA: logA, profit: profit, ok: ok}
	}

	lo, hi := logMin, logMax
	iterations := 0

	x1 := hi - golden*(hi-lo)
	x2 := lo + golden*(hi-lo)
	p1 := eval(x1)
	p2 := eval(x2)
	iterations += 2

	best := better(p1, p2)

	for iterations < cfg.MaxIterations && hi-lo > 1e-9 {
		prevBest := best.score()

		if p1.score() >= p2.score() {
			hi = x2
			x2, p2 = x1, p1
			x1 = hi - golden*(hi-lo)
			p1 = eval(x1)
		} else {
			lo = x1
			x1, p1 = x2, p2
			x2 = lo + golden*(hi-lo)
			p2 = eval(x2)
		}
		iterations++

		best = better(best, better(p1, p2))

		if relativeImprovement(prevBest, best.score()) < cfg.Tolerance {
			break
		}
	}

	// Bisection refinement: probe the midpoint of the remaining bracket and
	// keep narrowing toward whichever half holds the better profit, spending
	// any iteration budget left by the golden-section phase.
	blo, bhi := lo, hi
	for iterations+2 <= cfg.MaxIterations && bhi-blo > 1e-9 {
		mid := (blo + bhi) / 2
		left := eval((blo + mid) / 2)
		right := eval((mid + bhi) / 2)
		iterations += 2

		best = better(best, better(left, right))

		if left.score() >= right.score() {
			bhi = mid
		} else {
			blo = mid
		}
	}

	if !best.ok {
		return Result{}, false
	}

	amount := expToAmount(best.logA, aMin, aMax)
	return Result{AmountIn: amount, Profit: best.profit}, true
}

func relativeImprovement(prevBest, newBest float64) float64 {
	if math.IsInf(prevBest, -1) {
		return 1
	}
	denom := math.Abs(prevBest)
	if denom < 1e-12 {
		denom = 1e-12
	}
	return math.Abs(newBest-prevBest) / denom
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func bigLog(x *big.Int) float64 {
	f := new(big.Float).SetInt(x)
	v, _ := f.Float64()
	if v <= 0 {
		return math.Inf(-1)
	}
	return math.Log(v)
}

// expToAmount converts a log-space search point back into a big.Int amount,
// clamped to [aMin, aMax] to guard against floating-point drift at the
// bracket edges.
func expToAmount(logA float64, aMin, aMax *big.Int) *big.Int {
	v := math.Exp(logA)
	if !isFinite(v) || v <= 0 {
		return new(big.Int).Set(aMin)
	}
	bf := new(big.Float).SetFloat64(v)
	amount, _ := bf.Int(nil)
	if amount.Cmp(aMin) < 0 {
		return new(big.Int).Set(aMin)
	}
	if amount.Cmp(aMax) > 0 {
		return new(big.Int).Set(aMax)
	}
	return amount
}
