// Package swapmath computes one tick-range step of a swap: the resulting
// price, the amounts exchanged, and the fee taken. _swap (in
// pools/uniswapv3/calculator.go) calls ComputeSwapStep once per iteration of
// its tick-crossing loop, so every intermediate value here is pooled.
package swapmath

import (
	"math/big"
	"sync"

	"github.com/defistate/market-maker/pools/uniswapv3/calculator/sqrtpricemath"
)

var (
	// feeDenominator expresses fee pips out of 1,000,000 (100%).
	feeDenominator = big.NewInt(1_000_000)
	one            = big.NewInt(1)
)

// SwapMath holds the pooled big.Int working set for one ComputeSwapStep
// call: sqrtRatioNextX96/amountIn/amountOut/feeAmount are the results,
// everything else is scratch space for computeSwapStep's intermediate math.
type SwapMath struct {
	sqrtRatioNextX96 *big.Int
	amountIn         *big.Int
	amountOut        *big.Int
	feeAmount        *big.Int

	amountRemainingLessFee *big.Int
	amountRemainingAbs     *big.Int
	tempValue              *big.Int
	product                *big.Int
	rem                    *big.Int
}

var swapMathPool = sync.Pool{
	New: func() any {
		return &SwapMath{
			sqrtRatioNextX96:       new(big.Int),
			amountIn:               new(big.Int),
			amountOut:              new(big.Int),
			feeAmount:              new(big.Int),
			amountRemainingLessFee: new(big.Int),
			amountRemainingAbs:     new(big.Int),
			tempValue:              new(big.Int),
			product:                new(big.Int),
			rem:                    new(big.Int),
		}
	},
}

// ComputeSwapStep calculates the result of a swap within a single tick range.
// It determines the next price, the amounts swapped, and the fee taken.
func ComputeSwapStep(
	// destination pointers
	sqrtRatioNextX96 *big.Int,
	amountIn *big.Int,
	amountOut *big.Int,
	feeAmount *big.Int,

	sqrtRatioCurrentX96 *big.Int,
	sqrtRatioTargetX96 *big.Int,
	liquidity *big.Int,
	amountRemaining *big.Int,
	feePips *big.Int,

) (
	err error,
) {
	s := swapMathPool.Get().(*SwapMath)
	defer swapMathPool.Put(s)

	err = s.computeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining, feePips)
	if err != nil {
		return err
	}

	// Copy out of the pooled struct so it can be safely reused.
	sqrtRatioNextX96.Set(s.sqrtRatioNextX96)
	amountIn.Set(s.amountIn)
	amountOut.Set(s.amountOut)
	feeAmount.Set(s.feeAmount)

	return
}

func (s *SwapMath) computeSwapStep(
	sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining, feePips *big.Int,
) (err error) {
	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	exactIn := amountRemaining.Sign() >= 0

	// s is pooled; clear stale results from whoever used it last.
	s.amountIn.SetInt64(0)
	s.amountOut.SetInt64(0)
	s.feeAmount.SetInt64(0)

	if exactIn {
		s.tempValue.Sub(feeDenominator, feePips)
		s.mulDiv(s.amountRemainingLessFee, amountRemaining, s.tempValue, feeDenominator)

		if zeroForOne {
			err = sqrtpricemath.GetAmount0Delta(s.amountIn, sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
			if err != nil {
				return err
			}
		} else {
			sqrtpricemath.GetAmount1Delta(s.amountIn, sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)

		}

		if s.amountRemainingLessFee.Cmp(s.amountIn) >= 0 {
			s.sqrtRatioNextX96.Set(sqrtRatioTargetX96)
		} else {
			err = sqrtpricemath.GetNextSqrtPriceFromInput(s.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, s.amountRemainingLessFee, zeroForOne)
			if err != nil {
				return err
			}
		}
	} else {
		s.amountRemainingAbs.Neg(amountRemaining)

		if zeroForOne {
			sqrtpricemath.GetAmount1Delta(s.amountOut, sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			err = sqrtpricemath.GetAmount0Delta(s.amountOut, sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
			if err != nil {
				return err
			}
		}

		if s.amountRemainingAbs.Cmp(s.amountOut) >= 0 {
			s.sqrtRatioNextX96.Set(sqrtRatioTargetX96)
		} else {
			err = sqrtpricemath.GetNextSqrtPriceFromOutput(s.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, s.amountRemainingAbs, zeroForOne)
			if err != nil {
				return err
			}
		}
	}

	max := sqrtRatioTargetX96.Cmp(s.sqrtRatioNextX96) == 0

	// Recompute amounts against the price actually reached, not the target.
	if zeroForOne {
		if !(max && exactIn) {
			err = sqrtpricemath.GetAmount0Delta(s.amountIn, s.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true)
			if err != nil {
				return err
			}
		}
		if !(max && !exactIn) {
			sqrtpricemath.GetAmount1Delta(s.amountOut, s.sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false)
		}
	} else {
		if !(max && exactIn) {
			sqrtpricemath.GetAmount1Delta(s.amountIn, sqrtRatioCurrentX96, s.sqrtRatioNextX96, liquidity, true)
		}
		if !(max && !exactIn) {
			err = sqrtpricemath.GetAmount0Delta(s.amountOut, sqrtRatioCurrentX96, s.sqrtRatioNextX96, liquidity, false)
			if err != nil {
				return err
			}
		}
	}

	if !exactIn && s.amountOut.Cmp(s.amountRemainingAbs) > 0 {
		s.amountOut.Set(s.amountRemainingAbs)
	}

	if exactIn && s.sqrtRatioNextX96.Cmp(sqrtRatioTargetX96) != 0 {
		// If we didn't reach the target, the fee is the leftover input amount.
		s.feeAmount.Sub(amountRemaining, s.amountIn)
	} else {
		// Otherwise, calculate the fee based on the actual amountIn.
		s.tempValue.Sub(feeDenominator, feePips)
		s.mulDivRoundingUp(s.feeAmount, s.amountIn, feePips, s.tempValue)
	}

	return nil
}

// mulDiv writes (a * b) / c into dest.
func (s *SwapMath) mulDiv(dest, a, b, c *big.Int) {
	s.product.Mul(a, b)
	dest.Div(s.product, c)
}

// mulDivRoundingUp writes ceil((a * b) / c) into dest.
func (s *SwapMath) mulDivRoundingUp(dest, a, b, c *big.Int) {
	s.product.Mul(a, b)
	dest.Div(s.product, c)
	if s.rem.Rem(s.product, c).Sign() > 0 {
		dest.Add(dest, one)
	}
}
