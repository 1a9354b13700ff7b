package uniswapv3

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/market-maker/pools/uniswapv3/calculator/liquiditymath"
	"github.com/defistate/market-maker/pools/uniswapv3/calculator/swapmath"
	"github.com/defistate/market-maker/pools/uniswapv3/calculator/tickbitmap"
	"github.com/defistate/market-maker/pools/uniswapv3/calculator/tickmath"
)

var (
	// ErrInvalidAmountIn is returned when an exact-input amount is not strictly positive.
	ErrInvalidAmountIn = errors.New("uniswapv3: amountIn must be greater than zero")
	// ErrTokenMismatch is returned when the requested tokens don't match the pool's tokens.
	ErrTokenMismatch = errors.New("uniswapv3: token mismatch")

	q96, _ = new(big.Int).SetString("79228162514264337593543950336", 10)
)

// swapState holds every mutable value touched by the swap loop, pooled to
// keep simulation allocation-free on the hot path.
type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *big.Int
	tick                     int64
	liquidity                *big.Int

	sqrtPriceStartX96 *big.Int
	sqrtPriceNextX96  *big.Int
	targetPrice       *big.Int
	stepAmountIn      *big.Int
	stepAmountOut     *big.Int
	stepFeeAmount     *big.Int
	tempAmount        *big.Int
	liquidityNet      *big.Int
}

var swapStatePool = sync.Pool{
	New: func() any {
		return &swapState{
			amountSpecifiedRemaining: new(big.Int),
			amountCalculated:         new(big.Int),
			sqrtPriceX96:             new(big.Int),
			liquidity:                new(big.Int),
			sqrtPriceStartX96:        new(big.Int),
			sqrtPriceNextX96:         new(big.Int),
			targetPrice:              new(big.Int),
			stepAmountIn:             new(big.Int),
			stepAmountOut:            new(big.Int),
			stepFeeAmount:            new(big.Int),
			tempAmount:               new(big.Int),
			liquidityNet:             new(big.Int),
		}
	},
}

func _swap(state *swapState, p Pool, sqrtPriceLimitX96 *big.Int, zeroForOne bool) error {
	if sqrtPriceLimitX96 == nil {
		if zeroForOne {
			sqrtPriceLimitX96 = tickmath.MIN_SQRT_RATIO
		} else {
			sqrtPriceLimitX96 = tickmath.MAX_SQRT_RATIO
		}
	}

	exactInput := state.amountSpecifiedRemaining.Sign() > 0

	for state.amountSpecifiedRemaining.Sign() != 0 && state.sqrtPriceX96.Cmp(sqrtPriceLimitX96) != 0 {
		state.sqrtPriceStartX96.Set(state.sqrtPriceX96)

		tickNext, initialized := tickbitmap.NextInitializedTickWithinOneWord(p.Ticks, state.tick, zeroForOne)
		if !initialized {
			break
		}
		if tickNext < tickmath.MIN_TICK {
			tickNext = tickmath.MIN_TICK
		} else if tickNext > tickmath.MAX_TICK {
			tickNext = tickmath.MAX_TICK
		}

		if err := tickmath.GetSqrtRatioAtTick(state.sqrtPriceNextX96, tickNext); err != nil {
			return err
		}

		if (zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) < 0) ||
			(!zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) > 0) {
			state.targetPrice.Set(sqrtPriceLimitX96)
		} else {
			state.targetPrice.Set(state.sqrtPriceNextX96)
		}

		err := swapmath.ComputeSwapStep(
			state.sqrtPriceX96, state.stepAmountIn, state.stepAmountOut, state.stepFeeAmount,
			state.sqrtPriceStartX96,
			state.targetPrice,
			state.liquidity,
			state.amountSpecifiedRemaining,
			state.tempAmount.SetUint64(p.Fee),
		)
		if err != nil {
			break
		}

		if exactInput {
			state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, state.tempAmount.Add(state.stepAmountIn, state.stepFeeAmount))
			state.amountCalculated.Add(state.amountCalculated, state.stepAmountOut)
		} else {
			state.amountSpecifiedRemaining.Add(state.amountSpecifiedRemaining, state.stepAmountOut)
			state.amountCalculated.Add(state.amountCalculated, state.tempAmount.Add(state.stepAmountIn, state.stepFeeAmount))
		}

		if state.sqrtPriceX96.Cmp(state.sqrtPriceNextX96) == 0 {
			var foundTick bool
			for _, t := range p.Ticks {
				if t.Index == tickNext {
					state.liquidityNet.Set(t.LiquidityNet)
					foundTick = true
					break
				}
			}

			if foundTick {
				if zeroForOne {
					state.liquidityNet.Neg(state.liquidityNet)
				}
				if err := liquiditymath.AddDelta(state.liquidity, state.liquidity, state.liquidityNet); err != nil {
					if errors.Is(err, liquiditymath.ErrLiquidityUnderflow) {
						break
					}
					return err
				}
			}

			if zeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if state.sqrtPriceX96.Cmp(state.sqrtPriceStartX96) != 0 {
			var err error
			state.tick, err = tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func zeroForOneDirection(tokenIn, tokenOut common.Address, p Pool) (bool, error) {
	switch {
	case tokenIn == p.Token0 && tokenOut == p.Token1:
		return true, nil
	case tokenIn == p.Token1 && tokenOut == p.Token0:
		return false, nil
	default:
		return false, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, p.Address, tokenIn, tokenOut)
	}
}

// SimulateSwap runs an exact-input swap and returns the output amount and
// the resulting pool state, without mutating p.
func SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address, p Pool) (*big.Int, Pool, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, Pool{}, ErrInvalidAmountIn
	}
	zeroForOne, err := zeroForOneDirection(tokenIn, tokenOut, p)
	if err != nil {
		return nil, Pool{}, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	state.amountSpecifiedRemaining.Set(amountIn)
	state.amountCalculated.SetInt64(0)
	state.sqrtPriceX96.Set(p.SqrtPriceX96)
	state.tick = p.Tick
	state.liquidity.Set(p.Liquidity)

	if err := _swap(state, p, nil, zeroForOne); err != nil {
		return nil, Pool{}, err
	}

	newPool := deepCopy(p)
	newPool.SqrtPriceX96 = new(big.Int).Set(state.sqrtPriceX96)
	newPool.Tick = state.tick
	newPool.Liquidity = new(big.Int).Set(state.liquidity)

	return new(big.Int).Set(state.amountCalculated), newPool, nil
}

// GetAmountOut calculates the amount out for an exact-input swap without
// constructing the resulting pool state.
func GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, p Pool) (*big.Int, error) {
	out, _, err := SimulateSwap(amountIn, tokenIn, tokenOut, p)
	return out, err
}

// GetVirtualReserves computes the instantaneous virtual reserves implied by
// the pool's current liquidity and price, used to express the marginal
// (zero-size) spot price.
func GetVirtualReserves(tokenIn, tokenOut common.Address, p Pool) (reserveIn, reserveOut *big.Int, err error) {
	if _, err := zeroForOneDirection(tokenIn, tokenOut, p); err != nil {
		return nil, nil, err
	}
	reserve0 := new(big.Int).Div(new(big.Int).Lsh(p.Liquidity, 96), p.SqrtPriceX96)
	reserve1 := new(big.Int).Div(new(big.Int).Mul(p.Liquidity, p.SqrtPriceX96), q96)

	if tokenIn == p.Token0 {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

// SpotPrice returns the marginal price of tokenA expressed in tokenB,
// derived from the pool's virtual reserves.
func SpotPrice(tokenA, tokenB common.Address, p Pool) (float64, error) {
	reserveA, reserveB, err := GetVirtualReserves(tokenA, tokenB, p)
	if err != nil {
		return 0, err
	}
	if reserveA.Sign() <= 0 {
		return 0, fmt.Errorf("uniswapv3: zero virtual reserve for %s", tokenA)
	}
	ra, _ := new(big.Float).SetInt(reserveA).Float64()
	rb, _ := new(big.Float).SetInt(reserveB).Float64()
	return rb / ra, nil
}
