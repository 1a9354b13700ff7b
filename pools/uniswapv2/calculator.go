package uniswapv2

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	basisPointDivisor = big.NewInt(10000)

	// ErrInvalidAmount is returned when an input/output amount is nil or negative.
	ErrInvalidAmount = errors.New("uniswapv2: amount must be non-nil and non-negative")
	// ErrTokenMismatch is returned when the requested tokens don't match the pool's tokens.
	ErrTokenMismatch = errors.New("uniswapv2: token mismatch")
	// ErrInvalidState is returned for internal calculation errors such as division by zero.
	ErrInvalidState = errors.New("uniswapv2: invalid internal state")
	// ErrInsufficientLiquidity is returned when the requested output exceeds the reserve.
	ErrInsufficientLiquidity = errors.New("uniswapv2: insufficient liquidity for swap")
)

// calculator holds reusable big.Int scratch space to avoid per-swap
// allocations. Not safe for concurrent use by itself; managed via sync.Pool.
type calculator struct {
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int
	newReserve0     *big.Int
	newReserve1     *big.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
			newReserve0:     new(big.Int),
			newReserve1:     new(big.Int),
		}
	},
}

// GetReserves returns (reserveIn, reserveOut) for the requested direction.
func GetReserves(tokenIn, tokenOut common.Address, p Pool) (reserveIn, reserveOut *big.Int, err error) {
	switch {
	case tokenIn == p.Token0 && tokenOut == p.Token1:
		return p.Reserve0, p.Reserve1, nil
	case tokenIn == p.Token1 && tokenOut == p.Token0:
		return p.Reserve1, p.Reserve0, nil
	default:
		return nil, nil, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, p.Address, tokenIn, tokenOut)
	}
}

// GetAmountOut calculates the output amount for a swap using the constant
// product formula net of the pool's fee.
func GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, p Pool) (*big.Int, error) {
	c := calculatorPool.Get().(*calculator)
	defer calculatorPool.Put(c)
	return c.getAmountOut(amountIn, tokenIn, tokenOut, p)
}

func (c *calculator) getAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, p Pool) (*big.Int, error) {
	if amountIn == nil {
		return nil, fmt.Errorf("%w: nil amount", ErrInvalidAmount)
	}
	if amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, p)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int), nil
	}

	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(p.FeeBps)))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	if c.denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}

	return new(big.Int).Div(c.numerator, c.denominator), nil
}

// SimulateSwap computes the output amount and the resulting pool state
// without mutating p.
func SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address, p Pool) (*big.Int, Pool, error) {
	c := calculatorPool.Get().(*calculator)
	defer calculatorPool.Put(c)

	amountOut, err := c.getAmountOut(amountIn, tokenIn, tokenOut, p)
	if err != nil {
		return nil, Pool{}, err
	}

	newPool := deepCopy(p)
	if tokenIn == p.Token0 {
		c.newReserve0.Add(p.Reserve0, amountIn)
		c.newReserve1.Sub(p.Reserve1, amountOut)
	} else {
		c.newReserve1.Add(p.Reserve1, amountIn)
		c.newReserve0.Sub(p.Reserve0, amountOut)
	}
	newPool.Reserve0 = new(big.Int).Set(c.newReserve0)
	newPool.Reserve1 = new(big.Int).Set(c.newReserve1)

	return amountOut, newPool, nil
}

// SpotPrice returns the marginal price of tokenA expressed in tokenB,
// i.e. reserve(tokenB)/reserve(tokenA), ignoring fees (the fee applies only
// to executed trades, not the marginal quote).
func SpotPrice(tokenA, tokenB common.Address, p Pool) (float64, error) {
	reserveA, reserveB, err := GetReserves(tokenA, tokenB, p)
	if err != nil {
		return 0, err
	}
	if reserveA.Sign() <= 0 {
		return 0, fmt.Errorf("%w: zero reserve for %s", ErrInvalidState, tokenA)
	}
	ra, _ := new(big.Float).SetInt(reserveA).Float64()
	rb, _ := new(big.Float).SetInt(reserveB).Float64()
	return rb / ra, nil
}
