// Package uniswapv3 implements the pool.ProtocolState contract for
// concentrated-liquidity pools: Uniswap V3 and its forks.
package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/market-maker/pools/uniswapv3/calculator/tickbitmap"
)

// TickInfo is the liquidity delta recorded at a single initialized tick.
type TickInfo = tickbitmap.TickInfo

// Pool is the on-chain state of a single concentrated-liquidity pair: the
// current price/tick/liquidity plus every initialized tick the swap loop may
// cross.
type Pool struct {
	Address      common.Address
	Token0       common.Address
	Token1       common.Address
	Fee          uint64 // pips, e.g. 3000 for 0.3%
	TickSpacing  int64
	Tick         int64
	Liquidity    *big.Int
	SqrtPriceX96 *big.Int
	// Ticks must stay sorted by Index ascending; tickbitmap.NextInitializedTickWithinOneWord
	// relies on sort order, not on an actual bitmap, for this reduced representation.
	Ticks []TickInfo
}

func deepCopy(p Pool) Pool {
	out := p
	if p.Liquidity != nil {
		out.Liquidity = new(big.Int).Set(p.Liquidity)
	}
	if p.SqrtPriceX96 != nil {
		out.SqrtPriceX96 = new(big.Int).Set(p.SqrtPriceX96)
	}
	out.Ticks = make([]TickInfo, len(p.Ticks))
	for i, t := range p.Ticks {
		ti := t
		if t.LiquidityGross != nil {
			ti.LiquidityGross = new(big.Int).Set(t.LiquidityGross)
		}
		if t.LiquidityNet != nil {
			ti.LiquidityNet = new(big.Int).Set(t.LiquidityNet)
		}
		out.Ticks[i] = ti
	}
	return out
}
