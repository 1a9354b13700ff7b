// Package tickbitmap locates the next initialized tick around a pool's
// current tick. The market-maker's cache stores a pool's ticks as a sorted
// slice (pool.Ticks in pools/uniswapv3/pool.go), not a packed word bitmap,
// so this is a binary-search stand-in for Uniswap V3's on-chain TickBitmap
// rather than a port of its bit-scanning.
package tickbitmap

import (
	"math/big"
	"sort"
)

// TickInfo is the liquidity delta recorded at a single initialized tick.
//
// Defined here (rather than in package uniswapv3, which uses it via a type
// alias) because this package's search over ticks would otherwise form an
// import cycle with uniswapv3.
type TickInfo struct {
	Index          int64
	LiquidityGross *big.Int
	LiquidityNet   *big.Int
}

// NextInitializedTickWithinOneWord finds the next initialized tick relative
// to tick in ticks, which must be sorted by Index ascending.
//
// Parameters:
//   - ticks: A sorted slice of all initialized ticks.
//   - tick: The starting tick for the search.
//   - lte: A boolean indicating the search direction.
//   - If true, it finds the largest initialized tick that is less than or equal to the input `tick`.
//   - If false, it finds the smallest initialized tick that is greater than the input `tick`.
//
// Returns:
//   - next: The next initialized tick found.
//   - initialized: A boolean that is true if an initialized tick was found, and false otherwise.
func NextInitializedTickWithinOneWord(
	ticks []TickInfo,
	tick int64,
	lte bool,
) (next int64, initialized bool) {
	if len(ticks) == 0 {
		return 0, false
	}

	if lte {
		// --- Search for the next initialized tick to the LEFT (less than or equal to) ---

		// sort.Search performs a binary search to find the smallest index `i`
		// where `ticks[i].Index >= tick`.
		index := sort.Search(len(ticks), func(i int) bool {
			return ticks[i].Index >= tick
		})

		if index < len(ticks) && ticks[index].Index == tick {
			// If the exact tick is found, it's the answer.
			return tick, true
		}

		if index == 0 {
			// If the insertion point is 0, the target tick is smaller than all
			// initialized ticks, so there is no valid tick to the left.
			return 0, false
		}

		// The next initialized tick to the left is at the previous index.
		return ticks[index-1].Index, true

	} else {
		// --- Search for the next initialized tick to the RIGHT (greater than) ---

		// Find the smallest index `i` where `ticks[i].Index > tick`.
		index := sort.Search(len(ticks), func(i int) bool {
			return ticks[i].Index > tick
		})

		if index >= len(ticks) {
			// If the index is out of bounds, the target tick is greater than or equal
			// to all initialized ticks, so there is no valid tick to the right.
			return 0, false
		}

		// The smallest tick greater than the target is at the found index.
		return ticks[index].Index, true
	}
}
