package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/market-maker/pool"
)

// gasEstimateSwap is a static estimate for a single-hop V3 swap, used until
// the execution adapter's own gas oracle overrides it.
const gasEstimateSwap uint64 = 160_000

// State adapts a Pool to the pool.ProtocolState contract.
type State struct {
	Pool Pool
}

var _ pool.ProtocolState = (*State)(nil)

// NewState wraps p for use by the protocol cache.
func NewState(p Pool) *State {
	return &State{Pool: p}
}

func (s *State) SpotPrice(tokenA, tokenB common.Address) (float64, error) {
	return SpotPrice(tokenA, tokenB, s.Pool)
}

func (s *State) SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, pool.ProtocolState, uint64, error) {
	amountOut, newPool, err := SimulateSwap(amountIn, tokenIn, tokenOut, s.Pool)
	if err != nil {
		return nil, nil, 0, err
	}
	return amountOut, &State{Pool: newPool}, gasEstimateSwap, nil
}

func (s *State) Tokens() []common.Address {
	return []common.Address{s.Pool.Token0, s.Pool.Token1}
}

func (s *State) Clone() pool.ProtocolState {
	return &State{Pool: deepCopy(s.Pool)}
}
