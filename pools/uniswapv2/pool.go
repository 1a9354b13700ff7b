// Package uniswapv2 implements the pool.ProtocolState contract for
// constant-product (x*y=k) pools: Uniswap V2 and its forks.
package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is the on-chain state of a single constant-product pair.
type Pool struct {
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	FeeBps   uint16 // e.g. 30 for 0.3%
}

// deepCopy creates a new Pool with its own memory for the reserve pointers,
// preventing a clone from sharing mutable state with its source.
func deepCopy(p Pool) Pool {
	out := p
	if p.Reserve0 != nil {
		out.Reserve0 = new(big.Int).Set(p.Reserve0)
	}
	if p.Reserve1 != nil {
		out.Reserve1 = new(big.Int).Set(p.Reserve1)
	}
	return out
}
