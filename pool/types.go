// Package pool holds the data model shared by the streaming, caching, and
// evaluation stages of the market maker: tokens, pairs, pool components, and
// the ProtocolState contract every pool implementation must satisfy.
package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ComponentID uniquely identifies a liquidity pool within the stream.
type ComponentID string

// Token is an ERC20 token as configured for a pair, or as observed inside a
// component's token set.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Pair is the configured trading pair. Immutable after startup.
type Pair struct {
	Base     Token `json:"base"`
	Quote    Token `json:"quote"`
	GasToken Token `json:"gasToken"`
}

// ProtocolState is the opaque per-component simulation state. Implementations
// live under pools/<protocol>. Simulating a swap must never mutate the
// receiver; SimulateSwap returns a new state that the caller may discard.
type ProtocolState interface {
	// SpotPrice returns the marginal price of tokenA expressed in tokenB.
	SpotPrice(tokenA, tokenB common.Address) (float64, error)

	// SimulateSwap returns the amount out, the resulting state (unpromoted),
	// and a gas estimate for swapping amountIn of tokenIn for tokenOut.
	SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address) (amountOut *big.Int, newState ProtocolState, gasEstimate uint64, err error)

	// Tokens returns every token address the component holds reserves in.
	Tokens() []common.Address

	// Clone returns a deep copy suitable for further simulation chains.
	Clone() ProtocolState
}

// Component is a single liquidity pool tracked by the cache.
type Component struct {
	Protocol string                    `json:"protocol"`
	ID       ComponentID               `json:"id"`
	Tokens   []common.Address          `json:"tokens"`
	State    ProtocolState             `json:"-"`
	Balances map[common.Address]*big.Int `json:"balances"`
	// BlockNumber is the stream block this snapshot was last touched at.
	BlockNumber uint64 `json:"blockNumber"`
}

// HasToken reports whether the component's token set contains addr.
func (c Component) HasToken(addr common.Address) bool {
	for _, t := range c.Tokens {
		if t == addr {
			return true
		}
	}
	return false
}

// StateDelta is a partial, protocol-specific update applied to an existing
// component's state in place of a full replacement.
type StateDelta struct {
	ComponentID ComponentID
	// Apply produces the new state given the previous one. Protocol packages
	// supply this from their own diff/patch representation.
	Apply func(prev ProtocolState) (ProtocolState, error)
}

// StreamMessage is one block-tagged delta delivered by the pool-state stream
// adapter (C1). Messages are monotonically ordered by BlockNumber; a reorg
// re-issues a corrected message for the affected block.
type StreamMessage struct {
	BlockNumber       uint64
	NewComponents     []Component
	UpdatedComponents []Component
	RemovedComponents []ComponentID
	StateDeltas       []StateDelta
	BalanceDeltas     map[ComponentID]map[common.Address]*big.Int
}
