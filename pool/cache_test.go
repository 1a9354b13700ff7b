package pool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nullLogger struct{}

func (nullLogger) Debug(string, ...any) {}
func (nullLogger) Info(string, ...any)  {}
func (nullLogger) Warn(string, ...any)  {}
func (nullLogger) Error(string, ...any) {}

// fakeConstantProductState is a minimal ProtocolState used only to exercise
// the cache's apply/read/simulate contract without pulling in a real AMM.
type fakeConstantProductState struct {
	reserveA, reserveB *big.Int
	tokenA, tokenB     common.Address
}

func (f *fakeConstantProductState) SpotPrice(a, b common.Address) (float64, error) {
	ra, _ := new(big.Float).SetInt(f.reserveA).Float64()
	rb, _ := new(big.Float).SetInt(f.reserveB).Float64()
	if a == f.tokenA {
		return rb / ra, nil
	}
	return ra / rb, nil
}

func (f *fakeConstantProductState) SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, ProtocolState, uint64, error) {
	out := new(big.Int).Div(new(big.Int).Mul(amountIn, f.reserveB), f.reserveA)
	clone := f.Clone().(*fakeConstantProductState)
	if tokenIn == f.tokenA {
		clone.reserveA.Add(clone.reserveA, amountIn)
		clone.reserveB.Sub(clone.reserveB, out)
	} else {
		clone.reserveB.Add(clone.reserveB, amountIn)
		clone.reserveA.Sub(clone.reserveA, out)
	}
	return out, clone, 21000, nil
}

func (f *fakeConstantProductState) Tokens() []common.Address {
	return []common.Address{f.tokenA, f.tokenB}
}

func (f *fakeConstantProductState) Clone() ProtocolState {
	return &fakeConstantProductState{
		reserveA: new(big.Int).Set(f.reserveA),
		reserveB: new(big.Int).Set(f.reserveB),
		tokenA:   f.tokenA,
		tokenB:   f.tokenB,
	}
}

func testPair() Pair {
	return Pair{
		Base:  Token{Address: common.HexToAddress("0x1"), Symbol: "BASE", Decimals: 18},
		Quote: Token{Address: common.HexToAddress("0x2"), Symbol: "QUOTE", Decimals: 6},
	}
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(testPair(), CacheConfig{Registry: prometheus.NewRegistry(), Logger: nullLogger{}})
	require.NoError(t, err)
	return c
}

func testComponent(id ComponentID) Component {
	pair := testPair()
	return Component{
		Protocol: "fake-v2",
		ID:       id,
		Tokens:   []common.Address{pair.Base.Address, pair.Quote.Address},
		State: &fakeConstantProductState{
			reserveA: big.NewInt(1_000_000),
			reserveB: big.NewInt(3_000_000_000),
			tokenA:   pair.Base.Address,
			tokenB:   pair.Quote.Address,
		},
	}
}

func TestCacheApply_UpsertAndRemove(t *testing.T) {
	c := newTestCache(t)
	pair := testPair()

	err := c.Apply(&StreamMessage{
		BlockNumber:   10,
		NewComponents: []Component{testComponent("p1")},
	})
	require.NoError(t, err)
	assert.Len(t, c.ListComponents(), 1)
	assert.Equal(t, uint64(10), c.BlockNumber())

	spot, err := c.SpotPrice("p1", pair.Base.Address, pair.Quote.Address)
	require.NoError(t, err)
	assert.InDelta(t, 3000.0, spot, 1e-9)

	err = c.Apply(&StreamMessage{
		BlockNumber:       11,
		RemovedComponents: []ComponentID{"p1"},
	})
	require.NoError(t, err)
	assert.Empty(t, c.ListComponents())
}

func TestCacheApply_FiltersComponentsMissingPairTokens(t *testing.T) {
	c := newTestCache(t)

	unrelated := Component{
		Protocol: "fake-v2",
		ID:       "p2",
		Tokens:   []common.Address{common.HexToAddress("0x99"), common.HexToAddress("0x98")},
		State: &fakeConstantProductState{
			reserveA: big.NewInt(1),
			reserveB: big.NewInt(1),
			tokenA:   common.HexToAddress("0x99"),
			tokenB:   common.HexToAddress("0x98"),
		},
	}

	err := c.Apply(&StreamMessage{BlockNumber: 1, NewComponents: []Component{unrelated}})
	require.NoError(t, err)
	assert.Empty(t, c.ListComponents(), "components missing the configured pair tokens must be dropped")
}

func TestCacheApply_StateDeltaIsAtomicWithBalances(t *testing.T) {
	c := newTestCache(t)
	pair := testPair()

	require.NoError(t, c.Apply(&StreamMessage{BlockNumber: 1, NewComponents: []Component{testComponent("p1")}}))

	applied := false
	err := c.Apply(&StreamMessage{
		BlockNumber: 2,
		StateDeltas: []StateDelta{{
			ComponentID: "p1",
			Apply: func(prev ProtocolState) (ProtocolState, error) {
				applied = true
				fake := prev.(*fakeConstantProductState)
				clone := fake.Clone().(*fakeConstantProductState)
				clone.reserveA.Add(clone.reserveA, big.NewInt(500_000))
				return clone, nil
			},
		}},
		BalanceDeltas: map[ComponentID]map[common.Address]*big.Int{
			"p1": {pair.Base.Address: big.NewInt(42)},
		},
	})
	require.NoError(t, err)
	assert.True(t, applied)

	comp, ok := c.Get("p1")
	require.True(t, ok)
	assert.Equal(t, uint64(2), comp.BlockNumber)
	assert.Equal(t, big.NewInt(42), comp.Balances[pair.Base.Address])
}

func TestCacheSimulate_NeverMutatesCachedState(t *testing.T) {
	c := newTestCache(t)
	pair := testPair()
	require.NoError(t, c.Apply(&StreamMessage{BlockNumber: 1, NewComponents: []Component{testComponent("p1")}}))

	before, err := c.SpotPrice("p1", pair.Base.Address, pair.Quote.Address)
	require.NoError(t, err)

	_, _, err = c.Simulate("p1", big.NewInt(100_000), pair.Base.Address, pair.Quote.Address)
	require.NoError(t, err)

	after, err := c.SpotPrice("p1", pair.Base.Address, pair.Quote.Address)
	require.NoError(t, err)
	assert.Equal(t, before, after, "simulate must not mutate the cached state")
}

func TestCacheApply_RejectsStaleBlock(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Apply(&StreamMessage{BlockNumber: 10}))
	err := c.Apply(&StreamMessage{BlockNumber: 5})
	assert.Error(t, err)
}

func TestCacheApply_RemovalDiffUpdatesMetric(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Apply(&StreamMessage{
		BlockNumber:   10,
		NewComponents: []Component{testComponent("p1"), testComponent("p2")},
	}))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.metrics.componentsRemoved))

	require.NoError(t, c.Apply(&StreamMessage{
		BlockNumber:       11,
		RemovedComponents: []ComponentID{"p1"},
	}))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.componentsRemoved))
	assert.Len(t, c.ListComponents(), 1)

	// A message that removes nothing new must not inflate the counter.
	require.NoError(t, c.Apply(&StreamMessage{BlockNumber: 12}))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.componentsRemoved))
}
