package pool

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	// ErrUnknownComponent is returned when a query targets a component the
	// cache has never seen or has since retired.
	ErrUnknownComponent = errors.New("cache: unknown component")
	// ErrMissingTokens is returned when a component's token set doesn't cover
	// both requested tokens for a spot-price or simulate query.
	ErrMissingTokens = errors.New("cache: component does not contain both tokens")
)

// CacheConfig holds the dependencies for a Cache.
type CacheConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

func (c *CacheConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

type cacheMetrics struct {
	messagesApplied   prometheus.Counter
	componentsLive    prometheus.Gauge
	componentsRemoved prometheus.Counter
	applyDuration     prometheus.Histogram
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	m := &cacheMetrics{
		messagesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmaker_cache_messages_applied_total",
			Help: "Number of stream messages applied to the protocol cache.",
		}),
		componentsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketmaker_cache_components_live",
			Help: "Number of components currently held in the protocol cache.",
		}),
		componentsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmaker_cache_components_removed_total",
			Help: "Number of components that dropped out of the live set across applied messages.",
		}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketmaker_cache_apply_duration_seconds",
			Help:    "Time to apply a single stream message to the cache.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.messagesApplied, m.componentsLive, m.componentsRemoved, m.applyDuration)
	return m
}

// snapshot is the read-optimized, atomically-swapped view of the cache.
// ids mirrors components' keys as a mapset.Set so Apply can diff the live
// component set against the previous snapshot in one Difference call
// instead of probing the map once per removed id.
type snapshot struct {
	components map[ComponentID]Component
	ids        mapset.Set[ComponentID]
}

// Cache is the Protocol cache (C3). Writes serialize on a single mutex (the
// tick loop is the sole writer); reads go through a lock-free atomic
// snapshot, mirroring the teacher's TokenPoolSystem design.
type Cache struct {
	pair Pair

	mu          sync.Mutex
	blockNumber uint64

	view atomic.Pointer[snapshot]

	metrics *cacheMetrics
	logger  Logger
}

// NewCache constructs an empty Cache for the given pair.
func NewCache(pair Pair, cfg CacheConfig) (*Cache, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Cache{
		pair:    pair,
		metrics: newCacheMetrics(cfg.Registry),
		logger:  cfg.Logger,
	}
	c.view.Store(&snapshot{components: map[ComponentID]Component{}, ids: mapset.NewThreadUnsafeSet[ComponentID]()})
	return c, nil
}

// Apply applies a stream message under the single writer: remove, upsert,
// apply deltas, then update balances, all before the new snapshot is
// published. Readers never observe a partially-applied message.
func (c *Cache) Apply(msg *StreamMessage) error {
	timer := prometheus.NewTimer(c.metrics.applyDuration)
	defer timer.ObserveDuration()

	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.BlockNumber < c.blockNumber {
		return fmt.Errorf("cache: stale message for block %d, cache is at block %d", msg.BlockNumber, c.blockNumber)
	}

	prev := c.view.Load()
	next := make(map[ComponentID]Component, len(prev.components))
	for id, comp := range prev.components {
		next[id] = comp
	}

	for _, id := range msg.RemovedComponents {
		delete(next, id)
	}

	for _, comp := range msg.NewComponents {
		if !componentCoversPair(comp, c.pair) {
			c.logger.Debug("cache: dropping component missing pair tokens", "component", comp.ID)
			continue
		}
		comp.BlockNumber = msg.BlockNumber
		next[comp.ID] = comp
	}

	for _, comp := range msg.UpdatedComponents {
		existing, ok := next[comp.ID]
		if !ok {
			c.logger.Warn("cache: update for unknown component, treating as upsert", "component", comp.ID)
		} else {
			comp.Balances = mergeBalances(existing.Balances, comp.Balances)
		}
		if !componentCoversPair(comp, c.pair) {
			delete(next, comp.ID)
			continue
		}
		comp.BlockNumber = msg.BlockNumber
		next[comp.ID] = comp
	}

	for _, delta := range msg.StateDeltas {
		comp, ok := next[delta.ComponentID]
		if !ok {
			c.logger.Warn("cache: state delta for unknown component, dropping", "component", delta.ComponentID)
			continue
		}
		newState, err := delta.Apply(comp.State)
		if err != nil {
			return fmt.Errorf("cache: applying state delta to %s: %w", delta.ComponentID, err)
		}
		comp.State = newState
		comp.BlockNumber = msg.BlockNumber
		next[delta.ComponentID] = comp
	}

	for id, balances := range msg.BalanceDeltas {
		comp, ok := next[id]
		if !ok {
			continue
		}
		comp.Balances = mergeBalances(comp.Balances, balances)
		comp.BlockNumber = msg.BlockNumber
		next[id] = comp
	}

	nextIDs := mapset.NewThreadUnsafeSetWithSize[ComponentID](len(next))
	for id := range next {
		nextIDs.Add(id)
	}
	removed := prev.ids.Difference(nextIDs)
	if removed.Cardinality() > 0 {
		c.logger.Debug("cache: components dropped from live set", "count", removed.Cardinality(), "components", removed.ToSlice())
	}

	c.blockNumber = msg.BlockNumber
	c.view.Store(&snapshot{components: next, ids: nextIDs})

	c.metrics.messagesApplied.Inc()
	c.metrics.componentsLive.Set(float64(len(next)))
	c.metrics.componentsRemoved.Add(float64(removed.Cardinality()))
	return nil
}

func mergeBalances(prev, delta map[common.Address]*big.Int) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(prev)+len(delta))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

func componentCoversPair(c Component, pair Pair) bool {
	return c.HasToken(pair.Base.Address) && c.HasToken(pair.Quote.Address)
}

// ListComponents returns every live component, snapshot-consistent.
func (c *Cache) ListComponents() []Component {
	snap := c.view.Load()
	out := make([]Component, 0, len(snap.components))
	for _, comp := range snap.components {
		out = append(out, comp)
	}
	return out
}

// Get returns a single component by id.
func (c *Cache) Get(id ComponentID) (Component, bool) {
	snap := c.view.Load()
	comp, ok := snap.components[id]
	return comp, ok
}

// SpotPrice returns the marginal price of tokenA expressed in tokenB for the
// named component.
func (c *Cache) SpotPrice(id ComponentID, tokenA, tokenB common.Address) (float64, error) {
	comp, ok := c.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownComponent, id)
	}
	if !comp.HasToken(tokenA) || !comp.HasToken(tokenB) {
		return 0, fmt.Errorf("%w: %s", ErrMissingTokens, id)
	}
	return comp.State.SpotPrice(tokenA, tokenB)
}

// Simulate runs a swap against a cloned copy of the component's state. The
// cache itself is never mutated by a simulation.
func (c *Cache) Simulate(id ComponentID, amountIn *big.Int, tokenIn, tokenOut common.Address) (amountOut *big.Int, gasEstimate uint64, err error) {
	comp, ok := c.Get(id)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownComponent, id)
	}
	if !comp.HasToken(tokenIn) || !comp.HasToken(tokenOut) {
		return nil, 0, fmt.Errorf("%w: %s", ErrMissingTokens, id)
	}
	cloned := comp.State.Clone()
	amountOut, _, gasEstimate, err = cloned.SimulateSwap(amountIn, tokenIn, tokenOut)
	return amountOut, gasEstimate, err
}

// BlockNumber reports the most recently applied stream block.
func (c *Cache) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockNumber
}
