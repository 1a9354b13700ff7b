package stream

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/market-maker/pool"
)

type nullLogger struct{}

func (nullLogger) Debug(string, ...any) {}
func (nullLogger) Info(string, ...any)  {}
func (nullLogger) Warn(string, ...any)  {}
func (nullLogger) Error(string, ...any) {}

// fakeState is a minimal pool.ProtocolState used only to exercise decoding.
type fakeState struct{ tag string }

func (f *fakeState) SpotPrice(common.Address, common.Address) (float64, error) { return 1, nil }
func (f *fakeState) SimulateSwap(amountIn *big.Int, tokenIn, tokenOut common.Address) (*big.Int, pool.ProtocolState, uint64, error) {
	return amountIn, f, 0, nil
}
func (f *fakeState) Tokens() []common.Address { return nil }
func (f *fakeState) Clone() pool.ProtocolState { return &fakeState{tag: f.tag} }

type fakeDecoder struct{}

func (fakeDecoder) DecodeState(protocol string, data json.RawMessage) (pool.ProtocolState, error) {
	return &fakeState{tag: protocol}, nil
}

func (fakeDecoder) DecodeDelta(protocol string, data json.RawMessage) (func(prev pool.ProtocolState) (pool.ProtocolState, error), error) {
	return func(prev pool.ProtocolState) (pool.ProtocolState, error) {
		return &fakeState{tag: protocol + "-patched"}, nil
	}, nil
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return &Client{
		cfg: Config{
			URL:      "ws://unused",
			Logger:   nullLogger{},
			Registry: prometheus.NewRegistry(),
			Decoder:  fakeDecoder{},
		},
		logger:  nullLogger{},
		metrics: newClientMetrics(prometheus.NewRegistry()),
	}
}

func TestDecode_FiltersComponentWithNullAddressID(t *testing.T) {
	c := newTestClient(t)
	raw := json.RawMessage(`{
		"blockNumber": 10,
		"newComponents": [
			{"protocol": "uniswapv2", "id": "0x0000000000000000000000000000000000000000", "tokens": ["0x0000000000000000000000000000000000000001","0x0000000000000000000000000000000000000002"], "data": {}}
		]
	}`)

	msg, err := c.decode(raw)
	require.NoError(t, err)
	assert.Empty(t, msg.NewComponents, "component with null-address id must be filtered at the boundary")
}

func TestDecode_FiltersComponentWithNullAddressToken(t *testing.T) {
	c := newTestClient(t)
	raw := json.RawMessage(`{
		"blockNumber": 10,
		"newComponents": [
			{"protocol": "uniswapv2", "id": "p1", "tokens": ["0x0000000000000000000000000000000000000000","0x0000000000000000000000000000000000000002"], "data": {}}
		]
	}`)

	msg, err := c.decode(raw)
	require.NoError(t, err)
	assert.Empty(t, msg.NewComponents)
}

func TestDecode_DecodesValidComponent(t *testing.T) {
	c := newTestClient(t)
	raw := json.RawMessage(`{
		"blockNumber": 42,
		"newComponents": [
			{"protocol": "uniswapv3", "id": "p1", "tokens": ["0x0000000000000000000000000000000000000001","0x0000000000000000000000000000000000000002"], "data": {}}
		]
	}`)

	msg, err := c.decode(raw)
	require.NoError(t, err)
	require.Len(t, msg.NewComponents, 1)
	assert.Equal(t, pool.ComponentID("p1"), msg.NewComponents[0].ID)
	assert.Equal(t, uint64(42), msg.BlockNumber)
}

func TestDecode_StateDeltaAndBalances(t *testing.T) {
	c := newTestClient(t)
	raw := json.RawMessage(`{
		"blockNumber": 5,
		"stateDeltas": [{"protocol": "uniswapv2", "componentId": "p1", "data": {}}],
		"balanceDeltas": {"p1": {"0x0000000000000000000000000000000000000001": "1000"}}
	}`)

	msg, err := c.decode(raw)
	require.NoError(t, err)
	require.Len(t, msg.StateDeltas, 1)

	next, err := msg.StateDeltas[0].Apply(&fakeState{tag: "uniswapv2"})
	require.NoError(t, err)
	assert.Equal(t, "uniswapv2-patched", next.(*fakeState).tag)

	amount := msg.BalanceDeltas["p1"][common.HexToAddress("0x1")]
	require.NotNil(t, amount)
	assert.Equal(t, big.NewInt(1000), amount)
}

func TestDecode_RemovedComponentsFilterNullAddress(t *testing.T) {
	c := newTestClient(t)
	raw := json.RawMessage(`{
		"blockNumber": 6,
		"removedComponents": ["p1", "0x0000000000000000000000000000000000000000"]
	}`)

	msg, err := c.decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []pool.ComponentID{"p1"}, msg.RemovedComponents)
}
