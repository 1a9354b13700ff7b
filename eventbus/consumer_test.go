package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ParsesKnownPriceTick(t *testing.T) {
	c := NewConsumer(&fakeRedis{}, "events", nullLogger{})
	event, ok := c.decode(`{"message_type":"price_tick","timestamp_ms":1000,"data":{"instance_id":"i-1","reference":1.5,"pool_median":1.4}}`)
	require.True(t, ok)
	assert.Equal(t, MessageTypePriceTick, event.MessageType)
	tick, ok := event.Data.(PriceTick)
	require.True(t, ok)
	assert.Equal(t, 1.5, tick.Reference)
}

func TestDecode_IgnoresUnknownMessageType(t *testing.T) {
	c := NewConsumer(&fakeRedis{}, "events", nullLogger{})
	_, ok := c.decode(`{"message_type":"some_future_event","timestamp_ms":1000,"data":{}}`)
	assert.False(t, ok)
}

func TestDecode_DropsMalformedJSON(t *testing.T) {
	c := NewConsumer(&fakeRedis{}, "events", nullLogger{})
	_, ok := c.decode(`not json at all`)
	assert.False(t, ok)
}

func TestDecode_DropsMalformedDataForKnownType(t *testing.T) {
	c := NewConsumer(&fakeRedis{}, "events", nullLogger{})
	_, ok := c.decode(`{"message_type":"heartbeat","timestamp_ms":1000,"data":"not-an-object"}`)
	assert.False(t, ok)
}

func TestDecode_ParsesTradeEvent(t *testing.T) {
	c := NewConsumer(&fakeRedis{}, "events", nullLogger{})
	event, ok := c.decode(`{"message_type":"trade_event","timestamp_ms":2000,"data":{"instance_id":"i-1","tx_hash":"0xabc","status":"success","amount_in":"100","amount_out":"99","profit_bps":12.5}}`)
	require.True(t, ok)
	result, ok := event.Data.(TradeResult)
	require.True(t, ok)
	assert.Equal(t, TradeStatusSuccess, result.Status)
}
