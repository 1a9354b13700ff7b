package eventbus

import (
	"context"
	"encoding/json"
)

// Consumer subscribes to the event channel and decodes each message into an
// Event, tolerating malformed JSON and unrecognized message_type values.
type Consumer struct {
	redisClient RedisClient
	channel     string
	logger      Logger
}

func NewConsumer(client RedisClient, channel string, logger Logger) *Consumer {
	return &Consumer{redisClient: client, channel: channel, logger: logger}
}

// Subscribe returns a channel of decoded events. Malformed JSON and unknown
// message_type values are logged (or silently ignored, for unknown kinds)
// and never sent on the returned channel.
func (c *Consumer) Subscribe(ctx context.Context) <-chan Event {
	out := make(chan Event)
	sub := c.redisClient.Subscribe(ctx, c.channel)

	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				event, ok := c.decode(msg.Payload)
				if !ok {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (c *Consumer) decode(payload string) (Event, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		c.logger.Error("eventbus: malformed message, dropping", "error", err)
		return Event{}, false
	}

	var data any
	switch env.MessageType {
	case MessageTypeNewInstance:
		var v InstanceUp
		if err := json.Unmarshal(env.Data, &v); err != nil {
			c.logger.Error("eventbus: malformed new_instance data, dropping", "error", err)
			return Event{}, false
		}
		data = v
	case MessageTypeHeartbeat:
		var v Heartbeat
		if err := json.Unmarshal(env.Data, &v); err != nil {
			c.logger.Error("eventbus: malformed heartbeat data, dropping", "error", err)
			return Event{}, false
		}
		data = v
	case MessageTypePriceTick:
		var v PriceTick
		if err := json.Unmarshal(env.Data, &v); err != nil {
			c.logger.Error("eventbus: malformed price_tick data, dropping", "error", err)
			return Event{}, false
		}
		data = v
	case MessageTypeTradeAttempt:
		var v TradeAttempt
		if err := json.Unmarshal(env.Data, &v); err != nil {
			c.logger.Error("eventbus: malformed trade_attempt data, dropping", "error", err)
			return Event{}, false
		}
		data = v
	case MessageTypeTradeEvent:
		var v TradeResult
		if err := json.Unmarshal(env.Data, &v); err != nil {
			c.logger.Error("eventbus: malformed trade_event data, dropping", "error", err)
			return Event{}, false
		}
		data = v
	default:
		// Unknown message_type: ignored, not an error.
		return Event{}, false
	}

	return Event{MessageType: env.MessageType, TimestampMs: env.TimestampMs, EventID: env.EventID, Data: data}, true
}
