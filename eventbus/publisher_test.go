package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nullLogger struct{}

func (nullLogger) Debug(string, ...any) {}
func (nullLogger) Info(string, ...any)  {}
func (nullLogger) Warn(string, ...any)  {}
func (nullLogger) Error(string, ...any) {}

type fakeRedis struct {
	pingErr    error
	published  []string
	publishErr error
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.pingErr != nil {
		cmd.SetErr(f.pingErr)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.publishErr != nil {
		cmd.SetErr(f.publishErr)
		return cmd
	}
	switch m := message.(type) {
	case string:
		f.published = append(f.published, m)
	case []byte:
		f.published = append(f.published, string(m))
	default:
		panic("fakeRedis.Publish: unsupported message type")
	}
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return nil
}

func TestPing_SucceedsWhenReachable(t *testing.T) {
	pub := NewPublisher(Config{Redis: &fakeRedis{}, Channel: "events", Logger: nullLogger{}})
	assert.NoError(t, pub.Ping(context.Background()))
}

func TestPing_FailsWhenUnreachable(t *testing.T) {
	pub := NewPublisher(Config{Redis: &fakeRedis{pingErr: errors.New("connection refused")}, Channel: "events", Logger: nullLogger{}})
	assert.Error(t, pub.Ping(context.Background()))
}

func TestPublishInstanceUp_WritesEnvelope(t *testing.T) {
	fake := &fakeRedis{}
	pub := NewPublisher(Config{Redis: fake, Channel: "events", Logger: nullLogger{}})

	pub.PublishInstanceUp(context.Background(), InstanceUp{InstanceID: "i-1", Network: "base"})
	require.Len(t, fake.published, 1)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(fake.published[0]), &env))
	assert.Equal(t, MessageTypeNewInstance, env.MessageType)
	assert.NotEmpty(t, env.EventID)

	var data InstanceUp
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "i-1", data.InstanceID)
}

func TestEventID_IsDeterministicAndDataDependent(t *testing.T) {
	idA1 := eventID(MessageTypeNewInstance, json.RawMessage(`{"instance_id":"i-1"}`))
	idA2 := eventID(MessageTypeNewInstance, json.RawMessage(`{"instance_id":"i-1"}`))
	idB := eventID(MessageTypeNewInstance, json.RawMessage(`{"instance_id":"i-2"}`))

	assert.Equal(t, idA1, idA2)
	assert.NotEqual(t, idA1, idB)
}

func TestPublishPriceTick_RateLimited(t *testing.T) {
	fake := &fakeRedis{}
	pub := NewPublisher(Config{Redis: fake, Channel: "events", Logger: nullLogger{}, MinPublishTimeframe: time.Hour})

	pub.PublishPriceTick(context.Background(), PriceTick{Reference: 1})
	pub.PublishPriceTick(context.Background(), PriceTick{Reference: 2})

	assert.Len(t, fake.published, 1)
}

func TestPublishPriceTick_AllowsAfterTimeframeElapses(t *testing.T) {
	fake := &fakeRedis{}
	pub := NewPublisher(Config{Redis: fake, Channel: "events", Logger: nullLogger{}, MinPublishTimeframe: time.Millisecond})

	pub.PublishPriceTick(context.Background(), PriceTick{Reference: 1})
	time.Sleep(5 * time.Millisecond)
	pub.PublishPriceTick(context.Background(), PriceTick{Reference: 2})

	assert.Len(t, fake.published, 2)
}

func TestPublishTradeResult_SwallowsPublishError(t *testing.T) {
	fake := &fakeRedis{publishErr: errors.New("channel closed")}
	pub := NewPublisher(Config{Redis: fake, Channel: "events", Logger: nullLogger{}})

	assert.NotPanics(t, func() {
		pub.PublishTradeResult(context.Background(), TradeResult{Status: TradeStatusSuccess})
	})
}
