// Package eventbus implements the event publisher (C9): fire-and-forget
// publication of typed events to a Redis pub/sub channel, with rate
// limiting on price ticks and a startup reachability check the supervisor
// uses to fail fast.
package eventbus

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/sha3"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RedisClient is the subset of *redis.Client the publisher and consumer
// depend on.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Config holds the dependencies and tunables for a Publisher.
type Config struct {
	Redis   RedisClient
	Channel string
	Logger  Logger

	// MinPublishTimeframe rate-limits PriceTick publication; ticks arriving
	// faster than this are silently dropped.
	MinPublishTimeframe time.Duration
}

// Publisher publishes typed events as JSON envelopes to a Redis channel.
type Publisher struct {
	cfg Config

	mu            sync.Mutex
	lastPriceTick time.Time
}

// NewPublisher constructs a Publisher. It does not itself ping Redis; call
// Ping separately so the caller can fail fast at startup.
func NewPublisher(cfg Config) *Publisher {
	return &Publisher{cfg: cfg}
}

// Ping verifies the bus is reachable, per the supervisor's fail-fast startup
// requirement when publishing is enabled.
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.cfg.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("eventbus: ping: %w", err)
	}
	return nil
}

// PublishInstanceUp announces a newly booted instance.
func (p *Publisher) PublishInstanceUp(ctx context.Context, e InstanceUp) {
	p.publish(ctx, MessageTypeNewInstance, e)
}

// PublishHeartbeat announces this instance's liveness.
func (p *Publisher) PublishHeartbeat(ctx context.Context, e Heartbeat) {
	p.publish(ctx, MessageTypeHeartbeat, e)
}

// PublishPriceTick publishes e unless one was published within
// MinPublishTimeframe, in which case it is silently dropped.
func (p *Publisher) PublishPriceTick(ctx context.Context, e PriceTick) {
	p.mu.Lock()
	now := time.Now()
	if !p.lastPriceTick.IsZero() && now.Sub(p.lastPriceTick) < p.cfg.MinPublishTimeframe {
		p.mu.Unlock()
		return
	}
	p.lastPriceTick = now
	p.mu.Unlock()

	p.publish(ctx, MessageTypePriceTick, e)
}

// PublishTradeAttempt announces a trade selected for submission.
func (p *Publisher) PublishTradeAttempt(ctx context.Context, e TradeAttempt) {
	p.publish(ctx, MessageTypeTradeAttempt, e)
}

// PublishTradeResult reports the outcome of a submitted order.
func (p *Publisher) PublishTradeResult(ctx context.Context, e TradeResult) {
	p.publish(ctx, MessageTypeTradeEvent, e)
}

func (p *Publisher) publish(ctx context.Context, msgType MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		p.cfg.Logger.Error("eventbus: marshal event data", "error", err, "message_type", msgType)
		return
	}

	env := envelope{
		MessageType: msgType,
		TimestampMs: time.Now().UnixMilli(),
		EventID:     eventID(msgType, raw),
		Data:        raw,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		p.cfg.Logger.Error("eventbus: marshal envelope", "error", err, "message_type", msgType)
		return
	}

	if err := p.cfg.Redis.Publish(ctx, p.cfg.Channel, payload).Err(); err != nil {
		p.cfg.Logger.Warn("eventbus: publish failed, dropping", "error", err, "message_type", msgType)
	}
}

// eventID deterministically fingerprints a message so a consumer can
// deduplicate it without depending on Redis delivery semantics.
func eventID(msgType MessageType, data json.RawMessage) string {
	digest := sha3.Sum256(append([]byte(msgType+":"), data...))
	return hex.EncodeToString(digest[:])
}
