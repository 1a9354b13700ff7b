// Package stream implements the pool-state stream adapter (C1): a lazy,
// ordered, restartable sequence of pool.StreamMessage values consumed by the
// protocol cache.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/sha3"

	"github.com/defistate/market-maker/pool"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	rpcNamespace       = "defi"
	subscriptionMethod = "subscribePoolStateStream"
)

// nullAddressHash lets isNullAddress compare by hash instead of by
// string, so it can't be tricked by padding or casing differences in the
// wire-format address string.
var nullAddressHash = sha3.Sum256(common.Address{}.Bytes())

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the dependencies and tunables for a Client.
type Config struct {
	URL        string
	Logger     Logger
	Registry   prometheus.Registerer
	Decoder    Decoder
	BufferSize uint

	// MaxPermanentFailures is the number of consecutive reconnect failures
	// before the client gives up and surfaces a fatal error on Err(). Zero
	// means retry forever.
	MaxPermanentFailures int
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Decoder == nil {
		return errors.New("config: Decoder is required")
	}
	if c.BufferSize == 0 {
		c.BufferSize = 64
	}
	return nil
}

type clientMetrics struct {
	messagesReceived  prometheus.Counter
	reconnects        prometheus.Counter
	componentsFiltered prometheus.Counter
	decodeErrors      prometheus.Counter
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	m := &clientMetrics{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmaker_stream_messages_received_total",
			Help: "Number of stream messages received from the indexer.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmaker_stream_reconnects_total",
			Help: "Number of successful connections made by the stream client, including the first.",
		}),
		componentsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmaker_stream_components_filtered_total",
			Help: "Number of components dropped at the stream boundary for carrying a null-address sentinel.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketmaker_stream_decode_errors_total",
			Help: "Number of wire messages that failed to decode into a pool.StreamMessage.",
		}),
	}
	reg.MustRegister(m.messagesReceived, m.reconnects, m.componentsFiltered, m.decodeErrors)
	return m
}

// Client manages the subscription lifecycle and yields decoded
// pool.StreamMessage values on a channel.
type Client struct {
	cfg     Config
	logger  Logger
	metrics *clientMetrics

	msgCh chan *pool.StreamMessage
	errCh chan error
}

// NewClient dials the indexer and begins streaming in the background. The
// returned Client's Messages channel is closed only after Err has received a
// fatal error or ctx is cancelled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: newClientMetrics(cfg.Registry),
		msgCh:   make(chan *pool.StreamMessage, cfg.BufferSize),
		errCh:   make(chan error, 1),
	}

	go c.run(ctx)
	return c, nil
}

// Messages returns the channel of decoded, ordered stream messages.
func (c *Client) Messages() <-chan *pool.StreamMessage {
	return c.msgCh
}

// Err returns a channel that receives exactly one fatal, unrecoverable error
// before closing, or closes without a value if the context was cancelled.
func (c *Client) Err() <-chan error {
	return c.errCh
}

func (c *Client) run(ctx context.Context) {
	defer close(c.errCh)
	defer close(c.msgCh)

	delay := initialReconnectDelay
	failures := 0

	for {
		if ctx.Err() != nil {
			c.logger.Info("stream client context cancelled, shutting down")
			return
		}

		c.logger.Info("connecting to pool-state stream", "url", c.cfg.URL)
		rpcClient, err := rpc.DialContext(ctx, c.cfg.URL)
		if err != nil {
			failures++
			c.logger.Error("failed to dial stream RPC, retrying", "error", err, "delay", delay)
			if c.permanentFailure(failures) {
				c.errCh <- fmt.Errorf("stream: permanent failure after %d attempts: %w", failures, err)
				return
			}
			if !sleepOrDone(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		c.logger.Info("connected to pool-state stream")
		delay = initialReconnectDelay
		failures = 0
		c.metrics.reconnects.Inc()

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.logger.Info("stream context cancelled, shutting down")
			return
		}

		failures++
		c.logger.Error("stream subscription failed, reconnecting", "error", err, "delay", delay)
		if c.permanentFailure(failures) {
			c.errCh <- fmt.Errorf("stream: permanent failure after %d attempts: %w", failures, err)
			return
		}
		if !sleepOrDone(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (c *Client) permanentFailure(failures int) bool {
	return c.cfg.MaxPermanentFailures > 0 && failures >= c.cfg.MaxPermanentFailures
}

func nextDelay(d time.Duration) time.Duration {
	next := d * 2
	if next > maxReconnectDelay {
		return maxReconnectDelay
	}
	return next
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, rpcNamespace, rawCh, subscriptionMethod)
	if err != nil {
		return fmt.Errorf("stream: subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("subscribed to pool-state stream, awaiting messages")
	for {
		select {
		case raw := <-rawCh:
			c.metrics.messagesReceived.Inc()
			msg, err := c.decode(raw)
			if err != nil {
				c.metrics.decodeErrors.Inc()
				c.logger.Error("failed to decode stream message", "error", err)
				continue
			}
			select {
			case c.msgCh <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) decode(raw json.RawMessage) (*pool.StreamMessage, error) {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("stream: unmarshal envelope: %w", err)
	}

	msg := &pool.StreamMessage{BlockNumber: wire.BlockNumber}

	for _, wc := range wire.NewComponents {
		comp, ok, err := c.decodeComponent(wc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		msg.NewComponents = append(msg.NewComponents, comp)
	}

	for _, wc := range wire.UpdatedComponents {
		comp, ok, err := c.decodeComponent(wc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		msg.UpdatedComponents = append(msg.UpdatedComponents, comp)
	}

	for _, id := range wire.RemovedComponents {
		if isNullAddress(id) {
			continue
		}
		msg.RemovedComponents = append(msg.RemovedComponents, pool.ComponentID(id))
	}

	for _, wd := range wire.StateDeltas {
		if isNullAddress(wd.ComponentID) {
			continue
		}
		apply, err := c.cfg.Decoder.DecodeDelta(wd.Protocol, wd.Data)
		if err != nil {
			return nil, fmt.Errorf("stream: decode delta for %s: %w", wd.ComponentID, err)
		}
		msg.StateDeltas = append(msg.StateDeltas, pool.StateDelta{
			ComponentID: pool.ComponentID(wd.ComponentID),
			Apply:       apply,
		})
	}

	balances, err := parseBalances(wire.BalanceDeltas)
	if err != nil {
		return nil, err
	}
	msg.BalanceDeltas = balances

	return msg, nil
}

func (c *Client) decodeComponent(wc wireComponent) (pool.Component, bool, error) {
	if isNullAddress(wc.ID) {
		c.metrics.componentsFiltered.Inc()
		return pool.Component{}, false, nil
	}
	for _, tok := range wc.Tokens {
		if tok == (common.Address{}) {
			c.metrics.componentsFiltered.Inc()
			return pool.Component{}, false, nil
		}
	}

	state, err := c.cfg.Decoder.DecodeState(wc.Protocol, wc.Data)
	if err != nil {
		return pool.Component{}, false, fmt.Errorf("stream: decode state for %s: %w", wc.ID, err)
	}

	return pool.Component{
		Protocol: wc.Protocol,
		ID:       pool.ComponentID(wc.ID),
		Tokens:   wc.Tokens,
		State:    state,
	}, true, nil
}

// isNullAddress reports whether s is the zero address, by exact value
// rather than substring match: a component or token id that merely contains
// the zero address's hex digits as a substring is not the zero address. IDs
// that aren't address-shaped at all (e.g. an opaque component id) are never
// the null address.
func isNullAddress(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}
	hash := sha3.Sum256(common.HexToAddress(s).Bytes())
	return hash == nullAddressHash
}

func errInvalidBalance(compID, tokenHex, amountStr string) error {
	return fmt.Errorf("stream: invalid balance amount %q for component %s token %s", amountStr, compID, tokenHex)
}
