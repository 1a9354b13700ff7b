package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	wsInitialReconnectDelay = 1 * time.Second
	wsMaxReconnectDelay     = 30 * time.Second
	// wsStaleAfter bounds how long a cached tick may be served before
	// FetchPrice refuses to answer with it.
	wsStaleAfter = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// tickerMessage is the subset of fields read from the upstream ticker feed.
// Price is kept as a string and parsed with shopspring/decimal to avoid the
// float round-trip error a naive json.Number would introduce.
type tickerMessage struct {
	Price string `json:"price"`
}

type cachedTick struct {
	price float64
	at    time.Time
}

// WebsocketProvider maintains a background connection to a trade/ticker feed
// and serves the most recently observed price without blocking the caller.
type WebsocketProvider struct {
	url    string
	logger Logger

	last atomic.Pointer[cachedTick]
}

// NewWebsocketProvider dials url in the background and begins tracking
// prices immediately; FetchPrice is safe to call before the first tick
// arrives and returns an error until one does.
func NewWebsocketProvider(ctx context.Context, url string, logger Logger) *WebsocketProvider {
	p := &WebsocketProvider{url: url, logger: logger}
	go p.run(ctx)
	return p
}

func (p *WebsocketProvider) FetchPrice(ctx context.Context) (float64, error) {
	tick := p.last.Load()
	if tick == nil {
		return 0, errors.New("pricefeed: no ticker data received yet")
	}
	if time.Since(tick.at) > wsStaleAfter {
		return 0, fmt.Errorf("pricefeed: ticker data stale, last update %s ago", time.Since(tick.at))
	}
	return tick.price, nil
}

func (p *WebsocketProvider) run(ctx context.Context) {
	delay := wsInitialReconnectDelay

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, nil)
		if err != nil {
			p.logger.Error("pricefeed: websocket dial failed, retrying", "error", err, "delay", delay)
			if !p.sleepOrDone(ctx, delay) {
				return
			}
			delay = nextWsDelay(delay)
			continue
		}

		p.logger.Info("pricefeed: websocket connected", "url", p.url)
		delay = wsInitialReconnectDelay

		if err := p.readLoop(ctx, conn); err != nil {
			if errors.Is(err, context.Canceled) {
				conn.Close()
				return
			}
			p.logger.Error("pricefeed: websocket read loop ended, reconnecting", "error", err, "delay", delay)
		}
		conn.Close()
		if !p.sleepOrDone(ctx, delay) {
			return
		}
		delay = nextWsDelay(delay)
	}
}

func (p *WebsocketProvider) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg tickerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			p.logger.Warn("pricefeed: malformed ticker message, skipping", "error", err)
			continue
		}
		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			p.logger.Warn("pricefeed: unparseable ticker price, skipping", "error", err, "raw", msg.Price)
			continue
		}
		if price.Sign() <= 0 {
			p.logger.Warn("pricefeed: non-positive ticker price, skipping", "price", msg.Price)
			continue
		}

		priceF, _ := price.Float64()
		p.last.Store(&cachedTick{price: priceF, at: time.Now()})
	}
}

func (p *WebsocketProvider) sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func nextWsDelay(d time.Duration) time.Duration {
	next := d * 2
	if next > wsMaxReconnectDelay {
		return wsMaxReconnectDelay
	}
	return next
}
