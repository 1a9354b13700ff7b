// Package supervisor implements the supervisor (C10): the instance's boot
// sequence, state machine, heartbeat, and the evaluation-tick algorithm that
// ties every other component together.
package supervisor

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/defistate/market-maker/eventbus"
	"github.com/defistate/market-maker/evaluator"
	"github.com/defistate/market-maker/exec"
	"github.com/defistate/market-maker/inventory"
	"github.com/defistate/market-maker/optimizer"
	"github.com/defistate/market-maker/orderbuilder"
	"github.com/defistate/market-maker/pool"
	"github.com/defistate/market-maker/pricefeed"
	"github.com/defistate/market-maker/stream"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RPC is the subset of ethclient.Client the loop needs directly, beyond what
// it hands to the inventory manager and execution adapter.
type RPC interface {
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// HeartbeatClient sends the instance's liveness ping to an external URL.
type HeartbeatClient interface {
	Send(ctx context.Context, url string) error
}

// httpHeartbeatClient posts an empty liveness ping, matching the original
// instance's periodic uptime report to an external collector.
type httpHeartbeatClient struct {
	client *http.Client
}

// NewHTTPHeartbeatClient builds a HeartbeatClient backed by the standard
// library HTTP client.
func NewHTTPHeartbeatClient(timeout time.Duration) HeartbeatClient {
	return httpHeartbeatClient{client: &http.Client{Timeout: timeout}}
}

func (h httpHeartbeatClient) Send(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("supervisor: build heartbeat request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("supervisor: send heartbeat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("supervisor: heartbeat endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Config holds the tunables for a Loop, distinct from the collaborators in
// Deps so the state machine's policy can be unit tested against fakes.
type Config struct {
	InstanceID string
	Network    string
	Pair       pool.Pair

	// Testing shortens the restart delay, turns the heartbeat off, and relaxes
	// the secrets validation the caller performs before constructing the Loop.
	Testing bool

	RestartDelay        time.Duration
	TestingRestartDelay time.Duration

	HeartbeatInterval time.Duration
	HeartbeatURL      string

	// MaxInventoryRatio bounds the largest amount_in the optimizer may try,
	// as a fraction of the selling side's wallet balance.
	MaxInventoryRatio float64
	// OutlierThresholdBps is the largest allowed deviation between the
	// fetched reference price and the median pool spot price before a tick
	// is rejected as an outlier.
	OutlierThresholdBps float64

	ApprovalPolicy inventory.ApprovalPolicy

	Evaluator evaluator.Config
	Optimizer optimizer.Config
	Order     orderbuilder.Config

	MaxFeePerGasCap *big.Int
}

func (c Config) restartDelay() time.Duration {
	if c.Testing && c.TestingRestartDelay > 0 {
		return c.TestingRestartDelay
	}
	if c.RestartDelay > 0 {
		return c.RestartDelay
	}
	return 5 * time.Second
}

// Deps holds the already-constructed collaborators the loop drives. The
// caller (cmd/maker) wires these; the loop never dials a connection itself.
type Deps struct {
	Cache     *pool.Cache
	Stream    *stream.Client
	PriceFeed pricefeed.Provider
	Inventory *inventory.Manager
	RPC       RPC
	Exec      exec.Adapter
	Publisher *eventbus.Publisher // nil disables event publication entirely
	Heartbeat HeartbeatClient
	Logger    Logger

	// GasTokenPriceFeed supplies the gas token's USD rate the optimizer
	// needs to net gas cost out of a candidate's profit. A nil feed means
	// no candidate ever clears the evaluator's positive-rate screen.
	GasTokenPriceFeed pricefeed.Provider
}

// Loop runs the supervisor's state machine for a single configured pair.
type Loop struct {
	cfg  Config
	deps Deps

	state atomic.Int32
}

// NewLoop constructs a Loop, validating that every required collaborator is
// present.
func NewLoop(cfg Config, deps Deps) (*Loop, error) {
	if deps.Cache == nil {
		return nil, fmt.Errorf("supervisor: Cache is required")
	}
	if deps.Stream == nil {
		return nil, fmt.Errorf("supervisor: Stream is required")
	}
	if deps.PriceFeed == nil {
		return nil, fmt.Errorf("supervisor: PriceFeed is required")
	}
	if deps.Inventory == nil {
		return nil, fmt.Errorf("supervisor: Inventory is required")
	}
	if deps.RPC == nil {
		return nil, fmt.Errorf("supervisor: RPC is required")
	}
	if deps.Exec == nil {
		return nil, fmt.Errorf("supervisor: Exec is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("supervisor: Logger is required")
	}
	l := &Loop{cfg: cfg, deps: deps}
	l.state.Store(int32(Booting))
	return l, nil
}

// State reports the loop's current position in the state machine.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	l.deps.Logger.Debug("supervisor: state transition", "state", s.String())
}

// Run drives the full boot sequence, then the streaming state until ctx is
// canceled. A panic or unhandled error inside a tick restarts the streaming
// loop after a delay rather than propagating, per the supervisor's crash
// isolation contract; Run itself only returns once ctx is done or startup
// fails.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.startup(ctx); err != nil {
		return fmt.Errorf("supervisor: startup: %w", err)
	}

	if !l.cfg.Testing && l.deps.Heartbeat != nil && l.cfg.HeartbeatURL != "" {
		go l.runHeartbeat(ctx)
	}

	for {
		l.setState(Streaming)
		err := l.runStreaming(ctx)
		if ctx.Err() != nil {
			l.setState(ShuttingDown)
			return nil
		}
		if err == nil {
			// Stream closed without a context cancellation; treat as a
			// permanent failure, same as an explicit error.
			err = fmt.Errorf("supervisor: stream closed unexpectedly")
		}
		l.deps.Logger.Error("supervisor: streaming loop failed, restarting", "error", err)

		delay := l.cfg.restartDelay()
		select {
		case <-ctx.Done():
			l.setState(ShuttingDown)
			return nil
		case <-time.After(delay):
		}
	}
}

// startup performs the supervisor's Booting/Connecting sequence: ping the
// event bus if publishing is enabled, then announce InstanceUp.
func (l *Loop) startup(ctx context.Context) error {
	l.setState(Booting)

	if l.deps.Publisher != nil {
		l.setState(Connecting)
		if err := l.deps.Publisher.Ping(ctx); err != nil {
			return fmt.Errorf("event bus unreachable at startup: %w", err)
		}
		l.deps.Publisher.PublishInstanceUp(ctx, eventbus.InstanceUp{
			InstanceID: l.cfg.InstanceID,
			Network:    l.cfg.Network,
		})
	}

	l.deps.Logger.Info("supervisor: booted", "instance_id", l.cfg.InstanceID, "network", l.cfg.Network)
	return nil
}

// runStreaming consumes stream messages and evaluation-ticks them one at a
// time until the stream reports a permanent error or ctx is canceled. A tick
// panic is recovered and surfaced as an error so Run can restart cleanly.
func (l *Loop) runStreaming(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("supervisor: tick panic: %v", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case streamErr, ok := <-l.deps.Stream.Err():
			if ok && streamErr != nil {
				return fmt.Errorf("stream: %w", streamErr)
			}
		case msg, ok := <-l.deps.Stream.Messages():
			if !ok {
				return nil
			}
			if tickErr := l.tick(ctx, msg); tickErr != nil {
				return tickErr
			}
		}
	}
}

func (l *Loop) runHeartbeat(ctx context.Context) {
	interval := l.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.deps.Heartbeat.Send(ctx, l.cfg.HeartbeatURL); err != nil {
				l.deps.Logger.Warn("supervisor: heartbeat send failed", "error", err)
			}
			if l.deps.Publisher != nil {
				l.deps.Publisher.PublishHeartbeat(ctx, eventbus.Heartbeat{InstanceID: l.cfg.InstanceID})
			}
		}
	}
}
