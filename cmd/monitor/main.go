package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/defistate/market-maker/eventbus"
	"github.com/defistate/market-maker/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		logger.Error("failed to load secrets", "error", err)
		os.Exit(1)
	}
	if secrets.EventBusURL == "" {
		logger.Error("MAKER_EVENT_BUS_URL is required to run the monitor")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: secrets.EventBusURL})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to reach event bus", "error", err)
		os.Exit(1)
	}

	consumer := eventbus.NewConsumer(redisClient, cfg.EventBus.Channel, logger)
	logger.Info("listening for market maker events", "channel", cfg.EventBus.Channel)

	for event := range consumer.Subscribe(ctx) {
		logEvent(logger, event)
	}

	logger.Info("monitor shutting down")
}

// logEvent records one decoded event at a level matching its significance:
// trade outcomes are the most important signal the monitor exists for.
func logEvent(logger *slog.Logger, event eventbus.Event) {
	switch data := event.Data.(type) {
	case eventbus.InstanceUp:
		logger.Info("instance up", "instance_id", data.InstanceID, "network", data.Network)
	case eventbus.Heartbeat:
		logger.Debug("heartbeat", "instance_id", data.InstanceID)
	case eventbus.PriceTick:
		logger.Debug("price tick", "instance_id", data.InstanceID, "reference", data.Reference, "pool_median", data.PoolMedian)
	case eventbus.TradeAttempt:
		logger.Info("trade attempt", "instance_id", data.InstanceID, "component", data.Component, "side", data.Side, "amount_in", data.AmountIn, "profit_bps", data.ProfitBps)
	case eventbus.TradeResult:
		logger.Info("trade result", "instance_id", data.InstanceID, "tx_hash", data.TxHash, "status", data.Status, "profit_bps", data.ProfitBps, "event_id", event.EventID)
	default:
		logger.Warn("received event of unhandled type", "message_type", event.MessageType)
	}
}
