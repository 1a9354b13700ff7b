package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"

	"github.com/defistate/market-maker/decoder"
	"github.com/defistate/market-maker/eventbus"
	"github.com/defistate/market-maker/evaluator"
	"github.com/defistate/market-maker/exec"
	"github.com/defistate/market-maker/exec/chain"
	"github.com/defistate/market-maker/internal/config"
	"github.com/defistate/market-maker/internal/metrics"
	"github.com/defistate/market-maker/inventory"
	"github.com/defistate/market-maker/optimizer"
	"github.com/defistate/market-maker/orderbuilder"
	"github.com/defistate/market-maker/pool"
	"github.com/defistate/market-maker/pricefeed"
	"github.com/defistate/market-maker/stream"
	"github.com/defistate/market-maker/supervisor"
)

func main() {
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	rootLogger := slog.New(rootLogHandler)
	fail := func(msg string, args ...any) {
		rootLogger.Error(msg, args...)
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fail("failed to load configuration", "error", err)
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		fail("failed to load secrets", "error", err)
	}
	if err := secrets.Validate(cfg); err != nil {
		fail("invalid secrets for configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()

	rpcClient, err := ethclient.DialContext(ctx, cfg.RPCURLs[0])
	if err != nil {
		fail("failed to dial RPC endpoint", "url", cfg.RPCURLs[0], "error", err)
	}

	wallet := crypto.PubkeyToAddress(secrets.WalletKey.PublicKey)

	streamClient, err := stream.NewClient(ctx, stream.Config{
		URL:      cfg.IndexerURL,
		Logger:   rootLogger.With("component", "stream"),
		Registry: registry,
		Decoder:  decoder.Registry{},
	})
	if err != nil {
		fail("failed to start pool-state stream", "error", err)
	}

	cache, err := pool.NewCache(pool.Pair{
		Base:     pool.Token{Address: cfg.BaseToken.Address, Symbol: cfg.BaseToken.Symbol, Decimals: cfg.BaseToken.Decimals},
		Quote:    pool.Token{Address: cfg.QuoteToken.Address, Symbol: cfg.QuoteToken.Symbol, Decimals: cfg.QuoteToken.Decimals},
		GasToken: pool.Token{Address: cfg.GasToken.Address, Symbol: cfg.GasToken.Symbol, Decimals: cfg.GasToken.Decimals},
	}, pool.CacheConfig{
		Registry: registry,
		Logger:   rootLogger.With("component", "cache"),
	})
	if err != nil {
		fail("failed to construct protocol cache", "error", err)
	}

	referenceFeed, err := pricefeed.NewProvider(ctx, pricefeed.Config{
		Type:          pricefeed.Type(cfg.PriceFeed.Type),
		Reverse:       cfg.PriceFeed.Reverse,
		OracleAddress: cfg.PriceFeed.Oracle,
		EthClient:     rpcClient,
		URL:           cfg.PriceFeed.URL,
		Logger:        rootLogger.With("component", "pricefeed"),
	})
	if err != nil {
		fail("failed to construct reference price feed", "error", err)
	}

	var gasTokenFeed pricefeed.Provider
	if cfg.GasTokenPriceFeed.Type != "" {
		gasTokenFeed, err = pricefeed.NewProvider(ctx, pricefeed.Config{
			Type:          pricefeed.Type(cfg.GasTokenPriceFeed.Type),
			Reverse:       cfg.GasTokenPriceFeed.Reverse,
			OracleAddress: cfg.GasTokenPriceFeed.Oracle,
			EthClient:     rpcClient,
			URL:           cfg.GasTokenPriceFeed.URL,
			Logger:        rootLogger.With("component", "gas-token-pricefeed"),
		})
		if err != nil {
			fail("failed to construct gas token price feed", "error", err)
		}
	}

	invMgr := inventory.NewManager(inventory.Config{
		RPC:        rpcClient,
		Wallet:     wallet,
		Router:     cfg.Router,
		BaseToken:  cfg.BaseToken.Address,
		QuoteToken: cfg.QuoteToken.Address,
		GasToken:   cfg.GasToken.Address,
	})

	adapter := buildAdapter(cfg, secrets, rpcClient, wallet, rootLogger)

	var publisher *eventbus.Publisher
	if cfg.PublishEvents {
		redisClient := redis.NewClient(&redis.Options{Addr: secrets.EventBusURL})
		publisher = eventbus.NewPublisher(eventbus.Config{
			Redis:               redisClient,
			Channel:             cfg.EventBus.Channel,
			Logger:              rootLogger.With("component", "eventbus"),
			MinPublishTimeframe: time.Duration(cfg.MinPublishTimeframeMs) * time.Millisecond,
		})
	}

	var heartbeat supervisor.HeartbeatClient
	if secrets.HeartbeatURL != "" {
		heartbeat = supervisor.NewHTTPHeartbeatClient(5 * time.Second)
	}

	loop, err := supervisor.NewLoop(supervisor.Config{
		InstanceID: cfg.InstanceID,
		Network:    cfg.Network,
		Pair: pool.Pair{
			Base:  pool.Token{Address: cfg.BaseToken.Address, Symbol: cfg.BaseToken.Symbol, Decimals: cfg.BaseToken.Decimals},
			Quote: pool.Token{Address: cfg.QuoteToken.Address, Symbol: cfg.QuoteToken.Symbol, Decimals: cfg.QuoteToken.Decimals},
		},
		Testing:             cfg.Testing,
		RestartDelay:        time.Duration(cfg.RestartDelayMs) * time.Millisecond,
		TestingRestartDelay: time.Duration(cfg.TestingRestartDelayMs) * time.Millisecond,
		HeartbeatInterval:   time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,
		HeartbeatURL:        secrets.HeartbeatURL,
		MaxInventoryRatio:   cfg.MaxInventoryRatio,
		OutlierThresholdBps: cfg.OutlierThresholdBps,
		ApprovalPolicy:      inventory.ApprovalPolicy{InfiniteApproval: cfg.InfiniteApproval},
		Evaluator: evaluator.Config{
			MinWatchSpreadBps: cfg.MinWatchSpreadBps,
			ReserveEpsilon:    cfg.ReserveEpsilon,
			MinUSDValue:       cfg.MinUSDTradeFloor,
		},
		Optimizer: optimizer.Config{
			MaxSlippagePct:         cfg.MaxSlippagePct,
			MinExecutableSpreadBps: cfg.MinExecutableSpreadBps,
		},
		Order: orderbuilder.Config{
			Router:         cfg.Router,
			DeadlineOffset: time.Duration(cfg.DeadlineOffsetSec) * time.Second,
			GasLimit:       cfg.TxGasLimit,
			Encoder:        orderbuilder.UniswapV2Encoder{Recipient: wallet},
		},
		MaxFeePerGasCap: gweiToWei(cfg.Execution.MaxFeePerGasCapGwei),
	}, supervisor.Deps{
		Cache:             cache,
		Stream:            streamClient,
		PriceFeed:         referenceFeed,
		Inventory:         invMgr,
		RPC:               rpcClient,
		Exec:              adapter,
		Publisher:         publisher,
		Heartbeat:         heartbeat,
		Logger:            rootLogger.With("component", "supervisor"),
		GasTokenPriceFeed: gasTokenFeed,
	})
	if err != nil {
		fail("failed to construct supervisor loop", "error", err)
	}

	if err := loop.Run(ctx); err != nil {
		fail("supervisor loop exited with error", "error", err)
	}
}

func buildAdapter(cfg *config.Config, secrets *config.Secrets, rpcClient *ethclient.Client, wallet common.Address, logger *slog.Logger) exec.Adapter {
	chainID := new(big.Int).SetUint64(cfg.ChainID)
	maxFeeCap := gweiToWei(cfg.Execution.MaxFeePerGasCapGwei)

	switch cfg.Execution.Policy {
	case "private_relay":
		relay := chain.NewHTTPBundleRelay(cfg.Execution.RelayURL, secrets.RelayAuth)
		return chain.NewPrivateRelay(chain.PrivateRelayConfig{
			RPC:                 rpcClient,
			Relay:               relay,
			Key:                 secrets.WalletKey,
			Wallet:              wallet,
			ChainID:             chainID,
			Logger:              logger.With("component", "exec-private-relay"),
			InclusionBlockDelay: cfg.Execution.InclusionBlockDelay,
			MaxBundleBlocks:     cfg.Execution.MaxBundleBlocks,
			PollInterval:        time.Duration(cfg.Execution.PollIntervalMs) * time.Millisecond,
			MaxFeePerGasCap:     maxFeeCap,
		})
	case "fast_preconf":
		preconf := chain.NewHTTPPreconfirmer(cfg.Execution.PreconfURL)
		return chain.NewFastPreconf(chain.FastPreconfConfig{
			RPC:             rpcClient,
			Preconf:         preconf,
			Key:             secrets.WalletKey,
			Wallet:          wallet,
			ChainID:         chainID,
			Logger:          logger.With("component", "exec-fast-preconf"),
			AckTimeout:      time.Duration(cfg.Execution.AckTimeoutMs) * time.Millisecond,
			MaxFeePerGasCap: maxFeeCap,
		})
	default:
		return chain.NewPublicRPC(chain.PublicRPCConfig{
			RPC:             rpcClient,
			Key:             secrets.WalletKey,
			Wallet:          wallet,
			ChainID:         chainID,
			Logger:          logger.With("component", "exec-public-rpc"),
			InclusionBlocks: cfg.Execution.InclusionBlocks,
			PollInterval:    time.Duration(cfg.Execution.PollIntervalMs) * time.Millisecond,
			MaxFeePerGasCap: maxFeeCap,
			SkipSimulation:  cfg.SkipSimulation,
		})
	}
}

func gweiToWei(gwei uint64) *big.Int {
	if gwei == 0 {
		return nil
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gwei), big.NewInt(1_000_000_000))
}

func loadConfig() (*config.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("loading configuration from: %s", *configPath)
	return config.Load(*configPath)
}
