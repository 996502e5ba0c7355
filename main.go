package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	clts "polyleader/clients"
	"polyleader/config"
	"polyleader/internal/app"
	"polyleader/internal/metrics"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.Validate().Err(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	logger.Info("starting polyleader", zap.Bool("isProd", cfg.IsProd))

	logger.Info("instantiating clients")
	clients, err := clts.NewClients(logger, cfg)
	if err != nil {
		logger.Fatal("failed to create clients", zap.Error(err))
	}
	defer clients.Close()

	m := metrics.New()
	window := app.NewWindow(logger, cfg.Engine.WindowDuration)
	dedup := app.NewDeduplicator(cfg.Dedup.Capacity)
	marks := app.NewWatermarkTracker()
	index := app.NewMarketIndex(logger, clients.Polymarket, cfg.Fetch.MaxPages)
	poll := app.NewPollSource(logger, clients.Polymarket, cfg.Fetch.PageSize, cfg.Fetch.MaxPages, m)

	store, err := app.NewStateStore(logger, cfg.State.Dir)
	if err != nil {
		logger.Fatal("failed to create state store", zap.Error(err))
	}

	// Our own trading wallet never appears in leader reports.
	var exclude []string
	if clients.Signer.Enabled() {
		exclude = append(exclude, clients.Signer.Address())
	}

	classifier := app.NewClassifier(logger, app.ClassifierOpts{
		Whale: app.TierThresholds{
			MinVolume:  cfg.Tiers.WhaleMinVolume,
			MinTrades:  cfg.Tiers.WhaleMinTrades,
			MinMarkets: cfg.Tiers.WhaleMinMarkets,
		},
		Qualified: app.TierThresholds{
			MinVolume:  cfg.Tiers.QualifiedMinVolume,
			MinTrades:  cfg.Tiers.QualifiedMinTrades,
			MinMarkets: cfg.Tiers.QualifiedMinMarkets,
		},
		Categories: cfg.Tiers.Categories,
		TopK:       cfg.Engine.TopK,
		Exclude:    exclude,
	})

	engine := app.NewEngine(
		logger,
		cfg,
		window,
		dedup,
		marks,
		classifier,
		index,
		poll,
		store,
		m,
		clients.Notifier,
		clients.Candidates,
	)

	var stream *app.StreamSource
	if cfg.Engine.UseWebSocket {
		stream = app.NewStreamSource(logger, cfg.Polymarket.RTDSWSURL, m, func(t app.TradeEvent) {
			engine.Ingest(t)
		})
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runner := app.NewRunner(clients, cfg, engine, index, stream, poll, m)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}
