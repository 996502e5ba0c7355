package app

import (
	"context"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	clts "polyleader/clients"
	"polyleader/config"
	"polyleader/internal/metrics"
)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// Runner orchestrates the engine's loops: the market metadata refresher,
// the streaming feed, the periodic fetch+classify cycle, the streaming-mode
// state snapshots, and the health server.
type Runner struct {
	clients *clts.Clients
	cfg     *config.Config
	engine  *Engine
	index   *MarketIndex
	stream  *StreamSource
	poll    *PollSource
	metrics *metrics.Metrics

	healthServer *http.Server
	startTime    time.Time
}

func NewRunner(
	clients *clts.Clients,
	cfg *config.Config,
	engine *Engine,
	index *MarketIndex,
	stream *StreamSource,
	poll *PollSource,
	m *metrics.Metrics,
) *Runner {
	return &Runner{
		clients: clients,
		cfg:     cfg,
		engine:  engine,
		index:   index,
		stream:  stream,
		poll:    poll,
		metrics: m,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()
	logger := r.clients.Logger

	logger.Info("starting leader discovery engine",
		zap.Duration("windowDuration", r.cfg.Engine.WindowDuration),
		zap.Duration("refreshInterval", r.cfg.Engine.RefreshInterval),
		zap.Bool("useWebSocket", r.cfg.Engine.UseWebSocket),
		zap.Bool("candidatePublishing", r.clients.Candidates.Enabled()),
	)

	r.engine.Restore(time.Now())

	go r.index.Run(ctx, r.cfg.Fetch.MarketRefreshInterval)

	if r.cfg.HealthServer.Enabled {
		r.startHealthServer(r.cfg.HealthServer.Port)
		logger.Info("health server started", zap.Int("port", r.cfg.HealthServer.Port))
	}

	if r.cfg.Engine.UseWebSocket && r.stream != nil {
		go r.stream.Run(ctx)
		go r.runStateSaver(ctx)
		logger.Info("streaming feed started",
			zap.Duration("stateSaveInterval", r.cfg.State.SaveInterval),
		)
	}

	go r.runCycleLoop(ctx)

	<-ctx.Done()
	logger.Info("runner shutting down")

	r.engine.SaveState(time.Now())

	if r.healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.healthServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	return nil
}

// runCycleLoop runs a cycle immediately, then on every refresh tick. The
// engine itself skips overlapping cycles.
func (r *Runner) runCycleLoop(ctx context.Context) {
	logger := r.clients.Logger

	if _, err := r.engine.RunCycle(ctx); err != nil {
		logger.Error("initial cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.cfg.Engine.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.engine.RunCycle(ctx); err != nil {
				logger.Error("cycle failed", zap.Error(err))
			}
		}
	}
}

// runStateSaver periodically snapshots window and watermarks while the
// streaming feed fills the window between cycles.
func (r *Runner) runStateSaver(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.State.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.engine.SaveState(time.Now())
		}
	}
}

// ServiceStats holds comprehensive service statistics.
type ServiceStats struct {
	// Build info
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	// Service info
	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	// Engine counters
	Engine EngineStats `json:"engine"`

	// Streaming feed stats
	Stream struct {
		Enabled        bool   `json:"enabled"`
		Connected      bool   `json:"connected"`
		TradesReceived int64  `json:"trades_received"`
		TradesDropped  int64  `json:"trades_dropped"`
		MessageCount   uint64 `json:"message_count"`
		LastMessageAt  string `json:"last_message_at,omitempty"`
		LastMessageAgo string `json:"last_message_ago,omitempty"`
	} `json:"stream"`

	// Polling feed stats
	Poll struct {
		TradesDropped int64 `json:"trades_dropped"`
	} `json:"poll"`

	// Market metadata index
	Markets struct {
		Count       int    `json:"count"`
		RefreshedAt string `json:"refreshed_at,omitempty"`
	} `json:"markets"`

	// Notification status
	Notifications struct {
		DiscordEnabled   bool   `json:"discord_enabled"`
		DiscordChannelID string `json:"discord_channel_id,omitempty"`
		TelegramEnabled  bool   `json:"telegram_enabled"`
		TelegramChatID   string `json:"telegram_chat_id,omitempty"`
		NATSEnabled      bool   `json:"nats_enabled"`
	} `json:"notifications"`

	// Runtime stats
	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`
		HeapSys    uint64 `json:"heap_sys"`
		HeapInuse  uint64 `json:"heap_inuse"`
		StackInuse uint64 `json:"stack_inuse"`
		NumGC      uint32 `json:"num_gc"`
		LastGC     string `json:"last_gc,omitempty"`
		GoVersion  string `json:"go_version"`
		NumCPU     int    `json:"num_cpu"`
		GOOS       string `json:"goos"`
		GOARCH     string `json:"goarch"`
	} `json:"runtime"`
}

// GetStats returns comprehensive service statistics.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	// Build info
	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	// Service info
	stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	stats.Engine = r.engine.Stats()

	// Streaming feed
	stats.Stream.Enabled = r.cfg.Engine.UseWebSocket && r.stream != nil
	if stats.Stream.Enabled {
		received, dropped, ws, connected := r.stream.Stats()
		stats.Stream.Connected = connected
		stats.Stream.TradesReceived = received
		stats.Stream.TradesDropped = dropped
		stats.Stream.MessageCount = ws.MessageCount
		if !ws.LastMessageAt.IsZero() {
			stats.Stream.LastMessageAt = ws.LastMessageAt.UTC().Format(time.RFC3339)
			stats.Stream.LastMessageAgo = time.Since(ws.LastMessageAt).Round(time.Second).String()
		}
	}

	stats.Poll.TradesDropped = r.poll.Dropped()

	stats.Markets.Count = r.index.Size()
	if at := r.index.RefreshedAt(); !at.IsZero() {
		stats.Markets.RefreshedAt = at.UTC().Format(time.RFC3339)
	}

	// Notification status
	stats.Notifications.DiscordEnabled = r.clients.Discord != nil
	if r.clients.Discord != nil {
		if r.cfg.IsProd {
			stats.Notifications.DiscordChannelID = r.cfg.Discord.ProdChannelID
		} else {
			stats.Notifications.DiscordChannelID = r.cfg.Discord.BetaChannelID
		}
	}
	stats.Notifications.TelegramEnabled = r.clients.Telegram != nil
	if r.clients.Telegram != nil {
		if r.cfg.IsProd {
			stats.Notifications.TelegramChatID = r.cfg.Telegram.ProdChatID
		} else {
			stats.Notifications.TelegramChatID = r.cfg.Telegram.BetaChatID
		}
	}
	stats.Notifications.NATSEnabled = r.clients.Candidates.Enabled()

	// Runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = memStats.HeapAlloc
	stats.Runtime.HeapSys = memStats.HeapSys
	stats.Runtime.HeapInuse = memStats.HeapInuse
	stats.Runtime.StackInuse = memStats.StackInuse
	stats.Runtime.NumGC = memStats.NumGC
	if memStats.LastGC > 0 {
		stats.Runtime.LastGC = time.Unix(0, int64(memStats.LastGC)).UTC().Format(time.RFC3339)
	}
	stats.Runtime.GoVersion = runtime.Version()
	stats.Runtime.NumCPU = runtime.NumCPU()
	stats.Runtime.GOOS = runtime.GOOS
	stats.Runtime.GOARCH = runtime.GOARCH

	return stats
}
