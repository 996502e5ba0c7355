package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"polyleader/clients/notifier"
	"polyleader/config"
	"polyleader/internal/metrics"
)

// candidatePublisher is the downstream sink for copy candidates.
type candidatePublisher interface {
	Enabled() bool
	Publish(v any) error
}

// Engine owns the discovery pipeline: trades come in from the poll and
// stream sources, pass the deduplicator into the rolling window, and each
// cycle aggregates the window, classifies leaders, and walks watermarks to
// emit strictly-new copy candidates.
type Engine struct {
	logger *zap.Logger
	cfg    *config.Config

	window     *Window
	dedup      *Deduplicator
	marks      *WatermarkTracker
	classifier *Classifier
	index      *MarketIndex
	poll       *PollSource
	store      *StateStore
	metrics    *metrics.Metrics
	notify     notifier.Notifier
	publisher  candidatePublisher

	mu         sync.Mutex
	cycleBusy  bool
	lastReport *LeaderReport
	lastCycle  time.Time
}

// NewEngine wires the pipeline. notify and publisher may be nil.
func NewEngine(
	logger *zap.Logger,
	cfg *config.Config,
	window *Window,
	dedup *Deduplicator,
	marks *WatermarkTracker,
	classifier *Classifier,
	index *MarketIndex,
	poll *PollSource,
	store *StateStore,
	m *metrics.Metrics,
	notify notifier.Notifier,
	publisher candidatePublisher,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:     logger,
		cfg:        cfg,
		window:     window,
		dedup:      dedup,
		marks:      marks,
		classifier: classifier,
		index:      index,
		poll:       poll,
		store:      store,
		metrics:    m,
		notify:     notify,
		publisher:  publisher,
	}
}

// Ingest routes one normalized trade through enrichment and dedup into the
// window. Returns true when the trade was new. Safe for concurrent use;
// this is the streaming path's handler.
func (e *Engine) Ingest(t TradeEvent) bool {
	if e.index != nil {
		e.index.Enrich(&t)
	}
	if !e.dedup.Admit(t.Key()) {
		if e.metrics != nil {
			e.metrics.TradesDuplicate.Inc()
		}
		return false
	}
	e.window.Insert(t)
	if e.metrics != nil {
		e.metrics.TradesIngested.Inc()
	}
	return true
}

// RunCycle executes one full discovery cycle: gap-fill fetch, compact,
// aggregate, classify, persist, emit. Cycles are single-flight; if one is
// still running when the next fires, the new one is skipped.
func (e *Engine) RunCycle(ctx context.Context) (*LeaderReport, error) {
	e.mu.Lock()
	if e.cycleBusy {
		e.mu.Unlock()
		e.logger.Warn("previous cycle still running, skipping")
		return nil, nil
	}
	e.cycleBusy = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.cycleBusy = false
		e.mu.Unlock()
	}()

	started := time.Now()
	report, err := e.runCycleLocked(ctx, started)

	if e.metrics != nil {
		e.metrics.CycleDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			e.metrics.CycleErrors.Inc()
		}
	}
	return report, err
}

func (e *Engine) runCycleLocked(ctx context.Context, now time.Time) (*LeaderReport, error) {
	cutoff := now.Add(-e.window.Duration())

	fetched, err := e.poll.FetchSince(ctx, cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("fetch window trades: %w", err)
	}

	fresh := 0
	for _, t := range fetched {
		if e.Ingest(t) {
			fresh++
		}
	}

	evicted := e.window.Compact(now)
	trades := e.window.Trades()

	stats := Aggregate(trades, e.cfg.Engine.SampleCap)
	report := e.classifier.Classify(stats, cutoff, now, len(trades))

	e.mu.Lock()
	e.lastReport = report
	e.lastCycle = now.UTC()
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.WindowSize.Set(float64(len(trades)))
		e.metrics.WindowEvicted.Add(float64(evicted))
		e.metrics.UniqueWallets.Set(float64(len(stats)))
		e.metrics.LeadersFound.WithLabelValues(string(TierWhale)).Set(0)
		e.metrics.LeadersFound.WithLabelValues(string(TierQualified)).Set(0)
		if report.Tier != TierNone {
			e.metrics.LeadersFound.WithLabelValues(string(report.Tier)).Set(float64(len(report.Leaders)))
		}
	}

	e.logger.Info("cycle complete",
		zap.Int("fetched", len(fetched)),
		zap.Int("fresh", fresh),
		zap.Int("evicted", evicted),
		zap.Int("window", len(trades)),
		zap.Int("wallets", len(stats)),
		zap.String("tier", string(report.Tier)),
		zap.Int("leaders", len(report.Leaders)),
		zap.Duration("took", time.Since(now)),
	)

	candidates := e.emitCandidates(report, stats, now)
	e.announceReport(report)

	e.persistCycle(report, candidates, now)
	return report, nil
}

// emitCandidates walks each leader's in-window trades through the
// watermark tracker. Everything strictly newer than the watermark advances
// it; only trades inside the recent-candidate window are actually emitted,
// so a restart or a newly promoted leader doesn't replay a day of history.
func (e *Engine) emitCandidates(report *LeaderReport, stats map[string]*WalletStats, now time.Time) []CopyCandidate {
	if len(report.Leaders) == 0 {
		return nil
	}

	tradesByWallet := make(map[string][]TradeEvent, len(report.Leaders))
	for _, t := range e.window.Trades() {
		tradesByWallet[t.Wallet] = append(tradesByWallet[t.Wallet], t)
	}

	recentCutoff := now.Add(-e.cfg.Engine.CandidateWindow).UnixMilli()
	var candidates []CopyCandidate

	for _, leader := range report.Leaders {
		fresh := e.marks.Diff(leader.Wallet, tradesByWallet[leader.Wallet])
		for _, t := range fresh {
			if t.TimestampMs < recentCutoff {
				continue
			}
			candidates = append(candidates, CopyCandidate{
				Leader:   leader.Wallet,
				Tier:     leader.Tier,
				Trade:    t,
				CopySize: t.Size * e.cfg.Engine.CopyFactor,
			})
		}
	}

	for _, c := range candidates {
		e.logger.Info("copy candidate",
			zap.String("leader", c.Leader),
			zap.String("tier", string(c.Tier)),
			zap.String("market", c.Trade.ConditionID),
			zap.String("side", string(c.Trade.Side)),
			zap.Float64("size", c.Trade.Size),
			zap.Float64("copy_size", c.CopySize),
		)
		if e.publisher != nil && e.publisher.Enabled() {
			if err := e.publisher.Publish(c); err != nil {
				e.logger.Warn("failed to publish copy candidate", zap.Error(err))
			}
		}
		if e.metrics != nil {
			e.metrics.CandidatesSent.Inc()
		}
		e.announceCandidate(c)
	}

	return candidates
}

func (e *Engine) announceReport(report *LeaderReport) {
	if e.notify == nil || len(report.Leaders) == 0 {
		return
	}

	top := report.Leaders[0]
	e.notify.SendLeaderAlert(notifier.LeaderAlert{
		Kind:          notifier.AlertKindReport,
		LeaderAddress: top.Wallet,
		LeaderURL:     walletURL(top.Wallet),
		Tier:          string(top.Tier),
		Volume:        top.Volume,
		TradeCount:    top.TradeCount,
		MarketCount:   top.MarketCount,
		ReportID:      report.ID,
		LeaderTotal:   len(report.Leaders),
		TradesScanned: report.TradesScanned,
		UniqueWallets: report.UniqueWallets,
		Timestamp:     report.GeneratedAt,
	})
}

func (e *Engine) announceCandidate(c CopyCandidate) {
	if e.notify == nil {
		return
	}

	alert := notifier.LeaderAlert{
		Kind:          notifier.AlertKindCopyCandidate,
		LeaderAddress: c.Leader,
		LeaderURL:     walletURL(c.Leader),
		Tier:          string(c.Tier),
		Side:          string(c.Trade.Side),
		Shares:        c.Trade.Size,
		Price:         c.Trade.Price,
		Notional:      c.Trade.Notional(),
		CopyShares:    c.CopySize,
		MarketTitle:   c.Trade.Title,
		Outcome:       c.Trade.Outcome,
		Category:      c.Trade.Category,
		Timestamp:     c.Trade.Time(),
	}
	if e.index != nil {
		if mk, ok := e.index.Lookup(c.Trade.ConditionID); ok {
			if alert.MarketTitle == "" {
				alert.MarketTitle = mk.Question
			}
			alert.MarketURL = marketURL(mk.MarketSlug)
		}
	}
	e.notify.SendLeaderAlert(alert)
}

// persistCycle writes the cycle's outputs. Failures are logged, not fatal:
// every state file can be rebuilt from the feed.
func (e *Engine) persistCycle(report *LeaderReport, candidates []CopyCandidate, now time.Time) {
	st := e.cfg.State
	if err := e.store.Save(st.ReportFileName, report); err != nil {
		e.logger.Warn("failed to save report", zap.Error(err))
	}
	if err := e.store.Save(st.WindowFileName, e.window.Snapshot(now)); err != nil {
		e.logger.Warn("failed to save window snapshot", zap.Error(err))
	}
	if err := e.store.Save(st.WatermarkFileName, e.marks.Export()); err != nil {
		e.logger.Warn("failed to save watermarks", zap.Error(err))
	}
	if candidates == nil {
		candidates = []CopyCandidate{}
	}
	if err := e.store.Save(st.CandidatesFileName, candidates); err != nil {
		e.logger.Warn("failed to save candidates", zap.Error(err))
	}
}

// SaveState snapshots window and watermarks outside a cycle, for the
// streaming-mode periodic save and the shutdown save.
func (e *Engine) SaveState(now time.Time) {
	st := e.cfg.State
	if err := e.store.Save(st.WindowFileName, e.window.Snapshot(now)); err != nil {
		e.logger.Warn("failed to save window snapshot", zap.Error(err))
	}
	if err := e.store.Save(st.WatermarkFileName, e.marks.Export()); err != nil {
		e.logger.Warn("failed to save watermarks", zap.Error(err))
	}
}

// Restore loads persisted state. Missing or corrupt files start empty.
// Restored trades are re-admitted into the deduplicator so the first fetch
// after a restart does not double-count the window.
func (e *Engine) Restore(now time.Time) {
	st := e.cfg.State

	var snap WindowSnapshot
	if ok, err := e.store.Load(st.WindowFileName, &snap); err != nil {
		e.logger.Warn("failed to read window snapshot", zap.Error(err))
	} else if ok {
		e.window.Restore(&snap, now)
		for _, t := range e.window.Trades() {
			e.dedup.Admit(t.Key())
		}
	}

	marks := make(map[string]int64)
	if ok, err := e.store.Load(st.WatermarkFileName, &marks); err != nil {
		e.logger.Warn("failed to read watermarks", zap.Error(err))
	} else if ok {
		e.marks.Import(marks)
		e.logger.Info("restored watermarks", zap.Int("wallets", len(marks)))
	}

	var report LeaderReport
	if ok, err := e.store.Load(st.ReportFileName, &report); err != nil {
		e.logger.Warn("failed to read last report", zap.Error(err))
	} else if ok {
		e.mu.Lock()
		e.lastReport = &report
		e.mu.Unlock()
	}
}

// EngineStats is a point-in-time summary for the stats endpoint.
type EngineStats struct {
	WindowTrades   int       `json:"window_trades"`
	DedupEntries   int       `json:"dedup_entries"`
	WalletsTracked int       `json:"wallets_tracked"`
	LastCycleAt    time.Time `json:"last_cycle_at,omitempty"`

	LastReportID      string    `json:"last_report_id,omitempty"`
	LastReportTier    string    `json:"last_report_tier,omitempty"`
	LastReportLeaders int       `json:"last_report_leaders"`
	LastReportAt      time.Time `json:"last_report_at,omitempty"`

	MarketIndexSize int `json:"market_index_size"`
}

// Stats returns the engine's current counters.
func (e *Engine) Stats() EngineStats {
	s := EngineStats{
		WindowTrades:   e.window.Size(),
		DedupEntries:   e.dedup.Len(),
		WalletsTracked: e.marks.Len(),
	}
	if e.index != nil {
		s.MarketIndexSize = e.index.Size()
	}

	e.mu.Lock()
	s.LastCycleAt = e.lastCycle
	if e.lastReport != nil {
		s.LastReportID = e.lastReport.ID
		s.LastReportTier = string(e.lastReport.Tier)
		s.LastReportLeaders = len(e.lastReport.Leaders)
		s.LastReportAt = e.lastReport.GeneratedAt
	}
	e.mu.Unlock()
	return s
}

// LastReport returns the most recent report, nil before the first cycle.
func (e *Engine) LastReport() *LeaderReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}

func walletURL(wallet string) string {
	return "https://polymarket.com/profile/" + wallet
}

func marketURL(slug string) string {
	if slug == "" {
		return ""
	}
	return "https://polymarket.com/market/" + slug
}
