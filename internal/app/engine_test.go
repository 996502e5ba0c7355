package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"polyleader/clients/notifier"
	"polyleader/clients/polymarketapi"
	"polyleader/config"
)

// mockPublisher records published candidates.
type mockPublisher struct {
	mu        sync.Mutex
	published []CopyCandidate
	enabled   bool
	err       error
}

func (m *mockPublisher) Enabled() bool { return m.enabled }

func (m *mockPublisher) Publish(v any) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, v.(CopyCandidate))
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

// mockNotifier records alerts by kind.
type mockNotifier struct {
	mu     sync.Mutex
	alerts []notifier.LeaderAlert
}

func (m *mockNotifier) SendLeaderAlert(alert notifier.LeaderAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
}

func (m *mockNotifier) Close() error { return nil }

func (m *mockNotifier) countKind(kind notifier.AlertKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func engineConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Engine.CandidateWindow = 15 * time.Minute
	cfg.Engine.CopyFactor = 0.25
	return cfg
}

// whalePage builds enough recent trades for one wallet to clear the whale
// bar: 25 trades of notional 2500 across 4 markets, all within the last
// half minute so every one sits inside the candidate window.
func whalePage(wallet string, now time.Time) []polymarketapi.Trade {
	var trades []polymarketapi.Trade
	for i := 0; i < 25; i++ {
		ts := now.Add(-time.Duration(i) * time.Second).UnixMilli()
		trades = append(trades, polymarketapi.Trade{
			ProxyWallet:     wallet,
			Side:            "BUY",
			Size:            5000,
			Price:           0.5,
			Timestamp:       json.RawMessage(fmt.Sprintf("%d", ts)),
			ConditionID:     fmt.Sprintf("cond-%d", i%4),
			TransactionHash: fmt.Sprintf("0xtx-%d", i),
		})
	}
	return trades
}

func newTestEngine(t *testing.T, cfg *config.Config, pager tradesPager, pub *mockPublisher, notify notifier.Notifier) *Engine {
	t.Helper()

	store, err := NewStateStore(nil, t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	classifier := NewClassifier(nil, ClassifierOpts{
		Whale: TierThresholds{
			MinVolume:  cfg.Tiers.WhaleMinVolume,
			MinTrades:  cfg.Tiers.WhaleMinTrades,
			MinMarkets: cfg.Tiers.WhaleMinMarkets,
		},
		Qualified: TierThresholds{
			MinVolume:  cfg.Tiers.QualifiedMinVolume,
			MinTrades:  cfg.Tiers.QualifiedMinTrades,
			MinMarkets: cfg.Tiers.QualifiedMinMarkets,
		},
		Categories: cfg.Tiers.Categories,
		TopK:       cfg.Engine.TopK,
	})

	var publisher candidatePublisher
	if pub != nil {
		publisher = pub
	}
	return NewEngine(
		nil,
		cfg,
		NewWindow(nil, cfg.Engine.WindowDuration),
		NewDeduplicator(cfg.Dedup.Capacity),
		NewWatermarkTracker(),
		classifier,
		nil,
		NewPollSource(nil, pager, cfg.Fetch.PageSize, cfg.Fetch.MaxPages, nil),
		store,
		nil,
		notify,
		publisher,
	)
}

func TestEngine_CycleSelectsWhaleAndEmitsCandidates(t *testing.T) {
	now := time.Now()
	cfg := engineConfig()
	pager := &mockTradesPager{pages: map[int][]polymarketapi.Trade{
		0: whalePage("0xWhale", now),
	}}
	pub := &mockPublisher{enabled: true}
	notify := &mockNotifier{}

	e := newTestEngine(t, cfg, pager, pub, notify)

	report, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if report.Tier != TierWhale {
		t.Fatalf("expected whale tier, got %q", report.Tier)
	}
	if len(report.Leaders) != 1 || report.Leaders[0].Wallet != "0xwhale" {
		t.Fatalf("expected the whale (lower-cased), got %v", report.Leaders)
	}

	// All 25 trades are inside the candidate window and strictly above the
	// empty watermark.
	if pub.count() != 25 {
		t.Errorf("expected 25 candidates published, got %d", pub.count())
	}
	pub.mu.Lock()
	first := pub.published[0]
	pub.mu.Unlock()
	if first.CopySize != first.Trade.Size*cfg.Engine.CopyFactor {
		t.Errorf("expected copy size scaled by factor, got %f", first.CopySize)
	}
	if first.Tier != TierWhale {
		t.Errorf("expected candidate tagged whale, got %s", first.Tier)
	}

	if notify.countKind(notifier.AlertKindReport) != 1 {
		t.Errorf("expected 1 report alert, got %d", notify.countKind(notifier.AlertKindReport))
	}
	if notify.countKind(notifier.AlertKindCopyCandidate) != 25 {
		t.Errorf("expected 25 candidate alerts, got %d", notify.countKind(notifier.AlertKindCopyCandidate))
	}
}

func TestEngine_SecondCycleEmitsNothingNew(t *testing.T) {
	now := time.Now()
	cfg := engineConfig()
	pager := &mockTradesPager{pages: map[int][]polymarketapi.Trade{
		0: whalePage("0xwhale", now),
	}}
	pub := &mockPublisher{enabled: true}

	e := newTestEngine(t, cfg, pager, pub, nil)

	if _, err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	firstCount := pub.count()

	// The feed overlap re-serves the same trades; dedup keeps them out of
	// the window and the watermark keeps them away from downstream.
	report, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if report.Tier != TierWhale {
		t.Errorf("expected whale tier to persist, got %q", report.Tier)
	}
	if pub.count() != firstCount {
		t.Errorf("expected no new candidates, got %d more", pub.count()-firstCount)
	}
	if e.window.Size() != 25 {
		t.Errorf("expected window unchanged at 25, got %d", e.window.Size())
	}
}

func TestEngine_CycleSurvivesFailedPage(t *testing.T) {
	now := time.Now()
	cfg := engineConfig()
	cfg.Fetch.PageSize = 25

	// The first page fills completely, the second fails after retries. The
	// cycle still classifies and reports on what it got.
	pager := &mockTradesPager{
		pages: map[int][]polymarketapi.Trade{
			0: whalePage("0xwhale", now),
		},
		errAt: map[int]error{25: fmt.Errorf("504 after retries")},
	}
	pub := &mockPublisher{enabled: true}

	e := newTestEngine(t, cfg, pager, pub, nil)

	report, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("expected cycle to survive the failed page, got %v", err)
	}
	if report == nil || report.Tier != TierWhale {
		t.Fatalf("expected a whale report from the surviving pages, got %+v", report)
	}
	if pub.count() != 25 {
		t.Errorf("expected candidates from the surviving pages, got %d", pub.count())
	}
	if e.LastReport() == nil {
		t.Error("expected the report persisted despite the failed page")
	}
}

func TestEngine_StaleLeaderTradesAdvanceWatermarkSilently(t *testing.T) {
	now := time.Now()
	cfg := engineConfig()

	// All trades are hours old: well inside the 24h window, far outside the
	// 15m candidate window.
	var trades []polymarketapi.Trade
	for i := 0; i < 25; i++ {
		ts := now.Add(-2*time.Hour - time.Duration(i)*time.Minute).UnixMilli()
		trades = append(trades, polymarketapi.Trade{
			ProxyWallet:     "0xwhale",
			Side:            "BUY",
			Size:            5000,
			Price:           0.5,
			Timestamp:       json.RawMessage(fmt.Sprintf("%d", ts)),
			ConditionID:     fmt.Sprintf("cond-%d", i%4),
			TransactionHash: fmt.Sprintf("0xtx-%d", i),
		})
	}
	pager := &mockTradesPager{pages: map[int][]polymarketapi.Trade{0: trades}}
	pub := &mockPublisher{enabled: true}

	e := newTestEngine(t, cfg, pager, pub, nil)

	report, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if report.Tier != TierWhale {
		t.Fatalf("expected whale tier, got %q", report.Tier)
	}
	if pub.count() != 0 {
		t.Errorf("expected stale trades suppressed, got %d candidates", pub.count())
	}
	// The watermark still advanced, so these trades can never be emitted
	// later either.
	if e.marks.Mark("0xwhale") == 0 {
		t.Error("expected watermark advanced over stale trades")
	}
}

func TestEngine_QualifiedFallback(t *testing.T) {
	now := time.Now()
	cfg := engineConfig()

	// 10 trades, 3 markets, notional 2500 total: clears qualified, not whale.
	var trades []polymarketapi.Trade
	for i := 0; i < 10; i++ {
		ts := now.Add(-time.Duration(i) * time.Minute).UnixMilli()
		trades = append(trades, polymarketapi.Trade{
			ProxyWallet:     "0xsteady",
			Side:            "BUY",
			Size:            500,
			Price:           0.5,
			Timestamp:       json.RawMessage(fmt.Sprintf("%d", ts)),
			ConditionID:     fmt.Sprintf("cond-%d", i%3),
			TransactionHash: fmt.Sprintf("0xtx-%d", i),
		})
	}
	pager := &mockTradesPager{pages: map[int][]polymarketapi.Trade{0: trades}}
	pub := &mockPublisher{enabled: true}

	e := newTestEngine(t, cfg, pager, pub, nil)

	report, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if report.Tier != TierQualified {
		t.Fatalf("expected qualified tier, got %q", report.Tier)
	}
	if len(report.Leaders) != 1 || report.Leaders[0].Tier != TierQualified {
		t.Fatalf("expected one qualified leader, got %v", report.Leaders)
	}
	if pub.count() != 10 {
		t.Errorf("expected 10 candidates, got %d", pub.count())
	}
}

func TestEngine_RestoreRoundTrip(t *testing.T) {
	now := time.Now()
	cfg := engineConfig()
	pager := &mockTradesPager{pages: map[int][]polymarketapi.Trade{
		0: whalePage("0xwhale", now),
	}}

	dir := t.TempDir()
	store, err := NewStateStore(nil, dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	classifier := NewClassifier(nil, ClassifierOpts{
		Whale:     TierThresholds{MinVolume: 50000, MinTrades: 20, MinMarkets: 3},
		Qualified: TierThresholds{MinVolume: 1000, MinTrades: 5, MinMarkets: 2},
		TopK:      25,
	})
	build := func() *Engine {
		return NewEngine(nil, cfg,
			NewWindow(nil, cfg.Engine.WindowDuration),
			NewDeduplicator(cfg.Dedup.Capacity),
			NewWatermarkTracker(),
			classifier, nil,
			NewPollSource(nil, pager, cfg.Fetch.PageSize, cfg.Fetch.MaxPages, nil),
			store, nil, nil, nil)
	}

	e := build()
	if _, err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	mark := e.marks.Mark("0xwhale")
	if mark == 0 {
		t.Fatal("expected watermark set after cycle")
	}

	// A fresh process restores window, dedup, watermarks, and last report.
	restored := build()
	restored.Restore(time.Now())

	if restored.window.Size() != 25 {
		t.Errorf("expected 25 trades restored, got %d", restored.window.Size())
	}
	if restored.marks.Mark("0xwhale") != mark {
		t.Errorf("expected watermark %d restored, got %d", mark, restored.marks.Mark("0xwhale"))
	}
	if restored.LastReport() == nil || restored.LastReport().Tier != TierWhale {
		t.Error("expected last report restored")
	}

	// Restored trades are back in the deduplicator.
	dup := restored.window.Trades()[0]
	if restored.Ingest(dup) {
		t.Error("expected restored trade to be rejected as duplicate")
	}
}

func TestEngine_IngestDeduplicates(t *testing.T) {
	cfg := engineConfig()
	e := newTestEngine(t, cfg, &mockTradesPager{}, nil, nil)

	tr := TradeEvent{
		Wallet:      "0xaaa",
		ConditionID: "c1",
		Side:        SideBuy,
		Size:        10,
		Price:       0.5,
		TimestampMs: time.Now().UnixMilli(),
		TxHash:      "0xtx",
	}
	if !e.Ingest(tr) {
		t.Fatal("expected first ingest to succeed")
	}
	if e.Ingest(tr) {
		t.Error("expected duplicate ingest to be rejected")
	}
	if e.window.Size() != 1 {
		t.Errorf("expected 1 trade in window, got %d", e.window.Size())
	}
}

func TestEngine_EmptyFeedProducesEmptyReport(t *testing.T) {
	cfg := engineConfig()
	pub := &mockPublisher{enabled: true}
	e := newTestEngine(t, cfg, &mockTradesPager{}, pub, nil)

	report, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if report.Tier != TierNone || len(report.Leaders) != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
	if pub.count() != 0 {
		t.Errorf("expected no candidates, got %d", pub.count())
	}
}
