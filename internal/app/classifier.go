package app

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TierThresholds are the bars a wallet must clear for one tier. A zero
// MinVolume/MinTrades/MinMarkets disables that particular bar.
type TierThresholds struct {
	MinVolume  float64
	MinTrades  int
	MinMarkets int
}

// Classifier turns aggregated wallet stats into a ranked LeaderReport. It
// runs a two-stage cascade: the whale stage considers volume across all
// categories, and only when it selects nobody does the qualified stage
// run, with lower bars plus a category gate. A wallet selected as a whale
// is never reconsidered by the qualified stage.
type Classifier struct {
	logger *zap.Logger

	whale     TierThresholds
	qualified TierThresholds

	// allowedCategories gates the qualified tier. A wallet whose window
	// has no category data at all skips the gate; thin metadata should
	// not hide an otherwise qualified trader.
	allowedCategories map[string]struct{}

	topK    int
	exclude map[string]struct{} // wallets never reported, e.g. our own
}

// ClassifierOpts configures a Classifier.
type ClassifierOpts struct {
	Whale      TierThresholds
	Qualified  TierThresholds
	Categories []string
	TopK       int
	Exclude    []string
}

// NewClassifier creates a Classifier.
func NewClassifier(logger *zap.Logger, opts ClassifierOpts) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}

	allowed := make(map[string]struct{}, len(opts.Categories))
	for _, c := range opts.Categories {
		allowed[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}

	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, w := range opts.Exclude {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			exclude[w] = struct{}{}
		}
	}

	topK := opts.TopK
	if topK < 1 {
		topK = 25
	}

	return &Classifier{
		logger:            logger,
		whale:             opts.Whale,
		qualified:         opts.Qualified,
		allowedCategories: allowed,
		topK:              topK,
		exclude:           exclude,
	}
}

// Classify builds the report for the current window. The report is always
// non-nil: an empty leader list with TierNone means the cycle ran and found
// nobody, which is distinct from not having run at all.
func (c *Classifier) Classify(stats map[string]*WalletStats, windowStart, windowEnd time.Time, tradesScanned int) *LeaderReport {
	report := &LeaderReport{
		ID:            uuid.NewString(),
		GeneratedAt:   time.Now().UTC(),
		WindowStart:   windowStart.UTC(),
		WindowEnd:     windowEnd.UTC(),
		TradesScanned: tradesScanned,
		UniqueWallets: len(stats),
		Tier:          TierNone,
		Leaders:       []LeaderEntry{},
	}

	whales := c.selectTier(stats, c.whale, TierWhale, nil)
	if len(whales) > 0 {
		report.Tier = TierWhale
		report.Leaders = c.rank(whales)
		c.logger.Debug("whale stage selected leaders", zap.Int("count", len(report.Leaders)))
		return report
	}

	qualified := c.selectTier(stats, c.qualified, TierQualified, c.categoryGate)
	if len(qualified) > 0 {
		report.Tier = TierQualified
		report.Leaders = c.rank(qualified)
		c.logger.Debug("qualified stage selected leaders", zap.Int("count", len(report.Leaders)))
	}
	return report
}

func (c *Classifier) selectTier(stats map[string]*WalletStats, th TierThresholds, tier Tier, gate func(*WalletStats) bool) []LeaderEntry {
	var selected []LeaderEntry
	for _, s := range stats {
		if _, skip := c.exclude[s.Wallet]; skip {
			continue
		}
		if s.Volume < th.MinVolume || s.TradeCount < th.MinTrades || s.MarketCount() < th.MinMarkets {
			continue
		}
		if gate != nil && !gate(s) {
			continue
		}
		selected = append(selected, LeaderEntry{
			Wallet:       s.Wallet,
			Tier:         tier,
			Volume:       s.Volume,
			TradeCount:   s.TradeCount,
			MarketCount:  s.MarketCount(),
			Categories:   sortedSet(s.Categories),
			RecentSample: s.RecentSample,
		})
	}
	return selected
}

// categoryGate admits a wallet when at least one of its traded categories
// is on the allow-list, or when it has no category data at all.
func (c *Classifier) categoryGate(s *WalletStats) bool {
	if len(s.Categories) == 0 || len(c.allowedCategories) == 0 {
		return true
	}
	for cat := range s.Categories {
		if _, ok := c.allowedCategories[strings.ToLower(cat)]; ok {
			return true
		}
	}
	return false
}

// rank orders leaders by volume descending, wallet ascending on ties, and
// truncates to topK. The tie-break keeps the ranking deterministic.
func (c *Classifier) rank(leaders []LeaderEntry) []LeaderEntry {
	sort.Slice(leaders, func(i, j int) bool {
		if leaders[i].Volume != leaders[j].Volume {
			return leaders[i].Volume > leaders[j].Volume
		}
		return leaders[i].Wallet < leaders[j].Wallet
	})
	if len(leaders) > c.topK {
		leaders = leaders[:c.topK:c.topK]
	}
	return leaders
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
