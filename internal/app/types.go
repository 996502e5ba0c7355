package app

import (
	"fmt"
	"time"
)

// Side is the direction of a trade as reported by the exchange.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "UNKNOWN"
)

// TradeEvent is one executed trade, normalized from whatever shape the
// exchange reported it in. Timestamps are milliseconds since epoch, wallets
// are lower-cased, and price is the reported outcome probability in [0,1].
type TradeEvent struct {
	Wallet      string  `json:"wallet"`
	ConditionID string  `json:"condition_id"`
	Side        Side    `json:"side"`
	Size        float64 `json:"size"`
	Price       float64 `json:"price"`
	TimestampMs int64   `json:"timestamp_ms"`
	Category    string  `json:"category,omitempty"`
	Outcome     string  `json:"outcome,omitempty"`
	Title       string  `json:"title,omitempty"`
	TxHash      string  `json:"tx_hash,omitempty"`
}

// Notional is the approximate USDC value of the trade: shares times the
// outcome probability. The price is already in [0,1], so no further
// normalization is applied.
func (t *TradeEvent) Notional() float64 {
	return t.Size * t.Price
}

// Time returns the event time as a UTC time.Time.
func (t *TradeEvent) Time() time.Time {
	return time.UnixMilli(t.TimestampMs).UTC()
}

// Key returns the stable dedup identity for this trade. The transaction hash
// alone is not enough: one transaction can settle several fills.
func (t *TradeEvent) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%g|%g|%d",
		t.TxHash, t.Wallet, t.ConditionID, t.Side, t.Size, t.Price, t.TimestampMs)
}

// WalletStats is the per-wallet fold of the current window. It is rebuilt
// from scratch on every aggregation pass and never persisted on its own.
type WalletStats struct {
	Wallet       string
	Volume       float64
	TradeCount   int
	Markets      map[string]struct{}
	Categories   map[string]struct{}
	RecentSample []TradeEvent // newest first, capped at sampleCap
}

// MarketCount returns the number of distinct markets the wallet traded.
func (s *WalletStats) MarketCount() int {
	return len(s.Markets)
}

// Tier identifies which stage of the classification cascade selected a
// wallet.
type Tier string

const (
	TierWhale     Tier = "whale"
	TierQualified Tier = "qualified"
	TierNone      Tier = "" // empty report
)

// LeaderEntry is one selected wallet in a LeaderReport.
type LeaderEntry struct {
	Wallet       string       `json:"wallet"`
	Tier         Tier         `json:"tier"`
	Volume       float64      `json:"volume"`
	TradeCount   int          `json:"trade_count"`
	MarketCount  int          `json:"market_count"`
	Categories   []string     `json:"categories,omitempty"`
	RecentSample []TradeEvent `json:"recent_sample,omitempty"`
}

// LeaderReport is the output of one classification cycle. It is rebuilt in
// full every cycle and always written, even when no leaders were found, so a
// consumer can tell "ran and found nothing" from "did not run".
type LeaderReport struct {
	ID            string        `json:"id"`
	GeneratedAt   time.Time     `json:"generated_at"`
	WindowStart   time.Time     `json:"window_start"`
	WindowEnd     time.Time     `json:"window_end"`
	TradesScanned int           `json:"trades_scanned"`
	UniqueWallets int           `json:"unique_wallets"`
	Tier          Tier          `json:"tier"`
	Leaders       []LeaderEntry `json:"leaders"`
}

// CopyCandidate is a strictly-new leader trade handed to the downstream
// paper-copier, scaled by the configured copy factor.
type CopyCandidate struct {
	Leader   string     `json:"leader"`
	Tier     Tier       `json:"tier"`
	Trade    TradeEvent `json:"trade"`
	CopySize float64    `json:"copy_size"`
}
