package notifier

import (
	"time"
)

// AlertKind indicates what an alert announces.
type AlertKind string

const (
	// AlertKindReport announces a fresh leader report.
	AlertKindReport AlertKind = "leader_report"
	// AlertKindCopyCandidate announces a strictly-new leader trade to copy.
	AlertKindCopyCandidate AlertKind = "copy_candidate"
)

// LeaderAlert contains all the data needed for a leader notification.
// Report fields are set for AlertKindReport; trade fields for
// AlertKindCopyCandidate.
type LeaderAlert struct {
	Kind AlertKind

	// Leader info
	LeaderAddress string
	LeaderURL     string
	Tier          string // "whale" or "qualified"

	// Window stats for the leader
	Volume      float64
	TradeCount  int
	MarketCount int

	// Report summary (AlertKindReport)
	ReportID      string
	LeaderTotal   int
	TradesScanned int
	UniqueWallets int

	// Trade info (AlertKindCopyCandidate)
	Side        string // BUY or SELL
	Shares      float64
	Price       float64
	Notional    float64
	CopyShares  float64 // Shares to paper-copy after scaling
	MarketTitle string
	MarketURL   string
	Outcome     string
	Category    string

	// Alert metadata
	Timestamp time.Time
}

// Notifier is the interface for sending leader alerts to various channels.
type Notifier interface {
	// SendLeaderAlert sends a leader alert notification.
	SendLeaderAlert(alert LeaderAlert)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts alerts to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	// Filter out nil notifiers
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// SendLeaderAlert sends the alert to all registered notifiers.
func (m *MultiNotifier) SendLeaderAlert(alert LeaderAlert) {
	for _, n := range m.notifiers {
		n.SendLeaderAlert(alert)
	}
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}
