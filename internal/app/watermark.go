package app

import (
	"sort"
	"sync"
)

// WatermarkTracker remembers, per wallet, the timestamp of the newest trade
// already handed downstream. Diff returns only trades strictly newer than
// the watermark and then advances it, so a trade is delivered at most once
// and a late arrival older than something already delivered is silently
// skipped rather than re-emitted out of order.
type WatermarkTracker struct {
	mu    sync.Mutex
	marks map[string]int64 // wallet -> last delivered timestamp, ms
}

// NewWatermarkTracker creates an empty tracker.
func NewWatermarkTracker() *WatermarkTracker {
	return &WatermarkTracker{marks: make(map[string]int64)}
}

// Diff returns the wallet's trades strictly newer than its watermark,
// ordered oldest first, and advances the watermark to the newest returned
// trade. An unknown wallet starts at zero, so everything is new.
func (w *WatermarkTracker) Diff(wallet string, trades []TradeEvent) []TradeEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	mark := w.marks[wallet]
	var fresh []TradeEvent
	for _, t := range trades {
		if t.TimestampMs > mark {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		if fresh[i].TimestampMs != fresh[j].TimestampMs {
			return fresh[i].TimestampMs < fresh[j].TimestampMs
		}
		return fresh[i].Key() < fresh[j].Key()
	})

	w.marks[wallet] = fresh[len(fresh)-1].TimestampMs
	return fresh
}

// Mark returns the wallet's current watermark in epoch milliseconds, zero
// when the wallet is unknown.
func (w *WatermarkTracker) Mark(wallet string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.marks[wallet]
}

// Len returns the number of wallets tracked.
func (w *WatermarkTracker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.marks)
}

// Export copies the watermark map for persistence.
func (w *WatermarkTracker) Export() map[string]int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]int64, len(w.marks))
	for k, v := range w.marks {
		out[k] = v
	}
	return out
}

// Import replaces the tracker's state. A nil map resets it.
func (w *WatermarkTracker) Import(marks map[string]int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marks = make(map[string]int64, len(marks))
	for k, v := range marks {
		w.marks[k] = v
	}
}
