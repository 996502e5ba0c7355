package app

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const windowSnapshotVersion = 1

// WindowSnapshot is the serialized form of a rolling window.
type WindowSnapshot struct {
	Version int          `json:"version"`
	TakenAt time.Time    `json:"taken_at"`
	Trades  []TradeEvent `json:"trades"`
}

// Window is the rolling store of deduplicated trades inside the trailing
// evaluation period. Inserts accept events in any order; Compact drops
// everything older than the cutoff and is idempotent for a fixed now.
type Window struct {
	logger   *zap.Logger
	duration time.Duration

	mu     sync.RWMutex
	trades []TradeEvent
}

// NewWindow creates a rolling window covering the trailing duration.
func NewWindow(logger *zap.Logger, duration time.Duration) *Window {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Window{
		logger:   logger,
		duration: duration,
	}
}

// Duration returns the trailing period the window covers.
func (w *Window) Duration() time.Duration {
	return w.duration
}

// Insert adds a trade. The caller is responsible for deduplication; the
// window itself keeps whatever it is given.
func (w *Window) Insert(t TradeEvent) {
	w.mu.Lock()
	w.trades = append(w.trades, t)
	w.mu.Unlock()
}

// Compact drops trades strictly older than now minus the window duration
// and returns how many were removed. A trade sitting exactly on the cutoff
// is still a member. Calling it twice with the same now removes nothing
// the second time.
func (w *Window) Compact(now time.Time) int {
	cutoff := now.Add(-w.duration).UnixMilli()

	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.trades[:0]
	for _, t := range w.trades {
		if t.TimestampMs >= cutoff {
			kept = append(kept, t)
		}
	}
	removed := len(w.trades) - len(kept)
	// Zero the tail so dropped events do not pin memory.
	for i := len(kept); i < len(w.trades); i++ {
		w.trades[i] = TradeEvent{}
	}
	w.trades = kept
	return removed
}

// Size returns the number of trades currently held.
func (w *Window) Size() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.trades)
}

// Trades returns a copy of the current contents, in insertion order.
func (w *Window) Trades() []TradeEvent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]TradeEvent, len(w.trades))
	copy(out, w.trades)
	return out
}

// Snapshot exports the window for persistence.
func (w *Window) Snapshot(now time.Time) *WindowSnapshot {
	return &WindowSnapshot{
		Version: windowSnapshotVersion,
		TakenAt: now.UTC(),
		Trades:  w.Trades(),
	}
}

// Restore replaces the window contents with the snapshot's trades, dropping
// anything that has already aged out as of now. Returns how many trades
// were restored.
func (w *Window) Restore(snap *WindowSnapshot, now time.Time) int {
	if snap == nil {
		return 0
	}
	if snap.Version != windowSnapshotVersion {
		w.logger.Warn("ignoring window snapshot with unknown version",
			zap.Int("version", snap.Version),
		)
		return 0
	}

	cutoff := now.Add(-w.duration).UnixMilli()
	kept := make([]TradeEvent, 0, len(snap.Trades))
	for _, t := range snap.Trades {
		if t.TimestampMs >= cutoff {
			kept = append(kept, t)
		}
	}

	w.mu.Lock()
	w.trades = kept
	w.mu.Unlock()

	w.logger.Info("restored window snapshot",
		zap.Int("restored", len(kept)),
		zap.Int("aged_out", len(snap.Trades)-len(kept)),
		zap.Time("taken_at", snap.TakenAt),
	)
	return len(kept)
}
