package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"polyleader/clients/polymarketapi"
)

// marketsPager is the slice of the API client the index needs.
type marketsPager interface {
	GetMarketsPage(ctx context.Context, cursor string) ([]polymarketapi.ClobMarket, string, error)
}

// MarketIndex maps condition IDs to market metadata, primarily so trades
// can carry the category the qualified tier gates on. A failed refresh
// keeps the previous index; stale categories beat no categories.
type MarketIndex struct {
	logger *zap.Logger
	api    marketsPager

	maxPages int

	mu          sync.RWMutex
	byCondition map[string]polymarketapi.ClobMarket
	refreshedAt time.Time
}

// NewMarketIndex creates an empty index. maxPages bounds one refresh walk
// of the CLOB markets listing.
func NewMarketIndex(logger *zap.Logger, api marketsPager, maxPages int) *MarketIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPages < 1 {
		maxPages = 50
	}
	return &MarketIndex{
		logger:      logger,
		api:         api,
		maxPages:    maxPages,
		byCondition: make(map[string]polymarketapi.ClobMarket),
	}
}

// Refresh walks the CLOB markets listing and swaps in a new index. On any
// error the previous index stays in place.
func (m *MarketIndex) Refresh(ctx context.Context) error {
	fresh := make(map[string]polymarketapi.ClobMarket)
	cursor := ""

	for page := 0; page < m.maxPages; page++ {
		markets, next, err := m.api.GetMarketsPage(ctx, cursor)
		if err != nil {
			return fmt.Errorf("refresh market index (page %d): %w", page, err)
		}
		for _, mk := range markets {
			if mk.ConditionID == "" {
				continue
			}
			fresh[strings.TrimSpace(mk.ConditionID)] = mk
		}
		if next == "" || next == polymarketapi.ClobCursorEnd {
			break
		}
		cursor = next
	}

	m.mu.Lock()
	m.byCondition = fresh
	m.refreshedAt = time.Now().UTC()
	m.mu.Unlock()

	m.logger.Info("market index refreshed", zap.Int("markets", len(fresh)))
	return nil
}

// Run refreshes the index once immediately and then on the given interval
// until the context ends.
func (m *MarketIndex) Run(ctx context.Context, interval time.Duration) {
	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("initial market index refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil {
				m.logger.Warn("market index refresh failed, keeping previous", zap.Error(err))
			}
		}
	}
}

// CategoryFor returns the category for a condition ID, empty when unknown.
func (m *MarketIndex) CategoryFor(conditionID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byCondition[conditionID].Category
}

// Lookup returns the full metadata for a condition ID.
func (m *MarketIndex) Lookup(conditionID string) (polymarketapi.ClobMarket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mk, ok := m.byCondition[conditionID]
	return mk, ok
}

// Size returns the number of indexed markets.
func (m *MarketIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byCondition)
}

// RefreshedAt returns when the index last refreshed successfully.
func (m *MarketIndex) RefreshedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshedAt
}

// Enrich fills in the trade's category from the index when the feed did
// not supply one.
func (m *MarketIndex) Enrich(t *TradeEvent) {
	if t.Category != "" {
		return
	}
	t.Category = m.CategoryFor(t.ConditionID)
}
