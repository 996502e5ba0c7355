package app

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"polyleader/clients/polymarketapi"
	"polyleader/internal/metrics"
)

// tradesPager is the slice of the API client the poll source needs.
type tradesPager interface {
	GetTradesPage(ctx context.Context, limit, offset int) ([]polymarketapi.Trade, error)
}

// PollSource pulls recent trades from the paginated HTTP feed. The feed
// promises pages in descending timestamp order, which lets a scan stop as
// soon as a page's oldest trade falls past the cutoff. The promise is
// checked on every page, within the page and against the one before it:
// when it breaks, the early-stop is no longer sound and the scan restarts
// in unordered mode, reading every page up to the configured ceiling.
type PollSource struct {
	logger   *zap.Logger
	api      tradesPager
	pageSize int
	maxPages int
	metrics  *metrics.Metrics

	dropped int64 // malformed records dropped since start
}

// NewPollSource creates a poll source. m may be nil.
func NewPollSource(logger *zap.Logger, api tradesPager, pageSize, maxPages int, m *metrics.Metrics) *PollSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize < 1 {
		pageSize = 1000
	}
	if maxPages < 1 {
		maxPages = 1
	}
	return &PollSource{
		logger:   logger,
		api:      api,
		pageSize: pageSize,
		maxPages: maxPages,
		metrics:  m,
	}
}

// FetchSince returns normalized trades with timestamps at or after
// cutoffMs. Duplicates across pages are possible; the caller's
// deduplicator handles them. A page that still fails after the client's
// retries is skipped and logged; only context cancellation aborts the
// fetch.
func (p *PollSource) FetchSince(ctx context.Context, cutoffMs int64) ([]TradeEvent, error) {
	events, violated, err := p.orderedScan(ctx, cutoffMs)
	if err != nil {
		return nil, err
	}
	if !violated {
		return events, nil
	}

	p.logger.Warn("trade feed ordering violated, falling back to full scan",
		zap.Int("max_pages", p.maxPages),
	)
	return p.unorderedScan(ctx, cutoffMs)
}

// orderedScan walks descending pages and stops early once a page's oldest
// trade is strictly before the cutoff. Returns violated=true when a page
// breaks the descending promise.
func (p *PollSource) orderedScan(ctx context.Context, cutoffMs int64) (events []TradeEvent, violated bool, err error) {
	prevOldest := int64(0)
	havePrev := false

	for page := 0; page < p.maxPages; page++ {
		trades, err := p.fetchPage(ctx, page)
		if err != nil {
			return nil, false, err
		}
		if trades == nil {
			continue // failed page, skipped
		}
		if len(trades) == 0 {
			return events, false, nil
		}

		pageEvents := p.normalizePage(trades)
		if len(pageEvents) == 0 {
			continue
		}

		if !descending(pageEvents) {
			return nil, true, nil
		}
		pageNewest := pageEvents[0].TimestampMs
		pageOldest := pageEvents[len(pageEvents)-1].TimestampMs
		if havePrev && pageNewest > prevOldest {
			return nil, true, nil
		}
		prevOldest, havePrev = pageOldest, true

		for _, e := range pageEvents {
			if e.TimestampMs >= cutoffMs {
				events = append(events, e)
			}
		}

		if pageOldest < cutoffMs {
			return events, false, nil
		}
		if len(trades) < p.pageSize {
			return events, false, nil
		}
	}

	p.logger.Warn("ordered scan hit page ceiling before reaching cutoff",
		zap.Int("max_pages", p.maxPages),
	)
	return events, false, nil
}

// unorderedScan reads every page up to the ceiling and keeps whatever is
// at or after the cutoff, trusting nothing about page order.
func (p *PollSource) unorderedScan(ctx context.Context, cutoffMs int64) ([]TradeEvent, error) {
	var events []TradeEvent

	for page := 0; page < p.maxPages; page++ {
		trades, err := p.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if trades == nil {
			continue // failed page, skipped
		}
		if len(trades) == 0 {
			break
		}

		for _, e := range p.normalizePage(trades) {
			if e.TimestampMs >= cutoffMs {
				events = append(events, e)
			}
		}

		if len(trades) < p.pageSize {
			break
		}
	}

	return events, nil
}

// fetchPage retrieves one page. A page that fails after retries is logged
// and reported as nil so the scan can move on; context cancellation is
// returned as an error.
func (p *PollSource) fetchPage(ctx context.Context, page int) ([]polymarketapi.Trade, error) {
	trades, err := p.api.GetTradesPage(ctx, p.pageSize, page*p.pageSize)
	if err == nil {
		if trades == nil {
			trades = []polymarketapi.Trade{}
		}
		return trades, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	p.logger.Warn("skipping failed trades page",
		zap.Int("page", page),
		zap.Error(err),
	)
	return nil, nil
}

func (p *PollSource) normalizePage(trades []polymarketapi.Trade) []TradeEvent {
	events := make([]TradeEvent, 0, len(trades))
	for _, t := range trades {
		e, err := NormalizeTrade(RawTrade{
			Wallet:      t.ProxyWallet,
			ConditionID: t.ConditionID,
			Side:        t.Side,
			Size:        t.Size,
			Price:       t.Price,
			Timestamp:   t.Timestamp,
			Outcome:     t.Outcome,
			Title:       t.Title,
			TxHash:      t.TransactionHash,
		})
		if err != nil {
			atomic.AddInt64(&p.dropped, 1)
			if p.metrics != nil {
				p.metrics.TradesDropped.Inc()
			}
			p.logger.Debug("dropping malformed trade",
				zap.String("tx", t.TransactionHash),
				zap.Error(err),
			)
			continue
		}
		events = append(events, e)
	}
	return events
}

// Dropped returns how many malformed records have been dropped.
func (p *PollSource) Dropped() int64 {
	return atomic.LoadInt64(&p.dropped)
}

// descending reports whether timestamps never increase along the page.
func descending(events []TradeEvent) bool {
	for i := 1; i < len(events); i++ {
		if events[i].TimestampMs > events[i-1].TimestampMs {
			return false
		}
	}
	return true
}
