package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"polyleader/clients/polymarketevents"
	"polyleader/internal/metrics"
)

// StreamSource owns the WebSocket feed lifecycle: it connects, forwards
// normalized trades to a handler, and reconnects with exponential backoff
// when the connection drops. The handler runs on the source's goroutine
// and must be quick.
type StreamSource struct {
	logger  *zap.Logger
	wsURL   string
	metrics *metrics.Metrics
	handler func(TradeEvent)

	mu     sync.Mutex
	client *polymarketevents.PolymarketEventsClient

	received int64
	dropped  int64
}

const (
	reconnectBase = 1 * time.Second
	reconnectMax  = 60 * time.Second
)

// NewStreamSource creates a stream source delivering to handler. m may be
// nil.
func NewStreamSource(logger *zap.Logger, wsURL string, m *metrics.Metrics, handler func(TradeEvent)) *StreamSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamSource{
		logger:  logger,
		wsURL:   wsURL,
		metrics: m,
		handler: handler,
	}
}

// Run connects and consumes frames until the context ends, reconnecting
// on failure. Backoff doubles per consecutive failure and resets after a
// healthy session.
func (s *StreamSource) Run(ctx context.Context) {
	backoff := reconnectBase

	for ctx.Err() == nil {
		client := polymarketevents.NewPolymarketEventsClient(s.logger, s.wsURL)
		if err := client.Connect(ctx); err != nil {
			s.logger.Warn("stream connect failed",
				zap.Duration("retry_in", backoff),
				zap.Error(err),
			)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		s.mu.Lock()
		s.client = client
		s.mu.Unlock()

		started := time.Now()
		s.consume(ctx, client)
		_ = client.Close()

		s.mu.Lock()
		s.client = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		// A session that held for a while earns a fresh backoff.
		if time.Since(started) > time.Minute {
			backoff = reconnectBase
		}
		s.logger.Warn("stream disconnected, reconnecting",
			zap.Duration("retry_in", backoff),
		)
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// consume reads frames until the connection errors or the context ends.
func (s *StreamSource) consume(ctx context.Context, client *polymarketevents.PolymarketEventsClient) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-client.Errors():
			s.logger.Warn("stream read error", zap.Error(err))
			return
		case msg := <-client.Messages():
			trade := polymarketevents.ParseActivityTrade(msg)
			if trade == nil {
				continue
			}
			atomic.AddInt64(&s.received, 1)

			e, err := NormalizeTrade(RawTrade{
				Wallet:      trade.ProxyWallet,
				ConditionID: trade.ConditionID,
				Side:        trade.Side,
				Size:        trade.Size,
				Price:       trade.Price,
				Timestamp:   trade.Timestamp,
				Outcome:     trade.Outcome,
				Title:       trade.Title,
				TxHash:      trade.TransactionHash,
			})
			if err != nil {
				atomic.AddInt64(&s.dropped, 1)
				if s.metrics != nil {
					s.metrics.TradesDropped.Inc()
				}
				s.logger.Debug("dropping malformed stream trade",
					zap.String("tx", trade.TransactionHash),
					zap.Error(err),
				)
				continue
			}
			s.handler(e)
		}
	}
}

// Stats returns counters and the live connection's stats when connected.
func (s *StreamSource) Stats() (received, dropped int64, ws polymarketevents.WSStats, connected bool) {
	received = atomic.LoadInt64(&s.received)
	dropped = atomic.LoadInt64(&s.dropped)

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client != nil {
		return received, dropped, client.Stats(), true
	}
	return received, dropped, polymarketevents.WSStats{}, false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMax {
		d = reconnectMax
	}
	return d
}
