package polymarketevents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PolymarketEventsClient subscribes to the real-time data stream (RTDS) and
// forwards activity frames to a channel. One client owns one connection;
// reconnect policy lives in the caller.
type PolymarketEventsClient struct {
	logger *zap.Logger

	wsURL        string
	dialer       *websocket.Dialer
	pingInterval time.Duration

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	msgCh   chan json.RawMessage
	errCh   chan error
	closeCh chan struct{}

	msgCount        uint64
	lastMsgUnixNano int64
}

func NewPolymarketEventsClient(logger *zap.Logger, wsURL string) *PolymarketEventsClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if wsURL == "" {
		wsURL = "wss://ws-live-data.polymarket.com"
	}

	return &PolymarketEventsClient{
		logger:       logger,
		wsURL:        wsURL,
		dialer:       websocket.DefaultDialer,
		pingInterval: 10 * time.Second,

		msgCh:   make(chan json.RawMessage, 1024),
		errCh:   make(chan error, 64),
		closeCh: make(chan struct{}),
	}
}

// Connect dials the RTDS endpoint and subscribes to the global trades
// activity topic. The channel is public; no API key required.
func (c *PolymarketEventsClient) Connect(ctx context.Context) error {
	c.connMu.Lock()
	alreadyConnected := c.conn != nil
	c.connMu.Unlock()
	if alreadyConnected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial rtds ws: %w", err)
	}

	c.logger.Info("polymarket ws dialed", zap.String("url", c.wsURL))

	conn.SetCloseHandler(func(code int, text string) error {
		c.logger.Warn(
			"polymarket ws close frame received",
			zap.Int("code", code),
			zap.String("reason", text),
		)
		return nil
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	// RTDS subscription shape:
	// { "action": "subscribe", "subscriptions": [{"topic": "activity", "type": "trades"}] }
	sub := map[string]any{
		"action": "subscribe",
		"subscriptions": []map[string]string{
			{"topic": "activity", "type": "trades"},
		},
	}

	if err := c.writeJSON(sub); err != nil {
		_ = conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		return fmt.Errorf("send initial subscription: %w", err)
	}

	c.logger.Info("polymarket ws subscription sent")

	go c.readLoop()
	go c.pingLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.closeCh:
		}
	}()

	return nil
}

func (c *PolymarketEventsClient) Messages() <-chan json.RawMessage {
	return c.msgCh
}

func (c *PolymarketEventsClient) Errors() <-chan error {
	return c.errCh
}

type WSStats struct {
	MessageCount  uint64
	LastMessageAt time.Time
}

// ActivityTrade is one trade from the RTDS activity topic. Timestamps are
// left raw; decoding belongs to normalization.
type ActivityTrade struct {
	ProxyWallet     string          `json:"proxyWallet"`
	Side            string          `json:"side"`
	Size            float64         `json:"size"`
	Price           float64         `json:"price"`
	Timestamp       json.RawMessage `json:"timestamp"`
	ConditionID     string          `json:"conditionId"`
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	EventSlug       string          `json:"eventSlug"`
	Outcome         string          `json:"outcome"`
	TransactionHash string          `json:"transactionHash"`
}

// rtdsEnvelope is the frame wrapper RTDS puts around topic payloads.
type rtdsEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseActivityTrade attempts to parse a frame as an activity trade.
// Returns nil for control frames and other topics.
func ParseActivityTrade(data json.RawMessage) *ActivityTrade {
	var env rtdsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	if env.Topic != "activity" || env.Type != "trades" || len(env.Payload) == 0 {
		return nil
	}

	var trade ActivityTrade
	if err := json.Unmarshal(env.Payload, &trade); err != nil {
		return nil
	}
	if trade.ProxyWallet == "" || trade.ConditionID == "" {
		return nil
	}
	return &trade
}

func (c *PolymarketEventsClient) Stats() WSStats {
	n := atomic.LoadUint64(&c.msgCount)
	ns := atomic.LoadInt64(&c.lastMsgUnixNano)

	var t time.Time
	if ns > 0 {
		t = time.Unix(0, ns)
	}

	return WSStats{
		MessageCount:  n,
		LastMessageAt: t,
	}
}

func (c *PolymarketEventsClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	// Signal goroutines to stop by closing closeCh
	select {
	case <-c.closeCh:
		// Channel was already closed
	default:
		close(c.closeCh)
	}

	// Create fresh channel for potential reconnection
	c.closeCh = make(chan struct{})

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	return err
}

func (c *PolymarketEventsClient) writeJSON(v any) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return conn.WriteJSON(v)
}

func (c *PolymarketEventsClient) pingLoop() {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()

			if conn != nil {
				c.writeMu.Lock()
				_ = conn.WriteMessage(websocket.TextMessage, []byte("PING"))
				c.writeMu.Unlock()
			}

		case <-c.closeCh:
			return
		}
	}
}

func (c *PolymarketEventsClient) readLoop() {
	c.logger.Info("polymarket ws read loop started")

	first := true

	for {
		select {
		case <-c.closeCh:
			c.logger.Info("polymarket ws read loop exiting: closeCh signaled")
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.logger.Info("polymarket ws read loop exiting: conn is nil")
			return
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("polymarket ws read loop exiting: read error", zap.Error(err))
			select {
			case c.errCh <- err:
			default:
			}
			_ = c.Close()
			return
		}

		// Server may reply with plain "PONG".
		if string(b) == "PONG" || string(b) == "PING" {
			continue
		}

		atomic.AddUint64(&c.msgCount, 1)
		atomic.StoreInt64(&c.lastMsgUnixNano, time.Now().UnixNano())

		if first {
			first = false
			c.logger.Info(
				"polymarket ws received first frame",
				zap.Int("bytes", len(b)),
			)
		}

		// The server may send either a single JSON object or a batch array.
		c.emitFrame(b)
	}
}

func (c *PolymarketEventsClient) emitFrame(b []byte) {
	trimmed := b
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\n' || trimmed[0] == '\t' || trimmed[0] == '\r') {
		trimmed = trimmed[1:]
	}

	if len(trimmed) == 0 {
		return
	}

	// Batch case: JSON array
	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			c.logger.Warn("polymarket ws bad json array frame", zap.Error(err))
			return
		}

		for _, one := range arr {
			c.forward(one)
		}
		return
	}

	// Single event case: JSON object (or something else)
	c.forward(json.RawMessage(append([]byte(nil), trimmed...)))
}

func (c *PolymarketEventsClient) forward(msg json.RawMessage) {
	select {
	case c.msgCh <- msg:
	default:
		c.logger.Warn("dropping ws message: msgCh full")
	}
}
