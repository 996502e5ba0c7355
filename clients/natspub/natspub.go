package natspub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher sends copy candidates to a NATS subject for the downstream
// paper-copier. A Publisher with no connection is valid and drops
// everything silently, so callers never branch on whether NATS is
// configured.
type Publisher struct {
	logger  *zap.Logger
	conn    *nats.Conn
	subject string
}

// NewPublisher connects to NATS. An empty URL yields a disabled publisher.
func NewPublisher(logger *zap.Logger, url, subject string) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if url == "" {
		logger.Info("nats url not set, candidate publishing disabled")
		return &Publisher{logger: logger, subject: subject}, nil
	}

	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	logger.Info("nats publisher connected",
		zap.String("url", url),
		zap.String("subject", subject),
	)

	return &Publisher{
		logger:  logger,
		conn:    conn,
		subject: subject,
	}, nil
}

// Enabled reports whether the publisher has a live configuration.
func (p *Publisher) Enabled() bool {
	return p.conn != nil
}

// Publish marshals v and publishes it to the configured subject.
func (p *Publisher) Publish(v any) error {
	if p.conn == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes and drains the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
