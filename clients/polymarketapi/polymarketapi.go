package polymarketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"polyleader/config"
)

// PolymarketApiClient talks to the Data API (executed trades) and the CLOB
// API (market metadata).
type PolymarketApiClient struct {
	logger      *zap.Logger
	httpClient  *http.Client
	dataBaseURL string
	clobBaseURL string

	maxRetries   int
	retryBackoff time.Duration
}

func NewPolymarketApiClient(logger *zap.Logger, cfg *config.Config) *PolymarketApiClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PolymarketApiClient{
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Fetch.PageTimeout,
		},
		dataBaseURL:  cfg.Polymarket.DataAPIURL,
		clobBaseURL:  cfg.Polymarket.ClobAPIURL,
		maxRetries:   cfg.Fetch.MaxRetries,
		retryBackoff: cfg.Fetch.RetryBackoff,
	}
}

// ---- Data API types ----

// Trade represents a trade from the data API. The timestamp is left raw:
// the endpoint has served epoch seconds, epoch milliseconds, and strings at
// various times, so decoding is deferred to normalization.
type Trade struct {
	ID              string          `json:"id"`
	ProxyWallet     string          `json:"proxyWallet"`
	Side            string          `json:"side"` // BUY or SELL
	Size            float64         `json:"size"`
	Price           float64         `json:"price"`
	Timestamp       json.RawMessage `json:"timestamp"`
	ConditionID     string          `json:"conditionId"`
	Asset           string          `json:"asset"`
	TransactionHash string          `json:"transactionHash"`

	// Market metadata
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Outcome      string `json:"outcome"`
	OutcomeIndex int    `json:"outcomeIndex"`

	// User profile
	Name      string `json:"name"`
	Pseudonym string `json:"pseudonym"`
}

// GetTradesPage fetches one page of recent trades, newest first. The data
// API pages with limit/offset and returns trades in descending timestamp
// order; callers walk offsets until they are past their cutoff.
func (c *PolymarketApiClient) GetTradesPage(
	ctx context.Context,
	limit int,
	offset int,
) ([]Trade, error) {
	if limit <= 0 {
		limit = 1000
	}

	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/trades"

	q := u.Query()
	q.Set("limit", fmt.Sprintf("%d", limit))
	if offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", offset))
	}
	q.Set("takerOnly", "true")
	u.RawQuery = q.Encode()

	var trades []Trade
	if err := c.doGetRetry(ctx, u.String(), &trades); err != nil {
		return nil, fmt.Errorf("get trades page: %w", err)
	}

	return trades, nil
}

// GetWalletTrades fetches recent trades for a single wallet, newest first.
func (c *PolymarketApiClient) GetWalletTrades(
	ctx context.Context,
	wallet string,
	limit int,
) ([]Trade, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}

	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/trades"

	q := u.Query()
	q.Set("user", wallet)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	u.RawQuery = q.Encode()

	var trades []Trade
	if err := c.doGetRetry(ctx, u.String(), &trades); err != nil {
		return nil, fmt.Errorf("get wallet trades: %w", err)
	}

	return trades, nil
}

// ---- CLOB API types ----

// ClobMarket is the market metadata the engine cares about: identity,
// category for the qualified-tier gate, and enough naming for alerts.
type ClobMarket struct {
	ConditionID string `json:"condition_id"`
	Question    string `json:"question"`
	Category    string `json:"category"`
	MarketSlug  string `json:"market_slug"`
	EndDateISO  string `json:"end_date_iso"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
}

type clobMarketsResponse struct {
	Data       []ClobMarket `json:"data"`
	NextCursor string       `json:"next_cursor"`
	Count      int          `json:"count"`
}

// ClobCursorEnd is the cursor value the CLOB API returns on the last page.
const ClobCursorEnd = "LTE="

// GetMarketsPage fetches one page of CLOB market metadata. Pass an empty
// cursor for the first page; iteration ends when the returned cursor is
// ClobCursorEnd or empty.
func (c *PolymarketApiClient) GetMarketsPage(
	ctx context.Context,
	cursor string,
) ([]ClobMarket, string, error) {
	u, err := url.Parse(c.clobBaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid clobBaseURL: %w", err)
	}
	u.Path = "/markets"

	if cursor != "" {
		q := u.Query()
		q.Set("next_cursor", cursor)
		u.RawQuery = q.Encode()
	}

	var resp clobMarketsResponse
	if err := c.doGetRetry(ctx, u.String(), &resp); err != nil {
		return nil, "", fmt.Errorf("get markets page: %w", err)
	}

	return resp.Data, resp.NextCursor, nil
}

// doGetRetry wraps doGet with bounded exponential backoff. Context
// cancellation is not retried.
func (c *PolymarketApiClient) doGetRetry(ctx context.Context, url string, dest any) error {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = c.doGet(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return lastErr
}

// doGet is a helper that performs a GET request and decodes JSON response.
func (c *PolymarketApiClient) doGet(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	return nil
}
