package polymarketapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"polyleader/config"
)

func testClient(dataURL, clobURL string) *PolymarketApiClient {
	cfg := config.Defaults()
	cfg.Polymarket.DataAPIURL = dataURL
	cfg.Polymarket.ClobAPIURL = clobURL
	cfg.Fetch.MaxRetries = 2
	cfg.Fetch.RetryBackoff = 5 * time.Millisecond
	return NewPolymarketApiClient(nil, cfg)
}

func TestGetTradesPage(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trades" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"proxyWallet":"0xAAA","side":"BUY","size":10,"price":0.5,"timestamp":1700000000,"conditionId":"c1","transactionHash":"0x1"},
			{"proxyWallet":"0xBBB","side":"SELL","size":5,"price":0.4,"timestamp":"1700000001","conditionId":"c2","transactionHash":"0x2"}
		]`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	trades, err := c.GetTradesPage(context.Background(), 500, 1000)
	if err != nil {
		t.Fatalf("get trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].ProxyWallet != "0xAAA" || trades[0].Size != 10 {
		t.Errorf("unexpected first trade: %+v", trades[0])
	}
	// The raw timestamp is preserved for normalization to decode.
	if string(trades[1].Timestamp) != `"1700000001"` {
		t.Errorf("expected raw timestamp preserved, got %s", trades[1].Timestamp)
	}

	for _, want := range []string{"limit=500", "offset=1000", "takerOnly=true"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("expected query to contain %q, got %q", want, gotQuery)
		}
	}
}

func TestGetTradesPage_OmitsZeroOffset(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	if _, err := c.GetTradesPage(context.Background(), 100, 0); err != nil {
		t.Fatalf("get trades: %v", err)
	}
	if strings.Contains(gotQuery, "offset") {
		t.Errorf("expected offset omitted on first page, got %q", gotQuery)
	}
}

func TestGetWalletTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user"); got != "0xabc" {
			t.Errorf("expected user=0xabc, got %q", got)
		}
		w.Write([]byte(`[{"proxyWallet":"0xabc","side":"BUY","size":1,"price":0.5,"timestamp":1700000000,"conditionId":"c1","transactionHash":"0x1"}]`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	trades, err := c.GetWalletTrades(context.Background(), " 0xabc ", 10)
	if err != nil {
		t.Fatalf("get wallet trades: %v", err)
	}
	if len(trades) != 1 {
		t.Errorf("expected 1 trade, got %d", len(trades))
	}

	if _, err := c.GetWalletTrades(context.Background(), "  ", 10); err == nil {
		t.Error("expected error for empty wallet")
	}
}

func TestGetMarketsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("next_cursor"); got != "abc=" {
			t.Errorf("expected next_cursor=abc=, got %q", got)
		}
		w.Write([]byte(`{"data":[{"condition_id":"c1","question":"Q1","category":"Politics","market_slug":"q1"}],"next_cursor":"LTE=","count":1}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	markets, next, err := c.GetMarketsPage(context.Background(), "abc=")
	if err != nil {
		t.Fatalf("get markets: %v", err)
	}
	if len(markets) != 1 || markets[0].ConditionID != "c1" || markets[0].Category != "Politics" {
		t.Errorf("unexpected markets: %+v", markets)
	}
	if next != ClobCursorEnd {
		t.Errorf("expected terminal cursor, got %q", next)
	}
}

func TestGetMarketsPage_FirstPageOmitsCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("next_cursor") {
			t.Errorf("expected no cursor on first page, got %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":[],"next_cursor":"LTE=","count":0}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	if _, _, err := c.GetMarketsPage(context.Background(), ""); err != nil {
		t.Fatalf("get markets: %v", err)
	}
}

func TestRetryThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	if _, err := c.GetTradesPage(context.Background(), 10, 0); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestRetryExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	if _, err := c.GetTradesPage(context.Background(), 10, 0); err == nil {
		t.Error("expected error after retries exhausted")
	}
}

func TestNoRetryOnCancel(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := testClient(srv.URL, srv.URL)

	// Cancel after the first failed attempt; the backoff select must bail
	// out instead of retrying.
	go func() {
		time.Sleep(2 * time.Millisecond)
		cancel()
	}()

	_, err := c.GetTradesPage(ctx, 10, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got > 2 {
		t.Errorf("expected no retries after cancel, got %d calls", got)
	}
}
