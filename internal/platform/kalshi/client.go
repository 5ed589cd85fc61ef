// Package kalshi is the REST and WebSocket client for the Kalshi exchange.
package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/crypto"
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/metrics"
)

// DefaultRequestInterval is the minimum spacing between REST calls.
const DefaultRequestInterval = 100 * time.Millisecond

// rateLimitKey is the shared limiter key for REST calls.
const rateLimitKey = "kalshi:rest"

// Client is the REST client for the Kalshi exchange API.
type Client struct {
	baseURL    string
	basePath   string
	signer     *crypto.RequestSigner
	httpClient *http.Client
	limiter    domain.RateLimiter
	metrics    *metrics.Metrics

	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
// A nil signer sends unauthenticated requests, which is enough for public
// market data.
func NewClient(baseURL string, signer *crypto.RequestSigner) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	basePath := ""
	if u, err := url.Parse(baseURL); err == nil {
		basePath = u.Path
	}
	return &Client{
		baseURL:  baseURL,
		basePath: basePath,
		signer:   signer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		interval: DefaultRequestInterval,
	}
}

// SetRateLimiter makes every request wait on a limiter shared with other
// processes, in addition to the local request spacing.
func (c *Client) SetRateLimiter(l domain.RateLimiter) { c.limiter = l }

// SetMetrics records request outcomes on m.
func (c *Client) SetMetrics(m *metrics.Metrics) { c.metrics = m }

// SetRequestInterval overrides the minimum spacing between requests. Zero
// disables local pacing.
func (c *Client) SetRequestInterval(d time.Duration) {
	c.mu.Lock()
	c.interval = d
	c.mu.Unlock()
}

// GetMarkets returns one page of markets.
func (c *Client) GetMarkets(ctx context.Context, p MarketsParams) (MarketsPage, error) {
	params := url.Values{}
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Cursor != "" {
		params.Set("cursor", p.Cursor)
	}
	if p.EventTicker != "" {
		params.Set("event_ticker", p.EventTicker)
	}
	if p.SeriesTicker != "" {
		params.Set("series_ticker", p.SeriesTicker)
	}
	if p.Status != "" {
		params.Set("status", p.Status)
	}
	if len(p.Tickers) > 0 {
		params.Set("tickers", strings.Join(p.Tickers, ","))
	}

	var page MarketsPage
	if err := c.get(ctx, "markets", "/markets", params, &page); err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: get markets: %w", err)
	}
	return page, nil
}

// ListAllMarkets follows the cursor until the listing ends or limit markets
// have been collected. limit <= 0 means no limit.
func (c *Client) ListAllMarkets(ctx context.Context, p MarketsParams, limit int) ([]Market, error) {
	var out []Market
	for {
		page, err := c.GetMarkets(ctx, p)
		if err != nil {
			return out, err
		}
		out = append(out, page.Markets...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if page.Cursor == "" || len(page.Markets) == 0 {
			return out, nil
		}
		p.Cursor = page.Cursor
	}
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (Market, error) {
	var resp struct {
		Market Market `json:"market"`
	}
	if err := c.get(ctx, "market", "/markets/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}
	return resp.Market, nil
}

// GetOrderbook returns the current order book for the given market ticker.
// depth <= 0 returns every level.
func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (Orderbook, error) {
	var params url.Values
	if depth > 0 {
		params = url.Values{"depth": {strconv.Itoa(depth)}}
	}
	var resp struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	if err := c.get(ctx, "orderbook", "/markets/"+url.PathEscape(ticker)+"/orderbook", params, &resp); err != nil {
		return Orderbook{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}
	resp.Orderbook.Ticker = ticker
	return resp.Orderbook, nil
}

// GetEvents returns one page of events.
func (c *Client) GetEvents(ctx context.Context, p EventsParams) (EventsPage, error) {
	params := url.Values{}
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Cursor != "" {
		params.Set("cursor", p.Cursor)
	}
	if p.Status != "" {
		params.Set("status", p.Status)
	}
	if p.SeriesTicker != "" {
		params.Set("series_ticker", p.SeriesTicker)
	}
	if p.WithNestedMarkets {
		params.Set("with_nested_markets", "true")
	}

	var page EventsPage
	if err := c.get(ctx, "events", "/events", params, &page); err != nil {
		return EventsPage{}, fmt.Errorf("kalshi: get events: %w", err)
	}
	return page, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// get paces, signs, sends and decodes a GET request. endpoint labels metrics.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	if err := c.pace(ctx); err != nil {
		return err
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.signer != nil {
		// The signature covers the full path without the query string.
		h, err := c.signer.Headers(http.MethodGet, c.basePath+path)
		if err != nil {
			return err
		}
		for k, v := range h {
			req.Header[k] = v
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordExchangeRequest(endpoint, "error")
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.RecordExchangeRequest(endpoint, strconv.Itoa(resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// pace enforces the minimum request spacing and the shared limiter.
func (c *Client) pace(ctx context.Context) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
			return err
		}
	}

	c.mu.Lock()
	wait := time.Until(c.last.Add(c.interval))
	if wait < 0 {
		wait = 0
	}
	c.last = time.Now().Add(wait)
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: %s: %w", apiErr.text(), domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("kalshi: %s: %w", apiErr.text(), domain.ErrUnauthorized)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: %s: %w", apiErr.text(), domain.ErrRateLimited)
	case http.StatusBadRequest:
		return fmt.Errorf("kalshi: bad request: %s", apiErr.text())
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s", statusCode, apiErr.text())
	}
}
