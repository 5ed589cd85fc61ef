package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshiarb/internal/arbitrage"
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/fees"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
	"github.com/alanyoungcy/kalshiarb/internal/server/handler"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	mA = "HIGHNY-22DEC23-T60"
	mB = "HIGHNY-22DEC23-T55"
)

type fakeOpps struct {
	opps []domain.ArbitrageOpportunity
	err  error
}

func (f *fakeOpps) ListRecent(_ context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.opps[:min(limit, len(f.opps))], nil
}

func (f *fakeOpps) Get(_ context.Context, id string) (domain.ArbitrageOpportunity, error) {
	for _, o := range f.opps {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.ArbitrageOpportunity{}, domain.ErrNotFound
}

type fakeRels []domain.RelationshipRecord

func (f fakeRels) List(_ context.Context, limit int) ([]domain.RelationshipRecord, error) {
	return f[:min(limit, len(f))], nil
}

type fakeCache map[string]domain.TopOfBook

func (f fakeCache) SetTopOfBook(_ context.Context, tob domain.TopOfBook) error {
	f[tob.Ticker] = tob
	return nil
}

func (f fakeCache) GetTopOfBook(_ context.Context, tk string) (domain.TopOfBook, error) {
	tob, ok := f[tk]
	if !ok {
		return domain.TopOfBook{}, domain.ErrNotFound
	}
	return tob, nil
}

type fakeLimiter struct{ allow bool }

func (f fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return f.allow, nil
}

func (fakeLimiter) Wait(context.Context, string) error { return nil }

type fakeLookup map[string]arbitrage.Quote

func (f fakeLookup) Quote(_ context.Context, tk string) (arbitrage.Quote, error) {
	q, ok := f[tk]
	if !ok {
		return arbitrage.Quote{}, errors.New("no such market")
	}
	return q, nil
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func opportunity(id string) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:       id,
		Strategy: domain.StrategySubset,
		Markets:  []string{mA, mB},
		Legs: []domain.TradeLeg{
			{Ticker: mA, Side: domain.SideSell, Position: domain.PositionYes, Price: decimal.RequireFromString("0.60"), Quantity: 100},
			{Ticker: mB, Side: domain.SideBuy, Position: domain.PositionYes, Price: decimal.RequireFromString("0.52"), Quantity: 100},
		},
		NetProfit:       decimal.RequireFromString("4.57"),
		RequiredCapital: decimal.RequireFromString("52"),
		Confidence:      1,
		DetectedAt:      time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC),
	}
}

type harness struct {
	opps    *fakeOpps
	books   *orderbook.Books
	cache   fakeCache
	lookup  fakeLookup
	limiter domain.RateLimiter
	cfg     Config
}

func newHarness() *harness {
	return &harness{
		opps:   &fakeOpps{opps: []domain.ArbitrageOpportunity{opportunity("opp-1"), opportunity("opp-2")}},
		books:  orderbook.NewBooks(),
		cache:  fakeCache{},
		lookup: fakeLookup{},
	}
}

func (h *harness) handler() http.Handler {
	calc := fees.NewCalculator(fees.DefaultSchedule())
	eval := arbitrage.NewEvaluator(calc, arbitrage.Params{MinProfit: decimal.RequireFromString("0.01")})
	rels := fakeRels{{TickerA: mA, TickerB: mB, Kind: domain.RelationSubset, Confidence: 1}}

	srv := NewServer(h.cfg, Handlers{
		Health:        handler.NewHealthHandler(discard),
		Opportunities: handler.NewOpportunityHandler(h.opps, discard),
		Relationships: handler.NewRelationshipHandler(rels, nil, discard),
		Books:         handler.NewBookHandler(h.books, h.cache, discard),
		Fees:          handler.NewFeeHandler(calc, discard),
		Evaluate:      handler.NewEvaluateHandler(eval, h.lookup, discard),
		Metrics:       http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { io.WriteString(w, "# metrics\n") }),
		Limiter:       h.limiter,
	}, discard)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestHealthAndMetricsSkipAuth(t *testing.T) {
	h := newHarness()
	h.cfg.APIKey = "secret"
	srv := h.handler()

	if rec, body := do(t, srv, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
	if rec, _ := do(t, srv, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Fatalf("metrics = %d %q", rec.Code, rec.Body.String())
	}
	if rec, _ := do(t, srv, http.MethodGet, "/api/opportunities", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("opportunities without key = %d, want 401", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodGet, "/api/opportunities", "", "Authorization", "Bearer secret"); rec.Code != http.StatusOK {
		t.Fatalf("opportunities with bearer = %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodGet, "/api/opportunities", "", "X-API-Key", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("opportunities with wrong key = %d", rec.Code)
	}
}

func TestHealthReportsFailingCheck(t *testing.T) {
	hh := handler.NewHealthHandler(discard,
		handler.Check{Name: "redis", Ping: func(context.Context) error { return nil }},
		handler.Check{Name: "store", Ping: func(context.Context) error { return errors.New("connection refused") }},
	)
	srv := NewServer(Config{}, Handlers{Health: hh}, discard).Handler()

	rec, body := do(t, srv, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
	deps := body["dependencies"].(map[string]any)
	if deps["redis"] != "ok" || deps["store"] != "connection refused" {
		t.Errorf("dependencies = %v", deps)
	}
}

func TestOpportunities(t *testing.T) {
	srv := newHarness().handler()

	rec, body := do(t, srv, http.MethodGet, "/api/opportunities?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
	first := body["opportunities"].([]any)[0].(map[string]any)
	if first["opportunity_id"] != "opp-1" || first["expected_profit"] != "4.57" || first["strategy_type"] != "subset" {
		t.Errorf("record = %v", first)
	}

	rec, body = do(t, srv, http.MethodGet, "/api/opportunities/opp-2", "")
	if rec.Code != http.StatusOK || body["opportunity_id"] != "opp-2" {
		t.Fatalf("get = %d %v", rec.Code, body)
	}
	orders := body["orders"].([]any)
	if leg := orders[0].([]any); leg[0] != mA || leg[1] != "sell" || leg[3] != "0.60" {
		t.Errorf("first order = %v", leg)
	}

	if rec, _ := do(t, srv, http.MethodGet, "/api/opportunities/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing = %d, want 404", rec.Code)
	}
}

func TestOpportunitiesStoreError(t *testing.T) {
	h := newHarness()
	h.opps.err = errors.New("db down")
	rec, body := do(t, h.handler(), http.MethodGet, "/api/opportunities", "")
	if rec.Code != http.StatusInternalServerError || body["error"] == nil {
		t.Fatalf("list = %d %v", rec.Code, body)
	}
}

func TestRelationshipsIncludeDirection(t *testing.T) {
	rec, body := do(t, newHarness().handler(), http.MethodGet, "/api/relationships", "")
	if rec.Code != http.StatusOK || body["source"] != "store" {
		t.Fatalf("relationships = %d %v", rec.Code, body)
	}
	rel := body["relationships"].([]any)[0].(map[string]any)
	if rel["relationship_type"] != "subset" || rel["constraint"] != "P(A) <= P(B)" {
		t.Errorf("relationship = %v", rel)
	}
}

func TestRelationshipsPreferLive(t *testing.T) {
	live := func() []domain.Relationship {
		return []domain.Relationship{{
			A:    domain.MarketDescriptor{Ticker: "KXFED-25DEC-E4.25"},
			B:    domain.MarketDescriptor{Ticker: "KXFED-25DEC-E4.50"},
			Kind: domain.RelationDisjoint,
		}}
	}
	srv := NewServer(Config{}, Handlers{
		Relationships: handler.NewRelationshipHandler(fakeRels{}, live, discard),
	}, discard).Handler()

	_, body := do(t, srv, http.MethodGet, "/api/relationships", "")
	if body["source"] != "detector" || body["count"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
	rel := body["relationships"].([]any)[0].(map[string]any)
	if rel["ticker_a"] != "KXFED-25DEC-E4.25" || rel["constraint"] != "P(A) + P(B) <= 1" {
		t.Errorf("relationship = %v", rel)
	}
}

func TestBooks(t *testing.T) {
	h := newHarness()
	if err := h.books.ApplySnapshot(orderbook.Snapshot{
		MarketTicker: mA,
		Yes:          [][2]int64{{62, 10}, {64, 5}},
		No:           [][2]int64{{40, 7}},
	}); err != nil {
		t.Fatal(err)
	}
	h.cache["CACHED-ONLY"] = domain.TopOfBook{Ticker: "CACHED-ONLY", YesAsk: "0.33"}
	srv := h.handler()

	rec, body := do(t, srv, http.MethodGet, "/api/books/"+mA, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("live book = %d", rec.Code)
	}
	if asks := body["yes_asks"].([]any); len(asks) != 2 {
		t.Errorf("yes_asks = %v", asks)
	}
	if top := body["top"].(map[string]any); top["yes_ask"] != "0.62" || top["no_ask"] != "0.40" {
		t.Errorf("top = %v", top)
	}

	rec, body = do(t, srv, http.MethodGet, "/api/books/CACHED-ONLY", "")
	if rec.Code != http.StatusOK || body["source"] != "cache" {
		t.Fatalf("cached book = %d %v", rec.Code, body)
	}

	if rec, _ := do(t, srv, http.MethodGet, "/api/books/NOPE", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown book = %d, want 404", rec.Code)
	}
}

func TestFeeQuote(t *testing.T) {
	srv := newHarness().handler()

	rec, body := do(t, srv, http.MethodGet, "/api/fees/quote?ticker=KXFED-25DEC-T4.25&price=0.50&count=100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("quote = %d %v", rec.Code, body)
	}
	if body["fee"] != "1.75" || body["rate"] != "0.07" || body["notional"] != "50.00" {
		t.Errorf("quote = %v", body)
	}

	for _, target := range []string{
		"/api/fees/quote?price=0.5",
		"/api/fees/quote?ticker=X&price=1.2",
		"/api/fees/quote?ticker=X&price=abc",
		"/api/fees/quote?ticker=X&price=0.5&count=-3",
	} {
		if rec, _ := do(t, srv, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", target, rec.Code)
		}
	}
}

func TestEvaluateClassifiesPair(t *testing.T) {
	body := `{"a":{"ticker":"` + mA + `","yes_bid":"0.60","yes_ask":"0.62"},
	          "b":{"ticker":"` + mB + `","yes_bid":"0.50","yes_ask":"0.52"}}`
	rec, out := do(t, newHarness().handler(), http.MethodPost, "/api/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate = %d %v", rec.Code, out)
	}
	rel := out["relationship"].(map[string]any)
	if rel["relationship_type"] != "subset" || rel["action"] == "" {
		t.Errorf("relationship = %v", rel)
	}
	opps := out["opportunities"].([]any)
	if len(opps) != 1 {
		t.Fatalf("opportunities = %v", opps)
	}
	if got := opps[0].(map[string]any)["expected_profit"]; got != "4.57" {
		t.Errorf("expected_profit = %v, want 4.57", got)
	}
}

func TestEvaluateLooksUpMissingQuotes(t *testing.T) {
	h := newHarness()
	h.lookup[mA] = arbitrage.Quote{YesBid: nd("0.60"), YesAsk: nd("0.62")}
	h.lookup[mB] = arbitrage.Quote{YesBid: nd("0.50"), YesAsk: nd("0.52")}
	srv := h.handler()

	body := `{"a":{"ticker":"` + mA + `"},"b":{"ticker":"` + mB + `"},"kind":"subset"}`
	rec, out := do(t, srv, http.MethodPost, "/api/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate = %d %v", rec.Code, out)
	}
	if opps := out["opportunities"].([]any); len(opps) != 1 {
		t.Errorf("opportunities = %v", opps)
	}

	body = `{"a":{"ticker":"` + mA + `"},"b":{"ticker":"UNKNOWN-1"},"kind":"subset"}`
	if rec, _ := do(t, srv, http.MethodPost, "/api/evaluate", body); rec.Code != http.StatusBadGateway {
		t.Errorf("failed lookup = %d, want 502", rec.Code)
	}
}

func TestEvaluateRejects(t *testing.T) {
	srv := newHarness().handler()
	cases := map[string]struct {
		body string
		want int
	}{
		"empty body":      {"", http.StatusBadRequest},
		"unknown field":   {`{"a":{"ticker":"X"},"b":{"ticker":"Y"},"extra":1}`, http.StatusBadRequest},
		"same market":     {`{"a":{"ticker":"` + mA + `"},"b":{"ticker":"` + mA + `"}}`, http.StatusBadRequest},
		"bad kind":        {`{"a":{"ticker":"` + mA + `"},"b":{"ticker":"` + mB + `"},"kind":"overlapping"}`, http.StatusBadRequest},
		"bad price":       {`{"a":{"ticker":"` + mA + `","yes_bid":"x"},"b":{"ticker":"` + mB + `","yes_bid":"0.5"},"kind":"subset"}`, http.StatusBadRequest},
		"price above one": {`{"kind":"disjoint","a":{"ticker":"` + mA + `","yes_bid":"1.50"},"b":{"ticker":"` + mB + `","yes_bid":"0.40"}}`, http.StatusBadRequest},
		"fractional cent": {`{"kind":"disjoint","a":{"ticker":"` + mA + `","yes_bid":"0.555"},"b":{"ticker":"` + mB + `","yes_bid":"0.40"}}`, http.StatusBadRequest},
		"zero price":      {`{"kind":"disjoint","a":{"ticker":"` + mA + `","yes_bid":"0"},"b":{"ticker":"` + mB + `","yes_bid":"0.40"}}`, http.StatusBadRequest},
		"unrelated pair":  {`{"a":{"ticker":"INX-25DEC31-T5000","yes_bid":"0.5"},"b":{"ticker":"` + mB + `","yes_bid":"0.5"}}`, http.StatusUnprocessableEntity},
		"unparsable kind": {`{"a":{"ticker":"HIGHNY-22DEC23-Tabc"},"b":{"ticker":"` + mB + `"}}`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _ := do(t, srv, http.MethodPost, "/api/evaluate", tc.body)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	h := newHarness()
	h.cfg.RateLimitPerMinute = 10
	h.limiter = fakeLimiter{allow: false}
	srv := h.handler()

	if rec, _ := do(t, srv, http.MethodGet, "/api/opportunities", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("limited = %d, want 429", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health should bypass the limit, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness()
	h.cfg.CORSOrigins = []string{"https://app.example"}
	h.cfg.APIKey = "secret"
	srv := h.handler()

	rec, _ := do(t, srv, http.MethodOptions, "/api/opportunities", "", "Origin", "https://app.example")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}

	rec, _ = do(t, srv, http.MethodOptions, "/api/opportunities", "", "Origin", "https://evil.example")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestRecovererCatchesPanics(t *testing.T) {
	srv := NewServer(Config{}, Handlers{
		Metrics: http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	}, discard).Handler()

	rec, _ := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("panic = %d, want 500", rec.Code)
	}
}
