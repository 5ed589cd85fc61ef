package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
	"github.com/alanyoungcy/kalshiarb/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshiarb/internal/ticker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memOpportunityStore struct {
	opps []domain.ArbitrageOpportunity
	err  error
}

func (s *memOpportunityStore) Insert(_ context.Context, opp domain.ArbitrageOpportunity) error {
	if s.err != nil {
		return s.err
	}
	s.opps = append(s.opps, opp)
	return nil
}

func (s *memOpportunityStore) GetByID(_ context.Context, id string) (domain.ArbitrageOpportunity, error) {
	for _, o := range s.opps {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.ArbitrageOpportunity{}, domain.ErrNotFound
}

func (s *memOpportunityStore) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.ArbitrageOpportunity, error) {
	out := s.opps
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *memOpportunityStore) ListBefore(context.Context, time.Time, int) ([]domain.ArbitrageOpportunity, error) {
	return nil, nil
}

func (s *memOpportunityStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.published == nil {
		b.published = make(map[string][][]byte)
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	if b.streamed == nil {
		b.streamed = make(map[string][][]byte)
	}
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

type failingNotifier struct{ calls int }

func (n *failingNotifier) NotifyOpportunity(context.Context, domain.ArbitrageOpportunity) error {
	n.calls++
	return errors.New("telegram down")
}

func sampleOpportunity() domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:              "opp-1",
		Strategy:        domain.StrategyDisjoint,
		Markets:         []string{"KXFED-23DEC-E2", "KXFED-23DEC-E3"},
		Size:            100,
		GrossProfit:     decimal.RequireFromString("10"),
		TotalFees:       decimal.RequireFromString("3.5"),
		NetProfit:       decimal.RequireFromString("6.5"),
		RequiredCapital: decimal.Zero,
		Confidence:      1,
		DetectedAt:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestOpportunityServiceRecordFansOut(t *testing.T) {
	store := &memOpportunityStore{}
	bus := &memBus{}
	n := &failingNotifier{}
	svc := NewOpportunityService(store, bus, n, discardLogger())

	if err := svc.Record(context.Background(), sampleOpportunity()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(store.opps) != 1 {
		t.Fatalf("stored %d opportunities", len(store.opps))
	}
	if n.calls != 1 {
		t.Errorf("notifier called %d times", n.calls)
	}
	if len(bus.published[OpportunityChannel]) != 1 || len(bus.streamed[OpportunityStream]) != 1 {
		t.Fatalf("bus = %+v", bus)
	}

	var rec domain.OpportunityRecord
	if err := json.Unmarshal(bus.published[OpportunityChannel][0], &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.OpportunityID != "opp-1" || rec.ExpectedProfit != "6.50" || rec.StrategyType != domain.StrategyDisjoint {
		t.Errorf("record = %+v", rec)
	}
}

func TestOpportunityServiceStoreFailure(t *testing.T) {
	bus := &memBus{}
	svc := NewOpportunityService(&memOpportunityStore{err: errors.New("disk full")}, bus, nil, discardLogger())
	if err := svc.Record(context.Background(), sampleOpportunity()); err == nil {
		t.Fatal("expected store error")
	}
	if len(bus.published) != 0 {
		t.Error("published an opportunity that was not stored")
	}
}

func TestOpportunityServiceWithoutStore(t *testing.T) {
	svc := NewOpportunityService(nil, nil, nil, discardLogger())
	if err := svc.Record(context.Background(), sampleOpportunity()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := svc.Get(context.Background(), "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
	opps, err := svc.ListRecent(context.Background(), 10)
	if err != nil || len(opps) != 0 {
		t.Errorf("ListRecent = %v, %v", opps, err)
	}
}

type memRelationshipStore struct {
	recs map[[2]string]domain.RelationshipRecord
}

func (s *memRelationshipStore) Upsert(_ context.Context, r domain.RelationshipRecord) error {
	if s.recs == nil {
		s.recs = make(map[[2]string]domain.RelationshipRecord)
	}
	s.recs[[2]string{r.TickerA, r.TickerB}] = r
	return nil
}

func (s *memRelationshipStore) List(context.Context, domain.ListOpts) ([]domain.RelationshipRecord, error) {
	var out []domain.RelationshipRecord
	for _, r := range s.recs {
		out = append(out, r)
	}
	return out, nil
}

func descriptors(t *testing.T, tickers ...string) []domain.MarketDescriptor {
	t.Helper()
	out := make([]domain.MarketDescriptor, len(tickers))
	for i, tk := range tickers {
		d, err := ticker.Parse(tk, "")
		if err != nil {
			t.Fatalf("parse %s: %v", tk, err)
		}
		out[i] = d
	}
	return out
}

func TestRelationServicePersist(t *testing.T) {
	store := &memRelationshipStore{}
	svc := NewRelationService(store, discardLogger())
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	m := descriptors(t, "KXFED-23DEC-E2", "KXFED-23DEC-E3")
	rels := []domain.Relationship{{A: m[0], B: m[1], Kind: domain.RelationDisjoint, Confidence: 1, Reasoning: "exact values differ"}}

	n, err := svc.Persist(context.Background(), rels)
	if err != nil || n != 1 {
		t.Fatalf("Persist = %d, %v", n, err)
	}
	got := store.recs[[2]string{"KXFED-23DEC-E2", "KXFED-23DEC-E3"}]
	if got.Kind != domain.RelationDisjoint || !got.DiscoveredAt.Equal(at) {
		t.Errorf("record = %+v", got)
	}
}

func TestRelationServiceSummarize(t *testing.T) {
	svc := NewRelationService(nil, discardLogger())
	m := descriptors(t,
		"KXFED-23DEC-E2", "KXFED-23DEC-E3",
		"INX-24JAN05-T400", "INX-24JAN05-T300",
		"HIGHNY-22DEC23-B50",
	)
	sum := svc.Summarize(context.Background(), m)
	if sum.FedRates != 1 || sum.Indexes != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

type fakeSource struct {
	mu      sync.Mutex
	markets map[string][]kalshi.Market
	books   map[string]kalshi.Orderbook
	events  []kalshi.EventsPage
	calls   int
}

func (f *fakeSource) ListAllMarkets(_ context.Context, p kalshi.MarketsParams, limit int) ([]kalshi.Market, error) {
	out := f.markets[p.SeriesTicker]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSource) GetMarket(_ context.Context, tk string) (kalshi.Market, error) {
	for _, ms := range f.markets {
		for _, m := range ms {
			if m.Ticker == tk {
				return m, nil
			}
		}
	}
	return kalshi.Market{}, domain.ErrNotFound
}

func (f *fakeSource) GetOrderbook(_ context.Context, tk string, _ int) (kalshi.Orderbook, error) {
	ob, ok := f.books[tk]
	if !ok {
		return kalshi.Orderbook{}, domain.ErrNotFound
	}
	ob.Ticker = tk
	return ob, nil
}

func (f *fakeSource) GetEvents(_ context.Context, p kalshi.EventsParams) (kalshi.EventsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := f.events[f.calls%len(f.events)]
	f.calls++
	return page, nil
}

func TestMarketServiceDiscover(t *testing.T) {
	src := &fakeSource{markets: map[string][]kalshi.Market{
		"KXFED": {
			{Ticker: "KXFED-23DEC-E2", Title: "2%", YesAsk: 40, NoAsk: 62},
			{Ticker: "KXFED-23DEC-E3", Title: "3%", YesAsk: 45},
			{Ticker: "KXFED-23DEC-Tabc", Title: "bad"},
			{Ticker: "KXFED-22JAN-E2", CloseTime: "2022-01-01T00:00:00Z"},
		},
		"INX": {
			{Ticker: "INX-24JAN05-T400"},
			{Ticker: "INX-24JAN05-T300"},
		},
	}}
	svc := NewMarketService(src, discardLogger())
	svc.now = func() time.Time { return time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC) }

	d, err := svc.Discover(context.Background(), []string{"KXFED", "INX"}, 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(d.Descriptors) != 4 || d.Skipped != 2 {
		t.Fatalf("descriptors=%v skipped=%d", d.Tickers(), d.Skipped)
	}
	if d.Tickers()[2] != "INX-24JAN05-T400" {
		t.Errorf("tickers = %v", d.Tickers())
	}

	capped, err := svc.Discover(context.Background(), []string{"KXFED", "INX"}, 2)
	if err != nil {
		t.Fatalf("Discover capped: %v", err)
	}
	if got := capped.Tickers(); len(got) != 2 || got[1] != "KXFED-23DEC-E3" {
		t.Errorf("capped tickers = %v", got)
	}

	q := Quotes(d.Markets)
	yes := q["KXFED-23DEC-E2"].YesAsk
	if !yes.Valid || !yes.Decimal.Equal(decimal.RequireFromString("0.40")) {
		t.Errorf("yes ask = %v", yes)
	}
	if q["KXFED-23DEC-E3"].NoAsk.Valid {
		t.Error("zero cents should be no quote")
	}

	single, err := svc.Quote(context.Background(), "KXFED-23DEC-E3")
	if err != nil || !single.YesAsk.Decimal.Equal(decimal.RequireFromString("0.45")) {
		t.Errorf("Quote = %+v, %v", single, err)
	}
}

func TestMarketServiceCountEvents(t *testing.T) {
	src := &fakeSource{events: []kalshi.EventsPage{
		{Events: []kalshi.Event{{EventTicker: "E1"}, {EventTicker: "E2"}}, Cursor: "next"},
		{Events: []kalshi.Event{{EventTicker: "E3"}}},
	}}
	svc := NewMarketService(src, discardLogger())
	counts, err := svc.CountEvents(context.Background(), []string{"KXFED"})
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if counts["KXFED"] != 3 {
		t.Errorf("counts = %v", counts)
	}
}

func TestMarketServiceLoadBooks(t *testing.T) {
	src := &fakeSource{books: map[string]kalshi.Orderbook{
		"A": {Yes: [][2]int64{{40, 10}}, No: [][2]int64{{58, 5}}},
		"B": {Yes: [][2]int64{{120, 1}}},
	}}
	svc := NewMarketService(src, discardLogger())
	books := orderbook.NewBooks()

	n, err := svc.LoadBooks(context.Background(), books, []string{"A", "B", "C"}, 2)
	if err != nil {
		t.Fatalf("LoadBooks: %v", err)
	}
	if n != 1 {
		t.Errorf("loaded %d books, want 1", n)
	}
	b, ok := books.Get("A")
	if !ok {
		t.Fatal("book A missing")
	}
	if best, ok := b.BestAsk(domain.PositionYes); !ok || !best.Equal(decimal.RequireFromString("0.40")) {
		t.Errorf("best yes ask = %v", best)
	}

	if _, err := svc.LoadBooks(context.Background(), orderbook.NewBooks(), []string{"C"}, 1); err == nil {
		t.Error("expected error when every book fails")
	}
}
