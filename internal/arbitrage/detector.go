package arbitrage

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/metrics"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
	"github.com/alanyoungcy/kalshiarb/internal/relation"
)

// Recorder consumes detected opportunities.
type Recorder interface {
	Record(ctx context.Context, opp domain.ArbitrageOpportunity) error
}

// Detector runs the selected strategies over the relationships among the
// tracked markets, using quotes from the live books.
type Detector struct {
	strategies []Strategy
	books      *orderbook.Books
	recorder   Recorder
	metrics    *metrics.Metrics
	logger     *slog.Logger
	maxChain   int
	dedup      time.Duration
	now        func() time.Time

	mu       sync.Mutex
	engine   *relation.Engine
	markets  []domain.MarketDescriptor
	tracked  map[string]bool
	rels     []domain.Relationship
	chains   [][]domain.Relationship
	byTicker map[string][]int // ticker -> indexes into rels
	chainsBy map[string][]int // ticker -> indexes into chains
	seen     map[string]time.Time
}

// DetectorConfig configures the detector.
type DetectorConfig struct {
	Strategies     []Strategy
	Books          *orderbook.Books
	Recorder       Recorder
	Metrics        *metrics.Metrics
	MaxChainLength int
	// DedupWindow suppresses re-recording an identical trade set; opportunities
	// with an expiry use that instead.
	DedupWindow time.Duration
	Logger      *slog.Logger
}

// NewDetector creates a detector that runs the given strategies.
func NewDetector(cfg DetectorConfig) *Detector {
	maxChain := cfg.MaxChainLength
	if maxChain <= 0 {
		maxChain = relation.DefaultMaxChainLength
	}
	return &Detector{
		strategies: cfg.Strategies,
		books:      cfg.Books,
		recorder:   cfg.Recorder,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With(slog.String("component", "arb_detector")),
		maxChain:   maxChain,
		dedup:      cfg.DedupWindow,
		now:        time.Now,
		engine:     relation.NewEngine(),
		tracked:    make(map[string]bool),
		seen:       make(map[string]time.Time),
	}
}

// Track adds markets to the tracked set and rebuilds the relationship graph.
// Markets already tracked are ignored.
func (d *Detector) Track(markets []domain.MarketDescriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()

	added := 0
	for _, m := range markets {
		if d.tracked[m.Ticker] {
			continue
		}
		d.tracked[m.Ticker] = true
		d.markets = append(d.markets, m)
		added++
	}
	if added == 0 {
		return
	}

	d.rels = d.engine.FindRelationships(d.markets)
	d.chains = d.engine.FindChains(d.markets, d.maxChain)

	d.byTicker = make(map[string][]int)
	for i, r := range d.rels {
		d.byTicker[r.A.Ticker] = append(d.byTicker[r.A.Ticker], i)
		d.byTicker[r.B.Ticker] = append(d.byTicker[r.B.Ticker], i)
	}
	d.chainsBy = make(map[string][]int)
	for i, c := range d.chains {
		for _, t := range chainTickers(c) {
			d.chainsBy[t] = append(d.chainsBy[t], i)
		}
	}

	d.metrics.SetGraph(len(d.rels), len(d.chains))
	d.logger.Info("relationship graph rebuilt",
		slog.Int("markets", len(d.markets)),
		slog.Int("relationships", len(d.rels)),
		slog.Int("chains", len(d.chains)),
	)
}

// Relationships returns the relationships among the tracked markets.
func (d *Detector) Relationships() []domain.Relationship {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.rels)
}

// Chains returns the implication chains among the tracked markets.
func (d *Detector) Chains() [][]domain.Relationship {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.chains)
}

// Scan evaluates every relationship and chain against quotes and records what
// it finds. When quotes is nil they are read from the live books.
func (d *Detector) Scan(ctx context.Context, quotes Quotes) ([]domain.ArbitrageOpportunity, error) {
	d.mu.Lock()
	in := Input{Relationships: slices.Clone(d.rels), Chains: slices.Clone(d.chains), Quotes: quotes}
	d.mu.Unlock()

	if in.Quotes == nil {
		in.Quotes = d.quotes(inputTickers(in))
	}
	return d.run(ctx, in)
}

// OnBookUpdate evaluates only the relationships and chains touching ticker.
func (d *Detector) OnBookUpdate(ctx context.Context, ticker string) ([]domain.ArbitrageOpportunity, error) {
	d.mu.Lock()
	var in Input
	for _, i := range d.byTicker[ticker] {
		in.Relationships = append(in.Relationships, d.rels[i])
	}
	for _, i := range d.chainsBy[ticker] {
		in.Chains = append(in.Chains, d.chains[i])
	}
	d.mu.Unlock()

	if len(in.Relationships) == 0 && len(in.Chains) == 0 {
		return nil, nil
	}
	in.Quotes = d.quotes(inputTickers(in))
	return d.run(ctx, in)
}

// Run evaluates on every ticker received from updates. It blocks until ctx is
// cancelled or updates is closed.
func (d *Detector) Run(ctx context.Context, updates <-chan string) error {
	names := make([]string, len(d.strategies))
	for i, s := range d.strategies {
		names[i] = s.Name()
	}
	d.logger.Info("arb detector started", slog.Any("strategies", names))
	defer d.logger.Info("arb detector stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ticker, ok := <-updates:
			if !ok {
				return nil
			}
			if _, err := d.OnBookUpdate(ctx, ticker); err != nil {
				d.logger.Warn("arb detector: evaluation failed",
					slog.String("ticker", ticker),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (d *Detector) run(ctx context.Context, in Input) ([]domain.ArbitrageOpportunity, error) {
	start := time.Now()
	var found []domain.ArbitrageOpportunity
	for _, s := range d.strategies {
		found = append(found, s.Detect(in)...)
	}
	d.metrics.RecordEvalLatency(float64(time.Since(start).Microseconds()) / 1000)

	var recorded []domain.ArbitrageOpportunity
	for _, opp := range found {
		if d.duplicate(opp) {
			continue
		}
		if d.recorder != nil {
			if err := d.recorder.Record(ctx, opp); err != nil {
				d.logger.Warn("arb record failed", slog.String("opp_id", opp.ID), slog.String("error", err.Error()))
				d.metrics.RecordError("arb_detector", "record")
				continue
			}
		}
		d.metrics.RecordOpportunity(string(opp.Strategy))
		recorded = append(recorded, opp)
	}
	return recorded, ctx.Err()
}

// duplicate reports whether the same trade set was recorded recently and
// otherwise remembers opp.
func (d *Detector) duplicate(opp domain.ArbitrageOpportunity) bool {
	now := d.now()
	key := opp.Fingerprint()

	d.mu.Lock()
	defer d.mu.Unlock()
	for k, until := range d.seen {
		if now.After(until) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return true
	}
	until := now.Add(d.dedup)
	if opp.ExpiresAt != nil {
		until = *opp.ExpiresAt
	}
	if until.After(now) {
		d.seen[key] = until
	}
	return false
}

func (d *Detector) quotes(tickers []string) Quotes {
	q := make(Quotes, len(tickers))
	if d.books == nil {
		return q
	}
	for _, t := range tickers {
		if b, ok := d.books.Get(t); ok {
			q[t] = QuoteFromBook(&b)
		}
	}
	return q
}

func inputTickers(in Input) []string {
	set := make(map[string]bool)
	for _, r := range in.Relationships {
		set[r.A.Ticker] = true
		set[r.B.Ticker] = true
	}
	for _, c := range in.Chains {
		for _, t := range chainTickers(c) {
			set[t] = true
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func chainTickers(c []domain.Relationship) []string {
	if len(c) == 0 {
		return nil
	}
	head, _ := implication(c[0])
	out := []string{head}
	for _, r := range c {
		_, next := implication(r)
		out = append(out, next)
	}
	return out
}
