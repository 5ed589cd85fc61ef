package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshiarb/internal/arbitrage"
	s3blob "github.com/alanyoungcy/kalshiarb/internal/blob/s3"
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/feed"
	"github.com/alanyoungcy/kalshiarb/internal/fees"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
	"github.com/alanyoungcy/kalshiarb/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshiarb/internal/server"
	"github.com/alanyoungcy/kalshiarb/internal/server/handler"
	"github.com/alanyoungcy/kalshiarb/internal/service"
)

// bookLoadParallelism bounds concurrent REST orderbook requests.
const bookLoadParallelism = 4

// engine is the detection core shared by the modes.
type engine struct {
	calc     *fees.Calculator
	eval     *arbitrage.Evaluator
	opps     *service.OpportunityService
	rels     *service.RelationService
	markets  *service.MarketService
	books    *orderbook.Books
	detector *arbitrage.Detector
}

func (a *App) newEngine(deps *Dependencies) (*engine, error) {
	calc := fees.NewCalculator(a.cfg.FeeSchedule())
	eval := arbitrage.NewEvaluator(calc, a.cfg.EvaluatorParams())
	strategies, err := arbitrage.DefaultRegistry(eval).Select(a.cfg.Engine.Strategies)
	if err != nil {
		return nil, err
	}

	e := &engine{
		calc:    calc,
		eval:    eval,
		opps:    service.NewOpportunityService(deps.OpportunityStore, deps.SignalBus, deps.Notifier, a.logger),
		rels:    service.NewRelationService(deps.RelationshipStore, a.logger),
		markets: service.NewMarketService(deps.Kalshi, a.logger),
		books:   orderbook.NewBooks(),
	}
	e.detector = arbitrage.NewDetector(arbitrage.DetectorConfig{
		Strategies:     strategies,
		Books:          e.books,
		Recorder:       e.opps,
		Metrics:        deps.Metrics,
		MaxChainLength: a.cfg.Engine.MaxChainLength,
		DedupWindow:    a.cfg.Engine.DedupWindow.Duration,
		Logger:         a.logger,
	})
	return e, nil
}

// bootstrap discovers the configured markets, builds the relationship graph
// and persists the relationships. It returns the tickers that take part in
// at least one relationship.
func (a *App) bootstrap(ctx context.Context, deps *Dependencies, e *engine) (service.Discovery, []string, error) {
	disc, err := e.markets.Discover(ctx, a.cfg.Kalshi.Series, a.cfg.Kalshi.MaxMarkets)
	if err != nil {
		return disc, nil, err
	}
	e.detector.Track(disc.Descriptors)
	e.rels.Summarize(ctx, disc.Descriptors)

	rels := e.detector.Relationships()
	chains := e.detector.Chains()
	deps.Metrics.SetGraph(len(rels), len(chains))
	if _, err := e.rels.Persist(ctx, rels); err != nil {
		a.logger.WarnContext(ctx, "persist relationships failed", slog.String("error", err.Error()))
	}

	a.logger.InfoContext(ctx, "relationship graph built",
		slog.Int("markets", len(disc.Descriptors)),
		slog.Int("skipped", disc.Skipped),
		slog.Int("relationships", len(rels)),
		slog.Int("chains", len(chains)),
	)
	return disc, relatedTickers(rels), nil
}

func relatedTickers(rels []domain.Relationship) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rels {
		for _, t := range []string{r.A.Ticker, r.B.Ticker} {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// ScanMode runs one REST scan: discover markets, load their order books,
// evaluate every relationship and chain, and record the opportunities.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode", slog.Any("series", a.cfg.Kalshi.Series))
	start := time.Now()

	e, err := a.newEngine(deps)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}

	if counts, err := e.markets.CountEvents(ctx, a.cfg.Kalshi.Series); err != nil {
		a.logger.WarnContext(ctx, "count events failed", slog.String("error", err.Error()))
	} else {
		for series, n := range counts {
			a.logger.InfoContext(ctx, "open events", slog.String("series", series), slog.Int("events", n))
		}
	}

	disc, tickers, err := a.bootstrap(ctx, deps, e)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}

	// Depth comes from the order books; the market listing only carries top
	// of book, which is used when no book could be loaded.
	var quotes arbitrage.Quotes
	loaded, err := e.markets.LoadBooks(ctx, e.books, tickers, bookLoadParallelism)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.WarnContext(ctx, "orderbook load failed, using market quotes", slog.String("error", err.Error()))
		quotes = service.Quotes(disc.Markets)
	}
	deps.Metrics.SetLiveBooks(e.books.Len())

	opps, err := e.detector.Scan(ctx, quotes)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}

	a.logger.InfoContext(ctx, "scan complete",
		slog.Int("books", loaded),
		slog.Int("opportunities", len(opps)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// StreamMode bootstraps from REST, then keeps the books current from the
// WebSocket feed and evaluates on every book update. A periodic full scan
// catches anything the incremental path missed.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stream mode", slog.Any("series", a.cfg.Kalshi.Series))

	e, err := a.newEngine(deps)
	if err != nil {
		return fmt.Errorf("stream mode: %w", err)
	}
	_, tickers, err := a.bootstrap(ctx, deps, e)
	if err != nil {
		return fmt.Errorf("stream mode: %w", err)
	}
	if len(tickers) == 0 {
		return errors.New("stream mode: no related markets to watch")
	}
	if _, err := e.markets.LoadBooks(ctx, e.books, tickers, bookLoadParallelism); err != nil {
		a.logger.WarnContext(ctx, "orderbook bootstrap failed, waiting for feed snapshots",
			slog.String("error", err.Error()),
		)
	}

	g, ctx := errgroup.WithContext(ctx)

	feeder := feed.New(feed.Config{
		Books:   e.books,
		Cache:   deps.BookCache,
		Metrics: deps.Metrics,
		Logger:  a.logger,
	})
	ws := kalshi.NewWSClient(a.cfg.Kalshi.WSURL, deps.Signer)
	feeder.Attach(ws)
	if err := ws.Connect(ctx); err != nil {
		return fmt.Errorf("stream mode: %w", err)
	}
	if err := ws.Subscribe(ctx, tickers); err != nil {
		_ = ws.Close()
		return fmt.Errorf("stream mode: %w", err)
	}
	a.logger.InfoContext(ctx, "subscribed to order books", slog.Int("markets", len(tickers)))

	g.Go(func() error {
		<-ctx.Done()
		return ws.Close()
	})
	g.Go(func() error {
		return feeder.Run(ctx)
	})
	g.Go(func() error {
		return e.detector.Run(ctx, feeder.Updates())
	})
	g.Go(func() error {
		return a.periodicScan(ctx, deps, e)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, e, true)
	}

	return g.Wait()
}

func (a *App) periodicScan(ctx context.Context, deps *Dependencies, e *engine) error {
	ticker := time.NewTicker(a.cfg.Engine.ScanInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			deps.Metrics.SetLiveBooks(e.books.Len())
			opps, err := e.detector.Scan(ctx, nil)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.WarnContext(ctx, "periodic scan failed", slog.String("error", err.Error()))
				continue
			}
			a.logger.DebugContext(ctx, "periodic scan",
				slog.Int("books", e.books.Len()),
				slog.Int("opportunities", len(opps)),
			)
		}
	}
}

// ServerMode serves the HTTP API over stored opportunities and
// relationships.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	e, err := a.newEngine(deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, e, false)
	return g.Wait()
}

// ArchiveMode moves opportunities older than the retention period to object
// storage. A run already in progress elsewhere is not an error.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return errors.New("archive mode: archiver not configured")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Store.RetentionDays)
	a.logger.InfoContext(ctx, "starting archive mode", slog.Time("cutoff", cutoff))

	n, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff)
	if s3blob.IsLockHeld(err) {
		a.logger.InfoContext(ctx, "archive already running elsewhere, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	if n > 0 && deps.Notifier.Enabled() {
		msg := fmt.Sprintf("Archived %d opportunities detected before %s", n, cutoff.Format(time.RFC3339))
		if err := deps.Notifier.NotifyAll(ctx, "Opportunity archive", msg); err != nil {
			a.logger.WarnContext(ctx, "archive notification failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// startHTTPServer registers the API on the errgroup. live selects the
// in-process books and detector over the store and cache.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, e *engine, live bool) {
	lookup := &quoteLookup{markets: e.markets}
	var books handler.BookSource
	var liveRels func() []domain.Relationship
	if live {
		lookup.books = e.books
		books = e.books
		liveRels = e.detector.Relationships
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(a.logger, deps.Checks...),
		Opportunities: handler.NewOpportunityHandler(e.opps, a.logger),
		Relationships: handler.NewRelationshipHandler(e.rels, liveRels, a.logger),
		Books:         handler.NewBookHandler(books, deps.BookCache, a.logger),
		Fees:          handler.NewFeeHandler(e.calc, a.logger),
		Evaluate:      handler.NewEvaluateHandler(e.eval, lookup, a.logger),
		Metrics:       deps.Metrics.Handler(),
		Limiter:       deps.RateLimiter,
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// quoteLookup prefers the live book of a market and falls back to the REST
// market quote.
type quoteLookup struct {
	books   *orderbook.Books
	markets *service.MarketService
}

func (q *quoteLookup) Quote(ctx context.Context, tk string) (arbitrage.Quote, error) {
	if q.books != nil {
		if b, ok := q.books.Get(tk); ok {
			return arbitrage.QuoteFromBook(&b), nil
		}
	}
	return q.markets.Quote(ctx, tk)
}
