package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshiarb/internal/arbitrage"
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
	"github.com/alanyoungcy/kalshiarb/internal/platform/kalshi"
)

// MarketSource is the part of the Kalshi REST client the market service
// uses.
type MarketSource interface {
	ListAllMarkets(ctx context.Context, p kalshi.MarketsParams, limit int) ([]kalshi.Market, error)
	GetMarket(ctx context.Context, ticker string) (kalshi.Market, error)
	GetOrderbook(ctx context.Context, ticker string, depth int) (kalshi.Orderbook, error)
	GetEvents(ctx context.Context, p kalshi.EventsParams) (kalshi.EventsPage, error)
}

// MarketService discovers markets over REST and turns them into descriptors,
// quotes and order books.
type MarketService struct {
	source MarketSource
	logger *slog.Logger
	now    func() time.Time
}

// NewMarketService creates a MarketService.
func NewMarketService(source MarketSource, logger *slog.Logger) *MarketService {
	return &MarketService{
		source: source,
		logger: logger.With(slog.String("component", "market_service")),
		now:    time.Now,
	}
}

// Discovery is the result of a market discovery pass.
type Discovery struct {
	Markets     []kalshi.Market
	Descriptors []domain.MarketDescriptor
	Skipped     int // unparsable tickers or past close time
}

// Tickers returns the tickers of the parsed markets.
func (d Discovery) Tickers() []string {
	out := make([]string, len(d.Descriptors))
	for i, m := range d.Descriptors {
		out[i] = m.Ticker
	}
	return out
}

// Discover lists the open markets of each series, up to maxMarkets in total,
// and parses their tickers.
func (s *MarketService) Discover(ctx context.Context, series []string, maxMarkets int) (Discovery, error) {
	var d Discovery
	seen := make(map[string]bool)
	now := s.now()

	for _, sr := range series {
		remaining := 0
		if maxMarkets > 0 {
			remaining = maxMarkets - len(d.Markets)
			if remaining <= 0 {
				break
			}
		}
		markets, err := s.source.ListAllMarkets(ctx, kalshi.MarketsParams{
			Limit:        200,
			SeriesTicker: sr,
			Status:       "open",
		}, remaining)
		if err != nil {
			return d, fmt.Errorf("market_service: list %s: %w", sr, err)
		}

		parsed := 0
		for _, m := range markets {
			if seen[m.Ticker] {
				continue
			}
			seen[m.Ticker] = true
			if closes := kalshi.ParseTime(m.CloseTime); !closes.IsZero() && closes.Before(now) {
				d.Skipped++
				continue
			}
			desc, err := m.Descriptor()
			if err != nil {
				s.logger.DebugContext(ctx, "skipping unparsable market",
					slog.String("ticker", m.Ticker),
					slog.String("error", err.Error()),
				)
				d.Skipped++
				continue
			}
			d.Markets = append(d.Markets, m)
			d.Descriptors = append(d.Descriptors, desc)
			parsed++
		}
		s.logger.InfoContext(ctx, "series discovered",
			slog.String("series", sr),
			slog.Int("listed", len(markets)),
			slog.Int("parsed", parsed),
		)
	}
	return d, nil
}

// CountEvents returns the number of open events per series.
func (s *MarketService) CountEvents(ctx context.Context, series []string) (map[string]int, error) {
	counts := make(map[string]int, len(series))
	for _, sr := range series {
		p := kalshi.EventsParams{Limit: 200, SeriesTicker: sr, Status: "open"}
		for {
			page, err := s.source.GetEvents(ctx, p)
			if err != nil {
				return counts, fmt.Errorf("market_service: events %s: %w", sr, err)
			}
			counts[sr] += len(page.Events)
			if page.Cursor == "" || len(page.Events) == 0 {
				break
			}
			p.Cursor = page.Cursor
		}
	}
	return counts, nil
}

// Quotes builds evaluator quotes from the REST top of book of markets.
func Quotes(markets []kalshi.Market) arbitrage.Quotes {
	q := make(arbitrage.Quotes, len(markets))
	for _, m := range markets {
		q[m.Ticker] = m.Quote()
	}
	return q
}

// Quote fetches a single market and returns its REST quote.
func (s *MarketService) Quote(ctx context.Context, ticker string) (arbitrage.Quote, error) {
	m, err := s.source.GetMarket(ctx, ticker)
	if err != nil {
		return arbitrage.Quote{}, fmt.Errorf("market_service: quote %s: %w", ticker, err)
	}
	return m.Quote(), nil
}

// LoadBooks fetches the REST order book of every ticker into books, with at
// most parallel requests in flight. Failures for individual tickers are
// logged and counted; the error is non-nil only when ctx ends or every
// ticker failed.
func (s *MarketService) LoadBooks(ctx context.Context, books *orderbook.Books, tickers []string, parallel int) (int, error) {
	if parallel <= 0 {
		parallel = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	errs := make([]error, len(tickers))
	for i, t := range tickers {
		g.Go(func() error {
			ob, err := s.source.GetOrderbook(gctx, t, 0)
			if err == nil {
				err = books.ApplySnapshot(ob.Snapshot())
			}
			if err != nil {
				errs[i] = err
				s.logger.WarnContext(gctx, "orderbook load failed",
					slog.String("ticker", t),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	loaded := 0
	for _, err := range errs {
		if err == nil {
			loaded++
		}
	}
	if loaded == 0 && len(tickers) > 0 {
		return 0, fmt.Errorf("market_service: load books: %w", errors.Join(errs...))
	}
	return loaded, nil
}
