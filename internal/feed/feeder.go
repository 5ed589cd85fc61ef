// Package feed routes exchange order-book messages into the live books,
// mirrors top of book to the cache and signals the detector.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/metrics"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
	"github.com/alanyoungcy/kalshiarb/internal/platform/kalshi"
)

// Source delivers decoded feed messages through callbacks.
type Source interface {
	OnSnapshot(h kalshi.SnapshotHandler)
	OnDelta(h kalshi.DeltaHandler)
	OnError(h kalshi.ErrorHandler)
}

// Config wires a Feeder. Cache and Metrics are optional.
type Config struct {
	Books   *orderbook.Books
	Cache   domain.BookCache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Buffer sizes the update and mirror queues.
	Buffer int
}

// Feeder applies feed messages to the books. Updated tickers are offered on
// Updates without blocking the feed; a full queue drops the signal.
type Feeder struct {
	books   *orderbook.Books
	cache   domain.BookCache
	metrics *metrics.Metrics
	logger  *slog.Logger

	updates chan string
	mirror  chan domain.TopOfBook
}

// New creates a Feeder.
func New(cfg Config) *Feeder {
	buf := cfg.Buffer
	if buf <= 0 {
		buf = 1024
	}
	return &Feeder{
		books:   cfg.Books,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With(slog.String("component", "feed")),
		updates: make(chan string, buf),
		mirror:  make(chan domain.TopOfBook, buf),
	}
}

// Attach registers the feeder's handlers on src.
func (f *Feeder) Attach(src Source) {
	src.OnSnapshot(f.HandleSnapshot)
	src.OnDelta(f.HandleDelta)
	src.OnError(f.HandleError)
}

// Updates returns the channel of tickers whose book changed.
func (f *Feeder) Updates() <-chan string {
	return f.updates
}

// HandleSnapshot replaces a market's book.
func (f *Feeder) HandleSnapshot(msg orderbook.Snapshot) {
	if err := f.books.ApplySnapshot(msg); err != nil {
		f.reject(msg.MarketTicker, err)
		return
	}
	f.accepted(orderbook.TypeSnapshot, msg.MarketTicker)
}

// HandleDelta adjusts one level of a market's book.
func (f *Feeder) HandleDelta(msg orderbook.Delta) {
	if err := f.books.ApplyDelta(msg); err != nil {
		f.reject(msg.MarketTicker, err)
		return
	}
	f.accepted(orderbook.TypeDelta, msg.MarketTicker)
}

// HandleError records a transport or decode failure reported by the source.
func (f *Feeder) HandleError(err error) {
	switch {
	case errors.Is(err, domain.ErrWSDisconnect):
		f.metrics.RecordError("kalshi_ws", "disconnect")
		f.logger.Warn("feed disconnected", slog.String("error", err.Error()))
	case errors.Is(err, domain.ErrInvalidMessage):
		f.metrics.RecordFeedRejected("decode")
		f.logger.Warn("feed message rejected",
			slog.String("reason", "decode"),
			slog.String("error", err.Error()),
		)
	default:
		f.metrics.RecordError("kalshi_ws", "other")
		f.logger.Error("feed error", slog.String("error", err.Error()))
	}
}

func (f *Feeder) accepted(msgType, ticker string) {
	f.metrics.RecordFeedMessage(msgType)
	f.metrics.SetLiveBooks(f.books.Len())

	select {
	case f.updates <- ticker:
	default:
		f.logger.Debug("update queue full, dropping signal", slog.String("ticker", ticker))
	}

	if f.cache == nil {
		return
	}
	b, ok := f.books.Get(ticker)
	if !ok {
		return
	}
	select {
	case f.mirror <- b.TopOfBook():
	default:
		f.metrics.RecordError("feed", "mirror_dropped")
	}
}

func (f *Feeder) reject(ticker string, err error) {
	reason := RejectReason(err)
	f.metrics.RecordFeedRejected(reason)
	f.logger.Warn("feed message rejected",
		slog.String("ticker", ticker),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
}

// RejectReason classifies a rejected message for logs and metrics.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrStaleSequence):
		return "stale_sequence"
	case errors.Is(err, domain.ErrUnknownMarket):
		return "unknown_market"
	case errors.Is(err, domain.ErrInvalidMessage):
		return "invalid_message"
	default:
		return "other"
	}
}

// Run writes queued top-of-book mirrors to the cache until ctx is cancelled.
// Only the latest state per ticker is written when several are queued.
func (f *Feeder) Run(ctx context.Context) error {
	if f.cache == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	f.logger.Info("book mirror started")
	defer f.logger.Info("book mirror stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tob := <-f.mirror:
			latest := map[string]domain.TopOfBook{tob.Ticker: tob}
		drain:
			for {
				select {
				case more := <-f.mirror:
					latest[more.Ticker] = more
				default:
					break drain
				}
			}
			for _, t := range latest {
				f.write(ctx, t)
			}
		}
	}
}

func (f *Feeder) write(ctx context.Context, tob domain.TopOfBook) {
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := f.cache.SetTopOfBook(wctx, tob); err != nil {
		f.metrics.RecordError("feed", "mirror")
		f.logger.Debug("book mirror write failed",
			slog.String("ticker", tob.Ticker),
			slog.String("error", err.Error()),
		)
	}
}
