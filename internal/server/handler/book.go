package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
)

// BookSource returns a copy of a live order book.
type BookSource interface {
	Get(ticker string) (orderbook.Book, bool)
}

type bookResponse struct {
	Ticker     string            `json:"ticker"`
	Sequence   int64             `json:"seq"`
	LastUpdate time.Time         `json:"last_update"`
	YesBids    []orderbook.Level `json:"yes_bids"`
	YesAsks    []orderbook.Level `json:"yes_asks"`
	NoBids     []orderbook.Level `json:"no_bids"`
	NoAsks     []orderbook.Level `json:"no_asks"`
	Top        domain.TopOfBook  `json:"top"`
}

func nonNil(levels []orderbook.Level) []orderbook.Level {
	if levels == nil {
		return []orderbook.Level{}
	}
	return levels
}

// BookHandler serves order books from the live feed, falling back to the
// shared top-of-book cache when this process holds no book.
type BookHandler struct {
	books  BookSource
	cache  domain.BookCache
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler. Either source may be nil.
func NewBookHandler(books BookSource, cache domain.BookCache, logger *slog.Logger) *BookHandler {
	return &BookHandler{books: books, cache: cache, logger: logHandler(logger, "book")}
}

// Get returns the full book, or only the cached top of book.
// GET /api/books/{ticker}
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	tk := chi.URLParam(r, "ticker")

	if h.books != nil {
		if b, ok := h.books.Get(tk); ok {
			writeJSON(w, http.StatusOK, bookResponse{
				Ticker:     b.Ticker,
				Sequence:   b.Sequence,
				LastUpdate: b.LastUpdate,
				YesBids:    nonNil(b.YesBids),
				YesAsks:    nonNil(b.YesAsks),
				NoBids:     nonNil(b.NoBids),
				NoAsks:     nonNil(b.NoAsks),
				Top:        b.TopOfBook(),
			})
			return
		}
	}

	if h.cache != nil {
		tob, err := h.cache.GetTopOfBook(r.Context(), tk)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{"ticker": tk, "top": tob, "source": "cache"})
			return
		case !errors.Is(err, domain.ErrNotFound):
			h.logger.WarnContext(r.Context(), "book cache read failed",
				slog.String("ticker", tk),
				slog.String("error", err.Error()),
			)
		}
	}

	writeError(w, http.StatusNotFound, "no book for "+tk)
}
