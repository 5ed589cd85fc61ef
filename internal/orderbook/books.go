package orderbook

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// Books is the set of live order books indexed by ticker. Each market should
// be fed by a single stream; the lock only protects the map and readers.
type Books struct {
	mu    sync.RWMutex
	books map[string]*Book
	now   func() time.Time
}

// NewBooks returns an empty book set using the wall clock.
func NewBooks() *Books {
	return &Books{books: make(map[string]*Book), now: time.Now}
}

// SetClock overrides the clock used to stamp updates.
func (s *Books) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// ApplySnapshot creates or replaces the book of msg.MarketTicker.
func (s *Books) ApplySnapshot(msg Snapshot) error {
	if msg.MarketTicker == "" {
		return fmt.Errorf("orderbook: snapshot without market ticker: %w", domain.ErrInvalidMessage)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[msg.MarketTicker]
	if !ok {
		b = &Book{}
	}
	if err := b.ApplySnapshot(msg, s.now()); err != nil {
		return err
	}
	s.books[msg.MarketTicker] = b
	return nil
}

// ApplyDelta updates an existing book. Deltas for markets without a snapshot
// return domain.ErrUnknownMarket.
func (s *Books) ApplyDelta(msg Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[msg.MarketTicker]
	if !ok {
		return fmt.Errorf("orderbook: delta for %q: %w", msg.MarketTicker, domain.ErrUnknownMarket)
	}
	return b.ApplyDelta(msg, s.now())
}

// Get returns a copy of the book for ticker.
func (s *Books) Get(ticker string) (Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[ticker]
	if !ok {
		return Book{}, false
	}
	return b.Clone(), true
}

// Tickers returns the tickers with a live book, sorted.
func (s *Books) Tickers() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.books))
	for t := range s.books {
		out = append(out, t)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Len is the number of live books.
func (s *Books) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}
