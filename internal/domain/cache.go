package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// TopOfBook is the cached summary of one market's order book. Prices are
// decimal strings in dollars; empty means the collection is empty.
type TopOfBook struct {
	Ticker     string    `json:"ticker"`
	YesBid     string    `json:"yes_bid"`
	YesAsk     string    `json:"yes_ask"`
	NoBid      string    `json:"no_bid"`
	NoAsk      string    `json:"no_ask"`
	Sequence   int64     `json:"seq"`
	LastUpdate time.Time `json:"last_update"`
}

// BookCache mirrors top-of-book state for other processes.
type BookCache interface {
	SetTopOfBook(ctx context.Context, tob TopOfBook) error
	GetTopOfBook(ctx context.Context, ticker string) (TopOfBook, error)
}

// LockManager provides distributed mutual exclusion for singleton jobs.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
