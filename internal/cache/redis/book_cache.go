package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// topOfBookTTL expires mirrors of markets that stopped updating.
const topOfBookTTL = 10 * time.Minute

// BookCache implements domain.BookCache with one hash per market.
//
// Key schema:
//
//	tob:{ticker} - hash with yes_bid, yes_ask, no_bid, no_ask, seq, ts
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func topOfBookKey(ticker string) string { return "tob:" + ticker }

// SetTopOfBook replaces the mirrored top of book of tob.Ticker.
func (bc *BookCache) SetTopOfBook(ctx context.Context, tob domain.TopOfBook) error {
	key := topOfBookKey(tob.Ticker)
	pipe := bc.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, topOfBookFields(tob))
	pipe.Expire(ctx, key, topOfBookTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set top of book %s: %w", tob.Ticker, err)
	}
	return nil
}

// GetTopOfBook returns the mirrored top of book, or domain.ErrNotFound.
func (bc *BookCache) GetTopOfBook(ctx context.Context, ticker string) (domain.TopOfBook, error) {
	vals, err := bc.rdb.HGetAll(ctx, topOfBookKey(ticker)).Result()
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("redis: get top of book %s: %w", ticker, err)
	}
	if len(vals) == 0 {
		return domain.TopOfBook{}, fmt.Errorf("redis: top of book %s: %w", ticker, domain.ErrNotFound)
	}
	return topOfBookFromFields(ticker, vals), nil
}

func topOfBookFields(tob domain.TopOfBook) map[string]any {
	return map[string]any{
		"yes_bid": tob.YesBid,
		"yes_ask": tob.YesAsk,
		"no_bid":  tob.NoBid,
		"no_ask":  tob.NoAsk,
		"seq":     strconv.FormatInt(tob.Sequence, 10),
		"ts":      strconv.FormatInt(tob.LastUpdate.UnixMilli(), 10),
	}
}

func topOfBookFromFields(ticker string, vals map[string]string) domain.TopOfBook {
	tob := domain.TopOfBook{
		Ticker: ticker,
		YesBid: vals["yes_bid"],
		YesAsk: vals["yes_ask"],
		NoBid:  vals["no_bid"],
		NoAsk:  vals["no_ask"],
	}
	tob.Sequence, _ = strconv.ParseInt(vals["seq"], 10, 64)
	if ms, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		tob.LastUpdate = time.UnixMilli(ms).UTC()
	}
	return tob
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
