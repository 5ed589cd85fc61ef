package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultStreamLength bounds opportunity streams when no explicit length is
// configured. Trimming is approximate (XADD MAXLEN ~).
const DefaultStreamLength int64 = 10000

// SignalBus fans opportunities out over pub/sub channels and keeps a bounded,
// replayable copy in streams. Each stream entry carries the raw record under
// "record" and the append time in unix milliseconds under "ts".
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
	now    func() time.Time
}

func NewSignalBus(c *Client, maxLen int64) *SignalBus {
	if maxLen <= 0 {
		maxLen = DefaultStreamLength
	}
	return &SignalBus{rdb: c.Underlying(), maxLen: maxLen, now: time.Now}
}

func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.maxLen,
		Approx: true,
		Values: []any{
			"record", payload,
			"ts", strconv.FormatInt(sb.now().UnixMilli(), 10),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd %s (maxlen ~%d): %w", stream, sb.maxLen, err)
	}
	return nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
