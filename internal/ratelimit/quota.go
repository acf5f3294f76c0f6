package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuotaResult is the outcome of a daily quota check.
type QuotaResult struct {
	Allowed bool
	Used    int64
	Limit   int64
}

// QuotaTracker tracks daily AI request usage per user via Redis. A nil
// client passes every check.
type QuotaTracker struct {
	rdb *redis.Client
}

func NewQuotaTracker(rdb *redis.Client) *QuotaTracker {
	return &QuotaTracker{rdb: rdb}
}

func dailyQuotaKey(userID string) string {
	day := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("vitae:quota:daily:%s:%s", userID, day)
}

// Check reports whether the user is under their daily AI request limit.
func (q *QuotaTracker) Check(ctx context.Context, userID string, limit int64) (QuotaResult, error) {
	if q.rdb == nil {
		return QuotaResult{Allowed: true, Limit: limit}, nil
	}

	used, err := q.rdb.Get(ctx, dailyQuotaKey(userID)).Int64()
	if err != nil && err != redis.Nil {
		// Fail open on Redis errors
		return QuotaResult{Allowed: true, Limit: limit}, nil
	}

	return QuotaResult{
		Allowed: used < limit,
		Used:    used,
		Limit:   limit,
	}, nil
}

// Record adds one request to the user's daily counter.
func (q *QuotaTracker) Record(ctx context.Context, userID string) error {
	if q.rdb == nil {
		return nil
	}

	key := dailyQuotaKey(userID)
	pipe := q.rdb.Pipeline()
	pipe.Incr(ctx, key)
	// Expire at end of day UTC + 1 hour buffer
	now := time.Now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	pipe.Expire(ctx, key, endOfDay.Sub(now)+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// Usage returns the user's current daily usage without mutating it.
func (q *QuotaTracker) Usage(ctx context.Context, userID string) (int64, error) {
	if q.rdb == nil {
		return 0, nil
	}
	used, err := q.rdb.Get(ctx, dailyQuotaKey(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return used, err
}
