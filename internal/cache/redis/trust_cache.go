package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/barterloop/barterloop/internal/domain"
)

// TrustCache implements domain.TrustCache using Redis hashes. Each user's
// score is stored at key "trust:{userID}" with fields "score" and "ts"
// (Unix nanosecond timestamp), expiring after ttl.
type TrustCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTrustCache creates a TrustCache backed by the given Client.
func NewTrustCache(c *Client, ttl time.Duration) *TrustCache {
	return &TrustCache{rdb: c.Underlying(), ttl: ttl}
}

func trustKey(userID uuid.UUID) string {
	return "trust:" + userID.String()
}

// SetScore stores the latest computed trust score for a user.
func (tc *TrustCache) SetScore(ctx context.Context, userID uuid.UUID, score int, ts time.Time) error {
	key := trustKey(userID)
	fields := map[string]interface{}{
		"score": strconv.Itoa(score),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := tc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if tc.ttl > 0 {
		pipe.Expire(ctx, key, tc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set trust score %s: %w", userID, err)
	}
	return nil
}

// GetScore retrieves the cached trust score and its computation time for a
// user. It returns domain.ErrNotFound when no entry exists.
func (tc *TrustCache) GetScore(ctx context.Context, userID uuid.UUID) (int, time.Time, error) {
	vals, err := tc.rdb.HGetAll(ctx, trustKey(userID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get trust score %s: %w", userID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	scoreStr, ok := vals["score"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	score, err := strconv.Atoi(scoreStr)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse trust score %s: %w", userID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse trust ts %s: %w", userID, err)
	}

	return score, time.Unix(0, tsNano), nil
}

// Invalidate drops the cached score so the next lookup recomputes it.
func (tc *TrustCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := tc.rdb.Del(ctx, trustKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate trust score %s: %w", userID, err)
	}
	return nil
}
