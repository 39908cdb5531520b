// Copyright 2026 SchemaGate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"schemagate/platform/shared/logger"
)

// DefaultSubmitLimitPerMinute bounds task submissions per caller
const DefaultSubmitLimitPerMinute = 60

// RateLimitError indicates a caller exceeded the submission rate limit
type RateLimitError struct {
	Key   string
	Count int64
	Limit int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d requests/minute (limit: %d)", e.Key, e.Count, e.Limit)
}

// RateLimiter is a redis-backed sliding-window limiter on task submissions.
// With no redis configured, or when redis is unreachable, it fails open:
// losing rate limiting is better than losing the control plane.
type RateLimiter struct {
	client *redis.Client
	limit  int
	logger *logger.Logger
}

// NewRateLimiter connects to redis at redisURL. An empty URL yields a
// limiter that allows everything.
func NewRateLimiter(redisURL string, limitPerMinute int) (*RateLimiter, error) {
	if limitPerMinute <= 0 {
		limitPerMinute = DefaultSubmitLimitPerMinute
	}
	rl := &RateLimiter{
		limit:  limitPerMinute,
		logger: logger.New("rate-limiter"),
	}
	if redisURL == "" {
		return rl, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rl.client = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rl.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rl, nil
}

// Allow checks the sliding one-minute window for a caller key. It returns a
// RateLimitError when the caller is over the limit and nil otherwise.
func (rl *RateLimiter) Allow(ctx context.Context, callerKey string) error {
	if rl.client == nil {
		return nil
	}

	now := time.Now()
	key := fmt.Sprintf("ratelimit:submit:%s", callerKey)

	pipe := rl.client.Pipeline()
	minScore := now.Add(-time.Minute).Unix()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		rl.logger.Warn("", "", "redis rate limit check failed, failing open", map[string]interface{}{
			"caller": callerKey,
			"error":  err.Error(),
		})
		return nil
	}

	count := cmds[1].(*redis.IntCmd).Val()
	if count >= int64(rl.limit) {
		return &RateLimitError{Key: callerKey, Count: count + 1, Limit: rl.limit}
	}
	return nil
}

// Close releases the redis connection pool
func (rl *RateLimiter) Close() error {
	if rl.client == nil {
		return nil
	}
	return rl.client.Close()
}
