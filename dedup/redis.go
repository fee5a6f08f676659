package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps dedup history in Redis sorted sets, one per key, scored
// by timestamp. It lets a restarted monitor keep its suppression windows.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions holds connection settings for the redis-backed store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisStore creates a Redis-backed history store and verifies the
// connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

// Name identifies the store in logs and metrics.
func (s *RedisStore) Name() string { return "redis" }

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Allow implements Store using a sorted set per dedup key. Members are
// unique per admission so multiple alerts sharing one timestamp still count
// individually against the budget.
func (s *RedisStore) Allow(ctx context.Context, key string, ts time.Time, window time.Duration, max int) (bool, error) {
	redisKey := "argus:dedup:" + key
	cutoff := ts.Add(-window).UnixNano()

	if err := s.client.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return false, fmt.Errorf("failed to trim dedup history: %w", err)
	}

	count, err := s.client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to count dedup history: %w", err)
	}
	if count >= int64(max) {
		return false, nil
	}

	member := strconv.FormatInt(ts.UnixNano(), 10) + ":" + uuid.New().String()
	if err := s.client.ZAdd(ctx, redisKey, redis.Z{Score: float64(ts.UnixNano()), Member: member}).Err(); err != nil {
		return false, fmt.Errorf("failed to record dedup entry: %w", err)
	}
	// History is worthless once the whole window has passed.
	if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
		return false, fmt.Errorf("failed to set dedup key expiry: %w", err)
	}

	return true, nil
}
