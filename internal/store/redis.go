package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxCASAttempts bounds the optimistic-lock retry loop in CASCounterPair.
// Left unbounded this relies on convergence among concurrent writers; a
// hard cap turns a pathological livelock into a StoreError instead of
// hanging a request forever.
const maxCASAttempts = 50

// CASRetryReporter receives one notification per retried attempt on the
// current_trips_counter CAS transaction. Satisfied by
// internal/telemetry.Metrics; may be left nil.
type CASRetryReporter interface {
	IncCounterCASRetry()
}

// Redis is a Store backed by a single go-redis client.
type Redis struct {
	client  *redis.Client
	metrics CASRetryReporter
}

// NewRedis wraps an existing go-redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// NewRedisWithMetrics wraps an existing go-redis client and reports CAS
// transaction retries to metrics.
func NewRedisWithMetrics(client *redis.Client, metrics CASRetryReporter) *Redis {
	return &Redis{client: client, metrics: metrics}
}

func wrapErr(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr(err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return wrapErr(r.client.Set(ctx, key, value, 0).Err())
}

func (r *Redis) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrapErr(r.client.Set(ctx, key, value, ttl).Err())
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	v, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	return v, nil
}

func (r *Redis) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	v, err := r.client.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	return v, nil
}

func (r *Redis) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return wrapErr(r.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

func (r *Redis) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := r.client.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return v, nil
}

func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	v, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	return v, nil
}

func (r *Redis) ZRank(ctx context.Context, key, member string) (int64, bool, error) {
	v, err := r.client.ZRank(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapErr(err)
	}
	return v, true, nil
}

func (r *Redis) ZRem(ctx context.Context, key, member string) error {
	return wrapErr(r.client.ZRem(ctx, key, member).Err())
}

func (r *Redis) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	v, err := r.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	return v, nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return wrapErr(r.client.Expire(ctx, key, ttl).Err())
}

// ZRevRangeByScoreFirst uses go-redis's native reverse range-by-score,
// limited to a single result, to find the predecessor of max.
func (r *Redis) ZRevRangeByScoreFirst(ctx context.Context, key string, max float64) (string, bool, error) {
	res, err := r.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    formatScore(max),
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		return "", false, wrapErr(err)
	}
	if len(res) == 0 {
		return "", false, nil
	}
	return res[0], true, nil
}

// Keys scans for every key with the literal prefix, using SCAN rather than
// KEYS to avoid blocking the server on a large keyspace.
func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

// CASCounterPair implements the atomic counter publish using Watch +
// TxPipelined, retrying on redis.TxFailedErr: read the current counter
// under a watch, compute next, queue both writes, execute. On a
// conflicting write from another client the transaction aborts and is
// retried from the read.
func (r *Redis) CASCounterPair(ctx context.Context, counterKey, snapshotKey string, delta int64, snapshotTTL time.Duration) (int64, error) {
	var next int64

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, counterKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next = cur + delta
		nextStr := strconv.FormatInt(next, 10)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, counterKey, nextStr, 0)
			pipe.Set(ctx, snapshotKey, nextStr, snapshotTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, counterKey)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			if r.metrics != nil {
				r.metrics.IncCounterCASRetry()
			}
			continue
		}
		return 0, wrapErr(err)
	}
	return 0, fmt.Errorf("%w: counter transaction did not converge after %d attempts", ErrStoreUnavailable, maxCASAttempts)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
