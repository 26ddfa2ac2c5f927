// Package store defines the key-value/ordered-set substrate the ingestion
// writer and query planner run against, and provides two implementations:
// a Redis-backed one for production and an in-memory fake for tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps any transient failure talking to the backing
// store (connection refused, timeout, transaction exhaustion). Callers map
// it to the StoreError HTTP status.
var ErrStoreUnavailable = errors.New("store: unavailable")

// Store is the ordered-set / counter key-value substrate required by the
// ingestion writer (internal/ingest) and the query planner
// (internal/query). Every method takes a bounded context; a deadline
// exceeded while talking to the backing store surfaces as
// ErrStoreUnavailable.
type Store interface {
	// Get returns the string value at key, or ok=false if key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value at key with no expiry.
	Set(ctx context.Context, key, value string) error

	// SetWithTTL writes value at key with the given expiry.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr increments the integer at key by 1 (treating an absent key as
	// 0) and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// IncrByFloat increments the float at key by delta (treating an
	// absent key as 0) and returns the new value.
	IncrByFloat(ctx context.Context, key string, delta float64) (float64, error)

	// ZAdd adds member to the ordered set at key with the given score.
	// Re-adding an existing member updates its score; it does not create
	// a duplicate entry.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRange returns members of the ordered set at key between ranks
	// start and stop inclusive, ordered by ascending score. Negative
	// indices count from the end, as in Redis.
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZCard returns the cardinality of the ordered set at key (0 if
	// absent).
	ZCard(ctx context.Context, key string) (int64, error)

	// ZRank returns the 0-based rank of member within the ordered set at
	// key by ascending score, or ok=false if the set or member is
	// absent.
	ZRank(ctx context.Context, key, member string) (rank int64, ok bool, err error)

	// ZRem removes member from the ordered set at key.
	ZRem(ctx context.Context, key, member string) error

	// ZRemRangeByScore removes members of the ordered set at key whose
	// score falls in [min, max], returning the number removed. Used by
	// the prefix-sweep job.
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error)

	// Expire sets a TTL on key, refreshing any existing one.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ZRevRangeByScoreFirst returns the single member of the ordered set
	// at key with the greatest score <= max (a native reverse
	// range-by-score limited to one result), or ok=false if no such
	// member exists. This is the predecessor-search primitive Q2 relies
	// on; implementations that expose a native reverse range are
	// preferred over an insert-probe-remove fallback (see DESIGN.md).
	ZRevRangeByScoreFirst(ctx context.Context, key string, max float64) (member string, ok bool, err error)

	// Keys returns every key matching prefix+"*" (a literal prefix, not a
	// general glob). Used by the prefix-sweep job to discover the
	// geohash_prefixes:* family without tracking membership separately.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// CASCounterPair atomically applies delta to the integer at
	// counterKey and writes the resulting value to both counterKey and
	// snapshotKey (with snapshotTTL applied to snapshotKey), returning
	// the new value. Both keys become visible together or not at all;
	// implementations retry internally on optimistic-lock conflict. This
	// is the one all-or-nothing transaction the event application
	// protocol requires; every other store write in this system is a
	// commutative increment or idempotent set add and needs no such guard.
	CASCounterPair(ctx context.Context, counterKey, snapshotKey string, delta int64, snapshotTTL time.Duration) (int64, error)
}
