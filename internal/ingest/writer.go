package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/onnwee/geotrips/internal/geohash"
	"github.com/onnwee/geotrips/internal/keys"
	"github.com/onnwee/geotrips/internal/store"
)

// snapshotTTL is the 90-day retention on trips_counter:<ts>, and the
// bucket TTL NewWriter uses when given a non-positive one.
const snapshotTTL = 90 * 24 * time.Hour

// Writer applies trip events to a Store, maintaining four key families:
// the global counter with per-second snapshots, per-day/week trip-id sets,
// per-day/week start/stop/fare counters, and the prefix-to-geohash index.
type Writer struct {
	store     store.Store
	bucketTTL time.Duration
}

// NewWriter creates a Writer. bucketTTL is applied to every date/week
// keyed set and counter (default should be snapshotTTL; callers may
// shorten it for testing).
func NewWriter(s store.Store, bucketTTL time.Duration) *Writer {
	if bucketTTL <= 0 {
		bucketTTL = snapshotTTL
	}
	return &Writer{store: s, bucketTTL: bucketTTL}
}

// Apply implements the event-application protocol: it returns
// ErrMalformedEvent for invalid input (no store mutation occurs) or a
// store.ErrStoreUnavailable-wrapped error on a transient store failure.
func (w *Writer) Apply(ctx context.Context, ev Event, arrivalTime time.Time) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	gh, err := geohash.Encode(ev.Lat, ev.Lng)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	date := keys.DateKey(arrivalTime)
	week := keys.WeekKey(arrivalTime)
	ts := arrivalTime.Unix()
	tripID := strconv.FormatInt(ev.TripID, 10)

	// Step 2: distinct trip-id membership per geohash, per day and week.
	dayTripKey := keys.DayTripIDs(gh, date)
	weekTripKey := keys.WeekTripIDs(gh, week)
	if err := w.store.ZAdd(ctx, dayTripKey, 0, tripID); err != nil {
		return err
	}
	if err := w.store.ZAdd(ctx, weekTripKey, 0, tripID); err != nil {
		return err
	}
	if err := w.store.Expire(ctx, dayTripKey, w.bucketTTL); err != nil {
		return err
	}
	if err := w.store.Expire(ctx, weekTripKey, w.bucketTTL); err != nil {
		return err
	}

	// Step 3: counter transaction and start/stop/fare aggregates, begin
	// and end events only.
	if ev.Event == KindBegin || ev.Event == KindEnd {
		if err := w.applyCounterAndAggregates(ctx, ev, gh, date, week, ts); err != nil {
			return err
		}
	}

	// Step 4: fan the full geohash into every shorter prefix (lengths
	// 1..P-1; the full-length geohash itself is never a member of its
	// own prefix index).
	for _, prefix := range geohash.Prefixes(gh) {
		if err := w.store.ZAdd(ctx, keys.PrefixIndex(prefix), float64(ts), gh); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) applyCounterAndAggregates(ctx context.Context, ev Event, gh, date, week string, ts int64) error {
	delta := int64(1)
	kind := "start"
	if ev.Event == KindEnd {
		delta = -1
		kind = "stop"
	}

	snapKey := keys.Snapshot(ts)
	if _, err := w.store.CASCounterPair(ctx, keys.CurrentTripsCounter, snapKey, delta, snapshotTTL); err != nil {
		return err
	}

	dayCounterKey := keys.DayCounter(gh, date, kind)
	weekCounterKey := keys.WeekCounter(gh, week, kind)
	if _, err := w.store.Incr(ctx, dayCounterKey); err != nil {
		return err
	}
	if _, err := w.store.Incr(ctx, weekCounterKey); err != nil {
		return err
	}
	if err := w.store.Expire(ctx, dayCounterKey, w.bucketTTL); err != nil {
		return err
	}
	if err := w.store.Expire(ctx, weekCounterKey, w.bucketTTL); err != nil {
		return err
	}

	if ev.Event == KindEnd {
		if ev.Fare == nil {
			return errors.New("ingest: end event missing fare after validation")
		}
		dayFareKey := keys.DayFare(gh, date)
		weekFareKey := keys.WeekFare(gh, week)
		if _, err := w.store.IncrByFloat(ctx, dayFareKey, *ev.Fare); err != nil {
			return err
		}
		if _, err := w.store.IncrByFloat(ctx, weekFareKey, *ev.Fare); err != nil {
			return err
		}
		if err := w.store.Expire(ctx, dayFareKey, w.bucketTTL); err != nil {
			return err
		}
		if err := w.store.Expire(ctx, weekFareKey, w.bucketTTL); err != nil {
			return err
		}
	}

	eventTimesKey := keys.EventTimes(date)
	tsStr := strconv.FormatInt(ts, 10)
	if err := w.store.ZAdd(ctx, eventTimesKey, float64(ts), tsStr); err != nil {
		return err
	}
	return w.store.Expire(ctx, eventTimesKey, w.bucketTTL)
}
