// Package query implements the four analytic queries against the store key
// families internal/ingest writes: the open-trip counter, its per-second
// snapshots, the per-geohash trip-id sets, and the start/stop/fare
// aggregate counters.
package query

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

// ErrInvalidTime is returned when a time_instant string fails to parse.
var ErrInvalidTime = errors.New("query: invalid time")

// instantLayout is the wire format for time_instant: "YYYY-MM-DD HH:MM:SS",
// UTC.
const instantLayout = "2006-01-02 15:04:05"

// ParseInstant parses a time_instant value into a UTC instant.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(instantLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}
	return t.UTC(), nil
}

// StartStopResult is the answer to Q4: trip starts, trip ends, and summed
// end-fares within a bounding box over a trailing window.
type StartStopResult struct {
	Start int64
	Stop  int64
	Fare  float64
}

// Planner answers Q1-Q4 by reading the key families internal/ingest
// maintains. It holds no state of its own; every method is a pure read
// against the store.
type Planner struct {
	store store.Store
}

// NewPlanner creates a Planner over s.
func NewPlanner(s store.Store) *Planner {
	return &Planner{store: s}
}

// CurrentCount answers Q1: the number of trips currently in progress.
// Constant-time; an absent counter reads as 0 (no begin has ever been
// applied).
func (p *Planner) CurrentCount(ctx context.Context) (int64, error) {
	return p.getInt(ctx, keys.CurrentTripsCounter)
}

// CountAtInstant answers Q2: the open-trip count at a past UTC instant.
// A direct hit on the per-second snapshot short-circuits; otherwise it
// falls back to a predecessor search within t's day bucket. Cross-day
// fallback is intentionally not performed: an empty day bucket answers 0
// even if activity exists on prior days.
func (p *Planner) CountAtInstant(ctx context.Context, t time.Time) (int64, error) {
	ts := t.UTC().Unix()

	if v, ok, err := p.store.Get(ctx, keys.Snapshot(ts)); err != nil {
		return 0, err
	} else if ok {
		return parseInt(v), nil
	}

	eventTimesKey := keys.EventTimes(keys.DateKey(t))
	card, err := p.store.ZCard(ctx, eventTimesKey)
	if err != nil {
		return 0, err
	}
	if card == 0 {
		return 0, nil
	}

	predecessor, ok, err := p.store.ZRevRangeByScoreFirst(ctx, eventTimesKey, float64(ts))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	v, ok, err := p.store.Get(ctx, keys.Snapshot(parseInt(predecessor)))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return parseInt(v), nil
}

// TripsPassedThrough answers Q3: the number of trip-cell touches (not
// distinct trips; a trip touching two cells counts twice) within the
// bounding box (lat1,lng1)-(lat2,lng2) over windowStr, evaluated relative
// to now.
func (p *Planner) TripsPassedThrough(ctx context.Context, lat1, lng1, lat2, lng2 float64, windowStr string, now time.Time) (int64, error) {
	targets, periods, w, err := p.resolve(ctx, lat1, lng1, lat2, lng2, windowStr, now)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, g := range targets {
		for _, period := range periods {
			key := tripIDsKey(g, period, w)
			card, err := p.store.ZCard(ctx, key)
			if err != nil {
				return 0, err
			}
			total += card
		}
	}
	return total, nil
}

// TripsStartStop answers Q4: trip starts, stops, and the fare sum within
// the same bounding box and window as Q3.
func (p *Planner) TripsStartStop(ctx context.Context, lat1, lng1, lat2, lng2 float64, windowStr string, now time.Time) (StartStopResult, error) {
	targets, periods, w, err := p.resolve(ctx, lat1, lng1, lat2, lng2, windowStr, now)
	if err != nil {
		return StartStopResult{}, err
	}

	var result StartStopResult
	for _, g := range targets {
		for _, period := range periods {
			start, err := p.getInt(ctx, counterKey(g, period, w, "start"))
			if err != nil {
				return StartStopResult{}, err
			}
			stop, err := p.getInt(ctx, counterKey(g, period, w, "stop"))
			if err != nil {
				return StartStopResult{}, err
			}
			fare, err := p.getFloat(ctx, fareKey(g, period, w))
			if err != nil {
				return StartStopResult{}, err
			}
			result.Start += start
			result.Stop += stop
			result.Fare += fare
		}
	}
	return result, nil
}

// resolve implements the target/sub-key resolution shared by Q3 and Q4:
// encode both corners, compute their common prefix, enumerate the geohash
// cells under it, and parse the window into trailing sub-keys.
func (p *Planner) resolve(ctx context.Context, lat1, lng1, lat2, lng2 float64, windowStr string, now time.Time) (targets []string, periods []string, w Window, err error) {
	ghA, err := geohash.Encode(lat1, lng1)
	if err != nil {
		return nil, nil, Window{}, err
	}
	ghB, err := geohash.Encode(lat2, lng2)
	if err != nil {
		return nil, nil, Window{}, err
	}

	w, err = ParseWindow(windowStr)
	if err != nil {
		return nil, nil, Window{}, err
	}

	targets, err = p.targets(ctx, ghA, ghB)
	if err != nil {
		return nil, nil, Window{}, err
	}

	return targets, w.Periods(now), w, nil
}

// targets enumerates the geohash cells a bounding box reduces to: the
// members of geohash_prefixes:π where π is the corners' common prefix, or,
// when the corners disagree at the first character (π == ""), the union
// of all 32 length-1 prefix sets.
func (p *Planner) targets(ctx context.Context, ghA, ghB string) ([]string, error) {
	prefix := geohash.CommonPrefix(ghA, ghB)
	if prefix != "" {
		return p.store.ZRange(ctx, keys.PrefixIndex(prefix), 0, -1)
	}

	seen := make(map[string]struct{})
	var all []string
	for _, fc := range geohash.FirstCharPrefixes() {
		members, err := p.store.ZRange(ctx, keys.PrefixIndex(fc), 0, -1)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				all = append(all, m)
			}
		}
	}
	return all, nil
}

func tripIDsKey(gh, period string, w Window) string {
	if w.Days {
		return keys.DayTripIDs(gh, period)
	}
	return keys.WeekTripIDs(gh, period)
}

func counterKey(gh, period string, w Window, kind string) string {
	if w.Days {
		return keys.DayCounter(gh, period, kind)
	}
	return keys.WeekCounter(gh, period, kind)
}

func fareKey(gh, period string, w Window) string {
	if w.Days {
		return keys.DayFare(gh, period)
	}
	return keys.WeekFare(gh, period)
}

func (p *Planner) getInt(ctx context.Context, key string) (int64, error) {
	v, ok, err := p.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	return parseInt(v), nil
}

func (p *Planner) getFloat(ctx context.Context, key string) (float64, error) {
	v, ok, err := p.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	f, _ := strconv.ParseFloat(v, 64)
	return f, nil
}

func parseInt(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
