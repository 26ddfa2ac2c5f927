// Package keys builds the store key strings for every entity in the data
// model, shared by the ingestion writer and the query planner so the two
// sides of the pipeline never drift out of sync on a key shape.
package keys

import (
	"fmt"
	"time"
)

// CurrentTripsCounter is the single global open-trip counter key.
const CurrentTripsCounter = "current_trips_counter"

// Snapshot is the per-second counter snapshot key.
func Snapshot(epochSeconds int64) string {
	return fmt.Sprintf("trips_counter:%d", epochSeconds)
}

// EventTimes is the per-day event-time index key, used for predecessor
// search in Q2.
func EventTimes(date string) string {
	return fmt.Sprintf("event_times:%s", date)
}

// DayTripIDs is the per-geohash, per-day distinct trip-id set key.
func DayTripIDs(gh, date string) string {
	return fmt.Sprintf("geohash:%s:days:%s:tripids", gh, date)
}

// WeekTripIDs is the per-geohash, per-week distinct trip-id set key.
func WeekTripIDs(gh, week string) string {
	return fmt.Sprintf("geohash:%s:weeks:%s:tripids", gh, week)
}

// DayCounter is a per-geohash, per-day start/stop aggregate counter key.
// kind is "start" or "stop".
func DayCounter(gh, date, kind string) string {
	return fmt.Sprintf("geohash:%s:days:%s:tot_%s_counter", gh, date, kind)
}

// WeekCounter is the per-geohash, per-week counterpart of DayCounter.
func WeekCounter(gh, week, kind string) string {
	return fmt.Sprintf("geohash:%s:weeks:%s:tot_%s_counter", gh, week, kind)
}

// DayFare is the per-geohash, per-day fare-sum counter key.
func DayFare(gh, date string) string {
	return fmt.Sprintf("geohash:%s:days:%s:tot_fare_counter", gh, date)
}

// WeekFare is the per-geohash, per-week fare-sum counter key.
func WeekFare(gh, week string) string {
	return fmt.Sprintf("geohash:%s:weeks:%s:tot_fare_counter", gh, week)
}

// PrefixIndex is the prefix-to-geohash index key for a given geohash
// prefix of length 1..P-1; the full-length geohash is not indexed under
// itself.
func PrefixIndex(prefix string) string {
	return fmt.Sprintf("geohash_prefixes:%s", prefix)
}

// DateKey renders t as the YYYY-M-D day key used throughout the data
// model (non-zero-padded month/day, matching the source key shape).
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-1-2")
}

// WeekKey renders t's ISO week number as a zero-padded two-digit string.
// The key shape carries only the week number, not the year (see
// DESIGN.md) — callers crossing a year boundary still get a distinct date
// per call since WeekKey is always derived from a concrete date.
func WeekKey(t time.Time) string {
	_, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%02d", week)
}
