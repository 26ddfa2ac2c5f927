package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/onnwee/geotrips/internal/ingest"
	"github.com/onnwee/geotrips/internal/store"
)

func fare(v float64) *float64 { return &v }

// seedScenario replays a worked five-event scenario and returns a Planner
// over the resulting store, plus the arrival times T1-T5 so tests can
// target specific instants.
func seedScenario(t *testing.T) (*Planner, store.Store, []time.Time) {
	t.Helper()
	mem := store.NewMemory()
	w := ingest.NewWriter(mem, time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	times := make([]time.Time, 5)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Minute)
	}

	events := []ingest.Event{
		{TripID: 123, Event: ingest.KindBegin, Lat: 37.8025, Lng: -122.4058},
		{TripID: 456, Event: ingest.KindBegin, Lat: 37.80164, Lng: -122.402244},
		{TripID: 123, Event: ingest.KindEnd, Lat: 37.800619, Lng: -122.401782, Fare: fare(20)},
		{TripID: 789, Event: ingest.KindBegin, Lat: 37.790789, Lng: -122.431812},
		{TripID: 789, Event: ingest.KindEnd, Lat: 37.785057, Lng: -122.437992, Fare: fare(40)},
	}

	for i, ev := range events {
		if err := w.Apply(ctx, ev, times[i]); err != nil {
			t.Fatalf("Apply(%+v) error: %v", ev, err)
		}
	}

	return NewPlanner(mem), mem, times
}

func TestPlanner_CurrentCount(t *testing.T) {
	p, _, _ := seedScenario(t)

	got, err := p.CurrentCount(context.Background())
	if err != nil {
		t.Fatalf("CurrentCount() error: %v", err)
	}
	if got != 1 {
		t.Errorf("CurrentCount() = %d, want 1", got)
	}
}

func TestPlanner_CurrentCount_Absent(t *testing.T) {
	p := NewPlanner(store.NewMemory())
	got, err := p.CurrentCount(context.Background())
	if err != nil {
		t.Fatalf("CurrentCount() error: %v", err)
	}
	if got != 0 {
		t.Errorf("CurrentCount() = %d, want 0", got)
	}
}

func TestPlanner_CountAtInstant_DirectHit(t *testing.T) {
	p, _, times := seedScenario(t)

	got, err := p.CountAtInstant(context.Background(), times[1])
	if err != nil {
		t.Fatalf("CountAtInstant(T2) error: %v", err)
	}
	if got != 1 {
		t.Errorf("CountAtInstant(T2) = %d, want 1", got)
	}
}

func TestPlanner_CountAtInstant_Predecessor(t *testing.T) {
	p, _, times := seedScenario(t)

	// Between T2 and T3, no snapshot exists; the predecessor is T2's
	// snapshot (value 1).
	between := times[1].Add(30 * time.Second)
	got, err := p.CountAtInstant(context.Background(), between)
	if err != nil {
		t.Fatalf("CountAtInstant() error: %v", err)
	}
	if got != 1 {
		t.Errorf("CountAtInstant(between T2 and T3) = %d, want 1", got)
	}
}

func TestPlanner_CountAtInstant_EmptyBucket(t *testing.T) {
	p := NewPlanner(store.NewMemory())
	got, err := p.CountAtInstant(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CountAtInstant() error: %v", err)
	}
	if got != 0 {
		t.Errorf("CountAtInstant(empty bucket) = %d, want 0", got)
	}
}

func TestPlanner_CountAtInstant_BeforeAnySnapshot(t *testing.T) {
	p, _, times := seedScenario(t)

	before := times[0].Add(-time.Minute)
	got, err := p.CountAtInstant(context.Background(), before)
	if err != nil {
		t.Fatalf("CountAtInstant() error: %v", err)
	}
	if got != 0 {
		t.Errorf("CountAtInstant(before first event) = %d, want 0", got)
	}
}

func TestPlanner_TripsPassedThrough_Box1(t *testing.T) {
	p, _, times := seedScenario(t)

	got, err := p.TripsPassedThrough(context.Background(), 37.808374, -122.409196, 37.7952, -122.4028, "0d", times[4])
	if err != nil {
		t.Fatalf("TripsPassedThrough() error: %v", err)
	}
	if got != 3 {
		t.Errorf("TripsPassedThrough(box1) = %d, want 3", got)
	}
}

func TestPlanner_TripsStartStop_Box1(t *testing.T) {
	p, _, times := seedScenario(t)

	got, err := p.TripsStartStop(context.Background(), 37.808374, -122.409196, 37.7952, -122.4028, "0d", times[4])
	if err != nil {
		t.Fatalf("TripsStartStop() error: %v", err)
	}
	want := StartStopResult{Start: 2, Stop: 1, Fare: 20}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TripsStartStop(box1) mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_TripsPassedThrough_Box2(t *testing.T) {
	p, _, times := seedScenario(t)

	got, err := p.TripsPassedThrough(context.Background(), 37.791603, -122.439966, 37.785159, -122.43104, "0d", times[4])
	if err != nil {
		t.Fatalf("TripsPassedThrough() error: %v", err)
	}
	if got != 2 {
		t.Errorf("TripsPassedThrough(box2) = %d, want 2", got)
	}
}

func TestPlanner_TripsStartStop_Box2(t *testing.T) {
	p, _, times := seedScenario(t)

	got, err := p.TripsStartStop(context.Background(), 37.791603, -122.439966, 37.785159, -122.43104, "0d", times[4])
	if err != nil {
		t.Fatalf("TripsStartStop() error: %v", err)
	}
	want := StartStopResult{Start: 1, Stop: 1, Fare: 40}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TripsStartStop(box2) mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_TripsPassedThrough_EmptyCommonPrefixScansAll(t *testing.T) {
	p, _, times := seedScenario(t)

	// Antipodal corners guarantee disagreement at the first geohash
	// character, exercising the all-32-prefix fallback (an open
	// question 2). No trips touch these cells, so the answer is 0, but the
	// call must not error.
	got, err := p.TripsPassedThrough(context.Background(), 89, 179, -89, -179, "0d", times[4])
	if err != nil {
		t.Fatalf("TripsPassedThrough() error: %v", err)
	}
	if got != 0 {
		t.Errorf("TripsPassedThrough(antipodal box) = %d, want 0", got)
	}
}

func TestPlanner_InvalidWindow(t *testing.T) {
	p, _, times := seedScenario(t)

	_, err := p.TripsPassedThrough(context.Background(), 37.8, -122.4, 37.7, -122.3, "nope", times[4])
	if err == nil {
		t.Fatal("TripsPassedThrough() with invalid window = nil error, want error")
	}
}

func TestPlanner_InvalidCoordinate(t *testing.T) {
	p := NewPlanner(store.NewMemory())

	_, err := p.TripsPassedThrough(context.Background(), 95, 0, 0, 0, "0d", time.Now())
	if err == nil {
		t.Fatal("TripsPassedThrough() with out-of-range lat = nil error, want error")
	}
}

func TestParseInstant(t *testing.T) {
	got, err := ParseInstant("2026-03-01 09:02:00")
	if err != nil {
		t.Fatalf("ParseInstant() error: %v", err)
	}
	want := time.Date(2026, 3, 1, 9, 2, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseInstant() = %v, want %v", got, want)
	}
}

func TestParseInstant_Malformed(t *testing.T) {
	if _, err := ParseInstant("not a time"); err == nil {
		t.Fatal("ParseInstant() = nil error, want error")
	}
}
