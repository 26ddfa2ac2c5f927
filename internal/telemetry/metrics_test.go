package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}
	if m.eventsIngested == nil {
		t.Error("eventsIngested is nil")
	}
	if m.queryDuration == nil {
		t.Error("queryDuration is nil")
	}
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.IncEventsIngested("begin")
	m.IncEventsRejected()
	m.ObserveQuery("current_count", 0.001)
	m.IncQueryErrors("count_at_instant")
	m.IncStoreErrors()
	m.IncCounterCASRetry()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	want := map[string]bool{
		MetricEventsIngestedTotal: false,
		MetricEventsRejectedTotal: false,
		MetricQueryDuration:       false,
		MetricQueryErrorsTotal:    false,
		MetricStoreErrorsTotal:    false,
		MetricCounterCASRetries:   false,
	}
	for _, mf := range metrics {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not found in registry", name)
		}
	}
}

func TestMetrics_IncEventsIngested_ByKind(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.IncEventsIngested("begin")
	m.IncEventsIngested("begin")
	m.IncEventsIngested("end")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	var ingestedMetric *dto.MetricFamily
	for _, mf := range metrics {
		if mf.GetName() == MetricEventsIngestedTotal {
			ingestedMetric = mf
			break
		}
	}
	if ingestedMetric == nil {
		t.Fatalf("metric %s not found", MetricEventsIngestedTotal)
	}

	var beginCount, endCount float64
	for _, metric := range ingestedMetric.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "kind" {
				switch label.GetValue() {
				case "begin":
					beginCount = metric.GetCounter().GetValue()
				case "end":
					endCount = metric.GetCounter().GetValue()
				}
			}
		}
	}

	if beginCount != 2 {
		t.Errorf("begin count = %v, want 2", beginCount)
	}
	if endCount != 1 {
		t.Errorf("end count = %v, want 1", endCount)
	}
}

func TestMetrics_Collectors(t *testing.T) {
	m := NewMetrics()
	collectors := m.Collectors()
	if len(collectors) != 6 {
		t.Errorf("Collectors() returned %d collectors, want 6", len(collectors))
	}
	for i, c := range collectors {
		if c == nil {
			t.Errorf("Collectors()[%d] is nil", i)
		}
	}
}
