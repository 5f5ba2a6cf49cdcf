package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveTickSetsGaugesAndMode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewTrackerCollector(reg)
	if err != nil {
		t.Fatalf("NewTrackerCollector: %v", err)
	}

	modes := []string{"catchup", "track"}
	collector.ObserveTick(TickSample{
		Duration:       2 * time.Millisecond,
		ErrorDegrees:   12.5,
		Speed:          -7,
		TargetAzimuth:  181,
		TargetAltitude: 22,
		Mode:           "catchup",
		Modes:          modes,
	})

	if got := testutil.ToFloat64(collector.AzimuthError); got != 12.5 {
		t.Fatalf("tracker_azimuth_error_degrees = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(collector.CommandedSpeed); got != -7 {
		t.Fatalf("tracker_commanded_speed_degrees_per_second = %v, want -7", got)
	}
	if got := testutil.ToFloat64(collector.ControllerMode.WithLabelValues("catchup")); got != 1 {
		t.Fatalf("catchup mode gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.ControllerMode.WithLabelValues("track")); got != 0 {
		t.Fatalf("track mode gauge = %v, want 0", got)
	}

	collector.ObserveTick(TickSample{Mode: "track", Modes: modes})
	if got := testutil.ToFloat64(collector.ControllerMode.WithLabelValues("catchup")); got != 0 {
		t.Fatalf("catchup mode gauge after switch = %v, want 0", got)
	}
	if count := histogramSampleCount(t, reg, "tracker_controller_tick_duration_seconds", nil); count != 2 {
		t.Fatalf("tick histogram sample_count = %d, want 2", count)
	}
}

func TestObserveRefreshCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewTrackerCollector(reg)
	if err != nil {
		t.Fatalf("NewTrackerCollector: %v", err)
	}

	collector.ObserveRefresh("fresh")
	collector.ObserveRefresh("fresh")
	collector.ObserveRefresh("failed")

	if got := testutil.ToFloat64(collector.TLERefreshes.WithLabelValues("fresh")); got != 2 {
		t.Fatalf("fresh refreshes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.TLERefreshes.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed refreshes = %v, want 1", got)
	}
}

func TestLinkMetrics(t *testing.T) {
	collector, err := NewTrackerCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewTrackerCollector: %v", err)
	}
	states := []string{"unknown", "idle", "online"}
	collector.SetLinkState("idle", states)
	collector.IncUnexpectedReply()

	if got := testutil.ToFloat64(collector.LinkState.WithLabelValues("idle")); got != 1 {
		t.Fatalf("idle link gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.LinkState.WithLabelValues("online")); got != 0 {
		t.Fatalf("online link gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(collector.UnexpectedReplies); got != 1 {
		t.Fatalf("unexpected replies = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *TrackerCollector
	c.ObserveTick(TickSample{Mode: "track"})
	c.ObserveRefresh("fresh")
	c.SetLinkState("idle", nil)
	c.IncUnexpectedReply()

	var s *SchedulerCollector
	s.ObserveTask("x", 0, 0, nil)
}

func TestCollectorReusesExistingRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewTrackerCollector(reg)
	if err != nil {
		t.Fatalf("first NewTrackerCollector: %v", err)
	}
	second, err := NewTrackerCollector(reg)
	if err != nil {
		t.Fatalf("second NewTrackerCollector: %v", err)
	}
	second.ObserveRefresh("refreshed")
	if got := testutil.ToFloat64(first.TLERefreshes.WithLabelValues("refreshed")); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestSchedulerCollectorObservesTasks(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSchedulerCollector(reg)
	if err != nil {
		t.Fatalf("NewSchedulerCollector: %v", err)
	}

	collector.ObserveTask("controller", 250*time.Millisecond, time.Millisecond, nil)
	collector.ObserveTask("controller", -time.Second, time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(collector.TaskRuns.WithLabelValues("controller", "ok")); got != 1 {
		t.Fatalf("ok runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.TaskRuns.WithLabelValues("controller", "error")); got != 1 {
		t.Fatalf("error runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.TaskLag.WithLabelValues("controller")); got != 0 {
		t.Fatalf("lag gauge = %v, want clamped 0", got)
	}
	if count := histogramSampleCount(t, reg, "scheduler_task_duration_seconds", map[string]string{"task": "controller"}); count != 2 {
		t.Fatalf("task duration sample_count = %d, want 2", count)
	}
}

func TestMetricsHandlerExposesTrackerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewTrackerCollector(reg)
	if err != nil {
		t.Fatalf("NewTrackerCollector: %v", err)
	}
	collector.ObserveTick(TickSample{ErrorDegrees: 3, Mode: "track", Modes: []string{"catchup", "track"}})
	collector.ObserveRefresh("fresh")
	collector.IncUnexpectedReply()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"tracker_azimuth_error_degrees",
		"tracker_controller_mode",
		"tracker_tle_refresh_total",
		"tracker_link_unexpected_replies_total",
		"tracker_controller_tick_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
