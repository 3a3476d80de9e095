package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ---------------------------------------------------------------------------
// Registration sanity checks. Describe() is used rather than Gather() because
// *Vec metrics with no observed label combination are absent from Gather output.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	type describer interface {
		Describe(chan<- *prometheus.Desc)
	}

	cases := []struct {
		name string
		c    describer
	}{
		{"admin_api_requests_total", APIRequestsTotal},
		{"admin_api_request_duration_seconds", APIRequestDuration},
		{"audit_undo_requests_total", UndoRequestsTotal},
		{"history_refresh_ticks_total", RefreshTicksTotal},
		{"history_stale_responses_discarded_total", StaleResponsesDiscardedTotal},
		{"history_exports_total", ExportsTotal},
		{"dev_api_http_requests_total", HTTPRequestsTotal},
		{"dev_api_http_request_duration_seconds", HTTPRequestDuration},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			for desc := range ch {
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					return
				}
			}
			t.Errorf("metric %q: Describe() returned no descriptor with this fqName", tc.name)
		})
	}
}

func TestObserveAPIRequest_LabelsStatus(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "endpoint": "/api/audit", "status": "200"}
	before := counterValue(t, APIRequestsTotal, labels)
	ObserveAPIRequest("GET", "/api/audit", 200, 15*time.Millisecond)
	after := counterValue(t, APIRequestsTotal, labels)
	if after-before != 1 {
		t.Errorf("APIRequestsTotal delta = %.0f, want 1", after-before)
	}
}

func TestObserveAPIRequest_NoResponseLabelsError(t *testing.T) {
	labels := prometheus.Labels{"method": "POST", "endpoint": "/api/audit/:id/undo", "status": "error"}
	before := counterValue(t, APIRequestsTotal, labels)
	ObserveAPIRequest("POST", "/api/audit/:id/undo", 0, time.Second)
	after := counterValue(t, APIRequestsTotal, labels)
	if after-before != 1 {
		t.Errorf("APIRequestsTotal delta = %.0f, want 1", after-before)
	}
}

func TestMetrics_StaleResponsesDiscarded_CanBeIncremented(t *testing.T) {
	before := plainCounterValue(t, StaleResponsesDiscardedTotal)
	StaleResponsesDiscardedTotal.Inc()
	after := plainCounterValue(t, StaleResponsesDiscardedTotal)
	if after-before < 1 {
		t.Errorf("StaleResponsesDiscardedTotal.Inc() did not increase counter")
	}
}

func TestNewMetricsServer_ServesMetrics(t *testing.T) {
	ExportsTotal.WithLabelValues("page", "success").Inc()

	srv := NewMetricsServer(0)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("GET /metrics status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "history_exports_total") {
		t.Errorf("/metrics output does not contain history_exports_total")
	}
	if srv.ReadHeaderTimeout == 0 {
		t.Error("metrics server must set ReadHeaderTimeout")
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// counterValue reads the current value of a CounterVec for the given label set.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 50)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

// plainCounterValue reads the value of a plain (non-vec) Counter.
func plainCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		return dm.GetCounter().GetValue()
	}
	return 0
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
