package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Cycle("published")
	m.Cycle("published")
	m.Cycle("skipped")
	m.Refresh(true)
	m.Refresh(false)
	m.Retry("cookie")
	m.FetchFailure("quote", "rate_limit")
	m.ParseFailure()
	m.Published(34125.67)
	m.Dropped()

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"cycles published", m.CyclesTotal.WithLabelValues("published"), 2},
		{"cycles skipped", m.CyclesTotal.WithLabelValues("skipped"), 1},
		{"refresh success", m.CredentialRefreshesTotal.WithLabelValues("success"), 1},
		{"refresh failure", m.CredentialRefreshesTotal.WithLabelValues("failure"), 1},
		{"retries cookie", m.RetriesTotal.WithLabelValues("cookie"), 1},
		{"fetch failures", m.FetchFailuresTotal.WithLabelValues("quote", "rate_limit"), 1},
		{"parse failures", m.ParseFailuresTotal, 1},
		{"published", m.ObservationsPublished, 1},
		{"dropped", m.ObservationsDropped, 1},
		{"last price", m.LastPrice, 34125.67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("nil *Metrics panicked: %v", r)
		}
	}()

	m.Cycle("published")
	m.Refresh(true)
	m.Retry("crumb")
	m.FetchFailure("crumb", "server")
	m.ParseFailure()
	m.Published(1)
	m.Dropped()

	if m.Registry() != nil {
		t.Error("Registry() on nil *Metrics should be nil")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Published(100)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), "quotewatch_observations_published_total 1") {
		t.Errorf("metrics output missing published counter:\n%s", body)
	}
}
