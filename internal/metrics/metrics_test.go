package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Webhook(t *testing.T) {
	r := New()
	r.Webhook(ResultAccepted)
	r.Webhook(ResultAccepted)
	r.Webhook(ResultIgnored)

	if got := testutil.ToFloat64(r.webhooksCounter.WithLabelValues(ResultAccepted)); got != 2 {
		t.Errorf("Expected 2 accepted webhooks, got %v", got)
	}
	if got := testutil.ToFloat64(r.webhooksCounter.WithLabelValues(ResultIgnored)); got != 1 {
		t.Errorf("Expected 1 ignored webhook, got %v", got)
	}
}

func TestRecorder_DeployLifecycle(t *testing.T) {
	r := New()

	r.DeployStarted()
	if got := testutil.ToFloat64(r.deployInProgressGauge); got != 1 {
		t.Errorf("Expected in-progress gauge 1, got %v", got)
	}

	r.DeployFinished("SUCCESS", 90*time.Second)
	if got := testutil.ToFloat64(r.deployInProgressGauge); got != 0 {
		t.Errorf("Expected in-progress gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(r.deploysCounter.WithLabelValues("SUCCESS")); got != 1 {
		t.Errorf("Expected 1 successful deploy, got %v", got)
	}
	if got := testutil.CollectAndCount(r.deployDuration); got != 1 {
		t.Errorf("Expected duration histogram to be collected, got %d", got)
	}
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	// Registering the same names twice on one registry would panic.
	a, b := New(), New()
	a.Webhook(ResultAccepted)

	if got := testutil.ToFloat64(b.webhooksCounter.WithLabelValues(ResultAccepted)); got != 0 {
		t.Errorf("Recorders should not share state, got %v", got)
	}
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.Webhook(ResultAccepted)
	r.DeployStarted()
	r.DeployFinished("FAILED", time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 from nil recorder handler, got %d", rec.Code)
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.Webhook(ResultRejected)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{WebhooksMetricName, DeployInProgressMetricName, `result="rejected"`} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected exposition to contain %q", want)
		}
	}
}
