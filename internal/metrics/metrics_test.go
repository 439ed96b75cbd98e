package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kozaktomas/photo-dedup/internal/pipeline"
)

func TestTelemetry(t *testing.T) {
	m := New("test")

	m.RunStarted("run-1", 10)
	if got := testutil.ToFloat64(m.runsInFlight); got != 1 {
		t.Errorf("expected 1 run in flight, got %v", got)
	}

	m.LayerCompleted("run-1", pipeline.LayerStat{Layer: pipeline.LayerContent, Input: 10, Groups: 2, Duration: time.Second})
	m.LayerCompleted("run-1", pipeline.LayerStat{Layer: pipeline.LayerPerceptual, Input: 6})
	m.RunFinished("run-1", pipeline.StatusCompleted, 2, 3*time.Second)

	if got := testutil.ToFloat64(m.runsInFlight); got != 0 {
		t.Errorf("expected no runs in flight, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("expected 1 completed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.layerInputTotal.WithLabelValues("content")); got != 10 {
		t.Errorf("expected 10 content inputs, got %v", got)
	}
	if got := testutil.ToFloat64(m.layerGroups.WithLabelValues("content")); got != 2 {
		t.Errorf("expected 2 content groups, got %v", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New("test")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/analysis/groups/{photoId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	srv := httptest.NewServer(r)
	defer srv.Close()

	for _, id := range []string{"a", "b"} {
		resp, err := http.Get(srv.URL + "/api/v1/analysis/groups/" + id)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/api/v1/analysis/groups/{photoId}", "404")); got != 2 {
		t.Errorf("expected 2 requests under the route pattern, got %v", got)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "photo_dedup_http_requests_total") {
		t.Error("metrics output should include the request counter")
	}
}
