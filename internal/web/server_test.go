package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/metrics"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
	"github.com/kozaktomas/photo-dedup/internal/web/handlers"
)

type memFetcher map[string][]byte

func (m memFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	data, ok := m[location]
	if !ok {
		return nil, fmt.Errorf("not found: %s", location)
	}
	return data, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Web: config.WebConfig{Host: "127.0.0.1", Port: 0, AllowedOrigins: []string{"*"}},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *pipeline.Pipeline) {
	t.Helper()

	fetcher := memFetcher{
		"mem://a": []byte("identical bytes"),
		"mem://b": []byte("identical bytes"),
		"mem://c": []byte("something else"),
	}
	m := metrics.New("test")
	p := pipeline.New(fetcher,
		pipeline.WithTelemetry(m),
		pipeline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	opts := pipeline.DefaultOptions()
	opts.BatchDelay = 0

	srv := NewServer(testConfig(), handlers.NewAnalysisHandler(p, nil, opts), m)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, p
}

func waitForRun(t *testing.T, baseURL string) pipeline.RunState {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/api/v1/analysis")
		if err != nil {
			t.Fatalf("GET analysis failed: %v", err)
		}
		var state pipeline.RunState
		err = json.NewDecoder(resp.Body).Decode(&state)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if state.Status.IsTerminal() {
			return state
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("analysis did not finish in time")
	return pipeline.RunState{}
}

func TestServer_AnalysisLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	body := `{"photos": [
		{"id": "a", "images": [{"purpose": "web", "url": "mem://a"}]},
		{"id": "b", "images": [{"purpose": "web", "url": "mem://b"}]},
		{"id": "c", "images": [{"purpose": "web", "url": "mem://c"}]}
	]}`
	resp, err := http.Post(ts.URL+"/api/v1/analysis", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST analysis failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	state := waitForRun(t, ts.URL)
	if state.Status != pipeline.StatusCompleted {
		t.Fatalf("expected completed run, got %s (%s)", state.Status, state.Error)
	}
	if len(state.AllGroups) != 1 || state.AllGroups[0].GroupType != pipeline.GroupExactDuplicates {
		t.Fatalf("expected one exact duplicate group, got %+v", state.AllGroups)
	}

	resp, err = http.Get(ts.URL + "/api/v1/analysis/groups/b")
	if err != nil {
		t.Fatalf("GET group failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for grouped photo, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/v1/analysis/scores/b/a")
	if err != nil {
		t.Fatalf("GET score failed: %v", err)
	}
	var score handlers.ScoreResponse
	json.NewDecoder(resp.Body).Decode(&score)
	resp.Body.Close()
	if score.Score.Overall != 1 {
		t.Errorf("expected exact duplicate score 1, got %+v", score.Score)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/analysis/clear", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST clear failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for clear, got %d", resp.StatusCode)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), "photo_dedup_http_requests_total") {
		t.Error("expected HTTP request metrics in /metrics output")
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/nope")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
