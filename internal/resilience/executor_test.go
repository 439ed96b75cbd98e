package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(), nil)

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "fetch", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errTemp), RecordFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(), nil)

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "fetch", func(context.Context) error {
		attempts++
		return errPermanent
	}, nil)
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	exec := NewExecutor(fastConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "fetch", func(context.Context) error {
		called = true
		return nil
	}, ClassifyHTTP)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("operation must not run on a cancelled context")
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.BreakerHalfOpenMaxCalls = 1
	exec := NewExecutor(cfg, nil)

	errServer := &StatusError{Operation: "embed", StatusCode: http.StatusServiceUnavailable}
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "embed", func(context.Context) error {
			return errServer
		}, ClassifyHTTP)
		if !errors.Is(err, errServer) {
			t.Fatalf("expected server error on iteration %d, got %v", i, err)
		}
	}

	if exec.State("embed") != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", exec.State("embed"))
	}

	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		t.Fatal("circuit should be open and must not call operation")
		return nil
	}, ClassifyHTTP)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClassification
	}{
		{"nil", nil, ErrorClassification{}},
		{"cancelled", fmt.Errorf("get: %w", context.Canceled), ErrorClassification{}},
		{"503", &StatusError{StatusCode: 503}, ErrorClassification{Retryable: true, RecordFailure: true}},
		{"429 wrapped", fmt.Errorf("x: %w", &StatusError{StatusCode: 429}), ErrorClassification{Retryable: true, RecordFailure: true}},
		{"404", &StatusError{StatusCode: 404}, ErrorClassification{}},
		{"open breaker", gobreaker.ErrOpenState, ErrorClassification{}},
		{"other", errors.New("boom"), ErrorClassification{RecordFailure: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyHTTP(tc.err); got != tc.expected {
				t.Errorf("ClassifyHTTP(%v) = %+v; want %+v", tc.err, got, tc.expected)
			}
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Operation: "fetch image", StatusCode: 500, Body: "  oops \n"}
	if got := err.Error(); got != "fetch image: unexpected status 500: oops" {
		t.Errorf("unexpected message %q", got)
	}
}
