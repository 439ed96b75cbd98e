package pipeline

import (
	"log/slog"
	"time"
)

// Telemetry observes run lifecycle and per-layer statistics.
type Telemetry interface {
	RunStarted(runID string, photos int)
	LayerCompleted(runID string, stat LayerStat)
	RunFinished(runID string, status Status, groups int, duration time.Duration)
	RunFailed(runID string, err error)
}

// NopTelemetry discards everything.
type NopTelemetry struct{}

func (NopTelemetry) RunStarted(string, int)                         {}
func (NopTelemetry) LayerCompleted(string, LayerStat)               {}
func (NopTelemetry) RunFinished(string, Status, int, time.Duration) {}
func (NopTelemetry) RunFailed(string, error)                        {}

// LogTelemetry writes structured log records.
type LogTelemetry struct {
	Logger *slog.Logger
}

// NewLogTelemetry returns telemetry backed by logger, or slog.Default when nil.
func NewLogTelemetry(logger *slog.Logger) *LogTelemetry {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTelemetry{Logger: logger}
}

func (t *LogTelemetry) RunStarted(runID string, photos int) {
	t.Logger.Info("pipeline run started", "run_id", runID, "photos", photos)
}

func (t *LogTelemetry) LayerCompleted(runID string, stat LayerStat) {
	t.Logger.Info("pipeline layer completed",
		"run_id", runID,
		"layer", stat.Layer,
		"input", stat.Input,
		"output", stat.Output,
		"groups", stat.Groups,
		"duration_ms", stat.Duration.Milliseconds(),
	)
}

func (t *LogTelemetry) RunFinished(runID string, status Status, groups int, duration time.Duration) {
	t.Logger.Info("pipeline run finished",
		"run_id", runID,
		"status", status,
		"groups", groups,
		"duration_ms", duration.Milliseconds(),
	)
}

func (t *LogTelemetry) RunFailed(runID string, err error) {
	t.Logger.Error("pipeline run failed", "run_id", runID, "error", err)
}

// MultiTelemetry forwards to every wrapped Telemetry in order.
type MultiTelemetry []Telemetry

func (m MultiTelemetry) RunStarted(runID string, photos int) {
	for _, t := range m {
		t.RunStarted(runID, photos)
	}
}

func (m MultiTelemetry) LayerCompleted(runID string, stat LayerStat) {
	for _, t := range m {
		t.LayerCompleted(runID, stat)
	}
}

func (m MultiTelemetry) RunFinished(runID string, status Status, groups int, duration time.Duration) {
	for _, t := range m {
		t.RunFinished(runID, status, groups, duration)
	}
}

func (m MultiTelemetry) RunFailed(runID string, err error) {
	for _, t := range m {
		t.RunFailed(runID, err)
	}
}
