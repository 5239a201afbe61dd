package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelWarn,
		"bogus": slog.LevelWarn,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(LogConfig{Level: "INFO", Format: "json", Writer: &buf})

	WithProjectID(logger, "123").Info("exported")

	out := buf.String()
	if !strings.Contains(out, `"project_id":"123"`) {
		t.Errorf("expected project_id in JSON log, got %s", out)
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}

	// Без логгера в контексте — глобальный
	if FromContext(context.Background()) == nil {
		t.Error("expected default logger")
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.ObserveRequest("get-models", 200, 10*time.Millisecond)
	m.ObserveRequest("get-models", 200, 10*time.Millisecond)
	m.ObserveRequest("apply-operations", 0, time.Millisecond)
	m.ObserveJobRun("nightly", errors.New("boom"))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("get-models", "200")); got != 2 {
		t.Errorf("expected 2 get-models requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("apply-operations", "error")); got != 1 {
		t.Errorf("expected 1 failed request, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("nightly", "failed")); got != 1 {
		t.Errorf("expected 1 failed job run, got %v", got)
	}

	// nil Metrics безопасен
	var nilMetrics *Metrics
	nilMetrics.ObserveRequest("x", 200, 0)
	if err := nilMetrics.WriteTextfile("/nonexistent"); err != nil {
		t.Errorf("nil metrics should not write: %v", err)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("get-version", 200, time.Millisecond)

	path := filepath.Join(t.TempDir(), "refinery.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `refinery_requests_total{command="get-version",status="200"} 1`) {
		t.Errorf("textfile missing request counter:\n%s", data)
	}
}
