// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jllopis/steward/pkg/core"
)

func TestConfigureSlogJSONWithTrace(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "registry.execute", slog.String("operation", "read_file"))
	span.End()

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if rec["operation"] != "read_file" {
		t.Errorf("missing attribute: %v", rec)
	}
	if rec["trace_id"] == nil || rec["span_id"] == nil {
		t.Errorf("expected trace ids in %v", rec)
	}
}

func TestSetLogLevelAtRuntime(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "text")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}

	SetLogLevel("debug")
	defer SetLogLevel("info")
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected debug line after level change, got %q", buf.String())
	}
	if LogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", LogLevel())
	}
}

func TestSetLogLevelNames(t *testing.T) {
	defer SetLogLevel("info")
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		SetLogLevel(in)
		if got := LogLevel(); got != want {
			t.Errorf("SetLogLevel(%q) gave %v, want %v", in, got, want)
		}
	}
}

func TestLogsCarryRunAndJobIDs(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")
	ctx := core.WithJobID(core.WithRunID(context.Background(), "run-1"), "job_1")
	logger.InfoContext(ctx, "delegation.started", slog.String("job_id", "explicit"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if rec["run_id"] != "run-1" {
		t.Errorf("run_id = %v", rec["run_id"])
	}
	if rec["job_id"] != "explicit" {
		t.Errorf("explicit job_id should win, got %v", rec["job_id"])
	}
	if _, ok := rec["trace_id"]; ok {
		t.Errorf("no span in context, got trace_id %v", rec["trace_id"])
	}
}
