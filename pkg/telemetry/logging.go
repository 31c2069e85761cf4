// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/steward/pkg/core"
)

// level backs every handler built by ConfigureSlog.
var level = new(slog.LevelVar)

// ConfigureSlog installs and returns the default logger. format is "json"
// or anything else for text. Records logged with a context gain trace_id,
// span_id, run_id and job_id when those are known.
func ConfigureSlog(output io.Writer, lvl, format string) *slog.Logger {
	SetLogLevel(lvl)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(output, opts)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(output, opts)
	}
	logger := slog.New(correlationHandler{Handler: h})
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel changes the level of loggers built by ConfigureSlog. Unknown
// names mean info.
func SetLogLevel(name string) {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	level.Set(l)
}

// LogLevel returns the current level.
func LogLevel() slog.Level {
	return level.Level()
}

type correlationHandler struct {
	slog.Handler
}

func (h correlationHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		present := keysOf(r)
		add := func(key, value string) {
			if value != "" && !present[key] {
				r.AddAttrs(slog.String(key, value))
			}
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			add("trace_id", sc.TraceID().String())
			add("span_id", sc.SpanID().String())
		}
		if id, ok := core.RunID(ctx); ok {
			add("run_id", id)
		}
		if id, ok := core.JobID(ctx); ok {
			add("job_id", id)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return correlationHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h correlationHandler) WithGroup(name string) slog.Handler {
	return correlationHandler{Handler: h.Handler.WithGroup(name)}
}

func keysOf(r slog.Record) map[string]bool {
	keys := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		keys[a.Key] = true
		return true
	})
	return keys
}
