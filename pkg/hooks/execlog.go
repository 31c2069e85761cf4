package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/steward/pkg/core"
)

const (
	DefaultExecLogMaxBytes    = 10 * 1024 * 1024
	DefaultExecLogGenerations = 3
)

// Error categories written to the execution log.
const (
	ErrorTypePermission = "permission"
	ErrorTypeGuardrail  = "guardrail"
	ErrorTypeNotFound   = "not_found"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeLoop       = "loop"
	ErrorTypeOther      = "other"
)

// ExecRecord is one line of the execution log.
type ExecRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Operation  string    `json:"operation"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	ErrorType  string    `json:"error_type,omitempty"`
}

// ExecLogger appends one JSON line per call and rotates the file once it
// reaches maxBytes, keeping a fixed number of numbered generations.
// Failures are logged at debug level and never reach the caller.
type ExecLogger struct {
	mu          sync.Mutex
	path        string
	maxBytes    int64
	generations int
	logger      *slog.Logger
	now         func() time.Time
}

// ExecLogOption configures an ExecLogger.
type ExecLogOption func(*ExecLogger)

// WithMaxBytes sets the rotation threshold.
func WithMaxBytes(n int64) ExecLogOption {
	return func(l *ExecLogger) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithGenerations sets how many rotated files are kept.
func WithGenerations(n int) ExecLogOption {
	return func(l *ExecLogger) {
		if n > 0 {
			l.generations = n
		}
	}
}

// WithExecLogLogger sets the diagnostic logger.
func WithExecLogLogger(lg *slog.Logger) ExecLogOption {
	return func(l *ExecLogger) { l.logger = lg }
}

// NewExecLogger creates a logger writing to path.
func NewExecLogger(path string, opts ...ExecLogOption) *ExecLogger {
	l := &ExecLogger{
		path:        path,
		maxBytes:    DefaultExecLogMaxBytes,
		generations: DefaultExecLogGenerations,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the active log file.
func (l *ExecLogger) Path() string { return l.path }

// After implements PostHook.
func (l *ExecLogger) After(ctx context.Context, name string, _ core.Args, result core.Result, d time.Duration) {
	rec := ExecRecord{
		Timestamp:  l.now().UTC(),
		Operation:  name,
		DurationMs: d.Milliseconds(),
		Success:    !result.IsError,
	}
	if result.IsError {
		rec.ErrorType = ClassifyErrorType(result.Content)
	}
	if err := l.write(rec); err != nil {
		l.logger.DebugContext(ctx, "hooks.execlog.write_failed", slog.String("error", err.Error()))
	}
}

func (l *ExecLogger) write(rec ExecRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotate(); err != nil {
		l.logger.Debug("hooks.execlog.rotate_failed", slog.String("error", err.Error()))
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// rotate shifts path.N-1 to path.N down to path to path.1 when the active
// file is at or over the limit. The oldest generation is overwritten.
// Must be called under lock.
func (l *ExecLogger) rotate() error {
	info, err := os.Stat(l.path)
	if err != nil || info.Size() < l.maxBytes {
		return nil
	}
	for i := l.generations - 1; i >= 1; i-- {
		from := generation(l.path, i)
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, generation(l.path, i+1))
		}
	}
	return os.Rename(l.path, generation(l.path, 1))
}

func generation(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

// ClassifyErrorType maps an error result's text to a coarse category.
func ClassifyErrorType(content string) string {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "permission denied"):
		return ErrorTypePermission
	case strings.Contains(lower, "guardrail violation"):
		return ErrorTypeGuardrail
	case strings.Contains(lower, "loop detected"):
		return ErrorTypeLoop
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return ErrorTypeTimeout
	case strings.Contains(lower, "not found"), strings.Contains(lower, "unknown operation"):
		return ErrorTypeNotFound
	default:
		return ErrorTypeOther
	}
}

var _ PostHook = (*ExecLogger)(nil)
