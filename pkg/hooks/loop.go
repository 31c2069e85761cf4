package hooks

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/telemetry"
)

const (
	DefaultLoopWindow    = 8
	DefaultLoopThreshold = 3
)

type loopEntry struct {
	name string
	hash [32]byte
}

// LoopDetector blocks a call once the same name and arguments have been seen
// threshold-1 times within the last window calls. Blocked calls are not
// added to the window.
type LoopDetector struct {
	mu        sync.Mutex
	window    []loopEntry
	size      int
	threshold int
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// LoopOption configures a LoopDetector.
type LoopOption func(*LoopDetector)

// WithWindow sets the number of remembered calls.
func WithWindow(n int) LoopOption {
	return func(d *LoopDetector) {
		if n > 0 {
			d.size = n
		}
	}
}

// WithThreshold sets the occurrence count that gets blocked.
func WithThreshold(n int) LoopOption {
	return func(d *LoopDetector) {
		if n > 0 {
			d.threshold = n
		}
	}
}

// WithLoopLogger sets the logger.
func WithLoopLogger(l *slog.Logger) LoopOption {
	return func(d *LoopDetector) { d.logger = l }
}

// WithLoopMetrics records blocks.
func WithLoopMetrics(m *telemetry.Metrics) LoopOption {
	return func(d *LoopDetector) { d.metrics = m }
}

// NewLoopDetector creates a detector with a window of 8 and a threshold of 3.
func NewLoopDetector(opts ...LoopOption) *LoopDetector {
	d := &LoopDetector{
		size:      DefaultLoopWindow,
		threshold: DefaultLoopThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.window = make([]loopEntry, 0, d.size)
	return d
}

// Before implements PreHook.
func (d *LoopDetector) Before(ctx context.Context, name string, args core.Args) (core.Args, *core.Result) {
	key := loopEntry{name: name, hash: hashArgs(args)}

	d.mu.Lock()
	count := 0
	for _, e := range d.window {
		if e == key {
			count++
		}
	}
	if count+1 >= d.threshold {
		d.mu.Unlock()
		d.logger.WarnContext(ctx, "hooks.loop.detected",
			slog.String("operation", name),
			slog.Int("repeats", count+1),
			slog.Int("window", d.size),
		)
		d.metrics.RecordLoopBlock(ctx, name)
		res := core.Failuref("Loop detected: '%s' has been called %d times with the same input. "+
			"Try a different approach or modify your input.", name, count+1)
		return nil, &res
	}
	if len(d.window) == d.size {
		copy(d.window, d.window[1:])
		d.window = d.window[:d.size-1]
	}
	d.window = append(d.window, key)
	d.mu.Unlock()
	return nil, nil
}

// Fork returns a detector with the same settings and an empty window.
func (d *LoopDetector) Fork() PreHook {
	return &LoopDetector{
		window:    make([]loopEntry, 0, d.size),
		size:      d.size,
		threshold: d.threshold,
		logger:    d.logger,
		metrics:   d.metrics,
	}
}

// Len returns the number of calls in the window.
func (d *LoopDetector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.window)
}

// Reset clears the window.
func (d *LoopDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = d.window[:0]
}

// hashArgs hashes the JSON form of args. encoding/json writes map keys in
// sorted order, so equal maps hash equally regardless of insertion order.
// Collisions only cause a spurious block, which the caller can work around
// by changing its input.
func hashArgs(args core.Args) [32]byte {
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", args))
	}
	return sha256.Sum256(data)
}

var (
	_ PreHook = (*LoopDetector)(nil)
	_ Forker  = (*LoopDetector)(nil)
)
