package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/memory"
	"github.com/jllopis/steward/pkg/resilience"
	"github.com/jllopis/steward/pkg/telemetry"
)

const (
	DefaultMemoryTTL     = 5 * time.Minute
	DefaultMemoryMinText = 10

	// MemoryContextField is the argument added to messaging operations.
	MemoryContextField = "__memory_context"

	cacheKeyRunes   = 100
	snippetRunes    = 200
	maxSnippets     = 3
	minSharedTokens = 2
)

// Target describes an operation the injector enriches.
type Target struct {
	// Field is the free-text argument searched for.
	Field string
	// Append adds the context to Field itself. Otherwise it goes into
	// MemoryContextField.
	Append bool
}

// DefaultTargets are the messaging and delegation operations.
var DefaultTargets = map[string]Target{
	"send_message": {Field: "text"},
	"spawn_agent":  {Field: "task", Append: true},
	"sub_agent":    {Field: "task", Append: true},
}

type cacheEntry struct {
	context string
	at      time.Time
}

// MemoryStats are cumulative injector counters.
type MemoryStats struct {
	CacheHits   int64
	CacheMisses int64
	StoreReads  int64
	Injections  int64
}

// MemoryInjector adds snippets from a knowledge store to messaging and
// delegation calls. Lookups are cached by a normalized text prefix and
// concurrent identical lookups share one store read.
type MemoryInjector struct {
	store   memory.Store
	targets map[string]Target
	ttl     time.Duration
	minText int
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
	group singleflight.Group

	hits, misses, reads, injections atomic.Int64
}

// MemoryOption configures a MemoryInjector.
type MemoryOption func(*MemoryInjector)

// WithTTL sets how long a cached lookup is reused.
func WithTTL(d time.Duration) MemoryOption {
	return func(m *MemoryInjector) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithMinText sets the shortest text that triggers a lookup.
func WithMinText(n int) MemoryOption {
	return func(m *MemoryInjector) { m.minText = n }
}

// WithTargets replaces the enriched operations.
func WithTargets(targets map[string]Target) MemoryOption {
	return func(m *MemoryInjector) { m.targets = maps.Clone(targets) }
}

// WithBreaker guards store reads with a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) MemoryOption {
	return func(m *MemoryInjector) { m.breaker = cb }
}

// WithMemoryLogger sets the logger.
func WithMemoryLogger(l *slog.Logger) MemoryOption {
	return func(m *MemoryInjector) { m.logger = l }
}

// WithMemoryMetrics records lookups.
func WithMemoryMetrics(mt *telemetry.Metrics) MemoryOption {
	return func(m *MemoryInjector) { m.metrics = mt }
}

// NewMemoryInjector creates an injector over store. A nil store disables it.
func NewMemoryInjector(store memory.Store, opts ...MemoryOption) *MemoryInjector {
	m := &MemoryInjector{
		store:   store,
		targets: maps.Clone(DefaultTargets),
		ttl:     DefaultMemoryTTL,
		minText: DefaultMemoryMinText,
		logger:  slog.Default(),
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Before implements PreHook.
func (m *MemoryInjector) Before(ctx context.Context, name string, args core.Args) (core.Args, *core.Result) {
	target, ok := m.targets[name]
	if !ok || m.store == nil {
		return nil, nil
	}
	text, _ := core.StringArg(args, target.Field)
	if len(text) < m.minText {
		return nil, nil
	}

	found := m.lookup(ctx, text)
	if found == "" {
		return nil, nil
	}
	m.injections.Add(1)

	out := maps.Clone(args)
	if target.Append {
		out[target.Field] = text + found
	} else {
		out[MemoryContextField] = found
	}
	return out, nil
}

// Stats returns the injector counters.
func (m *MemoryInjector) Stats() MemoryStats {
	return MemoryStats{
		CacheHits:   m.hits.Load(),
		CacheMisses: m.misses.Load(),
		StoreReads:  m.reads.Load(),
		Injections:  m.injections.Load(),
	}
}

// CacheLen returns the number of cached lookups.
func (m *MemoryInjector) CacheLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

func cacheKey(text string) string {
	r := []rune(text)
	if len(r) > cacheKeyRunes {
		r = r[:cacheKeyRunes]
	}
	return strings.ToLower(string(r))
}

func (m *MemoryInjector) lookup(ctx context.Context, text string) string {
	key := cacheKey(text)
	if found, ok := m.cached(key); ok {
		m.hits.Add(1)
		m.metrics.RecordMemoryLookup(ctx, true, boolToInt(found != ""))
		return found
	}
	m.misses.Add(1)

	v, _, _ := m.group.Do(key, func() (any, error) {
		if found, ok := m.cached(key); ok {
			return found, nil
		}
		found, err := m.search(ctx, text)
		if err != nil {
			m.logger.WarnContext(ctx, "hooks.memory.store_failed", slog.String("error", err.Error()))
			return "", nil
		}
		m.remember(key, found)
		return found, nil
	})
	found, _ := v.(string)
	m.metrics.RecordMemoryLookup(ctx, false, boolToInt(found != ""))
	return found
}

func (m *MemoryInjector) cached(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[key]
	if !ok || m.now().Sub(e.at) >= m.ttl {
		return "", false
	}
	return e.context, true
}

// remember stores a lookup and prunes entries older than twice the TTL.
func (m *MemoryInjector) remember(key, found string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.cache[key] = cacheEntry{context: found, at: now}
	for k, e := range m.cache {
		if now.Sub(e.at) >= 2*m.ttl {
			delete(m.cache, k)
		}
	}
}

type snippet struct {
	text  string
	score int
}

func (m *MemoryInjector) search(ctx context.Context, text string) (string, error) {
	words := memory.ExtractWords(text)
	if len(words) == 0 {
		return "", nil
	}

	var docs []memory.Document
	read := func(ctx context.Context) error {
		m.reads.Add(1)
		var err error
		docs, err = m.store.Documents(ctx, text)
		return err
	}
	var err error
	if m.breaker != nil {
		err = m.breaker.Call(ctx, read)
	} else {
		err = read(ctx)
	}
	if err != nil {
		return "", err
	}

	var found []snippet
	for _, doc := range docs {
		if memory.CountMatches(doc.Content, words) < minSharedTokens {
			continue
		}
		para, score, ok := memory.BestParagraph(doc.Content, words, minSharedTokens)
		if !ok {
			continue
		}
		found = append(found, snippet{
			text:  fmt.Sprintf("[%s] %s", doc.Source, strings.TrimSpace(memory.TruncateRunes(para, snippetRunes))),
			score: score,
		})
	}
	if len(found) == 0 {
		return "", nil
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].score > found[j].score })
	if len(found) > maxSnippets {
		found = found[:maxSnippets]
	}
	parts := make([]string, len(found))
	for i, s := range found {
		parts[i] = s.text
	}
	return "\n[Memory context]: " + strings.Join(parts, " | "), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ PreHook = (*MemoryInjector)(nil)
