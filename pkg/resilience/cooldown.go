// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"sync"
	"time"
)

const (
	// DefaultCooldownBase is the cooldown unit doubled per consecutive failure.
	DefaultCooldownBase = 30 * time.Second
	// DefaultCooldownCeiling caps any single cooldown.
	DefaultCooldownCeiling = 600 * time.Second

	maxCooldownExponent = 10
)

type cooldownState struct {
	failures int
	until    time.Time
}

// ModelCooldown tracks consecutive failures per model and keeps failing
// models out of rotation for an exponentially growing window. It is safe for
// concurrent use and holds no process-wide state.
type ModelCooldown struct {
	mu      sync.Mutex
	base    time.Duration
	ceiling time.Duration
	now     func() time.Time
	models  map[string]*cooldownState
}

// NewModelCooldown returns a tracker. Non-positive durations fall back to the
// defaults.
func NewModelCooldown(base, ceiling time.Duration) *ModelCooldown {
	if base <= 0 {
		base = DefaultCooldownBase
	}
	if ceiling <= 0 {
		ceiling = DefaultCooldownCeiling
	}
	return &ModelCooldown{
		base:    base,
		ceiling: ceiling,
		now:     time.Now,
		models:  make(map[string]*cooldownState),
	}
}

// Duration returns the cooldown applied after failures consecutive failures.
func (c *ModelCooldown) Duration(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	exp := min(failures, maxCooldownExponent)
	d := c.base * time.Duration(1<<exp)
	return min(d, c.ceiling)
}

// RecordFailure counts a failure for model and returns the new cooldown.
func (c *ModelCooldown) RecordFailure(model string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.models[model]
	if !ok {
		st = &cooldownState{}
		c.models[model] = st
	}
	st.failures++
	d := c.Duration(st.failures)
	st.until = c.now().Add(d)
	return d
}

// RecordSuccess clears all failure state for model.
func (c *ModelCooldown) RecordSuccess(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.models, model)
}

// IsCoolingDown reports whether model is inside its cooldown window.
func (c *ModelCooldown) IsCoolingDown(model string) bool {
	return c.Remaining(model) > 0
}

// Remaining returns how long model stays in cooldown.
func (c *ModelCooldown) Remaining(model string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.models[model]
	if !ok {
		return 0
	}
	return max(st.until.Sub(c.now()), 0)
}

// Failures returns the consecutive failure count for model.
func (c *ModelCooldown) Failures(model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.models[model]; ok {
		return st.failures
	}
	return 0
}

// SelectAvailable returns the first model not cooling down. When every model
// is cooling it returns the first one anyway. ok is false only for an empty list.
func (c *ModelCooldown) SelectAvailable(models []string) (model string, ok bool) {
	if len(models) == 0 {
		return "", false
	}
	for _, m := range models {
		if !c.IsCoolingDown(m) {
			return m, true
		}
	}
	return models[0], true
}

// Order returns models with the non-cooling ones first, each group keeping
// its original order.
func (c *ModelCooldown) Order(models []string) []string {
	ready := make([]string, 0, len(models))
	var cooling []string
	for _, m := range models {
		if c.IsCoolingDown(m) {
			cooling = append(cooling, m)
			continue
		}
		ready = append(ready, m)
	}
	return append(ready, cooling...)
}
