// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"strings"
)

// ToolFilter decides which operation names a profile may list. Names are
// compared exactly, so a whitelist never grants more than it names.
type ToolFilter struct {
	allow  map[string]bool
	deny   map[string]bool
	policy PolicyEngine
}

// ToolFilterOption configures a ToolFilter.
type ToolFilterOption func(*ToolFilter)

// WithAllowlist restricts the filter to names. Without an allowlist every
// name not denied passes.
func WithAllowlist(names []string) ToolFilterOption {
	return func(f *ToolFilter) { addNames(f.allow, names) }
}

// WithDenylist rejects names even when they are allowlisted.
func WithDenylist(names []string) ToolFilterOption {
	return func(f *ToolFilter) { addNames(f.deny, names) }
}

// WithPolicyEngine consults pe for names that pass both lists.
func WithPolicyEngine(pe PolicyEngine) ToolFilterOption {
	return func(f *ToolFilter) { f.policy = pe }
}

// NewToolFilter creates a filter.
func NewToolFilter(opts ...ToolFilterOption) *ToolFilter {
	f := &ToolFilter{allow: make(map[string]bool), deny: make(map[string]bool)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func addNames(set map[string]bool, names []string) {
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = true
		}
	}
}

// IsAllowed checks name against the denylist, then the allowlist, then the
// policy engine.
func (f *ToolFilter) IsAllowed(ctx context.Context, name string) Decision {
	switch {
	case f.deny[name]:
		return deny("denylist", "operation is denylisted")
	case len(f.allow) > 0 && !f.allow[name]:
		return deny("allowlist", "operation is not in the allowlist")
	case f.policy != nil:
		return f.policy.Evaluate(ctx, Action{Type: ActionTool, Name: name})
	}
	return allow()
}

// FilterTools returns the names that pass, in input order.
func (f *ToolFilter) FilterTools(ctx context.Context, names []string) []string {
	kept, _ := f.Partition(ctx, names)
	return kept
}

// Partition splits names into the ones that pass and the ones that do not.
// Surrounding whitespace is ignored and duplicates are kept once.
func (f *ToolFilter) Partition(ctx context.Context, names []string) (kept, rejected []string) {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if seen[n] {
			continue
		}
		seen[n] = true
		if f.IsAllowed(ctx, n).IsAllowed() {
			kept = append(kept, n)
		} else {
			rejected = append(rejected, n)
		}
	}
	return kept, rejected
}
