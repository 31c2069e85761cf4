// Copyright 2026 © The Steward Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jllopis/steward/pkg/config"
)

// DefaultDeny lists the operations the top-level agent must delegate.
var DefaultDeny = []string{"web_search", "web_fetch", "browser"}

// DefaultRequiresVerification lists operations whose effect the top-level
// agent should confirm after a successful call.
var DefaultRequiresVerification = []string{"log_memory", "bash", "write_file", "edit_file"}

var webOperations = map[string]bool{
	"web_search": true,
	"web_fetch":  true,
	"browser":    true,
}

// Guardrail is the static deny-set applied to the top-level registry.
// It is built once and never mutated, so it is safe for concurrent use.
type Guardrail struct {
	deny   map[string]bool
	verify map[string]bool
}

// GuardrailOption configures a Guardrail.
type GuardrailOption func(*Guardrail)

// WithDeny adds names to the deny-set.
func WithDeny(names ...string) GuardrailOption {
	return func(g *Guardrail) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				g.deny[n] = true
			}
		}
	}
}

// WithRequiresVerification adds names to the requires-verification set.
func WithRequiresVerification(names ...string) GuardrailOption {
	return func(g *Guardrail) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				g.verify[n] = true
			}
		}
	}
}

// NewGuardrail creates a guardrail from the given options. With no options
// the deny-set and requires-verification set are empty.
func NewGuardrail(opts ...GuardrailOption) *Guardrail {
	g := &Guardrail{
		deny:   make(map[string]bool),
		verify: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DefaultGuardrail returns a guardrail with the default sets.
func DefaultGuardrail() *Guardrail {
	return NewGuardrail(WithDeny(DefaultDeny...), WithRequiresVerification(DefaultRequiresVerification...))
}

// GuardrailFromConfig builds the guardrail from the governance section.
// Tool and untyped policy rules with a deny effect and a literal name join
// the deny-set; the set does not change after construction.
func GuardrailFromConfig(cfg config.GovernanceConfig) *Guardrail {
	deny := append([]string(nil), cfg.Deny...)
	for _, rule := range cfg.Policies {
		if !strings.EqualFold(rule.Effect, "deny") {
			continue
		}
		if t := strings.ToLower(rule.Type); t != "" && t != string(ActionTool) {
			continue
		}
		if rule.Name == "" || strings.ContainsAny(rule.Name, "*?[") {
			continue
		}
		deny = append(deny, rule.Name)
	}
	return NewGuardrail(WithDeny(deny...), WithRequiresVerification(cfg.RequiresVerification...))
}

// Denied reports whether name is in the deny-set.
func (g *Guardrail) Denied(name string) bool {
	if g == nil {
		return false
	}
	return g.deny[name]
}

// RequiresVerification reports whether a successful call to name should be
// followed by a confirmation of its effect.
func (g *Guardrail) RequiresVerification(name string) bool {
	if g == nil {
		return false
	}
	return g.verify[name]
}

// DeniedNames returns the deny-set sorted by name.
func (g *Guardrail) DeniedNames() []string {
	if g == nil {
		return nil
	}
	names := make([]string, 0, len(g.deny))
	for n := range g.deny {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check returns a deny decision with remediation text when name is denied.
func (g *Guardrail) Check(name string) Decision {
	if !g.Denied(name) {
		return allow()
	}
	return deny("guardrail", g.Message(name))
}

// Evaluate implements PolicyEngine for tool actions.
func (g *Guardrail) Evaluate(_ context.Context, action Action) Decision {
	if action.Type != "" && action.Type != ActionTool {
		return allow()
	}
	return g.Check(action.Name)
}

// Message is the full text returned to the model when name is blocked.
func (g *Guardrail) Message(name string) string {
	violation := fmt.Sprintf("GUARDRAIL VIOLATION: the primary agent cannot use '%s' directly. "+
		"You must delegate this to a specialized agent. "+
		"Use spawn_agent or execute_workflow instead.\n"+
		"- For research/web: spawn zilla\n"+
		"- For writing: spawn gonza", name)
	return violation + "\n\nSuggestion: " + Alternative(name)
}

// Alternative suggests how to get the work done without calling name.
func Alternative(name string) string {
	if webOperations[name] {
		return "Instead of using this tool directly, spawn zilla: " +
			"spawn_agent(agent_id='zilla', task='your research task', output_path='tasks/research.json')"
	}
	return fmt.Sprintf("Tool '%s' should be delegated to an appropriate agent", name)
}

var _ PolicyEngine = (*Guardrail)(nil)
