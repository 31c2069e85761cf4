package governance

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jllopis/steward/pkg/config"
)

// ActionType is the kind of thing a policy rule guards.
type ActionType string

const (
	// ActionTool is a call to a registry operation.
	ActionTool ActionType = "tool"
	// ActionAgent is a delegation to the profile with the given id.
	ActionAgent ActionType = "agent"
	// ActionMCP is a tool offered by an external MCP server.
	ActionMCP ActionType = "mcp"
)

// Action is what a PolicyEngine decides on.
type Action struct {
	Type     ActionType
	Name     string
	Metadata map[string]string
}

// DecisionStatus is the outcome of an evaluation.
type DecisionStatus string

const (
	DecisionStatusAllow DecisionStatus = "allow"
	DecisionStatusDeny  DecisionStatus = "deny"
)

// Decision is the result of evaluating an Action. RuleID names the rule
// that matched, if any.
type Decision struct {
	Status DecisionStatus
	RuleID string
	Reason string
}

func allow() Decision { return Decision{Status: DecisionStatusAllow} }

func deny(ruleID, reason string) Decision {
	return Decision{Status: DecisionStatusDeny, RuleID: ruleID, Reason: reason}
}

// IsAllowed reports whether the decision permits the action. The zero
// Decision denies.
func (d Decision) IsAllowed() bool { return d.Status == DecisionStatusAllow }

// IsDenied is the negation of IsAllowed.
func (d Decision) IsDenied() bool { return !d.IsAllowed() }

// PolicyEngine evaluates actions.
type PolicyEngine interface {
	Evaluate(ctx context.Context, action Action) Decision
}

// Rule is one entry of a RuleSet. An empty Type matches every action type.
// Name is a doublestar pattern; empty matches every name.
type Rule struct {
	ID     string
	Effect string
	Type   ActionType
	Name   string
	Reason string
}

func (r Rule) matches(action Action) bool {
	if r.Type != "" && r.Type != action.Type {
		return false
	}
	if r.Name == "" || r.Name == action.Name {
		return true
	}
	ok, err := doublestar.Match(r.Name, action.Name)
	return err == nil && ok
}

// RuleSet evaluates rules in order; the first matching rule decides.
// Actions no rule matches are allowed.
type RuleSet struct {
	Rules []Rule
}

// NewRuleSet copies rules into a new RuleSet.
func NewRuleSet(rules []Rule) *RuleSet {
	return &RuleSet{Rules: append([]Rule(nil), rules...)}
}

// Evaluate implements PolicyEngine. Only an "allow" effect permits; any
// other effect, including "pending", denies since nothing here can wait for
// an approval.
func (r *RuleSet) Evaluate(_ context.Context, action Action) Decision {
	if r == nil {
		return allow()
	}
	for _, rule := range r.Rules {
		if !rule.matches(action) {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rule.Effect), string(DecisionStatusAllow)) {
			return Decision{Status: DecisionStatusAllow, RuleID: rule.ID, Reason: rule.Reason}
		}
		return deny(rule.ID, rule.Reason)
	}
	return allow()
}

// RuleSetFromConfig builds a RuleSet from governance.policies. Rules without
// an id are named rule-<position>.
func RuleSetFromConfig(cfg config.GovernanceConfig) *RuleSet {
	rules := make([]Rule, 0, len(cfg.Policies))
	for i, pc := range cfg.Policies {
		id := strings.TrimSpace(pc.ID)
		if id == "" {
			id = fmt.Sprintf("rule-%d", i+1)
		}
		rules = append(rules, Rule{
			ID:     id,
			Effect: pc.Effect,
			Type:   ActionType(strings.ToLower(strings.TrimSpace(pc.Type))),
			Name:   pc.Name,
			Reason: pc.Reason,
		})
	}
	return NewRuleSet(rules)
}
