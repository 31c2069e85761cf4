package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// AuditEvent records the outcome of one workflow step.
type AuditEvent struct {
	WorkflowID string
	RunID      string
	Name       string
	Step       int
	AgentID    string
	Status     string
	Output     any
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// AuditStore persists step audit events.
type AuditStore interface {
	Record(ctx context.Context, event AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditFilter limits audit event queries. Empty fields match everything
// and a Limit of zero returns every match.
type AuditFilter struct {
	WorkflowID string
	AgentID    string
	Status     string
	Limit      int
}

func (f AuditFilter) matches(ev AuditEvent) bool {
	return (f.WorkflowID == "" || f.WorkflowID == ev.WorkflowID) &&
		(f.AgentID == "" || f.AgentID == ev.AgentID) &&
		(f.Status == "" || f.Status == ev.Status)
}

// MemoryAuditStore is an AuditStore for tests and runs without a database.
type MemoryAuditStore struct {
	mu     sync.Mutex
	events []AuditEvent
}

func NewMemoryAuditStore() *MemoryAuditStore { return &MemoryAuditStore{} }

func (s *MemoryAuditStore) Record(_ context.Context, ev AuditEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *MemoryAuditStore) List(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, ev := range s.events {
		if !filter.matches(ev) {
			continue
		}
		if out = append(out, ev); filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// encodeAuditOutput stores a nil output as JSON null.
func encodeAuditOutput(output any) ([]byte, error) {
	return json.Marshal(output)
}

func decodeAuditOutput(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	err := json.Unmarshal(raw, &out)
	return out, err
}
