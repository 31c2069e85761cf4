package core

import (
	"context"
	"time"
)

// EventType names a milestone of the orchestration core.
type EventType string

// Event types. Operation and model events fire on every occurrence; the
// delegation and workflow ones bracket a job or a workflow.
const (
	EventOperationBlocked   EventType = "operation.blocked"
	EventDelegationStarted  EventType = "delegation.started"
	EventDelegationFinished EventType = "delegation.finished"
	EventWorkflowStep       EventType = "workflow.step"
	EventWorkflowFinished   EventType = "workflow.finished"
	EventModelFallback      EventType = "model.fallback"
)

// Event is one milestone. JobID holds the delegation job or workflow id the
// event belongs to and RunID the top-level run, when known.
type Event struct {
	Type      EventType
	Source    string
	JobID     string
	RunID     string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives events. Implementations must not block the caller.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter drops every event.
type NoopEventEmitter struct{}

func (NoopEventEmitter) Emit(context.Context, Event) {}

// EventEmitterFunc adapts a function to EventEmitter.
type EventEmitterFunc func(ctx context.Context, event Event)

func (f EventEmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NewEvent stamps an event with the current UTC time.
func NewEvent(t EventType, source, jobID string, payload map[string]any) Event {
	return Event{Type: t, Source: source, JobID: jobID, Timestamp: time.Now().UTC(), Payload: payload}
}

// NewEventContext is NewEvent with the run id, and the job id when jobID is
// empty, taken from ctx.
func NewEventContext(ctx context.Context, t EventType, source, jobID string, payload map[string]any) Event {
	ev := NewEvent(t, source, jobID, payload)
	ev.RunID, _ = RunID(ctx)
	if ev.JobID == "" {
		ev.JobID, _ = JobID(ctx)
	}
	return ev
}
