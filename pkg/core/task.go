package core

import "time"

// Status describes the lifecycle state of a delegated job or workflow run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
// Status only ever moves forward from running to a terminal state.
func (s Status) CanTransition(next Status) bool {
	return s == StatusRunning && next.Terminal()
}

// Icon returns the short marker used in human-readable listings.
func (s Status) Icon() string {
	switch s {
	case StatusRunning:
		return "▶️"
	case StatusCompleted:
		return "✅"
	case StatusFailed:
		return "❌"
	default:
		return "•"
	}
}

// Elapsed returns the whole minutes between start and now, never negative.
func Elapsed(start, now time.Time) int {
	if now.Before(start) {
		return 0
	}
	return int(now.Sub(start) / time.Minute)
}
