package command

import (
	"math"
	"time"
)

// Priority orders pending commands for dispatch.
type Priority string

// Priority constants, most urgent first.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// AllPriorities returns all valid priorities, most urgent first.
func AllPriorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}
}

// Rank returns the dispatch rank of p (0 is dispatched first) and whether p
// is a known priority.
func (p Priority) Rank() (int, bool) {
	switch p {
	case PriorityCritical:
		return 0, true
	case PriorityHigh:
		return 1, true
	case PriorityNormal:
		return 2, true
	case PriorityLow:
		return 3, true
	}
	return 0, false
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	_, ok := p.Rank()
	return ok
}

// Status is the lifecycle state of a command.
type Status string

// Status constants.
const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// AllStatuses returns all valid command statuses.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusExecuting, StatusCompleted, StatusFailed, StatusCancelled}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusExecuting, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// transitions lists the legal targets of UpdateStatus per source status.
// The executing -> pending retry path is handled by Requeue only.
var transitions = map[Status][]Status{
	StatusPending:   {StatusExecuting, StatusCancelled},
	StatusExecuting: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether UpdateStatus accepts from -> to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DefaultMaxRetries is the retry budget of a command built with New.
const DefaultMaxRetries = 3

// Command is a request for a device to perform an action.
type Command struct {
	ID         string         `json:"command_id"`
	DeviceID   string         `json:"device_id"`
	Type       string         `json:"command_type"`
	Parameters map[string]any `json:"parameters"`
	Priority   Priority       `json:"priority"`
	Status     Status         `json:"status"`

	// CreatedAt is when the command was submitted. QueuedAt is when it last
	// entered the queue and drives its dispatch score; it moves forward on
	// every retry while CreatedAt never changes.
	CreatedAt   time.Time  `json:"created_at"`
	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	RequestedBy  string         `json:"requested_by,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
}

// New builds a pending command with the default retry budget.
// The id and timestamps are assigned by Store.Create.
func New(deviceID, commandType string, parameters map[string]any, priority Priority) Command {
	if parameters == nil {
		parameters = map[string]any{}
	}
	return Command{
		DeviceID:   deviceID,
		Type:       commandType,
		Parameters: parameters,
		Priority:   priority,
		Status:     StatusPending,
		MaxRetries: DefaultMaxRetries,
	}
}

// CanRetry reports whether a failed execution may be requeued.
func (c Command) CanRetry() bool {
	return c.RetryCount < c.MaxRetries
}

// Score encoding: the priority rank occupies whole multiples of rankSpan and
// the queue time, in microseconds since scoreEpoch, fills the space below.
// 4*rankSpan stays under 2^53, so every score is an exact float64 integer.
const rankSpan = 1e15

var scoreEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Score returns the dispatch score of a command with priority p queued at t.
// Lower scores are dispatched first. Unknown priorities sort after low.
func Score(p Priority, t time.Time) float64 {
	rank, ok := p.Rank()
	if !ok {
		rank = 4
	}
	return float64(rank)*rankSpan + normalizedTime(t)
}

// normalizedTime maps t into [0, rankSpan). Times outside the roughly
// 31-year window after scoreEpoch are clamped to its ends.
func normalizedTime(t time.Time) float64 {
	us := float64(t.Sub(scoreEpoch).Microseconds())
	if us < 0 {
		return 0
	}
	return math.Min(us, rankSpan-1)
}
