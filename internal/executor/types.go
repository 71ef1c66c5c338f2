// Package executor implements the Controlled Executor (C9): a layered
// parallel runner over a planner.PhysicalDAG that checkpoints before any
// step requiring human approval and can pause, resume, abort, or replan
// from a checkpoint.
package executor

import (
	"time"

	"github.com/antigravity-dev/capgate/internal/planner"
)

// Status is the lifecycle state of one execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// StepOutcome is one completed (or skipped/failed) step's result.
type StepOutcome struct {
	StepID    string
	Tools     []string
	Success   bool
	Result    interface{}
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Checkpoint is the persisted state needed to resume an interrupted
// execution: which steps already completed, which step is pending
// approval, and why.
type Checkpoint struct {
	ID            string
	ExecutionID   string
	DAG           *planner.PhysicalDAG
	Completed     map[string]StepOutcome
	PendingStepID string
	Reasons       []string
	Status        Status
	CreatedAt     time.Time

	// TraceID and SpanID identify the OTel span active when the run
	// paused. A human approval can arrive minutes or hours later, often
	// in a different process entirely once the checkpoint has gone
	// through Redis - by the time Resume runs, ctx carries no relation
	// to the original request's trace. Resume uses these to re-link the
	// resumed work into that same trace instead of starting a disconnected one.
	TraceID string
	SpanID  string
}

// EventType discriminates the kinds of events the executor streams.
type EventType string

const (
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventPaused        EventType = "paused"
	EventResumed       EventType = "resumed"
	EventAborted       EventType = "aborted"
	EventCompleted     EventType = "completed"
)

// Event is one entry in the execution's event stream, consumable by a
// caller following live progress (e.g. the gateway's execute handler
// streaming to a client).
type Event struct {
	Type      EventType
	StepID    string
	Outcome   *StepOutcome
	Timestamp time.Time
}

// Result is what Run returns once an execution reaches a terminal state
// for this invocation (completed, paused for approval, or aborted).
type Result struct {
	ExecutionID string
	Status      Status
	Steps       []StepOutcome
	CheckpointID string // set when Status == StatusPaused
}
