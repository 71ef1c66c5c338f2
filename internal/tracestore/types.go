// Package tracestore implements the Trace Store (C3): an append-only log
// of execution traces with PER (Prioritized Experience Replay) sampling
// weights consumed by the SHGAT ranker's training loop.
package tracestore

import "time"

// Decision records which branch arm a control node took, as inferred by
// the Static Structure Builder's inferDecisions.
type Decision struct {
	NodeID string `json:"nodeId"`
	Arm    string `json:"arm"`
}

// Trace is one execution's permanent record.
type Trace struct {
	ID               string                 `json:"id"`
	CapabilityID     string                 `json:"capabilityId,omitempty"`
	Intent           string                 `json:"intent"`
	ExecutedPath     []string               `json:"executedPath"`
	TaskResults      map[string]interface{} `json:"taskResults,omitempty"`
	Decisions        []Decision             `json:"decisions,omitempty"`
	DurationMs       int64                  `json:"durationMs"`
	Success          bool                   `json:"success"`
	IntentEmbedding  []float32              `json:"intentEmbedding,omitempty"`
	Priority         float64                `json:"priority"`
	CreatedAt        time.Time              `json:"createdAt"`
}
