// Package gateway implements the Execute Handler (C10): the single entry
// point that dispatches a request across the five execution modes
// (direct, suggestion, accept-suggestion, continue-workflow,
// call-by-name) and enforces the cross-component invariants tying the
// registry, trace store, ranker, hypergraph, threshold manager, planner,
// and executor together.
package gateway

import (
	"github.com/antigravity-dev/capgate/internal/executor"
)

// ExecuteArgs is the wire request, matching ExecuteArgs in the gateway's
// JSON contract. Exactly one of Code, AcceptSuggestion, ContinueWorkflow,
// Capability may be set; Intent is required for Direct and Suggestion.
type ExecuteArgs struct {
	Intent           string                 `json:"intent,omitempty"`
	Code             string                 `json:"code,omitempty"`
	Capability       string                 `json:"capability,omitempty"`
	Args             map[string]interface{} `json:"args,omitempty"`
	AcceptSuggestion *AcceptSuggestion       `json:"accept_suggestion,omitempty"`
	ContinueWorkflow *ContinueWorkflow       `json:"continue_workflow,omitempty"`
	Options          *RequestOptions         `json:"options,omitempty"`
}

// AcceptSuggestion carries mode 3's payload: a previously suggested
// callName plus any argument overrides.
type AcceptSuggestion struct {
	CallName string                 `json:"callName"`
	Args     map[string]interface{} `json:"args,omitempty"`
}

// ContinueWorkflow carries mode 4's payload: the id of the paused step's
// checkpoint and the human's approve/reject decision. WorkflowID is looked
// up as a checkpoint id (the checkpointId of an approval_required
// response); the execution id returned there as workflowId is not accepted.
type ContinueWorkflow struct {
	WorkflowID string `json:"workflow_id"`
	Approved   bool   `json:"approved"`
}

// RequestOptions are per-call tuning knobs.
type RequestOptions struct {
	TimeoutMs          int  `json:"timeout,omitempty"`
	PerLayerValidation bool `json:"per_layer_validation,omitempty"`
}

// Status is the ExecuteResponse discriminator.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusApprovalRequired Status = "approval_required"
	StatusSuggestions      Status = "suggestions"
)

// ExecuteResponse is the wire response.
type ExecuteResponse struct {
	Status Status `json:"status"`

	// Present when Status == success.
	Result          interface{} `json:"result,omitempty"`
	CapabilityID    string      `json:"capabilityId,omitempty"`
	CapabilityFQDN  string      `json:"capabilityFqdn,omitempty"`
	ExecutionTimeMs int64       `json:"executionTimeMs,omitempty"`
	DAG             *DAGSummary `json:"dag,omitempty"`

	// Present when Status == approval_required.
	WorkflowID   string                 `json:"workflowId,omitempty"`
	CheckpointID string                 `json:"checkpointId,omitempty"`
	PendingLayer int                    `json:"pendingLayer,omitempty"`
	LayerResults []executor.StepOutcome `json:"layerResults,omitempty"`

	// Present when Status == suggestions.
	Suggestions *SuggestionPayload `json:"suggestions,omitempty"`
}

// DAGSummary is a compact description of the physical plan that ran.
type DAGSummary struct {
	StepCount  int `json:"stepCount"`
	LayerCount int `json:"layerCount"`
}

// SuggestionPayload is mode 2's response body: a strong-match capability
// plus a plan built backward from its tools, not executed.
type SuggestionPayload struct {
	CallName     string       `json:"callName"`
	Confidence   float64      `json:"confidence"`
	SuggestedDAG SuggestedDAG `json:"suggestedDag"`
}

// SuggestedDAG is a read-only preview of the plan accept-suggestion would
// run; Tasks mirrors ExecuteResponse.dag's shape but by callName, not
// executed step id, since nothing has run yet.
type SuggestedDAG struct {
	Tasks []SuggestedTask `json:"tasks"`
}

// SuggestedTask is one tool call in a suggested plan.
type SuggestedTask struct {
	CallName string   `json:"callName"`
	Tools    []string `json:"tools"`
}
