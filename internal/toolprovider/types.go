// Package toolprovider bridges the gateway to the sandboxed code runner
// that actually executes tool calls: it lists available tools and invokes
// them, unwrapping the runner's execution envelope before the result
// reaches the executor.
package toolprovider

import "time"

// ToolDescriptor is one entry in the provider's tool catalog.
type ToolDescriptor struct {
	ID          string // "namespace:action"
	DisplayName string
	InputSchema map[string]interface{} // JSON Schema
}

// envelope is the wire shape the code runner returns: the tool's result,
// any sandbox-local state it wants preserved across calls, and how long
// it took. The executor never sees this shape directly — CallTool
// unwraps it to just Result, per the gateway's envelope-unwrapping
// decision.
type envelope struct {
	Result          interface{}            `json:"result"`
	State           map[string]interface{} `json:"state,omitempty"`
	ExecutionTimeMs int64                  `json:"executionTimeMs"`
}

// CallResult is what CallTool returns to the executor: the unwrapped
// result plus the timing the envelope carried, useful for trace records.
type CallResult struct {
	Result     interface{}
	DurationMs int64
}

// Duration is a convenience accessor mirroring how the executor logs
// step timings elsewhere.
func (r CallResult) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}
