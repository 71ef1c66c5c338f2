package resilience

import "github.com/antigravity-dev/capgate/telemetry"

// Every breaker and retry loop in this package guards exactly one kind of
// call: a tool invocation against the sandboxed code runner (see
// internal/toolprovider.HTTPProvider). The retry label sets below carry
// "tool_id" rather than a generic "operation" so a dashboard can break
// retry failures down by which tool is flaky; the circuit-breaker label
// sets are keyed by the breaker's "name".
func init() {
	// ONLY declare metrics, don't initialize
	telemetry.DeclareMetrics("circuit_breaker", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{
				Name: "circuit_breaker.calls",
				Type: "counter",
				Help: "Total tool-call circuit breaker invocations",
				Labels: []string{"name", "state"},
			},
			{
				Name: "circuit_breaker.duration_ms",
				Type: "histogram",
				Help: "Tool-call circuit breaker duration in milliseconds",
				Labels: []string{"name", "status"},
				Unit: "ms",
				Buckets: []float64{0.1, 1, 10, 100, 1000},
			},
			{
				Name: "circuit_breaker.failures",
				Type: "counter",
				Help: "Tool-call circuit breaker failures",
				Labels: []string{"name", "error_type"},
			},
			{
				Name: "circuit_breaker.state_changes",
				Type: "counter",
				Help: "Tool-call circuit breaker state transitions",
				Labels: []string{"name", "from_state", "to_state"},
			},
			{
				Name: "circuit_breaker.current_state",
				Type: "gauge",
				Help: "Current tool-call circuit breaker state (0=closed, 0.5=half-open, 1=open)",
				Labels: []string{"name"},
			},
			{
				Name: "circuit_breaker.rejected",
				Type: "counter",
				Help: "Tool calls rejected by an open circuit",
				Labels: []string{"name"},
			},
		},
	})

	telemetry.DeclareMetrics("toolcall_retry", telemetry.ModuleConfig{
		Metrics: []telemetry.MetricDefinition{
			{
				Name: "toolcall_retry.attempts",
				Type: "counter",
				Help: "Total tool-call retry attempts",
				Labels: []string{"tool_id", "attempt_number"},
			},
			{
				Name: "toolcall_retry.success",
				Type: "counter",
				Help: "Tool calls that eventually succeeded after a retry",
				Labels: []string{"tool_id", "final_attempt"},
			},
			{
				Name: "toolcall_retry.failures",
				Type: "counter",
				Help: "Tool calls that failed after exhausting all retries",
				Labels: []string{"tool_id", "error_type"},
			},
			{
				Name: "toolcall_retry.duration_ms",
				Type: "histogram",
				Help: "Total duration of a tool call including all retry attempts",
				Labels: []string{"tool_id", "status"},
				Unit: "ms",
				Buckets: []float64{1, 10, 100, 1000, 10000},
			},
			{
				Name: "toolcall_retry.backoff_ms",
				Type: "histogram",
				Help: "Backoff duration between tool-call retries",
				Labels: []string{"tool_id", "strategy"},
				Unit: "ms",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000},
			},
		},
	})
}