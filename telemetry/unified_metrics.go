// Package telemetry provides unified metrics infrastructure for the
// capability-learning execution gateway.
//
// This file defines the unified metrics contract that enables consistent
// observability across gateway components (gateway, executor,
// toolprovider). Using these unified metrics ensures that dashboards and
// queries work regardless of which component recorded the event.
//
// Usage:
//
//	telemetry.RecordRequest(telemetry.ModuleGateway, "execute", durationMs, "success")
//	telemetry.RecordToolCall(telemetry.ModuleExecutor, "org.proj.ns.act.ab12", durationMs, status)
package telemetry

// Module label values for identifying metric sources.
const (
	// ModuleGateway identifies metrics from the Execute Handler (C10).
	ModuleGateway = "gateway"

	// ModuleExecutor identifies metrics from the Controlled Executor (C9).
	ModuleExecutor = "executor"

	// ModuleToolProvider identifies metrics from the tool-provider bridge.
	ModuleToolProvider = "toolprovider"
)

// Unified metric names - use these constants to ensure consistent naming.
const (
	UnifiedRequestDuration = "request.duration_ms"
	UnifiedRequestTotal    = "request.total"
	UnifiedRequestErrors   = "request.errors"

	UnifiedToolCallDuration = "tool.call.duration_ms"
	UnifiedToolCallTotal    = "tool.call.total"
	UnifiedToolCallErrors   = "tool.call.errors"
	UnifiedToolCallRetries  = "tool.call.retries"
)

// RecordRequest records unified request metrics with proper module
// labeling. Call at the end of any user-facing request handler.
func RecordRequest(module string, operation string, durationMs float64, status string) {
	Histogram(UnifiedRequestDuration, durationMs,
		"module", module,
		"operation", operation,
		"status", status,
	)
	Counter(UnifiedRequestTotal,
		"module", module,
		"operation", operation,
		"status", status,
	)
}

// RecordRequestError records a request error with error type classification.
func RecordRequestError(module string, operation string, errorType string) {
	Counter(UnifiedRequestErrors,
		"module", module,
		"operation", operation,
		"error_type", errorType,
	)
}

// RecordToolCall records tool/capability call metrics. Call after each
// tool invocation through the tool-provider bridge completes.
func RecordToolCall(module string, toolName string, durationMs float64, status string) {
	Histogram(UnifiedToolCallDuration, durationMs,
		"module", module,
		"tool_name", toolName,
		"status", status,
	)
	Counter(UnifiedToolCallTotal,
		"module", module,
		"tool_name", toolName,
		"status", status,
	)
}

// RecordToolCallError records a tool call error with error type classification.
func RecordToolCallError(module string, toolName string, errorType string) {
	Counter(UnifiedToolCallErrors,
		"module", module,
		"tool_name", toolName,
		"error_type", errorType,
	)
}

// RecordToolCallRetry records a tool call retry attempt.
func RecordToolCallRetry(module string, toolName string) {
	Counter(UnifiedToolCallRetries,
		"module", module,
		"tool_name", toolName,
	)
}

func init() {
	DeclareMetrics("unified", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:    UnifiedRequestDuration,
				Type:    "histogram",
				Help:    "Request processing duration in milliseconds",
				Labels:  []string{"module", "operation", "status"},
				Unit:    "ms",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
			},
			{
				Name:   UnifiedRequestTotal,
				Type:   "counter",
				Help:   "Total requests processed",
				Labels: []string{"module", "operation", "status"},
			},
			{
				Name:   UnifiedRequestErrors,
				Type:   "counter",
				Help:   "Request errors by type",
				Labels: []string{"module", "operation", "error_type"},
			},
			{
				Name:    UnifiedToolCallDuration,
				Type:    "histogram",
				Help:    "Tool/capability call duration in milliseconds",
				Labels:  []string{"module", "tool_name", "status"},
				Unit:    "ms",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000},
			},
			{
				Name:   UnifiedToolCallTotal,
				Type:   "counter",
				Help:   "Total tool calls",
				Labels: []string{"module", "tool_name", "status"},
			},
			{
				Name:   UnifiedToolCallErrors,
				Type:   "counter",
				Help:   "Tool call errors by type",
				Labels: []string{"module", "tool_name", "error_type"},
			},
			{
				Name:   UnifiedToolCallRetries,
				Type:   "counter",
				Help:   "Tool call retry attempts",
				Labels: []string{"module", "tool_name"},
			},
		},
	})
}
