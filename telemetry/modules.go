package telemetry

// This file declares metrics for every gateway subsystem up front so
// cardinality limits and dashboards don't depend on call-site ordering.

func init() {
	DeclareMetrics("registry", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "registry.register",
				Type:   "counter",
				Help:   "Capability registrations",
				Labels: []string{"scope", "result"},
			},
			{
				Name:   "registry.lookup",
				Type:   "counter",
				Help:   "Capability lookups by fqdn or scope",
				Labels: []string{"scope", "result"},
			},
			{
				Name:   "registry.usage_count",
				Type:   "gauge",
				Help:   "Capability usage counter snapshot",
				Labels: []string{"fqdn"},
			},
		},
	})

	DeclareMetrics("tracestore", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "tracestore.append",
				Type:   "counter",
				Help:   "Execution traces appended",
				Labels: []string{"result"},
			},
			{
				Name:    "tracestore.sample.priority",
				Type:    "histogram",
				Help:    "PER priority of sampled traces",
				Labels:  []string{},
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10},
			},
		},
	})

	DeclareMetrics("hyperpath", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:    "hyperpath.query.duration_ms",
				Type:    "histogram",
				Help:    "DR-DSP shortest-hyperpath query latency",
				Labels:  []string{"result"},
				Unit:    "ms",
				Buckets: []float64{1, 5, 25, 100, 500, 2000},
			},
			{
				Name:   "hyperpath.update.apply",
				Type:   "counter",
				Help:   "Incremental hypergraph edge-weight updates applied",
				Labels: []string{},
			},
		},
	})

	DeclareMetrics("ranker", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "ranker.score.count",
				Type:   "counter",
				Help:   "SHGAT scoring calls",
				Labels: []string{},
			},
			{
				Name:   "ranker.train.examples",
				Type:   "counter",
				Help:   "Training examples consumed from PER",
				Labels: []string{"outcome"},
			},
			{
				Name:   "ranker.train.busy_rejections",
				Type:   "counter",
				Help:   "Training requests rejected because a session was already in progress",
				Labels: []string{},
			},
		},
	})

	DeclareMetrics("thompson", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "thompson.sample",
				Type:   "counter",
				Help:   "Threshold samples drawn",
				Labels: []string{"tool"},
			},
			{
				Name:   "thompson.posterior.alpha",
				Type:   "gauge",
				Help:   "Current alpha of a tool's Beta posterior",
				Labels: []string{"tool"},
			},
			{
				Name:   "thompson.posterior.beta",
				Type:   "gauge",
				Help:   "Current beta of a tool's Beta posterior",
				Labels: []string{"tool"},
			},
		},
	})

	DeclareMetrics("executor", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "executor.step.executions",
				Type:   "counter",
				Help:   "Plan step executions",
				Labels: []string{"status"},
			},
			{
				Name:    "executor.step.duration_ms",
				Type:    "histogram",
				Help:    "Plan step execution duration",
				Labels:  []string{"status"},
				Unit:    "ms",
				Buckets: []float64{1, 10, 100, 1000, 10000, 60000},
			},
			{
				Name:   "executor.checkpoints.pending",
				Type:   "gauge",
				Help:   "HIL checkpoints awaiting a decision",
				Labels: []string{},
			},
			{
				Name:   "executor.layer.width",
				Type:   "histogram",
				Help:   "Number of steps running concurrently per DAG layer",
				Labels: []string{},
				Buckets: []float64{1, 2, 4, 8, 16, 32},
			},
		},
	})

	DeclareMetrics("gateway", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "gateway.execute.requests",
				Type:   "counter",
				Help:   "Execute requests by dispatch mode",
				Labels: []string{"mode", "status"},
			},
			{
				Name:   "memory.operations",
				Type:   "counter",
				Help:   "Scratch memory store operations",
				Labels: []string{"operation", "memory_type"},
			},
			{
				Name:   "memory.cache.hits",
				Type:   "counter",
				Help:   "Scratch memory cache hits",
				Labels: []string{"memory_type"},
			},
			{
				Name:   "memory.cache.misses",
				Type:   "counter",
				Help:   "Scratch memory cache misses",
				Labels: []string{"memory_type"},
			},
			{
				Name:   "memory.evictions",
				Type:   "counter",
				Help:   "Scratch memory evictions",
				Labels: []string{"memory_type", "reason"},
			},
			{
				Name:   "memory.size_bytes",
				Type:   "gauge",
				Help:   "Scratch memory size in bytes",
				Labels: []string{"memory_type"},
			},
		},
	})
}
