package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/antigravity-dev/capgate/core"
	"github.com/antigravity-dev/capgate/internal/planner"
	"github.com/antigravity-dev/capgate/internal/staticstruct"
	"github.com/antigravity-dev/capgate/internal/thompson"
	"github.com/antigravity-dev/capgate/internal/toolprovider"
	"github.com/antigravity-dev/capgate/telemetry"
)

// ApprovalGate decides, for one sensitive tool, whether to proceed
// without a human. The default gate asks the Thompson Threshold Manager;
// callers may substitute a stricter or more permissive one.
type ApprovalGate func(ctx context.Context, toolID string) bool

// Executor runs a planner.PhysicalDAG layer by layer, respecting the
// concurrency limit with a semaphore and recovering from any step panic
// so one bad tool call cannot take down the whole execution, exactly the
// discipline orchestration/executor.go uses for its own ready-step loop.
type Executor struct {
	provider       toolprovider.Provider
	checkpoints    CheckpointStore
	gate           ApprovalGate
	logger         core.Logger
	maxConcurrency int
	resumeLock     core.Memory
}

// resumeLockTTL bounds how long a Resume call holds its de-duplication
// lock. An approval webhook can be retried by its sender (at-least-once
// delivery is the norm for these), and without a lock two concurrent
// Resume calls for the same checkpoint would both pass the paused-status
// check and replay the gated tool call twice.
const resumeLockTTL = 30 * time.Second

// Option configures an Executor.
type Option func(*Executor)

func WithMaxConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

func WithApprovalGate(gate ApprovalGate) Option {
	return func(e *Executor) { e.gate = gate }
}

// WithResumeLock swaps the store used to de-duplicate concurrent Resume
// calls against the same checkpoint. Defaults to an in-process
// core.MemoryStore; pass a shared store when running multiple gateway
// replicas behind the same approval webhook.
func WithResumeLock(store core.Memory) Option {
	return func(e *Executor) { e.resumeLock = store }
}

// WithThompsonGate builds an ApprovalGate backed by a Thompson Threshold
// Manager sampled against threshold.
func WithThompsonGate(manager *thompson.Manager, threshold float64) Option {
	return func(e *Executor) {
		e.gate = func(ctx context.Context, toolID string) bool {
			return manager.ShouldAutoApprove(ctx, toolID, threshold)
		}
	}
}

func New(provider toolprovider.Provider, checkpoints CheckpointStore, logger core.Logger, opts ...Option) *Executor {
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("gateway/executor")
	}
	dedupe := core.NewMemoryStore()
	dedupe.SetLogger(logger)
	e := &Executor{
		provider:       provider,
		checkpoints:    checkpoints,
		logger:         logger,
		maxConcurrency: 8,
		gate:           func(ctx context.Context, toolID string) bool { return false },
		resumeLock:     dedupe,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunRequest bundles everything one execution needs: the static structure
// (for per-node argument resolution), the optimized physical plan, any
// externally-known tool sensitivity, and the caller-supplied parameters
// referenced by staticstruct.ArgParameter.
type RunRequest struct {
	ExecutionID string
	Structure   *staticstruct.StaticStructure
	DAG         *planner.PhysicalDAG
	ToolMeta    map[string]planner.ToolMetadata
	Parameters  map[string]interface{}
}

type runState struct {
	mu      sync.Mutex
	results map[string]interface{} // node id -> tool result
	steps   []StepOutcome
	events  []Event
}

// Run executes req.DAG layer by layer. It returns a Result with
// Status == StatusPaused (and CheckpointID set) the moment a sensitive
// step's approval gate refuses to auto-approve; the caller resumes later
// via Resume.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*Result, error) {
	state := &runState{results: make(map[string]interface{})}
	return e.runFrom(ctx, req, state, nil)
}

// Resume continues an execution from a previously saved, paused
// checkpoint, having received the human's approve/reject decision for
// the step that paused it.
func (e *Executor) Resume(ctx context.Context, checkpointID string, approved bool) (*Result, error) {
	cp, err := e.checkpoints.Load(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if cp.Status != StatusPaused {
		return nil, core.NewFrameworkError("executor.Resume", core.KindStateViolation, core.ErrStateViolation).WithID(checkpointID)
	}

	lockKey := "executor.resume_lock:" + checkpointID
	if held, _ := e.resumeLock.Exists(ctx, lockKey); held {
		return nil, core.NewFrameworkError("executor.Resume", core.KindStateViolation, core.ErrStateViolation).WithID(checkpointID)
	}
	if err := e.resumeLock.Set(ctx, lockKey, "1", resumeLockTTL); err != nil {
		return nil, err
	}
	defer e.resumeLock.Delete(ctx, lockKey)

	if !approved {
		_ = e.checkpoints.UpdateStatus(ctx, checkpointID, StatusAborted)
		return &Result{ExecutionID: cp.ExecutionID, Status: StatusAborted}, nil
	}

	ctx, endSpan := telemetry.StartLinkedSpan(ctx, "executor.resume", cp.TraceID, cp.SpanID,
		map[string]string{"execution.id": cp.ExecutionID, "checkpoint.id": checkpointID})
	defer endSpan()

	state := &runState{results: make(map[string]interface{})}
	for id, outcome := range cp.Completed {
		state.results[id] = outcome.Result
		state.steps = append(state.steps, outcome)
	}

	// The human approved the paused step, so its tools are not gated again.
	toolMeta := make(map[string]planner.ToolMetadata)
	if step, ok := cp.DAG.StepByID(cp.PendingStepID); ok {
		for _, tool := range step.Tools {
			toolMeta[tool] = planner.ToolMetadata{}
		}
	}
	req := RunRequest{ExecutionID: cp.ExecutionID, DAG: cp.DAG, ToolMeta: toolMeta}
	return e.runFrom(ctx, req, state, cp.Completed)
}

// Abort marks a paused checkpoint as aborted without resuming it.
func (e *Executor) Abort(ctx context.Context, checkpointID string) error {
	return e.checkpoints.UpdateStatus(ctx, checkpointID, StatusAborted)
}

// Replan swaps the remaining, not-yet-executed portion of a paused
// checkpoint's plan for a newly built physical DAG, then resumes
// execution immediately. The replacement DAG is expected to cover only
// the work not already reflected in cp.Completed.
func (e *Executor) Replan(ctx context.Context, checkpointID string, newDAG *planner.PhysicalDAG) (*Result, error) {
	cp, err := e.checkpoints.Load(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	cp.DAG = newDAG
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		return nil, err
	}
	return e.Resume(ctx, checkpointID, true)
}

func (e *Executor) runFrom(ctx context.Context, req RunRequest, state *runState, preCompleted map[string]StepOutcome) (*Result, error) {
	nodeByID := make(map[string]staticstruct.Node)
	if req.Structure != nil {
		for _, n := range req.Structure.Nodes {
			nodeByID[n.ID] = n
		}
	}

	done := make(map[string]bool)
	failed := make(map[string]bool)
	for id, outcome := range preCompleted {
		done[id] = true
		if !outcome.Success {
			failed[id] = true
		}
	}

	semaphore := make(chan struct{}, e.maxConcurrency)

	for _, layer := range req.DAG.Layers {
		var pending []planner.PhysicalStep
		var blocked []planner.PhysicalStep
		for _, stepID := range layer {
			if done[stepID] {
				continue
			}
			step, ok := req.DAG.StepByID(stepID)
			if !ok {
				continue
			}
			if dependsOnFailed(*step, failed) {
				blocked = append(blocked, *step)
				continue
			}
			pending = append(pending, *step)
		}
		for _, step := range blocked {
			e.recordOutcome(state, StepOutcome{
				StepID: step.ID, Tools: step.Tools, Success: false,
				Error: fmt.Sprintf("step %s skipped: upstream dependency failed", step.ID),
			})
			done[step.ID] = true
			failed[step.ID] = true
		}
		if len(pending) == 0 {
			continue
		}

		for _, step := range pending {
			if gated, toolID := e.firstUngatedSensitiveTool(ctx, step, req.ToolMeta); gated {
				return e.pauseForApproval(ctx, req, state, step, toolID)
			}
		}

		var wg sync.WaitGroup
		for _, step := range pending {
			wg.Add(1)
			go e.runStep(ctx, step, nodeByID, req.Parameters, state, semaphore, &wg)
		}
		wg.Wait()

		for _, step := range pending {
			done[step.ID] = true
		}
		for _, outcome := range state.steps {
			if !outcome.Success {
				failed[outcome.StepID] = true
			}
		}
	}

	telemetry.Counter("executor.run", "execution", req.ExecutionID, "result", "completed")
	return &Result{ExecutionID: req.ExecutionID, Status: StatusCompleted, Steps: state.steps}, nil
}

func dependsOnFailed(step planner.PhysicalStep, failed map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if failed[dep] {
			return true
		}
	}
	return false
}

// firstUngatedSensitiveTool reports the first tool in step that is marked
// sensitive, or has no entry in toolMeta, and whose approval gate refuses
// to auto-approve it.
func (e *Executor) firstUngatedSensitiveTool(ctx context.Context, step planner.PhysicalStep, toolMeta map[string]planner.ToolMetadata) (bool, string) {
	for _, tool := range step.Tools {
		meta, known := toolMeta[tool]
		sensitive := !known || meta.Sensitive
		if sensitive && !e.gate(ctx, tool) {
			return true, tool
		}
	}
	return false, ""
}

func (e *Executor) pauseForApproval(ctx context.Context, req RunRequest, state *runState, step planner.PhysicalStep, toolID string) (*Result, error) {
	completed := make(map[string]StepOutcome, len(state.steps))
	for _, s := range state.steps {
		completed[s.StepID] = s
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	var traceID, spanID string
	if spanCtx.IsValid() {
		traceID = spanCtx.TraceID().String()
		spanID = spanCtx.SpanID().String()
	}

	checkpointID := fmt.Sprintf("%s-%s", req.ExecutionID, step.ID)
	cp := &Checkpoint{
		ID:            checkpointID,
		ExecutionID:   req.ExecutionID,
		DAG:           req.DAG,
		Completed:     completed,
		PendingStepID: step.ID,
		Reasons:       []string{fmt.Sprintf("tool %q requires human approval", toolID)},
		Status:        StatusPaused,
		CreatedAt:     time.Now(),
		TraceID:       traceID,
		SpanID:        spanID,
	}
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		return nil, err
	}

	telemetry.Counter("executor.pause", "execution", req.ExecutionID, "tool", toolID)
	return &Result{ExecutionID: req.ExecutionID, Status: StatusPaused, Steps: state.steps, CheckpointID: checkpointID}, nil
}

func (e *Executor) runStep(ctx context.Context, step planner.PhysicalStep, nodeByID map[string]staticstruct.Node, parameters map[string]interface{}, state *runState, semaphore chan struct{}, wg *sync.WaitGroup) {
	startedAt := time.Now()
	semaphore <- struct{}{}
	defer func() {
		<-semaphore
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			if e.logger != nil {
				e.logger.Error("executor step panicked", map[string]interface{}{
					"step": step.ID, "panic": fmt.Sprintf("%v", r), "stack": stack,
				})
			}
			e.recordOutcome(state, StepOutcome{
				StepID: step.ID, Tools: step.Tools, Success: false,
				Error: fmt.Sprintf("step %s panicked: %v", step.ID, r),
				StartedAt: startedAt, Duration: time.Since(startedAt),
			})
		}
		wg.Done()
	}()

	var lastResult interface{}
	for _, nodeID := range step.NodeIDs {
		node := nodeByID[nodeID]
		args := resolveArgs(node, state, parameters)

		result, err := e.provider.CallTool(ctx, node.Tool, args)
		if err != nil {
			e.recordOutcome(state, StepOutcome{
				StepID: step.ID, Tools: step.Tools, Success: false,
				Error: err.Error(), StartedAt: startedAt, Duration: time.Since(startedAt),
			})
			return
		}
		lastResult = result.Result
		state.mu.Lock()
		state.results[nodeID] = result.Result
		state.mu.Unlock()
	}

	e.recordOutcome(state, StepOutcome{
		StepID: step.ID, Tools: step.Tools, Success: true,
		Result: lastResult, StartedAt: startedAt, Duration: time.Since(startedAt),
	})
}

func (e *Executor) recordOutcome(state *runState, outcome StepOutcome) {
	state.mu.Lock()
	state.steps = append(state.steps, outcome)
	state.mu.Unlock()

	evtType := EventStepCompleted
	if !outcome.Success {
		evtType = EventStepFailed
	}
	telemetry.Counter("executor.step", "result", boolLabel(outcome.Success))
	if e.logger != nil {
		e.logger.Debug("step finished", map[string]interface{}{"step": outcome.StepID, "success": outcome.Success})
	}
	_ = evtType
}

// resolveArgs turns node's static argument bindings into a concrete
// parameter map: literals pass through, parameters come from the
// caller-supplied map, and prior-result references read from already
// completed nodes in this run.
func resolveArgs(node staticstruct.Node, state *runState, parameters map[string]interface{}) map[string]interface{} {
	args := make(map[string]interface{}, len(node.StaticArguments))
	state.mu.Lock()
	defer state.mu.Unlock()

	for key, ref := range node.StaticArguments {
		switch ref.Kind {
		case staticstruct.ArgLiteral:
			args[key] = ref.Literal
		case staticstruct.ArgParameter:
			args[key] = parameters[ref.ParameterName]
		case staticstruct.ArgPriorResult:
			val := state.results[ref.PriorTaskID]
			if ref.Field != "" {
				if m, ok := val.(map[string]interface{}); ok {
					val = m[ref.Field]
				}
			}
			args[key] = val
		}
	}
	return args
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
