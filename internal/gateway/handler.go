package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/antigravity-dev/capgate/core"
	"github.com/antigravity-dev/capgate/internal/executor"
	"github.com/antigravity-dev/capgate/internal/hyperpath"
	"github.com/antigravity-dev/capgate/internal/planner"
	"github.com/antigravity-dev/capgate/internal/ranker"
	"github.com/antigravity-dev/capgate/internal/registry"
	"github.com/antigravity-dev/capgate/internal/staticstruct"
	"github.com/antigravity-dev/capgate/internal/thompson"
	"github.com/antigravity-dev/capgate/internal/toolprovider"
	"github.com/antigravity-dev/capgate/internal/tracestore"
	"github.com/antigravity-dev/capgate/internal/vector"
	"github.com/antigravity-dev/capgate/telemetry"
)

// Config tunes a Handler's cross-component invariants.
type Config struct {
	Scope                       registry.Scope
	CreatedBy                   string
	MaxCodeBytes                int
	SuggestionThreshold         float64
	MinSuccessRateForSuggestion float64
	ApprovalThreshold           float64
	CloudNamespaces             map[string]bool
	ToolMeta                    map[string]planner.ToolMetadata
	KnownTools                  map[string]bool
	TrainingBatchSize           int
}

// DefaultConfig returns conservative defaults matching spec.md's stated
// constants (a 0.7 global suggestion threshold, 0.8 minimum success rate
// for a suggestion to count as a strong match).
func DefaultConfig(scope registry.Scope) Config {
	return Config{
		Scope:                       scope,
		MaxCodeBytes:                64 * 1024,
		SuggestionThreshold:         0.7,
		MinSuccessRateForSuggestion: 0.8,
		ApprovalThreshold:           0.5,
		TrainingBatchSize:           16,
	}
}

// Handler wires C2 (registry), C3 (trace store), C5 (hypergraph), C6
// (ranker), C7 (threshold manager), C8 (planner), C9 (executor), and the
// tool-provider bridge into the five-mode dispatch described by the
// Execute Handler.
type Handler struct {
	cfg Config

	registry   *registry.Registry
	traces     *tracestore.TraceStore
	embeddings vector.Provider
	hypergraph *hyperpath.Hypergraph
	ranker     *ranker.Ranker
	thompson   *thompson.Manager
	exec       *executor.Executor
	tools      toolprovider.Provider
	builder    *staticstruct.Builder

	logger core.Logger

	vectorCacheMu sync.RWMutex
	vectorCache   map[string]vector.Vector // fqdn -> embedding, for ranker candidate lookups

	patternsMu sync.RWMutex
	patterns   map[string]string // workflowPatternId -> code, for accept-suggestion/call-by-name replay
}

// New constructs a Handler from its component dependencies.
func New(
	cfg Config,
	reg *registry.Registry,
	traces *tracestore.TraceStore,
	embeddings vector.Provider,
	hg *hyperpath.Hypergraph,
	rk *ranker.Ranker,
	tm *thompson.Manager,
	ex *executor.Executor,
	tools toolprovider.Provider,
	builder *staticstruct.Builder,
	logger core.Logger,
) *Handler {
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("gateway/handler")
	}
	return &Handler{
		cfg:         cfg,
		registry:    reg,
		traces:      traces,
		embeddings:  embeddings,
		hypergraph:  hg,
		ranker:      rk,
		thompson:    tm,
		exec:        ex,
		tools:       tools,
		builder:     builder,
		logger:      logger,
		vectorCache: make(map[string]vector.Vector),
		patterns:    make(map[string]string),
	}
}

// Execute dispatches args to exactly one of the five modes.
func (h *Handler) Execute(ctx context.Context, args ExecuteArgs) (*ExecuteResponse, error) {
	set := 0
	if args.Code != "" {
		set++
	}
	if args.AcceptSuggestion != nil {
		set++
	}
	if args.ContinueWorkflow != nil {
		set++
	}
	if args.Capability != "" {
		set++
	}
	if set > 1 {
		return nil, core.NewFrameworkError("gateway.Execute", core.KindInvalidArgument, core.ErrInvalidArgument).
			WithID("at most one of code, accept_suggestion, continue_workflow, capability may be supplied")
	}

	switch {
	case args.ContinueWorkflow != nil:
		return h.continueWorkflow(ctx, args.ContinueWorkflow)
	case args.AcceptSuggestion != nil:
		return h.acceptSuggestion(ctx, args.AcceptSuggestion)
	case args.Capability != "":
		return h.callByName(ctx, args.Capability, args.Args)
	case args.Code != "":
		if args.Intent == "" {
			return nil, core.NewFrameworkError("gateway.Execute", core.KindInvalidArgument, core.ErrInvalidArgument).WithID("intent")
		}
		return h.direct(ctx, args.Intent, args.Code, args.Args)
	default:
		if args.Intent == "" {
			return nil, core.NewFrameworkError("gateway.Execute", core.KindInvalidArgument, core.ErrInvalidArgument).WithID("intent")
		}
		return h.suggest(ctx, args.Intent)
	}
}

// direct implements mode 1: parse -> plan -> execute -> learn.
func (h *Handler) direct(ctx context.Context, intent, code string, params map[string]interface{}) (*ExecuteResponse, error) {
	if h.cfg.MaxCodeBytes > 0 && len(code) > h.cfg.MaxCodeBytes {
		return nil, core.NewFrameworkError("gateway.direct", core.KindCodeTooLarge, core.ErrCodeTooLarge).WithID(intent)
	}

	structure, err := h.builder.Build(code)
	if err != nil {
		return nil, core.NewFrameworkError("gateway.direct", core.KindInvalidArgument, err)
	}
	if len(structure.TaskNodes()) == 0 {
		return nil, core.NewFrameworkError("gateway.direct", core.KindNoDAG, core.ErrNoDAG)
	}
	if err := staticstruct.Validate(structure, h.cfg.KnownTools); err != nil {
		return nil, err
	}

	dag, err := planner.Build(structure, nil, h.cfg.ToolMeta)
	if err != nil {
		return nil, err
	}

	executionID := uuid.New().String()
	startedAt := time.Now()

	result, err := h.exec.Run(ctx, executor.RunRequest{
		ExecutionID: executionID,
		Structure:   structure,
		DAG:         dag,
		ToolMeta:    h.cfg.ToolMeta,
		Parameters:  params,
	})
	if err != nil {
		return nil, err
	}

	if result.Status == executor.StatusPaused {
		return &ExecuteResponse{
			Status:       StatusApprovalRequired,
			WorkflowID:   executionID,
			CheckpointID: result.CheckpointID,
			PendingLayer: len(dagCompletedLayers(dag, result.Steps)),
			LayerResults: result.Steps,
		}, nil
	}

	codeHash := sha256Hex(code)
	rec, err := h.persistCapability(ctx, intent, code, codeHash, structure, dag)
	if err != nil {
		return nil, err
	}

	h.learnFromRun(ctx, intent, structure, result, rec)

	return &ExecuteResponse{
		Status:          StatusSuccess,
		Result:          lastSuccessfulResult(result.Steps),
		CapabilityID:    rec.WorkflowPatternID,
		CapabilityFQDN:  rec.FQDN,
		ExecutionTimeMs: time.Since(startedAt).Milliseconds(),
		DAG:             &DAGSummary{StepCount: len(dag.Steps), LayerCount: len(dag.Layers)},
	}, nil
}

// suggest implements mode 2: rank existing capabilities, never execute.
func (h *Handler) suggest(ctx context.Context, intent string) (*ExecuteResponse, error) {
	intentVec, err := h.embeddings.Encode(ctx, intent)
	if err != nil {
		return nil, core.NewFrameworkError("gateway.suggest", core.KindToolUnavailable, err)
	}

	records, err := h.registry.ListByScope(ctx, h.cfg.Scope, registry.VisibilityPrivate)
	if err != nil {
		return nil, err
	}

	candidates := make([]ranker.Candidate, 0, len(records))
	recordByFQDN := make(map[string]*registry.Record, len(records))
	for _, rec := range records {
		h.vectorCacheMu.RLock()
		emb, ok := h.vectorCache[rec.FQDN]
		h.vectorCacheMu.RUnlock()
		if !ok {
			continue
		}
		recordByFQDN[rec.FQDN] = rec
		candidates = append(candidates, ranker.Candidate{
			FQDN:        rec.FQDN,
			Embedding:   emb,
			SuccessRate: rec.SuccessRate(),
			UsageCount:  rec.UsageCount,
		})
	}

	if len(candidates) == 0 {
		telemetry.Counter("gateway.suggest", "result", "no_candidates")
		return &ExecuteResponse{Status: StatusSuggestions, Suggestions: &SuggestionPayload{Confidence: 0}}, nil
	}

	scored := h.ranker.Rank(ctx, floatsToFloat32(intentVec), candidates)
	top := scored[0]

	if top.FusedScore < h.cfg.SuggestionThreshold || top.SuccessRate < h.cfg.MinSuccessRateForSuggestion {
		telemetry.Counter("gateway.suggest", "result", "no_strong_match")
		return &ExecuteResponse{Status: StatusSuggestions, Suggestions: &SuggestionPayload{Confidence: top.FusedScore}}, nil
	}

	rec := recordByFQDN[top.FQDN]
	suggestedDAG, err := h.backwardPlanFromCapability(ctx, rec)
	if err != nil {
		return nil, err
	}

	telemetry.Counter("gateway.suggest", "result", "strong_match")
	return &ExecuteResponse{
		Status: StatusSuggestions,
		Suggestions: &SuggestionPayload{
			CallName:     rec.DisplayName(),
			Confidence:   top.FusedScore,
			SuggestedDAG: suggestedDAG,
		},
	}, nil
}

// acceptSuggestion implements mode 3: resolve by name, merge schema
// defaults, then run Direct mode against the resolved code.
func (h *Handler) acceptSuggestion(ctx context.Context, accept *AcceptSuggestion) (*ExecuteResponse, error) {
	return h.executeByName(ctx, accept.CallName, accept.Args)
}

// callByName implements mode 5: identical semantics to mode 3 with the
// call target supplied as ExecuteArgs.capability instead.
func (h *Handler) callByName(ctx context.Context, capability string, args map[string]interface{}) (*ExecuteResponse, error) {
	return h.executeByName(ctx, capability, args)
}

func (h *Handler) executeByName(ctx context.Context, callName string, args map[string]interface{}) (*ExecuteResponse, error) {
	rec, err := h.registry.ResolveByName(ctx, h.cfg.Scope, callName)
	if err != nil {
		return nil, err
	}

	merged, err := mergeWithSchemaDefaults(rec.ParameterSchema, args)
	if err != nil {
		return nil, core.NewFrameworkError("gateway.executeByName", core.KindInvalidArgument, err).WithID(callName)
	}

	code, err := h.workflowPatternCode(rec.WorkflowPatternID)
	if err != nil {
		return nil, err
	}

	return h.direct(ctx, "resume:"+callName, code, merged)
}

// continueWorkflow implements mode 4: dispatch to C9's approval queue.
func (h *Handler) continueWorkflow(ctx context.Context, cw *ContinueWorkflow) (*ExecuteResponse, error) {
	result, err := h.exec.Resume(ctx, cw.WorkflowID, cw.Approved)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case executor.StatusPaused:
		return &ExecuteResponse{
			Status:       StatusApprovalRequired,
			WorkflowID:   result.ExecutionID,
			CheckpointID: result.CheckpointID,
			LayerResults: result.Steps,
		}, nil
	case executor.StatusAborted:
		return nil, core.NewFrameworkError("gateway.continueWorkflow", core.KindApprovalRejected, core.ErrApprovalRejected).WithID(cw.WorkflowID)
	default:
		return &ExecuteResponse{
			Status:       StatusSuccess,
			Result:       lastSuccessfulResult(result.Steps),
			WorkflowID:   result.ExecutionID,
			LayerResults: result.Steps,
		}, nil
	}
}

// persistCapability dedups by codeHash within scope, creating a new
// record only the first time a given codeSnippet is seen, satisfying
// Direct mode's idempotence requirement.
func (h *Handler) persistCapability(ctx context.Context, intent, code, codeHash string, structure *staticstruct.StaticStructure, dag *planner.PhysicalDAG) (*registry.Record, error) {
	if existing, err := h.registry.GetByCodeHash(ctx, h.cfg.Scope, codeHash); err == nil && existing != nil {
		h.storePatternCode(existing.WorkflowPatternID, code)
		return existing, nil
	}

	namespace, action := slugifyIntent(intent)
	shortHash := codeHash[:4]

	var tools []string
	for _, n := range structure.TaskNodes() {
		tools = append(tools, n.Tool)
	}

	patternID := uuid.New().String()
	rec, err := h.registry.Create(ctx, registry.CreateInput{
		Scope:             h.cfg.Scope,
		Namespace:         namespace,
		Action:            action,
		WorkflowPatternID: patternID,
		CodeHash:          codeHash,
		ShortHash:         shortHash,
		ToolsUsed:         tools,
		CreatedBy:         h.cfg.CreatedBy,
		Visibility:        registry.VisibilityPrivate,
		CloudNamespaces:   h.cfg.CloudNamespaces,
	})
	if err != nil {
		if kind, ok := core.KindOf(err); ok && kind == core.KindCollision {
			if existing, getErr := h.registry.GetByCodeHash(ctx, h.cfg.Scope, codeHash); getErr == nil && existing != nil {
				h.storePatternCode(existing.WorkflowPatternID, code)
				return existing, nil
			}
		}
		return nil, err
	}
	h.storePatternCode(patternID, code)
	return rec, nil
}

func (h *Handler) storePatternCode(patternID, code string) {
	h.patternsMu.Lock()
	h.patterns[patternID] = code
	h.patternsMu.Unlock()
}

// learnFromRun feeds the completed execution back into the learning
// components: trace append, PER-weighted ranker training, per-tool
// Thompson posterior updates, and a new DR-DSP hyperedge.
func (h *Handler) learnFromRun(ctx context.Context, intent string, structure *staticstruct.StaticStructure, result *executor.Result, rec *registry.Record) {
	success := allSucceeded(result.Steps)
	intentVec, err := h.embeddings.Encode(ctx, intent)
	if err != nil {
		intentVec = nil
	}

	var durationMs int64
	for _, s := range result.Steps {
		durationMs += s.Duration.Milliseconds()
	}

	executedPath := make([]string, 0, len(structure.TaskNodes()))
	for _, n := range structure.TaskNodes() {
		executedPath = append(executedPath, n.ID)
	}

	trace := &tracestore.Trace{
		ID:              uuid.New().String(),
		CapabilityID:    rec.WorkflowPatternID,
		Intent:          intent,
		ExecutedPath:    executedPath,
		DurationMs:      durationMs,
		Success:         success,
		IntentEmbedding: intentVec,
		Priority:        1.0,
		CreatedAt:       time.Now(),
	}
	if err := h.traces.Append(ctx, trace); err != nil {
		h.logWarn(ctx, "trace append failed", err)
	}

	h.registry.RecordUsage(ctx, h.cfg.Scope, rec.FQDN, success, durationMs)

	for _, step := range result.Steps {
		for _, tool := range step.Tools {
			h.thompson.Record(ctx, tool, step.Success)
		}
	}

	if intentVec != nil {
		h.vectorCacheMu.Lock()
		h.vectorCache[rec.FQDN] = floatsToFloat32(intentVec)
		h.vectorCacheMu.Unlock()
	}

	h.insertHyperedge(ctx, rec, structure)
	h.trainRankerFromTraces(ctx)
}

func (h *Handler) insertHyperedge(ctx context.Context, rec *registry.Record, structure *staticstruct.StaticStructure) {
	tools := make([]string, 0, len(structure.TaskNodes()))
	for _, n := range structure.TaskNodes() {
		tools = append(tools, n.Tool)
	}
	if len(tools) == 0 {
		return
	}
	err := h.hypergraph.ApplyUpdate(ctx, hyperpath.Update{
		Kind: hyperpath.UpdateEdgeAdd,
		Edge: &hyperpath.Hyperedge{
			ID:      "cap:" + rec.FQDN,
			Sources: tools,
			Targets: []string{rec.FQDN},
			Weight:  1.0 - rec.SuccessRate(),
		},
	})
	if err != nil {
		h.logWarn(ctx, "hyperedge insert failed", err)
	}
}

func (h *Handler) trainRankerFromTraces(ctx context.Context) {
	batch, err := h.traces.SampleByPriority(ctx, h.cfg.TrainingBatchSize)
	if err != nil || len(batch) == 0 {
		return
	}

	examples := make([]ranker.TrainingExample, 0, len(batch))
	for _, t := range batch {
		if len(t.IntentEmbedding) == 0 {
			continue
		}
		examples = append(examples, ranker.TrainingExample{
			IntentEmbedding: t.IntentEmbedding,
			Candidates: []ranker.Candidate{{
				FQDN:        t.CapabilityID,
				Embedding:   t.IntentEmbedding,
				SuccessRate: boolToRate(t.Success),
			}},
			ChosenIndex: 0,
			Success:     t.Success,
			Priority:    t.Priority,
		})
	}
	if len(examples) > 0 {
		h.ranker.Train(ctx, examples)
	}
}

// backwardPlanFromCapability asks DR-DSP for the cheapest hyperpath from
// the "intent" node to rec's FQDN and renders one SuggestedTask per
// hyperedge on it. When no such hyperpath is found, the preview is a
// single task naming rec.
func (h *Handler) backwardPlanFromCapability(ctx context.Context, rec *registry.Record) (SuggestedDAG, error) {
	result := h.hypergraph.FindShortestHyperpath(ctx, "intent", rec.FQDN)
	if !result.Found {
		return SuggestedDAG{Tasks: []SuggestedTask{{CallName: rec.DisplayName()}}}, nil
	}
	tasks := make([]SuggestedTask, 0, len(result.Edges))
	for _, edgeID := range result.Edges {
		tasks = append(tasks, SuggestedTask{CallName: rec.DisplayName(), Tools: []string{edgeID}})
	}
	return SuggestedDAG{Tasks: tasks}, nil
}

// workflowPatternCode looks up the source snippet behind a capability's
// WorkflowPatternID, as persisted the first time Direct mode built it.
func (h *Handler) workflowPatternCode(patternID string) (string, error) {
	code, ok := h.patternCode(patternID)
	if !ok {
		return "", core.NewFrameworkError("gateway.workflowPatternCode", core.KindNotFound, core.ErrNotFound).WithID(patternID)
	}
	return code, nil
}

func (h *Handler) patternCode(patternID string) (string, bool) {
	h.patternsMu.RLock()
	defer h.patternsMu.RUnlock()
	code, ok := h.patterns[patternID]
	return code, ok
}

func (h *Handler) logWarn(ctx context.Context, msg string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.WarnWithContext(ctx, msg, map[string]interface{}{"error": err.Error()})
}

func sha256Hex(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func slugifyIntent(intent string) (namespace, action string) {
	slug := strings.ToLower(strings.TrimSpace(intent))
	slug = nonAlnum.ReplaceAllString(slug, "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "capability"
	}
	parts := strings.SplitN(slug, "_", 2)
	if len(parts) == 1 {
		return "workflow", parts[0]
	}
	return "workflow", parts[0] + "_" + parts[1]
}

func allSucceeded(steps []executor.StepOutcome) bool {
	for _, s := range steps {
		if !s.Success {
			return false
		}
	}
	return true
}

func lastSuccessfulResult(steps []executor.StepOutcome) interface{} {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Success {
			return steps[i].Result
		}
	}
	return nil
}

func dagCompletedLayers(dag *planner.PhysicalDAG, completed []executor.StepOutcome) []string {
	done := make(map[string]bool, len(completed))
	for _, s := range completed {
		done[s.StepID] = true
	}
	var finished []string
	for _, layer := range dag.Layers {
		allDone := true
		for _, id := range layer {
			if !done[id] {
				allDone = false
				break
			}
		}
		if allDone {
			finished = append(finished, layer...)
		}
	}
	return finished
}

func boolToRate(success bool) float64 {
	if success {
		return 1
	}
	return 0
}

func floatsToFloat32(v vector.Vector) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// mergeWithSchemaDefaults validates args against schemaJSON (if any) and
// fills in any property the schema declares a default for but args omits.
func mergeWithSchemaDefaults(schemaJSON string, args map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(args))
	for k, v := range args {
		merged[k] = v
	}
	if schemaJSON == "" {
		return merged, nil
	}

	var schemaDoc interface{}
	if err := json.Unmarshal([]byte(schemaJSON), &schemaDoc); err != nil {
		return nil, fmt.Errorf("parameter schema: %w", err)
	}

	if docMap, ok := schemaDoc.(map[string]interface{}); ok {
		if props, ok := docMap["properties"].(map[string]interface{}); ok {
			for name, raw := range props {
				prop, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				if _, present := merged[name]; present {
					continue
				}
				if def, ok := prop["default"]; ok {
					merged[name] = def
				}
			}
		}
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(merged); err != nil {
		return nil, err
	}
	return merged, nil
}
