package registry

import (
	"context"
	"sync"
	"time"

	"github.com/antigravity-dev/capgate/core"
	"github.com/antigravity-dev/capgate/telemetry"
)

// Registry assigns and resolves immutable capability identifiers, enforces
// per-scope uniqueness, and records usage metrics. Writes are serialized
// per scope (a per-scope lock rather than a single global writer) so
// unrelated scopes never contend.
type Registry struct {
	store  Store
	logger core.Logger

	scopeLocksMu sync.Mutex
	scopeLocks   map[string]*sync.Mutex
}

// New constructs a Registry over the given Store.
func New(store Store, logger core.Logger) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("gateway/registry")
	}
	return &Registry{
		store:      store,
		logger:     logger,
		scopeLocks: make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lockFor(scope Scope) *sync.Mutex {
	r.scopeLocksMu.Lock()
	defer r.scopeLocksMu.Unlock()
	key := scope.Key()
	l, ok := r.scopeLocks[key]
	if !ok {
		l = &sync.Mutex{}
		r.scopeLocks[key] = l
	}
	return l
}

// Create assigns fqdn = org.project.namespace.action.shortHash and stores
// a new record. It fails with KindCollision if (scope, displayName)
// already exists. Routing is inferred from whether any tool in
// input.ToolsUsed belongs to a namespace tagged cloud.
func (r *Registry) Create(ctx context.Context, input CreateInput) (*Record, error) {
	displayName := input.Namespace + ":" + input.Action
	if err := ValidateDisplayName(displayName); err != nil {
		return nil, err
	}
	if err := ValidateFQDNComponents(input.Scope.Org, input.Scope.Project, input.Namespace, input.Action, input.ShortHash); err != nil {
		return nil, err
	}

	lock := r.lockFor(input.Scope)
	lock.Lock()
	defer lock.Unlock()

	if existing, _ := r.store.GetByDisplayName(ctx, input.Scope, displayName); existing != nil {
		telemetry.Counter("registry.register", "scope", input.Scope.Key(), "result", "collision")
		return nil, core.NewFrameworkError("registry.Create", core.KindCollision, core.ErrCollision).WithID(displayName)
	}

	fqdn := BuildFQDN(input.Scope.Org, input.Scope.Project, input.Namespace, input.Action, input.ShortHash)
	now := time.Now()

	routing := RoutingLocal
	for _, toolID := range input.ToolsUsed {
		ns := namespaceOf(toolID)
		if input.CloudNamespaces[ns] {
			routing = RoutingCloud
			break
		}
	}

	rec := &Record{
		FQDN:              fqdn,
		Org:               input.Scope.Org,
		Project:           input.Scope.Project,
		Namespace:         input.Namespace,
		Action:            input.Action,
		ShortHash:         input.ShortHash,
		WorkflowPatternID: input.WorkflowPatternID,
		CodeHash:          input.CodeHash,
		ParameterSchema:   input.ParameterSchema,
		CreatedBy:         input.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
		Visibility:        input.Visibility,
		Routing:           routing,
		Tags:              input.Tags,
	}
	if rec.Visibility == "" {
		rec.Visibility = VisibilityPrivate
	}

	if err := r.store.Put(ctx, rec); err != nil {
		telemetry.Counter("registry.register", "scope", input.Scope.Key(), "result", "error")
		return nil, err
	}

	telemetry.Counter("registry.register", "scope", input.Scope.Key(), "result", "created")
	r.logger.InfoWithContext(ctx, "capability registered", map[string]interface{}{
		"fqdn":  fqdn,
		"scope": input.Scope.Key(),
	})
	return rec, nil
}

func namespaceOf(toolID string) string {
	for i, r := range toolID {
		if r == ':' {
			return toolID[:i]
		}
	}
	return toolID
}

// GetByCodeHash dedups before creation.
func (r *Registry) GetByCodeHash(ctx context.Context, scope Scope, codeHash string) (*Record, error) {
	rec, err := r.store.GetByCodeHash(ctx, scope, codeHash)
	telemetry.Counter("registry.lookup", "scope", scope.Key(), "result", resultLabel(rec, err))
	return rec, err
}

// ResolveByName accepts either "namespace:action" or a full FQDN.
func (r *Registry) ResolveByName(ctx context.Context, scope Scope, name string) (*Record, error) {
	var rec *Record
	var err error
	if LooksLikeFQDN(name) {
		rec, err = r.store.GetByFQDN(ctx, scope, name)
	} else {
		rec, err = r.store.GetByDisplayName(ctx, scope, name)
	}
	telemetry.Counter("registry.lookup", "scope", scope.Key(), "result", resultLabel(rec, err))
	return rec, err
}

// GetByID looks a record up by its FQDN, which doubles as its opaque
// stable identifier on the wire.
func (r *Registry) GetByID(ctx context.Context, scope Scope, id string) (*Record, error) {
	return r.store.GetByFQDN(ctx, scope, id)
}

// GetByFQDNComponents reassembles the FQDN from its parts before looking
// it up.
func (r *Registry) GetByFQDNComponents(ctx context.Context, org, project, namespace, action, shortHash string) (*Record, error) {
	if err := ValidateFQDNComponents(org, project, namespace, action, shortHash); err != nil {
		return nil, err
	}
	scope := Scope{Org: org, Project: project}
	return r.store.GetByFQDN(ctx, scope, BuildFQDN(org, project, namespace, action, shortHash))
}

// ListByScope enumerates candidates for the gateway's suggestion mode.
func (r *Registry) ListByScope(ctx context.Context, scope Scope, visibility Visibility) ([]*Record, error) {
	return r.store.ListByScope(ctx, scope, visibility)
}

// Rename updates the display fields (namespace/action). fqdn never
// changes. Fails with KindCollision if newName exists in scope, or
// KindInvalidName if newName fails the grammar. Per the "rename bumps
// version" decision, Version is incremented and UpdatedAt refreshed.
func (r *Registry) Rename(ctx context.Context, scope Scope, currentName, newName string) (*Record, error) {
	if err := ValidateDisplayName(newName); err != nil {
		return nil, err
	}

	lock := r.lockFor(scope)
	lock.Lock()
	defer lock.Unlock()

	rec, err := r.ResolveByName(ctx, scope, currentName)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, core.NewFrameworkError("registry.Rename", core.KindNotFound, core.ErrNotFound).WithID(currentName)
	}

	if existing, _ := r.store.GetByDisplayName(ctx, scope, newName); existing != nil && existing.FQDN != rec.FQDN {
		return nil, core.NewFrameworkError("registry.Rename", core.KindCollision, core.ErrCollision).WithID(newName)
	}

	namespace, action, ok := splitDisplayName(newName)
	if !ok {
		return nil, core.NewFrameworkError("registry.Rename", core.KindInvalidName, core.ErrInvalidName).WithID(newName)
	}

	rec.Namespace = namespace
	rec.Action = action
	rec.Version++
	rec.UpdatedAt = time.Now()

	if err := r.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func splitDisplayName(name string) (namespace, action string, ok bool) {
	for i, r := range name {
		if r == ':' {
			return name[:i], name[i+1:], true
		}
	}
	return name, "", true
}

// RecordUsage atomically increments usageCount, conditionally increments
// successCount, and accumulates totalLatencyMs. Failures are logged but
// never abort the enclosing execution, per spec.
func (r *Registry) RecordUsage(ctx context.Context, scope Scope, fqdn string, success bool, latencyMs int64) {
	lock := r.lockFor(scope)
	lock.Lock()
	defer lock.Unlock()

	rec, err := r.store.GetByFQDN(ctx, scope, fqdn)
	if err != nil || rec == nil {
		r.logger.WarnWithContext(ctx, "recordUsage on unknown fqdn", map[string]interface{}{
			"fqdn": fqdn,
		})
		return
	}

	rec.UsageCount++
	if success {
		rec.SuccessCount++
	}
	rec.TotalLatencyMs += latencyMs
	rec.UpdatedAt = time.Now()

	if err := r.store.Put(ctx, rec); err != nil {
		r.logger.WarnWithContext(ctx, "recordUsage persist failed", map[string]interface{}{
			"fqdn":  fqdn,
			"error": err.Error(),
		})
		return
	}
	telemetry.Gauge("registry.usage_count", float64(rec.UsageCount), "fqdn", fqdn)
}

func resultLabel(rec *Record, err error) string {
	if err != nil {
		return "error"
	}
	if rec == nil {
		return "miss"
	}
	return "hit"
}
