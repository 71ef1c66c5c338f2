package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/capgate/core"
)

func newTestRegistry() *Registry {
	return New(NewInMemoryStore(), nil)
}

func TestCreateAssignsFQDN(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()
	scope := Scope{Org: "local", Project: "default"}

	rec, err := reg.Create(ctx, CreateInput{
		Scope:             scope,
		Namespace:         "fs",
		Action:            "exec_ab12cd34",
		WorkflowPatternID: "wf-1",
		CodeHash:          "hash-1",
		ShortHash:         "ab12",
		ToolsUsed:         []string{"fs:read_file"},
		CreatedBy:         "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, "local.default.fs.exec_ab12cd34.ab12", rec.FQDN)
	assert.Equal(t, RoutingLocal, rec.Routing)
	assert.Equal(t, 1, rec.Version)
}

func TestCreateDuplicateDisplayNameCollides(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()
	scope := Scope{Org: "local", Project: "default"}

	input := CreateInput{
		Scope: scope, Namespace: "fs", Action: "exec_ab12cd34",
		CodeHash: "hash-1", ShortHash: "ab12",
	}
	_, err := reg.Create(ctx, input)
	require.NoError(t, err)

	input.CodeHash = "hash-2"
	input.ShortHash = "ef56"
	_, err = reg.Create(ctx, input)
	require.Error(t, err)
	kind, ok := core.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, core.KindCollision, kind)
}

func TestGetByCodeHashDedups(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()
	scope := Scope{Org: "local", Project: "default"}

	created, err := reg.Create(ctx, CreateInput{
		Scope: scope, Namespace: "fs", Action: "exec_ab12cd34",
		CodeHash: "hash-1", ShortHash: "ab12",
	})
	require.NoError(t, err)

	found, err := reg.GetByCodeHash(ctx, scope, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.FQDN, found.FQDN)

	miss, err := reg.GetByCodeHash(ctx, scope, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestResolveByNameAcceptsDisplayNameAndFQDN(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()
	scope := Scope{Org: "local", Project: "default"}

	created, err := reg.Create(ctx, CreateInput{
		Scope: scope, Namespace: "fs", Action: "exec_ab12cd34",
		CodeHash: "hash-1", ShortHash: "ab12",
	})
	require.NoError(t, err)

	byDisplay, err := reg.ResolveByName(ctx, scope, "fs:exec_ab12cd34")
	require.NoError(t, err)
	require.NotNil(t, byDisplay)
	assert.Equal(t, created.FQDN, byDisplay.FQDN)

	byFQDN, err := reg.ResolveByName(ctx, scope, created.FQDN)
	require.NoError(t, err)
	require.NotNil(t, byFQDN)
	assert.Equal(t, created.FQDN, byFQDN.FQDN)
}

func TestRenamePreservesFQDNAndBumpsVersion(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()
	scope := Scope{Org: "local", Project: "default"}

	created, err := reg.Create(ctx, CreateInput{
		Scope: scope, Namespace: "fs", Action: "exec_ab12cd34",
		CodeHash: "hash-1", ShortHash: "ab12",
	})
	require.NoError(t, err)

	renamed, err := reg.Rename(ctx, scope, "fs:exec_ab12cd34", "fs:read_config")
	require.NoError(t, err)
	assert.Equal(t, created.FQDN, renamed.FQDN)
	assert.Equal(t, 2, renamed.Version)
	assert.Equal(t, "read_config", renamed.Action)

	stillResolves, err := reg.GetByID(ctx, scope, created.FQDN)
	require.NoError(t, err)
	require.NotNil(t, stillResolves)
}

func TestRenameCollisionAndInvalidName(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()
	scope := Scope{Org: "local", Project: "default"}

	_, err := reg.Create(ctx, CreateInput{
		Scope: scope, Namespace: "fs", Action: "exec_1",
		CodeHash: "hash-1", ShortHash: "ab12",
	})
	require.NoError(t, err)
	_, err = reg.Create(ctx, CreateInput{
		Scope: scope, Namespace: "fs", Action: "exec_2",
		CodeHash: "hash-2", ShortHash: "cd34",
	})
	require.NoError(t, err)

	_, err = reg.Rename(ctx, scope, "fs:exec_2", "fs:exec_1")
	require.Error(t, err)

	_, err = reg.Rename(ctx, scope, "fs:exec_2", "!!!invalid")
	require.Error(t, err)
}

func TestRecordUsageAccumulates(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()
	scope := Scope{Org: "local", Project: "default"}

	created, err := reg.Create(ctx, CreateInput{
		Scope: scope, Namespace: "fs", Action: "exec_1",
		CodeHash: "hash-1", ShortHash: "ab12",
	})
	require.NoError(t, err)

	reg.RecordUsage(ctx, scope, created.FQDN, true, 100)
	reg.RecordUsage(ctx, scope, created.FQDN, false, 50)

	updated, err := reg.GetByID(ctx, scope, created.FQDN)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.UsageCount)
	assert.Equal(t, int64(1), updated.SuccessCount)
	assert.Equal(t, int64(150), updated.TotalLatencyMs)
	assert.LessOrEqual(t, updated.SuccessCount, updated.UsageCount)
}

func TestListByScopeFiltersVisibility(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()
	scope := Scope{Org: "local", Project: "default"}

	_, err := reg.Create(ctx, CreateInput{
		Scope: scope, Namespace: "fs", Action: "exec_1",
		CodeHash: "hash-1", ShortHash: "ab12", Visibility: VisibilityPublic,
	})
	require.NoError(t, err)
	_, err = reg.Create(ctx, CreateInput{
		Scope: scope, Namespace: "fs", Action: "exec_2",
		CodeHash: "hash-2", ShortHash: "cd34", Visibility: VisibilityPrivate,
	})
	require.NoError(t, err)

	public, err := reg.ListByScope(ctx, scope, VisibilityPublic)
	require.NoError(t, err)
	assert.Len(t, public, 1)

	all, err := reg.ListByScope(ctx, scope, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
