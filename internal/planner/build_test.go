package planner

import (
	"testing"

	"github.com/antigravity-dev/capgate/internal/staticstruct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLayersIndependentSteps(t *testing.T) {
	b := staticstruct.NewBuilder(nil)
	structure, err := b.Build(`
a := mcp.fs.read_file(map[string]interface{}{"path": "a.json"})
b := mcp.fs.read_file(map[string]interface{}{"path": "b.json"})
r := mcp.http.post(map[string]interface{}{"a": a, "b": b})
`)
	require.NoError(t, err)

	dag, err := Build(structure, nil, map[string]ToolMetadata{
		"fs:read_file": {Pure: true},
		"http:post":    {Pure: false},
	})
	require.NoError(t, err)

	require.Len(t, dag.Layers, 2)
	assert.Len(t, dag.Layers[0], 2)
	assert.Len(t, dag.Layers[1], 1)
}

func TestBuildFusesPureAdjacentChain(t *testing.T) {
	b := staticstruct.NewBuilder(nil)
	structure, err := b.Build(`
a := mcp.fs.read_file(map[string]interface{}{"path": "a.json"})
c := mcp.fs.write_file(map[string]interface{}{"path": "b.json", "body": a})
`)
	require.NoError(t, err)

	dag, err := Build(structure, nil, map[string]ToolMetadata{
		"fs:read_file":  {Pure: true},
		"fs:write_file": {Pure: true},
	})
	require.NoError(t, err)

	require.Len(t, dag.Steps, 1)
	assert.Equal(t, StepFused, dag.Steps[0].Kind)
	assert.Equal(t, []string{"fs:read_file", "fs:write_file"}, dag.Steps[0].Tools)
}

func TestBuildSkipsUntakenArm(t *testing.T) {
	b := staticstruct.NewBuilder(nil)
	structure, err := b.Build(`
if true {
	mcp.fs.read_file(map[string]interface{}{"path": "a.json"})
} else {
	mcp.fs.write_file(map[string]interface{}{"path": "b.json"})
}
`)
	require.NoError(t, err)

	var control *staticstruct.Node
	for i := range structure.Nodes {
		if structure.Nodes[i].Kind == staticstruct.NodeControl {
			control = &structure.Nodes[i]
		}
	}
	require.NotNil(t, control)

	dag, err := Build(structure, []staticstruct.InferredDecision{{NodeID: control.ID, Arm: 1}}, map[string]ToolMetadata{
		"fs:read_file":  {Pure: true},
		"fs:write_file": {Pure: true},
	})
	require.NoError(t, err)

	require.Len(t, dag.Steps, 1)
	assert.Equal(t, []string{"fs:write_file"}, dag.Steps[0].Tools)
}

func TestRequiresApprovalFlagsSensitiveTool(t *testing.T) {
	b := staticstruct.NewBuilder(nil)
	structure, err := b.Build(`mcp.payments.transfer(map[string]interface{}{"amount": 100})`)
	require.NoError(t, err)

	dag, err := Build(structure, nil, map[string]ToolMetadata{
		"payments:transfer": {Sensitive: true},
	})
	require.NoError(t, err)

	req := RequiresApproval(dag, map[string]ToolMetadata{"payments:transfer": {Sensitive: true}})
	assert.True(t, req.RequiresApproval)
	assert.Len(t, req.Reasons, 1)
}

func TestRequiresApprovalPassesWhenAllToolsKnownAndSafe(t *testing.T) {
	b := staticstruct.NewBuilder(nil)
	structure, err := b.Build(`mcp.fs.read_file(map[string]interface{}{"path": "a.json"})`)
	require.NoError(t, err)

	meta := map[string]ToolMetadata{"fs:read_file": {Pure: true}}
	dag, err := Build(structure, nil, meta)
	require.NoError(t, err)

	req := RequiresApproval(dag, meta)
	assert.False(t, req.RequiresApproval)
}
