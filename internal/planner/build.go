package planner

import (
	"fmt"
	"sort"

	"github.com/antigravity-dev/capgate/internal/staticstruct"
)

// Build resolves structure's control nodes against decisions (the arm
// taken at each branch), fuses adjacent pure task nodes, and assigns
// every resulting step a parallel-execution layer.
func Build(structure *staticstruct.StaticStructure, decisions []staticstruct.InferredDecision, toolMeta map[string]ToolMetadata) (*PhysicalDAG, error) {
	chosenArm := make(map[string]int, len(decisions))
	for _, d := range decisions {
		chosenArm[d.NodeID] = d.Arm
	}

	alive := aliveNodeSet(structure, chosenArm)

	deps := buildDependencies(structure, alive)

	groups := fuseAdjacent(structure, alive, deps, toolMeta)

	return layer(groups, deps)
}

// aliveNodeSet walks the structure, including every task node that is not
// inside a control node's untaken arm.
func aliveNodeSet(structure *staticstruct.StaticStructure, chosenArm map[string]int) map[string]bool {
	excluded := make(map[string]bool)
	for _, node := range structure.Nodes {
		if node.Kind != staticstruct.NodeControl {
			continue
		}
		arm, ok := chosenArm[node.ID]
		if !ok {
			arm = 0
		}
		for i, members := range node.Arms {
			if i == arm {
				continue
			}
			for _, id := range members {
				excluded[id] = true
			}
		}
	}

	alive := make(map[string]bool)
	for _, node := range structure.Nodes {
		if node.Kind == staticstruct.NodeTask && !excluded[node.ID] {
			alive[node.ID] = true
		}
	}
	return alive
}

// buildDependencies derives, for each alive task node, the set of alive
// task node ids it depends on via data-flow or declaration-order edges.
func buildDependencies(structure *staticstruct.StaticStructure, alive map[string]bool) map[string][]string {
	deps := make(map[string][]string)
	for id := range alive {
		deps[id] = nil
	}
	for _, e := range structure.Edges {
		if !alive[e.From] || !alive[e.To] {
			continue
		}
		deps[e.To] = append(deps[e.To], e.From)
	}
	for id := range deps {
		deps[id] = dedupSorted(deps[id])
	}
	return deps
}

func dedupSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// fuseAdjacent merges a chain of task nodes into one physical step when
// every node in the chain is pure, and the edge between consecutive nodes
// is the chain's only dependency edge in both directions (a strict 1:1
// data-flow relationship, so fusing cannot change what runs concurrently
// with what).
func fuseAdjacent(structure *staticstruct.StaticStructure, alive map[string]bool, deps map[string][]string, toolMeta map[string]ToolMetadata) []PhysicalStep {
	dependents := make(map[string][]string)
	for id, parents := range deps {
		for _, p := range parents {
			dependents[p] = append(dependents[p], id)
		}
	}

	nodeByID := make(map[string]staticstruct.Node, len(structure.Nodes))
	for _, n := range structure.Nodes {
		nodeByID[n.ID] = n
	}

	assigned := make(map[string]bool)
	var steps []PhysicalStep

	ids := make([]string, 0, len(alive))
	for id := range alive {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if assigned[id] {
			continue
		}
		chain := []string{id}
		assigned[id] = true
		cur := id
		for isPure(nodeByID[cur].Tool, toolMeta) &&
			len(dependents[cur]) == 1 &&
			len(deps[dependents[cur][0]]) == 1 &&
			isPure(nodeByID[dependents[cur][0]].Tool, toolMeta) &&
			!assigned[dependents[cur][0]] {
			next := dependents[cur][0]
			chain = append(chain, next)
			assigned[next] = true
			cur = next
		}

		kind := StepTask
		if len(chain) > 1 {
			kind = StepFused
		}
		tools := make([]string, len(chain))
		for i, nid := range chain {
			tools[i] = nodeByID[nid].Tool
		}
		steps = append(steps, PhysicalStep{
			ID:      fmt.Sprintf("step_%s", chain[0]),
			Kind:    kind,
			Tools:   tools,
			NodeIDs: chain,
		})
	}
	return steps
}

func isPure(tool string, toolMeta map[string]ToolMetadata) bool {
	meta, ok := toolMeta[tool]
	return ok && meta.Pure
}

// layer assigns each physical step a layer index: zero if it has no
// dependencies among other steps, otherwise one more than the maximum
// layer of any step it depends on. This mirrors the teacher's repeated
// "collect everything whose dependencies are already processed" approach
// to DAG layering.
func layer(steps []PhysicalStep, nodeDeps map[string][]string) (*PhysicalDAG, error) {
	stepOf := make(map[string]string) // node id -> physical step id
	for _, s := range steps {
		for _, nid := range s.NodeIDs {
			stepOf[nid] = s.ID
		}
	}

	stepDeps := make(map[string]map[string]bool)
	for _, s := range steps {
		stepDeps[s.ID] = make(map[string]bool)
		for _, nid := range s.NodeIDs {
			for _, dep := range nodeDeps[nid] {
				if depStep := stepOf[dep]; depStep != "" && depStep != s.ID {
					stepDeps[s.ID][depStep] = true
				}
			}
		}
	}

	layerIndex := make(map[string]int)
	processed := make(map[string]bool)
	var layers [][]string

	remaining := len(steps)
	for remaining > 0 {
		var ready []string
		for _, s := range steps {
			if processed[s.ID] {
				continue
			}
			allDone := true
			for dep := range stepDeps[s.ID] {
				if !processed[dep] {
					allDone = false
					break
				}
			}
			if allDone {
				ready = append(ready, s.ID)
			}
		}
		if len(ready) == 0 {
			return nil, fmt.Errorf("planner: dependency cycle detected among physical steps")
		}
		sort.Strings(ready)
		layers = append(layers, ready)
		for _, id := range ready {
			layerIndex[id] = len(layers) - 1
			processed[id] = true
			remaining--
		}
	}

	for i := range steps {
		steps[i].LayerIndex = layerIndex[steps[i].ID]
		var dependsOn []string
		for dep := range stepDeps[steps[i].ID] {
			dependsOn = append(dependsOn, dep)
		}
		sort.Strings(dependsOn)
		steps[i].DependsOn = dependsOn
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].LayerIndex != steps[j].LayerIndex {
			return steps[i].LayerIndex < steps[j].LayerIndex
		}
		return steps[i].ID < steps[j].ID
	})

	return &PhysicalDAG{Steps: steps, Layers: layers}, nil
}
