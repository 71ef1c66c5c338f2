package staticstruct

// InferredDecision records which branch arm a control node took.
type InferredDecision struct {
	NodeID string
	Arm    int
}

// InferDecisions returns, for each control node in structure, which arm
// was taken given the actual executed tool sequence. An arm counts as
// taken when every task node in it names a tool that appears somewhere in
// executedPath; the order of executedPath is not checked. Arms are tried
// in declaration order and the first that qualifies wins; when none
// does, arm 0 is reported.
func InferDecisions(structure *StaticStructure, executedPath []string) []InferredDecision {
	executed := make(map[string]bool, len(executedPath))
	for _, toolID := range executedPath {
		executed[toolID] = true
	}

	var out []InferredDecision
	for _, node := range structure.Nodes {
		if node.Kind != NodeControl || len(node.Arms) == 0 {
			continue
		}
		chosen := -1
		for armIdx, arm := range node.Arms {
			if armAllExecuted(structure, arm, executed) {
				chosen = armIdx
				break // arms are stored in declaration order; first match wins
			}
		}
		if chosen == -1 {
			chosen = 0
		}
		out = append(out, InferredDecision{NodeID: node.ID, Arm: chosen})
	}
	return out
}

func armAllExecuted(structure *StaticStructure, arm []string, executed map[string]bool) bool {
	if len(arm) == 0 {
		return false
	}
	for _, id := range arm {
		node, ok := structure.NodeByID(id)
		if !ok {
			continue
		}
		if node.Kind == NodeTask && !executed[node.Tool] {
			return false
		}
	}
	return true
}

// Validate checks the DAG-convertible predicate: every prior-result
// argument of a task resolves to a node, and the graph induced by all
// edges (data-flow and order) is acyclic. When knownTools is non-nil, a
// task whose tool is not in it is skipped rather than rejected, and its
// arguments are not checked.
func Validate(structure *StaticStructure, knownTools map[string]bool) error {
	for _, node := range structure.Nodes {
		if node.Kind != NodeTask {
			continue
		}
		if knownTools != nil && !knownTools[node.Tool] {
			// unknown tools are tagged, not rejected here; approval
			// gating for unknown tools happens in the planner (C8).
			continue
		}
		for _, ref := range node.StaticArguments {
			if ref.Kind == ArgPriorResult {
				if _, ok := structure.NodeByID(ref.PriorTaskID); !ok {
					return errUnresolvedArgument(node.ID, ref.PriorTaskID)
				}
			}
		}
	}
	if hasCycle(structure) {
		return errCyclicStructure()
	}
	return nil
}

func hasCycle(structure *StaticStructure) bool {
	adj := make(map[string][]string)
	for _, e := range structure.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, n := range structure.Nodes {
		if color[n.ID] == white {
			if visit(n.ID) {
				return true
			}
		}
	}
	return false
}
