package planner

import "fmt"

// RequiresApproval evaluates the physical plan's human-in-the-loop gating
// predicate: a plan needs review if it contains a sensitive tool, a fused
// step whose members are not uniformly known-safe, or a tool the caller
// did not supply metadata for at all (an unknown tool is treated as
// sensitive by default).
func RequiresApproval(dag *PhysicalDAG, toolMeta map[string]ToolMetadata) ApprovalRequirement {
	var reasons []string
	for _, step := range dag.Steps {
		for _, tool := range step.Tools {
			meta, known := toolMeta[tool]
			if !known {
				reasons = append(reasons, fmt.Sprintf("tool %q has no known metadata", tool))
				continue
			}
			if meta.Sensitive {
				reasons = append(reasons, fmt.Sprintf("tool %q is marked sensitive", tool))
			}
		}
	}
	return ApprovalRequirement{RequiresApproval: len(reasons) > 0, Reasons: reasons}
}
