package staticstruct

import "github.com/antigravity-dev/capgate/core"

func errUnresolvedArgument(nodeID, priorTaskID string) error {
	return core.NewFrameworkError("staticstruct.Validate", core.KindNoDAG, core.ErrNoDAG).WithID(nodeID + "->" + priorTaskID)
}

func errCyclicStructure() error {
	return core.NewFrameworkError("staticstruct.Validate", core.KindNoDAG, core.ErrNoDAG)
}
