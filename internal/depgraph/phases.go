package depgraph

import "github.com/DoesN0tCompute/bamreconciler/internal/model"

// phaseOrder partitions the object-type taxonomy into 9 barrier phases.
// Index in the slice is the phase number.
var phaseOrder = [][]model.ObjectType{
	{model.ObjectDeviceType, model.ObjectTagGroup, model.ObjectUDFDefinition, model.ObjectUDLDefinition, model.ObjectMACPool},
	{model.ObjectDeviceSubtype, model.ObjectTag},
	{model.ObjectLocation, model.ObjectBlock, model.ObjectNetwork, model.ObjectBlock6, model.ObjectNetwork6},
	{model.ObjectZone, model.ObjectACL},
	{model.ObjectExternalHostRecord},
	{model.ObjectHostRecord, model.ObjectAddress, model.ObjectAddress6, model.ObjectAddressGroup, model.ObjectMACAddress},
	{model.ObjectAliasRecord, model.ObjectMXRecord, model.ObjectSRVRecord, model.ObjectTXTRecord, model.ObjectGenericRecord},
	{model.ObjectDevice},
	{
		model.ObjectDHCPRange, model.ObjectDHCPRange6, model.ObjectDHCPClientClass,
		model.ObjectDHCPDeploymentRole, model.ObjectDNSDeploymentRole,
		model.ObjectDHCPClientDeployOpt, model.ObjectDHCPServiceDeployOpt,
		model.ObjectDeviceAddress, model.ObjectResourceTag, model.ObjectUserDefinedLink, model.ObjectAccessRight,
	},
}

func phaseOf(ot model.ObjectType) int {
	for phase, types := range phaseOrder {
		for _, t := range types {
			if t == ot {
				return phase
			}
		}
	}
	return len(phaseOrder) - 1
}

// ApplyPhaseBarriers inserts synthetic system_barrier nodes between
// populated phases so that no operation in phase N+1 may start until every
// operation in phase N is terminal. All DELETE phases run before any
// CREATE/UPDATE phase; DELETE phases run in reverse (8 -> 0), CREATE/UPDATE
// phases run forward (0 -> 8).
func (g *Graph) ApplyPhaseBarriers() error {
	deleteByPhase := map[int][]*model.DependencyNode{}
	otherByPhase := map[int][]*model.DependencyNode{}
	for _, node := range g.nodes {
		p := phaseOf(node.Operation.ObjectType)
		if node.Operation.OperationType == model.OpDelete {
			deleteByPhase[p] = append(deleteByPhase[p], node)
		} else {
			otherByPhase[p] = append(otherByPhase[p], node)
		}
	}

	var prevBarrier *model.DependencyNode
	for p := len(phaseOrder) - 1; p >= 0; p-- {
		nodes := deleteByPhase[p]
		if len(nodes) == 0 {
			continue
		}
		barrier := g.addBarrier(prevBarrier, nodes)
		prevBarrier = barrier
	}
	for p := 0; p < len(phaseOrder); p++ {
		nodes := otherByPhase[p]
		if len(nodes) == 0 {
			continue
		}
		barrier := g.addBarrier(prevBarrier, nodes)
		prevBarrier = barrier
	}
	return nil
}

// addBarrier creates a system_barrier node that depends on every node in
// phaseNodes, and makes every node in phaseNodes depend on the previous
// barrier (if any) so the phase boundary is enforced. Returns the new
// barrier node.
func (g *Graph) addBarrier(previous *model.DependencyNode, phaseNodes []*model.DependencyNode) *model.DependencyNode {
	g.barrierSeq++
	barrierOp := &model.Operation{
		ObjectType:    model.ObjectSystemBarrier,
		RowID:         barrierIDFor(g.barrierSeq),
		OperationType: model.OpNoop,
		Payload:       map[string]any{},
		Status:        model.StatusPending,
	}
	barrier := g.AddNode(barrierOp)

	for _, n := range phaseNodes {
		if previous != nil {
			_ = g.AddDependency(n.NodeID(), previous.NodeID(), model.DepPrerequisite)
		}
		_ = g.AddDependency(barrier.NodeID(), n.NodeID(), model.DepPrerequisite)
	}
	return barrier
}

func barrierIDFor(seq int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	if seq < len(letters) {
		return string(letters[seq])
	}
	return string(rune('a'+seq%26)) + barrierIDFor(seq/26)
}
