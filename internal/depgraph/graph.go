// Package depgraph builds the dependency DAG over a batch of operations,
// detects cycles, applies phase barriers, and produces topologically sorted
// batches for the execution planner.
package depgraph

import (
	"fmt"
	"sort"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
	"github.com/DoesN0tCompute/bamreconciler/internal/logging"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
	"github.com/sirupsen/logrus"
)

// Graph is the dependency DAG over a set of operations.
type Graph struct {
	nodes      map[string]*model.DependencyNode
	byType     map[model.ObjectType][]*model.DependencyNode
	byOpType   map[model.OperationType][]*model.DependencyNode
	createByType map[model.ObjectType][]*model.DependencyNode
	validated  bool
	barrierSeq int
	log        *logrus.Logger
}

func New(log *logrus.Logger) *Graph {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Graph{
		nodes:        make(map[string]*model.DependencyNode),
		byType:       make(map[model.ObjectType][]*model.DependencyNode),
		byOpType:     make(map[model.OperationType][]*model.DependencyNode),
		createByType: make(map[model.ObjectType][]*model.DependencyNode),
		log:          log,
	}
}

// AddNode registers op in the graph. Re-adding the same node id is a no-op
// (logged) that returns the existing node.
func (g *Graph) AddNode(op *model.Operation) *model.DependencyNode {
	id := op.NodeID()
	if existing, ok := g.nodes[id]; ok {
		g.log.WithFields(logging.GraphFields(id).Logrus()).Warn("duplicate node add ignored")
		return existing
	}
	node := &model.DependencyNode{
		Operation:    op,
		Dependencies: map[string]struct{}{},
		Dependents:   map[string]struct{}{},
	}
	g.nodes[id] = node
	g.byType[op.ObjectType] = append(g.byType[op.ObjectType], node)
	g.byOpType[op.OperationType] = append(g.byOpType[op.OperationType], node)
	if op.OperationType == model.OpCreate {
		g.createByType[op.ObjectType] = append(g.createByType[op.ObjectType], node)
	}
	g.validated = false
	return node
}

// Node returns the node for id, if present.
func (g *Graph) Node(id string) (*model.DependencyNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in unspecified order.
func (g *Graph) Nodes() []*model.DependencyNode {
	out := make([]*model.DependencyNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// AddDependency records that dependent requires dependency to complete
// first. Self-edges are ignored. An edge that would close a cycle is
// rejected and rolled back.
func (g *Graph) AddDependency(dependentID, dependencyID string, kind model.DependencyKind) error {
	dependent, ok := g.nodes[dependentID]
	if !ok {
		return recerr.New(recerr.KindMissingNode, "unknown dependent node: "+dependentID)
	}
	dependency, ok := g.nodes[dependencyID]
	if !ok {
		return recerr.New(recerr.KindMissingNode, "unknown dependency node: "+dependencyID)
	}
	if dependentID == dependencyID {
		g.log.WithFields(logging.GraphFields(dependentID).Logrus()).Warn("self-dependency ignored")
		return nil
	}
	if _, exists := dependent.Dependencies[dependencyID]; exists {
		return nil
	}

	dependent.Dependencies[dependencyID] = struct{}{}
	dependency.Dependents[dependentID] = struct{}{}

	if g.hasCycleFrom(dependentID) {
		delete(dependent.Dependencies, dependencyID)
		delete(dependency.Dependents, dependentID)
		return recerr.New(recerr.KindCyclicDependency, fmt.Sprintf("adding edge %s -> %s would create a cycle", dependentID, dependencyID)).
			WithDetail("dependent", dependentID).WithDetail("dependency", dependencyID)
	}
	g.validated = false
	return nil
}

// hasCycleFrom runs a DFS from start over the Dependencies relation,
// tracking the current recursion path (not merely a visited set) so that a
// diamond (A depends on B and C, both depend on D) is not mistaken for a
// cycle, while A -> B -> A is correctly detected.
func (g *Graph) hasCycleFrom(start string) bool {
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		node := g.nodes[id]
		for dep := range node.Dependencies {
			if onStack[dep] {
				return true
			}
			if !visited[dep] {
				if dfs(dep) {
					return true
				}
			}
		}
		onStack[id] = false
		return false
	}
	return dfs(start)
}

// Validate re-checks bidirectional dependency/dependent consistency across
// every node and forces a topological sort to re-confirm acyclicity.
func (g *Graph) Validate() error {
	for id, node := range g.nodes {
		for dep := range node.Dependencies {
			depNode, ok := g.nodes[dep]
			if !ok {
				return recerr.New(recerr.KindMissingNode, "dependency references unknown node: "+dep)
			}
			if _, ok := depNode.Dependents[id]; !ok {
				return recerr.New(recerr.KindMissingNode, "inconsistent dependents index for "+dep)
			}
		}
	}
	if _, err := g.TopologicalSort(); err != nil {
		return err
	}
	g.validated = true
	return nil
}

// RecomputeDepths assigns every node's depth as 1 + max(dependency depth), 0
// for roots. Requires the graph to be acyclic.
func (g *Graph) RecomputeDepths() error {
	order, err := g.TopologicalSort()
	if err != nil {
		return err
	}
	for _, id := range order {
		node := g.nodes[id]
		maxDep := -1
		for dep := range node.Dependencies {
			if d := g.nodes[dep].Depth; d > maxDep {
				maxDep = d
			}
		}
		node.Depth = maxDep + 1
	}
	return nil
}

// TopologicalSort runs Kahn's algorithm over the Dependencies relation and
// returns node ids in an order where every dependency precedes its
// dependents. Any node left unprocessed indicates a residual cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for id, node := range g.nodes {
		inDegree[id] = len(node.Dependencies)
	}
	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		var next []string
		for dependent := range g.nodes[id].Dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	if len(order) != len(g.nodes) {
		var unresolved []string
		for id, deg := range inDegree {
			if deg > 0 {
				unresolved = append(unresolved, id)
			}
		}
		sort.Strings(unresolved)
		return nil, recerr.New(recerr.KindCyclicDependency, "graph contains a residual cycle").
			WithDetail("unresolved_nodes", unresolved)
	}
	return order, nil
}

// SyncOperationEdges copies each node's resolved Dependencies, Dependents,
// and Depth onto the Operation it wraps, so code downstream of the graph
// (the executor's cascade walk, which only ever sees *model.Operation, never
// *model.DependencyNode) observes the same edges the graph computed.
func (g *Graph) SyncOperationEdges() {
	for _, node := range g.nodes {
		node.Operation.Dependencies = copyEdgeSet(node.Dependencies)
		node.Operation.Dependents = copyEdgeSet(node.Dependents)
		node.Operation.Depth = node.Depth
	}
}

func copyEdgeSet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Batches groups nodes by depth (after RecomputeDepths) in ascending depth
// order, the form the execution planner consumes.
func (g *Graph) Batches() ([][]*model.DependencyNode, error) {
	if err := g.RecomputeDepths(); err != nil {
		return nil, err
	}
	byDepth := map[int][]*model.DependencyNode{}
	maxDepth := -1
	for _, node := range g.nodes {
		byDepth[node.Depth] = append(byDepth[node.Depth], node)
		if node.Depth > maxDepth {
			maxDepth = node.Depth
		}
	}
	batches := make([][]*model.DependencyNode, 0, maxDepth+1)
	for d := 0; d <= maxDepth; d++ {
		nodes := byDepth[d]
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID() < nodes[j].NodeID() })
		batches = append(batches, nodes)
	}
	return batches, nil
}
