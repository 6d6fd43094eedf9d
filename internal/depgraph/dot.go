package depgraph

import (
	"fmt"
	"sort"
	"strings"
)

// DOT renders the graph as a Graphviz digraph for operator debugging. It is
// a read-only view of already-computed state; formatting failures never
// affect reconciliation, so this function has no error return.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph reconciliation {\n")

	clusters := map[int][]string{}
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := g.nodes[id]
		phase := phaseOf(node.Operation.ObjectType)
		clusters[phase] = append(clusters[phase], id)
	}

	phases := make([]int, 0, len(clusters))
	for p := range clusters {
		phases = append(phases, p)
	}
	sort.Ints(phases)

	for _, p := range phases {
		fmt.Fprintf(&b, "  subgraph cluster_phase_%d {\n", p)
		fmt.Fprintf(&b, "    label=\"phase %d\";\n", p)
		for _, id := range clusters[p] {
			node := g.nodes[id]
			fmt.Fprintf(&b, "    %q [label=%q];\n", id, fmt.Sprintf("%s\\n%s", id, node.Operation.OperationType))
		}
		b.WriteString("  }\n")
	}

	for _, id := range ids {
		node := g.nodes[id]
		deps := make([]string, 0, len(node.Dependencies))
		for dep := range node.Dependencies {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			fmt.Fprintf(&b, "  %q -> %q;\n", id, dep)
		}
	}

	b.WriteString("}\n")
	return b.String()
}
