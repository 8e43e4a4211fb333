package domain

// Position is the display coordinate of a graph node
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// GraphNode is one stage in an execution graph
type GraphNode struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Position Position `json:"position"`
}

// GraphEdge is a dependency between two stages. Parallel marks fan-out and join edges.
type GraphEdge struct {
	ID       string `json:"id"`
	From     string `json:"source"`
	To       string `json:"target"`
	Parallel bool   `json:"parallel"`
}

// ExecutionGraph is an advisory visualization of stage dependencies.
// It is built once per task and never mutated afterwards.
type ExecutionGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Edge returns the edge between two nodes, if any.
func (g *ExecutionGraph) Edge(from, to string) (GraphEdge, bool) {
	for _, e := range g.Edges {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return GraphEdge{}, false
}

// Clone returns a deep copy of the graph.
func (g *ExecutionGraph) Clone() *ExecutionGraph {
	if g == nil {
		return nil
	}
	return &ExecutionGraph{
		Nodes: append([]GraphNode(nil), g.Nodes...),
		Edges: append([]GraphEdge(nil), g.Edges...),
	}
}
