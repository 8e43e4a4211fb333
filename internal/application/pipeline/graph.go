package pipeline

import (
	"fmt"

	"github.com/aescanero/codeforge/pkg/domain"
)

const (
	nodeSpacingX = 250
	laneSpacingY = 150
)

// BuildGraph derives the execution graph of an ordering using the registry's
// concurrent group.
func (r *Registry) BuildGraph(order []string) *domain.ExecutionGraph {
	return BuildGraph(order, r.group)
}

// BuildGraph lays stages out left to right and chains each to its successor.
// When the ordering puts group.After immediately before the head of one branch
// and every sibling branch head is present, the chain is rewritten into a
// fan-out from group.After to each branch and a join into group.Join.
// The result depends on the ordering only.
func BuildGraph(order []string, group ConcurrentGroup) *domain.ExecutionGraph {
	g := &domain.ExecutionGraph{
		Nodes: make([]domain.GraphNode, 0, len(order)),
		Edges: make([]domain.GraphEdge, 0, len(order)),
	}

	index := make(map[string]int, len(order))
	for i, name := range order {
		index[name] = i
	}

	fanOut := group.matches(order, index)

	for i, name := range order {
		lane := 0
		if fanOut {
			if b, ok := group.Member(name); ok {
				lane = b
			}
		}
		g.Nodes = append(g.Nodes, domain.GraphNode{
			ID:       name,
			Label:    name,
			Position: domain.Position{X: i * nodeSpacingX, Y: lane * laneSpacingY},
		})
	}

	for i := 1; i < len(order); i++ {
		from, to := order[i-1], order[i]
		if fanOut && group.rewrites(from, to) {
			continue
		}
		addEdge(g, from, to, false)
	}

	if !fanOut {
		return g
	}

	_, hasJoin := index[group.Join]
	for _, branch := range group.Branches {
		present := make([]string, 0, len(branch))
		for _, s := range branch {
			if _, ok := index[s]; ok {
				present = append(present, s)
			}
		}
		if len(present) == 0 {
			continue
		}

		addEdge(g, group.After, present[0], true)
		for k := 1; k < len(present); k++ {
			addEdge(g, present[k-1], present[k], false)
		}
		if hasJoin {
			addEdge(g, present[len(present)-1], group.Join, true)
		}
	}

	return g
}

// matches reports whether the ordering has the fan-out shape.
func (g ConcurrentGroup) matches(order []string, index map[string]int) bool {
	after, ok := index[g.After]
	if !ok || after+1 >= len(order) || len(g.Branches) < 2 {
		return false
	}

	next := order[after+1]
	followsHead := false
	for _, branch := range g.Branches {
		if len(branch) == 0 {
			return false
		}
		if _, ok := index[branch[0]]; !ok {
			return false
		}
		if branch[0] == next {
			followsHead = true
		}
	}
	return followsHead
}

// rewrites reports whether a chain edge is replaced by the fan-out/join edges:
// edges leaving After, edges between group members and member edges into Join.
func (g ConcurrentGroup) rewrites(from, to string) bool {
	if from == g.After {
		return true
	}
	_, fromMember := g.Member(from)
	_, toMember := g.Member(to)
	if fromMember && toMember {
		return true
	}
	return fromMember && to == g.Join
}

func addEdge(g *domain.ExecutionGraph, from, to string, parallel bool) {
	if _, exists := g.Edge(from, to); exists {
		return
	}
	g.Edges = append(g.Edges, domain.GraphEdge{
		ID:       fmt.Sprintf("edge-%s-%s", from, to),
		From:     from,
		To:       to,
		Parallel: parallel,
	})
}
