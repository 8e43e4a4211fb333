package pipeline

import (
	"testing"

	"github.com/aescanero/codeforge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultGroup() ConcurrentGroup {
	return NewRegistry(&stubAgents{}).ConcurrentGroup()
}

func edgeSet(g *domain.ExecutionGraph) map[[2]string]bool {
	set := make(map[[2]string]bool, len(g.Edges))
	for _, e := range g.Edges {
		set[[2]string{e.From, e.To}] = e.Parallel
	}
	return set
}

func TestBuildGraphFanOutAndJoin(t *testing.T) {
	order := []string{StageDecompose, StageGenerate, StageExtract, StageReview, StageTestGen, StageExecute}
	g := BuildGraph(order, defaultGroup())

	require.Len(t, g.Nodes, 6)
	assert.Equal(t, map[[2]string]bool{
		{StageDecompose, StageGenerate}: false,
		{StageGenerate, StageExtract}:   false,
		{StageExtract, StageReview}:     true,
		{StageExtract, StageTestGen}:    true,
		{StageReview, StageExecute}:     true,
		{StageTestGen, StageExecute}:    true,
	}, edgeSet(g))

	_, chained := g.Edge(StageReview, StageTestGen)
	assert.False(t, chained)
}

func TestBuildGraphDefaultOrderKeepsClassifierInReviewBranch(t *testing.T) {
	g := BuildGraph(DefaultOrder, defaultGroup())

	assert.Equal(t, map[[2]string]bool{
		{StageDecompose, StageGenerate}: false,
		{StageGenerate, StageExtract}:   false,
		{StageExtract, StageReview}:     true,
		{StageReview, StageClassify}:    false,
		{StageClassify, StageExecute}:   true,
		{StageExtract, StageTestGen}:    true,
		{StageTestGen, StageExecute}:    true,
	}, edgeSet(g))

	for _, n := range g.Nodes {
		if n.ID == StageTestGen {
			assert.Equal(t, laneSpacingY, n.Position.Y)
		} else {
			assert.Equal(t, 0, n.Position.Y)
		}
	}
}

func TestBuildGraphTestGenFirst(t *testing.T) {
	order := []string{StageExtract, StageTestGen, StageReview}
	g := BuildGraph(order, defaultGroup())

	assert.Equal(t, map[[2]string]bool{
		{StageExtract, StageReview}:  true,
		{StageExtract, StageTestGen}: true,
	}, edgeSet(g))
}

func TestBuildGraphChainWhenSiblingMissing(t *testing.T) {
	order := []string{StageDecompose, StageGenerate, StageExtract, StageReview, StageExecute}
	g := BuildGraph(order, defaultGroup())

	require.Len(t, g.Edges, 4)
	for i, e := range g.Edges {
		assert.Equal(t, order[i], e.From)
		assert.Equal(t, order[i+1], e.To)
		assert.False(t, e.Parallel)
	}
}

func TestBuildGraphChainWhenExtractNotFollowedByBranch(t *testing.T) {
	order := []string{StageExtract, StageDecompose, StageReview, StageTestGen}
	g := BuildGraph(order, defaultGroup())

	assert.Equal(t, map[[2]string]bool{
		{StageExtract, StageDecompose}: false,
		{StageDecompose, StageReview}:  false,
		{StageReview, StageTestGen}:    false,
	}, edgeSet(g))
}

func TestBuildGraphPositions(t *testing.T) {
	g := BuildGraph([]string{StageDecompose, StageGenerate}, defaultGroup())

	require.Len(t, g.Nodes, 2)
	assert.Equal(t, domain.Position{X: 0, Y: 0}, g.Nodes[0].Position)
	assert.Equal(t, domain.Position{X: nodeSpacingX, Y: 0}, g.Nodes[1].Position)
	assert.Equal(t, "edge-decompose-generate", g.Edges[0].ID)
}

func TestBuildGraphEmpty(t *testing.T) {
	g := BuildGraph(nil, defaultGroup())
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)
}
