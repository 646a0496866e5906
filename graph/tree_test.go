package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindNodeAndParent(t *testing.T) {
	g := sampleGraph()

	require.NotNil(t, FindNode(g.Nodes, "lift"))
	assert.Equal(t, "Lift", FindNode(g.Nodes, "lift").Title)
	assert.Nil(t, FindNode(g.Nodes, "missing"))

	parent, ok := FindParent(g.Nodes, "run")
	require.True(t, ok)
	assert.Equal(t, "fitness", parent.ID)

	parent, ok = FindParent(g.Nodes, "inbox")
	assert.True(t, ok)
	assert.Nil(t, parent)

	_, ok = FindParent(g.Nodes, "missing")
	assert.False(t, ok)
}

func TestPathToDoesNotAlias(t *testing.T) {
	g := sampleGraph()

	run := PathTo(g.Nodes, "run")
	lift := PathTo(g.Nodes, "lift")
	require.Len(t, run, 3)
	require.Len(t, lift, 3)
	assert.Equal(t, "run", run[2].ID)
	assert.Equal(t, "lift", lift[2].ID)
	assert.Nil(t, PathTo(g.Nodes, "missing"))
}

func TestCountDepthCollect(t *testing.T) {
	g := sampleGraph()
	assert.Equal(t, 6, Count(g.Nodes))
	assert.Equal(t, 3, Depth(g.Nodes))
	assert.Equal(t, 0, Depth(nil))
	assert.Equal(t, []string{"fitness", "run", "lift"}, CollectIDs(FindNode(g.Nodes, "fitness")))
}

func TestRemoveChild(t *testing.T) {
	g := sampleGraph()
	original := g.Nodes

	nodes, ok := RemoveChild(g.Nodes, "goals")
	assert.True(t, ok)
	require.Len(t, nodes, 1)
	assert.Equal(t, "inbox", nodes[0].ID)
	assert.Len(t, original, 2, "input slice untouched")

	_, ok = RemoveChild(g.Nodes, "missing")
	assert.False(t, ok)
}

func TestWalkStopsAtMaxDepth(t *testing.T) {
	root := &Node{ID: "0"}
	cur := root
	for i := 1; i < MaxDepth+10; i++ {
		next := &Node{ID: string(rune('a' + i%26))}
		cur.Children = []*Node{next}
		cur = next
	}
	visited := 0
	Walk([]*Node{root}, func(*Node, *Node, int) bool {
		visited++
		return true
	})
	assert.Equal(t, MaxDepth, visited)
	assert.Greater(t, Depth([]*Node{root}), MaxDepth)
}
