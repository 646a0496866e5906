package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func task(id, title string, children ...*Node) *Node {
	n := &Node{ID: id, Title: title, NodeType: NodeTypeTask, Children: children}
	if len(children) > 0 {
		n.NodeSubtype = SubtypeWithChildren
	}
	n.Normalize()
	return n
}

// sampleGraph:
//
//	goals
//	├── fitness
//	│   ├── run
//	│   └── lift
//	└── reading
//	inbox
func sampleGraph() *Graph {
	g := New()
	g.Nodes = []*Node{
		task("goals", "Goals",
			task("fitness", "Fitness", task("run", "Run"), task("lift", "Lift")),
			task("reading", "Reading"),
		),
		task("inbox", "Inbox"),
	}
	return g
}

// assertIndexConsistent checks the index against the tree it was built from.
func assertIndexConsistent(t *testing.T, g *Graph, ix *Index) {
	t.Helper()
	assert.Equal(t, Count(g.Nodes), ix.Len(), "index size equals reachable node count")
	Walk(g.Nodes, func(n, parent *Node, _ int) bool {
		assert.Same(t, n, ix.Node(n.ID), "index holds tree pointer for %s", n.ID)
		wantParent := ""
		if parent != nil {
			wantParent = parent.ID
		}
		assert.Equal(t, wantParent, ix.ParentID(n.ID), "parent of %s", n.ID)

		var walked []string
		for _, ancestor := range PathTo(g.Nodes, n.ID) {
			walked = append(walked, ancestor.Title)
		}
		assert.Equal(t, walked, ix.Path(n.ID), "path of %s", n.ID)
		return true
	})
}

func TestBuildIndex(t *testing.T) {
	g := sampleGraph()
	ix := BuildIndex(g)

	assert.Equal(t, 6, ix.Len())
	assert.Equal(t, []string{"Goals", "Fitness", "Run"}, ix.Path("run"))
	assert.Equal(t, "fitness", ix.ParentID("lift"))
	assert.Equal(t, "", ix.ParentID("goals"))
	assert.Equal(t, "", ix.ParentID("missing"))
	assert.Nil(t, ix.Node("missing"))
	assert.True(t, ix.Has("reading"))
	assertIndexConsistent(t, g, ix)
}

func TestBuildIndexNilGraph(t *testing.T) {
	ix := BuildIndex(nil)
	assert.Equal(t, 0, ix.Len())
}

func TestIndexAddWithNestedChildren(t *testing.T) {
	g := sampleGraph()
	ix := BuildIndex(g)

	sub := task("books", "Books", task("novel", "Novel"))
	reading := ix.Node("reading")
	reading.Children = append(reading.Children, sub)
	ix.Add(sub, "reading")

	assert.Equal(t, []string{"Goals", "Reading", "Books", "Novel"}, ix.Path("novel"))
	assert.Equal(t, "books", ix.ParentID("novel"))
	assertIndexConsistent(t, g, ix)
}

func TestIndexAddUnknownParentIsRoot(t *testing.T) {
	g := sampleGraph()
	ix := BuildIndex(g)

	orphan := task("orphan", "Orphan")
	g.Nodes = append(g.Nodes, orphan)
	ix.Add(orphan, "nope")

	assert.Equal(t, "", ix.ParentID("orphan"))
	assert.Equal(t, []string{"Orphan"}, ix.Path("orphan"))
	assertIndexConsistent(t, g, ix)
}

func TestIndexRemoveDropsDescendants(t *testing.T) {
	g := sampleGraph()
	ix := BuildIndex(g)

	goals := ix.Node("goals")
	goals.Children, _ = RemoveChild(goals.Children, "fitness")
	ix.Remove("fitness")

	for _, id := range []string{"fitness", "run", "lift"} {
		assert.False(t, ix.Has(id), id)
	}
	ix.Remove("fitness")
	assertIndexConsistent(t, g, ix)
}

func TestIndexUpdatePathPropagates(t *testing.T) {
	g := sampleGraph()
	ix := BuildIndex(g)

	ix.Node("fitness").Title = "Health"
	ix.UpdatePath("fitness")

	assert.Equal(t, []string{"Goals", "Health"}, ix.Path("fitness"))
	assert.Equal(t, []string{"Goals", "Health", "Run"}, ix.Path("run"))
	assert.Equal(t, []string{"Goals", "Reading"}, ix.Path("reading"))
	assertIndexConsistent(t, g, ix)
}

func TestIndexAncestorsAndDescendants(t *testing.T) {
	ix := BuildIndex(sampleGraph())

	assert.Equal(t, []string{"goals", "fitness"}, ix.AncestorIDs("run"))
	assert.Empty(t, ix.AncestorIDs("goals"))

	var ids []string
	for _, n := range ix.Descendants("goals") {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"fitness", "run", "lift", "reading"}, ids)
	assert.Nil(t, ix.Descendants("missing"))
}

func TestIncrementalIndexEqualsRebuild(t *testing.T) {
	g := sampleGraph()
	ix := BuildIndex(g)

	// interleave adds, removes and renames against the live tree
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("step-%d", i)
		parent := ix.Node("goals")
		n := task(id, fmt.Sprintf("Step %d", i), task(id+"-sub", "Sub"))
		parent.Children = append(parent.Children, n)
		ix.Add(n, "goals")
	}
	goals := ix.Node("goals")
	goals.Children, _ = RemoveChild(goals.Children, "step-2")
	ix.Remove("step-2")
	goals.Title = "Objectives"
	ix.UpdatePath("goals")

	rebuilt := BuildIndex(g)
	require.Equal(t, rebuilt.Len(), ix.Len())
	for _, id := range rebuilt.IDs() {
		assert.Same(t, rebuilt.Node(id), ix.Node(id))
		assert.Equal(t, rebuilt.ParentID(id), ix.ParentID(id))
		assert.Equal(t, rebuilt.Path(id), ix.Path(id))
	}
}
