// Package progress computes node completion from tree structure and
// cross-links, decides which cached values an update invalidates and applies
// the periodic reset policy.
package progress

import (
	"github.com/teranos/trellis/graph"
	"github.com/teranos/trellis/internal/util"
)

// Resolver looks up nodes by id. graph.Locator and graph.Index satisfy it.
type Resolver interface {
	Node(id string) *graph.Node
}

// Calculate returns the progress of n in [0, 1]. It reads children
// recursively and never consults cached calculatedProgress values.
func Calculate(n *graph.Node, r Resolver) float64 {
	return calculate(n, r, 0)
}

func calculate(n *graph.Node, r Resolver, depth int) float64 {
	if n == nil || depth > graph.MaxDepth {
		return 0
	}
	switch n.NodeType {
	case graph.NodeTypeTask:
		if n.NodeSubtype == graph.SubtypeWithChildren && len(n.Children) > 0 {
			return childMean(n, r, depth)
		}
		return taskProgress(n)
	case graph.NodeTypeAggregate:
		switch n.NodeSubtype {
		case graph.SubtypeCategory:
			return childMean(n, r, depth)
		case graph.SubtypeUpstream:
			return linkedMean(n, graph.LinkUpstream, r, depth)
		case graph.SubtypeDownstream:
			return linkedMean(n, graph.LinkDownstream, r, depth)
		}
	}
	return 0
}

func taskProgress(n *graph.Node) float64 {
	if n.IsDone {
		return 1
	}
	required := n.RequiredCompletions
	if required < 1 {
		required = 1
	}
	return util.Clamp01(float64(n.CurrentCompletions) / float64(required))
}

func childMean(n *graph.Node, r Resolver, depth int) float64 {
	var values []float64
	for _, child := range n.Children {
		if child != nil && child.IsTask() {
			values = append(values, calculate(child, r, depth+1))
		}
	}
	return util.Mean(values)
}

func linkedMean(n *graph.Node, kind graph.LinkKind, r Resolver, depth int) float64 {
	tasks := CollectLinkedTasks(n, kind, r)
	values := make([]float64, 0, len(tasks))
	for _, t := range tasks {
		values = append(values, calculate(t, r, depth+1))
	}
	return util.Mean(values)
}

// CollectLinkedTasks follows n's links of kind transitively. Aggregates are
// passed through along their own links of the same kind; tasks are
// collected once each and not followed. Unknown ids are skipped.
func CollectLinkedTasks(n *graph.Node, kind graph.LinkKind, r Resolver) []*graph.Node {
	var tasks []*graph.Node
	walkLinks(n, kind, r, func(linked *graph.Node) {
		if linked.IsTask() {
			tasks = append(tasks, linked)
		}
	})
	return tasks
}

// LinkedNodes returns every node the traversal of n's links of kind
// reaches, pass-through aggregates included, in visit order.
func LinkedNodes(n *graph.Node, kind graph.LinkKind, r Resolver) []*graph.Node {
	var reached []*graph.Node
	walkLinks(n, kind, r, func(linked *graph.Node) {
		reached = append(reached, linked)
	})
	return reached
}

func walkLinks(n *graph.Node, kind graph.LinkKind, r Resolver, visit func(*graph.Node)) {
	visited := map[string]bool{n.ID: true}
	queue := append([]string(nil), n.Links(kind)...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		linked := r.Node(id)
		if linked == nil {
			continue
		}
		visit(linked)
		if !linked.IsTask() {
			queue = append(queue, linked.Links(kind)...)
		}
	}
}

// LinkKindOf returns the link kind an aggregate traverses, or "" for nodes
// that do not read links.
func LinkKindOf(n *graph.Node) graph.LinkKind {
	if n.NodeType != graph.NodeTypeAggregate {
		return ""
	}
	switch n.NodeSubtype {
	case graph.SubtypeUpstream:
		return graph.LinkUpstream
	case graph.SubtypeDownstream:
		return graph.LinkDownstream
	}
	return ""
}

// Recalculate recomputes and caches calculatedProgress for ids and returns
// the new values keyed by id. Unknown ids are skipped.
func Recalculate(ids []string, r Resolver) map[string]float64 {
	values := make(map[string]float64, len(ids))
	for _, id := range ids {
		n := r.Node(id)
		if n == nil {
			continue
		}
		n.CalculatedProgress = Calculate(n, r)
		values[id] = n.CalculatedProgress
	}
	return values
}

// RecalculateAll refreshes the cached progress of every node in g.
func RecalculateAll(g *graph.Graph, r Resolver) {
	graph.Walk(g.Nodes, func(n, _ *graph.Node, _ int) bool {
		n.CalculatedProgress = Calculate(n, r)
		return true
	})
}
