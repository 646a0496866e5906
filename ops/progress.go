package ops

import (
	"context"

	"github.com/teranos/trellis/analytics"
	"github.com/teranos/trellis/graph"
	"github.com/teranos/trellis/progress"
)

// previousProgress snapshots the cached progress of ids before a mutation.
func previousProgress(loc graph.Locator, ids []string) map[string]float64 {
	prev := make(map[string]float64, len(ids))
	for _, id := range ids {
		if n := loc.Node(id); n != nil {
			prev[id] = n.CalculatedProgress
		}
	}
	return prev
}

// refreshProgress recomputes ids and, when track is set, emits one progress
// event per recomputed node.
func (r *Router) refreshProgress(ctx context.Context, t *Target, ids []string, prev map[string]float64, track bool) map[string]float64 {
	loc := t.locator()
	values := progress.Recalculate(ids, loc)
	if !track {
		return values
	}
	for _, id := range ids {
		n := loc.Node(id)
		if n == nil {
			continue
		}
		event := analytics.NewProgressEvent(t.UserID, t.GraphID, n, loc.Path(id), categoryOf(loc, n), prev[id])
		r.tracker.TrackProgressUpdate(ctx, event)
	}
	return values
}

// categoryOf returns n's id if it is a category, else the nearest category
// ancestor, else "".
func categoryOf(loc graph.Locator, n *graph.Node) string {
	if n.NodeSubtype == graph.SubtypeCategory {
		return n.ID
	}
	ancestors := loc.AncestorIDs(n.ID)
	for i := len(ancestors) - 1; i >= 0; i-- {
		if a := loc.Node(ancestors[i]); a != nil && a.NodeSubtype == graph.SubtypeCategory {
			return a.ID
		}
	}
	return ""
}
