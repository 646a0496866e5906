package ops

import (
	"context"
	"encoding/json"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
	"github.com/teranos/trellis/progress"
)

type updateNodePayload struct {
	ID      string                     `json:"id"`
	Updates map[string]json.RawMessage `json:"updates"`
}

type updateNodeApplied struct {
	ID       string                     `json:"id"`
	Updates  map[string]json.RawMessage `json:"updates"`
	Progress map[string]float64         `json:"progress,omitempty"`
}

// nodeUpdate is the decoded form of an updates object. A nil field was not
// present.
type nodeUpdate struct {
	Title               *string
	NodeType            *graph.NodeType
	NodeSubtype         *graph.NodeSubtype
	Position            *graph.Position
	IsDone              *bool
	CurrentCompletions  *int
	RequiredCompletions *int
	LinkedNodeIDs       map[graph.LinkKind][]string
	Children            []*graph.Node

	hasLinks    bool
	hasChildren bool
}

// ignoredUpdateKeys are accepted but have no effect: ids are immutable and
// progress is derived.
var ignoredUpdateKeys = map[string]bool{
	"id":                 true,
	"calculatedProgress": true,
}

func decodeUpdate(raw map[string]json.RawMessage) (*nodeUpdate, error) {
	u := &nodeUpdate{}
	for key, value := range raw {
		var target any
		switch key {
		case "title":
			target = &u.Title
		case "nodeType":
			target = &u.NodeType
		case "nodeSubtype":
			target = &u.NodeSubtype
		case "position":
			target = &u.Position
		case "isDone":
			target = &u.IsDone
		case "currentCompletions":
			target = &u.CurrentCompletions
		case "requiredCompletions":
			target = &u.RequiredCompletions
		case "linkedNodeIds":
			u.hasLinks = true
			target = &u.LinkedNodeIDs
		case "children":
			u.hasChildren = true
			target = &u.Children
		default:
			if ignoredUpdateKeys[key] {
				continue
			}
			return nil, errors.NewInvalidRequestError("unknown field %q", key)
		}
		if err := json.Unmarshal(value, target); err != nil {
			return nil, errors.WrapInvalidRequest(err, "field "+key)
		}
	}
	if u.CurrentCompletions != nil && *u.CurrentCompletions < 0 {
		return nil, errors.NewInvalidRequestError("currentCompletions must not be negative")
	}
	if u.RequiredCompletions != nil && *u.RequiredCompletions < 1 {
		minimum := 1
		u.RequiredCompletions = &minimum
	}
	if u.hasLinks && u.LinkedNodeIDs == nil {
		u.LinkedNodeIDs = map[graph.LinkKind][]string{}
	}
	if u.hasChildren && u.Children == nil {
		u.Children = []*graph.Node{}
	}
	return u, nil
}

// affectsProgress reports whether the update can change any computed value.
func (u *nodeUpdate) affectsProgress() bool {
	return u.IsDone != nil || u.CurrentCompletions != nil || u.RequiredCompletions != nil ||
		u.NodeType != nil || u.NodeSubtype != nil || u.hasLinks || u.hasChildren
}

// tracked reports whether the update is a user progress change worth an
// analytics event.
func (u *nodeUpdate) tracked() bool {
	return u.IsDone != nil || u.CurrentCompletions != nil
}

// applyUpdateNode overwrites the fields present in updates. Arrays and maps
// are replaced, and children replace the whole subtree.
func applyUpdateNode(ctx context.Context, r *Router, t *Target, raw json.RawMessage) (json.RawMessage, error) {
	var p updateNodePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.NewInvalidRequestError("id is required")
	}
	if p.Updates == nil {
		return nil, errors.NewInvalidRequestError("updates are required")
	}
	u, err := decodeUpdate(p.Updates)
	if err != nil {
		return nil, err
	}
	loc := t.locator()
	n := loc.Node(p.ID)
	if n == nil {
		return nil, errors.NewNotFoundError("node %s", p.ID)
	}

	nodeType, subtype := n.NodeType, n.NodeSubtype
	originalSubtype := subtype
	if u.NodeType != nil {
		nodeType = *u.NodeType
	}
	if u.NodeSubtype != nil {
		subtype = *u.NodeSubtype
	} else if u.hasChildren && len(u.Children) > 0 {
		subtype = promoted(nodeType, subtype)
	}
	if !graph.ValidSubtype(nodeType, subtype) {
		return nil, errors.NewInvalidRequestError("subtype %q is not valid for %q", subtype, nodeType)
	}

	var oldDescendants []string
	if u.hasChildren {
		oldDescendants = graph.CollectIDs(n)[1:]
		reusable := make(map[string]bool, len(oldDescendants))
		for _, id := range oldDescendants {
			reusable[id] = true
		}
		if err := prepareSubtree(u.Children, depthOf(loc, n.ID)+1, loc, reusable); err != nil {
			return nil, err
		}
	}

	// Validation is complete; mutate.
	var affected []string
	if u.affectsProgress() {
		// Removed descendants may be read by link aggregates elsewhere.
		affected = progress.AffectedBy(append([]string{n.ID}, oldDescendants...), loc)
	}
	prev := previousProgress(loc, affected)

	if u.Title != nil {
		n.Title = *u.Title
	}
	n.NodeType, n.NodeSubtype = nodeType, subtype
	if u.Position != nil {
		n.Position = *u.Position
	}
	if u.IsDone != nil {
		n.IsDone = *u.IsDone
	}
	if u.CurrentCompletions != nil {
		n.CurrentCompletions = *u.CurrentCompletions
	}
	if u.RequiredCompletions != nil {
		n.RequiredCompletions = *u.RequiredCompletions
	}
	if u.hasLinks {
		n.LinkedNodeIDs = u.LinkedNodeIDs
	}
	if u.hasChildren {
		if t.Index != nil {
			for _, child := range n.Children {
				t.Index.Remove(child.ID)
			}
		}
		n.Children = u.Children
		if t.Index != nil {
			for _, child := range n.Children {
				t.Index.Add(child, n.ID)
			}
		}
		kept := make(map[string]bool)
		for _, id := range graph.CollectIDs(n) {
			kept[id] = true
		}
		var removed []string
		for _, id := range oldDescendants {
			if !kept[id] {
				removed = append(removed, id)
			}
		}
		removeEdgesTouching(t.Graph, removed)
	}
	if u.Title != nil && t.Index != nil {
		t.Index.UpdatePath(n.ID)
	}

	var values map[string]float64
	if u.affectsProgress() {
		loc = t.locator()
		switch {
		case u.hasChildren:
			// new descendants and anything linking to them
			affected = dedupe(append(affected, progress.AffectedBy(graph.CollectIDs(n), loc)...))
		case u.hasLinks || u.NodeType != nil || u.NodeSubtype != nil:
			// readers of n along its new links and kind
			affected = dedupe(append(affected, progress.AffectedBy([]string{n.ID}, loc)...))
		}
		affected = present(loc, affected)
		values = r.refreshProgress(ctx, t, affected, prev, u.tracked())
	}

	updates := make(map[string]json.RawMessage, len(p.Updates))
	for key, value := range p.Updates {
		if !ignoredUpdateKeys[key] {
			updates[key] = value
		}
	}
	if subtype != originalSubtype && u.NodeSubtype == nil {
		promotedSubtype, err := encode(subtype)
		if err != nil {
			return nil, err
		}
		updates["nodeSubtype"] = promotedSubtype
	}
	if u.hasChildren {
		children, err := encode(n.Children)
		if err != nil {
			return nil, err
		}
		updates["children"] = children
	}
	return encode(updateNodeApplied{ID: n.ID, Updates: updates, Progress: values})
}

// present filters ids to those still in the graph, keeping order.
func present(loc graph.Locator, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if loc.Node(id) != nil {
			out = append(out, id)
		}
	}
	return out
}
