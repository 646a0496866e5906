package graph

import (
	"encoding/json"

	"github.com/teranos/trellis/errors"
)

// Decode parses a stored graph blob, fills defaults and validates structure.
func Decode(blob []byte) (*Graph, error) {
	g := New()
	if err := json.Unmarshal(blob, g); err != nil {
		return nil, errors.WrapInvalidRequest(err, "failed to decode graph")
	}
	if err := Validate(g); err != nil {
		return nil, err
	}
	g.Normalize()
	return g, nil
}

// Encode serializes g for storage or the wire.
func Encode(g *Graph) ([]byte, error) {
	blob, err := json.Marshal(g)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode graph")
	}
	return blob, nil
}

// Validate checks that node ids are present and unique, that no node is
// null and that nesting stays within MaxDepth.
func Validate(g *Graph) error {
	if d := Depth(g.Nodes); d > MaxDepth {
		return errors.NewInvalidRequestError("graph nesting exceeds %d levels", MaxDepth)
	}
	seen := make(map[string]struct{})
	var err error
	var check func(nodes []*Node)
	check = func(nodes []*Node) {
		for _, n := range nodes {
			if err != nil {
				return
			}
			if n == nil {
				err = errors.NewInvalidRequestError("graph contains a null node")
				return
			}
			if n.ID == "" {
				err = errors.NewInvalidRequestError("node %q has no id", n.Title)
				return
			}
			if _, dup := seen[n.ID]; dup {
				err = errors.NewConflictError("duplicate node id %s", n.ID)
				return
			}
			seen[n.ID] = struct{}{}
			check(n.Children)
		}
	}
	check(g.Nodes)
	return err
}
