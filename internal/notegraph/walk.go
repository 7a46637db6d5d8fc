package notegraph

import (
	"context"
	"fmt"
)

// Visitor is called once per node, nearest first. Returning false stops the
// walk without error.
type Visitor func(ctx context.Context, n Node, depth int) (bool, error)

// Walk visits start at depth 0 and then its designated parent at depth 1,
// and so on toward the root. It stops when visit returns false, when
// maxDepth > 0 and the next depth would exceed it, when a node has no
// parent, or when the chain loops back onto a visited node.
func Walk(ctx context.Context, start Node, maxDepth int, visit Visitor) error {
	visited := map[string]bool{}
	node := start
	for depth := 0; node != nil; depth++ {
		if maxDepth > 0 && depth > maxDepth {
			return nil
		}
		if visited[node.ID()] {
			return nil
		}
		visited[node.ID()] = true

		if err := ctx.Err(); err != nil {
			return err
		}

		more, err := visit(ctx, node, depth)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}

		parent, err := DesignatedParent(ctx, node)
		if err != nil {
			return err
		}
		node = parent
	}
	return nil
}

// DesignatedParent returns the parent a walk follows: the most recently
// connected one. It returns nil when n is a root.
func DesignatedParent(ctx context.Context, n Node) (Node, error) {
	parents, err := n.Parents(ctx)
	if err != nil {
		return nil, fmt.Errorf("notegraph: parents of %s: %w", n.ID(), err)
	}
	if len(parents) == 0 {
		return nil, nil
	}
	return parents[len(parents)-1], nil
}
