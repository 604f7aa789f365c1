package hvers

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// Predicate marks the commits that act as a reference point
type Predicate func(Commit) bool

// HeightOptions controls the traversal
type HeightOptions struct {
	Mode TraversalMode

	// MaxDepth stops expanding commits at this depth; 0 disables the limit
	MaxDepth int
}

// HeightResult is the nearest matching ancestor and its distance
type HeightResult struct {
	Height    int
	Reference Commit

	// Visited counts the commits read during the walk
	Visited int
}

type pending struct {
	hash  plumbing.Hash
	depth int
}

// ComputeHeight walks parent edges breadth-first from start and returns the
// first commit satisfying match. The start commit itself has height 0.
//
// Breadth-first order guarantees the smallest edge count wins. Commits at the
// same depth are tried in discovery order, where parents are queued in the
// order they are recorded in the commit, so the result is deterministic.
func ComputeHeight(ctx context.Context, history History, start plumbing.Hash,
	match Predicate, opts HeightOptions) (*HeightResult, error) {

	queue := []pending{{hash: start}}
	seen := map[plumbing.Hash]struct{}{start: {}}
	visited := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, stageError(StageTraversal, start, -1, fmt.Errorf("%w: %w", ErrCancelled, err))
		}

		next := queue[0]
		queue = queue[1:]

		commit, err := history.Commit(ctx, next.hash)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, stageError(StageTraversal, start, -1, fmt.Errorf("%w: %w", ErrCancelled, ctxErr))
			}
			return nil, stageError(StageTraversal, start, -1, err)
		}
		visited++

		if match(commit) {
			return &HeightResult{Height: next.depth, Reference: commit, Visited: visited}, nil
		}

		if opts.MaxDepth > 0 && next.depth >= opts.MaxDepth {
			continue
		}

		parents := commit.Parents
		if opts.Mode == FirstParent && len(parents) > 1 {
			parents = parents[:1]
		}

		for _, parent := range parents {
			if _, ok := seen[parent]; ok {
				continue
			}
			seen[parent] = struct{}{}
			queue = append(queue, pending{hash: parent, depth: next.depth + 1})
		}
	}

	return nil, stageError(StageTraversal, start, -1,
		fmt.Errorf("%w after visiting %d commits", ErrNoReachableReference, visited))
}
