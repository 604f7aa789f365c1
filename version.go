// Package hvers computes the next semantic version of a Git repository.
//
// This file contains code adapted from pulumictl (https://github.com/pulumi/pulumictl)
// which is licensed under the Apache License 2.0.
package hvers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blang/semver"
	"github.com/go-git/go-git/v5/plumbing"
)

// Calculate determines the next version of the repository at opts.Commitish.
//
// It finds the nearest tagged ancestor, looks up the rule for that height on
// the current branch, applies it to the tagged version and renders the
// result. Failures are *StageError values naming the failed stage.
func Calculate(ctx context.Context, opts Options) (*Result, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}

	if opts.Commitish == "" {
		opts.Commitish = "HEAD"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	started := time.Now()
	result, err := calculate(ctx, opts, logger)
	if err != nil {
		opts.Metrics.observeFailure(err)
		logger.Debug("version calculation failed", "commitish", string(opts.Commitish), "error", err)
		return nil, err
	}
	result.Elapsed = time.Since(started)

	opts.Metrics.observeSuccess(result.Height, result.Visited)
	logger.Info("calculated version",
		"version", result.Version.String(),
		"base", result.Base.String(),
		"tag", result.Tag,
		"height", result.Height,
		"rule", result.Rule.String(),
		"branch", result.Branch,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func calculate(ctx context.Context, opts Options, logger *slog.Logger) (*Result, error) {
	tags := opts.Tags
	if tags == nil {
		tags = &TagMatcher{}
	}

	rules := opts.Rules
	if rules == nil {
		var err error
		rules, err = DefaultConfig().RuleSet()
		if err != nil {
			return nil, stageError(StageConfiguration, plumbing.ZeroHash, -1, err)
		}
	}

	history := NewGitHistory(opts.Repository)

	start, err := history.Resolve(opts.Commitish)
	if err != nil {
		return nil, stageError(StageTraversal, plumbing.ZeroHash, -1, err)
	}

	branch := opts.Branch
	if branch == "" {
		branch, err = history.Branch()
		if err != nil {
			return nil, stageError(StageTraversal, start, -1, err)
		}
	}

	logger.Debug("searching for reference tag",
		"start", shortHash(start), "branch", branch, "traversal", opts.Traversal.String())

	found, err := ComputeHeight(ctx, history, start, tags.Predicate(), HeightOptions{
		Mode:     opts.Traversal,
		MaxDepth: opts.MaxDepth,
	})
	if err != nil {
		return nil, err
	}

	base, tag, _ := tags.Version(found.Reference)
	logger.Debug("found reference tag",
		"tag", tag, "commit", shortHash(found.Reference.Hash), "height", found.Height, "visited", found.Visited)

	dict := rules.ForBranch(branch)
	if dict == nil {
		return nil, stageError(StageRuleLookup, start, found.Height,
			fmt.Errorf("%w: no rules for branch %q", ErrInvalidConfig, branch))
	}
	rule := dict.Lookup(found.Height)

	next, err := Apply(base, rule, found.Height)
	if err != nil {
		return nil, stageError(StageIncrement, start, found.Height, fmt.Errorf("applying %s to %s: %w", rule, base, err))
	}

	next, err = appendBuildMetadata(ctx, history, next, start, found.Height, opts)
	if err != nil {
		return nil, stageError(StageIncrement, start, found.Height, err)
	}

	presentation, err := Present(next, found.Height, opts.Presentation)
	if err != nil {
		return nil, stageError(StagePresentation, start, found.Height, err)
	}

	return &Result{
		Version:      next,
		Base:         base,
		Height:       found.Height,
		Visited:      found.Visited,
		Reference:    found.Reference,
		Tag:          tag,
		Rule:         rule,
		Branch:       branch,
		Presentation: presentation,
	}, nil
}

func appendBuildMetadata(ctx context.Context, history *GitHistory, v semver.Version,
	start plumbing.Hash, height int, opts Options) (semver.Version, error) {

	var meta []string
	if height > 0 && !opts.OmitCommitHash {
		meta = append(meta, shortHash(start))
	}

	if opts.MarkDirty {
		dirty, err := history.Dirty(ctx)
		if err != nil {
			return v, fmt.Errorf("checking if worktree is dirty: %w", err)
		}
		if dirty {
			meta = append(meta, "dirty")
		}
	}

	return WithBuildMetadata(v, meta...)
}

// IsNoReachableReference reports whether err means no tagged ancestor exists
func IsNoReachableReference(err error) bool {
	return errors.Is(err, ErrNoReachableReference)
}
