// Package hvers computes the next semantic version of a Git repository from
// the height of a commit above its nearest version tag.
//
// The height is the number of parent edges between the evaluated commit and
// the closest ancestor carrying a matching tag. A RuleDictionary maps that
// height to a HeightRule, Apply folds the rule into the tagged version and
// Present renders the result.
//
// This file contains code adapted from pulumictl (https://github.com/pulumi/pulumictl)
// which is licensed under the Apache License 2.0.
package hvers

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blang/semver"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Commit is a decoded commit with the references that point at it
type Commit struct {
	Hash       plumbing.Hash
	Parents    []plumbing.Hash
	References []plumbing.ReferenceName
}

// Tags returns the short names of the tags attached to the commit
func (c Commit) Tags() []string {
	var tags []string
	for _, ref := range c.References {
		if ref.IsTag() {
			tags = append(tags, ref.Short())
		}
	}
	return tags
}

// TraversalMode selects which parent edges the height calculation follows
type TraversalMode int

const (
	// FirstParent follows only the first parent of each commit, so a merge
	// counts as a single step along the mainline.
	FirstParent TraversalMode = iota
	// AllParents follows every parent; the height is the shortest path.
	AllParents
)

func (m TraversalMode) String() string {
	switch m {
	case FirstParent:
		return "first-parent"
	case AllParents:
		return "all-parents"
	default:
		return fmt.Sprintf("TraversalMode(%d)", int(m))
	}
}

// ParseTraversalMode parses "first-parent" or "all-parents", ignoring case
func ParseTraversalMode(s string) (TraversalMode, error) {
	switch strings.ToLower(s) {
	case "first-parent", "":
		return FirstParent, nil
	case "all-parents":
		return AllParents, nil
	default:
		return 0, fmt.Errorf("%w: unknown traversal mode %q", ErrInvalidConfig, s)
	}
}

func (m TraversalMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *TraversalMode) UnmarshalText(text []byte) error {
	mode, err := ParseTraversalMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Options configures version calculation behavior
type Options struct {
	// Repository is the Git repository to analyze
	Repository *git.Repository

	// Commitish specifies which commit to analyze (default: "HEAD")
	Commitish plumbing.Revision

	// Tags selects which tags mark a prior version. Defaults to every tag
	// that parses as a release version.
	Tags *TagMatcher

	// Traversal selects first-parent or all-parents height counting
	Traversal TraversalMode

	// MaxDepth stops expanding commits deeper than this many edges (0: no limit)
	MaxDepth int

	// Rules maps heights to version adjustments. Defaults to DefaultConfig rules.
	Rules *RuleSet

	// Branch selects branch-specific rules. Detected from HEAD when empty.
	Branch string

	// Presentation selects the shape of Result.Presentation
	Presentation PresentationKind

	// OmitCommitHash excludes the short commit hash from untagged builds
	OmitCommitHash bool

	// MarkDirty adds "dirty" build metadata when the worktree has changes
	MarkDirty bool

	Logger  *slog.Logger
	Metrics *Metrics
}

// Result is the outcome of a successful calculation
type Result struct {
	// Version is the calculated next version
	Version semver.Version `json:"version"`

	// Base is the version parsed from the matched tag
	Base semver.Version `json:"base"`

	Height    int        `json:"height"`
	Visited   int        `json:"-"`
	Reference Commit     `json:"-"`
	Tag       string     `json:"tag"`
	Rule      HeightRule `json:"rule"`
	Branch    string     `json:"branch,omitempty"`

	Presentation Presentation `json:"presentation"`

	// Elapsed is the wall time spent on the calculation
	Elapsed time.Duration `json:"-"`
}
