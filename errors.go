package hvers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// Sentinel errors. Match them with errors.Is; they are usually wrapped in a
// *StageError that records where the calculation stopped.
var (
	// ErrNoReachableReference is returned when the traversal reaches every
	// root commit without finding a commit that satisfies the reference
	// predicate.
	ErrNoReachableReference = errors.New("no reachable reference")

	// ErrDuplicateHeightKey is returned when two rules share a height.
	ErrDuplicateHeightKey = errors.New("duplicate height key")

	// ErrNegativeHeightKey is returned when a rule is keyed by a negative height.
	ErrNegativeHeightKey = errors.New("negative height key")

	// ErrInvalidRuleAction is returned for actions outside the supported set
	// and for pre-release templates that do not expand to valid identifiers.
	ErrInvalidRuleAction = errors.New("invalid rule action")

	ErrUnsupportedPresentationKind = errors.New("unsupported presentation kind")

	// ErrCancelled is returned when the caller's context ends during traversal.
	ErrCancelled = errors.New("cancelled")

	ErrInvalidConfig = errors.New("invalid configuration")
)

// Stage names the part of the pipeline that failed.
type Stage string

const (
	StageConfiguration Stage = "configuration"
	StageTraversal     Stage = "traversal"
	StageRuleLookup    Stage = "rule lookup"
	StageIncrement     Stage = "increment"
	StagePresentation  Stage = "presentation"
)

// StageError describes a failed calculation together with the input that
// triggered it. Height is -1 when the failure happened before a height was known.
type StageError struct {
	Stage  Stage
	Commit plumbing.Hash
	Height int
	Err    error
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Stage))
	if !e.Commit.IsZero() {
		fmt.Fprintf(&b, " from %s", shortHash(e.Commit))
	}
	if e.Height >= 0 {
		fmt.Fprintf(&b, " at height %d", e.Height)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, commit plumbing.Hash, height int, err error) *StageError {
	return &StageError{Stage: stage, Commit: commit, Height: height, Err: err}
}

func shortHash(h plumbing.Hash) string {
	return h.String()[:8]
}
