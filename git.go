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
	"iter"
	"os/exec"
	"slices"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// History reads commits and the references attached to them
type History interface {
	Commit(ctx context.Context, id plumbing.Hash) (Commit, error)
}

// OpenRepository opens a Git repository at the specified path
func OpenRepository(path string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
}

// GitHistory implements History on top of a go-git repository.
// References are indexed once, on first use, so build a new GitHistory per
// calculation to observe tags created in between.
type GitHistory struct {
	repo *git.Repository

	once    sync.Once
	refs    map[plumbing.Hash][]plumbing.ReferenceName
	refsErr error
}

func NewGitHistory(repo *git.Repository) *GitHistory {
	return &GitHistory{repo: repo}
}

// Resolve turns a revision such as "HEAD" or "v1.2.0~3" into a commit hash
func (g *GitHistory) Resolve(rev plumbing.Revision) (plumbing.Hash, error) {
	hash, err := g.repo.ResolveRevision(rev)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving commitish %q: %w", rev, err)
	}
	return *hash, nil
}

// Commit returns the commit with its parents and attached references
func (g *GitHistory) Commit(ctx context.Context, id plumbing.Hash) (Commit, error) {
	if err := ctx.Err(); err != nil {
		return Commit{}, err
	}

	commit, err := g.repo.CommitObject(id)
	if err != nil {
		return Commit{}, fmt.Errorf("getting commit object %s: %w", id, err)
	}

	return g.decode(commit)
}

// Ancestors lazily walks the history reachable from start in pre-order
func (g *GitHistory) Ancestors(ctx context.Context, start plumbing.Hash) iter.Seq2[Commit, error] {
	return func(yield func(Commit, error) bool) {
		head, err := g.repo.CommitObject(start)
		if err != nil {
			yield(Commit{}, fmt.Errorf("getting commit object %s: %w", start, err))
			return
		}

		walker := object.NewCommitPreorderIter(head, nil, nil)
		defer walker.Close()

		for {
			if err := ctx.Err(); err != nil {
				yield(Commit{}, err)
				return
			}

			next, err := walker.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Commit{}, fmt.Errorf("walking history: %w", err))
				return
			}

			if !yield(g.decode(next)) {
				return
			}
		}
	}
}

// References returns the tag and branch references pointing at id
func (g *GitHistory) References(id plumbing.Hash) ([]plumbing.ReferenceName, error) {
	g.once.Do(func() {
		g.refs, g.refsErr = indexReferences(g.repo)
	})
	if g.refsErr != nil {
		return nil, g.refsErr
	}
	return slices.Clone(g.refs[id]), nil
}

// Branch returns the short name of the checked out branch, or "" when HEAD
// is detached or unborn.
func (g *GitHistory) Branch() (string, error) {
	head, err := g.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// Dirty reports whether the worktree has uncommitted changes.
// Bare repositories are never dirty.
func (g *GitHistory) Dirty(ctx context.Context) (bool, error) {
	workTree, err := g.repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}

	// Fast path for filesystem storage
	if _, ok := g.repo.Storer.(*filesystem.Storage); ok {
		if dirty, err := checkDirtyWithGitCommand(ctx, workTree.Filesystem.Root()); err == nil {
			return dirty, nil
		}
	}

	// Fallback to go-git status check
	status, err := workTree.Status()
	if err != nil {
		return false, fmt.Errorf("getting git status: %w", err)
	}

	return !status.IsClean(), nil
}

func (g *GitHistory) decode(commit *object.Commit) (Commit, error) {
	refs, err := g.References(commit.Hash)
	if err != nil {
		return Commit{}, err
	}

	return Commit{
		Hash:       commit.Hash,
		Parents:    slices.Clone(commit.ParentHashes),
		References: refs,
	}, nil
}

func indexReferences(repo *git.Repository) (map[plumbing.Hash][]plumbing.ReferenceName, error) {
	index := make(map[plumbing.Hash][]plumbing.ReferenceName)

	tags, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}

		obj, err := repo.TagObject(ref.Hash())
		switch {
		case err == nil:
			// Annotated tag
			if obj.TargetType == plumbing.CommitObject {
				index[obj.Target] = append(index[obj.Target], ref.Name())
			}
		case errors.Is(err, plumbing.ErrObjectNotFound):
			// Lightweight tag
			index[ref.Hash()] = append(index[ref.Hash()], ref.Name())
		default:
			return fmt.Errorf("reading tag %s: %w", ref.Name().Short(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	branches, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	err = branches.ForEach(func(ref *plumbing.Reference) error {
		index[ref.Hash()] = append(index[ref.Hash()], ref.Name())
		return nil
	})
	if err != nil {
		return nil, err
	}

	for hash := range index {
		slices.Sort(index[hash])
	}
	return index, nil
}

func checkDirtyWithGitCommand(ctx context.Context, repoPath string) (bool, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return false, err
	}

	// Refresh index first
	cmd := exec.CommandContext(ctx, "git", "update-index", "-q", "--refresh")
	cmd.Dir = repoPath
	if err := cmd.Run(); err != nil {
		// update-index exits non-zero when files need updating
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return true, nil
		}
		return false, err
	}

	// Check for changes
	cmd = exec.CommandContext(ctx, "git", "diff-files", "--name-status", "--ignore-space-at-eol")
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return true, nil
		}
		return false, err
	}

	return len(output) > 0, nil
}
