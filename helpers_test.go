package hvers

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

var testSignature = &object.Signature{
	Name:  "test",
	Email: "test@example.com",
	When:  time.Now(),
}

// testRepoCreate creates a new in-memory git repository for testing
func testRepoCreate() (*git.Repository, error) {
	storage := memory.NewStorage()
	fs := memfs.New()
	return git.Init(storage, fs)
}

// testRepoFSCreate creates a new filesystem-based git repository for testing
func testRepoFSCreate(path string) (*git.Repository, error) {
	fs := osfs.New(path)
	storage := filesystem.NewStorage(fs, nil)
	return git.Init(storage, fs)
}

// testRepoCommit writes a file and commits it, returning the commit hash
func testRepoCommit(repo *git.Repository, filename string) (plumbing.Hash, error) {
	workTree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if err := writeFile(workTree.Filesystem, filename, "Content for "+filename); err != nil {
		return plumbing.ZeroHash, err
	}

	if _, err := workTree.Add(filename); err != nil {
		return plumbing.ZeroHash, err
	}

	return workTree.Commit("Commit "+filename, &git.CommitOptions{Author: testSignature})
}

// testRepoPastRelease tags a release commit and adds n commits on top of it
func testRepoPastRelease(repo *git.Repository, tag string, n int) (*git.Repository, error) {
	release, err := testRepoCommit(repo, "release.txt")
	if err != nil {
		return nil, err
	}

	if _, err := repo.CreateTag(tag, release, nil); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		if _, err := testRepoCommit(repo, "post-release-"+string(rune('a'+i))+".txt"); err != nil {
			return nil, err
		}
	}

	return repo, nil
}

// writeFile writes content to a file in the given filesystem
func writeFile(fs billy.Filesystem, filename, content string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}

// graphBuilder writes commits straight into object storage so tests can
// shape histories with branches and merges without a worktree.
type graphBuilder struct {
	t       *testing.T
	repo    *git.Repository
	tree    plumbing.Hash
	clock   time.Time
	commits map[string]plumbing.Hash
}

func newGraphBuilder(t *testing.T) *graphBuilder {
	t.Helper()

	repo, err := testRepoCreate()
	require.NoError(t, err)

	obj := repo.Storer.NewEncodedObject()
	require.NoError(t, (&object.Tree{}).Encode(obj))
	tree, err := repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)

	return &graphBuilder{
		t:       t,
		repo:    repo,
		tree:    tree,
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		commits: map[string]plumbing.Hash{},
	}
}

// commit records a commit called name with the named parents, in order
func (b *graphBuilder) commit(name string, parents ...string) plumbing.Hash {
	b.t.Helper()

	hashes := make([]plumbing.Hash, 0, len(parents))
	for _, p := range parents {
		hashes = append(hashes, b.hash(p))
	}

	b.clock = b.clock.Add(time.Minute)
	sig := object.Signature{Name: "test", Email: "test@example.com", When: b.clock}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      name,
		TreeHash:     b.tree,
		ParentHashes: hashes,
	}

	obj := b.repo.Storer.NewEncodedObject()
	require.NoError(b.t, commit.Encode(obj))
	hash, err := b.repo.Storer.SetEncodedObject(obj)
	require.NoError(b.t, err)

	b.commits[name] = hash
	return hash
}

// chain records n linear commits on top of parent and returns the last name
func (b *graphBuilder) chain(prefix, parent string, n int) string {
	b.t.Helper()
	for i := 1; i <= n; i++ {
		name := prefix + string(rune('0'+i))
		b.commit(name, parent)
		parent = name
	}
	return parent
}

func (b *graphBuilder) hash(name string) plumbing.Hash {
	b.t.Helper()
	hash, ok := b.commits[name]
	require.True(b.t, ok, "unknown commit %q", name)
	return hash
}

func (b *graphBuilder) tag(tag, commit string) {
	b.t.Helper()
	_, err := b.repo.CreateTag(tag, b.hash(commit), nil)
	require.NoError(b.t, err)
}

func (b *graphBuilder) annotatedTag(tag, commit string) {
	b.t.Helper()
	_, err := b.repo.CreateTag(tag, b.hash(commit), &git.CreateTagOptions{
		Tagger:  testSignature,
		Message: "Release " + tag,
	})
	require.NoError(b.t, err)
}

// branch points refs/heads/name at commit
func (b *graphBuilder) branch(name, commit string) {
	b.t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), b.hash(commit))
	require.NoError(b.t, b.repo.Storer.SetReference(ref))
}

// checkout points HEAD at branch, which must exist
func (b *graphBuilder) checkout(name string) {
	b.t.Helper()
	ref := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(name))
	require.NoError(b.t, b.repo.Storer.SetReference(ref))
}

func (b *graphBuilder) history() *GitHistory {
	return NewGitHistory(b.repo)
}

func mustRules(t *testing.T, fallback HeightRule, entries ...RuleEntry) *RuleSet {
	t.Helper()
	dict, err := NewRuleDictionary(entries, fallback)
	require.NoError(t, err)
	set, err := NewRuleSet(dict)
	require.NoError(t, err)
	return set
}
