// Package synckit provides the narrow command interface to the underlying
// version-control engine, and its go-git-backed implementation. The sync
// pipeline consumes the engine through this interface only; merge content
// semantics live behind it, not in the pipeline.
package synckit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// MergeResult is the outcome of one three-way merge invocation.
type MergeResult struct {
	// Clean is true when the merge completed with no conflicting paths.
	Clean bool

	// Conflicts lists the conflicting paths with both sides' hunks,
	// ordered by path. Empty iff Clean.
	Conflicts []ConflictEntry
}

// Engine is the capability interface to the underlying version-control
// engine. Implementations own all repository mutation performed during a
// merge; the pipeline never touches the object store directly.
type Engine interface {
	// MergeBase returns the common ancestor commit of two revisions.
	MergeBase(ctx context.Context, a, b string) (string, error)

	// ThreeWayMerge merges theirs into ours using base as the common
	// ancestor. A clean result leaves the local branch pointing at the
	// merged commit. Conflicting paths are reported, not written.
	ThreeWayMerge(ctx context.Context, base, ours, theirs string) (*MergeResult, error)

	// ApplyResolution records merged content for a conflicting path so a
	// subsequent ThreeWayMerge treats it as resolved. Resolutions last until
	// the merge completes clean or the next BeginMerge.
	ApplyResolution(ctx context.Context, path string, lines []string) error

	// BeginMerge starts a fresh merge cycle, discarding any resolution
	// state a prior cycle left behind.
	BeginMerge()

	// AtomicUpdateRef moves a branch pointer to a commit. The update either
	// fully succeeds or leaves the prior pointer untouched.
	AtomicUpdateRef(ctx context.Context, branch, commit string) error

	// DiffSnapshots returns the raw path pairs with content hashes between
	// two revisions, ordered by path.
	DiffSnapshots(ctx context.Context, oldRev, newRev string) ([]SnapshotPair, error)

	// ComputeSimilarity scores content similarity in [0, 1].
	ComputeSimilarity(a, b string) float64

	// RemoteHead returns the tracking-ref hash for remote/branch and
	// whether that tracking ref exists.
	RemoteHead(ctx context.Context, remote, branch string) (string, bool, error)
}

// gitEngine implements Engine over a go-git repository.
type gitEngine struct {
	repo *Repo
	dmp  *diffmatchpatch.DiffMatchPatch

	// resolved tracks paths whose conflicts were resolved during the
	// current merge cycle. BeginMerge and a clean merge both clear it, so
	// an abandoned cycle never masks a later conflict on the same path.
	resolved map[string]bool
}

// NewEngine returns the go-git-backed Engine for the repository.
func NewEngine(repo *Repo) Engine {
	return &gitEngine{
		repo:     repo,
		dmp:      diffmatchpatch.New(),
		resolved: make(map[string]bool),
	}
}

// MergeBase finds the common ancestor of two revisions.
func (e *gitEngine) MergeBase(ctx context.Context, a, b string) (string, error) {
	commitA, err := e.commitFor(a)
	if err != nil {
		return "", err
	}

	commitB, err := e.commitFor(b)
	if err != nil {
		return "", err
	}

	bases, err := commitA.MergeBase(commitB)
	if err != nil {
		return "", WrapError(err, "failed to compute merge base")
	}

	if len(bases) == 0 {
		return "", WrapError(ErrResolveFailed, "revisions share no common ancestor")
	}

	return bases[0].Hash.String(), nil
}

// ThreeWayMerge merges theirs into ours. Fast-forward cases move the branch
// pointer directly; diverged histories are merged path-wise: paths changed
// on only one side are taken as-is, paths changed on both sides (and not
// yet resolved) are reported as conflicts with hunks in base coordinates.
func (e *gitEngine) ThreeWayMerge(ctx context.Context, base, ours, theirs string) (*MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hashBase, err := e.repo.resolveHash(base)
	if err != nil {
		return nil, err
	}
	hashOurs, err := e.repo.resolveHash(ours)
	if err != nil {
		return nil, err
	}
	hashTheirs, err := e.repo.resolveHash(theirs)
	if err != nil {
		return nil, err
	}

	// Remote is an ancestor of local: nothing incoming.
	if hashTheirs == hashBase || hashTheirs == hashOurs {
		return &MergeResult{Clean: true}, nil
	}

	// Local is an ancestor of remote: fast-forward.
	if hashOurs == hashBase {
		branch, err := e.repo.CurrentBranch(ctx)
		if err != nil {
			return nil, err
		}
		if err := e.AtomicUpdateRef(ctx, branch, hashTheirs.String()); err != nil {
			return nil, err
		}
		return &MergeResult{Clean: true}, nil
	}

	oursChanges, err := e.treeChanges(hashBase, hashOurs)
	if err != nil {
		return nil, err
	}
	theirsChanges, err := e.treeChanges(hashBase, hashTheirs)
	if err != nil {
		return nil, err
	}

	conflictPaths := make([]string, 0)
	for path := range theirsChanges {
		if _, both := oursChanges[path]; both && !e.resolved[path] {
			conflictPaths = append(conflictPaths, path)
		}
	}
	sort.Strings(conflictPaths)

	if err := e.applyTheirsChanges(theirsChanges, conflictPaths); err != nil {
		return nil, err
	}

	if len(conflictPaths) > 0 {
		conflicts := make([]ConflictEntry, 0, len(conflictPaths))
		for _, path := range conflictPaths {
			oursHunks, err := extractHunks(oursChanges[path])
			if err != nil {
				return nil, WrapErrorf(err, "failed to extract ours hunks for %q", path)
			}
			theirsHunks, err := extractHunks(theirsChanges[path])
			if err != nil {
				return nil, WrapErrorf(err, "failed to extract theirs hunks for %q", path)
			}
			conflicts = append(conflicts, ConflictEntry{
				Path:        path,
				OursHunks:   oursHunks,
				TheirsHunks: theirsHunks,
			})
		}
		return &MergeResult{Conflicts: conflicts}, nil
	}

	if err := e.commitMerge(ctx, hashOurs, hashTheirs, ours, theirs); err != nil {
		return nil, err
	}

	e.resolved = make(map[string]bool)

	return &MergeResult{Clean: true}, nil
}

// ApplyResolution writes synthesized content into the worktree, stages it,
// and marks the path resolved for the remainder of the merge cycle.
func (e *gitEngine) ApplyResolution(ctx context.Context, path string, lines []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}

	if err := e.repo.writeWorktreeFile(path, []byte(content)); err != nil {
		return WrapErrorf(err, "failed to write resolved content for %q", path)
	}

	if _, err := e.repo.worktree.Add(path); err != nil {
		return WrapErrorf(err, "failed to stage resolved content for %q", path)
	}

	e.resolved[path] = true
	return nil
}

// BeginMerge drops resolution state from any earlier cycle. A conflict that
// was left unresolved must be reported again on the next merge.
func (e *gitEngine) BeginMerge() {
	e.resolved = make(map[string]bool)
}

// AtomicUpdateRef moves the branch pointer using a check-and-set update, so
// a concurrent move of the same ref rejects rather than clobbers. When the
// branch is checked out, the worktree follows the new head.
func (e *gitEngine) AtomicUpdateRef(ctx context.Context, branch, commit string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hash, err := e.repo.resolveHash(commit)
	if err != nil {
		return err
	}

	refName := plumbing.NewBranchReferenceName(branch)

	old, err := e.repo.repo.Reference(refName, false)
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return WrapErrorf(err, "failed to read branch %q", branch)
	}

	newRef := plumbing.NewHashReference(refName, hash)
	if err := e.repo.repo.Storer.CheckAndSetReference(newRef, old); err != nil {
		return WrapErrorf(err, "ref update rejected for branch %q", branch)
	}

	if current, cerr := e.repo.CurrentBranch(ctx); cerr == nil && current == branch && e.repo.worktree != nil {
		resetOpts := &git.ResetOptions{Commit: hash, Mode: git.HardReset}
		if err := e.repo.worktree.Reset(resetOpts); err != nil {
			return WrapError(err, "failed to update worktree to new head")
		}
	}

	return nil
}

// DiffSnapshots diffs the trees of two revisions into raw path pairs.
func (e *gitEngine) DiffSnapshots(ctx context.Context, oldRev, newRev string) ([]SnapshotPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	oldTree, err := e.treeFor(oldRev)
	if err != nil {
		return nil, err
	}
	newTree, err := e.treeFor(newRev)
	if err != nil {
		return nil, err
	}

	changes, err := oldTree.Diff(newTree)
	if err != nil {
		return nil, WrapError(err, "failed to compute changes")
	}

	pairs := make([]SnapshotPair, 0, len(changes))
	for _, change := range changes {
		pair := SnapshotPair{
			OldPath: change.From.Name,
			NewPath: change.To.Name,
		}
		if change.From.Name != "" {
			pair.OldHash = change.From.TreeEntry.Hash.String()
		}
		if change.To.Name != "" {
			pair.NewHash = change.To.TreeEntry.Hash.String()
		}
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairKey(pairs[i]) < pairKey(pairs[j]) })

	return pairs, nil
}

// ComputeSimilarity scores content similarity as 1 minus the normalized
// Levenshtein distance of the diff between the two contents.
func (e *gitEngine) ComputeSimilarity(a, b string) float64 {
	return contentSimilarity(e.dmp, a, b)
}

// RemoteHead reports the hash of the remote tracking ref, if present.
func (e *gitEngine) RemoteHead(ctx context.Context, remote, branch string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return e.repo.RemoteHead(remote, branch)
}

// contentSimilarity is the shared similarity metric: identical contents
// score 1.0, disjoint contents approach 0.0.
func contentSimilarity(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	diffs := dmp.DiffMain(a, b, false)
	lev := dmp.DiffLevenshtein(diffs)

	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}

	return 1.0 - float64(lev)/float64(maxLen)
}

// commitFor resolves a revision to its commit object.
func (e *gitEngine) commitFor(rev string) (*object.Commit, error) {
	hash, err := e.repo.resolveHash(rev)
	if err != nil {
		return nil, err
	}

	commit, err := e.repo.repo.CommitObject(hash)
	if err != nil {
		return nil, WrapErrorf(err, "failed to load commit %q", rev)
	}

	return commit, nil
}

// treeFor resolves a revision to its tree.
func (e *gitEngine) treeFor(rev string) (*object.Tree, error) {
	commit, err := e.commitFor(rev)
	if err != nil {
		return nil, err
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, WrapErrorf(err, "failed to load tree for %q", rev)
	}

	return tree, nil
}

// treeChanges diffs two commits and indexes the changes by path.
func (e *gitEngine) treeChanges(from, to plumbing.Hash) (map[string]*object.Change, error) {
	fromTree, err := e.treeFor(from.String())
	if err != nil {
		return nil, err
	}
	toTree, err := e.treeFor(to.String())
	if err != nil {
		return nil, err
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, WrapError(err, "failed to compute changes")
	}

	indexed := make(map[string]*object.Change, len(changes))
	for _, change := range changes {
		indexed[changePath(change)] = change
	}

	return indexed, nil
}

// applyTheirsChanges brings non-conflicting theirs-side changes into the
// worktree and index. Conflicting and already-resolved paths are skipped.
func (e *gitEngine) applyTheirsChanges(theirsChanges map[string]*object.Change, conflictPaths []string) error {
	skip := make(map[string]bool, len(conflictPaths))
	for _, p := range conflictPaths {
		skip[p] = true
	}

	paths := make([]string, 0, len(theirsChanges))
	for path := range theirsChanges {
		if !skip[path] && !e.resolved[path] {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	for _, path := range paths {
		change := theirsChanges[path]

		if change.To.Name == "" {
			// Deleted on their side.
			if _, err := e.repo.worktree.Remove(change.From.Name); err != nil {
				return WrapErrorf(err, "failed to remove %q", change.From.Name)
			}
			continue
		}

		file, err := change.To.Tree.File(change.To.Name)
		if err != nil {
			return WrapErrorf(err, "failed to load %q from theirs", change.To.Name)
		}

		content, err := file.Contents()
		if err != nil {
			return WrapErrorf(err, "failed to read %q from theirs", change.To.Name)
		}

		if err := e.repo.writeWorktreeFile(change.To.Name, []byte(content)); err != nil {
			return WrapErrorf(err, "failed to write %q", change.To.Name)
		}

		if _, err := e.repo.worktree.Add(change.To.Name); err != nil {
			return WrapErrorf(err, "failed to stage %q", change.To.Name)
		}
	}

	return nil
}

// commitMerge records the merged state as a commit with both parents.
func (e *gitEngine) commitMerge(ctx context.Context, hashOurs, hashTheirs plumbing.Hash, ours, theirs string) error {
	if e.repo.worktree == nil {
		return WrapError(ErrInvalidRef, "cannot merge in bare repository")
	}

	who := e.repo.options.Committer.toObject()
	msg := fmt.Sprintf("Merge %s into %s", theirs, ours)

	commitOpts := &git.CommitOptions{
		Author:    who,
		Committer: who,
		Parents:   []plumbing.Hash{hashOurs, hashTheirs},
	}

	if _, err := e.repo.worktree.Commit(msg, commitOpts); err != nil {
		return WrapError(err, "failed to create merge commit")
	}

	return nil
}

// changePath returns the indexing path of a change: the new-side name when
// present, else the old-side name.
func changePath(change *object.Change) string {
	if change.To.Name != "" {
		return change.To.Name
	}
	return change.From.Name
}

// pairKey returns the indexing path of a snapshot pair.
func pairKey(p SnapshotPair) string {
	if p.NewPath != "" {
		return p.NewPath
	}
	return p.OldPath
}

// extractHunks converts a change's patch into hunks addressed in base line
// coordinates. Contiguous delete/add chunk runs collapse into one hunk whose
// range covers the replaced base lines and whose lines carry the side's
// replacement content.
func extractHunks(change *object.Change) ([]Hunk, error) {
	patch, err := change.Patch()
	if err != nil {
		return nil, WrapError(err, "failed to generate patch")
	}

	filePatches := patch.FilePatches()
	if len(filePatches) == 0 {
		return nil, nil
	}

	chunks := filePatches[0].Chunks()
	if chunks == nil {
		// Binary file: treat the whole file as one opaque hunk so any
		// both-sides change stays a manual conflict.
		return []Hunk{{Start: 1, End: 1}}, nil
	}

	var hunks []Hunk
	var current *Hunk
	baseLine := 1

	for _, chunk := range chunks {
		lines := chunkLines(chunk.Content())

		switch chunk.Type() {
		case fdiff.Equal:
			current = nil
			baseLine += len(lines)
		case fdiff.Delete:
			if current == nil {
				hunks = append(hunks, Hunk{Start: baseLine, End: baseLine - 1})
				current = &hunks[len(hunks)-1]
			}
			current.End = baseLine + len(lines) - 1
			baseLine += len(lines)
		case fdiff.Add:
			if current == nil {
				hunks = append(hunks, Hunk{Start: baseLine, End: baseLine - 1})
				current = &hunks[len(hunks)-1]
			}
			current.Lines = append(current.Lines, lines...)
		}
	}

	return hunks, nil
}

// chunkLines splits chunk content into lines, dropping the trailing newline.
func chunkLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}
