// Package synckit provides the version-control synchronization core for a
// desktop source-control client. This file contains worktree staging,
// commit creation, and working-tree change classification.
package synckit

import (
	"context"
	"errors"
	"strings"
	"time"

	billyutil "github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/leodido/go-conventionalcommits"
	ccparser "github.com/leodido/go-conventionalcommits/parser"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Signature identifies the author of a commit.
type Signature struct {
	// Name is the author's name.
	Name string

	// Email is the author's email address.
	Email string

	// When is the commit timestamp. Zero means the current time.
	When time.Time
}

// toObject converts the signature for go-git, defaulting the timestamp.
func (s Signature) toObject() *object.Signature {
	when := s.When
	if when.IsZero() {
		when = time.Now()
	}

	return &object.Signature{
		Name:  s.Name,
		Email: s.Email,
		When:  when,
	}
}

// CommitOpts configures commit creation.
type CommitOpts struct {
	// AllowEmpty permits a commit with no staged changes.
	AllowEmpty bool

	// All stages every modified or deleted tracked file before committing.
	All bool

	// RequireConventional rejects messages that do not follow the
	// Conventional Commits format.
	RequireConventional bool
}

// Add stages the file or glob pattern in the worktree index.
func (r *Repo) Add(ctx context.Context, pattern string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "bare repository has no worktree")
	}

	if strings.ContainsAny(pattern, "*?[") {
		if err := r.worktree.AddGlob(pattern); err != nil {
			return WrapErrorf(err, "failed to stage pattern %q", pattern)
		}
		return nil
	}

	if _, err := r.worktree.Add(pattern); err != nil {
		return WrapErrorf(err, "failed to stage %q", pattern)
	}

	return nil
}

// Remove removes the file from the worktree and stages the deletion.
func (r *Repo) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "bare repository has no worktree")
	}

	if _, err := r.worktree.Remove(path); err != nil {
		return WrapErrorf(err, "failed to remove %q", path)
	}

	return nil
}

// Commit records the staged changes as a new commit and returns its hash.
// Without AllowEmpty, a commit with nothing staged returns ErrEmptyCommit.
func (r *Repo) Commit(ctx context.Context, message string, opts *CommitOpts) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if r.worktree == nil {
		return "", WrapError(ErrInvalidRef, "bare repository has no worktree")
	}

	if opts == nil {
		opts = &CommitOpts{}
	}

	if opts.RequireConventional {
		if err := validateConventional(message); err != nil {
			return "", err
		}
	}

	if !opts.AllowEmpty {
		staged, err := r.hasPendingChanges(opts.All)
		if err != nil {
			return "", err
		}
		if !staged {
			return "", WrapError(ErrEmptyCommit, "nothing staged to commit")
		}
	}

	commitOpts := &git.CommitOptions{
		All:               opts.All,
		AllowEmptyCommits: opts.AllowEmpty,
		Author:            r.options.Committer.toObject(),
	}

	hash, err := r.worktree.Commit(message, commitOpts)
	if err != nil {
		return "", WrapError(err, "failed to create commit")
	}

	return hash.String(), nil
}

// hasPendingChanges reports whether a commit would record anything. With
// all set, unstaged tracked modifications count too.
func (r *Repo) hasPendingChanges(all bool) (bool, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return false, WrapError(err, "failed to get worktree status")
	}

	for _, fileStatus := range status {
		if fileStatus.Staging != git.Unmodified && fileStatus.Staging != git.Untracked {
			return true, nil
		}
		if all && fileStatus.Worktree != git.Unmodified && fileStatus.Worktree != git.Untracked {
			return true, nil
		}
	}

	return false, nil
}

// validateConventional checks the message against the Conventional Commits
// format with the standard type set.
func validateConventional(message string) error {
	machine := ccparser.NewMachine(
		conventionalcommits.WithTypes(conventionalcommits.TypesConventional),
	)

	if _, err := machine.Parse([]byte(message)); err != nil {
		return WrapErrorf(ErrInvalidCommitMessage, "message is not a conventional commit: %v", err)
	}

	return nil
}

// ClassifyWorkingTree classifies the uncommitted changes in the worktree
// against HEAD, with rename and copy detection at the default similarity
// threshold. Records are ordered by path.
func (r *Repo) ClassifyWorkingTree(ctx context.Context) ([]ChangeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.worktree == nil {
		return nil, WrapError(ErrInvalidRef, "bare repository has no worktree")
	}

	status, err := r.worktree.Status()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree status")
	}

	pairs, err := r.statusPairs(status)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	similarity := func(oldPath, newPath string) float64 {
		oldContent, oerr := r.blobContent("HEAD", oldPath)
		if oerr != nil {
			return 0
		}
		newContent, nerr := billyutil.ReadFile(r.worktree.Filesystem, newPath)
		if nerr != nil {
			return 0
		}
		return contentSimilarity(dmp, oldContent, string(newContent))
	}

	classifier := NewClassifier(DefaultSimilarityThreshold, similarity)

	return classifier.Classify(pairs), nil
}

// statusPairs converts a worktree status into snapshot pairs: HEAD on the
// old side, the working tree on the new side.
func (r *Repo) statusPairs(status git.Status) ([]SnapshotPair, error) {
	pairs := make([]SnapshotPair, 0, len(status))

	for path, fileStatus := range status {
		if fileStatus.Staging == git.Unmodified && fileStatus.Worktree == git.Unmodified {
			continue
		}

		deleted := fileStatus.Worktree == git.Deleted || fileStatus.Staging == git.Deleted

		oldHash, inHead, err := r.headBlobHash(path)
		if err != nil {
			return nil, err
		}

		pair := SnapshotPair{}
		if inHead {
			pair.OldPath = path
			pair.OldHash = oldHash
		}
		if !deleted {
			newHash, herr := r.worktreeBlobHash(path)
			if herr != nil {
				return nil, herr
			}
			pair.NewPath = path
			pair.NewHash = newHash
		}

		if pair.OldPath == "" && pair.NewPath == "" {
			continue
		}
		pairs = append(pairs, pair)
	}

	return pairs, nil
}

// headBlobHash returns the blob hash of a path at HEAD, if present there.
func (r *Repo) headBlobHash(path string) (string, bool, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", false, nil // unborn HEAD: nothing committed yet
		}
		return "", false, WrapError(err, "failed to get HEAD reference")
	}

	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", false, WrapError(err, "failed to load HEAD commit")
	}

	file, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", false, nil
		}
		return "", false, WrapErrorf(err, "failed to load %q at HEAD", path)
	}

	return file.Hash.String(), true, nil
}

// worktreeBlobHash hashes the working-tree content of a path the way the
// object store would.
func (r *Repo) worktreeBlobHash(path string) (string, error) {
	data, err := billyutil.ReadFile(r.worktree.Filesystem, path)
	if err != nil {
		return "", WrapErrorf(err, "failed to read %q from worktree", path)
	}

	return plumbing.ComputeHash(plumbing.BlobObject, data).String(), nil
}
