// Package synckit provides sentinel errors for synchronization operations.
// All errors can be checked using errors.Is() for programmatic handling.
package synckit

import (
	"errors"
	"fmt"
)

// Common sentinel errors that can be checked with errors.Is().
// These wrap underlying go-git errors while providing a stable API for consumers.

// ErrAlreadyUpToDate is returned when fetch, pull, or push operations
// result in no changes because the local and remote states are already synchronized.
var ErrAlreadyUpToDate = errors.New("already up to date")

// ErrAuthRequired is returned when an operation requires authentication
// but no credentials were provided or available.
var ErrAuthRequired = errors.New("authentication required")

// ErrAuthFailed is returned when authentication was attempted but failed
// (invalid credentials, expired tokens, etc.).
var ErrAuthFailed = errors.New("authentication failed")

// ErrNetwork is returned when a transport operation fails for a transient
// network reason. The orchestrator may retry the failing step once.
var ErrNetwork = errors.New("network failure")

// ErrNotFastForward is returned when a push or pull cannot be performed
// as a fast-forward because the remote history has diverged. This is a
// control-flow signal that routes into the merge path, not a hard failure.
var ErrNotFastForward = errors.New("not a fast-forward")

// ErrMergeConflict is returned when a merge operation encounters conflicts
// that cannot be automatically resolved. The unresolved entries travel on
// the SyncResult alongside this sentinel.
var ErrMergeConflict = errors.New("merge conflict")

// ErrInvalidEndpoint is returned when a remote URL matches neither the HTTP
// nor the SSH protocol predicate. No transport is attempted for such URLs.
var ErrInvalidEndpoint = errors.New("invalid remote endpoint")

// ErrInvalidRef is returned when a reference name or revision specification
// is malformed or invalid according to git's reference naming rules.
var ErrInvalidRef = errors.New("invalid reference")

// ErrResolveFailed is returned when a revision specification cannot be resolved
// to a valid commit hash (e.g., branch doesn't exist, invalid SHA).
var ErrResolveFailed = errors.New("cannot resolve revision")

// ErrSyncInProgress is returned when a sync is requested against a repository
// that already has a sync in flight. At most one sync may run per repository.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrEmptyCommit is returned when a commit is attempted with no staged changes
// and empty commits were not explicitly allowed.
var ErrEmptyCommit = errors.New("empty commit")

// ErrInvalidCommitMessage is returned when conventional-commit validation is
// enabled and the commit message does not parse as a conventional commit.
var ErrInvalidCommitMessage = errors.New("invalid commit message")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// IsAuthError reports whether err is an authentication failure.
// Authentication failures are fatal for the current sync attempt;
// the caller must re-prompt for credentials rather than retry.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrAuthFailed)
}

// IsTransient reports whether err is a transient condition worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork)
}
