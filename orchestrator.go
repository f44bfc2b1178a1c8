// Package synckit provides the synchronization core for a desktop
// source-control client. This file contains the sync orchestrator: the
// fetch, merge, resolve, push pipeline.
package synckit

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// SyncResult reports the outcome of one sync operation. Step flags record
// how far the pipeline progressed; a failed sync carries both the partial
// result and the failing error.
type SyncResult struct {
	// Branch is the branch that was synchronized, after any fallback.
	Branch string

	// Fetched is true once remote history landed in the tracking namespace.
	Fetched bool

	// Merged is true once the local branch contains the remote history.
	Merged bool

	// Pushed is true once the remote accepted the local head.
	Pushed bool

	// Attempts is the number of merge attempts performed.
	Attempts int

	// UnresolvedConflicts lists the conflicts that survived the merge
	// attempts when the sync stopped in manual-resolution state.
	UnresolvedConflicts []ConflictEntry

	// Changes describes what the sync brought into the local branch,
	// classified with rename and copy detection.
	Changes []ChangeRecord

	// Err is the error that stopped the pipeline, if any.
	Err error
}

// Syncer coordinates the sync pipeline over a repository. A Syncer is safe
// for concurrent use; overlapping Sync calls for the same repository handle
// are rejected with ErrSyncInProgress rather than queued.
type Syncer struct {
	repo       *Repo
	engine     Engine
	cfg        SyncConfig
	transports map[Protocol]Transport
	logger     *zap.Logger
	mu         *sync.Mutex
	lockKey    string
	lockPath   string
}

// SyncerOption customizes Syncer construction.
type SyncerOption func(*Syncer)

// WithTransport overrides the transport used for a protocol.
func WithTransport(protocol Protocol, transport Transport) SyncerOption {
	return func(s *Syncer) {
		s.transports[protocol] = transport
	}
}

// WithEngine overrides the version-control engine.
func WithEngine(engine Engine) SyncerOption {
	return func(s *Syncer) {
		s.engine = engine
	}
}

// WithLogger overrides the logger inherited from the repository options.
func WithLogger(logger *zap.Logger) SyncerOption {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// WithLockFile enables cross-process sync exclusion through a lock file.
// Without it exclusion covers only Syncers sharing one Repo handle; two
// handles opened on the same directory need the lock file to exclude each
// other.
func WithLockFile(path string) SyncerOption {
	return func(s *Syncer) {
		s.lockPath = path
	}
}

// NewSyncer builds a Syncer over the repository with the given
// configuration. The default engine and transports are go-git-backed; tests
// substitute them through options.
func NewSyncer(repo *Repo, cfg SyncConfig, opts ...SyncerOption) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapError(err, "invalid sync configuration")
	}

	s := &Syncer{
		repo:       repo,
		cfg:        cfg,
		transports: make(map[Protocol]Transport, 2),
		mu:         &sync.Mutex{},
		lockKey:    "synckit",
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		if repo != nil {
			s.logger = repo.options.Logger
		} else {
			s.logger = zap.NewNop()
		}
	}

	if s.engine == nil {
		if repo == nil {
			return nil, WrapError(ErrInvalidRef, "an engine is required when no repository is given")
		}
		s.engine = NewEngine(repo)
	}

	if repo != nil {
		s.mu = &repo.syncMu
		s.lockKey = repo.Workdir()

		creds := repo.options.Credentials
		if _, ok := s.transports[ProtocolHTTP]; !ok {
			s.transports[ProtocolHTTP] = NewHTTPTransport(repo, cfg.RemoteName, creds, s.logger)
		}
		if _, ok := s.transports[ProtocolSSH]; !ok {
			s.transports[ProtocolSSH] = NewSSHTransport(repo, cfg.RemoteName, creds, s.logger)
		}
	}

	return s, nil
}

// Sync runs the full pipeline against the remote: fetch, merge with
// conflict resolution, change classification, push. branch may be empty to
// sync the configured default branch, in which case the configured fallback
// branch is tried when the default does not exist on the remote.
//
// The returned SyncResult is non-nil even on failure and mirrors the error
// in its Err field.
func (s *Syncer) Sync(ctx context.Context, remoteURL, branch string) (*SyncResult, error) {
	result := &SyncResult{}

	endpoint, err := ParseEndpoint(remoteURL, s.cfg.Branch)
	if err != nil {
		return s.fail(result, err)
	}

	transport, ok := s.transports[endpoint.Protocol]
	if !ok || !transport.ValidateConnection(endpoint.URL) {
		return s.fail(result, WrapErrorf(ErrInvalidEndpoint,
			"no transport accepts URL %q", endpoint.URL))
	}

	release, err := s.acquireLock()
	if err != nil {
		return s.fail(result, err)
	}
	defer release()

	requested := branch != ""
	if branch == "" {
		branch = s.cfg.Branch
	}

	// Fetch.
	fetched, err := retryTransient(ctx, s.cfg.NetworkRetries, func() (*FetchOutcome, error) {
		return transport.Fetch(ctx, endpoint)
	})
	if err != nil {
		return s.fail(result, err)
	}
	result.Fetched = true

	s.logger.Debug("fetch step complete",
		zap.String("url", endpoint.URL),
		zap.Bool("up_to_date", fetched.UpToDate))

	// Resolve the remote branch, falling back only for the configured
	// default, never for an explicitly requested branch.
	remoteHead, exists, err := s.engine.RemoteHead(ctx, s.cfg.RemoteName, branch)
	if err != nil {
		return s.fail(result, err)
	}
	if !exists && !requested && s.cfg.FallbackBranch != "" && s.cfg.FallbackBranch != branch {
		fallbackHead, fallbackExists, ferr := s.engine.RemoteHead(ctx, s.cfg.RemoteName, s.cfg.FallbackBranch)
		if ferr != nil {
			return s.fail(result, ferr)
		}
		if fallbackExists {
			s.logger.Debug("falling back to secondary branch",
				zap.String("branch", branch),
				zap.String("fallback", s.cfg.FallbackBranch))
			branch = s.cfg.FallbackBranch
			remoteHead = fallbackHead
			exists = true
		}
	}
	if !exists {
		return s.fail(result, WrapErrorf(ErrInvalidRef,
			"branch %q does not exist on the remote", branch))
	}
	result.Branch = branch

	ours := branch
	theirs := s.cfg.RemoteName + "/" + branch

	preMergeHead := ""
	if head, herr := s.localHead(ours); herr == nil {
		preMergeHead = head
	}

	// Merge with bounded retries. A further attempt is only meaningful
	// when the remote moved between attempts; otherwise it would replay
	// the identical conflict.
	resolver := NewResolver(s.engine, s.cfg.AutoResolveNonConflicting, s.logger)

	var attempt *MergeAttempt
	for number := 1; number <= s.cfg.MaxMergeConflictRetries; number++ {
		result.Attempts = number

		base, berr := s.engine.MergeBase(ctx, ours, theirs)
		if berr != nil {
			return s.fail(result, berr)
		}

		attempt, err = resolver.Attempt(ctx, number, base, ours, theirs)
		if err != nil {
			return s.fail(result, err)
		}

		if attempt.Outcome == OutcomeClean {
			result.Merged = true
			break
		}

		if number == s.cfg.MaxMergeConflictRetries {
			break
		}

		if _, err = retryTransient(ctx, s.cfg.NetworkRetries, func() (*FetchOutcome, error) {
			return transport.Fetch(ctx, endpoint)
		}); err != nil {
			return s.fail(result, err)
		}

		head, stillExists, herr := s.engine.RemoteHead(ctx, s.cfg.RemoteName, branch)
		if herr != nil {
			return s.fail(result, herr)
		}
		if !stillExists || head == remoteHead {
			break
		}
		remoteHead = head

		s.logger.Debug("remote moved during conflict resolution, retrying merge",
			zap.String("branch", branch),
			zap.Int("attempt", number))
	}

	if !result.Merged {
		result.UnresolvedConflicts = attempt.Unresolved()
		return s.fail(result, WrapErrorf(ErrMergeConflict,
			"conflicts remain after %d merge attempts", result.Attempts))
	}

	// Classify what the merge brought in. Classification failures do not
	// stop the pipeline: the sync is still correct without the report.
	if preMergeHead != "" {
		if changes, cerr := s.classify(ctx, preMergeHead, ours); cerr != nil {
			s.logger.Warn("change classification failed", zap.Error(cerr))
		} else {
			result.Changes = changes
		}
	}

	// Push. Once the merge commit exists locally, a caller cancellation
	// must not strand it unpublished mid-step.
	pushCtx := context.WithoutCancel(ctx)
	pushed, err := retryTransient(pushCtx, s.cfg.NetworkRetries, func() (*PushOutcome, error) {
		return transport.Push(pushCtx, endpoint, branch)
	})
	if err != nil {
		return s.fail(result, err)
	}
	result.Pushed = true

	s.logger.Info("sync complete",
		zap.String("url", endpoint.URL),
		zap.String("branch", branch),
		zap.Int("merge_attempts", result.Attempts),
		zap.Int("changes", len(result.Changes)),
		zap.Bool("push_up_to_date", pushed.UpToDate))

	return result, nil
}

// fail records the error on the result and mirrors it as the return error.
func (s *Syncer) fail(result *SyncResult, err error) (*SyncResult, error) {
	result.Err = err
	return result, err
}

// localHead resolves the current hash of the local branch.
func (s *Syncer) localHead(branch string) (string, error) {
	if s.repo != nil {
		hash, err := s.repo.resolveHash(branch)
		if err != nil {
			return "", err
		}
		return hash.String(), nil
	}

	// Without a repository the engine is the only revision authority.
	return branch, nil
}

// classify diffs two revisions and classifies the result with content
// similarity supplied by the engine.
func (s *Syncer) classify(ctx context.Context, oldRev, newRev string) ([]ChangeRecord, error) {
	pairs, err := s.engine.DiffSnapshots(ctx, oldRev, newRev)
	if err != nil {
		return nil, err
	}

	similarity := func(oldPath, newPath string) float64 {
		if s.repo == nil {
			return 0
		}
		oldContent, oerr := s.repo.blobContent(oldRev, oldPath)
		if oerr != nil {
			return 0
		}
		newContent, nerr := s.repo.blobContent(newRev, newPath)
		if nerr != nil {
			return 0
		}
		return s.engine.ComputeSimilarity(oldContent, newContent)
	}

	classifier := NewClassifier(s.cfg.SimilarityThreshold, similarity)

	return classifier.Classify(pairs), nil
}

// acquireLock takes the repository's exclusion lock, and the lock file when
// one is configured. The returned release function must be called exactly
// once.
func (s *Syncer) acquireLock() (func(), error) {
	if !s.mu.TryLock() {
		return nil, WrapErrorf(ErrSyncInProgress, "sync already running for %q", s.lockKey)
	}

	if s.lockPath == "" {
		return s.mu.Unlock, nil
	}

	fileLock := flock.New(s.lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		s.mu.Unlock()
		return nil, WrapErrorf(err, "failed to acquire lock file %q", s.lockPath)
	}
	if !locked {
		s.mu.Unlock()
		return nil, WrapErrorf(ErrSyncInProgress, "lock file %q held by another process", s.lockPath)
	}

	return func() {
		_ = fileLock.Unlock()
		s.mu.Unlock()
	}, nil
}

// retryTransient runs op, retrying transient network failures up to retries
// additional times with exponential backoff. Non-transient failures stop
// immediately.
func retryTransient[T any](ctx context.Context, retries int, op func() (T, error)) (T, error) {
	wrapped := func() (T, error) {
		value, err := op()
		if err != nil && !IsTransient(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(retries)+1))
}
