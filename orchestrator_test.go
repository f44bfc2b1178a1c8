package synckit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRemoteURL = "https://github.com/org/repo.git"

// newTestSyncer wires a Syncer over scripted fakes, no repository involved.
func newTestSyncer(t *testing.T, cfg SyncConfig, engine *fakeEngine, transport *fakeTransport) *Syncer {
	t.Helper()

	syncer, err := NewSyncer(nil, cfg,
		WithEngine(engine),
		WithTransport(ProtocolHTTP, transport),
	)
	require.NoError(t, err)

	return syncer
}

func TestNewSyncer(t *testing.T) {
	t.Run("invalid config is rejected", func(t *testing.T) {
		cfg := DefaultSyncConfig()
		cfg.Branch = ""

		_, err := NewSyncer(nil, cfg, WithEngine(newFakeEngine()))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidRef))
	})

	t.Run("nil repo requires an engine", func(t *testing.T) {
		_, err := NewSyncer(nil, DefaultSyncConfig())
		require.Error(t, err)
	})
}

func TestSync_HappyPath(t *testing.T) {
	engine := newFakeEngine()
	engine.heads = []remoteHeadReply{{hash: "remote-1", exists: true}}
	engine.pairs = []SnapshotPair{
		{NewPath: "feature.go", NewHash: "h1"},
		{OldPath: "legacy.go", OldHash: "h2"},
	}
	transport := &fakeTransport{}

	syncer := newTestSyncer(t, DefaultSyncConfig(), engine, transport)

	result, err := syncer.Sync(context.Background(), testRemoteURL, "")
	require.NoError(t, err)

	assert.True(t, result.Fetched)
	assert.True(t, result.Merged)
	assert.True(t, result.Pushed)
	assert.Equal(t, "main", result.Branch)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, result.UnresolvedConflicts)
	assert.NoError(t, result.Err)

	assert.Equal(t, []ChangeRecord{
		{Path: "feature.go", Kind: ChangeNew},
		{Path: "legacy.go", Kind: ChangeDeleted},
	}, result.Changes)

	assert.Equal(t, 1, transport.fetchCalls)
	assert.Equal(t, 1, transport.pushCalls)
}

func TestSync_ExplicitBranch(t *testing.T) {
	engine := newFakeEngine()
	engine.heads = []remoteHeadReply{{hash: "remote-1", exists: true}}
	transport := &fakeTransport{}

	syncer := newTestSyncer(t, DefaultSyncConfig(), engine, transport)

	result, err := syncer.Sync(context.Background(), testRemoteURL, "feature/login")
	require.NoError(t, err)

	assert.Equal(t, "feature/login", result.Branch)
}

func TestSync_FallbackBranch(t *testing.T) {
	t.Run("default branch falls back when missing", func(t *testing.T) {
		engine := newFakeEngine()
		engine.heads = []remoteHeadReply{
			{exists: false},                     // main missing on the remote
			{hash: "master-head", exists: true}, // master present
		}
		transport := &fakeTransport{}

		syncer := newTestSyncer(t, DefaultSyncConfig(), engine, transport)

		result, err := syncer.Sync(context.Background(), testRemoteURL, "")
		require.NoError(t, err)

		assert.Equal(t, "master", result.Branch)
		assert.True(t, result.Pushed)
	})

	t.Run("explicitly requested branch never falls back", func(t *testing.T) {
		engine := newFakeEngine()
		engine.heads = []remoteHeadReply{{exists: false}}
		transport := &fakeTransport{}

		syncer := newTestSyncer(t, DefaultSyncConfig(), engine, transport)

		result, err := syncer.Sync(context.Background(), testRemoteURL, "feature/login")
		require.Error(t, err)

		assert.True(t, errors.Is(err, ErrInvalidRef))
		assert.Equal(t, 1, engine.headCalls, "no fallback lookup for an explicit branch")
		assert.True(t, result.Fetched)
		assert.False(t, result.Merged)
	})

	t.Run("fallback also missing fails", func(t *testing.T) {
		engine := newFakeEngine()
		engine.heads = []remoteHeadReply{{exists: false}, {exists: false}}
		transport := &fakeTransport{}

		syncer := newTestSyncer(t, DefaultSyncConfig(), engine, transport)

		_, err := syncer.Sync(context.Background(), testRemoteURL, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidRef))
	})
}

func TestSync_AutoResolvesDisjointConflict(t *testing.T) {
	disjoint := &MergeResult{
		Conflicts: []ConflictEntry{
			{
				Path:        "notes.txt",
				OursHunks:   []Hunk{{Start: 1, End: 2, Lines: []string{"local a", "local b"}}},
				TheirsHunks: []Hunk{{Start: 8, End: 8, Lines: []string{"remote x"}}},
			},
		},
	}

	engine := newFakeEngine()
	engine.heads = []remoteHeadReply{{hash: "remote-1", exists: true}}
	engine.mergeResults = []*MergeResult{disjoint, {Clean: true}}
	transport := &fakeTransport{}

	syncer := newTestSyncer(t, DefaultSyncConfig(), engine, transport)

	result, err := syncer.Sync(context.Background(), testRemoteURL, "")
	require.NoError(t, err)

	assert.True(t, result.Merged)
	assert.True(t, result.Pushed)
	assert.Equal(t, 1, result.Attempts, "auto-resolution completes within the attempt")
	assert.Empty(t, result.UnresolvedConflicts)
	assert.NoError(t, result.Err)

	assert.True(t, disjoint.Conflicts[0].Resolved)
	assert.Equal(t, []string{"local a", "local b", "remote x"}, disjoint.Conflicts[0].MergedLines)
	assert.Equal(t, []string{"local a", "local b", "remote x"}, engine.applied["notes.txt"])
	assert.Equal(t, 2, engine.mergeCalls, "the primitive confirms the resolved merge")
	assert.Equal(t, 1, transport.pushCalls)
}

func TestSync_ConflictsWithoutRemoteMovement(t *testing.T) {
	overlapping := &MergeResult{
		Conflicts: []ConflictEntry{
			{
				Path:        "main.go",
				OursHunks:   []Hunk{{Start: 1, End: 5, Lines: []string{"local"}}},
				TheirsHunks: []Hunk{{Start: 3, End: 7, Lines: []string{"remote"}}},
			},
		},
	}

	engine := newFakeEngine()
	engine.heads = []remoteHeadReply{{hash: "remote-1", exists: true}}
	engine.mergeResults = []*MergeResult{overlapping}
	transport := &fakeTransport{}

	syncer := newTestSyncer(t, DefaultSyncConfig(), engine, transport)

	result, err := syncer.Sync(context.Background(), testRemoteURL, "")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrMergeConflict))
	assert.False(t, errors.Is(err, ErrResolveFailed),
		"unresolved conflicts are not a revision resolution failure")
	assert.Equal(t, 1, result.Attempts, "a stationary remote makes further attempts pointless")
	assert.True(t, result.Fetched)
	assert.False(t, result.Merged)
	assert.False(t, result.Pushed)

	require.Len(t, result.UnresolvedConflicts, 1)
	assert.Equal(t, "main.go", result.UnresolvedConflicts[0].Path)

	assert.Equal(t, 0, transport.pushCalls, "nothing is pushed when the merge fails")
	assert.Equal(t, 2, transport.fetchCalls, "one re-fetch checks whether the remote moved")
}

func TestSync_RetriesWhenRemoteMoves(t *testing.T) {
	overlapping := &MergeResult{
		Conflicts: []ConflictEntry{
			{
				Path:        "main.go",
				OursHunks:   []Hunk{{Start: 1, End: 5}},
				TheirsHunks: []Hunk{{Start: 3, End: 7}},
			},
		},
	}

	engine := newFakeEngine()
	engine.heads = []remoteHeadReply{
		{hash: "remote-1", exists: true}, // initial lookup
		{hash: "remote-2", exists: true}, // remote moved during attempt 1
	}
	engine.mergeResults = []*MergeResult{overlapping, {Clean: true}}
	transport := &fakeTransport{}

	syncer := newTestSyncer(t, DefaultSyncConfig(), engine, transport)

	result, err := syncer.Sync(context.Background(), testRemoteURL, "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Attempts)
	assert.True(t, result.Merged)
	assert.True(t, result.Pushed)
}

func TestSync_MergeAttemptsAreBounded(t *testing.T) {
	overlapping := &MergeResult{
		Conflicts: []ConflictEntry{
			{
				Path:        "main.go",
				OursHunks:   []Hunk{{Start: 1, End: 5}},
				TheirsHunks: []Hunk{{Start: 3, End: 7}},
			},
		},
	}

	cfg := DefaultSyncConfig()
	cfg.MaxMergeConflictRetries = 2

	engine := newFakeEngine()
	// The remote keeps moving, but every merge attempt keeps conflicting.
	engine.heads = []remoteHeadReply{
		{hash: "remote-1", exists: true},
		{hash: "remote-2", exists: true},
		{hash: "remote-3", exists: true},
	}
	engine.mergeResults = []*MergeResult{overlapping, overlapping, overlapping}
	transport := &fakeTransport{}

	syncer := newTestSyncer(t, cfg, engine, transport)

	result, err := syncer.Sync(context.Background(), testRemoteURL, "")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrMergeConflict))
	assert.Equal(t, 2, result.Attempts)
	assert.False(t, result.Pushed)
}

func TestSync_TransientFetchFailureIsRetried(t *testing.T) {
	cfg := DefaultSyncConfig()
	cfg.NetworkRetries = 1

	engine := newFakeEngine()
	engine.heads = []remoteHeadReply{{hash: "remote-1", exists: true}}
	transport := &fakeTransport{
		fetchReplies: []fetchReply{
			{err: WrapError(ErrNetwork, "connection reset")},
			{outcome: &FetchOutcome{RemoteHead: "remote-1"}},
		},
	}

	syncer := newTestSyncer(t, cfg, engine, transport)

	result, err := syncer.Sync(context.Background(), testRemoteURL, "")
	require.NoError(t, err)

	assert.True(t, result.Pushed)
	assert.Equal(t, 2, transport.fetchCalls, "one retry after the transient failure")
}

func TestSync_AuthFailureIsNotRetried(t *testing.T) {
	cfg := DefaultSyncConfig()
	cfg.NetworkRetries = 3

	engine := newFakeEngine()
	transport := &fakeTransport{
		fetchReplies: []fetchReply{
			{err: WrapError(ErrAuthRequired, "remote requires credentials")},
		},
	}

	syncer := newTestSyncer(t, cfg, engine, transport)

	result, err := syncer.Sync(context.Background(), testRemoteURL, "")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrAuthRequired))
	assert.Equal(t, 1, transport.fetchCalls, "auth failures must not be retried")
	assert.False(t, result.Fetched)
	assert.Equal(t, err, result.Err, "result mirrors the failing error")
}

func TestSync_InvalidURL(t *testing.T) {
	syncer := newTestSyncer(t, DefaultSyncConfig(), newFakeEngine(), &fakeTransport{})

	result, err := syncer.Sync(context.Background(), "ftp://example.com/repo.git", "")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrInvalidEndpoint))
	assert.False(t, result.Fetched)
}

func TestSync_MissingTransport(t *testing.T) {
	// Only HTTP is wired; an SSH endpoint has nowhere to go.
	syncer := newTestSyncer(t, DefaultSyncConfig(), newFakeEngine(), &fakeTransport{})

	_, err := syncer.Sync(context.Background(), "git@github.com:org/repo.git", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidEndpoint))
}

func TestSync_PushFailurePropagates(t *testing.T) {
	engine := newFakeEngine()
	engine.heads = []remoteHeadReply{{hash: "remote-1", exists: true}}
	transport := &fakeTransport{
		pushErrs: []error{WrapError(ErrNotFastForward, "remote moved after merge")},
	}

	syncer := newTestSyncer(t, DefaultSyncConfig(), engine, transport)

	result, err := syncer.Sync(context.Background(), testRemoteURL, "")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrNotFastForward))
	assert.True(t, result.Merged)
	assert.False(t, result.Pushed)
}

func TestSync_ExclusionLock(t *testing.T) {
	syncer := newTestSyncer(t, DefaultSyncConfig(), newFakeEngine(), &fakeTransport{})

	release, err := syncer.acquireLock()
	require.NoError(t, err)

	_, err = syncer.acquireLock()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncInProgress))

	release()

	release, err = syncer.acquireLock()
	require.NoError(t, err)
	release()
}

func TestSync_LockScope(t *testing.T) {
	t.Run("distinct repositories lock independently", func(t *testing.T) {
		// Both repositories use the default workdir on their own
		// filesystem; neither may block the other.
		first := setupTestRepoWithCommit(t)
		second := setupTestRepoWithCommit(t)

		syncerA, err := NewSyncer(first.repo, DefaultSyncConfig())
		require.NoError(t, err)
		syncerB, err := NewSyncer(second.repo, DefaultSyncConfig())
		require.NoError(t, err)

		releaseA, err := syncerA.acquireLock()
		require.NoError(t, err)
		defer releaseA()

		releaseB, err := syncerB.acquireLock()
		require.NoError(t, err)
		releaseB()
	})

	t.Run("syncers sharing a repository exclude each other", func(t *testing.T) {
		tr := setupTestRepoWithCommit(t)

		syncerA, err := NewSyncer(tr.repo, DefaultSyncConfig())
		require.NoError(t, err)
		syncerB, err := NewSyncer(tr.repo, DefaultSyncConfig())
		require.NoError(t, err)

		release, err := syncerA.acquireLock()
		require.NoError(t, err)
		defer release()

		_, err = syncerB.acquireLock()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSyncInProgress))
	})
}

func TestSync_ConcurrentSyncRejected(t *testing.T) {
	engine := newFakeEngine()
	engine.heads = []remoteHeadReply{{hash: "remote-1", exists: true}}
	transport := &fakeTransport{}

	syncer := newTestSyncer(t, DefaultSyncConfig(), engine, transport)

	release, err := syncer.acquireLock()
	require.NoError(t, err)
	defer release()

	result, err := syncer.Sync(context.Background(), testRemoteURL, "")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrSyncInProgress))
	assert.False(t, result.Fetched, "nothing runs while another sync holds the lock")
}
