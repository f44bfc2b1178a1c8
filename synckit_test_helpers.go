package synckit

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/require"
)

// testRepo is a helper struct that contains a test repository and its filesystem
type testRepo struct {
	repo *Repo
	fs   fs.Filesystem
	ctx  context.Context
}

// setupTestRepo creates a new test repository with an in-memory filesystem
func setupTestRepo(t *testing.T, bare bool) *testRepo {
	t.Helper()

	ctx := context.Background()
	memFS := fsb.NewInMemoryFS()

	opts := Options{
		FS:      memFS,
		Bare:    bare,
		Workdir: ".",
	}

	repo, err := Init(ctx, &opts)
	require.NoError(t, err, "failed to initialize test repository")
	require.NotNil(t, repo, "repository should not be nil")

	return &testRepo{
		repo: repo,
		fs:   memFS,
		ctx:  ctx,
	}
}

// setupTestRepoWithCommit creates a test repository with an initial commit
func setupTestRepoWithCommit(t *testing.T) *testRepo {
	t.Helper()

	tr := setupTestRepo(t, false)
	tr.writeFile(t, "test.txt", "initial content\n")
	tr.commitAll(t, "Initial commit")

	return tr
}

// writeFile writes content to a file in the test filesystem
func (tr *testRepo) writeFile(t *testing.T, path, content string) {
	t.Helper()

	err := tr.fs.WriteFile(path, []byte(content), 0o666)
	require.NoError(t, err, "failed to write file %s", path)
}

// commitAll stages every change and commits it, returning the new hash
func (tr *testRepo) commitAll(t *testing.T, message string) plumbing.Hash {
	t.Helper()

	err := tr.repo.worktree.AddWithOptions(&git.AddOptions{All: true})
	require.NoError(t, err, "failed to stage changes")

	hash, err := tr.repo.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "synckit", Email: "synckit@localhost", When: time.Now()},
	})
	require.NoError(t, err, "failed to commit")

	return hash
}

// headHash returns the current HEAD commit hash
func (tr *testRepo) headHash(t *testing.T) plumbing.Hash {
	t.Helper()

	head, err := tr.repo.repo.Head()
	require.NoError(t, err, "failed to get HEAD")

	return head.Hash()
}

// setRemoteBranch points a remote tracking ref at a commit
func (tr *testRepo) setRemoteBranch(t *testing.T, remote, branch string, hash plumbing.Hash) {
	t.Helper()

	refName := plumbing.NewRemoteReferenceName(remote, branch)
	err := tr.repo.repo.Storer.SetReference(plumbing.NewHashReference(refName, hash))
	require.NoError(t, err, "failed to set remote tracking ref")
}

// checkoutNewBranchAt creates a branch at the given commit and checks it out
func (tr *testRepo) checkoutNewBranchAt(t *testing.T, branch string, hash plumbing.Hash) {
	t.Helper()

	err := tr.repo.worktree.Checkout(&git.CheckoutOptions{
		Hash:   hash,
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	})
	require.NoError(t, err, "failed to create and checkout branch %s", branch)
}

// checkoutBranch checks out an existing branch
func (tr *testRepo) checkoutBranch(t *testing.T, branch string) {
	t.Helper()

	err := tr.repo.worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
	})
	require.NoError(t, err, "failed to checkout branch %s", branch)
}

// remoteHeadReply scripts one RemoteHead answer for the fake engine
type remoteHeadReply struct {
	hash   string
	exists bool
	err    error
}

// fakeEngine scripts Engine behavior for pipeline and resolver tests.
// Merge results and remote head replies are consumed in order; when a queue
// runs out the last reply is repeated (merges fall back to clean).
type fakeEngine struct {
	mergeBase    string
	mergeBaseErr error

	mergeResults []*MergeResult
	mergeErr     error
	mergeCalls   int

	applied    map[string][]string
	applyErr   error
	beginCalls int

	heads     []remoteHeadReply
	lastHead  remoteHeadReply
	headCalls int

	pairs   []SnapshotPair
	diffErr error

	refUpdates map[string]string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		mergeBase:  "base",
		applied:    make(map[string][]string),
		refUpdates: make(map[string]string),
	}
}

func (e *fakeEngine) MergeBase(_ context.Context, _, _ string) (string, error) {
	return e.mergeBase, e.mergeBaseErr
}

func (e *fakeEngine) ThreeWayMerge(_ context.Context, _, _, _ string) (*MergeResult, error) {
	e.mergeCalls++

	if e.mergeErr != nil {
		return nil, e.mergeErr
	}

	if len(e.mergeResults) == 0 {
		return &MergeResult{Clean: true}, nil
	}

	result := e.mergeResults[0]
	e.mergeResults = e.mergeResults[1:]
	return result, nil
}

func (e *fakeEngine) ApplyResolution(_ context.Context, path string, lines []string) error {
	if e.applyErr != nil {
		return e.applyErr
	}
	e.applied[path] = lines
	return nil
}

func (e *fakeEngine) BeginMerge() {
	e.beginCalls++
	e.applied = make(map[string][]string)
}

func (e *fakeEngine) AtomicUpdateRef(_ context.Context, branch, commit string) error {
	e.refUpdates[branch] = commit
	return nil
}

func (e *fakeEngine) DiffSnapshots(_ context.Context, _, _ string) ([]SnapshotPair, error) {
	return e.pairs, e.diffErr
}

func (e *fakeEngine) ComputeSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return 0.0
}

func (e *fakeEngine) RemoteHead(_ context.Context, _, _ string) (string, bool, error) {
	e.headCalls++

	if len(e.heads) > 0 {
		e.lastHead = e.heads[0]
		e.heads = e.heads[1:]
	}

	return e.lastHead.hash, e.lastHead.exists, e.lastHead.err
}

// fetchReply scripts one Fetch answer for the fake transport
type fetchReply struct {
	outcome *FetchOutcome
	err     error
}

// fakeTransport scripts Transport behavior for pipeline tests. Fetch
// replies are consumed in order, repeating the last one when exhausted.
type fakeTransport struct {
	fetchReplies []fetchReply
	lastFetch    fetchReply
	fetchCalls   int

	pushErrs  []error
	pushCalls int

	rejectURLs bool
}

func (f *fakeTransport) Fetch(_ context.Context, _ RemoteEndpoint) (*FetchOutcome, error) {
	f.fetchCalls++

	if len(f.fetchReplies) > 0 {
		f.lastFetch = f.fetchReplies[0]
		f.fetchReplies = f.fetchReplies[1:]
	}

	reply := f.lastFetch
	if reply.err != nil {
		return nil, reply.err
	}
	if reply.outcome == nil {
		return &FetchOutcome{}, nil
	}
	return reply.outcome, nil
}

func (f *fakeTransport) Push(_ context.Context, _ RemoteEndpoint, _ string) (*PushOutcome, error) {
	f.pushCalls++

	if len(f.pushErrs) > 0 {
		err := f.pushErrs[0]
		f.pushErrs = f.pushErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	return &PushOutcome{}, nil
}

func (f *fakeTransport) Pull(_ context.Context, _ RemoteEndpoint, _ string) (*PullOutcome, error) {
	return &PullOutcome{}, nil
}

func (f *fakeTransport) ValidateConnection(_ string) bool {
	return !f.rejectURLs
}

// fakeRunner implements transferRunner for transport core tests.
type fakeRunner struct {
	fetchErr error
	pushErr  error
	pullErr  error

	head   string
	headOK bool

	fetchCalls int
	pushCalls  int
	pullCalls  int

	lastRemote string
	lastURL    string
	lastBranch string
	lastAuth   gittransport.AuthMethod
}

func (r *fakeRunner) fetchRemote(_ context.Context, remote, remoteURL string, auth gittransport.AuthMethod) error {
	r.fetchCalls++
	r.lastRemote = remote
	r.lastURL = remoteURL
	r.lastAuth = auth
	return r.fetchErr
}

func (r *fakeRunner) pushBranch(_ context.Context, remote, remoteURL, branch string, auth gittransport.AuthMethod) error {
	r.pushCalls++
	r.lastRemote = remote
	r.lastURL = remoteURL
	r.lastBranch = branch
	r.lastAuth = auth
	return r.pushErr
}

func (r *fakeRunner) pullBranch(_ context.Context, remote, remoteURL, branch string, auth gittransport.AuthMethod) error {
	r.pullCalls++
	r.lastRemote = remote
	r.lastURL = remoteURL
	r.lastBranch = branch
	r.lastAuth = auth
	return r.pullErr
}

func (r *fakeRunner) RemoteHead(_, _ string) (string, bool, error) {
	return r.head, r.headOK, nil
}

// staticCreds is a CredentialProvider returning a fixed method or error.
type staticCreds struct {
	method gittransport.AuthMethod
	err    error
}

func (c *staticCreds) Resolve(_ RemoteEndpoint) (gittransport.AuthMethod, error) {
	return c.method, c.err
}
