// Package synckit provides the version-control synchronization core for a
// desktop source-control client. This file contains repository lifecycle
// management and the raw transfer primitives used by the transports.
package synckit

import (
	"context"
	"errors"
	"fmt"
	gopath "path"
	"sync"

	gobilly "github.com/go-git/go-billy/v5"
	billyutil "github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"go.uber.org/zap"

	"github.com/repoworks/synckit/internal/fsbridge"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = 1000

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."
)

// Options configures repository discovery/creation and sync behavior.
type Options struct {
	// FS is the REQUIRED native filesystem root (OS or in-memory).
	// All repository state lives within this filesystem.
	FS fs.Filesystem

	// Workdir is the path within FS for the worktree root.
	// Defaults to "." (current directory in FS).
	Workdir string

	// Bare indicates if this should be a bare repository (.git only, no worktree).
	// Defaults to false (non-bare repository with worktree).
	Bare bool

	// StorerCacheSize sets the LRU objects cache entries.
	// Higher values improve performance but use more memory.
	// Defaults to DefaultStorerCacheSize.
	StorerCacheSize int

	// Credentials resolves per-endpoint authentication material.
	// If nil, only anonymous access is available.
	Credentials CredentialProvider

	// ShallowDepth sets the depth for shallow clone/fetch operations.
	// If > 0, operations will be shallow with the specified depth.
	// If 0, full clone/fetch operations are performed.
	ShallowDepth int

	// Committer identifies the author of merge commits created while
	// synchronizing. Defaults to a generic synckit signature.
	Committer Signature

	// Logger receives structured sync diagnostics.
	// Defaults to a no-op logger.
	Logger *zap.Logger
}

// Validate checks that the Options are properly configured.
// It returns an error if required fields are missing or invalid.
func (o *Options) Validate() error {
	if o.FS == nil {
		return WrapError(ErrInvalidRef, "FS is required")
	}

	if o.StorerCacheSize < 0 {
		return WrapError(ErrInvalidRef, "StorerCacheSize cannot be negative")
	}

	if o.ShallowDepth < 0 {
		return WrapError(ErrInvalidRef, "ShallowDepth cannot be negative")
	}

	return nil
}

// applyDefaults sets default values for any unset fields in Options.
func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}

	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}

	if o.Committer.Name == "" {
		o.Committer = Signature{Name: "synckit", Email: "synckit@localhost"}
	}

	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Repo represents a local git repository and provides the low-level
// operations the sync pipeline is built from. It wraps a go-git Repository
// and Worktree, operating exclusively through the native filesystem
// abstraction.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	fs       fs.Filesystem
	options  Options

	// syncMu serializes sync pipelines over this repository handle. Every
	// Syncer built on the same Repo shares it.
	syncMu sync.Mutex
}

// openStorage prepares go-git storage and the worktree filesystem for the
// configured workdir. For bare repositories storage lives at the root and
// there is no worktree; otherwise storage goes into the .git subdirectory.
func openStorage(opts *Options) (*filesystem.Storage, gobilly.Filesystem, error) {
	billyFS, err := fsbridge.ToBillyFilesystem(opts.FS)
	if err != nil {
		return nil, nil, fmt.Errorf("filesystem conversion failed: %w", err)
	}

	scopedFS, err := billyFS.Chroot(opts.Workdir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to chroot to workdir %q: %w", opts.Workdir, err)
	}

	if opts.Bare {
		return fsbridge.NewStorage(scopedFS, opts.StorerCacheSize), nil, nil
	}

	dotGitFS, err := scopedFS.Chroot(".git")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access .git directory: %w", err)
	}

	return fsbridge.NewStorage(dotGitFS, opts.StorerCacheSize), scopedFS, nil
}

// wrapRepo builds the Repo facade, attaching the worktree for non-bare
// repositories.
func wrapRepo(repo *git.Repository, opts *Options) (*Repo, error) {
	r := &Repo{
		repo:    repo,
		fs:      opts.FS,
		options: *opts,
	}

	if !opts.Bare {
		worktree, err := repo.Worktree()
		if err != nil {
			return nil, WrapError(err, "failed to get worktree")
		}
		r.worktree = worktree
	}

	return r, nil
}

// Init creates a new git repository at the specified location.
// It initializes both bare and non-bare repositories with proper storage
// and worktree setup.
func Init(ctx context.Context, opts *Options) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	storage, worktreeFS, err := openStorage(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Init(storage, worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}

	return wrapRepo(repo, opts)
}

// Open discovers and opens an existing git repository.
// The repository must already exist at the specified workdir within the
// filesystem. For non-bare repositories, both .git directory and worktree
// must be present.
func Open(ctx context.Context, opts *Options) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	storage, worktreeFS, err := openStorage(opts)
	if err != nil {
		return nil, err
	}

	repo, err := git.Open(storage, worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to open repository")
	}

	return wrapRepo(repo, opts)
}

// Clone creates a new repository by cloning from a remote endpoint.
// Authentication is resolved through the configured CredentialProvider;
// shallow clones are supported via Options.ShallowDepth.
//
// Context timeout/cancellation is honored during the clone operation.
func Clone(ctx context.Context, remoteURL string, opts *Options) (*Repo, error) {
	endpoint, err := ParseEndpoint(remoteURL, "")
	if err != nil {
		return nil, err
	}

	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}

	opts.applyDefaults()

	storage, worktreeFS, err := openStorage(opts)
	if err != nil {
		return nil, err
	}

	cloneOpts := &git.CloneOptions{
		URL:          endpoint.URL,
		Depth:        opts.ShallowDepth,
		SingleBranch: opts.ShallowDepth > 0, // Single branch for shallow clones
	}

	if opts.Credentials != nil {
		auth, authErr := opts.Credentials.Resolve(endpoint)
		if authErr != nil {
			return nil, authErr
		}
		cloneOpts.Auth = auth
	}

	repo, err := git.CloneContext(ctx, storage, worktreeFS, cloneOpts)
	if err != nil {
		return nil, mapTransferError(err)
	}

	return wrapRepo(repo, opts)
}

// Workdir returns the worktree root path within the native filesystem.
// It also serves as the identity for per-repository sync exclusion.
func (r *Repo) Workdir() string {
	return r.options.Workdir
}

// CurrentBranch returns the short name of the branch HEAD points at.
// Returns ErrInvalidRef when HEAD is detached.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", WrapError(err, "failed to get HEAD reference")
	}

	if !head.Name().IsBranch() {
		return "", WrapError(ErrInvalidRef, "HEAD is detached")
	}

	return head.Name().Short(), nil
}

// RemoteHead returns the commit hash the remote tracking ref for
// remote/branch points at, and whether that tracking ref exists.
func (r *Repo) RemoteHead(remote, branch string) (string, bool, error) {
	ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName(remote, branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", false, nil
		}
		return "", false, WrapError(err, "failed to read remote tracking ref")
	}

	return ref.Hash().String(), true, nil
}

// writeWorktreeFile writes content to a path within the worktree,
// creating parent directories as needed.
func (r *Repo) writeWorktreeFile(path string, data []byte) error {
	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "bare repository has no worktree")
	}

	wfs := r.worktree.Filesystem

	if dir := gopath.Dir(path); dir != "." {
		if err := wfs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}

	if err := billyutil.WriteFile(wfs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file %q: %w", path, err)
	}

	return nil
}

// blobContent returns the content of a file at a given revision.
func (r *Repo) blobContent(rev, path string) (string, error) {
	hash, err := r.resolveHash(rev)
	if err != nil {
		return "", err
	}

	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return "", WrapErrorf(err, "failed to load commit %q", rev)
	}

	file, err := commit.File(path)
	if err != nil {
		return "", WrapErrorf(err, "failed to load %q at %q", path, rev)
	}

	content, err := file.Contents()
	if err != nil {
		return "", WrapErrorf(err, "failed to read %q at %q", path, rev)
	}

	return content, nil
}

// resolveHash resolves a revision specifier to a full commit hash.
func (r *Repo) resolveHash(rev string) (plumbing.Hash, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, WrapErrorf(ErrResolveFailed, "failed to resolve %q", rev)
	}
	return *hash, nil
}

// fetchRemote fetches all branch heads from the given URL into the
// refs/remotes/<remote>/* tracking namespace. Returns ErrAlreadyUpToDate
// when there is nothing new to fetch.
//
// Context timeout/cancellation is honored; a cancelled fetch leaves the
// prior local state unchanged.
func (r *Repo) fetchRemote(ctx context.Context, remote, remoteURL string, auth gittransport.AuthMethod) error {
	fetchOpts := &git.FetchOptions{
		RemoteName: remote,
		RemoteURL:  remoteURL,
		Auth:       auth,
		Depth:      r.options.ShallowDepth,
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", remote)),
		},
	}

	if err := r.repo.FetchContext(ctx, fetchOpts); err != nil {
		return mapTransferError(err)
	}

	return nil
}

// pushBranch pushes a single branch head to the given URL. The underlying
// ref update on the remote is atomic: it either fully succeeds or is
// rejected in full. Returns ErrAlreadyUpToDate when the remote already has
// the local head, and ErrNotFastForward when the remote has diverged.
func (r *Repo) pushBranch(ctx context.Context, remote, remoteURL, branch string, auth gittransport.AuthMethod) error {
	pushOpts := &git.PushOptions{
		RemoteName: remote,
		RemoteURL:  remoteURL,
		Auth:       auth,
		RefSpecs: []config.RefSpec{
			config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)),
		},
	}

	if err := r.repo.PushContext(ctx, pushOpts); err != nil {
		return mapTransferError(err)
	}

	return nil
}

// pullBranch performs a fast-forward only pull of the given branch.
// Returns ErrNotFastForward when the remote history has diverged, which
// routes the caller into the merge path.
func (r *Repo) pullBranch(ctx context.Context, remote, remoteURL, branch string, auth gittransport.AuthMethod) error {
	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "cannot pull in bare repository")
	}

	pullOpts := &git.PullOptions{
		RemoteName:    remote,
		RemoteURL:     remoteURL,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
	}

	if err := r.worktree.PullContext(ctx, pullOpts); err != nil {
		return mapTransferError(err)
	}

	return nil
}

// mapTransferError folds go-git transfer errors into the package taxonomy.
// Unrecognized transfer failures classify as transient network errors.
func mapTransferError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return ErrAlreadyUpToDate
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return ErrNotFastForward
	case errors.Is(err, gittransport.ErrAuthenticationRequired):
		return WrapError(ErrAuthRequired, "remote requires credentials")
	case errors.Is(err, gittransport.ErrAuthorizationFailed):
		return WrapError(ErrAuthFailed, "remote rejected credentials")
	case errors.Is(err, gittransport.ErrRepositoryNotFound):
		return WrapError(ErrResolveFailed, "remote repository not found")
	case errors.Is(err, git.ErrRemoteNotFound):
		return WrapError(ErrResolveFailed, "remote not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return WrapError(ErrNetwork, err.Error())
	}
}
