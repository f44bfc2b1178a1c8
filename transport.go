// Package synckit provides the transport layer for remote transfers.
// This file contains the Transport capability interface and the single
// execution core shared by the HTTP and SSH variants.
package synckit

import (
	"context"
	"errors"

	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	"go.uber.org/zap"
)

// FetchOutcome reports the result of a fetch operation.
type FetchOutcome struct {
	// RemoteHead is the commit hash the remote branch points at after the
	// fetch, when the tracking ref exists.
	RemoteHead string

	// UpToDate is true when the fetch brought nothing new.
	UpToDate bool
}

// PushOutcome reports the result of a push operation.
type PushOutcome struct {
	// UpToDate is true when the remote already had the local head.
	UpToDate bool
}

// PullOutcome reports the result of a fast-forward pull operation.
type PullOutcome struct {
	// UpToDate is true when the pull brought nothing new.
	UpToDate bool
}

// Transport performs transfers against a remote endpoint. The two variants
// (HTTP and SSH) share one execution path and differ only in their URL
// predicate and the credential kind they request.
//
// All transfer operations honor context cancellation without leaving the
// local repository half-written: the underlying engine's atomic ref update
// guarantees that a cancelled transfer leaves the prior state unchanged.
type Transport interface {
	// Fetch downloads remote history into the local tracking namespace.
	Fetch(ctx context.Context, endpoint RemoteEndpoint) (*FetchOutcome, error)

	// Push uploads the local branch head to the remote. The remote ref
	// update is all-or-nothing. Returns ErrNotFastForward when the remote
	// has diverged.
	Push(ctx context.Context, endpoint RemoteEndpoint, branch string) (*PushOutcome, error)

	// Pull performs a fast-forward only pull of the branch. Returns
	// ErrNotFastForward when a content merge would be required, which
	// routes the caller into the merge path.
	Pull(ctx context.Context, endpoint RemoteEndpoint, branch string) (*PullOutcome, error)

	// ValidateConnection reports whether the URL matches this transport's
	// protocol predicate. URLs failing the predicate must not be
	// transferred.
	ValidateConnection(url string) bool
}

// ProtocolPolicy selects which URLs a transport variant accepts and which
// credential kind it requests. Modeling the variants as one core plus a
// policy keeps both testable in isolation.
type ProtocolPolicy interface {
	// Protocol is the protocol this policy accepts.
	Protocol() Protocol

	// Matches reports whether rawURL is shaped for this protocol.
	Matches(rawURL string) bool
}

type httpPolicy struct{}

func (httpPolicy) Protocol() Protocol      { return ProtocolHTTP }
func (httpPolicy) Matches(raw string) bool { return IsHTTPURL(raw) }

type sshPolicy struct{}

func (sshPolicy) Protocol() Protocol      { return ProtocolSSH }
func (sshPolicy) Matches(raw string) bool { return IsSSHURL(raw) }

// transferRunner is the narrow slice of Repo the transport core needs.
// Kept as an interface so transports are testable without a live repository.
type transferRunner interface {
	fetchRemote(ctx context.Context, remote, remoteURL string, auth gittransport.AuthMethod) error
	pushBranch(ctx context.Context, remote, remoteURL, branch string, auth gittransport.AuthMethod) error
	pullBranch(ctx context.Context, remote, remoteURL, branch string, auth gittransport.AuthMethod) error
	RemoteHead(remote, branch string) (string, bool, error)
}

// transportCore is the shared execution path of both transport variants.
type transportCore struct {
	runner transferRunner
	policy ProtocolPolicy
	creds  CredentialProvider
	remote string
	logger *zap.Logger
}

// NewHTTPTransport returns the HTTP(S) transport variant for the repository.
// remote names the tracking namespace (usually "origin"); creds may be nil
// for anonymous access to public remotes.
func NewHTTPTransport(repo *Repo, remote string, creds CredentialProvider, logger *zap.Logger) Transport {
	return newTransportCore(repo, httpPolicy{}, remote, creds, logger)
}

// NewSSHTransport returns the SSH transport variant for the repository.
// It shares the HTTP variant's execution path and differs only in URL
// validation and credential kind.
func NewSSHTransport(repo *Repo, remote string, creds CredentialProvider, logger *zap.Logger) Transport {
	return newTransportCore(repo, sshPolicy{}, remote, creds, logger)
}

func newTransportCore(runner transferRunner, policy ProtocolPolicy, remote string, creds CredentialProvider, logger *zap.Logger) *transportCore {
	if remote == "" {
		remote = DefaultRemoteName
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &transportCore{
		runner: runner,
		policy: policy,
		creds:  creds,
		remote: remote,
		logger: logger,
	}
}

// ValidateConnection reports whether url is shaped for this transport's
// protocol. No network I/O is performed.
func (t *transportCore) ValidateConnection(url string) bool {
	return t.policy.Matches(url)
}

// resolveAuth validates the endpoint against the policy and resolves the
// credential for it. Both failures are reported before any network attempt.
func (t *transportCore) resolveAuth(endpoint RemoteEndpoint) (gittransport.AuthMethod, error) {
	if !t.policy.Matches(endpoint.URL) {
		return nil, WrapErrorf(ErrInvalidEndpoint,
			"%s transport cannot handle URL %q", t.policy.Protocol(), endpoint.URL)
	}

	if t.creds == nil {
		return nil, nil // anonymous
	}

	auth, err := t.creds.Resolve(endpoint)
	if err != nil {
		return nil, err
	}

	return auth, nil
}

// Fetch downloads remote branch heads into refs/remotes/<remote>/*.
// An up-to-date remote is a success, not an error.
func (t *transportCore) Fetch(ctx context.Context, endpoint RemoteEndpoint) (*FetchOutcome, error) {
	auth, err := t.resolveAuth(endpoint)
	if err != nil {
		return nil, err
	}

	outcome := &FetchOutcome{}

	err = t.runner.fetchRemote(ctx, t.remote, endpoint.URL, auth)
	switch {
	case errors.Is(err, ErrAlreadyUpToDate):
		outcome.UpToDate = true
	case err != nil:
		return nil, err
	}

	if head, ok, headErr := t.runner.RemoteHead(t.remote, endpoint.DefaultBranch); headErr == nil && ok {
		outcome.RemoteHead = head
	}

	t.logger.Debug("fetch complete",
		zap.String("url", endpoint.URL),
		zap.String("protocol", t.policy.Protocol().String()),
		zap.Bool("up_to_date", outcome.UpToDate))

	return outcome, nil
}

// Push uploads the branch head to the remote. An up-to-date remote is a
// success, not an error.
func (t *transportCore) Push(ctx context.Context, endpoint RemoteEndpoint, branch string) (*PushOutcome, error) {
	if branch == "" {
		return nil, WrapError(ErrInvalidRef, "branch cannot be empty")
	}

	auth, err := t.resolveAuth(endpoint)
	if err != nil {
		return nil, err
	}

	outcome := &PushOutcome{}

	err = t.runner.pushBranch(ctx, t.remote, endpoint.URL, branch, auth)
	switch {
	case errors.Is(err, ErrAlreadyUpToDate):
		outcome.UpToDate = true
	case err != nil:
		return nil, err
	}

	t.logger.Debug("push complete",
		zap.String("url", endpoint.URL),
		zap.String("branch", branch),
		zap.Bool("up_to_date", outcome.UpToDate))

	return outcome, nil
}

// Pull performs a fast-forward only pull of the branch.
func (t *transportCore) Pull(ctx context.Context, endpoint RemoteEndpoint, branch string) (*PullOutcome, error) {
	if branch == "" {
		return nil, WrapError(ErrInvalidRef, "branch cannot be empty")
	}

	auth, err := t.resolveAuth(endpoint)
	if err != nil {
		return nil, err
	}

	outcome := &PullOutcome{}

	err = t.runner.pullBranch(ctx, t.remote, endpoint.URL, branch, auth)
	switch {
	case errors.Is(err, ErrAlreadyUpToDate):
		outcome.UpToDate = true
	case err != nil:
		return nil, err
	}

	return outcome, nil
}
