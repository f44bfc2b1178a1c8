// Package synckit provides credential resolution for remote endpoints.
// This file contains the CredentialProvider contract and constructors that
// wrap the concrete providers in internal/auth.
package synckit

import (
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/repoworks/synckit/internal/auth"
)

// CredentialProvider resolves authentication material for a remote endpoint.
// It performs no network I/O itself; implementations may read external
// credential stores. The resolved credential is scoped to a single transport
// call and is never persisted by the transport.
//
// Resolve must return a credential compatible with the endpoint protocol:
// key-pair or agent-backed for SSH, basic/token for HTTP(S). A nil method
// without error means anonymous access (public HTTP remotes). Failure to
// resolve a required credential reports ErrAuthRequired or ErrAuthFailed;
// callers treat either as fatal for the current sync attempt.
type CredentialProvider interface {
	Resolve(endpoint RemoteEndpoint) (gittransport.AuthMethod, error)
}

// providerAdapter adapts an internal/auth.Provider to the endpoint-based
// CredentialProvider contract, enforcing protocol compatibility.
type providerAdapter struct {
	provider auth.Provider
	protocol Protocol
}

// Resolve returns the credential for the endpoint, or fails when the
// endpoint protocol does not match the provider's.
func (a *providerAdapter) Resolve(endpoint RemoteEndpoint) (gittransport.AuthMethod, error) {
	if endpoint.URL == "" {
		return nil, WrapError(ErrInvalidEndpoint, "endpoint URL cannot be empty")
	}

	if endpoint.Protocol != a.protocol {
		return nil, WrapErrorf(ErrAuthRequired,
			"no %s credential available for %s endpoint", a.protocol, endpoint.Protocol)
	}

	method, err := a.provider.Method(endpoint.URL)
	if err != nil {
		return nil, WrapError(ErrAuthFailed, err.Error())
	}

	return method, nil
}

// NewBasicCredentials returns a provider for HTTP(S) username/password
// authentication.
func NewBasicCredentials(username, password string) CredentialProvider {
	return &providerAdapter{
		provider: auth.NewBasicProvider(username, password),
		protocol: ProtocolHTTP,
	}
}

// NewTokenCredentials returns a provider for HTTP(S) bearer-token
// authentication. Most git hosts (GitHub, GitLab, Bitbucket) accept the
// token as the basic-auth password.
func NewTokenCredentials(token string) CredentialProvider {
	return &providerAdapter{
		provider: auth.NewTokenProvider(token),
		protocol: ProtocolHTTP,
	}
}

// NewSSHKeyCredentials returns a provider backed by a private key file.
// An empty keyPath discovers a default key under the user's ~/.ssh.
func NewSSHKeyCredentials(keyPath, passphrase string) CredentialProvider {
	var p auth.Provider
	if keyPath == "" {
		p = auth.NewDefaultKeyProvider(passphrase)
	} else {
		p = auth.NewKeyProvider(keyPath, passphrase)
	}

	return &providerAdapter{provider: p, protocol: ProtocolSSH}
}

// NewSSHAgentCredentials returns a provider backed by the running SSH agent.
func NewSSHAgentCredentials() CredentialProvider {
	return &providerAdapter{
		provider: auth.NewAgentProvider(),
		protocol: ProtocolSSH,
	}
}

// NewCredentialChain combines providers with fallback: each is tried in
// order until one yields a credential for the endpoint. Providers for the
// wrong protocol are skipped rather than treated as failures.
func NewCredentialChain(providers ...CredentialProvider) CredentialProvider {
	return &credentialChain{providers: providers}
}

type credentialChain struct {
	providers []CredentialProvider
}

func (c *credentialChain) Resolve(endpoint RemoteEndpoint) (gittransport.AuthMethod, error) {
	var lastErr error

	for _, p := range c.providers {
		method, err := p.Resolve(endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		if method != nil {
			return method, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}

	return nil, WrapError(ErrAuthRequired, "no provider could resolve credentials for endpoint")
}
