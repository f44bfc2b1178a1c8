// Package auth provides HTTP(S) authentication providers.
package auth

import (
	"fmt"
	"net/url"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// BasicProvider provides HTTP(S) basic authentication for git operations.
// It wraps go-git's http.BasicAuth with scheme validation and optional
// host restrictions.
type BasicProvider struct {
	auth *http.BasicAuth

	// AllowedHosts restricts authentication to specific host patterns.
	// If empty, authentication is allowed for all HTTP(S) URLs.
	// Supports glob patterns like "*.github.com" or "gitlab.*".
	AllowedHosts []string
}

// NewBasicProvider creates an HTTP(S) provider for username/password
// authentication.
func NewBasicProvider(username, password string) *BasicProvider {
	if username == "" && password != "" {
		// Many hosts accept the token as username with empty password.
		username = password
		password = ""
	}

	return &BasicProvider{
		auth: &http.BasicAuth{
			Username: username,
			Password: password,
		},
	}
}

// NewTokenProvider creates an HTTP(S) provider for token authentication.
// Most git hosts (GitHub, GitLab, Bitbucket) use the token as password.
func NewTokenProvider(token string) *BasicProvider {
	return &BasicProvider{
		auth: &http.BasicAuth{
			Username: "token", // Some hosts need a non-empty username
			Password: token,
		},
	}
}

// WithAllowedHosts sets the allowed hosts for this provider.
// Only URLs matching these patterns will be authenticated.
func (p *BasicProvider) WithAllowedHosts(hosts ...string) *BasicProvider {
	p.AllowedHosts = hosts
	return p
}

// Method returns the authentication method for the given remote URL.
// Returns nil if the URL host doesn't match the allowed patterns.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *BasicProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	parsed, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("basic auth provider only supports http(s) URLs, got %q", parsed.Scheme)
	}

	if len(p.AllowedHosts) > 0 && !hostAllowed(parsed.Host, p.AllowedHosts) {
		return nil, nil // Provider declines hosts outside the allow-list
	}

	return p.auth, nil
}
