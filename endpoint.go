// Package synckit provides the remote endpoint model.
// This file contains URL protocol detection and endpoint construction.
package synckit

import (
	"net/url"
	"strings"
)

// Protocol identifies the transfer protocol of a remote endpoint.
type Protocol int8

const (
	// ProtocolHTTP covers http:// and https:// remotes.
	ProtocolHTTP Protocol = iota

	// ProtocolSSH covers ssh:// remotes and git@host:path shorthand.
	ProtocolSSH
)

// String returns a human-readable string representation of the Protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolSSH:
		return "ssh"
	default:
		return "unknown"
	}
}

// RemoteEndpoint describes a remote repository for one sync operation.
// The protocol is derived deterministically from the URL shape and the
// endpoint is never mutated after construction.
type RemoteEndpoint struct {
	// URL is the remote repository URL.
	URL string

	// Protocol is derived from the URL scheme or git@ shorthand.
	Protocol Protocol

	// DefaultBranch is the branch to sync when the caller does not name one.
	DefaultBranch string
}

// ParseEndpoint constructs a RemoteEndpoint from a raw remote URL.
// The protocol is chosen by the URL shape: ssh:// and git@host:path map to
// ProtocolSSH, http:// and https:// map to ProtocolHTTP. A URL matching
// neither predicate fails with ErrInvalidEndpoint before any network attempt.
func ParseEndpoint(rawURL, defaultBranch string) (RemoteEndpoint, error) {
	if rawURL == "" {
		return RemoteEndpoint{}, WrapError(ErrInvalidEndpoint, "remote URL cannot be empty")
	}

	if defaultBranch == "" {
		defaultBranch = DefaultBranch
	}

	switch {
	case IsSSHURL(rawURL):
		return RemoteEndpoint{URL: rawURL, Protocol: ProtocolSSH, DefaultBranch: defaultBranch}, nil
	case IsHTTPURL(rawURL):
		return RemoteEndpoint{URL: rawURL, Protocol: ProtocolHTTP, DefaultBranch: defaultBranch}, nil
	default:
		return RemoteEndpoint{}, WrapErrorf(ErrInvalidEndpoint, "unsupported URL %q", rawURL)
	}
}

// IsSSHURL reports whether rawURL is SSH-shaped: an ssh:// (or git+ssh://)
// scheme, or the git@host:path scp-style shorthand.
func IsSSHURL(rawURL string) bool {
	if strings.HasPrefix(rawURL, "git@") && strings.Contains(rawURL, ":") {
		return true
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	switch parsed.Scheme {
	case "ssh", "git+ssh":
		return parsed.Host != ""
	default:
		return false
	}
}

// IsHTTPURL reports whether rawURL uses the http or https scheme.
func IsHTTPURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	switch parsed.Scheme {
	case "http", "https":
		return parsed.Host != ""
	default:
		return false
	}
}

// Host extracts the host portion of the endpoint URL.
// For git@host:path shorthand the segment between "@" and ":" is returned.
func (e RemoteEndpoint) Host() string {
	if strings.HasPrefix(e.URL, "git@") {
		rest := strings.TrimPrefix(e.URL, "git@")
		if idx := strings.Index(rest, ":"); idx > 0 {
			return rest[:idx]
		}
		return rest
	}

	parsed, err := url.Parse(e.URL)
	if err != nil {
		return ""
	}
	return parsed.Host
}
