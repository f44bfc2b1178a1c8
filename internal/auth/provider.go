// Package auth provides authentication providers for git transports.
// It adds URL scheme checks and host pattern matching on top of go-git's
// transport auth methods.
package auth

import (
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Provider resolves go-git authentication methods for remote URLs.
type Provider interface {
	// Method returns the appropriate transport.AuthMethod for the given
	// remote URL. Returns nil if no authentication is needed/available for
	// this URL. Returns an error if authentication setup fails.
	Method(remoteURL string) (transport.AuthMethod, error)
}
