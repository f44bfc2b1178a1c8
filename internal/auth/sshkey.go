// Package auth provides SSH authentication providers.
package auth

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gossh "golang.org/x/crypto/ssh"
)

// defaultKeyNames are the private key filenames probed under ~/.ssh when no
// explicit key path is configured, in preference order.
var defaultKeyNames = []string{"id_ed25519", "id_rsa", "id_ecdsa"}

// KeyProvider provides SSH authentication for git operations, backed by a
// private key file, raw key bytes, or the running SSH agent.
type KeyProvider struct {
	// PrivateKeyPath is the path to the SSH private key file.
	PrivateKeyPath string

	// PrivateKey contains the SSH private key as bytes.
	PrivateKey []byte

	// Passphrase for encrypted private keys.
	Passphrase string

	// Username for SSH authentication (defaults to "git").
	Username string

	// UseAgent enables SSH agent integration.
	UseAgent bool

	// HostKeyCallback for host key verification (optional).
	HostKeyCallback gossh.HostKeyCallback

	// AllowedHosts restricts authentication to specific host patterns.
	// If empty, authentication is allowed for all SSH URLs.
	AllowedHosts []string
}

// NewKeyProvider creates an SSH provider using a private key file.
func NewKeyProvider(keyPath, passphrase string) *KeyProvider {
	return &KeyProvider{
		PrivateKeyPath: keyPath,
		Passphrase:     passphrase,
		Username:       "git",
	}
}

// NewKeyBytesProvider creates an SSH provider using private key bytes.
func NewKeyBytesProvider(keyBytes []byte, passphrase string) *KeyProvider {
	return &KeyProvider{
		PrivateKey: keyBytes,
		Passphrase: passphrase,
		Username:   "git",
	}
}

// NewAgentProvider creates an SSH provider that uses the SSH agent.
func NewAgentProvider() *KeyProvider {
	return &KeyProvider{
		UseAgent: true,
		Username: "git",
	}
}

// NewDefaultKeyProvider creates an SSH provider that discovers a private key
// under the user's ~/.ssh directory, probing id_ed25519, id_rsa and id_ecdsa
// in that order. Resolution fails at Method time when none exists.
func NewDefaultKeyProvider(passphrase string) *KeyProvider {
	for _, name := range defaultKeyNames {
		candidate := filepath.Join(xdg.Home, ".ssh", name)
		if _, err := os.Stat(candidate); err == nil {
			return NewKeyProvider(candidate, passphrase)
		}
	}

	// Keep the first candidate path so Method reports a useful error.
	return NewKeyProvider(filepath.Join(xdg.Home, ".ssh", defaultKeyNames[0]), passphrase)
}

// WithUsername sets the SSH username (default is "git").
func (p *KeyProvider) WithUsername(username string) *KeyProvider {
	p.Username = username
	return p
}

// WithHostKeyCallback sets the host key verification callback.
func (p *KeyProvider) WithHostKeyCallback(callback gossh.HostKeyCallback) *KeyProvider {
	p.HostKeyCallback = callback
	return p
}

// WithAllowedHosts sets the allowed hosts for this provider.
func (p *KeyProvider) WithAllowedHosts(hosts ...string) *KeyProvider {
	p.AllowedHosts = hosts
	return p
}

// Method returns the authentication method for the given remote URL.
// Returns nil if the URL host doesn't match the allowed patterns.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *KeyProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	host, scheme, err := SplitSSHURL(remoteURL)
	if err != nil {
		return nil, err
	}

	if !sshScheme(scheme) {
		return nil, fmt.Errorf("SSH auth provider only supports SSH URLs, got %q", scheme)
	}

	if len(p.AllowedHosts) > 0 && host != "" && !hostAllowed(stripPort(host), p.AllowedHosts) {
		return nil, nil // Provider declines hosts outside the allow-list
	}

	switch {
	case p.UseAgent:
		return p.agentAuth()
	case p.PrivateKeyPath != "":
		return p.fileAuth()
	case len(p.PrivateKey) > 0:
		return p.bytesAuth()
	default:
		return nil, fmt.Errorf("no SSH credentials configured")
	}
}

// SplitSSHURL extracts the host and scheme from an SSH-shaped remote URL,
// handling the git@host:path shorthand as scheme "ssh".
func SplitSSHURL(remoteURL string) (host, scheme string, err error) {
	if strings.HasPrefix(remoteURL, "git@") {
		rest := strings.TrimPrefix(remoteURL, "git@")
		idx := strings.Index(rest, ":")
		if idx <= 0 {
			return "", "", fmt.Errorf("invalid SSH URL: %s", remoteURL)
		}
		return rest[:idx], "ssh", nil
	}

	parsed, err := url.Parse(remoteURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	return parsed.Host, parsed.Scheme, nil
}

func sshScheme(s string) bool {
	return s == "ssh" || s == "git+ssh"
}

func stripPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}

//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *KeyProvider) agentAuth() (transport.AuthMethod, error) {
	a, err := ssh.NewSSHAgentAuth(p.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH agent auth: %w", err)
	}
	if p.HostKeyCallback != nil {
		a.HostKeyCallback = p.HostKeyCallback
	}
	return a, nil
}

//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *KeyProvider) fileAuth() (transport.AuthMethod, error) {
	if _, err := os.Stat(p.PrivateKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("SSH private key file does not exist: %s", p.PrivateKeyPath)
	}
	a, err := ssh.NewPublicKeysFromFile(p.Username, p.PrivateKeyPath, p.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key from file: %w", err)
	}
	if p.HostKeyCallback != nil {
		a.HostKeyCallback = p.HostKeyCallback
	}
	return a, nil
}

//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *KeyProvider) bytesAuth() (transport.AuthMethod, error) {
	a, err := ssh.NewPublicKeys(p.Username, p.PrivateKey, p.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key from bytes: %w", err)
	}
	if p.HostKeyCallback != nil {
		a.HostKeyCallback = p.HostKeyCallback
	}
	return a, nil
}
