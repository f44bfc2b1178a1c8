// Package auth provides a fallback chain over multiple providers.
package auth

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Chain tries providers in order until one yields an authentication method
// for a URL. A provider returning a nil method declines the URL and the
// next provider is consulted.
type Chain struct {
	providers []Provider

	// StopOnError aborts the chain on the first provider error instead of
	// falling through to the next provider.
	StopOnError bool
}

// NewChain creates a provider chain from the given providers.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Add appends a provider to the chain and returns the chain for chaining.
func (c *Chain) Add(p Provider) *Chain {
	c.providers = append(c.providers, p)
	return c
}

// Method returns the first authentication method resolved by the chain.
// When every provider declines, (nil, nil) is returned; when every provider
// fails, the last error is returned.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (c *Chain) Method(remoteURL string) (transport.AuthMethod, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("no authentication providers configured")
	}

	var lastErr error

	for i, p := range c.providers {
		method, err := p.Method(remoteURL)
		if err != nil {
			lastErr = fmt.Errorf("provider %d failed: %w", i, err)
			if c.StopOnError {
				return nil, lastErr
			}
			continue
		}

		if method != nil {
			return method, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}

	return nil, nil
}
