package synckit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	t.Run("preserves sentinel identity", func(t *testing.T) {
		wrapped := WrapError(ErrNotFastForward, "push rejected")

		assert.True(t, errors.Is(wrapped, ErrNotFastForward))
		assert.Contains(t, wrapped.Error(), "push rejected")
	})

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, WrapError(nil, "context"))
	})
}

func TestWrapErrorf(t *testing.T) {
	t.Run("formats context and preserves identity", func(t *testing.T) {
		wrapped := WrapErrorf(ErrResolveFailed, "branch %q not found", "main")

		assert.True(t, errors.Is(wrapped, ErrResolveFailed))
		assert.Contains(t, wrapped.Error(), `branch "main" not found`)
	})

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, WrapErrorf(nil, "context %d", 1))
	})

	t.Run("double wrapping still matches", func(t *testing.T) {
		inner := WrapError(ErrAuthFailed, "remote rejected credentials")
		outer := WrapErrorf(inner, "sync of %q failed", "origin")

		assert.True(t, errors.Is(outer, ErrAuthFailed))
	})
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"auth required", ErrAuthRequired, true},
		{"auth failed", ErrAuthFailed, true},
		{"wrapped auth failure", WrapError(ErrAuthFailed, "remote said no"), true},
		{"network error", ErrNetwork, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsAuthError(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"network error", ErrNetwork, true},
		{"wrapped network error", WrapError(ErrNetwork, "connection reset"), true},
		{"auth error", ErrAuthRequired, false},
		{"non-fast-forward", ErrNotFastForward, false},
		{"merge conflict", ErrMergeConflict, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}
