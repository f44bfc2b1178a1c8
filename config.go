// Package synckit provides the sync configuration surface.
// This file contains SyncConfig defaults, validation, and file loading.
package synckit

import (
	"errors"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const (
	// DefaultRemoteName is the default remote name used for operations.
	DefaultRemoteName = "origin"

	// DefaultBranch is the branch synced when the caller names none.
	DefaultBranch = "main"

	// DefaultFallbackBranch is tried when DefaultBranch does not exist
	// on the remote.
	DefaultFallbackBranch = "master"

	// DefaultMaxMergeConflictRetries bounds merge attempts per sync.
	DefaultMaxMergeConflictRetries = 3

	// DefaultSimilarityThreshold is the minimum content similarity for
	// rename/copy detection. Mirrors git's 50% rename detection default.
	DefaultSimilarityThreshold = 0.5

	// DefaultNetworkRetries is how many times a failed fetch/push step is
	// retried on a transient network error.
	DefaultNetworkRetries = 1

	// configDirName is the directory under the XDG config home that holds
	// the optional config file.
	configDirName = "synckit"
)

// SyncConfig is the read-only configuration surface for sync operations.
// Zero values are not meaningful defaults; start from DefaultSyncConfig.
type SyncConfig struct {
	// RemoteName names the remote tracking namespace (refs/remotes/<name>/*).
	RemoteName string `mapstructure:"remote_name"`

	// Branch is the branch to sync when the caller does not name one.
	Branch string `mapstructure:"branch"`

	// FallbackBranch is tried when Branch does not exist on the remote.
	// Only consulted for the configured default, never for an explicitly
	// requested branch. Empty disables the fallback.
	FallbackBranch string `mapstructure:"fallback_branch"`

	// MaxMergeConflictRetries bounds the number of merge attempts per sync.
	MaxMergeConflictRetries int `mapstructure:"max_merge_conflict_retries"`

	// AutoResolveNonConflicting enables automatic resolution of conflict
	// entries whose ours/theirs hunks touch disjoint line ranges.
	AutoResolveNonConflicting bool `mapstructure:"auto_resolve_non_conflicting"`

	// SimilarityThreshold is the minimum similarity in [0,1] for a new path
	// to be classified as a rename or copy of an old one.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`

	// NetworkRetries is the number of retries for a fetch/push step that
	// fails with a transient network error. The pipeline as a whole is
	// never silently re-run.
	NetworkRetries int `mapstructure:"network_retries"`
}

// DefaultSyncConfig returns the documented default configuration.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		RemoteName:                DefaultRemoteName,
		Branch:                    DefaultBranch,
		FallbackBranch:            DefaultFallbackBranch,
		MaxMergeConflictRetries:   DefaultMaxMergeConflictRetries,
		AutoResolveNonConflicting: true,
		SimilarityThreshold:       DefaultSimilarityThreshold,
		NetworkRetries:            DefaultNetworkRetries,
	}
}

// Validate checks that the SyncConfig is properly configured.
// It returns an error if required fields are missing or invalid.
func (c *SyncConfig) Validate() error {
	if c.RemoteName == "" {
		return WrapError(ErrInvalidRef, "remote name cannot be empty")
	}

	if c.Branch == "" {
		return WrapError(ErrInvalidRef, "branch cannot be empty")
	}

	if c.MaxMergeConflictRetries < 1 {
		return WrapError(ErrInvalidRef, "MaxMergeConflictRetries must be at least 1")
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return WrapError(ErrInvalidRef, "SimilarityThreshold must be within [0, 1]")
	}

	if c.NetworkRetries < 0 {
		return WrapError(ErrInvalidRef, "NetworkRetries cannot be negative")
	}

	return nil
}

// LoadConfig loads a SyncConfig from the given YAML file path, layered over
// the documented defaults. When path is empty, the default location
// ($XDG_CONFIG_HOME/synckit/config.yaml) is searched; a missing file there
// yields the defaults rather than an error.
func LoadConfig(path string) (SyncConfig, error) {
	cfg := DefaultSyncConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("remote_name", cfg.RemoteName)
	v.SetDefault("branch", cfg.Branch)
	v.SetDefault("fallback_branch", cfg.FallbackBranch)
	v.SetDefault("max_merge_conflict_retries", cfg.MaxMergeConflictRetries)
	v.SetDefault("auto_resolve_non_conflicting", cfg.AutoResolveNonConflicting)
	v.SetDefault("similarity_threshold", cfg.SimilarityThreshold)
	v.SetDefault("network_retries", cfg.NetworkRetries)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, WrapErrorf(err, "failed to read config file %q", path)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, configDirName))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return cfg, WrapError(err, "failed to read config file")
			}
			// No config file in the default location: defaults apply.
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, WrapError(err, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, WrapError(err, "invalid config")
	}

	return cfg, nil
}
