// Package synckit provides the version-control synchronization core for a
// desktop source-control client.
//
// This package offers a clean facade over go-git, exposing the full sync
// pipeline (fetch, merge, conflict resolution, push) together with the
// building blocks it is assembled from: protocol-aware transports,
// credential providers, a change classifier with rename and copy detection,
// and a merge conflict resolver. All operations work with both on-disk and
// in-memory repositories through the project's native filesystem
// abstraction.
//
// # Design Principles
//
// The package follows these core principles:
//   - One shared transfer core - HTTP and SSH differ only in policy
//   - Testability by construction - in-memory FS, injectable engine and transports
//   - Security & performance - context timeouts, auth integration, object caching
//   - Go idioms - accepts interfaces, returns concrete types
//
// # Basic Usage
//
// Open a repository and synchronize it with its remote:
//
//	import (
//	    "context"
//	    billyfs "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
//	    "github.com/repoworks/synckit"
//	)
//
//	// Create filesystem (can be OS-backed or in-memory)
//	fs := billyfs.NewOSFS("/path/to/repo")
//
//	repo, err := synckit.Open(context.Background(), &synckit.Options{
//	    FS:          fs,
//	    Workdir:     ".",
//	    Credentials: synckit.NewTokenCredentials(token),
//	})
//
//	syncer, err := synckit.NewSyncer(repo, synckit.DefaultSyncConfig())
//
//	result, err := syncer.Sync(ctx, "https://example.com/org/repo.git", "")
//
// The returned SyncResult reports how far the pipeline progressed, the
// classified changes the sync brought in, and any conflicts left for manual
// resolution.
//
// # Credentials
//
// Credential providers resolve authentication material per endpoint:
//
//	// HTTP token auth
//	creds := synckit.NewTokenCredentials(token)
//
//	// SSH key auth; empty path probes the default key locations
//	creds := synckit.NewSSHKeyCredentials("", "")
//
//	// Try several providers in order
//	creds := synckit.NewCredentialChain(
//	    synckit.NewSSHAgentCredentials(),
//	    synckit.NewSSHKeyCredentials("", ""),
//	)
//
// A provider only serves endpoints of its own protocol; resolving a
// credential for a mismatched endpoint fails before any network attempt.
//
// # Classifying Changes
//
// The classifier turns raw path pairs into change records with rename and
// copy detection:
//
//	records, err := repo.ClassifyWorkingTree(ctx)
//	for _, rec := range records {
//	    fmt.Println(rec.Kind, rec.Path, rec.PreviousPath)
//	}
//
// # Error Handling
//
// Failures map onto sentinel errors (ErrAuthRequired, ErrNetwork,
// ErrMergeConflict, ...) that callers test with errors.Is. IsTransient
// reports whether retrying an operation could help; transient fetch and
// push failures are retried automatically within a sync.
package synckit
