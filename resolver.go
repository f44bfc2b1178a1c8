// Package synckit provides merge conflict resolution.
// This file contains the per-attempt state machine that detects conflicting
// paths, auto-resolves non-overlapping hunks, and surfaces the rest.
package synckit

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"
)

// Hunk is a contiguous block of changed lines within one side of a conflict,
// addressed in base-file line coordinates. Start and End are 1-based and
// inclusive; a pure insertion before line N is the empty range [N, N-1].
type Hunk struct {
	Start int
	End   int

	// Lines is the side's replacement content for the range.
	Lines []string
}

// overlaps reports whether two hunks touch intersecting base line ranges.
func (h Hunk) overlaps(other Hunk) bool {
	return h.Start <= other.End && other.Start <= h.End
}

// ConflictEntry is one conflicting path reported by the merge primitive,
// with the competing hunks from each side.
type ConflictEntry struct {
	Path string

	// OursHunks and TheirsHunks are each ordered by base line.
	OursHunks   []Hunk
	TheirsHunks []Hunk

	// Resolved is set by auto-resolution when the hunks were disjoint and
	// MergedLines was synthesized.
	Resolved bool

	// MergedLines is the synthesized content, populated iff Resolved.
	MergedLines []string
}

// NonConflicting reports whether the entry's ours/theirs hunks occupy
// disjoint line ranges and can therefore be resolved automatically.
func (e *ConflictEntry) NonConflicting() bool {
	for _, ours := range e.OursHunks {
		for _, theirs := range e.TheirsHunks {
			if ours.overlaps(theirs) {
				return false
			}
		}
	}
	return true
}

// synthesize builds the merged content for a non-conflicting entry by
// concatenating both sides' hunks in base line order. Ties between an ours
// and a theirs hunk at the same position keep ours first for determinism.
func (e *ConflictEntry) synthesize() []string {
	type sided struct {
		hunk Hunk
		ours bool
	}

	all := make([]sided, 0, len(e.OursHunks)+len(e.TheirsHunks))
	for _, h := range e.OursHunks {
		all = append(all, sided{hunk: h, ours: true})
	}
	for _, h := range e.TheirsHunks {
		all = append(all, sided{hunk: h, ours: false})
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.hunk.Start != b.hunk.Start {
			return a.hunk.Start < b.hunk.Start
		}
		if a.ours != b.ours {
			return a.ours
		}
		return a.hunk.End < b.hunk.End
	})

	var merged []string
	for _, s := range all {
		merged = append(merged, s.hunk.Lines...)
	}
	return merged
}

// AttemptOutcome is the terminal result of one merge attempt.
type AttemptOutcome int8

const (
	// OutcomeClean means the merge completed with no unresolved conflicts.
	OutcomeClean AttemptOutcome = iota

	// OutcomeConflictsRemain means manual resolution is required. This is a
	// normal terminal outcome, not an error.
	OutcomeConflictsRemain

	// OutcomeAborted means the attempt was cancelled or the merge primitive
	// failed before producing a result.
	OutcomeAborted
)

// String returns a human-readable string representation of the outcome.
func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeConflictsRemain:
		return "conflicts-remain"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MergeAttempt records one pass through the merge primitive.
type MergeAttempt struct {
	// Number is 1-based and never exceeds MaxMergeConflictRetries.
	Number int

	// Conflicts holds every conflict entry the attempt saw, including the
	// ones auto-resolution handled (their Resolved flag is set).
	Conflicts []ConflictEntry

	// Outcome is the attempt's terminal result.
	Outcome AttemptOutcome
}

// Unresolved returns the conflict entries still requiring manual resolution.
func (a *MergeAttempt) Unresolved() []ConflictEntry {
	var out []ConflictEntry
	for _, c := range a.Conflicts {
		if !c.Resolved {
			out = append(out, c)
		}
	}
	return out
}

// ResolverState is the resolver's position in the per-attempt state machine.
type ResolverState int8

const (
	// StateIdle is the initial state before any merge attempt.
	StateIdle ResolverState = iota

	// StateMergeInProgress means the merge primitive is running.
	StateMergeInProgress

	// StateConflictsDetected means the primitive reported conflicting paths.
	StateConflictsDetected

	// StateAutoResolving means non-overlapping entries are being resolved.
	StateAutoResolving

	// StateClean is the terminal success state.
	StateClean

	// StateManualResolutionRequired is the terminal state for an attempt
	// that left unresolved conflicts.
	StateManualResolutionRequired
)

// String returns a human-readable string representation of the state.
func (s ResolverState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMergeInProgress:
		return "merge-in-progress"
	case StateConflictsDetected:
		return "conflicts-detected"
	case StateAutoResolving:
		return "auto-resolving"
	case StateClean:
		return "clean"
	case StateManualResolutionRequired:
		return "manual-resolution-required"
	default:
		return "unknown"
	}
}

// Resolver drives the post-merge conflict workflow for one sync operation.
// It never loops on its own: deciding whether a further attempt is
// meaningful is the orchestrator's policy, not the resolver's.
type Resolver struct {
	engine      Engine
	autoResolve bool
	logger      *zap.Logger
	state       ResolverState
}

// NewResolver creates a Resolver over the given engine. autoResolve
// corresponds to the AutoResolveNonConflicting configuration flag.
func NewResolver(engine Engine, autoResolve bool, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		engine:      engine,
		autoResolve: autoResolve,
		logger:      logger,
		state:       StateIdle,
	}
}

// State returns the resolver's current state.
func (r *Resolver) State() ResolverState {
	return r.state
}

// Attempt runs one merge attempt: invoke the three-way merge primitive,
// auto-resolve non-overlapping conflict entries when enabled, and re-run
// the primitive to confirm a clean result when everything resolved.
// number is the 1-based attempt counter maintained by the caller.
func (r *Resolver) Attempt(ctx context.Context, number int, base, ours, theirs string) (*MergeAttempt, error) {
	attempt := &MergeAttempt{Number: number}

	// Each attempt is its own cycle: resolutions applied during a previous
	// attempt must not leak into this one.
	r.engine.BeginMerge()

	r.state = StateMergeInProgress

	result, err := r.engine.ThreeWayMerge(ctx, base, ours, theirs)
	if err != nil {
		r.state = StateIdle
		attempt.Outcome = OutcomeAborted
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return attempt, err
		}
		return attempt, WrapError(err, "merge primitive failed")
	}

	if result.Clean {
		r.state = StateClean
		attempt.Outcome = OutcomeClean
		return attempt, nil
	}

	r.state = StateConflictsDetected
	attempt.Conflicts = result.Conflicts

	if !r.autoResolve {
		r.state = StateManualResolutionRequired
		attempt.Outcome = OutcomeConflictsRemain
		return attempt, nil
	}

	r.state = StateAutoResolving

	allResolved := true
	for i := range attempt.Conflicts {
		entry := &attempt.Conflicts[i]
		if !entry.NonConflicting() {
			allResolved = false
			continue
		}

		entry.MergedLines = entry.synthesize()
		if err := r.engine.ApplyResolution(ctx, entry.Path, entry.MergedLines); err != nil {
			r.state = StateIdle
			attempt.Outcome = OutcomeAborted
			return attempt, WrapErrorf(err, "failed to apply resolution for %q", entry.Path)
		}
		entry.Resolved = true

		r.logger.Debug("auto-resolved conflict",
			zap.String("path", entry.Path),
			zap.Int("attempt", number))
	}

	if !allResolved {
		r.state = StateManualResolutionRequired
		attempt.Outcome = OutcomeConflictsRemain
		return attempt, nil
	}

	// Everything resolved: the primitive must now confirm a clean merge.
	confirm, err := r.engine.ThreeWayMerge(ctx, base, ours, theirs)
	if err != nil {
		r.state = StateIdle
		attempt.Outcome = OutcomeAborted
		return attempt, WrapError(err, "merge confirmation failed")
	}

	if !confirm.Clean {
		r.state = StateManualResolutionRequired
		attempt.Outcome = OutcomeConflictsRemain
		attempt.Conflicts = append(attempt.Conflicts, confirm.Conflicts...)
		return attempt, nil
	}

	r.state = StateClean
	attempt.Outcome = OutcomeClean
	return attempt, nil
}
