package synckit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHunkOverlaps(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Hunk
		expected bool
	}{
		{
			name:     "disjoint ranges",
			a:        Hunk{Start: 1, End: 3},
			b:        Hunk{Start: 4, End: 6},
			expected: false,
		},
		{
			name:     "touching ranges overlap",
			a:        Hunk{Start: 1, End: 3},
			b:        Hunk{Start: 3, End: 5},
			expected: true,
		},
		{
			name:     "contained range",
			a:        Hunk{Start: 2, End: 8},
			b:        Hunk{Start: 4, End: 5},
			expected: true,
		},
		{
			name:     "insertion inside modified range",
			a:        Hunk{Start: 5, End: 4}, // insertion before line 5
			b:        Hunk{Start: 1, End: 10},
			expected: true,
		},
		{
			name:     "insertion after modified range",
			a:        Hunk{Start: 11, End: 10},
			b:        Hunk{Start: 1, End: 10},
			expected: false,
		},
		{
			name:     "two insertions at different points",
			a:        Hunk{Start: 3, End: 2},
			b:        Hunk{Start: 7, End: 6},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.overlaps(tt.b))
			assert.Equal(t, tt.expected, tt.b.overlaps(tt.a), "overlap must be symmetric")
		})
	}
}

func TestConflictEntryNonConflicting(t *testing.T) {
	t.Run("disjoint hunks", func(t *testing.T) {
		entry := ConflictEntry{
			OursHunks:   []Hunk{{Start: 1, End: 2}},
			TheirsHunks: []Hunk{{Start: 5, End: 6}},
		}
		assert.True(t, entry.NonConflicting())
	})

	t.Run("overlapping hunks", func(t *testing.T) {
		entry := ConflictEntry{
			OursHunks:   []Hunk{{Start: 1, End: 5}},
			TheirsHunks: []Hunk{{Start: 4, End: 6}},
		}
		assert.False(t, entry.NonConflicting())
	})

	t.Run("any overlapping pair conflicts", func(t *testing.T) {
		entry := ConflictEntry{
			OursHunks:   []Hunk{{Start: 1, End: 2}, {Start: 10, End: 12}},
			TheirsHunks: []Hunk{{Start: 5, End: 6}, {Start: 11, End: 11}},
		}
		assert.False(t, entry.NonConflicting())
	})
}

func TestConflictEntrySynthesize(t *testing.T) {
	t.Run("ordered by start position", func(t *testing.T) {
		entry := ConflictEntry{
			OursHunks:   []Hunk{{Start: 5, End: 6, Lines: []string{"ours-late"}}},
			TheirsHunks: []Hunk{{Start: 1, End: 2, Lines: []string{"theirs-early"}}},
		}

		assert.Equal(t, []string{"theirs-early", "ours-late"}, entry.synthesize())
	})

	t.Run("equal start puts ours first", func(t *testing.T) {
		entry := ConflictEntry{
			OursHunks:   []Hunk{{Start: 3, End: 4, Lines: []string{"ours"}}},
			TheirsHunks: []Hunk{{Start: 3, End: 2, Lines: []string{"theirs"}}},
		}

		assert.Equal(t, []string{"ours", "theirs"}, entry.synthesize())
	})
}

func TestResolverAttempt_CleanMerge(t *testing.T) {
	engine := newFakeEngine()
	resolver := NewResolver(engine, true, nil)

	attempt, err := resolver.Attempt(context.Background(), 1, "base", "main", "origin/main")
	require.NoError(t, err)

	assert.Equal(t, OutcomeClean, attempt.Outcome)
	assert.Equal(t, 1, attempt.Number)
	assert.Empty(t, attempt.Conflicts)
	assert.Equal(t, StateClean, resolver.State())
	assert.Empty(t, engine.applied, "no resolutions needed for a clean merge")
}

func TestResolverAttempt_AutoResolvesDisjointConflicts(t *testing.T) {
	conflicted := &MergeResult{
		Conflicts: []ConflictEntry{
			{
				Path:        "notes.txt",
				OursHunks:   []Hunk{{Start: 1, End: 2, Lines: []string{"local a", "local b"}}},
				TheirsHunks: []Hunk{{Start: 8, End: 8, Lines: []string{"remote x"}}},
			},
		},
	}

	engine := newFakeEngine()
	engine.mergeResults = []*MergeResult{conflicted, {Clean: true}}
	resolver := NewResolver(engine, true, nil)

	attempt, err := resolver.Attempt(context.Background(), 1, "base", "main", "origin/main")
	require.NoError(t, err)

	assert.Equal(t, OutcomeClean, attempt.Outcome)
	assert.Equal(t, StateClean, resolver.State())

	require.Len(t, attempt.Conflicts, 1)
	assert.True(t, attempt.Conflicts[0].Resolved)
	assert.Equal(t, []string{"local a", "local b", "remote x"}, attempt.Conflicts[0].MergedLines)

	assert.Equal(t, []string{"local a", "local b", "remote x"}, engine.applied["notes.txt"])
	assert.Equal(t, 2, engine.mergeCalls, "resolution must be confirmed by a second merge run")
}

func TestResolverAttempt_OverlappingConflictsNeedManualResolution(t *testing.T) {
	conflicted := &MergeResult{
		Conflicts: []ConflictEntry{
			{
				Path:        "main.go",
				OursHunks:   []Hunk{{Start: 3, End: 7, Lines: []string{"local"}}},
				TheirsHunks: []Hunk{{Start: 5, End: 9, Lines: []string{"remote"}}},
			},
		},
	}

	engine := newFakeEngine()
	engine.mergeResults = []*MergeResult{conflicted}
	resolver := NewResolver(engine, true, nil)

	attempt, err := resolver.Attempt(context.Background(), 1, "base", "main", "origin/main")
	require.NoError(t, err)

	assert.Equal(t, OutcomeConflictsRemain, attempt.Outcome)
	assert.Equal(t, StateManualResolutionRequired, resolver.State())
	assert.Empty(t, engine.applied, "overlapping hunks must never be auto-resolved")

	unresolved := attempt.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, "main.go", unresolved[0].Path)
}

func TestResolverAttempt_MixedConflictsResolveOnlyDisjoint(t *testing.T) {
	conflicted := &MergeResult{
		Conflicts: []ConflictEntry{
			{
				Path:        "disjoint.txt",
				OursHunks:   []Hunk{{Start: 1, End: 1, Lines: []string{"a"}}},
				TheirsHunks: []Hunk{{Start: 9, End: 9, Lines: []string{"b"}}},
			},
			{
				Path:        "overlap.txt",
				OursHunks:   []Hunk{{Start: 2, End: 4, Lines: []string{"c"}}},
				TheirsHunks: []Hunk{{Start: 3, End: 5, Lines: []string{"d"}}},
			},
		},
	}

	engine := newFakeEngine()
	engine.mergeResults = []*MergeResult{conflicted}
	resolver := NewResolver(engine, true, nil)

	attempt, err := resolver.Attempt(context.Background(), 2, "base", "main", "origin/main")
	require.NoError(t, err)

	assert.Equal(t, OutcomeConflictsRemain, attempt.Outcome)
	assert.Contains(t, engine.applied, "disjoint.txt")
	assert.NotContains(t, engine.applied, "overlap.txt")

	unresolved := attempt.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, "overlap.txt", unresolved[0].Path)
}

func TestResolverAttempt_EachAttemptIsAFreshCycle(t *testing.T) {
	conflicted := &MergeResult{
		Conflicts: []ConflictEntry{
			{
				Path:        "disjoint.txt",
				OursHunks:   []Hunk{{Start: 1, End: 1, Lines: []string{"a"}}},
				TheirsHunks: []Hunk{{Start: 9, End: 9, Lines: []string{"b"}}},
			},
			{
				Path:        "overlap.txt",
				OursHunks:   []Hunk{{Start: 2, End: 4, Lines: []string{"c"}}},
				TheirsHunks: []Hunk{{Start: 3, End: 5, Lines: []string{"d"}}},
			},
		},
	}

	engine := newFakeEngine()
	engine.mergeResults = []*MergeResult{conflicted, {Clean: true}}
	resolver := NewResolver(engine, true, nil)

	attempt, err := resolver.Attempt(context.Background(), 1, "base", "main", "origin/main")
	require.NoError(t, err)
	require.Equal(t, OutcomeConflictsRemain, attempt.Outcome)
	assert.Contains(t, engine.applied, "disjoint.txt")

	// The next attempt must tell the engine to discard the abandoned
	// attempt's resolutions before merging again.
	attempt, err = resolver.Attempt(context.Background(), 2, "base", "main", "origin/main")
	require.NoError(t, err)

	assert.Equal(t, OutcomeClean, attempt.Outcome)
	assert.Equal(t, 2, engine.beginCalls)
	assert.Empty(t, engine.applied, "resolutions from the first attempt do not carry over")
}

func TestResolverAttempt_AutoResolveDisabled(t *testing.T) {
	conflicted := &MergeResult{
		Conflicts: []ConflictEntry{
			{
				Path:        "notes.txt",
				OursHunks:   []Hunk{{Start: 1, End: 1, Lines: []string{"a"}}},
				TheirsHunks: []Hunk{{Start: 9, End: 9, Lines: []string{"b"}}},
			},
		},
	}

	engine := newFakeEngine()
	engine.mergeResults = []*MergeResult{conflicted}
	resolver := NewResolver(engine, false, nil)

	attempt, err := resolver.Attempt(context.Background(), 1, "base", "main", "origin/main")
	require.NoError(t, err)

	assert.Equal(t, OutcomeConflictsRemain, attempt.Outcome)
	assert.Equal(t, StateManualResolutionRequired, resolver.State())
	assert.Empty(t, engine.applied)
	assert.Equal(t, 1, engine.mergeCalls, "no confirmation run without auto-resolution")
}

func TestResolverAttempt_MergeFailureAborts(t *testing.T) {
	engine := newFakeEngine()
	engine.mergeErr = errors.New("object store corrupted")
	resolver := NewResolver(engine, true, nil)

	attempt, err := resolver.Attempt(context.Background(), 1, "base", "main", "origin/main")
	require.Error(t, err)

	assert.Equal(t, OutcomeAborted, attempt.Outcome)
	assert.Equal(t, StateIdle, resolver.State())
}

func TestResolverStateString(t *testing.T) {
	states := map[ResolverState]string{
		StateIdle:                     "idle",
		StateMergeInProgress:          "merge-in-progress",
		StateConflictsDetected:        "conflicts-detected",
		StateAutoResolving:            "auto-resolving",
		StateClean:                    "clean",
		StateManualResolutionRequired: "manual-resolution-required",
	}

	for state, expected := range states {
		assert.Equal(t, expected, state.String())
	}
}
