// Package synckit provides working-tree change classification.
// This file computes the change kind for each path in a snapshot diff,
// including rename and copy detection with deterministic tie-breaks.
package synckit

import (
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ChangeKind is the type of change a path underwent between two snapshots.
type ChangeKind int8

const (
	// ChangeNew marks a path present only in the new snapshot.
	ChangeNew ChangeKind = iota

	// ChangeModified marks a path present in both snapshots with differing content.
	ChangeModified

	// ChangeDeleted marks a path present only in the old snapshot.
	ChangeDeleted

	// ChangeRenamed marks a new path whose content matches a deleted path.
	ChangeRenamed

	// ChangeCopied marks a new path whose content matches a path that still
	// exists in the new snapshot.
	ChangeCopied
)

// String returns a human-readable string representation of the ChangeKind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeNew:
		return "new"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	case ChangeRenamed:
		return "renamed"
	case ChangeCopied:
		return "copied"
	default:
		return "unknown"
	}
}

// ChangeRecord describes the classified change for one path.
// Exactly one kind is assigned per path per snapshot comparison.
type ChangeRecord struct {
	// Path is the path in the new snapshot (or the old one for deletions).
	Path string

	// Kind is the classified change type.
	Kind ChangeKind

	// PreviousPath is the source path, set iff Kind is Renamed or Copied.
	PreviousPath string
}

// SnapshotPair is one raw path pair from the engine's snapshot diff.
// OldPath is empty for paths present only in the new snapshot; NewPath is
// empty for paths present only in the old snapshot.
type SnapshotPair struct {
	OldPath string
	NewPath string
	OldHash string
	NewHash string
}

// SimilarityFunc computes content similarity in [0, 1] between an old-side
// and a new-side path. Implementations typically close over the engine's
// content lookup.
type SimilarityFunc func(oldPath, newPath string) float64

// Classifier computes ChangeRecords from snapshot diffs.
type Classifier struct {
	// Threshold is the minimum similarity for rename/copy detection.
	// Defaults to DefaultSimilarityThreshold when zero.
	Threshold float64

	// Similarity scores candidate rename/copy sources. When nil, only
	// exact hash matches are considered.
	Similarity SimilarityFunc

	dmp *diffmatchpatch.DiffMatchPatch
}

// NewClassifier creates a Classifier with the given similarity threshold
// and scoring function.
func NewClassifier(threshold float64, similarity SimilarityFunc) *Classifier {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	return &Classifier{
		Threshold:  threshold,
		Similarity: similarity,
		dmp:        diffmatchpatch.New(),
	}
}

// renameCandidate is a potential rename/copy source for an added path.
type renameCandidate struct {
	source     string
	similarity float64
	distance   int  // path-name edit distance, for tie-breaks
	surviving  bool // source still exists in the new snapshot (copy, not rename)
}

// Classify computes the change kind for every path in the diff. The result
// ordering and kinds are deterministic for a given input set: all candidate
// scans run over explicitly sorted slices, never map iteration order.
//
// A path present only in the new snapshot classifies as New unless its
// content matches an old-snapshot path above the similarity threshold; then
// it is Renamed (source gone from the new snapshot) or Copied (source still
// present). Tie-breaks between equally similar sources: shortest path-name
// edit distance, then lexical order.
func (c *Classifier) Classify(pairs []SnapshotPair) []ChangeRecord {
	added, removed, modified, surviving := splitPairs(pairs)

	records := make([]ChangeRecord, 0, len(pairs))
	consumed := make(map[string]bool, len(removed))

	for _, add := range added {
		best, ok := c.bestSource(add, removed, surviving, consumed)
		if !ok {
			records = append(records, ChangeRecord{Path: add.NewPath, Kind: ChangeNew})
			continue
		}

		if best.surviving {
			records = append(records, ChangeRecord{
				Path:         add.NewPath,
				Kind:         ChangeCopied,
				PreviousPath: best.source,
			})
		} else {
			consumed[best.source] = true
			records = append(records, ChangeRecord{
				Path:         add.NewPath,
				Kind:         ChangeRenamed,
				PreviousPath: best.source,
			})
		}
	}

	for _, mod := range modified {
		records = append(records, ChangeRecord{Path: mod.NewPath, Kind: ChangeModified})
	}

	for _, rem := range removed {
		if !consumed[rem.OldPath] {
			records = append(records, ChangeRecord{Path: rem.OldPath, Kind: ChangeDeleted})
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })

	return records
}

// splitPairs partitions the diff into additions, removals, content
// modifications, and surviving both-side pairs (including unchanged ones,
// which still qualify as copy sources), each sorted by path for
// deterministic processing.
func splitPairs(pairs []SnapshotPair) (added, removed, modified, surviving []SnapshotPair) {
	for _, p := range pairs {
		switch {
		case p.OldPath == "" && p.NewPath != "":
			added = append(added, p)
		case p.NewPath == "" && p.OldPath != "":
			removed = append(removed, p)
		case p.OldPath != "" && p.NewPath != "":
			surviving = append(surviving, p)
			if p.OldHash != p.NewHash {
				modified = append(modified, p)
			}
		}
	}

	sort.Slice(added, func(i, j int) bool { return added[i].NewPath < added[j].NewPath })
	sort.Slice(removed, func(i, j int) bool { return removed[i].OldPath < removed[j].OldPath })
	sort.Slice(modified, func(i, j int) bool { return modified[i].NewPath < modified[j].NewPath })
	sort.Slice(surviving, func(i, j int) bool { return surviving[i].NewPath < surviving[j].NewPath })

	return added, removed, modified, surviving
}

// bestSource finds the best rename/copy source for an added path.
// Removed paths not yet consumed by an earlier rename are rename sources;
// old-snapshot paths that survive into the new snapshot are copy sources.
func (c *Classifier) bestSource(
	add SnapshotPair,
	removed, surviving []SnapshotPair,
	consumed map[string]bool,
) (renameCandidate, bool) {
	var candidates []renameCandidate

	for _, rem := range removed {
		if consumed[rem.OldPath] {
			continue
		}
		if sim, ok := c.score(add, rem); ok {
			candidates = append(candidates, renameCandidate{
				source:     rem.OldPath,
				similarity: sim,
				distance:   c.pathDistance(rem.OldPath, add.NewPath),
			})
		}
	}

	// Surviving sources only qualify on an exact content match: a path that
	// still exists with different content is just an edit, not a copy origin.
	for _, sur := range surviving {
		if add.NewHash != "" && sur.OldHash == add.NewHash {
			candidates = append(candidates, renameCandidate{
				source:     sur.OldPath,
				similarity: 1.0,
				distance:   c.pathDistance(sur.OldPath, add.NewPath),
				surviving:  true,
			})
		}
	}

	if len(candidates) == 0 {
		return renameCandidate{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.similarity != b.similarity {
			return a.similarity > b.similarity
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.source < b.source
	})

	return candidates[0], true
}

// score computes the similarity between an added path and a removed one.
// An exact hash match short-circuits at 1.0; otherwise the configured
// similarity function decides, gated by the threshold.
func (c *Classifier) score(add, rem SnapshotPair) (float64, bool) {
	if add.NewHash != "" && add.NewHash == rem.OldHash {
		return 1.0, true
	}

	if c.Similarity == nil {
		return 0, false
	}

	sim := c.Similarity(rem.OldPath, add.NewPath)
	if sim >= c.Threshold {
		return sim, true
	}

	return 0, false
}

// pathDistance is the edit distance between two path names.
func (c *Classifier) pathDistance(a, b string) int {
	diffs := c.dmp.DiffMain(a, b, false)
	return c.dmp.DiffLevenshtein(diffs)
}
