// Package merge combines authoritative backend project records with
// legacy projects synthesized from historical report artifacts into one
// deduplicated, locally-annotatable list. The hard requirement is that an
// entity described by two independent keys — an opaque id and a report
// path — never appears twice, and that local archival annotations survive
// re-merges.
package merge

import (
	"sort"
	"time"

	"github.com/joescharf/rd/internal/models"
)

// archiveOverride is the locally-held annotation that flows forward
// across merge passes. Only archival state qualifies; no other field of a
// prior record may overwrite fresh input.
type archiveOverride struct {
	archivedAt *time.Time
}

// Merge produces the deduplicated project list from backend records,
// legacy synthesized records, and the previous in-memory list. It is pure
// and deterministic: the same inputs always yield the same output, in the
// same order.
func Merge(remote, legacy, prior []models.ProjectRecord) []models.ProjectRecord {
	// Snapshot prior archival overrides before anything else so later
	// passes cannot feed back into this one. Keyed by id with a
	// secondary index by path, because a record may reappear under
	// either key.
	overridesByID := map[string]archiveOverride{}
	overridesByPath := map[string]archiveOverride{}
	for _, p := range prior {
		if !p.Archived {
			continue
		}
		o := archiveOverride{archivedAt: p.ArchivedAt}
		overridesByID[p.ID] = o
		if p.ReportPath != "" {
			overridesByPath[p.ReportPath] = o
		}
	}

	// Concatenate remote first (so it wins every first-occurrence
	// dedupe), then legacy, then prior records not re-supplied in this
	// pass — a transient fetch failure must not evict known projects.
	supplied := map[string]bool{}
	combined := make([]models.ProjectRecord, 0, len(remote)+len(legacy)+len(prior))
	for _, p := range remote {
		supplied[p.ID] = true
		combined = append(combined, p)
	}
	for _, p := range legacy {
		supplied[p.ID] = true
		combined = append(combined, p)
	}
	for _, p := range prior {
		if !supplied[p.ID] {
			combined = append(combined, p)
		}
	}

	// Fold archival annotations forward.
	for i := range combined {
		o, ok := overridesByID[combined[i].ID]
		if !ok && combined[i].ReportPath != "" {
			o, ok = overridesByPath[combined[i].ReportPath]
		}
		if ok {
			combined[i].Archived = true
			combined[i].ArchivedAt = o.archivedAt
		}
	}

	// Dedupe by id, keeping first occurrence.
	seenID := map[string]bool{}
	deduped := combined[:0]
	for _, p := range combined {
		if seenID[p.ID] {
			continue
		}
		seenID[p.ID] = true
		deduped = append(deduped, p)
	}

	// Second pass: dedupe by non-empty report path, so the same artifact
	// surfaced as both a backend record and a legacy record appears
	// once. Remote records precede legacy ones, so first occurrence
	// gives remote the win on a path collision.
	seenPath := map[string]bool{}
	final := make([]models.ProjectRecord, 0, len(deduped))
	for _, p := range deduped {
		if p.ReportPath != "" {
			if seenPath[p.ReportPath] {
				continue
			}
			seenPath[p.ReportPath] = true
		}
		final = append(final, p)
	}

	sort.SliceStable(final, func(i, j int) bool {
		if !final[i].CreatedAt.Equal(final[j].CreatedAt) {
			return final[i].CreatedAt.After(final[j].CreatedAt)
		}
		return final[i].ID < final[j].ID
	})
	return final
}
