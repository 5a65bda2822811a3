// Package grouping partitions a user's entries into clusters of topically
// related content so contradiction search never compares entries with zero
// topical overlap, and so the per-group LLM cost stays bounded.
package grouping

import (
	"strings"

	"github.com/noesislabs/noesis/internal/core/model"
)

// GroupBySharedTags partitions entries into disjoint groups. Two entries
// land in the same group when they share at least one case-normalized tag,
// or when the substring fallback matches: one entry's tag appears inside the
// other's joined tag string, or contains the other's first tag. The fallback
// is a deliberately loose net for near-duplicate tags ("ML" vs "Machine
// Learning"); it can also over-group tags sharing a short prefix, which is an
// accepted precision/recall trade-off. Entries matching nobody are excluded
// from the result entirely.
func GroupBySharedTags(entries []model.KnowledgeEntry) [][]model.KnowledgeEntry {
	var groups [][]model.KnowledgeEntry
	assigned := make(map[string]bool, len(entries))

	normTags := make(map[string][]string, len(entries))
	for _, e := range entries {
		normTags[e.ID] = normalizeTags(e.Distilled.Tags)
	}

	for _, entry := range entries {
		if assigned[entry.ID] {
			continue
		}

		entryTags := normTags[entry.ID]
		var similar []model.KnowledgeEntry

		for _, other := range entries {
			if other.ID == entry.ID || assigned[other.ID] {
				continue
			}
			if tagsOverlap(entryTags, normTags[other.ID]) {
				similar = append(similar, other)
			}
		}

		if len(similar) == 0 {
			continue
		}

		group := append([]model.KnowledgeEntry{entry}, similar...)
		groups = append(groups, group)
		for _, e := range group {
			assigned[e.ID] = true
		}
	}

	return groups
}

// normalizeTags lowercases and dedupes, preserving input order so the
// substring fallback stays deterministic.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		norm := strings.ToLower(strings.TrimSpace(t))
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}

func tagsOverlap(a, b []string) bool {
	bSet := make(map[string]bool, len(b))
	for _, t := range b {
		bSet[t] = true
	}
	for _, tag := range a {
		if bSet[tag] {
			return true
		}
	}

	// Substring fallback. The first tag approximates the other entry's
	// dominant topic.
	joined := strings.Join(b, " ")
	var first string
	if len(b) > 0 {
		first = b[0]
	}
	for _, tag := range a {
		if strings.Contains(joined, tag) {
			return true
		}
		if first != "" && strings.Contains(tag, first) {
			return true
		}
	}
	return false
}
