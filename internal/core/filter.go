package core

import (
	"sort"
	"strings"

	"github.com/noesislabs/noesis/internal/core/model"
)

// DefaultQualityFloor hides low-signal entries from listings unless the
// caller explicitly asks for them.
const DefaultQualityFloor = 40

// EntryFilter narrows a listing. Zero value means no filtering beyond the
// default quality floor.
type EntryFilter struct {
	Search         string
	MinQuality     float64
	Tags           []string
	SourceType     model.SourceType
	ShowLowQuality bool
}

// EntryPage is one page of a filtered listing.
type EntryPage struct {
	Entries       []model.KnowledgeEntry `json:"entries"`
	Total         int                    `json:"total"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"pageSize"`
	AvailableTags []string               `json:"availableTags"`
}

// FilterEntries applies the filter in memory and paginates. AvailableTags is
// computed over the filtered set so the tag picker only offers tags that
// still match.
func FilterEntries(entries []model.KnowledgeEntry, filter EntryFilter, page, pageSize int) EntryPage {
	filtered := make([]model.KnowledgeEntry, 0, len(entries))
	for _, e := range entries {
		if matchesFilter(e, filter) {
			filtered = append(filtered, e)
		}
	}

	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}

	result := EntryPage{
		Total:         len(filtered),
		Page:          page,
		PageSize:      pageSize,
		AvailableTags: collectTags(filtered),
		Entries:       []model.KnowledgeEntry{},
	}

	start := (page - 1) * pageSize
	if start < len(filtered) {
		end := start + pageSize
		if end > len(filtered) {
			end = len(filtered)
		}
		result.Entries = filtered[start:end]
	}
	return result
}

func matchesFilter(e model.KnowledgeEntry, f EntryFilter) bool {
	floor := f.MinQuality
	if floor == 0 && !f.ShowLowQuality {
		floor = DefaultQualityFloor
	}
	if e.Distilled.QualityScore < floor {
		return false
	}
	if f.SourceType != "" && e.SourceType != f.SourceType {
		return false
	}
	if len(f.Tags) > 0 && !hasAnyTag(e.Distilled.Tags, f.Tags) {
		return false
	}
	if f.Search != "" && !matchesSearch(e, f.Search) {
		return false
	}
	return true
}

func hasAnyTag(entryTags, wanted []string) bool {
	for _, want := range wanted {
		for _, tag := range entryTags {
			if strings.EqualFold(strings.TrimSpace(tag), strings.TrimSpace(want)) {
				return true
			}
		}
	}
	return false
}

// matchesSearch looks through author, core ideas, context and tags.
func matchesSearch(e model.KnowledgeEntry, search string) bool {
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(e.Author), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(e.Distilled.Context), needle) {
		return true
	}
	for _, idea := range e.Distilled.CoreIdeas {
		if strings.Contains(strings.ToLower(idea), needle) {
			return true
		}
	}
	for _, tag := range e.Distilled.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func collectTags(entries []model.KnowledgeEntry) []string {
	seen := make(map[string]string) // lowercase -> first-seen casing
	for _, e := range entries {
		for _, tag := range e.Distilled.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, ok := seen[key]; !ok {
				seen[key] = tag
			}
		}
	}
	tags := make([]string, 0, len(seen))
	for _, tag := range seen {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		return strings.ToLower(tags[i]) < strings.ToLower(tags[j])
	})
	return tags
}
