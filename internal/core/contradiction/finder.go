// Package contradiction finds, validates and annotates conflicting claims
// across a user's knowledge entries.
package contradiction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noesislabs/noesis/internal/core/common"
	"github.com/noesislabs/noesis/internal/core/grouping"
	"github.com/noesislabs/noesis/internal/core/model"
	"github.com/noesislabs/noesis/internal/llm"
	"github.com/noesislabs/noesis/internal/resilience"
)

// MaxGroupEntries bounds the prompt size: entries beyond the cap within a
// group are excluded from that round.
const MaxGroupEntries = 20

const defaultPromptTemplate = `Analyze the following knowledge entries that are related by topic (they share tags: %s).

IMPORTANT: Only identify contradictions between entries that are discussing the SAME or RELATED topics.
Do NOT flag contradictions between entries about completely different subjects (e.g., Reinforcement Learning vs Philosophy).

Focus on finding pairs where:
1. The entries discuss the same topic/domain
2. The core ideas or actionable advice fundamentally contradict each other
3. The contradiction is meaningful and not just different perspectives on unrelated topics

Entries:
%s

Return a JSON object with a list of contradictions. Only include contradictions that are meaningful within the same topic domain.`

var contradictionSchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"contradictions": {
			Type: llm.TypeArray,
			Items: &llm.Schema{
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"item1_id":    {Type: llm.TypeString},
					"item2_id":    {Type: llm.TypeString},
					"description": {Type: llm.TypeString},
				},
				Required: []string{"item1_id", "item2_id", "description"},
			},
		},
	},
	Required: []string{"contradictions"},
}

// compactEntry is the per-entry projection sent to the model.
type compactEntry struct {
	ID          string   `json:"id"`
	Tags        []string `json:"tags"`
	CoreIdeas   string   `json:"core_ideas"`
	Actionables string   `json:"actionables"`
	Context     string   `json:"context"`
}

type Finder struct {
	llm            llm.Client
	policy         resilience.Policy
	promptTemplate string // fmt template: shared tags, serialized entries
	logger         *zap.Logger
}

func NewFinder(client llm.Client, policy resilience.Policy, promptTemplate string, logger *zap.Logger) *Finder {
	if promptTemplate == "" {
		promptTemplate = defaultPromptTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{
		llm:            client,
		policy:         policy,
		promptTemplate: promptTemplate,
		logger:         logger,
	}
}

// FindResult carries all candidates gathered across groups plus how many
// groups were eligible and how many failed upstream.
type FindResult struct {
	Candidates   []model.Contradiction
	GroupsTotal  int
	GroupsFailed int
}

// Find partitions entries by topical similarity and queries the model once
// per group, sequentially. A failing group is logged and skipped; the last
// failure propagates only when every eligible group failed and nothing was
// found. Partial success always wins over partial failure.
func (f *Finder) Find(ctx context.Context, entries []model.KnowledgeEntry) (FindResult, error) {
	var result FindResult
	if len(entries) < 2 {
		return result, nil
	}

	groups := grouping.GroupBySharedTags(entries)
	f.logger.Info("grouped entries for contradiction analysis",
		zap.Int("entries", len(entries)),
		zap.Int("groups", len(groups)))

	var lastErr error
	for i, group := range groups {
		if len(group) < 2 {
			continue
		}
		result.GroupsTotal++

		op := fmt.Sprintf("find-contradictions-group-%d", i+1)
		candidates, err := f.findInGroup(ctx, op, group)
		if err != nil {
			result.GroupsFailed++
			lastErr = err
			f.logger.Warn("contradiction analysis failed for group",
				zap.String("op", op),
				zap.Int("group_size", len(group)),
				zap.Error(err))
			continue
		}
		result.Candidates = append(result.Candidates, candidates...)
	}

	if lastErr != nil && result.GroupsFailed == result.GroupsTotal && len(result.Candidates) == 0 {
		return result, lastErr
	}
	return result, nil
}

func (f *Finder) findInGroup(ctx context.Context, op string, group []model.KnowledgeEntry) ([]model.Contradiction, error) {
	if len(group) > MaxGroupEntries {
		group = group[:MaxGroupEntries]
	}

	compact := make([]compactEntry, 0, len(group))
	for _, e := range group {
		compact = append(compact, compactEntry{
			ID:          e.ID,
			Tags:        e.Distilled.Tags,
			CoreIdeas:   strings.Join(e.Distilled.CoreIdeas, ". "),
			Actionables: strings.Join(e.Distilled.Actionables, ". "),
			Context:     e.Distilled.Context,
		})
	}

	serialized, err := json.MarshalIndent(compact, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize group: %w", err)
	}

	shared := sharedTags(group)
	sharedLabel := strings.Join(shared, ", ")
	if sharedLabel == "" {
		sharedLabel = "similar themes"
	}

	prompt := fmt.Sprintf(f.promptTemplate, sharedLabel, string(serialized))
	req := llm.Request{
		Parts:       []llm.Part{{Text: prompt}},
		Schema:      contradictionSchema,
		Temperature: 0.2,
	}

	text, err := resilience.Do(ctx, f.policy, op, func(attemptCtx context.Context) (string, error) {
		return f.llm.GenerateJSON(attemptCtx, req)
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		// No usable text is not an error; the group simply yields nothing.
		return nil, nil
	}

	parsed, err := common.ParseJSON[model.ContradictionList](text)
	if err != nil {
		return nil, resilience.Upstream(op, err)
	}
	return parsed.Contradictions, nil
}

// sharedTags returns the tags (original casing, first entry's order) present
// on every entry of the group.
func sharedTags(group []model.KnowledgeEntry) []string {
	if len(group) == 0 {
		return nil
	}
	var shared []string
	for _, tag := range group[0].Distilled.Tags {
		onAll := true
		for _, e := range group[1:] {
			if !hasTag(e.Distilled.Tags, tag) {
				onAll = false
				break
			}
		}
		if onAll {
			shared = append(shared, tag)
		}
	}
	return shared
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
