package contradiction

import (
	"strings"

	"github.com/noesislabs/noesis/internal/core/model"
)

// ValidationResult separates the model's candidates into the ones worth
// persisting and the ones discarded, with counts the caller can report.
type ValidationResult struct {
	Valid      []model.Contradiction
	Dropped    int // self-pairs, unknown ids, empty descriptions
	Duplicates int // well-formed repeats of an earlier candidate
}

// ValidateCandidates filters model output against the entries the user
// actually submitted. Both endpoints must be in the visible set: the model is
// free to hallucinate ids and a contradiction naming an entry outside the
// request must never be stored. Surviving candidates come back with the pair
// in canonical order and the description trimmed; repeats by identity keep
// the first occurrence.
func ValidateCandidates(candidates []model.Contradiction, visible map[string]model.KnowledgeEntry) ValidationResult {
	var result ValidationResult
	seen := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		desc := strings.TrimSpace(c.Description)
		if c.Item1ID == c.Item2ID || desc == "" {
			result.Dropped++
			continue
		}
		if _, ok := visible[c.Item1ID]; !ok {
			result.Dropped++
			continue
		}
		if _, ok := visible[c.Item2ID]; !ok {
			result.Dropped++
			continue
		}

		a, b := model.CanonicalPair(c.Item1ID, c.Item2ID)
		key := model.IdentityKey(a, b, desc)
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true

		result.Valid = append(result.Valid, model.Contradiction{
			Item1ID:     a,
			Item2ID:     b,
			Description: desc,
		})
	}

	return result
}
