// Package distill turns raw source content into structured insights via the
// LLM, behind the shared resilience policy.
package distill

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noesislabs/noesis/internal/core/common"
	"github.com/noesislabs/noesis/internal/core/model"
	"github.com/noesislabs/noesis/internal/llm"
	"github.com/noesislabs/noesis/internal/resilience"
)

const defaultSystemPrompt = `You are a Personal Knowledge Distiller. Your goal is to extract meaningful signal from noise.

You will be given content from a %s.

You MUST:
1. Discard fluff, intro/outro, ads, and generic platitudes.
2. Extract only clean, core ideas.
3. Generate actionable advice or profound questions based on the content.
4. Assign a quality score (0 - 100). Be harsh. Low effort content gets low scores.
5. Categorize with relevant tags. Prioritize tags that align with common themes in technology, productivity, and personal development (e.g., 'Optimization', 'Mental Models', 'Career Growth', 'System Design').

Return the result strictly as JSON.`

// distillationSchema is the structured output contract for a distillation
// call.
var distillationSchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"core_ideas": {
			Type:        llm.TypeArray,
			Items:       &llm.Schema{Type: llm.TypeString},
			Description: "A list of clean, distraction-free core insights extracted from the text.",
		},
		"context": {
			Type:        llm.TypeString,
			Description: "A brief background explanation of why this content matters.",
		},
		"actionables": {
			Type:        llm.TypeArray,
			Items:       &llm.Schema{Type: llm.TypeString},
			Description: "Concrete actions the user can take or questions worth thinking about based on this content.",
		},
		"tags": {
			Type:        llm.TypeArray,
			Items:       &llm.Schema{Type: llm.TypeString},
			Description: "A list of relevant categorization tags (e.g., 'ml', 'systems', 'career').",
		},
		"quality_score": {
			Type:        llm.TypeNumber,
			Description: "A score from 0 to 100 indicating the density and value of the information. 100 is pure signal, 0 is pure noise.",
		},
	},
	Required: []string{"core_ideas", "context", "actionables", "tags", "quality_score"},
}

type Request struct {
	RawText    string
	SourceType model.SourceType
	YouTubeURL string
}

type Distiller struct {
	llm          llm.Client
	policy       resilience.Policy
	systemPrompt string // fmt template with one %s for the source type
	logger       *zap.Logger
}

func NewDistiller(client llm.Client, policy resilience.Policy, systemPrompt string, logger *zap.Logger) *Distiller {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Distiller{
		llm:          client,
		policy:       policy,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

func (d *Distiller) Distill(ctx context.Context, req Request) (model.DistilledContent, error) {
	var zero model.DistilledContent

	var parts []llm.Part
	switch {
	case req.SourceType == model.SourceYouTube && req.YouTubeURL != "":
		parts = []llm.Part{{FileURI: req.YouTubeURL}}
	case req.RawText != "":
		parts = []llm.Part{{Text: req.RawText}}
	default:
		return zero, fmt.Errorf("either rawText or youtubeUrl must be provided")
	}

	llmReq := llm.Request{
		System:      fmt.Sprintf(d.systemPrompt, req.SourceType),
		Parts:       parts,
		Schema:      distillationSchema,
		Temperature: 0.2, // low temperature for consistent, analytical output
	}

	text, err := resilience.Do(ctx, d.policy, "distill", func(attemptCtx context.Context) (string, error) {
		return d.llm.GenerateJSON(attemptCtx, llmReq)
	})
	if err != nil {
		return zero, err
	}
	if text == "" {
		return zero, resilience.Upstream("distill", fmt.Errorf("empty model response"))
	}

	distilled, err := common.ParseJSON[model.DistilledContent](text)
	if err != nil {
		return zero, resilience.Upstream("distill", err)
	}
	if err := distilled.Validate(); err != nil {
		return zero, resilience.Upstream("distill", err)
	}

	d.logger.Info("distilled content",
		zap.String("source_type", string(req.SourceType)),
		zap.Int("core_ideas", len(distilled.CoreIdeas)),
		zap.Float64("quality_score", distilled.QualityScore))

	return distilled, nil
}
