// Package core wires distillation, contradiction analysis and persistence
// into the operations the API exposes.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noesislabs/noesis/internal/core/contradiction"
	"github.com/noesislabs/noesis/internal/core/distill"
	"github.com/noesislabs/noesis/internal/core/model"
	"github.com/noesislabs/noesis/internal/store"
)

// ErrEntriesInaccessible means at least one requested entry does not exist
// or is not owned by the caller. Analysis fails closed rather than silently
// shrinking the input set.
var ErrEntriesInaccessible = errors.New("one or more entries do not exist or are not accessible")

type Curator struct {
	store     store.Store
	distiller *distill.Distiller
	finder    *contradiction.Finder
	logger    *zap.Logger
}

func NewCurator(st store.Store, distiller *distill.Distiller, finder *contradiction.Finder, logger *zap.Logger) *Curator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Curator{store: st, distiller: distiller, finder: finder, logger: logger}
}

// DistillRequest is one piece of raw content to distill.
type DistillRequest struct {
	RawText    string
	SourceType model.SourceType
	YouTubeURL string
}

// Distill extracts structured insight from raw content. Nothing is persisted;
// the caller reviews the result and saves it as an entry separately.
func (c *Curator) Distill(ctx context.Context, req DistillRequest) (model.DistilledContent, error) {
	return c.distiller.Distill(ctx, distill.Request{
		RawText:    req.RawText,
		SourceType: req.SourceType,
		YouTubeURL: req.YouTubeURL,
	})
}

// AnalyzeResult summarizes one contradiction analysis run.
type AnalyzeResult struct {
	Contradictions []model.Contradiction `json:"contradictions"`
	Created        int                   `json:"created"`
	Skipped        int                   `json:"skipped"`
	Dropped        int                   `json:"dropped"`
	GroupsFailed   int                   `json:"groupsFailed"`
}

// AnalyzeContradictions runs the full pipeline over the caller's entries:
// resolve, group, query the model per group, validate, persist, annotate.
// Persistence is idempotent, so resubmitting the same ids only reports
// previously stored contradictions as skipped.
func (c *Curator) AnalyzeContradictions(ctx context.Context, userID string, entryIDs []string) (AnalyzeResult, error) {
	var result AnalyzeResult

	entries, err := c.store.EntriesByIDs(ctx, userID, entryIDs)
	if err != nil {
		return result, fmt.Errorf("failed to resolve entries: %w", err)
	}
	if len(entries) != len(entryIDs) {
		return result, ErrEntriesInaccessible
	}

	found, err := c.finder.Find(ctx, entries)
	if err != nil {
		return result, err
	}
	result.GroupsFailed = found.GroupsFailed

	visible := make(map[string]model.KnowledgeEntry, len(entries))
	for _, e := range entries {
		visible[e.ID] = e
	}
	validated := contradiction.ValidateCandidates(found.Candidates, visible)
	result.Contradictions = validated.Valid
	result.Dropped = validated.Dropped
	result.Skipped = validated.Duplicates

	if len(validated.Valid) > 0 {
		inserted, err := c.store.InsertContradictions(ctx, userID, validated.Valid)
		if err != nil {
			return result, fmt.Errorf("failed to store contradictions: %w", err)
		}
		result.Created = inserted.Created
		result.Skipped += inserted.Skipped

		c.annotateEntries(ctx, userID, visible, validated.Valid)
	}

	c.logger.Info("contradiction analysis finished",
		zap.String("user_id", userID),
		zap.Int("entries", len(entries)),
		zap.Int("found", len(validated.Valid)),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("groups_failed", result.GroupsFailed))
	return result, nil
}

// annotateEntries appends a contradiction note to both endpoints of every
// validated contradiction, whether this run stored it or an earlier one did;
// a note that failed to write before heals on the next run. Annotation is
// best effort: a failed note is logged and never fails the analysis, and an
// entry already carrying the note is left alone.
func (c *Curator) annotateEntries(ctx context.Context, userID string, visible map[string]model.KnowledgeEntry, candidates []model.Contradiction) {
	now := time.Now().UTC()
	for _, cand := range candidates {
		c.annotateOne(ctx, userID, cand.Item1ID, refFor(visible, cand.Item2ID), cand.Description, now)
		c.annotateOne(ctx, userID, cand.Item2ID, refFor(visible, cand.Item1ID), cand.Description, now)
	}
}

func (c *Curator) annotateOne(ctx context.Context, userID, entryID string, other model.EntryRef, description string, now time.Time) {
	// Fetch fresh rather than trusting the resolved snapshot: an earlier
	// record in this run may have already appended to the same entry.
	entry, err := c.store.EntryByID(ctx, userID, entryID)
	if err != nil {
		c.logger.Warn("failed to load entry for annotation",
			zap.String("entry_id", entryID), zap.Error(err))
		return
	}
	if contradiction.HasNote(entry.UserNotes, other.ID, description) {
		return
	}

	notes := contradiction.AppendNote(entry.UserNotes, contradiction.BuildNote(other, description, now))
	if _, err := c.store.UpdateEntry(ctx, userID, entryID, store.EntryUpdate{UserNotes: &notes}); err != nil {
		c.logger.Warn("failed to annotate entry",
			zap.String("entry_id", entryID), zap.Error(err))
	}
}

func refFor(visible map[string]model.KnowledgeEntry, id string) model.EntryRef {
	e, ok := visible[id]
	if !ok {
		return model.EntryRef{ID: id}
	}
	return model.EntryRef{ID: e.ID, Author: e.Author}
}
