package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noesislabs/noesis/internal/core/contradiction"
	"github.com/noesislabs/noesis/internal/core/distill"
	"github.com/noesislabs/noesis/internal/core/model"
)

func newCurator(st *memStore, mock *queueLLM) *Curator {
	return NewCurator(st,
		distill.NewDistiller(mock, fastPolicy(), "", nil),
		contradiction.NewFinder(mock, fastPolicy(), "", nil),
		nil)
}

func seedEntry(st *memStore, id, userID, author string, tags ...string) model.KnowledgeEntry {
	e := model.KnowledgeEntry{
		ID:     id,
		UserID: userID,
		Author: author,
		Distilled: model.DistilledContent{
			CoreIdeas: []string{"idea from " + id},
			Tags:      tags,
		},
		CreatedAt: time.Now().UTC(),
	}
	st.entries[id] = e
	return e
}

func contradictionJSON(item1, item2, desc string) string {
	return fmt.Sprintf(`{"contradictions":[{"item1_id":%q,"item2_id":%q,"description":%q}]}`,
		item1, item2, desc)
}

func TestDistill_ReturnsContentWithoutPersisting(t *testing.T) {
	st := newMemStore()
	mock := &queueLLM{Queue: []string{
		`{"core_ideas":["rest matters"],"context":"","actionables":[],"tags":["health"],"quality_score":75}`,
	}}
	c := newCurator(st, mock)

	distilled, err := c.Distill(context.Background(), DistillRequest{
		RawText:    "a thread",
		SourceType: model.SourceTwitter,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"rest matters"}, distilled.CoreIdeas)
	assert.Empty(t, st.entries, "distillation alone saves nothing")
}

func TestAnalyzeContradictions_FailsClosedOnInaccessibleEntry(t *testing.T) {
	st := newMemStore()
	seedEntry(st, "A", "u1", "Alice", "ml")
	seedEntry(st, "B", "u2", "Bob", "ml") // someone else's
	mock := &queueLLM{}
	c := newCurator(st, mock)

	_, err := c.AnalyzeContradictions(context.Background(), "u1", []string{"A", "B"})

	require.ErrorIs(t, err, ErrEntriesInaccessible)
	assert.Empty(t, mock.Requests, "no model call when resolution fails")
}

func TestAnalyzeContradictions_StoresAndAnnotates(t *testing.T) {
	st := newMemStore()
	seedEntry(st, "A", "u1", "Alice", "ml")
	seedEntry(st, "B", "u1", "Bob", "ml")
	mock := &queueLLM{Queue: []string{contradictionJSON("A", "B", "A says X, B says not-X")}}
	c := newCurator(st, mock)

	result, err := c.AnalyzeContradictions(context.Background(), "u1", []string{"A", "B"})

	require.NoError(t, err)
	require.Len(t, result.Contradictions, 1)
	assert.Equal(t, 1, result.Created)
	assert.Zero(t, result.Skipped)

	for _, id := range []string{"A", "B"} {
		entry, err := st.EntryByID(context.Background(), "u1", id)
		require.NoError(t, err)
		assert.Contains(t, entry.UserNotes, "CONTRADICTION", "entry %s", id)
		assert.Contains(t, entry.UserNotes, "A says X, B says not-X")
	}
	entryA, _ := st.EntryByID(context.Background(), "u1", "A")
	assert.Contains(t, entryA.UserNotes, "Bob (B)")
	entryB, _ := st.EntryByID(context.Background(), "u1", "B")
	assert.Contains(t, entryB.UserNotes, "Alice (A)")
}

func TestAnalyzeContradictions_ResubmissionIsIdempotent(t *testing.T) {
	st := newMemStore()
	seedEntry(st, "A", "u1", "Alice", "ml")
	seedEntry(st, "B", "u1", "Bob", "ml")
	mock := &queueLLM{Queue: []string{
		contradictionJSON("A", "B", "A says X, B says not-X"),
		contradictionJSON("B", "A", "A says X, B says not-X"), // same identity, flipped pair
	}}
	c := newCurator(st, mock)

	first, err := c.AnalyzeContradictions(context.Background(), "u1", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := c.AnalyzeContradictions(context.Background(), "u1", []string{"A", "B"})
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 1, second.Skipped)

	// The annotation appears exactly once per entry.
	entryA, _ := st.EntryByID(context.Background(), "u1", "A")
	assert.Equal(t, 1, strings.Count(entryA.UserNotes, "CONTRADICTION"))
}

func TestAnalyzeContradictions_AnnotatesPreexistingRecords(t *testing.T) {
	// The record already exists (say the annotation write failed on the run
	// that created it). A re-run reports it as skipped but must still append
	// the missing notes.
	st := newMemStore()
	seedEntry(st, "A", "u1", "Alice", "ml")
	seedEntry(st, "B", "u1", "Bob", "ml")
	_, err := st.InsertContradictions(context.Background(), "u1", []model.Contradiction{
		{Item1ID: "A", Item2ID: "B", Description: "conflict"},
	})
	require.NoError(t, err)

	mock := &queueLLM{Queue: []string{contradictionJSON("A", "B", "conflict")}}
	c := newCurator(st, mock)

	result, err := c.AnalyzeContradictions(context.Background(), "u1", []string{"A", "B"})

	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Equal(t, 1, result.Skipped)

	for _, id := range []string{"A", "B"} {
		entry, err := st.EntryByID(context.Background(), "u1", id)
		require.NoError(t, err)
		assert.Contains(t, entry.UserNotes, "CONTRADICTION", "entry %s", id)
		assert.Contains(t, entry.UserNotes, "conflict")
	}
}

func TestAnalyzeContradictions_WithinBatchDuplicateCountedAsSkipped(t *testing.T) {
	st := newMemStore()
	seedEntry(st, "A", "u1", "Alice", "ml")
	seedEntry(st, "B", "u1", "Bob", "ml")
	mock := &queueLLM{Queue: []string{
		`{"contradictions":[
			{"item1_id":"A","item2_id":"B","description":"conflict"},
			{"item1_id":"B","item2_id":"A","description":"  CONFLICT  "}
		]}`}}
	c := newCurator(st, mock)

	result, err := c.AnalyzeContradictions(context.Background(), "u1", []string{"A", "B"})

	require.NoError(t, err)
	require.Len(t, result.Contradictions, 1)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped, "within-batch repeat counts as skipped")
	assert.Zero(t, result.Dropped)
}

func TestAnalyzeContradictions_DropsHallucinatedIDs(t *testing.T) {
	st := newMemStore()
	seedEntry(st, "A", "u1", "Alice", "ml")
	seedEntry(st, "B", "u1", "Bob", "ml")
	mock := &queueLLM{Queue: []string{contradictionJSON("A", "Z", "phantom")}}
	c := newCurator(st, mock)

	result, err := c.AnalyzeContradictions(context.Background(), "u1", []string{"A", "B"})

	require.NoError(t, err)
	assert.Empty(t, result.Contradictions)
	assert.Equal(t, 1, result.Dropped)
	assert.Zero(t, result.Created)
}

func TestAnalyzeContradictions_PartialGroupFailure(t *testing.T) {
	st := newMemStore()
	seedEntry(st, "A", "u1", "Alice", "go")
	seedEntry(st, "B", "u1", "Bob", "go")
	seedEntry(st, "C", "u1", "Carol", "rust")
	seedEntry(st, "D", "u1", "Dan", "rust")
	mock := &queueLLM{
		Errs:  []error{errors.New("503 service unavailable"), nil},
		Queue: []string{contradictionJSON("C", "D", "conflicting advice")},
	}
	c := newCurator(st, mock)

	result, err := c.AnalyzeContradictions(context.Background(), "u1", []string{"A", "B", "C", "D"})

	require.NoError(t, err)
	require.Len(t, result.Contradictions, 1)
	assert.Equal(t, 1, result.GroupsFailed)
	assert.Equal(t, 1, result.Created)
}

func TestAnalyzeContradictions_AnnotationFailureDoesNotFailRun(t *testing.T) {
	st := newMemStore()
	seedEntry(st, "A", "u1", "Alice", "ml")
	seedEntry(st, "B", "u1", "Bob", "ml")
	st.updateErr = errors.New("disk full")
	mock := &queueLLM{Queue: []string{contradictionJSON("A", "B", "conflict")}}
	c := newCurator(st, mock)

	result, err := c.AnalyzeContradictions(context.Background(), "u1", []string{"A", "B"})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
}
