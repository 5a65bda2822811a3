package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/noesislabs/noesis/internal/core/model"
	"github.com/noesislabs/noesis/internal/llm"
	"github.com/noesislabs/noesis/internal/resilience"
	"github.com/noesislabs/noesis/internal/store"
)

// queueLLM replays scripted responses in order.
type queueLLM struct {
	Queue    []string
	Errs     []error
	Requests []llm.Request
}

func (m *queueLLM) GenerateJSON(ctx context.Context, req llm.Request) (string, error) {
	m.Requests = append(m.Requests, req)
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(m.Queue) == 0 {
		return "", nil
	}
	next := m.Queue[0]
	m.Queue = m.Queue[1:]
	return next, nil
}

func (m *queueLLM) Close() error { return nil }

func fastPolicy() resilience.Policy {
	return resilience.Policy{
		Timeout:    time.Second,
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
	}
}

// memStore is an in-memory Store for orchestration tests. It reuses the
// identity semantics of the sqlite implementation.
type memStore struct {
	entries        map[string]model.KnowledgeEntry
	contradictions map[string]model.ContradictionRecord // by identity key
	updateErr      error
}

func newMemStore() *memStore {
	return &memStore{
		entries:        make(map[string]model.KnowledgeEntry),
		contradictions: make(map[string]model.ContradictionRecord),
	}
}

func (m *memStore) SaveEntry(ctx context.Context, entry model.KnowledgeEntry) error {
	m.entries[entry.ID] = entry
	return nil
}

func (m *memStore) EntryByID(ctx context.Context, userID, id string) (model.KnowledgeEntry, error) {
	e, ok := m.entries[id]
	if !ok || e.UserID != userID {
		return model.KnowledgeEntry{}, store.ErrNotFound
	}
	return e, nil
}

func (m *memStore) EntriesByIDs(ctx context.Context, userID string, ids []string) ([]model.KnowledgeEntry, error) {
	var out []model.KnowledgeEntry
	for _, id := range ids {
		if e, ok := m.entries[id]; ok && e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ListEntries(ctx context.Context, userID string) ([]model.KnowledgeEntry, error) {
	var out []model.KnowledgeEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) UpdateEntry(ctx context.Context, userID, id string, update store.EntryUpdate) (model.KnowledgeEntry, error) {
	if m.updateErr != nil {
		return model.KnowledgeEntry{}, m.updateErr
	}
	e, err := m.EntryByID(ctx, userID, id)
	if err != nil {
		return e, err
	}
	if update.IsFavorite != nil {
		e.IsFavorite = *update.IsFavorite
	}
	if update.UserNotes != nil {
		e.UserNotes = *update.UserNotes
	}
	m.entries[id] = e
	return e, nil
}

func (m *memStore) ToggleFavorite(ctx context.Context, userID, id string) (model.KnowledgeEntry, error) {
	e, err := m.EntryByID(ctx, userID, id)
	if err != nil {
		return e, err
	}
	e.IsFavorite = !e.IsFavorite
	m.entries[id] = e
	return e, nil
}

func (m *memStore) DeleteEntry(ctx context.Context, userID, id string) error {
	if _, err := m.EntryByID(ctx, userID, id); err != nil {
		return err
	}
	delete(m.entries, id)
	return nil
}

func (m *memStore) InsertContradictions(ctx context.Context, userID string, candidates []model.Contradiction) (store.InsertResult, error) {
	var result store.InsertResult
	for _, c := range candidates {
		a, b := model.CanonicalPair(c.Item1ID, c.Item2ID)
		key := userID + "|" + model.IdentityKey(a, b, c.Description)
		if _, ok := m.contradictions[key]; ok {
			result.Skipped++
			continue
		}
		rec := model.ContradictionRecord{
			ID:          uuid.NewString(),
			UserID:      userID,
			Item1ID:     a,
			Item2ID:     b,
			Description: c.Description,
			CreatedAt:   time.Now().UTC(),
		}
		m.contradictions[key] = rec
		result.Created++
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

func (m *memStore) RecentContradictions(ctx context.Context, userID string, limit int) ([]model.ContradictionInsight, error) {
	var out []model.ContradictionInsight
	for _, rec := range m.contradictions {
		if rec.UserID != userID {
			continue
		}
		out = append(out, model.ContradictionInsight{
			ID:          rec.ID,
			Description: rec.Description,
			CreatedAt:   rec.CreatedAt,
			Item1:       model.EntryRef{ID: rec.Item1ID},
			Item2:       model.EntryRef{ID: rec.Item2ID},
		})
	}
	return out, nil
}

func (m *memStore) Stats(ctx context.Context, userID string) (model.DashboardStats, error) {
	return model.DashboardStats{}, nil
}

func (m *memStore) Close() error { return nil }
