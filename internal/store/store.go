// Package store persists knowledge entries and contradiction records. All
// reads and writes are scoped to an owning user.
package store

import (
	"context"
	"errors"

	"github.com/noesislabs/noesis/internal/core/model"
)

var ErrNotFound = errors.New("not found")

// EntryUpdate carries the mutable entry fields; nil means leave unchanged.
type EntryUpdate struct {
	IsFavorite *bool
	UserNotes  *string
}

// InsertResult reports what an InsertContradictions call actually changed.
// Records holds only the rows created by this call.
type InsertResult struct {
	Created int
	Skipped int
	Records []model.ContradictionRecord
}

type Store interface {
	SaveEntry(ctx context.Context, entry model.KnowledgeEntry) error
	EntryByID(ctx context.Context, userID, id string) (model.KnowledgeEntry, error)
	// EntriesByIDs returns only the requested entries owned by userID; ids
	// that do not exist or belong to someone else are silently absent.
	EntriesByIDs(ctx context.Context, userID string, ids []string) ([]model.KnowledgeEntry, error)
	ListEntries(ctx context.Context, userID string) ([]model.KnowledgeEntry, error)
	UpdateEntry(ctx context.Context, userID, id string, update EntryUpdate) (model.KnowledgeEntry, error)
	ToggleFavorite(ctx context.Context, userID, id string) (model.KnowledgeEntry, error)
	DeleteEntry(ctx context.Context, userID, id string) error

	// InsertContradictions stores candidates idempotently: a candidate whose
	// identity (canonical pair + normalized description) already exists is
	// skipped, never duplicated.
	InsertContradictions(ctx context.Context, userID string, candidates []model.Contradiction) (InsertResult, error)
	RecentContradictions(ctx context.Context, userID string, limit int) ([]model.ContradictionInsight, error)

	Stats(ctx context.Context, userID string) (model.DashboardStats, error)
	Close() error
}
