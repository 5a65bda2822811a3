package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/noesislabs/noesis/internal/core/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_entries (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	source_type  TEXT NOT NULL,
	author       TEXT NOT NULL DEFAULT '',
	original_url TEXT NOT NULL DEFAULT '',
	raw_text     TEXT NOT NULL DEFAULT '',
	distilled    TEXT NOT NULL,
	quality_score REAL NOT NULL DEFAULT 0,
	is_favorite  INTEGER NOT NULL DEFAULT 0,
	user_notes   TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_user ON knowledge_entries (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS contradictions (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	item1_id        TEXT NOT NULL,
	item2_id        TEXT NOT NULL,
	description     TEXT NOT NULL,
	description_key TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	UNIQUE (user_id, item1_id, item2_id, description_key)
);
CREATE INDEX IF NOT EXISTS idx_contradictions_user ON contradictions (user_id, created_at DESC);
`

// SQLiteStore implements Store on a single sqlite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveEntry(ctx context.Context, entry model.KnowledgeEntry) error {
	distilled, err := json.Marshal(entry.Distilled)
	if err != nil {
		return fmt.Errorf("failed to encode distilled content: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_entries
			(id, user_id, source_type, author, original_url, raw_text, distilled, quality_score, is_favorite, user_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, string(entry.SourceType), entry.Author, entry.OriginalURL,
		entry.RawText, string(distilled), entry.Distilled.QualityScore,
		boolToInt(entry.IsFavorite), entry.UserNotes, entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

const entryColumns = `id, user_id, source_type, author, original_url, raw_text, distilled, is_favorite, user_notes, created_at`

func (s *SQLiteStore) EntryByID(ctx context.Context, userID, id string) (model.KnowledgeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM knowledge_entries WHERE id = ? AND user_id = ?`, id, userID)
	return scanEntry(row)
}

func (s *SQLiteStore) EntriesByIDs(ctx context.Context, userID string, ids []string) ([]model.KnowledgeEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + entryColumns + ` FROM knowledge_entries
		WHERE user_id = ? AND id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *SQLiteStore) ListEntries(ctx context.Context, userID string) ([]model.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM knowledge_entries WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *SQLiteStore) UpdateEntry(ctx context.Context, userID, id string, update EntryUpdate) (model.KnowledgeEntry, error) {
	var sets []string
	var args []any
	if update.IsFavorite != nil {
		sets = append(sets, "is_favorite = ?")
		args = append(args, boolToInt(*update.IsFavorite))
	}
	if update.UserNotes != nil {
		sets = append(sets, "user_notes = ?")
		args = append(args, *update.UserNotes)
	}
	if len(sets) > 0 {
		args = append(args, id, userID)
		res, err := s.db.ExecContext(ctx,
			`UPDATE knowledge_entries SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`, args...)
		if err != nil {
			return model.KnowledgeEntry{}, fmt.Errorf("failed to update entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.KnowledgeEntry{}, ErrNotFound
		}
	}
	return s.EntryByID(ctx, userID, id)
}

func (s *SQLiteStore) ToggleFavorite(ctx context.Context, userID, id string) (model.KnowledgeEntry, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_entries SET is_favorite = 1 - is_favorite WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return model.KnowledgeEntry{}, fmt.Errorf("failed to toggle favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.KnowledgeEntry{}, ErrNotFound
	}
	return s.EntryByID(ctx, userID, id)
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge_entries WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertContradictions is idempotent by contradiction identity. Candidates
// are expected in canonical pair order; identities already present are
// skipped. The unique index backstops concurrent submissions racing past the
// read, with ON CONFLICT DO NOTHING turning the race loser into a skip.
func (s *SQLiteStore) InsertContradictions(ctx context.Context, userID string, candidates []model.Contradiction) (InsertResult, error) {
	var result InsertResult
	if len(candidates) == 0 {
		return result, nil
	}

	existing, err := s.existingIdentities(ctx, userID, candidates)
	if err != nil {
		return result, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, c := range candidates {
		a, b := model.CanonicalPair(c.Item1ID, c.Item2ID)
		if existing[model.IdentityKey(a, b, c.Description)] {
			result.Skipped++
			continue
		}

		rec := model.ContradictionRecord{
			ID:          uuid.NewString(),
			UserID:      userID,
			Item1ID:     a,
			Item2ID:     b,
			Description: c.Description,
			CreatedAt:   now,
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO contradictions (id, user_id, item1_id, item2_id, description, description_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, item1_id, item2_id, description_key) DO NOTHING`,
			rec.ID, rec.UserID, rec.Item1ID, rec.Item2ID, rec.Description,
			model.NormalizeDescription(rec.Description), rec.CreatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return InsertResult{}, fmt.Errorf("failed to insert contradiction: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result.Skipped++
			continue
		}
		result.Created++
		result.Records = append(result.Records, rec)
	}

	if err := tx.Commit(); err != nil {
		return InsertResult{}, fmt.Errorf("failed to commit contradictions: %w", err)
	}
	return result, nil
}

// existingIdentities fetches the identity keys of every stored contradiction
// touching any endpoint of the candidates. The fetch is a superset; the
// in-memory identity compare does the exact matching.
func (s *SQLiteStore) existingIdentities(ctx context.Context, userID string, candidates []model.Contradiction) (map[string]bool, error) {
	idSet := make(map[string]bool)
	var ids []string
	for _, c := range candidates {
		for _, id := range []string{c.Item1ID, c.Item2ID} {
			if !idSet[id] {
				idSet[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}

	ph := placeholders(len(ids))
	query := `SELECT item1_id, item2_id, description FROM contradictions
		WHERE user_id = ? AND (item1_id IN (` + ph + `) OR item2_id IN (` + ph + `))`
	args := make([]any, 0, 2*len(ids)+1)
	args = append(args, userID)
	for i := 0; i < 2; i++ {
		for _, id := range ids {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing contradictions: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var a, b, desc string
		if err := rows.Scan(&a, &b, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan contradiction: %w", err)
		}
		existing[model.IdentityKey(a, b, desc)] = true
	}
	return existing, rows.Err()
}

func (s *SQLiteStore) RecentContradictions(ctx context.Context, userID string, limit int) ([]model.ContradictionInsight, error) {
	if limit <= 0 {
		limit = 10
	}
	// Entries may have been deleted since the contradiction was stored; keep
	// the record and show the bare id.
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.description, c.created_at,
		       c.item1_id, COALESCE(e1.author, ''),
		       c.item2_id, COALESCE(e2.author, '')
		FROM contradictions c
		LEFT JOIN knowledge_entries e1 ON e1.id = c.item1_id AND e1.user_id = c.user_id
		LEFT JOIN knowledge_entries e2 ON e2.id = c.item2_id AND e2.user_id = c.user_id
		WHERE c.user_id = ?
		ORDER BY c.created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent contradictions: %w", err)
	}
	defer rows.Close()

	var insights []model.ContradictionInsight
	for rows.Next() {
		var in model.ContradictionInsight
		var createdAt string
		if err := rows.Scan(&in.ID, &in.Description, &createdAt,
			&in.Item1.ID, &in.Item1.Author, &in.Item2.ID, &in.Item2.Author); err != nil {
			return nil, fmt.Errorf("failed to scan contradiction: %w", err)
		}
		in.CreatedAt = parseTime(createdAt)
		insights = append(insights, in)
	}
	return insights, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context, userID string) (model.DashboardStats, error) {
	stats := model.DashboardStats{BySource: make(map[model.SourceType]int)}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(quality_score), 0), COALESCE(SUM(is_favorite), 0)
		FROM knowledge_entries WHERE user_id = ?`, userID)
	if err := row.Scan(&stats.TotalEntries, &stats.AverageQuality, &stats.Favorites); err != nil {
		return stats, fmt.Errorf("failed to query entry stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_type, COUNT(*) FROM knowledge_entries WHERE user_id = ? GROUP BY source_type`, userID)
	if err != nil {
		return stats, fmt.Errorf("failed to query source breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return stats, fmt.Errorf("failed to scan source breakdown: %w", err)
		}
		stats.BySource[model.SourceType(src)] = n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contradictions WHERE user_id = ?`, userID)
	if err := row.Scan(&stats.ContradictionCount); err != nil {
		return stats, fmt.Errorf("failed to query contradiction count: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (model.KnowledgeEntry, error) {
	var e model.KnowledgeEntry
	var sourceType, distilled, createdAt string
	var favorite int
	err := row.Scan(&e.ID, &e.UserID, &sourceType, &e.Author, &e.OriginalURL,
		&e.RawText, &distilled, &favorite, &e.UserNotes, &createdAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.SourceType = model.SourceType(sourceType)
	e.IsFavorite = favorite != 0
	e.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(distilled), &e.Distilled); err != nil {
		return e, fmt.Errorf("failed to decode distilled content: %w", err)
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]model.KnowledgeEntry, error) {
	var entries []model.KnowledgeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
