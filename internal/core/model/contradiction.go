package model

import "time"

// Contradiction is an unvalidated candidate produced by the model for a
// group of entries.
type Contradiction struct {
	Item1ID     string `json:"item1_id"`
	Item2ID     string `json:"item2_id"`
	Description string `json:"description"`
}

// ContradictionList matches the structured output schema the model is asked
// to return per group.
type ContradictionList struct {
	Contradictions []Contradiction `json:"contradictions"`
}

// ContradictionRecord is the persisted, canonicalized form of a candidate.
// Item1ID/Item2ID are stored in canonical order and the record is immutable
// after insertion.
type ContradictionRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Item1ID     string    `json:"item1Id"`
	Item2ID     string    `json:"item2Id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (r ContradictionRecord) Identity() string {
	return IdentityKey(r.Item1ID, r.Item2ID, r.Description)
}

// EntryRef is the minimal entry projection shown next to a stored
// contradiction.
type EntryRef struct {
	ID     string `json:"id"`
	Author string `json:"author"`
}

// ContradictionInsight is a stored contradiction joined with both entries,
// for display on the dashboard.
type ContradictionInsight struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	Item1       EntryRef  `json:"item1"`
	Item2       EntryRef  `json:"item2"`
}
