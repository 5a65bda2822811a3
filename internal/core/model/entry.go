package model

import (
	"fmt"
	"time"
)

type SourceType string

const (
	SourceTwitter SourceType = "twitter"
	SourceBlog    SourceType = "blog"
	SourceYouTube SourceType = "youtube"
	SourceOther   SourceType = "other"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceTwitter, SourceBlog, SourceYouTube, SourceOther:
		return true
	}
	return false
}

// DistilledContent is the structured insight extracted from a source.
type DistilledContent struct {
	CoreIdeas    []string `json:"core_ideas"`
	Context      string   `json:"context"`
	Actionables  []string `json:"actionables"`
	Tags         []string `json:"tags"`
	QualityScore float64  `json:"quality_score"`
}

func (d *DistilledContent) Validate() error {
	if d.QualityScore < 0 || d.QualityScore > 100 {
		return fmt.Errorf("quality_score %v out of range [0,100]", d.QualityScore)
	}
	return nil
}

// KnowledgeEntry is one distilled unit of user content. Entries are owned by
// exactly one user and every query is scoped by owner.
type KnowledgeEntry struct {
	ID          string           `json:"id"`
	UserID      string           `json:"-"`
	SourceType  SourceType       `json:"sourceType"`
	Author      string           `json:"author"`
	OriginalURL string           `json:"originalUrl"`
	RawText     string           `json:"rawText,omitempty"`
	Distilled   DistilledContent `json:"distilled"`
	CreatedAt   time.Time        `json:"createdAt"`
	IsFavorite  bool             `json:"isFavorite"`
	UserNotes   string           `json:"userNotes,omitempty"`
}

// DashboardStats summarizes a user's knowledge base.
type DashboardStats struct {
	TotalEntries       int                `json:"totalEntries"`
	AverageQuality     float64            `json:"averageQuality"`
	Favorites          int                `json:"favorites"`
	BySource           map[SourceType]int `json:"bySource"`
	ContradictionCount int                `json:"contradictionCount"`
}
