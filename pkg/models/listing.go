package models

import (
	"time"

	"github.com/google/uuid"
)

// Scorer recommendations.
const (
	RecommendationApply  = "apply"
	RecommendationReview = "review"
	RecommendationSkip   = "skip"
)

// ValidRecommendation reports whether rec is one of the known values.
func ValidRecommendation(rec string) bool {
	return rec == RecommendationApply || rec == RecommendationReview || rec == RecommendationSkip
}

// Listing is a discovered job posting. Identity is (user_id, canonical_url).
// A listing with a non-nil RelevanceScore always has a non-nil Recommendation
// and AnalyzedAt; the pipeline never overwrites an analyzed listing.
type Listing struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	UserID         uuid.UUID  `db:"user_id"         json:"user_id"`
	CanonicalURL   string     `db:"canonical_url"   json:"canonical_url"`
	SourceURL      string     `db:"source_url"      json:"source_url"`
	Title          string     `db:"title"           json:"title"`
	Company        string     `db:"company"         json:"company"`
	Location       string     `db:"location"        json:"location"`
	Description    *string    `db:"description"     json:"description,omitempty"`
	RelevanceScore *int       `db:"relevance_score" json:"relevance_score,omitempty"`
	Recommendation *string    `db:"recommendation"  json:"recommendation,omitempty"`
	Rationale      *string    `db:"rationale"       json:"rationale,omitempty"`
	AnalyzedAt     *time.Time `db:"analyzed_at"     json:"analyzed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// Analyzed reports whether the listing already carries a relevance score.
func (l *Listing) Analyzed() bool {
	return l.RelevanceScore != nil
}
