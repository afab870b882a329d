package scorer

import (
	"context"
	"hash/fnv"

	"github.com/jobscout/jobscout/pkg/models"
)

// StaticProvider returns deterministic scores derived from the listing URL.
// Used when SCORER_PROVIDER=mock, for local development without an LLM.
type StaticProvider struct{}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

func (p *StaticProvider) Name() string { return "mock" }

func (p *StaticProvider) Score(_ context.Context, _ models.Profile, listing models.Listing) (models.ScoreResult, error) {
	h := fnv.New32a()
	h.Write([]byte(listing.CanonicalURL))
	score := int(h.Sum32() % 101)

	rec := models.RecommendationSkip
	switch {
	case score >= 75:
		rec = models.RecommendationApply
	case score >= 50:
		rec = models.RecommendationReview
	}

	return models.ScoreResult{
		Score:          score,
		Recommendation: rec,
		Rationale:      "static score for local development",
	}, nil
}

var _ models.ScoreProvider = (*StaticProvider)(nil)
