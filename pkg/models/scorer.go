package models

import (
	"context"
	"fmt"
)

// ScoreProvider is the core interface all LLM scorer integrations implement.
// Never call a specific provider directly, always inject this interface.
type ScoreProvider interface {
	// Score judges how relevant a listing is to the candidate profile.
	Score(ctx context.Context, profile Profile, listing Listing) (ScoreResult, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// ScoreResult is the output of one scoring call.
type ScoreResult struct {
	Score          int    `json:"score"`
	Recommendation string `json:"recommendation"`
	Rationale      string `json:"rationale"`
}

// Validate checks the provider output. A score outside 0-100 or an unknown
// recommendation is a provider error, never a usable result.
func (r ScoreResult) Validate() error {
	if r.Score < 0 || r.Score > 100 {
		return fmt.Errorf("score %d outside 0-100", r.Score)
	}
	if !ValidRecommendation(r.Recommendation) {
		return fmt.Errorf("unknown recommendation %q", r.Recommendation)
	}
	return nil
}
