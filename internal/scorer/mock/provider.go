package mock

import (
	"context"

	"github.com/jobscout/jobscout/internal/scorer"
	"github.com/jobscout/jobscout/pkg/models"
)

// MockProvider satisfies models.ScoreProvider for testing.
type MockProvider struct {
	Name_     string
	ScoreFunc func(ctx context.Context, profile models.Profile, listing models.Listing) (models.ScoreResult, error)

	// Calls records every listing scored, in order.
	Calls []string
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Score(ctx context.Context, profile models.Profile, listing models.Listing) (models.ScoreResult, error) {
	m.Calls = append(m.Calls, listing.CanonicalURL)
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, profile, listing)
	}
	return models.ScoreResult{}, nil
}

// NewMockProvider returns a MockProvider with a sensible default response.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		ScoreFunc: func(_ context.Context, _ models.Profile, _ models.Listing) (models.ScoreResult, error) {
			return models.ScoreResult{
				Score:          80,
				Recommendation: models.RecommendationApply,
				Rationale:      "mock rationale for testing",
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		ScoreFunc: func(_ context.Context, _ models.Profile, _ models.Listing) (models.ScoreResult, error) {
			return models.ScoreResult{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		ScoreFunc: func(ctx context.Context, _ models.Profile, _ models.Listing) (models.ScoreResult, error) {
			<-ctx.Done()
			return models.ScoreResult{}, scorer.ErrScoreTimeout
		},
	}
}

// Compile-time check that MockProvider implements ScoreProvider.
var _ models.ScoreProvider = (*MockProvider)(nil)
