package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jobscout/jobscout/internal/config"
	"github.com/jobscout/jobscout/internal/scorer/mock"
	"github.com/jobscout/jobscout/internal/scraper"
	"github.com/jobscout/jobscout/internal/store"
	"github.com/jobscout/jobscout/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	profile  *models.Profile
	listings map[string]*models.Listing
	runs     map[uuid.UUID]*models.ScanRun

	upsertErr error
	stages    []string
}

func newFakeStore(userID uuid.UUID) *fakeStore {
	return &fakeStore{
		profile: &models.Profile{
			UserID:  userID,
			Summary: "backend engineer",
			Skills:  []string{"go", "postgres"},
		},
		listings: make(map[string]*models.Listing),
		runs:     make(map[uuid.UUID]*models.ScanRun),
	}
}

func (f *fakeStore) Ping(context.Context) error                           { return nil }
func (f *fakeStore) CreateProfile(context.Context, *models.Profile) error { return nil }

func (f *fakeStore) GetProfile(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	if f.profile == nil || f.profile.UserID != userID {
		return nil, store.ErrNotFound
	}
	return f.profile, nil
}

func (f *fakeStore) CreateSchedule(context.Context, *models.ScanSchedule) error { return nil }

func (f *fakeStore) ListEnabledSchedules(context.Context) ([]*models.ScanSchedule, error) {
	return nil, nil
}

func (f *fakeStore) CreateRun(_ context.Context, run *models.ScanRun) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, id uuid.UUID) (*models.ScanRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) GetActiveRun(context.Context, uuid.UUID) (*models.ScanRun, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListRuns(context.Context, uuid.UUID, int, int) ([]*models.ScanRun, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) UpdateRunStage(_ context.Context, id uuid.UUID, stage string, opts ...store.RunUpdateOption) error {
	run, ok := f.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	params := &store.RunUpdate{}
	for _, opt := range opts {
		opt(params)
	}
	run.Stage = stage
	if params.Counts != nil {
		run.Counts = *params.Counts
	}
	if params.ErrorMessage != nil {
		run.ErrorMessage = params.ErrorMessage
	}
	f.stages = append(f.stages, stage)
	return nil
}

func (f *fakeStore) UpsertListingIfAbsent(_ context.Context, listing *models.Listing) (uuid.UUID, bool, error) {
	if f.upsertErr != nil {
		return uuid.Nil, false, f.upsertErr
	}
	if existing, ok := f.listings[listing.CanonicalURL]; ok {
		return existing.ID, false, nil
	}
	listing.ID = uuid.New()
	listing.CreatedAt = time.Now()
	f.listings[listing.CanonicalURL] = listing
	return listing.ID, true, nil
}

func (f *fakeStore) GetListing(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	for _, l := range f.listings {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListListings(context.Context, store.ListingFilter) ([]*models.Listing, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) ListUnanalyzed(_ context.Context, userID uuid.UUID, limit int) ([]*models.Listing, error) {
	var out []*models.Listing
	for _, l := range f.listings {
		if l.UserID == userID && l.RelevanceScore == nil {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalURL < out[j].CanonicalURL })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListAnalyzedSince(_ context.Context, userID uuid.UUID, since time.Time) ([]*models.Listing, error) {
	var out []*models.Listing
	for _, l := range f.listings {
		if l.UserID == userID && l.AnalyzedAt != nil && l.AnalyzedAt.After(since) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalURL < out[j].CanonicalURL })
	return out, nil
}

func (f *fakeStore) UpdateListingDetail(_ context.Context, id uuid.UUID, title, company, location, description string) error {
	l, err := f.GetListing(context.Background(), id)
	if err != nil {
		return err
	}
	l.Title = title
	l.Company = company
	l.Location = location
	l.Description = &description
	return nil
}

func (f *fakeStore) SetAnalysisIfUnset(_ context.Context, id uuid.UUID, score int, recommendation, rationale string) (bool, error) {
	l, err := f.GetListing(context.Background(), id)
	if err != nil {
		return false, err
	}
	if l.RelevanceScore != nil {
		return false, nil
	}
	now := time.Now()
	l.RelevanceScore = &score
	l.Recommendation = &recommendation
	l.Rationale = &rationale
	l.AnalyzedAt = &now
	return true, nil
}

var _ store.Store = (*fakeStore)(nil)

// fakeScraper serves canned candidate lists and details.
type fakeScraper struct {
	pages   map[string][]string
	errs    map[string]error
	details map[string]*scraper.Detail
}

func (f *fakeScraper) ListCandidates(_ context.Context, sourceURL string) ([]string, error) {
	if err := f.errs[sourceURL]; err != nil {
		return nil, err
	}
	return f.pages[sourceURL], nil
}

func (f *fakeScraper) FetchDetail(_ context.Context, listingURL string) (*scraper.Detail, error) {
	if d, ok := f.details[listingURL]; ok {
		return d, nil
	}
	return &scraper.Detail{Title: "Role at " + listingURL}, nil
}

var _ scraper.Client = (*fakeScraper)(nil)

type fakeNotifier struct {
	err       error
	delivered []string
	channels  []string
}

func (f *fakeNotifier) Deliver(_ context.Context, channel, message string) error {
	if f.err != nil {
		return f.err
	}
	f.channels = append(f.channels, channel)
	f.delivered = append(f.delivered, message)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scorer: config.ScorerConfig{
			Timeout:   time.Second,
			CallDelay: time.Millisecond,
		},
		Notify: config.NotifyConfig{MaxDigestItems: 10},
	}
}

func testSchedule(userID uuid.UUID, sources ...string) *models.ScanSchedule {
	channel := "#jobs"
	return &models.ScanSchedule{
		ID:              uuid.New(),
		UserID:          userID,
		Enabled:         true,
		CronExpr:        "0 8 * * *",
		Timezone:        "UTC",
		SourceURLs:      sources,
		NotifyChannel:   &channel,
		NotifyThreshold: 70,
	}
}

func newRun(st *fakeStore, userID uuid.UUID) *models.ScanRun {
	run := &models.ScanRun{
		ID:        uuid.New(),
		UserID:    userID,
		Stage:     models.StageScraping,
		StartedAt: time.Now().Add(-time.Second),
	}
	_ = st.CreateRun(context.Background(), run)
	return run
}

func TestExecute_EndToEnd(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)

	// jobs/3 was discovered by an earlier run and already analyzed below the
	// notify threshold.
	oldScore, oldRec := 50, models.RecommendationSkip
	past := time.Now().Add(-time.Hour)
	st.listings["https://boards.example.com/jobs/3"] = &models.Listing{
		ID:             uuid.New(),
		UserID:         userID,
		CanonicalURL:   "https://boards.example.com/jobs/3",
		RelevanceScore: &oldScore,
		Recommendation: &oldRec,
		AnalyzedAt:     &past,
	}

	sc := &fakeScraper{
		pages: map[string][]string{
			"https://boards.example.com": {
				"https://boards.example.com/jobs/1",
				"https://boards.example.com/jobs/2",
				"https://boards.example.com/jobs/3",
			},
		},
		details: map[string]*scraper.Detail{
			"https://boards.example.com/jobs/1": {Title: "Senior Go Engineer", Company: "Acme", Location: "Oslo"},
			"https://boards.example.com/jobs/2": {Title: "Junior PHP Developer", Company: "Widgets"},
		},
	}

	provider := &mock.MockProvider{
		Name_: "mock",
		ScoreFunc: func(_ context.Context, _ models.Profile, l models.Listing) (models.ScoreResult, error) {
			if l.CanonicalURL == "https://boards.example.com/jobs/1" {
				return models.ScoreResult{Score: 91, Recommendation: models.RecommendationApply, Rationale: "strong match"}, nil
			}
			return models.ScoreResult{Score: 40, Recommendation: models.RecommendationSkip, Rationale: "wrong stack"}, nil
		},
	}
	notifier := &fakeNotifier{}

	coord := NewCoordinator(st, sc, provider, notifier, nil, testConfig())
	run := newRun(st, userID)

	err := coord.Execute(context.Background(), testSchedule(userID, "https://boards.example.com"), run)
	require.NoError(t, err)

	assert.Equal(t, models.StageDone, run.Stage)
	assert.Equal(t, []string{models.StageExtracting, models.StageAnalyzing, models.StageNotifying, models.StageDone}, st.stages)

	assert.Equal(t, 3, run.Counts.Scraped)
	assert.Equal(t, 2, run.Counts.New)
	assert.Equal(t, 1, run.Counts.Skipped)
	assert.Equal(t, 2, run.Counts.Extracted)
	assert.Equal(t, 2, run.Counts.Analyzed)
	assert.Equal(t, 0, run.Counts.AnalysisFailed)
	assert.Equal(t, 0, run.Counts.FailedSources)
	assert.Equal(t, 1, run.Counts.Notified)

	require.Len(t, notifier.delivered, 1)
	assert.Contains(t, notifier.delivered[0], "Senior Go Engineer")
	assert.NotContains(t, notifier.delivered[0], "Junior PHP Developer")
	assert.Equal(t, []string{"#jobs"}, notifier.channels)
}

func TestExecute_SecondPassScoresNothing(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)
	sc := &fakeScraper{
		pages: map[string][]string{
			"https://boards.example.com": {
				"https://boards.example.com/jobs/1",
				"https://boards.example.com/jobs/2",
			},
		},
	}
	provider := mock.NewMockProvider()
	coord := NewCoordinator(st, sc, provider, &fakeNotifier{}, nil, testConfig())
	schedule := testSchedule(userID, "https://boards.example.com")

	require.NoError(t, coord.Execute(context.Background(), schedule, newRun(st, userID)))
	require.Len(t, provider.Calls, 2)

	second := newRun(st, userID)
	require.NoError(t, coord.Execute(context.Background(), schedule, second))

	// Every listing is already analyzed; the second run must not call the
	// scorer at all.
	assert.Len(t, provider.Calls, 2)
	assert.Equal(t, models.StageDone, second.Stage)
	assert.Equal(t, 2, second.Counts.Scraped)
	assert.Equal(t, 0, second.Counts.New)
	assert.Equal(t, 2, second.Counts.Skipped)
	assert.Equal(t, 0, second.Counts.Analyzed)
}

func TestExecute_InRunDedup(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)
	sc := &fakeScraper{
		pages: map[string][]string{
			"https://boards.example.com": {
				"https://boards.example.com/jobs/1",
				"https://boards.example.com/jobs/1#apply",
				"https://boards.example.com/jobs/1?utm_source=feed",
			},
		},
	}
	coord := NewCoordinator(st, sc, mock.NewMockProvider(), &fakeNotifier{}, nil, testConfig())
	run := newRun(st, userID)

	require.NoError(t, coord.Execute(context.Background(), testSchedule(userID, "https://boards.example.com"), run))
	assert.Equal(t, 1, run.Counts.Scraped)
	assert.Equal(t, 1, run.Counts.New)
	assert.Equal(t, 0, run.Counts.Skipped)
}

func TestExecute_PartialSourceFailure(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)
	sc := &fakeScraper{
		pages: map[string][]string{
			"https://a.example.com": {"https://a.example.com/jobs/1"},
			"https://c.example.com": {"https://c.example.com/jobs/2"},
		},
		errs: map[string]error{
			"https://b.example.com": scraper.ErrSourceUnreachable,
		},
	}
	coord := NewCoordinator(st, sc, mock.NewMockProvider(), &fakeNotifier{}, nil, testConfig())
	run := newRun(st, userID)

	err := coord.Execute(context.Background(), testSchedule(userID, "https://a.example.com", "https://b.example.com", "https://c.example.com"), run)
	require.NoError(t, err)

	assert.Equal(t, models.StageDone, run.Stage)
	assert.Equal(t, 1, run.Counts.FailedSources)
	assert.Equal(t, 2, run.Counts.New)
	assert.Nil(t, run.ErrorMessage)
}

func TestExecute_TotalSourceFailureFailsRun(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)
	sc := &fakeScraper{
		errs: map[string]error{
			"https://a.example.com": scraper.ErrSourceUnreachable,
			"https://b.example.com": scraper.ErrSourceTimeout,
		},
	}
	coord := NewCoordinator(st, sc, mock.NewMockProvider(), &fakeNotifier{}, nil, testConfig())
	run := newRun(st, userID)

	err := coord.Execute(context.Background(), testSchedule(userID, "https://a.example.com", "https://b.example.com"), run)
	require.Error(t, err)

	assert.Equal(t, models.StageFailed, run.Stage)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "sources failed")
	assert.Equal(t, 2, run.Counts.FailedSources)
}

func TestExecute_ScorerFailureLeavesListingUnanalyzed(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)
	sc := &fakeScraper{
		pages: map[string][]string{
			"https://boards.example.com": {
				"https://boards.example.com/jobs/1",
				"https://boards.example.com/jobs/2",
			},
		},
	}
	coord := NewCoordinator(st, sc, mock.NewFailingProvider(errors.New("model offline")), &fakeNotifier{}, nil, testConfig())
	run := newRun(st, userID)

	require.NoError(t, coord.Execute(context.Background(), testSchedule(userID, "https://boards.example.com"), run))

	assert.Equal(t, models.StageDone, run.Stage)
	assert.Equal(t, 0, run.Counts.Analyzed)
	assert.Equal(t, 2, run.Counts.AnalysisFailed)
	for _, l := range st.listings {
		assert.Nil(t, l.RelevanceScore)
	}
}

func TestExecute_InvalidScoreCountsAsFailed(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)
	sc := &fakeScraper{
		pages: map[string][]string{
			"https://boards.example.com": {"https://boards.example.com/jobs/1"},
		},
	}
	provider := &mock.MockProvider{
		Name_: "mock",
		ScoreFunc: func(context.Context, models.Profile, models.Listing) (models.ScoreResult, error) {
			return models.ScoreResult{Score: 150, Recommendation: models.RecommendationApply}, nil
		},
	}
	coord := NewCoordinator(st, sc, provider, &fakeNotifier{}, nil, testConfig())
	run := newRun(st, userID)

	require.NoError(t, coord.Execute(context.Background(), testSchedule(userID, "https://boards.example.com"), run))
	assert.Equal(t, 1, run.Counts.AnalysisFailed)
	assert.Equal(t, 0, run.Counts.Analyzed)
}

func TestExecute_NotifyFailureStillDone(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)
	sc := &fakeScraper{
		pages: map[string][]string{
			"https://boards.example.com": {"https://boards.example.com/jobs/1"},
		},
	}
	coord := NewCoordinator(st, sc, mock.NewMockProvider(), &fakeNotifier{err: errors.New("webhook down")}, nil, testConfig())
	run := newRun(st, userID)

	require.NoError(t, coord.Execute(context.Background(), testSchedule(userID, "https://boards.example.com"), run))
	assert.Equal(t, models.StageDone, run.Stage)
	assert.Equal(t, 0, run.Counts.Notified)
}

func TestExecute_NotifiedMatchesTruncatedDigest(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)
	sc := &fakeScraper{
		pages: map[string][]string{
			"https://boards.example.com": {
				"https://boards.example.com/jobs/1",
				"https://boards.example.com/jobs/2",
				"https://boards.example.com/jobs/3",
				"https://boards.example.com/jobs/4",
			},
		},
	}
	notifier := &fakeNotifier{}
	cfg := testConfig()
	cfg.Notify.MaxDigestItems = 2

	coord := NewCoordinator(st, sc, mock.NewMockProvider(), notifier, nil, cfg)
	run := newRun(st, userID)

	require.NoError(t, coord.Execute(context.Background(), testSchedule(userID, "https://boards.example.com"), run))

	// All four scored above threshold, but the digest carried only two, and
	// the counter reflects what was delivered.
	assert.Equal(t, 4, run.Counts.Analyzed)
	require.Len(t, notifier.delivered, 1)
	assert.Contains(t, notifier.delivered[0], "and 2 more above your threshold")
	assert.Equal(t, 2, run.Counts.Notified)
}

func TestExecute_CanceledContextFailsRun(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)
	sc := &fakeScraper{
		pages: map[string][]string{
			"https://boards.example.com": {"https://boards.example.com/jobs/1"},
		},
	}
	coord := NewCoordinator(st, sc, mock.NewMockProvider(), &fakeNotifier{}, nil, testConfig())
	run := newRun(st, userID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := coord.Execute(ctx, testSchedule(userID, "https://boards.example.com"), run)
	require.Error(t, err)
	assert.Equal(t, models.StageFailed, run.Stage)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "canceled")
}

func TestExecute_CountInvariants(t *testing.T) {
	userID := uuid.New()
	st := newFakeStore(userID)
	var candidates []string
	for i := 0; i < 7; i++ {
		candidates = append(candidates, fmt.Sprintf("https://boards.example.com/jobs/%d", i))
	}
	sc := &fakeScraper{pages: map[string][]string{"https://boards.example.com": candidates}}

	// Every third call fails.
	var n int
	provider := &mock.MockProvider{
		Name_: "mock",
		ScoreFunc: func(context.Context, models.Profile, models.Listing) (models.ScoreResult, error) {
			n++
			if n%3 == 0 {
				return models.ScoreResult{}, errors.New("flaky")
			}
			return models.ScoreResult{Score: 75, Recommendation: models.RecommendationReview, Rationale: "ok"}, nil
		},
	}
	coord := NewCoordinator(st, sc, provider, &fakeNotifier{}, nil, testConfig())
	run := newRun(st, userID)

	require.NoError(t, coord.Execute(context.Background(), testSchedule(userID, "https://boards.example.com"), run))

	c := run.Counts
	assert.LessOrEqual(t, c.New, c.Scraped)
	assert.LessOrEqual(t, c.Analyzed+c.AnalysisFailed, c.New)
	assert.Equal(t, c.Scraped, c.New+c.Skipped)
	assert.Equal(t, 7, c.Scraped)
	assert.Equal(t, 5, c.Analyzed)
	assert.Equal(t, 2, c.AnalysisFailed)
}
