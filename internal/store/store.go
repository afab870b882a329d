package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jobscout/jobscout/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)

	CreateSchedule(ctx context.Context, schedule *models.ScanSchedule) error
	ListEnabledSchedules(ctx context.Context) ([]*models.ScanSchedule, error)

	CreateRun(ctx context.Context, run *models.ScanRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.ScanRun, error)
	GetActiveRun(ctx context.Context, userID uuid.UUID) (*models.ScanRun, error)
	ListRuns(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.ScanRun, int, error)
	UpdateRunStage(ctx context.Context, id uuid.UUID, stage string, opts ...RunUpdateOption) error

	UpsertListingIfAbsent(ctx context.Context, listing *models.Listing) (uuid.UUID, bool, error)
	GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]*models.Listing, int, error)
	ListUnanalyzed(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Listing, error)
	ListAnalyzedSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.Listing, error)
	UpdateListingDetail(ctx context.Context, id uuid.UUID, title, company, location, description string) error
	SetAnalysisIfUnset(ctx context.Context, id uuid.UUID, score int, recommendation, rationale string) (bool, error)
}

// ListingFilter narrows ListListings results.
type ListingFilter struct {
	UserID         uuid.UUID
	Recommendation string
	MinScore       *int
	Page           int
	Limit          int
}

// RunUpdate carries the optional fields of an UpdateRunStage call. Exported so
// Store fakes can apply the same options the real store does.
type RunUpdate struct {
	ErrorMessage *string
	Counts       *models.RunCounts
}

type RunUpdateOption func(*RunUpdate)

func WithErrorMessage(msg string) RunUpdateOption {
	return func(p *RunUpdate) {
		p.ErrorMessage = &msg
	}
}

func WithCounts(counts models.RunCounts) RunUpdateOption {
	return func(p *RunUpdate) {
		p.Counts = &counts
	}
}
