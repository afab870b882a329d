package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jobscout/jobscout/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Profiles ---

func (s *PostgresStore) CreateProfile(ctx context.Context, p *models.Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, summary, skills, years_experience, locations, desired_roles, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.UserID, p.Summary, p.Skills, p.YearsExperience, p.Locations, p.DesiredRoles, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, summary, skills, years_experience, locations, desired_roles, updated_at
		 FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Summary, &p.Skills, &p.YearsExperience, &p.Locations, &p.DesiredRoles, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// --- Schedules ---

func (s *PostgresStore) CreateSchedule(ctx context.Context, sc *models.ScanSchedule) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_schedules (id, user_id, enabled, cron_expr, timezone, source_urls, notify_channel, notify_threshold, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sc.ID, sc.UserID, sc.Enabled, sc.CronExpr, sc.Timezone, sc.SourceURLs,
		sc.NotifyChannel, sc.NotifyThreshold, sc.CreatedAt, sc.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEnabledSchedules(ctx context.Context) ([]*models.ScanSchedule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, enabled, cron_expr, timezone, source_urls, notify_channel, notify_threshold, created_at, updated_at
		 FROM scan_schedules WHERE enabled = true ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.ScanSchedule
	for rows.Next() {
		var sc models.ScanSchedule
		if err := rows.Scan(&sc.ID, &sc.UserID, &sc.Enabled, &sc.CronExpr, &sc.Timezone,
			&sc.SourceURLs, &sc.NotifyChannel, &sc.NotifyThreshold, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, &sc)
	}
	return schedules, rows.Err()
}

// --- Runs ---

const runColumns = `id, user_id, stage, scraped, new, skipped, extracted, analyzed, analysis_failed, failed_sources, notified, error_message, started_at, completed_at`

func scanRun(row pgx.Row) (*models.ScanRun, error) {
	var r models.ScanRun
	err := row.Scan(&r.ID, &r.UserID, &r.Stage,
		&r.Counts.Scraped, &r.Counts.New, &r.Counts.Skipped, &r.Counts.Extracted,
		&r.Counts.Analyzed, &r.Counts.AnalysisFailed, &r.Counts.FailedSources, &r.Counts.Notified,
		&r.ErrorMessage, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.ScanRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_runs (id, user_id, stage, started_at)
		 VALUES ($1, $2, $3, $4)`,
		run.ID, run.UserID, run.Stage, run.StartedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.ScanRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM scan_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetActiveRun(ctx context.Context, userID uuid.UUID) (*models.ScanRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM scan_runs
		 WHERE user_id = $1 AND stage NOT IN ($2, $3)
		 ORDER BY started_at DESC LIMIT 1`,
		userID, models.StageDone, models.StageFailed))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active run: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.ScanRun, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM scan_runs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	limit, offset := normalizePage(page, limit)
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM scan_runs WHERE user_id = $1
		 ORDER BY started_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ScanRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, total, rows.Err()
}

// validStageTransitions mirrors the pipeline's forward-only state machine.
var validStageTransitions = map[string][]string{
	models.StageScraping:   {models.StageExtracting, models.StageFailed},
	models.StageExtracting: {models.StageAnalyzing, models.StageFailed},
	models.StageAnalyzing:  {models.StageNotifying, models.StageFailed},
	models.StageNotifying:  {models.StageDone, models.StageFailed},
}

func (s *PostgresStore) UpdateRunStage(ctx context.Context, id uuid.UUID, stage string, opts ...RunUpdateOption) error {
	params := &RunUpdate{}
	for _, opt := range opts {
		opt(params)
	}

	var currentStage string
	err := s.pool.QueryRow(ctx, `SELECT stage FROM scan_runs WHERE id = $1`, id).Scan(&currentStage)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get run stage: %w", err)
	}

	if stage != currentStage {
		valid := false
		for _, a := range validStageTransitions[currentStage] {
			if a == stage {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid run stage transition: %s -> %s", currentStage, stage)
		}
	}

	query := `UPDATE scan_runs SET stage = $2`
	args := []any{id, stage}
	argIdx := 3

	if models.IsTerminalStage(stage) {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, time.Now().UTC())
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.Counts != nil {
		c := params.Counts
		query += fmt.Sprintf(
			", scraped = $%d, new = $%d, skipped = $%d, extracted = $%d, analyzed = $%d, analysis_failed = $%d, failed_sources = $%d, notified = $%d",
			argIdx, argIdx+1, argIdx+2, argIdx+3, argIdx+4, argIdx+5, argIdx+6, argIdx+7)
		args = append(args, c.Scraped, c.New, c.Skipped, c.Extracted,
			c.Analyzed, c.AnalysisFailed, c.FailedSources, c.Notified)
	}

	query += " WHERE id = $1"

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update run stage: %w", err)
	}
	return nil
}

// --- Listings ---

const listingColumns = `id, user_id, canonical_url, source_url, title, company, location, description, relevance_score, recommendation, rationale, analyzed_at, created_at, updated_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.UserID, &l.CanonicalURL, &l.SourceURL, &l.Title, &l.Company,
		&l.Location, &l.Description, &l.RelevanceScore, &l.Recommendation, &l.Rationale,
		&l.AnalyzedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpsertListingIfAbsent inserts the listing keyed by (user_id, canonical_url).
// When the key already exists nothing is written and the existing id is
// returned with created=false.
func (s *PostgresStore) UpsertListingIfAbsent(ctx context.Context, l *models.Listing) (uuid.UUID, bool, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO listings (id, user_id, canonical_url, source_url, title, company, location, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		 ON CONFLICT (user_id, canonical_url) DO NOTHING
		 RETURNING id`,
		l.ID, l.UserID, l.CanonicalURL, l.SourceURL, l.Title, l.Company, l.Location,
		l.Description,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("upsert listing: %w", err)
	}

	// Conflict path: fetch the existing row's id.
	err = s.pool.QueryRow(ctx,
		`SELECT id FROM listings WHERE user_id = $1 AND canonical_url = $2`,
		l.UserID, l.CanonicalURL,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("get existing listing: %w", err)
	}
	return id, false, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, filter ListingFilter) ([]*models.Listing, int, error) {
	conditions := []string{"user_id = $1"}
	args := []any{filter.UserID}
	argIdx := 2

	if filter.Recommendation != "" {
		conditions = append(conditions, fmt.Sprintf("recommendation = $%d", argIdx))
		args = append(args, filter.Recommendation)
		argIdx++
	}
	if filter.MinScore != nil {
		conditions = append(conditions, fmt.Sprintf("relevance_score >= $%d", argIdx))
		args = append(args, *filter.MinScore)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM listings WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	limit, offset := normalizePage(filter.Page, filter.Limit)
	dataQuery := fmt.Sprintf(
		`SELECT `+listingColumns+` FROM listings WHERE %s
		 ORDER BY relevance_score DESC NULLS LAST, created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, total, rows.Err()
}

func (s *PostgresStore) ListUnanalyzed(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE user_id = $1 AND relevance_score IS NULL
		 ORDER BY created_at LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unanalyzed listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) ListAnalyzedSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE user_id = $1 AND analyzed_at >= $2
		 ORDER BY relevance_score DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list analyzed listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// UpdateListingDetail merges scraped detail fields. Analysis columns are
// never touched here.
func (s *PostgresStore) UpdateListingDetail(ctx context.Context, id uuid.UUID, title, company, location, description string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET
		   title = COALESCE(NULLIF($2, ''), title),
		   company = COALESCE(NULLIF($3, ''), company),
		   location = COALESCE(NULLIF($4, ''), location),
		   description = COALESCE(NULLIF($5, ''), description),
		   updated_at = NOW()
		 WHERE id = $1`, id, title, company, location, description)
	if err != nil {
		return fmt.Errorf("update listing detail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAnalysisIfUnset persists score, recommendation, rationale and analyzed_at
// as one conditional update. Returns applied=false when a score was already
// set, which is a safe no-op rather than an error.
func (s *PostgresStore) SetAnalysisIfUnset(ctx context.Context, id uuid.UUID, score int, recommendation, rationale string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET
		   relevance_score = $2, recommendation = $3, rationale = $4,
		   analyzed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND relevance_score IS NULL`,
		id, score, recommendation, rationale)
	if err != nil {
		return false, fmt.Errorf("set analysis: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- helpers ---

func normalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
