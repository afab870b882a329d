// Package pipeline runs a single scan through its stages: scraping,
// extracting, analyzing, notifying.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jobscout/jobscout/internal/cache"
	"github.com/jobscout/jobscout/internal/config"
	"github.com/jobscout/jobscout/internal/notify"
	"github.com/jobscout/jobscout/internal/scraper"
	"github.com/jobscout/jobscout/internal/store"
	"github.com/jobscout/jobscout/pkg/models"
)

// runStageTTL bounds how long a run's stage lives in the cache after the last
// transition.
const runStageTTL = 24 * time.Hour

// analyzeBatchLimit caps how many unanalyzed listings one run scores. Leftovers
// are picked up by the next run.
const analyzeBatchLimit = 200

// Coordinator executes scan runs. One Execute call owns one run; nothing else
// mutates that run while it is active.
type Coordinator struct {
	store    store.Store
	scraper  scraper.Client
	provider models.ScoreProvider
	notifier notify.Notifier
	cache    cache.Cache
	cfg      *config.Config
}

func NewCoordinator(st store.Store, sc scraper.Client, provider models.ScoreProvider, notifier notify.Notifier, ca cache.Cache, cfg *config.Config) *Coordinator {
	return &Coordinator{
		store:    st,
		scraper:  sc,
		provider: provider,
		notifier: notifier,
		cache:    ca,
		cfg:      cfg,
	}
}

type createdListing struct {
	id  uuid.UUID
	url string
}

// Execute drives the run created by the sweeper through every stage. Listing
// and source level errors are recorded in the run counters and never abort the
// run; only total scrape failure or an unreachable store ends it in the failed
// stage.
func (c *Coordinator) Execute(ctx context.Context, schedule *models.ScanSchedule, run *models.ScanRun) error {
	log := slog.With("run_id", run.ID, "user_id", run.UserID)
	log.Info("scan run starting", "sources", len(schedule.SourceURLs))

	profile, err := c.store.GetProfile(ctx, run.UserID)
	if err != nil {
		return c.failRun(ctx, run, models.RunCounts{}, fmt.Sprintf("loading profile: %v", err))
	}

	counts := models.RunCounts{}
	c.mirrorStage(ctx, run.ID, models.StageScraping)

	created, err := c.scrape(ctx, log, schedule, run, &counts)
	if err != nil {
		return c.failRun(ctx, run, counts, err.Error())
	}

	if err := c.transition(ctx, run.ID, models.StageExtracting, counts); err != nil {
		return c.failRun(ctx, run, counts, fmt.Sprintf("advancing to extracting: %v", err))
	}

	if err := c.extract(ctx, log, created, &counts); err != nil {
		return c.failRun(ctx, run, counts, err.Error())
	}

	if err := c.transition(ctx, run.ID, models.StageAnalyzing, counts); err != nil {
		return c.failRun(ctx, run, counts, fmt.Sprintf("advancing to analyzing: %v", err))
	}

	if err := c.analyze(ctx, log, profile, run, &counts); err != nil {
		return c.failRun(ctx, run, counts, err.Error())
	}

	if err := c.transition(ctx, run.ID, models.StageNotifying, counts); err != nil {
		return c.failRun(ctx, run, counts, fmt.Sprintf("advancing to notifying: %v", err))
	}

	c.notify(ctx, log, schedule, run, &counts)

	if err := c.transition(ctx, run.ID, models.StageDone, counts); err != nil {
		return c.failRun(ctx, run, counts, fmt.Sprintf("completing run: %v", err))
	}

	log.Info("scan run done",
		"scraped", counts.Scraped,
		"new", counts.New,
		"analyzed", counts.Analyzed,
		"failed_sources", counts.FailedSources,
		"notified", counts.Notified,
	)
	return nil
}

// scrape walks every configured source, deduplicates candidates within the run
// by canonical URL and upserts them. Returns the listings created by this run.
func (c *Coordinator) scrape(ctx context.Context, log *slog.Logger, schedule *models.ScanSchedule, run *models.ScanRun, counts *models.RunCounts) ([]createdListing, error) {
	seen := make(map[string]bool)
	var created []createdListing

	for _, sourceURL := range schedule.SourceURLs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run canceled during scraping: %w", err)
		}

		candidates, err := c.scraper.ListCandidates(ctx, sourceURL)
		if err != nil {
			counts.FailedSources++
			log.Warn("source scrape failed", "source", sourceURL, "error", err)
			continue
		}

		for _, raw := range candidates {
			canon, err := scraper.Canonicalize(raw)
			if err != nil {
				log.Warn("skipping malformed candidate url", "url", raw, "error", err)
				continue
			}
			if seen[canon] {
				continue
			}
			seen[canon] = true
			counts.Scraped++

			listing := &models.Listing{
				UserID:       run.UserID,
				CanonicalURL: canon,
				SourceURL:    sourceURL,
			}
			id, wasCreated, err := c.store.UpsertListingIfAbsent(ctx, listing)
			if err != nil {
				return nil, fmt.Errorf("persisting listing: %v", err)
			}
			if wasCreated {
				counts.New++
				created = append(created, createdListing{id: id, url: canon})
			} else {
				counts.Skipped++
			}
		}
	}

	if len(schedule.SourceURLs) > 0 && counts.FailedSources == len(schedule.SourceURLs) {
		return nil, fmt.Errorf("all %d sources failed", counts.FailedSources)
	}
	return created, nil
}

// extract fetches detail pages for the listings this run created. Failures
// leave the listing with its canonical URL only.
func (c *Coordinator) extract(ctx context.Context, log *slog.Logger, created []createdListing, counts *models.RunCounts) error {
	for _, cl := range created {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled during extracting: %w", err)
		}

		detail, err := c.scraper.FetchDetail(ctx, cl.url)
		if err != nil {
			log.Warn("detail fetch failed", "listing_id", cl.id, "url", cl.url, "error", err)
			continue
		}
		if err := c.store.UpdateListingDetail(ctx, cl.id, detail.Title, detail.Company, detail.Location, detail.Description); err != nil {
			log.Warn("detail update failed", "listing_id", cl.id, "error", err)
			continue
		}
		counts.Extracted++
	}
	return nil
}

// analyze scores every unanalyzed listing for the user sequentially, keeping a
// minimum spacing between provider calls. A failed or invalid scorer response
// leaves the listing unanalyzed for a later run.
func (c *Coordinator) analyze(ctx context.Context, log *slog.Logger, profile *models.Profile, run *models.ScanRun, counts *models.RunCounts) error {
	pending, err := c.store.ListUnanalyzed(ctx, run.UserID, analyzeBatchLimit)
	if err != nil {
		return fmt.Errorf("listing unanalyzed: %v", err)
	}

	var lastCall time.Time
	for _, listing := range pending {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled during analyzing: %w", err)
		}
		if err := c.waitForSlot(ctx, lastCall); err != nil {
			return fmt.Errorf("run canceled during analyzing: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Scorer.Timeout)
		result, err := c.provider.Score(callCtx, *profile, *listing)
		cancel()
		lastCall = time.Now()

		if err != nil {
			counts.AnalysisFailed++
			log.Warn("scoring failed", "listing_id", listing.ID, "provider", c.provider.Name(), "error", err)
			continue
		}
		if err := result.Validate(); err != nil {
			counts.AnalysisFailed++
			log.Warn("scorer returned invalid result", "listing_id", listing.ID, "provider", c.provider.Name(), "error", err)
			continue
		}

		applied, err := c.store.SetAnalysisIfUnset(ctx, listing.ID, result.Score, result.Recommendation, result.Rationale)
		if err != nil {
			counts.AnalysisFailed++
			log.Warn("persisting analysis failed", "listing_id", listing.ID, "error", err)
			continue
		}
		if !applied {
			// Another writer analyzed it first; the stored result wins.
			counts.Skipped++
			continue
		}
		counts.Analyzed++
	}
	return nil
}

// notify builds the digest for listings analyzed during this run and delivers
// it. Delivery failure never fails the run.
func (c *Coordinator) notify(ctx context.Context, log *slog.Logger, schedule *models.ScanSchedule, run *models.ScanRun, counts *models.RunCounts) {
	analyzed, err := c.store.ListAnalyzedSince(ctx, run.UserID, run.StartedAt)
	if err != nil {
		log.Warn("loading analyzed listings for digest failed", "error", err)
		return
	}

	digest, rendered := notify.BuildDigest(analyzed, schedule.NotifyThreshold, c.cfg.Notify.MaxDigestItems)
	if digest == "" {
		log.Info("no listings above notify threshold, skipping digest")
		return
	}
	if c.notifier == nil {
		log.Info("no notifier configured, skipping digest")
		return
	}

	channel := ""
	if schedule.NotifyChannel != nil {
		channel = *schedule.NotifyChannel
	}
	if err := c.notifier.Deliver(ctx, channel, digest); err != nil {
		log.Warn("digest delivery failed", "error", err)
		return
	}

	// Count only the listings the delivered message actually contains.
	counts.Notified += rendered
}

// waitForSlot enforces the minimum spacing between scorer calls.
func (c *Coordinator) waitForSlot(ctx context.Context, lastCall time.Time) error {
	if lastCall.IsZero() {
		return nil
	}
	remaining := c.cfg.Scorer.CallDelay - time.Since(lastCall)
	if remaining <= 0 {
		return nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transition advances the run stage, persisting the current counters, and
// mirrors the new stage to the cache.
func (c *Coordinator) transition(ctx context.Context, runID uuid.UUID, stage string, counts models.RunCounts) error {
	if err := c.store.UpdateRunStage(ctx, runID, stage, store.WithCounts(counts)); err != nil {
		return err
	}
	c.mirrorStage(ctx, runID, stage)
	return nil
}

func (c *Coordinator) mirrorStage(ctx context.Context, runID uuid.UUID, stage string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetRunStage(ctx, runID, stage, runStageTTL); err != nil {
		slog.Warn("caching run stage failed", "run_id", runID, "stage", stage, "error", err)
	}
}

// failRun moves the run to the failed stage with the message and counters
// gathered so far. Uses a fresh context so a canceled run still gets recorded.
func (c *Coordinator) failRun(ctx context.Context, run *models.ScanRun, counts models.RunCounts, msg string) error {
	slog.Error("scan run failed", "run_id", run.ID, "user_id", run.UserID, "error", msg)

	updateCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		updateCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := c.store.UpdateRunStage(updateCtx, run.ID, models.StageFailed, store.WithErrorMessage(msg), store.WithCounts(counts)); err != nil {
		slog.Error("marking run failed", "run_id", run.ID, "error", err)
	}
	c.mirrorStage(updateCtx, run.ID, models.StageFailed)
	return fmt.Errorf("run %s failed: %s", run.ID, msg)
}
