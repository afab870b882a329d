// Package sweeper evaluates every enabled scan schedule on a fixed tick and
// launches pipeline runs for the ones due now.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jobscout/jobscout/internal/cron"
	"github.com/jobscout/jobscout/internal/store"
	"github.com/jobscout/jobscout/pkg/models"
)

// Executor runs one scan to completion. Satisfied by pipeline.Coordinator.
type Executor interface {
	Execute(ctx context.Context, schedule *models.ScanSchedule, run *models.ScanRun) error
}

// ScheduleStore is the slice of the data layer the sweeper needs.
type ScheduleStore interface {
	ListEnabledSchedules(ctx context.Context) ([]*models.ScanSchedule, error)
	GetActiveRun(ctx context.Context, userID uuid.UUID) (*models.ScanRun, error)
	CreateRun(ctx context.Context, run *models.ScanRun) error
	UpdateRunStage(ctx context.Context, runID uuid.UUID, stage string, opts ...store.RunUpdateOption) error
}

// SweepResult summarizes one sweep tick.
type SweepResult struct {
	Checked int `json:"checked"`
	Fired   int `json:"fired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Sweeper walks enabled schedules each tick and starts at most one run per
// user. Safe for concurrent Sweep calls.
type Sweeper struct {
	store     ScheduleStore
	exec      Executor
	tolerance int
	now       func() time.Time

	runCtx    context.Context
	cancelAll context.CancelFunc

	mu     sync.Mutex
	active map[uuid.UUID]bool
}

func NewSweeper(st ScheduleStore, exec Executor, toleranceMinutes int) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		store:     st,
		exec:      exec,
		tolerance: toleranceMinutes,
		now:       time.Now,
		runCtx:    ctx,
		cancelAll: cancel,
		active:    make(map[uuid.UUID]bool),
	}
}

// Stop cancels all in-flight runs launched by this sweeper.
func (s *Sweeper) Stop() {
	s.cancelAll()
}

// Sweep evaluates every enabled schedule once against the current time.
// A schedule with a malformed expression or unknown timezone is logged and
// never fires. A user with an active run is skipped, never queued.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var result SweepResult

	schedules, err := s.store.ListEnabledSchedules(ctx)
	if err != nil {
		slog.Error("listing schedules for sweep", "error", err)
		return result
	}

	nowUTC := s.now().UTC()
	for _, schedule := range schedules {
		result.Checked++

		fired, err := cron.Fires(schedule.CronExpr, nowUTC, schedule.Timezone, s.tolerance)
		if err != nil {
			slog.Warn("schedule has invalid configuration",
				"schedule_id", schedule.ID,
				"user_id", schedule.UserID,
				"cron", schedule.CronExpr,
				"timezone", schedule.Timezone,
				"error", err,
			)
			continue
		}
		if !fired {
			continue
		}

		if !s.tryAcquire(schedule.UserID) {
			result.Skipped++
			continue
		}

		if err := s.launch(ctx, schedule, nowUTC); err != nil {
			s.release(schedule.UserID)
			if errors.Is(err, errRunActive) {
				result.Skipped++
				continue
			}
			slog.Error("launching run failed", "user_id", schedule.UserID, "error", err)
			result.Failed++
			continue
		}
		result.Fired++
	}

	slog.Info("sweep complete",
		"checked", result.Checked,
		"fired", result.Fired,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result
}

var errRunActive = errors.New("user already has an active run")

// launch creates the run row and hands it to the executor in the background.
// The in-memory guard is held until the run goroutine finishes.
func (s *Sweeper) launch(ctx context.Context, schedule *models.ScanSchedule, nowUTC time.Time) error {
	if _, err := s.store.GetActiveRun(ctx, schedule.UserID); err == nil {
		return errRunActive
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("checking active run: %w", err)
	}

	run := &models.ScanRun{
		ID:        uuid.New(),
		UserID:    schedule.UserID,
		Stage:     models.StageScraping,
		StartedAt: nowUTC,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	go func() {
		defer s.release(schedule.UserID)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in scan run", "run_id", run.ID, "user_id", run.UserID, "panic", r)
				s.failPanickedRun(run, r)
			}
		}()
		// Errors are already recorded on the run row by the executor.
		_ = s.exec.Execute(s.runCtx, schedule, run)
	}()
	return nil
}

// failPanickedRun moves a run whose executor panicked to the failed stage.
// Left active, the row would make every later active-run check skip the user.
// Uses a fresh context so shutdown cancellation cannot strand the row either.
func (s *Sweeper) failPanickedRun(run *models.ScanRun, cause any) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := fmt.Sprintf("panic: %v", cause)
	if err := s.store.UpdateRunStage(ctx, run.ID, models.StageFailed, store.WithErrorMessage(msg)); err != nil {
		slog.Error("marking panicked run failed", "run_id", run.ID, "error", err)
	}
}

func (s *Sweeper) tryAcquire(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[userID] {
		return false
	}
	s.active[userID] = true
	return true
}

func (s *Sweeper) release(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, userID)
}
