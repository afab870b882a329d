package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jobscout/jobscout/internal/store"
	"github.com/jobscout/jobscout/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runStageUpdate struct {
	runID  uuid.UUID
	stage  string
	update store.RunUpdate
}

type fakeScheduleStore struct {
	mu        sync.Mutex
	schedules []*models.ScanSchedule
	activeRun map[uuid.UUID]*models.ScanRun
	createErr error
	created   []*models.ScanRun
	updates   []runStageUpdate

	// trackActive makes created runs show up as active until a terminal
	// stage update, the way the real store behaves.
	trackActive bool
}

func (f *fakeScheduleStore) ListEnabledSchedules(context.Context) ([]*models.ScanSchedule, error) {
	return f.schedules, nil
}

func (f *fakeScheduleStore) GetActiveRun(_ context.Context, userID uuid.UUID) (*models.ScanRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.activeRun[userID]; ok {
		return run, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeScheduleStore) CreateRun(_ context.Context, run *models.ScanRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, run)
	if f.trackActive {
		if f.activeRun == nil {
			f.activeRun = make(map[uuid.UUID]*models.ScanRun)
		}
		f.activeRun[run.UserID] = run
	}
	return nil
}

func (f *fakeScheduleStore) UpdateRunStage(_ context.Context, runID uuid.UUID, stage string, opts ...store.RunUpdateOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	update := store.RunUpdate{}
	for _, opt := range opts {
		opt(&update)
	}
	f.updates = append(f.updates, runStageUpdate{runID: runID, stage: stage, update: update})
	if models.IsTerminalStage(stage) {
		for userID, run := range f.activeRun {
			if run.ID == runID {
				delete(f.activeRun, userID)
			}
		}
	}
	return nil
}

func (f *fakeScheduleStore) stageUpdates() []runStageUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runStageUpdate(nil), f.updates...)
}

// fakeExecutor records executions and can block or panic on demand.
type fakeExecutor struct {
	mu       sync.Mutex
	runs     []uuid.UUID
	block    chan struct{}
	panicFor map[uuid.UUID]bool
	done     chan struct{}
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{done: make(chan struct{}, 16)}
}

func (f *fakeExecutor) Execute(_ context.Context, schedule *models.ScanSchedule, run *models.ScanRun) error {
	defer func() { f.done <- struct{}{} }()
	f.mu.Lock()
	f.runs = append(f.runs, run.UserID)
	shouldPanic := f.panicFor[schedule.UserID]
	f.mu.Unlock()
	if shouldPanic {
		panic("executor blew up")
	}
	if f.block != nil {
		<-f.block
	}
	return nil
}

func (f *fakeExecutor) executed() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.runs...)
}

func waitDone(t *testing.T, f *fakeExecutor, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for executor")
		}
	}
}

func schedule(userID uuid.UUID, expr, tz string) *models.ScanSchedule {
	return &models.ScanSchedule{
		ID:         uuid.New(),
		UserID:     userID,
		Enabled:    true,
		CronExpr:   expr,
		Timezone:   tz,
		SourceURLs: []string{"https://boards.example.com"},
	}
}

// newTestSweeper pins the clock to 08:02 UTC on a Monday.
func newTestSweeper(st ScheduleStore, exec Executor) *Sweeper {
	s := NewSweeper(st, exec, 4)
	s.now = func() time.Time {
		return time.Date(2026, 6, 1, 8, 2, 0, 0, time.UTC)
	}
	return s
}

func TestSweep_FiresDueSchedule(t *testing.T) {
	userID := uuid.New()
	st := &fakeScheduleStore{schedules: []*models.ScanSchedule{schedule(userID, "0 8 * * *", "UTC")}}
	exec := newFakeExecutor()
	s := newTestSweeper(st, exec)

	result := s.Sweep(context.Background())
	waitDone(t, exec, 1)

	assert.Equal(t, SweepResult{Checked: 1, Fired: 1}, result)
	require.Len(t, st.created, 1)
	assert.Equal(t, userID, st.created[0].UserID)
	assert.Equal(t, models.StageScraping, st.created[0].Stage)
	assert.Equal(t, []uuid.UUID{userID}, exec.executed())
}

func TestSweep_NotDueSchedulesDoNotFire(t *testing.T) {
	st := &fakeScheduleStore{schedules: []*models.ScanSchedule{
		schedule(uuid.New(), "30 14 * * *", "UTC"),
		schedule(uuid.New(), "0 8 * * 0", "UTC"), // Sunday only; the clock is pinned to Monday
	}}
	s := newTestSweeper(st, newFakeExecutor())

	result := s.Sweep(context.Background())
	assert.Equal(t, SweepResult{Checked: 2}, result)
	assert.Empty(t, st.created)
}

func TestSweep_InvalidConfigNeverFires(t *testing.T) {
	st := &fakeScheduleStore{schedules: []*models.ScanSchedule{
		schedule(uuid.New(), "not a cron", "UTC"),
		schedule(uuid.New(), "0 8 * * *", "Mars/Olympus"),
	}}
	s := newTestSweeper(st, newFakeExecutor())

	result := s.Sweep(context.Background())
	assert.Equal(t, SweepResult{Checked: 2}, result)
	assert.Empty(t, st.created)
}

func TestSweep_ActiveRunIsSkippedNotQueued(t *testing.T) {
	userID := uuid.New()
	st := &fakeScheduleStore{
		schedules: []*models.ScanSchedule{schedule(userID, "0 8 * * *", "UTC")},
		activeRun: map[uuid.UUID]*models.ScanRun{
			userID: {ID: uuid.New(), UserID: userID, Stage: models.StageAnalyzing},
		},
	}
	s := newTestSweeper(st, newFakeExecutor())

	result := s.Sweep(context.Background())
	assert.Equal(t, SweepResult{Checked: 1, Skipped: 1}, result)
	assert.Empty(t, st.created)
}

func TestSweep_InMemoryGuardSkipsSecondSweep(t *testing.T) {
	userID := uuid.New()
	st := &fakeScheduleStore{schedules: []*models.ScanSchedule{schedule(userID, "0 8 * * *", "UTC")}}
	exec := newFakeExecutor()
	exec.block = make(chan struct{})
	s := newTestSweeper(st, exec)

	first := s.Sweep(context.Background())
	assert.Equal(t, 1, first.Fired)

	// The run is still executing; the guard must keep the user out.
	second := s.Sweep(context.Background())
	assert.Equal(t, SweepResult{Checked: 1, Skipped: 1}, second)

	close(exec.block)
	waitDone(t, exec, 1)
}

func TestSweep_PanicIsolatedAndGuardReleased(t *testing.T) {
	panicker := uuid.New()
	healthy := uuid.New()
	st := &fakeScheduleStore{schedules: []*models.ScanSchedule{
		schedule(panicker, "0 8 * * *", "UTC"),
		schedule(healthy, "0 8 * * *", "UTC"),
	}}
	exec := newFakeExecutor()
	exec.panicFor = map[uuid.UUID]bool{panicker: true}
	s := newTestSweeper(st, exec)

	result := s.Sweep(context.Background())
	waitDone(t, exec, 2)

	// Both launched; the panic in one run never disturbed the other.
	assert.Equal(t, SweepResult{Checked: 2, Fired: 2}, result)
	assert.ElementsMatch(t, []uuid.UUID{panicker, healthy}, exec.executed())

	// The guard was released, so the panicking user can fire again.
	again := s.Sweep(context.Background())
	waitDone(t, exec, 2)
	assert.Equal(t, 2, again.Fired)
}

func TestSweep_PanickedRunMarkedFailedAndUserRecovers(t *testing.T) {
	userID := uuid.New()
	st := &fakeScheduleStore{
		schedules:   []*models.ScanSchedule{schedule(userID, "0 8 * * *", "UTC")},
		trackActive: true,
	}
	exec := newFakeExecutor()
	exec.panicFor = map[uuid.UUID]bool{userID: true}
	s := newTestSweeper(st, exec)

	first := s.Sweep(context.Background())
	waitDone(t, exec, 1)
	assert.Equal(t, 1, first.Fired)

	// The run row must reach the failed stage with the panic recorded,
	// otherwise the active-run check skips this user on every later tick.
	require.Eventually(t, func() bool {
		for _, u := range st.stageUpdates() {
			if u.stage == models.StageFailed {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	failed := st.stageUpdates()[0]
	assert.Equal(t, st.created[0].ID, failed.runID)
	require.NotNil(t, failed.update.ErrorMessage)
	assert.Contains(t, *failed.update.ErrorMessage, "panic")

	// With the row terminal, a healthy executor fires for the user again.
	exec.panicFor = nil
	require.Eventually(t, func() bool {
		return s.Sweep(context.Background()).Fired == 1
	}, 2*time.Second, 5*time.Millisecond)
	waitDone(t, exec, 1)
}

func TestSweep_CreateRunErrorCountsAsFailed(t *testing.T) {
	userID := uuid.New()
	st := &fakeScheduleStore{
		schedules: []*models.ScanSchedule{schedule(userID, "0 8 * * *", "UTC")},
		createErr: errors.New("db down"),
	}
	s := newTestSweeper(st, newFakeExecutor())

	result := s.Sweep(context.Background())
	assert.Equal(t, SweepResult{Checked: 1, Failed: 1}, result)

	// The guard is released on failure; a later sweep retries.
	st.createErr = nil
	exec := newFakeExecutor()
	s.exec = exec
	retry := s.Sweep(context.Background())
	waitDone(t, exec, 1)
	assert.Equal(t, 1, retry.Fired)
}

func TestSweep_ToleranceWindow(t *testing.T) {
	userID := uuid.New()
	st := &fakeScheduleStore{schedules: []*models.ScanSchedule{schedule(userID, "58 7 * * *", "UTC")}}
	exec := newFakeExecutor()
	s := newTestSweeper(st, exec)

	// 08:02 is 4 minutes past 07:58 on the circular minute wheel, but the
	// hour no longer matches, so the schedule does not fire.
	result := s.Sweep(context.Background())
	assert.Equal(t, SweepResult{Checked: 1}, result)
}
