package session

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklog/internal/model"
	"worklog/internal/storage"
	"worklog/internal/storage/local"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newController(t *testing.T, mode PersistMode) (*Controller, *fakeClock, storage.Store) {
	t.Helper()
	store, err := local.OpenInMemory(log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	c := NewController(Options{
		Store:  storage.Serialized(store),
		Clock:  clock,
		Logger: log.New(io.Discard, "", 0),
		Mode:   mode,
	})
	require.NoError(t, c.Load(context.Background()))
	return c, clock, store
}

func TestDayLifecycle(t *testing.T) {
	c, clock, _ := newController(t, PersistOptimistic)
	ctx := context.Background()

	assert.Equal(t, StateIdle, c.State())
	assert.ErrorIs(t, c.EndDay(ctx), ErrDayNotStarted)

	require.NoError(t, c.StartDay(ctx, clock.now))
	assert.Equal(t, StateDayActive, c.State())
	assert.ErrorIs(t, c.StartDay(ctx, clock.now), ErrDayAlreadyStarted)

	_, err := c.StartNewTask(ctx, "standup", TaskPatch{})
	require.NoError(t, err)
	clock.advance(15 * time.Minute)
	_, err = c.StartNewTask(ctx, "feature work", TaskPatch{})
	require.NoError(t, err)

	clock.advance(2 * time.Hour)
	require.NoError(t, c.EndDay(ctx))
	assert.Equal(t, StateDayEnded, c.State())

	rec, err := c.PostDay(ctx, "shipped the thing")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State())
	assert.Len(t, rec.Tasks, 2)
	assert.Equal(t, "shipped the thing", rec.Notes)
	assert.Equal(t, int64((15*time.Minute + 2*time.Hour).Milliseconds()), rec.TotalDuration)

	snap := c.Snapshot()
	assert.False(t, snap.IsDayStarted)
	assert.Empty(t, snap.Tasks)
	assert.Nil(t, snap.CurrentTask)
}

func TestStartNewTaskKeepsSingleCurrentTask(t *testing.T) {
	c, clock, _ := newController(t, PersistOptimistic)
	ctx := context.Background()

	require.NoError(t, c.StartDay(ctx, clock.now))

	var lastID model.TaskID
	for i := 0; i < 4; i++ {
		task, err := c.StartNewTask(ctx, "task", TaskPatch{})
		require.NoError(t, err)
		lastID = task.ID
		clock.advance(10 * time.Minute)
	}

	snap := c.Snapshot()
	require.NotNil(t, snap.CurrentTask)
	assert.Equal(t, lastID, snap.CurrentTask.ID)
	assert.True(t, snap.CurrentTask.Running())

	running := 0
	for _, task := range snap.Tasks {
		if task.Running() {
			running++
		}
		// duration invariant on every closed task
		require.NotNil(t, task.Duration)
		assert.Equal(t, task.EndTime.Sub(task.StartTime).Milliseconds(), *task.Duration)
	}
	assert.Zero(t, running)
	assert.Len(t, snap.Tasks, 3)
}

func TestPostDayStraightFromActive(t *testing.T) {
	c, clock, _ := newController(t, PersistOptimistic)
	ctx := context.Background()

	require.NoError(t, c.StartDay(ctx, clock.now))
	_, err := c.PostDay(ctx, "")
	assert.ErrorIs(t, err, ErrNothingToPost)

	_, err = c.StartNewTask(ctx, "only task", TaskPatch{})
	require.NoError(t, err)
	clock.advance(time.Hour)

	rec, err := c.PostDay(ctx, "")
	require.NoError(t, err)
	assert.Len(t, rec.Tasks, 1)
	assert.False(t, rec.Tasks[0].Running())
}

func TestRestoreArchivedDay(t *testing.T) {
	c, clock, _ := newController(t, PersistOptimistic)
	ctx := context.Background()

	require.NoError(t, c.StartDay(ctx, clock.now))
	_, err := c.StartNewTask(ctx, "morning work", TaskPatch{})
	require.NoError(t, err)
	clock.advance(time.Hour)
	rec, err := c.PostDay(ctx, "")
	require.NoError(t, err)

	require.NoError(t, c.RestoreArchivedDay(ctx, rec.ID))
	assert.Equal(t, StateDayActive, c.State())
	assert.Empty(t, c.ArchivedDays())

	snap := c.Snapshot()
	assert.True(t, snap.IsDayStarted)
	assert.Len(t, snap.Tasks, 1)

	assert.ErrorIs(t, c.RestoreArchivedDay(ctx, rec.ID), ErrDayNotFound)
}

func TestRestoreResumesRunningTask(t *testing.T) {
	c, clock, _ := newController(t, PersistOptimistic)
	ctx := context.Background()

	// hand-build an archived day holding a still-running task
	start := clock.now
	running := model.NewTask("interrupted", start)
	done := model.NewTask("done", start)
	done.Close(start.Add(time.Hour))
	rec := model.NewDayRecord(start, start.Add(2*time.Hour), []model.Task{done, running}, "")

	c.mu.Lock()
	c.days = []model.DayRecord{rec}
	c.mu.Unlock()

	require.NoError(t, c.RestoreArchivedDay(ctx, rec.ID))
	snap := c.Snapshot()
	require.NotNil(t, snap.CurrentTask)
	assert.Equal(t, running.ID, snap.CurrentTask.ID)
	assert.Len(t, snap.Tasks, 1)
}

func TestUpdateDeleteAndAdjustTasks(t *testing.T) {
	c, clock, _ := newController(t, PersistOptimistic)
	ctx := context.Background()

	require.NoError(t, c.StartDay(ctx, clock.now))
	first, err := c.StartNewTask(ctx, "draft email", TaskPatch{})
	require.NoError(t, err)
	clock.advance(30 * time.Minute)
	second, err := c.StartNewTask(ctx, "call", TaskPatch{})
	require.NoError(t, err)

	project := "Acme Site"
	require.NoError(t, c.UpdateTask(ctx, first.ID, TaskPatch{Project: &project}))
	snap := c.Snapshot()
	require.NotNil(t, snap.Tasks[0].Project)
	assert.Equal(t, project, *snap.Tasks[0].Project)

	// clearing with empty string
	empty := ""
	require.NoError(t, c.UpdateTask(ctx, first.ID, TaskPatch{Project: &empty}))
	assert.Nil(t, c.Snapshot().Tasks[0].Project)

	assert.ErrorIs(t, c.UpdateTask(ctx, "task_unknown", TaskPatch{}), ErrTaskNotFound)

	// adjust: 8:37 start rounds down to 8:30
	raw := time.Date(2026, 5, 4, 8, 37, 0, 0, time.UTC)
	end := time.Date(2026, 5, 4, 9, 53, 0, 0, time.UTC) // rounds up to 10:00
	require.NoError(t, c.AdjustTaskTime(ctx, first.ID, raw, &end))
	adjusted := c.Snapshot().Tasks[0]
	assert.Equal(t, time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC), adjusted.StartTime)
	assert.Equal(t, time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC), *adjusted.EndTime)
	require.NotNil(t, adjusted.Duration)
	assert.Equal(t, int64(90*60*1000), *adjusted.Duration)

	require.NoError(t, c.DeleteTask(ctx, second.ID))
	assert.Nil(t, c.Snapshot().CurrentTask)
	require.NoError(t, c.DeleteTask(ctx, first.ID))
	assert.Empty(t, c.Snapshot().Tasks)
}

func TestArchiveEditingRecomputesTotals(t *testing.T) {
	c, clock, _ := newController(t, PersistOptimistic)
	ctx := context.Background()

	require.NoError(t, c.StartDay(ctx, clock.now))
	_, err := c.StartNewTask(ctx, "work", TaskPatch{})
	require.NoError(t, err)
	clock.advance(2 * time.Hour)
	rec, err := c.PostDay(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(7_200_000), rec.TotalDuration)

	shorter := append([]model.Task{}, rec.Tasks...)
	shorter[0].Close(shorter[0].StartTime.Add(time.Hour))
	require.NoError(t, c.EditArchivedDay(ctx, rec.ID, storage.DayPatch{Tasks: &shorter}))

	days := c.ArchivedDays()
	require.Len(t, days, 1)
	assert.Equal(t, int64(3_600_000), days[0].TotalDuration)

	require.NoError(t, c.DeleteArchivedDay(ctx, rec.ID))
	require.NoError(t, c.DeleteArchivedDay(ctx, rec.ID)) // idempotent
	assert.Empty(t, c.ArchivedDays())
}

func TestLoadHydratesFromStore(t *testing.T) {
	c, clock, store := newController(t, PersistOptimistic)
	ctx := context.Background()

	require.NoError(t, c.StartDay(ctx, clock.now))
	_, err := c.StartNewTask(ctx, "persisted", TaskPatch{})
	require.NoError(t, err)

	// a second controller over the same backend sees the same day
	c2 := NewController(Options{
		Store:  store,
		Clock:  clock,
		Logger: log.New(io.Discard, "", 0),
	})
	require.NoError(t, c2.Load(ctx))
	assert.Equal(t, StateDayActive, c2.State())
	require.NotNil(t, c2.Snapshot().CurrentTask)
	assert.Equal(t, "persisted", c2.Snapshot().CurrentTask.Title)
}

type failingStore struct {
	storage.Store
	fail bool
}

func (s *failingStore) SaveCurrentDay(ctx context.Context, snap model.DaySnapshot) error {
	if s.fail {
		return errors.New("network down")
	}
	return s.Store.SaveCurrentDay(ctx, snap)
}

func TestOptimisticPersistFailureSetsUnsavedFlag(t *testing.T) {
	inner, err := local.OpenInMemory(log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })

	fs := &failingStore{Store: inner, fail: true}
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	c := NewController(Options{
		Store:  fs,
		Clock:  clock,
		Logger: log.New(io.Discard, "", 0),
		Mode:   PersistOptimistic,
	})
	ctx := context.Background()

	// transition commits in memory even though the save failed
	require.NoError(t, c.StartDay(ctx, clock.now))
	assert.Equal(t, StateDayActive, c.State())
	assert.True(t, c.UnsavedChanges())

	fs.fail = false
	_, err = c.StartNewTask(ctx, "recovered", TaskPatch{})
	require.NoError(t, err)
	assert.False(t, c.UnsavedChanges())
}

func TestPessimisticPersistFailureRejectsTransition(t *testing.T) {
	inner, err := local.OpenInMemory(log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })

	fs := &failingStore{Store: inner, fail: true}
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	c := NewController(Options{
		Store:  fs,
		Clock:  clock,
		Logger: log.New(io.Discard, "", 0),
		Mode:   PersistPessimistic,
	})
	ctx := context.Background()

	err = c.StartDay(ctx, clock.now)
	assert.Error(t, err)
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.Snapshot().IsDayStarted)
}

func TestPessimisticPostRollsBackArchiveWhenSnapshotClearFails(t *testing.T) {
	inner, err := local.OpenInMemory(log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })

	fs := &failingStore{Store: inner}
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	c := NewController(Options{
		Store:  fs,
		Clock:  clock,
		Logger: log.New(io.Discard, "", 0),
		Mode:   PersistPessimistic,
	})
	ctx := context.Background()

	require.NoError(t, c.StartDay(ctx, clock.now))
	_, err = c.StartNewTask(ctx, "write invoice", TaskPatch{})
	require.NoError(t, err)
	clock.advance(2 * time.Hour)
	require.NoError(t, c.EndDay(ctx))

	// Archiving succeeds, clearing the snapshot does not. The day
	// must come back out of the archive or a retry would double it.
	fs.fail = true
	_, err = c.PostDay(ctx, "flaky")
	assert.Error(t, err)
	assert.Empty(t, c.ArchivedDays())
	stored, err := inner.ArchivedDays(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, StateDayEnded, c.State())

	fs.fail = false
	rec, err := c.PostDay(ctx, "second try")
	require.NoError(t, err)
	require.Len(t, c.ArchivedDays(), 1)
	assert.Len(t, rec.Tasks, 1)
	assert.Equal(t, StateIdle, c.State())
	assert.True(t, c.Snapshot().Empty())
}
