package migrate

import (
	"context"
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

func newStore(t *testing.T) *local.Store {
	t.Helper()
	s, err := local.OpenInMemory(log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newEngine(t *testing.T) (*Engine, storage.Store, storage.Store) {
	t.Helper()
	localStore := newStore(t)
	remoteStore := newStore(t)
	return New(localStore, remoteStore, log.New(io.Discard, "", 0)), localStore, remoteStore
}

func dayAt(t *testing.T, date string, n int) model.DayRecord {
	t.Helper()
	start, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	tasks := make([]model.Task, 0, n)
	for i := 0; i < n; i++ {
		task := model.NewTask("work", start.Add(time.Duration(i)*time.Hour))
		task.Close(start.Add(time.Duration(i+1) * time.Hour))
		tasks = append(tasks, task)
	}
	return model.NewDayRecord(start, start.Add(time.Duration(n)*time.Hour), tasks, "")
}

func startedSnapshot(taskCount int) model.DaySnapshot {
	start := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	snap := model.DaySnapshot{
		IsDayStarted: true,
		DayStartTime: &start,
		Tasks:        []model.Task{},
	}
	for i := 0; i < taskCount; i++ {
		task := model.NewTask("work", start.Add(time.Duration(i)*time.Hour))
		task.Close(start.Add(time.Duration(i+1) * time.Hour))
		snap.Tasks = append(snap.Tasks, task)
	}
	return snap
}

func TestFromLocalShortCircuitsOnEmptyLocal(t *testing.T) {
	engine, _, remoteStore := newEngine(t)
	ctx := context.Background()

	// populated remote account
	require.NoError(t, remoteStore.SaveArchivedDays(ctx, []model.DayRecord{dayAt(t, "2026-05-01", 2)}))
	require.NoError(t, remoteStore.SaveProjects(ctx, model.SeedProjects()))
	before, err := remoteStore.ArchivedDays(ctx)
	require.NoError(t, err)

	rep := engine.FromLocal(ctx)
	assert.True(t, rep.Skipped)
	assert.False(t, rep.ArchivedDaysPushed)

	after, err := remoteStore.ArchivedDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFromLocalPushesEverythingToEmptyRemote(t *testing.T) {
	engine, localStore, remoteStore := newEngine(t)
	ctx := context.Background()

	snap := startedSnapshot(2)
	require.NoError(t, localStore.SaveCurrentDay(ctx, snap))
	require.NoError(t, localStore.SaveArchivedDays(ctx, []model.DayRecord{dayAt(t, "2026-05-01", 1)}))
	require.NoError(t, localStore.SaveProjects(ctx, model.SeedProjects()))
	require.NoError(t, localStore.SaveCategories(ctx, model.SeedCategories()))

	rep := engine.FromLocal(ctx)
	assert.False(t, rep.Skipped)
	assert.True(t, rep.CurrentDayPushed)
	assert.True(t, rep.ArchivedDaysPushed)
	assert.True(t, rep.ProjectsPushed)
	assert.True(t, rep.CategoriesPushed)
	assert.Empty(t, rep.Warnings)

	got, err := remoteStore.CurrentDay(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap.TaskCount(), got.TaskCount())

	days, err := remoteStore.ArchivedDays(ctx)
	require.NoError(t, err)
	assert.Len(t, days, 1)
}

func TestFromLocalArchivePrecedenceByCount(t *testing.T) {
	ctx := context.Background()

	t.Run("local wins with strictly more days", func(t *testing.T) {
		engine, localStore, remoteStore := newEngine(t)

		localDays := []model.DayRecord{dayAt(t, "2026-05-01", 1), dayAt(t, "2026-05-02", 1), dayAt(t, "2026-05-03", 1)}
		require.NoError(t, localStore.SaveArchivedDays(ctx, localDays))
		require.NoError(t, remoteStore.SaveArchivedDays(ctx, []model.DayRecord{dayAt(t, "2026-04-01", 1)}))

		rep := engine.FromLocal(ctx)
		assert.True(t, rep.ArchivedDaysPushed)

		got, err := remoteStore.ArchivedDays(ctx)
		require.NoError(t, err)
		assert.Equal(t, localDays, got)
	})

	t.Run("remote wins on fewer local days", func(t *testing.T) {
		engine, localStore, remoteStore := newEngine(t)

		remoteDays := []model.DayRecord{dayAt(t, "2026-04-01", 1), dayAt(t, "2026-04-02", 1), dayAt(t, "2026-04-03", 1)}
		require.NoError(t, localStore.SaveArchivedDays(ctx, []model.DayRecord{dayAt(t, "2026-05-01", 1)}))
		require.NoError(t, remoteStore.SaveArchivedDays(ctx, remoteDays))

		rep := engine.FromLocal(ctx)
		assert.False(t, rep.ArchivedDaysPushed)

		got, err := remoteStore.ArchivedDays(ctx)
		require.NoError(t, err)
		assert.Equal(t, remoteDays, got)
	})

	t.Run("remote wins ties", func(t *testing.T) {
		engine, localStore, remoteStore := newEngine(t)

		remoteDays := []model.DayRecord{dayAt(t, "2026-04-01", 1)}
		require.NoError(t, localStore.SaveArchivedDays(ctx, []model.DayRecord{dayAt(t, "2026-05-01", 1)}))
		require.NoError(t, remoteStore.SaveArchivedDays(ctx, remoteDays))

		rep := engine.FromLocal(ctx)
		assert.False(t, rep.ArchivedDaysPushed)

		got, err := remoteStore.ArchivedDays(ctx)
		require.NoError(t, err)
		assert.Equal(t, remoteDays, got)
	})
}

func TestFromLocalCurrentDayByTaskCount(t *testing.T) {
	ctx := context.Background()
	engine, localStore, remoteStore := newEngine(t)

	localSnap := startedSnapshot(3)
	remoteSnap := startedSnapshot(1)
	require.NoError(t, localStore.SaveCurrentDay(ctx, localSnap))
	require.NoError(t, remoteStore.SaveCurrentDay(ctx, remoteSnap))

	rep := engine.FromLocal(ctx)
	assert.True(t, rep.CurrentDayPushed)

	got, err := remoteStore.CurrentDay(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.TaskCount())
}

func TestFromLocalDecisionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	engine, localStore, remoteStore := newEngine(t)

	// archive should stay remote, projects should still move
	require.NoError(t, localStore.SaveArchivedDays(ctx, []model.DayRecord{dayAt(t, "2026-05-01", 1)}))
	remoteDays := []model.DayRecord{dayAt(t, "2026-04-01", 1), dayAt(t, "2026-04-02", 1)}
	require.NoError(t, remoteStore.SaveArchivedDays(ctx, remoteDays))
	require.NoError(t, localStore.SaveProjects(ctx, model.SeedProjects()))

	rep := engine.FromLocal(ctx)
	assert.False(t, rep.ArchivedDaysPushed)
	assert.True(t, rep.ProjectsPushed)

	projects, err := remoteStore.Projects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, len(model.SeedProjects()))
}

func TestToLocalCopiesEveryCollection(t *testing.T) {
	ctx := context.Background()
	engine, localStore, remoteStore := newEngine(t)

	snap := startedSnapshot(2)
	days := []model.DayRecord{dayAt(t, "2026-05-01", 2)}
	require.NoError(t, remoteStore.SaveCurrentDay(ctx, snap))
	require.NoError(t, remoteStore.SaveArchivedDays(ctx, days))
	require.NoError(t, remoteStore.SaveProjects(ctx, model.SeedProjects()))
	require.NoError(t, remoteStore.SaveCategories(ctx, model.SeedCategories()))

	// stale local data gets overwritten, not merged
	require.NoError(t, localStore.SaveArchivedDays(ctx, []model.DayRecord{dayAt(t, "2025-01-01", 1)}))

	require.NoError(t, engine.ToLocal(ctx))

	gotDays, err := localStore.ArchivedDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, days, gotDays)

	gotSnap, err := localStore.CurrentDay(ctx)
	require.NoError(t, err)
	require.NotNil(t, gotSnap)
	assert.Equal(t, 2, gotSnap.TaskCount())

	projects, err := localStore.Projects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, len(model.SeedProjects()))
}
