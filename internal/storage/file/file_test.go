package file

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklog/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return s
}

func TestOpenWritesSettings(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	assert.Equal(t, dir, s.Dir())

	data, err := os.ReadFile(filepath.Join(dir, settingsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), dir)
}

func TestCurrentDayRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	got, err := s.CurrentDay(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	start := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	running := model.NewTask("write proposal", start)
	snap := model.DaySnapshot{
		IsDayStarted: true,
		DayStartTime: &start,
		CurrentTask:  &running,
		Tasks:        []model.Task{},
	}
	require.NoError(t, s.SaveCurrentDay(ctx, snap))

	got, err = s.CurrentDay(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snap, *got)

	// one file per collection on disk
	_, err = os.Stat(filepath.Join(s.Dir(), currentDayFile))
	assert.NoError(t, err)
}

func TestCorruptFileIsTreatedAsAbsent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), archivedDaysFile), []byte("{broken"), 0o644))

	days, err := s.ArchivedDays(ctx)
	require.NoError(t, err)
	assert.Empty(t, days)

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), currentDayFile), []byte("[]"), 0o644))
	snap, err := s.CurrentDay(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestDeleteArchivedDayIsIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	task := model.NewTask("work", start)
	task.Close(start.Add(time.Hour))
	day := model.NewDayRecord(start, start.Add(time.Hour), []model.Task{task}, "")

	require.NoError(t, s.SaveArchivedDays(ctx, []model.DayRecord{day}))
	require.NoError(t, s.DeleteArchivedDay(ctx, day.ID))
	require.NoError(t, s.DeleteArchivedDay(ctx, day.ID))

	days, err := s.ArchivedDays(ctx)
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestProjectsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)
	ctx := context.Background()

	s, err := Open(dir, logger)
	require.NoError(t, err)
	require.NoError(t, s.SaveProjects(ctx, model.SeedProjects()))

	s2, err := Open(dir, logger)
	require.NoError(t, err)

	projects, err := s2.Projects(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SeedProjects(), projects)
}
