package storage

import (
	"context"
	"sync"

	"worklog/internal/model"
)

// Serialized wraps a Store with one mutex per collection so rapid
// successive writes to the same collection complete in issue order.
// Different collections still proceed independently.
type serialized struct {
	inner Store

	dayMu      sync.Mutex
	archiveMu  sync.Mutex
	projectMu  sync.Mutex
	categoryMu sync.Mutex
}

// Serialized returns a Store whose per-collection writes are
// serialized. Reads share the same mutex as their collection's
// writes, so a read never observes a half-applied replace.
func Serialized(inner Store) Store {
	if _, ok := inner.(*serialized); ok {
		return inner
	}
	return &serialized{inner: inner}
}

func (s *serialized) SaveCurrentDay(ctx context.Context, snap model.DaySnapshot) error {
	s.dayMu.Lock()
	defer s.dayMu.Unlock()
	return s.inner.SaveCurrentDay(ctx, snap)
}

func (s *serialized) CurrentDay(ctx context.Context) (*model.DaySnapshot, error) {
	s.dayMu.Lock()
	defer s.dayMu.Unlock()
	return s.inner.CurrentDay(ctx)
}

func (s *serialized) SaveArchivedDays(ctx context.Context, days []model.DayRecord) error {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()
	return s.inner.SaveArchivedDays(ctx, days)
}

func (s *serialized) ArchivedDays(ctx context.Context) ([]model.DayRecord, error) {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()
	return s.inner.ArchivedDays(ctx)
}

func (s *serialized) UpdateArchivedDay(ctx context.Context, id model.DayRecordID, patch DayPatch) error {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()
	return s.inner.UpdateArchivedDay(ctx, id, patch)
}

func (s *serialized) DeleteArchivedDay(ctx context.Context, id model.DayRecordID) error {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()
	return s.inner.DeleteArchivedDay(ctx, id)
}

func (s *serialized) SaveProjects(ctx context.Context, projects []model.Project) error {
	s.projectMu.Lock()
	defer s.projectMu.Unlock()
	return s.inner.SaveProjects(ctx, projects)
}

func (s *serialized) Projects(ctx context.Context) ([]model.Project, error) {
	s.projectMu.Lock()
	defer s.projectMu.Unlock()
	return s.inner.Projects(ctx)
}

func (s *serialized) SaveCategories(ctx context.Context, categories []model.Category) error {
	s.categoryMu.Lock()
	defer s.categoryMu.Unlock()
	return s.inner.SaveCategories(ctx, categories)
}

func (s *serialized) Categories(ctx context.Context) ([]model.Category, error) {
	s.categoryMu.Lock()
	defer s.categoryMu.Unlock()
	return s.inner.Categories(ctx)
}
