// Package storage defines the persistence contract shared by the
// local, remote, and file backends, and the selection/serialization
// plumbing around it.
package storage

import (
	"context"
	"errors"

	"worklog/internal/model"
)

var (
	// ErrNotAuthenticated means an operation needed a resolved user
	// identity and none was available. Callers must not fall back to
	// a default identity.
	ErrNotAuthenticated = errors.New("no authenticated identity")

	// ErrSchemaUnavailable means the remote backend's capability
	// probe failed; higher layers degrade to local-only persistence.
	ErrSchemaUnavailable = errors.New("remote schema unavailable")
)

// DayPatch is a partial update for an archived day.
// nil pointer => "no change"; empty string for Notes clears it.
type DayPatch struct {
	Date      *string       `json:"date,omitempty"`
	Notes     *string       `json:"notes,omitempty"`
	Tasks     *[]model.Task `json:"tasks,omitempty"`
	StartTime *string       `json:"startTime,omitempty"` // RFC3339
	EndTime   *string       `json:"endTime,omitempty"`   // RFC3339
}

// Store is the backend contract. Every backend answers every call,
// even ones it could answer synchronously, so callers stay
// backend-agnostic.
//
// Replace semantics: SaveArchivedDays, SaveProjects and
// SaveCategories overwrite the whole collection; callers hold the
// complete set in memory. Read calls return empty slices, never nil.
// Corrupt persisted data is treated as absent (logged, not
// returned as an error).
type Store interface {
	SaveCurrentDay(ctx context.Context, snap model.DaySnapshot) error
	CurrentDay(ctx context.Context) (*model.DaySnapshot, error)

	SaveArchivedDays(ctx context.Context, days []model.DayRecord) error
	ArchivedDays(ctx context.Context) ([]model.DayRecord, error)
	UpdateArchivedDay(ctx context.Context, id model.DayRecordID, patch DayPatch) error
	DeleteArchivedDay(ctx context.Context, id model.DayRecordID) error

	SaveProjects(ctx context.Context, projects []model.Project) error
	Projects(ctx context.Context) ([]model.Project, error)

	SaveCategories(ctx context.Context, categories []model.Category) error
	Categories(ctx context.Context) ([]model.Category, error)
}

// Select returns the active backend for the given authentication
// state: remote when signed in, local otherwise. The file store is a
// desktop-only deployment target chosen by a separate path, never
// mixed with remote in one session.
func Select(authenticated bool, local, remote Store) Store {
	if authenticated {
		return remote
	}
	return local
}

// ApplyDayPatch applies a patch to a record and recomputes its
// totals when tasks changed. Returns false if nothing was touched.
func ApplyDayPatch(rec *model.DayRecord, patch DayPatch) bool {
	changed := false
	if patch.Date != nil {
		rec.Date = *patch.Date
		changed = true
	}
	if patch.Notes != nil {
		rec.Notes = *patch.Notes
		changed = true
	}
	if patch.StartTime != nil {
		if t, err := parseRFC3339(*patch.StartTime); err == nil {
			rec.StartTime = t
			changed = true
		}
	}
	if patch.EndTime != nil {
		if t, err := parseRFC3339(*patch.EndTime); err == nil {
			rec.EndTime = t
			changed = true
		}
	}
	if patch.Tasks != nil {
		if *patch.Tasks == nil {
			rec.Tasks = []model.Task{}
		} else {
			rec.Tasks = *patch.Tasks
		}
		rec.Recompute()
		changed = true
	}
	return changed
}
