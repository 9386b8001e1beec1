// Package migrate reconciles guest-mode local data with a remote
// account on sign-in, and primes the local store from remote for
// offline use. Decisions run on partial information and no server
// coordination, so every rule errs toward not destroying data.
package migrate

import (
	"context"
	"fmt"
	"log"

	"worklog/internal/storage"
)

// Engine moves collections between the local and remote stores.
type Engine struct {
	Local  storage.Store
	Remote storage.Store
	Logger *log.Logger
}

func New(local, remote storage.Store, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{Local: local, Remote: remote, Logger: logger}
}

// Report records what FromLocal decided, per collection.
type Report struct {
	Skipped bool `json:"skipped"` // local was empty, nothing to do

	CurrentDayPushed   bool `json:"currentDayPushed"`
	ArchivedDaysPushed bool `json:"archivedDaysPushed"`
	ProjectsPushed     bool `json:"projectsPushed"`
	CategoriesPushed   bool `json:"categoriesPushed"`

	// Warnings collects per-collection failures; migration is
	// best-effort and never blocks sign-in.
	Warnings []string `json:"warnings,omitempty"`
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// FromLocal migrates guest data up to the remote account. Invoked
// once per sign-in transition.
//
// Rules, applied independently per collection:
//   - entirely empty local store: do nothing, so an empty guest
//     session never clobbers a populated account
//   - entirely empty remote store: push everything (first login)
//   - otherwise: current day and archived days move only when local
//     strictly outnumbers remote; projects and categories move
//     whenever local has any (additive, low conflict risk)
func (e *Engine) FromLocal(ctx context.Context) Report {
	var rep Report

	localSnap, err := e.Local.CurrentDay(ctx)
	if err != nil {
		rep.warnf("read local current day: %v", err)
	}
	localDays, err := e.Local.ArchivedDays(ctx)
	if err != nil {
		rep.warnf("read local archived days: %v", err)
	}
	localProjects, err := e.Local.Projects(ctx)
	if err != nil {
		rep.warnf("read local projects: %v", err)
	}
	localCategories, err := e.Local.Categories(ctx)
	if err != nil {
		rep.warnf("read local categories: %v", err)
	}

	localEmpty := (localSnap == nil || localSnap.Empty()) &&
		len(localDays) == 0 && len(localProjects) == 0 && len(localCategories) == 0
	if localEmpty {
		rep.Skipped = true
		e.logWarnings(rep)
		return rep
	}

	remoteSnap, err := e.Remote.CurrentDay(ctx)
	if err != nil {
		rep.warnf("read remote current day: %v", err)
	}
	remoteDays, err := e.Remote.ArchivedDays(ctx)
	if err != nil {
		rep.warnf("read remote archived days: %v", err)
	}
	remoteProjects, err := e.Remote.Projects(ctx)
	if err != nil {
		rep.warnf("read remote projects: %v", err)
	}
	remoteCategories, err := e.Remote.Categories(ctx)
	if err != nil {
		rep.warnf("read remote categories: %v", err)
	}

	remoteEmpty := (remoteSnap == nil || remoteSnap.Empty()) &&
		len(remoteDays) == 0 && len(remoteProjects) == 0 && len(remoteCategories) == 0

	// Task count stands in for "more complete session"; record count
	// for "richer archive". Strictly-greater keeps remote
	// authoritative on ties.
	pushSnap := localSnap != nil && !localSnap.Empty()
	if !remoteEmpty && pushSnap {
		remoteCount := 0
		if remoteSnap != nil {
			remoteCount = remoteSnap.TaskCount()
		}
		pushSnap = localSnap.TaskCount() > remoteCount
	}
	if pushSnap {
		if err := e.Remote.SaveCurrentDay(ctx, *localSnap); err != nil {
			rep.warnf("push current day: %v", err)
		} else {
			rep.CurrentDayPushed = true
		}
	}

	pushDays := len(localDays) > 0
	if !remoteEmpty && pushDays {
		pushDays = len(localDays) > len(remoteDays)
	}
	if pushDays {
		if err := e.Remote.SaveArchivedDays(ctx, localDays); err != nil {
			rep.warnf("push archived days: %v", err)
		} else {
			rep.ArchivedDaysPushed = true
		}
	}

	if len(localProjects) > 0 {
		if err := e.Remote.SaveProjects(ctx, localProjects); err != nil {
			rep.warnf("push projects: %v", err)
		} else {
			rep.ProjectsPushed = true
		}
	}
	if len(localCategories) > 0 {
		if err := e.Remote.SaveCategories(ctx, localCategories); err != nil {
			rep.warnf("push categories: %v", err)
		} else {
			rep.CategoriesPushed = true
		}
	}

	e.logWarnings(rep)
	return rep
}

// ToLocal copies every collection from remote down to local to prime
// offline availability. No conflict logic: local is disposable in
// this direction.
func (e *Engine) ToLocal(ctx context.Context) error {
	snap, err := e.Remote.CurrentDay(ctx)
	if err != nil {
		return fmt.Errorf("pull current day: %w", err)
	}
	if snap != nil {
		if err := e.Local.SaveCurrentDay(ctx, *snap); err != nil {
			return fmt.Errorf("store current day: %w", err)
		}
	}

	days, err := e.Remote.ArchivedDays(ctx)
	if err != nil {
		return fmt.Errorf("pull archived days: %w", err)
	}
	if err := e.Local.SaveArchivedDays(ctx, days); err != nil {
		return fmt.Errorf("store archived days: %w", err)
	}

	projects, err := e.Remote.Projects(ctx)
	if err != nil {
		return fmt.Errorf("pull projects: %w", err)
	}
	if err := e.Local.SaveProjects(ctx, projects); err != nil {
		return fmt.Errorf("store projects: %w", err)
	}

	categories, err := e.Remote.Categories(ctx)
	if err != nil {
		return fmt.Errorf("pull categories: %w", err)
	}
	if err := e.Local.SaveCategories(ctx, categories); err != nil {
		return fmt.Errorf("store categories: %w", err)
	}
	return nil
}

func (e *Engine) logWarnings(rep Report) {
	for _, w := range rep.Warnings {
		e.Logger.Printf("migrate: %s", w)
	}
}
