// Package importer merges externally exported task rows back into a
// backend. Rows arrive already parsed by the export collaborator; this
// package only groups them and writes the result.
package importer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"worklog/internal/model"
	"worklog/internal/storage"
)

// Row is one exported task record. Optional columns are pointers so a
// missing value survives the trip distinct from an empty one.
type Row struct {
	ID          string
	Title       string
	Description string
	StartTime   time.Time
	EndTime     *time.Time
	Duration    *int64
	ProjectName *string
	Client      *string
	CategoryID  *string
	DayRecordID *string
	DayDate     string
	DayNotes    string
	IsCurrent   bool
}

// Grouped is the result of sorting rows into the shapes the stores
// understand.
type Grouped struct {
	Snapshot model.DaySnapshot
	Days     []model.DayRecord
}

type Importer struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.Default()
	}
	return &Importer{logger: logger}
}

func rowTask(r Row) model.Task {
	t := model.Task{
		ID:          model.TaskID(r.ID),
		Title:       r.Title,
		Description: r.Description,
		StartTime:   r.StartTime.Truncate(time.Millisecond),
		Project:     r.ProjectName,
		Client:      r.Client,
		Category:    r.CategoryID,
	}
	if r.EndTime != nil {
		end := r.EndTime.Truncate(time.Millisecond)
		t.EndTime = &end
		d := model.ComputeDuration(t.StartTime, end)
		if r.Duration != nil {
			d = *r.Duration
		}
		t.Duration = &d
	}
	return t
}

// Group sorts rows into a current-day snapshot and a set of archived
// days. Rows carrying a day record id land in that day; current rows
// form the snapshot, with at most one left running.
func (im *Importer) Group(rows []Row) (Grouped, error) {
	var out Grouped
	out.Snapshot.Tasks = []model.Task{}

	byDay := map[string]*model.DayRecord{}
	var dayOrder []string

	for _, r := range rows {
		if r.ID == "" {
			return Grouped{}, fmt.Errorf("importer: row without id (title %q)", r.Title)
		}
		task := rowTask(r)

		switch {
		case r.IsCurrent:
			if task.Running() {
				if out.Snapshot.CurrentTask != nil {
					// two running rows cannot both be current; close the earlier one
					prev := out.Snapshot.CurrentTask
					prev.Close(task.StartTime)
					out.Snapshot.Tasks = append(out.Snapshot.Tasks, *prev)
					im.logger.Printf("importer: closed extra running task %s at %s", prev.ID, task.StartTime)
				}
				out.Snapshot.CurrentTask = &task
				continue
			}
			out.Snapshot.Tasks = append(out.Snapshot.Tasks, task)

		case r.DayRecordID != nil && *r.DayRecordID != "":
			id := *r.DayRecordID
			rec, ok := byDay[id]
			if !ok {
				rec = &model.DayRecord{
					ID:    model.DayRecordID(id),
					Date:  r.DayDate,
					Notes: r.DayNotes,
					Tasks: []model.Task{},
				}
				byDay[id] = rec
				dayOrder = append(dayOrder, id)
			}
			rec.Tasks = append(rec.Tasks, task)

		default:
			return Grouped{}, fmt.Errorf("importer: row %s is neither current nor archived", r.ID)
		}
	}

	if out.Snapshot.TaskCount() > 0 {
		out.Snapshot.IsDayStarted = true
		start := snapshotStart(out.Snapshot)
		out.Snapshot.DayStartTime = &start
	}

	for _, id := range dayOrder {
		rec := byDay[id]
		sort.SliceStable(rec.Tasks, func(i, j int) bool {
			return rec.Tasks[i].StartTime.Before(rec.Tasks[j].StartTime)
		})
		rec.StartTime = rec.Tasks[0].StartTime
		rec.EndTime = dayEnd(rec.Tasks)
		if rec.Date == "" {
			rec.Date = rec.StartTime.Format("2006-01-02")
		}
		rec.Recompute()
		out.Days = append(out.Days, *rec)
	}
	sort.SliceStable(out.Days, func(i, j int) bool {
		return out.Days[i].StartTime.Before(out.Days[j].StartTime)
	})
	return out, nil
}

func snapshotStart(s model.DaySnapshot) time.Time {
	var start time.Time
	first := true
	consider := func(t time.Time) {
		if first || t.Before(start) {
			start = t
			first = false
		}
	}
	for _, t := range s.Tasks {
		consider(t.StartTime)
	}
	if s.CurrentTask != nil {
		consider(s.CurrentTask.StartTime)
	}
	return start
}

func dayEnd(tasks []model.Task) time.Time {
	end := tasks[0].StartTime
	for _, t := range tasks {
		if t.EndTime != nil && t.EndTime.After(end) {
			end = *t.EndTime
		}
	}
	return end
}

// Import groups rows and merges them into the store. Archived days are
// merged by id, imported data winning on collision; the snapshot only
// replaces the stored one when the import actually carries one.
func (im *Importer) Import(ctx context.Context, store storage.Store, rows []Row) (Grouped, error) {
	grouped, err := im.Group(rows)
	if err != nil {
		return Grouped{}, err
	}

	existing, err := store.ArchivedDays(ctx)
	if err != nil {
		return Grouped{}, err
	}
	merged := mergeDays(existing, grouped.Days)
	if err := store.SaveArchivedDays(ctx, merged); err != nil {
		return Grouped{}, err
	}

	if !grouped.Snapshot.Empty() {
		if err := store.SaveCurrentDay(ctx, grouped.Snapshot); err != nil {
			return Grouped{}, err
		}
	}
	im.logger.Printf("importer: merged %d day(s), %d current task(s)", len(grouped.Days), grouped.Snapshot.TaskCount())
	return grouped, nil
}

func mergeDays(existing, imported []model.DayRecord) []model.DayRecord {
	replaced := map[model.DayRecordID]bool{}
	for _, d := range imported {
		replaced[d.ID] = true
	}
	out := make([]model.DayRecord, 0, len(existing)+len(imported))
	for _, d := range existing {
		if !replaced[d.ID] {
			out = append(out, d)
		}
	}
	out = append(out, imported...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
