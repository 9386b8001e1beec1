package model

import (
	"time"

	"github.com/google/uuid"
)

type DayRecordID string

// DayRecord is an archived work day. Tasks keep insertion order,
// which is chronological.
type DayRecord struct {
	ID    DayRecordID `json:"id"`
	Date  string      `json:"date"` // YYYY-MM-DD
	Tasks []Task      `json:"tasks"`

	// TotalDuration is the sum of task durations in milliseconds. It
	// is fixed at archive time and recomputed whenever archived tasks
	// are edited.
	TotalDuration int64 `json:"totalDuration"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Notes     string    `json:"notes,omitempty"`
}

// NewDayRecord archives the given tasks as a completed day.
func NewDayRecord(start, end time.Time, tasks []Task, notes string) DayRecord {
	rec := DayRecord{
		ID:        DayRecordID("day_" + uuid.NewString()),
		Date:      start.Format("2006-01-02"),
		Tasks:     tasks,
		StartTime: start.Truncate(time.Millisecond),
		EndTime:   end.Truncate(time.Millisecond),
		Notes:     notes,
	}
	if rec.Tasks == nil {
		rec.Tasks = []Task{}
	}
	rec.Recompute()
	return rec
}

// Recompute refreshes TotalDuration from the tasks. Call after any
// post-archive edit; stored totals drift otherwise.
func (d *DayRecord) Recompute() {
	d.TotalDuration = TotalDuration(d.Tasks)
}

// DaySnapshot is the ephemeral, not-yet-archived state of the
// current work day. It must round-trip identically through every
// storage backend.
type DaySnapshot struct {
	IsDayStarted bool       `json:"isDayStarted"`
	DayStartTime *time.Time `json:"dayStartTime,omitempty"`
	CurrentTask  *Task      `json:"currentTask,omitempty"`
	Tasks        []Task     `json:"tasks"`
}

// Empty reports whether the snapshot carries no session state worth
// migrating: no started day and no recorded tasks.
func (s DaySnapshot) Empty() bool {
	return !s.IsDayStarted && len(s.Tasks) == 0 && s.CurrentTask == nil
}

// TaskCount counts recorded tasks plus the running one.
func (s DaySnapshot) TaskCount() int {
	n := len(s.Tasks)
	if s.CurrentTask != nil {
		n++
	}
	return n
}
