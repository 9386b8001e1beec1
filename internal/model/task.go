package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type TaskID string

// Task is one unit of tracked work. A task with no EndTime is the
// running ("current") task; at most one may exist system-wide.
type Task struct {
	ID          TaskID     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`

	// Duration is endTime - startTime in milliseconds. Absent while
	// the task is running.
	Duration *int64 `json:"duration,omitempty"`

	Project  *string `json:"project,omitempty"`
	Client   *string `json:"client,omitempty"`
	Category *string `json:"category,omitempty"`
}

// NewTask starts a task at the given instant.
func NewTask(title string, start time.Time) Task {
	return Task{
		ID:        TaskID("task_" + uuid.NewString()),
		Title:     strings.TrimSpace(title),
		StartTime: start.Truncate(time.Millisecond),
	}
}

// Running reports whether the task has not been ended yet.
func (t Task) Running() bool {
	return t.EndTime == nil
}

// Close ends the task at the given instant and fixes its duration.
func (t *Task) Close(end time.Time) {
	end = end.Truncate(time.Millisecond)
	t.EndTime = &end
	d := ComputeDuration(t.StartTime, end)
	t.Duration = &d
}

// SetTimes replaces both boundaries and recomputes the stored
// duration. Used by time adjustment; rounding happens at the caller.
func (t *Task) SetTimes(start time.Time, end *time.Time) {
	t.StartTime = start.Truncate(time.Millisecond)
	if end == nil {
		t.EndTime = nil
		t.Duration = nil
		return
	}
	t.Close(*end)
}
