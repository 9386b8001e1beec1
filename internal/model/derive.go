package model

import (
	"math"
	"time"
)

// ComputeDuration returns end - start in whole milliseconds, clamped
// to zero when end precedes start. Callers should not construct
// inverted pairs; the clamp keeps a bad pair from storing a negative
// duration.
func ComputeDuration(start, end time.Time) int64 {
	d := end.Sub(start).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

// RoundToQuarterHour rounds an instant to the nearest 15-minute
// boundary, ties rounding up. Seconds and finer are dropped before
// rounding. Applied whenever a task boundary is adjusted by hand, so
// billed time stays in clean increments.
func RoundToQuarterHour(t time.Time) time.Time {
	base := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	q := math.Floor(float64(t.Minute())/15 + 0.5)
	return base.Add(time.Duration(q) * 15 * time.Minute)
}

// TotalDuration sums stored task durations in milliseconds. A
// running task has none stored and contributes nothing; its live
// elapsed value comes from CurrentElapsed.
func TotalDuration(tasks []Task) int64 {
	var total int64
	for _, t := range tasks {
		if t.Duration != nil {
			total += *t.Duration
		}
	}
	return total
}

// CurrentElapsed returns the running task's elapsed milliseconds as
// of now, zero if no task is running. Never written to storage.
func CurrentElapsed(current *Task, now time.Time) int64 {
	if current == nil || !current.Running() {
		return 0
	}
	return ComputeDuration(current.StartTime, now)
}

// RevenueForTasks sums hourly-rate revenue over tasks whose project
// has a rate, rounded half-up to two decimals.
func RevenueForTasks(tasks []Task, projects []Project) float64 {
	rates := make(map[string]float64, len(projects))
	for _, p := range projects {
		if p.HourlyRate != nil {
			rates[p.Name] = *p.HourlyRate
		}
	}

	var total float64
	for _, t := range tasks {
		if t.Project == nil || t.Duration == nil {
			continue
		}
		rate, ok := rates[*t.Project]
		if !ok {
			continue
		}
		hours := float64(*t.Duration) / float64(time.Hour.Milliseconds())
		total += hours * rate
	}
	return Round2(total)
}

// Round2 rounds half-up to two decimal places.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
