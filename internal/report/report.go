// Package report computes summary statistics over archived days:
// hours per project and category, and billable revenue at the
// project rates.
package report

import (
	"time"

	"worklog/internal/model"
)

type Stats struct {
	Period        string  `json:"period"`
	Days          int     `json:"days"`
	Tasks         int     `json:"tasks"`
	TotalDuration int64   `json:"totalDuration"` // milliseconds
	TotalHours    float64 `json:"totalHours"`

	HoursByProject  map[string]float64 `json:"hoursByProject"`
	HoursByCategory map[string]float64 `json:"hoursByCategory"`

	// Revenue is only counted for tasks whose project carries an
	// hourly rate.
	Revenue float64 `json:"revenue"`
}

// Calculate summarizes every archived day starting at or after since.
// Rates come from the project list; projects without a rate
// contribute hours but no revenue.
func Calculate(days []model.DayRecord, projects []model.Project, since time.Time) Stats {
	stats := Stats{
		Period:          since.Format("2006-01-02"),
		HoursByProject:  make(map[string]float64),
		HoursByCategory: make(map[string]float64),
	}

	var billable []model.Task
	for _, day := range days {
		if day.StartTime.Before(since) {
			continue
		}
		stats.Days++
		for _, task := range day.Tasks {
			if task.Duration == nil {
				continue
			}
			stats.Tasks++
			stats.TotalDuration += *task.Duration
			hours := float64(*task.Duration) / float64(time.Hour/time.Millisecond)
			if task.Project != nil && *task.Project != "" {
				stats.HoursByProject[*task.Project] += hours
			}
			if task.Category != nil && *task.Category != "" {
				stats.HoursByCategory[*task.Category] += hours
			}
			billable = append(billable, task)
		}
	}

	stats.TotalHours = model.Round2(float64(stats.TotalDuration) / float64(time.Hour/time.Millisecond))
	for k, v := range stats.HoursByProject {
		stats.HoursByProject[k] = model.Round2(v)
	}
	for k, v := range stats.HoursByCategory {
		stats.HoursByCategory[k] = model.Round2(v)
	}
	stats.Revenue = model.RevenueForTasks(billable, projects)
	return stats
}
