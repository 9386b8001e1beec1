package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"worklog/internal/model"
	"worklog/internal/storage/file"
)

// Summary is what VerifyDataDir found in a data directory.
type Summary struct {
	Days          int   `json:"days"`
	ArchivedTasks int   `json:"archivedTasks"`
	CurrentTasks  int   `json:"currentTasks"`
	Projects      int   `json:"projects"`
	Categories    int   `json:"categories"`
	TotalDuration int64 `json:"totalDuration"` // ms across archived days
}

// VerifyDataDir checks that dir holds a readable tracking data
// directory: settings.json is present, every collection file in
// CollectionFiles that exists deserializes, and each archived day's
// stored total matches the sum of its tasks. The file backend shrugs
// off corrupt files as absent; here corruption is the whole point, so
// the collections are decoded directly and strictly.
func VerifyDataDir(dir string) (Summary, error) {
	var sum Summary
	dir = filepath.Clean(strings.TrimSpace(dir))
	if dir == "" {
		return sum, fmt.Errorf("dir is required")
	}

	var settings file.Settings
	if ok, err := readCollection(dir, settingsFile, &settings); err != nil {
		return sum, err
	} else if !ok {
		return sum, fmt.Errorf("not a tracking data directory (no %s): %s", settingsFile, dir)
	}

	var snap model.DaySnapshot
	if ok, err := readCollection(dir, "current_day.json", &snap); err != nil {
		return sum, err
	} else if ok {
		sum.CurrentTasks = len(snap.Tasks)
		if snap.CurrentTask != nil {
			sum.CurrentTasks++
		}
	}

	var days []model.DayRecord
	if _, err := readCollection(dir, "archived_days.json", &days); err != nil {
		return sum, err
	}
	sum.Days = len(days)
	for _, d := range days {
		if got := model.TotalDuration(d.Tasks); got != d.TotalDuration {
			return sum, fmt.Errorf("archived day %s: stored total %d does not match tasks (%d)", d.ID, d.TotalDuration, got)
		}
		sum.ArchivedTasks += len(d.Tasks)
		sum.TotalDuration += d.TotalDuration
	}

	var projects []model.Project
	if _, err := readCollection(dir, "projects.json", &projects); err != nil {
		return sum, err
	}
	sum.Projects = len(projects)

	var categories []model.Category
	if _, err := readCollection(dir, "categories.json", &categories); err != nil {
		return sum, err
	}
	sum.Categories = len(categories)

	return sum, nil
}

func readCollection(dir, name string, out any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("corrupt %s: %w", name, err)
	}
	return true, nil
}
