// Package file persists collections as one JSON file each inside a
// user-chosen directory. It is the desktop deployment's backend; the
// host application provisions the directory, this package only reads
// and writes by path.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"worklog/internal/model"
	"worklog/internal/storage"
)

const (
	currentDayFile   = "current_day.json"
	archivedDaysFile = "archived_days.json"
	projectsFile     = "projects.json"
	categoriesFile   = "categories.json"
	settingsFile     = "settings.json"
)

// Settings is the sidecar the desktop shell stores its chosen data
// directory in.
type Settings struct {
	DataDir string `json:"dataDir"`
}

// Store is the filesystem-backed backend.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *log.Logger
}

var _ storage.Store = (*Store)(nil)

// Open ensures dir exists and records it in settings.json.
func Open(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}
	s := &Store{dir: dir, logger: logger}
	if err := s.writeFile(settingsFile, Settings{DataDir: dir}); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the data directory backing this store.
func (s *Store) Dir() string {
	return s.dir
}

// writeFile marshals v and replaces name atomically via a temp file,
// so a crash mid-write never leaves a truncated collection behind.
func (s *Store) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// readFile unmarshals name into out. Missing or corrupt files count
// as absent; corruption is logged, never surfaced.
func (s *Store) readFile(name string, out any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Printf("file store: discarding corrupt %s: %v", name, err)
		return false, nil
	}
	return true, nil
}

func (s *Store) SaveCurrentDay(_ context.Context, snap model.DaySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Tasks == nil {
		snap.Tasks = []model.Task{}
	}
	return s.writeFile(currentDayFile, snap)
}

func (s *Store) CurrentDay(_ context.Context) (*model.DaySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap model.DaySnapshot
	ok, err := s.readFile(currentDayFile, &snap)
	if err != nil || !ok {
		return nil, err
	}
	if snap.Tasks == nil {
		snap.Tasks = []model.Task{}
	}
	return &snap, nil
}

func (s *Store) SaveArchivedDays(_ context.Context, days []model.DayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if days == nil {
		days = []model.DayRecord{}
	}
	return s.writeFile(archivedDaysFile, days)
}

func (s *Store) ArchivedDays(_ context.Context) ([]model.DayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archivedDaysLocked()
}

func (s *Store) archivedDaysLocked() ([]model.DayRecord, error) {
	var days []model.DayRecord
	ok, err := s.readFile(archivedDaysFile, &days)
	if err != nil {
		return nil, err
	}
	if !ok || days == nil {
		return []model.DayRecord{}, nil
	}
	return days, nil
}

func (s *Store) UpdateArchivedDay(_ context.Context, id model.DayRecordID, patch storage.DayPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	days, err := s.archivedDaysLocked()
	if err != nil {
		return err
	}
	for i := range days {
		if days[i].ID == id {
			storage.ApplyDayPatch(&days[i], patch)
			return s.writeFile(archivedDaysFile, days)
		}
	}
	return nil
}

func (s *Store) DeleteArchivedDay(_ context.Context, id model.DayRecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	days, err := s.archivedDaysLocked()
	if err != nil {
		return err
	}
	kept := make([]model.DayRecord, 0, len(days))
	for _, d := range days {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(days) {
		return nil
	}
	return s.writeFile(archivedDaysFile, kept)
}

func (s *Store) SaveProjects(_ context.Context, projects []model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if projects == nil {
		projects = []model.Project{}
	}
	return s.writeFile(projectsFile, projects)
}

func (s *Store) Projects(_ context.Context) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var projects []model.Project
	ok, err := s.readFile(projectsFile, &projects)
	if err != nil {
		return nil, err
	}
	if !ok || projects == nil {
		return []model.Project{}, nil
	}
	return projects, nil
}

func (s *Store) SaveCategories(_ context.Context, categories []model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if categories == nil {
		categories = []model.Category{}
	}
	return s.writeFile(categoriesFile, categories)
}

func (s *Store) Categories(_ context.Context) ([]model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var categories []model.Category
	ok, err := s.readFile(categoriesFile, &categories)
	if err != nil {
		return nil, err
	}
	if !ok || categories == nil {
		return []model.Category{}, nil
	}
	return categories, nil
}
