// Package local persists collections to a device-scoped BadgerDB
// key-value store, one JSON document per logical key. It backs guest
// mode, where nothing leaves the machine.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/dgraph-io/badger/v4"

	"worklog/internal/model"
	"worklog/internal/storage"
)

const (
	keyCurrentDay   = "worklog:current_day"
	keyArchivedDays = "worklog:archived_days"
	keyProjects     = "worklog:projects"
	keyCategories   = "worklog:categories"
)

// Store is the badger-backed Local Store.
type Store struct {
	db     *badger.DB
	logger *log.Logger
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the badger database under dir.
func Open(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	opts := badger.DefaultOptions(dir).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory opens a throwaway in-memory store (tests, dry runs).
func OpenInMemory(logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// put marshals v under key in a single write transaction.
func (s *Store) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// get unmarshals key into out. Returns false when the key has never
// been written or holds corrupt JSON; corruption is logged and
// treated as absence so the app stays usable.
func (s *Store) get(key string, out any) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Printf("local store: discarding corrupt document at %s: %v", key, err)
		return false, nil
	}
	return true, nil
}

func (s *Store) SaveCurrentDay(_ context.Context, snap model.DaySnapshot) error {
	if snap.Tasks == nil {
		snap.Tasks = []model.Task{}
	}
	return s.put(keyCurrentDay, snap)
}

func (s *Store) CurrentDay(_ context.Context) (*model.DaySnapshot, error) {
	var snap model.DaySnapshot
	ok, err := s.get(keyCurrentDay, &snap)
	if err != nil || !ok {
		return nil, err
	}
	if snap.Tasks == nil {
		snap.Tasks = []model.Task{}
	}
	return &snap, nil
}

func (s *Store) SaveArchivedDays(_ context.Context, days []model.DayRecord) error {
	if days == nil {
		days = []model.DayRecord{}
	}
	return s.put(keyArchivedDays, days)
}

func (s *Store) ArchivedDays(_ context.Context) ([]model.DayRecord, error) {
	var days []model.DayRecord
	ok, err := s.get(keyArchivedDays, &days)
	if err != nil {
		return nil, err
	}
	if !ok || days == nil {
		return []model.DayRecord{}, nil
	}
	return days, nil
}

func (s *Store) UpdateArchivedDay(ctx context.Context, id model.DayRecordID, patch storage.DayPatch) error {
	days, err := s.ArchivedDays(ctx)
	if err != nil {
		return err
	}
	for i := range days {
		if days[i].ID == id {
			storage.ApplyDayPatch(&days[i], patch)
			return s.SaveArchivedDays(ctx, days)
		}
	}
	// unknown id is a lenient no-op
	return nil
}

func (s *Store) DeleteArchivedDay(ctx context.Context, id model.DayRecordID) error {
	days, err := s.ArchivedDays(ctx)
	if err != nil {
		return err
	}
	kept := days[:0]
	for _, d := range days {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(days) {
		return nil
	}
	return s.SaveArchivedDays(ctx, kept)
}

func (s *Store) SaveProjects(_ context.Context, projects []model.Project) error {
	if projects == nil {
		projects = []model.Project{}
	}
	return s.put(keyProjects, projects)
}

func (s *Store) Projects(_ context.Context) ([]model.Project, error) {
	var projects []model.Project
	ok, err := s.get(keyProjects, &projects)
	if err != nil {
		return nil, err
	}
	if !ok || projects == nil {
		return []model.Project{}, nil
	}
	return projects, nil
}

func (s *Store) SaveCategories(_ context.Context, categories []model.Category) error {
	if categories == nil {
		categories = []model.Category{}
	}
	return s.put(keyCategories, categories)
}

func (s *Store) Categories(_ context.Context) ([]model.Category, error) {
	var categories []model.Category
	ok, err := s.get(keyCategories, &categories)
	if err != nil {
		return nil, err
	}
	if !ok || categories == nil {
		return []model.Category{}, nil
	}
	return categories, nil
}
