// Package remote persists collections to a user-scoped relational
// database. It stands behind the same contract as the local and file
// stores and carries the caching and diagnostics the hosted backend
// needs: identity caching (via auth.CachedResolver), short-lived
// reference-data caching, a capability probe, and an op log.
//
// The driver is modernc.org/sqlite, a pure-Go sqlite build; the
// hosted deployment points the same SQL at its managed database.
package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"worklog/internal/auth"
	"worklog/internal/model"
	"worklog/internal/storage"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Options configures the remote store.
type Options struct {
	// DSN is the sqlite path; ":memory:" for tests.
	DSN string

	// Resolver produces the row-scoping identity. Wrap it in an
	// auth.CachedResolver to get the identity-cache behavior.
	Resolver auth.Resolver

	// SkipBootstrap leaves schema creation to the deployment. The
	// capability probe then decides availability.
	SkipBootstrap bool

	// RefCacheTTL bounds reference-data staleness. Zero means 5m.
	RefCacheTTL time.Duration

	// OpLogCapacity bounds the diagnostics ring. Zero means 200.
	OpLogCapacity int

	Logger *log.Logger
}

// Store is the remote backend.
type Store struct {
	db       *sql.DB
	resolver auth.Resolver
	logger   *log.Logger

	refdata *refCache
	oplog   *OpLog

	probeOnce sync.Once
	probeErr  error
}

var _ storage.Store = (*Store)(nil)

// Open connects and, unless opted out, bootstraps the schema.
func Open(opts Options) (*Store, error) {
	if opts.Resolver == nil {
		return nil, errors.New("remote store: resolver is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.RefCacheTTL <= 0 {
		opts.RefCacheTTL = 5 * time.Minute
	}

	db, err := sql.Open("sqlite", opts.DSN+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open remote store: %w", err)
	}
	if strings.Contains(opts.DSN, ":memory:") {
		// each pooled connection would otherwise get its own empty db
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping remote store: %w", err)
	}
	if !opts.SkipBootstrap {
		if err := initSchema(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{
		db:       db,
		resolver: opts.Resolver,
		logger:   opts.Logger,
		refdata:  newRefCache(opts.RefCacheTTL),
		oplog:    NewOpLog(opts.OpLogCapacity),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BindAuthBus clears user-scoped caches on every auth transition,
// synchronously within the event handler.
func (s *Store) BindAuthBus(bus *auth.Bus) {
	bus.Subscribe(func(auth.Event) {
		s.refdata.invalidateAll()
	})
}

// Available reports whether the remote schema passed its one-time
// capability probe. A storage.ErrSchemaUnavailable result means the
// caller should degrade to local-only persistence.
func (s *Store) Available(ctx context.Context) error {
	s.probeOnce.Do(func() {
		s.probeErr = probeSchema(ctx, s.db)
		if s.probeErr != nil {
			s.logger.Printf("remote store: capability probe failed: %v", s.probeErr)
		}
	})
	return s.probeErr
}

// OpLogSnapshot exposes the diagnostics ring.
func (s *Store) OpLogSnapshot() ([]Entry, int64) {
	return s.oplog.Snapshot()
}

func (s *Store) userID(ctx context.Context) (string, error) {
	id, err := s.resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrSignedOut) {
			return "", storage.ErrNotAuthenticated
		}
		return "", fmt.Errorf("resolve identity: %w", err)
	}
	if id.UserID == "" {
		return "", storage.ErrNotAuthenticated
	}
	return id.UserID, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func encodeTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse instant %q: %w", raw, err)
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

func decodeTimePtr(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid {
		return nil, nil
	}
	t, err := decodeTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func strPtr(raw sql.NullString) *string {
	if !raw.Valid {
		return nil
	}
	v := raw.String
	return &v
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(raw sql.NullInt64) *int64 {
	if !raw.Valid {
		return nil
	}
	v := raw.Int64
	return &v
}

const upsertTaskSQL = `INSERT INTO tasks
	(id, user_id, title, description, start_time, end_time, duration,
	 project_name, client, category_id, is_current, day_record_id, position)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		start_time = excluded.start_time,
		end_time = excluded.end_time,
		duration = excluded.duration,
		project_name = excluded.project_name,
		client = excluded.client,
		category_id = excluded.category_id,
		is_current = excluded.is_current,
		day_record_id = excluded.day_record_id,
		position = excluded.position`

func upsertTask(ctx context.Context, tx *sql.Tx, userID string, t model.Task, current bool, dayID *model.DayRecordID, position int) error {
	var dayRef sql.NullString
	if dayID != nil {
		dayRef = sql.NullString{String: string(*dayID), Valid: true}
	}
	isCurrent := 0
	if current {
		isCurrent = 1
	}
	_, err := tx.ExecContext(ctx, upsertTaskSQL,
		string(t.ID), userID, t.Title, t.Description,
		encodeTime(t.StartTime), encodeTimePtr(t.EndTime), nullInt(t.Duration),
		nullStr(t.Project), nullStr(t.Client), nullStr(t.Category),
		isCurrent, dayRef, position,
	)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	return nil
}

func scanTask(rows *sql.Rows) (model.Task, error) {
	var (
		t        model.Task
		id       string
		startRaw string
		endRaw   sql.NullString
		duration sql.NullInt64
		project  sql.NullString
		client   sql.NullString
		category sql.NullString
	)
	if err := rows.Scan(&id, &t.Title, &t.Description, &startRaw, &endRaw, &duration, &project, &client, &category); err != nil {
		return model.Task{}, err
	}
	t.ID = model.TaskID(id)
	start, err := decodeTime(startRaw)
	if err != nil {
		return model.Task{}, err
	}
	t.StartTime = start
	end, err := decodeTimePtr(endRaw)
	if err != nil {
		return model.Task{}, err
	}
	t.EndTime = end
	t.Duration = intPtr(duration)
	t.Project = strPtr(project)
	t.Client = strPtr(client)
	t.Category = strPtr(category)
	return t, nil
}

const selectTaskColumns = `id, title, description, start_time, end_time, duration, project_name, client, category_id`

// SaveCurrentDay reconciles the remote current-task set against the
// snapshot instead of overwriting it: tasks whose id no longer
// appears are deleted, everything else is upserted by id. This keeps
// write volume down and preserves server-assigned metadata on
// unchanged rows.
func (s *Store) SaveCurrentDay(ctx context.Context, snap model.DaySnapshot) error {
	s.oplog.Record("save", "current_day", "SaveCurrentDay")
	uid, err := s.userID(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save current day: %w", err)
	}
	defer tx.Rollback()

	keep := make(map[string]bool, len(snap.Tasks)+1)
	for _, t := range snap.Tasks {
		keep[string(t.ID)] = true
	}
	if snap.CurrentTask != nil {
		keep[string(snap.CurrentTask.ID)] = true
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE user_id = ? AND is_current = 1`, uid)
	if err != nil {
		return fmt.Errorf("list current task ids: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?`, uid, id); err != nil {
			return fmt.Errorf("delete stale task %s: %w", id, err)
		}
	}

	for i, t := range snap.Tasks {
		if err := upsertTask(ctx, tx, uid, t, true, nil, i); err != nil {
			return err
		}
	}
	if snap.CurrentTask != nil {
		if err := upsertTask(ctx, tx, uid, *snap.CurrentTask, true, nil, len(snap.Tasks)); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO current_day (user_id, is_day_started, day_start_time, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			is_day_started = excluded.is_day_started,
			day_start_time = excluded.day_start_time,
			updated_at = excluded.updated_at`,
		uid, boolInt(snap.IsDayStarted), encodeTimePtr(snap.DayStartTime), encodeTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert current day: %w", err)
	}

	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) CurrentDay(ctx context.Context) (*model.DaySnapshot, error) {
	s.oplog.Record("get", "current_day", "CurrentDay")
	uid, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	var (
		started  int
		startRaw sql.NullString
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT is_day_started, day_start_time FROM current_day WHERE user_id = ?`, uid,
	).Scan(&started, &startRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read current day: %w", err)
	}

	snap := model.DaySnapshot{
		IsDayStarted: started != 0,
		Tasks:        []model.Task{},
	}
	snap.DayStartTime, err = decodeTimePtr(startRaw)
	if err != nil {
		s.logger.Printf("remote store: discarding corrupt day start time: %v", err)
		snap.DayStartTime = nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectTaskColumns+` FROM tasks WHERE user_id = ? AND is_current = 1 ORDER BY position`, uid)
	if err != nil {
		return nil, fmt.Errorf("read current tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			s.logger.Printf("remote store: discarding corrupt task row: %v", err)
			continue
		}
		if t.Running() {
			snap.CurrentTask = &t
			continue
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveArchivedDays replaces the archived set wholesale. Archived
// days change rarely, so delete-then-reinsert is acceptable here
// where it is not for the current day.
func (s *Store) SaveArchivedDays(ctx context.Context, days []model.DayRecord) error {
	s.oplog.Record("save", "archived_days", "SaveArchivedDays")
	uid, err := s.userID(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save archived days: %w", err)
	}
	defer tx.Rollback()

	if err := deleteArchiveLocked(ctx, tx, uid); err != nil {
		return err
	}
	for i, day := range days {
		if err := insertArchivedDay(ctx, tx, uid, day, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func deleteArchiveLocked(ctx context.Context, tx *sql.Tx, uid string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND is_current = 0`, uid); err != nil {
		return fmt.Errorf("clear archived tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM archived_days WHERE user_id = ?`, uid); err != nil {
		return fmt.Errorf("clear archived days: %w", err)
	}
	return nil
}

func insertArchivedDay(ctx context.Context, tx *sql.Tx, uid string, day model.DayRecord, position int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO archived_days (id, user_id, date, start_time, end_time, total_duration, notes, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(day.ID), uid, day.Date, encodeTime(day.StartTime), encodeTime(day.EndTime),
		day.TotalDuration, day.Notes, position,
	)
	if err != nil {
		return fmt.Errorf("insert archived day %s: %w", day.ID, err)
	}
	id := day.ID
	for i, t := range day.Tasks {
		if err := upsertTask(ctx, tx, uid, t, false, &id, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ArchivedDays(ctx context.Context) ([]model.DayRecord, error) {
	s.oplog.Record("get", "archived_days", "ArchivedDays")
	uid, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, start_time, end_time, total_duration, notes
		 FROM archived_days WHERE user_id = ? ORDER BY position`, uid)
	if err != nil {
		return nil, fmt.Errorf("read archived days: %w", err)
	}
	defer rows.Close()

	days := []model.DayRecord{}
	index := map[model.DayRecordID]int{}
	for rows.Next() {
		var (
			d        model.DayRecord
			id       string
			startRaw string
			endRaw   string
		)
		if err := rows.Scan(&id, &d.Date, &startRaw, &endRaw, &d.TotalDuration, &d.Notes); err != nil {
			s.logger.Printf("remote store: discarding corrupt archived day row: %v", err)
			continue
		}
		d.ID = model.DayRecordID(id)
		if d.StartTime, err = decodeTime(startRaw); err != nil {
			s.logger.Printf("remote store: discarding corrupt archived day %s: %v", id, err)
			continue
		}
		if d.EndTime, err = decodeTime(endRaw); err != nil {
			s.logger.Printf("remote store: discarding corrupt archived day %s: %v", id, err)
			continue
		}
		d.Tasks = []model.Task{}
		index[d.ID] = len(days)
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	taskRows, err := s.db.QueryContext(ctx,
		`SELECT day_record_id, `+selectTaskColumns+`
		 FROM tasks WHERE user_id = ? AND is_current = 0 ORDER BY day_record_id, position`, uid)
	if err != nil {
		return nil, fmt.Errorf("read archived tasks: %w", err)
	}
	defer taskRows.Close()

	for taskRows.Next() {
		var (
			dayRef   sql.NullString
			t        model.Task
			id       string
			startRaw string
			endRaw   sql.NullString
			duration sql.NullInt64
			project  sql.NullString
			client   sql.NullString
			category sql.NullString
		)
		if err := taskRows.Scan(&dayRef, &id, &t.Title, &t.Description, &startRaw, &endRaw, &duration, &project, &client, &category); err != nil {
			s.logger.Printf("remote store: discarding corrupt archived task row: %v", err)
			continue
		}
		if !dayRef.Valid {
			continue
		}
		pos, ok := index[model.DayRecordID(dayRef.String)]
		if !ok {
			continue
		}
		t.ID = model.TaskID(id)
		if t.StartTime, err = decodeTime(startRaw); err != nil {
			s.logger.Printf("remote store: discarding corrupt archived task %s: %v", id, err)
			continue
		}
		if t.EndTime, err = decodeTimePtr(endRaw); err != nil {
			s.logger.Printf("remote store: discarding corrupt archived task %s: %v", id, err)
			continue
		}
		t.Duration = intPtr(duration)
		t.Project = strPtr(project)
		t.Client = strPtr(client)
		t.Category = strPtr(category)
		days[pos].Tasks = append(days[pos].Tasks, t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, err
	}
	return days, nil
}

func (s *Store) UpdateArchivedDay(ctx context.Context, id model.DayRecordID, patch storage.DayPatch) error {
	s.oplog.Record("update", "archived_days", "UpdateArchivedDay")
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
	return nil
}

func (s *Store) DeleteArchivedDay(ctx context.Context, id model.DayRecordID) error {
	s.oplog.Record("delete", "archived_days", "DeleteArchivedDay")
	uid, err := s.userID(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete archived day: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND day_record_id = ?`, uid, string(id)); err != nil {
		return fmt.Errorf("delete archived tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM archived_days WHERE user_id = ? AND id = ?`, uid, string(id)); err != nil {
		return fmt.Errorf("delete archived day: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SaveProjects(ctx context.Context, projects []model.Project) error {
	s.oplog.Record("save", "projects", "SaveProjects")
	uid, err := s.userID(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save projects: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE user_id = ?`, uid); err != nil {
		return fmt.Errorf("clear projects: %w", err)
	}
	for i, p := range projects {
		var rate sql.NullFloat64
		if p.HourlyRate != nil {
			rate = sql.NullFloat64{Float64: *p.HourlyRate, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, user_id, name, client, hourly_rate, color, position) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, uid, p.Name, p.Client, rate, p.Color, i,
		); err != nil {
			return fmt.Errorf("insert project %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	// writes invalidate the same-type cache
	s.refdata.invalidateProjects()
	return nil
}

func (s *Store) Projects(ctx context.Context) ([]model.Project, error) {
	s.oplog.Record("get", "projects", "Projects")
	if cached, ok := s.refdata.getProjects(); ok {
		return cached, nil
	}
	uid, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, client, hourly_rate, color FROM projects WHERE user_id = ? ORDER BY position`, uid)
	if err != nil {
		return nil, fmt.Errorf("read projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		var (
			p    model.Project
			rate sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Client, &rate, &p.Color); err != nil {
			s.logger.Printf("remote store: discarding corrupt project row: %v", err)
			continue
		}
		if rate.Valid {
			v := rate.Float64
			p.HourlyRate = &v
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.refdata.setProjects(projects)
	return projects, nil
}

func (s *Store) SaveCategories(ctx context.Context, categories []model.Category) error {
	s.oplog.Record("save", "categories", "SaveCategories")
	uid, err := s.userID(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE user_id = ?`, uid); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	for i, c := range categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, user_id, name, color, description, position) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, uid, c.Name, c.Color, c.Description, i,
		); err != nil {
			return fmt.Errorf("insert category %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.refdata.invalidateCategories()
	return nil
}

func (s *Store) Categories(ctx context.Context) ([]model.Category, error) {
	s.oplog.Record("get", "categories", "Categories")
	if cached, ok := s.refdata.getCategories(); ok {
		return cached, nil
	}
	uid, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, color, description FROM categories WHERE user_id = ? ORDER BY position`, uid)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	defer rows.Close()

	categories := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Description); err != nil {
			s.logger.Printf("remote store: discarding corrupt category row: %v", err)
			continue
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.refdata.setCategories(categories)
	return categories, nil
}
