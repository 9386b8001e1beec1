// Package session holds the in-memory tracking state machine. The
// controller owns the current-day snapshot and the archived set for
// the lifetime of a session and serializes every write to whichever
// backend is active.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"worklog/internal/model"
	"worklog/internal/storage"
)

type State string

const (
	// StateIdle: no day started.
	StateIdle State = "idle"
	// StateDayActive: tasks may be started and stopped.
	StateDayActive State = "day_active"
	// StateDayEnded: current task stopped, day awaiting posting.
	StateDayEnded State = "day_ended_unposted"
)

var (
	ErrDayNotStarted     = errors.New("no day started")
	ErrDayAlreadyStarted = errors.New("day already started")
	ErrNothingToPost     = errors.New("no tasks to post")
	ErrTaskNotFound      = errors.New("task not found")
	ErrDayNotFound       = errors.New("archived day not found")
)

// PersistMode decides whether in-memory transitions wait for the
// backend. Optimistic keeps the source behavior: commit first,
// surface persistence failures as an unsaved-changes flag.
type PersistMode string

const (
	PersistOptimistic  PersistMode = "optimistic"
	PersistPessimistic PersistMode = "pessimistic"
)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TaskPatch is a partial task update. nil => no change; empty string
// for Project/Client/Category clears the field.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Project     *string `json:"project,omitempty"`
	Client      *string `json:"client,omitempty"`
	Category    *string `json:"category,omitempty"`
}

func applyTaskPatch(t *model.Task, p TaskPatch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Project != nil {
		if *p.Project == "" {
			t.Project = nil
		} else {
			t.Project = p.Project
		}
	}
	if p.Client != nil {
		if *p.Client == "" {
			t.Client = nil
		} else {
			t.Client = p.Client
		}
	}
	if p.Category != nil {
		if *p.Category == "" {
			t.Category = nil
		} else {
			t.Category = p.Category
		}
	}
}

type Options struct {
	Store  storage.Store
	Clock  Clock
	Logger *log.Logger
	Mode   PersistMode
}

// Controller is the single logical writer for tracking state.
type Controller struct {
	mu     sync.Mutex
	store  storage.Store
	clock  Clock
	logger *log.Logger
	mode   PersistMode

	state   State
	snap    model.DaySnapshot
	days    []model.DayRecord
	unsaved bool
}

func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Mode == "" {
		opts.Mode = PersistOptimistic
	}
	return &Controller{
		store:  opts.Store,
		clock:  opts.Clock,
		logger: opts.Logger,
		mode:   opts.Mode,
		state:  StateIdle,
		snap:   model.DaySnapshot{Tasks: []model.Task{}},
		days:   []model.DayRecord{},
	}
}

// Load hydrates the controller from the active backend.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.store.CurrentDay(ctx)
	if err != nil {
		return err
	}
	days, err := c.store.ArchivedDays(ctx)
	if err != nil {
		return err
	}

	if snap != nil {
		c.snap = *snap
		if c.snap.Tasks == nil {
			c.snap.Tasks = []model.Task{}
		}
	} else {
		c.snap = model.DaySnapshot{Tasks: []model.Task{}}
	}
	c.days = days
	if c.snap.IsDayStarted {
		c.state = StateDayActive
	} else {
		c.state = StateIdle
	}
	c.unsaved = false
	return nil
}

// SwitchStore points the controller at a different backend (sign-in
// or sign-out) and re-hydrates from it.
func (c *Controller) SwitchStore(ctx context.Context, store storage.Store) error {
	c.mu.Lock()
	c.store = store
	c.mu.Unlock()
	return c.Load(ctx)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UnsavedChanges reports whether an optimistic persist has failed
// since the last successful one.
func (c *Controller) UnsavedChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsaved
}

// Snapshot returns a copy of the current-day state.
func (c *Controller) Snapshot() model.DaySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySnapshot(c.snap)
}

// ArchivedDays returns a copy of the archived set.
func (c *Controller) ArchivedDays() []model.DayRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.DayRecord, len(c.days))
	copy(out, c.days)
	return out
}

func copySnapshot(s model.DaySnapshot) model.DaySnapshot {
	out := s
	out.Tasks = append([]model.Task{}, s.Tasks...)
	if s.CurrentTask != nil {
		t := *s.CurrentTask
		out.CurrentTask = &t
	}
	return out
}

// commitSnapshot persists next and, on success or optimistic
// failure, installs it as the in-memory snapshot.
func (c *Controller) commitSnapshot(ctx context.Context, next model.DaySnapshot) error {
	if c.mode == PersistPessimistic {
		if err := c.store.SaveCurrentDay(ctx, next); err != nil {
			return err
		}
		c.snap = next
		c.unsaved = false
		return nil
	}

	c.snap = next
	if err := c.store.SaveCurrentDay(ctx, next); err != nil {
		c.logger.Printf("session: current day not persisted: %v", err)
		c.unsaved = true
		return nil
	}
	c.unsaved = false
	return nil
}

func (c *Controller) commitArchive(ctx context.Context, days []model.DayRecord) error {
	if c.mode == PersistPessimistic {
		if err := c.store.SaveArchivedDays(ctx, days); err != nil {
			return err
		}
		c.days = days
		c.unsaved = false
		return nil
	}

	c.days = days
	if err := c.store.SaveArchivedDays(ctx, days); err != nil {
		c.logger.Printf("session: archived days not persisted: %v", err)
		c.unsaved = true
		return nil
	}
	c.unsaved = false
	return nil
}

// StartDay begins a work day. Idle -> DayActive.
func (c *Controller) StartDay(ctx context.Context, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrDayAlreadyStarted
	}
	at = at.Truncate(time.Millisecond)
	next := model.DaySnapshot{
		IsDayStarted: true,
		DayStartTime: &at,
		Tasks:        []model.Task{},
	}
	if err := c.commitSnapshot(ctx, next); err != nil {
		return err
	}
	c.state = StateDayActive
	return nil
}

// StartNewTask ends whatever task was running and starts a new one.
// At most one current task exists afterwards.
func (c *Controller) StartNewTask(ctx context.Context, title string, patch TaskPatch) (model.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDayActive {
		return model.Task{}, ErrDayNotStarted
	}

	now := c.clock.Now()
	next := copySnapshot(c.snap)
	if next.CurrentTask != nil {
		prev := *next.CurrentTask
		prev.Close(now)
		next.Tasks = append(next.Tasks, prev)
	}

	task := model.NewTask(title, now)
	applyTaskPatch(&task, patch)
	next.CurrentTask = &task

	if err := c.commitSnapshot(ctx, next); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

// EndDay stops the running task. DayActive -> DayEndedUnposted.
func (c *Controller) EndDay(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDayActive {
		return ErrDayNotStarted
	}

	next := copySnapshot(c.snap)
	if next.CurrentTask != nil {
		prev := *next.CurrentTask
		prev.Close(c.clock.Now())
		next.Tasks = append(next.Tasks, prev)
		next.CurrentTask = nil
	}

	if err := c.commitSnapshot(ctx, next); err != nil {
		return err
	}
	c.state = StateDayEnded
	return nil
}

// PostDay archives the day and clears current state. Allowed from
// DayEndedUnposted, or straight from DayActive when tasks exist.
func (c *Controller) PostDay(ctx context.Context, notes string) (model.DayRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateDayEnded:
	case StateDayActive:
		if len(c.snap.Tasks) == 0 && c.snap.CurrentTask == nil {
			return model.DayRecord{}, ErrNothingToPost
		}
	default:
		return model.DayRecord{}, ErrDayNotStarted
	}

	now := c.clock.Now()
	work := copySnapshot(c.snap)
	if work.CurrentTask != nil {
		prev := *work.CurrentTask
		prev.Close(now)
		work.Tasks = append(work.Tasks, prev)
		work.CurrentTask = nil
	}
	if len(work.Tasks) == 0 {
		return model.DayRecord{}, ErrNothingToPost
	}

	start := now
	if work.DayStartTime != nil {
		start = *work.DayStartTime
	}
	rec := model.NewDayRecord(start, now, work.Tasks, notes)

	prevDays := c.days
	days := append(append([]model.DayRecord{}, c.days...), rec)
	if err := c.commitArchive(ctx, days); err != nil {
		return model.DayRecord{}, err
	}
	if err := c.commitSnapshot(ctx, model.DaySnapshot{Tasks: []model.Task{}}); err != nil {
		// Pessimistic mode only: the archive already holds the day
		// but the snapshot still does too. Take the day back out so a
		// retried post does not archive it twice.
		c.days = prevDays
		if rbErr := c.store.SaveArchivedDays(ctx, prevDays); rbErr != nil {
			c.logger.Printf("session: archive rollback after failed snapshot clear: %v", rbErr)
		}
		return model.DayRecord{}, err
	}
	c.state = StateIdle
	return rec, nil
}

// RestoreArchivedDay reconstitutes an archived day as the current
// one and removes it from the archive. Any still-running task in the
// record becomes current again. Reachable from any state.
func (c *Controller) RestoreArchivedDay(ctx context.Context, id model.DayRecordID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i := range c.days {
		if c.days[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrDayNotFound
	}
	rec := c.days[idx]

	start := rec.StartTime
	next := model.DaySnapshot{
		IsDayStarted: true,
		DayStartTime: &start,
		Tasks:        []model.Task{},
	}
	for _, t := range rec.Tasks {
		if t.Running() && next.CurrentTask == nil {
			task := t
			next.CurrentTask = &task
			continue
		}
		next.Tasks = append(next.Tasks, t)
	}

	days := append([]model.DayRecord{}, c.days[:idx]...)
	days = append(days, c.days[idx+1:]...)

	if err := c.commitArchive(ctx, days); err != nil {
		return err
	}
	if err := c.commitSnapshot(ctx, next); err != nil {
		return err
	}
	c.state = StateDayActive
	return nil
}

// UpdateTask edits a task in the current day (listed or running).
func (c *Controller) UpdateTask(ctx context.Context, id model.TaskID, patch TaskPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return ErrDayNotStarted
	}

	next := copySnapshot(c.snap)
	if next.CurrentTask != nil && next.CurrentTask.ID == id {
		applyTaskPatch(next.CurrentTask, patch)
		return c.commitSnapshot(ctx, next)
	}
	for i := range next.Tasks {
		if next.Tasks[i].ID == id {
			applyTaskPatch(&next.Tasks[i], patch)
			return c.commitSnapshot(ctx, next)
		}
	}
	return ErrTaskNotFound
}

// DeleteTask removes a task from the current day.
func (c *Controller) DeleteTask(ctx context.Context, id model.TaskID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return ErrDayNotStarted
	}

	next := copySnapshot(c.snap)
	if next.CurrentTask != nil && next.CurrentTask.ID == id {
		next.CurrentTask = nil
		return c.commitSnapshot(ctx, next)
	}
	for i := range next.Tasks {
		if next.Tasks[i].ID == id {
			next.Tasks = append(next.Tasks[:i], next.Tasks[i+1:]...)
			return c.commitSnapshot(ctx, next)
		}
	}
	return ErrTaskNotFound
}

// AdjustTaskTime moves a task's boundaries, rounding each to the
// nearest quarter hour so billed time stays in clean increments.
func (c *Controller) AdjustTaskTime(ctx context.Context, id model.TaskID, start time.Time, end *time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return ErrDayNotStarted
	}

	roundedStart := model.RoundToQuarterHour(start)
	var roundedEnd *time.Time
	if end != nil {
		e := model.RoundToQuarterHour(*end)
		roundedEnd = &e
	}

	next := copySnapshot(c.snap)
	if next.CurrentTask != nil && next.CurrentTask.ID == id {
		next.CurrentTask.SetTimes(roundedStart, roundedEnd)
		return c.commitSnapshot(ctx, next)
	}
	for i := range next.Tasks {
		if next.Tasks[i].ID == id {
			next.Tasks[i].SetTimes(roundedStart, roundedEnd)
			return c.commitSnapshot(ctx, next)
		}
	}
	return ErrTaskNotFound
}

// EditArchivedDay applies a patch to an archived day, recomputing
// its totals, inside a bounded edit session separate from the state
// machine.
func (c *Controller) EditArchivedDay(ctx context.Context, id model.DayRecordID, patch storage.DayPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	days := append([]model.DayRecord{}, c.days...)
	for i := range days {
		if days[i].ID == id {
			if !storage.ApplyDayPatch(&days[i], patch) {
				return nil
			}
			days[i].Recompute()
			return c.commitArchive(ctx, days)
		}
	}
	// archive edits tolerate unknown ids, matching the store contract
	return nil
}

// DeleteArchivedDay removes an archived day. Idempotent.
func (c *Controller) DeleteArchivedDay(ctx context.Context, id model.DayRecordID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	days := make([]model.DayRecord, 0, len(c.days))
	for _, d := range c.days {
		if d.ID != id {
			days = append(days, d)
		}
	}
	if len(days) == len(c.days) {
		return nil
	}
	return c.commitArchive(ctx, days)
}
