package serverapp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"worklog/internal/auth"
	"worklog/internal/importer"
	"worklog/internal/model"
	"worklog/internal/report"
	"worklog/internal/session"
	"worklog/internal/storage"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func decodeJSON(r *http.Request, out any) error {
	return json.NewDecoder(r.Body).Decode(out)
}

// sessionErrCode maps controller and storage errors onto statuses.
func sessionErrCode(err error) int {
	switch {
	case errors.Is(err, session.ErrTaskNotFound),
		errors.Is(err, session.ErrDayNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrDayNotStarted),
		errors.Is(err, session.ErrDayAlreadyStarted),
		errors.Is(err, session.ErrNothingToPost):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrSchemaUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) handleAuthSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := map[string]any{"authenticated": a.sess.Authenticated()}
	if id, err := a.sess.Resolve(r.Context()); err == nil {
		out["identity"] = id
	}
	a.mu.Lock()
	out["degraded"] = a.degraded
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var in auth.Identity
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if strings.TrimSpace(in.UserID) == "" {
		writeErr(w, http.StatusBadRequest, "userId is required")
		return
	}

	rep, degraded, err := a.signIn(r.Context(), in)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":  in,
		"degraded":  degraded,
		"migration": rep,
	})
}

func (a *App) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := a.signOut(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}

func (a *App) dayView() map[string]any {
	return map[string]any{
		"state":    a.controller.State(),
		"snapshot": a.controller.Snapshot(),
		"unsaved":  a.controller.UnsavedChanges(),
	}
}

func (a *App) handleDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, a.dayView())
}

func (a *App) handleDayStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var in struct {
		StartTime *time.Time `json:"startTime"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			writeErr(w, http.StatusBadRequest, "bad json")
			return
		}
	}
	at := time.Now()
	if in.StartTime != nil {
		at = *in.StartTime
	}
	if err := a.controller.StartDay(r.Context(), at); err != nil {
		writeErr(w, sessionErrCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.dayView())
}

func (a *App) handleDayEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := a.controller.EndDay(r.Context()); err != nil {
		writeErr(w, sessionErrCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.dayView())
}

func (a *App) handleDayPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var in struct {
		Notes string `json:"notes"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			writeErr(w, http.StatusBadRequest, "bad json")
			return
		}
	}
	rec, err := a.controller.PostDay(r.Context(), in.Notes)
	if err != nil {
		writeErr(w, sessionErrCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *App) handleTaskRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var in struct {
		Title string `json:"title"`
		session.TaskPatch
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeErr(w, http.StatusBadRequest, "title is required")
		return
	}
	task, err := a.controller.StartNewTask(r.Context(), in.Title, in.TaskPatch)
	if err != nil {
		writeErr(w, sessionErrCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (a *App) handleTaskSub(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/day/task/"), "/")
	if tail == "" {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	parts := strings.Split(tail, "/")
	id := model.TaskID(parts[0])

	// /api/day/task/{id}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPatch:
			var patch session.TaskPatch
			if err := decodeJSON(r, &patch); err != nil {
				writeErr(w, http.StatusBadRequest, "bad json")
				return
			}
			if err := a.controller.UpdateTask(r.Context(), id, patch); err != nil {
				writeErr(w, sessionErrCode(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, a.dayView())
			return

		case http.MethodDelete:
			if err := a.controller.DeleteTask(r.Context(), id); err != nil {
				writeErr(w, sessionErrCode(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, a.dayView())
			return
		}
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// /api/day/task/{id}/time
	if len(parts) == 2 && parts[1] == "time" {
		if r.Method != http.MethodPatch {
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var in struct {
			StartTime time.Time  `json:"startTime"`
			EndTime   *time.Time `json:"endTime"`
		}
		if err := decodeJSON(r, &in); err != nil {
			writeErr(w, http.StatusBadRequest, "bad json")
			return
		}
		if in.StartTime.IsZero() {
			writeErr(w, http.StatusBadRequest, "startTime is required")
			return
		}
		if err := a.controller.AdjustTaskTime(r.Context(), id, in.StartTime, in.EndTime); err != nil {
			writeErr(w, sessionErrCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a.dayView())
		return
	}

	writeErr(w, http.StatusNotFound, "not found")
}

func (a *App) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, a.controller.ArchivedDays())
}

func (a *App) handleArchiveSub(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/archive/"), "/")
	if tail == "" {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	parts := strings.Split(tail, "/")
	id := model.DayRecordID(parts[0])

	// /api/archive/{id}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPatch:
			var patch storage.DayPatch
			if err := decodeJSON(r, &patch); err != nil {
				writeErr(w, http.StatusBadRequest, "bad json")
				return
			}
			if err := a.controller.EditArchivedDay(r.Context(), id, patch); err != nil {
				writeErr(w, sessionErrCode(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, a.controller.ArchivedDays())
			return

		case http.MethodDelete:
			if err := a.controller.DeleteArchivedDay(r.Context(), id); err != nil {
				writeErr(w, sessionErrCode(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, a.controller.ArchivedDays())
			return
		}
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// /api/archive/{id}/restore
	if len(parts) == 2 && parts[1] == "restore" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := a.controller.RestoreArchivedDay(r.Context(), id); err != nil {
			writeErr(w, sessionErrCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a.dayView())
		return
	}

	writeErr(w, http.StatusNotFound, "not found")
}

func (a *App) handleProjects(w http.ResponseWriter, r *http.Request) {
	store := a.activeStore()
	switch r.Method {
	case http.MethodGet:
		projects, err := store.Projects(r.Context())
		if err != nil {
			writeErr(w, sessionErrCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, projects)

	case http.MethodPut:
		var in []model.Project
		if err := decodeJSON(r, &in); err != nil {
			writeErr(w, http.StatusBadRequest, "bad json")
			return
		}
		// the built-in set always survives a replace
		in = model.MergeDefaultProjects(in)
		if err := store.SaveProjects(r.Context(), in); err != nil {
			writeErr(w, sessionErrCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, in)

	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *App) handleCategories(w http.ResponseWriter, r *http.Request) {
	store := a.activeStore()
	switch r.Method {
	case http.MethodGet:
		categories, err := store.Categories(r.Context())
		if err != nil {
			writeErr(w, sessionErrCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, categories)

	case http.MethodPut:
		var in []model.Category
		if err := decodeJSON(r, &in); err != nil {
			writeErr(w, http.StatusBadRequest, "bad json")
			return
		}
		in = model.MergeDefaultCategories(in)
		if err := store.SaveCategories(r.Context(), in); err != nil {
			writeErr(w, sessionErrCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, in)

	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *App) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if a.remoteStore == nil {
		writeErr(w, http.StatusConflict, "remote backend not configured")
		return
	}
	rep := a.migrateEngine().FromLocal(r.Context())
	writeJSON(w, http.StatusOK, rep)
}

func (a *App) handleSyncPull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if a.remoteStore == nil {
		writeErr(w, http.StatusConflict, "remote backend not configured")
		return
	}
	if err := a.migrateEngine().ToLocal(r.Context()); err != nil {
		writeErr(w, sessionErrCode(err), err.Error())
		return
	}
	if err := a.controller.Load(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.dayView())
}

func (a *App) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var rows []importer.Row
	if err := decodeJSON(r, &rows); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	grouped, err := a.importer.Import(r.Context(), a.activeStore(), rows)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.controller.Load(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":         len(grouped.Days),
		"currentTasks": grouped.Snapshot.TaskCount(),
	})
}

func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var since time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		since = parsed
	}
	projects, err := a.activeStore().Projects(r.Context())
	if err != nil {
		writeErr(w, sessionErrCode(err), err.Error())
		return
	}
	stats := report.Calculate(a.controller.ArchivedDays(), projects, since)
	writeJSON(w, http.StatusOK, stats)
}

func (a *App) handleOpLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if a.remote == nil {
		writeErr(w, http.StatusNotFound, "remote backend not configured")
		return
	}
	entries, total := a.remote.OpLogSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"entries": entries,
	})
}
