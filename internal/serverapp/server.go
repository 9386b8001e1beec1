// Package serverapp assembles the tracking core behind an HTTP
// surface: backend selection, auth transitions, migration, and the
// session state machine.
package serverapp

import (
	"context"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"worklog/internal/auth"
	"worklog/internal/config"
	"worklog/internal/httpmw"
	"worklog/internal/importer"
	"worklog/internal/migrate"
	"worklog/internal/model"
	"worklog/internal/session"
	"worklog/internal/storage"
	"worklog/internal/storage/local"
	"worklog/internal/storage/remote"
)

type Options struct {
	Config *config.Config
	Logger *log.Logger
}

// App owns the storage backends and the tracking session for one
// server process. All handlers hang off it.
type App struct {
	cfg    *config.Config
	logger *log.Logger

	bus  *auth.Bus
	sess *auth.Session

	local       *local.Store
	remote      *remote.Store // nil when no remote DSN is configured
	localStore  storage.Store
	remoteStore storage.Store

	controller *session.Controller
	importer   *importer.Importer

	// degraded is set when a sign-in found the remote schema
	// unavailable and the session stayed on the local backend.
	mu       sync.Mutex
	degraded bool
}

func NewApp(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	cfg := opts.Config

	a := &App{
		cfg:    cfg,
		logger: opts.Logger,
		bus:    auth.NewBus(),
	}
	a.sess = auth.NewSession(a.bus)

	localStore, err := local.Open(filepath.Join(cfg.Storage.DataDir, "local"), opts.Logger)
	if err != nil {
		return nil, err
	}
	a.local = localStore
	a.localStore = storage.Serialized(localStore)

	if strings.TrimSpace(cfg.Storage.RemoteDSN) != "" {
		resolver := auth.NewCachedResolver(a.sess, cfg.Auth.IdentityTTL, a.bus)
		remoteStore, err := remote.Open(remote.Options{
			DSN:           cfg.Storage.RemoteDSN,
			Resolver:      resolver,
			SkipBootstrap: cfg.Storage.SkipBootstrap,
			RefCacheTTL:   cfg.Storage.RefCacheTTL,
			OpLogCapacity: cfg.Storage.OpLogCapacity,
			Logger:        opts.Logger,
		})
		if err != nil {
			localStore.Close()
			return nil, err
		}
		remoteStore.BindAuthBus(a.bus)
		a.remote = remoteStore
		a.remoteStore = storage.Serialized(remoteStore)
	}

	a.controller = session.NewController(session.Options{
		Store:  a.localStore,
		Logger: opts.Logger,
		Mode:   session.PersistMode(cfg.Session.PersistMode),
	})
	a.importer = importer.New(opts.Logger)

	ctx := context.Background()
	if err := a.seedDefaults(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.controller.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) Close() error {
	var first error
	if a.remote != nil {
		if err := a.remote.Close(); err != nil && first == nil {
			first = err
		}
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// seedDefaults makes sure the local backend carries the built-in
// projects and categories. Runs on every start; the merge is
// idempotent.
func (a *App) seedDefaults(ctx context.Context) error {
	projects, err := a.localStore.Projects(ctx)
	if err != nil {
		return err
	}
	if err := a.localStore.SaveProjects(ctx, model.MergeDefaultProjects(projects)); err != nil {
		return err
	}
	categories, err := a.localStore.Categories(ctx)
	if err != nil {
		return err
	}
	return a.localStore.SaveCategories(ctx, model.MergeDefaultCategories(categories))
}

// activeStore follows the sign-in state. File deployments bypass this
// and run the controller straight over a file store.
func (a *App) activeStore() storage.Store {
	a.mu.Lock()
	degraded := a.degraded
	a.mu.Unlock()
	if degraded || a.remoteStore == nil {
		return a.localStore
	}
	return storage.Select(a.sess.Authenticated(), a.localStore, a.remoteStore)
}

// signIn sets the identity and, when the remote schema answers the
// capability probe, migrates local data up and switches the session
// over. A failed probe leaves the session on the local backend.
func (a *App) signIn(ctx context.Context, id auth.Identity) (migrate.Report, bool, error) {
	if a.remote == nil {
		return migrate.Report{}, false, errors.New("remote backend not configured")
	}

	if err := a.remote.Available(ctx); err != nil {
		a.logger.Printf("serverapp: remote unavailable, staying local: %v", err)
		a.mu.Lock()
		a.degraded = true
		a.mu.Unlock()
		a.sess.SignIn(id)
		return migrate.Report{}, true, nil
	}

	a.mu.Lock()
	a.degraded = false
	a.mu.Unlock()
	a.sess.SignIn(id)

	rep := a.migrateEngine().FromLocal(ctx)
	if err := a.controller.SwitchStore(ctx, a.remoteStore); err != nil {
		return rep, false, err
	}
	return rep, false, nil
}

func (a *App) migrateEngine() *migrate.Engine {
	return migrate.New(a.localStore, a.remoteStore, a.logger)
}

func (a *App) signOut(ctx context.Context) error {
	a.sess.SignOut()
	a.mu.Lock()
	a.degraded = false
	a.mu.Unlock()
	return a.controller.SwitchStore(ctx, a.localStore)
}

// NewHandler builds the App and mounts its routes.
func NewHandler(opts Options) (http.Handler, *App, error) {
	a, err := NewApp(opts)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "worklog",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/readyz", a.handleReady)

	mux.HandleFunc("/api/auth/session", a.handleAuthSession)
	mux.HandleFunc("/api/auth/signin", a.handleSignIn)
	mux.HandleFunc("/api/auth/signout", a.handleSignOut)

	mux.HandleFunc("/api/day", a.handleDay)
	mux.HandleFunc("/api/day/start", a.handleDayStart)
	mux.HandleFunc("/api/day/end", a.handleDayEnd)
	mux.HandleFunc("/api/day/post", a.handleDayPost)
	mux.HandleFunc("/api/day/task", a.handleTaskRoot)
	mux.HandleFunc("/api/day/task/", a.handleTaskSub)

	mux.HandleFunc("/api/archive", a.handleArchive)
	mux.HandleFunc("/api/archive/", a.handleArchiveSub)

	mux.HandleFunc("/api/projects", a.handleProjects)
	mux.HandleFunc("/api/categories", a.handleCategories)

	mux.HandleFunc("/api/report", a.handleReport)

	mux.HandleFunc("/api/sync/push", a.handleSyncPush)
	mux.HandleFunc("/api/sync/pull", a.handleSyncPull)
	mux.HandleFunc("/api/import", a.handleImport)
	mux.HandleFunc("/api/debug/oplog", a.handleOpLog)

	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, a.cfg)
	})

	return httpmw.Chain(
		mux,
		httpmw.WithAccessLog(opts.Logger),
		httpmw.WithRequestID,
		httpmw.WithNoStore,
		httpmw.WithRecover(opts.Logger),
	), a, nil
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := a.localStore.CurrentDay(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":    false,
			"error": "local storage unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "worklog",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
