// Package cli implements the ato command line: cobra commands over the
// client packages, plus the wiring that builds them from configuration.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/client/auth"
	"github.com/atinyakov/ato/internal/client/cache"
	"github.com/atinyakov/ato/internal/client/drafts"
	"github.com/atinyakov/ato/internal/client/labels"
	"github.com/atinyakov/ato/internal/client/remote"
	"github.com/atinyakov/ato/internal/client/storage"
	"github.com/atinyakov/ato/internal/config"
	"github.com/atinyakov/ato/internal/db"
	"github.com/atinyakov/ato/internal/logger"
	"github.com/atinyakov/ato/internal/models"
)

// cleanInterval is how often a long-running command sweeps superseded drafts.
const cleanInterval = time.Hour

// errNotLoggedIn is returned by commands that need a session when there is none.
var errNotLoggedIn = errors.New("not logged in")

// App holds the flags shared by all commands and the clients built from them.
type App struct {
	ConfigPath string

	cfg    *config.Client
	log    *zap.Logger
	kv     storage.Store
	sqlDB  *sql.DB
	stop   context.CancelFunc
	httpc  *http.Client
	creds  *storage.Credentials
	api    *remote.Client
	auth   *auth.Manager
	cache  *cache.Cache
	drafts *drafts.Store
	recent *labels.Recent

	// openBrowser replaces the system browser launcher, for tests.
	openBrowser func(url string) error
}

// session is what commands get once the user is known.
type session struct {
	user  models.User
	repo  *remote.Repository
	items *cache.Store
}

// open loads configuration and builds every client. It runs before any
// command.
func (a *App) open(ctx context.Context) error {
	cfg, err := config.LoadClient(viper.New(), a.ConfigPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	l := logger.New()
	var outputs []string
	if cfg.LogFile != "" {
		outputs = []string{cfg.LogFile}
	}
	if err := l.Init(cfg.LogLevel, outputs...); err != nil {
		return err
	}
	a.log = l.Log

	if err := a.openState(ctx); err != nil {
		return err
	}
	a.creds = storage.NewCredentials(a.kv, a.log)
	a.drafts = drafts.New(a.kv, a.log)
	a.recent = labels.NewRecent(a.kv, a.log)
	a.cache = cache.New(a.log)

	a.httpc, err = remote.NewHTTPClientWithCA(cfg.HTTPTimeout, cfg.CAFile)
	if err != nil {
		return err
	}

	opener := auth.NewLoopbackOpener(auth.LoopbackConfig{
		Addr:         cfg.LoopbackAddr,
		PollInterval: cfg.PopupPollInterval,
		Logger:       a.log,
		OpenBrowser:  a.openBrowser,
	})
	login := auth.NewPopupLogin(opener, cfg.ProxyURL, auth.HandshakeConfig{
		PollInterval: cfg.PopupPollInterval,
		Timeout:      cfg.LoginTimeout,
	})
	a.auth = auth.NewManager(a.creds, login, auth.Config{
		Logger:   a.log,
		OnLogout: []func(){a.cache.Clear},
	})
	a.api = remote.NewClient(remote.Config{
		BaseURL:    cfg.APIURL,
		HTTPClient: a.httpc,
		Tokens:     a.auth,
		Logger:     a.log,
	})
	a.auth.Start(ctx, a.api)
	return nil
}

func (a *App) openState(ctx context.Context) error {
	cfg := a.cfg
	if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	if cfg.StateBackend != config.BackendSQLite {
		fs, err := storage.NewFileStore(afero.NewOsFs(), cfg.StatePath, 0, a.log)
		if err != nil {
			return err
		}
		a.kv = fs
		return nil
	}

	sqlDB, err := db.InitSQLite(cfg.StatePath)
	if err != nil {
		return err
	}
	a.sqlDB = sqlDB
	a.kv = storage.NewSQLStore(sqlDB)

	if n, err := db.SweepSupersededDrafts(ctx, sqlDB); err != nil {
		a.log.Warn("failed to clean superseded drafts", zap.Error(err))
	} else if n > 0 {
		a.log.Info("cleaned superseded drafts", zap.Int64("removed", n))
	}
	cleanCtx, cancel := context.WithCancel(context.Background())
	a.stop = cancel
	db.StartDraftCleaner(cleanCtx, sqlDB, cleanInterval, a.log)
	return nil
}

// close releases what open acquired. It is safe to call more than once.
func (a *App) close() {
	if a.stop != nil {
		a.stop()
		a.stop = nil
	}
	if a.sqlDB != nil {
		if err := a.sqlDB.Close(); err != nil {
			a.log.Warn("close state db", zap.Error(err))
		}
		a.sqlDB = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// session waits for the stored credential to resolve to a user and scopes
// the item store to that user's datastore repository.
func (a *App) session(ctx context.Context) (*session, error) {
	s, err := a.auth.WaitReady(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) {
			return nil, errNotLoggedIn
		}
		return nil, err
	}
	repo := a.api.Repository(s.User.Login, a.cfg.RepoName)
	return &session{
		user:  *s.User,
		repo:  repo,
		items: cache.NewStore(a.cache, repo, a.creds, a.log),
	}, nil
}
