package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/client/remote"
	"github.com/atinyakov/ato/internal/logger"
	"github.com/atinyakov/ato/internal/models"
)

// State is the session lifecycle state.
type State int

const (
	StateLoggedOut State = iota
	// StateAuthenticating means a credential is held but the profile is not resolved.
	StateAuthenticating
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateLoggedIn:
		return "logged in"
	default:
		return "logged out"
	}
}

// ErrNotLoggedIn is returned by WaitReady when there is no session.
var ErrNotLoggedIn = errors.New("not logged in")

// errSessionReplaced ends a profile resolution whose session was replaced
// by a newer login.
var errSessionReplaced = errors.New("session replaced by a newer login")

// Session is a snapshot of the auth state.
type Session struct {
	State State
	Token string
	User  *models.User
	// IsLoading is true only while a credential is held and the profile
	// fetch is still outstanding.
	IsLoading bool
	// Err is the last profile resolution failure that did not end the session.
	Err error
}

// ProfileFetcher resolves the current user. *remote.Client implements it.
type ProfileFetcher interface {
	CurrentUser(ctx context.Context) (models.User, error)
}

// Handshaker obtains a fresh access token. *PopupLogin implements it.
type Handshaker interface {
	Handshake(ctx context.Context) (string, error)
}

// CredentialStore persists the session. *storage.Credentials implements it.
type CredentialStore interface {
	Token(ctx context.Context) string
	SetToken(ctx context.Context, token string) error
	SetUser(ctx context.Context, u models.User) error
	ClearSession(ctx context.Context) error
}

// Config configures a Manager.
type Config struct {
	Retry  RetryPolicy
	Logger *zap.Logger
	// OnLogout runs after an explicit logout, e.g. to clear the query cache.
	OnLogout []func()
	// Sleep waits between retries; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Manager owns the credential and the resolved user. It implements
// remote.TokenSource, so the remote client reads the token from it and
// reports rejected tokens back to it.
type Manager struct {
	creds CredentialStore
	login Handshaker
	cfg   Config
	log   *zap.Logger

	mu      sync.Mutex
	session Session
	// gen changes on every login and logout. A resolution only touches
	// the session and the stored credential while gen is the one it
	// started with.
	gen   uint64
	ready chan struct{}
}

// NewManager loads the persisted credential, if any. Call Start to resolve
// the profile.
func NewManager(creds CredentialStore, login Handshaker, cfg Config) *Manager {
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	m := &Manager{
		creds: creds,
		login: login,
		cfg:   cfg,
		log:   logger.OrNop(cfg.Logger).Named("auth"),
		ready: make(chan struct{}),
	}
	if token := creds.Token(context.Background()); token != "" {
		m.session = Session{State: StateAuthenticating, Token: token, IsLoading: true}
	} else {
		close(m.ready)
	}
	return m
}

// Start resolves the profile for a persisted credential in the background.
func (m *Manager) Start(ctx context.Context, profile ProfileFetcher) {
	m.mu.Lock()
	token, gen := m.session.Token, m.gen
	m.mu.Unlock()
	if token == "" {
		return
	}
	go func() {
		if err := m.resolve(ctx, profile, token, gen); err != nil {
			m.log.Debug("profile resolution failed", zap.Error(err))
		}
	}()
}

// WaitReady blocks until no profile resolution is outstanding and returns
// the session. It fails with ErrNotLoggedIn when there is no session.
func (m *Manager) WaitReady(ctx context.Context) (Session, error) {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}

	s := m.Session()
	switch {
	case s.State == StateLoggedIn:
		return s, nil
	case s.Err != nil:
		return s, s.Err
	default:
		return s, ErrNotLoggedIn
	}
}

// Session returns a snapshot of the current state.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Token implements remote.TokenSource.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Token
}

// Invalidate implements remote.TokenSource: the remote rejected the token,
// so the persisted session is purged. A profile resolution in progress
// decides for itself whether to retry.
func (m *Manager) Invalidate() {
	if err := m.creds.ClearSession(context.Background()); err != nil {
		m.log.Warn("clear session", zap.Error(err))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.State == StateAuthenticating && m.session.IsLoading {
		m.session.Token = ""
		return
	}
	m.session = Session{State: StateLoggedOut}
}

// Login runs the popup handshake, persists the token and resolves the
// profile. It returns once the handshake and the resolution are done.
func (m *Manager) Login(ctx context.Context, profile ProfileFetcher) error {
	token, err := m.login.Handshake(ctx)
	if err != nil {
		return err
	}
	if err := m.creds.SetToken(ctx, token); err != nil {
		return err
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.session = Session{State: StateAuthenticating, Token: token, IsLoading: true}
	m.resetReady()
	m.mu.Unlock()

	return m.resolve(ctx, profile, token, gen)
}

// Logout drops the credential and every session-scoped local value. It
// makes no network call.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.creds.ClearSession(ctx)

	m.mu.Lock()
	m.gen++
	m.session = Session{State: StateLoggedOut}
	m.resetReady()
	m.markReady()
	m.mu.Unlock()

	for _, fn := range m.cfg.OnLogout {
		fn()
	}
	return err
}

// resolve fetches the profile with token, retrying per the policy. An auth
// failure that exhausts its retries ends the session. It stops as soon as
// gen is superseded by a later login or logout.
func (m *Manager) resolve(ctx context.Context, profile ProfileFetcher, token string, gen uint64) error {
	for failures := 0; ; failures++ {
		m.mu.Lock()
		if err := m.current(gen); err != nil {
			m.mu.Unlock()
			return err
		}
		m.session.Token = token
		m.mu.Unlock()

		u, err := profile.CurrentUser(ctx)
		if err == nil {
			return m.loggedIn(ctx, token, gen, u)
		}
		if ctx.Err() != nil {
			m.fail(ctx.Err(), gen, false)
			return ctx.Err()
		}
		if !m.cfg.Retry.ShouldRetry(err, failures) {
			m.fail(err, gen, remote.IsAuth(err))
			return err
		}
		m.log.Debug("retrying profile fetch", zap.Int("failures", failures+1), zap.Error(err))
		if err := m.cfg.Sleep(ctx, m.cfg.Retry.Backoff(failures)); err != nil {
			m.fail(err, gen, false)
			return err
		}
	}
}

// current reports whether gen still owns an unresolved session. It
// requires m.mu.
func (m *Manager) current(gen uint64) error {
	switch {
	case m.gen != gen && m.session.State != StateLoggedOut:
		return errSessionReplaced
	case m.gen != gen, m.session.State != StateAuthenticating:
		return ErrNotLoggedIn
	}
	return nil
}

// loggedIn and fail hold m.mu across the credential writes so a newer
// login cannot interleave with them.
func (m *Manager) loggedIn(ctx context.Context, token string, gen uint64, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.current(gen); err != nil {
		return err
	}

	// A 401 during retries purged the stored token; the token now works.
	if m.creds.Token(ctx) != token {
		if err := m.creds.SetToken(ctx, token); err != nil {
			m.log.Warn("persist token", zap.Error(err))
		}
	}
	if err := m.creds.SetUser(ctx, u); err != nil {
		m.log.Warn("cache user", zap.Error(err))
	}

	m.session = Session{State: StateLoggedIn, Token: token, User: &u}
	m.markReady()
	m.log.Info("logged in", zap.String("login", u.Login))
	return nil
}

func (m *Manager) fail(err error, gen uint64, endSession bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current(gen) != nil {
		return
	}
	if endSession {
		if cerr := m.creds.ClearSession(context.Background()); cerr != nil {
			m.log.Warn("clear session", zap.Error(cerr))
		}
		m.session = Session{State: StateLoggedOut, Err: err}
	} else {
		m.session.IsLoading = false
		m.session.Err = err
	}
	m.markReady()
}

// resetReady and markReady require m.mu.
func (m *Manager) resetReady() {
	select {
	case <-m.ready:
		m.ready = make(chan struct{})
	default:
	}
}

func (m *Manager) markReady() {
	select {
	case <-m.ready:
	default:
		close(m.ready)
	}
}

var _ remote.TokenSource = (*Manager)(nil)
