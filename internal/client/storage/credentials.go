package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/logger"
	"github.com/atinyakov/ato/internal/models"
)

// Credentials reads and writes the session-scoped entries of a Store.
type Credentials struct {
	store Store
	log   *zap.Logger
}

// NewCredentials wraps store.
func NewCredentials(store Store, log *zap.Logger) *Credentials {
	return &Credentials{store: store, log: logger.OrNop(log).Named("credentials")}
}

// Token returns the persisted access token, or "".
func (c *Credentials) Token(ctx context.Context) string {
	v, err := c.store.Get(ctx, KeyToken)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Warn("read token", zap.Error(err))
		}
		return ""
	}
	return v
}

// SetToken persists token.
func (c *Credentials) SetToken(ctx context.Context, token string) error {
	return c.store.Set(ctx, KeyToken, token)
}

// User returns the cached profile. ok is false when nothing usable is cached.
func (c *Credentials) User(ctx context.Context) (u models.User, ok bool) {
	v, err := c.store.Get(ctx, KeyUser)
	if err != nil {
		return models.User{}, false
	}
	if err := json.Unmarshal([]byte(v), &u); err != nil || u.Login == "" {
		_ = c.store.Delete(ctx, KeyUser)
		return models.User{}, false
	}
	return u, true
}

// SetUser caches the profile.
func (c *Credentials) SetUser(ctx context.Context, u models.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return c.store.Set(ctx, KeyUser, string(raw))
}

// RepoInitialized reports whether the datastore repository is known to exist.
func (c *Credentials) RepoInitialized(ctx context.Context) bool {
	v, err := c.store.Get(ctx, KeyRepoInitialized)
	return err == nil && v == "true"
}

// MarkRepoInitialized records that the datastore repository exists.
func (c *Credentials) MarkRepoInitialized(ctx context.Context) error {
	return c.store.Set(ctx, KeyRepoInitialized, "true")
}

// ClearSession removes the token, the cached user and the repository flag.
// Every key is attempted; the first error is returned.
func (c *Credentials) ClearSession(ctx context.Context) error {
	var first error
	for _, k := range []string{KeyToken, KeyUser, KeyRepoInitialized} {
		if err := c.store.Delete(ctx, k); err != nil && first == nil {
			first = err
		}
	}
	return first
}
