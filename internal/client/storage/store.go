// Package storage persists the client's local state: credentials, the
// repository flag, recent labels and drafts, all as string values under
// string keys.
package storage

import (
	"context"
	"errors"
)

// Keys of the session-scoped and shared entries.
const (
	KeyToken           = "ato:token"
	KeyUser            = "ato:user"
	KeyRepoInitialized = "ato:repo-initialized"
	KeyRecentLabels    = "ato:recent-labels"
	// DraftPrefix is followed by the item id.
	DraftPrefix = "ato:draft:"
)

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("storage: key not found")
	// ErrQuotaExceeded is returned by Set when the write would exceed the size cap.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

// Store is a persistent string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
