package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statePath = "/home/u/.config/ato/state.json"

func TestFileStore_MissingFileStartsEmpty(t *testing.T) {
	s, err := NewFileStore(afero.NewMemMapFs(), statePath, 0, nil)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), KeyToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Persists(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	s, err := NewFileStore(fsys, statePath, 0, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyToken, "tok"))
	require.NoError(t, s.Set(ctx, DraftPrefix+"5", "{}"))
	require.NoError(t, s.Set(ctx, DraftPrefix+"12", "{}"))

	// Reload from disk.
	reloaded, err := NewFileStore(fsys, statePath, 0, nil)
	require.NoError(t, err)
	v, err := reloaded.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok", v)

	keys, err := reloaded.Keys(ctx, DraftPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{DraftPrefix + "12", DraftPrefix + "5"}, keys)

	exists, err := afero.Exists(fsys, statePath+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(afero.NewMemMapFs(), statePath, 0, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Quota(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(afero.NewMemMapFs(), statePath, 20, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "a", strings.Repeat("x", 10)))
	assert.ErrorIs(t, s.Set(ctx, "b", strings.Repeat("x", 10)), ErrQuotaExceeded)

	// Overwriting an entry only counts the difference.
	require.NoError(t, s.Set(ctx, "a", strings.Repeat("y", 19)))

	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_CorruptFileStartsEmpty(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, statePath, []byte("not-json"), 0o600))

	s, err := NewFileStore(fsys, statePath, 0, nil)
	require.NoError(t, err)

	keys, err := s.Keys(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStore_ReadOnlyFsFailsWrites(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), statePath, 0, nil)
	require.NoError(t, err)

	require.Error(t, s.Set(ctx, "k", "v"))

	// A failed write leaves memory unchanged.
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
