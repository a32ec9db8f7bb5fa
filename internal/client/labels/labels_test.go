package labels

import (
	"context"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/ato/internal/client/storage"
	"github.com/atinyakov/ato/internal/models"
)

func newRecent(t *testing.T) (*Recent, storage.Store) {
	t.Helper()
	kv, err := storage.NewFileStore(afero.NewMemMapFs(), "/state.json", 0, nil)
	require.NoError(t, err)
	return NewRecent(kv, nil), kv
}

func TestRecent_MostRecentFirstDeduplicated(t *testing.T) {
	ctx := context.Background()
	r, _ := newRecent(t)

	r.Add(ctx, "home")
	r.Add(ctx, "work")
	r.Add(ctx, "home")

	assert.Equal(t, []string{"home", "work"}, r.List(ctx))
}

func TestRecent_Bounded(t *testing.T) {
	ctx := context.Background()
	r, _ := newRecent(t)

	for i := 0; i < 12; i++ {
		r.Add(ctx, fmt.Sprintf("l%d", i))
	}

	got := r.List(ctx)
	require.Len(t, got, MaxRecent)
	assert.Equal(t, "l11", got[0])
	assert.Equal(t, "l4", got[MaxRecent-1])
}

func TestRecent_CorruptReadsEmpty(t *testing.T) {
	ctx := context.Background()
	r, kv := newRecent(t)
	require.NoError(t, kv.Set(ctx, storage.KeyRecentLabels, `{"not": "a list"}`))

	assert.Empty(t, r.List(ctx))

	r.Add(ctx, "home")
	assert.Equal(t, []string{"home"}, r.List(ctx))
}

func TestSuggest(t *testing.T) {
	repo := []models.Label{{Name: "bug"}, {Name: "Home"}, {Name: "reading"}, {Name: "work"}}

	tests := []struct {
		name    string
		query   string
		recent  []string
		applied []string
		want    []string
	}{
		{
			name:   "recent first then repo",
			recent: []string{"work", "errand"},
			want:   []string{"work", "errand", "bug", "Home", "reading"},
		},
		{
			name:    "applied labels skipped case-insensitively",
			recent:  []string{"home"},
			applied: []string{"HOME", "bug"},
			want:    []string{"reading", "work"},
		},
		{
			name:   "substring filter",
			query:  "R",
			recent: []string{"errand"},
			want:   []string{"errand", "reading", "work"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Suggest(tt.query, tt.recent, repo, tt.applied))
		})
	}
}

func TestSuggest_Bounded(t *testing.T) {
	var repo []models.Label
	for i := 0; i < 20; i++ {
		repo = append(repo, models.Label{Name: fmt.Sprintf("l%02d", i)})
	}
	assert.Len(t, Suggest("", nil, repo, nil), MaxRecent)
}
