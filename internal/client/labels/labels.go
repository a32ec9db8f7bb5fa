// Package labels tracks recently used labels and suggests labels while typing.
package labels

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/client/storage"
	"github.com/atinyakov/ato/internal/logger"
	"github.com/atinyakov/ato/internal/models"
)

// MaxRecent bounds the recent list and the suggestion list.
const MaxRecent = 8

// Recent is the most-recent-first list of labels the user applied.
type Recent struct {
	kv  storage.Store
	log *zap.Logger
}

// NewRecent returns a Recent over kv.
func NewRecent(kv storage.Store, log *zap.Logger) *Recent {
	return &Recent{kv: kv, log: logger.OrNop(log).Named("labels")}
}

// List returns the stored labels. A missing or corrupt value reads as empty.
func (r *Recent) List(ctx context.Context) []string {
	raw, err := r.kv.Get(ctx, storage.KeyRecentLabels)
	if err != nil {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		r.log.Debug("ignoring corrupt recent labels", zap.Error(err))
		return nil
	}
	if len(names) > MaxRecent {
		names = names[:MaxRecent]
	}
	return names
}

// Add moves the given labels to the front, in the order given.
func (r *Recent) Add(ctx context.Context, used ...string) {
	if len(used) == 0 {
		return
	}
	next := make([]string, 0, MaxRecent)
	seen := map[string]bool{}
	for _, l := range append(append([]string{}, used...), r.List(ctx)...) {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		next = append(next, l)
		if len(next) == MaxRecent {
			break
		}
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return
	}
	if err := r.kv.Set(ctx, storage.KeyRecentLabels, string(raw)); err != nil {
		r.log.Warn("save recent labels", zap.Error(err))
	}
}

// Suggest returns up to MaxRecent candidates: recent labels first, then
// repository labels, skipping those already applied. A non-empty query keeps
// only case-insensitive substring matches.
func Suggest(query string, recent []string, repo []models.Label, applied []string) []string {
	skip := map[string]bool{}
	for _, a := range applied {
		skip[strings.ToLower(a)] = true
	}
	q := strings.ToLower(strings.TrimSpace(query))

	var out []string
	consider := func(name string) bool {
		key := strings.ToLower(name)
		if name == "" || skip[key] {
			return true
		}
		if q != "" && !strings.Contains(key, q) {
			return true
		}
		skip[key] = true
		out = append(out, name)
		return len(out) < MaxRecent
	}

	for _, name := range recent {
		if !consider(name) {
			return out
		}
	}
	for _, l := range repo {
		if !consider(l.Name) {
			return out
		}
	}
	return out
}
