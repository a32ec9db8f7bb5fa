// Package drafts keeps unsaved edits locally, one per item.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/client/storage"
	"github.com/atinyakov/ato/internal/logger"
	"github.com/atinyakov/ato/internal/models"
)

// record is the stored shape. Pointers let the schema tell a missing field
// from a zero value.
type record struct {
	ItemID          *int64     `json:"itemId" validate:"required"`
	Title           *string    `json:"title" validate:"required"`
	Memo            *string    `json:"memo" validate:"required"`
	Labels          []string   `json:"labels,omitempty" validate:"omitempty,dive,required"`
	SavedAt         *time.Time `json:"savedAt" validate:"required"`
	ServerUpdatedAt *time.Time `json:"serverUpdatedAt" validate:"required"`
}

var schema = validator.New()

// Store is the draft store. It never returns errors: storage failures are
// logged and corrupt entries are removed.
type Store struct {
	kv  storage.Store
	log *zap.Logger
}

// New returns a Store over kv.
func New(kv storage.Store, log *zap.Logger) *Store {
	return &Store{kv: kv, log: logger.OrNop(log).Named("drafts")}
}

// Key returns the storage key for itemID.
func Key(itemID int64) string {
	return storage.DraftPrefix + strconv.FormatInt(itemID, 10)
}

// Save upserts the draft for itemID.
func (s *Store) Save(ctx context.Context, itemID int64, d models.Draft) {
	d.ItemID = itemID
	r := record{
		ItemID:          &d.ItemID,
		Title:           &d.Title,
		Memo:            &d.Memo,
		Labels:          d.Labels,
		SavedAt:         &d.SavedAt,
		ServerUpdatedAt: &d.ServerUpdatedAt,
	}
	raw, err := json.Marshal(r)
	if err != nil {
		s.log.Warn("encode draft", zap.Int64("item", itemID), zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, Key(itemID), string(raw)); err != nil {
		lvl := zap.WarnLevel
		if errors.Is(err, storage.ErrQuotaExceeded) {
			lvl = zap.DebugLevel
		}
		s.log.Log(lvl, "save draft", zap.Int64("item", itemID), zap.Error(err))
	}
}

// Get returns the draft for itemID, or nil when there is none. An entry that
// does not parse or does not match the schema is deleted.
func (s *Store) Get(ctx context.Context, itemID int64) *models.Draft {
	raw, err := s.kv.Get(ctx, Key(itemID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("read draft", zap.Int64("item", itemID), zap.Error(err))
		}
		return nil
	}

	var r record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		s.discard(ctx, itemID, err)
		return nil
	}
	if err := schema.Struct(r); err != nil {
		s.discard(ctx, itemID, err)
		return nil
	}

	return &models.Draft{
		ItemID:          *r.ItemID,
		Title:           *r.Title,
		Memo:            *r.Memo,
		Labels:          r.Labels,
		SavedAt:         *r.SavedAt,
		ServerUpdatedAt: *r.ServerUpdatedAt,
	}
}

// Remove deletes the draft for itemID. Removing a missing draft is a no-op.
func (s *Store) Remove(ctx context.Context, itemID int64) {
	if err := s.kv.Delete(ctx, Key(itemID)); err != nil {
		s.log.Warn("remove draft", zap.Int64("item", itemID), zap.Error(err))
	}
}

// List returns every readable draft, ordered by item id. Unreadable entries
// are dropped the same way Get drops them.
func (s *Store) List(ctx context.Context) []models.Draft {
	keys, err := s.kv.Keys(ctx, storage.DraftPrefix)
	if err != nil {
		s.log.Warn("list drafts", zap.Error(err))
		return nil
	}
	var out []models.Draft
	for _, k := range keys {
		id, err := strconv.ParseInt(strings.TrimPrefix(k, storage.DraftPrefix), 10, 64)
		if err != nil {
			continue
		}
		if d := s.Get(ctx, id); d != nil {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func (s *Store) discard(ctx context.Context, itemID int64, cause error) {
	s.log.Debug("dropping corrupt draft", zap.Int64("item", itemID), zap.Error(cause))
	s.Remove(ctx, itemID)
}
