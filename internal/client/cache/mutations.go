package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/client/remote"
	"github.com/atinyakov/ato/internal/models"
)

// Create adds an item. A placeholder with a negative id is prepended to the
// open list right away and replaced in place by the server's item once the
// call succeeds. On failure the open list is restored exactly. An open list
// that was never fetched stays absent: a list holding only the new item
// would hide everything else until it went stale.
func (s *Store) Create(ctx context.Context, in models.CreateInput) (models.Item, error) {
	if err := models.ValidateCreate(in); err != nil {
		return models.Item{}, err
	}

	s.cache.CancelFetch(KeyOpenItems)
	snap := s.cache.Snapshot(KeyOpenItems)

	tempID := s.tempID()
	now := s.now()
	placeholder := models.Item{
		ID:        tempID,
		Title:     in.Title,
		Memo:      in.Memo,
		State:     models.StateOpen,
		Labels:    append([]string{}, in.Labels...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.cache.Update(KeyOpenItems, func(v any, ok bool) (any, bool) {
		old, isList := v.(remote.ListResult)
		if !ok || !isList {
			return nil, false
		}
		old.Items = append([]models.Item{placeholder}, old.Items...)
		return old, true
	})

	created, err := s.backend.Create(ctx, in)
	defer s.cache.InvalidatePrefix(SearchPrefix)
	if err != nil {
		s.cache.Restore(snap)
		return models.Item{}, err
	}

	s.cache.Update(KeyOpenItems, func(v any, ok bool) (any, bool) {
		old, isList := v.(remote.ListResult)
		if !ok || !isList {
			return nil, false
		}
		items, found := replaceItem(old.Items, tempID, created)
		if !found {
			return nil, false
		}
		old.Items = items
		return old, true
	})
	s.cache.Set(ItemKey(created.ID), created)
	return created, nil
}

// Close completes an item. It leaves the open list at once; the closed list
// is invalidated whatever the outcome.
func (s *Store) Close(ctx context.Context, id int64) (models.Item, error) {
	if id < 0 {
		return models.Item{}, ErrPlaceholder
	}

	s.cache.CancelFetch(KeyOpenItems)
	snap := s.cache.Snapshot(KeyOpenItems)
	s.cache.Update(KeyOpenItems, removeFromList(id))

	defer func() {
		s.cache.Invalidate(KeyClosedItems)
		s.cache.InvalidatePrefix(SearchPrefix)
	}()

	item, err := s.backend.Close(ctx, id)
	if err != nil {
		s.cache.Restore(snap)
		return models.Item{}, err
	}
	s.cache.Set(ItemKey(id), item)
	return item, nil
}

// Reopen moves a closed item back to open. It leaves the loaded closed
// pages at once; both lists are invalidated whatever the outcome.
func (s *Store) Reopen(ctx context.Context, id int64) (models.Item, error) {
	if id < 0 {
		return models.Item{}, ErrPlaceholder
	}

	s.cache.CancelFetch(KeyClosedItems)
	snap := s.cache.Snapshot(KeyClosedItems)
	s.cache.Update(KeyClosedItems, func(v any, ok bool) (any, bool) {
		old, isPages := v.(ClosedPages)
		if !ok || !isPages {
			return nil, false
		}
		pages := make([]remote.ListResult, len(old.Pages))
		for i, pg := range old.Pages {
			pg.Items = removeItem(pg.Items, id)
			pages[i] = pg
		}
		return ClosedPages{Pages: pages}, true
	})

	defer func() {
		s.cache.Invalidate(KeyOpenItems)
		s.cache.Invalidate(KeyClosedItems)
		s.cache.InvalidatePrefix(SearchPrefix)
	}()

	item, err := s.backend.Reopen(ctx, id)
	if err != nil {
		s.cache.Restore(snap)
		return models.Item{}, err
	}
	s.cache.Set(ItemKey(id), item)
	return item, nil
}

// Update patches an item. Nothing is applied before the server answers; on
// success the item entry is replaced and the item is swapped in place in the
// open list.
func (s *Store) Update(ctx context.Context, id int64, p models.ItemPatch) (models.Item, error) {
	if id < 0 {
		return models.Item{}, ErrPlaceholder
	}
	if err := models.ValidatePatch(p); err != nil {
		return models.Item{}, err
	}

	item, err := s.backend.Update(ctx, id, p)
	defer s.cache.InvalidatePrefix(SearchPrefix)
	if err != nil {
		return models.Item{}, err
	}

	s.cache.Set(ItemKey(id), item)
	s.cache.CancelFetch(KeyOpenItems)
	if item.State == models.StateOpen {
		s.cache.Update(KeyOpenItems, func(v any, ok bool) (any, bool) {
			old, isList := v.(remote.ListResult)
			if !ok || !isList {
				return nil, false
			}
			items, found := replaceItem(old.Items, id, item)
			if !found {
				return nil, false
			}
			old.Items = items
			return old, true
		})
	} else {
		s.cache.Update(KeyOpenItems, removeFromList(id))
		s.cache.Invalidate(KeyClosedItems)
	}
	s.log.Debug("item updated", zap.Int64("id", id))
	return item, nil
}

func removeFromList(id int64) func(v any, ok bool) (any, bool) {
	return func(v any, ok bool) (any, bool) {
		old, isList := v.(remote.ListResult)
		if !ok || !isList {
			return nil, false
		}
		old.Items = removeItem(old.Items, id)
		return old, true
	}
}

// replaceItem returns a copy of items with the entry whose id matches
// swapped for with. Other entries keep their positions.
func replaceItem(items []models.Item, id int64, with models.Item) ([]models.Item, bool) {
	out := make([]models.Item, len(items))
	found := false
	for i, it := range items {
		if it.ID == id && !found {
			out[i] = with
			found = true
			continue
		}
		out[i] = it
	}
	return out, found
}

func removeItem(items []models.Item, id int64) []models.Item {
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}
