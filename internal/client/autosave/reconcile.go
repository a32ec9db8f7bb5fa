package autosave

import (
	"context"

	"github.com/atinyakov/ato/internal/models"
)

// DraftReader looks up and clears drafts. *drafts.Store implements it.
type DraftReader interface {
	Get(ctx context.Context, itemID int64) *models.Draft
	Remove(ctx context.Context, itemID int64)
}

// ReconcileDraft picks the content to open the editor with. A draft saved
// strictly after the item's updatedAt wins and restored is true; any other
// draft is stale and removed.
func ReconcileDraft(ctx context.Context, drafts DraftReader, item models.Item) (content models.Content, restored bool) {
	d := drafts.Get(ctx, item.ID)
	if d != nil && d.SavedAt.After(item.UpdatedAt) {
		labels := d.Labels
		if labels == nil {
			labels = item.Labels
		}
		return models.Content{
			Title:  d.Title,
			Memo:   d.Memo,
			Labels: append([]string{}, labels...),
		}, true
	}
	if d != nil {
		drafts.Remove(ctx, item.ID)
	}
	return models.ContentOf(item), false
}
