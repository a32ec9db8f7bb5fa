// Package autosave saves detail-editor edits in the background: debounced
// after typing stops, immediately on demand, with a local draft kept when
// the network is unreachable.
package autosave

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/client/remote"
	"github.com/atinyakov/ato/internal/logger"
	"github.com/atinyakov/ato/internal/models"
)

const (
	// DefaultDebounce is the quiet period before a debounced save fires.
	DefaultDebounce = 3 * time.Second
	// RestoredNoticeDuration is how long the restored-from-draft notice stays up.
	RestoredNoticeDuration = 5 * time.Second
)

// Saver persists a patch. *cache.Store implements it.
type Saver interface {
	Update(ctx context.Context, id int64, p models.ItemPatch) (models.Item, error)
}

// DraftWriter stores and clears drafts. *drafts.Store implements it.
type DraftWriter interface {
	Save(ctx context.Context, itemID int64, d models.Draft)
	Remove(ctx context.Context, itemID int64)
}

// Config tunes an Engine.
type Config struct {
	Debounce time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// Engine tracks one item's editable content against the last saved
// baseline. Saves run in the background; every save gets a version and
// only the latest version may move the baseline or touch the draft.
type Engine struct {
	ctx    context.Context
	saver  Saver
	drafts DraftWriter
	log    *zap.Logger
	now    func() time.Time

	text   *Debouncer
	labels *Debouncer
	wg     sync.WaitGroup

	mu              sync.Mutex
	id              int64
	current         models.Content
	saved           models.Content
	serverUpdatedAt time.Time
	lastSavedAt     time.Time
	version         uint64
	inflight        int
	// latest is the content of the newest save still in flight.
	latest *models.Content
	closed bool
}

// New returns an Engine with nothing loaded. Saves run under ctx, which
// should outlive the editor so the final save on Close can finish.
func New(ctx context.Context, saver Saver, drafts DraftWriter, cfg Config) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	e := &Engine{
		ctx:    ctx,
		saver:  saver,
		drafts: drafts,
		log:    logger.OrNop(cfg.Logger).Named("autosave"),
		now:    cfg.Now,
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.text = NewDebouncer(cfg.Debounce, e.saveCurrent)
	e.labels = NewDebouncer(cfg.Debounce, e.saveCurrent)
	return e
}

// Reset loads item as the saved baseline and current as the in-memory
// content, which differs from the baseline when a draft was restored. Any
// pending timer is dropped and results of earlier saves are ignored.
func (e *Engine) Reset(item models.Item, current models.Content) {
	e.text.Cancel()
	e.labels.Cancel()

	e.mu.Lock()
	e.id = item.ID
	e.saved = models.ContentOf(item)
	e.current = clone(current)
	e.serverUpdatedAt = item.UpdatedAt
	e.lastSavedAt = item.UpdatedAt
	e.version++
	e.latest = nil
	e.closed = false
	dirty := !e.current.Equal(e.saved)
	e.mu.Unlock()

	if dirty {
		e.text.Trigger()
	}
}

// SetText records typed title and memo and restarts the text quiet period.
func (e *Engine) SetText(title, memo string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.current.Title, e.current.Memo = title, memo
	e.mu.Unlock()
	e.text.Trigger()
}

// SetLabels records new labels and restarts the label quiet period.
func (e *Engine) SetLabels(labels []string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.current.Labels = append([]string{}, labels...)
	e.mu.Unlock()
	e.labels.Trigger()
}

// SaveLabels records new labels and saves right away.
func (e *Engine) SaveLabels(labels []string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.current.Labels = append([]string{}, labels...)
	e.mu.Unlock()
	e.labels.Cancel()
	e.saveCurrent()
}

// SaveNow saves the current content without waiting for the quiet period.
func (e *Engine) SaveNow() {
	e.text.Cancel()
	e.labels.Cancel()
	e.saveCurrent()
}

func (e *Engine) saveCurrent() {
	e.mu.Lock()
	c := clone(e.current)
	e.mu.Unlock()
	e.save(c)
}

// save starts a background save of c unless it matches the baseline, the
// newest in-flight save, or fails validation.
func (e *Engine) save(c models.Content) {
	e.mu.Lock()
	if c.Equal(e.saved) && e.latest == nil {
		e.mu.Unlock()
		return
	}
	if e.latest != nil && c.Equal(*e.latest) {
		e.mu.Unlock()
		return
	}
	if err := models.ValidateContent(c); err != nil {
		e.mu.Unlock()
		e.log.Debug("skipping invalid content", zap.Error(err))
		return
	}
	e.version++
	v := e.version
	id := e.id
	e.inflight++
	e.latest = &c
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		item, err := e.saver.Update(e.ctx, id, c.Patch())
		e.finish(v, id, c, item, err)
	}()
}

func (e *Engine) finish(v uint64, id int64, c models.Content, item models.Item, err error) {
	e.mu.Lock()
	e.inflight--
	current := v == e.version
	if current {
		e.latest = nil
	}
	var draft *models.Draft
	if current {
		switch {
		case err == nil:
			e.saved = c
			e.lastSavedAt = e.now()
			if !item.UpdatedAt.IsZero() {
				e.serverUpdatedAt = item.UpdatedAt
			}
		case remote.IsNetwork(err):
			draft = &models.Draft{
				ItemID:          id,
				Title:           c.Title,
				Memo:            c.Memo,
				Labels:          c.Labels,
				SavedAt:         e.now(),
				ServerUpdatedAt: e.serverUpdatedAt,
			}
		}
	}
	e.mu.Unlock()

	switch {
	case !current:
		e.log.Debug("discarding superseded save", zap.Int64("item", id), zap.Uint64("version", v))
	case err == nil:
		e.drafts.Remove(e.ctx, id)
	case draft != nil:
		e.log.Info("offline, keeping draft", zap.Int64("item", id))
		e.drafts.Save(e.ctx, id, *draft)
	default:
		e.log.Warn("autosave failed", zap.Int64("item", id), zap.Error(err))
	}
}

// Close tears the editor down. If there are unsaved edits a final save is
// started and, when the content is valid, a draft is written regardless of
// how that save ends. Later setters are ignored.
func (e *Engine) Close() {
	e.text.Cancel()
	e.labels.Cancel()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	c := clone(e.current)
	dirty := !c.Equal(e.saved)
	id, serverUpdatedAt := e.id, e.serverUpdatedAt
	e.mu.Unlock()

	if !dirty {
		return
	}
	if models.ValidateContent(c) == nil {
		e.drafts.Save(e.ctx, id, models.Draft{
			ItemID:          id,
			Title:           c.Title,
			Memo:            c.Memo,
			Labels:          c.Labels,
			SavedAt:         e.now(),
			ServerUpdatedAt: serverUpdatedAt,
		})
	}
	e.save(c)
}

// Wait blocks until in-flight saves finish or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDirty reports whether the current content differs from the last save.
func (e *Engine) IsDirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.current.Equal(e.saved)
}

// IsSaving reports whether any save is in flight.
func (e *Engine) IsSaving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight > 0
}

// LastSavedAt is the time of the latest successful save, initially the
// item's updatedAt. It is zero when unknown.
func (e *Engine) LastSavedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSavedAt
}

// Content returns the in-memory content.
func (e *Engine) Content() models.Content {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.current)
}

// Saved returns the last saved baseline.
func (e *Engine) Saved() models.Content {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.saved)
}

func clone(c models.Content) models.Content {
	c.Labels = append([]string{}, c.Labels...)
	return c
}
