package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/client/remote"
	"github.com/atinyakov/ato/internal/logger"
	"github.com/atinyakov/ato/internal/models"
)

// ListPageSize is the page size of the open and closed lists.
const ListPageSize = 30

// ErrPlaceholder is returned for actions against an item whose creation the
// server has not confirmed yet.
var ErrPlaceholder = errors.New("item is still being created")

// Backend is the remote store the cache reads through. *remote.Repository
// implements it.
type Backend interface {
	List(ctx context.Context, f remote.ListFilter) (remote.ListResult, error)
	Create(ctx context.Context, in models.CreateInput) (models.Item, error)
	Get(ctx context.Context, id int64) (models.Item, error)
	Update(ctx context.Context, id int64, p models.ItemPatch) (models.Item, error)
	Close(ctx context.Context, id int64) (models.Item, error)
	Reopen(ctx context.Context, id int64) (models.Item, error)
	Search(ctx context.Context, p remote.SearchParams) ([]models.Item, error)
	Labels(ctx context.Context) ([]models.Label, error)
	Ensure(ctx context.Context, flag remote.RepoFlag) error
}

// ClosedPages is the paged closed list.
type ClosedPages struct {
	Pages []remote.ListResult
}

// Items flattens the loaded pages.
func (p ClosedPages) Items() []models.Item {
	var out []models.Item
	for _, pg := range p.Pages {
		out = append(out, pg.Items...)
	}
	return out
}

// HasNextPage reports whether another page can be loaded.
func (p ClosedPages) HasNextPage() bool {
	return len(p.Pages) > 0 && p.Pages[len(p.Pages)-1].HasNextPage
}

func (p ClosedPages) nextPage() int {
	if !p.HasNextPage() {
		return 0
	}
	return p.Pages[len(p.Pages)-1].NextPage
}

// Store runs queries and mutations against the backend through the Cache.
// It owns the placeholder id counter; build one per process.
type Store struct {
	cache   *Cache
	backend Backend
	flag    remote.RepoFlag
	now     func() time.Time
	log     *zap.Logger

	mu         sync.Mutex
	nextTempID int64
}

// NewStore returns a Store. flag may be nil.
func NewStore(c *Cache, backend Backend, flag remote.RepoFlag, log *zap.Logger) *Store {
	return &Store{
		cache:      c,
		backend:    backend,
		flag:       flag,
		now:        time.Now,
		log:        logger.OrNop(log).Named("items"),
		nextTempID: -1,
	}
}

// Cache returns the underlying cache.
func (s *Store) Cache() *Cache { return s.cache }

func (s *Store) tempID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextTempID
	s.nextTempID--
	return id
}

// OpenItems returns the first page of open items, most recently updated
// first. It fails with remote.ErrRepoNotConfigured when the datastore is missing.
func (s *Store) OpenItems(ctx context.Context) (remote.ListResult, error) {
	v, err := s.cache.Fetch(ctx, KeyOpenItems, OpenStaleTime, func(ctx context.Context) (any, error) {
		if err := s.backend.Ensure(ctx, s.flag); err != nil {
			return nil, err
		}
		return s.backend.List(ctx, remote.ListFilter{
			State:     models.StateOpen,
			PerPage:   ListPageSize,
			Sort:      "updated",
			Direction: "desc",
		})
	})
	if err != nil {
		return remote.ListResult{}, err
	}
	return v.(remote.ListResult), nil
}

// ClosedItems returns the loaded pages of closed items, loading the first
// page when nothing fresh is cached.
func (s *Store) ClosedItems(ctx context.Context) (ClosedPages, error) {
	v, err := s.cache.Fetch(ctx, KeyClosedItems, ClosedStaleTime, func(ctx context.Context) (any, error) {
		first, err := s.listClosed(ctx, 1)
		if err != nil {
			return nil, err
		}
		return ClosedPages{Pages: []remote.ListResult{first}}, nil
	})
	if err != nil {
		return ClosedPages{}, err
	}
	return v.(ClosedPages), nil
}

// FetchNextClosedPage appends the next closed page, if there is one.
func (s *Store) FetchNextClosedPage(ctx context.Context) (ClosedPages, error) {
	cur, err := s.ClosedItems(ctx)
	if err != nil || !cur.HasNextPage() {
		return cur, err
	}

	page, err := s.listClosed(ctx, cur.nextPage())
	if err != nil {
		return cur, err
	}

	out := cur
	s.cache.Update(KeyClosedItems, func(v any, ok bool) (any, bool) {
		latest, _ := v.(ClosedPages)
		if !ok || len(latest.Pages) != len(cur.Pages) {
			// Refetched or appended meanwhile.
			out = latest
			return nil, false
		}
		pages := make([]remote.ListResult, 0, len(latest.Pages)+1)
		pages = append(pages, latest.Pages...)
		out = ClosedPages{Pages: append(pages, page)}
		return out, true
	})
	return out, nil
}

func (s *Store) listClosed(ctx context.Context, page int) (remote.ListResult, error) {
	return s.backend.List(ctx, remote.ListFilter{
		State:     models.StateClosed,
		Page:      page,
		PerPage:   ListPageSize,
		Sort:      "updated",
		Direction: "desc",
	})
}

// Item returns one item. Item queries are always refetched; concurrent
// reads share one request.
func (s *Store) Item(ctx context.Context, id int64) (models.Item, error) {
	if id < 0 {
		return models.Item{}, ErrPlaceholder
	}
	v, err := s.cache.Fetch(ctx, ItemKey(id), ItemStaleTime, func(ctx context.Context) (any, error) {
		return s.backend.Get(ctx, id)
	})
	if err != nil {
		return models.Item{}, err
	}
	return v.(models.Item), nil
}

// Search runs a search. An empty query without a label returns nothing
// and makes no request.
func (s *Store) Search(ctx context.Context, p remote.SearchParams) ([]models.Item, error) {
	p.Query = strings.TrimSpace(p.Query)
	if p.Query == "" && p.Label == "" {
		return nil, nil
	}
	v, err := s.cache.Fetch(ctx, SearchKey(p.Query, p.IncludeClosed, p.Label), SearchStaleTime, func(ctx context.Context) (any, error) {
		return s.backend.Search(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Item), nil
}

// Labels returns the repository labels.
func (s *Store) Labels(ctx context.Context) ([]models.Label, error) {
	v, err := s.cache.Fetch(ctx, KeyLabels, LabelsStaleTime, func(ctx context.Context) (any, error) {
		return s.backend.Labels(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Label), nil
}
