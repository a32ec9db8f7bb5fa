package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/models"
)

const (
	defaultPerPage = 30
	maxPerPage     = 100
)

// ListFilter selects a page of items.
type ListFilter struct {
	State   models.State
	Page    int
	PerPage int
	// Sort and Direction default to "updated" and "desc".
	Sort      string
	Direction string
}

// ListResult is one page of items.
type ListResult struct {
	Items       []models.Item
	HasNextPage bool
	// NextPage is 0 when HasNextPage is false.
	NextPage int
}

// SearchParams narrows a full-text search.
type SearchParams struct {
	Query         string
	IncludeClosed bool
	Label         string
}

// RepoFlag caches whether the datastore repository is known to exist.
type RepoFlag interface {
	RepoInitialized(ctx context.Context) bool
	MarkRepoInitialized(ctx context.Context) error
}

// Repository scopes item operations to one owner/name pair.
type Repository struct {
	c     *Client
	owner string
	name  string
}

// Repository returns a handle to owner/name. An empty name selects DefaultRepoName.
func (c *Client) Repository(owner, name string) *Repository {
	if name == "" {
		name = DefaultRepoName
	}
	return &Repository{c: c, owner: owner, name: name}
}

// FullName returns "owner/name".
func (r *Repository) FullName() string { return r.owner + "/" + r.name }

func (r *Repository) path(elem ...string) string {
	p := "/repos/" + url.PathEscape(r.owner) + "/" + url.PathEscape(r.name)
	for _, e := range elem {
		p += "/" + e
	}
	return p
}

// List returns one page of items matching f. Pull requests are dropped.
func (r *Repository) List(ctx context.Context, f ListFilter) (ListResult, error) {
	q := url.Values{}
	state := f.State
	if state == "" {
		state = models.StateOpen
	}
	q.Set("state", string(state))
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	q.Set("per_page", strconv.Itoa(perPage))
	page := f.Page
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("sort", orDefault(f.Sort, "updated"))
	q.Set("direction", orDefault(f.Direction, "desc"))

	resp, err := r.c.do(ctx, http.MethodGet, r.path("issues")+"?"+q.Encode(), nil)
	if err != nil {
		return ListResult{}, err
	}
	link := resp.Header.Get("Link")

	var raw []issue
	if err := decode(resp, &raw); err != nil {
		return ListResult{}, err
	}

	res := ListResult{Items: items(raw)}
	res.NextPage, res.HasNextPage = NextPage(link)
	return res, nil
}

// Create opens a new item.
func (r *Repository) Create(ctx context.Context, in models.CreateInput) (models.Item, error) {
	if err := models.ValidateCreate(in); err != nil {
		return models.Item{}, err
	}
	body := issueCreate{Title: in.Title, Body: in.Memo, Labels: in.Labels}
	resp, err := r.c.do(ctx, http.MethodPost, r.path("issues"), body)
	if err != nil {
		return models.Item{}, err
	}
	var raw issue
	if err := decode(resp, &raw); err != nil {
		return models.Item{}, err
	}
	return raw.item(), nil
}

// Get fetches a single item. A pull request with that number is reported
// as not found.
func (r *Repository) Get(ctx context.Context, id int64) (models.Item, error) {
	resp, err := r.c.do(ctx, http.MethodGet, r.path("issues", strconv.FormatInt(id, 10)), nil)
	if err != nil {
		return models.Item{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		drain(resp)
		return models.Item{}, &NotFoundError{Msg: fmt.Sprintf("item #%d", id)}
	}
	var raw issue
	if err := decode(resp, &raw); err != nil {
		return models.Item{}, err
	}
	if raw.isPullRequest() {
		return models.Item{}, &NotFoundError{Msg: fmt.Sprintf("#%d is a pull request, not an item", id)}
	}
	return raw.item(), nil
}

// Update applies a partial patch.
func (r *Repository) Update(ctx context.Context, id int64, p models.ItemPatch) (models.Item, error) {
	if err := models.ValidatePatch(p); err != nil {
		return models.Item{}, err
	}
	resp, err := r.c.do(ctx, http.MethodPatch, r.path("issues", strconv.FormatInt(id, 10)), patchBody(p))
	if err != nil {
		return models.Item{}, err
	}
	var raw issue
	if err := decode(resp, &raw); err != nil {
		return models.Item{}, err
	}
	return raw.item(), nil
}

// Close marks the item closed as completed.
func (r *Repository) Close(ctx context.Context, id int64) (models.Item, error) {
	return r.transition(ctx, id, models.StateClosed, models.ReasonCompleted)
}

// Reopen marks the item open again.
func (r *Repository) Reopen(ctx context.Context, id int64) (models.Item, error) {
	return r.transition(ctx, id, models.StateOpen, models.ReasonReopened)
}

func (r *Repository) transition(ctx context.Context, id int64, s models.State, reason models.StateReason) (models.Item, error) {
	return r.Update(ctx, id, models.ItemPatch{State: &s, StateReason: &reason})
}

// Search runs a full-text search scoped to this repository's items.
func (r *Repository) Search(ctx context.Context, p SearchParams) ([]models.Item, error) {
	q := url.Values{}
	q.Set("q", SearchQuery(r.FullName(), p))
	q.Set("sort", "updated")
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(defaultPerPage))

	resp, err := r.c.do(ctx, http.MethodGet, "/search/issues?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var raw searchResult
	if err := decode(resp, &raw); err != nil {
		return nil, err
	}
	return items(raw.Items), nil
}

// SearchQuery joins the search qualifiers with spaces. Double quotes are
// stripped from the label so it cannot escape its quoted qualifier.
func SearchQuery(fullName string, p SearchParams) string {
	parts := []string{"repo:" + fullName, "is:issue"}
	if t := strings.TrimSpace(p.Query); t != "" {
		parts = append(parts, t)
	}
	if !p.IncludeClosed {
		parts = append(parts, "state:open")
	}
	if p.Label != "" {
		parts = append(parts, `label:"`+strings.ReplaceAll(p.Label, `"`, "")+`"`)
	}
	return strings.Join(parts, " ")
}

// Labels lists the repository labels sorted by name.
func (r *Repository) Labels(ctx context.Context) ([]models.Label, error) {
	resp, err := r.c.do(ctx, http.MethodGet, r.path("labels")+"?per_page=100&sort=name", nil)
	if err != nil {
		return nil, err
	}
	var raw []label
	if err := decode(resp, &raw); err != nil {
		return nil, err
	}
	out := make([]models.Label, 0, len(raw))
	for _, l := range raw {
		out = append(out, l.model())
	}
	return out, nil
}

// Ensure checks that the repository exists. A positive answer is cached in
// flag so later calls skip the request. flag may be nil.
func (r *Repository) Ensure(ctx context.Context, flag RepoFlag) error {
	if flag != nil && flag.RepoInitialized(ctx) {
		return nil
	}
	resp, err := r.c.do(ctx, http.MethodGet, r.path(), nil)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		drain(resp)
		return ErrRepoNotConfigured
	}
	if err := decode(resp, nil); err != nil {
		return err
	}
	if flag != nil {
		if err := flag.MarkRepoInitialized(ctx); err != nil {
			r.c.log.Warn("failed to cache repository flag", zap.Error(err))
		}
	}
	return nil
}

// Setup creates the private datastore repository for the authenticated user.
func (r *Repository) Setup(ctx context.Context) error {
	body := repoCreate{
		Name:        r.name,
		Description: "Task storage for ato",
		Private:     true,
		AutoInit:    true,
		HasIssues:   true,
	}
	resp, err := r.c.do(ctx, http.MethodPost, "/user/repos", body)
	if err != nil {
		return err
	}
	return decode(resp, nil)
}

// CurrentUser returns the authenticated account.
func (c *Client) CurrentUser(ctx context.Context) (models.User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/user", nil)
	if err != nil {
		return models.User{}, err
	}
	var u user
	if err := decode(resp, &u); err != nil {
		return models.User{}, err
	}
	return models.User{Login: u.Login, ID: u.ID, AvatarURL: u.AvatarURL}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
