package remote

import (
	"encoding/json"
	"time"

	"github.com/atinyakov/ato/internal/models"
)

type issue struct {
	Number      int64           `json:"number"`
	Title       string          `json:"title"`
	Body        *string         `json:"body"`
	State       string          `json:"state"`
	Labels      []label         `json:"labels"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ClosedAt    *time.Time      `json:"closed_at"`
	HTMLURL     string          `json:"html_url"`
	PullRequest json.RawMessage `json:"pull_request,omitempty"`
}

func (i issue) isPullRequest() bool {
	return len(i.PullRequest) > 0 && string(i.PullRequest) != "null"
}

func (i issue) item() models.Item {
	it := models.Item{
		ID:        i.Number,
		Title:     i.Title,
		State:     models.State(i.State),
		Labels:    make([]string, 0, len(i.Labels)),
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
		ClosedAt:  i.ClosedAt,
		URL:       i.HTMLURL,
	}
	if i.Body != nil {
		it.Memo = *i.Body
	}
	for _, l := range i.Labels {
		it.Labels = append(it.Labels, l.Name)
	}
	return it
}

// items maps issues to items, dropping pull requests.
func items(issues []issue) []models.Item {
	out := make([]models.Item, 0, len(issues))
	for _, i := range issues {
		if i.isPullRequest() {
			continue
		}
		out = append(out, i.item())
	}
	return out
}

type label struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	Description *string `json:"description"`
}

func (l label) model() models.Label {
	m := models.Label{ID: l.ID, Name: l.Name, Color: l.Color}
	if l.Description != nil {
		m.Description = *l.Description
	}
	return m
}

type issueCreate struct {
	Title  string   `json:"title"`
	Body   string   `json:"body,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

type issuePatch struct {
	Title       *string   `json:"title,omitempty"`
	Body        *string   `json:"body,omitempty"`
	State       *string   `json:"state,omitempty"`
	StateReason *string   `json:"state_reason,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`
}

func patchBody(p models.ItemPatch) issuePatch {
	w := issuePatch{Title: p.Title, Body: p.Memo, Labels: p.Labels}
	if p.State != nil {
		s := string(*p.State)
		w.State = &s
	}
	if p.StateReason != nil {
		r := string(*p.StateReason)
		w.StateReason = &r
	}
	return w
}

type user struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	AvatarURL string `json:"avatar_url"`
}

type searchResult struct {
	TotalCount int     `json:"total_count"`
	Items      []issue `json:"items"`
}

type repoCreate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
	HasIssues   bool   `json:"has_issues"`
}
