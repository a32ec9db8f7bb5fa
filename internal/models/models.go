// Package models defines the task items, drafts and auth profile shared by
// the client packages, plus their validation rules.
package models

import "time"

// State is the lifecycle state of an Item.
type State string

const (
	// StateOpen marks an item that still needs doing.
	StateOpen State = "open"
	// StateClosed marks a completed item.
	StateClosed State = "closed"
)

// StateReason accompanies a state transition on the remote tracker.
type StateReason string

const (
	ReasonCompleted  StateReason = "completed"
	ReasonReopened   StateReason = "reopened"
	ReasonNotPlanned StateReason = "not_planned"
)

// Item is a task stored as an issue in the user's datastore repository.
type Item struct {
	// ID is the remote-assigned issue number. Negative values are local
	// placeholders for items whose creation has not been confirmed yet.
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Memo      string     `json:"memo"`
	State     State      `json:"state"`
	Labels    []string   `json:"labels"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt"`
	URL       string     `json:"url"`
}

// IsPlaceholder reports whether the item still carries a local placeholder
// id. No action may target such an item.
func (i Item) IsPlaceholder() bool {
	return i.ID < 0
}

// User is the authenticated GitHub account.
type User struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	AvatarURL string `json:"avatarUrl"`
}

// Label is a repository label.
type Label struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// CreateInput holds the caller-supplied fields of a new item.
type CreateInput struct {
	Title  string   `json:"title" validate:"required,max=256"`
	Memo   string   `json:"memo" validate:"max=65536"`
	Labels []string `json:"labels" validate:"max=10,unique,dive,label"`
}

// ItemPatch is a partial update. Nil fields are left untouched.
type ItemPatch struct {
	Title       *string
	Memo        *string
	State       *State
	StateReason *StateReason
	Labels      *[]string
}

// Content is the editable part of an item: what the detail editor saves.
type Content struct {
	Title  string   `json:"title" validate:"required,max=256"`
	Memo   string   `json:"memo" validate:"max=65536"`
	Labels []string `json:"labels" validate:"max=10,unique,dive,label"`
}

// Patch converts c into a patch that overwrites all three editable fields.
func (c Content) Patch() ItemPatch {
	title, memo := c.Title, c.Memo
	labels := append([]string{}, c.Labels...)
	return ItemPatch{Title: &title, Memo: &memo, Labels: &labels}
}

// Equal compares two contents; labels are compared elementwise in order.
func (c Content) Equal(o Content) bool {
	if c.Title != o.Title || c.Memo != o.Memo || len(c.Labels) != len(o.Labels) {
		return false
	}
	for i := range c.Labels {
		if c.Labels[i] != o.Labels[i] {
			return false
		}
	}
	return true
}

// ContentOf returns the editable fields of an item.
func ContentOf(i Item) Content {
	return Content{Title: i.Title, Memo: i.Memo, Labels: append([]string{}, i.Labels...)}
}

// Draft is an unsaved edit kept locally after a save failed for lack of
// connectivity.
type Draft struct {
	ItemID int64    `json:"itemId"`
	Title  string   `json:"title"`
	Memo   string   `json:"memo"`
	Labels []string `json:"labels,omitempty"`
	// SavedAt is the client wall-clock time of the failed save.
	SavedAt time.Time `json:"savedAt"`
	// ServerUpdatedAt is the item's updatedAt the edit was based on.
	ServerUpdatedAt time.Time `json:"serverUpdatedAt"`
}
