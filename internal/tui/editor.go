// Package tui is the interactive item editor. Edits flow into an autosave
// engine, so there is no explicit save step.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/atinyakov/ato/internal/client/autosave"
	"github.com/atinyakov/ato/internal/client/labels"
	"github.com/atinyakov/ato/internal/models"
)

// closeTimeout bounds how long esc waits for outstanding saves.
const closeTimeout = 15 * time.Second

type field int

const (
	fieldTitle field = iota
	fieldMemo
	fieldLabels
	fieldCount
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	focusedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	unsavedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	suggestStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	closedBadge   = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Render("closed")
	openBadge     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("open")
	helpLine      = mutedStyle.Render("tab next field • ctrl+s save • enter apply labels • esc close")
	restoredLabel = "Restored unsaved changes from a local draft"
)

// RecentLabels is the recently used labels list. *labels.Recent implements it.
type RecentLabels interface {
	List(ctx context.Context) []string
	Add(ctx context.Context, used ...string)
}

// EditorConfig configures an Editor.
type EditorConfig struct {
	Item models.Item
	// Content is what the editor starts with: the item's content, or a
	// restored draft.
	Content models.Content
	// Restored shows the restored-from-draft notice.
	Restored   bool
	Engine     *autosave.Engine
	Recent     RecentLabels
	RepoLabels []models.Label
	Now        func() time.Time
}

// Editor is the bubbletea model of the item editor.
type Editor struct {
	ctx        context.Context
	item       models.Item
	engine     *autosave.Engine
	recent     RecentLabels
	repoLabels []models.Label
	now        func() time.Time

	title       textinput.Model
	memo        textarea.Model
	labels      textinput.Model
	focus       field
	suggestions []string

	restoredUntil time.Time
	closing       bool
}

type tickMsg time.Time

// closedMsg is sent once every save started before esc has settled.
type closedMsg struct{}

// NewEditor builds the editor and points the engine at cfg.Item.
func NewEditor(ctx context.Context, cfg EditorConfig) *Editor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Editor{
		ctx:        ctx,
		item:       cfg.Item,
		engine:     cfg.Engine,
		recent:     cfg.Recent,
		repoLabels: cfg.RepoLabels,
		now:        cfg.Now,
	}

	m.title = textinput.New()
	m.title.Placeholder = "Title"
	m.title.CharLimit = models.MaxTitleLength
	m.title.SetValue(cfg.Content.Title)

	m.memo = textarea.New()
	m.memo.Placeholder = "Memo"
	m.memo.CharLimit = models.MaxMemoLength
	m.memo.ShowLineNumbers = false
	m.memo.SetWidth(72)
	m.memo.SetHeight(10)
	m.memo.SetValue(cfg.Content.Memo)

	m.labels = textinput.New()
	m.labels.Placeholder = "comma,separated,labels"
	m.labels.SetValue(strings.Join(cfg.Content.Labels, ", "))

	m.title.Focus()

	if cfg.Restored {
		m.restoredUntil = m.now().Add(autosave.RestoredNoticeDuration)
	}
	m.engine.Reset(cfg.Item, cfg.Content)
	return m
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Editor) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func (m *Editor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()

	case closedMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		w := max(msg.Width-4, 20)
		m.title.Width = w
		m.labels.Width = w
		m.memo.SetWidth(w)
		return m, nil

	case tea.KeyMsg:
		if m.closing {
			return m, nil
		}
		switch msg.String() {
		case "esc", "ctrl+c":
			m.closing = true
			m.engine.Close()
			return m, m.waitAndQuit()
		case "ctrl+s":
			m.engine.SaveNow()
			return m, nil
		case "tab":
			return m, m.moveFocus(1)
		case "shift+tab":
			return m, m.moveFocus(-1)
		case "enter":
			if m.focus == fieldLabels {
				m.applyLabels()
				return m, nil
			}
		}
		return m, m.edit(msg)
	}
	return m, nil
}

// edit forwards a key to the focused field and reports the change to the engine.
func (m *Editor) edit(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	switch m.focus {
	case fieldTitle:
		m.title, cmd = m.title.Update(msg)
		m.engine.SetText(m.title.Value(), m.memo.Value())
	case fieldMemo:
		m.memo, cmd = m.memo.Update(msg)
		m.engine.SetText(m.title.Value(), m.memo.Value())
	case fieldLabels:
		m.labels, cmd = m.labels.Update(msg)
		m.engine.SetLabels(ParseLabels(m.labels.Value()))
		m.refreshSuggestions()
	}
	return cmd
}

// moveFocus saves the field being left, then focuses the next one.
func (m *Editor) moveFocus(step int) tea.Cmd {
	if m.focus == fieldTitle || m.focus == fieldMemo {
		m.engine.SaveNow()
	}
	m.title.Blur()
	m.memo.Blur()
	m.labels.Blur()

	m.focus = (m.focus + field(step) + fieldCount) % fieldCount
	m.suggestions = nil
	switch m.focus {
	case fieldTitle:
		return m.title.Focus()
	case fieldMemo:
		return m.memo.Focus()
	default:
		m.refreshSuggestions()
		return m.labels.Focus()
	}
}

func (m *Editor) applyLabels() {
	applied := ParseLabels(m.labels.Value())
	m.labels.SetValue(strings.Join(applied, ", "))
	m.engine.SaveLabels(applied)
	if m.recent != nil && len(applied) > 0 {
		m.recent.Add(m.ctx, applied...)
	}
	m.refreshSuggestions()
}

func (m *Editor) refreshSuggestions() {
	var recent []string
	if m.recent != nil {
		recent = m.recent.List(m.ctx)
	}
	raw := m.labels.Value()
	query := raw
	if i := strings.LastIndex(raw, ","); i >= 0 {
		query = raw[i+1:]
	}
	m.suggestions = labels.Suggest(strings.TrimSpace(query), recent, m.repoLabels, ParseLabels(raw))
}

func (m *Editor) waitAndQuit() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, closeTimeout)
		defer cancel()
		_ = m.engine.Wait(ctx)
		return closedMsg{}
	}
}

func (m *Editor) View() string {
	var b strings.Builder
	now := m.now()

	badge := openBadge
	if m.item.State == models.StateClosed {
		badge = closedBadge
	}
	fmt.Fprintf(&b, "%s  %s  %s\n", headerStyle.Render(fmt.Sprintf("#%d", m.item.ID)), badge,
		mutedStyle.Render("created "+RelativeTime(now, m.item.CreatedAt)))
	if now.Before(m.restoredUntil) {
		b.WriteString(noticeStyle.Render(restoredLabel) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(m.heading("Title", fieldTitle) + "\n" + m.title.View() + "\n\n")
	b.WriteString(m.heading("Memo", fieldMemo) + "\n" + m.memo.View() + "\n\n")
	b.WriteString(m.heading("Labels", fieldLabels) + "\n" + m.labels.View() + "\n")
	if m.focus == fieldLabels && len(m.suggestions) > 0 {
		b.WriteString(suggestStyle.Render("  "+strings.Join(m.suggestions, "  ")) + "\n")
	}
	b.WriteString("\n" + m.status(now) + "\n" + helpLine + "\n")
	return b.String()
}

func (m *Editor) heading(name string, f field) string {
	if m.focus == f {
		return focusedStyle.Render("› " + name)
	}
	return labelStyle.Render("  " + name)
}

func (m *Editor) status(now time.Time) string {
	switch {
	case m.closing:
		return mutedStyle.Render("Closing…")
	case m.engine.IsSaving():
		return mutedStyle.Render("Saving…")
	case m.engine.IsDirty():
		return unsavedStyle.Render("Unsaved changes")
	default:
		return statusStyle.Render("Saved " + RelativeTime(now, m.engine.LastSavedAt()))
	}
}

// ParseLabels splits a comma-separated list, trimming blanks and dropping
// empty and repeated entries.
func ParseLabels(s string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		l := strings.TrimSpace(part)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// Run shows the editor until the user closes it.
func Run(ctx context.Context, cfg EditorConfig) error {
	_, err := tea.NewProgram(NewEditor(ctx, cfg), tea.WithContext(ctx)).Run()
	return err
}
