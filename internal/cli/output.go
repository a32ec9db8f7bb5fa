package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/atinyakov/ato/internal/models"
	"github.com/atinyakov/ato/internal/tui"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	faint       = lipgloss.NewStyle().Faint(true)
)

const maxTitleWidth = 60

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderItems draws items as a table. An empty list prints a single line.
func renderItems(w io.Writer, items []models.Item, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(w, faint.Render("No items."))
		return
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		id := "#" + strconv.FormatInt(it.ID, 10)
		if it.IsPlaceholder() {
			id = "…"
		}
		rows = append(rows, []string{
			id,
			truncate(it.Title, maxTitleWidth),
			strings.Join(it.Labels, ", "),
			tui.RelativeTime(now, it.UpdatedAt),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "LABELS", "UPDATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.String())
}

// renderItem prints one item in full.
func renderItem(w io.Writer, it models.Item, now time.Time) {
	fmt.Fprintf(w, "#%d %s\n", it.ID, lipgloss.NewStyle().Bold(true).Render(it.Title))
	fmt.Fprintf(w, "state:   %s\n", it.State)
	if len(it.Labels) > 0 {
		fmt.Fprintf(w, "labels:  %s\n", strings.Join(it.Labels, ", "))
	}
	fmt.Fprintf(w, "created: %s\n", tui.RelativeTime(now, it.CreatedAt))
	fmt.Fprintf(w, "updated: %s\n", tui.RelativeTime(now, it.UpdatedAt))
	if it.ClosedAt != nil {
		fmt.Fprintf(w, "closed:  %s\n", tui.RelativeTime(now, *it.ClosedAt))
	}
	if it.URL != "" {
		fmt.Fprintf(w, "url:     %s\n", it.URL)
	}
	if it.Memo != "" {
		fmt.Fprintf(w, "\n%s\n", it.Memo)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
