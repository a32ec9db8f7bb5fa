package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atinyakov/ato/internal/client/remote"
	"github.com/atinyakov/ato/internal/models"
	"github.com/atinyakov/ato/internal/tui"
)

// parseID accepts "12" and "#12".
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

func newListCmd(app *App) *cobra.Command {
	var closed, all, asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open items, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := app.session(ctx)
			if err != nil {
				return err
			}

			var items []models.Item
			var more bool
			if closed {
				pages, err := s.items.ClosedItems(ctx)
				for err == nil && all && pages.HasNextPage() {
					pages, err = s.items.FetchNextClosedPage(ctx)
				}
				if err != nil {
					return err
				}
				items, more = pages.Items(), pages.HasNextPage()
			} else {
				res, err := s.items.OpenItems(ctx)
				if err != nil {
					return err
				}
				items, more = res.Items, res.HasNextPage
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, items)
			}
			renderItems(out, items, time.Now())
			if more {
				hint := "More items on GitHub."
				if closed {
					hint += " Use --all to load every page."
				}
				fmt.Fprintln(out, faint.Render(hint))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&closed, "closed", false, "List completed items instead")
	cmd.Flags().BoolVar(&all, "all", false, "With --closed, load every page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newAddCmd(app *App) *cobra.Command {
	var memo string
	var labelList []string
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create an item; prompts for the fields when no title is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := app.session(ctx)
			if err != nil {
				return err
			}

			in := models.CreateInput{
				Title:  strings.TrimSpace(strings.Join(args, " ")),
				Memo:   memo,
				Labels: tui.ParseLabels(strings.Join(labelList, ",")),
			}
			if in.Title == "" {
				in, err = promptCreateInput(cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
			}

			item, err := s.items.Create(ctx, in)
			if err != nil {
				return err
			}
			if len(in.Labels) > 0 {
				app.recent.Add(ctx, in.Labels...)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created #%d %s\n", item.ID, item.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&memo, "memo", "m", "", "Memo text")
	cmd.Flags().StringSliceVarP(&labelList, "label", "l", nil, "Label (repeatable or comma-separated)")
	return cmd
}

func newShowCmd(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := app.session(ctx)
			if err != nil {
				return err
			}
			item, err := s.items.Item(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, item)
			}
			now := time.Now()
			renderItem(out, item, now)
			if d := app.drafts.Get(ctx, id); d != nil && d.SavedAt.After(item.UpdatedAt) {
				fmt.Fprintln(out, faint.Render(fmt.Sprintf(
					"\nA local draft from %s has unsaved changes. Run `ato edit %d` to restore it.",
					tui.RelativeTime(now, d.SavedAt), id)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

type transition func(ctx context.Context, id int64) (models.Item, error)

func newTransitionCmd(app *App, use, short, done string, pick func(*session) transition) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := app.session(ctx)
			if err != nil {
				return err
			}
			var errs []error
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				item, err := pick(s)(ctx, id)
				if err != nil {
					errs = append(errs, fmt.Errorf("#%d: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s #%d %s\n", done, item.ID, item.Title)
			}
			return errors.Join(errs...)
		},
	}
}

func newCloseCmd(app *App) *cobra.Command {
	return newTransitionCmd(app, "close", "Mark items as done", "Closed",
		func(s *session) transition { return s.items.Close })
}

func newReopenCmd(app *App) *cobra.Command {
	return newTransitionCmd(app, "reopen", "Open completed items again", "Reopened",
		func(s *session) transition { return s.items.Reopen })
}

func newSearchCmd(app *App) *cobra.Command {
	var all, asJSON bool
	var label string
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search item titles and memos",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := remote.SearchParams{
				Query:         strings.TrimSpace(strings.Join(args, " ")),
				IncludeClosed: all,
				Label:         strings.TrimSpace(label),
			}
			if p.Query == "" && p.Label == "" {
				return errors.New("search needs a query or --label")
			}
			ctx := cmd.Context()
			s, err := app.session(ctx)
			if err != nil {
				return err
			}
			items, err := s.items.Search(ctx, p)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			renderItems(cmd.OutOrStdout(), items, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include completed items")
	cmd.Flags().StringVarP(&label, "label", "l", "", "Only items with this label")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
