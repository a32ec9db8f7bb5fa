package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atinyakov/ato/internal/tui"
)

func newDraftsCmd(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List edits kept locally because they could not be saved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := app.drafts.List(cmd.Context())
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, faint.Render("No local drafts."))
				return nil
			}
			now := time.Now()
			for _, d := range list {
				fmt.Fprintf(out, "#%d %s  %s\n", d.ItemID, truncate(d.Title, maxTitleWidth),
					faint.Render("saved "+tui.RelativeTime(now, d.SavedAt)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.AddCommand(&cobra.Command{
		Use:   "discard <id>",
		Short: "Delete the local draft of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			app.drafts.Remove(cmd.Context(), id)
			fmt.Fprintf(cmd.OutOrStdout(), "Discarded the draft of #%d.\n", id)
			return nil
		},
	})
	return cmd
}
