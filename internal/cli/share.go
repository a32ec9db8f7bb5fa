package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atinyakov/ato/internal/client/share"
)

func newShareCmd(app *App) *cobra.Command {
	var url, title, text string
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Save a link or note to read later",
		Example: `  ato share --url https://go.dev/blog --title "The Go Blog"
  pbpaste | xargs -0 ato share --text`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := share.BuildInput(url, title, text)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := app.session(ctx)
			if err != nil {
				return err
			}
			item, err := s.items.Create(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved #%d %s\n", item.ID, item.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Shared URL")
	cmd.Flags().StringVar(&title, "title", "", "Shared page title")
	cmd.Flags().StringVar(&text, "text", "", "Shared text")
	return cmd
}
