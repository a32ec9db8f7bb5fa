package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atinyakov/ato/internal/client/labels"
	"github.com/atinyakov/ato/internal/models"
)

func newLabelsCmd(app *App) *cobra.Command {
	var suggest string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List repository labels, recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := app.session(ctx)
			if err != nil {
				return err
			}
			repoLabels, err := s.items.Labels(ctx)
			if err != nil {
				return err
			}
			recent := app.recent.List(ctx)
			out := cmd.OutOrStdout()

			if cmd.Flags().Changed("suggest") {
				applied, query := splitSuggestQuery(suggest)
				names := labels.Suggest(query, recent, repoLabels, applied)
				if asJSON {
					return writeJSON(out, names)
				}
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
				return nil
			}

			if asJSON {
				return writeJSON(out, struct {
					Recent []string       `json:"recent"`
					Labels []models.Label `json:"labels"`
				}{recent, repoLabels})
			}
			if len(recent) > 0 {
				fmt.Fprintln(out, faint.Render("recent: "+strings.Join(recent, ", ")))
			}
			if len(repoLabels) == 0 {
				fmt.Fprintln(out, faint.Render("No labels in the repository."))
			}
			for _, l := range repoLabels {
				if l.Description != "" {
					fmt.Fprintf(out, "%s  %s\n", l.Name, faint.Render(l.Description))
					continue
				}
				fmt.Fprintln(out, l.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&suggest, "suggest", "", `Suggest labels for a partial list, e.g. "home,wo"`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// splitSuggestQuery splits "a, b, c" into the applied labels a and b and the
// query c being typed.
func splitSuggestQuery(s string) (applied []string, query string) {
	parts := strings.Split(s, ",")
	for _, p := range parts[:len(parts)-1] {
		if p = strings.TrimSpace(p); p != "" {
			applied = append(applied, p)
		}
	}
	return applied, strings.TrimSpace(parts[len(parts)-1])
}
