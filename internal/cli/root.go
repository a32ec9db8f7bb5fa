package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the ato command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ato",
		Short:         "A personal task list stored as GitHub issues",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Sign in through the browser, then create the datastore repository
  ato login
  ato setup

  # Everyday use
  ato add "Buy milk" --label home
  ato list
  ato edit 12
  ato close 12
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.open(cmd.Context())
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		app.close()
		return nil
	}

	cmd.PersistentFlags().StringVarP(&app.ConfigPath, "config", "c", "", "Path to config file (default: <user config dir>/ato/config.yaml)")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newAddCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newCloseCmd(app))
	cmd.AddCommand(newReopenCmd(app))
	cmd.AddCommand(newSearchCmd(app))
	cmd.AddCommand(newLabelsCmd(app))
	cmd.AddCommand(newShareCmd(app))
	cmd.AddCommand(newDraftsCmd(app))

	return cmd
}

// Execute runs the command line and returns the process exit code.
// version is shown by --version.
func Execute(ctx context.Context, version string) int {
	app := &App{}
	cmd := newRootCmd(app)
	cmd.Version = version
	defer app.close()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), FormatError(err))
		return 1
	}
	return 0
}
