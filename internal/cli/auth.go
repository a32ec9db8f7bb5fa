package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/client/remote"
)

func newLoginCmd(app *App) *cobra.Command {
	var skipCheck bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with GitHub through the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if !skipCheck {
				if err := app.checkProxy(ctx); err != nil {
					return err
				}
			}

			fmt.Fprintln(out, "Opening your browser to sign in with GitHub…")
			if err := app.auth.Login(ctx, app.api); err != nil {
				return err
			}
			u := app.auth.Session().User
			if u == nil {
				return errNotLoggedIn
			}
			fmt.Fprintf(out, "Logged in as %s.\n", u.Login)

			repo := app.api.Repository(u.Login, app.cfg.RepoName)
			if err := repo.Ensure(ctx, app.creds); errors.Is(err, remote.ErrRepoNotConfigured) {
				fmt.Fprintf(out, "No task repository yet. Run `ato setup` to create %s.\n", repo.FullName())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipCheck, "skip-proxy-check", false, "Do not check that the OAuth proxy is up before opening the browser")
	return cmd
}

// checkProxy asks the OAuth proxy for its health endpoint.
func (a *App) checkProxy(ctx context.Context) error {
	url := strings.TrimRight(a.cfg.ProxyURL, "/") + "/auth/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build proxy health request: %w", err)
	}
	resp, err := a.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("OAuth proxy at %s is not reachable: %w", a.cfg.ProxyURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OAuth proxy at %s is unhealthy: %s", a.cfg.ProxyURL, resp.Status)
	}
	return nil
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored GitHub credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Let the startup profile check settle so it cannot re-persist the token.
			_, _ = app.auth.WaitReady(cmd.Context())
			if err := app.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in GitHub account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (repository %s)\n", s.user.Login, s.repo.FullName())
			return nil
		},
	}
}

func newSetupCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the private repository that stores your items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := app.session(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			err = s.repo.Ensure(ctx, app.creds)
			switch {
			case err == nil:
				fmt.Fprintf(out, "%s is already set up.\n", s.repo.FullName())
				return nil
			case !errors.Is(err, remote.ErrRepoNotConfigured):
				return err
			}

			if err := s.repo.Setup(ctx); err != nil {
				return err
			}
			if err := app.creds.MarkRepoInitialized(ctx); err != nil {
				app.log.Warn("failed to cache repository flag", zap.Error(err))
			}
			fmt.Fprintf(out, "Created private repository %s.\n", s.repo.FullName())
			return nil
		},
	}
}
