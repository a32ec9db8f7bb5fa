package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/ato/internal/client/auth"
	"github.com/atinyakov/ato/internal/client/cache"
	"github.com/atinyakov/ato/internal/client/remote"
	"github.com/atinyakov/ato/internal/client/share"
	"github.com/atinyakov/ato/internal/models"
)

// errKeptAsDraft is returned when a non-interactive edit did not reach GitHub.
var errKeptAsDraft = errors.New("changes were not saved to GitHub; they were kept as a local draft and will be restored the next time you edit this item")

// FormatError turns err into the message shown to the user, with a hint
// about what to do next where there is one.
func FormatError(err error) string {
	var (
		rl  *remote.RateLimitError
		ne  *remote.NetworkError
		ae  *remote.AuthError
		ve  *models.ValidationError
		api *remote.APIError
		le  *auth.LoginError
	)
	switch {
	case errors.Is(err, remote.ErrRepoNotConfigured):
		return "Your task repository does not exist yet.\n" +
			"Run `ato setup` to create a private repository for your items."
	case errors.Is(err, errNotLoggedIn), errors.As(err, &ae):
		msg := "You are not logged in."
		if ae != nil {
			msg = "Your GitHub session has expired or was revoked."
		}
		return msg + "\nRun `ato login` to sign in."
	case errors.As(err, &rl):
		return fmt.Sprintf("GitHub rate limit reached. Try again %s.", untilReset(rl.ResetAt))
	case errors.As(err, &ne):
		return "Unable to connect to GitHub. Check your internet connection and try again.\n(" + ne.Err.Error() + ")"
	case errors.As(err, &ve):
		lines := make([]string, 0, len(ve.Fields)+1)
		lines = append(lines, "Invalid input:")
		for _, f := range ve.Fields {
			lines = append(lines, fmt.Sprintf("  %s: %s", strings.ToLower(f.Field), f.Rule))
		}
		return strings.Join(lines, "\n")
	case errors.Is(err, cache.ErrPlaceholder):
		return "That item is still being created. Try again in a moment."
	case remote.IsNotFound(err):
		return err.Error()
	case errors.As(err, &api):
		if m := apiMessage(api.Body); m != "" {
			return fmt.Sprintf("%s: %s", api.Error(), m)
		}
		return api.Error()
	case errors.Is(err, auth.ErrPopupClosed), errors.Is(err, auth.ErrLoginTimeout):
		return err.Error() + "\nRun `ato login` to try again."
	case errors.Is(err, auth.ErrPopupBlocked):
		return err.Error() + "\nOpen the URL printed above in your browser, or check the loopback_addr setting."
	case errors.As(err, &le):
		return le.Error()
	case errors.Is(err, share.ErrNothingShared):
		return "Nothing to share: pass at least one of --url, --title or --text."
	default:
		return "Error: " + err.Error()
	}
}

func untilReset(at time.Time) string {
	if at.IsZero() {
		return "later"
	}
	return "after " + at.Local().Format(time.Kitchen)
}

// apiMessage extracts GitHub's "message" field from an error body.
func apiMessage(body any) string {
	switch b := body.(type) {
	case map[string]any:
		m, _ := b["message"].(string)
		return m
	case string:
		return strings.TrimSpace(b)
	}
	return ""
}
