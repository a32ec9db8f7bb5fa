package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/client/autosave"
	"github.com/atinyakov/ato/internal/models"
	"github.com/atinyakov/ato/internal/tui"
)

// flushTimeout bounds the final save of a non-interactive edit.
const flushTimeout = 30 * time.Second

func newEditCmd(app *App) *cobra.Command {
	var title, memo, labelList string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an item; changes are saved automatically",
		Long: "Without flags, opens the interactive editor. Changes are saved a few seconds " +
			"after you stop typing, when you leave a field and when you close the editor. " +
			"If GitHub cannot be reached the edit is kept as a local draft and restored the " +
			"next time the item is opened.\n\n" +
			"With --title, --memo or --labels the item is updated without the editor.",
		Args: cobra.ExactArgs(1),
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

			content, restored := autosave.ReconcileDraft(ctx, app.drafts, item)
			engine := autosave.New(context.WithoutCancel(ctx), s.items, app.drafts, autosave.Config{
				Debounce: app.cfg.AutosaveDebounce,
				Logger:   app.log,
			})

			flags := cmd.Flags()
			if !flags.Changed("title") && !flags.Changed("memo") && !flags.Changed("labels") {
				repoLabels, err := s.items.Labels(ctx)
				if err != nil {
					app.log.Debug("labels unavailable for suggestions", zap.Error(err))
				}
				return tui.Run(ctx, tui.EditorConfig{
					Item:       item,
					Content:    content,
					Restored:   restored,
					Engine:     engine,
					Recent:     app.recent,
					RepoLabels: repoLabels,
				})
			}

			if restored {
				fmt.Fprintln(cmd.OutOrStdout(), "Applying your changes on top of a restored local draft.")
			}
			if flags.Changed("title") {
				content.Title = title
			}
			if flags.Changed("memo") {
				content.Memo = memo
			}
			if flags.Changed("labels") {
				content.Labels = tui.ParseLabels(labelList)
			}
			if err := models.ValidateContent(content); err != nil {
				return err
			}
			return saveEdit(ctx, cmd, engine, item, content)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&memo, "memo", "", "New memo")
	cmd.Flags().StringVar(&labelList, "labels", "", "New comma-separated labels (replaces the current ones)")
	return cmd
}

// saveEdit pushes content through the autosave engine as a closing editor
// would, so an offline failure leaves a draft behind.
func saveEdit(ctx context.Context, cmd *cobra.Command, engine *autosave.Engine, item models.Item, content models.Content) error {
	engine.Reset(item, models.ContentOf(item))
	engine.SetText(content.Title, content.Memo)
	engine.SetLabels(content.Labels)
	if !engine.IsDirty() {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to change.")
		return nil
	}
	engine.Close()

	waitCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := engine.Wait(waitCtx); err != nil {
		return err
	}
	if engine.IsDirty() {
		return errKeptAsDraft
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved #%d %s\n", item.ID, content.Title)
	return nil
}
