package cli

import (
	"fmt"

	"github.com/rn0x/audio2text/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newModelsCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage speech model files",
	}

	cmd.AddCommand(newModelsListCmd(app))
	cmd.AddCommand(newModelsEnsureCmd(app))

	return cmd
}

func newModelsListCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known model names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			modelDir, err := app.modelStorageDir()
			if err != nil {
				return err
			}

			cache := &models.Cache{Dir: modelDir}
			for _, name := range models.Names() {
				marker := " "
				if handle, ok := cache.Stat(name); ok {
					marker = "*"
					app.log().Debug("model cached", zap.String("model", name), zap.Int64("size", handle.Size))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\n* = downloaded")
			return nil
		},
	}
}

func newModelsEnsureCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure <name|all>",
		Short: "Download a model if it is not cached yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelDir, err := app.modelStorageDir()
			if err != nil {
				return err
			}

			cache := &models.Cache{
				Dir:        modelDir,
				Mirror:     app.mirror,
				HTTPClient: app.client,
				NoProgress: app.noProgress,
				Logger:     app.log(),
			}

			result, err := cache.Ensure(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			for _, outcome := range result.Outcomes {
				if outcome.Success {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", outcome.Name, outcome.Handle.Path, outcome.Status)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: FAILED: %s\n", outcome.Name, outcome.Message)
				}
			}

			if !result.Success {
				return fmt.Errorf("some models could not be downloaded")
			}
			return nil
		},
	}

	bindModelFlags(cmd, app)
	return cmd
}
