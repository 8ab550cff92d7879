package cli

import (
	"fmt"
	"strings"

	"github.com/rn0x/audio2text/internal/manifest"
	"github.com/rn0x/audio2text/internal/provision"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd(app *appState) *cobra.Command {
	var components []string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download the transcription engine and converter binaries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			installDir, err := app.binInstallDir()
			if err != nil {
				return err
			}

			p := &provision.Provisioner{
				InstallDir: installDir,
				Target:     app.target,
				Env:        provision.NewEnvironmentConfigurator(app.target, app.log()),
				HTTPClient: app.client,
				NoProgress: app.noProgress,
				Logger:     app.log(),
			}

			result, err := p.Provision(cmd.Context(), components)
			if err != nil {
				return err
			}

			printBatch(app, "component", result.Files)
			printBatch(app, "dependency", result.Dependencies)

			if !result.Success {
				failed := len(result.Files.Failed) + len(result.Dependencies.Failed)
				total := failed + len(result.Files.Installed) + len(result.Dependencies.Installed)
				return fmt.Errorf("setup incomplete: %d of %d files failed", failed, total)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "All binaries ready in %s\n", installDir)
			return nil
		},
	}

	bindInstallDirFlag(cmd, app)
	cmd.Flags().StringSliceVar(&components, "components", manifest.ComponentIDs(),
		fmt.Sprintf("Components to provision (%s)", strings.Join(manifest.ComponentIDs(), ", ")))

	return cmd
}

func printBatch(app *appState, kind string, batch provision.Batch) {
	for _, file := range batch.Installed {
		if file.Status == provision.StatusDownloaded {
			app.log().Info(kind+" installed", zap.String("id", file.ID), zap.String("path", file.Path))
		} else {
			app.log().Debug(kind+" already present", zap.String("id", file.ID), zap.String("path", file.Path))
		}
	}
	for _, file := range batch.Failed {
		app.log().Error(kind+" failed", zap.String("id", file.ID), zap.String("url", file.URL), zap.String("kind", string(file.Kind)), zap.String("error", file.Message))
	}
}
