package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rn0x/audio2text/internal/logging"
	"github.com/rn0x/audio2text/internal/platform"
	"github.com/rn0x/audio2text/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool

	model      string
	modelDir   string
	installDir string
	language   string
	mirror     string

	threads       int
	processors    int
	maxDurationMs int
	maxSegmentLen int
	formats       []string
	translate     bool

	target platform.Target
	logger *zap.Logger
	out    io.Writer
	client *http.Client
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		model:    "tiny",
		language: "auto",
		formats:  []string{"txt"},
		target:   platform.CurrentTarget(),
		out:      os.Stdout,
	}

	cmd := &cobra.Command{
		Use:           "audio2text",
		Short:         "Convert audio and video files to text with a local whisper engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return nil
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)

	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newModelsCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json-logs", app.jsonLogs, "Enable JSON logging")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.model, "model", app.model, "Model name (see \"audio2text models list\")")
	cmd.Flags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are stored")
	cmd.Flags().StringVar(&app.mirror, "model-mirror", app.mirror, "Alternative base URL for model downloads")
}

func bindInstallDirFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.installDir, "install-dir", app.installDir, "Directory where provisioned binaries are stored")
}

func bindEngineFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language code (auto|en|ar|de|...) for transcription")
	cmd.Flags().IntVar(&app.threads, "threads", app.threads, "Engine thread count (0 uses the engine default)")
	cmd.Flags().IntVar(&app.processors, "processors", app.processors, "Engine processor count (0 uses the engine default)")
	cmd.Flags().IntVar(&app.maxDurationMs, "max-duration-ms", app.maxDurationMs, "Only process this many milliseconds of audio (0 means all)")
	cmd.Flags().IntVar(&app.maxSegmentLen, "max-segment-len", app.maxSegmentLen, "Maximum characters per segment (0 uses the engine default)")
	cmd.Flags().StringSliceVar(&app.formats, "format", app.formats, "Output formats: json, txt, csv")
	cmd.Flags().BoolVar(&app.translate, "translate", app.translate, "Translate the transcript to English")
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.modelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) binInstallDir() (string, error) {
	dir, err := platform.ResolveInstallDir(a.installDir, a.target)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create install directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}
