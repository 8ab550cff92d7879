package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rn0x/audio2text/internal/audio"
	"github.com/rn0x/audio2text/internal/engine"
	"github.com/rn0x/audio2text/internal/manifest"
	"github.com/rn0x/audio2text/internal/models"
	"github.com/rn0x/audio2text/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <media-file>",
		Short: "Transcribe an audio or video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := app.engineConfig()
			if err != nil {
				return err
			}

			p, err := app.buildPipeline(config)
			if err != nil {
				return err
			}

			inputPath := filepath.Clean(args[0])
			app.log().Info("transcribing...",
				zap.String("input", inputPath),
				zap.String("model", app.model),
				zap.String("language", app.language),
			)

			stopSpinner := startSpinner(app.progressEnabled(), "Transcribing")
			started := time.Now()
			result := p.Transcribe(cmd.Context(), inputPath, app.model, app.language)
			stopSpinner()

			if !result.Success {
				app.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)))
				return fmt.Errorf("transcribe %s: %s", inputPath, result.Message)
			}
			app.log().Info("transcription finished", zap.Duration("elapsed", time.Since(started)))

			for _, output := range result.Outputs {
				if output.Format == engine.FormatTXT {
					fmt.Fprintln(app.outWriter(), strings.TrimSpace(output.Content))
				}
				app.log().Info("output written", zap.String("format", string(output.Format)), zap.String("path", output.Path))
			}

			return nil
		},
	}

	bindModelFlags(cmd, app)
	bindInstallDirFlag(cmd, app)
	bindEngineFlags(cmd, app)

	return cmd
}

func (a *appState) engineConfig() (engine.Config, error) {
	formats := make([]engine.Format, 0, len(a.formats))
	for _, raw := range a.formats {
		format := engine.Format(strings.ToLower(strings.TrimSpace(raw)))
		switch format {
		case engine.FormatJSON, engine.FormatTXT, engine.FormatCSV:
			formats = append(formats, format)
		default:
			return engine.Config{}, fmt.Errorf("unsupported output format %q (valid: json, txt, csv)", raw)
		}
	}

	return engine.Config{
		Threads:       a.threads,
		Processors:    a.processors,
		MaxDurationMs: a.maxDurationMs,
		MaxSegmentLen: a.maxSegmentLen,
		Formats:       formats,
		Translate:     a.translate,
	}, nil
}

func (a *appState) buildPipeline(config engine.Config) (*pipeline.Pipeline, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return nil, err
	}

	installDir, err := a.binInstallDir()
	if err != nil {
		return nil, err
	}

	enginePath, err := a.resolveTool("AUDIO2TEXT_WHISPER_PATH", manifest.ComponentWhisper, installDir)
	if err != nil {
		return nil, err
	}

	normalizer := &audio.Normalizer{
		FFmpegPath:  a.toolOrPATH("AUDIO2TEXT_FFMPEG_PATH", manifest.ComponentFFmpeg, installDir),
		FFprobePath: a.toolOrPATH("AUDIO2TEXT_FFPROBE_PATH", manifest.ComponentFFprobe, installDir),
		TargetRate:  audio.DefaultSampleRate,
		Logger:      a.log(),
	}

	return &pipeline.Pipeline{
		Models: &models.Cache{
			Dir:        modelDir,
			Mirror:     a.mirror,
			HTTPClient: a.client,
			NoProgress: a.noProgress,
			Logger:     a.log(),
		},
		Normalizer: normalizer,
		Runner:     engine.NewRunner(enginePath, a.log()),
		Config:     config,
		Logger:     a.log(),
	}, nil
}

// resolveTool prefers an explicit env override, then the provisioned copy
// in the install directory.
func (a *appState) resolveTool(envVar, componentID, installDir string) (string, error) {
	if override := strings.TrimSpace(os.Getenv(envVar)); override != "" {
		return override, nil
	}

	d, ok := manifest.Lookup(componentID, a.target)
	if !ok {
		return "", fmt.Errorf("no %s binary available for %s", componentID, a.target.Key())
	}

	provisioned := filepath.Join(installDir, d.RelPath)
	if _, err := os.Stat(provisioned); err != nil {
		return "", fmt.Errorf("%s is not provisioned at %s; run `audio2text setup` first", componentID, provisioned)
	}
	return provisioned, nil
}

// toolOrPATH is resolveTool for converters that may also come from the
// system PATH, so a missing provisioned copy is not fatal here.
func (a *appState) toolOrPATH(envVar, componentID, installDir string) string {
	if override := strings.TrimSpace(os.Getenv(envVar)); override != "" {
		return override
	}

	if d, ok := manifest.Lookup(componentID, a.target); ok {
		provisioned := filepath.Join(installDir, d.RelPath)
		if _, err := os.Stat(provisioned); err == nil {
			return provisioned
		}
	}

	return componentID
}
