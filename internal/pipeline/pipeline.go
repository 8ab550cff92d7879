// Package pipeline sequences model readiness, audio normalization, and
// engine invocation into one transcription call.
package pipeline

import (
	"context"
	"os"
	"strings"

	"github.com/rn0x/audio2text/internal/audio"
	"github.com/rn0x/audio2text/internal/engine"
	"github.com/rn0x/audio2text/internal/models"
	"go.uber.org/zap"
)

type ModelEnsurer interface {
	Ensure(ctx context.Context, name string) (models.EnsureResult, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, inputPath string) (audio.Normalized, error)
}

type Transcriber interface {
	Run(ctx context.Context, req engine.Request) (engine.Result, error)
}

// Result is the terminal value handed back to the caller; the pipeline
// retains nothing once it returns.
type Result struct {
	Success bool
	Message string
	Model   models.Handle
	Outputs []engine.Output
}

type Pipeline struct {
	Models     ModelEnsurer
	Normalizer Normalizer
	Runner     Transcriber
	Config     engine.Config
	Logger     *zap.Logger
}

// Transcribe walks the linear state machine model-ready → audio-normalized
// → engine-invoked → outputs-collected. The first failing step
// short-circuits the rest and its message becomes the call's message.
func (p *Pipeline) Transcribe(ctx context.Context, inputPath, modelName, language string) Result {
	if strings.TrimSpace(inputPath) == "" {
		return Result{Message: "input file is required"}
	}

	ensured, err := p.Models.Ensure(ctx, modelName)
	if err != nil {
		return Result{Message: err.Error()}
	}
	handle, ok := ensured.Handle()
	if !ok {
		message := "model could not be made available"
		if len(ensured.Outcomes) > 0 {
			message = ensured.Outcomes[0].Message
		}
		return Result{Message: message}
	}
	p.log().Debug("model ready", zap.String("model", handle.Name), zap.String("path", handle.Path))

	normalized, err := p.Normalizer.Normalize(ctx, inputPath)
	if err != nil {
		return Result{Model: handle, Message: err.Error()}
	}
	if normalized.Converted {
		// the normalized temp file is this call's to clean up; artifacts
		// written next to it stay for the caller
		defer func() {
			if err := os.Remove(normalized.Path); err != nil && !os.IsNotExist(err) {
				p.log().Warn("failed to remove normalized audio", zap.String("path", normalized.Path), zap.Error(err))
			}
		}()
	}
	p.log().Debug("audio normalized", zap.String("path", normalized.Path), zap.Int("sample_rate", normalized.SampleRate), zap.Bool("converted", normalized.Converted))

	engineResult, err := p.Runner.Run(ctx, engine.Request{
		AudioPath: normalized.Path,
		ModelPath: handle.Path,
		Language:  language,
		Config:    p.Config,
	})
	if err != nil {
		return Result{Model: handle, Message: err.Error()}
	}
	if !engineResult.Success {
		return Result{Model: handle, Message: engineResult.Message}
	}

	return Result{
		Success: true,
		Message: engineResult.Message,
		Model:   handle,
		Outputs: engineResult.Outputs,
	}
}

func (p *Pipeline) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
