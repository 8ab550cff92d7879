// Package audio converges arbitrary input audio/video files to mono PCM
// WAV at a target sample rate, invoking ffmpeg/ffprobe only when the input
// does not already satisfy the target format.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultSampleRate = 16000

var ErrConverterUnavailable = errors.New("audio converter not available")

type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner abstracts subprocess execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
	}
	return result, err
}

// Normalized describes the outcome of one normalization. Converted is
// false only when the input itself already satisfied the target format.
type Normalized struct {
	Path       string
	SampleRate int
	Converted  bool
}

type Normalizer struct {
	FFmpegPath  string
	FFprobePath string
	TargetRate  int
	TempDir     string
	Runner      CommandRunner
	Logger      *zap.Logger
}

// Normalize converges inputPath to mono PCM WAV at the target rate.
//
// The input is first brought into the canonical container without
// resampling, its sample rate is probed, and only a mismatching rate
// triggers a second resampling pass. A WAV input that already matches is
// returned unchanged without spawning any subprocess.
func (n *Normalizer) Normalize(ctx context.Context, inputPath string) (Normalized, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return Normalized{}, fmt.Errorf("input file not found: %s", inputPath)
	}

	ffmpeg := n.converterPath(n.FFmpegPath, "ffmpeg")
	ffprobe := n.converterPath(n.FFprobePath, "ffprobe")
	if !executableAvailable(ffmpeg) {
		return Normalized{}, fmt.Errorf("%w: %s", ErrConverterUnavailable, ffmpeg)
	}
	if !executableAvailable(ffprobe) {
		return Normalized{}, fmt.Errorf("%w: %s", ErrConverterUnavailable, ffprobe)
	}

	targetRate := n.TargetRate
	if targetRate <= 0 {
		targetRate = DefaultSampleRate
	}

	canonicalPath := inputPath
	tempIntermediate := ""
	needsFormatFix := true

	if strings.EqualFold(filepath.Ext(inputPath), ".wav") {
		if info, err := ProbeWAVHeader(inputPath); err == nil && info.CanonicalPCMMono() {
			if info.SampleRate == targetRate {
				n.log().Debug("input already normalized", zap.String("path", inputPath))
				return Normalized{Path: inputPath, SampleRate: targetRate, Converted: false}, nil
			}
			needsFormatFix = false
		}
	}

	if needsFormatFix {
		tempIntermediate = filepath.Join(n.tempDir(), fmt.Sprintf("audio2text-%s.wav", uuid.NewString()))
		if err := n.transcodeToCanonical(ctx, ffmpeg, inputPath, tempIntermediate); err != nil {
			_ = os.Remove(tempIntermediate)
			return Normalized{}, err
		}
		canonicalPath = tempIntermediate
	}

	rate, err := n.probeSampleRate(ctx, ffprobe, canonicalPath)
	if err != nil {
		if tempIntermediate != "" {
			_ = os.Remove(tempIntermediate)
		}
		return Normalized{}, err
	}

	if rate == targetRate {
		// canonical file is the output; the intermediate (if any) is
		// handed to the caller instead of being deleted
		return Normalized{Path: canonicalPath, SampleRate: rate, Converted: canonicalPath != inputPath}, nil
	}

	outputPath := filepath.Join(n.tempDir(), fmt.Sprintf("audio2text-%s-%d.wav", uuid.NewString(), targetRate))
	resampleErr := n.resample(ctx, ffmpeg, canonicalPath, outputPath, targetRate)
	if tempIntermediate != "" {
		_ = os.Remove(tempIntermediate)
	}
	if resampleErr != nil {
		_ = os.Remove(outputPath)
		return Normalized{}, resampleErr
	}

	return Normalized{Path: outputPath, SampleRate: targetRate, Converted: true}, nil
}

func (n *Normalizer) transcodeToCanonical(ctx context.Context, ffmpeg, inputPath, outputPath string) error {
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		outputPath,
	}
	return n.runConverter(ctx, ffmpeg, args, "convert to wav")
}

func (n *Normalizer) resample(ctx context.Context, ffmpeg, inputPath, outputPath string, rate int) error {
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-c:a", "pcm_s16le",
		outputPath,
	}
	return n.runConverter(ctx, ffmpeg, args, fmt.Sprintf("resample to %d Hz", rate))
}

func (n *Normalizer) runConverter(ctx context.Context, ffmpeg string, args []string, action string) error {
	n.log().Debug("running converter", zap.String("ffmpeg", ffmpeg), zap.Strings("args", args))
	result, err := n.runner().Run(ctx, ffmpeg, args...)
	if err != nil {
		diag := strings.TrimSpace(result.Stderr)
		if diag == "" {
			diag = err.Error()
		}
		return fmt.Errorf("%s failed (exit %d): %s", action, result.ExitCode, diag)
	}
	return nil
}

func (n *Normalizer) probeSampleRate(ctx context.Context, ffprobe, path string) (int, error) {
	// canonical WAV files carry the rate in their header; everything that
	// reaches this point through the format-fix pass is such a file
	if info, err := ProbeWAVHeader(path); err == nil {
		return info.SampleRate, nil
	}

	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	result, err := n.runner().Run(ctx, ffprobe, args...)
	if err != nil {
		diag := strings.TrimSpace(result.Stderr)
		if diag == "" {
			diag = err.Error()
		}
		return 0, fmt.Errorf("probe sample rate failed (exit %d): %s", result.ExitCode, diag)
	}

	rate, convErr := strconv.Atoi(strings.TrimSpace(result.Stdout))
	if convErr != nil {
		return 0, fmt.Errorf("probe sample rate: unexpected output %q", strings.TrimSpace(result.Stdout))
	}
	return rate, nil
}

func (n *Normalizer) converterPath(configured, fallback string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	return fallback
}

func (n *Normalizer) tempDir() string {
	if n.TempDir != "" {
		return n.TempDir
	}
	return os.TempDir()
}

func (n *Normalizer) runner() CommandRunner {
	if n.Runner != nil {
		return n.Runner
	}
	return execRunner{}
}

func (n *Normalizer) log() *zap.Logger {
	if n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger
}

func executableAvailable(path string) bool {
	if strings.ContainsRune(path, os.PathSeparator) {
		info, err := os.Stat(path)
		return err == nil && !info.IsDir()
	}
	_, err := exec.LookPath(path)
	return err == nil
}
