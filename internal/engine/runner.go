// Package engine drives the whisper-cli executable: it builds the command
// line from a configuration object, waits for the subprocess, and collects
// whichever output artifacts were requested.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
)

// Config is supplied once and read-only thereafter. Zero values mean "omit
// the flag" rather than "pass an empty token".
type Config struct {
	Threads       int
	Processors    int
	MaxDurationMs int
	MaxSegmentLen int
	Formats       []Format
	Translate     bool
}

type Request struct {
	AudioPath string
	ModelPath string
	Language  string
	Config    Config
}

type Output struct {
	Format   Format
	Path     string
	Content  string
	Segments []Segment
}

type Result struct {
	Success  bool
	Message  string
	ExitCode int
	Outputs  []Output
}

type commandRunner interface {
	run(ctx context.Context, name string, args ...string) (exitCode int, stderr string, err error)
}

type execCommandRunner struct{}

func (execCommandRunner) run(ctx context.Context, name string, args ...string) (int, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderrBuf bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}
	return exitCode, stderrBuf.String(), err
}

type Runner struct {
	ExecutablePath string
	Logger         *zap.Logger

	commands commandRunner
}

func NewRunner(executablePath string, logger *zap.Logger) *Runner {
	return &Runner{ExecutablePath: executablePath, Logger: logger}
}

// NewRunnerForTests constructs a runner whose subprocess execution is
// replaced by the given function.
func NewRunnerForTests(executablePath string, run func(ctx context.Context, name string, args ...string) (int, string, error)) *Runner {
	return &Runner{ExecutablePath: executablePath, commands: runnerFunc(run)}
}

type runnerFunc func(ctx context.Context, name string, args ...string) (int, string, error)

func (f runnerFunc) run(ctx context.Context, name string, args ...string) (int, string, error) {
	return f(ctx, name, args...)
}

// Run executes the engine and collects the requested artifacts. Engine and
// artifact failures are reported through the Result; only unusable input
// is returned as an error.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("audio path is required")
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return Result{}, errors.New("model path is required")
	}
	if len(req.Config.Formats) == 0 {
		return Result{}, errors.New("at least one output format is required")
	}
	for _, format := range req.Config.Formats {
		switch format {
		case FormatJSON, FormatTXT, FormatCSV:
		default:
			return Result{}, fmt.Errorf("unsupported output format %q", format)
		}
	}

	if err := ensureExecutable(r.ExecutablePath); err != nil {
		return Result{}, fmt.Errorf("transcription engine missing or not executable: %w", err)
	}

	outBase := outputBase(req.AudioPath)
	args := BuildArgs(req, outBase)

	r.log().Debug("running transcription engine", zap.String("engine", r.ExecutablePath), zap.Strings("args", args))
	exitCode, stderr, err := r.runner().run(ctx, r.ExecutablePath, args...)
	if err != nil {
		diag := strings.TrimSpace(stderr)
		if classified := classifyEngineFailure(diag, err); classified != "" {
			return Result{Success: false, ExitCode: exitCode, Message: classified}, nil
		}
		return Result{
			Success:  false,
			ExitCode: exitCode,
			Message:  fmt.Sprintf("engine exited with code %d: %s", exitCode, diag),
		}, nil
	}

	outputs, err := collectArtifacts(outBase, req.Config.Formats)
	if err != nil {
		return Result{Success: false, Message: err.Error()}, nil
	}

	return Result{Success: true, Message: "transcription completed", Outputs: outputs}, nil
}

// BuildArgs produces the flat engine argument list. Flags whose value is
// empty or disabled are omitted entirely.
func BuildArgs(req Request, outBase string) []string {
	cfg := req.Config
	var args []string

	if cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(cfg.Threads))
	}
	if cfg.Processors > 0 {
		args = append(args, "-p", strconv.Itoa(cfg.Processors))
	}
	if cfg.MaxDurationMs > 0 {
		args = append(args, "-d", strconv.Itoa(cfg.MaxDurationMs))
	}
	if cfg.MaxSegmentLen > 0 {
		args = append(args, "-ml", strconv.Itoa(cfg.MaxSegmentLen))
	}

	for _, format := range cfg.Formats {
		switch format {
		case FormatJSON:
			args = append(args, "-oj")
		case FormatTXT:
			args = append(args, "-otxt")
		case FormatCSV:
			args = append(args, "-ocsv")
		}
	}

	if cfg.Translate {
		args = append(args, "-tr")
	}

	args = append(args, "-m", req.ModelPath)

	lang := strings.TrimSpace(strings.ToLower(req.Language))
	if lang != "" && lang != "auto" {
		args = append(args, "-l", lang)
	}

	args = append(args, "-f", req.AudioPath, "-of", outBase)
	return args
}

func outputBase(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
}

func (r *Runner) runner() commandRunner {
	if r.commands != nil {
		return r.commands
	}
	return execCommandRunner{}
}

func (r *Runner) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func ensureExecutable(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("engine path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func classifyEngineFailure(stderr string, err error) string {
	value := strings.ToLower(stderr)

	sharedLibPatterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}
	for _, pattern := range sharedLibPatterns {
		if strings.Contains(value, pattern) {
			return fmt.Sprintf("engine is missing required shared libraries (%s); re-run setup to provision them", stderr)
		}
	}

	if strings.Contains(value, "illegal instruction") || strings.Contains(strings.ToLower(err.Error()), "illegal instruction") {
		return "engine crashed with an illegal CPU instruction; your CPU may lack required instruction set extensions"
	}

	return ""
}
