package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rn0x/audio2text/internal/platform"
	"go.uber.org/zap"
)

// EnvironmentConfigurator exposes a directory to the dynamic linker for
// future subprocesses of this process tree. Implementations must be
// idempotent; callers that don't need it use NoopEnvironment.
type EnvironmentConfigurator interface {
	EnsureLibraryPath(dir string) error
}

type NoopEnvironment struct{}

func (NoopEnvironment) EnsureLibraryPath(string) error { return nil }

// PosixEnvironment prepends the directory to the linker search-path
// variable in the current process environment and persists an export line
// in the shell startup file, both only when not already present.
type PosixEnvironment struct {
	Variable    string
	ProfilePath string
	Logger      *zap.Logger

	getenv func(string) string
	setenv func(string, string) error
}

func NewEnvironmentConfigurator(target platform.Target, logger *zap.Logger) EnvironmentConfigurator {
	if !target.IsPOSIX() {
		return NoopEnvironment{}
	}

	variable := "LD_LIBRARY_PATH"
	profile := ""
	if home, err := os.UserHomeDir(); err == nil {
		profile = filepath.Join(home, ".bashrc")
		if target.OS == "darwin" {
			variable = "DYLD_LIBRARY_PATH"
			profile = filepath.Join(home, ".zshrc")
		}
	}

	return &PosixEnvironment{Variable: variable, ProfilePath: profile, Logger: logger}
}

func (e *PosixEnvironment) EnsureLibraryPath(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}

	getenv := e.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	setenv := e.setenv
	if setenv == nil {
		setenv = os.Setenv
	}

	current := getenv(e.Variable)
	if !containsPathEntry(current, dir) {
		updated := dir
		if current != "" {
			updated = dir + string(os.PathListSeparator) + current
		}
		if err := setenv(e.Variable, updated); err != nil {
			return fmt.Errorf("set %s: %w", e.Variable, err)
		}
		e.log().Debug("library path updated for current process", zap.String("variable", e.Variable), zap.String("dir", dir))
	}

	if e.ProfilePath == "" {
		return nil
	}
	return e.persistProfileEntry(dir)
}

func (e *PosixEnvironment) persistProfileEntry(dir string) error {
	exportLine := fmt.Sprintf("export %s=%q:$%s", e.Variable, dir, e.Variable)

	content, err := os.ReadFile(e.ProfilePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read shell profile %s: %w", e.ProfilePath, err)
	}

	for _, line := range strings.Split(string(content), "\n") {
		if strings.Contains(line, e.Variable) && strings.Contains(line, dir) {
			return nil
		}
	}

	f, err := os.OpenFile(e.ProfilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open shell profile %s: %w", e.ProfilePath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "\n%s\n", exportLine); err != nil {
		return fmt.Errorf("append to shell profile %s: %w", e.ProfilePath, err)
	}

	e.log().Info("library path persisted in shell profile", zap.String("profile", e.ProfilePath), zap.String("dir", dir))
	return nil
}

func (e *PosixEnvironment) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func containsPathEntry(pathList, dir string) bool {
	for _, entry := range strings.Split(pathList, string(os.PathListSeparator)) {
		if entry == dir {
			return true
		}
	}
	return false
}
