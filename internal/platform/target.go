package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Target is the platform/architecture pair this process runs on, resolved
// once at startup. All manifest and cache lookups key on it instead of
// re-inspecting runtime state.
type Target struct {
	OS   string
	Arch string
}

func CurrentTarget() Target {
	return Target{
		OS:   runtime.GOOS,
		Arch: NormalizeArch(runtime.GOARCH),
	}
}

func (t Target) Key() string {
	return fmt.Sprintf("%s_%s", t.OS, t.Arch)
}

func (t Target) IsPOSIX() bool {
	return t.OS == "linux" || t.OS == "darwin"
}

func NormalizeArch(arch string) string {
	switch arch {
	case "x86_64", "x64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}

func DefaultModelDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	dataDir, err := defaultDataDirFor(goos, homeDir, xdgDataHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

// DefaultInstallDirFor returns the per-target directory holding provisioned
// executables and their shared libraries.
func DefaultInstallDirFor(goos, homeDir, xdgDataHome string, target Target) (string, error) {
	dataDir, err := defaultDataDirFor(goos, homeDir, xdgDataHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "bin", target.Key()), nil
}

func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultModelDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"))
}

func ResolveInstallDir(override string, target Target) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultInstallDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"), target)
}

func defaultDataDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, "audio2text"), nil
		}
		return filepath.Join(homeDir, ".local", "share", "audio2text"), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "audio2text"), nil
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "audio2text"), nil
		}
		return filepath.Join(homeDir, "AppData", "Local", "audio2text"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}
