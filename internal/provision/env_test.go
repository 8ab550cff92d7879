package provision

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rn0x/audio2text/internal/platform"
	"github.com/stretchr/testify/require"
)

func TestPosixEnvironmentUpdatesProcessVariable(t *testing.T) {
	t.Parallel()

	envValues := map[string]string{}
	e := &PosixEnvironment{
		Variable: "LD_LIBRARY_PATH",
		getenv:   func(key string) string { return envValues[key] },
		setenv: func(key, value string) error {
			envValues[key] = value
			return nil
		},
	}

	require.NoError(t, e.EnsureLibraryPath("/opt/audio2text/bin"))
	require.Equal(t, "/opt/audio2text/bin", envValues["LD_LIBRARY_PATH"])

	envValues["LD_LIBRARY_PATH"] = "/usr/lib"
	require.NoError(t, e.EnsureLibraryPath("/opt/audio2text/bin"))
	require.Equal(t, "/opt/audio2text/bin:/usr/lib", envValues["LD_LIBRARY_PATH"])
}

func TestPosixEnvironmentIsIdempotent(t *testing.T) {
	t.Parallel()

	profile := filepath.Join(t.TempDir(), ".bashrc")
	envValues := map[string]string{}
	e := &PosixEnvironment{
		Variable:    "LD_LIBRARY_PATH",
		ProfilePath: profile,
		getenv:      func(key string) string { return envValues[key] },
		setenv: func(key, value string) error {
			envValues[key] = value
			return nil
		},
	}

	require.NoError(t, e.EnsureLibraryPath("/opt/audio2text/bin"))
	require.NoError(t, e.EnsureLibraryPath("/opt/audio2text/bin"))

	content, err := os.ReadFile(profile)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(content), "/opt/audio2text/bin"))
	require.Equal(t, "/opt/audio2text/bin", envValues["LD_LIBRARY_PATH"])
}

func TestPosixEnvironmentPreservesExistingProfileContent(t *testing.T) {
	t.Parallel()

	profile := filepath.Join(t.TempDir(), ".bashrc")
	require.NoError(t, os.WriteFile(profile, []byte("alias ll='ls -la'\n"), 0o644))

	e := &PosixEnvironment{
		Variable:    "LD_LIBRARY_PATH",
		ProfilePath: profile,
		getenv:      func(string) string { return "" },
		setenv:      func(string, string) error { return nil },
	}
	require.NoError(t, e.EnsureLibraryPath("/opt/audio2text/bin"))

	content, err := os.ReadFile(profile)
	require.NoError(t, err)
	require.Contains(t, string(content), "alias ll='ls -la'")
	require.Contains(t, string(content), "LD_LIBRARY_PATH")
}

func TestNewEnvironmentConfiguratorForWindowsIsNoop(t *testing.T) {
	t.Parallel()

	env := NewEnvironmentConfigurator(platform.Target{OS: "windows", Arch: "amd64"}, nil)
	_, ok := env.(NoopEnvironment)
	require.True(t, ok)
	require.NoError(t, env.EnsureLibraryPath("C:\\tools"))
}
