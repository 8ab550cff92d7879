package provision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rn0x/audio2text/internal/manifest"
	"github.com/rn0x/audio2text/internal/platform"
	"github.com/stretchr/testify/require"
)

var linuxAMD64 = platform.Target{OS: "linux", Arch: "amd64"}

type recordingEnv struct {
	dirs []string
}

func (e *recordingEnv) EnsureLibraryPath(dir string) error {
	e.dirs = append(e.dirs, dir)
	return nil
}

func fakeManifest(descriptors map[string]manifest.Descriptor) (
	func(string) bool,
	func(string, platform.Target) (manifest.Descriptor, bool),
	func(manifest.Descriptor) ([]manifest.Descriptor, []string),
) {
	known := func(id string) bool {
		_, ok := descriptors[id]
		return ok
	}
	lookup := func(id string, target platform.Target) (manifest.Descriptor, bool) {
		d, ok := descriptors[id]
		if !ok || d.OS != target.OS || d.Arch != target.Arch {
			return manifest.Descriptor{}, false
		}
		return d, true
	}
	depsOf := func(d manifest.Descriptor) ([]manifest.Descriptor, []string) {
		var resolved []manifest.Descriptor
		var missing []string
		for _, depID := range d.Dependencies {
			dep, ok := descriptors[depID]
			if !ok {
				missing = append(missing, depID)
				continue
			}
			resolved = append(resolved, dep)
		}
		return resolved, missing
	}
	return known, lookup, depsOf
}

func descriptor(id, fileName, serverURL string, deps ...string) manifest.Descriptor {
	return manifest.Descriptor{
		ID:           id,
		FileName:     fileName,
		OS:           "linux",
		Arch:         "amd64",
		URL:          serverURL + "/" + fileName,
		RelPath:      fileName,
		Dependencies: deps,
	}
}

func TestProvisionDownloadsMissingFilesAndDependencies(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("binary-for-" + r.URL.Path))
	}))
	defer server.Close()

	descriptors := map[string]manifest.Descriptor{
		"whisper":    descriptor("whisper", "whisper-cli", server.URL, "libwhisper"),
		"libwhisper": descriptor("libwhisper", "libwhisper.so.1", server.URL),
	}

	installDir := t.TempDir()
	env := &recordingEnv{}
	known, lookup, depsOf := fakeManifest(descriptors)
	p := NewProvisionerForTests(installDir, linuxAMD64, env, known, lookup, depsOf)

	result, err := p.Provision(context.Background(), []string{"whisper"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Files.Installed, 1)
	require.Equal(t, StatusDownloaded, result.Files.Installed[0].Status)
	require.Len(t, result.Dependencies.Installed, 1)
	require.Equal(t, StatusDownloaded, result.Dependencies.Installed[0].Status)
	require.EqualValues(t, 2, requests.Load())
	require.Equal(t, []string{installDir}, env.dirs)

	info, err := os.Stat(filepath.Join(installDir, "whisper-cli"))
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o111)
}

func TestProvisionIsIdempotent(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("binary"))
	}))
	defer server.Close()

	descriptors := map[string]manifest.Descriptor{
		"ffmpeg": descriptor("ffmpeg", "ffmpeg", server.URL),
	}

	installDir := t.TempDir()
	known, lookup, depsOf := fakeManifest(descriptors)
	p := NewProvisionerForTests(installDir, linuxAMD64, NoopEnvironment{}, known, lookup, depsOf)

	first, err := p.Provision(context.Background(), []string{"ffmpeg"})
	require.NoError(t, err)
	require.True(t, first.Success)
	require.Equal(t, StatusDownloaded, first.Files.Installed[0].Status)
	require.EqualValues(t, 1, requests.Load())

	second, err := p.Provision(context.Background(), []string{"ffmpeg"})
	require.NoError(t, err)
	require.True(t, second.Success)
	require.Equal(t, StatusExists, second.Files.Installed[0].Status)
	require.Equal(t, first.Files.Installed[0].Path, second.Files.Installed[0].Path)
	require.EqualValues(t, 1, requests.Load(), "second call must perform zero network requests")
}

func TestProvisionRecordsPerFileFailuresWithoutAborting(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ffprobe" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("binary"))
	}))
	defer server.Close()

	descriptors := map[string]manifest.Descriptor{
		"ffmpeg":  descriptor("ffmpeg", "ffmpeg", server.URL),
		"ffprobe": descriptor("ffprobe", "ffprobe", server.URL),
	}

	installDir := t.TempDir()
	known, lookup, depsOf := fakeManifest(descriptors)
	p := NewProvisionerForTests(installDir, linuxAMD64, NoopEnvironment{}, known, lookup, depsOf)

	result, err := p.Provision(context.Background(), []string{"ffmpeg", "ffprobe"})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.Files.Installed, 1)
	require.Equal(t, "ffmpeg", result.Files.Installed[0].ID)
	require.Len(t, result.Files.Failed, 1)
	require.Equal(t, "ffprobe", result.Files.Failed[0].ID)
	require.Equal(t, KindTransport, result.Files.Failed[0].Kind)

	_, statErr := os.Stat(filepath.Join(installDir, "ffprobe"))
	require.True(t, os.IsNotExist(statErr), "failed download must not leave a partial file")
}

func TestProvisionRejectsEmptyComponentList(t *testing.T) {
	t.Parallel()

	p := &Provisioner{InstallDir: t.TempDir(), Target: linuxAMD64, Env: NoopEnvironment{}, NoProgress: true}
	_, err := p.Provision(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoComponents)
}

func TestProvisionRejectsUnknownComponentBeforeIO(t *testing.T) {
	t.Parallel()

	p := &Provisioner{InstallDir: t.TempDir(), Target: linuxAMD64, Env: NoopEnvironment{}, NoProgress: true}
	_, err := p.Provision(context.Background(), []string{"sox"})
	require.ErrorIs(t, err, ErrUnknownComponent)
	require.Contains(t, err.Error(), "ffmpeg")
	require.Contains(t, err.Error(), "whisper")
}

func TestProvisionFailsOnUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	p := &Provisioner{
		InstallDir: t.TempDir(),
		Target:     platform.Target{OS: "plan9", Arch: "amd64"},
		Env:        NoopEnvironment{},
		NoProgress: true,
	}
	_, err := p.Provision(context.Background(), []string{"whisper"})
	require.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestProvisionSkipsEnvWhenBatchFailed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	descriptors := map[string]manifest.Descriptor{
		"ffmpeg": descriptor("ffmpeg", "ffmpeg", server.URL),
	}

	env := &recordingEnv{}
	known, lookup, depsOf := fakeManifest(descriptors)
	p := NewProvisionerForTests(t.TempDir(), linuxAMD64, env, known, lookup, depsOf)

	result, err := p.Provision(context.Background(), []string{"ffmpeg"})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Empty(t, env.dirs)
}
