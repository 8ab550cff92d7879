// Package provision resolves manifest entries for the running target and
// makes sure every requested executable and its shared libraries exist
// under the install directory, downloading only what is missing.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rn0x/audio2text/internal/download"
	"github.com/rn0x/audio2text/internal/manifest"
	"github.com/rn0x/audio2text/internal/platform"
	"go.uber.org/zap"
)

var (
	ErrNoComponents        = errors.New("at least one component must be requested")
	ErrUnknownComponent    = errors.New("unknown component")
	ErrUnsupportedPlatform = errors.New("no binaries available for this platform")
)

type Status string

const (
	StatusExists     Status = "exists"
	StatusDownloaded Status = "downloaded"
)

type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindChecksum  ErrorKind = "checksum"
	KindManifest  ErrorKind = "manifest"
)

type InstalledFile struct {
	ID     string
	Path   string
	Status Status
}

type FailedFile struct {
	ID      string
	URL     string
	Kind    ErrorKind
	Message string
}

// Batch groups outcomes for one class of files. Primary executables and
// their shared-library dependencies are reported in separate batches.
type Batch struct {
	Installed []InstalledFile
	Failed    []FailedFile
}

// Result is produced fresh per Provision call and never mutated after
// return. Success means every requested file is on disk and nothing in
// either batch failed.
type Result struct {
	Success      bool
	Files        Batch
	Dependencies Batch
}

type Provisioner struct {
	InstallDir string
	Target     platform.Target
	Env        EnvironmentConfigurator
	HTTPClient *http.Client
	NoProgress bool
	Logger     *zap.Logger

	// overridable for tests
	known  func(id string) bool
	lookup func(id string, target platform.Target) (manifest.Descriptor, bool)
	depsOf func(d manifest.Descriptor) ([]manifest.Descriptor, []string)
}

func (p *Provisioner) resolvers() (func(string) bool, func(string, platform.Target) (manifest.Descriptor, bool), func(manifest.Descriptor) ([]manifest.Descriptor, []string)) {
	known := p.known
	if known == nil {
		known = manifest.KnownComponent
	}
	lookup := p.lookup
	if lookup == nil {
		lookup = manifest.Lookup
	}
	depsOf := p.depsOf
	if depsOf == nil {
		depsOf = manifest.DependenciesOf
	}
	return known, lookup, depsOf
}

// NewProvisionerForTests constructs a provisioner with injectable manifest
// resolution so tests can point descriptors at local servers.
func NewProvisionerForTests(
	installDir string,
	target platform.Target,
	env EnvironmentConfigurator,
	known func(id string) bool,
	lookup func(id string, target platform.Target) (manifest.Descriptor, bool),
	depsOf func(d manifest.Descriptor) ([]manifest.Descriptor, []string),
) *Provisioner {
	return &Provisioner{
		InstallDir: installDir,
		Target:     target,
		Env:        env,
		NoProgress: true,
		known:      known,
		lookup:     lookup,
		depsOf:     depsOf,
	}
}

// Provision ensures every requested component (and its dependency closure)
// is present for the provisioner's target. Individual download failures are
// recorded per file; only bad input or an unsupported platform fails the
// whole call before any transfer starts.
func (p *Provisioner) Provision(ctx context.Context, componentIDs []string) (Result, error) {
	if len(componentIDs) == 0 {
		return Result{}, ErrNoComponents
	}
	if strings.TrimSpace(p.InstallDir) == "" {
		return Result{}, errors.New("install directory is required")
	}

	known, lookup, depsOf := p.resolvers()

	seen := make(map[string]bool, len(componentIDs))
	requested := make([]string, 0, len(componentIDs))
	for _, id := range componentIDs {
		if !known(id) {
			return Result{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownComponent, id, strings.Join(manifest.ComponentIDs(), ", "))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		requested = append(requested, id)
	}

	descriptors := make([]manifest.Descriptor, 0, len(requested))
	for _, id := range requested {
		d, ok := lookup(id, p.Target)
		if !ok {
			return Result{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedPlatform, id, p.Target.Key())
		}
		descriptors = append(descriptors, d)
	}

	var result Result
	for _, d := range descriptors {
		p.ensureFile(ctx, d, &result.Files)
	}

	// Dependency closure runs regardless of whether the primary file was
	// freshly downloaded or already present.
	for _, d := range descriptors {
		deps, missing := depsOf(d)
		for _, depID := range missing {
			result.Dependencies.Failed = append(result.Dependencies.Failed, FailedFile{
				ID:      depID,
				Kind:    KindManifest,
				Message: fmt.Sprintf("dependency %s of %s has no manifest entry for %s", depID, d.ID, p.Target.Key()),
			})
		}
		for _, dep := range deps {
			p.ensureFile(ctx, dep, &result.Dependencies)
		}
	}

	result.Success = len(result.Files.Failed) == 0 &&
		len(result.Dependencies.Failed) == 0 &&
		len(result.Files.Installed) == len(descriptors)

	if result.Success && p.Env != nil {
		if err := p.Env.EnsureLibraryPath(p.InstallDir); err != nil {
			return result, fmt.Errorf("expose install directory to dynamic linker: %w", err)
		}
	}

	return result, nil
}

func (p *Provisioner) ensureFile(ctx context.Context, d manifest.Descriptor, batch *Batch) {
	destination := filepath.Join(p.InstallDir, d.RelPath)

	if _, err := os.Stat(destination); err == nil {
		p.log().Debug("file already present", zap.String("id", d.ID), zap.String("path", destination))
		batch.Installed = append(batch.Installed, InstalledFile{ID: d.ID, Path: destination, Status: StatusExists})
		return
	}

	p.log().Info("downloading", zap.String("id", d.ID), zap.String("url", d.URL), zap.String("destination", destination))
	err := download.DownloadFile(ctx, download.Options{
		URL:         d.URL,
		Destination: destination,
		NoProgress:  p.NoProgress,
		HTTPClient:  p.HTTPClient,
		Logger:      p.log(),
	})
	if err != nil {
		batch.Failed = append(batch.Failed, FailedFile{
			ID:      d.ID,
			URL:     d.URL,
			Kind:    classifyDownloadError(err),
			Message: err.Error(),
		})
		return
	}

	if p.Target.IsPOSIX() {
		if err := os.Chmod(destination, 0o755); err != nil {
			batch.Failed = append(batch.Failed, FailedFile{
				ID:      d.ID,
				URL:     d.URL,
				Kind:    KindTransport,
				Message: fmt.Sprintf("mark %s executable: %v", destination, err),
			})
			return
		}
	}

	batch.Installed = append(batch.Installed, InstalledFile{ID: d.ID, Path: destination, Status: StatusDownloaded})
}

func (p *Provisioner) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func classifyDownloadError(err error) ErrorKind {
	if strings.Contains(err.Error(), "checksum mismatch") {
		return KindChecksum
	}
	return KindTransport
}
