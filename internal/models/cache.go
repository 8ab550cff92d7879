package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rn0x/audio2text/internal/download"
	"go.uber.org/zap"
)

var ErrInvalidModel = errors.New("invalid model name")

type Status string

const (
	StatusExists     Status = "exists"
	StatusDownloaded Status = "downloaded"
)

// Handle points at a cached model file. It is only as valid as the file
// behind it; deleting the file is detected lazily on the next Ensure.
type Handle struct {
	Name string
	Path string
	Size int64
}

type Outcome struct {
	Name    string
	Success bool
	Status  Status
	Message string
	Handle  Handle
}

// EnsureResult aggregates per-model outcomes. Success is the conjunction
// of every outcome; partial failures stay visible per item.
type EnsureResult struct {
	Success  bool
	Outcomes []Outcome
}

func (r EnsureResult) Handle() (Handle, bool) {
	for _, outcome := range r.Outcomes {
		if outcome.Success {
			return outcome.Handle, true
		}
	}
	return Handle{}, false
}

type Cache struct {
	Dir string
	// Mirror replaces the default download source; model files are then
	// fetched from <Mirror>/<filename>.
	Mirror     string
	HTTPClient *http.Client
	NoProgress bool
	Logger     *zap.Logger
}

func (c *Cache) sourceURL(model Model) string {
	if c.Mirror != "" {
		return strings.TrimRight(c.Mirror, "/") + "/" + model.FileName
	}
	return model.URL
}

// Stat reports whether the named model is already cached, without any
// network access.
func (c *Cache) Stat(name string) (Handle, bool) {
	model, ok := Lookup(name)
	if !ok {
		return Handle{}, false
	}
	path := filepath.Join(c.Dir, model.FileName)
	info, err := os.Stat(path)
	if err != nil {
		return Handle{}, false
	}
	return Handle{Name: name, Path: path, Size: info.Size()}, true
}

// Ensure makes the named model available in the cache directory. The All
// sentinel requests every known model concurrently; one model failing does
// not cancel its siblings.
func (c *Cache) Ensure(ctx context.Context, name string) (EnsureResult, error) {
	if strings.TrimSpace(c.Dir) == "" {
		return EnsureResult{}, errors.New("model cache directory is required")
	}

	if name == All {
		return c.ensureAll(ctx), nil
	}

	model, ok := Lookup(name)
	if !ok {
		return EnsureResult{}, fmt.Errorf("%w %q (valid: %s, or %q)", ErrInvalidModel, name, strings.Join(Names(), ", "), All)
	}

	outcome := c.ensureOne(ctx, model)
	return EnsureResult{Success: outcome.Success, Outcomes: []Outcome{outcome}}, nil
}

func (c *Cache) ensureAll(ctx context.Context) EnsureResult {
	names := Names()
	outcomes := make([]Outcome, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		model, _ := Lookup(name)
		wg.Add(1)
		go func(i int, model Model) {
			defer wg.Done()
			outcomes[i] = c.ensureOne(ctx, model)
		}(i, model)
	}
	wg.Wait()

	result := EnsureResult{Success: true, Outcomes: outcomes}
	for _, outcome := range outcomes {
		if !outcome.Success {
			result.Success = false
		}
	}
	return result
}

func (c *Cache) ensureOne(ctx context.Context, model Model) Outcome {
	destination := filepath.Join(c.Dir, model.FileName)

	if info, err := os.Stat(destination); err == nil {
		c.log().Debug("model cache hit", zap.String("model", model.Name), zap.String("path", destination))
		return Outcome{
			Name:    model.Name,
			Success: true,
			Status:  StatusExists,
			Message: fmt.Sprintf("model %s already present at %s", model.Name, destination),
			Handle:  Handle{Name: model.Name, Path: destination, Size: info.Size()},
		}
	}

	c.log().Info("model not found, downloading", zap.String("model", model.Name), zap.String("destination", destination))
	err := download.DownloadFile(ctx, download.Options{
		URL:         c.sourceURL(model),
		Destination: destination,
		NoProgress:  c.NoProgress,
		HTTPClient:  c.HTTPClient,
		Logger:      c.log(),
	})
	if err != nil {
		return Outcome{
			Name:    model.Name,
			Success: false,
			Message: fmt.Sprintf("download model %s: %v", model.Name, err),
		}
	}

	info, err := os.Stat(destination)
	if err != nil {
		return Outcome{
			Name:    model.Name,
			Success: false,
			Message: fmt.Sprintf("model %s downloaded but missing on disk: %v", model.Name, err),
		}
	}

	return Outcome{
		Name:    model.Name,
		Success: true,
		Status:  StatusDownloaded,
		Message: fmt.Sprintf("model %s installed at %s", model.Name, destination),
		Handle:  Handle{Name: model.Name, Path: destination, Size: info.Size()},
	}
}

func (c *Cache) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
