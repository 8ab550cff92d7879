// Package manifest is the static description of every downloadable
// executable this tool can provision: which platform/architecture it
// serves, where it comes from, where it lands relative to the install
// root, and which shared libraries it drags along.
package manifest

import (
	"sort"

	"github.com/rn0x/audio2text/internal/platform"
)

const (
	ComponentWhisper = "whisper"
	ComponentFFmpeg  = "ffmpeg"
	ComponentFFprobe = "ffprobe"
)

const releaseBase = "https://github.com/rn0x/audio2text/releases/download/bin-v1"

type Descriptor struct {
	ID           string
	FileName     string
	OS           string
	Arch         string
	URL          string
	RelPath      string
	Dependencies []string
}

var registry = []Descriptor{
	// whisper-cli
	bin(ComponentWhisper, "whisper-cli", "linux", "amd64", "libwhisper", "libggml"),
	bin(ComponentWhisper, "whisper-cli", "linux", "arm64", "libwhisper", "libggml"),
	bin(ComponentWhisper, "whisper-cli", "darwin", "amd64"),
	bin(ComponentWhisper, "whisper-cli", "darwin", "arm64"),
	bin(ComponentWhisper, "whisper-cli.exe", "windows", "amd64", "libwhisper"),

	// whisper shared libraries
	lib("libwhisper", "libwhisper.so.1", "linux", "amd64"),
	lib("libwhisper", "libwhisper.so.1", "linux", "arm64"),
	lib("libwhisper", "whisper.dll", "windows", "amd64"),
	lib("libggml", "libggml.so", "linux", "amd64"),
	lib("libggml", "libggml.so", "linux", "arm64"),

	// ffmpeg/ffprobe are static builds with no shared-library baggage
	bin(ComponentFFmpeg, "ffmpeg", "linux", "amd64"),
	bin(ComponentFFmpeg, "ffmpeg", "linux", "arm64"),
	bin(ComponentFFmpeg, "ffmpeg", "darwin", "amd64"),
	bin(ComponentFFmpeg, "ffmpeg", "darwin", "arm64"),
	bin(ComponentFFmpeg, "ffmpeg.exe", "windows", "amd64"),
	bin(ComponentFFprobe, "ffprobe", "linux", "amd64"),
	bin(ComponentFFprobe, "ffprobe", "linux", "arm64"),
	bin(ComponentFFprobe, "ffprobe", "darwin", "amd64"),
	bin(ComponentFFprobe, "ffprobe", "darwin", "arm64"),
	bin(ComponentFFprobe, "ffprobe.exe", "windows", "amd64"),
}

var components = []string{ComponentWhisper, ComponentFFmpeg, ComponentFFprobe}

func bin(id, fileName, goos, arch string, deps ...string) Descriptor {
	return Descriptor{
		ID:           id,
		FileName:     fileName,
		OS:           goos,
		Arch:         arch,
		URL:          releaseBase + "/" + goos + "_" + arch + "/" + fileName,
		RelPath:      fileName,
		Dependencies: deps,
	}
}

func lib(id, fileName, goos, arch string) Descriptor {
	return bin(id, fileName, goos, arch)
}

// ComponentIDs lists the identifiers callers may request, sorted.
func ComponentIDs() []string {
	ids := make([]string, len(components))
	copy(ids, components)
	sort.Strings(ids)
	return ids
}

func KnownComponent(id string) bool {
	for _, known := range components {
		if known == id {
			return true
		}
	}
	return false
}

// Lookup returns the descriptor for an identifier on a target, if any.
func Lookup(id string, target platform.Target) (Descriptor, bool) {
	for _, d := range registry {
		if d.ID == id && d.OS == target.OS && d.Arch == target.Arch {
			return d, true
		}
	}
	return Descriptor{}, false
}

// DependenciesOf resolves a descriptor's dependency identifiers against the
// same target. Unresolvable identifiers are returned separately so the
// caller can report them instead of silently dropping them.
func DependenciesOf(d Descriptor) (resolved []Descriptor, missing []string) {
	target := platform.Target{OS: d.OS, Arch: d.Arch}
	for _, depID := range d.Dependencies {
		dep, ok := Lookup(depID, target)
		if !ok {
			missing = append(missing, depID)
			continue
		}
		resolved = append(resolved, dep)
	}
	return resolved, missing
}

// All returns a copy of the full registry, mostly for tests.
func All() []Descriptor {
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	return out
}
