// Package models maps symbolic whisper model names to cached files on
// disk, downloading each model on first use.
package models

import (
	"sort"
	"strings"
)

// All is the sentinel name that fans out to every known model.
const All = "all"

const (
	standardPrefix  = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"
	diarizePrefix   = "https://huggingface.co/akashmjn/tinydiarize-whisper.cpp/resolve/main/"
	diarizeNamePart = "-tdrz"
)

type Model struct {
	Name     string
	FileName string
	URL      string
}

var registry = buildRegistry(
	"tiny", "tiny.en",
	"base", "base.en",
	"small", "small.en",
	"medium", "medium.en",
	"large-v1", "large",
	"small.en-tdrz",
)

func buildRegistry(names ...string) map[string]Model {
	out := make(map[string]Model, len(names))
	for _, name := range names {
		fileName := "ggml-" + name + ".bin"
		prefix := standardPrefix
		// tinydiarize variants live under a different source repository
		if strings.Contains(name, diarizeNamePart) {
			prefix = diarizePrefix
		}
		out[name] = Model{Name: name, FileName: fileName, URL: prefix + fileName}
	}
	return out
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Lookup(name string) (Model, bool) {
	model, ok := registry[name]
	return model, ok
}
