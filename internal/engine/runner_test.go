package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeEngineBinary(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "whisper-cli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestBuildArgsWithOnlyJSONFormat(t *testing.T) {
	t.Parallel()

	req := Request{
		AudioPath: "/tmp/audio.wav",
		ModelPath: "/models/ggml-tiny.bin",
		Language:  "auto",
		Config:    Config{Formats: []Format{FormatJSON}},
	}

	args := BuildArgs(req, "/tmp/audio")
	require.Contains(t, args, "-oj")
	require.NotContains(t, args, "-otxt")
	require.NotContains(t, args, "-ocsv")
	require.NotContains(t, args, "-tr")
	require.NotContains(t, args, "-l")
	require.NotContains(t, args, "-t")
	require.Equal(t, []string{"-oj", "-m", "/models/ggml-tiny.bin", "-f", "/tmp/audio.wav", "-of", "/tmp/audio"}, args)
}

func TestBuildArgsFullConfig(t *testing.T) {
	t.Parallel()

	req := Request{
		AudioPath: "/tmp/audio.wav",
		ModelPath: "/models/ggml-base.bin",
		Language:  "de",
		Config: Config{
			Threads:       4,
			Processors:    2,
			MaxDurationMs: 30000,
			MaxSegmentLen: 60,
			Formats:       []Format{FormatJSON, FormatTXT, FormatCSV},
			Translate:     true,
		},
	}

	args := BuildArgs(req, "/tmp/audio")
	require.Equal(t, []string{
		"-t", "4",
		"-p", "2",
		"-d", "30000",
		"-ml", "60",
		"-oj", "-otxt", "-ocsv",
		"-tr",
		"-m", "/models/ggml-base.bin",
		"-l", "de",
		"-f", "/tmp/audio.wav",
		"-of", "/tmp/audio",
	}, args)
}

func TestRunRejectsUnusableInput(t *testing.T) {
	t.Parallel()

	r := NewRunnerForTests(fakeEngineBinary(t), nil)

	_, err := r.Run(context.Background(), Request{ModelPath: "m", Config: Config{Formats: []Format{FormatTXT}}})
	require.Error(t, err)

	_, err = r.Run(context.Background(), Request{AudioPath: "a", Config: Config{Formats: []Format{FormatTXT}}})
	require.Error(t, err)

	_, err = r.Run(context.Background(), Request{AudioPath: "a", ModelPath: "m"})
	require.Error(t, err)

	_, err = r.Run(context.Background(), Request{AudioPath: "a", ModelPath: "m", Config: Config{Formats: []Format{"srt"}}})
	require.Error(t, err)
}

func TestRunNonZeroExitCarriesDiagnostics(t *testing.T) {
	t.Parallel()

	r := NewRunnerForTests(fakeEngineBinary(t), func(_ context.Context, _ string, _ ...string) (int, string, error) {
		return 1, "failed to load model", errors.New("exit status 1")
	})

	audio := filepath.Join(t.TempDir(), "audio.wav")
	result, err := r.Run(context.Background(), Request{
		AudioPath: audio,
		ModelPath: "/models/ggml-tiny.bin",
		Config:    Config{Formats: []Format{FormatJSON}},
	})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, 1, result.ExitCode)
	require.Contains(t, result.Message, "1")
	require.Contains(t, result.Message, "failed to load model")
	require.Empty(t, result.Outputs)
}

func TestRunZeroExitWithMissingRequestedArtifactFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audio := filepath.Join(dir, "audio.wav")

	r := NewRunnerForTests(fakeEngineBinary(t), func(_ context.Context, _ string, _ ...string) (int, string, error) {
		// engine succeeds but writes nothing
		return 0, "", nil
	})

	result, err := r.Run(context.Background(), Request{
		AudioPath: audio,
		ModelPath: "/models/ggml-tiny.bin",
		Config:    Config{Formats: []Format{FormatJSON}},
	})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Contains(t, result.Message, "json")
	require.Contains(t, result.Message, "missing")
}

func TestRunCollectsAndParsesArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audio := filepath.Join(dir, "audio.wav")
	outBase := filepath.Join(dir, "audio")

	jsonBody := `{
		"result": {"language": "en"},
		"transcription": [
			{"offsets": {"from": 0, "to": 2500}, "text": " Hello there."},
			{"offsets": {"from": 2500, "to": 4000}, "text": " General Kenobi."}
		]
	}`

	r := NewRunnerForTests(fakeEngineBinary(t), func(_ context.Context, _ string, args ...string) (int, string, error) {
		require.Contains(t, args, "-oj")
		require.Contains(t, args, "-otxt")
		require.NoError(t, os.WriteFile(outBase+".json", []byte(jsonBody), 0o644))
		require.NoError(t, os.WriteFile(outBase+".txt", []byte("Hello there. General Kenobi.\n"), 0o644))
		return 0, "", nil
	})

	result, err := r.Run(context.Background(), Request{
		AudioPath: audio,
		ModelPath: "/models/ggml-tiny.bin",
		Config:    Config{Formats: []Format{FormatJSON, FormatTXT}},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Outputs, 2)

	jsonOut := result.Outputs[0]
	require.Equal(t, FormatJSON, jsonOut.Format)
	require.Equal(t, outBase+".json", jsonOut.Path)
	require.Len(t, jsonOut.Segments, 2)
	require.Equal(t, int64(2500), jsonOut.Segments[0].ToMs)
	require.Equal(t, " Hello there.", jsonOut.Segments[0].Text)

	txtOut := result.Outputs[1]
	require.Equal(t, FormatTXT, txtOut.Format)
	require.True(t, strings.HasPrefix(txtOut.Content, "Hello there."))
	require.Empty(t, txtOut.Segments)
}

func TestRunUnparseableJSONArtifactFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audio := filepath.Join(dir, "audio.wav")
	outBase := filepath.Join(dir, "audio")

	r := NewRunnerForTests(fakeEngineBinary(t), func(_ context.Context, _ string, _ ...string) (int, string, error) {
		require.NoError(t, os.WriteFile(outBase+".json", []byte("{truncated"), 0o644))
		return 0, "", nil
	})

	result, err := r.Run(context.Background(), Request{
		AudioPath: audio,
		ModelPath: "/models/ggml-tiny.bin",
		Config:    Config{Formats: []Format{FormatJSON}},
	})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Contains(t, result.Message, "parse")
}

func TestRunMissingEngineExecutable(t *testing.T) {
	t.Parallel()

	r := NewRunnerForTests(filepath.Join(t.TempDir(), "no-such-engine"), nil)
	_, err := r.Run(context.Background(), Request{
		AudioPath: "audio.wav",
		ModelPath: "model.bin",
		Config:    Config{Formats: []Format{FormatTXT}},
	})
	require.Error(t, err)
}

func TestClassifyEngineFailureSharedLibraries(t *testing.T) {
	t.Parallel()

	message := classifyEngineFailure("whisper-cli: error while loading shared libraries: libwhisper.so.1", errors.New("exit status 127"))
	require.Contains(t, message, "shared libraries")
	require.Contains(t, message, "setup")

	require.Empty(t, classifyEngineFailure("plain failure", errors.New("exit status 1")))
}
