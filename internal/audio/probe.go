package audio

import (
	"fmt"
	"os"

	wav "github.com/youpy/go-wav"
)

// WAVInfo is the subset of the WAV format chunk needed to decide whether a
// file already satisfies the canonical format.
type WAVInfo struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    int
	BitsPerSample uint16
}

// CanonicalPCMMono reports whether the file is 16-bit PCM mono, i.e. the
// canonical container regardless of sample rate.
func (i WAVInfo) CanonicalPCMMono() bool {
	return i.AudioFormat == 1 && i.NumChannels == 1 && i.BitsPerSample == 16
}

// ProbeWAVHeader reads the format chunk of a WAV file. It never spawns a
// subprocess, which keeps the already-normalized fast path free of ffprobe
// invocations.
func ProbeWAVHeader(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	format, err := wav.NewReader(f).Format()
	if err != nil {
		return WAVInfo{}, fmt.Errorf("read wav format chunk: %w", err)
	}

	return WAVInfo{
		AudioFormat:   format.AudioFormat,
		NumChannels:   format.NumChannels,
		SampleRate:    int(format.SampleRate),
		BitsPerSample: format.BitsPerSample,
	}, nil
}
