package engine

import (
	"encoding/json"
	"fmt"
	"os"
)

// Segment is one transcribed span with millisecond offsets into the input.
type Segment struct {
	FromMs int64  `json:"fromMs"`
	ToMs   int64  `json:"toMs"`
	Text   string `json:"text"`
}

type jsonArtifact struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// collectArtifacts reads every requested sibling artifact of outBase. A
// missing or unparseable file for a requested format fails the whole
// collection even though the engine exited zero.
func collectArtifacts(outBase string, formats []Format) ([]Output, error) {
	outputs := make([]Output, 0, len(formats))
	for _, format := range formats {
		path := outBase + "." + string(format)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("engine exited zero but requested %s output is missing at %s: %v", format, path, err)
		}

		output := Output{Format: format, Path: path, Content: string(content)}
		if format == FormatJSON {
			segments, err := parseSegments(content)
			if err != nil {
				return nil, fmt.Errorf("parse %s output at %s: %v", format, path, err)
			}
			output.Segments = segments
		}
		outputs = append(outputs, output)
	}
	return outputs, nil
}

func parseSegments(content []byte) ([]Segment, error) {
	var artifact jsonArtifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(artifact.Transcription))
	for _, entry := range artifact.Transcription {
		segments = append(segments, Segment{
			FromMs: entry.Offsets.From,
			ToMs:   entry.Offsets.To,
			Text:   entry.Text,
		})
	}
	return segments, nil
}
