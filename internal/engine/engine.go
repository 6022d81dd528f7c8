// Package engine abstracts the speech-to-text backend invoked per task.
package engine

import (
	"context"
)

// Segment is one transcribed span of audio.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the payload a successful transcription produces.
type Result struct {
	Segments []Segment `json:"segments"`
	Duration float64   `json:"duration"`
	Language string    `json:"language,omitempty"`
}

// Transcriber defines the behaviour required by the worker.
type Transcriber interface {
	Transcribe(ctx context.Context, inputPath string, opts Options, progress func(float64)) (*Result, error)
}
