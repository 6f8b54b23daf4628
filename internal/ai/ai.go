package ai

import (
	"context"
	"io"
)

// TextClient generates story text from a single user prompt.
type TextClient interface {
	GenerateText(ctx context.Context, model, prompt string, temperature float64) (string, TokenUsage, error)
}

// SpeechClient synthesizes narration and returns the encoded audio stream.
// Callers must close the returned reader.
type SpeechClient interface {
	Stream(ctx context.Context, req *SpeechRequest) (io.ReadCloser, error)
}
