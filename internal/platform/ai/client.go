// Package ai wraps the OpenAI-compatible API surface the assistant endpoints
// depend on: text completion, audio transcription, and speech synthesis.
package ai

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("ai: no API key configured")

// Client is the capability surface the assistant endpoints need.
type Client interface {
	CompleteText(ctx context.Context, system, user string, maxTokens int) (string, error)
	TranscribeAudio(ctx context.Context, filename string, audio []byte) (string, error)
	SynthesizeSpeech(ctx context.Context, text, voice string) ([]byte, error)
}
