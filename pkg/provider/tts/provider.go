// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one complete interviewer utterance into an encoded
// audio clip. The caller is responsible for chunking the clip into frames for
// the client; providers return the whole clip at once.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned by providers when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text in req.Voice. Providers make exactly one
	// attempt; on failure the caller sends no audio for this utterance.
	Synthesize(ctx context.Context, req Request) (*Result, error)
}
