// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server,
// Deepgram, or the OpenAI transcription API) and turns one complete recorded
// answer into text. Streaming partials are not part of the contract: the
// interview engine only transcribes after the candidate has finished speaking.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/mockvox/pkg/audio"
)

// ErrEmptyAudio is returned by providers when Transcribe is called without
// any audio bytes.
var ErrEmptyAudio = errors.New("stt: audio must not be empty")

// Request describes a single batch transcription.
type Request struct {
	// Audio is the complete encoded answer recording.
	Audio []byte

	// Format is the container or encoding of Audio. An empty value means
	// [audio.DefaultInputFormat].
	Format audio.Format

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de-DE").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts the recording in req to text. A successful call may
	// return an empty Text when the provider heard nothing intelligible.
	//
	// Returns an error if the provider cannot be reached, rejects the audio,
	// or ctx is cancelled. Implementations make exactly one attempt.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
