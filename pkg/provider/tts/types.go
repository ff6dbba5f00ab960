package tts

import "github.com/MrWong99/mockvox/pkg/audio"

// Request describes a single synthesis.
type Request struct {
	// Text is the utterance to speak.
	Text string

	// Voice is the profile name (e.g., "alloy"). Providers with their own voice
	// catalogue map it through their configured voice table.
	Voice string

	// Language is the BCP-47 language tag of Text.
	Language string
}

// Result is a synthesized clip.
type Result struct {
	// Audio is the complete encoded clip.
	Audio []byte

	// Format is the encoding of Audio.
	Format audio.Format
}

// VoiceMap resolves a profile name to a provider-specific voice ID.
type VoiceMap struct {
	// Voices maps profile names to provider voice IDs.
	Voices map[string]string

	// Default is used when the profile name is not in Voices. When empty the
	// profile name itself is passed through.
	Default string
}

// Resolve returns the provider voice ID for name.
func (m VoiceMap) Resolve(name string) string {
	if id, ok := m.Voices[name]; ok {
		return id
	}
	if m.Default != "" {
		return m.Default
	}
	return name
}
