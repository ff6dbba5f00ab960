package stt

// Result is the transcription of one recorded answer.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Language is the language detected or used by the provider, if reported.
	Language string
}
