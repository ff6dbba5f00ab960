// Package audio holds the small amount of audio knowledge mockvox needs.
//
// mockvox never decodes candidate audio. Frames are relayed opaquely from the
// browser to the speech-to-text collaborator, and synthesised speech is relayed
// opaquely back. What the pipeline does need is a shared vocabulary for the
// container format of each payload so that providers can label uploads and
// clients can pick a decoder when they receive a tts_done marker.
package audio

import "strings"

// Format names the container or encoding of an audio payload.
type Format string

const (
	FormatWebM  Format = "webm"
	FormatOgg   Format = "ogg"
	FormatWAV   Format = "wav"
	FormatMP3   Format = "mp3"
	FormatPCM16 Format = "pcm16"
)

// DefaultInputFormat is assumed when answer_audio_start omits a format.
// Browsers recording through MediaRecorder produce WebM/Opus by default.
const DefaultInputFormat = FormatWebM

// ParseFormat normalises s into a known [Format]. Common MIME types and file
// extensions are accepted. Unknown values report false.
func ParseFormat(s string) (Format, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.TrimPrefix(s, "audio/")
	s = strings.TrimPrefix(s, ".")
	switch s {
	case "webm":
		return FormatWebM, true
	case "ogg", "opus":
		return FormatOgg, true
	case "wav", "wave", "x-wav":
		return FormatWAV, true
	case "mp3", "mpeg":
		return FormatMP3, true
	case "pcm", "pcm16", "l16", "raw":
		return FormatPCM16, true
	}
	return "", false
}

// MIMEType returns the content type used when uploading a payload of this format.
func (f Format) MIMEType() string {
	switch f {
	case FormatWebM:
		return "audio/webm"
	case FormatOgg:
		return "audio/ogg"
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatPCM16:
		return "audio/L16"
	}
	return "application/octet-stream"
}

// Extension returns the file extension (without the dot) for uploads.
func (f Format) Extension() string {
	switch f {
	case FormatPCM16:
		return "pcm"
	case "":
		return "bin"
	}
	return string(f)
}
