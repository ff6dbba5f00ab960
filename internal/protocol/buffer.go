package protocol

import "github.com/MrWong99/mockvox/pkg/audio"

// AudioBuffer accumulates the binary frames of one spoken answer between an
// answer_audio_start and an answer_audio_end. It belongs to a single
// connection and is not safe for concurrent use.
type AudioBuffer struct {
	frames   [][]byte
	size     int
	format   audio.Format
	open     bool
	limit    int
	overflow bool
}

// NewAudioBuffer creates a closed buffer. limit caps the total bytes of one
// answer; frames beyond it are dropped. A limit <= 0 disables the cap.
func NewAudioBuffer(limit int) *AudioBuffer {
	return &AudioBuffer{limit: limit}
}

// Begin discards anything accumulated so far and opens a new answer window
// for audio in the given container format.
func (b *AudioBuffer) Begin(format audio.Format) {
	b.frames = nil
	b.size = 0
	b.format = format
	b.open = true
	b.overflow = false
}

// Open reports whether an answer window is open.
func (b *AudioBuffer) Open() bool { return b.open }

// Append adds frame to the open window. It reports false when the frame was
// dropped because no window is open or the size cap was reached. The frame
// is copied.
func (b *AudioBuffer) Append(frame []byte) bool {
	if !b.open {
		return false
	}
	if b.limit > 0 && b.size+len(frame) > b.limit {
		b.overflow = true
		return false
	}
	b.frames = append(b.frames, append([]byte(nil), frame...))
	b.size += len(frame)
	return true
}

// Overflowed reports whether the current window dropped frames at the cap.
func (b *AudioBuffer) Overflowed() bool { return b.overflow }

// Drain closes the window and returns the frames concatenated in arrival
// order together with their format. A second Drain without an intervening
// Begin returns no audio.
func (b *AudioBuffer) Drain() ([]byte, audio.Format) {
	format := b.format
	if format == "" {
		format = audio.DefaultInputFormat
	}
	var out []byte
	if b.open && b.size > 0 {
		out = make([]byte, 0, b.size)
		for _, f := range b.frames {
			out = append(out, f...)
		}
	}
	b.frames = nil
	b.size = 0
	b.open = false
	return out, format
}
