package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/MrWong99/mockvox/pkg/audio"
)

// DefaultFrameSize is the maximum size of one outbound speech frame.
const DefaultFrameSize = 16 * 1024

// Conn is the transport a [Dispatcher] writes to. Implementations need not be
// safe for concurrent writes; [Outbox] serialises them.
type Conn interface {
	WriteText(ctx context.Context, p []byte) error
	WriteBinary(ctx context.Context, p []byte) error
}

// Outbox serialises writes to a [Conn] so that control messages from the
// dispatcher and frames from a background stream never overlap on the wire.
type Outbox struct {
	mu   sync.Mutex
	conn Conn
}

// NewOutbox wraps conn.
func NewOutbox(conn Conn) *Outbox {
	return &Outbox{conn: conn}
}

// Send marshals msg as JSON and writes it as one text frame.
func (o *Outbox) Send(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("protocol: marshal %T: %w", msg, err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.conn.WriteText(ctx, data); err != nil {
		return fmt.Errorf("protocol: write text: %w", err)
	}
	return nil
}

// SendBinary writes p as one binary frame.
func (o *Outbox) SendBinary(ctx context.Context, p []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.conn.WriteBinary(ctx, p); err != nil {
		return fmt.Errorf("protocol: write binary: %w", err)
	}
	return nil
}

// Streamer sends synthesized speech as a run of binary frames followed by a
// tts_done marker. Runs from concurrent Stream calls never interleave: a
// second call starts only after the first one's marker was written.
type Streamer struct {
	out       *Outbox
	frameSize int
	mu        sync.Mutex
}

// NewStreamer creates a Streamer writing frames of at most frameSize bytes.
// A frameSize <= 0 selects [DefaultFrameSize].
func NewStreamer(out *Outbox, frameSize int) *Streamer {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &Streamer{out: out, frameSize: frameSize}
}

// Stream sends payload split into frames, in order, then a tts_done naming
// format. An empty payload sends only the marker. The marker is not sent if
// a frame write fails.
func (s *Streamer) Stream(ctx context.Context, payload []byte, format audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for off := 0; off < len(payload); off += s.frameSize {
		end := min(off+s.frameSize, len(payload))
		if err := s.out.SendBinary(ctx, payload[off:end]); err != nil {
			return err
		}
	}
	return s.out.Send(ctx, TTSDoneMessage{Type: TypeTTSDone, Format: string(format)})
}
