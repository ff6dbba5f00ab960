// Package protocol implements the per-connection interview protocol: the
// JSON control messages, the answer audio buffer, the outbound speech
// streamer, and the [Dispatcher] that drives a session through its phases.
//
// A connection carries two payload kinds. Text frames hold JSON control
// messages discriminated by their "type" field. Binary frames hold opaque
// audio: inbound answer audio between answer_audio_start and
// answer_audio_end, and outbound synthesized speech terminated by tts_done.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrWong99/mockvox/internal/session"
)

// Inbound message types.
const (
	TypeStart            = "start"
	TypeAnswerAudioStart = "answer_audio_start"
	TypeAnswerAudioEnd   = "answer_audio_end"
	TypeStop             = "stop"
)

// Outbound message types.
const (
	TypeSession          = "session"
	TypePersona          = "persona"
	TypeTTSDone          = "tts_done"
	TypeTranscriptUpdate = "transcript_update"
	TypeDone             = "done"
	TypeError            = "error"
)

// Error codes carried in [ErrorMessage.Error].
const (
	CodeInvalidJSON      = "invalid_json"
	CodeUnrecognizedType = "unrecognized_type"
	CodeInvalidStart     = "invalid_start"
	CodeSessionActive    = "session_active"
	CodeSessionNotFound  = "session_not_found"
	CodeServerException  = "server_exception"
)

// ── Inbound ──────────────────────────────────────────────────────────────────

// Start opens an interview. Every field is optional; missing fields are
// resolved from the prior session named by PreviousSessionID and then from
// the configured defaults.
type Start struct {
	Type              string `json:"type"`
	Language          string `json:"language" validate:"omitempty,max=16"`
	Role              string `json:"role" validate:"omitempty,max=200"`
	Level             string `json:"level" validate:"omitempty,max=64"`
	Round             string `json:"round" validate:"omitempty,max=64"`
	MaxTurns          int    `json:"maxTurns" validate:"gte=0,lte=100"`
	CandidateName     string `json:"candidateName" validate:"omitempty,max=200"`
	Voice             string `json:"voice" validate:"omitempty,max=128"`
	JobContext        string `json:"jobContext" validate:"omitempty,max=8000"`
	PreviousSessionID string `json:"previousSessionId" validate:"omitempty,max=128"`
}

// Config returns the session configuration explicitly requested by s.
func (s *Start) Config() session.Config {
	return session.Config{
		CandidateName: s.CandidateName,
		Role:          s.Role,
		Level:         s.Level,
		Language:      s.Language,
		Round:         s.Round,
		MaxTurns:      s.MaxTurns,
		Voice:         s.Voice,
		JobContext:    s.JobContext,
	}
}

// AnswerAudioStart opens an answer window. Format names the container of the
// binary frames that follow; empty means the default input format.
type AnswerAudioStart struct {
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
}

// ── Outbound ─────────────────────────────────────────────────────────────────

// SessionMessage announces the id of the session created by start and the
// turn budget in effect, which may be lower than the one requested.
type SessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	MaxTurns  int    `json:"maxTurns"`
}

// PersonaMessage carries the generated interviewer persona.
type PersonaMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TTSDoneMessage terminates a run of outbound speech frames.
type TTSDoneMessage struct {
	Type   string `json:"type"`
	Format string `json:"format"`
}

// TranscriptUpdateMessage carries the whole transcript after an append.
type TranscriptUpdateMessage struct {
	Type       string              `json:"type"`
	Transcript []session.Utterance `json:"transcript"`
}

// DoneMessage carries the final evaluation. It is sent once per session.
type DoneMessage struct {
	Type         string         `json:"type"`
	SummaryText  string         `json:"summaryText"`
	OverallScore float64        `json:"overallScore"`
	Rubric       session.Rubric `json:"rubric"`
}

// ErrorMessage reports a protocol error to the client.
type ErrorMessage struct {
	Type   string `json:"type"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// ── Decoding ─────────────────────────────────────────────────────────────────

// DecodeError is returned by [Decoder.Decode] when a control frame cannot be
// turned into a message. Code is the protocol error code to report.
type DecodeError struct {
	Code   string
	Detail string
	Err    error
}

// Error implements error.
func (e *DecodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("protocol: %s: %s", e.Code, e.Detail)
	}
	return "protocol: " + e.Code
}

// Unwrap returns the underlying error, if any.
func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder parses and validates inbound control frames. It is safe for
// concurrent use.
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder creates a Decoder. Validation errors name fields by their JSON
// keys.
func NewDecoder() *Decoder {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Decoder{validate: v}
}

// Decode parses one control frame. It returns *[Start], *[AnswerAudioStart],
// or the bare type string for answer_audio_end and stop. Failures are
// reported as *[DecodeError].
func (d *Decoder) Decode(data []byte) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &DecodeError{Code: CodeInvalidJSON, Err: err}
	}

	switch head.Type {
	case TypeStart:
		var msg Start
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, &DecodeError{Code: CodeInvalidJSON, Err: err}
		}
		if err := d.validate.Struct(&msg); err != nil {
			return nil, &DecodeError{Code: CodeInvalidStart, Detail: describeValidation(err), Err: err}
		}
		return &msg, nil
	case TypeAnswerAudioStart:
		var msg AnswerAudioStart
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, &DecodeError{Code: CodeInvalidJSON, Err: err}
		}
		return &msg, nil
	case TypeAnswerAudioEnd, TypeStop:
		return head.Type, nil
	case "":
		return nil, &DecodeError{Code: CodeUnrecognizedType, Detail: "missing type"}
	default:
		return nil, &DecodeError{Code: CodeUnrecognizedType, Detail: head.Type}
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
