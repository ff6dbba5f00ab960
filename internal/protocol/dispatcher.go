package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mockvox/internal/interview"
	"github.com/MrWong99/mockvox/internal/observe"
	"github.com/MrWong99/mockvox/internal/session"
	"github.com/MrWong99/mockvox/pkg/audio"
	"github.com/MrWong99/mockvox/pkg/provider/stt"
	"github.com/MrWong99/mockvox/pkg/provider/tts"
)

// Candidate utterances recorded when no usable transcript exists.
const (
	NoAudioText        = "[no audio received]"
	UnintelligibleText = "[unintelligible response]"
)

// Evaluation triggers, used as the "trigger" metric attribute.
const (
	triggerTurns = "turns"
	triggerStop  = "stop"
)

// Interviewer produces the interviewer side of a session. Every method
// degrades to a fallback value instead of failing.
type Interviewer interface {
	Persona(ctx context.Context, cfg session.Config) string
	Greeting(ctx context.Context, cfg session.Config, persona string) string
	NextQuestion(ctx context.Context, cfg session.Config, persona string, transcript []session.Utterance, turn int) string
	Evaluate(ctx context.Context, cfg session.Config, transcript []session.Utterance) session.Evaluation
}

var _ Interviewer = (*interview.Engine)(nil)

// Frame is one inbound websocket message.
type Frame struct {
	Binary bool
	Data   []byte
}

// Config holds the dependencies shared by every [Dispatcher].
type Config struct {
	Registry    *session.Registry
	Interviewer Interviewer

	// STT and TTS may be nil, in which case answers are recorded as
	// unintelligible and speech is skipped (tts_done is still sent).
	STT stt.Provider
	TTS tts.Provider

	Defaults session.Defaults

	// FrameSize caps outbound speech frames. Zero selects DefaultFrameSize.
	FrameSize int

	// MaxAnswerBytes caps the audio buffered for one answer. Zero disables
	// the cap.
	MaxAnswerBytes int

	// FallbackAudioFormat is named in tts_done when synthesis produced no
	// audio. Empty selects mp3.
	FallbackAudioFormat audio.Format

	// Decoder parses control frames. Nil selects a shared default.
	Decoder *Decoder

	// Metrics records session metrics. Nil selects observe.DefaultMetrics.
	Metrics *observe.Metrics

	// Now returns the current time. Nil selects time.Now.
	Now func() time.Time
}

var sharedDecoder = sync.OnceValue(NewDecoder)

// Dispatcher processes the messages of one connection strictly in arrival
// order. It owns at most one session and the connection's answer buffer.
//
// [Dispatcher.Handle] and [Dispatcher.Run] must be called from a single
// goroutine. The only concurrent work is the background stream of the final
// summary, which shares the connection through the [Streamer].
type Dispatcher struct {
	cfg      Config
	out      *Outbox
	streamer *Streamer
	buffer   *AudioBuffer
	decoder  *Decoder
	metrics  *observe.Metrics
	now      func() time.Time
	logger   *slog.Logger

	rec *session.Record

	bgCtx     context.Context
	bgCancel  context.CancelFunc
	bg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher writing to conn.
func NewDispatcher(cfg Config, conn Conn, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FallbackAudioFormat == "" {
		cfg.FallbackAudioFormat = audio.FormatMP3
	}
	d := &Dispatcher{
		cfg:     cfg,
		out:     NewOutbox(conn),
		buffer:  NewAudioBuffer(cfg.MaxAnswerBytes),
		decoder: cfg.Decoder,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		logger:  logger,
	}
	d.streamer = NewStreamer(d.out, cfg.FrameSize)
	if d.decoder == nil {
		d.decoder = sharedDecoder()
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.bgCtx, d.bgCancel = context.WithCancel(context.Background())
	return d
}

// SessionID returns the id of the owned session, or "" before start.
func (d *Dispatcher) SessionID() string {
	if d.rec == nil {
		return ""
	}
	return d.rec.ID
}

// Run handles frames until the channel is closed or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, frames <-chan Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			d.Handle(ctx, f)
		}
	}
}

// Close waits for background speech to finish, or for ctx to end, and then
// releases the session: an unfinished session is evicted, a finished one is
// left to the registry's retention window. Close is idempotent and must not
// race with Handle.
func (d *Dispatcher) Close(ctx context.Context) {
	d.closeOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			d.bg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			d.bgCancel()
			<-done
		}
		d.bgCancel()

		if d.rec == nil {
			return
		}
		d.metrics.ActiveSessions.Add(context.Background(), -1)
		if d.cfg.Registry.Release(d.rec.ID) {
			d.logger.Info("unfinished session evicted", "phase", string(d.rec.Phase()))
		}
	})
}

// Handle processes one frame. Protocol errors are reported to the client;
// a panic or unexpected failure is reported as server_exception and the
// dispatcher keeps serving. Each control message runs in its own span.
func (d *Dispatcher) Handle(ctx context.Context, f Frame) {
	if f.Binary {
		defer d.finishMessage(ctx, nil, nil)
		d.handleAudioFrame(f.Data)
		return
	}

	ctx, span := observe.StartMessageSpan(ctx)
	var err error
	defer d.finishMessage(ctx, span, &err)
	err = d.handleControl(ctx, span, f.Data)
}

// finishMessage recovers a handler panic, reports it as server_exception and
// ends span when there is one. It must be deferred directly.
func (d *Dispatcher) finishMessage(ctx context.Context, span trace.Span, errp *error) {
	if r := recover(); r != nil {
		d.logger.Error("panic while handling message", "panic", r, "stack", string(debug.Stack()))
		d.sendError(ctx, CodeServerException, "")
		if errp != nil {
			*errp = fmt.Errorf("protocol: panic: %v", r)
		}
	}
	if span == nil {
		return
	}
	if id := d.SessionID(); id != "" {
		span.SetAttributes(observe.AttrSessionID.String(id))
	}
	observe.EndSpan(span, *errp)
}

// handleControl decodes and dispatches one control frame. The returned error
// is the failure that was reported as server_exception, if any.
func (d *Dispatcher) handleControl(ctx context.Context, span trace.Span, data []byte) error {
	msg, err := d.decoder.Decode(data)
	if err != nil {
		var de *DecodeError
		if !errors.As(err, &de) {
			de = &DecodeError{Code: CodeInvalidJSON, Err: err}
		}
		span.SetAttributes(observe.AttrErrorCode.String(de.Code))
		d.logger.Debug("rejected control frame", "code", de.Code, "err", err)
		d.sendError(ctx, de.Code, de.Detail)
		return nil
	}

	typ := messageType(msg)
	span.SetName("protocol." + typ)
	span.SetAttributes(observe.AttrMessageType.String(typ))

	switch m := msg.(type) {
	case *Start:
		err = d.handleStart(ctx, m)
	case *AnswerAudioStart:
		err = d.handleAudioStart(ctx, m)
	case string:
		switch m {
		case TypeAnswerAudioEnd:
			err = d.handleAudioEnd(ctx)
		case TypeStop:
			err = d.handleStop(ctx)
		}
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		d.logger.Debug("message aborted, connection closing", "err", err)
		return err
	}
	span.SetAttributes(observe.AttrErrorCode.String(CodeServerException))
	d.logger.Error("failed to handle message", "err", err)
	d.sendError(ctx, CodeServerException, "")
	return err
}

func messageType(msg any) string {
	switch m := msg.(type) {
	case *Start:
		return TypeStart
	case *AnswerAudioStart:
		return TypeAnswerAudioStart
	case string:
		return m
	}
	return "unknown"
}

// ── Handlers ─────────────────────────────────────────────────────────────────

func (d *Dispatcher) handleStart(ctx context.Context, m *Start) error {
	if d.rec != nil {
		d.sendError(ctx, CodeSessionActive, d.rec.ID)
		return nil
	}

	var prior *session.Config
	if m.PreviousSessionID != "" {
		prev, err := d.cfg.Registry.Get(m.PreviousSessionID)
		if errors.Is(err, session.ErrNotFound) {
			d.sendError(ctx, CodeSessionNotFound, m.PreviousSessionID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("protocol: load previous session: %w", err)
		}
		pc := prev.Config
		prior = &pc
	}

	cfg := session.ResolveConfig(m.Config(), prior, d.cfg.Defaults)
	rec := d.cfg.Registry.Create(cfg)
	d.rec = rec
	d.logger = d.logger.With("session_id", rec.ID)
	d.metrics.ActiveSessions.Add(ctx, 1)
	d.logger.Info("session started",
		"role", cfg.Role,
		"level", cfg.Level,
		"round", cfg.Round,
		"language", cfg.Language,
		"max_turns", cfg.MaxTurns,
		"previous_session_id", m.PreviousSessionID,
	)

	if m.MaxTurns > cfg.MaxTurns {
		d.logger.Info("requested turn budget exceeds limit, clamped",
			"requested_max_turns", m.MaxTurns, "max_turns", cfg.MaxTurns)
	}

	if err := d.out.Send(ctx, SessionMessage{Type: TypeSession, SessionID: rec.ID, MaxTurns: cfg.MaxTurns}); err != nil {
		return err
	}
	if err := rec.BeginGreeting(); err != nil {
		return fmt.Errorf("protocol: begin greeting: %w", err)
	}

	persona := d.cfg.Interviewer.Persona(ctx, cfg)
	rec.SetPersona(persona)
	if err := d.out.Send(ctx, PersonaMessage{Type: TypePersona, Text: persona}); err != nil {
		return err
	}

	greeting := d.cfg.Interviewer.Greeting(ctx, cfg, persona)
	if err := d.speak(ctx, cfg, greeting); err != nil {
		return err
	}
	transcript, err := rec.AppendGreeting(greeting)
	if err != nil {
		return fmt.Errorf("protocol: append greeting: %w", err)
	}
	return d.sendTranscript(ctx, transcript)
}

func (d *Dispatcher) handleAudioStart(ctx context.Context, m *AnswerAudioStart) error {
	if d.rec == nil {
		d.sendError(ctx, CodeSessionNotFound, "")
		return nil
	}
	if phase := d.rec.Phase(); phase != session.PhaseAwaitingAnswer {
		d.logger.Debug("ignoring answer_audio_start", "phase", string(phase))
		return nil
	}

	format := audio.DefaultInputFormat
	if m.Format != "" {
		if f, ok := audio.ParseFormat(m.Format); ok {
			format = f
		} else {
			d.logger.Debug("unknown answer audio format, using default", "format", m.Format, "default", string(format))
		}
	}
	d.buffer.Begin(format)
	return nil
}

func (d *Dispatcher) handleAudioFrame(data []byte) {
	if d.rec == nil || d.rec.Phase() != session.PhaseAwaitingAnswer {
		d.logger.Debug("dropping audio frame outside an interview", "bytes", len(data))
		return
	}
	wasOverflowed := d.buffer.Overflowed()
	if d.buffer.Append(data) {
		return
	}
	switch {
	case !d.buffer.Open():
		d.logger.Debug("dropping audio frame outside an answer window", "bytes", len(data))
	case !wasOverflowed:
		d.logger.Warn("answer audio exceeds size limit, dropping further frames", "limit_bytes", d.cfg.MaxAnswerBytes)
	}
}

func (d *Dispatcher) handleAudioEnd(ctx context.Context) error {
	if d.rec == nil {
		d.sendError(ctx, CodeSessionNotFound, "")
		return nil
	}
	rec := d.rec
	data, format := d.buffer.Drain()
	if phase := rec.Phase(); phase != session.PhaseAwaitingAnswer {
		d.logger.Debug("ignoring answer_audio_end", "phase", string(phase))
		return nil
	}

	answer := d.transcribe(ctx, rec.Config, data, format)
	transcript, err := rec.AppendAnswer(answer)
	if errors.Is(err, session.ErrNotActive) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("protocol: append answer: %w", err)
	}
	if err := d.sendTranscript(ctx, transcript); err != nil {
		return err
	}

	turns := rec.TurnsCompleted()
	if !interview.ShouldContinue(turns, rec.Config.MaxTurns) {
		return d.evaluate(ctx, triggerTurns)
	}

	question := d.cfg.Interviewer.NextQuestion(ctx, rec.Config, rec.Persona(), transcript, turns+1)
	transcript, err = rec.AppendQuestion(question)
	switch {
	case errors.Is(err, session.ErrNotActive), errors.Is(err, session.ErrTurnBudget):
		d.logger.Debug("discarding generated question", "err", err)
		return nil
	case err != nil:
		return fmt.Errorf("protocol: append question: %w", err)
	}
	d.metrics.InterviewTurns.Add(ctx, 1)
	if err := d.sendTranscript(ctx, transcript); err != nil {
		return err
	}
	return d.speak(ctx, rec.Config, question)
}

func (d *Dispatcher) handleStop(ctx context.Context) error {
	if d.rec == nil {
		d.sendError(ctx, CodeSessionNotFound, "")
		return nil
	}
	return d.evaluate(ctx, triggerStop)
}

// evaluate runs the final evaluation if this call wins the transition into
// the evaluating phase. Losing callers return without effect. Once claimed,
// the session always reaches done: a panicking evaluation is reported as
// server_exception and replaced by the fallback evaluation.
func (d *Dispatcher) evaluate(ctx context.Context, trigger string) error {
	rec := d.rec
	if !rec.BeginEvaluation() {
		d.logger.Debug("evaluation already claimed", "trigger", trigger, "phase", string(rec.Phase()))
		return nil
	}

	start := d.now()
	ev, err := d.runEvaluation(ctx, rec)
	if err != nil {
		d.logger.Error("evaluation failed, using fallback evaluation", "trigger", trigger, "err", err)
		d.sendError(ctx, CodeServerException, "")
		ev = interview.FallbackEvaluation(rec.Config)
	}
	transcript, err := rec.Finish(ev, d.now())
	if err != nil {
		return fmt.Errorf("protocol: finish session: %w", err)
	}
	d.metrics.RecordEvaluation(ctx, trigger, d.now().Sub(start))
	d.logger.Info("session evaluated",
		"trigger", trigger,
		"overall_score", ev.OverallScore,
		"turns", rec.TurnsCompleted(),
	)

	if err := d.sendTranscript(ctx, transcript); err != nil {
		return err
	}
	done := DoneMessage{
		Type:         TypeDone,
		SummaryText:  ev.SummaryText,
		OverallScore: ev.OverallScore,
		Rubric:       ev.Rubric,
	}
	if err := d.out.Send(ctx, done); err != nil {
		return err
	}

	cfg := rec.Config
	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("panic while streaming summary audio", "panic", r)
			}
		}()
		if err := d.speak(d.bgCtx, cfg, ev.SummaryText); err != nil {
			d.logger.Warn("summary audio stream failed", "err", err)
		}
	}()
	return nil
}

// runEvaluation calls the interviewer and converts a panic into an error.
func (d *Dispatcher) runEvaluation(ctx context.Context, rec *session.Record) (ev session.Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("protocol: evaluation panic: %v\n%s", r, debug.Stack())
		}
	}()
	return d.cfg.Interviewer.Evaluate(ctx, rec.Config, rec.Transcript()), nil
}

// ── Collaborators ────────────────────────────────────────────────────────────

func (d *Dispatcher) transcribe(ctx context.Context, cfg session.Config, data []byte, format audio.Format) string {
	if len(data) == 0 {
		return NoAudioText
	}
	if d.cfg.STT == nil {
		return UnintelligibleText
	}
	res, err := d.cfg.STT.Transcribe(ctx, stt.Request{Audio: data, Format: format, Language: cfg.Language})
	if err != nil {
		d.logger.WarnContext(ctx, "transcription failed, recording placeholder",
			"collaborator", "stt", "bytes", len(data), "format", string(format), "err", err)
		return UnintelligibleText
	}
	text := ""
	if res != nil {
		text = strings.TrimSpace(res.Text)
	}
	if text == "" {
		return UnintelligibleText
	}
	return text
}

// speak synthesizes text and streams it. Synthesis failures are logged and
// produce a bare tts_done; only write errors are returned.
func (d *Dispatcher) speak(ctx context.Context, cfg session.Config, text string) error {
	payload, format := d.synthesize(ctx, cfg, text)
	return d.streamer.Stream(ctx, payload, format)
}

func (d *Dispatcher) synthesize(ctx context.Context, cfg session.Config, text string) ([]byte, audio.Format) {
	fallback := d.cfg.FallbackAudioFormat
	if d.cfg.TTS == nil || strings.TrimSpace(text) == "" {
		return nil, fallback
	}
	res, err := d.cfg.TTS.Synthesize(ctx, tts.Request{Text: text, Voice: cfg.Voice, Language: cfg.Language})
	if err != nil || res == nil {
		d.logger.WarnContext(ctx, "speech synthesis failed, sending marker only",
			"collaborator", "tts", "chars", len(text), "err", err)
		return nil, fallback
	}
	format := res.Format
	if format == "" {
		format = fallback
	}
	return res.Audio, format
}

// ── Output ───────────────────────────────────────────────────────────────────

func (d *Dispatcher) sendTranscript(ctx context.Context, transcript []session.Utterance) error {
	return d.out.Send(ctx, TranscriptUpdateMessage{Type: TypeTranscriptUpdate, Transcript: transcript})
}

// sendError reports code to the client. Write failures are only logged since
// the connection is usually gone by then.
func (d *Dispatcher) sendError(ctx context.Context, code, detail string) {
	d.metrics.RecordProtocolError(ctx, code)
	if err := d.out.Send(ctx, ErrorMessage{Type: TypeError, Error: code, Detail: detail}); err != nil {
		d.logger.Debug("failed to send error message", "code", code, "err", err)
	}
}
