package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/mockvox/internal/observe"
	"github.com/MrWong99/mockvox/internal/session"
	"github.com/MrWong99/mockvox/pkg/audio"
	"github.com/MrWong99/mockvox/pkg/provider/stt"
	sttmock "github.com/MrWong99/mockvox/pkg/provider/stt/mock"
	"github.com/MrWong99/mockvox/pkg/provider/tts"
	ttsmock "github.com/MrWong99/mockvox/pkg/provider/tts/mock"
)

// ── fake connection ──────────────────────────────────────────────────────────

type wireFrame struct {
	binary bool
	data   []byte
}

type fakeConn struct {
	mu     sync.Mutex
	frames []wireFrame
	err    error
}

func (c *fakeConn) WriteText(_ context.Context, p []byte) error {
	return c.write(false, p)
}

func (c *fakeConn) WriteBinary(_ context.Context, p []byte) error {
	return c.write(true, p)
}

func (c *fakeConn) write(binary bool, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, wireFrame{binary: binary, data: append([]byte(nil), p...)})
	return nil
}

func (c *fakeConn) snapshot() []wireFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wireFrame(nil), c.frames...)
}

// outMsg is the union of every outbound control message.
type outMsg struct {
	Type         string              `json:"type"`
	SessionID    string              `json:"sessionId"`
	MaxTurns     int                 `json:"maxTurns"`
	Text         string              `json:"text"`
	Format       string              `json:"format"`
	Transcript   []session.Utterance `json:"transcript"`
	SummaryText  string              `json:"summaryText"`
	OverallScore float64             `json:"overallScore"`
	Rubric       session.Rubric      `json:"rubric"`
	Error        string              `json:"error"`
	Detail       string              `json:"detail"`
}

// messages decodes every text frame written so far.
func (c *fakeConn) messages(t *testing.T) []outMsg {
	t.Helper()
	var out []outMsg
	for _, f := range c.snapshot() {
		if f.binary {
			continue
		}
		var m outMsg
		if err := json.Unmarshal(f.data, &m); err != nil {
			t.Fatalf("outbound text frame is not JSON: %v: %s", err, f.data)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range c.messages(t) {
		out = append(out, m.Type)
	}
	return out
}

func ofType(msgs []outMsg, typ string) []outMsg {
	var out []outMsg
	for _, m := range msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

type speechRun struct {
	payload string
	format  string
}

// speech groups binary frames into runs terminated by tts_done. Because the
// test synthesizer speaks the request text as bytes, each payload equals the
// text that was spoken.
func (c *fakeConn) speech(t *testing.T) []speechRun {
	t.Helper()
	var runs []speechRun
	var cur []byte
	for _, f := range c.snapshot() {
		if f.binary {
			cur = append(cur, f.data...)
			continue
		}
		var m outMsg
		if err := json.Unmarshal(f.data, &m); err != nil {
			t.Fatalf("outbound text frame is not JSON: %v", err)
		}
		if m.Type == TypeTTSDone {
			runs = append(runs, speechRun{payload: string(cur), format: m.Format})
			cur = nil
		}
	}
	if len(cur) > 0 {
		t.Errorf("%d binary bytes not terminated by tts_done", len(cur))
	}
	return runs
}

// ── fake interviewer ─────────────────────────────────────────────────────────

type fakeInterviewer struct {
	mu            sync.Mutex
	personaCalls  int
	greetingCalls int
	questionTurns []int
	evaluateCalls int
	evaluatedWith []session.Utterance

	personaFunc  func() string
	evaluateHook func()
	evaluation   *session.Evaluation
}

var _ Interviewer = (*fakeInterviewer)(nil)

func (f *fakeInterviewer) Persona(_ context.Context, cfg session.Config) string {
	f.mu.Lock()
	f.personaCalls++
	fn := f.personaFunc
	f.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return "Persona for " + cfg.Role
}

func (f *fakeInterviewer) Greeting(_ context.Context, cfg session.Config, _ string) string {
	f.mu.Lock()
	f.greetingCalls++
	f.mu.Unlock()
	return "Welcome " + cfg.CandidateName
}

func (f *fakeInterviewer) NextQuestion(_ context.Context, _ session.Config, _ string, _ []session.Utterance, turn int) string {
	f.mu.Lock()
	f.questionTurns = append(f.questionTurns, turn)
	f.mu.Unlock()
	return fmt.Sprintf("Question %d", turn)
}

func (f *fakeInterviewer) Evaluate(_ context.Context, _ session.Config, transcript []session.Utterance) session.Evaluation {
	f.mu.Lock()
	f.evaluateCalls++
	f.evaluatedWith = transcript
	hook := f.evaluateHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evaluation != nil {
		return *f.evaluation
	}
	r := session.Rubric{
		Communication:  7,
		TechnicalDepth: 6,
		ProblemSolving: 8,
		Clarity:        5,
		Confidence:     4,
		Tags:           []string{"structured"},
		Notes:          "solid",
		Total:          30,
	}
	return session.Evaluation{Rubric: r, SummaryText: "Thanks for your time", OverallScore: r.Total}
}

func (f *fakeInterviewer) evaluations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evaluateCalls
}

func (f *fakeInterviewer) turns() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.questionTurns...)
}

// ── harness ──────────────────────────────────────────────────────────────────

type harness struct {
	d       *Dispatcher
	conn    *fakeConn
	reg     *session.Registry
	iv      *fakeInterviewer
	stt     *sttmock.Provider
	tts     *ttsmock.Provider
	metrics *sdkmetric.ManualReader
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// newHarness builds a dispatcher whose synthesizer speaks text as raw bytes
// and whose transcriber echoes the recorded audio as text.
func newHarness(t *testing.T, reg *session.Registry, mutate ...func(*Config)) *harness {
	t.Helper()
	if reg == nil {
		reg = session.NewRegistry()
	}
	h := &harness{
		conn: &fakeConn{},
		reg:  reg,
		iv:   &fakeInterviewer{},
		stt: &sttmock.Provider{
			TranscribeFunc: func(_ context.Context, req stt.Request) (*stt.Result, error) {
				return &stt.Result{Text: string(req.Audio)}, nil
			},
		},
		tts: &ttsmock.Provider{
			SynthesizeFunc: func(_ context.Context, req tts.Request) (*tts.Result, error) {
				return &tts.Result{Audio: []byte(req.Text), Format: audio.FormatMP3}, nil
			},
		},
	}
	var met *observe.Metrics
	met, h.metrics = testMetrics(t)
	cfg := Config{
		Registry:    reg,
		Interviewer: h.iv,
		STT:         h.stt,
		TTS:         h.tts,
		Defaults:    session.BuiltinDefaults(),
		FrameSize:   4,
		Metrics:     met,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h.d = NewDispatcher(cfg, h.conn, nil)
	t.Cleanup(func() { h.d.Close(context.Background()) })
	return h
}

func (h *harness) send(t *testing.T, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	h.d.Handle(context.Background(), Frame{Data: data})
}

func (h *harness) sendRaw(raw string) {
	h.d.Handle(context.Background(), Frame{Data: []byte(raw)})
}

func (h *harness) start(t *testing.T, fields map[string]any) {
	t.Helper()
	msg := map[string]any{"type": TypeStart}
	for k, v := range fields {
		msg[k] = v
	}
	h.send(t, msg)
}

// answer sends one full answer cycle made of the given binary chunks.
func (h *harness) answer(chunks ...string) {
	h.sendRaw(`{"type":"answer_audio_start","format":"webm"}`)
	for _, c := range chunks {
		h.d.Handle(context.Background(), Frame{Binary: true, Data: []byte(c)})
	}
	h.sendRaw(`{"type":"answer_audio_end"}`)
}

// assertPrefixChain checks that every transcript_update extends the previous one.
func assertPrefixChain(t *testing.T, msgs []outMsg) {
	t.Helper()
	var prev []session.Utterance
	for i, m := range ofType(msgs, TypeTranscriptUpdate) {
		if len(m.Transcript) <= len(prev) {
			t.Fatalf("transcript_update %d has %d entries, previous had %d", i, len(m.Transcript), len(prev))
		}
		for j := range prev {
			if m.Transcript[j] != prev[j] {
				t.Fatalf("transcript_update %d rewrote entry %d: %+v -> %+v", i, j, prev[j], m.Transcript[j])
			}
		}
		prev = m.Transcript
	}
}

var errBoom = errors.New("boom")
