package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mockvox/internal/observe"
	"github.com/MrWong99/mockvox/pkg/provider/llm"
	"github.com/MrWong99/mockvox/pkg/provider/stt"
	"github.com/MrWong99/mockvox/pkg/provider/tts"
)

// GuardConfig configures a guarded provider.
type GuardConfig struct {
	// Provider is the backend name (e.g., "openai") used in metrics and logs.
	Provider string

	// Breaker configures the circuit breaker. Its Name defaults to
	// "<kind>/<provider>".
	Breaker CircuitBreakerConfig

	// Metrics records call metrics. Nil selects observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// Call outcomes, used as the "status" metric attribute and span attribute.
const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeRejected = "rejected"
)

// guard runs single calls through a breaker and records their outcome.
type guard struct {
	provider string
	kind     string
	breaker  *CircuitBreaker
	metrics  *observe.Metrics
	now      func() time.Time
}

func newGuard(kind string, cfg GuardConfig) guard {
	bc := cfg.Breaker
	if bc.Name == "" {
		bc.Name = kind + "/" + cfg.Provider
	}
	cb := NewCircuitBreaker(bc)
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return guard{provider: cfg.Provider, kind: kind, breaker: cb, metrics: m, now: cb.now}
}

// do runs fn once under the breaker inside a span tagged with the
// collaborator kind, provider name and outcome.
func (g *guard) do(ctx context.Context, fn func(context.Context) error) error {
	ctx, span := observe.StartProviderSpan(ctx, g.kind, g.provider)
	start := g.now()
	err := g.breaker.Execute(func() error { return fn(ctx) })
	if errors.Is(err, ErrCircuitOpen) {
		err = fmt.Errorf("resilience: %s: %w", g.breaker.Name(), err)
		g.finish(ctx, span, outcomeRejected, err)
		return err
	}

	g.metrics.RecordProviderDuration(ctx, g.provider, g.kind, g.now().Sub(start))
	if err != nil {
		g.metrics.RecordProviderError(ctx, g.provider, g.kind)
		g.finish(ctx, span, outcomeError, err)
		return err
	}
	g.finish(ctx, span, outcomeOK, nil)
	return nil
}

func (g *guard) finish(ctx context.Context, span trace.Span, outcome string, err error) {
	g.metrics.RecordProviderRequest(ctx, g.provider, g.kind, outcome)
	span.SetAttributes(observe.AttrProviderState.String(outcome))
	observe.EndSpan(span, err)
}

// ── LLM ──────────────────────────────────────────────────────────────────────

// LLM guards an [llm.Provider].
type LLM struct {
	next llm.Provider
	g    guard
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM wraps next.
func NewLLM(next llm.Provider, cfg GuardConfig) *LLM {
	return &LLM{next: next, g: newGuard(observe.KindLLM, cfg)}
}

// Complete forwards one request to the wrapped provider unless the breaker
// is open.
func (p *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := p.g.do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = p.next.Complete(ctx, req)
		return err
	})
	return resp, err
}

// Breaker returns the circuit breaker guarding the provider.
func (p *LLM) Breaker() *CircuitBreaker { return p.g.breaker }

// ── STT ──────────────────────────────────────────────────────────────────────

// STT guards an [stt.Provider].
type STT struct {
	next stt.Provider
	g    guard
}

var _ stt.Provider = (*STT)(nil)

// NewSTT wraps next.
func NewSTT(next stt.Provider, cfg GuardConfig) *STT {
	return &STT{next: next, g: newGuard(observe.KindSTT, cfg)}
}

// Transcribe forwards one request to the wrapped provider unless the breaker
// is open.
func (p *STT) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	var res *stt.Result
	err := p.g.do(ctx, func(ctx context.Context) error {
		var err error
		res, err = p.next.Transcribe(ctx, req)
		return err
	})
	return res, err
}

// Breaker returns the circuit breaker guarding the provider.
func (p *STT) Breaker() *CircuitBreaker { return p.g.breaker }

// ── TTS ──────────────────────────────────────────────────────────────────────

// TTS guards a [tts.Provider].
type TTS struct {
	next tts.Provider
	g    guard
}

var _ tts.Provider = (*TTS)(nil)

// NewTTS wraps next.
func NewTTS(next tts.Provider, cfg GuardConfig) *TTS {
	return &TTS{next: next, g: newGuard(observe.KindTTS, cfg)}
}

// Synthesize forwards one request to the wrapped provider unless the breaker
// is open.
func (p *TTS) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	var res *tts.Result
	err := p.g.do(ctx, func(ctx context.Context) error {
		var err error
		res, err = p.next.Synthesize(ctx, req)
		return err
	})
	return res, err
}

// Breaker returns the circuit breaker guarding the provider.
func (p *TTS) Breaker() *CircuitBreaker { return p.g.breaker }
