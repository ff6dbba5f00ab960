package interview

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mockvox/internal/session"
	"github.com/MrWong99/mockvox/pkg/provider/llm"
)

const (
	defaultTemperature       = 0.7
	defaultRubricTemperature = 0.2
	defaultMaxTokens         = 512
)

// errEmptyCompletion is logged when the model answers with only whitespace.
var errEmptyCompletion = errors.New("empty completion")

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithFallbackPersona overrides [DefaultFallbackPersona].
func WithFallbackPersona(text string) Option {
	return func(e *Engine) {
		if strings.TrimSpace(text) != "" {
			e.fallbackPersona = text
		}
	}
}

// WithTemperature sets the sampling temperature for spoken output (persona,
// greeting, questions, summary). Default: 0.7.
func WithTemperature(t float64) Option {
	return func(e *Engine) {
		e.temperature = t
	}
}

// WithLogger sets the logger used to report upstream failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// Engine produces the interviewer's words. It is safe for concurrent use.
type Engine struct {
	llm             llm.Provider
	fallbackPersona string
	temperature     float64
	logger          *slog.Logger
}

// NewEngine returns an [Engine] backed by provider.
func NewEngine(provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		llm:             provider,
		fallbackPersona: DefaultFallbackPersona,
		temperature:     defaultTemperature,
		logger:          slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// FallbackPersona returns the persona used when generation fails.
func (e *Engine) FallbackPersona() string { return e.fallbackPersona }

// Persona generates the interviewer style directive for cfg. On failure the
// fallback persona is returned.
func (e *Engine) Persona(ctx context.Context, cfg session.Config) string {
	text, err := e.complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildPersonaPrompt(cfg),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Write the persona now."}},
		Temperature:  e.temperature,
		MaxTokens:    defaultMaxTokens,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "persona generation failed, using fallback", "collaborator", "llm", "err", err)
		return e.fallbackPersona
	}
	return text
}

// Greeting generates the opening line. On failure a template greeting is
// returned.
func (e *Engine) Greeting(ctx context.Context, cfg session.Config, persona string) string {
	text, err := e.complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildGreetingPrompt(cfg, persona),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Begin the interview."}},
		Temperature:  e.temperature,
		MaxTokens:    defaultMaxTokens,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "greeting generation failed, using fallback", "collaborator", "llm", "err", err)
		return fallbackGreeting(cfg)
	}
	return text
}

// NextQuestion generates follow-up number turn (1-based) from the transcript.
// On failure a generic question is returned.
func (e *Engine) NextQuestion(ctx context.Context, cfg session.Config, persona string, transcript []session.Utterance, turn int) string {
	text, err := e.complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildQuestionPrompt(cfg, persona, turn),
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "Transcript so far:\n" + formatTranscript(transcript),
		}},
		Temperature: e.temperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "question generation failed, using fallback", "collaborator", "llm", "turn", turn, "err", err)
		return fallbackQuestion(turn)
	}
	return text
}

// Evaluate scores the transcript. The rubric and the spoken summary are
// requested concurrently and joined before returning. Evaluate never fails:
// an unusable rubric defaults per axis and a failed summary falls back to a
// fixed closing line. OverallScore always equals Rubric.Total.
func (e *Engine) Evaluate(ctx context.Context, cfg session.Config, transcript []session.Utterance) session.Evaluation {
	var (
		rubric  session.Rubric
		summary string
		g       errgroup.Group
	)
	g.Go(func() error {
		rubric = e.rubric(ctx, cfg, transcript)
		return nil
	})
	g.Go(func() error {
		summary = e.summary(ctx, cfg, transcript)
		return nil
	})
	_ = g.Wait()

	return session.Evaluation{
		Rubric:       rubric,
		SummaryText:  summary,
		OverallScore: rubric.Total,
	}
}

// FallbackEvaluation is the evaluation used when no collaborator output is
// available: the default rubric and the fixed closing line.
func FallbackEvaluation(cfg session.Config) session.Evaluation {
	r := DefaultRubric()
	return session.Evaluation{
		Rubric:       r,
		SummaryText:  fallbackSummary(cfg),
		OverallScore: r.Total,
	}
}

func (e *Engine) rubric(ctx context.Context, cfg session.Config, transcript []session.Utterance) session.Rubric {
	text, err := e.complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildRubricPrompt(cfg),
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "Transcript:\n" + formatTranscript(transcript),
		}},
		Temperature: defaultRubricTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "rubric generation failed, using defaults", "collaborator", "llm", "err", err)
		return DefaultRubric()
	}
	r, parsed, err := ParseRubric(text)
	if err != nil || parsed < session.AxisCount {
		e.logger.WarnContext(ctx, "rubric output incomplete, defaulting missing axes",
			"collaborator", "llm", "parsed_axes", parsed, "err", err)
	}
	return r
}

func (e *Engine) summary(ctx context.Context, cfg session.Config, transcript []session.Utterance) string {
	text, err := e.complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSummaryPrompt(cfg),
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: "Transcript:\n" + formatTranscript(transcript),
		}},
		Temperature: e.temperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "summary generation failed, using fallback", "collaborator", "llm", "err", err)
		return fallbackSummary(cfg)
	}
	return text
}

// complete runs one completion and returns the trimmed text. A nil response
// or blank content is reported as an error.
func (e *Engine) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if e.llm == nil {
		return "", errors.New("no llm provider configured")
	}
	resp, err := e.llm.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errEmptyCompletion
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}
