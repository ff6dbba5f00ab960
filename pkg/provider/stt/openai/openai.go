// Package openai provides an STT provider backed by the OpenAI audio
// transcription endpoint (whisper-1, gpt-4o-transcribe, or any compatible
// server).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/mockvox/pkg/audio"
	"github.com/MrWong99/mockvox/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel overrides the transcription model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = oai.AudioModel(model)
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// Provider implements stt.Provider using the OpenAI transcription API.
type Provider struct {
	client  oai.Client
	model   oai.AudioModel
	baseURL string
}

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// New creates a Provider. apiKey must be non-empty. SDK retries are disabled.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	p := &Provider{model: defaultModel}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("openai stt: %w", stt.ErrEmptyAudio)
	}

	format := req.Format
	if format == "" {
		format = audio.DefaultInputFormat
	}
	data := req.Audio
	if format == audio.FormatPCM16 {
		data = audio.EncodeWAV(data, 16000, 1)
		format = audio.FormatWAV
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(data), "answer."+format.Extension(), format.MIMEType()),
		Model: p.model,
	}
	if lang := primarySubtag(req.Language); lang != "" {
		params.Language = oai.String(lang)
	}

	tr, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return &stt.Result{Text: strings.TrimSpace(tr.Text), Language: req.Language}, nil
}

// primarySubtag returns the ISO-639-1 part of a BCP-47 tag.
func primarySubtag(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(strings.TrimSpace(tag))
}
