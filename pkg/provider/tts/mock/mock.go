// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: &tts.Result{Audio: clip, Format: audio.FormatMP3}}
//	res, _ := p.Synthesize(ctx, tts.Request{Text: "Welcome.", Voice: "alloy"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mockvox/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the Request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeFunc, if non-nil, computes the result for each call. It runs
	// without holding the mock's lock. When set, Result and Err are ignored.
	SynthesizeFunc func(ctx context.Context, req tts.Request) (*tts.Result, error)

	// Result is returned by Synthesize. May be nil.
	Result *tts.Result

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	calls []SynthesizeCall
}

// Synthesize records the call and returns Result, Err, or the result of
// SynthesizeFunc.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Ctx: ctx, Req: req})
	fn, res, err := p.SynthesizeFunc, p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

// Calls returns a copy of all recorded Synthesize invocations. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Texts returns the Text of every recorded call in order. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.Req.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
