// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to verify that the caller submits the expected recordings and to
// feed controlled transcripts without a live STT backend.
//
// Example:
//
//	p := &mock.Provider{Result: &stt.Result{Text: "I would use a queue."}}
//	res, _ := p.Transcribe(ctx, stt.Request{Audio: recording})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mockvox/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe. Audio is a private copy.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// TranscribeFunc, if non-nil, computes the result for each call. It runs
	// without holding the mock's lock. When set, Result and Err are ignored.
	TranscribeFunc func(ctx context.Context, req stt.Request) (*stt.Result, error)

	// Result is returned by Transcribe. May be nil.
	Result *stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err, or the result of
// TranscribeFunc.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	recorded := req
	recorded.Audio = append([]byte(nil), req.Audio...)

	p.mu.Lock()
	p.calls = append(p.calls, TranscribeCall{Ctx: ctx, Req: recorded})
	fn, res, err := p.TranscribeFunc, p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

// Calls returns a copy of all recorded Transcribe invocations. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Transcribe invocations. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
