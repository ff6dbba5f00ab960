package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by [Registry.Get] for an unknown session id.
var ErrNotFound = errors.New("session: not found")

const defaultRetention = 10 * time.Minute

// Option configures a [Registry].
type Option func(*Registry)

// WithRetention sets how long a finished record stays addressable after its
// connection has closed. Defaults to 10 minutes.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) {
		r.retention = d
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithIDGenerator overrides the session id generator. Intended for tests.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		r.newID = gen
	}
}

// WithLogger sets the logger used by the janitor.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// Registry is a concurrency-safe map from session id to [Record].
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record

	retention time.Duration
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records:   make(map[string]*Record),
		retention: defaultRetention,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create allocates a fresh id, builds a record for cfg, and registers it.
func (r *Registry) Create(cfg Config) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	for _, taken := r.records[id]; taken; _, taken = r.records[id] {
		id = r.newID()
	}
	rec := NewRecord(id, cfg, r.now())
	r.records[id] = rec
	return rec
}

// Get returns the record for id or [ErrNotFound].
func (r *Registry) Get(id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Put registers rec under rec.ID, replacing any record with the same id.
func (r *Registry) Put(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
}

// Delete removes id. Unknown ids are ignored.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
}

// Release is called when the connection owning id closes. An unfinished
// record is evicted immediately. A finished record stays until the janitor
// sweeps it after the retention window. It reports whether the record was
// evicted.
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	if rec.Done() {
		return false
	}
	delete(r.records, id)
	return true
}

// Len returns the number of registered records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Sweep evicts finished records whose retention window has passed and
// returns how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, rec := range r.records {
		doneAt := rec.DoneAt()
		if doneAt.IsZero() || doneAt.After(cutoff) {
			continue
		}
		delete(r.records, id)
		removed++
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("session janitor evicted records", "count", n, "remaining", r.Len())
			}
		}
	}
}
