package session

import (
	"errors"
	"sync"
	"time"
)

// Sentinel errors returned by [Record] transitions.
var (
	// ErrNotActive is returned when an utterance is appended outside the
	// phase that accepts it, including after evaluation has been claimed.
	ErrNotActive = errors.New("session: not accepting this utterance in the current phase")

	// ErrTurnBudget is returned by AppendQuestion when another interviewer
	// turn would exceed MaxTurns-1.
	ErrTurnBudget = errors.New("session: interviewer turn budget exhausted")

	// ErrNotEvaluating is returned by Finish when evaluation was never claimed
	// or the record is already done.
	ErrNotEvaluating = errors.New("session: evaluation not in progress")
)

// Phase is the protocol state of a session.
type Phase string

const (
	PhaseInit           Phase = "init"
	PhaseGreeting       Phase = "greeting"
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseEvaluating     Phase = "evaluating"
	PhaseDone           Phase = "done"
)

// Role identifies who spoke an [Utterance].
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// Utterance is one turn of speech. It is never mutated after it is appended.
type Utterance struct {
	Role Role   `json:"from"`
	Text string `json:"text"`
}

// Record is the state of one interview. The zero value is not usable; create
// records with [NewRecord] or [Registry.Create].
//
// All methods are safe for concurrent use.
type Record struct {
	// ID is the opaque session identifier.
	ID string

	// Config is fixed at creation and must not be modified.
	Config Config

	// CreatedAt is the wall-clock creation time.
	CreatedAt time.Time

	mu             sync.Mutex
	phase          Phase
	transcript     []Utterance
	turnsCompleted int
	persona        string
	personaSet     bool
	evaluation     *Evaluation
	doneAt         time.Time
}

// NewRecord returns a record in [PhaseInit].
func NewRecord(id string, cfg Config, now time.Time) *Record {
	return &Record{
		ID:        id,
		Config:    cfg,
		CreatedAt: now,
		phase:     PhaseInit,
	}
}

// Phase returns the current phase.
func (r *Record) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Done reports whether the evaluation has been stored.
func (r *Record) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase == PhaseDone
}

// TurnsCompleted returns the number of interviewer turns generated after the
// greeting.
func (r *Record) TurnsCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turnsCompleted
}

// Transcript returns a copy of the transcript.
func (r *Record) Transcript() []Utterance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcriptLocked()
}

func (r *Record) transcriptLocked() []Utterance {
	out := make([]Utterance, len(r.transcript))
	copy(out, r.transcript)
	return out
}

// SetPersona stores the persona text. Only the first call has an effect; it
// reports whether this call stored the value.
func (r *Record) SetPersona(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.personaSet {
		return false
	}
	r.persona = text
	r.personaSet = true
	return true
}

// Persona returns the cached persona text.
func (r *Record) Persona() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persona
}

// BeginGreeting moves the record from [PhaseInit] to [PhaseGreeting].
func (r *Record) BeginGreeting() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseInit {
		return ErrNotActive
	}
	r.phase = PhaseGreeting
	return nil
}

// AppendGreeting appends the opening interviewer utterance and moves the
// record to [PhaseAwaitingAnswer]. It returns the transcript after the append.
func (r *Record) AppendGreeting(text string) ([]Utterance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseGreeting {
		return nil, ErrNotActive
	}
	r.transcript = append(r.transcript, Utterance{Role: RoleInterviewer, Text: text})
	r.phase = PhaseAwaitingAnswer
	return r.transcriptLocked(), nil
}

// AppendAnswer appends a candidate utterance. It fails with [ErrNotActive]
// unless the record is awaiting an answer.
func (r *Record) AppendAnswer(text string) ([]Utterance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseAwaitingAnswer {
		return nil, ErrNotActive
	}
	r.transcript = append(r.transcript, Utterance{Role: RoleCandidate, Text: text})
	return r.transcriptLocked(), nil
}

// AppendQuestion appends an interviewer follow-up and increments the turn
// counter. Results of generation work that finishes after evaluation was
// claimed are rejected with [ErrNotActive] and must be dropped by the caller.
func (r *Record) AppendQuestion(text string) ([]Utterance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseAwaitingAnswer {
		return nil, ErrNotActive
	}
	if r.turnsCompleted >= r.Config.MaxTurns-1 {
		return nil, ErrTurnBudget
	}
	r.transcript = append(r.transcript, Utterance{Role: RoleInterviewer, Text: text})
	r.turnsCompleted++
	return r.transcriptLocked(), nil
}

// BeginEvaluation claims the transition into [PhaseEvaluating]. Exactly one
// caller ever receives true; every later call, and any call before the
// greeting started, returns false.
func (r *Record) BeginEvaluation() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case PhaseGreeting, PhaseAwaitingAnswer:
		r.phase = PhaseEvaluating
		return true
	default:
		return false
	}
}

// Finish stores the evaluation, appends the summary as the final interviewer
// utterance, and marks the record done.
func (r *Record) Finish(ev Evaluation, now time.Time) ([]Utterance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseEvaluating {
		return nil, ErrNotEvaluating
	}
	r.transcript = append(r.transcript, Utterance{Role: RoleInterviewer, Text: ev.SummaryText})
	r.evaluation = &ev
	r.phase = PhaseDone
	r.doneAt = now
	return r.transcriptLocked(), nil
}

// Evaluation returns the stored evaluation, if the record is done.
func (r *Record) Evaluation() (Evaluation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.evaluation == nil {
		return Evaluation{}, false
	}
	return *r.evaluation, true
}

// DoneAt returns when the record finished, or the zero time.
func (r *Record) DoneAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doneAt
}

// Snapshot is a read-only copy of a record, shaped for JSON.
type Snapshot struct {
	ID             string      `json:"sessionId"`
	Config         Config      `json:"config"`
	Phase          Phase       `json:"phase"`
	Transcript     []Utterance `json:"transcript"`
	TurnsCompleted int         `json:"turnsCompleted"`
	Done           bool        `json:"done"`
	Persona        string      `json:"persona,omitempty"`
	Evaluation     *Evaluation `json:"evaluation,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	DoneAt         *time.Time  `json:"doneAt,omitempty"`
}

// Snapshot returns a consistent copy of the record.
func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		ID:             r.ID,
		Config:         r.Config,
		Phase:          r.phase,
		Transcript:     r.transcriptLocked(),
		TurnsCompleted: r.turnsCompleted,
		Done:           r.phase == PhaseDone,
		Persona:        r.persona,
		CreatedAt:      r.CreatedAt,
	}
	if r.evaluation != nil {
		ev := *r.evaluation
		ev.Rubric.Tags = append([]string(nil), ev.Rubric.Tags...)
		s.Evaluation = &ev
	}
	if !r.doneAt.IsZero() {
		t := r.doneAt
		s.DoneAt = &t
	}
	return s
}
