package refine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"listingfix/internal/domain"
	"listingfix/internal/transport"
	"listingfix/internal/verify"
)

const (
	// MaxAttempts caps generation calls per run.
	MaxAttempts = 3
	// DefaultRetryPause separates a rejected verification from the next
	// generation call, on top of any transport backoff.
	DefaultRetryPause = 2 * time.Second
)

// Status is the state of one attempt.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusVerifying  Status = "verifying"
	StatusPassed     Status = "passed"
	StatusFailed     Status = "failed"
)

// State is the orchestrator state reported to observers.
type State string

const (
	StateGenerating State = "generating"
	StateVerifying  State = "verifying"
	StateRetrying   State = "retrying"
	StatePassed     State = "passed"
	StateExhausted  State = "exhausted"
	StateAborted    State = "aborted"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomePassed    Outcome = "passed"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeAborted   Outcome = "aborted"
	// OutcomeSkipped is recorded by Batch for assets whose compliance
	// analysis already passed. No oracle call is made for them.
	OutcomeSkipped Outcome = "skipped"
)

// Attempt is one generate/verify iteration. Unverified marks a candidate
// accepted because verification could not be reached.
type Attempt struct {
	Number       int
	Candidate    domain.Image
	Status       Status
	Verification *verify.Result
	Unverified   bool
}

func (a Attempt) clone() Attempt {
	a.Verification = a.Verification.Clone()
	return a
}

// Snapshot is a read-only copy of a run handed to observers.
type Snapshot struct {
	AssetID     string
	State       State
	Attempt     int
	MaxAttempts int
	Critique    string
	Attempts    []Attempt
	Outcome     Outcome
}

// Observer receives a snapshot after every state change of a run.
type Observer interface {
	Observe(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Observe(s Snapshot) { f(s) }

// LogObserver writes every snapshot as a structured log line.
func LogObserver(logger *zerolog.Logger) Observer {
	return ObserverFunc(func(s Snapshot) {
		event := logger.Info()
		if s.State == StateAborted || s.State == StateExhausted {
			event = logger.Warn()
		}
		event = event.
			Str("asset_id", s.AssetID).
			Str("state", string(s.State)).
			Int("attempt", s.Attempt).
			Int("max_attempts", s.MaxAttempts)
		if n := len(s.Attempts); n > 0 && s.Attempts[n-1].Verification != nil {
			v := s.Attempts[n-1].Verification
			event = event.Float64("score", v.Score).Bool("subject_match", v.SubjectMatch)
		}
		event.Msg("refine: state change")
	})
}

// Result is the immutable outcome of a run. Candidate is set for passed and
// exhausted runs; Err is set for aborted runs.
type Result struct {
	AssetID      string
	Outcome      Outcome
	Candidate    domain.Image
	Score        float64
	Verification *verify.Result
	Unverified   bool
	Attempts     []Attempt
	Err          error
}

// Passed reports whether the run accepted a candidate.
func (r Result) Passed() bool {
	return r.Outcome == OutcomePassed
}

// ErrorType returns the classification of an aborted run.
func (r Result) ErrorType() transport.ErrorType {
	if r.Err == nil {
		return ""
	}
	return transport.TypeOf(r.Err)
}

// ErrorMessage returns the oracle's own message for aborted runs.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	if ce, ok := transport.AsClassified(r.Err); ok && ce.Message != "" {
		return ce.Message
	}
	return r.Err.Error()
}

// Run is the working state of one refinement. It is owned by a single Fix
// call and never shared.
type Run struct {
	asset     *domain.Asset
	state     State
	attempt   int
	critique  string
	prior     domain.Image
	attempts  []Attempt
	observers []Observer
}

func newRun(asset *domain.Asset, observers []Observer) *Run {
	return &Run{asset: asset, state: StateGenerating, observers: observers}
}

func (r *Run) current() *Attempt {
	return &r.attempts[len(r.attempts)-1]
}

func (r *Run) begin(number int) {
	r.attempt = number
	r.attempts = append(r.attempts, Attempt{Number: number, Status: StatusGenerating})
	r.transition(StateGenerating)
}

func (r *Run) generated(candidate domain.Image) {
	a := r.current()
	a.Candidate = candidate
	a.Status = StatusVerifying
	r.prior = candidate
	r.transition(StateVerifying)
}

func (r *Run) transition(state State) {
	r.state = state
	if len(r.observers) == 0 {
		return
	}
	snap := r.snapshot()
	for _, o := range r.observers {
		o.Observe(snap)
	}
}

func (r *Run) snapshot() Snapshot {
	attempts := make([]Attempt, len(r.attempts))
	for i, a := range r.attempts {
		attempts[i] = a.clone()
	}
	snap := Snapshot{
		AssetID:     r.asset.ID,
		State:       r.state,
		Attempt:     r.attempt,
		MaxAttempts: MaxAttempts,
		Critique:    r.critique,
		Attempts:    attempts,
	}
	switch r.state {
	case StatePassed:
		snap.Outcome = OutcomePassed
	case StateExhausted:
		snap.Outcome = OutcomeExhausted
	case StateAborted:
		snap.Outcome = OutcomeAborted
	}
	return snap
}

func (r *Run) finish(outcome Outcome, err error) Result {
	switch outcome {
	case OutcomePassed:
		r.transition(StatePassed)
	case OutcomeExhausted:
		r.transition(StateExhausted)
	default:
		r.transition(StateAborted)
	}
	res := Result{AssetID: r.asset.ID, Outcome: outcome, Err: err}
	res.Attempts = make([]Attempt, len(r.attempts))
	for i, a := range r.attempts {
		res.Attempts[i] = a.clone()
	}
	if outcome == OutcomeAborted || len(r.attempts) == 0 {
		return res
	}
	last := res.Attempts[len(res.Attempts)-1]
	res.Candidate = last.Candidate
	res.Unverified = last.Unverified
	res.Verification = last.Verification
	if last.Verification != nil {
		res.Score = last.Verification.Score
	}
	return res
}

func abortError(err error) error {
	if err == nil {
		return errors.New("refine: aborted")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := transport.AsClassified(err); ok {
		return err
	}
	return transport.NewClassifiedError(transport.ErrorTypeUnknown, 0, err.Error(), err)
}
