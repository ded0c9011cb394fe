// Package poller waits for an appraisal result by asking its source
// repeatedly with exponential backoff until a terminal state is reached.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/models"
	"github.com/curio-market/backend/internal/services"
	"github.com/google/uuid"
)

// State is a poll lifecycle state
type State string

const (
	StateLoading     State = "loading"
	StateNotFoundYet State = "not_found_yet"
	StateFound       State = "found"
	StateError       State = "error"
	StateNotFound    State = "not_found"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether no further transitions follow s
func (s State) Terminal() bool {
	switch s {
	case StateFound, StateError, StateNotFound, StateFailed, StateCancelled:
		return true
	}
	return false
}

// ErrPollExhausted ends a poll that used up its attempts without a result
var ErrPollExhausted = errors.New("poller: attempts exhausted before a result was stored")

var errNotYet = errors.New("result not stored yet")

// Source answers result lookups. services.AppraisalService and client.Client
// both satisfy it.
type Source interface {
	GetResult(ctx context.Context, requestID uuid.UUID) (*models.AppraisalResult, error)
	GetAppraisal(ctx context.Context, requestID uuid.UUID) (*models.AppraisalView, error)
}

// Config controls the wait between attempts. Multiplier 1 gives a fixed interval.
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
}

// DefaultConfig polls every 3s, backing off to 30s, for at most 40 attempts
func DefaultConfig() Config {
	return Config{
		InitialInterval: 3 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      1.5,
		MaxAttempts:     40,
	}
}

// FromConfig converts the environment-driven settings
func FromConfig(cfg config.PollerConfig) Config {
	return Config{
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		MaxAttempts:     cfg.MaxAttempts,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// Transition is reported to observers on every state change
type Transition struct {
	RequestID uuid.UUID
	From      State
	To        State
	Attempt   int
	Err       error
}

// Observer receives transitions synchronously on the polling goroutine
type Observer func(Transition)

// Outcome is the terminal result of a poll
type Outcome struct {
	State    State
	Result   *models.AppraisalResult
	View     *models.AppraisalView // display join; nil if the secondary fetch failed
	Err      error
	Attempts int
}

// Option configures a Poller
type Option func(*Poller)

// WithObserver adds a transition observer
func WithObserver(o Observer) Option {
	return func(p *Poller) {
		p.observers = append(p.observers, o)
	}
}

// Poller waits for results from a Source
type Poller struct {
	source    Source
	cfg       Config
	observers []Observer
	log       logger.Component
}

// New creates a Poller
func New(source Source, cfg Config, opts ...Option) *Poller {
	p := &Poller{
		source: source,
		cfg:    cfg.withDefaults(),
		log:    logger.Named("Poller"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type run struct {
	p        *Poller
	id       uuid.UUID
	state    State
	attempts int
}

func (r *run) move(to State, err error) {
	from := r.state
	r.state = to
	for _, o := range r.p.observers {
		o(Transition{RequestID: r.id, From: from, To: to, Attempt: r.attempts, Err: err})
	}
}

func (r *run) finish(out Outcome) Outcome {
	out.Attempts = r.attempts
	r.move(out.State, out.Err)
	return out
}

// Poll blocks until the request reaches a terminal state or ctx is done
func (p *Poller) Poll(ctx context.Context, requestID uuid.UUID) Outcome {
	r := &run{p: p, id: requestID}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.cfg.InitialInterval,
		RandomizationFactor: 0,
		Multiplier:          p.cfg.Multiplier,
		MaxInterval:         p.cfg.MaxInterval,
	}

	attempt := func() (*models.AppraisalResult, error) {
		r.attempts++
		r.move(StateLoading, nil)

		result, err := p.source.GetResult(ctx, requestID)
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, services.ErrResultPending):
			r.move(StateNotFoundYet, nil)
			return nil, errNotYet
		default:
			return nil, backoff.Permanent(err)
		}
	}

	result, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)

	switch {
	case err == nil:
		return r.finish(Outcome{State: StateFound, Result: result, View: p.display(ctx, requestID)})
	case ctx.Err() != nil:
		return r.finish(Outcome{State: StateCancelled, Err: ctx.Err()})
	case errors.Is(err, errNotYet):
		return r.finish(Outcome{
			State: StateError,
			Err:   fmt.Errorf("%w after %d attempts", ErrPollExhausted, r.attempts),
		})
	case errors.Is(err, services.ErrRequestNotFound):
		return r.finish(Outcome{State: StateNotFound, Err: err})
	case errors.Is(err, services.ErrAppraisalFailed):
		return r.finish(Outcome{State: StateFailed, Err: err})
	default:
		return r.finish(Outcome{State: StateError, Err: err})
	}
}

func (p *Poller) display(ctx context.Context, requestID uuid.UUID) *models.AppraisalView {
	view, err := p.source.GetAppraisal(ctx, requestID)
	if err != nil {
		p.log.Warn("result for %s found but display fields unavailable: %v", requestID, err)
		return nil
	}
	return view
}

// Task is a poll running in the background
type Task struct {
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	outcome Outcome
}

// Start runs Poll on its own goroutine
func (p *Poller) Start(ctx context.Context, requestID uuid.UUID) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer cancel()
		t.outcome = p.Poll(ctx, requestID)
	}()

	return t
}

// Cancel stops the poll; Outcome then reports StateCancelled unless it had already finished
func (t *Task) Cancel() {
	t.once.Do(t.cancel)
}

// Done is closed when the poll has finished
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Outcome waits for the poll to finish and returns its result
func (t *Task) Outcome() Outcome {
	<-t.done
	return t.outcome
}
