package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chartforge/internal/artifact"
)

// Repairer is the AI-assisted repair collaborator. It receives the violated
// rule list as repair context and returns a replacement artifact.
type Repairer interface {
	Repair(ctx context.Context, raw *artifact.Raw, violated []RuleID) (*artifact.Raw, error)
}

// loopState is the explicit per-artifact state machine:
//
//	Generated -> Validated{accepted} | Invalid -> Repairing ->
//	Validated{accepted} | Invalid -> FallbackSaved
type loopState int

const (
	stateGenerated loopState = iota
	stateInvalid
	stateRepairing
	stateAccepted
	stateFallback
)

// Loop runs validate-then-repair with a bounded attempt budget. This budget
// is the content-quality axis; transport retries around collaborator calls
// are a separate wrapper and must not be conflated with it.
type Loop struct {
	validator   *Validator
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithMaxAttempts sets the number of repair passes after the initial
// validation. The default is a single retry.
func WithMaxAttempts(n int) LoopOption {
	return func(l *Loop) {
		if n >= 0 {
			l.maxAttempts = n
		}
	}
}

// WithLoopLogger sets the logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLoop constructs a validation loop.
func NewLoop(validator *Validator, opts ...LoopOption) (*Loop, error) {
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	loop := &Loop{
		validator:   validator,
		maxAttempts: 1,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(loop)
	}
	return loop, nil
}

// Resolve drives one artifact from Generated to a terminal state. It never
// returns an error: callers always get a finalized artifact plus the verdict
// of its last validation. An exhausted budget yields a fallback-tagged
// artifact so computed data is never silently discarded.
func (l *Loop) Resolve(ctx context.Context, gen *artifact.Generated, want Expectation, repairer Repairer) (*artifact.Final, Verdict) {
	current := gen.Raw
	attempt := gen.Attempt
	if attempt == 0 {
		attempt = 1
	}

	state := stateGenerated
	verdict := Verdict{}
	repairsLeft := l.maxAttempts

	for {
		switch state {
		case stateGenerated:
			verdict = l.validator.Validate(&artifact.Generated{Raw: current, GeneratedAt: gen.GeneratedAt, Attempt: attempt}, want)
			if verdict.Accepted {
				state = stateAccepted
				continue
			}
			state = stateInvalid

		case stateInvalid:
			if repairsLeft == 0 || repairer == nil {
				state = stateFallback
				continue
			}
			state = stateRepairing

		case stateRepairing:
			repairsLeft--
			repaired, err := repairer.Repair(ctx, &current, verdict.Violated)
			if err != nil {
				// A failed repair exhausts nothing else; the artifact is
				// saved with the fallback marker rather than dropped.
				l.logger.Warn("repair pass failed", "kind", gen.Kind, "error", err)
				state = stateFallback
				continue
			}
			current = *repaired
			attempt++
			state = stateGenerated

		case stateAccepted:
			return &artifact.Final{
				Raw:         current,
				GeneratedAt: gen.GeneratedAt,
				Attempt:     attempt,
				Fallback:    false,
			}, verdict

		case stateFallback:
			l.logger.Warn("repair budget exhausted, saving with fallback marker",
				"kind", gen.Kind, "violated", RuleStrings(verdict.Violated))
			return &artifact.Final{
				Raw:         current,
				GeneratedAt: gen.GeneratedAt,
				Attempt:     attempt,
				Fallback:    true,
			}, verdict
		}
	}
}
