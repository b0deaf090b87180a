package generate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"chartforge/internal/artifact"
	"chartforge/internal/validation"
)

// RetryConfig bounds the transport-level retry around collaborator calls.
// This axis covers transient network failures only; the validation loop's
// repair budget is a separate, content-quality axis.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig retries twice with short exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Retrying wraps a Generator and a Repairer with bounded exponential backoff.
type Retrying struct {
	generator Generator
	repairer  Repairer
	cfg       RetryConfig
	logger    *slog.Logger
}

// RetryingOption configures a Retrying wrapper.
type RetryingOption func(*Retrying)

// WithRetryLogger sets the logger.
func WithRetryLogger(logger *slog.Logger) RetryingOption {
	return func(r *Retrying) {
		r.logger = logger
	}
}

// WithRetryConfig overrides the retry bounds.
func WithRetryConfig(cfg RetryConfig) RetryingOption {
	return func(r *Retrying) {
		r.cfg = cfg
	}
}

// NewRetrying wraps the collaborators. Either may be nil when the caller
// only needs one side.
func NewRetrying(generator Generator, repairer Repairer, opts ...RetryingOption) *Retrying {
	r := &Retrying{
		generator: generator,
		repairer:  repairer,
		cfg:       DefaultRetryConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrying) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	return backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx)
}

func (r *Retrying) Generate(ctx context.Context, kind artifact.Kind, req Request) (*artifact.Raw, error) {
	var raw *artifact.Raw
	operation := func() error {
		var err error
		raw, err = r.generator.Generate(ctx, kind, req)
		if err != nil {
			// Cancellation is not transient; stop immediately.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			r.logger.Warn("generation attempt failed", "kind", kind, "patient", req.PatientKey, "error", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(operation, r.backoff(ctx)); err != nil {
		return nil, wrapErr(err, "generate "+string(kind))
	}
	return raw, nil
}

func (r *Retrying) Repair(ctx context.Context, raw *artifact.Raw, violated []validation.RuleID) (*artifact.Raw, error) {
	var repaired *artifact.Raw
	operation := func() error {
		var err error
		repaired, err = r.repairer.Repair(ctx, raw, violated)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			r.logger.Warn("repair attempt failed", "kind", raw.Kind, "error", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(operation, r.backoff(ctx)); err != nil {
		return nil, wrapErr(err, "repair "+string(raw.Kind))
	}
	return repaired, nil
}
