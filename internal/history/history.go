// Package history keeps the append-only per-patient run log: what was
// requested, what feedback steered it, and how each run ended.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chartforge/pkg/domain"
)

// Entry is one recorded generation run for a patient.
type Entry struct {
	RunID      domain.RunID      `json:"run_id"`
	PatientKey domain.PatientKey `json:"patient_key"`
	Feedback   string            `json:"feedback,omitempty"`
	Outcome    string            `json:"outcome"`
	Artifacts  []string          `json:"artifacts,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// Store persists history entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, key domain.PatientKey) ([]Entry, error)
	DeleteByPatient(ctx context.Context, key domain.PatientKey) error
	DeleteAll(ctx context.Context) error
}

// Service records and serves run history. History is advisory; a failed
// append never fails the run that produced it.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a history service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("history store is required")
	}
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Record appends one run entry, stamping the time if unset.
func (s *Service) Record(ctx context.Context, entry Entry) {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = s.now()
	}
	if err := s.store.Append(ctx, entry); err != nil {
		s.logger.Error("recording run history failed",
			"patient_key", entry.PatientKey, "run_id", entry.RunID, "error", err)
	}
}

// List returns a patient's run history, oldest first.
func (s *Service) List(ctx context.Context, key domain.PatientKey) ([]Entry, error) {
	return s.store.List(ctx, key)
}

// Forget removes a patient's history, for purges.
func (s *Service) Forget(ctx context.Context, key domain.PatientKey) error {
	return s.store.DeleteByPatient(ctx, key)
}

// ForgetAll removes all history.
func (s *Service) ForgetAll(ctx context.Context) error {
	return s.store.DeleteAll(ctx)
}
