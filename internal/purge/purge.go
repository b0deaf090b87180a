// Package purge removes generated state by scope: everything, personas only,
// documents only, or a single patient. Deletions run file store first, then
// index, then registry, so an interrupted purge leaves no dangling claims on
// names whose files are gone.
package purge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chartforge/internal/artifact"
	"chartforge/internal/audit"
	"chartforge/internal/docstore"
	"chartforge/internal/history"
	"chartforge/internal/registry"
	dErrors "chartforge/pkg/domain-errors"
	"chartforge/pkg/domain"
)

// Scope names what a purge removes.
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopePersonas  Scope = "personas"
	ScopeDocuments Scope = "documents"
)

// ParseScope validates an operator-supplied scope string.
func ParseScope(raw string) (Scope, error) {
	switch Scope(raw) {
	case ScopeAll, ScopePersonas, ScopeDocuments:
		return Scope(raw), nil
	}
	return "", dErrors.Newf(dErrors.CodeBadRequest, "unknown purge scope %q", raw)
}

// Report counts what a purge removed.
type Report struct {
	Patients int `json:"patients"`
	Files    int `json:"files"`
}

// Service executes purges across the document store, index, registry and
// history log.
type Service struct {
	store    docstore.Store
	index    docstore.Index
	registry *registry.Service
	history  *history.Service
	audit    audit.Publisher
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHistory wires history cleanup into purges.
func WithHistory(h *history.Service) Option {
	return func(s *Service) {
		s.history = h
	}
}

// WithAudit sets the audit sink.
func WithAudit(p audit.Publisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

// New constructs a purge service. The index is optional.
func New(store docstore.Store, index docstore.Index, reg *registry.Service, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("identity registry is required")
	}
	s := &Service{
		store:    store,
		index:    index,
		registry: reg,
		audit:    audit.Nop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Purge removes everything in the given scope.
func (s *Service) Purge(ctx context.Context, scope Scope) (*Report, error) {
	var (
		report *Report
		err    error
	)
	switch scope {
	case ScopeAll:
		report, err = s.purgeAll(ctx)
	case ScopePersonas:
		report, err = s.purgePersonas(ctx)
	case ScopeDocuments:
		report, err = s.purgeDocuments(ctx)
	default:
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown purge scope %q", scope)
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, audit.Event{
		Action: audit.ActionScopePurged,
		Detail: fmt.Sprintf("scope=%s patients=%d files=%d", scope, report.Patients, report.Files),
	})
	s.logger.Info("purge completed", "scope", scope,
		"patients", report.Patients, "files", report.Files)
	return report, nil
}

// Patient removes every trace of one patient: files, index rows, the
// registry claim, and run history.
func (s *Service) Patient(ctx context.Context, key domain.PatientKey) (*Report, error) {
	if key.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "patient key is required")
	}

	files, err := s.store.List(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "listing patient files")
	}
	if err := s.store.DeleteAll(ctx, key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "deleting patient files")
	}
	if s.index != nil {
		if err := s.index.DeleteByPatient(ctx, key); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "deleting patient index rows")
		}
	}
	if err := s.registry.Remove(ctx, key); err != nil {
		return nil, err
	}
	if s.history != nil {
		if err := s.history.Forget(ctx, key); err != nil {
			s.logger.Error("purging patient history failed", "patient_key", key, "error", err)
		}
	}

	s.publish(ctx, audit.Event{
		PatientKey: key,
		Action:     audit.ActionPatientPurged,
		Detail:     fmt.Sprintf("files=%d", len(files)),
	})
	return &Report{Patients: 1, Files: len(files)}, nil
}

func (s *Service) purgeAll(ctx context.Context) (*Report, error) {
	keys, err := s.store.ListPatients(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "listing patients")
	}

	report := &Report{}
	for _, key := range keys {
		files, err := s.store.List(ctx, key)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "listing patient files")
		}
		if err := s.store.DeleteAll(ctx, key); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "deleting patient files")
		}
		report.Patients++
		report.Files += len(files)
	}

	if s.index != nil {
		if err := s.index.DeleteAll(ctx); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "clearing artifact index")
		}
	}
	if err := s.registry.Clear(ctx); err != nil {
		return nil, err
	}
	if s.history != nil {
		if err := s.history.ForgetAll(ctx); err != nil {
			s.logger.Error("purging history failed", "error", err)
		}
	}
	return report, nil
}

// purgePersonas removes persona files and registry claims, leaving clinical
// documents and summaries in place.
func (s *Service) purgePersonas(ctx context.Context) (*Report, error) {
	report, err := s.deleteMatching(ctx, func(name string) bool {
		return strings.HasPrefix(name, "Persona_Patient_")
	})
	if err != nil {
		return nil, err
	}
	if s.index != nil {
		if err := s.index.DeleteKind(ctx, artifact.KindPersona); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "clearing persona index rows")
		}
	}
	if err := s.registry.Clear(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

// purgeDocuments removes documents and summaries while preserving personas
// and their registered identities.
func (s *Service) purgeDocuments(ctx context.Context) (*Report, error) {
	report, err := s.deleteMatching(ctx, func(name string) bool {
		return !strings.HasPrefix(name, "Persona_Patient_")
	})
	if err != nil {
		return nil, err
	}
	if s.index != nil {
		if err := s.index.DeleteKind(ctx, artifact.KindDocument); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "clearing document index rows")
		}
		if err := s.index.DeleteKind(ctx, artifact.KindSummary); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "clearing summary index rows")
		}
	}
	return report, nil
}

func (s *Service) deleteMatching(ctx context.Context, match func(string) bool) (*Report, error) {
	keys, err := s.store.ListPatients(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "listing patients")
	}

	report := &Report{}
	for _, key := range keys {
		files, err := s.store.List(ctx, key)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "listing patient files")
		}
		touched := false
		for _, file := range files {
			if !match(file.Name) {
				continue
			}
			if err := s.store.Delete(ctx, key, file.Name); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "deleting artifact file")
			}
			report.Files++
			touched = true
		}
		if touched {
			report.Patients++
		}
	}
	return report, nil
}

func (s *Service) publish(ctx context.Context, event audit.Event) {
	if err := s.audit.Publish(ctx, event); err != nil {
		s.logger.Error("audit publish failed", "action", event.Action, "error", err)
	}
}
