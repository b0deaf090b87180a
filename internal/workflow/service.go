// Package workflow orchestrates patient generation runs: scan the existing
// inventory, compute the delta, drive each missing artifact through
// generate, validate and persist, and keep the identity registry honest.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chartforge/internal/artifact"
	"chartforge/internal/audit"
	"chartforge/internal/generate"
	"chartforge/internal/history"
	"chartforge/internal/inventory"
	"chartforge/internal/persist"
	"chartforge/internal/registry"
	"chartforge/internal/validation"
	"chartforge/internal/workflow/metrics"
	dErrors "chartforge/pkg/domain-errors"
	"chartforge/pkg/domain"
)

// Disposition is the terminal state of one artifact within a run.
type Disposition string

const (
	DispositionSkipped  Disposition = "skipped"
	DispositionAccepted Disposition = "accepted"
	DispositionFallback Disposition = "fallback"
	DispositionErrored  Disposition = "errored"
)

// ArtifactResult reports how one requested artifact ended up.
type ArtifactResult struct {
	Kind        artifact.Kind
	Title       artifact.NormalizedTitle
	Disposition Disposition
	Filename    string
	Reason      string
	Violated    []string
}

// Outcome summarizes one patient run. A run that produced results is a
// success at the Run level even when individual artifacts errored.
type Outcome struct {
	RunID      domain.RunID
	PatientKey domain.PatientKey
	Results    []ArtifactResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Errored reports how many artifacts failed outright.
func (o *Outcome) Errored() int {
	n := 0
	for _, r := range o.Results {
		if r.Disposition == DispositionErrored {
			n++
		}
	}
	return n
}

// Options steers one run.
type Options struct {
	// Kinds selects which artifact kinds to consider. Empty means all.
	Kinds []artifact.Kind
	// DocumentTitles are the clinical documents to produce this run.
	DocumentTitles []string
	// Force regenerates a kind even when the inventory already has it.
	ForcePersona   bool
	ForceDocuments bool
	ForceSummary   bool
	// AllowRepeatTitles permits a new document whose normalized title
	// already exists; it receives the next sequence number.
	AllowRepeatTitles bool
	// OverrideName pins the persona to an operator-chosen name, bypassing
	// the exclusion list and universe rotation.
	OverrideName string
	// Feedback is free-form operator steering passed to the collaborator.
	Feedback string
}

func (o Options) wantsKind(kind artifact.Kind) bool {
	if len(o.Kinds) == 0 {
		return true
	}
	for _, k := range o.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Service runs the generation workflow.
type Service struct {
	scanner   *inventory.Scanner
	registry  *registry.Service
	generator generate.Generator
	repairer  validation.Repairer
	loop      *validation.Loop
	writer    *persist.Writer
	history   *history.Service
	audit     audit.Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHistory enables run-history recording.
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

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRepairer sets the repair collaborator used by the validation loop.
func WithRepairer(r validation.Repairer) Option {
	return func(s *Service) {
		s.repairer = r
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

// New constructs the workflow service.
func New(
	scanner *inventory.Scanner,
	reg *registry.Service,
	generator generate.Generator,
	loop *validation.Loop,
	writer *persist.Writer,
	opts ...Option,
) (*Service, error) {
	if scanner == nil {
		return nil, fmt.Errorf("inventory scanner is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("identity registry is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generation collaborator is required")
	}
	if loop == nil {
		return nil, fmt.Errorf("validation loop is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("persistence writer is required")
	}
	s := &Service{
		scanner:   scanner,
		registry:  reg,
		generator: generator,
		loop:      loop,
		writer:    writer,
		audit:     audit.Nop{},
		tracer:    otel.Tracer("chartforge/workflow"),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes one patient generation run. A scan failure is fatal for the
// run; a collaborator failure for one artifact is recorded and the run
// continues with the rest.
func (s *Service) Run(ctx context.Context, key domain.PatientKey, opts Options) (*Outcome, error) {
	if key.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "patient key is required")
	}

	start := s.now()
	outcome := &Outcome{
		RunID:      domain.NewRunID(),
		PatientKey: key,
		StartedAt:  start,
	}

	ctx, span := s.tracer.Start(ctx, "workflow.Run",
		trace.WithAttributes(
			attribute.String("patient_key", key.String()),
			attribute.String("run_id", string(outcome.RunID)),
		))
	defer span.End()

	s.publish(ctx, audit.Event{
		RunID: outcome.RunID, PatientKey: key,
		Action: audit.ActionRunStarted, Detail: opts.Feedback,
	})

	inv, err := s.scanner.Scan(ctx, key)
	if err != nil {
		s.publish(ctx, audit.Event{
			RunID: outcome.RunID, PatientKey: key,
			Action: audit.ActionRunFailed, Detail: err.Error(),
		})
		return nil, err
	}

	identity, err := s.currentIdentity(ctx, key)
	if err != nil {
		return nil, err
	}

	if opts.wantsKind(artifact.KindPersona) {
		identity = s.runPersona(ctx, key, opts, inv, identity, outcome)
	}
	if opts.wantsKind(artifact.KindDocument) {
		s.runDocuments(ctx, key, opts, inv, identity, outcome)
	}
	if opts.wantsKind(artifact.KindSummary) {
		s.runSummary(ctx, key, opts, inv, identity, outcome)
	}

	outcome.FinishedAt = s.now()
	if s.metrics != nil {
		s.metrics.ObserveRun(start)
	}
	s.record(ctx, outcome, opts)
	s.publish(ctx, audit.Event{
		RunID: outcome.RunID, PatientKey: key,
		Action: audit.ActionRunCompleted,
		Detail: fmt.Sprintf("%d artifacts, %d errored", len(outcome.Results), outcome.Errored()),
	})
	return outcome, nil
}

// CompletionStatus reports whether a patient already has at least one
// clinical document on file. Batch runs use it to skip finished patients;
// summaries alone do not count as completion.
func (s *Service) CompletionStatus(ctx context.Context, key domain.PatientKey) (bool, error) {
	inv, err := s.scanner.Scan(ctx, key)
	if err != nil {
		return false, err
	}
	return len(inv.Documents) > 0, nil
}

func (s *Service) currentIdentity(ctx context.Context, key domain.PatientKey) (*artifact.Persona, error) {
	known, ok, err := s.registry.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	// Registry rows carry the identity facts the prompts must hold stable.
	first, last, _ := splitDisplayName(known.DisplayName)
	return &artifact.Persona{
		FirstName:      first,
		LastName:       last,
		SourceUniverse: known.SourceUniverse,
	}, nil
}

// runPersona generates the persona when missing or forced, registering the
// identity before persisting so concurrent runs cannot claim the same name.
// Returns the identity later artifacts should lock to.
func (s *Service) runPersona(ctx context.Context, key domain.PatientKey, opts Options, inv *artifact.Inventory, identity *artifact.Persona, outcome *Outcome) *artifact.Persona {
	if inv.HasPersona && !opts.ForcePersona {
		outcome.Results = append(outcome.Results, s.result(artifact.KindPersona, "", ArtifactResult{
			Disposition: DispositionSkipped,
			Reason:      "persona already on file",
		}))
		return identity
	}

	exclusions, err := s.exclusions(ctx, opts)
	if err != nil {
		outcome.Results = append(outcome.Results, s.result(artifact.KindPersona, "", ArtifactResult{
			Disposition: DispositionErrored, Reason: err.Error(),
		}))
		return identity
	}

	// Forced regeneration overwrites an existing registration. Hold on to
	// it so a failed write can restore the claim the on-disk file still
	// represents.
	prior, hadPrior, err := s.registry.Lookup(ctx, key)
	if err != nil {
		outcome.Results = append(outcome.Results, s.result(artifact.KindPersona, "", ArtifactResult{
			Disposition: DispositionErrored, Reason: err.Error(),
		}))
		return identity
	}

	final, verdict, err := s.producePersona(ctx, key, opts, exclusions)
	if err != nil {
		outcome.Results = append(outcome.Results, s.result(artifact.KindPersona, "", ArtifactResult{
			Disposition: DispositionErrored, Reason: err.Error(),
		}))
		return identity
	}

	ref, err := s.writer.Write(ctx, persist.Commit{
		PatientKey: key,
		Final:      final,
		Identity:   final.Persona,
		Violated:   validation.RuleStrings(verdict.Violated),
	})
	if err != nil {
		// Roll the name claim back; the artifact never became durable. A
		// forced regeneration gets its previous identity re-registered so
		// the registry keeps matching the persona file still on disk.
		if hadPrior {
			if rbErr := s.registry.Register(ctx, key, prior, true); rbErr != nil {
				s.logger.Error("restoring prior persona registration failed",
					"patient_key", key, "display_name", prior.DisplayName, "error", rbErr)
			}
		} else if rmErr := s.registry.Remove(ctx, key); rmErr != nil {
			s.logger.Error("rolling back persona registration failed",
				"patient_key", key, "error", rmErr)
		}
		outcome.Results = append(outcome.Results, s.result(artifact.KindPersona, "", ArtifactResult{
			Disposition: DispositionErrored, Reason: err.Error(),
		}))
		return identity
	}

	inv.HasPersona = true
	outcome.Results = append(outcome.Results, s.result(artifact.KindPersona, "", ArtifactResult{
		Disposition: disposition(final),
		Filename:    ref.Filename,
		Violated:    validation.RuleStrings(verdict.Violated),
	}))
	s.publishArtifact(ctx, outcome, key, artifact.KindPersona, final)
	return final.Persona
}

// producePersona runs generate-resolve-register, retrying exactly once with
// a refreshed exclusion list if the chosen name is already taken.
func (s *Service) producePersona(ctx context.Context, key domain.PatientKey, opts Options, exclusions []string) (*artifact.Final, validation.Verdict, error) {
	for attempt := 0; ; attempt++ {
		raw, err := s.generator.Generate(ctx, artifact.KindPersona, generate.Request{
			PatientKey:   key,
			Exclusions:   exclusions,
			OverrideName: opts.OverrideName,
			Feedback:     opts.Feedback,
		})
		if err != nil {
			return nil, validation.Verdict{}, err
		}

		final, verdict := s.loop.Resolve(ctx, &artifact.Generated{
			Raw: *raw, GeneratedAt: s.now(), Attempt: 1,
		}, validation.Expectation{Kind: artifact.KindPersona}, s.repairer)

		if final.Persona == nil {
			return nil, verdict, dErrors.New(dErrors.CodeInternal, "persona artifact has no payload")
		}

		// An operator-supplied name skips the uniqueness check, so the
		// override must register even when another patient holds the name.
		err = s.registry.Register(ctx, key, registry.Identity{
			DisplayName:    final.Persona.DisplayName(),
			SourceUniverse: final.Persona.SourceUniverse,
		}, opts.OverrideName != "")
		if err == nil {
			return final, verdict, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeConflict) || attempt > 0 {
			return nil, verdict, err
		}

		// Another run claimed the same name first. Refresh the exclusion
		// list and give the collaborator one more chance.
		if s.metrics != nil {
			s.metrics.IncRegistryRetry()
		}
		s.logger.Warn("persona name already registered, retrying with refreshed exclusions",
			"patient_key", key, "display_name", final.Persona.DisplayName())
		exclusions, err = s.exclusions(ctx, opts)
		if err != nil {
			return nil, verdict, err
		}
	}
}

func (s *Service) runDocuments(ctx context.Context, key domain.PatientKey, opts Options, inv *artifact.Inventory, identity *artifact.Persona, outcome *Outcome) {
	for _, title := range opts.DocumentTitles {
		normalized := artifact.NormalizeTitle(title)
		if normalized == "" {
			outcome.Results = append(outcome.Results, s.result(artifact.KindDocument, normalized, ArtifactResult{
				Disposition: DispositionErrored, Reason: "empty document title",
			}))
			continue
		}

		if inv.HasDocument(normalized) && !opts.ForceDocuments && !opts.AllowRepeatTitles {
			outcome.Results = append(outcome.Results, s.result(artifact.KindDocument, normalized, ArtifactResult{
				Disposition: DispositionSkipped,
				Reason:      fmt.Sprintf("document %q already on file", normalized),
			}))
			continue
		}

		s.runDocument(ctx, key, opts, inv, identity, normalized, title, outcome)
	}
}

func (s *Service) runDocument(ctx context.Context, key domain.PatientKey, opts Options, inv *artifact.Inventory, identity *artifact.Persona, normalized artifact.NormalizedTitle, title string, outcome *Outcome) {
	raw, err := s.generator.Generate(ctx, artifact.KindDocument, generate.Request{
		PatientKey:     key,
		Title:          title,
		ExistingTitles: inv.Titles(),
		Identity:       identity,
		Feedback:       opts.Feedback,
	})
	if err != nil {
		outcome.Results = append(outcome.Results, s.result(artifact.KindDocument, normalized, ArtifactResult{
			Disposition: DispositionErrored, Reason: err.Error(),
		}))
		return
	}

	final, verdict := s.loop.Resolve(ctx, &artifact.Generated{
		Raw: *raw, GeneratedAt: s.now(), Attempt: 1,
	}, validation.Expectation{Kind: artifact.KindDocument, Title: normalized}, s.repairer)
	final.Seq = inv.MaxSeq + 1

	ref, err := s.writer.Write(ctx, persist.Commit{
		PatientKey: key,
		Final:      final,
		Identity:   identity,
		Violated:   validation.RuleStrings(verdict.Violated),
	})
	if err != nil {
		outcome.Results = append(outcome.Results, s.result(artifact.KindDocument, normalized, ArtifactResult{
			Disposition: DispositionErrored, Reason: err.Error(),
		}))
		return
	}

	// Later artifacts in this run must see the new document.
	inv.AddDocument(artifact.DocumentRecord{
		Title: normalized, Seq: final.Seq, Filename: ref.Filename, Fallback: final.Fallback,
	})

	outcome.Results = append(outcome.Results, s.result(artifact.KindDocument, normalized, ArtifactResult{
		Disposition: disposition(final),
		Filename:    ref.Filename,
		Violated:    validation.RuleStrings(verdict.Violated),
	}))
	s.publishArtifact(ctx, outcome, key, artifact.KindDocument, final)
}

func (s *Service) runSummary(ctx context.Context, key domain.PatientKey, opts Options, inv *artifact.Inventory, identity *artifact.Persona, outcome *Outcome) {
	if inv.HasSummary && !opts.ForceSummary {
		outcome.Results = append(outcome.Results, s.result(artifact.KindSummary, "", ArtifactResult{
			Disposition: DispositionSkipped,
			Reason:      "summary already on file",
		}))
		return
	}

	raw, err := s.generator.Generate(ctx, artifact.KindSummary, generate.Request{
		PatientKey:     key,
		ExistingTitles: inv.Titles(),
		Identity:       identity,
		Feedback:       opts.Feedback,
	})
	if err != nil {
		outcome.Results = append(outcome.Results, s.result(artifact.KindSummary, "", ArtifactResult{
			Disposition: DispositionErrored, Reason: err.Error(),
		}))
		return
	}

	final, verdict := s.loop.Resolve(ctx, &artifact.Generated{
		Raw: *raw, GeneratedAt: s.now(), Attempt: 1,
	}, validation.Expectation{Kind: artifact.KindSummary}, s.repairer)

	ref, err := s.writer.Write(ctx, persist.Commit{
		PatientKey: key,
		Final:      final,
		Identity:   identity,
		Violated:   validation.RuleStrings(verdict.Violated),
	})
	if err != nil {
		outcome.Results = append(outcome.Results, s.result(artifact.KindSummary, "", ArtifactResult{
			Disposition: DispositionErrored, Reason: err.Error(),
		}))
		return
	}

	inv.HasSummary = true
	outcome.Results = append(outcome.Results, s.result(artifact.KindSummary, "", ArtifactResult{
		Disposition: disposition(final),
		Filename:    ref.Filename,
		Violated:    validation.RuleStrings(verdict.Violated),
	}))
	s.publishArtifact(ctx, outcome, key, artifact.KindSummary, final)
}

func (s *Service) exclusions(ctx context.Context, opts Options) ([]string, error) {
	if opts.OverrideName != "" {
		// Explicit operator naming bypasses the uniqueness constraints.
		return nil, nil
	}
	return s.registry.ExclusionList(ctx)
}

func (s *Service) result(kind artifact.Kind, title artifact.NormalizedTitle, r ArtifactResult) ArtifactResult {
	r.Kind = kind
	r.Title = title
	if s.metrics != nil {
		s.metrics.IncArtifact(string(kind), string(r.Disposition))
	}
	return r
}

func (s *Service) publish(ctx context.Context, event audit.Event) {
	event.Timestamp = s.now()
	if err := s.audit.Publish(ctx, event); err != nil {
		s.logger.Error("audit publish failed", "action", event.Action, "error", err)
	}
}

func (s *Service) publishArtifact(ctx context.Context, outcome *Outcome, key domain.PatientKey, kind artifact.Kind, final *artifact.Final) {
	action := audit.ActionArtifactAccepted
	if final.Fallback {
		action = audit.ActionArtifactFallback
	}
	s.publish(ctx, audit.Event{
		RunID: outcome.RunID, PatientKey: key,
		Action: action, Detail: string(kind),
	})
}

func (s *Service) record(ctx context.Context, outcome *Outcome, opts Options) {
	if s.history == nil {
		return
	}
	artifacts := make([]string, 0, len(outcome.Results))
	overall := "accepted"
	for _, r := range outcome.Results {
		if r.Filename != "" {
			artifacts = append(artifacts, r.Filename)
		}
		if r.Disposition == DispositionErrored {
			overall = "partial"
		}
	}
	s.history.Record(ctx, history.Entry{
		RunID:      outcome.RunID,
		PatientKey: outcome.PatientKey,
		Feedback:   opts.Feedback,
		Outcome:    overall,
		Artifacts:  artifacts,
		RecordedAt: outcome.FinishedAt,
	})
}

func disposition(final *artifact.Final) Disposition {
	if final.Fallback {
		return DispositionFallback
	}
	return DispositionAccepted
}

// splitDisplayName recovers first/last from a stored display name.
func splitDisplayName(name string) (first, last string, ok bool) {
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == ' ' {
			return name[:i], name[i+1:], true
		}
	}
	return name, "", false
}
